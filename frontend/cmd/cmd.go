package cmd

import (
	"fmt"
	"os"
	"strconv"
	"strings"

	ishell "github.com/abiosoft/ishell"
	"github.com/common-nighthawk/go-figure"

	"github.com/lifetrack-app/lifetrack/backend/models"
	"github.com/lifetrack-app/lifetrack/frontend/client"
	"github.com/lifetrack-app/lifetrack/lib/utils"
)

// guestCommands is a slice of Command structures containing commands that are available to users who have not logged in.
var guestCommands []Command

// userCommands is a slice of Command structures containing commands that are available only to logged in users.
var userCommands []Command

// commonCommands is a slice of Command structures containing commands that are available to all users, regardless of their login status.
var commonCommands []Command

// loggedIn is a boolean variable that indicates whether a user is currently logged in. It is true when a user is logged in and false otherwise.
var loggedIn bool

// shell represents an instance of the interactive shell used for this application. Users can interact with the application by executing commands on this shell.
var shell *ishell.Shell

// The Command struct defines a user command in the system. Each command has a Name, a Desc (short for description), and a Func (the function to execute when the command is called).
type Command struct {
	Name string                  // Name is the name of the command.
	Desc string                  // Desc is a short description of what the command does.
	Func func(c *ishell.Context) // Func is the function that is executed when the command is invoked.
}

// switchToUser swaps the guest command set for the signed-in command set.
func switchToUser() {
	loggedIn = true
	for _, command := range guestCommands {
		shell.DeleteCmd(command.Name)
	}
	addCommands(shell, userCommands)
}

// switchToGuest swaps the signed-in command set for the guest command set.
func switchToGuest() {
	loggedIn = false
	for _, command := range userCommands {
		shell.DeleteCmd(command.Name)
	}
	addCommands(shell, guestCommands)
}

// handleSessionError handles errors from the client, signing the user out
// when the session can no longer be refreshed.
func handleSessionError(err error) {
	if strings.Contains(err.Error(), "expired") || strings.Contains(err.Error(), "invalid token") {
		utils.PrintError("Session expired, please sign in again by typing 'signin' in the terminal.")
		client.ClearKeyring()
		switchToGuest()
		return
	}
	utils.PrintError(err.Error())
}

// habitLine formats one habit for the list view.
func habitLine(i int, h models.Habit) string {
	status := fmt.Sprintf("day %d", h.Qtt)
	if h.Goal > 0 {
		if h.Qtt >= h.Goal {
			status = fmt.Sprintf("COMPLETE (%d/%d)", h.Qtt, h.Goal)
		} else {
			status = fmt.Sprintf("day %d of %d", h.Qtt, h.Goal)
		}
	}
	return fmt.Sprintf("  %d. %s -- %s [%s]", i+1, h.Name, status, h.Mode)
}

// pickHabit lists the user's habits and asks for a number. Returns the
// chosen habit, or nil if the user has no habits or the choice was invalid.
func pickHabit(c *ishell.Context, prompt string) *models.Habit {
	habits, err := client.Habits()
	if err != nil {
		handleSessionError(err)
		return nil
	}
	if len(habits) == 0 {
		c.Println("You have no habits yet. Create one with 'add'.")
		return nil
	}

	for i, h := range habits {
		c.Println(habitLine(i, h))
	}

	c.Print(prompt)
	choice, err := strconv.Atoi(strings.TrimSpace(c.ReadLine()))
	if err != nil || choice < 1 || choice > len(habits) {
		c.Println("Invalid choice.")
		return nil
	}
	return &habits[choice-1]
}

// confirmYesNo loops until the user types yes or no. Returns true for yes.
func confirmYesNo(c *ishell.Context, prompt string) bool {
	for {
		c.Print(prompt + " (yes/no): ")
		response := strings.ToLower(strings.TrimSpace(c.ReadLine()))
		if response == "yes" {
			return true
		}
		if response == "no" {
			return false
		}
		c.Println("Invalid response. Please type 'yes' or 'no'.")
	}
}

// InitCommands initializes the interactive shell and sets up the command
// sets for guest and signed-in scenarios.
func InitCommands() {

	// Initialize shell
	shell = ishell.New()

	// Define the commands available to a guest user (not signed in)
	guestCommands = []Command{
		{
			Name: "signin",
			Desc: "Sign in to your account",
			Func: func(c *ishell.Context) {
				var email, password string
				for {
					c.Print("Enter Email: ")
					email = c.ReadLine()

					if utils.ValidateEmail(email) {
						break
					}
					c.Println("Email is not valid.")
				}

				for {
					c.Print("Enter Password: ")
					password = c.ReadPassword()

					if len(password) > 0 {
						break
					}
					c.Println("Password cannot be empty.")
				}

				user, err := client.SignIn(email, password)
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				c.Println("Welcome back, " + user.DisplayName + ". You are now signed in.")
				switchToUser()
			},
		},
		{
			Name: "signup",
			Desc: "Sign up for a new account",
			Func: func(c *ishell.Context) {
				var displayName, email, password string
				for {
					c.Print("Enter Display Name: ")
					displayName = c.ReadLine()

					if len(displayName) > 1 {
						break
					}
					c.Println("Display name must be longer than 1 character.")
				}

				for {
					c.Print("Enter Email: ")
					email = c.ReadLine()

					if utils.ValidateEmail(email) {
						break
					}
					c.Println("Email is not valid.")
				}

				for {
					c.Print("Enter Password: ")
					password = c.ReadPassword()

					if utils.ValidatePassword(password) {
						c.Print("Confirm Password: ")
						confirmPassword := c.ReadPassword()

						if password == confirmPassword {
							break
						} else {
							c.Println()
							c.Println("Passwords do not match. Please try again.")
							c.Println()
						}
					} else {
						c.Println()
						c.Println("Password must be at least 8 characters and contain both letters and numbers.")
						c.Println()
					}
				}

				user, err := client.SignUp(email, password, displayName)
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				c.Println("Account created successfully, " + user.DisplayName + ". You are now signed in.")
				c.Println("Please check your email and confirm your account using the 'confirm' command.")
				switchToUser()
			},
		},
	}

	// Define the commands available to a signed in user
	userCommands = []Command{
		{
			Name: "habits",
			Desc: "List your habits and challenges",
			Func: func(c *ishell.Context) {
				habits, err := client.Habits()
				if err != nil {
					handleSessionError(err)
					return
				}
				if len(habits) == 0 {
					c.Println("You have no habits yet. Create one with 'add'.")
					return
				}
				c.Println("Your habits:")
				for i, h := range habits {
					c.Println(habitLine(i, h))
				}
			},
		},
		{
			Name: "add",
			Desc: "Create a new habit or a 100-day challenge",
			Func: func(c *ishell.Context) {
				var name string
				for {
					c.Print("Enter Habit Name: ")
					name = strings.TrimSpace(c.ReadLine())
					if len(name) > 0 {
						break
					}
					c.Println("Habit name cannot be empty.")
				}

				goal := 0
				if confirmYesNo(c, "Is this a challenge with a fixed goal (e.g. 100 days)?") {
					for {
						c.Print("Enter Goal (number of days): ")
						n, err := strconv.Atoi(strings.TrimSpace(c.ReadLine()))
						if err == nil && n > 0 {
							goal = n
							break
						}
						c.Println("Goal must be a positive number.")
					}
				}

				mode := models.ModeNormal
				for {
					c.Print("Mode -- ON to build the habit, OFF to break it (NORMAL/ON/OFF) [NORMAL]: ")
					input := strings.ToUpper(strings.TrimSpace(c.ReadLine()))
					if input == "" {
						break
					}
					if m := models.Mode(input); m.Valid() {
						mode = m
						break
					}
					c.Println("Mode must be one of NORMAL, ON, OFF.")
				}

				resetOnFailure := confirmYesNo(c, "Should a failure reset the streak to day zero?")

				habit, err := client.CreateHabit(name, goal, mode, resetOnFailure)
				if err != nil {
					handleSessionError(err)
					return
				}
				if habit.Goal > 0 {
					c.Println(fmt.Sprintf("Challenge '%s' created. %d days to go!", habit.Name, habit.Goal))
				} else {
					c.Println(fmt.Sprintf("Habit '%s' created. Mark your first day with 'done'.", habit.Name))
				}
			},
		},
		{
			Name: "done",
			Desc: "Mark a habit as done for today",
			Func: func(c *ishell.Context) {
				habit := pickHabit(c, "Which habit did you complete today? (number): ")
				if habit == nil {
					return
				}

				updated, err := client.IncrementHabit(habit.ID.Hex())
				if err != nil {
					if apiErr, ok := err.(*client.APIError); ok {
						switch apiErr.Reason {
						case "already_completed_today":
							c.Println("You already marked this habit today. Come back tomorrow!")
						case "already_complete":
							c.Println("This challenge is already complete. Nothing left to do!")
						default:
							utils.PrintError(apiErr.Message)
						}
						return
					}
					handleSessionError(err)
					return
				}

				if updated.Goal > 0 && updated.Qtt >= updated.Goal {
					utils.PrintBanner(fmt.Sprintf("Congratulations! You finished the '%s' challenge: %d days straight!", updated.Name, updated.Qtt))
				} else {
					c.Println(fmt.Sprintf("Nice work. '%s' is now on day %d.", updated.Name, updated.Qtt))
				}
			},
		},
		{
			Name: "fail",
			Desc: "Record a failure and reset a habit's streak",
			Func: func(c *ishell.Context) {
				habit := pickHabit(c, "Which habit did you fail? (number): ")
				if habit == nil {
					return
				}

				if !habit.ResetOnFailure {
					c.Println(fmt.Sprintf("'%s' is configured to keep its streak on failure.", habit.Name))
					if !confirmYesNo(c, "Reset it to day zero anyway?") {
						return
					}
				}

				updated, err := client.FailHabit(habit.ID.Hex())
				if err != nil {
					if apiErr, ok := err.(*client.APIError); ok {
						utils.PrintError(apiErr.Message)
						return
					}
					handleSessionError(err)
					return
				}
				c.Println(fmt.Sprintf("'%s' is back to day zero. Tomorrow is a new start.", updated.Name))
			},
		},
		{
			Name: "log",
			Desc: "Show the completion log of a habit",
			Func: func(c *ishell.Context) {
				habit := pickHabit(c, "Which habit's log do you want to see? (number): ")
				if habit == nil {
					return
				}

				completions, err := client.Completions(habit.ID.Hex())
				if err != nil {
					handleSessionError(err)
					return
				}
				if len(completions) == 0 {
					c.Println("No completions recorded yet for '" + habit.Name + "'.")
					return
				}

				c.Println("Log for '" + habit.Name + "':")
				for _, comp := range completions {
					when := comp.CompletedAt.Local().Format("Mon, 02 Jan 2006")
					if comp.IsFailure {
						c.Println("  x  failed on " + when)
					} else {
						c.Println(fmt.Sprintf("  +  day %d on %s", comp.DayNumber, when))
					}
				}
			},
		},
		{
			Name: "rm",
			Desc: "Delete a habit and its log",
			Func: func(c *ishell.Context) {
				habit := pickHabit(c, "Which habit do you want to delete? (number): ")
				if habit == nil {
					return
				}

				if !confirmYesNo(c, "Delete '"+habit.Name+"' and its entire log?") {
					return
				}

				if err := client.DeleteHabit(habit.ID.Hex()); err != nil {
					handleSessionError(err)
					return
				}
				c.Println("Habit deleted successfully.")
			},
		},
		{
			Name: "confirm",
			Desc: "Confirm your account with the code sent to your email",
			Func: func(c *ishell.Context) {
				c.Print("Enter the confirmation code from your email: ")
				token := c.ReadLine()

				err := client.ConfirmEmail(token)
				if err != nil {
					handleSessionError(err)
					return
				}
				c.Println("Account activated successfully. You can now access all features.")
			},
		},
		{
			Name: "account",
			Desc: "Update your account information",
			Func: func(c *ishell.Context) {
				var currentPassword, newDisplayName, newEmail, newPassword string

				for {
					c.Print("Enter Current Password: ")
					currentPassword = c.ReadPassword()

					if len(currentPassword) > 0 {
						break
					}
					c.Println("Current password cannot be empty.")
				}

				if confirmYesNo(c, "Do you want to update your display name?") {
					for {
						c.Print("Enter New Display Name: ")
						newDisplayName = c.ReadLine()

						if len(newDisplayName) > 1 {
							break
						}
						c.Println("New display name must be longer than 1 character.")
					}
				}

				if confirmYesNo(c, "Do you want to update your email?") {
					for {
						c.Print("Enter New Email: ")
						newEmail = c.ReadLine()

						if utils.ValidateEmail(newEmail) {
							break
						}
						c.Println("New email is not valid.")
					}
				}

				if confirmYesNo(c, "Do you want to update your password?") {
					for {
						c.Print("Enter New Password: ")
						newPassword = c.ReadPassword()

						if utils.ValidatePassword(newPassword) {
							c.Print("Confirm New Password: ")
							confirmPassword := c.ReadPassword()

							if newPassword == confirmPassword {
								break
							}
							c.Println()
							c.Println("Passwords do not match. Please try again.")
							c.Println()
						} else {
							c.Println()
							c.Println("New password must be at least 8 characters and contain both letters and numbers.")
							c.Println()
						}
					}
				}

				err := client.UpdateAccount(currentPassword, newDisplayName, newEmail, newPassword)
				if err != nil {
					handleSessionError(err)
					return
				}
				c.Println("Account updated successfully.")
				if newEmail != "" {
					c.Println("Please confirm your new email using the 'confirm' command.")
				}
			},
		},
		{
			Name: "signout",
			Desc: "Sign out from your account",
			Func: func(c *ishell.Context) {
				err := client.SignOut()
				if err != nil {
					utils.PrintError(err.Error())
					return
				}
				c.Println("You are now signed out.")
				switchToGuest()
			},
		},
		{
			Name: "deletemyacc",
			Desc: "Delete your account",
			Func: func(c *ishell.Context) {
				if !confirmYesNo(c, "Are you sure you want to delete your account? All habits will be lost.") {
					return
				}
				err := client.DeleteAccount()
				if err != nil {
					handleSessionError(err)
					return
				}
				c.Println("Account deleted successfully.")
				switchToGuest()
			},
		},
	}

	// Define common commands that are always available, regardless of login state
	commonCommands = []Command{
		{
			Name: "exit",
			Desc: "Exit the application",
			Func: func(c *ishell.Context) {
				fmt.Println("Goodbye!")
				os.Exit(0)
			},
		},
	}

	// The help command is created separately to avoid the cyclic dependency
	commonCommands = append(commonCommands, Command{
		Name: "help",
		Desc: "List available commands",
		Func: func(c *ishell.Context) {
			c.Println("Available commands:")
			if loggedIn {
				for _, command := range userCommands {
					c.Println("  |-- '" + command.Name + "' : " + command.Desc)
				}
			} else {
				for _, command := range guestCommands {
					c.Println("  |-- '" + command.Name + "' : " + command.Desc)
				}
			}
			for _, command := range commonCommands {
				c.Println("  |-- '" + command.Name + "' : " + command.Desc)
			}
			c.Println()
		},
	})
}

// addCommands is a helper function that adds the given commands to the shell.
//
// It accepts two arguments:
// - shell: The ishell shell where the commands will be added.
// - commands: A slice of Command structs to be added to the shell.
func addCommands(shell *ishell.Shell, commands []Command) {
	for _, command := range commands {
		shell.AddCmd(&ishell.Cmd{
			Name: command.Name,
			Help: "Command: " + command.Name,
			Func: command.Func,
		})
	}
}

// Execute is the main function that executes the shell.
// It welcomes the user, adds common and guest commands to the shell, and runs the shell.
func Execute() {
	shell.Println()
	figure.NewFigure("LifeTrack", "basic", true).Print()
	shell.Println("Welcome to LifeTrack -- the habit and challenge tracker. Type 'help' to see a list of commands.")

	addCommands(shell, commonCommands)
	addCommands(shell, guestCommands)

	shell.Run()
}
