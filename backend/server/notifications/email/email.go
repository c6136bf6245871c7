package email

import (
	"fmt"
	"net/smtp"
)

// smtpServer is the address of the SMTP server used to send emails.
var smtpServer string

// auth holds the authentication data needed to connect to the SMTP server.
var auth smtp.Auth

// fromEmail is the sender address used as the "From" header on outgoing mail.
var fromEmail string

// InitEmailService initializes the email service: it sets the SMTP server
// address and sender, builds the PlainAuth credentials, and dials the
// server once to verify the connection works.
// Returns false and an error if the server cannot be reached.
func InitEmailService(sender, password string) (bool, error) {
	smtpServer = "smtp.gmail.com:587"
	fromEmail = sender

	auth = smtp.PlainAuth(
		"",
		sender,
		password,
		"smtp.gmail.com",
	)

	c, err := smtp.Dial(smtpServer)
	if err != nil {
		return false, fmt.Errorf("cannot connect to the SMTP server: %v", err)
	}

	err = c.Close()
	if err != nil {
		return false, fmt.Errorf("cannot close the SMTP connection: %v", err)
	}

	return true, nil
}

// SendConfirmation sends the account confirmation code to the given
// recipient. The recipient enters the code in the CLI to activate the
// account.
func SendConfirmation(to, token string) error {
	headers := make(map[string]string)
	headers["From"] = fromEmail
	headers["To"] = to
	headers["Subject"] = "Your LifeTrack confirmation code"
	headers["MIME-version"] = "1.0"
	headers["Content-Type"] = "text/html; charset=\"UTF-8\""

	message := ""
	for k, v := range headers {
		message += fmt.Sprintf("%s: %s\r\n", k, v)
	}

	body := fmt.Sprintf(`
	<html>
		<body>
			<div style="max-width: 600px; margin: 0 auto; padding: 10px;">
				<h1>Welcome to LifeTrack</h1>
				<p>Enter this code in the LifeTrack CLI to confirm your account:</p>
				<p><code style="font-size: 1.4em;">%s</code></p>
				<p>The code expires in 24 hours.</p>
			</div>
		</body>
	</html>`, token)

	message += "\r\n" + body

	return smtp.SendMail(smtpServer, auth, fromEmail, []string{to}, []byte(message))
}
