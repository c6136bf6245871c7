package models

import (
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
)

// Mode describes the semantic direction of a habit. ON means "do it every
// day", OFF means "avoid it every day". NORMAL carries no direction. The
// increment logic is identical for all three; the mode is display semantics.
type Mode string

const (
	ModeNormal Mode = "NORMAL"
	ModeOn     Mode = "ON"
	ModeOff    Mode = "OFF"
)

// Valid reports whether m is one of the known modes.
func (m Mode) Valid() bool {
	switch m {
	case ModeNormal, ModeOn, ModeOff:
		return true
	}
	return false
}

type User struct {
	ID             primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	Email          string             `bson:"email" json:"email"`
	PasswordHash   string             `bson:"password_hash" json:"-"`
	DisplayName    string             `bson:"display_name" json:"displayName"`
	EmailConfirmed bool               `bson:"email_confirmed" json:"emailConfirmed"`
}

// Habit is a tracked recurring activity. Qtt is the current streak count;
// Goal > 0 turns the habit into a challenge that completes at Qtt >= Goal.
type Habit struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID            primitive.ObjectID `bson:"user_id" json:"userId"`
	Name              string             `bson:"name" json:"name"`
	Qtt               int                `bson:"qtt" json:"qtt"`
	Goal              int                `bson:"goal,omitempty" json:"goal,omitempty"`
	Mode              Mode               `bson:"mode" json:"mode"`
	ResetOnFailure    bool               `bson:"reset_on_failure" json:"resetOnFailure"`
	LastIncrementedAt *time.Time         `bson:"last_incremented_at,omitempty" json:"lastIncrementedAt,omitempty"`
	StartDate         *time.Time         `bson:"start_date,omitempty" json:"startDate,omitempty"`
}

// Completion is one append-only log entry for a habit. DayNumber holds the
// habit's qtt immediately after the event that created the record; failure
// records carry DayNumber 0 and IsFailure true.
type Completion struct {
	ID          primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	HabitID     primitive.ObjectID `bson:"habit_id" json:"habitId"`
	DayNumber   int                `bson:"day_number" json:"dayNumber"`
	CompletedAt time.Time          `bson:"completed_at" json:"completedAt"`
	IsFailure   bool               `bson:"is_failure" json:"isFailure"`
}

type Confirmation struct {
	ID                primitive.ObjectID `bson:"_id,omitempty" json:"id"`
	UserID            primitive.ObjectID `bson:"user_id,omitempty" json:"user_id"`
	ConfirmationToken string             `bson:"token" json:"token"`
	ExpiresAt         time.Time          `bson:"expires_at" json:"expires_at"`
}
