// Package habit holds the daily-increment state machine. It is pure
// decision logic: given the current habit record and a timestamp it either
// produces a plan (the field updates and the completion record to append)
// or a typed rejection. Persistence and HTTP concerns live elsewhere.
package habit

import (
	"strings"
	"time"

	"github.com/lifetrack-app/lifetrack/backend/models"
)

// State is the conceptual state of a single habit.
type State int

const (
	// Active habits accept one increment per calendar day.
	Active State = iota
	// Completed habits (goal set and reached) reject further increments.
	Completed
)

// StateOf returns the current state of a habit. A habit without a goal is
// always Active.
func StateOf(h *models.Habit) State {
	if h.Goal > 0 && h.Qtt >= h.Goal {
		return Completed
	}
	return Active
}

// SameCalendarDay reports whether a and b fall on the same calendar date in
// the server's local timezone. Elapsed hours are irrelevant: 23:59 and
// 00:01 the next day are different days, two timestamps on one date are the
// same day no matter how far apart.
func SameCalendarDay(a, b time.Time) bool {
	ay, am, ad := a.Local().Date()
	by, bm, bd := b.Local().Date()
	return ay == by && am == bm && ad == bd
}

// DayStart returns local midnight of the day containing t. The persistence
// layer uses it as the lower bound in the atomic increment guard.
func DayStart(t time.Time) time.Time {
	y, m, d := t.Local().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.Local)
}

// IncrementPlan is the outcome of a permitted increment: the new streak
// count, the timestamp to record, the completion row to append, and whether
// this increment completes the habit's challenge.
type IncrementPlan struct {
	NewQtt            int
	LastIncrementedAt time.Time
	Completion        models.Completion
	CompletesGoal     bool
}

// PlanIncrement decides whether a habit may be incremented at the given
// time. Check order: completed challenge first, then the once-per-day
// guard. No completion row is produced on rejection.
func PlanIncrement(h *models.Habit, now time.Time) (*IncrementPlan, error) {
	if StateOf(h) == Completed {
		return nil, ErrAlreadyComplete
	}
	if h.LastIncrementedAt != nil && SameCalendarDay(*h.LastIncrementedAt, now) {
		return nil, ErrAlreadyCompletedToday
	}

	newQtt := h.Qtt + 1
	return &IncrementPlan{
		NewQtt:            newQtt,
		LastIncrementedAt: now,
		Completion: models.Completion{
			HabitID:     h.ID,
			DayNumber:   newQtt,
			CompletedAt: now,
			IsFailure:   false,
		},
		CompletesGoal: h.Goal > 0 && newQtt >= h.Goal,
	}, nil
}

// FailPlan is the outcome of a fail event: the streak restarts from zero
// and a failure record is appended to the completion log.
type FailPlan struct {
	StartDate         time.Time
	LastIncrementedAt time.Time
	Completion        models.Completion
}

// PlanFail resets a habit's streak. There is deliberately no day guard:
// failures may be recorded any number of times per day, matching the
// original product behavior. Whether a habit should offer the fail action
// at all (resetOnFailure) is a presentation-layer policy.
func PlanFail(h *models.Habit, now time.Time) *FailPlan {
	return &FailPlan{
		StartDate:         now,
		LastIncrementedAt: now,
		Completion: models.Completion{
			HabitID:     h.ID,
			DayNumber:   0,
			CompletedAt: now,
			IsFailure:   true,
		},
	}
}

// ValidateNew checks the user-supplied fields of a habit being created and
// fills in defaults (NORMAL mode). Returns a typed rejection on bad input.
func ValidateNew(h *models.Habit) error {
	h.Name = strings.TrimSpace(h.Name)
	if h.Name == "" {
		return ErrNameRequired
	}
	if h.Goal < 0 {
		return ErrInvalidGoal
	}
	if h.Mode == "" {
		h.Mode = models.ModeNormal
	}
	if !h.Mode.Valid() {
		return ErrInvalidMode
	}
	return nil
}
