package habit

import "errors"

// Expected, recoverable outcomes of habit operations. The HTTP boundary
// maps these to stable reason codes; none of them are retried or fatal.
var (
	// ErrHabitNotFound covers both a missing habit and a habit owned by
	// another user. Callers must not be able to tell the two apart.
	ErrHabitNotFound = errors.New("habit not found")

	// ErrAlreadyComplete rejects an increment on a challenge whose goal
	// has been reached.
	ErrAlreadyComplete = errors.New("challenge is already complete")

	// ErrAlreadyCompletedToday rejects a second successful increment on
	// the same calendar day.
	ErrAlreadyCompletedToday = errors.New("habit already marked today")

	// ErrNameRequired rejects creation of a habit with an empty name.
	ErrNameRequired = errors.New("habit name is required")

	// ErrNameTaken rejects creation of a habit whose name the user
	// already uses. Backed by the unique user_id+name index.
	ErrNameTaken = errors.New("a habit with this name already exists")

	// ErrInvalidGoal rejects a negative goal. Zero means "no goal".
	ErrInvalidGoal = errors.New("goal must be zero or a positive number of days")

	// ErrInvalidMode rejects an unknown habit mode.
	ErrInvalidMode = errors.New("mode must be one of NORMAL, ON, OFF")
)
