// Package habits wires the habit state machine to persistence: each
// operation is one load, one pure decision, and one guarded write.
package habits

import (
	"context"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"

	"github.com/lifetrack-app/lifetrack/backend/habit"
	"github.com/lifetrack-app/lifetrack/backend/models"
	storage "github.com/lifetrack-app/lifetrack/backend/storage/persistent"
)

// Service implements the habit boundary operations. It is constructed with
// its storage handle; there is no package-level state.
type Service struct {
	store storage.StorageInterface
}

// NewService builds a habit service on top of the given storage handle.
func NewService(store storage.StorageInterface) *Service {
	return &Service{store: store}
}

// CreateInput carries the user-supplied fields of a new habit.
type CreateInput struct {
	Name           string
	Goal           int
	Mode           models.Mode
	ResetOnFailure bool
}

// List returns the user's habits ordered by id ascending.
func (s *Service) List(ctx context.Context, userID primitive.ObjectID) ([]models.Habit, error) {
	return s.store.ListHabits(ctx, userID)
}

// Create validates the input and stores a new habit with qtt 0.
func (s *Service) Create(ctx context.Context, userID primitive.ObjectID, input CreateInput) (*models.Habit, error) {
	h := &models.Habit{
		UserID:         userID,
		Name:           input.Name,
		Goal:           input.Goal,
		Mode:           input.Mode,
		ResetOnFailure: input.ResetOnFailure,
	}
	if err := habit.ValidateNew(h); err != nil {
		return nil, err
	}
	return s.store.AddHabit(ctx, h)
}

// Increment marks a habit done for the calendar day containing now. The
// write is a single conditional update so that two concurrent same-day
// increments yield exactly one success; the loser of that race gets the
// same AlreadyCompletedToday rejection as a plain second attempt. One
// completion record is appended per success, carrying the post-update qtt.
func (s *Service) Increment(ctx context.Context, userID, habitID primitive.ObjectID, now time.Time) (*models.Habit, error) {
	h, err := s.findOwned(ctx, habitID, userID)
	if err != nil {
		return nil, err
	}

	plan, err := habit.PlanIncrement(h, now)
	if err != nil {
		return nil, err
	}

	updated, err := s.store.IncrementHabit(ctx, h, now, habit.DayStart(now))
	if err == mongo.ErrNoDocuments {
		// The guard rejected a write the plan allowed: another request
		// got there first (or deleted the habit). Re-read to classify.
		return nil, s.classifyRejection(ctx, habitID, userID)
	}
	if err != nil {
		return nil, err
	}

	// The log append is a separate write, not a transaction with the
	// guarded update. If it fails here the streak has already advanced
	// and the day's row stays missing: a retry of the whole operation is
	// rejected by the day guard. The streak is the source of truth; the
	// log is best-effort.
	completion := plan.Completion
	completion.DayNumber = updated.Qtt
	if _, err := s.store.AddCompletion(ctx, &completion); err != nil {
		return nil, err
	}

	return updated, nil
}

// classifyRejection turns a guarded-update miss into the right typed
// outcome by re-reading the habit's current state.
func (s *Service) classifyRejection(ctx context.Context, habitID, userID primitive.ObjectID) error {
	h, err := s.findOwned(ctx, habitID, userID)
	if err != nil {
		return err
	}
	if habit.StateOf(h) == habit.Completed {
		return habit.ErrAlreadyComplete
	}
	return habit.ErrAlreadyCompletedToday
}

// Fail resets a habit's streak to zero, restamps its start date, and
// appends a failure record to the completion log. There is no day guard;
// whether the action is offered at all is presentation policy.
func (s *Service) Fail(ctx context.Context, userID, habitID primitive.ObjectID, now time.Time) (*models.Habit, error) {
	h, err := s.findOwned(ctx, habitID, userID)
	if err != nil {
		return nil, err
	}

	plan := habit.PlanFail(h, now)

	updated, err := s.store.ResetHabit(ctx, habitID, userID, now)
	if err == mongo.ErrNoDocuments {
		return nil, habit.ErrHabitNotFound
	}
	if err != nil {
		return nil, err
	}

	// Same non-transactional append as Increment: a failure here leaves
	// the reset applied with no failure row in the log.
	if _, err := s.store.AddCompletion(ctx, &plan.Completion); err != nil {
		return nil, err
	}

	return updated, nil
}

// Delete removes a habit and all of its completion records.
func (s *Service) Delete(ctx context.Context, userID, habitID primitive.ObjectID) error {
	result, err := s.store.DeleteHabit(ctx, habitID, userID)
	if err != nil {
		return err
	}
	if result.DeletedCount == 0 {
		return habit.ErrHabitNotFound
	}
	return nil
}

// Completions returns a habit's completion log ordered by day number
// ascending. Ownership is checked first so a foreign habit reads as
// missing rather than empty.
func (s *Service) Completions(ctx context.Context, userID, habitID primitive.ObjectID) ([]models.Completion, error) {
	if _, err := s.findOwned(ctx, habitID, userID); err != nil {
		return nil, err
	}
	return s.store.ListCompletions(ctx, habitID)
}

// findOwned loads a habit scoped to its owner, collapsing missing and
// foreign habits into the same not-found outcome.
func (s *Service) findOwned(ctx context.Context, habitID, userID primitive.ObjectID) (*models.Habit, error) {
	h, err := s.store.FindHabit(ctx, habitID, userID)
	if err == mongo.ErrNoDocuments {
		return nil, habit.ErrHabitNotFound
	}
	if err != nil {
		return nil, err
	}
	return h, nil
}
