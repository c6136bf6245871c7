package storage

import (
	"context"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lifetrack-app/lifetrack/backend/models"
)

// DeleteResult represents the result of a deletion operation in MongoDB,
// specifically the count of documents deleted.
type DeleteResult struct {
	DeletedCount int64
}

// UpdateResult represents the result of an update operation in MongoDB,
// specifically the count of documents matched and modified.
type UpdateResult struct {
	MatchedCount  int64
	ModifiedCount int64
}

// StorageInterface defines the set of methods that any persistent storage
// backend needs to implement.
//
// User and confirmation operations take bson.M-style filters. Habit and
// completion operations take explicit parameters instead: every habit read
// and write is keyed by (id, userID) so that a habit owned by someone else
// behaves exactly like a habit that does not exist.
type StorageInterface interface {
	// Establishes a connection to the storage backend.
	Connect(dbName, uri string) error
	// Disconnects from the storage backend.
	Disconnect() error

	// Adds a new user to the storage backend.
	AddUser(ctx context.Context, user *models.User) (*models.User, error)
	// Finds a user in the storage backend using a filter.
	FindUser(ctx context.Context, filter interface{}) (*models.User, error)
	// Updates an existing user in the storage backend using a filter and update instructions.
	UpdateUser(ctx context.Context, filter interface{}, update interface{}) (*models.User, error)
	// Deletes a user and everything the user owns: habits, their
	// completions, and pending confirmations.
	DeleteUser(ctx context.Context, filter interface{}) (*DeleteResult, error)

	// Adds a new habit with qtt 0.
	AddHabit(ctx context.Context, habit *models.Habit) (*models.Habit, error)
	// Finds one habit by id, scoped to its owner. Returns
	// mongo.ErrNoDocuments for missing and foreign habits alike.
	FindHabit(ctx context.Context, id, userID primitive.ObjectID) (*models.Habit, error)
	// Lists a user's habits ordered by id ascending.
	ListHabits(ctx context.Context, userID primitive.ObjectID) ([]models.Habit, error)
	// IncrementHabit performs the guarded atomic increment: qtt goes up by
	// one and last_incremented_at is set to now, but only if the habit has
	// not already been incremented on or after dayStart and, for
	// challenges, only while qtt is still below the goal. Returns the
	// post-update habit, or mongo.ErrNoDocuments when the guard rejected
	// the write.
	IncrementHabit(ctx context.Context, h *models.Habit, now, dayStart time.Time) (*models.Habit, error)
	// ResetHabit sets qtt to 0 and stamps start_date and
	// last_incremented_at with now. Returns the post-update habit.
	ResetHabit(ctx context.Context, id, userID primitive.ObjectID, now time.Time) (*models.Habit, error)
	// Deletes a habit and cascades to its completion log.
	DeleteHabit(ctx context.Context, id, userID primitive.ObjectID) (*DeleteResult, error)

	// Appends one completion record.
	AddCompletion(ctx context.Context, completion *models.Completion) (*models.Completion, error)
	// Lists a habit's completions ordered by day_number ascending.
	ListCompletions(ctx context.Context, habitID primitive.ObjectID) ([]models.Completion, error)

	// Adds a new confirmation to the storage backend.
	AddConfirmation(ctx context.Context, confirmation *models.Confirmation) (*models.Confirmation, error)
	// Finds a confirmation in the storage backend using a filter.
	FindConfirmation(ctx context.Context, filter interface{}) (*models.Confirmation, error)
	// Deletes a confirmation in the storage backend using a filter.
	DeleteConfirmation(ctx context.Context, filter interface{}) (*DeleteResult, error)
}

// NewStorage creates a new StorageInterface with a MongoDB backend,
// using the provided URI to connect to the MongoDB server.
func NewStorage(dbName, uri string) (StorageInterface, error) {
	storage := NewMongoStorage()
	err := storage.Connect(dbName, uri)
	if err != nil {
		return nil, fmt.Errorf("failed to initialize storage: %w", err)
	}
	return storage, nil
}
