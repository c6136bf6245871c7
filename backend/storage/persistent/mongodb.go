package storage

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/lifetrack-app/lifetrack/backend/habit"
	"github.com/lifetrack-app/lifetrack/backend/models"
)

// MongoStorage is a struct representing a MongoDB storage.
// It provides an interface to perform CRUD operations on the users, habits,
// completions and confirmations collections.
type MongoStorage struct {
	client *mongo.Client
	dbName string
}

// NewMongoStorage creates a new instance of MongoStorage.
// This function doesn't establish a connection to the MongoDB server.
// To connect to the server, use the Connect method of the returned MongoStorage instance.
func NewMongoStorage() *MongoStorage {
	return &MongoStorage{}
}

// Connect establishes a connection to the MongoDB server at the given URI
// and database name, and sets up indexes and unique constraints.
// Returns an error if any issues are encountered.
func (m *MongoStorage) Connect(dbName, uri string) error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	clientOptions := options.Client().ApplyURI(uri)
	client, err := mongo.Connect(ctx, clientOptions)
	if err != nil {
		return fmt.Errorf("error connecting to MongoDB: %v", err)
	}

	m.client = client
	m.dbName = dbName

	// Every user has a unique email; email is also the login key.
	usersCollection := m.client.Database(m.dbName).Collection("users")
	emailIndexModel := mongo.IndexModel{
		Keys: bson.M{
			"email": 1, // 1 for ascending order
		},
		Options: options.Index().SetUnique(true),
	}
	_, err = usersCollection.Indexes().CreateOne(ctx, emailIndexModel)
	if err != nil {
		return fmt.Errorf("error creating email index: %v", err)
	}

	habitsCollection := m.client.Database(m.dbName).Collection("habits")

	// Habit lookups are always owner-scoped.
	userIdIndexModel := mongo.IndexModel{
		Keys: bson.M{
			"user_id": 1,
		},
		Options: options.Index(),
	}
	_, err = habitsCollection.Indexes().CreateOne(ctx, userIdIndexModel)
	if err != nil {
		return fmt.Errorf("error creating user_id index: %v", err)
	}

	// A user can't have two habits with the same name.
	userIdNameIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "user_id", Value: 1},
			{Key: "name", Value: 1},
		},
		Options: options.Index().SetUnique(true),
	}
	_, err = habitsCollection.Indexes().CreateOne(ctx, userIdNameIndexModel)
	if err != nil {
		return fmt.Errorf("error creating user_id and name index: %v", err)
	}

	// The completion log is read per habit, ordered by day number.
	completionsCollection := m.client.Database(m.dbName).Collection("completions")
	habitIdDayIndexModel := mongo.IndexModel{
		Keys: bson.D{
			{Key: "habit_id", Value: 1},
			{Key: "day_number", Value: 1},
		},
		Options: options.Index(),
	}
	_, err = completionsCollection.Indexes().CreateOne(ctx, habitIdDayIndexModel)
	if err != nil {
		return fmt.Errorf("error creating habit_id and day_number index: %v", err)
	}

	confirmationsCollection := m.client.Database(m.dbName).Collection("confirmations")
	_, err = confirmationsCollection.Indexes().CreateOne(ctx, userIdIndexModel)
	if err != nil {
		return fmt.Errorf("error creating user_id index: %v", err)
	}

	return nil
}

// Disconnect closes the connection to the MongoDB server.
// It should be called when the MongoStorage instance is no longer needed.
// Returns an error if the disconnection process fails.
func (m *MongoStorage) Disconnect() error {
	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	err := m.client.Disconnect(ctx)
	if err != nil {
		return fmt.Errorf("error disconnecting from MongoDB: %v", err)
	}

	return nil
}

// AddUser adds a new user document to the 'users' collection.
// Returns the added user instance and an error if the insert operation fails.
func (m *MongoStorage) AddUser(ctx context.Context, user *models.User) (*models.User, error) {
	collection := m.client.Database(m.dbName).Collection("users")
	result, err := collection.InsertOne(ctx, user)
	if err != nil {
		return nil, err
	}

	user.ID = result.InsertedID.(primitive.ObjectID)
	return user, nil
}

// FindUser finds a user document in the 'users' collection that matches the given filter.
// Returns the found user as a User instance and an error if the find operation fails.
func (m *MongoStorage) FindUser(ctx context.Context, filter interface{}) (*models.User, error) {
	collection := m.client.Database(m.dbName).Collection("users")
	result := collection.FindOne(ctx, filter)
	user := &models.User{}
	err := result.Decode(user)
	if err != nil {
		return nil, err
	}
	return user, nil
}

// UpdateUser updates a user document in the 'users' collection that matches the given filter with the provided update.
// Returns the updated user as a User instance and an error if the update operation fails.
func (m *MongoStorage) UpdateUser(ctx context.Context, filter interface{}, update interface{}) (*models.User, error) {
	collection := m.client.Database(m.dbName).Collection("users")
	result, err := collection.UpdateOne(ctx, filter, update)
	if err != nil {
		return nil, err
	}
	if result.MatchedCount == 0 {
		return nil, errors.New("no user found to update")
	}
	updatedUser, err := m.FindUser(ctx, filter)
	if err != nil {
		return nil, err
	}
	return updatedUser, nil
}

// DeleteUser deletes a user document from the 'users' collection that
// matches the given filter, together with the user's habits, the habits'
// completion logs, and any pending email confirmations.
// Returns the result of the delete operation as a DeleteResult instance and an error if the delete operation fails.
func (m *MongoStorage) DeleteUser(ctx context.Context, filter interface{}) (*DeleteResult, error) {
	collection := m.client.Database(m.dbName).Collection("users")
	userResult := collection.FindOne(ctx, filter)
	if err := userResult.Err(); err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, errors.New("user not found")
		}
		return nil, err
	}

	user := &models.User{}
	if err := userResult.Decode(user); err != nil {
		return nil, err
	}

	// Collect habit ids first so the completion cascade can follow.
	habits, err := m.ListHabits(ctx, user.ID)
	if err != nil {
		return nil, err
	}
	habitIDs := make([]primitive.ObjectID, 0, len(habits))
	for _, h := range habits {
		habitIDs = append(habitIDs, h.ID)
	}

	if len(habitIDs) > 0 {
		_, err = m.client.Database(m.dbName).Collection("completions").DeleteMany(ctx, bson.M{"habit_id": bson.M{"$in": habitIDs}})
		if err != nil {
			return nil, err
		}
	}
	_, err = m.client.Database(m.dbName).Collection("habits").DeleteMany(ctx, bson.M{"user_id": user.ID})
	if err != nil {
		return nil, err
	}
	_, err = m.client.Database(m.dbName).Collection("confirmations").DeleteMany(ctx, bson.M{"user_id": user.ID})
	if err != nil {
		return nil, err
	}

	result, err := collection.DeleteOne(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}

// AddHabit adds a new habit document to the 'habits' collection.
// The habit starts with qtt 0 regardless of what the caller set.
// Returns the added habit instance and an error if the insert operation fails.
func (m *MongoStorage) AddHabit(ctx context.Context, h *models.Habit) (*models.Habit, error) {
	if h.Name == "" || h.UserID.IsZero() {
		return nil, errors.New("invalid habit fields")
	}
	h.Qtt = 0

	usersCollection := m.client.Database(m.dbName).Collection("users")
	err := usersCollection.FindOne(ctx, bson.M{"_id": h.UserID}).Err()
	if err != nil {
		if err == mongo.ErrNoDocuments {
			return nil, fmt.Errorf("no user found with id %s", h.UserID.Hex())
		}
		return nil, err
	}

	habitsCollection := m.client.Database(m.dbName).Collection("habits")
	result, err := habitsCollection.InsertOne(ctx, h)
	if err != nil {
		if writeException, ok := err.(mongo.WriteException); ok {
			for _, writeError := range writeException.WriteErrors {
				if writeError.Code == 11000 {
					return nil, habit.ErrNameTaken
				}
			}
		}
		return nil, err
	}
	h.ID = result.InsertedID.(primitive.ObjectID)
	return h, nil
}

// FindHabit finds one habit by id scoped to its owner. A habit that exists
// but belongs to another user yields mongo.ErrNoDocuments, the same as a
// habit that doesn't exist at all.
func (m *MongoStorage) FindHabit(ctx context.Context, id, userID primitive.ObjectID) (*models.Habit, error) {
	collection := m.client.Database(m.dbName).Collection("habits")
	h := &models.Habit{}
	err := collection.FindOne(ctx, bson.M{"_id": id, "user_id": userID}).Decode(h)
	if err != nil {
		return nil, err
	}
	return h, nil
}

// ListHabits returns all habits owned by the given user, ordered by id ascending.
func (m *MongoStorage) ListHabits(ctx context.Context, userID primitive.ObjectID) ([]models.Habit, error) {
	collection := m.client.Database(m.dbName).Collection("habits")
	findOptions := options.Find().SetSort(bson.D{{Key: "_id", Value: 1}})
	cursor, err := collection.Find(ctx, bson.M{"user_id": userID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var habits []models.Habit
	for cursor.Next(ctx) {
		var h models.Habit
		err := cursor.Decode(&h)
		if err != nil {
			return nil, err
		}
		habits = append(habits, h)
	}

	return habits, nil
}

// IncrementHabit performs the day-guarded increment as one conditional
// write. The filter only matches when the habit has not been incremented
// since local midnight (dayStart) and, for challenges, while qtt is still
// below the goal, so two same-day concurrent increments can never both
// succeed. Returns the post-update habit, or mongo.ErrNoDocuments when the
// guard rejected the write; the caller re-reads the habit to classify that
// rejection.
func (m *MongoStorage) IncrementHabit(ctx context.Context, h *models.Habit, now, dayStart time.Time) (*models.Habit, error) {
	collection := m.client.Database(m.dbName).Collection("habits")

	filter := bson.M{
		"_id":     h.ID,
		"user_id": h.UserID,
		"$or": []bson.M{
			{"last_incremented_at": bson.M{"$exists": false}},
			{"last_incremented_at": nil},
			{"last_incremented_at": bson.M{"$lt": dayStart}},
		},
	}
	if h.Goal > 0 {
		filter["qtt"] = bson.M{"$lt": h.Goal}
	}

	update := bson.M{
		"$inc": bson.M{"qtt": 1},
		"$set": bson.M{"last_incremented_at": now},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	updated := &models.Habit{}
	err := collection.FindOneAndUpdate(ctx, filter, update, opts).Decode(updated)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// ResetHabit sets a habit's qtt to 0 and stamps start_date and
// last_incremented_at with now. Returns the post-update habit.
func (m *MongoStorage) ResetHabit(ctx context.Context, id, userID primitive.ObjectID, now time.Time) (*models.Habit, error) {
	collection := m.client.Database(m.dbName).Collection("habits")

	update := bson.M{
		"$set": bson.M{
			"qtt":                 0,
			"start_date":          now,
			"last_incremented_at": now,
		},
	}

	opts := options.FindOneAndUpdate().SetReturnDocument(options.After)
	updated := &models.Habit{}
	err := collection.FindOneAndUpdate(ctx, bson.M{"_id": id, "user_id": userID}, update, opts).Decode(updated)
	if err != nil {
		return nil, err
	}
	return updated, nil
}

// DeleteHabit deletes a habit document and all of its completion records.
// The delete is owner-scoped; deleting someone else's habit matches nothing.
// Returns the result of the delete operation as a DeleteResult instance and an error if the delete operation fails.
func (m *MongoStorage) DeleteHabit(ctx context.Context, id, userID primitive.ObjectID) (*DeleteResult, error) {
	collection := m.client.Database(m.dbName).Collection("habits")
	result, err := collection.DeleteOne(ctx, bson.M{"_id": id, "user_id": userID})
	if err != nil {
		return nil, err
	}
	if result.DeletedCount > 0 {
		_, err = m.client.Database(m.dbName).Collection("completions").DeleteMany(ctx, bson.M{"habit_id": id})
		if err != nil {
			return nil, err
		}
	}
	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}

// AddCompletion appends one completion record to the 'completions' collection.
// Returns the added completion instance and an error if the insert operation fails.
func (m *MongoStorage) AddCompletion(ctx context.Context, completion *models.Completion) (*models.Completion, error) {
	collection := m.client.Database(m.dbName).Collection("completions")
	result, err := collection.InsertOne(ctx, completion)
	if err != nil {
		return nil, err
	}

	completion.ID = result.InsertedID.(primitive.ObjectID)
	return completion, nil
}

// ListCompletions returns a habit's completion log ordered by day_number ascending.
func (m *MongoStorage) ListCompletions(ctx context.Context, habitID primitive.ObjectID) ([]models.Completion, error) {
	collection := m.client.Database(m.dbName).Collection("completions")
	findOptions := options.Find().SetSort(bson.D{{Key: "day_number", Value: 1}})
	cursor, err := collection.Find(ctx, bson.M{"habit_id": habitID}, findOptions)
	if err != nil {
		return nil, err
	}
	defer cursor.Close(ctx)

	var completions []models.Completion
	for cursor.Next(ctx) {
		var completion models.Completion
		err := cursor.Decode(&completion)
		if err != nil {
			return nil, err
		}
		completions = append(completions, completion)
	}

	return completions, nil
}

// AddConfirmation adds a new confirmation document to the 'confirmations' collection.
// Returns the added confirmation instance and an error if the insert operation fails.
func (m *MongoStorage) AddConfirmation(ctx context.Context, confirmation *models.Confirmation) (*models.Confirmation, error) {
	collection := m.client.Database(m.dbName).Collection("confirmations")
	result, err := collection.InsertOne(ctx, confirmation)
	if err != nil {
		return nil, err
	}

	confirmation.ID = result.InsertedID.(primitive.ObjectID)
	return confirmation, nil
}

// FindConfirmation finds a confirmation document in the 'confirmations' collection that matches the given filter.
// Returns the found confirmation as a Confirmation instance and an error if the find operation fails.
func (m *MongoStorage) FindConfirmation(ctx context.Context, filter interface{}) (*models.Confirmation, error) {
	collection := m.client.Database(m.dbName).Collection("confirmations")
	result := collection.FindOne(ctx, filter)
	confirmation := &models.Confirmation{}
	err := result.Decode(confirmation)
	if err != nil {
		return nil, err
	}
	return confirmation, nil
}

// DeleteConfirmation deletes a confirmation document from the 'confirmations' collection that matches the given filter.
// Returns the result of the delete operation as a DeleteResult instance and an error if the delete operation fails.
func (m *MongoStorage) DeleteConfirmation(ctx context.Context, filter interface{}) (*DeleteResult, error) {
	collection := m.client.Database(m.dbName).Collection("confirmations")
	result, err := collection.DeleteOne(ctx, filter)
	if err != nil {
		return nil, err
	}

	return &DeleteResult{DeletedCount: result.DeletedCount}, nil
}
