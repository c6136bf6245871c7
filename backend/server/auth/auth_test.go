package auth

import (
	"context"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/lifetrack-app/lifetrack/backend/models"
	storage "github.com/lifetrack-app/lifetrack/backend/storage/persistent"
)

const testSigningKey = "test-signing-key"

// memStore is an in-memory stand-in for the MongoDB storage, covering the
// user and confirmation operations the auth service uses. Filters are
// interpreted the way the real storage does: by email, _id, or user_id.
// Misses surface as mongo.ErrNoDocuments.
type memStore struct {
	users         map[primitive.ObjectID]*models.User
	habits        map[primitive.ObjectID]*models.Habit
	confirmations map[primitive.ObjectID]*models.Confirmation
}

func newMemStore() *memStore {
	return &memStore{
		users:         make(map[primitive.ObjectID]*models.User),
		habits:        make(map[primitive.ObjectID]*models.Habit),
		confirmations: make(map[primitive.ObjectID]*models.Confirmation),
	}
}

func (m *memStore) Connect(dbName, uri string) error { return nil }
func (m *memStore) Disconnect() error                { return nil }

func (m *memStore) AddUser(ctx context.Context, user *models.User) (*models.User, error) {
	stored := *user
	if stored.ID.IsZero() {
		stored.ID = primitive.NewObjectID()
	}
	m.users[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (m *memStore) FindUser(ctx context.Context, filter interface{}) (*models.User, error) {
	f, ok := filter.(bson.M)
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	for _, u := range m.users {
		if email, ok := f["email"].(string); ok && u.Email == email {
			out := *u
			return &out, nil
		}
		if id, ok := f["_id"].(primitive.ObjectID); ok && u.ID == id {
			out := *u
			return &out, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (m *memStore) UpdateUser(ctx context.Context, filter interface{}, update interface{}) (*models.User, error) {
	u, err := m.FindUser(ctx, filter)
	if err != nil {
		return nil, err
	}
	stored := m.users[u.ID]

	set := update.(bson.M)["$set"].(bson.M)
	if v, ok := set["display_name"].(string); ok {
		stored.DisplayName = v
	}
	if v, ok := set["email"].(string); ok {
		stored.Email = v
	}
	if v, ok := set["email_confirmed"].(bool); ok {
		stored.EmailConfirmed = v
	}
	if v, ok := set["password_hash"].(string); ok {
		stored.PasswordHash = v
	}
	out := *stored
	return &out, nil
}

func (m *memStore) DeleteUser(ctx context.Context, filter interface{}) (*storage.DeleteResult, error) {
	u, err := m.FindUser(ctx, filter)
	if err != nil {
		return &storage.DeleteResult{DeletedCount: 0}, nil
	}
	delete(m.users, u.ID)
	for id, h := range m.habits {
		if h.UserID == u.ID {
			delete(m.habits, id)
		}
	}
	for id, c := range m.confirmations {
		if c.UserID == u.ID {
			delete(m.confirmations, id)
		}
	}
	return &storage.DeleteResult{DeletedCount: 1}, nil
}

func (m *memStore) AddHabit(ctx context.Context, h *models.Habit) (*models.Habit, error) {
	stored := *h
	stored.ID = primitive.NewObjectID()
	m.habits[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (m *memStore) FindHabit(ctx context.Context, id, userID primitive.ObjectID) (*models.Habit, error) {
	h, ok := m.habits[id]
	if !ok || h.UserID != userID {
		return nil, mongo.ErrNoDocuments
	}
	out := *h
	return &out, nil
}

func (m *memStore) ListHabits(ctx context.Context, userID primitive.ObjectID) ([]models.Habit, error) {
	var out []models.Habit
	for _, h := range m.habits {
		if h.UserID == userID {
			out = append(out, *h)
		}
	}
	return out, nil
}

func (m *memStore) IncrementHabit(ctx context.Context, h *models.Habit, now, dayStart time.Time) (*models.Habit, error) {
	return nil, mongo.ErrNoDocuments
}

func (m *memStore) ResetHabit(ctx context.Context, id, userID primitive.ObjectID, now time.Time) (*models.Habit, error) {
	return nil, mongo.ErrNoDocuments
}

func (m *memStore) DeleteHabit(ctx context.Context, id, userID primitive.ObjectID) (*storage.DeleteResult, error) {
	return &storage.DeleteResult{}, nil
}

func (m *memStore) AddCompletion(ctx context.Context, completion *models.Completion) (*models.Completion, error) {
	out := *completion
	return &out, nil
}

func (m *memStore) ListCompletions(ctx context.Context, habitID primitive.ObjectID) ([]models.Completion, error) {
	return nil, nil
}

func (m *memStore) AddConfirmation(ctx context.Context, confirmation *models.Confirmation) (*models.Confirmation, error) {
	stored := *confirmation
	if stored.ID.IsZero() {
		stored.ID = primitive.NewObjectID()
	}
	m.confirmations[stored.ID] = &stored
	out := stored
	return &out, nil
}

func (m *memStore) FindConfirmation(ctx context.Context, filter interface{}) (*models.Confirmation, error) {
	f, ok := filter.(bson.M)
	if !ok {
		return nil, mongo.ErrNoDocuments
	}
	for _, c := range m.confirmations {
		if userID, ok := f["user_id"].(primitive.ObjectID); ok && c.UserID == userID {
			out := *c
			return &out, nil
		}
		if id, ok := f["_id"].(primitive.ObjectID); ok && c.ID == id {
			out := *c
			return &out, nil
		}
	}
	return nil, mongo.ErrNoDocuments
}

func (m *memStore) DeleteConfirmation(ctx context.Context, filter interface{}) (*storage.DeleteResult, error) {
	c, err := m.FindConfirmation(ctx, filter)
	if err != nil {
		return &storage.DeleteResult{DeletedCount: 0}, nil
	}
	delete(m.confirmations, c.ID)
	return &storage.DeleteResult{DeletedCount: 1}, nil
}

func newTestService() (*Service, *memStore) {
	store := newMemStore()
	return NewService(store, testSigningKey, nil), store
}

func mustRegister(t *testing.T, s *Service) *Credentials {
	t.Helper()
	creds, err := s.Register(context.Background(), "alice@example.com", "Password1", "Alice")
	require.NoError(t, err)
	return creds
}

func TestRegister(t *testing.T) {
	s, store := newTestService()

	creds := mustRegister(t, s)
	assert.NotEmpty(t, creds.Token)
	assert.NotEmpty(t, creds.RefreshToken)
	require.NotNil(t, creds.User)
	assert.Equal(t, "Alice", creds.User.DisplayName)
	assert.False(t, creds.User.EmailConfirmed)

	stored, err := store.FindUser(context.Background(), bson.M{"email": "alice@example.com"})
	require.NoError(t, err)
	// The stored hash must verify against the original password and must
	// not be the password itself.
	assert.NotEqual(t, "Password1", stored.PasswordHash)
	assert.NoError(t, bcrypt.CompareHashAndPassword([]byte(stored.PasswordHash), []byte("Password1")))
}

func TestRegisterValidation(t *testing.T) {
	s, _ := newTestService()
	ctx := context.Background()

	var vErr *ValidationError

	_, err := s.Register(ctx, "alice@example.com", "Password1", "A")
	assert.ErrorAs(t, err, &vErr)

	_, err = s.Register(ctx, "not-an-email", "Password1", "Alice")
	assert.ErrorAs(t, err, &vErr)

	_, err = s.Register(ctx, "alice@example.com", "short", "Alice")
	assert.ErrorAs(t, err, &vErr)

	_, err = s.Register(ctx, "alice@example.com", "onlyletters", "Alice")
	assert.ErrorAs(t, err, &vErr)
}

func TestRegisterDuplicateEmail(t *testing.T) {
	s, _ := newTestService()
	mustRegister(t, s)

	_, err := s.Register(context.Background(), "alice@example.com", "Password2", "Alice2")
	assert.ErrorIs(t, err, ErrEmailExists)
}

func TestLogin(t *testing.T) {
	s, _ := newTestService()
	mustRegister(t, s)

	creds, err := s.Login(context.Background(), "alice@example.com", "Password1")
	require.NoError(t, err)
	assert.NotEmpty(t, creds.Token)
	assert.Equal(t, "alice@example.com", creds.User.Email)
}

func TestLoginRejections(t *testing.T) {
	s, _ := newTestService()
	mustRegister(t, s)
	ctx := context.Background()

	// Unknown email and wrong password are indistinguishable.
	_, err := s.Login(ctx, "nobody@example.com", "Password1")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	_, err = s.Login(ctx, "alice@example.com", "WrongPass1")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestRefresh(t *testing.T) {
	s, _ := newTestService()
	creds := mustRegister(t, s)

	token, refreshToken, err := s.Refresh(creds.RefreshToken)
	require.NoError(t, err)
	assert.NotEmpty(t, token)
	assert.NotEmpty(t, refreshToken)
}

func TestRefreshRejectsBadTokens(t *testing.T) {
	s, _ := newTestService()
	creds := mustRegister(t, s)

	// Signed with a different key.
	other := NewService(newMemStore(), "another-key", nil)
	_, _, err := other.Refresh(creds.RefreshToken)
	assert.ErrorIs(t, err, ErrInvalidToken)

	// Malformed tokens get the same typed rejection, never a raw parse
	// error.
	for _, token := range []string{"not.a.jwt", "", "a.b"} {
		_, _, err = s.Refresh(token)
		assert.ErrorIs(t, err, ErrInvalidToken, "token %q", token)
	}
}

func TestConfirmEmail(t *testing.T) {
	s, store := newTestService()
	creds := mustRegister(t, s)
	ctx := context.Background()

	hashed, err := bcrypt.GenerateFromPassword([]byte("ABC12"), bcrypt.DefaultCost)
	require.NoError(t, err)
	_, err = store.AddConfirmation(ctx, &models.Confirmation{
		UserID:            creds.User.ID,
		ConfirmationToken: string(hashed),
		ExpiresAt:         time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	require.NoError(t, s.ConfirmEmail(ctx, creds.User.ID.Hex(), "ABC12"))

	updated, err := store.FindUser(ctx, bson.M{"_id": creds.User.ID})
	require.NoError(t, err)
	assert.True(t, updated.EmailConfirmed)

	// The confirmation record is consumed.
	_, err = store.FindConfirmation(ctx, bson.M{"user_id": creds.User.ID})
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)
}

func TestConfirmEmailWrongCode(t *testing.T) {
	s, store := newTestService()
	creds := mustRegister(t, s)
	ctx := context.Background()

	hashed, err := bcrypt.GenerateFromPassword([]byte("ABC12"), bcrypt.DefaultCost)
	require.NoError(t, err)
	_, err = store.AddConfirmation(ctx, &models.Confirmation{
		UserID:            creds.User.ID,
		ConfirmationToken: string(hashed),
		ExpiresAt:         time.Now().Add(24 * time.Hour),
	})
	require.NoError(t, err)

	err = s.ConfirmEmail(ctx, creds.User.ID.Hex(), "WRONG")
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)

	// A failed attempt still consumes the record.
	_, err = store.FindConfirmation(ctx, bson.M{"user_id": creds.User.ID})
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)
}

func TestConfirmEmailExpired(t *testing.T) {
	s, store := newTestService()
	creds := mustRegister(t, s)
	ctx := context.Background()

	hashed, err := bcrypt.GenerateFromPassword([]byte("ABC12"), bcrypt.DefaultCost)
	require.NoError(t, err)
	_, err = store.AddConfirmation(ctx, &models.Confirmation{
		UserID:            creds.User.ID,
		ConfirmationToken: string(hashed),
		ExpiresAt:         time.Now().Add(-time.Hour),
	})
	require.NoError(t, err)

	err = s.ConfirmEmail(ctx, creds.User.ID.Hex(), "ABC12")
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)

	updated, err := store.FindUser(ctx, bson.M{"_id": creds.User.ID})
	require.NoError(t, err)
	assert.False(t, updated.EmailConfirmed)
}

func TestUpdateAccount(t *testing.T) {
	s, store := newTestService()
	creds := mustRegister(t, s)
	ctx := context.Background()
	userID := creds.User.ID.Hex()

	require.NoError(t, s.UpdateAccount(ctx, userID, "Password1", "Alicia", "", ""))

	updated, err := store.FindUser(ctx, bson.M{"_id": creds.User.ID})
	require.NoError(t, err)
	assert.Equal(t, "Alicia", updated.DisplayName)
}

func TestUpdateAccountWrongPassword(t *testing.T) {
	s, _ := newTestService()
	creds := mustRegister(t, s)

	err := s.UpdateAccount(context.Background(), creds.User.ID.Hex(), "WrongPass1", "Alicia", "", "")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)
}

func TestUpdateAccountEmailDropsConfirmation(t *testing.T) {
	s, store := newTestService()
	creds := mustRegister(t, s)
	ctx := context.Background()

	// Simulate an already-confirmed account.
	_, err := store.UpdateUser(ctx, bson.M{"_id": creds.User.ID}, bson.M{"$set": bson.M{"email_confirmed": true}})
	require.NoError(t, err)

	require.NoError(t, s.UpdateAccount(ctx, creds.User.ID.Hex(), "Password1", "", "alice2@example.com", ""))

	updated, err := store.FindUser(ctx, bson.M{"_id": creds.User.ID})
	require.NoError(t, err)
	assert.Equal(t, "alice2@example.com", updated.Email)
	assert.False(t, updated.EmailConfirmed)
}

func TestUpdateAccountNothingToUpdate(t *testing.T) {
	s, _ := newTestService()
	creds := mustRegister(t, s)

	err := s.UpdateAccount(context.Background(), creds.User.ID.Hex(), "Password1", "", "", "")
	var vErr *ValidationError
	assert.ErrorAs(t, err, &vErr)
}

func TestUpdateAccountNewPassword(t *testing.T) {
	s, _ := newTestService()
	creds := mustRegister(t, s)
	ctx := context.Background()

	require.NoError(t, s.UpdateAccount(ctx, creds.User.ID.Hex(), "Password1", "", "", "NewPass99"))

	_, err := s.Login(ctx, "alice@example.com", "Password1")
	assert.ErrorIs(t, err, ErrAuthenticationFailed)

	_, err = s.Login(ctx, "alice@example.com", "NewPass99")
	assert.NoError(t, err)
}

func TestDeleteAccountCascades(t *testing.T) {
	s, store := newTestService()
	creds := mustRegister(t, s)
	ctx := context.Background()

	_, err := store.AddHabit(ctx, &models.Habit{UserID: creds.User.ID, Name: "Read"})
	require.NoError(t, err)

	require.NoError(t, s.DeleteAccount(ctx, creds.User.ID.Hex()))

	_, err = store.FindUser(ctx, bson.M{"_id": creds.User.ID})
	assert.ErrorIs(t, err, mongo.ErrNoDocuments)

	habits, err := store.ListHabits(ctx, creds.User.ID)
	require.NoError(t, err)
	assert.Empty(t, habits)
}
