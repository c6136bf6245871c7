package auth

import (
	"context"
	"crypto/rand"
	"encoding/base32"
	"errors"
	"fmt"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/bson/primitive"
	"go.mongodb.org/mongo-driver/mongo"
	"golang.org/x/crypto/bcrypt"

	"github.com/lifetrack-app/lifetrack/backend/models"
	"github.com/lifetrack-app/lifetrack/backend/queue"
	storage "github.com/lifetrack-app/lifetrack/backend/storage/persistent"
	"github.com/lifetrack-app/lifetrack/lib/utils"
)

const (
	// authTokenTTL bounds the access token lifetime.
	authTokenTTL = time.Hour
	// refreshTokenTTL bounds the refresh token lifetime.
	refreshTokenTTL = 30 * 24 * time.Hour
)

// ValidationError marks a rejected input (missing field, malformed email,
// weak password, duplicate account). The boundary maps it to a 400.
type ValidationError struct {
	msg string
}

func (e *ValidationError) Error() string { return e.msg }

func invalid(msg string) error { return &ValidationError{msg: msg} }

var (
	// ErrAuthenticationFailed is the uniform rejection for bad
	// credentials. It deliberately doesn't say which part was wrong.
	ErrAuthenticationFailed = errors.New("authentication failed")

	// ErrInvalidToken rejects expired, malformed, or foreign tokens.
	ErrInvalidToken = errors.New("invalid token")

	// ErrEmailExists rejects registration with an email that's taken.
	ErrEmailExists = invalid("an account with this email already exists")
)

// Credentials is the outcome of a successful register or login: a signed
// token pair plus the user record it belongs to.
type Credentials struct {
	Token        string
	RefreshToken string
	User         *models.User
}

// Service implements the authentication boundary. It is constructed with
// its collaborators; there is no package-level state.
type Service struct {
	store      storage.StorageInterface
	signingKey string
	emailQueue *queue.Queue
}

// NewService builds an auth service on top of the given storage handle and
// JWT signing key. The email queue may be nil, in which case registration
// skips the confirmation email (useful in tests).
func NewService(store storage.StorageInterface, signingKey string, emailQueue *queue.Queue) *Service {
	return &Service{
		store:      store,
		signingKey: signingKey,
		emailQueue: emailQueue,
	}
}

// CreateAuthToken creates a signed short-lived access token carrying the
// user's id.
func (s *Service) CreateAuthToken(userId string) (string, error) {
	claims := jwt.MapClaims{
		"id":  userId,
		"exp": time.Now().Add(authTokenTTL).Unix(),
	}

	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := newToken.SignedString([]byte(s.signingKey))
	if err != nil {
		return "", errors.New("failed to create auth token")
	}

	return signedToken, nil
}

// CreateRefreshToken creates a signed long-lived refresh token carrying the
// user's id.
func (s *Service) CreateRefreshToken(userId string) (string, error) {
	claims := jwt.MapClaims{
		"id":  userId,
		"exp": time.Now().Add(refreshTokenTTL).Unix(),
	}

	newToken := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signedToken, err := newToken.SignedString([]byte(s.signingKey))
	if err != nil {
		return "", errors.New("failed to create refresh token")
	}

	return signedToken, nil
}

// CreateTokens creates an access/refresh token pair for a user.
func (s *Service) CreateTokens(userId string) (string, string, error) {
	authToken, authErr := s.CreateAuthToken(userId)
	if authErr != nil {
		return "", "", authErr
	}

	refreshToken, refreshErr := s.CreateRefreshToken(userId)
	if refreshErr != nil {
		return "", "", refreshErr
	}

	return authToken, refreshToken, nil
}

// Register creates a new user account. It validates the inputs, rejects
// duplicate emails, hashes the password, stores the user, queues the
// confirmation email, and returns a signed token pair.
func (s *Service) Register(ctx context.Context, email, password, displayName string) (*Credentials, error) {
	if len(displayName) < 2 {
		return nil, invalid("display name must be at least 2 characters")
	}

	if !utils.ValidateEmail(email) {
		return nil, invalid("invalid email format")
	}

	if !utils.ValidatePassword(password) {
		return nil, invalid("password must be at least 8 characters and contain both letters and numbers")
	}

	foundUser, err := s.store.FindUser(ctx, bson.M{"email": email})
	if err != nil && err != mongo.ErrNoDocuments {
		return nil, err
	}
	if foundUser != nil {
		return nil, ErrEmailExists
	}

	hashedPassword, err := bcrypt.GenerateFromPassword([]byte(password), bcrypt.DefaultCost)
	if err != nil {
		return nil, err
	}

	newUserID := primitive.NewObjectID()

	user := &models.User{
		ID:             newUserID,
		Email:          email,
		PasswordHash:   string(hashedPassword),
		DisplayName:    displayName,
		EmailConfirmed: false,
	}

	user, err = s.store.AddUser(ctx, user)
	if err != nil {
		return nil, err
	}

	if err := s.sendConfirmation(ctx, user); err != nil {
		return nil, err
	}

	token, refreshToken, err := s.CreateTokens(newUserID.Hex())
	if err != nil {
		return nil, err
	}

	return &Credentials{Token: token, RefreshToken: refreshToken, User: user}, nil
}

// sendConfirmation generates a short confirmation code, stores its bcrypt
// hash with a 24h expiry, and publishes the email onto the queue. A nil
// queue skips the whole step.
func (s *Service) sendConfirmation(ctx context.Context, user *models.User) error {
	if s.emailQueue == nil {
		return nil
	}

	// 3 bytes encode to 5 base32 characters, enough for a one-shot code.
	tokenBytes := make([]byte, 3)
	if _, err := rand.Read(tokenBytes); err != nil {
		return err
	}
	confirmationToken := base32.StdEncoding.WithPadding(base32.NoPadding).EncodeToString(tokenBytes)

	hashedToken, err := bcrypt.GenerateFromPassword([]byte(confirmationToken), bcrypt.DefaultCost)
	if err != nil {
		return err
	}

	emailMsg := &queue.EmailMessage{
		Id:    user.ID.Hex(),
		Token: confirmationToken,
		To:    user.Email,
	}

	if err := queue.ProcessEmail(emailMsg, s.emailQueue); err != nil {
		return err
	}

	confirmation := &models.Confirmation{
		UserID:            user.ID,
		ConfirmationToken: string(hashedToken),
		ExpiresAt:         time.Now().Add(24 * time.Hour),
	}

	_, err = s.store.AddConfirmation(ctx, confirmation)
	return err
}

// Login authenticates a user by email and password and returns a signed
// token pair. Bad email and bad password produce the same rejection.
func (s *Service) Login(ctx context.Context, email, password string) (*Credentials, error) {
	if email == "" || password == "" {
		return nil, invalid("email and password are required")
	}

	foundUser, err := s.store.FindUser(ctx, bson.M{"email": email})
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	err = bcrypt.CompareHashAndPassword([]byte(foundUser.PasswordHash), []byte(password))
	if err != nil {
		return nil, ErrAuthenticationFailed
	}

	token, refreshToken, err := s.CreateTokens(foundUser.ID.Hex())
	if err != nil {
		return nil, err
	}

	return &Credentials{Token: token, RefreshToken: refreshToken, User: foundUser}, nil
}

// Refresh validates a refresh token and, if it is genuine and unexpired,
// issues a fresh token pair for the user it names.
func (s *Service) Refresh(refreshToken string) (string, string, error) {
	token, err := jwt.Parse(refreshToken, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(s.signingKey), nil
	})

	// Expired, malformed, badly signed, wrong alg: all of them are the
	// same rejection to the caller.
	if err != nil {
		return "", "", ErrInvalidToken
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return "", "", ErrInvalidToken
	}

	userId, ok := claims["id"].(string)
	if !ok {
		return "", "", ErrInvalidToken
	}

	return s.CreateTokens(userId)
}

// ConfirmEmail checks a confirmation code against the stored hash and, if
// it matches before the expiry, marks the user's email as confirmed. The
// confirmation record is removed either way once inspected.
func (s *Service) ConfirmEmail(ctx context.Context, userID, confirmationToken string) error {
	var confirmError error

	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return err
	}

	foundConfirmation, err := s.store.FindConfirmation(ctx, bson.M{"user_id": objectID})
	if err != nil {
		return err
	}

	if foundConfirmation.ExpiresAt.Before(time.Now()) {
		confirmError = invalid("confirmation token has expired")
	} else if err = bcrypt.CompareHashAndPassword([]byte(foundConfirmation.ConfirmationToken), []byte(confirmationToken)); err != nil {
		confirmError = invalid("invalid confirmation token")
	} else {
		update := bson.M{
			"$set": bson.M{
				"email_confirmed": true,
			},
		}

		_, err = s.store.UpdateUser(ctx, bson.M{"_id": objectID}, update)
		if err != nil {
			return err
		}
	}

	_, err = s.store.DeleteConfirmation(ctx, bson.M{"_id": foundConfirmation.ID})
	if err != nil {
		return errors.New("error removing confirmation record")
	}

	return confirmError
}

// UpdateAccount updates the user's display name, email, and/or password
// after verifying the current password. Changing the email drops the
// confirmed flag.
func (s *Service) UpdateAccount(ctx context.Context, userID, currentPassword, newDisplayName, newEmail, newPassword string) error {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return err
	}

	foundUser, err := s.store.FindUser(ctx, bson.M{"_id": objectID})
	if err != nil {
		return ErrAuthenticationFailed
	}

	err = bcrypt.CompareHashAndPassword([]byte(foundUser.PasswordHash), []byte(currentPassword))
	if err != nil {
		return ErrAuthenticationFailed
	}

	update := bson.M{
		"$set": bson.M{},
	}

	if newDisplayName != "" {
		if len(newDisplayName) < 2 {
			return invalid("display name must be at least 2 characters")
		}
		update["$set"].(bson.M)["display_name"] = newDisplayName
	}

	if newEmail != "" {
		if !utils.ValidateEmail(newEmail) {
			return invalid("invalid email format")
		}
		existingUser, err := s.store.FindUser(ctx, bson.M{"email": newEmail})
		if existingUser != nil && err == nil && existingUser.ID != objectID {
			return ErrEmailExists
		}
		update["$set"].(bson.M)["email"] = newEmail
		update["$set"].(bson.M)["email_confirmed"] = false
	}

	if newPassword != "" {
		if !utils.ValidatePassword(newPassword) {
			return invalid("password must be at least 8 characters and contain both letters and numbers")
		}
		hashedPassword, err := bcrypt.GenerateFromPassword([]byte(newPassword), bcrypt.DefaultCost)
		if err != nil {
			return err
		}
		update["$set"].(bson.M)["password_hash"] = string(hashedPassword)
	}

	if len(update["$set"].(bson.M)) == 0 {
		return invalid("nothing to update")
	}

	_, err = s.store.UpdateUser(ctx, bson.M{"_id": objectID}, update)
	if err != nil {
		return errors.New("error updating account")
	}
	return nil
}

// DeleteAccount removes the user and, through the storage cascade, every
// habit, completion, and confirmation the user owns.
func (s *Service) DeleteAccount(ctx context.Context, userID string) error {
	objectID, err := primitive.ObjectIDFromHex(userID)
	if err != nil {
		return err
	}

	_, err = s.store.DeleteUser(ctx, bson.M{"_id": objectID})
	if err != nil {
		return fmt.Errorf("error deleting user: %v", err)
	}

	return nil
}
