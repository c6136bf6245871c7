// Package client is the CLI's HTTP client for the LifeTrack REST API. It
// keeps the token pair in the OS keyring and refreshes the access token
// transparently when it expires.
package client

import (
	"bytes"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"

	"github.com/form3tech-oss/jwt-go"
	"github.com/zalando/go-keyring"

	"github.com/lifetrack-app/lifetrack/backend/models"
	"github.com/lifetrack-app/lifetrack/lib/utils"
)

// jwtSigningKey is used to verify JWT tokens client-side before use.
var jwtSigningKey string

// KeyringKey is used to store and retrieve the JWT token from the system keyring.
var KeyringKey string

// RefreshKeyringKey is used to store and retrieve the refresh token from the system keyring.
var RefreshKeyringKey string

// ServerURL is the URL of the server the client is connecting to.
var ServerURL string

// httpClient is the HTTP client used to make requests to the server.
var httpClient = &http.Client{}

// KeyringService is the name of the service in the system keyring where the JWT token and refresh token are stored.
const KeyringService = "LifeTrack"

// APIError is a rejection returned by the server, carrying the stable
// reason code alongside the message.
type APIError struct {
	Message string
	Reason  string
}

func (e *APIError) Error() string { return e.Message }

// InitClient initializes the client configuration.
// This function must be called before using any other functions in the package.
func InitClient(serverURL, signingKey, authToken, authTokenRefresh string) {
	jwtSigningKey = signingKey
	KeyringKey = authToken
	RefreshKeyringKey = authTokenRefresh
	ServerURL = serverURL
}

// decodeJWT decodes a JWT token and returns the claims contained within it.
// Returns the claims if the token is valid, else an error.
func decodeJWT(tokenStr string) (jwt.MapClaims, error) {
	token, err := jwt.Parse(tokenStr, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return []byte(jwtSigningKey), nil
	})

	if err != nil {
		return nil, err
	}

	claims, ok := token.Claims.(jwt.MapClaims)
	if !ok || !token.Valid {
		return nil, errors.New("invalid token")
	}

	return claims, nil
}

// isJwtTokenInKeyring checks if the system keyring contains a JWT token.
// Returns 'true' and the token if it exists, 'false' and an empty string if it doesn't.
func isJwtTokenInKeyring() (bool, string, error) {
	token, err := keyring.Get(KeyringService, KeyringKey)
	if err != nil {
		if err == keyring.ErrNotFound {
			return false, "", nil
		}
		return false, "", errors.New("failed to access keyring: " + err.Error())
	}
	return true, token, nil
}

// storeTokens saves a token pair in the keyring. If the refresh token
// can't be stored, the access token is removed again so the pair stays
// consistent.
func storeTokens(token, refreshToken string) error {
	if err := keyring.Set(KeyringService, KeyringKey, token); err != nil {
		return err
	}
	if refreshToken != "" {
		if err := keyring.Set(KeyringService, RefreshKeyringKey, refreshToken); err != nil {
			keyring.Delete(KeyringService, KeyringKey)
			return err
		}
	}
	return nil
}

// ClearKeyring clears the JWT token and refresh token from the system keyring.
func ClearKeyring() error {
	accessToken, err := keyring.Get(KeyringService, KeyringKey)
	if err != nil {
		return errors.New("failed to retrieve access token from keyring: " + err.Error())
	}

	err = keyring.Delete(KeyringService, KeyringKey)
	if err != nil {
		return errors.New("failed to delete access token from keyring: " + err.Error())
	}

	err = keyring.Delete(KeyringService, RefreshKeyringKey)
	if err != nil {
		keyring.Set(KeyringService, KeyringKey, accessToken)
		return errors.New("failed to delete refresh token from keyring: " + err.Error())
	}

	return nil
}

// IsUserAuthenticated checks if a valid JWT token exists in the system
// keyring. An expired token is refreshed through the refresh endpoint.
// Returns the usable token, or an empty string when nobody is signed in.
func IsUserAuthenticated() (string, error) {
	hasJwt, tokenStr, err := isJwtTokenInKeyring()
	if err != nil {
		return "", err
	}

	if !hasJwt {
		return "", nil
	}

	_, err = decodeJWT(tokenStr)
	if err != nil {
		if ve, ok := err.(*jwt.ValidationError); ok {
			if ve.Errors&jwt.ValidationErrorExpired != 0 {
				newToken, refreshErr := RefreshAccessToken()
				if refreshErr != nil {
					return "", refreshErr
				}
				return newToken, nil
			}
		}
		return "", err
	}

	return tokenStr, nil
}

// envelope mirrors the server's JSON response shape.
type envelope struct {
	Status  string          `json:"status"`
	Data    json.RawMessage `json:"data"`
	Message string          `json:"message"`
	Reason  string          `json:"reason"`
}

// sendRequest performs one JSON request against the API and unwraps the
// response envelope. Error envelopes come back as *APIError.
func sendRequest(method, path string, body interface{}, token *string) (json.RawMessage, error) {
	var reqBody io.Reader
	if body != nil {
		data, err := json.Marshal(body)
		if err != nil {
			return nil, fmt.Errorf("failed to create request: %v", err)
		}
		reqBody = bytes.NewBuffer(data)
	}

	req, err := http.NewRequest(method, ServerURL+path, reqBody)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %v", err)
	}

	req.Header.Set("Content-Type", "application/json")
	if token != nil {
		req.Header.Add("Authorization", "Bearer "+*token)
	}

	resp, err := httpClient.Do(req)
	if err != nil {
		return nil, fmt.Errorf("request failed: %v", err)
	}
	defer resp.Body.Close()

	bodyBytes, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, err
	}

	var env envelope
	if err := json.Unmarshal(bodyBytes, &env); err != nil {
		return nil, fmt.Errorf("unexpected response from server: %s", string(bodyBytes))
	}

	if env.Status != "success" {
		return nil, &APIError{Message: env.Message, Reason: env.Reason}
	}

	return env.Data, nil
}

// authedRequest is sendRequest with the stored (possibly refreshed)
// access token attached. It fails when nobody is signed in.
func authedRequest(method, path string, body interface{}) (json.RawMessage, error) {
	token, err := IsUserAuthenticated()
	if err != nil {
		return nil, err
	}
	if token == "" {
		return nil, errors.New("no user is currently signed in")
	}
	return sendRequest(method, path, body, &token)
}

// credentialsPayload mirrors the register/login response data.
type credentialsPayload struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	User         *models.User `json:"user"`
}

// RefreshAccessToken exchanges the stored refresh token for a fresh token
// pair and saves it. Returns the new access token.
func RefreshAccessToken() (string, error) {
	refreshToken, err := keyring.Get(KeyringService, RefreshKeyringKey)
	if err != nil {
		return "", err
	}

	data, err := sendRequest("POST", "/api/auth/refresh", map[string]string{"refreshToken": refreshToken}, nil)
	if err != nil {
		return "", err
	}

	var payload credentialsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return "", err
	}

	if err := storeTokens(payload.Token, payload.RefreshToken); err != nil {
		return "", err
	}

	return payload.Token, nil
}

// SignUp registers a new account and stores the returned token pair.
// Returns the created user.
func SignUp(email, password, displayName string) (*models.User, error) {
	isSignedIn, _, err := isJwtTokenInKeyring()
	if err != nil {
		return nil, err
	}
	if isSignedIn {
		return nil, errors.New("a user is already signed in")
	}

	if len(displayName) < 2 {
		return nil, errors.New("display name must be at least 2 characters")
	}
	if !utils.ValidateEmail(email) {
		return nil, errors.New("invalid email format")
	}
	if !utils.ValidatePassword(password) {
		return nil, errors.New("password must be at least 8 characters and contain both letters and numbers")
	}

	data, err := sendRequest("POST", "/api/auth/register", map[string]string{
		"email":       email,
		"password":    password,
		"displayName": displayName,
	}, nil)
	if err != nil {
		return nil, err
	}

	var payload credentialsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	if err := storeTokens(payload.Token, payload.RefreshToken); err != nil {
		return nil, err
	}

	return payload.User, nil
}

// SignIn logs in with email and password and stores the returned token
// pair. Returns the signed-in user.
func SignIn(email, password string) (*models.User, error) {
	isSignedIn, _, err := isJwtTokenInKeyring()
	if err != nil {
		return nil, err
	}
	if isSignedIn {
		return nil, errors.New("a user is already signed in")
	}

	data, err := sendRequest("POST", "/api/auth/login", map[string]string{
		"email":    email,
		"password": password,
	}, nil)
	if err != nil {
		return nil, err
	}

	var payload credentialsPayload
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}

	if err := storeTokens(payload.Token, payload.RefreshToken); err != nil {
		return nil, err
	}

	return payload.User, nil
}

// SignOut removes the tokens from the system keyring. Tokens are
// stateless, so there is nothing to invalidate server-side.
func SignOut() error {
	_, err := keyring.Get(KeyringService, KeyringKey)
	if err != nil {
		if err == keyring.ErrNotFound {
			return errors.New("no user is signed in")
		}
		return errors.New("failed to access keyring")
	}

	return ClearKeyring()
}

// ConfirmEmail submits the confirmation code from the email.
func ConfirmEmail(confirmationToken string) error {
	_, err := authedRequest("POST", "/api/auth/confirm", map[string]string{"token": confirmationToken})
	return err
}

// UpdateAccount updates the current user's display name, email, and/or
// password. The current password is required for authentication.
func UpdateAccount(currentPassword, newDisplayName, newEmail, newPassword string) error {
	if newDisplayName == "" && newEmail == "" && newPassword == "" {
		return errors.New("nothing to update")
	}
	if newEmail != "" && !utils.ValidateEmail(newEmail) {
		return errors.New("new email is in invalid format")
	}
	if newPassword != "" && !utils.ValidatePassword(newPassword) {
		return errors.New("new password must be at least 8 characters and contain both letters and numbers")
	}

	_, err := authedRequest("PATCH", "/api/account", map[string]string{
		"currentPassword": currentPassword,
		"newDisplayName":  newDisplayName,
		"newEmail":        newEmail,
		"newPassword":     newPassword,
	})
	return err
}

// DeleteAccount deletes the current user and clears the keyring.
func DeleteAccount() error {
	if _, err := authedRequest("DELETE", "/api/account", nil); err != nil {
		return err
	}
	return ClearKeyring()
}

// Habits returns the current user's habits, ordered as the server lists
// them (id ascending).
func Habits() ([]models.Habit, error) {
	data, err := authedRequest("GET", "/api/habits", nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Habits []models.Habit `json:"habits"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return payload.Habits, nil
}

// CreateHabit creates a new habit. A goal of 0 means a plain habit; a
// positive goal makes it a challenge.
func CreateHabit(name string, goal int, mode models.Mode, resetOnFailure bool) (*models.Habit, error) {
	data, err := authedRequest("POST", "/api/habits", map[string]interface{}{
		"name":           name,
		"goal":           goal,
		"mode":           mode,
		"resetOnFailure": resetOnFailure,
	})
	if err != nil {
		return nil, err
	}

	h := &models.Habit{}
	if err := json.Unmarshal(data, h); err != nil {
		return nil, err
	}
	return h, nil
}

// IncrementHabit marks a habit done for today. Rejections come back as
// *APIError with reasons already_completed_today / already_complete.
func IncrementHabit(id string) (*models.Habit, error) {
	data, err := authedRequest("PATCH", "/api/habits/"+id+"/increment", nil)
	if err != nil {
		return nil, err
	}

	h := &models.Habit{}
	if err := json.Unmarshal(data, h); err != nil {
		return nil, err
	}
	return h, nil
}

// FailHabit resets a habit's streak to zero.
func FailHabit(id string) (*models.Habit, error) {
	data, err := authedRequest("PATCH", "/api/habits/"+id+"/fail", nil)
	if err != nil {
		return nil, err
	}

	h := &models.Habit{}
	if err := json.Unmarshal(data, h); err != nil {
		return nil, err
	}
	return h, nil
}

// DeleteHabit deletes a habit and its completion log.
func DeleteHabit(id string) error {
	_, err := authedRequest("DELETE", "/api/habits/"+id, nil)
	return err
}

// Completions returns a habit's completion log, day number ascending.
func Completions(id string) ([]models.Completion, error) {
	data, err := authedRequest("GET", "/api/habits/"+id+"/completions", nil)
	if err != nil {
		return nil, err
	}

	var payload struct {
		Completions []models.Completion `json:"completions"`
	}
	if err := json.Unmarshal(data, &payload); err != nil {
		return nil, err
	}
	return payload.Completions, nil
}
