package server

import (
	"encoding/json"
	"errors"
	"log"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"go.mongodb.org/mongo-driver/bson/primitive"

	"github.com/lifetrack-app/lifetrack/backend/habit"
	"github.com/lifetrack-app/lifetrack/backend/models"
	"github.com/lifetrack-app/lifetrack/backend/server/auth"
	contextKey "github.com/lifetrack-app/lifetrack/backend/server/context_key"
	"github.com/lifetrack-app/lifetrack/backend/server/habits"
)

// handlerSet binds the HTTP handlers to the services they call into.
type handlerSet struct {
	auth   *auth.Service
	habits *habits.Service
}

// successEnvelope and errorEnvelope are the two JSON response shapes. The
// reason field carries a stable machine-readable code alongside the
// human-readable message.
type successEnvelope struct {
	Status string      `json:"status"`
	Data   interface{} `json:"data,omitempty"`
}

type errorEnvelope struct {
	Status  string `json:"status"`
	Message string `json:"message"`
	Reason  string `json:"reason,omitempty"`
}

func writeSuccess(w http.ResponseWriter, status int, data interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(successEnvelope{Status: "success", Data: data})
}

func writeError(w http.ResponseWriter, status int, message, reason string) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(errorEnvelope{Status: "error", Message: message, Reason: reason})
}

// writeServiceError maps a service error to its HTTP shape. Expected
// domain outcomes keep their message; anything unclassified is logged and
// surfaced as a generic 500 without internal detail.
func writeServiceError(w http.ResponseWriter, err error) {
	var validationErr *auth.ValidationError

	switch {
	case errors.Is(err, habit.ErrHabitNotFound):
		writeError(w, http.StatusNotFound, "Habit not found", "not_found")
	case errors.Is(err, habit.ErrAlreadyComplete):
		writeError(w, http.StatusConflict, err.Error(), "already_complete")
	case errors.Is(err, habit.ErrAlreadyCompletedToday):
		writeError(w, http.StatusConflict, "You already marked this habit today. Come back tomorrow!", "already_completed_today")
	case errors.Is(err, habit.ErrNameTaken):
		writeError(w, http.StatusConflict, err.Error(), "name_taken")
	case errors.Is(err, habit.ErrNameRequired),
		errors.Is(err, habit.ErrInvalidGoal),
		errors.Is(err, habit.ErrInvalidMode):
		writeError(w, http.StatusBadRequest, err.Error(), "validation")
	case errors.As(err, &validationErr):
		writeError(w, http.StatusBadRequest, err.Error(), "validation")
	case errors.Is(err, auth.ErrAuthenticationFailed), errors.Is(err, auth.ErrInvalidToken):
		writeError(w, http.StatusUnauthorized, err.Error(), "auth")
	default:
		log.Printf("internal error: %v", err)
		writeError(w, http.StatusInternalServerError, "Internal server error", "internal")
	}
}

// requireUser extracts the authenticated user id injected by the JWT
// middleware. It writes a 401 and returns false when there is none.
func requireUser(w http.ResponseWriter, r *http.Request) (string, bool) {
	id, ok := r.Context().Value(contextKey.UserIDKey).(string)
	if !ok || id == "" {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "auth")
		return "", false
	}
	return id, true
}

// requireUserID is requireUser plus the ObjectID parse.
func requireUserID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, ok := requireUser(w, r)
	if !ok {
		return primitive.NilObjectID, false
	}
	objectID, err := primitive.ObjectIDFromHex(id)
	if err != nil {
		writeError(w, http.StatusUnauthorized, "Unauthorized", "auth")
		return primitive.NilObjectID, false
	}
	return objectID, true
}

// habitID parses the {id} path variable. A malformed id behaves like a
// habit that doesn't exist.
func habitID(w http.ResponseWriter, r *http.Request) (primitive.ObjectID, bool) {
	id, err := primitive.ObjectIDFromHex(mux.Vars(r)["id"])
	if err != nil {
		writeError(w, http.StatusNotFound, "Habit not found", "not_found")
		return primitive.NilObjectID, false
	}
	return id, true
}

func decodeBody(w http.ResponseWriter, r *http.Request, dst interface{}) bool {
	if err := json.NewDecoder(r.Body).Decode(dst); err != nil {
		writeError(w, http.StatusBadRequest, "Malformed request body", "validation")
		return false
	}
	return true
}

type credentialsResponse struct {
	Token        string       `json:"token"`
	RefreshToken string       `json:"refreshToken"`
	User         *models.User `json:"user"`
}

func (h *handlerSet) register(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email       string `json:"email"`
		Password    string `json:"password"`
		DisplayName string `json:"displayName"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	creds, err := h.auth.Register(r.Context(), body.Email, body.Password, body.DisplayName)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, credentialsResponse{
		Token:        creds.Token,
		RefreshToken: creds.RefreshToken,
		User:         creds.User,
	})
}

func (h *handlerSet) login(w http.ResponseWriter, r *http.Request) {
	var body struct {
		Email    string `json:"email"`
		Password string `json:"password"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	creds, err := h.auth.Login(r.Context(), body.Email, body.Password)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, credentialsResponse{
		Token:        creds.Token,
		RefreshToken: creds.RefreshToken,
		User:         creds.User,
	})
}

func (h *handlerSet) refresh(w http.ResponseWriter, r *http.Request) {
	var body struct {
		RefreshToken string `json:"refreshToken"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	token, refreshToken, err := h.auth.Refresh(body.RefreshToken)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]string{
		"token":        token,
		"refreshToken": refreshToken,
	})
}

func (h *handlerSet) confirmEmail(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var body struct {
		Token string `json:"token"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	if err := h.auth.ConfirmEmail(r.Context(), userID, body.Token); err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, nil)
}

func (h *handlerSet) updateAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	var body struct {
		CurrentPassword string `json:"currentPassword"`
		NewDisplayName  string `json:"newDisplayName"`
		NewEmail        string `json:"newEmail"`
		NewPassword     string `json:"newPassword"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	err := h.auth.UpdateAccount(r.Context(), userID, body.CurrentPassword, body.NewDisplayName, body.NewEmail, body.NewPassword)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, nil)
}

func (h *handlerSet) deleteAccount(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUser(w, r)
	if !ok {
		return
	}

	if err := h.auth.DeleteAccount(r.Context(), userID); err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, nil)
}

func (h *handlerSet) listHabits(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	habitList, err := h.habits.List(r.Context(), userID)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{"habits": habitList})
}

func (h *handlerSet) createHabit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}

	var body struct {
		Name           string      `json:"name"`
		Goal           int         `json:"goal"`
		Mode           models.Mode `json:"mode"`
		ResetOnFailure bool        `json:"resetOnFailure"`
	}
	if !decodeBody(w, r, &body) {
		return
	}

	created, err := h.habits.Create(r.Context(), userID, habits.CreateInput{
		Name:           body.Name,
		Goal:           body.Goal,
		Mode:           body.Mode,
		ResetOnFailure: body.ResetOnFailure,
	})
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusCreated, created)
}

func (h *handlerSet) incrementHabit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := habitID(w, r)
	if !ok {
		return
	}

	updated, err := h.habits.Increment(r.Context(), userID, id, time.Now())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, updated)
}

func (h *handlerSet) failHabit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := habitID(w, r)
	if !ok {
		return
	}

	updated, err := h.habits.Fail(r.Context(), userID, id, time.Now())
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, updated)
}

func (h *handlerSet) deleteHabit(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := habitID(w, r)
	if !ok {
		return
	}

	if err := h.habits.Delete(r.Context(), userID, id); err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]string{"message": "Habit deleted successfully"})
}

func (h *handlerSet) listCompletions(w http.ResponseWriter, r *http.Request) {
	userID, ok := requireUserID(w, r)
	if !ok {
		return
	}
	id, ok := habitID(w, r)
	if !ok {
		return
	}

	completions, err := h.habits.Completions(r.Context(), userID, id)
	if err != nil {
		writeServiceError(w, err)
		return
	}

	writeSuccess(w, http.StatusOK, map[string]interface{}{"completions": completions})
}
