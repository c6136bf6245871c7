package server

import (
	"context"
	"fmt"
	"log"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/form3tech-oss/jwt-go"
	"github.com/gorilla/handlers"
	"github.com/gorilla/mux"

	"github.com/lifetrack-app/lifetrack/backend/server/auth"
	contextKey "github.com/lifetrack-app/lifetrack/backend/server/context_key"
	"github.com/lifetrack-app/lifetrack/backend/server/habits"
)

// jwtMiddleware reads the JWT from the Authorization header. If a valid
// token is present, the user's id from its claims is injected into the
// request context under contextKey.UserIDKey; a parse or validation error
// is injected under contextKey.JwtErrorKey instead. The middleware never
// stops the request itself: handlers that require an identity reject
// requests whose context carries no user id.
func jwtMiddleware(signingKey string, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader != "" {
			splitToken := strings.Split(authHeader, "Bearer ")
			if len(splitToken) == 2 {
				token, err := jwt.Parse(splitToken[1], func(token *jwt.Token) (interface{}, error) {
					if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
						return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
					}
					return []byte(signingKey), nil
				})
				if err != nil {
					log.Println("JWT token validation error:", err)
					ctx := context.WithValue(r.Context(), contextKey.JwtErrorKey, err)
					r = r.WithContext(ctx)
				} else if claims, ok := token.Claims.(jwt.MapClaims); ok && token.Valid {
					if id, ok := claims["id"].(string); ok {
						ctx := context.WithValue(r.Context(), contextKey.UserIDKey, id)
						r = r.WithContext(ctx)
					}
				}
			}
		}
		next.ServeHTTP(w, r)
	})
}

// recoveryMiddleware recovers from panics and returns a generic error
// message to the client.
func recoveryMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		defer func() {
			if err := recover(); err != nil {
				log.Printf("Panic recovered: %s\n", err)
				http.Error(w, "Internal server error", http.StatusInternalServerError)
			}
		}()
		next.ServeHTTP(w, r)
	})
}

// NewRouter builds the REST router: auth routes under /api/auth, habit and
// account routes under /api behind the JWT middleware.
func NewRouter(signingKey string, authService *auth.Service, habitService *habits.Service) http.Handler {
	h := &handlerSet{auth: authService, habits: habitService}

	r := mux.NewRouter()

	r.HandleFunc("/", func(w http.ResponseWriter, req *http.Request) {
		fmt.Fprint(w, "life tracker")
	}).Methods("GET")

	r.HandleFunc("/api/auth/register", h.register).Methods("POST")
	r.HandleFunc("/api/auth/login", h.login).Methods("POST")
	r.HandleFunc("/api/auth/refresh", h.refresh).Methods("POST")
	r.HandleFunc("/api/auth/confirm", h.confirmEmail).Methods("POST")

	r.HandleFunc("/api/account", h.updateAccount).Methods("PATCH")
	r.HandleFunc("/api/account", h.deleteAccount).Methods("DELETE")

	r.HandleFunc("/api/habits", h.listHabits).Methods("GET")
	r.HandleFunc("/api/habits", h.createHabit).Methods("POST")
	r.HandleFunc("/api/habits/{id}/increment", h.incrementHabit).Methods("PATCH")
	r.HandleFunc("/api/habits/{id}/fail", h.failHabit).Methods("PATCH")
	r.HandleFunc("/api/habits/{id}", h.deleteHabit).Methods("DELETE")
	r.HandleFunc("/api/habits/{id}/completions", h.listCompletions).Methods("GET")

	var handler http.Handler = r
	handler = jwtMiddleware(signingKey, handler)
	handler = recoveryMiddleware(handler)

	corsOrigins := handlers.AllowedOrigins([]string{"*"})
	corsMethods := handlers.AllowedMethods([]string{"GET", "HEAD", "POST", "PUT", "PATCH", "DELETE", "OPTIONS"})
	corsHeaders := handlers.AllowedHeaders([]string{"X-Requested-With", "Content-Type", "Authorization"})
	handler = handlers.CORS(corsOrigins, corsMethods, corsHeaders)(handler)

	return handlers.LoggingHandler(os.Stdout, handler)
}

// Start initializes and starts the REST server at the given URL.
func Start(serverURL, signingKey string, authService *auth.Service, habitService *habits.Service) error {
	u, err := url.Parse(serverURL)
	if err != nil {
		return fmt.Errorf("invalid server url: %w", err)
	}

	server := &http.Server{
		Handler:      NewRouter(signingKey, authService, habitService),
		Addr:         u.Host,
		WriteTimeout: 15 * time.Second,
		ReadTimeout:  15 * time.Second,
	}

	log.Printf("listening on %s", u.Host)
	return server.ListenAndServe()
}
