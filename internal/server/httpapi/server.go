// Package httpapi exposes the sync store and the failover authority over
// JSON HTTP. Snapshot endpoints are gated by the password-derived token in
// the X-Sync-Token header; authority endpoints by a JWT session obtained
// from POST /autopilot/login.
package httpapi

import (
	"context"
	"crypto/sha256"
	"crypto/subtle"
	"encoding/hex"
	"encoding/json"
	"net/http"
	"strings"
	"time"

	"github.com/gorilla/mux"

	"github.com/Sonicx161/aiomanager/internal/logging"
	"github.com/Sonicx161/aiomanager/internal/server/auth"
	"github.com/Sonicx161/aiomanager/internal/server/autopilot"
	sc "github.com/Sonicx161/aiomanager/internal/server/config"
	"github.com/Sonicx161/aiomanager/internal/server/storage"
)

type Server struct {
	store      storage.Store
	authority  *autopilot.Service
	secretKey  []byte
	sessionTTL time.Duration
	log        logging.Logger
}

func NewServer(store storage.Store, authority *autopilot.Service, config *sc.Config, log logging.Logger) *Server {
	return &Server{
		store:      store,
		authority:  authority,
		secretKey:  []byte(config.SecretKey),
		sessionTTL: config.SessionValidityDuration,
		log:        log,
	}
}

// Router builds the route table. The login route is registered before the
// JWT-gated subrouter so it matches first and stays unauthenticated.
func (s *Server) Router() *mux.Router {
	r := mux.NewRouter()

	r.HandleFunc("/sync/{id}", s.getSnapshot).Methods(http.MethodGet)
	r.HandleFunc("/sync/{id}", s.putSnapshot).Methods(http.MethodPost)
	r.HandleFunc("/sync/{id}", s.deleteSnapshot).Methods(http.MethodDelete)

	r.HandleFunc("/autopilot/login", s.login).Methods(http.MethodPost)

	ap := r.PathPrefix("/autopilot").Subrouter()
	ap.Use(s.authMiddleware)
	ap.HandleFunc("/sync", s.syncRule).Methods(http.MethodPost)
	ap.HandleFunc("/state/{accountId}", s.state).Methods(http.MethodGet)
	ap.HandleFunc("/account/{accountId}", s.deleteAccount).Methods(http.MethodDelete)
	ap.HandleFunc("/{ruleId}", s.deleteRule).Methods(http.MethodDelete)

	return r
}

// hashToken reduces a presented token to the stored form. Raw tokens are
// never persisted.
func hashToken(token string) string {
	sum := sha256.Sum256([]byte(token))
	return hex.EncodeToString(sum[:])
}

func tokenMatches(presented, storedHash string) bool {
	return subtle.ConstantTimeCompare([]byte(hashToken(presented)), []byte(storedHash)) == 1
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

type ctxKey int

const ctxKeyDeviceID ctxKey = iota

func deviceIDFromContext(ctx context.Context) string {
	id, _ := ctx.Value(ctxKeyDeviceID).(string)
	return id
}

// authMiddleware verifies the bearer session token and stores the device id
// in the request context.
func (s *Server) authMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		header := r.Header.Get("Authorization")
		token, ok := strings.CutPrefix(header, "Bearer ")
		if !ok || token == "" {
			http.Error(w, "missing bearer token", http.StatusUnauthorized)
			return
		}

		deviceID, err := auth.GetDeviceIDFromToken(token, s.secretKey)
		if err != nil {
			http.Error(w, "invalid session", http.StatusUnauthorized)
			return
		}

		ctx := context.WithValue(r.Context(), ctxKeyDeviceID, deviceID)
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
