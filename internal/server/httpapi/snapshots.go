package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/gorilla/mux"

	"github.com/Sonicx161/aiomanager/internal/common"
	"github.com/Sonicx161/aiomanager/internal/server/storage"
)

// envelope is the wire form of a stored snapshot, matching what clients
// send and expect back. The payload stays opaque to the server.
type envelope struct {
	Data        string `json:"data"`
	IsEncrypted bool   `json:"isEncrypted"`
	Salt        string `json:"salt,omitempty"`
}

func (s *Server) getSnapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	token := r.Header.Get(common.SyncTokenHeaderName)

	snap, payload, err := s.store.GetSnapshot(r.Context(), id)
	if errors.Is(err, common.ErrNotFound) {
		http.Error(w, "snapshot not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error(r.Context(), "snapshot fetch failed", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if !tokenMatches(token, snap.TokenHash) {
		http.Error(w, "bad token", http.StatusUnauthorized)
		return
	}

	writeJSON(w, http.StatusOK, envelope{
		Data:        payload,
		IsEncrypted: snap.IsEncrypted,
		Salt:        snap.Salt,
	})
}

// putSnapshot stores a snapshot. The first POST for an id claims it: the
// token hash is recorded and all later requests must present the same
// token.
func (s *Server) putSnapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	token := r.Header.Get(common.SyncTokenHeaderName)
	if token == "" {
		http.Error(w, "missing token", http.StatusUnauthorized)
		return
	}

	var env envelope
	if err := json.NewDecoder(r.Body).Decode(&env); err != nil {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	existing, _, err := s.store.GetSnapshot(r.Context(), id)
	switch {
	case errors.Is(err, common.ErrNotFound):
		// Unclaimed id, first write wins.
	case err != nil:
		s.log.Error(r.Context(), "snapshot fetch failed", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	default:
		if !tokenMatches(token, existing.TokenHash) {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
	}

	syncedAt, err := s.store.PutSnapshot(r.Context(), storage.Snapshot{
		ID:          id,
		TokenHash:   hashToken(token),
		IsEncrypted: env.IsEncrypted,
		Salt:        env.Salt,
	}, env.Data)
	if err != nil {
		s.log.Error(r.Context(), "snapshot store failed", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]any{"syncedAt": syncedAt})
}

func (s *Server) deleteSnapshot(w http.ResponseWriter, r *http.Request) {
	id := mux.Vars(r)["id"]
	token := r.Header.Get(common.SyncTokenHeaderName)

	snap, _, err := s.store.GetSnapshot(r.Context(), id)
	if errors.Is(err, common.ErrNotFound) {
		http.Error(w, "snapshot not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error(r.Context(), "snapshot fetch failed", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	if !tokenMatches(token, snap.TokenHash) {
		http.Error(w, "bad token", http.StatusUnauthorized)
		return
	}

	if err := s.store.DeleteSnapshot(r.Context(), id); err != nil {
		s.log.Error(r.Context(), "snapshot delete failed", "id", id, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
