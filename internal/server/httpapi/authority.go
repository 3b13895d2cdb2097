package httpapi

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/Sonicx161/aiomanager/internal/common"
	"github.com/Sonicx161/aiomanager/internal/server/auth"
	"github.com/Sonicx161/aiomanager/internal/server/storage"
)

// login exchanges the key-derived device token for a session JWT. The first
// login for a device id claims it; later logins must present the same
// token.
func (s *Server) login(w http.ResponseWriter, r *http.Request) {
	var req struct {
		DeviceID string `json:"deviceId"`
		Token    string `json:"token"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.DeviceID == "" || req.Token == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	device, err := s.store.GetDevice(r.Context(), req.DeviceID)
	switch {
	case errors.Is(err, common.ErrNotFound):
		device = &storage.Device{
			ID:        req.DeviceID,
			TokenHash: hashToken(req.Token),
			CreatedAt: time.Now().UTC(),
		}
		if err := s.store.PutDevice(r.Context(), *device); err != nil {
			s.log.Error(r.Context(), "device claim failed", "device", req.DeviceID, "error", err)
			http.Error(w, "internal error", http.StatusInternalServerError)
			return
		}
		s.log.Info(r.Context(), "device claimed", "device", req.DeviceID)
	case err != nil:
		s.log.Error(r.Context(), "device fetch failed", "device", req.DeviceID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	default:
		if !tokenMatches(req.Token, device.TokenHash) {
			http.Error(w, "bad token", http.StatusUnauthorized)
			return
		}
	}

	session, err := auth.GenerateToken(req.DeviceID, s.secretKey, s.sessionTTL)
	if err != nil {
		s.log.Error(r.Context(), "session issue failed", "device", req.DeviceID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	writeJSON(w, http.StatusOK, map[string]string{"accessToken": session})
}

// ruleState mirrors the decision shape delegated clients consume.
type ruleState struct {
	RuleID    string    `json:"ruleId"`
	ActiveURL string    `json:"activeUrl"`
	DecidedAt time.Time `json:"decidedAt"`
}

func (s *Server) syncRule(w http.ResponseWriter, r *http.Request) {
	var req struct {
		Rule struct {
			ID            string   `json:"id"`
			AccountID     string   `json:"accountId"`
			PriorityChain []string `json:"priorityChain"`
			IsActive      bool     `json:"isActive"`
			IsAutomatic   bool     `json:"isAutomatic"`
		} `json:"rule"`
		Addons json.RawMessage `json:"addons"`
	}
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil || req.Rule.ID == "" || req.Rule.AccountID == "" {
		http.Error(w, "invalid body", http.StatusBadRequest)
		return
	}

	err := s.authority.Register(r.Context(), storage.Rule{
		ID:            req.Rule.ID,
		DeviceID:      deviceIDFromContext(r.Context()),
		AccountID:     req.Rule.AccountID,
		PriorityChain: req.Rule.PriorityChain,
		IsActive:      req.Rule.IsActive,
		IsAutomatic:   req.Rule.IsAutomatic,
		Addons:        req.Addons,
	})
	if err != nil {
		s.log.Error(r.Context(), "rule registration failed", "rule", req.Rule.ID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) state(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]

	decisions, err := s.authority.State(r.Context(), accountID)
	if err != nil {
		s.log.Error(r.Context(), "state fetch failed", "account", accountID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}

	out := make([]ruleState, 0, len(decisions))
	for _, d := range decisions {
		out = append(out, ruleState{RuleID: d.RuleID, ActiveURL: d.ActiveURL, DecidedAt: d.DecidedAt})
	}
	writeJSON(w, http.StatusOK, out)
}

func (s *Server) deleteRule(w http.ResponseWriter, r *http.Request) {
	ruleID := mux.Vars(r)["ruleId"]

	err := s.authority.DeleteRule(r.Context(), ruleID)
	if errors.Is(err, common.ErrNotFound) {
		http.Error(w, "rule not found", http.StatusNotFound)
		return
	}
	if err != nil {
		s.log.Error(r.Context(), "rule delete failed", "rule", ruleID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) deleteAccount(w http.ResponseWriter, r *http.Request) {
	accountID := mux.Vars(r)["accountId"]

	if err := s.authority.DeleteAccount(r.Context(), accountID); err != nil {
		s.log.Error(r.Context(), "account rules delete failed", "account", accountID, "error", err)
		http.Error(w, "internal error", http.StatusInternalServerError)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
