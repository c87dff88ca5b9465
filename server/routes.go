package server

import (
	"context"
	"encoding/json"
	"log/slog"
	"net/http"

	"github.com/TharushaKula/RAG-agent-sub001/store"
)

// ProfileStore is the CRUD-only profile surface.
type ProfileStore interface {
	SaveProfile(ctx context.Context, p *store.Profile) error
	GetProfile(ctx context.Context, userID string) (*store.Profile, error)
	DeleteProfile(ctx context.Context, userID string) error
}

// NewMux wires all endpoints onto one mux.
func NewMux(chat, analyzer http.Handler, docs ContextStore, profiles ProfileStore, logger *slog.Logger) *http.ServeMux {
	mux := http.NewServeMux()
	mux.Handle("/api/chat", chat)
	mux.Handle("/api/analyzer", analyzer)
	mux.Handle("/api/context", &contextHandler{store: docs, logger: logger})
	mux.Handle("/api/ingest", &ingestHandler{store: docs, logger: logger})
	mux.Handle("/api/profile", &profileHandler{store: profiles, logger: logger})
	mux.HandleFunc("/health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	return mux
}

// contextHandler lists the documents available to attach as turn-stream
// context, grouped by kind.
type contextHandler struct {
	store  ContextStore
	logger *slog.Logger
}

func (h *contextHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	catalog, err := h.store.ListAvailable(r.Context())
	if err != nil {
		h.logger.Error("list context failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "list context failed")
		return
	}
	writeJSON(w, http.StatusOK, catalog)
}

type ingestRequest struct {
	Kind   string `json:"kind"`
	Source string `json:"source"`
	UserID string `json:"user_id"`
	Text   string `json:"text"`
}

type ingestHandler struct {
	store  ContextStore
	logger *slog.Logger
}

func (h *ingestHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
		return
	}
	var req ingestRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeJSONError(w, http.StatusBadRequest, "invalid request body")
		return
	}
	if req.Text == "" {
		writeJSONError(w, http.StatusBadRequest, "no text")
		return
	}
	if req.Kind == "" {
		req.Kind = store.KindCV
	}
	if req.Source == "" {
		req.Source = "user-paste"
	}
	n, err := h.store.IngestText(r.Context(), req.Kind, req.Source, req.UserID, req.Text)
	if err != nil {
		h.logger.Error("ingest failed", "error", err)
		writeJSONError(w, http.StatusInternalServerError, "ingest failed")
		return
	}
	writeJSON(w, http.StatusOK, map[string]int{"chunks": n})
}

// profileHandler is plain CRUD on the onboarding/roadmap profile.
type profileHandler struct {
	store  ProfileStore
	logger *slog.Logger
}

func (h *profileHandler) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	userID := r.URL.Query().Get("user")
	if userID == "" {
		writeJSONError(w, http.StatusBadRequest, "user query parameter required")
		return
	}
	switch r.Method {
	case http.MethodGet:
		p, err := h.store.GetProfile(r.Context(), userID)
		if err != nil {
			writeJSONError(w, http.StatusNotFound, "profile not found")
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodPut, http.MethodPost:
		var p store.Profile
		if err := json.NewDecoder(r.Body).Decode(&p); err != nil {
			writeJSONError(w, http.StatusBadRequest, "invalid request body")
			return
		}
		p.UserID = userID
		if err := h.store.SaveProfile(r.Context(), &p); err != nil {
			h.logger.Error("save profile failed", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "save profile failed")
			return
		}
		writeJSON(w, http.StatusOK, p)
	case http.MethodDelete:
		if err := h.store.DeleteProfile(r.Context(), userID); err != nil {
			h.logger.Error("delete profile failed", "error", err)
			writeJSONError(w, http.StatusInternalServerError, "delete profile failed")
			return
		}
		w.WriteHeader(http.StatusNoContent)
	default:
		http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
	}
}

func writeJSON(w http.ResponseWriter, code int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(code)
	json.NewEncoder(w).Encode(v)
}
