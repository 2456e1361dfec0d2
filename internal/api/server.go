// Package api serves the HTTP collaborator endpoints: the identity
// handshake and the prompt template catalog.
package api

import (
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/flitsinc/chatwire/internal/auth"
	"github.com/flitsinc/chatwire/internal/state"
)

type Server struct {
	Store     *state.Store
	Verifier  auth.Verifier
	StartedAt time.Time
}

func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()

	mux.HandleFunc("/api/health", s.handleHealth)
	mux.HandleFunc("/api/templates", s.handleTemplates)
	mux.HandleFunc("/api/templates/", s.handleTemplateItem)
	mux.HandleFunc("/auth/google", s.handleAuthGoogle)

	return mux
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ok",
		"uptime": time.Since(s.StartedAt).Round(time.Second).String(),
		"time":   time.Now().UTC(),
	})
}

func (s *Server) handleTemplates(w http.ResponseWriter, r *http.Request) {
	switch r.Method {
	case http.MethodGet:
		limit := parseInt(r.URL.Query().Get("limit"), 50)
		items, err := s.Store.ListTemplates(r.Context(), limit)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		if items == nil {
			items = []state.Template{}
		}
		writeJSON(w, http.StatusOK, items)
	case http.MethodPost:
		var req struct {
			Name        string           `json:"name"`
			Description string           `json:"description"`
			Content     string           `json:"content"`
			Variables   []state.Variable `json:"variables"`
		}
		if err := decodeJSON(r.Body, &req); err != nil {
			writeError(w, http.StatusBadRequest, err)
			return
		}
		if req.Name == "" || req.Content == "" {
			writeError(w, http.StatusBadRequest, errors.New("name and content are required"))
			return
		}
		tpl, err := s.Store.CreateTemplate(r.Context(), req.Name, req.Description, req.Content, req.Variables)
		if err != nil {
			writeError(w, http.StatusInternalServerError, err)
			return
		}
		writeJSON(w, http.StatusCreated, tpl)
	default:
		writeMethodNotAllowed(w)
	}
}

func (s *Server) handleTemplateItem(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodGet {
		writeMethodNotAllowed(w)
		return
	}
	idStr := strings.Trim(strings.TrimPrefix(r.URL.Path, "/api/templates/"), "/")
	id, err := strconv.ParseInt(idStr, 10, 64)
	if err != nil {
		writeError(w, http.StatusBadRequest, errors.New("invalid template id"))
		return
	}
	tpl, err := s.Store.GetTemplate(r.Context(), id)
	if errors.Is(err, state.ErrNotFound) {
		writeError(w, http.StatusNotFound, err)
		return
	}
	if err != nil {
		writeError(w, http.StatusInternalServerError, err)
		return
	}
	writeJSON(w, http.StatusOK, tpl)
}

// handleAuthGoogle verifies a Google id token out of band from the
// streaming protocol, so a client can check its credential before
// opening a socket.
func (s *Server) handleAuthGoogle(w http.ResponseWriter, r *http.Request) {
	if r.Method != http.MethodPost {
		writeMethodNotAllowed(w)
		return
	}
	if s.Verifier == nil {
		writeJSON(w, http.StatusOK, map[string]any{
			"success": true,
			"user":    auth.Anonymous(),
		})
		return
	}
	var req struct {
		IDToken string `json:"id_token"`
	}
	if err := decodeJSON(r.Body, &req); err != nil {
		writeJSON(w, http.StatusBadRequest, map[string]any{"success": false, "error": err.Error()})
		return
	}
	if req.IDToken == "" {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": auth.ErrTokenMissing.Error()})
		return
	}
	identity, err := s.Verifier.Verify(r.Context(), req.IDToken)
	if err != nil {
		writeJSON(w, http.StatusUnauthorized, map[string]any{"success": false, "error": auth.ErrTokenInvalid.Error()})
		return
	}
	writeJSON(w, http.StatusOK, map[string]any{"success": true, "user": identity})
}

func decodeJSON(body io.Reader, dest any) error {
	return json.NewDecoder(body).Decode(dest)
}

func writeJSON(w http.ResponseWriter, status int, payload any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(payload)
}

func writeError(w http.ResponseWriter, status int, err error) {
	writeJSON(w, status, map[string]any{"error": err.Error()})
}

func writeMethodNotAllowed(w http.ResponseWriter) {
	writeError(w, http.StatusMethodNotAllowed, errors.New("method not allowed"))
}

func parseInt(value string, fallback int) int {
	if value == "" {
		return fallback
	}
	n, err := strconv.Atoi(value)
	if err != nil || n <= 0 {
		return fallback
	}
	return n
}
