package bridge

import (
	"encoding/json"
	"errors"
	"net/http"
	"time"

	"github.com/grendel/clipseal/pkg/crypto"
	"github.com/grendel/clipseal/pkg/guard"
	"github.com/grendel/clipseal/pkg/monitor"
	"github.com/grendel/clipseal/pkg/protocol"
)

const (
	maxBodyBytes = 64 << 10

	// actionInvalidated answers a mutation that broke a verified paste
	actionInvalidated = "invalidated"
)

// CopyRequest is the body of POST /copy
type CopyRequest struct {
	Text string `json:"text"`
}

// PasteRequest is the body of POST /paste. Value and Selection describe
// the target field; when Value is absent the caller inserts Content itself.
type PasteRequest struct {
	Text      string          `json:"text"`
	Payload   json.RawMessage `json:"payload,omitempty"`
	TargetID  string          `json:"target_id,omitempty"`
	Value     *string         `json:"value,omitempty"`
	Selection *[2]int         `json:"selection,omitempty"`
}

// MutatedRequest is the body of POST /mutated. It reports the new content
// of a field that received a verified paste.
type MutatedRequest struct {
	TargetID string `json:"target_id"`
	Value    string `json:"value"`
}

// DecisionResponse reports a handler decision
type DecisionResponse struct {
	Action      string          `json:"action"`
	Reason      protocol.Reason `json:"reason,omitempty"`
	Message     string          `json:"message,omitempty"`
	Content     string          `json:"content,omitempty"`
	Chain       string          `json:"chain,omitempty"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	Degraded    bool            `json:"degraded,omitempty"`
	Value       *string         `json:"value,omitempty"`
	Cursor      *int            `json:"cursor,omitempty"`
}

// StatusResponse is the body of GET /status
type StatusResponse struct {
	Bound       bool            `json:"bound"`
	Chain       string          `json:"chain,omitempty"`
	Address     string          `json:"address,omitempty"`
	Fingerprint string          `json:"fingerprint,omitempty"`
	ExpiresAt   *time.Time      `json:"expires_at,omitempty"`
	Reason      protocol.Reason `json:"reason,omitempty"`
	Monitor     monitor.Stats   `json:"monitor"`
}

func (s *Server) handleCopy(w http.ResponseWriter, r *http.Request) {
	var req CopyRequest
	if !decode(w, r, &req) {
		return
	}

	ev := &protocol.Copy{Content: req.Text}
	d := s.ctrl.HandleCopy(r.Context(), ev)
	writeJSON(w, http.StatusOK, toResponse(d))
}

func (s *Server) handlePaste(w http.ResponseWriter, r *http.Request) {
	var req PasteRequest
	if !decode(w, r, &req) {
		return
	}

	ev := &protocol.Paste{Content: req.Text, Meta: payloadBytes(req.Payload)}

	var field *protocol.TextField
	if req.Value != nil {
		id := req.TargetID
		if id == "" {
			id = "bridge"
		}
		field = protocol.NewTextField(id, *req.Value)
		if req.Selection != nil {
			field.Select(req.Selection[0], req.Selection[1])
		}
		ev.Field = field
	}

	d := s.ctrl.HandlePaste(r.Context(), ev)
	resp := toResponse(d)
	if field != nil && d.Action == guard.Allow {
		value := field.Value()
		cursor, _ := field.Selection()
		resp.Value = &value
		resp.Cursor = &cursor
		if req.TargetID != "" {
			s.track(field)
		}
	}
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleMutated(w http.ResponseWriter, r *http.Request) {
	var req MutatedRequest
	if !decode(w, r, &req) {
		return
	}

	field := s.tracked(req.TargetID)
	if field == nil {
		writeError(w, http.StatusNotFound, "target not watched")
		return
	}

	field.SetValue(req.Value, len([]rune(req.Value)))
	if !s.ctrl.Mutated(r.Context(), field) {
		if !s.ctrl.Watching(field.ID()) {
			s.untrack(field.ID())
		}
		writeJSON(w, http.StatusOK, DecisionResponse{Action: guard.Allow.String()})
		return
	}

	s.untrack(field.ID())
	_, msg := field.Disabled()
	writeJSON(w, http.StatusOK, DecisionResponse{Action: actionInvalidated, Message: msg})
}

func (s *Server) handleUnbind(w http.ResponseWriter, r *http.Request) {
	if err := s.ctrl.Release(r.Context()); err != nil {
		s.opts.Logger.Warn("bridge: unbind incomplete", "error", err)
	}
	writeJSON(w, http.StatusOK, map[string]bool{"ok": true})
}

func (s *Server) handleStatus(w http.ResponseWriter, r *http.Request) {
	b, err := s.ctrl.Live(r.Context())
	if err != nil {
		resp := StatusResponse{Monitor: s.ctrl.Stats()}
		if !errors.Is(err, protocol.ErrNoBinding) {
			resp.Reason = protocol.ReasonFor(err)
		}
		writeJSON(w, http.StatusOK, resp)
		return
	}

	expires := b.BoundAt.Add(s.ctrl.TTL())
	writeJSON(w, http.StatusOK, StatusResponse{
		Bound:       true,
		Chain:       b.Chain.String(),
		Address:     b.Canonical,
		Fingerprint: b.Fingerprint.Short,
		ExpiresAt:   &expires,
		Monitor:     s.ctrl.Stats(),
	})
}

func toResponse(d guard.Decision) DecisionResponse {
	resp := DecisionResponse{
		Action:      d.Action.String(),
		Reason:      d.Reason,
		Message:     d.Message,
		Content:     d.Content,
		Fingerprint: d.Fingerprint,
		Degraded:    d.Degraded,
	}
	if d.Chain != crypto.ChainUnknown {
		resp.Chain = d.Chain.String()
	}
	return resp
}

// payloadBytes accepts the payload as a JSON object or as a JSON string
// holding the serialised object
func payloadBytes(raw json.RawMessage) []byte {
	if len(raw) == 0 || string(raw) == "null" {
		return nil
	}
	var s string
	if err := json.Unmarshal(raw, &s); err == nil {
		return []byte(s)
	}
	return raw
}

func decode(w http.ResponseWriter, r *http.Request, v any) bool {
	r.Body = http.MaxBytesReader(w, r.Body, maxBodyBytes)
	if err := json.NewDecoder(r.Body).Decode(v); err != nil {
		writeError(w, http.StatusBadRequest, "invalid request body")
		return false
	}
	return true
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

func writeError(w http.ResponseWriter, status int, msg string) {
	writeJSON(w, status, map[string]string{"error": msg})
}
