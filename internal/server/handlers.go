package server

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/raaihank/msgguard/internal/audit"
	"github.com/raaihank/msgguard/internal/filter"
	"go.uber.org/zap"
)

// evaluateRequest is the host invocation payload. A host that only carries
// plain text may send it in the text field instead of a segment list.
type evaluateRequest struct {
	StreamID string           `json:"stream_id"`
	Text     string           `json:"text,omitempty"`
	Segments []filter.Segment `json:"segments,omitempty"`
	History  []string         `json:"history,omitempty"`
}

// evaluateResponse is the terminal disposition for one pass
type evaluateResponse struct {
	Disposition string             `json:"disposition"`
	Text        string             `json:"text,omitempty"`
	Segments    []filter.Segment   `json:"segments,omitempty"`
	FiredRules  []filter.FiredRule `json:"fired_rules,omitempty"`
}

// handleAfterModel evaluates the after-model-response stage
func (s *Server) handleAfterModel(w http.ResponseWriter, r *http.Request) {
	s.handleEvaluate(w, r, filter.StageAfterModel)
}

// handleBeforeSend evaluates the before-send stage
func (s *Server) handleBeforeSend(w http.ResponseWriter, r *http.Request) {
	s.handleEvaluate(w, r, filter.StageBeforeSend)
}

func (s *Server) handleEvaluate(w http.ResponseWriter, r *http.Request, stage filter.Stage) {
	requestID := getRequestID(r.Context())
	log := s.logger.WithRequestID(requestID)

	var req evaluateRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		log.Error("Failed to decode evaluate request", zap.Error(err))
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}

	msg := filter.Message{
		StreamID: req.StreamID,
		Segments: req.Segments,
		History:  req.History,
	}
	if len(msg.Segments) == 0 && req.Text != "" {
		msg.Segments = []filter.Segment{{Type: filter.SegmentText, Data: req.Text}}
	}

	var outcome filter.Outcome
	switch stage {
	case filter.StageAfterModel:
		outcome = s.engine.EvaluateAfterModel(r.Context(), msg)
	default:
		outcome = s.engine.EvaluateBeforeSend(r.Context(), msg)
	}

	s.recordAudit(r, stage, msg, outcome)

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(evaluateResponse{
		Disposition: string(outcome.Disposition),
		Text:        outcome.Text,
		Segments:    outcome.Segments,
		FiredRules:  outcome.Fired,
	}); err != nil {
		log.Error("Failed to encode evaluate response", zap.Error(err))
	}
}

// recordAudit persists the pass outcome. Audit failures are logged and
// swallowed; a broken database must not affect dispositions.
func (s *Server) recordAudit(r *http.Request, stage filter.Stage, msg filter.Message, outcome filter.Outcome) {
	if s.audit == nil {
		return
	}

	fired := make([]string, 0, len(outcome.Fired))
	for _, f := range outcome.Fired {
		fired = append(fired, f.Pattern)
	}

	entry := &audit.Entry{
		StreamID:     msg.StreamID,
		Stage:        string(stage),
		Disposition:  string(outcome.Disposition),
		FiredRules:   fired,
		OriginalHash: audit.TextHash(msg.Text()),
		FinalHash:    audit.TextHash(outcome.Text),
	}
	if err := s.audit.Record(r.Context(), entry); err != nil {
		s.logger.Error("Failed to record audit entry", zap.Error(err))
	}
}

// handleAuditRecent returns the latest audit entries
func (s *Server) handleAuditRecent(w http.ResponseWriter, r *http.Request) {
	limit := 50
	if raw := r.URL.Query().Get("limit"); raw != "" {
		parsed, err := strconv.Atoi(raw)
		if err != nil || parsed <= 0 || parsed > 1000 {
			http.Error(w, "invalid limit", http.StatusBadRequest)
			return
		}
		limit = parsed
	}

	entries, err := s.audit.Recent(r.Context(), limit)
	if err != nil {
		s.logger.Error("Failed to query audit entries", zap.Error(err))
		http.Error(w, "audit query failed", http.StatusInternalServerError)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(http.StatusOK)
	if err := json.NewEncoder(w).Encode(entries); err != nil {
		s.logger.Error("Failed to encode audit entries", zap.Error(err))
	}
}
