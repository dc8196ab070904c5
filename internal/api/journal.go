package api

import (
	"context"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-controls/internal/audit"
)

// journalWriteTimeout bounds a journal insert after the edit has succeeded.
const journalWriteTimeout = 2 * time.Second

// record journals a successful edit. Failures are logged, never returned.
func (s *Server) record(r *http.Request, action, controlID, entityID string, details map[string]any) {
	if s.journal == nil {
		return
	}

	requestID, _ := r.Context().Value(ctxKeyRequestID).(string) //nolint:errcheck // absent outside the router
	ctx, cancel := context.WithTimeout(context.WithoutCancel(r.Context()), journalWriteTimeout)
	defer cancel()

	err := s.journal.Record(ctx, &audit.Entry{
		Action:    action,
		ControlID: controlID,
		EntityID:  entityID,
		RequestID: requestID,
		Details:   details,
	})
	if err != nil {
		s.logger.Warn("journal write failed", "action", action, "control_id", controlID, "error", err)
	}
}

// handleListJournal returns journal entries, newest first.
// Query: ?action=&control=&limit=&offset=
func (s *Server) handleListJournal(w http.ResponseWriter, r *http.Request) {
	s.listJournal(w, r, r.URL.Query().Get("control"))
}

// handleControlJournal returns the journal of one control.
func (s *Server) handleControlJournal(w http.ResponseWriter, r *http.Request) {
	s.listJournal(w, r, chi.URLParam(r, "id"))
}

func (s *Server) listJournal(w http.ResponseWriter, r *http.Request, controlID string) {
	if s.journal == nil {
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "journal is not available")
		return
	}

	q := r.URL.Query()
	filter := audit.Filter{Action: q.Get("action"), ControlID: controlID}
	var err error
	if filter.Limit, err = queryInt(q.Get("limit")); err != nil {
		writeBadRequest(w, "limit must be an integer")
		return
	}
	if filter.Offset, err = queryInt(q.Get("offset")); err != nil {
		writeBadRequest(w, "offset must be an integer")
		return
	}

	page, err := s.journal.List(r.Context(), filter)
	if err != nil {
		s.logger.Error("listing journal failed", "error", err)
		writeInternalError(w, "failed to list journal")
		return
	}
	writeJSON(w, http.StatusOK, page)
}

func queryInt(raw string) (int, error) {
	if raw == "" {
		return 0, nil
	}
	return strconv.Atoi(raw)
}
