package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-controls/internal/audit"
	"github.com/nerrad567/gray-logic-controls/internal/control"
	"github.com/nerrad567/gray-logic-controls/internal/entity"
	"github.com/nerrad567/gray-logic-controls/internal/pool"
)

// CreateControlRequest is the body of POST /controls.
type CreateControlRequest struct {
	Kind pool.Kind `json:"kind"`
	Name string    `json:"name"`
}

// UpdateControlRequest is the body of PATCH /controls/{id}. Nil fields are
// left unchanged.
type UpdateControlRequest struct {
	Name          *string `json:"name,omitempty"`
	RotaryActions *bool   `json:"rotaryActions,omitempty"`
}

// handleListControls returns every control.
func (s *Server) handleListControls(w http.ResponseWriter, _ *http.Request) {
	controls := s.registry.ListControls()
	writeJSON(w, http.StatusOK, map[string]any{
		"controls": controls,
		"count":    len(controls),
	})
}

// handleCreateControl creates an empty control of the requested kind.
func (s *Server) handleCreateControl(w http.ResponseWriter, r *http.Request) {
	var req CreateControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	c, err := s.registry.CreateControl(r.Context(), req.Kind, req.Name)
	if err != nil {
		s.writeControlError(w, "create", err)
		return
	}
	s.record(r, audit.ActionCreate, c.ID(), "", map[string]any{"kind": req.Kind, "name": req.Name})
	writeJSON(w, http.StatusCreated, c.Snapshot())
}

// handleImportControl loads a control from an exported record. The model
// is normalised the same way stored controls are.
func (s *Server) handleImportControl(w http.ResponseWriter, r *http.Request) {
	var rec control.Record
	if err := json.NewDecoder(r.Body).Decode(&rec); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	c, err := s.registry.ImportControl(r.Context(), rec)
	if err != nil {
		s.writeControlError(w, "import", err)
		return
	}
	s.record(r, audit.ActionImport, c.ID(), "", map[string]any{"kind": rec.Kind})
	writeJSON(w, http.StatusCreated, c.Snapshot())
}

// handleGetControl returns a single control.
func (s *Server) handleGetControl(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookupControl(w, r)
	if !ok {
		return
	}
	writeJSON(w, http.StatusOK, c.Snapshot())
}

// handleUpdateControl renames a control or toggles rotary actions.
func (s *Server) handleUpdateControl(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookupControl(w, r)
	if !ok {
		return
	}

	var req UpdateControlRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	if req.RotaryActions != nil && !c.SupportsSteps() {
		writeError(w, http.StatusUnprocessableEntity, ErrCodeUnsupported, control.ErrUnsupportedOperation.Error())
		return
	}
	if req.Name != nil {
		c.SetName(*req.Name)
	}
	if req.RotaryActions != nil {
		c.SetRotaryActions(*req.RotaryActions)
	}
	s.record(r, audit.ActionUpdate, c.ID(), "", updateDetails(req))

	writeJSON(w, http.StatusOK, c.Snapshot())
}

// handleDeleteControl removes a control.
func (s *Server) handleDeleteControl(w http.ResponseWriter, r *http.Request) {
	id := chi.URLParam(r, "id")
	if err := s.registry.DeleteControl(r.Context(), id); err != nil {
		s.writeControlError(w, "delete", err)
		return
	}
	s.record(r, audit.ActionDelete, id, "", nil)
	w.WriteHeader(http.StatusNoContent)
}

// handleGetControlStyle returns the merged feedback style of a control.
func (s *Server) handleGetControlStyle(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookupControl(w, r)
	if !ok {
		return
	}
	style := c.Style()
	if style == nil {
		style = entity.Style{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"style": style})
}

// handleGetControlFeedbacks returns the feedback entities of a control with
// their cached values.
func (s *Server) handleGetControlFeedbacks(w http.ResponseWriter, r *http.Request) {
	c, ok := s.lookupControl(w, r)
	if !ok {
		return
	}
	var feedbacks []entity.Model
	c.View(func(p *pool.Pool) {
		feedbacks = p.GetFeedbackEntities(true)
	})
	if feedbacks == nil {
		feedbacks = []entity.Model{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"feedbacks": feedbacks})
}

// lookupControl resolves {id}, writing a 404 when it is unknown.
func (s *Server) lookupControl(w http.ResponseWriter, r *http.Request) (*control.Control, bool) {
	c, err := s.registry.GetControl(chi.URLParam(r, "id"))
	if err != nil {
		writeNotFound(w, "control not found")
		return nil, false
	}
	return c, true
}

// writeControlError maps registry errors to responses.
func (s *Server) writeControlError(w http.ResponseWriter, op string, err error) {
	switch {
	case errors.Is(err, control.ErrControlNotFound):
		writeNotFound(w, "control not found")
	case errors.Is(err, control.ErrControlExists):
		writeConflict(w, "control already exists")
	case errors.Is(err, control.ErrInvalidKind):
		writeValidationError(w, err.Error())
	default:
		s.logger.Error("control "+op+" failed", "error", err)
		writeInternalError(w, "failed to "+op+" control")
	}
}

func updateDetails(req UpdateControlRequest) map[string]any {
	details := map[string]any{}
	if req.Name != nil {
		details["name"] = *req.Name
	}
	if req.RotaryActions != nil {
		details["rotaryActions"] = *req.RotaryActions
	}
	return details
}
