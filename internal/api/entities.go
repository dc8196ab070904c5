package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"sort"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-controls/internal/audit"
	"github.com/nerrad567/gray-logic-controls/internal/control"
	"github.com/nerrad567/gray-logic-controls/internal/entity"
	"github.com/nerrad567/gray-logic-controls/internal/learn"
	"github.com/nerrad567/gray-logic-controls/internal/modulehost"
	"github.com/nerrad567/gray-logic-controls/internal/pool"
)

// MoveEntityRequest is the body of POST /entities/move.
type MoveEntityRequest struct {
	From int `json:"from"`
	To   int `json:"to"`
}

// UpdateEntityRequest is the body of PATCH /entities/{entityId}. Nil fields
// are left unchanged. Style keys with a null value are removed.
type UpdateEntityRequest struct {
	Options      map[string]any `json:"options,omitempty"`
	Enabled      *bool          `json:"enabled,omitempty"`
	Headline     *string        `json:"headline,omitempty"`
	ConnectionID *string        `json:"connectionId,omitempty"`
	IsInverted   *bool          `json:"isInverted,omitempty"`
	Style        map[string]any `json:"style,omitempty"`
	VariableName *string        `json:"variableName,omitempty"`
}

// parseLocation reads the list address from the query string.
func parseLocation(r *http.Request) (pool.Location, *entity.Owner, error) {
	q := r.URL.Query()

	var loc pool.Location
	switch stepID := q.Get("step"); {
	case stepID != "":
		setID, ok := pool.ParseActionSetID(q.Get("set"))
		if !ok {
			return loc, nil, fmt.Errorf("invalid action set %q", q.Get("set"))
		}
		loc = pool.ActionSetLocation(stepID, setID)
	case q.Get("list") != "":
		loc = pool.ListLocation(q.Get("list"))
	default:
		return loc, nil, errors.New("list or step query parameter is required")
	}

	var owner *entity.Owner
	if parent := q.Get("parent"); parent != "" {
		owner = &entity.Owner{ParentID: parent, ChildGroup: q.Get("group")}
	}
	return loc, owner, nil
}

// entityTarget resolves the control and location of an entity request.
func (s *Server) entityTarget(w http.ResponseWriter, r *http.Request) (*control.Control, pool.Location, *entity.Owner, bool) {
	c, ok := s.lookupControl(w, r)
	if !ok {
		return nil, pool.Location{}, nil, false
	}
	loc, owner, err := parseLocation(r)
	if err != nil {
		writeBadRequest(w, err.Error())
		return nil, pool.Location{}, nil, false
	}
	return c, loc, owner, true
}

// handleListEntities returns the entities of one list with cached values.
func (s *Server) handleListEntities(w http.ResponseWriter, r *http.Request) {
	c, loc, _, ok := s.entityTarget(w, r)
	if !ok {
		return
	}

	var (
		models []entity.Model
		found  bool
	)
	c.View(func(p *pool.Pool) {
		list, listOK := p.GetEntityList(loc)
		if listOK {
			models = list.AsModels(true)
			found = true
		}
	})
	if !found {
		writeNotFound(w, "entity list not found")
		return
	}
	if models == nil {
		models = []entity.Model{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entities": models})
}

// handleAddEntity adds an entity. The entity always receives a fresh ID.
func (s *Server) handleAddEntity(w http.ResponseWriter, r *http.Request) {
	c, loc, owner, ok := s.entityTarget(w, r)
	if !ok {
		return
	}

	var m entity.Model
	if err := json.NewDecoder(r.Body).Decode(&m); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var added entity.Model
	err := c.Edit(func(p *pool.Pool) error {
		e, addErr := p.AddEntity(loc, owner, m)
		if addErr != nil {
			return addErr
		}
		added = e.ToModel(false)
		return nil
	})
	if err != nil {
		s.writePoolError(w, err)
		return
	}
	s.record(r, audit.ActionEntityAdd, c.ID(), added.ID, locationDetails(loc))
	writeJSON(w, http.StatusCreated, added)
}

// handleMoveEntity reorders an entity within its list.
func (s *Server) handleMoveEntity(w http.ResponseWriter, r *http.Request) {
	c, loc, owner, ok := s.entityTarget(w, r)
	if !ok {
		return
	}

	var req MoveEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	err := c.Edit(func(p *pool.Pool) error {
		return p.MoveEntity(loc, owner, req.From, req.To)
	})
	if err != nil {
		s.writePoolError(w, err)
		return
	}
	details := locationDetails(loc)
	details["from"], details["to"] = req.From, req.To
	s.record(r, audit.ActionEntityMove, c.ID(), "", details)
	w.WriteHeader(http.StatusNoContent)
}

// handleUpdateEntity applies the fields present in the body.
func (s *Server) handleUpdateEntity(w http.ResponseWriter, r *http.Request) {
	c, loc, _, ok := s.entityTarget(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "entityId")

	var req UpdateEntityRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}

	var updated entity.Model
	err := c.Edit(func(p *pool.Pool) error {
		if err := applyEntityUpdate(p, loc, id, req); err != nil {
			return err
		}
		e, found := p.FindEntity(loc, id)
		if !found {
			return pool.ErrEntityNotFound
		}
		updated = e.ToModel(true)
		return nil
	})
	if err != nil {
		s.writePoolError(w, err)
		return
	}
	s.record(r, audit.ActionEntityEdit, c.ID(), id, locationDetails(loc))
	writeJSON(w, http.StatusOK, updated)
}

func applyEntityUpdate(p *pool.Pool, loc pool.Location, id string, req UpdateEntityRequest) error {
	if req.Options != nil {
		if err := p.SetEntityOptions(loc, id, req.Options); err != nil {
			return err
		}
	}
	if req.Enabled != nil {
		if err := p.SetEntityEnabled(loc, id, *req.Enabled); err != nil {
			return err
		}
	}
	if req.Headline != nil {
		if err := p.SetEntityHeadline(loc, id, *req.Headline); err != nil {
			return err
		}
	}
	if req.ConnectionID != nil {
		if err := p.SetEntityConnection(loc, id, *req.ConnectionID); err != nil {
			return err
		}
	}
	if req.IsInverted != nil {
		if err := p.SetFeedbackInverted(loc, id, *req.IsInverted); err != nil {
			return err
		}
	}
	if len(req.Style) > 0 {
		keys := make([]string, 0, len(req.Style))
		for k := range req.Style {
			keys = append(keys, k)
		}
		sort.Strings(keys)
		for _, k := range keys {
			if err := p.SetFeedbackStyleValue(loc, id, k, req.Style[k]); err != nil {
				return err
			}
		}
	}
	if req.VariableName != nil {
		if err := p.SetLocalVariableName(loc, id, *req.VariableName); err != nil {
			return err
		}
	}
	return nil
}

// handleRemoveEntity removes an entity at any depth.
func (s *Server) handleRemoveEntity(w http.ResponseWriter, r *http.Request) {
	c, loc, _, ok := s.entityTarget(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "entityId")

	err := c.Edit(func(p *pool.Pool) error {
		return p.RemoveEntity(loc, id)
	})
	if err != nil {
		s.writePoolError(w, err)
		return
	}
	s.record(r, audit.ActionEntityDrop, c.ID(), id, locationDetails(loc))
	w.WriteHeader(http.StatusNoContent)
}

// handleDuplicateEntity inserts a copy directly after the entity.
func (s *Server) handleDuplicateEntity(w http.ResponseWriter, r *http.Request) {
	c, loc, _, ok := s.entityTarget(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "entityId")

	var cpy entity.Model
	err := c.Edit(func(p *pool.Pool) error {
		e, dupErr := p.DuplicateEntity(loc, id)
		if dupErr != nil {
			return dupErr
		}
		cpy = e.ToModel(false)
		return nil
	})
	if err != nil {
		s.writePoolError(w, err)
		return
	}
	details := locationDetails(loc)
	details["source"] = id
	s.record(r, audit.ActionEntityAdd, c.ID(), cpy.ID, details)
	writeJSON(w, http.StatusCreated, cpy)
}

// handleLearnEntity asks the entity's connection for its current options.
func (s *Server) handleLearnEntity(w http.ResponseWriter, r *http.Request) {
	c, loc, _, ok := s.entityTarget(w, r)
	if !ok {
		return
	}
	id := chi.URLParam(r, "entityId")

	var found bool
	c.View(func(p *pool.Pool) {
		_, found = p.FindEntity(loc, id)
	})
	if !found {
		writeNotFound(w, "entity not found")
		return
	}

	learned, err := s.registry.LearnEntityOptions(r.Context(), c.ID(), loc, id)
	switch {
	case err == nil:
		if learned {
			s.record(r, audit.ActionEntityLearn, c.ID(), id, locationDetails(loc))
		}
		writeJSON(w, http.StatusOK, map[string]any{"learned": learned})
	case errors.Is(err, learn.ErrLearnRunning):
		writeConflict(w, "learn is already running")
	case errors.Is(err, control.ErrLearnUnavailable):
		writeError(w, http.StatusServiceUnavailable, ErrCodeUnavailable, "learning is not available")
	case errors.Is(err, modulehost.ErrNoConnection):
		writeValidationError(w, "entity has no connection")
	case errors.Is(err, modulehost.ErrLearnTimeout):
		writeError(w, http.StatusGatewayTimeout, ErrCodeUnavailable, "connection did not answer in time")
	default:
		s.logger.Warn("learn failed", "control_id", c.ID(), "entity_id", id, "error", err)
		writeError(w, http.StatusBadGateway, ErrCodeUnavailable, err.Error())
	}
}

// handleListLearning returns the entity IDs with a learn in flight.
func (s *Server) handleListLearning(w http.ResponseWriter, _ *http.Request) {
	ids := s.registry.LearningIDs()
	if ids == nil {
		ids = []string{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"ids": ids})
}

// writePoolError maps pool edit errors to responses.
func (s *Server) writePoolError(w http.ResponseWriter, err error) {
	switch {
	case errors.Is(err, pool.ErrListNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, pool.ErrEntityNotFound):
		writeNotFound(w, err.Error())
	case errors.Is(err, pool.ErrEntityRejected):
		writeValidationError(w, err.Error())
	case errors.Is(err, pool.ErrInvalidIndex):
		writeBadRequest(w, err.Error())
	default:
		s.logger.Error("entity edit failed", "error", err)
		writeInternalError(w, "entity edit failed")
	}
}

func locationDetails(loc pool.Location) map[string]any {
	if loc.List != "" {
		return map[string]any{"list": loc.List}
	}
	return map[string]any{"step": loc.StepID, "set": string(loc.SetID)}
}
