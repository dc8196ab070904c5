package api

import (
	"encoding/json"
	"errors"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/nerrad567/gray-logic-controls/internal/audit"
	"github.com/nerrad567/gray-logic-controls/internal/control"
)

// RPCRequest carries the arguments of every step and action-set method.
// Each method reads only the fields it needs.
type RPCRequest struct {
	ControlID    string `json:"controlId"`
	StepID       string `json:"stepId,omitempty"`
	StepID1      string `json:"stepId1,omitempty"`
	StepID2      string `json:"stepId2,omitempty"`
	SetID        string `json:"setId,omitempty"`
	OldSetID     string `json:"oldSetId,omitempty"`
	NewSetID     string `json:"newSetId,omitempty"`
	Name         string `json:"name,omitempty"`
	RunWhileHeld bool   `json:"runWhileHeld,omitempty"`
	Delta        int    `json:"delta,omitempty"`
}

// RPCResponse reports whether the method changed anything.
type RPCResponse struct {
	OK bool `json:"ok"`
}

type rpcMethod func(reg *control.Registry, req RPCRequest) (bool, error)

var rpcMethods = map[string]rpcMethod{
	"actionSets.add": func(reg *control.Registry, req RPCRequest) (bool, error) {
		return reg.ActionSetAdd(req.ControlID, req.StepID)
	},
	"actionSets.remove": func(reg *control.Registry, req RPCRequest) (bool, error) {
		return reg.ActionSetRemove(req.ControlID, req.StepID, req.SetID)
	},
	"actionSets.rename": func(reg *control.Registry, req RPCRequest) (bool, error) {
		return reg.ActionSetRename(req.ControlID, req.StepID, req.OldSetID, req.NewSetID)
	},
	"actionSets.setRunWhileHeld": func(reg *control.Registry, req RPCRequest) (bool, error) {
		return reg.ActionSetRunWhileHeld(req.ControlID, req.StepID, req.SetID, req.RunWhileHeld)
	},
	"steps.add": func(reg *control.Registry, req RPCRequest) (bool, error) {
		return reg.StepAdd(req.ControlID)
	},
	"steps.duplicate": func(reg *control.Registry, req RPCRequest) (bool, error) {
		return reg.StepDuplicate(req.ControlID, req.StepID)
	},
	"steps.remove": func(reg *control.Registry, req RPCRequest) (bool, error) {
		return reg.StepRemove(req.ControlID, req.StepID)
	},
	"steps.swap": func(reg *control.Registry, req RPCRequest) (bool, error) {
		return reg.StepSwap(req.ControlID, req.StepID1, req.StepID2)
	},
	"steps.setCurrent": func(reg *control.Registry, req RPCRequest) (bool, error) {
		return reg.StepSetCurrent(req.ControlID, req.StepID)
	},
	"steps.rename": func(reg *control.Registry, req RPCRequest) (bool, error) {
		return reg.StepRename(req.ControlID, req.StepID, req.Name)
	},
	"steps.advance": func(reg *control.Registry, req RPCRequest) (bool, error) {
		return reg.StepAdvance(req.ControlID, req.Delta)
	},
}

// handleRPC dispatches a step or action-set method.
//
// An unknown control answers {"ok": false}. A control without steps
// answers 422 with the unsupported-operation message verbatim.
func (s *Server) handleRPC(w http.ResponseWriter, r *http.Request) {
	name := chi.URLParam(r, "method")
	method, ok := rpcMethods[name]
	if !ok {
		writeNotFound(w, "unknown method: "+name)
		return
	}

	var req RPCRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		writeBadRequest(w, "invalid JSON body")
		return
	}
	if req.ControlID == "" {
		writeBadRequest(w, "controlId is required")
		return
	}

	changed, err := method(s.registry, req)
	if err != nil {
		if errors.Is(err, control.ErrUnsupportedOperation) {
			writeError(w, http.StatusUnprocessableEntity, ErrCodeUnsupported, err.Error())
			return
		}
		s.logger.Error("rpc failed", "method", name, "control_id", req.ControlID, "error", err)
		writeInternalError(w, "rpc failed")
		return
	}

	s.logger.Debug("rpc", "method", name, "control_id", req.ControlID, "ok", changed)
	if changed {
		s.record(r, audit.ActionRPC, req.ControlID, "", map[string]any{"method": name})
	}
	writeJSON(w, http.StatusOK, RPCResponse{OK: changed})
}
