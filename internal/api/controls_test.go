package api

import (
	"net/http"
	"testing"

	"github.com/nerrad567/gray-logic-controls/internal/control"
	"github.com/nerrad567/gray-logic-controls/internal/entity"
	"github.com/nerrad567/gray-logic-controls/internal/pool"
)

func TestListControls_Empty(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/controls", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", w.Code)
	}
	resp := decode[struct {
		Controls []control.Snapshot `json:"controls"`
		Count    int                `json:"count"`
	}](t, w)
	if resp.Count != 0 || len(resp.Controls) != 0 {
		t.Errorf("got %d controls, want 0", resp.Count)
	}
}

func TestCreateAndGetControl(t *testing.T) {
	srv, _ := testServer(t)

	created := createControl(t, srv, "button", "Hall light")
	if created.ID == "" {
		t.Fatal("created control has no ID")
	}
	if created.Kind != pool.KindButton || created.Name != "Hall light" {
		t.Errorf("created = %+v", created.Record)
	}
	if created.ActiveStepID != "0" {
		t.Errorf("ActiveStepID = %q, want 0", created.ActiveStepID)
	}

	w := do(t, srv, http.MethodGet, "/api/v1/controls/"+created.ID, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("get status = %d", w.Code)
	}
	got := decode[control.Snapshot](t, w)
	if got.ID != created.ID {
		t.Errorf("ID = %q, want %q", got.ID, created.ID)
	}
	if _, ok := got.Storage.Steps["0"].ActionSets["down"]; !ok {
		t.Errorf("new button has no down set: %+v", got.Storage.Steps)
	}

	w = do(t, srv, http.MethodGet, "/api/v1/controls", nil)
	list := decode[struct {
		Count int `json:"count"`
	}](t, w)
	if list.Count != 1 {
		t.Errorf("count = %d, want 1", list.Count)
	}
}

func TestCreateControl_Trigger(t *testing.T) {
	srv, _ := testServer(t)

	created := createControl(t, srv, "trigger", "Dusk")
	if created.Condition == nil {
		t.Fatal("trigger snapshot has no condition")
	}
	if created.ActiveStepID != "" {
		t.Errorf("trigger ActiveStepID = %q, want empty", created.ActiveStepID)
	}
}

func TestCreateControl_InvalidKind(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodPost, "/api/v1/controls", CreateControlRequest{Kind: "slider"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
}

func TestGetControl_NotFound(t *testing.T) {
	srv, _ := testServer(t)

	w := do(t, srv, http.MethodGet, "/api/v1/controls/missing", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestUpdateControl(t *testing.T) {
	srv, reg := testServer(t)
	created := createControl(t, srv, "button", "Old")

	name := "New"
	rotary := true
	w := do(t, srv, http.MethodPatch, "/api/v1/controls/"+created.ID, UpdateControlRequest{Name: &name, RotaryActions: &rotary})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	got := decode[control.Snapshot](t, w)
	if got.Name != "New" || !got.RotaryActions {
		t.Errorf("updated = %+v", got.Record)
	}
	if _, ok := got.Storage.Steps["0"].ActionSets["rotate_left"]; !ok {
		t.Error("rotary actions did not add rotate_left")
	}

	c, err := reg.GetControl(created.ID)
	if err != nil {
		t.Fatalf("GetControl: %v", err)
	}
	if c.Name() != "New" {
		t.Errorf("registry name = %q", c.Name())
	}
}

func TestUpdateControl_RotaryOnTrigger(t *testing.T) {
	srv, _ := testServer(t)
	created := createControl(t, srv, "trigger", "Dusk")

	rotary := true
	w := do(t, srv, http.MethodPatch, "/api/v1/controls/"+created.ID, UpdateControlRequest{RotaryActions: &rotary})
	if w.Code != http.StatusUnprocessableEntity {
		t.Fatalf("status = %d, want 422", w.Code)
	}
	resp := decode[Error](t, w)
	if resp.Message != "Control does not support this operation" {
		t.Errorf("message = %q", resp.Message)
	}
}

func TestDeleteControl(t *testing.T) {
	srv, _ := testServer(t)
	created := createControl(t, srv, "button", "Gone")

	w := do(t, srv, http.MethodDelete, "/api/v1/controls/"+created.ID, nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("delete status = %d", w.Code)
	}

	w = do(t, srv, http.MethodGet, "/api/v1/controls/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("get after delete status = %d, want 404", w.Code)
	}

	w = do(t, srv, http.MethodDelete, "/api/v1/controls/"+created.ID, nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second delete status = %d, want 404", w.Code)
	}
}

func TestImportControl(t *testing.T) {
	srv, _ := testServer(t)

	rec := control.Record{
		ID:   "imported",
		Kind: pool.KindButton,
		Name: "Imported",
		Storage: pool.Storage{
			Steps: map[string]pool.StepModel{
				"0": {ActionSets: map[string][]entity.Model{
					"down":  {{ID: "a1", Type: entity.TypeAction, ConnectionID: "c1", DefinitionID: "send"}},
					"bogus": {{ID: "a2", Type: entity.TypeAction}},
				}},
			},
		},
	}

	w := do(t, srv, http.MethodPost, "/api/v1/controls/import", rec)
	if w.Code != http.StatusCreated {
		t.Fatalf("import status = %d, body = %s", w.Code, w.Body.String())
	}
	got := decode[control.Snapshot](t, w)
	if got.ID != "imported" {
		t.Errorf("ID = %q, want imported", got.ID)
	}
	step := got.Storage.Steps["0"]
	if _, ok := step.ActionSets["bogus"]; ok {
		t.Error("invalid action set survived import")
	}
	down := step.ActionSets["down"]
	if len(down) != 1 || down[0].ID == "a1" {
		t.Errorf("imported entity should get a fresh ID, got %+v", down)
	}

	w = do(t, srv, http.MethodPost, "/api/v1/controls/import", rec)
	if w.Code != http.StatusConflict {
		t.Errorf("duplicate import status = %d, want 409", w.Code)
	}
}

func TestGetControlStyle(t *testing.T) {
	srv, reg := testServer(t)
	created := createControl(t, srv, "button", "Lamp")

	w := do(t, srv, http.MethodPost, "/api/v1/controls/"+created.ID+"/entities?list=feedbacks", entity.Model{
		Type:         entity.TypeFeedback,
		DefinitionID: "on",
		ConnectionID: "knx-1",
		Style:        entity.Style{"bgcolor": "#ff0000"},
	})
	if w.Code != http.StatusCreated {
		t.Fatalf("add feedback status = %d, body = %s", w.Code, w.Body.String())
	}
	fb := decode[entity.Model](t, w)

	w = do(t, srv, http.MethodGet, "/api/v1/controls/"+created.ID+"/style", nil)
	empty := decode[struct {
		Style entity.Style `json:"style"`
	}](t, w)
	if len(empty.Style) != 0 {
		t.Errorf("style before value = %v, want empty", empty.Style)
	}

	reg.UpdateFeedbackValues("knx-1", []entity.FeedbackValue{{ID: fb.ID, Value: true}})

	w = do(t, srv, http.MethodGet, "/api/v1/controls/"+created.ID+"/style", nil)
	lit := decode[struct {
		Style entity.Style `json:"style"`
	}](t, w)
	if lit.Style["bgcolor"] != "#ff0000" {
		t.Errorf("style = %v, want bgcolor #ff0000", lit.Style)
	}

	w = do(t, srv, http.MethodGet, "/api/v1/controls/"+created.ID+"/feedbacks", nil)
	feedbacks := decode[struct {
		Feedbacks []entity.Model `json:"feedbacks"`
	}](t, w)
	if len(feedbacks.Feedbacks) != 1 || feedbacks.Feedbacks[0].CachedValue != true {
		t.Errorf("feedbacks = %+v", feedbacks.Feedbacks)
	}
}
