package api

import (
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/nerrad567/gray-logic-controls/internal/control"
	"github.com/nerrad567/gray-logic-controls/internal/entity"
	"github.com/nerrad567/gray-logic-controls/internal/modulehost"
	"github.com/nerrad567/gray-logic-controls/internal/pool"
)

func addEntity(t *testing.T, srv *Server, controlID, query string, m entity.Model) entity.Model {
	t.Helper()
	w := do(t, srv, http.MethodPost, "/api/v1/controls/"+controlID+"/entities?"+query, m)
	if w.Code != http.StatusCreated {
		t.Fatalf("add entity status = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[entity.Model](t, w)
}

func listEntities(t *testing.T, srv *Server, controlID, query string) []entity.Model {
	t.Helper()
	w := do(t, srv, http.MethodGet, "/api/v1/controls/"+controlID+"/entities?"+query, nil)
	if w.Code != http.StatusOK {
		t.Fatalf("list entities status = %d, body = %s", w.Code, w.Body.String())
	}
	return decode[struct {
		Entities []entity.Model `json:"entities"`
	}](t, w).Entities
}

func TestParseLocation(t *testing.T) {
	tests := []struct {
		name      string
		query     string
		wantLoc   pool.Location
		wantOwner *entity.Owner
		wantErr   bool
	}{
		{name: "fixed list", query: "list=feedbacks", wantLoc: pool.ListLocation("feedbacks")},
		{name: "action set", query: "step=0&set=down", wantLoc: pool.ActionSetLocation("0", pool.ActionSetDown)},
		{name: "numbered set normalised", query: "step=1&set=%200100", wantLoc: pool.ActionSetLocation("1", "100")},
		{name: "child group", query: "list=trigger_actions&parent=p1&group=children",
			wantLoc: pool.ListLocation("trigger_actions"), wantOwner: &entity.Owner{ParentID: "p1", ChildGroup: "children"}},
		{name: "invalid set", query: "step=0&set=sideways", wantErr: true},
		{name: "missing", query: "", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := httptest.NewRequest(http.MethodGet, "/x?"+tt.query, nil)
			loc, owner, err := parseLocation(r)
			if tt.wantErr {
				if err == nil {
					t.Fatal("expected error")
				}
				return
			}
			if err != nil {
				t.Fatalf("parseLocation() error = %v", err)
			}
			if loc != tt.wantLoc {
				t.Errorf("loc = %+v, want %+v", loc, tt.wantLoc)
			}
			if (owner == nil) != (tt.wantOwner == nil) || (owner != nil && *owner != *tt.wantOwner) {
				t.Errorf("owner = %+v, want %+v", owner, tt.wantOwner)
			}
		})
	}
}

func TestAddEntity_ActionSet(t *testing.T) {
	srv, _ := testServer(t)
	c := createControl(t, srv, "button", "Hall")

	added := addEntity(t, srv, c.ID, "step=0&set=down", entity.Model{
		ID:           "client-chosen",
		Type:         entity.TypeAction,
		DefinitionID: "send",
		ConnectionID: "knx-1",
		Options:      map[string]any{"value": 1.0},
	})
	if added.ID == "" || added.ID == "client-chosen" {
		t.Errorf("added entity should get a fresh ID, got %q", added.ID)
	}

	entities := listEntities(t, srv, c.ID, "step=0&set=down")
	if len(entities) != 1 || entities[0].ID != added.ID {
		t.Errorf("down set = %+v", entities)
	}
}

func TestAddEntity_Rejected(t *testing.T) {
	srv, _ := testServer(t)
	c := createControl(t, srv, "button", "Hall")

	// Feedback lists only accept feedbacks.
	w := do(t, srv, http.MethodPost, "/api/v1/controls/"+c.ID+"/entities?list=feedbacks",
		entity.Model{Type: entity.TypeAction, DefinitionID: "send"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("status = %d, want 422", w.Code)
	}
	if n := len(listEntities(t, srv, c.ID, "list=feedbacks")); n != 0 {
		t.Errorf("feedbacks = %d, want 0", n)
	}
}

func TestAddEntity_ExpressionVariableCap(t *testing.T) {
	srv, _ := testServer(t)
	c := createControl(t, srv, "expression_variable", "Temp")

	addEntity(t, srv, c.ID, "list=feedbacks", entity.Model{Type: entity.TypeFeedback, DefinitionID: "temp", ConnectionID: "c1"})
	w := do(t, srv, http.MethodPost, "/api/v1/controls/"+c.ID+"/entities?list=feedbacks",
		entity.Model{Type: entity.TypeFeedback, DefinitionID: "temp", ConnectionID: "c1"})
	if w.Code != http.StatusUnprocessableEntity {
		t.Errorf("second root entity status = %d, want 422", w.Code)
	}
	if n := len(listEntities(t, srv, c.ID, "list=feedbacks")); n != 1 {
		t.Errorf("root entities = %d, want 1", n)
	}
}

func TestAddEntity_UnknownList(t *testing.T) {
	srv, _ := testServer(t)
	c := createControl(t, srv, "button", "Hall")

	w := do(t, srv, http.MethodPost, "/api/v1/controls/"+c.ID+"/entities?step=9&set=down",
		entity.Model{Type: entity.TypeAction})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}

	w = do(t, srv, http.MethodGet, "/api/v1/controls/"+c.ID+"/entities?list=nope", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("list status = %d, want 404", w.Code)
	}
}

func TestUpdateEntity(t *testing.T) {
	srv, _ := testServer(t)
	c := createControl(t, srv, "button", "Hall")
	fb := addEntity(t, srv, c.ID, "list=feedbacks", entity.Model{Type: entity.TypeFeedback, DefinitionID: "on", ConnectionID: "knx-1"})

	headline := "Lit"
	inverted := true
	enabled := false
	w := do(t, srv, http.MethodPatch, "/api/v1/controls/"+c.ID+"/entities/"+fb.ID+"?list=feedbacks", UpdateEntityRequest{
		Options:    map[string]any{"ga": "1/2/3"},
		Headline:   &headline,
		IsInverted: &inverted,
		Enabled:    &enabled,
		Style:      map[string]any{"color": "#fff"},
	})
	if w.Code != http.StatusOK {
		t.Fatalf("status = %d, body = %s", w.Code, w.Body.String())
	}

	got := decode[entity.Model](t, w)
	if got.Options["ga"] != "1/2/3" {
		t.Errorf("options = %v", got.Options)
	}
	if got.Headline != "Lit" || !got.IsInverted || !got.Disabled {
		t.Errorf("updated = %+v", got)
	}
	if got.Style["color"] != "#fff" {
		t.Errorf("style = %v", got.Style)
	}
}

func TestUpdateEntity_NotFound(t *testing.T) {
	srv, _ := testServer(t)
	c := createControl(t, srv, "button", "Hall")

	headline := "x"
	w := do(t, srv, http.MethodPatch, "/api/v1/controls/"+c.ID+"/entities/missing?list=feedbacks", UpdateEntityRequest{Headline: &headline})
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}

func TestMoveDuplicateRemoveEntity(t *testing.T) {
	srv, _ := testServer(t)
	c := createControl(t, srv, "button", "Hall")
	a := addEntity(t, srv, c.ID, "step=0&set=down", entity.Model{Type: entity.TypeAction, DefinitionID: "a"})
	b := addEntity(t, srv, c.ID, "step=0&set=down", entity.Model{Type: entity.TypeAction, DefinitionID: "b"})

	w := do(t, srv, http.MethodPost, "/api/v1/controls/"+c.ID+"/entities/move?step=0&set=down", MoveEntityRequest{From: 1, To: 0})
	if w.Code != http.StatusNoContent {
		t.Fatalf("move status = %d, body = %s", w.Code, w.Body.String())
	}
	got := listEntities(t, srv, c.ID, "step=0&set=down")
	if got[0].ID != b.ID || got[1].ID != a.ID {
		t.Errorf("order after move = [%s %s], want [%s %s]", got[0].ID, got[1].ID, b.ID, a.ID)
	}

	w = do(t, srv, http.MethodPost, "/api/v1/controls/"+c.ID+"/entities/move?step=0&set=down", MoveEntityRequest{From: 0, To: 5})
	if w.Code != http.StatusBadRequest {
		t.Errorf("invalid move status = %d, want 400", w.Code)
	}

	w = do(t, srv, http.MethodPost, "/api/v1/controls/"+c.ID+"/entities/"+a.ID+"/duplicate?step=0&set=down", nil)
	if w.Code != http.StatusCreated {
		t.Fatalf("duplicate status = %d, body = %s", w.Code, w.Body.String())
	}
	cpy := decode[entity.Model](t, w)
	if cpy.ID == a.ID || cpy.DefinitionID != "a" {
		t.Errorf("copy = %+v", cpy)
	}
	if n := len(listEntities(t, srv, c.ID, "step=0&set=down")); n != 3 {
		t.Errorf("entities after duplicate = %d, want 3", n)
	}

	w = do(t, srv, http.MethodDelete, "/api/v1/controls/"+c.ID+"/entities/"+a.ID+"?step=0&set=down", nil)
	if w.Code != http.StatusNoContent {
		t.Fatalf("remove status = %d", w.Code)
	}
	w = do(t, srv, http.MethodDelete, "/api/v1/controls/"+c.ID+"/entities/"+a.ID+"?step=0&set=down", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("second remove status = %d, want 404", w.Code)
	}
}

func TestLearnEntity(t *testing.T) {
	learner := &fakeLearnClient{options: map[string]any{"level": 42.0}}
	srv, _ := testServer(t, func(_ *Deps, rd *control.Deps) { rd.Learn = learner })
	c := createControl(t, srv, "button", "Dimmer")
	a := addEntity(t, srv, c.ID, "step=0&set=down", entity.Model{
		Type: entity.TypeAction, DefinitionID: "dim", ConnectionID: "knx-1",
		Options: map[string]any{"level": 0.0, "fade": 2.0},
	})

	w := do(t, srv, http.MethodPost, "/api/v1/controls/"+c.ID+"/entities/"+a.ID+"/learn?step=0&set=down", nil)
	if w.Code != http.StatusOK {
		t.Fatalf("learn status = %d, body = %s", w.Code, w.Body.String())
	}
	if resp := decode[map[string]bool](t, w); !resp["learned"] {
		t.Errorf("learned = false, want true")
	}

	got := listEntities(t, srv, c.ID, "step=0&set=down")[0]
	if got.Options["level"] != 42.0 || got.Options["fade"] != 2.0 {
		t.Errorf("options after learn = %v", got.Options)
	}

	w = do(t, srv, http.MethodGet, "/api/v1/learning", nil)
	if ids := decode[map[string][]string](t, w)["ids"]; len(ids) != 0 {
		t.Errorf("learning ids = %v, want none", ids)
	}
}

func TestLearnEntity_Errors(t *testing.T) {
	tests := []struct {
		name     string
		learner  control.LearnClient
		wantCode int
	}{
		{name: "unavailable", learner: nil, wantCode: http.StatusServiceUnavailable},
		{name: "timeout", learner: &fakeLearnClient{err: modulehost.ErrLearnTimeout}, wantCode: http.StatusGatewayTimeout},
		{name: "no connection", learner: &fakeLearnClient{err: modulehost.ErrNoConnection}, wantCode: http.StatusUnprocessableEntity},
		{name: "remote failure", learner: &fakeLearnClient{err: errors.New("device offline")}, wantCode: http.StatusBadGateway},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			srv, _ := testServer(t, func(_ *Deps, rd *control.Deps) { rd.Learn = tt.learner })
			c := createControl(t, srv, "button", "Dimmer")
			a := addEntity(t, srv, c.ID, "step=0&set=down", entity.Model{Type: entity.TypeAction, ConnectionID: "knx-1"})

			w := do(t, srv, http.MethodPost, "/api/v1/controls/"+c.ID+"/entities/"+a.ID+"/learn?step=0&set=down", nil)
			if w.Code != tt.wantCode {
				t.Errorf("status = %d, want %d (body %s)", w.Code, tt.wantCode, w.Body.String())
			}
		})
	}
}

func TestLearnEntity_NotFound(t *testing.T) {
	srv, _ := testServer(t, func(_ *Deps, rd *control.Deps) { rd.Learn = &fakeLearnClient{} })
	c := createControl(t, srv, "button", "Dimmer")

	w := do(t, srv, http.MethodPost, "/api/v1/controls/"+c.ID+"/entities/missing/learn?step=0&set=down", nil)
	if w.Code != http.StatusNotFound {
		t.Errorf("status = %d, want 404", w.Code)
	}
}
