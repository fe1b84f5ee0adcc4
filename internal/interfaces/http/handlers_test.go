package http

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/formdesk/flowengine/internal/domain/form"
	"github.com/formdesk/flowengine/internal/domain/template"
	"github.com/formdesk/flowengine/internal/engine/methodology"
	"github.com/formdesk/flowengine/internal/engine/workflow"
)

type testLogger struct{}

func (testLogger) Info(msg string, keysAndValues ...interface{})  {}
func (testLogger) Warn(msg string, keysAndValues ...interface{})  {}
func (testLogger) Error(msg string, keysAndValues ...interface{}) {}

type templateServiceStub struct {
	byID map[int64]*template.Template
}

func (s *templateServiceStub) CreateTemplate(ctx context.Context, tpl *template.Template) error {
	if tpl.TenantID == "" {
		return fmt.Errorf("template tenant_id is required")
	}
	tpl.ID = 1
	return nil
}

func (s *templateServiceStub) GetTemplate(ctx context.Context, id int64) (*template.Template, error) {
	if tpl, ok := s.byID[id]; ok {
		return tpl, nil
	}
	return nil, fmt.Errorf("template %d not found", id)
}

func (s *templateServiceStub) ListTemplates(ctx context.Context, tenantID string, limit, offset int) ([]*template.Template, error) {
	var out []*template.Template
	for _, tpl := range s.byID {
		if tpl.TenantID == tenantID {
			out = append(out, tpl)
		}
	}
	return out, nil
}

func (s *templateServiceStub) UpdateTemplate(ctx context.Context, tpl *template.Template) (*template.Template, error) {
	if _, ok := s.byID[tpl.ID]; !ok {
		return nil, fmt.Errorf("template %d not found", tpl.ID)
	}
	return tpl, nil
}

func (s *templateServiceStub) PublishTemplate(ctx context.Context, id int64) error {
	tpl, ok := s.byID[id]
	if !ok {
		return fmt.Errorf("template %d not found", id)
	}
	tpl.Published = true
	return nil
}

func (s *templateServiceStub) ApplyMethodology(ctx context.Context, id int64, m template.Methodology) (*template.Template, error) {
	tpl, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("template %d not found", id)
	}
	if tpl.Published {
		return nil, fmt.Errorf("cannot apply methodology to a published template")
	}
	tpl.Methodology = m
	return tpl, nil
}

type formServiceStub struct {
	byID       map[int64]*form.Instance
	transition *workflow.TransitionResult
}

func (s *formServiceStub) CreateInstance(ctx context.Context, tenantID string, templateID int64, createdBy string, data map[string]any) (*form.Instance, error) {
	if templateID != 11 {
		return nil, fmt.Errorf("template %d is not published", templateID)
	}
	return &form.Instance{ID: 1, TenantID: tenantID, TemplateID: templateID, CreatedBy: createdBy, Status: form.StatusDraft, Data: data}, nil
}

func (s *formServiceStub) GetInstance(ctx context.Context, id int64) (*form.Instance, error) {
	if inst, ok := s.byID[id]; ok {
		return inst, nil
	}
	return nil, fmt.Errorf("instance %d not found", id)
}

func (s *formServiceStub) UpdateDraft(ctx context.Context, id int64, actorID string, data map[string]any) (*form.Instance, error) {
	inst, ok := s.byID[id]
	if !ok {
		return nil, fmt.Errorf("instance %d not found", id)
	}
	inst.Data = data
	return inst, nil
}

func (s *formServiceStub) Transition(ctx context.Context, instanceID int64, req workflow.Request) (*workflow.TransitionResult, error) {
	if _, ok := s.byID[instanceID]; !ok {
		return nil, fmt.Errorf("instance %d not found", instanceID)
	}
	return s.transition, nil
}

func (s *formServiceStub) NextStep(ctx context.Context, instanceID int64) (*workflow.StepInfo, error) {
	if _, ok := s.byID[instanceID]; !ok {
		return nil, fmt.Errorf("instance %d not found", instanceID)
	}
	return &workflow.StepInfo{CurrentStep: "manager_review", AvailableActions: []workflow.Action{workflow.ActionApprove}}, nil
}

func (s *formServiceStub) ListHistory(ctx context.Context, instanceID int64) ([]*form.HistoryEntry, error) {
	return []*form.HistoryEntry{{InstanceID: instanceID, Action: "submit"}}, nil
}

func (s *formServiceStub) ListByTemplate(ctx context.Context, templateID int64, limit, offset int) ([]*form.Instance, error) {
	return nil, nil
}

type escalationServiceStub struct {
	candidates []workflow.EscalationCandidate
	notified   int
}

func (s *escalationServiceStub) Scan(ctx context.Context, tenantID string) ([]workflow.EscalationCandidate, error) {
	return s.candidates, nil
}

func (s *escalationServiceStub) NotifyCandidates(ctx context.Context, tenantID string, candidates []workflow.EscalationCandidate) int {
	s.notified = len(candidates)
	return s.notified
}

func newTestServer(t *testing.T) (*Server, *templateServiceStub, *formServiceStub, *escalationServiceStub) {
	t.Helper()

	templates := &templateServiceStub{byID: map[int64]*template.Template{
		11: {ID: 11, TenantID: "acme", Name: "Purchase Request"},
	}}
	forms := &formServiceStub{
		byID: map[int64]*form.Instance{
			1: {ID: 1, TenantID: "acme", TemplateID: 11, CreatedBy: "alice", Status: form.StatusUnderReview},
		},
		transition: &workflow.TransitionResult{Success: true, FormStatus: form.StatusApproved, NewStep: form.StepCompleted},
	}
	escalations := &escalationServiceStub{}

	registry := methodology.NewRegistry(testLogger{})
	srv := NewServer(DefaultServerConfig(), templates, forms, escalations, registry, nil, testLogger{})
	return srv, templates, forms, escalations
}

func doJSON(t *testing.T, srv *Server, method, path string, body any) *httptest.ResponseRecorder {
	t.Helper()

	var buf bytes.Buffer
	if body != nil {
		require.NoError(t, json.NewEncoder(&buf).Encode(body))
	}
	req := httptest.NewRequest(method, path, &buf)
	req.Header.Set("Content-Type", "application/json")

	w := httptest.NewRecorder()
	srv.Router().ServeHTTP(w, req)
	return w
}

func decode(t *testing.T, w *httptest.ResponseRecorder) Response {
	t.Helper()
	var resp Response
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &resp))
	return resp
}

func TestHealthCheck(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/health", nil)

	assert.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode(t, w).Success)
}

func TestGetTemplate(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/api/templates/11", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/templates/99", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/templates/abc", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestListTemplates_RequiresTenant(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/api/templates", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/templates?tenant_id=acme", nil)
	assert.Equal(t, http.StatusOK, w.Code)
}

func TestApplyMethodology(t *testing.T) {
	srv, templates, _, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/templates/11/methodology", MethodologyRequest{Methodology: "usaid"})
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, template.Methodology("usaid"), templates.byID[11].Methodology)

	templates.byID[11].Published = true
	w = doJSON(t, srv, http.MethodPost, "/api/templates/11/methodology", MethodologyRequest{Methodology: "eu_echo"})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)
}

func TestGetMethodologyRequirements(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/api/methodologies/usaid/requirements", nil)
	require.Equal(t, http.StatusOK, w.Code)

	var body struct {
		Success bool                    `json:"success"`
		Data    MethodologyRequirements `json:"data"`
	}
	require.NoError(t, json.Unmarshal(w.Body.Bytes(), &body))
	assert.True(t, body.Success)
	assert.Equal(t, "usaid", body.Data.Methodology)
	assert.NotEmpty(t, body.Data.Requirements)
	assert.NotEmpty(t, body.Data.Compliance.Level)

	w = doJSON(t, srv, http.MethodGet, "/api/methodologies/unknown/requirements", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
	assert.False(t, decode(t, w).Success)
}

func TestCreateInstance(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/instances", CreateInstanceRequest{
		TenantID:   "acme",
		TemplateID: 11,
		CreatedBy:  "alice",
		Data:       map[string]any{"title": "Laptops"},
	})
	assert.Equal(t, http.StatusCreated, w.Code)

	// Unpublished template is a domain refusal, not a server error.
	w = doJSON(t, srv, http.MethodPost, "/api/instances", CreateInstanceRequest{
		TenantID:   "acme",
		TemplateID: 12,
		CreatedBy:  "alice",
	})
	assert.Equal(t, http.StatusUnprocessableEntity, w.Code)

	// Missing required fields fail binding.
	w = doJSON(t, srv, http.MethodPost, "/api/instances", map[string]any{"tenant_id": "acme"})
	assert.Equal(t, http.StatusBadRequest, w.Code)
}

func TestApplyAction(t *testing.T) {
	srv, _, forms, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodPost, "/api/instances/1/actions", ActionRequest{
		Action:     "approve",
		ActorID:    "bob",
		ActorRoles: []string{"manager"},
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.True(t, decode(t, w).Success)

	// A refused transition is still a 200; success=false carries the detail.
	forms.transition = &workflow.TransitionResult{Success: false, Message: "actor lacks role manager", FormStatus: form.StatusUnderReview}
	w = doJSON(t, srv, http.MethodPost, "/api/instances/1/actions", ActionRequest{
		Action:  "approve",
		ActorID: "mallory",
	})
	require.Equal(t, http.StatusOK, w.Code)
	assert.False(t, decode(t, w).Success)
}

func TestNextStepAndHistory(t *testing.T) {
	srv, _, _, _ := newTestServer(t)

	w := doJSON(t, srv, http.MethodGet, "/api/instances/1/next-step", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/instances/1/history", nil)
	assert.Equal(t, http.StatusOK, w.Code)

	w = doJSON(t, srv, http.MethodGet, "/api/instances/99/next-step", nil)
	assert.Equal(t, http.StatusNotFound, w.Code)
}

func TestScanEscalations(t *testing.T) {
	srv, _, _, escalations := newTestServer(t)
	escalations.candidates = []workflow.EscalationCandidate{
		{InstanceID: 1, Step: "manager_review", TargetRole: "senior_manager", HoursInStep: 72, ThresholdHours: 48},
	}

	w := doJSON(t, srv, http.MethodPost, "/api/escalations/scan?tenant_id=acme", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Zero(t, escalations.notified)

	w = doJSON(t, srv, http.MethodPost, "/api/escalations/scan?tenant_id=acme&notify=true", nil)
	assert.Equal(t, http.StatusOK, w.Code)
	assert.Equal(t, 1, escalations.notified)

	w = doJSON(t, srv, http.MethodPost, "/api/escalations/scan", nil)
	assert.Equal(t, http.StatusBadRequest, w.Code)
}
