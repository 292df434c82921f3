package handlers

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/company-marketplace/backend/internal/middleware"
	"github.com/company-marketplace/backend/internal/models"
	"github.com/company-marketplace/backend/internal/repositories"
	"github.com/company-marketplace/backend/internal/services"
	"github.com/gofiber/fiber/v2"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/zap"
)

// fakeModeration answers from canned values and records what it was asked.
type fakeModeration struct {
	submitted  []services.SubmitInput
	submitErr  error
	record     *models.ChangeRecord
	decision   *services.Decision
	err        error
	batch      []services.BatchResult
	lastReason string
	lastFilter repositories.ChangeFilter
}

func (f *fakeModeration) Submit(_ context.Context, _ models.Actor, in services.SubmitInput) (*models.ChangeRecord, error) {
	f.submitted = append(f.submitted, in)
	if f.submitErr != nil {
		return nil, f.submitErr
	}
	return &models.ChangeRecord{ID: uuid.New(), CompanyID: in.CompanyID, ChangeType: in.ChangeType, Status: models.ChangeStatusPending}, nil
}

func (f *fakeModeration) Get(_ context.Context, id uuid.UUID) (*models.ChangeRecord, error) {
	if f.record == nil {
		return nil, fmt.Errorf("change %s: %w", id, models.ErrNotFound)
	}
	return f.record, nil
}

func (f *fakeModeration) List(_ context.Context, filter repositories.ChangeFilter) ([]models.ChangeRecord, error) {
	f.lastFilter = filter
	return []models.ChangeRecord{}, nil
}

func (f *fakeModeration) ListUnapplied(context.Context, int) ([]models.ChangeRecord, error) {
	return []models.ChangeRecord{}, nil
}

func (f *fakeModeration) GetEvents(context.Context, uuid.UUID) ([]models.AuditLog, error) {
	return []models.AuditLog{}, nil
}

func (f *fakeModeration) Approve(context.Context, uuid.UUID, models.Actor) (*services.Decision, error) {
	return f.decision, f.err
}

func (f *fakeModeration) Reject(_ context.Context, id uuid.UUID, _ models.Actor, reason string) (*models.ChangeRecord, error) {
	f.lastReason = reason
	if strings.TrimSpace(reason) == "" {
		return nil, &models.ValidationError{Field: "reason", Message: "is required"}
	}
	return &models.ChangeRecord{ID: id, Status: models.ChangeStatusRejected, RejectionReason: &reason}, f.err
}

func (f *fakeModeration) BatchApprove(context.Context, []uuid.UUID, models.Actor) ([]services.BatchResult, error) {
	return f.batch, nil
}

func (f *fakeModeration) BatchReject(context.Context, []uuid.UUID, models.Actor, string) ([]services.BatchResult, error) {
	return f.batch, nil
}

func (f *fakeModeration) RetryApply(context.Context, uuid.UUID, models.Actor) (*services.Decision, error) {
	return f.decision, f.err
}

func newTestApp(mod Moderation, actor models.Actor, companyID *uuid.UUID) *fiber.App {
	app := fiber.New()
	app.Use(middleware.RequestIDMiddleware())
	app.Use(func(c *fiber.Ctx) error {
		c.Locals(middleware.CtxActor, actor)
		if companyID != nil {
			c.Locals(middleware.CtxCompanyID, *companyID)
		}
		return c.Next()
	})

	changes := NewChangeHandler(mod, zap.NewNop())
	admin := NewAdminChangeHandler(mod, zap.NewNop())
	app.Post("/companies/:id/changes", changes.SubmitChange)
	app.Get("/companies/:id/changes", changes.ListCompanyChanges)
	app.Get("/admin/changes", admin.ListChanges)
	app.Post("/admin/changes", admin.CreateChange)
	app.Post("/admin/changes/batch/approve", admin.BatchApprove)
	app.Get("/admin/changes/:id", admin.GetChange)
	app.Post("/admin/changes/:id/approve", admin.ApproveChange)
	app.Post("/admin/changes/:id/reject", admin.RejectChange)
	app.Post("/admin/changes/:id/apply", admin.ApplyChange)
	return app
}

func do(t *testing.T, app *fiber.App, method, path, body string) (int, map[string]any) {
	t.Helper()
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	resp, err := app.Test(req)
	require.NoError(t, err)
	defer resp.Body.Close()

	raw, err := io.ReadAll(resp.Body)
	require.NoError(t, err)
	var out map[string]any
	if len(raw) > 0 {
		require.NoError(t, json.Unmarshal(raw, &out), string(raw))
	}
	return resp.StatusCode, out
}

func TestSubmitChange(t *testing.T) {
	own := uuid.New()
	user := models.Actor{UserID: uuid.New(), Role: models.RoleCompanyUser}
	mod := &fakeModeration{}
	app := newTestApp(mod, user, &own)

	status, body := do(t, app, "POST", "/companies/"+own.String()+"/changes",
		`{"change_type":"categories","payload":{"action":"add","category_ids":[5]}}`)
	assert.Equal(t, fiber.StatusCreated, status)
	assert.Equal(t, true, body["ok"])
	require.Len(t, mod.submitted, 1)
	assert.Equal(t, own, mod.submitted[0].CompanyID)
	assert.Equal(t, user.UserID, *mod.submitted[0].SubmitterID)
	assert.JSONEq(t, `{"action":"add","category_ids":[5]}`, string(mod.submitted[0].Payload))

	status, _ = do(t, app, "POST", "/companies/"+uuid.NewString()+"/changes", `{"change_type":"banner","payload":{}}`)
	assert.Equal(t, fiber.StatusForbidden, status)

	status, _ = do(t, app, "POST", "/companies/"+uuid.NewString()+"/changes", `{"change_type":"access_request"}`)
	assert.Equal(t, fiber.StatusCreated, status, "access requests may target any company")

	status, _ = do(t, app, "POST", "/companies/nope/changes", `{}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestSubmitChangeValidationError(t *testing.T) {
	own := uuid.New()
	mod := &fakeModeration{submitErr: &models.ValidationError{Field: "category_ids", Message: "failed \"required\" check"}}
	app := newTestApp(mod, models.Actor{UserID: uuid.New(), Role: models.RoleCompanyUser}, &own)

	status, body := do(t, app, "POST", "/companies/"+own.String()+"/changes", `{"change_type":"categories","payload":{"action":"add"}}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "category_ids", body["field"])
	assert.NotEmpty(t, body["request_id"])
}

func TestListCompanyChangesFilters(t *testing.T) {
	own := uuid.New()
	mod := &fakeModeration{}
	app := newTestApp(mod, models.Actor{UserID: uuid.New(), Role: models.RoleCompanyUser}, &own)

	status, _ := do(t, app, "GET", "/companies/"+own.String()+"/changes?status=pending&change_type=logo&limit=5", "")
	assert.Equal(t, fiber.StatusOK, status)
	require.NotNil(t, mod.lastFilter.Status)
	assert.Equal(t, models.ChangeStatusPending, *mod.lastFilter.Status)
	assert.Equal(t, models.ChangeTypeLogo, *mod.lastFilter.ChangeType)
	assert.Equal(t, 5, mod.lastFilter.Limit)
	assert.Equal(t, own, *mod.lastFilter.CompanyID)

	status, _ = do(t, app, "GET", "/companies/"+own.String()+"/changes?status=applied", "")
	assert.Equal(t, fiber.StatusBadRequest, status)

	status, _ = do(t, app, "GET", "/companies/"+uuid.NewString()+"/changes", "")
	assert.Equal(t, fiber.StatusForbidden, status)
}

func TestApproveChangeErrorMapping(t *testing.T) {
	admin := models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}
	id := uuid.New()
	record := &models.ChangeRecord{ID: id, Status: models.ChangeStatusApproved}

	tests := []struct {
		name     string
		decision *services.Decision
		err      error
		want     int
		withData bool
	}{
		{"applied", &services.Decision{Record: record}, nil, fiber.StatusOK, true},
		{"apply failed", &services.Decision{Record: record},
			&models.ApplyError{ChangeID: id, ChangeType: models.ChangeTypeBanner, Err: &models.BlobResolutionError{SignedID: "x", Err: models.ErrBlobNotFound}},
			fiber.StatusBadGateway, true},
		{"not pending", nil, &models.InvalidStateTransitionError{ChangeID: id, From: "rejected", To: "approved"}, fiber.StatusConflict, false},
		{"missing", nil, fmt.Errorf("change %s: %w", id, models.ErrNotFound), fiber.StatusNotFound, false},
		{"broken", nil, errors.New("pool closed"), fiber.StatusInternalServerError, false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			app := newTestApp(&fakeModeration{decision: tt.decision, err: tt.err}, admin, nil)
			status, body := do(t, app, "POST", "/admin/changes/"+id.String()+"/approve", "")
			assert.Equal(t, tt.want, status)
			_, hasData := body["data"]
			assert.Equal(t, tt.withData, hasData)
			if tt.want == fiber.StatusInternalServerError {
				assert.Equal(t, "internal error", body["error"])
			}
		})
	}
}

func TestRejectChangeRequiresReason(t *testing.T) {
	mod := &fakeModeration{}
	app := newTestApp(mod, models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}, nil)

	status, body := do(t, app, "POST", "/admin/changes/"+uuid.NewString()+"/reject", `{}`)
	assert.Equal(t, fiber.StatusUnprocessableEntity, status)
	assert.Equal(t, "reason", body["field"])

	status, _ = do(t, app, "POST", "/admin/changes/"+uuid.NewString()+"/reject", `{"reason":"spam"}`)
	assert.Equal(t, fiber.StatusOK, status)
	assert.Equal(t, "spam", mod.lastReason)
}

func TestBatchApproveReportsEachItem(t *testing.T) {
	ok, conflict, missing := uuid.New(), uuid.New(), uuid.New()
	mod := &fakeModeration{batch: []services.BatchResult{
		{ID: ok, Decision: &services.Decision{Record: &models.ChangeRecord{ID: ok}}},
		{ID: conflict, Err: &models.InvalidStateTransitionError{ChangeID: conflict, From: "approved", To: "approved"}},
		{ID: missing, Err: fmt.Errorf("change %s: %w", missing, models.ErrNotFound)},
	}}
	app := newTestApp(mod, models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}, nil)

	body := fmt.Sprintf(`{"ids":[%q,%q,%q]}`, ok, conflict, missing)
	status, resp := do(t, app, "POST", "/admin/changes/batch/approve", body)
	require.Equal(t, fiber.StatusOK, status)

	items, _ := resp["data"].([]any)
	require.Len(t, items, 3)
	statuses := make([]float64, 0, 3)
	for _, it := range items {
		statuses = append(statuses, it.(map[string]any)["status"].(float64))
	}
	assert.Equal(t, []float64{200, 409, 404}, statuses)

	status, _ = do(t, app, "POST", "/admin/changes/batch/approve", `{"ids":[]}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
	status, _ = do(t, app, "POST", "/admin/changes/batch/approve", `{"ids":["bad"]}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestCreateChangeAsAdmin(t *testing.T) {
	mod := &fakeModeration{}
	app := newTestApp(mod, models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}, nil)
	company := uuid.New()

	status, _ := do(t, app, "POST", "/admin/changes",
		fmt.Sprintf(`{"company_id":%q,"change_type":"cta_config","payload":{"cta_label":"Call us"}}`, company))
	assert.Equal(t, fiber.StatusCreated, status)
	require.Len(t, mod.submitted, 1)
	assert.Nil(t, mod.submitted[0].SubmitterID)
	assert.Equal(t, company, mod.submitted[0].CompanyID)

	status, _ = do(t, app, "POST", "/admin/changes", `{"company_id":"x","change_type":"logo"}`)
	assert.Equal(t, fiber.StatusBadRequest, status)
}

func TestGetChangeNotFound(t *testing.T) {
	app := newTestApp(&fakeModeration{}, models.Actor{UserID: uuid.New(), Role: models.RoleAdmin}, nil)
	status, body := do(t, app, "GET", "/admin/changes/"+uuid.NewString(), "")
	assert.Equal(t, fiber.StatusNotFound, status)
	assert.Contains(t, body["error"], "not found")
}
