package handler

//go:generate mockgen -source=handler.go -destination=mocks/handler-mocks.go -package=mocks Service,Doctor,Hardener,Visibility

import (
	"bytes"
	"encoding/json"
	"errors"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"go.uber.org/mock/gomock"

	"onboard/internal/docstore"
	"onboard/internal/platform/jwttoken"
	"onboard/internal/provision"
	"onboard/internal/provision/handler/mocks"
	"onboard/internal/workspace"
	"onboard/pkg/domainerrors"
)

type mockedHandler struct {
	router     chi.Router
	service    *mocks.MockService
	doctor     *mocks.MockDoctor
	hardener   *mocks.MockHardener
	visibility *mocks.MockVisibility
	tokens     *jwttoken.Service
}

func newMockedHandler(t *testing.T) *mockedHandler {
	t.Helper()
	ctrl := gomock.NewController(t)
	t.Cleanup(ctrl.Finish)

	m := &mockedHandler{
		service:    mocks.NewMockService(ctrl),
		doctor:     mocks.NewMockDoctor(ctrl),
		hardener:   mocks.NewMockHardener(ctrl),
		visibility: mocks.NewMockVisibility(ctrl),
		tokens:     jwttoken.NewService("test-key", "onboard"),
	}
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	h := New(m.service, m.doctor, m.hardener, m.visibility, docstore.NewInMemory(), m.tokens, logger)
	m.router = chi.NewRouter()
	h.Register(m.router)
	return m
}

func (m *mockedHandler) do(t *testing.T, method, target string, body any) *httptest.ResponseRecorder {
	t.Helper()
	var reader io.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		reader = bytes.NewReader(raw)
	}
	req := httptest.NewRequest(method, target, reader)
	tok, err := m.tokens.GenerateToken("admin@acme.example", "acme.example", time.Hour)
	require.NoError(t, err)
	req.Header.Set("Authorization", "Bearer "+tok)
	rec := httptest.NewRecorder()
	m.router.ServeHTTP(rec, req)
	return rec
}

func TestProvisionConflictMapsTo409(t *testing.T) {
	m := newMockedHandler(t)
	m.service.EXPECT().
		Provision(gomock.Any(), provision.Request{Slug: "acme"}).
		Return(nil, domainerrors.New(domainerrors.CodeConflict, "document already exists"))

	rec := m.do(t, http.MethodPost, "/admin/provision", map[string]any{"blueprint": "acme"})

	assert.Equal(t, http.StatusConflict, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "conflict", body["error"])
	assert.Equal(t, "document already exists", body["message"])
}

func TestProvisionBadBlueprintMapsTo400(t *testing.T) {
	m := newMockedHandler(t)
	m.service.EXPECT().
		Provision(gomock.Any(), gomock.Any()).
		Return(nil, domainerrors.New(domainerrors.CodeBadRequest, "blueprint has no documents"))

	rec := m.do(t, http.MethodPost, "/admin/provision", map[string]any{"blueprint": "empty"})

	assert.Equal(t, http.StatusBadRequest, rec.Code)
}

func TestProvisionInvariantViolationMapsTo422(t *testing.T) {
	m := newMockedHandler(t)
	m.service.EXPECT().
		Provision(gomock.Any(), gomock.Any()).
		Return(nil, domainerrors.New(domainerrors.CodeInvariantViolation, "letterhead defaults conflict"))

	rec := m.do(t, http.MethodPost, "/admin/provision", map[string]any{"blueprint": "acme"})

	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
}

func TestPlanUnknownErrorMapsTo500(t *testing.T) {
	m := newMockedHandler(t)
	m.service.EXPECT().
		PlanOnly(gomock.Any(), "acme").
		Return(nil, errors.New("disk on fire"))

	rec := m.do(t, http.MethodGet, "/admin/provision/plan?blueprint=acme", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestHardenForwardsOptions(t *testing.T) {
	m := newMockedHandler(t)
	m.hardener.EXPECT().
		RestrictStandard(gomock.Any(), workspace.RestrictOptions{
			DryRun:         true,
			IncludeModules: []string{"CRM"},
			ExcludeNames:   []string{"Home", "Wiki"},
		}).
		Return(&workspace.Summary{Examined: 3, Changed: 2, ChangedNames: []string{"Leads", "Sales"}}, nil)

	rec := m.do(t, http.MethodPost, "/admin/workspaces/harden", map[string]any{
		"dry_run":         true,
		"include_modules": []string{"CRM"},
		"exclude_names":   []string{"Home", "Wiki"},
	})

	require.Equal(t, http.StatusOK, rec.Code)
	var summary workspace.Summary
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &summary))
	assert.Equal(t, 2, summary.Changed)
}

func TestPredicateFailureMapsTo500(t *testing.T) {
	m := newMockedHandler(t)
	m.visibility.EXPECT().
		Predicate(gomock.Any(), "Customer", "jo@acme.example").
		Return("", errors.New("scope store unreachable"))

	rec := m.do(t, http.MethodGet, "/admin/visibility/predicate?doctype=Customer&user=jo@acme.example", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}

func TestPermissionUnknownDocumentMapsTo404(t *testing.T) {
	m := newMockedHandler(t)

	rec := m.do(t, http.MethodGet, "/admin/visibility/permission?doctype=Employee&name=EMP-0001", nil)

	assert.Equal(t, http.StatusNotFound, rec.Code)
	var body map[string]string
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &body))
	assert.Equal(t, "not_found", body["error"])
}

func TestDoctorFailureMapsTo500(t *testing.T) {
	m := newMockedHandler(t)
	m.doctor.EXPECT().
		Report(gomock.Any()).
		Return(nil, errors.New("schema table unreachable"))

	rec := m.do(t, http.MethodGet, "/admin/doctor", nil)

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
}
