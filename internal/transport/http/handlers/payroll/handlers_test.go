package payrollhandler

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"strings"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/xuri/excelize/v2"

	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/auth"
	"paydesk/internal/domain/payroll"
	"paydesk/internal/domain/payslip"
	"paydesk/internal/domain/preferences"
	"paydesk/internal/platform/metrics"
	"paydesk/internal/platform/payrollapi"
	"paydesk/internal/transport/http/middleware"
)

type fakeEmployees struct {
	employees map[string]payroll.EmployeeRecord
	hours     map[string]float64
	err       error
	tokens    sync.Map
	summaries atomic.Int32
}

func (f *fakeEmployees) ListEmployees(_ context.Context, creds payrollapi.AuthContext) ([]payroll.EmployeeRecord, error) {
	f.tokens.Store(creds.Token, true)
	if f.err != nil {
		return nil, f.err
	}
	out := make([]payroll.EmployeeRecord, 0, len(f.employees))
	for _, id := range []string{"e1", "e2", "e3"} {
		if emp, ok := f.employees[id]; ok {
			out = append(out, emp)
		}
	}
	return out, nil
}

func (f *fakeEmployees) GetEmployee(_ context.Context, creds payrollapi.AuthContext, id string) (payroll.EmployeeRecord, error) {
	f.tokens.Store(creds.Token, true)
	if f.err != nil {
		return payroll.EmployeeRecord{}, f.err
	}
	emp, ok := f.employees[id]
	if !ok {
		return payroll.EmployeeRecord{}, payrollapi.ErrNotFound
	}
	return emp, nil
}

func (f *fakeEmployees) GetTimeSummary(_ context.Context, _ payrollapi.AuthContext, id string) (float64, error) {
	f.summaries.Add(1)
	hours, ok := f.hours[id]
	if !ok {
		return 0, errors.New("no summary")
	}
	return hours, nil
}

type fakeProfiles struct {
	profile payslip.CompanyProfile
	err     error
}

func (f fakeProfiles) Profile(context.Context, payrollapi.AuthContext) (payslip.CompanyProfile, error) {
	return f.profile, f.err
}

type recordingRenderer struct {
	mu    sync.Mutex
	input payslip.Input
	err   error
}

func (r *recordingRenderer) Render(_ context.Context, in payslip.Input) (payslip.Document, error) {
	r.mu.Lock()
	r.input = in
	r.mu.Unlock()
	if r.err != nil {
		return payslip.Document{}, r.err
	}
	at := time.Date(2026, 3, 31, 0, 0, 0, 0, time.UTC)
	return payslip.Document{
		Name:        payslip.FileName(in.Employee.Name, at),
		ContentType: payslip.ContentTypePDF,
		Data:        []byte("%PDF-1.3 test"),
		GeneratedAt: at,
	}, nil
}

type recordingArchive struct {
	docs chan payslip.Document
}

func (a *recordingArchive) SaveAsync(doc payslip.Document) <-chan struct{} {
	done := make(chan struct{})
	a.docs <- doc
	close(done)
	return done
}

type recordingAudit struct {
	mu     sync.Mutex
	events []audit.Event
}

func (a *recordingAudit) Record(_ context.Context, evt audit.Event, _, _ any) error {
	a.mu.Lock()
	defer a.mu.Unlock()
	a.events = append(a.events, evt)
	return nil
}

func (a *recordingAudit) actions() []string {
	a.mu.Lock()
	defer a.mu.Unlock()
	out := make([]string, 0, len(a.events))
	for _, evt := range a.events {
		out = append(out, evt.Action)
	}
	return out
}

type testEnv struct {
	handler   *Handler
	employees *fakeEmployees
	renderer  *recordingRenderer
	archive   *recordingArchive
	metrics   *metrics.Collector
	audit     *recordingAudit
	router    http.Handler
}

var testUser = auth.UserContext{UserID: "u1", TenantID: "t1", RoleName: "admin", Token: "upstream-token"}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	employees := &fakeEmployees{
		employees: map[string]payroll.EmployeeRecord{
			"e1": {
				ID: "e1", Name: "Jane Doe", Position: "Engineer", PaymentType: payroll.PaymentTypeSalary, BaseSalary: 20000,
				Banking: payroll.Banking{AccountHolder: "Jane Doe", BankName: "FNB", AccountNumber: "123456789012"},
			},
			"e2": {ID: "e2", Name: "Sam Hourly", PaymentType: payroll.PaymentTypeHourly, HourlyRate: 100},
		},
		hours: map[string]float64{"e2": 40},
	}
	env := &testEnv{
		employees: employees,
		renderer:  &recordingRenderer{},
		archive:   &recordingArchive{docs: make(chan payslip.Document, 4)},
		metrics:   metrics.New(),
		audit:     &recordingAudit{},
	}
	env.handler = &Handler{
		Employees: employees,
		Profiles:  fakeProfiles{profile: payslip.CompanyProfile{Name: "Acme"}},
		Prefs:     preferences.NewStore(preferences.NewMemoryBackend(), nil),
		Renderer:  env.renderer,
		Archive:   env.archive,
		Metrics:   env.metrics,
		Audit:     env.audit,
	}
	env.router = env.routes(true)
	return env
}

func (e *testEnv) routes(authenticated bool) http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if authenticated {
		r.Use(func(next http.Handler) http.Handler {
			return http.HandlerFunc(func(w http.ResponseWriter, req *http.Request) {
				next.ServeHTTP(w, req.WithContext(middleware.WithUser(req.Context(), testUser)))
			})
		})
	}
	e.handler.RegisterRoutes(r)
	return r
}

func (e *testEnv) do(method, path, body string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(method, path, strings.NewReader(body))
	rec := httptest.NewRecorder()
	e.router.ServeHTTP(rec, req)
	return rec
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   *struct {
		Code    string `json:"code"`
		Message string `json:"message"`
	} `json:"error"`
}

func decodeEnvelope(t *testing.T, rec *httptest.ResponseRecorder) envelope {
	t.Helper()
	var env envelope
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &env))
	return env
}

func TestRoutesRequireUser(t *testing.T) {
	env := newTestEnv(t)
	router := env.routes(false)

	req := httptest.NewRequest(http.MethodGet, "/payroll/preferences", nil)
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)

	assert.Equal(t, http.StatusUnauthorized, rec.Code)
}

func TestPreferencesDefaultThenPartialUpdate(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/payroll/preferences", "")
	require.Equal(t, http.StatusOK, rec.Code)
	var prefs payroll.DeductionPreferences
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &prefs))
	assert.Equal(t, payroll.DefaultPreferences(), prefs)

	rec = env.do(http.MethodPut, "/payroll/preferences", `{"includeSDL":false}`)
	require.Equal(t, http.StatusOK, rec.Code)
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &prefs))
	assert.Equal(t, payroll.DeductionPreferences{IncludePAYE: true, IncludeUIF: true, IncludeSDL: false}, prefs)

	rec = env.do(http.MethodPut, "/payroll/preferences", `{"includePAYE":false}`)
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t,
		payroll.DeductionPreferences{IncludePAYE: false, IncludeUIF: true, IncludeSDL: false},
		env.handler.Prefs.Load(context.Background(), testUser.Scope()))
	assert.EqualValues(t, 2, env.metrics.Snapshot()["preferenceUpdatesTotal"])
	assert.Equal(t, []string{audit.ActionPreferencesUpdated, audit.ActionPreferencesUpdated}, env.audit.actions())
}

func TestPutPreferencesRejectsUnknownFields(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPut, "/payroll/preferences", `{"includeTax":false}`)

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "invalid_payload", decodeEnvelope(t, rec).Error.Code)
}

func TestListEmployeesFillsHoursAndMasksAccounts(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/payroll/employees", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var views []CalculationView
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &views))
	require.Len(t, views, 2)

	assert.Equal(t, "**** **** 9012", views[0].Employee.AccountNumberMasked)
	assert.InDelta(t, 20000, views[0].Calculation.GrossSalary, 1e-9)
	assert.InDelta(t, 15822.88, views[0].Effective.EffectiveNetSalary, 1e-6)

	assert.InDelta(t, 40, views[1].Employee.HoursWorkedTotal, 1e-9)
	assert.InDelta(t, 4000, views[1].Calculation.GrossSalary, 1e-9)
	assert.EqualValues(t, 1, env.employees.summaries.Load())

	_, forwarded := env.employees.tokens.Load("upstream-token")
	assert.True(t, forwarded)
	assert.NotContains(t, rec.Body.String(), "123456789012")
}

func TestCalculationAppliesStoredPreferences(t *testing.T) {
	env := newTestEnv(t)
	env.handler.Prefs.Save(context.Background(), testUser.Scope(), payroll.DeductionPreferences{IncludePAYE: false, IncludeUIF: true, IncludeSDL: true})

	rec := env.do(http.MethodGet, "/payroll/employees/e1/calculation", "")
	require.Equal(t, http.StatusOK, rec.Code)

	var view CalculationView
	require.NoError(t, json.Unmarshal(decodeEnvelope(t, rec).Data, &view))
	assert.InDelta(t, 3600, view.Calculation.PAYE, 1e-9)
	assert.InDelta(t, 177.12+200, view.Effective.EffectiveTotalDeductions, 1e-9)
	assert.InDelta(t, 20000-377.12, view.Effective.EffectiveNetSalary, 1e-9)
}

func TestCalculationUnknownEmployee(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/payroll/employees/missing/calculation", "")

	assert.Equal(t, http.StatusNotFound, rec.Code)
	assert.Equal(t, "employee_not_found", decodeEnvelope(t, rec).Error.Code)
}

func TestEmployeeIDTooLong(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/payroll/employees/"+strings.Repeat("x", 129)+"/calculation", "")

	assert.Equal(t, http.StatusBadRequest, rec.Code)
	assert.Equal(t, "validation_error", decodeEnvelope(t, rec).Error.Code)
}

func TestUpstreamErrorsMapToStatus(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
		code   string
	}{
		{"unauthorized", payrollapi.ErrUnauthorized, http.StatusUnauthorized, "unauthorized"},
		{"forbidden", &payrollapi.StatusError{Status: http.StatusForbidden}, http.StatusForbidden, "upstream_denied"},
		{"server error", &payrollapi.StatusError{Status: http.StatusInternalServerError}, http.StatusBadGateway, "upstream_unavailable"},
		{"transport", errors.New("dial tcp: refused"), http.StatusBadGateway, "upstream_unavailable"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			env := newTestEnv(t)
			env.employees.err = tc.err

			rec := env.do(http.MethodGet, "/payroll/employees", "")

			assert.Equal(t, tc.status, rec.Code)
			assert.Equal(t, tc.code, decodeEnvelope(t, rec).Error.Code)
		})
	}
}

func TestGeneratePayslip(t *testing.T) {
	env := newTestEnv(t)
	env.handler.Prefs.Save(context.Background(), testUser.Scope(), payroll.DeductionPreferences{IncludePAYE: true, IncludeUIF: true, IncludeSDL: false})

	rec := env.do(http.MethodPost, "/payroll/employees/e1/payslip", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, payslip.ContentTypePDF, rec.Header().Get("Content-Type"))
	assert.Equal(t, `attachment; filename="payslip-jane-doe-2026-03-31.pdf"`, rec.Header().Get("Content-Disposition"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	in := env.renderer.input
	assert.Equal(t, "Acme", in.Company.Name)
	assert.False(t, in.Prefs.IncludeSDL)
	assert.InDelta(t, 3600+177.12, in.Effective.EffectiveTotalDeductions, 1e-9)

	select {
	case doc := <-env.archive.docs:
		assert.Equal(t, "payslip-jane-doe-2026-03-31.pdf", doc.Name)
	case <-time.After(time.Second):
		t.Fatal("payslip was not archived")
	}
	assert.EqualValues(t, 1, env.metrics.Snapshot()["payslipsRenderedTotal"])
	assert.Equal(t, []string{audit.ActionPayslipGenerated}, env.audit.actions())
	assert.Equal(t, "u1", env.audit.events[0].ActorID)
	assert.Equal(t, "e1", env.audit.events[0].EntityID)
}

func TestGeneratePayslipHourlyUsesTimeSummary(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodPost, "/payroll/employees/e2/payslip", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.InDelta(t, 40, env.renderer.input.Employee.HoursWorkedTotal, 1e-9)
	assert.InDelta(t, 4000, env.renderer.input.Calculation.GrossSalary, 1e-9)
}

func TestGeneratePayslipWithoutCompanyProfile(t *testing.T) {
	env := newTestEnv(t)
	env.handler.Profiles = fakeProfiles{err: payrollapi.ErrProfileMissing}

	rec := env.do(http.MethodPost, "/payroll/employees/e1/payslip", "")

	assert.Equal(t, http.StatusBadGateway, rec.Code)
	body := decodeEnvelope(t, rec)
	assert.Equal(t, "company_profile_unavailable", body.Error.Code)
	assert.NotEmpty(t, body.Error.Message)
	assert.EqualValues(t, 1, env.metrics.Snapshot()["payslipFailuresTotal"])
	assert.Empty(t, env.archive.docs)
	assert.Empty(t, env.audit.actions())
}

func TestGeneratePayslipRenderFailure(t *testing.T) {
	env := newTestEnv(t)
	env.renderer.err = errors.New("pdf engine failed")

	rec := env.do(http.MethodPost, "/payroll/employees/e1/payslip", "")

	assert.Equal(t, http.StatusInternalServerError, rec.Code)
	assert.Equal(t, "payslip_render_failed", decodeEnvelope(t, rec).Error.Code)
}

func TestGeneratePayslipWithoutArchive(t *testing.T) {
	env := newTestEnv(t)
	env.handler.Archive = nil

	rec := env.do(http.MethodPost, "/payroll/employees/e1/payslip", "")

	assert.Equal(t, http.StatusOK, rec.Code)
}

func TestRegisterCSV(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/payroll/register.csv", "")
	require.Equal(t, http.StatusOK, rec.Code)

	assert.Equal(t, contentTypeCSV, rec.Header().Get("Content-Type"))
	assert.Contains(t, rec.Header().Get("Content-Disposition"), ".csv")
	lines := strings.Split(strings.TrimSpace(rec.Body.String()), "\n")
	require.Len(t, lines, 4)
	assert.Contains(t, lines[1], "Jane Doe")
	assert.True(t, strings.HasPrefix(lines[3], ",Total,"))
	assert.EqualValues(t, 1, env.metrics.Snapshot()["registerExportsTotal"])
}

func TestRegisterXLSX(t *testing.T) {
	env := newTestEnv(t)

	rec := env.do(http.MethodGet, "/payroll/register.xlsx", "")
	require.Equal(t, http.StatusOK, rec.Code)
	assert.Equal(t, contentTypeXLSX, rec.Header().Get("Content-Type"))

	book, err := excelize.OpenReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	defer book.Close()
	rows, err := book.GetRows("Register")
	require.NoError(t, err)
	require.Len(t, rows, 4)
	assert.Equal(t, "Sam Hourly", rows[2][1])
}
