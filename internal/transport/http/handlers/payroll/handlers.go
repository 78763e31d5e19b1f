package payrollhandler

import (
	"bytes"
	"context"
	"errors"
	"io"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"go.uber.org/zap"
	"golang.org/x/sync/errgroup"

	"paydesk/internal/domain/audit"
	"paydesk/internal/domain/auth"
	"paydesk/internal/domain/payroll"
	"paydesk/internal/domain/payslip"
	"paydesk/internal/domain/preferences"
	"paydesk/internal/platform/metrics"
	"paydesk/internal/platform/payrollapi"
	"paydesk/internal/requestctx"
	"paydesk/internal/transport/http/api"
	"paydesk/internal/transport/http/middleware"
	"paydesk/internal/transport/http/shared"
)

const (
	contentTypeCSV  = "text/csv"
	contentTypeXLSX = "application/vnd.openxmlformats-officedocument.spreadsheetml.sheet"

	hoursLookupConcurrency = 4
	maxEmployeeIDLength    = 128
)

type EmployeeSource interface {
	ListEmployees(ctx context.Context, auth payrollapi.AuthContext) ([]payroll.EmployeeRecord, error)
	GetEmployee(ctx context.Context, auth payrollapi.AuthContext, id string) (payroll.EmployeeRecord, error)
	GetTimeSummary(ctx context.Context, auth payrollapi.AuthContext, id string) (float64, error)
}

type ProfileSource interface {
	Profile(ctx context.Context, auth payrollapi.AuthContext) (payslip.CompanyProfile, error)
}

type Renderer interface {
	Render(ctx context.Context, in payslip.Input) (payslip.Document, error)
}

type Archiver interface {
	SaveAsync(doc payslip.Document) <-chan struct{}
}

type Handler struct {
	Employees EmployeeSource
	Profiles  ProfileSource
	Prefs     *preferences.Store
	Renderer  Renderer
	Archive   Archiver
	Metrics   *metrics.Collector
	Audit     audit.Recorder
	Logger    *zap.Logger
}

func (h *Handler) RegisterRoutes(r chi.Router) {
	r.Route("/payroll", func(r chi.Router) {
		r.Use(middleware.RequireUser)
		r.Get("/preferences", h.handleGetPreferences)
		r.Put("/preferences", h.handlePutPreferences)
		r.Get("/employees", h.handleListEmployees)
		r.Get("/employees/{employeeID}/calculation", h.handleCalculation)
		r.Post("/employees/{employeeID}/payslip", h.handleGeneratePayslip)
		r.Get("/register.csv", h.handleRegisterCSV)
		r.Get("/register.xlsx", h.handleRegisterXLSX)
	})
}

type EmployeeView struct {
	ID                  string  `json:"id"`
	Name                string  `json:"name"`
	Position            string  `json:"position"`
	Email               string  `json:"email"`
	PaymentType         string  `json:"paymentType"`
	BaseSalary          float64 `json:"baseSalary"`
	HourlyRate          float64 `json:"hourlyRate"`
	HoursWorkedTotal    float64 `json:"hoursWorkedTotal"`
	BankName            string  `json:"bankName"`
	AccountNumberMasked string  `json:"accountNumberMasked"`
}

type CalculationView struct {
	Employee    EmployeeView                 `json:"employee"`
	Calculation payroll.Calculation          `json:"calculation"`
	Effective   payroll.EffectiveTotals      `json:"effective"`
	Preferences payroll.DeductionPreferences `json:"preferences"`
}

type preferencesPayload struct {
	IncludePAYE *bool `json:"includePAYE"`
	IncludeUIF  *bool `json:"includeUIF"`
	IncludeSDL  *bool `json:"includeSDL"`
}

func (h *Handler) handleGetPreferences(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	api.Success(w, h.Prefs.Load(r.Context(), user.Scope()), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handlePutPreferences(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	requestID := middleware.GetRequestID(r.Context())

	var payload preferencesPayload
	if err := shared.DecodeStrict(r.Body, &payload); err != nil {
		api.Fail(w, http.StatusBadRequest, "invalid_payload", "invalid request payload", requestID)
		return
	}

	before := h.Prefs.Load(r.Context(), user.Scope())
	prefs := before
	if payload.IncludePAYE != nil {
		prefs.IncludePAYE = *payload.IncludePAYE
	}
	if payload.IncludeUIF != nil {
		prefs.IncludeUIF = *payload.IncludeUIF
	}
	if payload.IncludeSDL != nil {
		prefs.IncludeSDL = *payload.IncludeSDL
	}
	h.Prefs.Save(r.Context(), user.Scope(), prefs)
	if h.Metrics != nil {
		h.Metrics.PreferencesUpdated()
	}
	h.record(r, user, audit.ActionPreferencesUpdated, "preferences", user.Scope(), before, prefs)
	api.Success(w, prefs, requestID)
}

func (h *Handler) handleListEmployees(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	employees, ok := h.listEmployees(w, r, user)
	if !ok {
		return
	}
	prefs := h.Prefs.Load(r.Context(), user.Scope())
	out := make([]CalculationView, 0, len(employees))
	for _, emp := range employees {
		out = append(out, calculationView(emp, prefs))
	}
	api.Success(w, out, middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleCalculation(w http.ResponseWriter, r *http.Request) {
	user, _ := middleware.GetUser(r.Context())
	employeeID, ok := validEmployeeID(w, r)
	if !ok {
		return
	}
	emp, err := h.employee(r.Context(), authContext(user), employeeID)
	if err != nil {
		h.failUpstream(w, r, err)
		return
	}
	prefs := h.Prefs.Load(r.Context(), user.Scope())
	api.Success(w, calculationView(emp, prefs), middleware.GetRequestID(r.Context()))
}

func (h *Handler) handleGeneratePayslip(w http.ResponseWriter, r *http.Request) {
	ctx := r.Context()
	user, _ := middleware.GetUser(ctx)
	requestID := middleware.GetRequestID(ctx)
	employeeID, ok := validEmployeeID(w, r)
	if !ok {
		return
	}
	creds := authContext(user)

	var (
		emp        payroll.EmployeeRecord
		profile    payslip.CompanyProfile
		empErr     error
		profileErr error
		g          errgroup.Group
	)
	g.Go(func() error {
		emp, empErr = h.employee(ctx, creds, employeeID)
		return nil
	})
	g.Go(func() error {
		profile, profileErr = h.Profiles.Profile(ctx, creds)
		return nil
	})
	_ = g.Wait()

	if empErr != nil {
		h.failUpstream(w, r, empErr)
		return
	}
	if profileErr != nil {
		h.log(ctx).Warn("company profile unavailable", zap.Error(profileErr))
		h.countFailure()
		api.Fail(w, http.StatusBadGateway, "company_profile_unavailable", "company profile could not be loaded; the payslip was not generated", requestID)
		return
	}

	prefs := h.Prefs.Load(ctx, user.Scope())
	calc := payroll.CalculatePayroll(emp)
	effective := payroll.ApplyPrefs(calc, prefs)
	doc, err := h.Renderer.Render(ctx, payslip.Input{
		Employee:    emp,
		Calculation: calc,
		Effective:   effective,
		Company:     profile,
		Prefs:       prefs,
	})
	if err != nil {
		h.log(ctx).Error("payslip render failed", zap.String("employeeId", employeeID), zap.Error(err))
		h.countFailure()
		api.Fail(w, http.StatusInternalServerError, "payslip_render_failed", "failed to render payslip", requestID)
		return
	}
	if h.Metrics != nil {
		h.Metrics.PayslipRendered()
	}
	if h.Archive != nil {
		h.Archive.SaveAsync(doc)
	}
	h.record(r, user, audit.ActionPayslipGenerated, "employee", employeeID, nil, map[string]any{
		"document":  doc.Name,
		"netSalary": payroll.Round2(effective.EffectiveNetSalary),
	})
	api.Attachment(w, doc.ContentType, doc.Name, doc.Data)
}

func (h *Handler) handleRegisterCSV(w http.ResponseWriter, r *http.Request) {
	h.writeRegister(w, r, contentTypeCSV, "csv", payroll.Register.WriteCSV)
}

func (h *Handler) handleRegisterXLSX(w http.ResponseWriter, r *http.Request) {
	h.writeRegister(w, r, contentTypeXLSX, "xlsx", payroll.Register.WriteXLSX)
}

func (h *Handler) writeRegister(w http.ResponseWriter, r *http.Request, contentType, ext string, write func(payroll.Register, io.Writer) error) {
	user, _ := middleware.GetUser(r.Context())
	employees, ok := h.listEmployees(w, r, user)
	if !ok {
		return
	}
	reg := payroll.BuildRegister(employees, h.Prefs.Load(r.Context(), user.Scope()))

	var buf bytes.Buffer
	if err := write(reg, &buf); err != nil {
		h.log(r.Context()).Error("register export failed", zap.String("format", ext), zap.Error(err))
		api.Fail(w, http.StatusInternalServerError, "register_export_failed", "failed to export payroll register", middleware.GetRequestID(r.Context()))
		return
	}
	if h.Metrics != nil {
		h.Metrics.RegisterExported()
	}
	h.record(r, user, audit.ActionRegisterExported, "register", ext, nil, map[string]any{"employees": len(reg.Rows)})
	api.Attachment(w, contentType, "payroll-register-"+time.Now().Format("2006-01-02")+"."+ext, buf.Bytes())
}

func (h *Handler) listEmployees(w http.ResponseWriter, r *http.Request, user auth.UserContext) ([]payroll.EmployeeRecord, bool) {
	ctx := r.Context()
	creds := authContext(user)
	employees, err := h.Employees.ListEmployees(ctx, creds)
	if err != nil {
		h.failUpstream(w, r, err)
		return nil, false
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(hoursLookupConcurrency)
	for i := range employees {
		if !needsHours(employees[i]) {
			continue
		}
		g.Go(func() error {
			h.fillHours(gctx, creds, &employees[i])
			return nil
		})
	}
	_ = g.Wait()
	return employees, true
}

func (h *Handler) employee(ctx context.Context, creds payrollapi.AuthContext, id string) (payroll.EmployeeRecord, error) {
	emp, err := h.Employees.GetEmployee(ctx, creds, id)
	if err != nil {
		return payroll.EmployeeRecord{}, err
	}
	if needsHours(emp) {
		h.fillHours(ctx, creds, &emp)
	}
	return emp, nil
}

// fillHours pulls the period total from the time summary. A failed lookup
// leaves the hours at zero.
func (h *Handler) fillHours(ctx context.Context, creds payrollapi.AuthContext, emp *payroll.EmployeeRecord) {
	hours, err := h.Employees.GetTimeSummary(ctx, creds, emp.ID)
	if err != nil {
		h.log(ctx).Info("time summary unavailable", zap.String("employeeId", emp.ID), zap.Error(err))
		return
	}
	emp.HoursWorkedTotal = hours
}

func needsHours(emp payroll.EmployeeRecord) bool {
	return emp.PaymentType == payroll.PaymentTypeHourly && emp.HoursWorkedTotal == 0 && emp.ID != ""
}

func (h *Handler) failUpstream(w http.ResponseWriter, r *http.Request, err error) {
	requestID := middleware.GetRequestID(r.Context())
	var statusErr *payrollapi.StatusError
	switch {
	case errors.Is(err, payrollapi.ErrNotFound):
		api.Fail(w, http.StatusNotFound, "employee_not_found", "employee not found", requestID)
	case errors.Is(err, payrollapi.ErrUnauthorized):
		api.Fail(w, http.StatusUnauthorized, "unauthorized", "authentication required", requestID)
	case errors.As(err, &statusErr) && (statusErr.Status == http.StatusUnauthorized || statusErr.Status == http.StatusForbidden):
		api.Fail(w, statusErr.Status, "upstream_denied", "payroll api rejected the request", requestID)
	default:
		h.log(r.Context()).Error("payroll api request failed", zap.Error(err))
		api.Fail(w, http.StatusBadGateway, "upstream_unavailable", "payroll api is unavailable", requestID)
	}
}

func (h *Handler) record(r *http.Request, user auth.UserContext, action, entityType, entityID string, before, after any) {
	if h.Audit == nil {
		return
	}
	evt := audit.Event{
		TenantID:   user.TenantID,
		ActorID:    user.UserID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		RequestID:  middleware.GetRequestID(r.Context()),
		IP:         r.RemoteAddr,
	}
	if err := h.Audit.Record(r.Context(), evt, before, after); err != nil {
		h.log(r.Context()).Warn("audit record failed", zap.String("action", action), zap.Error(err))
	}
}

func (h *Handler) countFailure() {
	if h.Metrics != nil {
		h.Metrics.PayslipFailed()
	}
}

func (h *Handler) log(ctx context.Context) *zap.Logger {
	return requestctx.Logger(ctx, h.Logger)
}

func validEmployeeID(w http.ResponseWriter, r *http.Request) (string, bool) {
	employeeID := chi.URLParam(r, "employeeID")
	v := shared.NewValidator()
	v.Required("employeeId", employeeID, "is required")
	v.MaxLen("employeeId", employeeID, maxEmployeeIDLength)
	if v.Reject(w, middleware.GetRequestID(r.Context())) {
		return "", false
	}
	return employeeID, true
}

func authContext(user auth.UserContext) payrollapi.AuthContext {
	return payrollapi.AuthContext{Token: user.Token}
}

func calculationView(emp payroll.EmployeeRecord, prefs payroll.DeductionPreferences) CalculationView {
	calc := payroll.CalculatePayroll(emp)
	return CalculationView{
		Employee: EmployeeView{
			ID:                  emp.ID,
			Name:                emp.Name,
			Position:            emp.Position,
			Email:               emp.Email,
			PaymentType:         emp.PaymentType,
			BaseSalary:          emp.BaseSalary,
			HourlyRate:          emp.HourlyRate,
			HoursWorkedTotal:    emp.HoursWorkedTotal,
			BankName:            emp.Banking.BankName,
			AccountNumberMasked: payslip.MaskAccountNumber(emp.Banking.AccountNumber),
		},
		Calculation: calc,
		Effective:   payroll.ApplyPrefs(calc, prefs),
		Preferences: prefs,
	}
}
