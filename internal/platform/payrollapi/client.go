package payrollapi

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strings"
	"time"

	"paydesk/internal/domain/payroll"
	"paydesk/internal/domain/payslip"
)

const maxErrorBody = 4 << 10

var (
	ErrNotFound     = errors.New("payroll api: resource not found")
	ErrUnauthorized = errors.New("payroll api: missing credentials")
)

// AuthContext is the caller's credential for the upstream API. It is passed
// explicitly to every call instead of being read from ambient state.
type AuthContext struct {
	Token string
}

func (a AuthContext) Valid() bool {
	return strings.TrimSpace(a.Token) != ""
}

type StatusError struct {
	Status int
	Body   string
}

func (e *StatusError) Error() string {
	return fmt.Sprintf("payroll api: unexpected status %d: %s", e.Status, e.Body)
}

type Client struct {
	baseURL string
	http    *http.Client
}

func New(baseURL string, timeout time.Duration) *Client {
	return &Client{
		baseURL: strings.TrimRight(baseURL, "/"),
		http:    &http.Client{Timeout: timeout},
	}
}

func NewWithHTTPClient(baseURL string, httpClient *http.Client) *Client {
	return &Client{baseURL: strings.TrimRight(baseURL, "/"), http: httpClient}
}

func (c *Client) ListEmployees(ctx context.Context, auth AuthContext) ([]payroll.EmployeeRecord, error) {
	var payload any
	if err := c.get(ctx, auth, "/employees", &payload); err != nil {
		return nil, err
	}
	items, ok := unwrapList(payload)
	if !ok {
		return nil, fmt.Errorf("payroll api: employees payload is not a list")
	}
	out := make([]payroll.EmployeeRecord, 0, len(items))
	for _, item := range items {
		obj, ok := item.(map[string]any)
		if !ok {
			continue
		}
		out = append(out, NormalizeEmployee(obj))
	}
	return out, nil
}

func (c *Client) GetEmployee(ctx context.Context, auth AuthContext, id string) (payroll.EmployeeRecord, error) {
	var payload any
	if err := c.get(ctx, auth, "/employees/"+url.PathEscape(id), &payload); err != nil {
		return payroll.EmployeeRecord{}, err
	}
	obj, ok := unwrapObject(payload)
	if !ok {
		return payroll.EmployeeRecord{}, fmt.Errorf("payroll api: employee payload is not an object")
	}
	emp := NormalizeEmployee(obj)
	if emp.ID == "" {
		emp.ID = id
	}
	return emp, nil
}

// GetTimeSummary returns the employee's total hours for the current reporting period.
func (c *Client) GetTimeSummary(ctx context.Context, auth AuthContext, id string) (float64, error) {
	var payload any
	if err := c.get(ctx, auth, "/employees/"+url.PathEscape(id)+"/time-summary", &payload); err != nil {
		return 0, err
	}
	obj, ok := unwrapObject(payload)
	if !ok {
		return 0, nil
	}
	return NormalizeTimeSummary(obj), nil
}

func (c *Client) GetCompanyProfile(ctx context.Context, auth AuthContext) (payslip.CompanyProfile, error) {
	var payload any
	if err := c.get(ctx, auth, "/company/profile", &payload); err != nil {
		return payslip.CompanyProfile{}, err
	}
	obj, ok := unwrapObject(payload)
	if !ok {
		return payslip.CompanyProfile{}, fmt.Errorf("payroll api: profile payload is not an object")
	}
	return NormalizeCompanyProfile(obj), nil
}

// Ping reports whether the upstream answers at all; any HTTP status counts.
func (c *Client) Ping(ctx context.Context) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodHead, c.baseURL+"/", nil)
	if err != nil {
		return err
	}
	resp, err := c.http.Do(req)
	if err != nil {
		return err
	}
	resp.Body.Close()
	return nil
}

func (c *Client) get(ctx context.Context, auth AuthContext, path string, out any) error {
	if !auth.Valid() {
		return ErrUnauthorized
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, c.baseURL+path, nil)
	if err != nil {
		return err
	}
	req.Header.Set("Accept", "application/json")
	req.Header.Set("Authorization", "Bearer "+auth.Token)

	resp, err := c.http.Do(req)
	if err != nil {
		return fmt.Errorf("payroll api: GET %s: %w", path, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode == http.StatusNotFound {
		return ErrNotFound
	}
	if resp.StatusCode < 200 || resp.StatusCode > 299 {
		body, _ := io.ReadAll(io.LimitReader(resp.Body, maxErrorBody))
		return &StatusError{Status: resp.StatusCode, Body: strings.TrimSpace(string(body))}
	}
	dec := json.NewDecoder(resp.Body)
	dec.UseNumber()
	if err := dec.Decode(out); err != nil {
		return fmt.Errorf("payroll api: decode %s: %w", path, err)
	}
	return nil
}
