package payslip

import (
	"bytes"
	"context"
	"errors"
	"image"
	"image/color"
	"image/png"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"paydesk/internal/domain/payroll"
)

type stubLogos struct {
	data  []byte
	err   error
	calls int
}

func (s *stubLogos) FetchLogo(context.Context, string) ([]byte, error) {
	s.calls++
	return s.data, s.err
}

func fixedNow() time.Time {
	return time.Date(2026, 10, 16, 14, 3, 0, 0, time.UTC)
}

func testInput(prefs payroll.DeductionPreferences) Input {
	emp := payroll.EmployeeRecord{
		ID:          "e1",
		Name:        "Thandi Mokoena",
		Position:    "Bookkeeper",
		IDNumber:    "9001015009087",
		Email:       "thandi@example.co.za",
		PaymentType: payroll.PaymentTypeSalary,
		BaseSalary:  10000,
		Banking: payroll.Banking{
			AccountHolder: "T Mokoena",
			BankName:      "First Bank",
			AccountNumber: "1234567890123456",
			BranchCode:    "250655",
		},
	}
	calc := payroll.CalculatePayroll(emp)
	return Input{
		Employee:    emp,
		Calculation: calc,
		Effective:   payroll.ApplyPrefs(calc, prefs),
		Company: CompanyProfile{
			Name:         "Acme Trading",
			AddressLines: []string{"1 Long Street", "Cape Town"},
			Phone:        "021 555 0100",
			LogoURL:      "https://cdn.example.com/logo.png",
		},
		Prefs: prefs,
	}
}

func newTestRenderer(logos LogoFetcher) *Renderer {
	r := NewRenderer(logos, nil)
	r.Now = fixedNow
	r.Compress = false
	return r
}

func pngLogo(t *testing.T) []byte {
	t.Helper()
	img := image.NewRGBA(image.Rect(0, 0, 8, 4))
	for x := 0; x < 8; x++ {
		for y := 0; y < 4; y++ {
			img.Set(x, y, color.RGBA{R: 200, A: 255})
		}
	}
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, img))
	return buf.Bytes()
}

func TestRenderProducesNamedPDF(t *testing.T) {
	doc, err := newTestRenderer(nil).Render(context.Background(), testInput(payroll.DefaultPreferences()))
	require.NoError(t, err)

	assert.Equal(t, "payslip-thandi-mokoena-2026-10-16.pdf", doc.Name)
	assert.Equal(t, ContentTypePDF, doc.ContentType)
	assert.Equal(t, fixedNow(), doc.GeneratedAt)
	assert.True(t, bytes.HasPrefix(doc.Data, []byte("%PDF-")))
}

func TestRenderShowsFiguresAndMaskedAccount(t *testing.T) {
	doc, err := newTestRenderer(nil).Render(context.Background(), testInput(payroll.DefaultPreferences()))
	require.NoError(t, err)

	for _, want := range []string{
		"Acme Trading",
		"R 10,000.00",
		"R 1,800.00",
		"R 100.00",
		"R 2,000.00",
		"NET SALARY",
		"R 8,000.00",
		"**** **** **** 3456",
		"Generated 2026-10-16 14:03:00 UTC",
	} {
		assert.Contains(t, string(doc.Data), want)
	}
	assert.NotContains(t, string(doc.Data), "1234567890123456")
	assert.NotContains(t, string(doc.Data), ExcludedMarker)
}

func TestRenderMarksExcludedDeductions(t *testing.T) {
	prefs := payroll.DeductionPreferences{IncludePAYE: true}
	doc, err := newTestRenderer(nil).Render(context.Background(), testInput(prefs))
	require.NoError(t, err)

	assert.Equal(t, 2, bytes.Count(doc.Data, []byte("("+ExcludedMarker+")")))
	assert.Contains(t, string(doc.Data), "R 8,200.00")
}

func TestRenderContinuesWhenLogoFetchFails(t *testing.T) {
	logos := &stubLogos{err: errors.New("connection refused")}
	doc, err := newTestRenderer(logos).Render(context.Background(), testInput(payroll.DefaultPreferences()))
	require.NoError(t, err)

	assert.Equal(t, 1, logos.calls)
	assert.Contains(t, string(doc.Data), "NET SALARY")
	assert.NotContains(t, string(doc.Data), "/Subtype /Image")
}

func TestRenderContinuesWhenLogoIsNotAnImage(t *testing.T) {
	logos := &stubLogos{data: []byte("<html>not found</html>")}
	doc, err := newTestRenderer(logos).Render(context.Background(), testInput(payroll.DefaultPreferences()))
	require.NoError(t, err)
	assert.NotContains(t, string(doc.Data), "/Subtype /Image")
}

func TestRenderEmbedsLogo(t *testing.T) {
	logos := &stubLogos{data: pngLogo(t)}
	doc, err := newTestRenderer(logos).Render(context.Background(), testInput(payroll.DefaultPreferences()))
	require.NoError(t, err)
	assert.Contains(t, string(doc.Data), "/Subtype /Image")
}

func TestRenderSkipsLogoWithoutURL(t *testing.T) {
	logos := &stubLogos{data: pngLogo(t)}
	in := testInput(payroll.DefaultPreferences())
	in.Company.LogoURL = ""

	_, err := newTestRenderer(logos).Render(context.Background(), in)
	require.NoError(t, err)
	assert.Zero(t, logos.calls)
}

func TestRenderHourlyEarnings(t *testing.T) {
	in := testInput(payroll.DefaultPreferences())
	in.Employee.PaymentType = payroll.PaymentTypeHourly
	in.Employee.HourlyRate = 125.5
	in.Employee.HoursWorkedTotal = 40
	in.Calculation = payroll.CalculatePayroll(in.Employee)
	in.Effective = payroll.ApplyPrefs(in.Calculation, in.Prefs)

	doc, err := newTestRenderer(nil).Render(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Data), "Hours worked")
	assert.Contains(t, string(doc.Data), "R 125.50")
	assert.Contains(t, string(doc.Data), "R 5,020.00")
}

func TestRenderNegativeNetIsShown(t *testing.T) {
	in := testInput(payroll.DefaultPreferences())
	in.Effective.EffectiveNetSalary = -42

	doc, err := newTestRenderer(nil).Render(context.Background(), in)
	require.NoError(t, err)
	assert.Contains(t, string(doc.Data), "-R 42.00")
}
