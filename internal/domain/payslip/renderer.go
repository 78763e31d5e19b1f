package payslip

import (
	"bytes"
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/jung-kurt/gofpdf"
	"go.uber.org/zap"

	"paydesk/internal/domain/payroll"
)

const (
	pageMargin  = 15.0
	pageWidth   = 210.0
	leftColW    = 108.0
	columnGap   = 8.0
	rightColX   = pageMargin + leftColW + columnGap
	rightColW   = pageWidth - pageMargin - rightColX
	lineHeight  = 6.0
	logoMaxW    = 40.0
	logoMaxH    = 20.0
	footerY     = 282.0
	logoImageID = "company-logo"
)

// Renderer lays out a single-page A4 payslip. It formats figures it is given
// and never computes payroll amounts itself.
type Renderer struct {
	Logos    LogoFetcher
	Logger   *zap.Logger
	Now      func() time.Time
	Compress bool
}

func NewRenderer(logos LogoFetcher, logger *zap.Logger) *Renderer {
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Renderer{Logos: logos, Logger: logger, Now: time.Now, Compress: true}
}

func (r *Renderer) Render(ctx context.Context, in Input) (Document, error) {
	now := time.Now
	if r.Now != nil {
		now = r.Now
	}
	generatedAt := now()

	pdf := gofpdf.New("P", "mm", "A4", "")
	pdf.SetCompression(r.Compress)
	pdf.SetMargins(pageMargin, pageMargin, pageMargin)
	pdf.SetAutoPageBreak(false, 0)
	pdf.SetTitle("Payslip - "+in.Employee.Name, true)
	pdf.SetCreator("paydesk", true)
	pdf.SetCreationDate(generatedAt)
	pdf.AddPage()

	tr := pdf.UnicodeTranslatorFromDescriptor("")
	w := &writer{pdf: pdf, tr: tr, symbol: in.Company.CurrencySymbol()}

	bodyTop := r.header(ctx, w, in.Company)
	leftBottom := w.employeeColumn(bodyTop, in)
	rightBottom := w.bankingCard(bodyTop, in.Employee.Banking)
	w.netBand(max(leftBottom, rightBottom)+8, in.Effective.EffectiveNetSalary)
	w.footer(generatedAt)

	var buf bytes.Buffer
	if err := pdf.Output(&buf); err != nil {
		return Document{}, fmt.Errorf("render payslip: %w", err)
	}
	return Document{
		Name:        FileName(in.Employee.Name, generatedAt),
		ContentType: ContentTypePDF,
		Data:        buf.Bytes(),
		GeneratedAt: generatedAt,
	}, nil
}

// header draws the company block and returns the y where the body starts.
func (r *Renderer) header(ctx context.Context, w *writer, company CompanyProfile) float64 {
	pdf := w.pdf
	textX := pageMargin
	if r.placeLogo(ctx, pdf, company.LogoURL) {
		textX = pageMargin + logoMaxW + 6
	}

	pdf.SetXY(textX, pageMargin)
	pdf.SetFont("Helvetica", "B", 16)
	pdf.SetTextColor(20, 20, 20)
	pdf.CellFormat(0, 8, w.tr(company.Name), "", 1, "L", false, 0, "")

	pdf.SetFont("Helvetica", "", 9)
	pdf.SetTextColor(90, 90, 90)
	for _, line := range company.AddressLines {
		if strings.TrimSpace(line) == "" {
			continue
		}
		pdf.SetX(textX)
		pdf.CellFormat(0, 4.5, w.tr(line), "", 1, "L", false, 0, "")
	}
	if contact := contactLine(company); contact != "" {
		pdf.SetX(textX)
		pdf.CellFormat(0, 4.5, w.tr(contact), "", 1, "L", false, 0, "")
	}
	if company.RegistrationNumber != "" {
		pdf.SetX(textX)
		pdf.CellFormat(0, 4.5, w.tr("Reg. No. "+company.RegistrationNumber), "", 1, "L", false, 0, "")
	}

	y := max(pdf.GetY(), pageMargin+logoMaxH) + 4
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(pageMargin, y, pageWidth-pageMargin, y)

	pdf.SetXY(pageMargin, y+4)
	pdf.SetFont("Helvetica", "B", 13)
	pdf.SetTextColor(20, 20, 20)
	pdf.CellFormat(0, 7, "PAYSLIP", "", 1, "L", false, 0, "")
	return pdf.GetY() + 3
}

// placeLogo never fails the render: any fetch or decode problem drops the logo.
func (r *Renderer) placeLogo(ctx context.Context, pdf *gofpdf.Fpdf, url string) bool {
	if url == "" || r.Logos == nil {
		return false
	}
	data, err := r.Logos.FetchLogo(ctx, url)
	if err != nil {
		r.Logger.Info("payslip logo unavailable", zap.String("url", url), zap.Error(err))
		return false
	}
	imageType, err := logoImageType(data)
	if err != nil {
		r.Logger.Info("payslip logo unreadable", zap.String("url", url), zap.Error(err))
		return false
	}
	opts := gofpdf.ImageOptions{ImageType: imageType}
	info := pdf.RegisterImageOptionsReader(logoImageID, opts, bytes.NewReader(data))
	if pdf.Err() || info == nil {
		r.Logger.Info("payslip logo rejected", zap.String("url", url), zap.Error(pdf.Error()))
		pdf.ClearError()
		return false
	}
	w, h := fitBox(info.Width(), info.Height(), logoMaxW, logoMaxH)
	pdf.ImageOptions(logoImageID, pageMargin, pageMargin, w, h, false, opts, 0, "")
	return true
}

type writer struct {
	pdf    *gofpdf.Fpdf
	tr     func(string) string
	symbol string
}

func (w *writer) amount(v float64) string {
	return FormatAmount(w.symbol, v)
}

func (w *writer) sectionTitle(x, width float64, title string) {
	w.pdf.SetX(x)
	w.pdf.SetFont("Helvetica", "B", 10)
	w.pdf.SetTextColor(40, 70, 120)
	w.pdf.CellFormat(width, 7, title, "B", 1, "L", false, 0, "")
	w.pdf.SetTextColor(20, 20, 20)
	w.pdf.Ln(1)
}

func (w *writer) row(x, width float64, label, value string, bold bool) {
	style := ""
	if bold {
		style = "B"
	}
	w.pdf.SetX(x)
	w.pdf.SetFont("Helvetica", style, 9.5)
	w.pdf.CellFormat(width*0.6, lineHeight, w.tr(label), "", 0, "L", false, 0, "")
	w.pdf.CellFormat(width*0.4, lineHeight, w.tr(value), "", 1, "R", false, 0, "")
}

func (w *writer) employeeColumn(top float64, in Input) float64 {
	pdf := w.pdf
	emp := in.Employee
	pdf.SetY(top)

	w.sectionTitle(pageMargin, leftColW, "Employee")
	w.row(pageMargin, leftColW, "Name", emp.Name, false)
	w.row(pageMargin, leftColW, "Position", emp.Position, false)
	w.row(pageMargin, leftColW, "ID number", emp.IDNumber, false)
	w.row(pageMargin, leftColW, "Email", emp.Email, false)
	pdf.Ln(3)

	w.sectionTitle(pageMargin, leftColW, "Earnings")
	switch emp.PaymentType {
	case payroll.PaymentTypeSalary:
		w.row(pageMargin, leftColW, "Basic salary", w.amount(emp.BaseSalary), false)
	case payroll.PaymentTypeHourly:
		w.row(pageMargin, leftColW, "Hours worked", formatHours(emp.HoursWorkedTotal), false)
		w.row(pageMargin, leftColW, "Hourly rate", w.amount(emp.HourlyRate), false)
	default:
		w.row(pageMargin, leftColW, "Payment type", "Not configured", false)
	}
	w.row(pageMargin, leftColW, "Gross salary", w.amount(in.Calculation.GrossSalary), true)
	pdf.Ln(3)

	w.sectionTitle(pageMargin, leftColW, "Deductions")
	w.row(pageMargin, leftColW, "PAYE", w.deduction(in.Prefs.IncludePAYE, in.Calculation.PAYE), false)
	w.row(pageMargin, leftColW, "UIF", w.deduction(in.Prefs.IncludeUIF, in.Calculation.UIF), false)
	w.row(pageMargin, leftColW, "SDL", w.deduction(in.Prefs.IncludeSDL, in.Calculation.SDL), false)
	w.row(pageMargin, leftColW, "Total deductions", w.amount(in.Effective.EffectiveTotalDeductions), true)
	return pdf.GetY()
}

func (w *writer) deduction(included bool, v float64) string {
	if !included {
		return ExcludedMarker
	}
	return w.amount(v)
}

func (w *writer) bankingCard(top float64, bank payroll.Banking) float64 {
	pdf := w.pdf
	rows := [][2]string{
		{"Account holder", bank.AccountHolder},
		{"Bank", bank.BankName},
		{"Account number", MaskAccountNumber(bank.AccountNumber)},
		{"Branch code", bank.BranchCode},
	}
	height := 10 + float64(len(rows))*2*4.8 + 4
	pdf.SetFillColor(244, 246, 250)
	pdf.SetDrawColor(210, 215, 225)
	pdf.Rect(rightColX, top, rightColW, height, "FD")

	pdf.SetXY(rightColX+4, top+3)
	pdf.SetFont("Helvetica", "B", 10)
	pdf.SetTextColor(40, 70, 120)
	pdf.CellFormat(rightColW-8, 6, "Banking details", "", 1, "L", false, 0, "")
	for _, row := range rows {
		pdf.SetX(rightColX + 4)
		pdf.SetFont("Helvetica", "", 8)
		pdf.SetTextColor(110, 110, 110)
		pdf.CellFormat(rightColW-8, 4.8, row[0], "", 1, "L", false, 0, "")
		pdf.SetX(rightColX + 4)
		pdf.SetFont("Courier", "B", 10)
		pdf.SetTextColor(20, 20, 20)
		value := row[1]
		if value == "" {
			value = "-"
		}
		pdf.CellFormat(rightColW-8, 4.8, w.tr(value), "", 1, "L", false, 0, "")
	}
	return top + height
}

func (w *writer) netBand(y, net float64) {
	pdf := w.pdf
	width := pageWidth - 2*pageMargin
	pdf.SetFillColor(40, 70, 120)
	pdf.Rect(pageMargin, y, width, 26, "F")

	pdf.SetTextColor(255, 255, 255)
	pdf.SetXY(pageMargin, y+3)
	pdf.SetFont("Helvetica", "", 10)
	pdf.CellFormat(width, 6, "NET SALARY", "", 1, "C", false, 0, "")
	pdf.SetX(pageMargin)
	pdf.SetFont("Helvetica", "B", 22)
	pdf.CellFormat(width, 12, w.amount(net), "", 1, "C", false, 0, "")
	pdf.SetTextColor(20, 20, 20)
}

func (w *writer) footer(at time.Time) {
	pdf := w.pdf
	pdf.SetDrawColor(200, 200, 200)
	pdf.Line(pageMargin, footerY-2, pageWidth-pageMargin, footerY-2)
	pdf.SetXY(pageMargin, footerY)
	pdf.SetFont("Helvetica", "I", 8)
	pdf.SetTextColor(120, 120, 120)
	pdf.CellFormat(pageWidth-2*pageMargin, 5, "Generated "+at.Format("2006-01-02 15:04:05 MST"), "", 0, "C", false, 0, "")
}

func contactLine(c CompanyProfile) string {
	parts := make([]string, 0, 3)
	for _, part := range []string{c.Phone, c.Email, c.Website} {
		if strings.TrimSpace(part) != "" {
			parts = append(parts, part)
		}
	}
	return strings.Join(parts, "  |  ")
}

func fitBox(w, h, maxW, maxH float64) (float64, float64) {
	if w <= 0 || h <= 0 {
		return maxW, maxH
	}
	scale := min(maxW/w, maxH/h)
	return w * scale, h * scale
}
