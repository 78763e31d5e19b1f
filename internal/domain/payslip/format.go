package payslip

import (
	"math"
	"strings"
	"time"
	"unicode/utf8"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"paydesk/internal/domain/payroll"
)

const maskChar = '*'

var amountPrinter = message.NewPrinter(language.English)

// MaskAccountNumber hides all but the last four characters and regroups the
// result into blocks of four. It expects a raw account number and must run
// exactly once: its own output is not a valid input.
func MaskAccountNumber(raw string) string {
	raw = strings.TrimSpace(raw)
	n := utf8.RuneCountInString(raw)
	if n <= 4 {
		return raw
	}
	runes := []rune(raw)
	for i := 0; i < n-4; i++ {
		runes[i] = maskChar
	}

	var b strings.Builder
	for i, r := range runes {
		if i > 0 && i%4 == 0 {
			b.WriteByte(' ')
		}
		b.WriteRune(r)
	}
	return b.String()
}

// FileName is stable for a given employee and calendar day.
func FileName(employeeName string, at time.Time) string {
	slug := strings.Join(strings.Fields(strings.ToLower(employeeName)), "-")
	if slug == "" {
		slug = "employee"
	}
	return "payslip-" + slug + "-" + at.Format("2006-01-02") + ".pdf"
}

func FormatAmount(symbol string, v float64) string {
	if symbol == "" {
		symbol = DefaultCurrency
	}
	v = payroll.Round2(v)
	if v == 0 || math.IsNaN(v) {
		v = 0
	}
	text := amountPrinter.Sprintf("%.2f", math.Abs(v))
	if v < 0 {
		return "-" + symbol + " " + text
	}
	return symbol + " " + text
}

func formatHours(v float64) string {
	return amountPrinter.Sprintf("%.2f", v)
}
