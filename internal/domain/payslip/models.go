package payslip

import (
	"time"

	"paydesk/internal/domain/payroll"
)

const (
	ContentTypePDF  = "application/pdf"
	DefaultCurrency = "R"
	ExcludedMarker  = "Excluded"
)

type CompanyProfile struct {
	Name               string   `json:"name" yaml:"name"`
	AddressLines       []string `json:"addressLines" yaml:"address_lines"`
	Phone              string   `json:"phone" yaml:"phone"`
	Email              string   `json:"email" yaml:"email"`
	Website            string   `json:"website" yaml:"website"`
	RegistrationNumber string   `json:"registrationNumber" yaml:"registration_number"`
	LogoURL            string   `json:"logoUrl" yaml:"logo_url"`
	Currency           string   `json:"currency" yaml:"currency"`
}

func (c CompanyProfile) CurrencySymbol() string {
	if c.Currency == "" {
		return DefaultCurrency
	}
	return c.Currency
}

// Input carries everything the renderer prints. All figures are precomputed.
type Input struct {
	Employee    payroll.EmployeeRecord
	Calculation payroll.Calculation
	Effective   payroll.EffectiveTotals
	Company     CompanyProfile
	Prefs       payroll.DeductionPreferences
}

type Document struct {
	Name        string
	ContentType string
	Data        []byte
	GeneratedAt time.Time
}
