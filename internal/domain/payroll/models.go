package payroll

type Banking struct {
	AccountHolder string `json:"accountHolder"`
	BankName      string `json:"bankName"`
	AccountNumber string `json:"accountNumber"`
	BranchCode    string `json:"branchCode"`
}

// EmployeeRecord is the normalized employee shape the calculator consumes.
// Only PaymentType, BaseSalary, HourlyRate and HoursWorkedTotal affect payroll figures.
type EmployeeRecord struct {
	ID               string  `json:"id"`
	Name             string  `json:"name"`
	Position         string  `json:"position"`
	IDNumber         string  `json:"idNumber"`
	Email            string  `json:"email"`
	PaymentType      string  `json:"paymentType"`
	BaseSalary       float64 `json:"baseSalary"`
	HourlyRate       float64 `json:"hourlyRate"`
	HoursWorkedTotal float64 `json:"hoursWorkedTotal"`
	Banking          Banking `json:"banking"`
}

type Calculation struct {
	GrossSalary     float64 `json:"grossSalary"`
	PAYE            float64 `json:"paye"`
	UIF             float64 `json:"uif"`
	SDL             float64 `json:"sdl"`
	TotalDeductions float64 `json:"totalDeductions"`
	NetSalary       float64 `json:"netSalary"`
}

type DeductionPreferences struct {
	IncludePAYE bool `json:"includePAYE"`
	IncludeUIF  bool `json:"includeUIF"`
	IncludeSDL  bool `json:"includeSDL"`
}

func DefaultPreferences() DeductionPreferences {
	return DeductionPreferences{IncludePAYE: true, IncludeUIF: true, IncludeSDL: true}
}

type EffectiveTotals struct {
	EffectiveTotalDeductions float64 `json:"effectiveTotalDeductions"`
	EffectiveNetSalary       float64 `json:"effectiveNetSalary"`
}
