package payrollapi

import (
	"encoding/json"
	"math"
	"strconv"
	"strings"

	"paydesk/internal/domain/payroll"
	"paydesk/internal/domain/payslip"
)

// The upstream API is loose about field names; every alias below has been seen
// on the wire. Lookups take the first key that is present and non-empty.
var (
	employeeIDKeys    = []string{"id", "employee_id", "employeeId", "_id"}
	employeeNameKeys  = []string{"name", "full_name", "fullName"}
	firstNameKeys     = []string{"first_name", "firstName"}
	lastNameKeys      = []string{"last_name", "lastName", "surname"}
	positionKeys      = []string{"position", "job_title", "jobTitle", "title"}
	idNumberKeys      = []string{"id_number", "idNumber", "national_id", "nationalId"}
	emailKeys         = []string{"email", "email_address", "emailAddress"}
	paymentTypeKeys   = []string{"payment_type", "paymentType", "pay_type", "payType"}
	baseSalaryKeys    = []string{"base_salary", "baseSalary", "salary", "monthly_salary"}
	hourlyRateKeys    = []string{"hourly_rate", "hourlyRate", "rate"}
	hoursKeys         = []string{"hours_worked_total", "hoursWorkedTotal", "total_hours", "totalHours", "hours_worked", "hoursWorked", "hours"}
	bankingKeys       = []string{"banking", "bank_details", "bankDetails", "bank_account", "bankAccount", "bank"}
	accountHolderKeys = []string{"account_holder", "accountHolder", "bank_account_holder", "holder"}
	bankNameKeys      = []string{"bank_name", "bankName", "bank"}
	accountNumberKeys = []string{"account_number", "accountNumber", "bank_account_number", "bank_account"}
	branchCodeKeys    = []string{"branch_code", "branchCode", "bank_branch_code"}

	companyNameKeys  = []string{"name", "company_name", "companyName", "trading_name"}
	addressListKeys  = []string{"address_lines", "addressLines"}
	addressKeys      = []string{"address", "physical_address", "physicalAddress"}
	addressPartKeys  = []string{"address_line1", "address_line2", "city", "province", "postal_code"}
	phoneKeys        = []string{"phone", "telephone", "contact_number", "contactNumber"}
	websiteKeys      = []string{"website", "url", "web"}
	registrationKeys = []string{"registration_number", "registrationNumber", "reg_number", "regNumber"}
	logoKeys         = []string{"logo_url", "logoUrl", "logo"}
	currencyKeys     = []string{"currency_symbol", "currencySymbol", "currency"}
)

func NormalizeEmployee(obj map[string]any) payroll.EmployeeRecord {
	emp := payroll.EmployeeRecord{
		ID:               pickString(obj, employeeIDKeys...),
		Name:             pickString(obj, employeeNameKeys...),
		Position:         pickString(obj, positionKeys...),
		IDNumber:         pickString(obj, idNumberKeys...),
		Email:            pickString(obj, emailKeys...),
		PaymentType:      normalizePaymentType(pickString(obj, paymentTypeKeys...)),
		BaseSalary:       pickFloat(obj, baseSalaryKeys...),
		HourlyRate:       pickFloat(obj, hourlyRateKeys...),
		HoursWorkedTotal: pickFloat(obj, hoursKeys...),
	}
	if emp.Name == "" {
		emp.Name = strings.TrimSpace(pickString(obj, firstNameKeys...) + " " + pickString(obj, lastNameKeys...))
	}

	bank := obj
	for _, key := range bankingKeys {
		if nested, ok := obj[key].(map[string]any); ok {
			bank = nested
			break
		}
	}
	emp.Banking = payroll.Banking{
		AccountHolder: pickString(bank, accountHolderKeys...),
		BankName:      pickString(bank, bankNameKeys...),
		AccountNumber: strings.Join(strings.Fields(pickString(bank, accountNumberKeys...)), ""),
		BranchCode:    pickString(bank, branchCodeKeys...),
	}
	if emp.Banking.AccountHolder == "" {
		emp.Banking.AccountHolder = emp.Name
	}
	return emp
}

// NormalizeTimeSummary reads a total-hours figure, or sums entries[].hours when
// only the individual time entries are returned.
func NormalizeTimeSummary(obj map[string]any) float64 {
	if v := pick(obj, hoursKeys...); v != nil {
		return toFloat(v)
	}
	entries, ok := pick(obj, "entries", "time_entries", "timeEntries").([]any)
	if !ok {
		return 0
	}
	var total float64
	for _, entry := range entries {
		if e, ok := entry.(map[string]any); ok {
			total += pickFloat(e, hoursKeys...)
		}
	}
	return total
}

func NormalizeCompanyProfile(obj map[string]any) payslip.CompanyProfile {
	profile := payslip.CompanyProfile{
		Name:               pickString(obj, companyNameKeys...),
		Phone:              pickString(obj, phoneKeys...),
		Email:              pickString(obj, emailKeys...),
		Website:            pickString(obj, websiteKeys...),
		RegistrationNumber: pickString(obj, registrationKeys...),
		LogoURL:            pickString(obj, logoKeys...),
		Currency:           pickString(obj, currencyKeys...),
	}

	address := pick(obj, addressListKeys...)
	if address == nil {
		address = pick(obj, addressKeys...)
	}
	switch v := address.(type) {
	case []any:
		for _, line := range v {
			if s := toString(line); s != "" {
				profile.AddressLines = append(profile.AddressLines, s)
			}
		}
	case string:
		for _, line := range strings.Split(v, "\n") {
			if s := strings.TrimSpace(line); s != "" {
				profile.AddressLines = append(profile.AddressLines, s)
			}
		}
	}
	if len(profile.AddressLines) == 0 {
		for _, key := range addressPartKeys {
			if s := pickString(obj, key); s != "" {
				profile.AddressLines = append(profile.AddressLines, s)
			}
		}
	}
	// A three-letter ISO code is not a display symbol.
	if strings.EqualFold(profile.Currency, "ZAR") {
		profile.Currency = payslip.DefaultCurrency
	}
	return profile
}

func normalizePaymentType(v string) string {
	switch strings.ToLower(strings.TrimSpace(v)) {
	case "salary", "salaried", "monthly":
		return payroll.PaymentTypeSalary
	case "hourly", "hour", "wage":
		return payroll.PaymentTypeHourly
	}
	return strings.ToLower(strings.TrimSpace(v))
}

func unwrapObject(payload any) (map[string]any, bool) {
	obj, ok := payload.(map[string]any)
	if !ok {
		return nil, false
	}
	for _, key := range []string{"data", "employee", "profile", "result"} {
		if inner, ok := obj[key].(map[string]any); ok {
			return inner, true
		}
	}
	return obj, true
}

func unwrapList(payload any) ([]any, bool) {
	switch v := payload.(type) {
	case []any:
		return v, true
	case map[string]any:
		for _, key := range []string{"data", "employees", "items", "results"} {
			if inner, ok := v[key]; ok {
				return unwrapList(inner)
			}
		}
	}
	return nil, false
}

func pick(obj map[string]any, keys ...string) any {
	for _, key := range keys {
		v, ok := obj[key]
		if !ok || v == nil {
			continue
		}
		if s, isString := v.(string); isString && strings.TrimSpace(s) == "" {
			continue
		}
		return v
	}
	return nil
}

func pickString(obj map[string]any, keys ...string) string {
	return toString(pick(obj, keys...))
}

func pickFloat(obj map[string]any, keys ...string) float64 {
	return toFloat(pick(obj, keys...))
}

func toString(v any) string {
	switch t := v.(type) {
	case string:
		return strings.TrimSpace(t)
	case json.Number:
		return t.String()
	case float64:
		return strconv.FormatFloat(t, 'f', -1, 64)
	case bool:
		return strconv.FormatBool(t)
	}
	return ""
}

// toFloat coerces anything unusable to 0.
func toFloat(v any) float64 {
	var f float64
	switch t := v.(type) {
	case json.Number:
		parsed, err := t.Float64()
		if err != nil {
			return 0
		}
		f = parsed
	case float64:
		f = t
	case string:
		cleaned := strings.ReplaceAll(strings.TrimSpace(t), ",", "")
		cleaned = strings.ReplaceAll(cleaned, " ", "")
		parsed, err := strconv.ParseFloat(cleaned, 64)
		if err != nil {
			return 0
		}
		f = parsed
	default:
		return 0
	}
	if math.IsNaN(f) || math.IsInf(f, 0) {
		return 0
	}
	return f
}
