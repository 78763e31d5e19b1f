package payroll

const (
	PaymentTypeSalary = "salary"
	PaymentTypeHourly = "hourly"

	// Flat placeholder rates, not a tax-table lookup.
	PAYERate = 0.18
	UIFRate  = 0.01
	SDLRate  = 0.01

	// UIFCap is the per-period ceiling on the UIF contribution.
	UIFCap = 177.12
)
