package payroll

import "math"

// CalculatePayroll derives one period's figures from the employee's pay configuration.
// It never fails: unknown payment types yield zero gross and non-finite inputs count as 0.
// NetSalary is left negative when deductions exceed gross.
func CalculatePayroll(employee EmployeeRecord) Calculation {
	var gross float64
	switch employee.PaymentType {
	case PaymentTypeSalary:
		gross = finite(employee.BaseSalary)
	case PaymentTypeHourly:
		gross = finite(employee.HoursWorkedTotal) * finite(employee.HourlyRate)
	}
	gross = finite(gross)

	paye := gross * PAYERate
	uif := math.Min(gross*UIFRate, UIFCap)
	sdl := gross * SDLRate

	// SDL is an employer-side levy and stays out of the base total.
	total := paye + uif
	return Calculation{
		GrossSalary:     gross,
		PAYE:            paye,
		UIF:             uif,
		SDL:             sdl,
		TotalDeductions: total,
		NetSalary:       gross - total,
	}
}

// ApplyPrefs sums only the deductions the user chose to include. SDL can be
// included here even though the base total leaves it out.
func ApplyPrefs(calc Calculation, prefs DeductionPreferences) EffectiveTotals {
	var total float64
	if prefs.IncludePAYE {
		total += calc.PAYE
	}
	if prefs.IncludeUIF {
		total += calc.UIF
	}
	if prefs.IncludeSDL {
		total += calc.SDL
	}
	return EffectiveTotals{
		EffectiveTotalDeductions: total,
		EffectiveNetSalary:       calc.GrossSalary - total,
	}
}

// Round2 rounds half away from zero to cents. Display and export only.
func Round2(v float64) float64 {
	return math.Round(v*100) / 100
}

func finite(v float64) float64 {
	if math.IsNaN(v) || math.IsInf(v, 0) {
		return 0
	}
	return v
}
