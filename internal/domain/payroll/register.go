package payroll

import (
	"encoding/csv"
	"fmt"
	"io"
	"strconv"

	"github.com/xuri/excelize/v2"
)

const registerSheet = "Register"

var registerHeader = []string{
	"Employee ID", "Name", "Payment Type", "Gross", "PAYE", "UIF", "SDL",
	"Total Deductions", "Net", "Effective Deductions", "Effective Net",
}

type RegisterRow struct {
	Employee    EmployeeRecord
	Calculation Calculation
	Effective   EffectiveTotals
}

type Register struct {
	Prefs  DeductionPreferences
	Rows   []RegisterRow
	Totals RegisterRow
}

func BuildRegister(employees []EmployeeRecord, prefs DeductionPreferences) Register {
	reg := Register{Prefs: prefs, Rows: make([]RegisterRow, 0, len(employees))}
	reg.Totals.Employee.Name = "Total"
	for _, employee := range employees {
		calc := CalculatePayroll(employee)
		eff := ApplyPrefs(calc, prefs)
		reg.Rows = append(reg.Rows, RegisterRow{Employee: employee, Calculation: calc, Effective: eff})

		t := &reg.Totals
		t.Calculation.GrossSalary += calc.GrossSalary
		t.Calculation.PAYE += calc.PAYE
		t.Calculation.UIF += calc.UIF
		t.Calculation.SDL += calc.SDL
		t.Calculation.TotalDeductions += calc.TotalDeductions
		t.Calculation.NetSalary += calc.NetSalary
		t.Effective.EffectiveTotalDeductions += eff.EffectiveTotalDeductions
		t.Effective.EffectiveNetSalary += eff.EffectiveNetSalary
	}
	return reg
}

func (r RegisterRow) amounts() []float64 {
	return []float64{
		Round2(r.Calculation.GrossSalary),
		Round2(r.Calculation.PAYE),
		Round2(r.Calculation.UIF),
		Round2(r.Calculation.SDL),
		Round2(r.Calculation.TotalDeductions),
		Round2(r.Calculation.NetSalary),
		Round2(r.Effective.EffectiveTotalDeductions),
		Round2(r.Effective.EffectiveNetSalary),
	}
}

func (r Register) WriteCSV(w io.Writer) error {
	cw := csv.NewWriter(w)
	if err := cw.Write(registerHeader); err != nil {
		return err
	}
	for _, row := range append(append([]RegisterRow{}, r.Rows...), r.Totals) {
		record := []string{row.Employee.ID, row.Employee.Name, row.Employee.PaymentType}
		for _, amount := range row.amounts() {
			record = append(record, strconv.FormatFloat(amount, 'f', 2, 64))
		}
		if err := cw.Write(record); err != nil {
			return err
		}
	}
	cw.Flush()
	return cw.Error()
}

func (r Register) WriteXLSX(w io.Writer) error {
	f := excelize.NewFile()
	defer f.Close()

	if err := f.SetSheetName("Sheet1", registerSheet); err != nil {
		return err
	}
	header := make([]any, 0, len(registerHeader))
	for _, h := range registerHeader {
		header = append(header, h)
	}
	if err := f.SetSheetRow(registerSheet, "A1", &header); err != nil {
		return err
	}
	bold, err := f.NewStyle(&excelize.Style{Font: &excelize.Font{Bold: true}})
	if err != nil {
		return err
	}
	lastCol, err := excelize.ColumnNumberToName(len(registerHeader))
	if err != nil {
		return err
	}
	if err := f.SetCellStyle(registerSheet, "A1", lastCol+"1", bold); err != nil {
		return err
	}

	money, err := f.NewStyle(&excelize.Style{NumFmt: 4})
	if err != nil {
		return err
	}

	rows := append(append([]RegisterRow{}, r.Rows...), r.Totals)
	for i, row := range rows {
		line := i + 2
		values := []any{row.Employee.ID, row.Employee.Name, row.Employee.PaymentType}
		for _, amount := range row.amounts() {
			values = append(values, amount)
		}
		cell, err := excelize.CoordinatesToCellName(1, line)
		if err != nil {
			return err
		}
		if err := f.SetSheetRow(registerSheet, cell, &values); err != nil {
			return err
		}
		if err := f.SetCellStyle(registerSheet, fmt.Sprintf("D%d", line), fmt.Sprintf("%s%d", lastCol, line), money); err != nil {
			return err
		}
	}

	totalsLine := len(rows) + 1
	if err := f.SetCellStyle(registerSheet, fmt.Sprintf("A%d", totalsLine), fmt.Sprintf("C%d", totalsLine), bold); err != nil {
		return err
	}
	if err := f.SetColWidth(registerSheet, "A", "B", 24); err != nil {
		return err
	}
	return f.Write(w)
}
