package export

import (
	"encoding/csv"
	"io"
	"strconv"

	"github.com/odyssey-erp/fincore/internal/analytics"
	"github.com/odyssey-erp/fincore/internal/invoicing"
)

// WriteKPICSV serialises a KPI snapshot with prior values and change.
func WriteKPICSV(w io.Writer, snapshot analytics.KPISnapshot) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Metric", "Current", "Previous", "Change %"}); err != nil {
		return err
	}
	metrics := []struct {
		name  string
		value analytics.KPIDelta
	}{
		{"Revenue", snapshot.Revenue},
		{"Expenses", snapshot.Expenses},
		{"Profit", snapshot.Profit},
		{"Cash", snapshot.Cash},
		{"Receivables Current", snapshot.ReceivablesCurrent},
		{"Receivables Overdue", snapshot.ReceivablesOverdue},
		{"Payables Current", snapshot.PayablesCurrent},
		{"Payables Overdue", snapshot.PayablesOverdue},
		{"Inventory Value", snapshot.InventoryValue},
		{"Cost of Goods Sold", snapshot.COGS},
		{"Inventory Turnover", snapshot.InventoryTurnover},
	}
	for _, m := range metrics {
		record := []string{m.name, m.value.Current.String(), m.value.Previous.String(), m.value.ChangePct.StringFixed(2)}
		if err := writer.Write(record); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteTrendCSV emits the monthly profit and cash movement.
func WriteTrendCSV(w io.Writer, points []analytics.TrendPoint) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Period", "Revenue", "Expenses", "Net", "Cash In", "Cash Out"}); err != nil {
		return err
	}
	for _, p := range points {
		if err := writer.Write([]string{
			p.Period,
			p.Revenue.StringFixed(2),
			p.Expenses.StringFixed(2),
			p.Net.StringFixed(2),
			p.CashIn.StringFixed(2),
			p.CashOut.StringFixed(2),
		}); err != nil {
			return err
		}
	}
	writer.Flush()
	return writer.Error()
}

// WriteAgingCSV prints aging buckets and the grand total.
func WriteAgingCSV(w io.Writer, summary invoicing.AgingSummary) error {
	writer := csv.NewWriter(w)
	if err := writer.Write([]string{"Bucket", "Count", "Amount"}); err != nil {
		return err
	}
	count := 0
	for _, line := range summary.Buckets {
		count += line.Count
		if err := writer.Write([]string{string(line.Bucket), strconv.Itoa(line.Count), line.Amount.StringFixed(2)}); err != nil {
			return err
		}
	}
	if err := writer.Write([]string{"Total", strconv.Itoa(count), summary.Total.StringFixed(2)}); err != nil {
		return err
	}
	writer.Flush()
	return writer.Error()
}
