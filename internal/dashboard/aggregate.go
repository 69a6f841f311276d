// Package dashboard derives the summary figures shown on the landing page.
package dashboard

import (
	"sort"
	"time"

	"github.com/shopspring/decimal"

	"shankh-dashboard/internal/format"
)

var monthNames = [12]string{"Jan", "Feb", "Mar", "Apr", "May", "Jun", "Jul", "Aug", "Sep", "Oct", "Nov", "Dec"}

const (
	completedLotsInFeed = 5
	paymentsInFeed      = 3
	maxActivities       = 10
	// DefaultTopWorkers is how many workers TopWorkers returns by default.
	DefaultTopWorkers = 3
)

type Record = map[string]any

type MonthlyData struct {
	Name     string  `json:"name"`
	Orders   int     `json:"orders"`
	Revenue  float64 `json:"revenue"`
	Expenses float64 `json:"expenses"`
	Lots     int     `json:"lots"`
}

type WorkerProductivity struct {
	Name          string  `json:"name"`
	UnitsProduced float64 `json:"unitsProduced"`
	Efficiency    float64 `json:"efficiency"`
}

type Activity struct {
	Type      string `json:"type"`
	Title     string `json:"title"`
	Subtitle  string `json:"subtitle,omitempty"`
	Timestamp string `json:"timestamp"`
	Icon      string `json:"icon"`
	Color     string `json:"color"`
}

type FinancialSummary struct {
	TotalRevenue    float64 `json:"totalRevenue"`
	TotalExpenses   float64 `json:"totalExpenses"`
	NetProfit       float64 `json:"netProfit"`
	PendingPayments float64 `json:"pendingPayments"`
}

// yearMonth returns the month index of a date value if it falls in year.
func yearMonth(v any, year int) (int, bool) {
	if format.IsEmpty(v) {
		return 0, false
	}
	t, ok := format.ParseDate(v)
	if !ok || t.Year() != year {
		return 0, false
	}
	return int(t.Month()) - 1, true
}

func amount(v any) decimal.Decimal {
	n, ok := format.ParseNumber(v)
	if !ok {
		return decimal.Zero
	}
	return decimal.NewFromFloat(n)
}

// ComputeMonthlyData buckets a calendar year by month: orders and lots are
// counted by created_at, revenue sums amount_paid by payment_date, and
// expenses sum amount by expense_date.
func ComputeMonthlyData(orders, ledger, expenses, lots []Record, year int) []MonthlyData {
	var (
		orderCounts, lotCounts [12]int
		revenue, spent         [12]decimal.Decimal
	)
	for _, o := range orders {
		if m, ok := yearMonth(o["created_at"], year); ok {
			orderCounts[m]++
		}
	}
	for _, e := range ledger {
		if m, ok := yearMonth(e["payment_date"], year); ok {
			revenue[m] = revenue[m].Add(amount(e["amount_paid"]))
		}
	}
	for _, e := range expenses {
		if m, ok := yearMonth(e["expense_date"], year); ok {
			spent[m] = spent[m].Add(amount(e["amount"]))
		}
	}
	for _, l := range lots {
		if m, ok := yearMonth(l["created_at"], year); ok {
			lotCounts[m]++
		}
	}

	out := make([]MonthlyData, 12)
	for i := range out {
		out[i] = MonthlyData{
			Name:     monthNames[i],
			Orders:   orderCounts[i],
			Revenue:  revenue[i].InexactFloat64(),
			Expenses: spent[i].InexactFloat64(),
			Lots:     lotCounts[i],
		}
	}
	return out
}

// Summarize totals the monthly figures. Pending payments are estimated as
// 40% of the year's revenue reported by the backend.
func Summarize(monthly []MonthlyData, totalRevenue float64) FinancialSummary {
	rev, exp := decimal.Zero, decimal.Zero
	for _, m := range monthly {
		rev = rev.Add(decimal.NewFromFloat(m.Revenue))
		exp = exp.Add(decimal.NewFromFloat(m.Expenses))
	}
	return FinancialSummary{
		TotalRevenue:    rev.InexactFloat64(),
		TotalExpenses:   exp.InexactFloat64(),
		NetProfit:       rev.Sub(exp).InexactFloat64(),
		PendingPayments: decimal.NewFromFloat(totalRevenue).Mul(decimal.NewFromFloat(0.4)).InexactFloat64(),
	}
}

// TopWorkers returns up to n workers with positive output, highest first.
func TopWorkers(workers []WorkerProductivity, n int) []WorkerProductivity {
	out := make([]WorkerProductivity, 0, len(workers))
	for _, w := range workers {
		if w.UnitsProduced > 0 {
			out = append(out, w)
		}
	}
	sort.SliceStable(out, func(i, j int) bool {
		return out[i].UnitsProduced > out[j].UnitsProduced
	})
	if n >= 0 && len(out) > n {
		out = out[:n]
	}
	return out
}

func timestamp(v any) time.Time {
	t, _ := format.ParseDate(v)
	return t
}

// newestFirst sorts records by a date field, unparseable dates last.
func newestFirst(records []Record, field string) []Record {
	out := append([]Record(nil), records...)
	sort.SliceStable(out, func(i, j int) bool {
		return timestamp(out[i][field]).After(timestamp(out[j][field]))
	})
	return out
}

// RecentActivities merges the latest completed lots and the latest payments
// into one feed, newest first.
func RecentActivities(lots, ledger, clients []Record) []Activity {
	var completed []Record
	for _, l := range lots {
		if format.ToString(l["lot_status"]) == "Completed" {
			completed = append(completed, l)
		}
	}
	completed = newestFirst(completed, "updated_at")
	if len(completed) > completedLotsInFeed {
		completed = completed[:completedLotsInFeed]
	}

	payments := newestFirst(ledger, "payment_date")
	if len(payments) > paymentsInFeed {
		payments = payments[:paymentsInFeed]
	}

	activities := make([]Activity, 0, len(completed)+len(payments))
	for _, l := range completed {
		activities = append(activities, Activity{
			Type:      "lot_completed",
			Title:     "Lot #" + format.ToString(l["lot_id"]) + " completed",
			Timestamp: format.ToString(l["updated_at"]),
			Icon:      "CheckCircle",
			Color:     "text-green-500",
		})
	}
	for _, p := range payments {
		activities = append(activities, Activity{
			Type:      "payment_received",
			Title:     "Payment received - " + format.Currency(amount(p["amount_paid"]).InexactFloat64()),
			Subtitle:  clientName(clients, p["client_id"]),
			Timestamp: format.ToString(p["payment_date"]),
			Icon:      "DollarSign",
			Color:     "text-green-500",
		})
	}

	sort.SliceStable(activities, func(i, j int) bool {
		return timestamp(activities[i].Timestamp).After(timestamp(activities[j].Timestamp))
	})
	if len(activities) > maxActivities {
		activities = activities[:maxActivities]
	}
	return activities
}

func clientName(clients []Record, id any) string {
	for _, c := range clients {
		if format.Equal(c["client_id"], id) {
			if name := format.ToString(c["name"]); name != "" {
				return name
			}
			break
		}
	}
	return "Unknown Client"
}
