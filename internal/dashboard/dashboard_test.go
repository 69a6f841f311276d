package dashboard

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestComputeMonthlyData_OrdersBucketedByMonth(t *testing.T) {
	orders := []Record{
		{"order_id": 1.0, "created_at": "2025-01-10T09:00:00"},
		{"order_id": 2.0, "created_at": "2025-01-28"},
		{"order_id": 3.0, "created_at": "2025-04-02"},
		{"order_id": 4.0, "created_at": "Wed, 10 Sep 2025 00:00:00 GMT"},
		{"order_id": 5.0, "created_at": "2024-04-02"},
		{"order_id": 6.0},
	}

	months := ComputeMonthlyData(orders, nil, nil, nil, 2025)
	require.Len(t, months, 12)

	want := map[string]int{"Jan": 2, "Apr": 1, "Sep": 1}
	for _, m := range months {
		assert.Equal(t, want[m.Name], m.Orders, m.Name)
	}
}

func TestComputeMonthlyData_Sums(t *testing.T) {
	ledger := []Record{
		{"payment_date": "2025-03-01", "amount_paid": 0.1},
		{"payment_date": "2025-03-15", "amount_paid": "0.2"},
		{"payment_date": "2025-03-20", "amount_paid": "n/a"},
	}
	expenses := []Record{{"expense_date": "2025-03-05", "amount": 40.0}}
	lots := []Record{{"created_at": "2025-03-02"}, {"created_at": "2025-12-31"}}

	months := ComputeMonthlyData(nil, ledger, expenses, lots, 2025)
	assert.Equal(t, 0.3, months[2].Revenue)
	assert.Equal(t, 40.0, months[2].Expenses)
	assert.Equal(t, 1, months[2].Lots)
	assert.Equal(t, 1, months[11].Lots)

	sum := Summarize(months, 1000)
	assert.Equal(t, 0.3, sum.TotalRevenue)
	assert.Equal(t, -39.7, sum.NetProfit)
	assert.Equal(t, 400.0, sum.PendingPayments)
}

func TestTopWorkers(t *testing.T) {
	workers := []WorkerProductivity{
		{Name: "a", UnitsProduced: 5},
		{Name: "idle", UnitsProduced: 0},
		{Name: "b", UnitsProduced: 50},
		{Name: "c", UnitsProduced: 20},
		{Name: "d", UnitsProduced: 20},
	}
	top := TopWorkers(workers, 3)
	require.Len(t, top, 3)
	assert.Equal(t, []string{"b", "c", "d"}, []string{top[0].Name, top[1].Name, top[2].Name})
	assert.Empty(t, TopWorkers([]WorkerProductivity{{Name: "idle"}}, 3))
}

func TestRecentActivities(t *testing.T) {
	var lots []Record
	for i := 1; i <= 7; i++ {
		lots = append(lots, Record{
			"lot_id":     float64(i),
			"lot_status": "Completed",
			"updated_at": fmt.Sprintf("2025-01-%02dT10:00:00", i),
		})
	}
	lots = append(lots, Record{"lot_id": 99.0, "lot_status": "Pending", "updated_at": "2025-02-01"})

	ledger := []Record{
		{"payment_date": "2025-01-03", "amount_paid": 1500.0, "client_id": 1.0},
		{"payment_date": "2025-01-20", "amount_paid": "250", "client_id": 2.0},
		{"payment_date": "2025-01-10", "amount_paid": 10.0, "client_id": 1.0},
		{"payment_date": "2024-12-01", "amount_paid": 5.0, "client_id": 1.0},
	}
	clients := []Record{{"client_id": 1.0, "name": "Asha"}}

	acts := RecentActivities(lots, ledger, clients)
	require.Len(t, acts, 8)

	assert.Equal(t, "payment_received", acts[0].Type)
	assert.Equal(t, "Payment received - $250", acts[0].Title)
	assert.Equal(t, "Unknown Client", acts[0].Subtitle)

	var lotTitles []string
	for _, a := range acts {
		if a.Type == "lot_completed" {
			lotTitles = append(lotTitles, a.Title)
		}
	}
	assert.Equal(t, []string{
		"Lot #7 completed", "Lot #6 completed", "Lot #5 completed", "Lot #4 completed", "Lot #3 completed",
	}, lotTitles)

	for i := 1; i < len(acts); i++ {
		prev, _ := time.Parse("2006-01-02", acts[i-1].Timestamp[:10])
		cur, _ := time.Parse("2006-01-02", acts[i].Timestamp[:10])
		assert.False(t, cur.After(prev), "activities must be newest first")
	}
}

type fakeFetcher struct {
	json    map[string]string
	lists   map[string][]map[string]any
	failOn  string
	listErr error
}

func (f *fakeFetcher) GetJSON(_ context.Context, path string, out any) error {
	if path == f.failOn {
		return errors.New("HTTP error! status: 500")
	}
	return json.Unmarshal([]byte(f.json[path]), out)
}

func (f *fakeFetcher) List(_ context.Context, entity string, _ ...string) ([]map[string]any, error) {
	if f.listErr != nil {
		return nil, f.listErr
	}
	return f.lists[entity], nil
}

func newFakeFetcher() *fakeFetcher {
	year := time.Now().Year()
	return &fakeFetcher{
		json: map[string]string{
			"/dashboard/stats":                `{"total_clients":4,"active_orders":2,"ongoing_lots":1,"total_revenue":1000,"overdue_payments":0,"worker_productivity":12.5}`,
			"/dashboard/lot-status":           `[{"name":"Completed","value":3,"color":"#10b981"}]`,
			"/dashboard/worker-productivity":  `[{"name":"Meena","unitsProduced":40,"efficiency":40},{"name":"Ravi","unitsProduced":0,"efficiency":0}]`,
			"/dashboard/inventory-usage":      `[{"material":"Cotton","used":10,"remaining":20}]`,
		},
		lists: map[string][]map[string]any{
			"client_orders": {{"created_at": fmt.Sprintf("%d-02-01", year)}},
			"client_ledger": {{"payment_date": fmt.Sprintf("%d-02-03", year), "amount_paid": 100.0, "client_id": 1.0}},
			"clients":       {{"client_id": 1.0, "name": "Asha"}},
		},
	}
}

func TestServiceSnapshot(t *testing.T) {
	svc := NewService(newFakeFetcher(), nil)
	snap, err := svc.Snapshot(context.Background())
	require.NoError(t, err)

	assert.Equal(t, 4, snap.Stats.TotalClients)
	assert.Equal(t, 12.5, snap.Stats.WorkerProductivity)
	require.Len(t, snap.TopWorkers, 1)
	assert.Equal(t, "Meena", snap.TopWorkers[0].Name)
	require.Len(t, snap.Monthly, 12)
	assert.Equal(t, 1, snap.Monthly[1].Orders)
	assert.Equal(t, 100.0, snap.Monthly[1].Revenue)
	assert.Equal(t, 400.0, snap.Financial.PendingPayments)
	require.Len(t, snap.Activities, 1)
	assert.Equal(t, "Asha", snap.Activities[0].Subtitle)
}

func TestServiceSnapshot_SummaryFailure(t *testing.T) {
	f := newFakeFetcher()
	f.failOn = "/dashboard/lot-status"
	_, err := NewService(f, nil).Snapshot(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "HTTP error! status: 500")
}

func TestServiceSnapshot_RawFailureIsPartial(t *testing.T) {
	f := newFakeFetcher()
	f.listErr = errors.New("lots down")
	snap, err := NewService(f, nil).Snapshot(context.Background())
	require.NoError(t, err)
	assert.Nil(t, snap.Monthly)
	assert.Nil(t, snap.Activities)
	assert.Len(t, snap.LotStatus, 1)
}
