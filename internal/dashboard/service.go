package dashboard

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"golang.org/x/sync/errgroup"

	"shankh-dashboard/internal/instrument"
	"shankh-dashboard/internal/metadata"
)

// Fetcher reads dashboard resources and raw collections from the backend.
type Fetcher interface {
	GetJSON(ctx context.Context, path string, out any) error
	List(ctx context.Context, entity string, envelopeKeys ...string) ([]map[string]any, error)
}

type Stats struct {
	TotalClients       int     `json:"total_clients"`
	ActiveOrders       int     `json:"active_orders"`
	OngoingLots        int     `json:"ongoing_lots"`
	TotalRevenue       float64 `json:"total_revenue"`
	OverduePayments    int     `json:"overdue_payments"`
	WorkerProductivity float64 `json:"worker_productivity"`
}

type LotStatus struct {
	Name  string `json:"name"`
	Value int    `json:"value"`
	Color string `json:"color"`
}

type InventoryUsage struct {
	Material  string  `json:"material"`
	Used      float64 `json:"used"`
	Remaining float64 `json:"remaining"`
}

// Snapshot is everything the dashboard page shows. Monthly and Activities
// are omitted when any raw collection could not be read.
type Snapshot struct {
	Stats              Stats                `json:"stats"`
	LotStatus          []LotStatus          `json:"lotStatus"`
	WorkerProductivity []WorkerProductivity `json:"workerProductivity"`
	TopWorkers         []WorkerProductivity `json:"topWorkers"`
	InventoryUsage     []InventoryUsage     `json:"inventoryUsage"`
	Monthly            []MonthlyData        `json:"monthlyData"`
	Financial          FinancialSummary     `json:"financialSummary"`
	Activities         []Activity           `json:"recentActivities"`
	GeneratedAt        time.Time            `json:"generatedAt"`
}

// rawSources are the collections the page aggregates itself.
var rawSources = []string{"client_orders", "client_ledger", "lot_expenses", "lots", "clients"}

type Service struct {
	fetcher  Fetcher
	registry *metadata.Registry
	now      func() time.Time
}

func NewService(fetcher Fetcher, reg *metadata.Registry) *Service {
	return &Service{fetcher: fetcher, registry: reg, now: time.Now}
}

// Snapshot fetches the backend summaries and raw collections concurrently,
// then aggregates. A failed summary endpoint fails the snapshot; a failed
// raw collection only drops the figures derived from it.
func (s *Service) Snapshot(ctx context.Context) (*Snapshot, error) {
	ctx, span := instrument.FromContext(ctx).StartSpan(ctx, "dashboard", "snapshot")
	defer span.End()

	snap := &Snapshot{GeneratedAt: s.now()}
	raw := make([][]map[string]any, len(rawSources))
	rawErrs := make([]error, len(rawSources))

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return s.fetcher.GetJSON(gctx, "/dashboard/stats", &snap.Stats) })
	g.Go(func() error { return s.fetcher.GetJSON(gctx, "/dashboard/lot-status", &snap.LotStatus) })
	g.Go(func() error { return s.fetcher.GetJSON(gctx, "/dashboard/worker-productivity", &snap.WorkerProductivity) })
	g.Go(func() error { return s.fetcher.GetJSON(gctx, "/dashboard/inventory-usage", &snap.InventoryUsage) })
	for i, name := range rawSources {
		g.Go(func() error {
			raw[i], rawErrs[i] = s.fetcher.List(gctx, s.path(name), s.envelopeKeys(name)...)
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		span.SetStatus("error")
		return nil, fmt.Errorf("dashboard: %w", err)
	}

	snap.TopWorkers = TopWorkers(snap.WorkerProductivity, DefaultTopWorkers)

	for i, err := range rawErrs {
		if err != nil {
			slog.WarnContext(ctx, "Dashboard source unavailable", "entity", rawSources[i], "err", err)
			span.SetStatus("partial")
			return snap, nil
		}
	}
	orders, ledger, expenses, lots, clients := raw[0], raw[1], raw[2], raw[3], raw[4]
	snap.Monthly = ComputeMonthlyData(orders, ledger, expenses, lots, snap.GeneratedAt.Year())
	snap.Financial = Summarize(snap.Monthly, snap.Stats.TotalRevenue)
	snap.Activities = RecentActivities(lots, ledger, clients)
	span.SetStatus("ok")
	return snap, nil
}

func (s *Service) path(entity string) string {
	if s.registry != nil {
		if e := s.registry.GetEntity(entity); e != nil {
			return e.CollectionPath()
		}
	}
	return entity
}

func (s *Service) envelopeKeys(entity string) []string {
	if s.registry != nil {
		if e := s.registry.GetEntity(entity); e != nil {
			return e.EnvelopeKeys
		}
	}
	return nil
}
