// internal/core/services/report.go
package services

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/shopspring/decimal"
	"golang.org/x/sync/errgroup"

	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
)

const upstreamFailurePrefix = "report:upstream_failures:"

// ReportService joins the product catalog with ledger and order data.
// A collaborator that fails or times out contributes an empty slice and
// marks the report degraded instead of failing it.
type ReportService struct {
	catalog       ports.ProductCatalog
	stock         ports.StockReader
	orders        ports.PurchaseOrderReader
	counters      ports.CacheRepository
	sourceTimeout time.Duration
	logger        *slog.Logger
	now           func() time.Time
}

var _ ports.ReportService = (*ReportService)(nil)

// NewReportService creates a new report service. counters may be nil.
func NewReportService(
	catalog ports.ProductCatalog,
	stock ports.StockReader,
	orders ports.PurchaseOrderReader,
	counters ports.CacheRepository,
	sourceTimeout time.Duration,
	logger *slog.Logger,
) *ReportService {
	if sourceTimeout <= 0 {
		sourceTimeout = 5 * time.Second
	}
	return &ReportService{
		catalog:       catalog,
		stock:         stock,
		orders:        orders,
		counters:      counters,
		sourceTimeout: sourceTimeout,
		logger:        logger.With(slog.String("service", "report")),
		now:           func() time.Time { return time.Now().UTC() },
	}
}

// fetcher collects source results for one report. Each source runs in its
// own goroutine under its own timeout.
type fetcher struct {
	svc  *ReportService
	g    *errgroup.Group
	gctx context.Context
	mu   sync.Mutex
	meta domain.ReportMeta
}

func (s *ReportService) newFetcher(ctx context.Context) *fetcher {
	g, gctx := errgroup.WithContext(ctx)
	return &fetcher{
		svc:  s,
		g:    g,
		gctx: gctx,
		meta: domain.ReportMeta{GeneratedAt: s.now()},
	}
}

// run calls fn under the per-source timeout. A source failure is recorded
// and swallowed; only cancellation of the caller's context aborts the group.
func (f *fetcher) run(source string, fn func(ctx context.Context) error) {
	f.g.Go(func() error {
		ctx, cancel := context.WithTimeout(f.gctx, f.svc.sourceTimeout)
		defer cancel()

		err := fn(ctx)
		if err == nil {
			return nil
		}
		if parent := f.gctx.Err(); parent != nil {
			return parent
		}

		upstream := domain.NewUpstreamError(source, err)
		f.mu.Lock()
		f.meta.MarkFailed(source, upstream)
		f.mu.Unlock()
		f.svc.recordFailure(f.gctx, source, err)
		return nil
	})
}

func (f *fetcher) wait() (domain.ReportMeta, error) {
	if err := f.g.Wait(); err != nil {
		return domain.ReportMeta{}, err
	}
	return f.meta, nil
}

func (s *ReportService) recordFailure(ctx context.Context, source string, err error) {
	s.logger.WarnContext(ctx, "report source failed, continuing degraded",
		slog.String("source", source),
		slog.String("error", err.Error()))

	if s.counters == nil {
		return
	}
	if _, cerr := s.counters.IncrementBy(context.WithoutCancel(ctx), upstreamFailurePrefix+source, 1); cerr != nil {
		s.logger.DebugContext(ctx, "failed to count upstream failure",
			slog.String("source", source),
			slog.String("error", cerr.Error()))
	}
}

// StockValuation values total stock per product at catalog price
func (s *ReportService) StockValuation(ctx context.Context) (*domain.StockValuationReport, error) {
	var (
		products []*domain.Product
		entries  []*domain.StockEntry
	)

	f := s.newFetcher(ctx)
	f.run(domain.SourceProducts, func(ctx context.Context) error {
		list, err := s.catalog.ListProducts(ctx)
		if err != nil {
			return err
		}
		products = list
		return nil
	})
	f.run(domain.SourceStock, func(ctx context.Context) error {
		list, err := s.stock.List(ctx, domain.StockFilter{})
		if err != nil {
			return err
		}
		entries = list
		return nil
	})

	meta, err := f.wait()
	if err != nil {
		return nil, err
	}

	totals := domain.SumByProduct(entries)
	index := domain.IndexProducts(products)

	ids := make(map[int64]struct{}, len(index)+len(totals))
	for id := range index {
		ids[id] = struct{}{}
	}
	// stock outside a healthy catalog belongs to retired products
	if _, failed := meta.Errors[domain.SourceProducts]; failed {
		for id := range totals {
			ids[id] = struct{}{}
		}
	}

	report := &domain.StockValuationReport{
		ReportMeta: meta,
		Rows:       make([]domain.StockValuationRow, 0, len(ids)),
		TotalValue: decimal.Zero,
	}
	for _, id := range sortedIDs(ids) {
		p := index[id]
		qty := totals[id]
		price := p.UnitPrice()
		value := price.Mul(decimal.NewFromInt(qty))

		report.Rows = append(report.Rows, domain.StockValuationRow{
			ProductID:   id,
			ProductName: p.DisplayName(),
			Quantity:    qty,
			Price:       price,
			TotalValue:  value,
		})
		report.TotalValue = report.TotalValue.Add(value)
	}

	s.logger.DebugContext(ctx, "stock valuation built",
		slog.Int("rows", len(report.Rows)),
		slog.Bool("degraded", report.Degraded))

	return report, nil
}

// Turnover totals ordered quantity and revenue per product
func (s *ReportService) Turnover(ctx context.Context, opts domain.TurnoverOptions) (*domain.TurnoverReport, error) {
	var (
		products []*domain.Product
		orders   []*domain.PurchaseOrder
	)

	f := s.newFetcher(ctx)
	f.run(domain.SourceProducts, func(ctx context.Context) error {
		list, err := s.catalog.ListProducts(ctx)
		if err != nil {
			return err
		}
		products = list
		return nil
	})
	f.run(domain.SourcePurchaseOrders, func(ctx context.Context) error {
		list, err := s.orders.List(ctx, domain.PurchaseOrderFilter{Statuses: opts.Statuses()})
		if err != nil {
			return err
		}
		orders = list
		return nil
	})

	meta, err := f.wait()
	if err != nil {
		return nil, err
	}

	sold := make(map[int64]int64)
	ids := make(map[int64]struct{})
	for _, po := range orders {
		for _, item := range po.Items {
			sold[item.ProductID] += item.Quantity
			ids[item.ProductID] = struct{}{}
		}
	}

	index := domain.IndexProducts(products)
	report := &domain.TurnoverReport{
		ReportMeta:   meta,
		ReceivedOnly: opts.ReceivedOnly,
		Rows:         make([]domain.TurnoverRow, 0, len(ids)),
		TotalRevenue: decimal.Zero,
	}
	for _, id := range sortedIDs(ids) {
		p := index[id]
		revenue := p.UnitPrice().Mul(decimal.NewFromInt(sold[id]))

		report.Rows = append(report.Rows, domain.TurnoverRow{
			ProductID:    id,
			ProductName:  p.DisplayName(),
			QuantitySold: sold[id],
			TotalRevenue: revenue,
		})
		report.TotalRevenue = report.TotalRevenue.Add(revenue)
	}

	s.logger.DebugContext(ctx, "turnover built",
		slog.Int("rows", len(report.Rows)),
		slog.Bool("received_only", opts.ReceivedOnly),
		slog.Bool("degraded", report.Degraded))

	return report, nil
}

func sortedIDs(set map[int64]struct{}) []int64 {
	ids := make([]int64, 0, len(set))
	for id := range set {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids
}
