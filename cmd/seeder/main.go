// cmd/seeder/main.go
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"math/rand/v2"
	"os"
	"strings"
	"time"

	"github.com/ammerola/stockflow/internal/adapters/events"
	"github.com/ammerola/stockflow/internal/adapters/spreadsheet"
	"github.com/ammerola/stockflow/internal/bootstrap"
	"github.com/ammerola/stockflow/internal/core/domain"
	"github.com/ammerola/stockflow/internal/core/ports"
	"github.com/ammerola/stockflow/internal/core/services"
	"github.com/ammerola/stockflow/internal/pkg/config"
	"github.com/ammerola/stockflow/internal/pkg/logger"
	"github.com/ammerola/stockflow/internal/workers"
)

var (
	warehouseFixtures = []domain.Warehouse{
		{Name: "Central", Location: "Lyon"},
		{Name: "North", Location: "Lille"},
		{Name: "South", Location: "Marseille"},
		{Name: "West", Location: "Nantes"},
	}
	supplierFixtures = []domain.Supplier{
		{Name: "Acme Components", Email: "orders@acme.example", Phone: "+33 1 23 45 67 89"},
		{Name: "Globex Supply", Email: "sales@globex.example"},
		{Name: "Initech Parts", Email: "po@initech.example"},
	}
)

// seeder populates a development database through the api's services
type seeder struct {
	warehouses *services.WarehouseDirectory
	suppliers  *services.SupplierDirectory
	supplierDB ports.SupplierRepository
	alerts     *services.AlertService
	ledger     *services.LedgerService
	orders     *services.PurchaseOrderService
	rng        *rand.Rand
	dryRun     bool
	logger     *slog.Logger
}

type summary struct {
	warehouses  int
	suppliers   int
	thresholds  int
	adjustments int
	orders      int
	received    int
	failed      []string
}

func main() {
	var (
		products   = flag.Int("products", 20, "Number of catalog product ids to seed stock for (1..n)")
		warehouses = flag.Int("warehouses", 3, "Number of warehouses to create")
		threshold  = flag.Int64("threshold", 10, "Reorder threshold for every product and warehouse")
		maxStock   = flag.Int64("max-stock", 50, "Upper bound for random opening stock")
		orders     = flag.Int("orders", 10, "Number of sample purchase orders")
		receive    = flag.Float64("receive", 0.5, "Fraction of sample orders to receive")
		stockSheet = flag.String("stock-sheet", "", "Stock count workbook used instead of random opening stock")
		seed       = flag.Uint64("seed", uint64(time.Now().UnixNano()), "Random seed")
		logLevel   = flag.String("log-level", "info", "Log level (debug, info, warn, error)")
		dryRun     = flag.Bool("dry-run", false, "Preview changes without modifying database")
	)
	flag.Parse()

	slogger := logger.SetupLogger(logger.Options{Level: *logLevel, Format: "text", Service: "stockflow-seeder"})

	cfg, err := config.Load(slogger)
	if err != nil {
		slogger.Error("failed to load configuration", slog.String("error", err.Error()))
		os.Exit(1)
	}

	ctx := context.Background()

	database, err := bootstrap.Database(ctx, cfg, bootstrap.Pool{Max: 4, Min: 1}, slogger)
	if err != nil {
		slogger.Error("failed to connect to database", slog.String("error", err.Error()))
		os.Exit(1)
	}
	defer database.Close()

	repos := bootstrap.NewRepositories(database, slogger)
	alertService := services.NewAlertService(repos.Alerts, repos.Thresholds, nil, *threshold, slogger)
	publisher := events.NewInlinePublisher(workers.NewStockEventProcessor(alertService, repos.Stock, slogger).Handle, slogger)

	s := &seeder{
		warehouses: services.NewWarehouseDirectory(repos.Warehouses, slogger),
		suppliers:  services.NewSupplierDirectory(repos.Suppliers, slogger),
		supplierDB: repos.Suppliers,
		alerts:     alertService,
		ledger:     services.NewLedgerService(repos.Stock, publisher, nil, 0, slogger),
		orders:     services.NewPurchaseOrderService(repos.Orders, repos.Suppliers, repos.Tx, publisher, slogger),
		rng:    rand.New(rand.NewPCG(*seed, *seed>>1)),
		dryRun: *dryRun,
		logger: slogger,
	}

	var sum summary

	warehouseIDs, err := s.seedWarehouses(ctx, *warehouses, &sum)
	if err != nil {
		slogger.Error("failed to seed warehouses", slog.String("error", err.Error()))
		os.Exit(1)
	}
	supplierIDs, err := s.seedSuppliers(ctx, &sum)
	if err != nil {
		slogger.Error("failed to seed suppliers", slog.String("error", err.Error()))
		os.Exit(1)
	}

	s.seedThresholds(ctx, *products, warehouseIDs, *threshold, &sum)

	if *stockSheet != "" {
		if err := s.seedStockFromSheet(ctx, *stockSheet, &sum); err != nil {
			slogger.Error("failed to load stock sheet", slog.String("error", err.Error()))
			os.Exit(1)
		}
	} else {
		s.seedOpeningStock(ctx, *products, warehouseIDs, *maxStock, &sum)
	}

	s.seedOrders(ctx, *orders, *products, warehouseIDs, supplierIDs, *receive, &sum)

	printSummary(sum, *dryRun)

	slogger.Info("seed operation completed",
		slog.Int("warehouses", sum.warehouses),
		slog.Int("suppliers", sum.suppliers),
		slog.Int("adjustments", sum.adjustments),
		slog.Int("orders", sum.orders),
		slog.Int("failed", len(sum.failed)))
}

// seedWarehouses creates the first n fixtures that do not exist yet and
// returns the ids of all n.
func (s *seeder) seedWarehouses(ctx context.Context, n int, sum *summary) ([]int64, error) {
	existing, err := s.warehouses.List(ctx)
	if err != nil {
		return nil, err
	}
	byName := make(map[string]int64, len(existing))
	for _, w := range existing {
		byName[strings.ToLower(w.Name)] = w.ID
	}

	n = min(n, len(warehouseFixtures))
	ids := make([]int64, 0, n)
	for i, fixture := range warehouseFixtures[:n] {
		if id, ok := byName[strings.ToLower(fixture.Name)]; ok {
			ids = append(ids, id)
			continue
		}
		if s.dryRun {
			fmt.Printf("DRY RUN: would create warehouse %q\n", fixture.Name)
			ids = append(ids, int64(-(i + 1)))
			continue
		}

		w := fixture
		if err := s.warehouses.Create(ctx, &w); err != nil {
			return nil, fmt.Errorf("warehouse %q: %w", fixture.Name, err)
		}
		fmt.Printf("SUCCESS: created warehouse %d %q\n", w.ID, w.Name)
		ids = append(ids, w.ID)
		sum.warehouses++
	}
	return ids, nil
}

func (s *seeder) seedSuppliers(ctx context.Context, sum *summary) ([]int64, error) {
	ids := make([]int64, 0, len(supplierFixtures))
	for i, fixture := range supplierFixtures {
		found, err := s.supplierDB.FindByName(ctx, fixture.Name)
		if err != nil {
			return nil, err
		}
		if found != nil {
			ids = append(ids, found.ID)
			continue
		}
		if s.dryRun {
			fmt.Printf("DRY RUN: would create supplier %q\n", fixture.Name)
			ids = append(ids, int64(-(i + 1)))
			continue
		}

		sup := fixture
		if err := s.suppliers.Create(ctx, &sup); err != nil {
			return nil, fmt.Errorf("supplier %q: %w", fixture.Name, err)
		}
		fmt.Printf("SUCCESS: created supplier %d %q\n", sup.ID, sup.Name)
		ids = append(ids, sup.ID)
		sum.suppliers++
	}
	return ids, nil
}

func (s *seeder) seedThresholds(ctx context.Context, products int, warehouses []int64, level int64, sum *summary) {
	if s.dryRun {
		fmt.Printf("DRY RUN: would set %d thresholds to %d\n", products*len(warehouses), level)
		return
	}
	for p := int64(1); p <= int64(products); p++ {
		for _, w := range warehouses {
			t := &domain.Threshold{ProductID: p, WarehouseID: w, Threshold: level}
			if err := s.alerts.SetThreshold(ctx, t); err != nil {
				sum.failed = append(sum.failed, fmt.Sprintf("threshold %d:%d: %v", p, w, err))
				continue
			}
			sum.thresholds++
		}
	}
}

// seedOpeningStock gives every key a random quantity. Roughly one key in
// five starts below the threshold so alerts show up.
func (s *seeder) seedOpeningStock(ctx context.Context, products int, warehouses []int64, maxStock int64, sum *summary) {
	for p := int64(1); p <= int64(products); p++ {
		for _, w := range warehouses {
			qty := s.rng.Int64N(maxStock + 1)
			if s.rng.IntN(5) == 0 {
				qty = s.rng.Int64N(5)
			}
			s.adjust(ctx, domain.StockAdjustment{ProductID: p, WarehouseID: w, Delta: qty}, sum)
		}
	}
}

func (s *seeder) seedStockFromSheet(ctx context.Context, path string, sum *summary) error {
	rows, err := spreadsheet.ReadStockCount(path)
	if err != nil {
		return err
	}

	for i, row := range rows {
		fmt.Printf("PROGRESS: row %d/%d\n", i+1, len(rows))
		if row.Err != nil {
			sum.failed = append(sum.failed, fmt.Sprintf("line %d: %v", row.Line, row.Err))
			continue
		}

		if row.Counted != nil && !s.dryRun {
			key := domain.StockKey{ProductID: row.ProductID, WarehouseID: row.WarehouseID}
			changed, err := workers.ApplyCount(ctx, s.ledger, key, *row.Counted)
			switch {
			case err != nil:
				sum.failed = append(sum.failed, fmt.Sprintf("line %d: %v", row.Line, err))
			case changed:
				sum.adjustments++
			}
			continue
		}

		delta := int64(0)
		switch {
		case row.Delta != nil:
			delta = *row.Delta
		case row.Counted != nil:
			delta = *row.Counted
		}
		s.adjust(ctx, domain.StockAdjustment{ProductID: row.ProductID, WarehouseID: row.WarehouseID, Delta: delta}, sum)
	}
	return nil
}

func (s *seeder) adjust(ctx context.Context, adj domain.StockAdjustment, sum *summary) {
	if s.dryRun {
		s.logger.Debug("would adjust stock",
			slog.Int64("product_id", adj.ProductID),
			slog.Int64("warehouse_id", adj.WarehouseID),
			slog.Int64("delta", adj.Delta))
		sum.adjustments++
		return
	}
	if _, err := s.ledger.Adjust(ctx, adj); err != nil {
		sum.failed = append(sum.failed, fmt.Sprintf("adjust %d:%d %+d: %v", adj.ProductID, adj.WarehouseID, adj.Delta, err))
		return
	}
	sum.adjustments++
}

func (s *seeder) seedOrders(ctx context.Context, n, products int, warehouses, suppliers []int64, receive float64, sum *summary) {
	if len(warehouses) == 0 || len(suppliers) == 0 || products == 0 {
		return
	}

	for i := range n {
		fmt.Printf("PROGRESS: order %d/%d\n", i+1, n)

		items := make([]domain.POItem, 0, 3)
		seen := map[int64]bool{}
		for range 1 + s.rng.IntN(3) {
			p := 1 + s.rng.Int64N(int64(products))
			if seen[p] {
				continue
			}
			seen[p] = true
			items = append(items, domain.POItem{ProductID: p, Quantity: 1 + s.rng.Int64N(25)})
		}

		in := ports.CreatePurchaseOrderInput{
			SupplierID:  suppliers[s.rng.IntN(len(suppliers))],
			WarehouseID: warehouses[s.rng.IntN(len(warehouses))],
			Reference:   fmt.Sprintf("SEED-%04d", i+1),
			Items:       items,
		}
		if s.dryRun {
			sum.orders++
			continue
		}

		po, err := s.orders.Create(ctx, in)
		if err != nil {
			sum.failed = append(sum.failed, fmt.Sprintf("order %s: %v", in.Reference, err))
			continue
		}
		sum.orders++

		if s.rng.Float64() >= receive {
			continue
		}
		if _, err := s.orders.Receive(ctx, po.ID); err != nil {
			sum.failed = append(sum.failed, fmt.Sprintf("receive %d: %v", po.ID, err))
			continue
		}
		sum.received++
	}
}

func printSummary(sum summary, dryRun bool) {
	fmt.Println("\n" + strings.Repeat("=", 60))
	fmt.Println("SEEDING SUMMARY")
	fmt.Println(strings.Repeat("=", 60))
	fmt.Printf("Warehouses created:  %d\n", sum.warehouses)
	fmt.Printf("Suppliers created:   %d\n", sum.suppliers)
	fmt.Printf("Thresholds set:      %d\n", sum.thresholds)
	fmt.Printf("Stock adjustments:   %d\n", sum.adjustments)
	fmt.Printf("Purchase orders:     %d (%d received)\n", sum.orders, sum.received)

	if len(sum.failed) > 0 {
		fmt.Printf("\nFailures (%d):\n", len(sum.failed))
		for _, f := range sum.failed {
			fmt.Printf("  - %s\n", f)
		}
	}

	if dryRun {
		fmt.Println("\n[DRY RUN] No changes were made to the database")
	}
}
