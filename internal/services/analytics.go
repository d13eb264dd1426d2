package services

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync"
	"sync/atomic"
	"time"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"golang.org/x/sync/errgroup"

	"ze-dashboard/internal/ingest"
	"ze-dashboard/internal/models"
	"ze-dashboard/internal/observability"
	"ze-dashboard/internal/revenue"
)

const maxWorkers = 4

var ErrNoData = errors.New("no data loaded yet")

// Fetcher loads raw bytes from a source location.
type Fetcher interface {
	Fetch(ctx context.Context, location string) ([]byte, error)
}

type Options struct {
	FirmsLocation string
	POSLocation   string
	Granularity   models.Granularity
	Policy        models.Policy
	// Thresholds for the three-way policy and firm assessment; nil means
	// revenue.DefaultThreeWay.
	Thresholds *revenue.ThreeWay
	Logger        *slog.Logger
	Metrics       *observability.Metrics
	Now           func() time.Time
}

// Snapshot is one consistent view of the pipeline output. It is never
// modified after publication.
type Snapshot struct {
	Firms        []models.FirmAssessment  `json:"firms"`
	Daily        []models.RevenueByPeriod `json:"daily"`
	Monthly      []models.RevenueByPeriod `json:"monthly"`
	ProductDaily []models.RevenueByPeriod `json:"product_daily"`
	Trend        []models.TrendPoint      `json:"trend"`

	Granularity    models.Granularity         `json:"granularity"`
	Policy         models.Policy              `json:"policy"`
	EntityRevenue  []models.RevenueByPeriod   `json:"-"`
	ProductRevenue []models.RevenueByPeriod   `json:"-"`
	Period         models.Period              `json:"period"`
	HasPeriod      bool                       `json:"has_period"`
	Entities       []models.PerformanceRecord `json:"entities"`
	Products       []models.PerformanceRecord `json:"products"`
	EntityLeaders  models.Leaders             `json:"entity_leaders"`
	ProductLeaders models.Leaders             `json:"product_leaders"`

	Summary      models.RevenueSummary `json:"summary"`
	RefreshedAt  time.Time             `json:"refreshed_at"`
	Source       string                `json:"source"`
	FirmCount    int                   `json:"firm_count"`
	Transactions int                   `json:"transactions"`
}

// Performance returns the records and leaders for a grouping.
func (s *Snapshot) Performance(group models.GroupBy) ([]models.PerformanceRecord, models.Leaders) {
	if group == models.GroupEntityProduct {
		return s.Products, s.ProductLeaders
	}
	return s.Entities, s.EntityLeaders
}

type Analytics struct {
	opts       Options
	fetcher    Fetcher
	classifier revenue.Classifier
	logger     *slog.Logger
	metrics    *observability.Metrics

	// refreshMu serializes snapshot builds so inputs and snapshot stay paired.
	refreshMu sync.Mutex

	mu        sync.RWMutex
	snapshot  *Snapshot
	firms     []models.Firm
	txs       []models.Transaction
	posPinned bool
	lastErr   error

	subMu sync.Mutex
	subs  map[chan struct{}]struct{}

	refreshes atomic.Int64
	failures  atomic.Int64
}

func NewAnalytics(fetcher Fetcher, opts Options) (*Analytics, error) {
	if opts.Granularity == "" {
		opts.Granularity = models.GranularityDay
	}
	if opts.Policy == "" {
		opts.Policy = models.PolicyTwoWay
	}
	if opts.Thresholds == nil {
		defaults := revenue.DefaultThreeWay()
		opts.Thresholds = &defaults
	}
	if opts.Logger == nil {
		opts.Logger = slog.Default()
	}
	if opts.Metrics == nil {
		opts.Metrics = observability.NewMetrics()
	}
	if opts.Now == nil {
		opts.Now = time.Now
	}

	classifier, err := revenue.NewClassifier(opts.Policy, *opts.Thresholds)
	if err != nil {
		return nil, err
	}

	return &Analytics{
		opts:       opts,
		fetcher:    fetcher,
		classifier: classifier,
		logger:     opts.Logger.With("component", "analytics"),
		metrics:    opts.Metrics,
		subs:       make(map[chan struct{}]struct{}),
	}, nil
}

// Snapshot returns the current snapshot, or ErrNoData before the first
// successful load.
func (a *Analytics) Snapshot() (*Snapshot, error) {
	a.mu.RLock()
	defer a.mu.RUnlock()
	if a.snapshot == nil {
		return nil, ErrNoData
	}
	return a.snapshot, nil
}

// Refresh fetches firms and POS data concurrently and publishes a new
// snapshot. On failure the previous snapshot stays in place.
func (a *Analytics) Refresh(ctx context.Context) error {
	return a.refresh(ctx, "manual", false)
}

// refresh reloads the sources. With unpin set an uploaded POS batch is
// replaced by the configured source; the pin is only dropped once the new
// snapshot is published.
func (a *Analytics) refresh(ctx context.Context, trigger string, unpin bool) (err error) {
	ctx, span := observability.Tracer().Start(ctx, "analytics.refresh")
	span.SetAttributes(attribute.String("trigger", trigger))
	start := time.Now()
	defer func() {
		a.metrics.RefreshDuration.Observe(time.Since(start).Seconds())
		if err != nil {
			span.RecordError(err)
			span.SetStatus(codes.Error, err.Error())
			a.recordFailure(trigger, err)
		}
		span.End()
	}()

	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	a.mu.RLock()
	pinned := a.posPinned && !unpin
	txs := a.txs
	a.mu.RUnlock()

	var firms []models.Firm
	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		t, err := a.load(gctx, "firms", a.opts.FirmsLocation)
		if err != nil {
			return err
		}
		firms, err = ingest.Firms(t)
		return a.rejected("firms", err)
	})
	if !pinned {
		g.Go(func() error {
			t, err := a.load(gctx, "pos", a.opts.POSLocation)
			if err != nil {
				return err
			}
			txs, err = ingest.Transactions(t)
			return a.rejected("pos", err)
		})
	}
	if err := g.Wait(); err != nil {
		return err
	}

	source := "fetch"
	if pinned {
		source = "fetch+upload"
	}
	snap, err := a.build(ctx, firms, txs, source)
	if err != nil {
		return err
	}

	a.publish(snap, firms, txs, pinned)
	a.metrics.RefreshesTotal.WithLabelValues(trigger, "success").Inc()
	a.logger.InfoContext(ctx, "snapshot refreshed",
		"trigger", trigger,
		"firms", len(firms),
		"transactions", len(txs),
		"pos_pinned", pinned,
		"duration", time.Since(start),
	)
	return nil
}

func (a *Analytics) load(ctx context.Context, dataset, location string) (*ingest.Table, error) {
	data, err := a.fetcher.Fetch(ctx, location)
	if err != nil {
		a.metrics.BatchesRejected.WithLabelValues(dataset, "fetch").Inc()
		return nil, fmt.Errorf("fetch %s: %w", dataset, err)
	}
	t, err := ingest.ReadTable(location, data)
	if err != nil {
		return nil, a.rejected(dataset, err)
	}
	return t, nil
}

// rejected counts ingestion failures by reason and wraps err with the dataset.
func (a *Analytics) rejected(dataset string, err error) error {
	if err == nil {
		return nil
	}
	reason := "read"
	switch {
	case errors.Is(err, ingest.ErrSchema):
		reason = "schema"
	case errors.Is(err, ingest.ErrValidation):
		reason = "validation"
	}
	a.metrics.BatchesRejected.WithLabelValues(dataset, reason).Inc()
	return fmt.Errorf("ingest %s: %w", dataset, err)
}

func (a *Analytics) recordFailure(trigger string, err error) {
	a.failures.Add(1)
	a.metrics.RefreshesTotal.WithLabelValues(trigger, "failure").Inc()

	a.mu.Lock()
	a.lastErr = err
	a.mu.Unlock()

	a.logger.Error("snapshot refresh failed, keeping previous snapshot",
		"trigger", trigger,
		"error", err,
	)
}

// IngestPOS validates an uploaded POS export and, if the whole batch is
// accepted, replaces the POS data. The upload stays in place across
// scheduled refreshes until ResetPOS.
func (a *Analytics) IngestPOS(ctx context.Context, name string, data []byte) (int, error) {
	ctx, span := observability.Tracer().Start(ctx, "analytics.ingest_pos")
	defer span.End()

	t, err := ingest.ReadTable(name, data)
	if err != nil {
		return 0, a.rejected("upload", err)
	}
	txs, err := ingest.Transactions(t)
	if err != nil {
		return 0, a.rejected("upload", err)
	}

	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	a.mu.RLock()
	firms := a.firms
	a.mu.RUnlock()

	snap, err := a.build(ctx, firms, txs, "upload:"+name)
	if err != nil {
		return 0, err
	}
	a.publish(snap, firms, txs, true)
	a.metrics.RefreshesTotal.WithLabelValues("upload", "success").Inc()

	a.logger.InfoContext(ctx, "POS upload accepted", "name", name, "transactions", len(txs))
	return len(txs), nil
}

// ResetPOS drops an uploaded POS batch and reloads from the configured
// source.
func (a *Analytics) ResetPOS(ctx context.Context) error {
	return a.refresh(ctx, "reset", true)
}

// SetData publishes a snapshot built from in-memory inputs. The records go
// through the same checks as ingested batches.
func (a *Analytics) SetData(firms []models.Firm, txs []models.Transaction) error {
	if err := ingest.CheckFirms(firms); err != nil {
		return err
	}
	if err := ingest.CheckTransactions(txs); err != nil {
		return err
	}

	a.refreshMu.Lock()
	defer a.refreshMu.Unlock()

	snap, err := a.build(context.Background(), firms, txs, "static")
	if err != nil {
		return err
	}
	a.publish(snap, firms, txs, false)
	return nil
}

func (a *Analytics) build(ctx context.Context, firms []models.Firm, txs []models.Transaction, source string) (*Snapshot, error) {
	g := a.opts.Granularity
	snap := &Snapshot{
		Granularity:  g,
		Policy:       a.classifier.Policy(),
		RefreshedAt:  a.opts.Now().UTC(),
		Source:       source,
		FirmCount:    len(firms),
		Transactions: len(txs),
	}

	var eg errgroup.Group
	eg.SetLimit(maxWorkers)

	eg.Go(func() error {
		snap.Firms = revenue.AssessFirms(firms, *a.opts.Thresholds)
		return ctx.Err()
	})
	eg.Go(func() error {
		snap.Daily = revenue.Aggregate(txs, models.GroupEntity, models.GranularityDay)
		snap.Trend = revenue.Trend(snap.Daily)
		return ctx.Err()
	})
	eg.Go(func() error {
		snap.Monthly = revenue.Aggregate(txs, models.GroupEntity, models.GranularityMonth)
		return ctx.Err()
	})
	eg.Go(func() error {
		snap.ProductDaily = revenue.Aggregate(txs, models.GroupEntityProduct, models.GranularityDay)
		return ctx.Err()
	})
	eg.Go(func() error {
		snap.EntityRevenue = revenue.Aggregate(txs, models.GroupEntity, g)
		snap.ProductRevenue = revenue.Aggregate(txs, models.GroupEntityProduct, g)
		return ctx.Err()
	})
	eg.Go(func() error {
		snap.Summary = revenue.Summarize(txs, a.opts.Now())
		return ctx.Err()
	})
	if err := eg.Wait(); err != nil {
		return nil, fmt.Errorf("build snapshot: %w", err)
	}

	// Every product key has an entity key in the same period, so the latest
	// period is shared by both groupings.
	snap.Period, snap.HasPeriod = revenue.LatestPeriod(snap.EntityRevenue)
	if snap.HasPeriod {
		snap.Entities = revenue.Evaluate(snap.EntityRevenue, snap.Period, a.classifier)
		snap.Products = revenue.Evaluate(snap.ProductRevenue, snap.Period, a.classifier)
		snap.EntityLeaders = revenue.Rank(snap.Entities)
		snap.ProductLeaders = revenue.Rank(snap.Products)
	}

	return snap, nil
}

// PerformanceAt evaluates an arbitrary period of the current snapshot with
// the configured classifier.
func (a *Analytics) PerformanceAt(group models.GroupBy, period models.Period) ([]models.PerformanceRecord, models.Leaders, error) {
	snap, err := a.Snapshot()
	if err != nil {
		return nil, models.Leaders{}, err
	}
	if snap.HasPeriod && period.Equal(snap.Period) {
		records, leaders := snap.Performance(group)
		return records, leaders, nil
	}

	rbp := snap.EntityRevenue
	if group == models.GroupEntityProduct {
		rbp = snap.ProductRevenue
	}
	records := revenue.Evaluate(rbp, period, a.classifier)
	return records, revenue.Rank(records), nil
}

func (a *Analytics) publish(snap *Snapshot, firms []models.Firm, txs []models.Transaction, pinned bool) {
	a.mu.Lock()
	a.snapshot = snap
	a.firms = firms
	a.txs = txs
	a.posPinned = pinned
	a.lastErr = nil
	a.mu.Unlock()

	a.refreshes.Add(1)
	a.metrics.LastRefresh.Set(float64(snap.RefreshedAt.Unix()))
	a.metrics.RecordsIngested.WithLabelValues("firms").Add(float64(len(firms)))
	a.metrics.RecordsIngested.WithLabelValues("pos").Add(float64(len(txs)))
	a.metrics.PerformanceByCat.Reset()
	for _, r := range snap.Entities {
		a.metrics.PerformanceByCat.WithLabelValues(string(models.GroupEntity), string(r.Category)).Inc()
	}
	for _, r := range snap.Products {
		a.metrics.PerformanceByCat.WithLabelValues(string(models.GroupEntityProduct), string(r.Category)).Inc()
	}

	a.notify()
}

// Subscribe returns a channel that receives a value after every published
// snapshot. Notifications coalesce: a slow reader sees at most one pending.
// The returned function unsubscribes.
func (a *Analytics) Subscribe() (<-chan struct{}, func()) {
	ch := make(chan struct{}, 1)

	a.subMu.Lock()
	a.subs[ch] = struct{}{}
	a.subMu.Unlock()
	a.metrics.SSESubscribers.Inc()

	var once sync.Once
	return ch, func() {
		once.Do(func() {
			a.subMu.Lock()
			delete(a.subs, ch)
			a.subMu.Unlock()
			a.metrics.SSESubscribers.Dec()
		})
	}
}

func (a *Analytics) notify() {
	a.subMu.Lock()
	defer a.subMu.Unlock()
	for ch := range a.subs {
		select {
		case ch <- struct{}{}:
		default:
		}
	}
}

// Run refreshes every interval until ctx is done.
func (a *Analytics) Run(ctx context.Context, interval time.Duration) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	a.logger.InfoContext(ctx, "refresh loop started", "interval", interval)
	for {
		select {
		case <-ctx.Done():
			a.logger.InfoContext(ctx, "refresh loop stopped")
			return
		case <-ticker.C:
			// Failures are logged and counted in refresh.
			_ = a.refresh(ctx, "scheduled", false)
		}
	}
}

func (a *Analytics) Stats() map[string]any {
	a.mu.RLock()
	defer a.mu.RUnlock()

	a.subMu.Lock()
	subscribers := len(a.subs)
	a.subMu.Unlock()

	stats := map[string]any{
		"refreshes":   a.refreshes.Load(),
		"failures":    a.failures.Load(),
		"pos_pinned":  a.posPinned,
		"subscribers": subscribers,
		"granularity": a.opts.Granularity,
		"policy":      a.classifier.Policy(),
	}
	if a.lastErr != nil {
		stats["last_error"] = a.lastErr.Error()
	}
	if s := a.snapshot; s != nil {
		stats["firm_count"] = s.FirmCount
		stats["transaction_count"] = s.Transactions
		stats["refreshed_at"] = s.RefreshedAt
		stats["source"] = s.Source
		stats["entities_evaluated"] = len(s.Entities)
		if s.HasPeriod {
			stats["period"] = s.Period.String()
		}
	}
	return stats
}
