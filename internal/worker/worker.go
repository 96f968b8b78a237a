package worker

import (
	"context"
	"time"

	"distribution-service/internal/broker"
	"distribution-service/internal/models"
	"distribution-service/internal/service"
	"distribution-service/internal/util"

	"go.uber.org/zap"
)

// Deduper remembers which events were already applied.
// *redisclient.Client satisfies it.
type Deduper interface {
	CheckIdempotencyKey(ctx context.Context, key string) (bool, error)
	SetIdempotencyKey(ctx context.Context, key string, value interface{}, ttl time.Duration) error
}

const processedEventTTL = 24 * time.Hour

// BalanceProjector consumes BalanceChanged events and projects them into
// the balance read model
type BalanceProjector struct {
	consumer     *broker.Consumer
	eventHandler *broker.EventHandler
	cache        *service.BalanceCache
	dedupe       Deduper
	logger       *zap.Logger
}

// NewBalanceProjector creates a new projection worker
func NewBalanceProjector(consumer *broker.Consumer, cache *service.BalanceCache, dedupe Deduper) *BalanceProjector {
	p := &BalanceProjector{
		consumer:     consumer,
		eventHandler: broker.NewEventHandler(),
		cache:        cache,
		dedupe:       dedupe,
		logger:       util.GetLogger(),
	}
	p.eventHandler.OnBalanceChanged(p.HandleBalanceChanged)
	return p
}

// HandleBalanceChanged applies one event at most once
func (p *BalanceProjector) HandleBalanceChanged(ctx context.Context, event *models.BalanceChangedEvent) error {
	key := "event:" + event.EventID
	if p.dedupe != nil {
		seen, err := p.dedupe.CheckIdempotencyKey(ctx, key)
		if err != nil {
			p.logger.Warn("Dedupe check failed, applying anyway", zap.String("event_id", event.EventID), zap.Error(err))
		} else if seen {
			p.logger.Debug("Event already projected", zap.String("event_id", event.EventID))
			return nil
		}
	}

	if err := p.cache.Apply(ctx, event); err != nil {
		return err
	}

	if p.dedupe != nil {
		if err := p.dedupe.SetIdempotencyKey(ctx, key, 1, processedEventTTL); err != nil {
			p.logger.Warn("Failed to mark event projected", zap.String("event_id", event.EventID), zap.Error(err))
		}
	}
	return nil
}

// Start starts the worker
func (p *BalanceProjector) Start(ctx context.Context) error {
	p.logger.Info("Starting balance projector")
	return p.consumer.StartConsuming(ctx, p.eventHandler.HandleMessage)
}

// Stop stops the worker
func (p *BalanceProjector) Stop() error {
	p.logger.Info("Stopping balance projector")
	return p.consumer.Close()
}

// Importer is the part of the import service the sync worker drives
type Importer interface {
	SyncFromPOS(ctx context.Context, seller string, date time.Time) (*models.ImportSummary, error)
}

// POSSyncWorker periodically imports the day's POS sales for each seller.
// Imports are idempotent, so every tick re-reads the whole day.
type POSSyncWorker struct {
	importer Importer
	sellers  []string
	interval time.Duration
	now      func() time.Time
	logger   *zap.Logger
}

// NewPOSSyncWorker creates a new POS sync worker
func NewPOSSyncWorker(importer Importer, sellers []string, interval time.Duration) *POSSyncWorker {
	return &POSSyncWorker{
		importer: importer,
		sellers:  sellers,
		interval: interval,
		now:      time.Now,
		logger:   util.GetLogger(),
	}
}

// Start runs a sync immediately and then on every tick until ctx ends
func (w *POSSyncWorker) Start(ctx context.Context) error {
	if len(w.sellers) == 0 {
		w.logger.Info("No POS sellers configured, sync worker idle")
		return nil
	}
	w.logger.Info("Starting POS sync worker", zap.Strings("sellers", w.sellers), zap.Duration("interval", w.interval))

	ticker := time.NewTicker(w.interval)
	defer ticker.Stop()

	for {
		w.RunOnce(ctx)

		select {
		case <-ctx.Done():
			w.logger.Info("Stopping POS sync worker")
			return nil
		case <-ticker.C:
		}
	}
}

// RunOnce syncs today for every seller. A failing seller does not stop the others.
func (w *POSSyncWorker) RunOnce(ctx context.Context) {
	today := w.now().UTC().Truncate(24 * time.Hour)
	for _, seller := range w.sellers {
		if ctx.Err() != nil {
			return
		}
		summary, err := w.importer.SyncFromPOS(ctx, seller, today)
		if err != nil {
			w.logger.Error("POS sync failed", zap.String("seller", seller), zap.Error(err))
			continue
		}
		w.logger.Info("POS sync completed",
			zap.String("seller", seller),
			zap.Int("imported", summary.Imported),
			zap.Int("skipped_duplicate", summary.SkippedDuplicate))
	}
}
