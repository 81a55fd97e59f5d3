package application

import (
	"context"
	"time"

	"github.com/rs/zerolog"

	"github.com/shelfmerch/shopify-bridge/internal/domain"
	"github.com/shelfmerch/shopify-bridge/internal/infrastructure/metrics"
	"github.com/shelfmerch/shopify-bridge/internal/ports"
)

// SyncService pulls one page of changed upstream resources per run, keyed by
// a per-(shop, resource) watermark. Runs are serialized by a distributed
// lock; the watermark only advances via compare-and-set, so it never moves
// backwards.
type SyncService struct {
	stores   ports.StoreRepository
	records  ports.RecordRepository
	upstream ports.UpstreamClient
	locker   ports.SyncLocker
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	pageSize         int
	ordersLookback   time.Duration
	productsLookback time.Duration
	now              func() time.Time
}

// NewSyncService creates the sync engine.
func NewSyncService(
	stores ports.StoreRepository,
	records ports.RecordRepository,
	upstream ports.UpstreamClient,
	locker ports.SyncLocker,
	m *metrics.Metrics,
	logger zerolog.Logger,
	pageSize int,
	ordersLookback, productsLookback time.Duration,
) *SyncService {
	return &SyncService{
		stores:           stores,
		records:          records,
		upstream:         upstream,
		locker:           locker,
		metrics:          m,
		logger:           logger,
		pageSize:         pageSize,
		ordersLookback:   ordersLookback,
		productsLookback: productsLookback,
		now:              func() time.Time { return time.Now().UTC() },
	}
}

// SyncResult summarizes one sync run.
type SyncResult struct {
	Shop         string              `json:"shop"`
	Resource     domain.ResourceKind `json:"resource"`
	Fetched      int                 `json:"fetched"`
	Upserted     int                 `json:"upserted"`
	UpdatedAtMin time.Time           `json:"updatedAtMin"`
	NewWatermark time.Time           `json:"newLastSync"`
}

// Sync runs one incremental page for a shop and resource kind. The caller
// identifies the owning operator; an empty operatorID only resolves unlinked
// access paths and will fail for shops another operator owns.
func (s *SyncService) Sync(ctx context.Context, rawShop, operatorID string, kind domain.ResourceKind) (*SyncResult, error) {
	shop, err := domain.SanitizeShopDomain(rawShop)
	if err != nil {
		return nil, err
	}
	if !kind.Valid() {
		return nil, &domain.ValidationError{Field: "resource", Reason: "unknown resource kind"}
	}

	store, err := s.resolveStore(ctx, shop, operatorID)
	if err != nil {
		return nil, err
	}
	if store == nil || !store.Installed() {
		return nil, &domain.NotInstalledError{Shop: shop}
	}

	lockKey := shop + ":" + string(kind)
	ok, err := s.locker.TryLock(ctx, lockKey)
	if err != nil {
		return nil, err
	}
	if !ok {
		return nil, domain.ErrSyncInProgress
	}
	defer func() {
		if err := s.locker.Unlock(context.WithoutCancel(ctx), lockKey); err != nil {
			s.logger.Warn().Err(err).Str("shop", shop).Msg("Failed to release sync lock")
		}
	}()

	stored, hasWatermark := store.Watermark(kind)
	since := stored
	if !hasWatermark {
		since = s.now().Add(-s.lookback(kind))
	}

	result, err := s.runPage(ctx, store, kind, since)
	if err != nil {
		s.metrics.ObserveSyncRun(string(kind), "failed")
		return nil, err
	}
	// Upstream clock skew can hand back records older than the window
	// start. The watermark never moves backwards.
	if result.NewWatermark.Before(since) {
		result.NewWatermark = since
	}

	// A run that saw no changes still advances the watermark to now, so the
	// lookback window keeps shrinking on quiet shops.
	var from time.Time
	if hasWatermark {
		from = stored
	}
	advanced, err := s.stores.AdvanceWatermark(ctx, shop, kind, from, result.NewWatermark)
	if err != nil {
		return nil, err
	}
	if !advanced {
		// The lock should make this impossible; a miss means someone moved
		// the watermark out of band.
		s.logger.Warn().
			Str("shop", shop).
			Str("resource", string(kind)).
			Time("from", from).
			Msg("Watermark moved during sync, not advancing")
	}

	s.metrics.ObserveSyncRun(string(kind), "ok")
	s.metrics.ObserveSyncRecords(string(kind), result.Fetched, result.Upserted)
	s.logger.Info().
		Str("shop", shop).
		Str("resource", string(kind)).
		Int("fetched", result.Fetched).
		Int("upserted", result.Upserted).
		Time("watermark", result.NewWatermark).
		Msg("Sync run complete")

	return result, nil
}

func (s *SyncService) resolveStore(ctx context.Context, shop, operatorID string) (*domain.Store, error) {
	if operatorID != "" {
		return s.stores.GetForOperator(ctx, shop, operatorID)
	}
	store, err := s.stores.Get(ctx, shop)
	if err != nil {
		return nil, err
	}
	// Without an operator identity, only unlinked stores are reachable.
	if store != nil && store.Linked() {
		return nil, nil
	}
	return store, nil
}

func (s *SyncService) lookback(kind domain.ResourceKind) time.Duration {
	if kind == domain.ResourceProducts {
		return s.productsLookback
	}
	return s.ordersLookback
}

func (s *SyncService) runPage(ctx context.Context, store *domain.Store, kind domain.ResourceKind, since time.Time) (*SyncResult, error) {
	result := &SyncResult{
		Shop:         store.Domain,
		Resource:     kind,
		UpdatedAtMin: since,
	}

	switch kind {
	case domain.ResourceOrders:
		orders, err := s.upstream.ListOrders(ctx, store.Domain, store.AccessToken, since, s.pageSize)
		if err != nil {
			return nil, err
		}
		result.Fetched = len(orders)
		for _, o := range orders {
			rec := &domain.OrderRecord{
				OperatorID:      store.OperatorID,
				Shop:            store.Domain,
				UpstreamID:      o.ID,
				Name:            o.Name,
				Email:           o.Email,
				TotalPrice:      o.TotalPrice,
				Currency:        o.Currency,
				FinancialStatus: o.FinancialStatus,
				ProcessedAt:     o.ProcessedAt,
				UpdatedAt:       o.UpdatedAt,
				Payload:         o.Raw,
			}
			if err := s.records.UpsertOrder(ctx, rec); err != nil {
				return nil, err
			}
			result.Upserted++
			if o.UpdatedAt.After(result.NewWatermark) {
				result.NewWatermark = o.UpdatedAt
			}
		}
	case domain.ResourceProducts:
		products, err := s.upstream.ListProducts(ctx, store.Domain, store.AccessToken, since, s.pageSize)
		if err != nil {
			return nil, err
		}
		result.Fetched = len(products)
		for _, p := range products {
			rec := &domain.ProductRecord{
				OperatorID: store.OperatorID,
				Shop:       store.Domain,
				UpstreamID: p.ID,
				Title:      p.Title,
				Handle:     p.Handle,
				Vendor:     p.Vendor,
				Status:     p.Status,
				UpdatedAt:  p.UpdatedAt,
				Payload:    p.Raw,
			}
			if err := s.records.UpsertProduct(ctx, rec); err != nil {
				return nil, err
			}
			result.Upserted++
			if p.UpdatedAt.After(result.NewWatermark) {
				result.NewWatermark = p.UpdatedAt
			}
		}
	}

	if result.NewWatermark.IsZero() {
		result.NewWatermark = s.now()
	}
	return result, nil
}
