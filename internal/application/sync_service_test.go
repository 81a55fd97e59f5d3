package application

import (
	"context"
	"testing"
	"time"

	"github.com/rs/zerolog"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/shelfmerch/shopify-bridge/internal/domain"
	"github.com/shelfmerch/shopify-bridge/internal/ports"
)

func newSyncService(stores *fakeStoreRepo, records *fakeRecordRepo, upstream *fakeUpstream, locker *fakeLocker) *SyncService {
	s := NewSyncService(stores, records, upstream, locker, nil, zerolog.Nop(),
		50, 7*24*time.Hour, 30*24*time.Hour)
	return s
}

func TestSyncUpsertsAndAdvancesWatermark(t *testing.T) {
	stores := newFakeStoreRepo()
	installedStore(stores, "acme.myshopify.com", "op-1")
	records := newFakeRecordRepo()

	base := time.Date(2026, 8, 1, 12, 0, 0, 0, time.UTC)
	upstream := &fakeUpstream{orders: []ports.UpstreamOrder{
		{ID: 1, Name: "#1001", UpdatedAt: base},
		{ID: 2, Name: "#1002", UpdatedAt: base.Add(time.Hour)},
		{ID: 3, Name: "#1003", UpdatedAt: base.Add(30 * time.Minute)},
	}}

	s := newSyncService(stores, records, upstream, newFakeLocker())
	s.now = func() time.Time { return base }

	result, err := s.Sync(context.Background(), "acme", "op-1", domain.ResourceOrders)
	require.NoError(t, err)
	assert.Equal(t, 3, result.Fetched)
	assert.Equal(t, 3, result.Upserted)
	assert.Equal(t, base.Add(time.Hour), result.NewWatermark, "watermark is the max updated_at seen")
	assert.Len(t, records.orders, 3)

	store, _ := stores.Get(context.Background(), "acme.myshopify.com")
	wm, ok := store.Watermark(domain.ResourceOrders)
	require.True(t, ok)
	assert.Equal(t, base.Add(time.Hour), wm)
}

func TestSyncEmptyPageAdvancesToNow(t *testing.T) {
	stores := newFakeStoreRepo()
	installedStore(stores, "acme.myshopify.com", "op-1")

	now := time.Date(2026, 8, 15, 9, 0, 0, 0, time.UTC)
	s := newSyncService(stores, newFakeRecordRepo(), &fakeUpstream{}, newFakeLocker())
	s.now = func() time.Time { return now }

	result, err := s.Sync(context.Background(), "acme", "op-1", domain.ResourceOrders)
	require.NoError(t, err)
	assert.Equal(t, 0, result.Fetched)
	assert.Equal(t, now, result.NewWatermark)

	store, _ := stores.Get(context.Background(), "acme.myshopify.com")
	wm, ok := store.Watermark(domain.ResourceOrders)
	require.True(t, ok)
	assert.Equal(t, now, wm, "a quiet run still shrinks the next lookback window")
}

func TestSyncUpstreamFailureLeavesWatermarkUntouched(t *testing.T) {
	stores := newFakeStoreRepo()
	installedStore(stores, "acme.myshopify.com", "op-1")
	upstream := &fakeUpstream{listErr: &domain.UpstreamError{Op: "list orders", StatusCode: 500}}

	s := newSyncService(stores, newFakeRecordRepo(), upstream, newFakeLocker())

	_, err := s.Sync(context.Background(), "acme", "op-1", domain.ResourceOrders)
	var ue *domain.UpstreamError
	require.ErrorAs(t, err, &ue)

	store, _ := stores.Get(context.Background(), "acme.myshopify.com")
	_, ok := store.Watermark(domain.ResourceOrders)
	assert.False(t, ok, "failed run must not advance the watermark")
}

func TestSyncRecordFailureLeavesWatermarkUntouched(t *testing.T) {
	stores := newFakeStoreRepo()
	installedStore(stores, "acme.myshopify.com", "op-1")
	records := newFakeRecordRepo()
	records.orderErr = assert.AnError
	upstream := &fakeUpstream{orders: []ports.UpstreamOrder{{ID: 1, UpdatedAt: time.Now()}}}

	s := newSyncService(stores, records, upstream, newFakeLocker())

	_, err := s.Sync(context.Background(), "acme", "op-1", domain.ResourceOrders)
	require.Error(t, err)

	store, _ := stores.Get(context.Background(), "acme.myshopify.com")
	_, ok := store.Watermark(domain.ResourceOrders)
	assert.False(t, ok)
}

func TestSyncWatermarkNeverDecreases(t *testing.T) {
	stores := newFakeStoreRepo()
	installedStore(stores, "acme.myshopify.com", "op-1")
	records := newFakeRecordRepo()

	late := time.Date(2026, 8, 20, 0, 0, 0, 0, time.UTC)
	early := late.Add(-48 * time.Hour)

	upstream := &fakeUpstream{orders: []ports.UpstreamOrder{{ID: 1, UpdatedAt: late}}}
	s := newSyncService(stores, records, upstream, newFakeLocker())
	s.now = func() time.Time { return late.Add(time.Hour) }

	_, err := s.Sync(context.Background(), "acme", "op-1", domain.ResourceOrders)
	require.NoError(t, err)

	// Second run sees only a record older than the stored watermark,
	// which clock skew upstream can produce. The watermark must hold.
	upstream.orders = []ports.UpstreamOrder{{ID: 2, UpdatedAt: early}}
	_, err = s.Sync(context.Background(), "acme", "op-1", domain.ResourceOrders)
	require.NoError(t, err)

	store, _ := stores.Get(context.Background(), "acme.myshopify.com")
	wm, _ := store.Watermark(domain.ResourceOrders)
	assert.Equal(t, late, wm, "watermark never moves backwards")
}

func TestSyncConcurrentRunRejected(t *testing.T) {
	stores := newFakeStoreRepo()
	installedStore(stores, "acme.myshopify.com", "op-1")
	locker := newFakeLocker()
	locker.denied = true

	s := newSyncService(stores, newFakeRecordRepo(), &fakeUpstream{}, locker)

	_, err := s.Sync(context.Background(), "acme", "op-1", domain.ResourceOrders)
	assert.ErrorIs(t, err, domain.ErrSyncInProgress)
}

func TestSyncLockReleasedAfterRun(t *testing.T) {
	stores := newFakeStoreRepo()
	installedStore(stores, "acme.myshopify.com", "op-1")
	locker := newFakeLocker()

	s := newSyncService(stores, newFakeRecordRepo(), &fakeUpstream{}, locker)

	_, err := s.Sync(context.Background(), "acme", "op-1", domain.ResourceOrders)
	require.NoError(t, err)
	_, err = s.Sync(context.Background(), "acme", "op-1", domain.ResourceOrders)
	require.NoError(t, err, "lock must be released even after a successful run")
}

func TestSyncLocksPerResource(t *testing.T) {
	stores := newFakeStoreRepo()
	installedStore(stores, "acme.myshopify.com", "op-1")
	locker := newFakeLocker()
	locker.held["acme.myshopify.com:orders"] = true

	s := newSyncService(stores, newFakeRecordRepo(), &fakeUpstream{}, locker)

	_, err := s.Sync(context.Background(), "acme", "op-1", domain.ResourceOrders)
	assert.ErrorIs(t, err, domain.ErrSyncInProgress)

	_, err = s.Sync(context.Background(), "acme", "op-1", domain.ResourceProducts)
	assert.NoError(t, err, "a held orders lock must not block a products sync")
}

func TestSyncRequiresInstalledStore(t *testing.T) {
	s := newSyncService(newFakeStoreRepo(), newFakeRecordRepo(), &fakeUpstream{}, newFakeLocker())

	_, err := s.Sync(context.Background(), "acme", "op-1", domain.ResourceOrders)
	var ne *domain.NotInstalledError
	assert.ErrorAs(t, err, &ne)
}

func TestSyncRejectsOtherOperatorsShop(t *testing.T) {
	stores := newFakeStoreRepo()
	installedStore(stores, "acme.myshopify.com", "op-1")

	s := newSyncService(stores, newFakeRecordRepo(), &fakeUpstream{}, newFakeLocker())

	_, err := s.Sync(context.Background(), "acme", "op-2", domain.ResourceOrders)
	var ne *domain.NotInstalledError
	assert.ErrorAs(t, err, &ne)
}

func TestSyncRejectsUnknownResource(t *testing.T) {
	s := newSyncService(newFakeStoreRepo(), newFakeRecordRepo(), &fakeUpstream{}, newFakeLocker())

	_, err := s.Sync(context.Background(), "acme", "op-1", domain.ResourceKind("customers"))
	var ve *domain.ValidationError
	assert.ErrorAs(t, err, &ve)
}

func TestSyncProducts(t *testing.T) {
	stores := newFakeStoreRepo()
	installedStore(stores, "acme.myshopify.com", "op-1")
	records := newFakeRecordRepo()
	upstream := &fakeUpstream{products: []ports.UpstreamProduct{
		{ID: 10, Title: "Widget", UpdatedAt: time.Date(2026, 8, 10, 0, 0, 0, 0, time.UTC)},
	}}

	s := newSyncService(stores, records, upstream, newFakeLocker())
	s.now = func() time.Time { return time.Date(2026, 8, 15, 0, 0, 0, 0, time.UTC) }

	result, err := s.Sync(context.Background(), "acme", "op-1", domain.ResourceProducts)
	require.NoError(t, err)
	assert.Equal(t, 1, result.Upserted)
	require.Contains(t, records.products, int64(10))
	assert.Equal(t, "op-1", records.products[10].OperatorID)
}
