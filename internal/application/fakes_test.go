package application

import (
	"context"
	"net/url"
	"sync"
	"time"

	"github.com/shelfmerch/shopify-bridge/internal/domain"
	"github.com/shelfmerch/shopify-bridge/internal/ports"
)

// In-memory fakes for the repository and upstream ports.

type fakeStoreRepo struct {
	mu     sync.Mutex
	stores map[string]*domain.Store
}

func newFakeStoreRepo() *fakeStoreRepo {
	return &fakeStoreRepo{stores: map[string]*domain.Store{}}
}

func (r *fakeStoreRepo) Upsert(ctx context.Context, store *domain.Store) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	existing, ok := r.stores[store.Domain]
	cp := *store
	if ok {
		if cp.OperatorID == "" {
			cp.OperatorID = existing.OperatorID
		}
		cp.Watermarks = existing.Watermarks
	}
	r.stores[store.Domain] = &cp
	return nil
}

func (r *fakeStoreRepo) Get(ctx context.Context, shopDomain string) (*domain.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[shopDomain]
	if !ok {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeStoreRepo) GetForOperator(ctx context.Context, shopDomain, operatorID string) (*domain.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[shopDomain]
	if !ok || s.OperatorID != operatorID {
		return nil, nil
	}
	cp := *s
	return &cp, nil
}

func (r *fakeStoreRepo) ListByOperator(ctx context.Context, operatorID string) ([]*domain.Store, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.Store
	for _, s := range r.stores {
		if s.OperatorID == operatorID {
			cp := *s
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeStoreRepo) LinkOperator(ctx context.Context, shopDomain, operatorID string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[shopDomain]
	if !ok || !s.Active {
		return &domain.NotInstalledError{Shop: shopDomain}
	}
	if s.OperatorID != "" && s.OperatorID != operatorID {
		return &domain.NotInstalledError{Shop: shopDomain}
	}
	s.OperatorID = operatorID
	return nil
}

func (r *fakeStoreRepo) Deactivate(ctx context.Context, shopDomain string, at time.Time) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[shopDomain]
	if !ok {
		return nil
	}
	s.AccessToken = ""
	s.Active = false
	s.UninstalledAt = &at
	s.WebhookIDs = nil
	return nil
}

func (r *fakeStoreRepo) AdvanceWatermark(ctx context.Context, shopDomain string, kind domain.ResourceKind, from, to time.Time) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	s, ok := r.stores[shopDomain]
	if !ok {
		return false, nil
	}
	current, has := time.Time{}, false
	if s.Watermarks != nil {
		current, has = s.Watermarks[kind]
	}
	if from.IsZero() {
		if has {
			return false, nil
		}
	} else if !has || !current.Equal(from) {
		return false, nil
	}
	if s.Watermarks == nil {
		s.Watermarks = map[domain.ResourceKind]time.Time{}
	}
	s.Watermarks[kind] = to
	return true, nil
}

type fakeDeliveryRepo struct {
	mu      sync.Mutex
	entries map[string]*domain.WebhookDelivery
}

func newFakeDeliveryRepo() *fakeDeliveryRepo {
	return &fakeDeliveryRepo{entries: map[string]*domain.WebhookDelivery{}}
}

func deliveryKey(shop, dedupeKey string) string { return shop + "|" + dedupeKey }

func (r *fakeDeliveryRepo) Insert(ctx context.Context, d *domain.WebhookDelivery) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	key := deliveryKey(d.Shop, d.DedupeKey)
	if existing, ok := r.entries[key]; ok {
		existing.Attempts++
		return domain.ErrDuplicateDelivery
	}
	cp := *d
	if cp.Attempts == 0 {
		cp.Attempts = 1
	}
	r.entries[key] = &cp
	return nil
}

func (r *fakeDeliveryRepo) SetStatus(ctx context.Context, shop, dedupeKey string, status domain.DeliveryStatus, lastError string) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.entries[deliveryKey(shop, dedupeKey)]; ok {
		d.Status = status
		d.LastError = lastError
	}
	return nil
}

func (r *fakeDeliveryRepo) ListByShop(ctx context.Context, shop string, limit int) ([]*domain.WebhookDelivery, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []*domain.WebhookDelivery
	for _, d := range r.entries {
		if d.Shop == shop {
			cp := *d
			out = append(out, &cp)
		}
	}
	return out, nil
}

func (r *fakeDeliveryRepo) status(shop, dedupeKey string) domain.DeliveryStatus {
	r.mu.Lock()
	defer r.mu.Unlock()
	if d, ok := r.entries[deliveryKey(shop, dedupeKey)]; ok {
		return d.Status
	}
	return ""
}

type fakeRecordRepo struct {
	mu       sync.Mutex
	orders   map[int64]*domain.OrderRecord
	products map[int64]*domain.ProductRecord

	orderErr error
}

func newFakeRecordRepo() *fakeRecordRepo {
	return &fakeRecordRepo{
		orders:   map[int64]*domain.OrderRecord{},
		products: map[int64]*domain.ProductRecord{},
	}
}

func (r *fakeRecordRepo) UpsertOrder(ctx context.Context, order *domain.OrderRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.orderErr != nil {
		return r.orderErr
	}
	cp := *order
	r.orders[order.UpstreamID] = &cp
	return nil
}

func (r *fakeRecordRepo) UpsertProduct(ctx context.Context, product *domain.ProductRecord) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	cp := *product
	r.products[product.UpstreamID] = &cp
	return nil
}

type fakeUpstream struct {
	grant       *ports.AccessGrant
	exchangeErr error

	orders    []ports.UpstreamOrder
	products  []ports.UpstreamProduct
	listErr   error
	listCalls int
}

func (u *fakeUpstream) ExchangeCode(ctx context.Context, shopDomain, code string) (*ports.AccessGrant, error) {
	if u.exchangeErr != nil {
		return nil, u.exchangeErr
	}
	return u.grant, nil
}

func (u *fakeUpstream) ListOrders(ctx context.Context, shopDomain, accessToken string, updatedAtMin time.Time, limit int) ([]ports.UpstreamOrder, error) {
	u.listCalls++
	if u.listErr != nil {
		return nil, u.listErr
	}
	return u.orders, nil
}

func (u *fakeUpstream) ListProducts(ctx context.Context, shopDomain, accessToken string, updatedAtMin time.Time, limit int) ([]ports.UpstreamProduct, error) {
	u.listCalls++
	if u.listErr != nil {
		return nil, u.listErr
	}
	return u.products, nil
}

type fakeSubscriptions struct {
	ids          []int64
	subscribeErr error
	subscribed   []string
}

func (s *fakeSubscriptions) Subscribe(ctx context.Context, shopDomain, accessToken string) ([]int64, error) {
	s.subscribed = append(s.subscribed, shopDomain)
	if s.subscribeErr != nil {
		return nil, s.subscribeErr
	}
	return s.ids, nil
}

func (s *fakeSubscriptions) Unsubscribe(ctx context.Context, shopDomain, accessToken string, webhookIDs []int64) error {
	return nil
}

type fakeCallbackVerifier struct {
	ok        bool
	rawCalls  int
	paramCall int
}

func (v *fakeCallbackVerifier) VerifyCallback(rawQuery, claimed string) bool {
	v.rawCalls++
	return v.ok
}

func (v *fakeCallbackVerifier) VerifyCallbackParams(params url.Values, claimed string) bool {
	v.paramCall++
	return v.ok
}

type fakeDeliveryVerifier struct {
	ok bool
}

func (v *fakeDeliveryVerifier) VerifyWebhook(body []byte, header string) bool { return v.ok }

type fakeLocker struct {
	mu     sync.Mutex
	held   map[string]bool
	denied bool
}

func newFakeLocker() *fakeLocker {
	return &fakeLocker{held: map[string]bool{}}
}

func (l *fakeLocker) TryLock(ctx context.Context, key string) (bool, error) {
	l.mu.Lock()
	defer l.mu.Unlock()
	if l.denied || l.held[key] {
		return false, nil
	}
	l.held[key] = true
	return true, nil
}

func (l *fakeLocker) Unlock(ctx context.Context, key string) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	delete(l.held, key)
	return nil
}
