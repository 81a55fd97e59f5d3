package domain

import "time"

// ResourceKind identifies an upstream resource family synced per shop.
type ResourceKind string

const (
	ResourceOrders   ResourceKind = "orders"
	ResourceProducts ResourceKind = "products"
)

// Valid reports whether the kind is one this subsystem syncs.
func (k ResourceKind) Valid() bool {
	return k == ResourceOrders || k == ResourceProducts
}

// Store is the installed-shop record. There is exactly one Store per
// canonical shop domain; the access token is present and Active is true
// iff the app is currently installed on that shop.
type Store struct {
	Domain        string                     `json:"domain" bson:"domain"`
	AccessToken   string                     `json:"-" bson:"accessToken"`
	Scopes        []string                   `json:"scopes" bson:"scopes"`
	Active        bool                       `json:"active" bson:"active"`
	OperatorID    string                     `json:"operator_id,omitempty" bson:"operatorId,omitempty"`
	Watermarks    map[ResourceKind]time.Time `json:"watermarks,omitempty" bson:"watermarks,omitempty"`
	WebhookIDs    []int64                    `json:"webhook_ids,omitempty" bson:"webhookIds,omitempty"`
	InstalledAt   time.Time                  `json:"installed_at" bson:"installedAt"`
	UninstalledAt *time.Time                 `json:"uninstalled_at,omitempty" bson:"uninstalledAt,omitempty"`
}

// Installed reports whether the store currently holds a usable credential.
func (s *Store) Installed() bool {
	return s != nil && s.Active && s.AccessToken != ""
}

// Linked reports whether an operator owns this store.
func (s *Store) Linked() bool {
	return s != nil && s.OperatorID != ""
}

// Watermark returns the sync watermark for a resource and whether one is set.
func (s *Store) Watermark(kind ResourceKind) (time.Time, bool) {
	if s == nil || s.Watermarks == nil {
		return time.Time{}, false
	}
	t, ok := s.Watermarks[kind]
	if !ok || t.IsZero() {
		return time.Time{}, false
	}
	return t, true
}
