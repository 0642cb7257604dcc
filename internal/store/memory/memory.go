// Package memory is a concurrency-safe in-process implementation of every store
// interface, used for demos, single-node runs and tests.
package memory

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"sync"
	"time"

	"fundimart.org/internal/admin"
	"fundimart.org/internal/auth"
	"fundimart.org/internal/catalog"
	"fundimart.org/internal/settings"
	"fundimart.org/internal/workflow"
)

// Store holds all records behind a single RWMutex. Conditional transitions run
// under the write lock, which makes each one a single read-modify-write.
type Store struct {
	mu       sync.RWMutex
	accounts map[string]auth.Account
	byEmail  map[string]string
	profiles map[string]admin.Profile
	byUser   map[string]string
	shops    map[string]catalog.Shop
	products map[string]catalog.Product
	receipts map[string]workflow.Receipt
	reports  map[string]workflow.Report
	settings *settings.Settings
}

// New creates an empty store.
func New() *Store {
	return &Store{
		accounts: make(map[string]auth.Account),
		byEmail:  make(map[string]string),
		profiles: make(map[string]admin.Profile),
		byUser:   make(map[string]string),
		shops:    make(map[string]catalog.Shop),
		products: make(map[string]catalog.Product),
		receipts: make(map[string]workflow.Receipt),
		reports:  make(map[string]workflow.Report),
	}
}

func notFound(kind, id string) error {
	return fmt.Errorf("%w: %s %s", auth.ErrNotFound, kind, id)
}

// PutAccount inserts or replaces an account.
func (s *Store) PutAccount(a auth.Account) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if prev, ok := s.accounts[a.ID]; ok {
		delete(s.byEmail, strings.ToLower(prev.Email))
	}
	s.accounts[a.ID] = a
	s.byEmail[strings.ToLower(a.Email)] = a.ID
}

// PutShop inserts or replaces a shop.
func (s *Store) PutShop(sh catalog.Shop) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.shops[sh.ID] = sh
}

// PutProduct inserts or replaces a product.
func (s *Store) PutProduct(p catalog.Product) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.products[p.ID] = p
}

// Accounts

func (s *Store) Account(_ context.Context, id string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	a, ok := s.accounts[id]
	if !ok {
		return auth.Account{}, notFound("account", id)
	}
	return a, nil
}

func (s *Store) AccountByEmail(_ context.Context, email string) (auth.Account, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byEmail[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return auth.Account{}, notFound("account", email)
	}
	return s.accounts[id], nil
}

func (s *Store) AdminGrant(_ context.Context, userID string) (auth.AdminGrant, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUser[userID]
	if !ok {
		return auth.AdminGrant{}, notFound("admin profile for user", userID)
	}
	p := s.profiles[id]
	return auth.AdminGrant{Role: p.Role, Permissions: p.Permissions}, nil
}

// Ownership

func (s *Store) Ownership(_ context.Context, ref auth.ResourceRef) (auth.Ownership, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	switch ref.Kind {
	case auth.KindProduct:
		p, ok := s.products[ref.ID]
		if !ok {
			return auth.Ownership{}, notFound("product", ref.ID)
		}
		if p.ShopID == "" {
			return auth.Ownership{}, nil
		}
		return auth.Ownership{Parent: &auth.ResourceRef{Kind: auth.KindShop, ID: p.ShopID}}, nil
	case auth.KindShop:
		sh, ok := s.shops[ref.ID]
		if !ok {
			return auth.Ownership{}, notFound("shop", ref.ID)
		}
		return auth.Ownership{OwnerID: sh.OwnerID}, nil
	case auth.KindReceipt:
		r, ok := s.receipts[ref.ID]
		if !ok {
			return auth.Ownership{}, notFound("receipt", ref.ID)
		}
		return auth.Ownership{OwnerID: r.UploaderID}, nil
	case auth.KindReport:
		r, ok := s.reports[ref.ID]
		if !ok {
			return auth.Ownership{}, notFound("report", ref.ID)
		}
		return auth.Ownership{OwnerID: r.CreatedBy}, nil
	}
	return auth.Ownership{}, fmt.Errorf("%w: unknown resource kind %q", auth.ErrInvalidInput, ref.Kind)
}

// Administrative profiles

func cloneProfile(p admin.Profile) admin.Profile {
	p.History = append([]admin.HistoryEntry(nil), p.History...)
	return p
}

func (s *Store) CreateProfile(_ context.Context, p admin.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.byUser[p.UserID]; ok {
		return fmt.Errorf("%w: user %s already has an administrative profile", auth.ErrConflict, p.UserID)
	}
	if _, ok := s.profiles[p.ID]; ok {
		return fmt.Errorf("%w: profile %s exists", auth.ErrConflict, p.ID)
	}
	s.profiles[p.ID] = cloneProfile(p)
	s.byUser[p.UserID] = p.ID
	return nil
}

func (s *Store) Profile(_ context.Context, id string) (admin.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.profiles[id]
	if !ok {
		return admin.Profile{}, notFound("admin profile", id)
	}
	return cloneProfile(p), nil
}

func (s *Store) ProfileByUser(_ context.Context, userID string) (admin.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	id, ok := s.byUser[userID]
	if !ok {
		return admin.Profile{}, notFound("admin profile for user", userID)
	}
	return cloneProfile(s.profiles[id]), nil
}

// ListProfiles returns profiles without their history.
func (s *Store) ListProfiles(_ context.Context, f admin.Filter) ([]admin.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]admin.Profile, 0, len(s.profiles))
	for _, p := range s.profiles {
		if f.Role != "" && p.Role != f.Role {
			continue
		}
		p.History = nil
		out = append(out, p)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return limit(out, f.Limit), nil
}

func (s *Store) UpdateRole(_ context.Context, id string, role auth.Role, perms auth.PermissionSet, at time.Time) (admin.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return admin.Profile{}, notFound("admin profile", id)
	}
	p.Role = role
	p.Permissions = perms
	p.UpdatedAt = at
	s.profiles[id] = p
	return cloneProfile(p), nil
}

func (s *Store) UpdatePermissions(_ context.Context, id string, expectRole auth.Role, perms auth.PermissionSet, at time.Time) (admin.Profile, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.profiles[id]
	if !ok {
		return admin.Profile{}, notFound("admin profile", id)
	}
	if p.Role != expectRole {
		return admin.Profile{}, fmt.Errorf("%w: role of profile %s changed to %s", auth.ErrConflict, id, p.Role)
	}
	p.Permissions = perms
	p.UpdatedAt = at
	s.profiles[id] = p
	return cloneProfile(p), nil
}

func (s *Store) AppendHistory(_ context.Context, userID string, e admin.HistoryEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byUser[userID]
	if !ok {
		return notFound("admin profile for user", userID)
	}
	p := s.profiles[id]
	p.History = append(append([]admin.HistoryEntry(nil), p.History...), e)
	s.profiles[id] = p
	return nil
}

func (s *Store) IncrementStat(_ context.Context, userID string, stat admin.Stat) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	id, ok := s.byUser[userID]
	if !ok {
		return notFound("admin profile for user", userID)
	}
	p := s.profiles[id]
	p.Stats = p.Stats.Add(stat)
	s.profiles[id] = p
	return nil
}

// Receipts

func (s *Store) CreateReceipt(_ context.Context, r workflow.Receipt) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.receipts[r.ID]; ok {
		return fmt.Errorf("%w: receipt %s exists", auth.ErrConflict, r.ID)
	}
	s.receipts[r.ID] = r
	return nil
}

func (s *Store) Receipt(_ context.Context, id string) (workflow.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.receipts[id]
	if !ok {
		return workflow.Receipt{}, notFound("receipt", id)
	}
	return r, nil
}

func (s *Store) ListReceipts(_ context.Context, f workflow.ReceiptFilter) ([]workflow.Receipt, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]workflow.Receipt, 0, len(s.receipts))
	for _, r := range s.receipts {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.UploaderID != "" && r.UploaderID != f.UploaderID {
			continue
		}
		out = append(out, r)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return limit(out, f.Limit), nil
}

func (s *Store) TransitionReceipt(_ context.Context, id string, t workflow.ReceiptTransition) (workflow.Receipt, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.receipts[id]
	if !ok {
		return workflow.Receipt{}, notFound("receipt", id)
	}
	if r.Status != workflow.ReceiptPending {
		return workflow.Receipt{}, workflow.InvalidReceiptTransition(id, r.Status)
	}
	r = t.Apply(r)
	s.receipts[id] = r
	return r, nil
}

// Reports

func cloneReport(r workflow.Report) workflow.Report {
	if r.Params != nil {
		params := make(map[string]string, len(r.Params))
		for k, v := range r.Params {
			params[k] = v
		}
		r.Params = params
	}
	return r
}

func (s *Store) CreateReport(_ context.Context, r workflow.Report) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.reports[r.ID]; ok {
		return fmt.Errorf("%w: report %s exists", auth.ErrConflict, r.ID)
	}
	s.reports[r.ID] = cloneReport(r)
	return nil
}

func (s *Store) Report(_ context.Context, id string) (workflow.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	r, ok := s.reports[id]
	if !ok {
		return workflow.Report{}, notFound("report", id)
	}
	return cloneReport(r), nil
}

func (s *Store) ListReports(_ context.Context, f workflow.ReportFilter) ([]workflow.Report, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	out := make([]workflow.Report, 0, len(s.reports))
	for _, r := range s.reports {
		if f.Status != "" && r.Status != f.Status {
			continue
		}
		if f.Template != "" && r.Template != f.Template {
			continue
		}
		if f.CreatedBy != "" && r.CreatedBy != f.CreatedBy {
			continue
		}
		out = append(out, cloneReport(r))
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return limit(out, f.Limit), nil
}

func (s *Store) AdvanceReport(_ context.Context, id string, from workflow.ReportStatus, u workflow.ReportUpdate) (workflow.Report, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	r, ok := s.reports[id]
	if !ok {
		return workflow.Report{}, notFound("report", id)
	}
	if r.Status != from {
		return workflow.Report{}, workflow.InvalidReportTransition(id, r.Status)
	}
	r = u.Apply(r)
	s.reports[id] = r
	return cloneReport(r), nil
}

// Settings

func (s *Store) LoadSettings(_ context.Context) (settings.Settings, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.settings == nil {
		return settings.Settings{}, notFound("settings", settings.SingletonID)
	}
	return *s.settings, nil
}

func (s *Store) SaveSettings(_ context.Context, next settings.Settings) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.settings = &next
	return nil
}

// Catalog

func (s *Store) Shop(_ context.Context, id string) (catalog.Shop, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	sh, ok := s.shops[id]
	if !ok {
		return catalog.Shop{}, notFound("shop", id)
	}
	return sh, nil
}

func (s *Store) Product(_ context.Context, id string) (catalog.Product, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, notFound("product", id)
	}
	return p, nil
}

func (s *Store) UpdateProduct(_ context.Context, id string, u catalog.ProductUpdate, at time.Time) (catalog.Product, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	p, ok := s.products[id]
	if !ok {
		return catalog.Product{}, notFound("product", id)
	}
	p = u.Apply(p, at)
	s.products[id] = p
	return p, nil
}

func limit[T any](items []T, n int) []T {
	if n > 0 && len(items) > n {
		return items[:n]
	}
	return items
}
