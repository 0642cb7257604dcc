package httpapi

import (
	"context"
	"fmt"
	"net/http"
	"net/netip"
	"time"

	"fundimart.org/internal/admin"
	"fundimart.org/internal/auth"
	"fundimart.org/internal/catalog"
	"fundimart.org/internal/obs"
	"fundimart.org/internal/settings"
	"fundimart.org/internal/workflow"
)

const serviceName = "fundimart-api"

// Pinger is a dependency the readiness probe can reach.
type Pinger interface {
	Ping(ctx context.Context) error
}

// ReadyProbe pings the database and the revocation cache when configured.
type ReadyProbe struct {
	DB    Pinger
	Cache Pinger
}

func (rp ReadyProbe) Check(ctx context.Context) error {
	if rp.DB != nil {
		if err := rp.DB.Ping(ctx); err != nil {
			return fmt.Errorf("database: %w", err)
		}
	}
	if rp.Cache != nil {
		if err := rp.Cache.Ping(ctx); err != nil {
			return fmt.Errorf("cache: %w", err)
		}
	}
	return nil
}

// Services are the domain collaborators behind the routes.
type Services struct {
	Auth     *auth.Service
	Admins   *admin.Service
	Workflow *workflow.Service
	Settings *settings.Service
	Catalog  *catalog.Service
}

func (s Services) validate() error {
	switch {
	case s.Auth == nil:
		return fmt.Errorf("auth service is required")
	case s.Admins == nil:
		return fmt.Errorf("admin service is required")
	case s.Workflow == nil:
		return fmt.Errorf("workflow service is required")
	case s.Settings == nil:
		return fmt.Errorf("settings service is required")
	case s.Catalog == nil:
		return fmt.Errorf("catalog service is required")
	}
	return nil
}

// Option tunes the HTTP edge.
type Option func(*API)

// WithRateLimit sets the per-client token bucket.
func WithRateLimit(perSecond float64, burst int) Option {
	return func(a *API) {
		a.ratePerSec = perSecond
		a.rateBurst = burst
	}
}

// WithTrustedProxies names the reverse proxies whose X-Forwarded-For is honoured.
func WithTrustedProxies(prefixes []netip.Prefix) Option {
	return func(a *API) {
		a.trustedProxies = prefixes
	}
}

// WithMaxBodyBytes caps request bodies.
func WithMaxBodyBytes(n int64) Option {
	return func(a *API) {
		if n > 0 {
			a.maxBody = n
		}
	}
}

// API is the HTTP layer.
type API struct {
	mux        *http.ServeMux
	readyProbe ReadyProbe
	version    string

	auth     *auth.Service
	admins   *admin.Service
	workflow *workflow.Service
	settings *settings.Service
	catalog  *catalog.Service

	ratePerSec     float64
	rateBurst      int
	maxBody        int64
	trustedProxies []netip.Prefix
}

func New(rp ReadyProbe, version string, svc Services, opts ...Option) (*API, error) {
	if err := svc.validate(); err != nil {
		return nil, err
	}
	a := &API{
		mux:        http.NewServeMux(),
		readyProbe: rp,
		version:    version,
		auth:       svc.Auth,
		admins:     svc.Admins,
		workflow:   svc.Workflow,
		settings:   svc.Settings,
		catalog:    svc.Catalog,
		ratePerSec: 10,
		rateBurst:  20,
		maxBody:    1 << 20,
	}
	for _, opt := range opts {
		opt(a)
	}

	// health/ready/info
	a.mux.HandleFunc("GET /healthz", a.Healthz)
	a.mux.HandleFunc("GET /readyz", a.Ready)
	a.mux.HandleFunc("GET /v1/info", a.Info)
	a.mux.Handle("GET /metrics", obs.Handler())

	a.mux.HandleFunc("POST /v1/auth/token", a.handleLogin)
	a.mux.HandleFunc("POST /v1/auth/logout", a.handleLogout)
	a.mux.HandleFunc("GET /v1/auth/me", a.handleMe)

	a.mux.HandleFunc("GET /v1/admins", a.listAdmins)
	a.mux.HandleFunc("POST /v1/admins", a.promoteAdmin)
	a.mux.HandleFunc("GET /v1/admins/{id}", a.getAdmin)
	a.mux.HandleFunc("PUT /v1/admins/{id}/role", a.changeAdminRole)
	a.mux.HandleFunc("PUT /v1/admins/{id}/permissions", a.setAdminPermissions)

	a.mux.HandleFunc("POST /v1/receipts", a.uploadReceipt)
	a.mux.HandleFunc("GET /v1/receipts", a.listReceipts)
	a.mux.HandleFunc("GET /v1/receipts/{id}", a.getReceipt)
	a.mux.HandleFunc("POST /v1/receipts/{id}/verify", a.verifyReceipt)
	a.mux.HandleFunc("POST /v1/receipts/{id}/reject", a.rejectReceipt)

	a.mux.HandleFunc("POST /v1/reports", a.createReport)
	a.mux.HandleFunc("GET /v1/reports", a.listReports)
	a.mux.HandleFunc("GET /v1/reports/{id}", a.getReport)

	a.mux.HandleFunc("GET /v1/products/{id}", a.getProduct)
	a.mux.HandleFunc("PATCH /v1/products/{id}", a.updateProduct)

	a.mux.HandleFunc("GET /v1/settings", a.getSettings)
	a.mux.HandleFunc("PUT /v1/settings", a.updateSettings)

	return a, nil
}

// Handler assembles the middleware chain around the router.
func (a *API) Handler() http.Handler {
	var h http.Handler = obs.Instrument(a.mux)
	h = a.withAuth(h)
	h = MaxBodyBytes(h, a.maxBody)
	if a.ratePerSec > 0 {
		h = RateLimit(h, a.rateBurst, a.ratePerSec)
	}
	h = CORS(h)
	h = SecurityHeaders(h)
	h = LoggingJSON(h)
	h = Recover(h)
	h = RealIP(h, a.trustedProxies)
	return RequestID(h)
}

// --- Handlers ---

func (a *API) Healthz(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":  "ok",
		"service": serviceName,
		"version": a.version,
	})
}

func (a *API) Ready(w http.ResponseWriter, r *http.Request) {
	ctx, cancel := context.WithTimeout(r.Context(), 2*time.Second)
	defer cancel()
	if err := a.readyProbe.Check(ctx); err != nil {
		obs.SetReady(false)
		writeJSON(w, http.StatusServiceUnavailable, map[string]any{
			"status": "not_ready",
			"error":  err.Error(),
		})
		return
	}
	obs.SetReady(true)
	writeJSON(w, http.StatusOK, map[string]any{
		"status": "ready",
	})
}

func (a *API) Info(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"name":    serviceName,
		"time":    time.Now().UTC().Format(time.RFC3339),
		"version": a.version,
	})
}

type listResponse[T any] struct {
	Items []T `json:"items"`
}

func list[T any](items []T) listResponse[T] {
	if items == nil {
		items = []T{}
	}
	return listResponse[T]{Items: items}
}
