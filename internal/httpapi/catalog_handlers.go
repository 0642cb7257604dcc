package httpapi

import (
	"net/http"

	"fundimart.org/internal/audit"
	"fundimart.org/internal/catalog"
	"fundimart.org/internal/settings"
)

type settingsRequest struct {
	CommissionBasisPoints int    `json:"commission_basis_points"`
	MaintenanceMode       bool   `json:"maintenance_mode"`
	SupportEmail          string `json:"support_email"`
	MaxReceiptBytes       int64  `json:"max_receipt_bytes"`
}

func (a *API) getProduct(w http.ResponseWriter, r *http.Request) {
	p, err := a.catalog.GetProduct(r.Context(), r.PathValue("id"))
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, p)
}

func (a *API) updateProduct(w http.ResponseWriter, r *http.Request) {
	var u catalog.ProductUpdate
	if err := decodeJSON(r, &u); err != nil {
		badBody(w, r, err)
		return
	}
	p, err := a.catalog.UpdateProduct(r.Context(), identity(r), r.PathValue("id"), u)
	observe(catalog.ActionUpdateProduct, err)
	if err != nil {
		handleError(w, r, err)
		return
	}
	fields := map[string]any{"product_id": p.ID, "shop_id": p.ShopID}
	if u.Name != nil {
		fields["name"] = p.Name
	}
	if u.PriceMinor != nil {
		fields["price_minor"] = p.PriceMinor
	}
	_ = audit.LogEvent(r.Context(), "product.update", fields)
	writeJSON(w, http.StatusOK, p)
}

func (a *API) getSettings(w http.ResponseWriter, r *http.Request) {
	s, err := a.settings.Get(r.Context(), identity(r))
	observe(settings.ActionRead, err)
	if err != nil {
		handleError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, s)
}

func (a *API) updateSettings(w http.ResponseWriter, r *http.Request) {
	var req settingsRequest
	if err := decodeJSON(r, &req); err != nil {
		badBody(w, r, err)
		return
	}
	s, err := a.settings.Update(r.Context(), identity(r), settings.Settings{
		CommissionBasisPoints: req.CommissionBasisPoints,
		MaintenanceMode:       req.MaintenanceMode,
		SupportEmail:          req.SupportEmail,
		MaxReceiptBytes:       req.MaxReceiptBytes,
	})
	observe(settings.ActionUpdate, err)
	if err != nil {
		handleError(w, r, err)
		return
	}
	_ = audit.LogEvent(r.Context(), "settings.update", map[string]any{
		"commission_basis_points": s.CommissionBasisPoints,
		"maintenance_mode":        s.MaintenanceMode,
		"support_email":           s.SupportEmail,
		"max_receipt_bytes":       s.MaxReceiptBytes,
	})
	writeJSON(w, http.StatusOK, s)
}
