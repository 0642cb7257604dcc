package obs

import "testing"

func TestCanonicalPath(t *testing.T) {
	cases := map[string]string{
		"":                           "/",
		"/metrics":                   "/metrics",
		"/v1/receipts":               "/v1/receipts",
		"/v1/receipts/rcp_1":         "/v1/receipts/:id",
		"/v1/receipts/rcp_1/verify":  "/v1/receipts/:id/verify",
		"/v1/receipts/rcp_1/extra":   "/v1/receipts/rcp_1/extra",
		"/v1/admins/adm_9/role":      "/v1/admins/:id/role",
		"/v1/reports/rpt_2?limit=10": "/v1/reports/:id",
		"/v1/products/p-1/reviews":   "/v1/products/p-1/reviews",
		"/v1/settings":               "/v1/settings",
		"/v1/auth/token":             "/v1/auth/token",
	}
	for input, expected := range cases {
		if got := CanonicalPath(input); got != expected {
			t.Fatalf("CanonicalPath(%q)=%q, want %q", input, got, expected)
		}
	}
}
