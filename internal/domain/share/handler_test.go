package share

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClaimsEndpointStatuses(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	router := NewHandler(f.svc).RPRoutes()

	live, _ := f.svc.Mint(ctx, f.userID, &MintRequest{Scopes: []string{"basic_profile"}, TTLMinutes: 60})
	gone, _ := f.svc.Mint(ctx, f.userID, &MintRequest{Scopes: []string{"basic_profile"}, TTLMinutes: 60})
	if _, err := f.svc.Revoke(ctx, f.userID, gone.TokenID); err != nil {
		t.Fatalf("revoke: %v", err)
	}

	cases := []struct {
		name   string
		secret string
		status int
		code   string
	}{
		{"valid", secretFrom(t, live), http.StatusOK, ""},
		{"revoked", secretFrom(t, gone), http.StatusGone, "TOKEN_REVOKED"},
		{"unknown", strings.Repeat("f", 64), http.StatusUnauthorized, "INVALID_TOKEN"},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/claims/"+tc.secret, nil)
			rr := httptest.NewRecorder()
			router.ServeHTTP(rr, req)

			if rr.Code != tc.status {
				t.Fatalf("expected %d, got %d: %s", tc.status, rr.Code, rr.Body.String())
			}
			if rr.Header().Get("Cache-Control") == "" {
				t.Fatalf("claims responses must not be cached")
			}
			var body struct {
				Error *struct {
					Code string `json:"code"`
				} `json:"error"`
			}
			if err := json.Unmarshal(rr.Body.Bytes(), &body); err != nil {
				t.Fatalf("decode: %v", err)
			}
			if tc.code != "" && (body.Error == nil || body.Error.Code != tc.code) {
				t.Fatalf("expected error code %s, got %s", tc.code, rr.Body.String())
			}
		})
	}
}

func TestVerifyEndpointRejectsGarbage(t *testing.T) {
	f := newFixture(t)
	router := NewHandler(f.svc).RPRoutes()

	req := httptest.NewRequest(http.MethodPost, "/verify", strings.NewReader(`{"token":"not.a.jws"}`))
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)

	if rr.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", rr.Code)
	}
	if !strings.Contains(rr.Body.String(), `"valid":false`) {
		t.Fatalf("expected valid=false, got %s", rr.Body.String())
	}
}
