package commerce

import (
	"context"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
)

func TestClientDecodesSuccessEnvelope(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.URL.Path != "/api/users/%2B263771234567" && r.URL.Path != "/api/users/+263771234567" {
			t.Errorf("unexpected path %q", r.URL.Path)
		}
		if got := r.Header.Get("Authorization"); got != "Bearer secret" {
			t.Errorf("authorization = %q", got)
		}
		w.Header().Set("Content-Type", "application/json")
		_, _ = w.Write([]byte(`{"success":true,"data":{"phone":"+263771234567","role":"merchant","merchant_id":"m1"}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "secret")
	u, err := c.VerifyUser(context.Background(), "+263771234567")
	if err != nil {
		t.Fatalf("VerifyUser: %v", err)
	}
	if u.Role != RoleMerchant || u.MerchantID != "m1" {
		t.Errorf("user = %+v", u)
	}
}

func TestClientSurfacesBackendError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusConflict)
		_, _ = w.Write([]byte(`{"success":false,"error":"product out of stock"}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	_, err := c.AddToCart(context.Background(), "+263770000000", "m1", "p1", 2)
	if err == nil {
		t.Fatal("expected error")
	}
	if want := "product out of stock"; !strings.Contains(err.Error(), want) {
		t.Errorf("error %q missing %q", err, want)
	}
}

func TestClientAddToCartReturnsItemCount(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if r.Method != http.MethodPost {
			t.Errorf("method = %s", r.Method)
		}
		_, _ = w.Write([]byte(`{"success":true,"data":{"items_count":3}}`))
	}))
	defer srv.Close()

	c := NewClient(srv.URL, "")
	n, err := c.AddToCart(context.Background(), "+263770000000", "m1", "p1", 2)
	if err != nil {
		t.Fatalf("AddToCart: %v", err)
	}
	if n != 3 {
		t.Errorf("items_count = %d, want 3", n)
	}
}
