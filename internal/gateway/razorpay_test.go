package gateway

import (
	"context"
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"backend/pkg/apperr"
)

func signPayment(secret, orderID, paymentID string) string {
	mac := hmac.New(sha256.New, []byte(secret))
	mac.Write([]byte(orderID + "|" + paymentID))
	return hex.EncodeToString(mac.Sum(nil))
}

func TestVerifySignature(t *testing.T) {
	adapter := NewRazorpayAdapter("http://unused", "key_id", "key_secret")

	valid := signPayment("key_secret", "order_1", "pay_1")
	if !adapter.VerifySignature("order_1", "pay_1", valid) {
		t.Error("valid signature rejected")
	}
	if adapter.VerifySignature("order_1", "pay_1", "deadbeef") {
		t.Error("forged signature accepted")
	}
	if adapter.VerifySignature("order_2", "pay_1", valid) {
		t.Error("signature accepted for wrong order")
	}
	if adapter.VerifySignature("order_1", "pay_2", valid) {
		t.Error("signature accepted for wrong payment")
	}

	// Signed with a different secret.
	other := signPayment("other_secret", "order_1", "pay_1")
	if adapter.VerifySignature("order_1", "pay_1", other) {
		t.Error("signature from wrong secret accepted")
	}
}

func TestCreateOrder(t *testing.T) {
	var gotAuthUser, gotAuthPass string
	var gotBody createOrderRequest

	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotAuthUser, gotAuthPass, _ = r.BasicAuth()
		if err := json.NewDecoder(r.Body).Decode(&gotBody); err != nil {
			t.Errorf("decode order body: %v", err)
		}
		w.Header().Set("Content-Type", "application/json")
		w.WriteHeader(http.StatusOK)
		json.NewEncoder(w).Encode(map[string]string{"id": "order_abc"})
	}))
	defer srv.Close()

	adapter := NewRazorpayAdapter(srv.URL, "key_id", "key_secret")
	orderID, err := adapter.CreateOrder(context.Background(), 10000000, "INR", map[string]string{"request_id": "r1"})
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if orderID != "order_abc" {
		t.Errorf("order id = %s, want order_abc", orderID)
	}
	if gotAuthUser != "key_id" || gotAuthPass != "key_secret" {
		t.Errorf("basic auth = %s/%s", gotAuthUser, gotAuthPass)
	}
	if gotBody.Amount != 10000000 || gotBody.Currency != "INR" {
		t.Errorf("order body = %+v", gotBody)
	}
	if gotBody.Notes["request_id"] != "r1" {
		t.Errorf("notes = %v", gotBody.Notes)
	}
}

func TestCreateOrderRetriesServerErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		if calls < 3 {
			w.WriteHeader(http.StatusBadGateway)
			return
		}
		json.NewEncoder(w).Encode(map[string]string{"id": "order_retry"})
	}))
	defer srv.Close()

	adapter := NewRazorpayAdapter(srv.URL, "key_id", "key_secret")
	orderID, err := adapter.CreateOrder(context.Background(), 5000, "INR", nil)
	if err != nil {
		t.Fatalf("CreateOrder: %v", err)
	}
	if orderID != "order_retry" {
		t.Errorf("order id = %s, want order_retry", orderID)
	}
	if calls != 3 {
		t.Errorf("server hit %d times, want 3", calls)
	}
}

func TestCreateOrderExhaustsRetries(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	adapter := NewRazorpayAdapter(srv.URL, "key_id", "key_secret")
	_, err := adapter.CreateOrder(context.Background(), 5000, "INR", nil)
	var gwErr *apperr.GatewayUnavailable
	if !errors.As(err, &gwErr) {
		t.Fatalf("err = %v, want GatewayUnavailable", err)
	}
	if calls != maxAttempts {
		t.Errorf("server hit %d times, want %d", calls, maxAttempts)
	}
}

func TestCreateOrderDoesNotRetryClientErrors(t *testing.T) {
	var calls int
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		calls++
		w.WriteHeader(http.StatusUnauthorized)
	}))
	defer srv.Close()

	adapter := NewRazorpayAdapter(srv.URL, "bad_key", "bad_secret")
	_, err := adapter.CreateOrder(context.Background(), 5000, "INR", nil)
	if err == nil {
		t.Fatal("expected error on 401")
	}
	var gwErr *apperr.GatewayUnavailable
	if errors.As(err, &gwErr) {
		t.Errorf("4xx surfaced as GatewayUnavailable: %v", err)
	}
	if calls != 1 {
		t.Errorf("server hit %d times, want 1", calls)
	}
}

func TestCreateOrderNetworkFailure(t *testing.T) {
	// A server that is immediately closed leaves nothing listening.
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	srv.Close()

	adapter := NewRazorpayAdapter(srv.URL, "key_id", "key_secret")
	_, err := adapter.CreateOrder(context.Background(), 5000, "INR", nil)
	var gwErr *apperr.GatewayUnavailable
	if !errors.As(err, &gwErr) {
		t.Fatalf("err = %v, want GatewayUnavailable", err)
	}
}
