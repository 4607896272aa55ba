package handler

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"backend/internal/service"
	"backend/pkg/apperr"

	"github.com/gin-gonic/gin"
)

// stubPaymentService lets each test script the service outcome.
type stubPaymentService struct {
	processFn func(ctx context.Context, p service.Principal, requestID string, req service.ProcessPaymentDTO) (service.PurchaseRequestResponse, error)
}

func (s *stubPaymentService) InitiatePayment(ctx context.Context, p service.Principal, requestID string) (service.InitiatePaymentResponse, error) {
	return service.InitiatePaymentResponse{}, nil
}

func (s *stubPaymentService) ProcessPayment(ctx context.Context, p service.Principal, requestID string, req service.ProcessPaymentDTO) (service.PurchaseRequestResponse, error) {
	return s.processFn(ctx, p, requestID, req)
}

func newWebhookRouter(svc service.PaymentService) *gin.Engine {
	gin.SetMode(gin.TestMode)
	router := gin.New()
	NewPaymentHandler(svc).RegisterRoutes(&router.RouterGroup)
	return router
}

func postWebhook(t *testing.T, router *gin.Engine, payload map[string]string) *httptest.ResponseRecorder {
	t.Helper()
	body, err := json.Marshal(payload)
	if err != nil {
		t.Fatalf("marshal payload: %v", err)
	}
	req := httptest.NewRequest(http.MethodPost, "/api/payments/webhook", bytes.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	router.ServeHTTP(rec, req)
	return rec
}

func TestWebhookSuccess(t *testing.T) {
	svc := &stubPaymentService{
		processFn: func(ctx context.Context, p service.Principal, requestID string, req service.ProcessPaymentDTO) (service.PurchaseRequestResponse, error) {
			if !p.IsGateway() {
				t.Errorf("webhook principal role = %s, want gateway", p.Role)
			}
			return service.PurchaseRequestResponse{ID: requestID, Status: "PAYMENT_COMPLETED"}, nil
		},
	}
	rec := postWebhook(t, newWebhookRouter(svc), map[string]string{
		"request_id":         "req-1",
		"gateway_payment_id": "pay_1",
		"gateway_signature":  "sig",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}
}

// A failed signature is a recorded business outcome; the gateway must see
// 200 so it stops redelivering.
func TestWebhookSignatureFailureReturns200(t *testing.T) {
	svc := &stubPaymentService{
		processFn: func(ctx context.Context, p service.Principal, requestID string, req service.ProcessPaymentDTO) (service.PurchaseRequestResponse, error) {
			return service.PurchaseRequestResponse{ID: requestID, Status: "PAYMENT_FAILED"},
				&apperr.SignatureVerificationFailed{OrderID: "order_1", PaymentID: req.GatewayPaymentID}
		},
	}
	rec := postWebhook(t, newWebhookRouter(svc), map[string]string{
		"request_id":         "req-1",
		"gateway_payment_id": "pay_forged",
		"gateway_signature":  "sig_bad",
	})
	if rec.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rec.Code)
	}

	var parsed struct {
		Status string `json:"status"`
		Data   struct {
			Status string `json:"status"`
		} `json:"data"`
	}
	if err := json.Unmarshal(rec.Body.Bytes(), &parsed); err != nil {
		t.Fatalf("decode body: %v", err)
	}
	if parsed.Data.Status != "PAYMENT_FAILED" {
		t.Errorf("recorded outcome = %s, want PAYMENT_FAILED", parsed.Data.Status)
	}
}

func TestWebhookErrorMapping(t *testing.T) {
	cases := []struct {
		name string
		err  error
		want int
	}{
		{name: "not found", err: &apperr.NotFoundError{Resource: "purchase request", ID: "x"}, want: http.StatusNotFound},
		{name: "conflict", err: &apperr.ConflictError{Msg: "gateway payment already applied to another request"}, want: http.StatusConflict},
		{name: "wrong state", err: &apperr.InvalidStateTransition{Current: "PENDING", Requested: "PAYMENT_COMPLETED"}, want: http.StatusConflict},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			svc := &stubPaymentService{
				processFn: func(ctx context.Context, p service.Principal, requestID string, req service.ProcessPaymentDTO) (service.PurchaseRequestResponse, error) {
					return service.PurchaseRequestResponse{}, tc.err
				},
			}
			rec := postWebhook(t, newWebhookRouter(svc), map[string]string{
				"request_id":         "req-1",
				"gateway_payment_id": "pay_1",
				"gateway_signature":  "sig",
			})
			if rec.Code != tc.want {
				t.Errorf("status = %d, want %d", rec.Code, tc.want)
			}
		})
	}
}

func TestWebhookRejectsMalformedPayload(t *testing.T) {
	svc := &stubPaymentService{
		processFn: func(ctx context.Context, p service.Principal, requestID string, req service.ProcessPaymentDTO) (service.PurchaseRequestResponse, error) {
			t.Fatal("service must not be called for malformed payload")
			return service.PurchaseRequestResponse{}, nil
		},
	}
	rec := postWebhook(t, newWebhookRouter(svc), map[string]string{
		"request_id": "req-1",
		// missing gateway_payment_id and gateway_signature
	})
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("status = %d, want 400", rec.Code)
	}
}
