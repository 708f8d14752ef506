package webhooks

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/payments"
	pkgerrors "github.com/tranvanhung2003/digital-world-v1-sub001/pkg/errors"
)

const testSigningSecret = "whsec_test"

func TestPaymentWebhook_SuccessAndIdempotent(t *testing.T) {
	payload := buildPaymentEvent(t, "evt_1", "payment.succeeded", "ORD-2601-00001")
	service := &fakePaymentService{}
	guard := newTestGuard(t)
	handler := PaymentWebhook(service, testSigningSecret, guard, nil)

	rec := deliver(handler, payload, payments.Sign(testSigningSecret, payload))
	if rec.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d (%s)", rec.Code, rec.Body.String())
	}
	if service.calls != 1 {
		t.Fatalf("expected service called once, got %d", service.calls)
	}
	if got := service.last.OrderNumber; got != "ORD-2601-00001" {
		t.Fatalf("unexpected order number %q", got)
	}

	rec2 := deliver(handler, payload, payments.Sign(testSigningSecret, payload))
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected 200 on duplicate, got %d", rec2.Code)
	}
	if service.calls != 1 {
		t.Fatalf("duplicate delivery should not reach the service, got %d calls", service.calls)
	}
}

func TestPaymentWebhook_InvalidSignature(t *testing.T) {
	payload := buildPaymentEvent(t, "evt_2", "payment.succeeded", "ORD-2601-00002")
	service := &fakePaymentService{}
	handler := PaymentWebhook(service, testSigningSecret, newTestGuard(t), nil)

	rec := deliver(handler, payload, "deadbeef")
	if rec.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401 for bad signature, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not be invoked on invalid signature")
	}
}

func TestPaymentWebhook_MissingSignature(t *testing.T) {
	payload := buildPaymentEvent(t, "evt_3", "payment.failed", "ORD-2601-00003")
	handler := PaymentWebhook(&fakePaymentService{}, testSigningSecret, newTestGuard(t), nil)

	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", bytes.NewReader(payload))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for missing signature, got %d", rec.Code)
	}
}

func TestPaymentWebhook_UnsupportedType(t *testing.T) {
	payload := buildPaymentEvent(t, "evt_4", "payment.refunded", "ORD-2601-00004")
	service := &fakePaymentService{}
	handler := PaymentWebhook(service, testSigningSecret, newTestGuard(t), nil)

	rec := deliver(handler, payload, payments.Sign(testSigningSecret, payload))
	if rec.Code != http.StatusBadRequest {
		t.Fatalf("expected 400 for unsupported type, got %d", rec.Code)
	}
	if service.calls != 0 {
		t.Fatalf("service should not see unsupported events")
	}
}

func TestPaymentWebhook_ReconcileFailureReleasesClaim(t *testing.T) {
	payload := buildPaymentEvent(t, "evt_5", "payment.succeeded", "ORD-2601-00005")
	service := &fakePaymentService{failures: 1}
	handler := PaymentWebhook(service, testSigningSecret, newTestGuard(t), nil)

	rec := deliver(handler, payload, payments.Sign(testSigningSecret, payload))
	if rec.Code != http.StatusServiceUnavailable {
		t.Fatalf("expected 503 on reconcile failure, got %d", rec.Code)
	}

	// the gateway retries the same event id; the released claim lets it through
	rec2 := deliver(handler, payload, payments.Sign(testSigningSecret, payload))
	if rec2.Code != http.StatusOK {
		t.Fatalf("expected retry to succeed, got %d (%s)", rec2.Code, rec2.Body.String())
	}
	if service.calls != 2 {
		t.Fatalf("expected two reconcile attempts, got %d", service.calls)
	}
}

func deliver(handler http.HandlerFunc, payload []byte, signature string) *httptest.ResponseRecorder {
	req := httptest.NewRequest(http.MethodPost, "/api/v1/webhooks/payment", bytes.NewReader(payload))
	req.Header.Set("X-Gateway-Signature", signature)
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)
	return rec
}

func buildPaymentEvent(t *testing.T, id, eventType, orderNumber string) []byte {
	t.Helper()
	payload, err := json.Marshal(PaymentEventPayload{
		ID:          id,
		Type:        eventType,
		OrderNumber: orderNumber,
		PaymentRef:  "pay_" + id,
	})
	if err != nil {
		t.Fatalf("marshal event: %v", err)
	}
	return payload
}

func newTestGuard(t *testing.T) *payments.IdempotencyGuard {
	t.Helper()
	guard, err := payments.NewIdempotencyGuard(newInMemoryStore(), time.Minute, "payment_webhook")
	if err != nil {
		t.Fatalf("guard setup: %v", err)
	}
	return guard
}

type fakePaymentService struct {
	calls    int
	failures int
	last     payments.GatewayEvent
}

func (f *fakePaymentService) Reconcile(ctx context.Context, event payments.GatewayEvent) error {
	f.calls++
	f.last = event
	if f.failures > 0 {
		f.failures--
		return pkgerrors.New(pkgerrors.CodeDependency, "reconcile unavailable")
	}
	return nil
}

type inMemoryStore struct {
	mu     sync.Mutex
	values map[string]string
}

func newInMemoryStore() *inMemoryStore {
	return &inMemoryStore{values: map[string]string{}}
}

func (s *inMemoryStore) SetNX(ctx context.Context, key string, value any, ttl time.Duration) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, exists := s.values[key]; exists {
		return false, nil
	}
	s.values[key] = "1"
	return true, nil
}

func (s *inMemoryStore) IdempotencyKey(scope, id string) string {
	return "dw:idempotency:" + scope + ":" + id
}

func (s *inMemoryStore) Del(ctx context.Context, keys ...string) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	for _, key := range keys {
		delete(s.values, key)
	}
	return nil
}
