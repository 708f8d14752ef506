package webhooks

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strings"

	"github.com/tranvanhung2003/digital-world-v1-sub001/api/responses"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/payments"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/enums"
	pkgerrors "github.com/tranvanhung2003/digital-world-v1-sub001/pkg/errors"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/logger"
)

const signatureHeader = "X-Gateway-Signature"

// PaymentEventPayload is the wire shape of one gateway delivery.
type PaymentEventPayload struct {
	ID          string `json:"id"`
	Type        string `json:"type"`
	OrderNumber string `json:"order_number"`
	PaymentRef  string `json:"payment_ref,omitempty"`
}

type paymentWebhookGuard interface {
	CheckAndMark(ctx context.Context, eventID string) (bool, error)
	Delete(ctx context.Context, eventID string) error
}

// PaymentWebhook ingests payment gateway events: verify, dedupe, reconcile.
// The idempotency claim is released when reconciliation fails so the
// gateway's retry gets another attempt.
func PaymentWebhook(svc payments.Service, signingSecret string, guard paymentWebhookGuard, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		ctx := r.Context()

		if svc == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "webhook service unavailable"))
			return
		}
		if guard == nil {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeInternal, "idempotency guard unavailable"))
			return
		}

		payload, err := io.ReadAll(r.Body)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "read request body"))
			return
		}

		sigHeader := r.Header.Get(signatureHeader)
		if sigHeader == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "gateway signature missing"))
			return
		}
		if err := payments.VerifySignature(signingSecret, payload, sigHeader); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeUnauthorized, err, "verify signature"))
			return
		}

		var event PaymentEventPayload
		if err := json.Unmarshal(payload, &event); err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeValidation, err, "decode payload"))
			return
		}
		if event.ID == "" {
			responses.WriteError(ctx, logg, w, pkgerrors.New(pkgerrors.CodeValidation, "event id missing"))
			return
		}
		outcome, err := outcomeFromType(event.Type)
		if err != nil {
			responses.WriteError(ctx, logg, w, err)
			return
		}

		alreadyProcessed, err := guard.CheckAndMark(ctx, event.ID)
		if err != nil {
			responses.WriteError(ctx, logg, w, pkgerrors.Wrap(pkgerrors.CodeDependency, err, "check idempotency"))
			return
		}
		if alreadyProcessed {
			responses.WriteSuccess(w, nil)
			return
		}

		reconcileErr := svc.Reconcile(ctx, payments.GatewayEvent{
			EventID:     event.ID,
			OrderNumber: event.OrderNumber,
			Outcome:     outcome,
			PaymentRef:  event.PaymentRef,
		})
		if reconcileErr != nil {
			_ = guard.Delete(ctx, event.ID)
			responses.WriteError(ctx, logg, w, reconcileErr)
			return
		}

		if logg != nil {
			logg.Info(ctx, fmt.Sprintf("payment event %s processed", event.ID))
		}
		responses.WriteSuccess(w, nil)
	}
}

func outcomeFromType(eventType string) (enums.PaymentOutcome, error) {
	switch strings.TrimSpace(eventType) {
	case "payment.succeeded":
		return enums.PaymentOutcomeSucceeded, nil
	case "payment.failed":
		return enums.PaymentOutcomeFailed, nil
	default:
		return "", pkgerrors.New(pkgerrors.CodeValidation, "unsupported event type").
			WithDetails(map[string]any{"type": eventType})
	}
}
