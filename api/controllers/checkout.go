package controllers

import (
	"net/http"

	"github.com/google/uuid"

	"github.com/tranvanhung2003/digital-world-v1-sub001/api/middleware"
	"github.com/tranvanhung2003/digital-world-v1-sub001/api/responses"
	"github.com/tranvanhung2003/digital-world-v1-sub001/api/validators"
	"github.com/tranvanhung2003/digital-world-v1-sub001/internal/checkout"
	pkgerrors "github.com/tranvanhung2003/digital-world-v1-sub001/pkg/errors"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/logger"
	"github.com/tranvanhung2003/digital-world-v1-sub001/pkg/types"
)

type addressPayload struct {
	Recipient  string  `json:"recipient" validate:"required"`
	Phone      string  `json:"phone"`
	Line1      string  `json:"line1" validate:"required"`
	Line2      *string `json:"line2,omitempty"`
	City       string  `json:"city" validate:"required"`
	State      string  `json:"state"`
	PostalCode string  `json:"postal_code"`
	Country    string  `json:"country" validate:"required"`
}

type checkoutRequest struct {
	ShippingAddress addressPayload  `json:"shipping_address" validate:"required"`
	BillingAddress  *addressPayload `json:"billing_address,omitempty"`
	Notes           *string         `json:"notes,omitempty"`
	TaxCents        int             `json:"tax_cents" validate:"min=0"`
	ShippingCents   int             `json:"shipping_cents" validate:"min=0"`
	DiscountCents   int             `json:"discount_cents" validate:"min=0"`
}

func (p addressPayload) toAddress() types.Address {
	return types.Address{
		Recipient:  p.Recipient,
		Phone:      p.Phone,
		Line1:      p.Line1,
		Line2:      p.Line2,
		City:       p.City,
		State:      p.State,
		PostalCode: p.PostalCode,
		Country:    p.Country,
	}
}

// CheckoutExecute converts the caller's active cart into an order.
func CheckoutExecute(svc checkout.Service, logg *logger.Logger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		userID := middleware.UserUUIDFromContext(r.Context())
		if userID == uuid.Nil {
			responses.WriteError(r.Context(), logg, w, pkgerrors.New(pkgerrors.CodeUnauthorized, "missing user"))
			return
		}

		var req checkoutRequest
		if err := validators.DecodeJSONBody(r, &req); err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}

		input := checkout.CheckoutInput{
			ShippingAddress: req.ShippingAddress.toAddress(),
			Notes:           req.Notes,
			TaxCents:        req.TaxCents,
			ShippingCents:   req.ShippingCents,
			DiscountCents:   req.DiscountCents,
		}
		if req.BillingAddress != nil {
			billing := req.BillingAddress.toAddress()
			input.BillingAddress = &billing
		}

		order, err := svc.Execute(r.Context(), userID, input)
		if err != nil {
			responses.WriteError(r.Context(), logg, w, err)
			return
		}
		responses.WriteSuccessStatus(w, http.StatusCreated, order)
	}
}
