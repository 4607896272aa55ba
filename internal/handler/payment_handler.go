package handler

import (
	"errors"
	"net/http"

	"backend/internal/service"
	"backend/pkg/apperr"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

// PaymentHandler exposes the gateway webhook. It converges on the same
// idempotent ProcessPayment entry point as the client-side confirmation.
type PaymentHandler struct {
	paymentService service.PaymentService
}

func NewPaymentHandler(paymentService service.PaymentService) *PaymentHandler {
	return &PaymentHandler{paymentService: paymentService}
}

func (h *PaymentHandler) RegisterRoutes(router *gin.RouterGroup) {
	payments := router.Group("/api/payments")
	{
		// No JWT auth: the webhook is authenticated by its payment signature
		payments.POST("/webhook", h.Webhook)
	}
}

type webhookPayload struct {
	RequestID        string `json:"request_id" binding:"required"`
	GatewayPaymentID string `json:"gateway_payment_id" binding:"required"`
	GatewaySignature string `json:"gateway_signature" binding:"required"`
}

// Webhook handles asynchronous payment confirmations from the gateway
// @Summary      Payment gateway webhook
// @Description  Records the outcome of a gateway payment. Duplicate deliveries are applied at most once.
// @Tags         payments
// @Accept       json
// @Produce      json
// @Param        payload  body      webhookPayload  true  "Gateway event"
// @Success      200      {object}  response.Response{data=service.PurchaseRequestResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/payments/webhook [post]
func (h *PaymentHandler) Webhook(c *gin.Context) {
	var payload webhookPayload
	if err := c.ShouldBindJSON(&payload); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid webhook payload: "+err.Error()))
		return
	}

	result, err := h.paymentService.ProcessPayment(c.Request.Context(), service.GatewayPrincipal(), payload.RequestID, service.ProcessPaymentDTO{
		GatewayPaymentID: payload.GatewayPaymentID,
		GatewaySignature: payload.GatewaySignature,
	})
	if err != nil {
		var verif *apperr.SignatureVerificationFailed
		if errors.As(err, &verif) {
			c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
			return
		}
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
