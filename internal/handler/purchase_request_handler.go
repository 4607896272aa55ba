package handler

import (
	"context"
	"errors"
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/apperr"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type PurchaseRequestHandler struct {
	requestService service.PurchaseRequestService
	paymentService service.PaymentService
	invoiceService service.InvoiceService
}

func NewPurchaseRequestHandler(
	requestService service.PurchaseRequestService,
	paymentService service.PaymentService,
	invoiceService service.InvoiceService,
) *PurchaseRequestHandler {
	return &PurchaseRequestHandler{
		requestService: requestService,
		paymentService: paymentService,
		invoiceService: invoiceService,
	}
}

func (h *PurchaseRequestHandler) RegisterRoutes(router *gin.RouterGroup) {
	requests := router.Group("/api/purchase-requests")
	{
		// :id is the property id here; the request does not exist yet
		requests.POST("/:id", middleware.RequireRole(model.RoleTenant), h.CreateRequest)
		requests.GET("/tenant", middleware.RequireRole(model.RoleTenant), h.ListForTenant)
		requests.GET("/landlord", middleware.RequireRole(model.RoleLandlord), h.ListForLandlord)
		requests.GET("/:id", middleware.RequireRole(model.RoleTenant, model.RoleLandlord), h.GetRequest)
		requests.PUT("/:id/status", middleware.RequireRole(model.RoleLandlord), h.UpdateStatus)
		requests.POST("/:id/cancel", middleware.RequireRole(model.RoleTenant), h.CancelRequest)
		requests.POST("/:id/initiate-payment", middleware.RequireRole(model.RoleTenant), h.InitiatePayment)
		requests.POST("/:id/process-payment", middleware.RequireRole(model.RoleTenant), h.ProcessPayment)
		requests.GET("/:id/invoice", middleware.RequireRole(model.RoleTenant, model.RoleLandlord), h.GetInvoice)
	}
}

// CreateRequest submits a new purchase request for a property
// @Summary      Create purchase request
// @Description  Submits a tenant's request to purchase a listed property
// @Tags         purchase-requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Property ID"
// @Success      201  {object}  response.Response{data=service.PurchaseRequestResponse}
// @Failure      404  {object}  response.Response
// @Failure      409  {object}  response.Response
// @Router       /api/purchase-requests/{id} [post]
func (h *PurchaseRequestHandler) CreateRequest(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		abortNoPrincipal(c)
		return
	}

	result, err := h.requestService.CreateRequest(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// UpdateStatus approves or rejects a pending purchase request
// @Summary      Approve or reject a purchase request
// @Description  Landlord decision on a pending request; response notes are stored verbatim
// @Tags         purchase-requests
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                   true  "Request ID"
// @Param        payload  body      service.UpdateStatusDTO  true  "Decision"
// @Success      200      {object}  response.Response{data=service.PurchaseRequestResponse}
// @Failure      403      {object}  response.Response
// @Failure      409      {object}  response.Response
// @Router       /api/purchase-requests/{id}/status [put]
func (h *PurchaseRequestHandler) UpdateStatus(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		abortNoPrincipal(c)
		return
	}

	var req service.UpdateStatusDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.requestService.UpdateStatus(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// CancelRequest cancels a pending or approved purchase request
// @Summary      Cancel purchase request
// @Tags         purchase-requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.PurchaseRequestResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/purchase-requests/{id}/cancel [post]
func (h *PurchaseRequestHandler) CancelRequest(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		abortNoPrincipal(c)
		return
	}

	result, err := h.requestService.CancelRequest(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// GetRequest returns a single purchase request visible to its parties
func (h *PurchaseRequestHandler) GetRequest(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		abortNoPrincipal(c)
		return
	}

	result, err := h.requestService.GetRequest(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ListForTenant returns the caller's own purchase requests
// @Summary      List tenant purchase requests
// @Tags         purchase-requests
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=object}
// @Router       /api/purchase-requests/tenant [get]
func (h *PurchaseRequestHandler) ListForTenant(c *gin.Context) {
	h.list(c, h.requestService.ListForTenant)
}

// ListForLandlord returns requests on the caller's properties
// @Summary      List landlord purchase requests
// @Tags         purchase-requests
// @Security     BearerAuth
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=object}
// @Router       /api/purchase-requests/landlord [get]
func (h *PurchaseRequestHandler) ListForLandlord(c *gin.Context) {
	h.list(c, h.requestService.ListForLandlord)
}

func (h *PurchaseRequestHandler) list(c *gin.Context, fetch func(ctx context.Context, p service.Principal, page, limit int) ([]service.PurchaseRequestResponse, int64, error)) {
	p, ok := currentPrincipal(c)
	if !ok {
		abortNoPrincipal(c)
		return
	}

	params := pagination.Parse(c)
	requests, total, err := fetch(c.Request.Context(), p, params.Page, params.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"requests": requests,
		"total":    total,
		"page":     params.Page,
		"limit":    params.Limit,
	}))
}

// InitiatePayment creates (or returns the existing) gateway order for an approved request
// @Summary      Initiate purchase payment
// @Description  Creates a payment gateway order; repeated calls return the existing pending order
// @Tags         payments
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.InitiatePaymentResponse}
// @Failure      409  {object}  response.Response
// @Failure      502  {object}  response.Response
// @Router       /api/purchase-requests/{id}/initiate-payment [post]
func (h *PurchaseRequestHandler) InitiatePayment(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		abortNoPrincipal(c)
		return
	}

	result, err := h.paymentService.InitiatePayment(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}

// ProcessPayment records the gateway confirmation for a pending payment
// @Summary      Process purchase payment
// @Description  Verifies the gateway signature and completes or fails the payment. A failed signature is reported as a payment outcome, not a server error.
// @Tags         payments
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        id       path      string                     true  "Request ID"
// @Param        payload  body      service.ProcessPaymentDTO  true  "Gateway confirmation"
// @Success      200      {object}  response.Response{data=service.PurchaseRequestResponse}
// @Failure      409      {object}  response.Response
// @Router       /api/purchase-requests/{id}/process-payment [post]
func (h *PurchaseRequestHandler) ProcessPayment(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		abortNoPrincipal(c)
		return
	}

	var req service.ProcessPaymentDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.paymentService.ProcessPayment(c.Request.Context(), p, c.Param("id"), req)
	if err != nil {
		// A rejected signature is a recorded payment outcome visible to the
		// tenant, not a fault.
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

// GetInvoice returns the receipt for a completed purchase
// @Summary      Get purchase invoice
// @Tags         purchase-requests
// @Security     BearerAuth
// @Produce      json
// @Param        id   path      string  true  "Request ID"
// @Success      200  {object}  response.Response{data=service.InvoiceResponse}
// @Failure      409  {object}  response.Response
// @Router       /api/purchase-requests/{id}/invoice [get]
func (h *PurchaseRequestHandler) GetInvoice(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		abortNoPrincipal(c)
		return
	}

	result, err := h.invoiceService.BuildInvoice(c.Request.Context(), p, c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
