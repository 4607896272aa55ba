package handler

import (
	"net/http"

	"backend/internal/middleware"
	"backend/internal/model"
	"backend/internal/service"
	"backend/pkg/pagination"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
)

type PropertyHandler struct {
	propertyService service.PropertyService
}

func NewPropertyHandler(propertyService service.PropertyService) *PropertyHandler {
	return &PropertyHandler{propertyService: propertyService}
}

func (h *PropertyHandler) RegisterRoutes(router *gin.RouterGroup) {
	properties := router.Group("/api/properties")
	{
		properties.GET("", h.ListAvailable)
		properties.GET("/mine", middleware.RequireRole(model.RoleLandlord), h.ListMine)
		properties.GET("/:id", h.GetProperty)
		properties.POST("", middleware.RequireRole(model.RoleLandlord), h.CreateProperty)
	}
}

// CreateProperty lists a new property for sale
// @Summary      Create property
// @Description  Lists a new property for sale under the calling landlord
// @Tags         properties
// @Security     BearerAuth
// @Accept       json
// @Produce      json
// @Param        payload  body      service.CreatePropertyDTO  true  "Property"
// @Success      201      {object}  response.Response{data=service.PropertyResponse}
// @Failure      400      {object}  response.Response
// @Router       /api/properties [post]
func (h *PropertyHandler) CreateProperty(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		abortNoPrincipal(c)
		return
	}

	var req service.CreatePropertyDTO
	if err := c.ShouldBindJSON(&req); err != nil {
		c.JSON(http.StatusBadRequest, response.Error(http.StatusBadRequest, "Invalid request payload: "+err.Error()))
		return
	}

	result, err := h.propertyService.CreateProperty(c.Request.Context(), p, req)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusCreated, response.Success(http.StatusCreated, result))
}

// ListAvailable returns properties currently available for sale
// @Summary      List available properties
// @Tags         properties
// @Produce      json
// @Param        page   query     int  false  "Page number (default 1)"
// @Param        limit  query     int  false  "Number of items per page (default 20)"
// @Success      200    {object}  response.Response{data=object}
// @Router       /api/properties [get]
func (h *PropertyHandler) ListAvailable(c *gin.Context) {
	params := pagination.Parse(c)

	properties, total, err := h.propertyService.ListAvailable(c.Request.Context(), params.Page, params.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"properties": properties,
		"total":      total,
		"page":       params.Page,
		"limit":      params.Limit,
	}))
}

// ListMine returns the calling landlord's properties
func (h *PropertyHandler) ListMine(c *gin.Context) {
	p, ok := currentPrincipal(c)
	if !ok {
		abortNoPrincipal(c)
		return
	}

	params := pagination.Parse(c)
	properties, total, err := h.propertyService.ListMine(c.Request.Context(), p, params.Page, params.Limit)
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, map[string]interface{}{
		"properties": properties,
		"total":      total,
		"page":       params.Page,
		"limit":      params.Limit,
	}))
}

// GetProperty returns one property by id
// @Summary      Get property
// @Tags         properties
// @Produce      json
// @Param        id   path      string  true  "Property ID"
// @Success      200  {object}  response.Response{data=service.PropertyResponse}
// @Failure      404  {object}  response.Response
// @Router       /api/properties/{id} [get]
func (h *PropertyHandler) GetProperty(c *gin.Context) {
	result, err := h.propertyService.GetProperty(c.Request.Context(), c.Param("id"))
	if err != nil {
		respondError(c, err)
		return
	}

	c.JSON(http.StatusOK, response.Success(http.StatusOK, result))
}
