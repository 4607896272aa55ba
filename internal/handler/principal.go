package handler

import (
	"net/http"

	"backend/internal/service"
	"backend/pkg/apperr"
	"backend/pkg/response"

	"github.com/gin-gonic/gin"
	"github.com/google/uuid"
)

// currentPrincipal rebuilds the caller identity from the values the auth
// middleware stored after verifying the JWT.
func currentPrincipal(c *gin.Context) (service.Principal, bool) {
	idVal, exists := c.Get("userID")
	if !exists {
		return service.Principal{}, false
	}
	idStr, ok := idVal.(string)
	if !ok {
		return service.Principal{}, false
	}
	userID, err := uuid.Parse(idStr)
	if err != nil {
		return service.Principal{}, false
	}

	role, _ := c.Get("userRole")
	roleStr, _ := role.(string)

	return service.Principal{UserID: userID, Role: roleStr}, true
}

// respondError maps a service error onto the standard error envelope.
func respondError(c *gin.Context, err error) {
	status := apperr.HTTPStatus(err)
	c.JSON(status, response.Error(status, err.Error()))
}

func abortNoPrincipal(c *gin.Context) {
	c.JSON(http.StatusUnauthorized, response.Error(http.StatusUnauthorized, "User ID not found in context"))
}
