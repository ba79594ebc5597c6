package handlers

import (
	"net/http"
	"strconv"

	"github.com/gin-gonic/gin"

	"github.com/jsamuelsen/tracecontext-service/internal/adapters/http/dto"
	"github.com/jsamuelsen/tracecontext-service/internal/domain"
	"github.com/jsamuelsen/tracecontext-service/internal/ports"
)

// UserHandler serves the user API. It reads nothing from the trace context
// itself; the id reaches the service and repository through the request ctx.
type UserHandler struct {
	service ports.UserService
}

// NewUserHandler creates a new user handler.
func NewUserHandler(service ports.UserService) *UserHandler {
	return &UserHandler{service: service}
}

// Login handles POST /api/v1/users/login.
//
// @Summary Log in
// @Tags users
// @Accept json
// @Produce json
// @Param body body dto.LoginRequest true "Credentials"
// @Success 200 {object} dto.LoginResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 401 {object} dto.ErrorResponse
// @Router /api/v1/users/login [post]
func (h *UserHandler) Login(c *gin.Context) {
	var req dto.LoginRequest
	if err := dto.BindAndValidate(c, &req); err != nil {
		dto.RespondWithBindError(c, err)
		return
	}

	session, err := h.service.Authenticate(c.Request.Context(), req.Username, req.Password)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewLoginResponse(session))
}

// GetUser handles GET /api/v1/users/:id.
//
// @Summary Get a user by ID
// @Tags users
// @Produce json
// @Param id path int true "User ID"
// @Success 200 {object} dto.UserResponse
// @Failure 400 {object} dto.ErrorResponse
// @Failure 404 {object} dto.ErrorResponse
// @Router /api/v1/users/{id} [get]
func (h *UserHandler) GetUser(c *gin.Context) {
	id, err := strconv.ParseInt(c.Param("id"), 10, 64)
	if err != nil || id <= 0 {
		dto.HandleError(c, domain.NewValidationError("id", "must be a positive integer"))
		return
	}

	user, err := h.service.GetUserByID(c.Request.Context(), id)
	if err != nil {
		dto.HandleError(c, err)
		return
	}

	c.JSON(http.StatusOK, dto.NewUserResponse(user))
}

// RegisterUserRoutes registers user routes on the given router group.
func (h *UserHandler) RegisterUserRoutes(rg *gin.RouterGroup) {
	users := rg.Group("/users")
	users.POST("/login", h.Login)
	users.GET("/:id", h.GetUser)
}
