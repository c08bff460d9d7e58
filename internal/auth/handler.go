// File: internal/auth/handler.go
package auth

import (
	"context"
	"errors"
	"net/http"
	"strings"

	"calma_backend/internal/common"
	"calma_backend/internal/shared"

	"github.com/gin-gonic/gin"
	"github.com/go-playground/validator/v10"
	"go.uber.org/zap"
)

// Handler struct holds dependencies for auth handlers.
type Handler struct {
	authService Service
	assessments AssessmentRecorder
	logger      *zap.Logger
}

// NewHandler creates a new auth handler.
func NewHandler(authService Service, assessments AssessmentRecorder, logger *zap.Logger) *Handler {
	return &Handler{
		authService: authService,
		assessments: assessments,
		logger:      logger.Named("AuthHandler"),
	}
}

// RegisterRoutes sets up the routes for authentication operations. mw is
// applied to the whole group.
func (h *Handler) RegisterRoutes(router *gin.RouterGroup, mw ...gin.HandlerFunc) {
	authGroup := router.Group("/auth", mw...)
	{
		authGroup.POST("/signup", h.signup)
		authGroup.POST("/login", h.login)
		authGroup.POST("/refresh", h.refreshToken)
		authGroup.GET("/users/exists", h.userExists)
	}
}

func (h *Handler) signup(c *gin.Context) {
	var req SignupRequest
	if !h.bindJSON(c, &req, "Signup") {
		return
	}
	ctx := c.Request.Context()
	creds := req.toCredentials()

	userID, err := h.authService.Register(ctx, creds)
	if err != nil {
		var regErr *shared.RegistrationError
		if errors.As(err, &regErr) && regErr.Orphaned {
			h.deferAssessment(ctx, creds.Email, creds.AssessmentAnswers, "", err)
		}
		h.logger.Warn("Signup failed", zap.String("email", creds.Email), zap.Error(err))
		common.RespondWithError(c, toAPIError(err))
		return
	}

	status, err := h.assessments.Record(ctx, creds.AssessmentAnswers, userID)
	if err != nil {
		h.deferAssessment(ctx, creds.Email, creds.AssessmentAnswers, userID, err)
		status = AssessmentStatusPending
	}

	common.RespondOK(c, "User registered successfully.", SignupResponse{
		UserID:           userID,
		AssessmentStatus: status,
	})
}

func (h *Handler) login(c *gin.Context) {
	var req LoginRequest
	if !h.bindJSON(c, &req, "Login") {
		return
	}

	tokenResponse, err := h.authService.Login(c.Request.Context(), shared.LoginCredentials{
		Email:    strings.TrimSpace(req.Email),
		Password: req.Password,
	})
	if err != nil {
		common.RespondWithError(c, toAPIError(err))
		return
	}
	common.RespondOK(c, "Login successful.", tokenResponse)
}

func (h *Handler) refreshToken(c *gin.Context) {
	var req RefreshTokenRequest
	if c.Request.ContentLength != 0 {
		if !h.bindJSON(c, &req, "Refresh token") {
			return
		}
	}

	token := strings.TrimSpace(req.RefreshToken)
	if token == "" {
		token = common.GetTokenFromContext(c)
	}
	if token == "" {
		common.RespondWithError(c, common.NewValidationAPIError(map[string]string{
			"refresh_token": "The refresh_token field is required.",
		}))
		return
	}

	tokenResponse, err := h.authService.Refresh(c.Request.Context(), token)
	if err != nil {
		common.RespondWithError(c, toAPIError(err))
		return
	}
	common.RespondOK(c, "Token refreshed successfully.", tokenResponse)
}

func (h *Handler) userExists(c *gin.Context) {
	var query UserExistsQuery
	if err := c.ShouldBindQuery(&query); err != nil {
		respondBindError(c, err)
		return
	}

	exists, err := h.authService.UserExists(c.Request.Context(), strings.TrimSpace(query.Email))
	if err != nil {
		h.logger.Warn("User exists lookup failed", zap.Error(err))
		common.RespondWithError(c, toAPIError(err))
		return
	}
	common.RespondOK(c, "", gin.H{"exists": exists})
}

// bindJSON binds the body into obj and writes the error response on failure.
func (h *Handler) bindJSON(c *gin.Context, obj interface{}, action string) bool {
	if err := c.ShouldBindJSON(obj); err != nil {
		h.logger.Warn(action+": Invalid request body", zap.Error(err))
		respondBindError(c, err)
		return false
	}
	return true
}

func respondBindError(c *gin.Context, err error) {
	var ve validator.ValidationErrors
	if errors.As(err, &ve) {
		common.RespondWithError(c, common.NewValidationAPIError(common.FormatValidationErrors(ve)))
		return
	}
	common.RespondWithError(c, common.ErrBadRequest.WithDetails("Malformed request body."))
}

// deferAssessment queues the answers for the reconcile job. A failure here is
// logged only; the signup response is already decided.
func (h *Handler) deferAssessment(ctx context.Context, email, answers, userID string, cause error) {
	if err := h.assessments.Defer(context.WithoutCancel(ctx), email, answers, userID, cause); err != nil {
		h.logger.Error("Assessment could not be queued and is lost",
			zap.String("email", email),
			zap.String("user_id", userID),
			zap.Error(err),
		)
	}
}

// toAPIError maps identity errors to API responses. IdP bodies are logged by
// the provider and never returned to the caller.
func toAPIError(err error) *common.APIError {
	// An orphaned account exists even when the lookup failed on the admin token.
	var regErr *shared.RegistrationError
	if errors.As(err, &regErr) && regErr.Orphaned {
		return common.ErrRegistrationUnresolved
	}

	var adminErr *shared.AdminTokenError
	if errors.As(err, &adminErr) {
		return common.ErrServiceUnavailable.WithDetails("The identity provider is unavailable.")
	}

	if regErr != nil {
		switch {
		case regErr.Stage == shared.StageCreate && regErr.StatusCode == http.StatusConflict:
			return common.ErrConflict.WithDetails("An account with this email already exists.")
		case regErr.Stage == shared.StageCreate && regErr.StatusCode >= 400 && regErr.StatusCode < 500:
			return common.ErrBadRequest.WithDetails("The identity provider rejected the registration.")
		case regErr.StatusCode == 0:
			return common.ErrServiceUnavailable.WithDetails("The identity provider is unavailable.")
		default:
			return common.ErrBadGateway
		}
	}

	var authErr *shared.AuthenticationError
	if errors.As(err, &authErr) {
		switch {
		case authErr.InvalidCredentials():
			return common.ErrUnauthorized.WithDetails("Invalid credentials or token.")
		case errors.Is(err, shared.ErrIncompleteToken):
			return common.ErrBadGateway
		default:
			return common.ErrServiceUnavailable.WithDetails("The identity provider is unavailable.")
		}
	}

	if errors.Is(err, context.DeadlineExceeded) {
		return common.ErrServiceUnavailable
	}
	if apiErr, ok := common.IsAPIError(err); ok {
		return apiErr
	}
	return common.ErrInternalServer
}
