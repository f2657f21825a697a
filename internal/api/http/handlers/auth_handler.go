package handlers

import (
	"github.com/gofiber/fiber/v2"

	"github.com/spec-kit/sla-monitor/internal/api/dto"
	"github.com/spec-kit/sla-monitor/internal/auth"
	apperrors "github.com/spec-kit/sla-monitor/pkg/util"
)

// AuthHandler issues operator tokens against the integration API key.
type AuthHandler struct {
	tokens     *auth.TokenManager
	apiKeyHash string
}

// NewAuthHandler constructs handler.
func NewAuthHandler(tokens *auth.TokenManager, apiKeyHash string) *AuthHandler {
	return &AuthHandler{tokens: tokens, apiKeyHash: apiKeyHash}
}

// IssueToken POST /auth/token exchanges a valid X-API-Key for a JWT.
func (h *AuthHandler) IssueToken(c *fiber.Ctx) error {
	if h.apiKeyHash == "" {
		return apperrors.NewUnauthorized("token issuance disabled")
	}
	apiKey := c.Get("X-API-Key")
	if apiKey == "" {
		return apperrors.NewUnauthorized("missing api key")
	}
	if err := auth.CompareAPIKey(h.apiKeyHash, apiKey); err != nil {
		return apperrors.NewUnauthorized("invalid api key")
	}

	var req dto.TokenRequest
	if err := c.BodyParser(&req); err != nil {
		return apperrors.NewValidationError("invalid payload", nil)
	}
	if req.SubjectID == "" {
		return apperrors.NewValidationError("subject_id required", nil)
	}

	token, expiresAt, err := h.tokens.GenerateToken(req.SubjectID, auth.SubjectOperator, req.Name)
	if err != nil {
		return apperrors.NewInternalError(err)
	}
	return c.JSON(fiber.Map{"data": dto.TokenResponse{Token: token, ExpiresAt: expiresAt}})
}
