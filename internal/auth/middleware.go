package auth

import (
	"strings"

	"github.com/gofiber/fiber/v2"

	apperrors "github.com/spec-kit/sla-monitor/pkg/util"
)

const principalKey = "auth_principal"

// Principal represents the authenticated caller.
type Principal struct {
	SubjectID string
	Kind      SubjectKind
	Name      string
}

// Middleware validates bearer tokens and integration API keys.
type Middleware struct {
	tokens     *TokenManager
	apiKeyHash string
}

// NewMiddleware constructs middleware. An empty apiKeyHash disables the
// X-API-Key path.
func NewMiddleware(tokens *TokenManager, apiKeyHash string) *Middleware {
	return &Middleware{tokens: tokens, apiKeyHash: apiKeyHash}
}

// Handle enforces authentication for protected routes. Callers present
// either a Bearer JWT or an X-API-Key header.
func (m *Middleware) Handle(c *fiber.Ctx) error {
	if apiKey := c.Get("X-API-Key"); apiKey != "" {
		if m.apiKeyHash == "" {
			return apperrors.NewUnauthorized("api key authentication disabled")
		}
		if err := CompareAPIKey(m.apiKeyHash, apiKey); err != nil {
			return apperrors.NewUnauthorized("invalid api key")
		}
		c.Locals(principalKey, &Principal{SubjectID: "integration", Kind: SubjectService, Name: "integration"})
		return c.Next()
	}

	authHeader := c.Get("Authorization")
	if authHeader == "" {
		return apperrors.NewUnauthorized("missing authorization header")
	}

	parts := strings.SplitN(authHeader, " ", 2)
	if len(parts) != 2 || !strings.EqualFold(parts[0], "Bearer") {
		return apperrors.NewUnauthorized("invalid authorization header")
	}

	claims, err := m.tokens.ParseToken(parts[1])
	if err != nil {
		return apperrors.NewUnauthorized("invalid token")
	}

	c.Locals(principalKey, &Principal{SubjectID: claims.SubjectID, Kind: claims.Kind, Name: claims.Name})
	return c.Next()
}

// PrincipalFromContext retrieves the authenticated caller.
func PrincipalFromContext(c *fiber.Ctx) (*Principal, bool) {
	val := c.Locals(principalKey)
	if val == nil {
		return nil, false
	}
	principal, ok := val.(*Principal)
	return principal, ok
}
