package services

import (
	"golang.org/x/crypto/bcrypt"

	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/observability/logging"
	"github.com/leadbeacon/leadbeacon-go/internal/infrastructure/security"
	"github.com/leadbeacon/leadbeacon-go/pkg/config"
)

// AuthService handles admin authentication and JWT issuance.
type AuthService struct {
	logger *logging.ChanneledLogger
}

// NewAuthService creates a new authentication service.
func NewAuthService(logger *logging.ChanneledLogger) *AuthService {
	return &AuthService{logger: logger}
}

// AuthResult holds authentication result data.
type AuthResult struct {
	Token   string `json:"token"`
	Role    string `json:"role"`
	Success bool   `json:"success"`
	Error   string `json:"error,omitempty"`
}

// AuthenticateAdmin validates the admin password and generates a JWT.
func (a *AuthService) AuthenticateAdmin(password string) *AuthResult {
	if config.AdminPasswordHash == "" {
		a.logger.Auth().Error("Admin login attempted with no admin password configured")
		return &AuthResult{Success: false, Error: "admin access not configured"}
	}

	if err := bcrypt.CompareHashAndPassword([]byte(config.AdminPasswordHash), []byte(password)); err != nil {
		a.logger.Auth().Error("Admin authentication failed", "error", "invalid credentials")
		return &AuthResult{Success: false, Error: "invalid credentials"}
	}

	token, err := security.GenerateAdminToken(config.JWTSecret, config.AdminTokenTTL)
	if err != nil {
		a.logger.Auth().Error("Failed to generate admin token", "error", err.Error())
		return &AuthResult{Success: false, Error: "token generation failed"}
	}

	a.logger.Auth().Info("Admin authenticated")
	return &AuthResult{Token: token, Role: "admin", Success: true}
}

// ValidateToken checks a bearer token and reports whether it carries the
// admin role.
func (a *AuthService) ValidateToken(tokenString string) bool {
	claims, err := security.ValidateJWT(tokenString, config.JWTSecret)
	if err != nil {
		return false
	}
	role, _ := claims["role"].(string)
	return role == "admin"
}
