package auth

import (
	"fmt"
	"time"

	"collab-server/internal/config"
	"collab-server/internal/models"

	"github.com/golang-jwt/jwt/v5"
)

// Service verifies bearer credentials presented at WebSocket handshake time.
// Token issuance lives in the account service; this side only validates and
// decodes identity.
type Service struct {
	cfg *config.Config
}

func NewService(cfg *config.Config) *Service {
	return &Service{cfg: cfg}
}

func (s *Service) ValidateToken(tokenString string) (*jwt.MapClaims, error) {
	token, err := jwt.ParseWithClaims(tokenString, &jwt.MapClaims{}, func(token *jwt.Token) (interface{}, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", token.Header["alg"])
		}
		return s.cfg.JWT.Secret, nil
	})

	if err != nil {
		return nil, err
	}

	if claims, ok := token.Claims.(*jwt.MapClaims); ok && token.Valid {
		return claims, nil
	}

	return nil, fmt.Errorf("invalid token")
}

// VerifyCredential validates the token and extracts the identity it carries.
// Any failure collapses to a single generic error so callers can't tell a
// missing claim from a bad signature.
func (s *Service) VerifyCredential(tokenString string) (*models.Identity, error) {
	claims, err := s.ValidateToken(tokenString)
	if err != nil {
		return nil, fmt.Errorf("authentication failed")
	}

	userID, ok := (*claims)["user_id"].(string)
	if !ok || userID == "" {
		return nil, fmt.Errorf("authentication failed")
	}

	email, _ := (*claims)["email"].(string)

	return &models.Identity{
		UserID: userID,
		Email:  email,
	}, nil
}

// IssueToken mints a short-lived credential for the given identity. The
// production issuer is the account service; this is kept for local tooling
// and tests.
func (s *Service) IssueToken(identity *models.Identity, expiresIn time.Duration) (string, error) {
	claims := jwt.MapClaims{
		"user_id": identity.UserID,
		"email":   identity.Email,
		"exp":     time.Now().Add(expiresIn).Unix(),
		"iat":     time.Now().Unix(),
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString(s.cfg.JWT.Secret)
}
