package token

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/openscience/moderation/internal/application/port"
	"github.com/openscience/moderation/internal/domain/entity"
)

// JWTService implements port.TokenService with HMAC-signed tokens. Each
// token binds one user to one decision on one sanction, so a forwarded
// approval link cannot be replayed by someone else or against a different
// sanction.
type JWTService struct {
	secret []byte
	ttl    time.Duration
	now    func() time.Time
}

// NewJWTService creates the token service. The ttl should cover the
// sanction approval window with some slack.
func NewJWTService(secret string, ttl time.Duration) *JWTService {
	if ttl <= 0 {
		ttl = entity.DefaultApprovalWindow + 24*time.Hour
	}
	return &JWTService{secret: []byte(secret), ttl: ttl, now: time.Now}
}

type sanctionClaims struct {
	SanctionID string `json:"sanction_id"`
	Purpose    string `json:"purpose"`
	jwt.RegisteredClaims
}

// TokenForUser issues a decision token for one user on one sanction
func (s *JWTService) TokenForUser(userID, sanctionID string, purpose port.TokenPurpose) (string, error) {
	now := s.now().UTC()
	claims := sanctionClaims{
		SanctionID: sanctionID,
		Purpose:    string(purpose),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   userID,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(s.ttl)),
		},
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(s.secret)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return signed, nil
}

// ValidateToken checks the token's signature, expiry and binding
func (s *JWTService) ValidateToken(token, userID, sanctionID string, purpose port.TokenPurpose) error {
	var claims sanctionClaims
	parsed, err := jwt.ParseWithClaims(token, &claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method %v", t.Header["alg"])
		}
		return s.secret, nil
	}, jwt.WithTimeFunc(func() time.Time { return s.now() }))
	if err != nil {
		return fmt.Errorf("invalid token: %w", err)
	}
	if !parsed.Valid {
		return fmt.Errorf("invalid token")
	}
	if claims.Subject != userID {
		return fmt.Errorf("token does not belong to user %s", userID)
	}
	if claims.SanctionID != sanctionID {
		return fmt.Errorf("token does not match sanction %s", sanctionID)
	}
	if claims.Purpose != string(purpose) {
		return fmt.Errorf("token purpose %q does not allow %q", claims.Purpose, purpose)
	}
	return nil
}

// Verify interface compliance
var _ port.TokenService = (*JWTService)(nil)
