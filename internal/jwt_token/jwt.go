package jwttoken

import (
	"errors"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	dErrors "rollcall/pkg/domain-errors"
	"rollcall/pkg/platform/middleware/auth"
)

// RoleAuthority is the only role allowed to unlock identities and review anomalies.
const RoleAuthority = "authority"

// Claims represents the JWT claims carried by authority tokens.
type Claims struct {
	AuthorityID string `json:"authority_id"`
	Role        string `json:"role"`
	jwt.RegisteredClaims
}

// JWTService handles authority token creation and validation.
type JWTService struct {
	signingKey []byte
	issuer     string
	audience   string
}

func NewJWTService(signingKey string, issuer string, audience string) *JWTService {
	return &JWTService{
		signingKey: []byte(signingKey),
		issuer:     issuer,
		audience:   audience,
	}
}

// GenerateAuthorityToken issues a short-lived token for an operator.
func (s *JWTService) GenerateAuthorityToken(authorityID string, expiresIn time.Duration) (string, error) {
	if authorityID == "" {
		return "", dErrors.New(dErrors.CodeInvalidInput, "authority id is required")
	}
	now := time.Now()
	token := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{
		AuthorityID: authorityID,
		Role:        RoleAuthority,
		RegisteredClaims: jwt.RegisteredClaims{
			ExpiresAt: jwt.NewNumericDate(now.Add(expiresIn)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    s.issuer,
			Audience:  []string{s.audience},
			ID:        uuid.NewString(),
		},
	})
	return token.SignedString(s.signingKey)
}

// ValidateToken satisfies auth.TokenValidator.
func (s *JWTService) ValidateToken(tokenString string) (*auth.Claims, error) {
	parsed, err := jwt.ParseWithClaims(tokenString, &Claims{}, func(token *jwt.Token) (any, error) {
		if _, ok := token.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, jwt.ErrTokenUnverifiable
		}
		return s.signingKey, nil
	},
		jwt.WithIssuer(s.issuer),
		jwt.WithAudience(s.audience),
	)
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return nil, dErrors.New(dErrors.CodeUnauthorized, "token has expired")
		}
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token")
	}

	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, dErrors.New(dErrors.CodeUnauthorized, "invalid token claims")
	}
	if claims.Role != RoleAuthority {
		return nil, dErrors.New(dErrors.CodeForbidden, "token is not an authority token")
	}

	return &auth.Claims{AuthorityID: claims.AuthorityID, Role: claims.Role}, nil
}
