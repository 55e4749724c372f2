package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"agrihub-backend/internal/pkg/constants"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const supabaseAudience = "authenticated"

// SupabaseClaims are the claims of a Supabase-issued access token.
type SupabaseClaims struct {
	Email        string                 `json:"email"`
	Role         string                 `json:"role"`
	AppMetadata  map[string]interface{} `json:"app_metadata"`
	UserMetadata map[string]interface{} `json:"user_metadata"`
	jwt.RegisteredClaims
}

// TokenVerifier checks HS256 bearer tokens signed with the project JWT secret.
type TokenVerifier struct {
	secret []byte
	leeway time.Duration
}

func NewTokenVerifier(secret string) (*TokenVerifier, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("token verifier requires a secret")
	}
	return &TokenVerifier{secret: []byte(secret), leeway: 30 * time.Second}, nil
}

// Verify validates the token and returns the session shape for its subject.
func (v *TokenVerifier) Verify(token string) (*SessionUserShape, error) {
	claims := &SupabaseClaims{}
	parsed, err := jwt.ParseWithClaims(token, claims, func(t *jwt.Token) (interface{}, error) {
		if _, ok := t.Method.(*jwt.SigningMethodHMAC); !ok {
			return nil, fmt.Errorf("unexpected signing method: %v", t.Header["alg"])
		}
		return v.secret, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Name}),
		jwt.WithAudience(supabaseAudience),
		jwt.WithExpirationRequired(),
		jwt.WithLeeway(v.leeway),
	)
	if err != nil || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if _, err := uuid.Parse(claims.Subject); err != nil {
		return nil, ErrInvalidToken
	}

	role := constants.Member
	if r, ok := claims.AppMetadata["role"].(string); ok && constants.IsValidRole(r) {
		role = r
	}
	fullName, _ := claims.UserMetadata["full_name"].(string)
	return &SessionUserShape{
		UserID:   claims.Subject,
		Fullname: fullName,
		Email:    claims.Email,
		Role:     role,
	}, nil
}
