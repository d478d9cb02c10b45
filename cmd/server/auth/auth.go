package auth

import (
	"errors"
	"fmt"
	"net/http"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

const issuer = "qualitymatic"

// DefaultTTL is how long a minted token stays valid unless told otherwise.
const DefaultTTL = 24 * time.Hour

// Claims struct to be encoded to a JWT
type Claims struct {
	Username string `json:"username"`
	jwt.RegisteredClaims
}

// Authenticator signs and verifies HS256 tokens with one shared secret.
type Authenticator struct {
	key []byte
	now func() time.Time
}

// New returns an Authenticator for secret. The secret must come from the environment.
func New(secret string) *Authenticator {
	return &Authenticator{key: []byte(secret), now: time.Now}
}

// GenerateJWT creates a new JWT for username valid for ttl.
func (a *Authenticator) GenerateJWT(username string, ttl time.Duration) (string, error) {
	if username == "" {
		return "", errors.New("username is required")
	}
	if ttl <= 0 {
		ttl = DefaultTTL
	}
	now := a.now()
	claims := &Claims{
		Username: username,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   username,
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			IssuedAt:  jwt.NewNumericDate(now),
			Issuer:    issuer,
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	tokenString, err := token.SignedString(a.key)
	if err != nil {
		return "", fmt.Errorf("failed to sign token: %w", err)
	}
	return tokenString, nil
}

// Parse validates tokenString and returns its claims.
func (a *Authenticator) Parse(tokenString string) (*Claims, error) {
	claims := &Claims{}
	token, err := jwt.ParseWithClaims(tokenString, claims, func(token *jwt.Token) (interface{}, error) {
		return a.key, nil
	},
		jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
		jwt.WithIssuer(issuer),
		jwt.WithTimeFunc(a.now),
	)
	if err != nil {
		return nil, err
	}
	if !token.Valid {
		return nil, errors.New("invalid token")
	}
	return claims, nil
}

// Middleware protects routes by validating the bearer token.
func (a *Authenticator) Middleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		authHeader := r.Header.Get("Authorization")
		if authHeader == "" {
			http.Error(w, "Authorization header required", http.StatusUnauthorized)
			return
		}

		parts := strings.Split(authHeader, " ")
		if len(parts) != 2 || strings.ToLower(parts[0]) != "bearer" {
			http.Error(w, "Authorization header format must be Bearer {token}", http.StatusUnauthorized)
			return
		}

		if _, err := a.Parse(parts[1]); err != nil {
			switch {
			case errors.Is(err, jwt.ErrTokenSignatureInvalid):
				http.Error(w, "Invalid token signature", http.StatusUnauthorized)
			case errors.Is(err, jwt.ErrTokenExpired):
				http.Error(w, "Token expired", http.StatusUnauthorized)
			default:
				http.Error(w, fmt.Sprintf("Could not parse token: %v", err), http.StatusUnauthorized)
			}
			return
		}

		next.ServeHTTP(w, r)
	})
}
