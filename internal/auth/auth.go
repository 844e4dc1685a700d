package auth

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
)

const issuer = "foodbridge"

// Identity is the user payload carried by the session credential. The
// caller is assumed to be already authenticated by an external identity
// provider; the email is the only field used for authorization.
type Identity struct {
	Email    string `json:"email"`
	Name     string `json:"name,omitempty"`
	PhotoURL string `json:"photoURL,omitempty"`
}

// Claims represents the session JWT claims.
type Claims struct {
	Name     string `json:"name,omitempty"`
	PhotoURL string `json:"photo_url,omitempty"`
	jwt.RegisteredClaims
}

// Identity reconstructs the identity embedded in the claims.
func (c *Claims) Identity() Identity {
	return Identity{Email: c.Subject, Name: c.Name, PhotoURL: c.PhotoURL}
}

// Issuer signs and verifies session credentials with a process-wide
// HS256 secret. It keeps no server-side session state, so a credential
// stays valid until its natural expiry.
type Issuer struct {
	secret []byte
}

// NewIssuer creates an Issuer with the given signing secret.
func NewIssuer(secret string) (*Issuer, error) {
	secret = strings.TrimSpace(secret)
	if secret == "" {
		return nil, errors.New("auth: signing secret is required")
	}
	return &Issuer{secret: []byte(secret)}, nil
}

// Issue signs a session credential for the identity, valid for ttl.
func (i *Issuer) Issue(id Identity, ttl time.Duration) (string, error) {
	email := strings.TrimSpace(id.Email)
	if email == "" {
		return "", errors.New("auth: email is required")
	}
	if ttl <= 0 {
		return "", errors.New("auth: ttl must be greater than zero")
	}

	now := time.Now().UTC()
	claims := Claims{
		Name:     strings.TrimSpace(id.Name),
		PhotoURL: strings.TrimSpace(id.PhotoURL),
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    issuer,
			Subject:   email,
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
			ID:        uuid.NewString(),
		},
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	signed, err := token.SignedString(i.secret)
	if err != nil {
		return "", fmt.Errorf("sign token: %w", err)
	}
	return signed, nil
}

// ParseAndValidate verifies the credential signature and required claims.
func (i *Issuer) ParseAndValidate(token string) (*Claims, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, ErrInvalidToken
	}

	parsed, err := jwt.ParseWithClaims(token, &Claims{}, func(t *jwt.Token) (any, error) {
		if t.Method != jwt.SigningMethodHS256 {
			return nil, ErrInvalidToken
		}
		return i.secret, nil
	})
	if err != nil {
		return nil, ErrInvalidToken
	}
	claims, ok := parsed.Claims.(*Claims)
	if !ok || !parsed.Valid {
		return nil, ErrInvalidToken
	}
	if err := validateClaims(claims); err != nil {
		return nil, ErrInvalidToken
	}
	return claims, nil
}

func validateClaims(claims *Claims) error {
	if claims.Issuer != issuer {
		return fmt.Errorf("unexpected issuer: %s", claims.Issuer)
	}
	if strings.TrimSpace(claims.Subject) == "" {
		return errors.New("subject missing")
	}
	if claims.ExpiresAt == nil || claims.IssuedAt == nil {
		return errors.New("timestamps missing")
	}
	now := time.Now().UTC()
	if now.After(claims.ExpiresAt.Time) {
		return errors.New("token expired")
	}
	// Allow a small clock skew of 5 seconds when validating issued-at.
	if claims.IssuedAt.Time.After(now.Add(5 * time.Second)) {
		return errors.New("token issued in the future")
	}
	if claims.ExpiresAt.Time.Before(claims.IssuedAt.Time) {
		return errors.New("token expiry precedes issued-at")
	}
	return nil
}
