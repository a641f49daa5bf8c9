// Package caller turns a bearer token issued by the provincial identity
// provider into the request-scoped caller that services authorize against.
package caller

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"

	id "benefits/pkg/domain"
	dErrors "benefits/pkg/domain-errors"
	"benefits/pkg/requestcontext"
)

const (
	ScopeProvince = "province"
	ScopeTenant   = "tenant"
)

// Claims is the token body. Tenant-scoped tokens must carry tenant_id.
type Claims struct {
	Scope    string `json:"scope"`
	TenantID int64  `json:"tenant_id,omitempty"`
	jwt.RegisteredClaims
}

// Verifier validates HS256 caller tokens.
type Verifier struct {
	key    []byte
	issuer string
}

func NewVerifier(signingKey, issuer string) *Verifier {
	return &Verifier{key: []byte(signingKey), issuer: issuer}
}

// Parse validates token and returns the caller it describes.
func (v *Verifier) Parse(token string) (requestcontext.Caller, error) {
	claims := &Claims{}
	_, err := jwt.ParseWithClaims(token, claims, func(*jwt.Token) (any, error) {
		return v.key, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithIssuer(v.issuer), jwt.WithExpirationRequired())
	if err != nil {
		if errors.Is(err, jwt.ErrTokenExpired) {
			return requestcontext.Caller{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "caller token expired")
		}
		return requestcontext.Caller{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid caller token")
	}

	userID, err := id.ParseUserID(claims.Subject)
	if err != nil {
		return requestcontext.Caller{}, dErrors.Wrap(err, dErrors.CodeUnauthorized, "invalid token subject")
	}

	switch claims.Scope {
	case ScopeProvince:
		return requestcontext.ProvinceCaller(userID), nil
	case ScopeTenant:
		if claims.TenantID <= 0 {
			return requestcontext.Caller{}, dErrors.New(dErrors.CodeUnauthorized, "tenant-scoped token missing tenant_id")
		}
		return requestcontext.TenantCaller(userID, id.TenantID(claims.TenantID)), nil
	default:
		return requestcontext.Caller{}, dErrors.Newf(dErrors.CodeUnauthorized, "unknown token scope %q", claims.Scope)
	}
}

// Issue signs a token for c. Used by tests and local tooling; production tokens
// come from the identity provider.
func (v *Verifier) Issue(c requestcontext.Caller, ttl time.Duration, now time.Time) (string, error) {
	claims := Claims{
		Scope: ScopeTenant,
		RegisteredClaims: jwt.RegisteredClaims{
			Issuer:    v.issuer,
			Subject:   uuid.UUID(c.UserID).String(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	if c.ProvinceWide {
		claims.Scope = ScopeProvince
	} else {
		claims.TenantID = int64(c.TenantID)
	}
	signed, err := jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(v.key)
	if err != nil {
		return "", fmt.Errorf("sign caller token: %w", err)
	}
	return signed, nil
}

// WithToken parses token and stores the caller in ctx.
func (v *Verifier) WithToken(ctx context.Context, token string) (context.Context, error) {
	c, err := v.Parse(token)
	if err != nil {
		return ctx, err
	}
	return requestcontext.WithCaller(ctx, c), nil
}
