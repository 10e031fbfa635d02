package server

import (
	"context"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/types"
	"github.com/jacksonlee411/fleet-console/pkg/authz"
)

var (
	errTokenInvalid = errors.New("server: invalid token")
	errRoleInvalid  = errors.New("server: unsupported role")
)

// Principal is the authenticated caller, taken from a verified bearer token.
type Principal struct {
	UserID       int64
	Role         string
	TechnicianID int64
	ResellerID   *int64
}

// Capability maps the caller's role onto what the access engine is allowed to evaluate.
func (p Principal) Capability() (types.Capability, error) {
	if p.UserID <= 0 {
		return nil, fmt.Errorf("%w: user id must be positive", errRoleInvalid)
	}
	switch p.Role {
	case authz.RoleTechnician:
		if p.TechnicianID <= 0 {
			return nil, fmt.Errorf("%w: technician token without technician_id", errRoleInvalid)
		}
		return types.TechnicianCapability{TechnicianID: p.TechnicianID}, nil
	case authz.RoleResellerAdmin:
		if p.ResellerID == nil || *p.ResellerID <= 0 {
			return nil, fmt.Errorf("%w: reseller-admin token without a positive reseller_id", errRoleInvalid)
		}
		return types.ResellerAdminCapability{UserID: p.UserID, ResellerID: *p.ResellerID}, nil
	case authz.RoleSuperadmin:
		return types.SuperAdminCapability{UserID: p.UserID}, nil
	default:
		return nil, fmt.Errorf("%w: %q", errRoleInvalid, p.Role)
	}
}

type accessClaims struct {
	Role         string `json:"role"`
	TechnicianID int64  `json:"technician_id,omitempty"`
	ResellerID   *int64 `json:"reseller_id,omitempty"`
	jwt.RegisteredClaims
}

type tokenVerifier struct {
	secret []byte
}

func (v tokenVerifier) Verify(raw string) (Principal, error) {
	var claims accessClaims
	token, err := jwt.ParseWithClaims(raw, &claims, func(*jwt.Token) (any, error) {
		return v.secret, nil
	}, jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}), jwt.WithExpirationRequired())
	if err != nil {
		return Principal{}, fmt.Errorf("%w: %w", errTokenInvalid, err)
	}
	if !token.Valid {
		return Principal{}, errTokenInvalid
	}

	userID, err := strconv.ParseInt(claims.Subject, 10, 64)
	if err != nil || userID <= 0 {
		return Principal{}, fmt.Errorf("%w: sub must be a positive user id", errTokenInvalid)
	}
	return Principal{
		UserID:       userID,
		Role:         claims.Role,
		TechnicianID: claims.TechnicianID,
		ResellerID:   claims.ResellerID,
	}, nil
}

// IssueToken signs an HS256 token for p. It backs the operator CLI and tests.
func IssueToken(secret []byte, p Principal, ttl time.Duration, now time.Time) (string, error) {
	if len(secret) == 0 {
		return "", errors.New("server: token secret is empty")
	}
	claims := accessClaims{
		Role:         p.Role,
		TechnicianID: p.TechnicianID,
		ResellerID:   p.ResellerID,
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   strconv.FormatInt(p.UserID, 10),
			ID:        uuid.NewString(),
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(secret)
}

type principalContextKey struct{}

func withPrincipal(ctx context.Context, p Principal) context.Context {
	return context.WithValue(ctx, principalContextKey{}, p)
}

func currentPrincipal(ctx context.Context) (Principal, bool) {
	v := ctx.Value(principalContextKey{})
	if v == nil {
		return Principal{}, false
	}
	p, ok := v.(Principal)
	return p, ok
}

// currentCapability feeds the access controller.
func currentCapability(ctx context.Context) (types.Capability, bool) {
	p, ok := currentPrincipal(ctx)
	if !ok {
		return nil, false
	}
	c, err := p.Capability()
	if err != nil {
		return nil, false
	}
	return c, true
}
