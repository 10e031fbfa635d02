package authz

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/casbin/casbin/v2"
	fileadapter "github.com/casbin/casbin/v2/persist/file-adapter"
)

type Mode string

const (
	ModeEnforce  Mode = "enforce"
	ModeShadow   Mode = "shadow"
	ModeDisabled Mode = "disabled"
)

// ParseMode reads an AUTHZ_MODE value. Disabling enforcement needs an explicit opt-in.
func ParseMode(raw string, allowDisabled bool) (Mode, error) {
	raw = strings.TrimSpace(strings.ToLower(raw))
	if raw == "" {
		return ModeEnforce, nil
	}
	switch Mode(raw) {
	case ModeEnforce, ModeShadow:
		return Mode(raw), nil
	case ModeDisabled:
		if !allowDisabled {
			return "", errors.New("authz: AUTHZ_MODE=disabled requires AUTHZ_UNSAFE_ALLOW_DISABLED=1")
		}
		return ModeDisabled, nil
	default:
		return "", fmt.Errorf("authz: invalid AUTHZ_MODE %q (expected enforce|shadow|disabled)", raw)
	}
}

func ModeFromEnv() (Mode, error) {
	return ParseMode(os.Getenv("AUTHZ_MODE"), os.Getenv("AUTHZ_UNSAFE_ALLOW_DISABLED") == "1")
}

// Verdict is the outcome of one check. Allowed is only binding when Enforced is set.
type Verdict struct {
	Allowed  bool
	Enforced bool
}

// Denies reports whether the request must be rejected.
func (v Verdict) Denies() bool { return v.Enforced && !v.Allowed }

// Authorizer wraps a casbin enforcer. In shadow mode verdicts are computed and reported
// but never enforced.
type Authorizer struct {
	enforcer *casbin.Enforcer
	mode     Mode
}

func NewAuthorizer(modelPath string, policyPath string, mode Mode) (*Authorizer, error) {
	enforcer, err := casbin.NewEnforcer(modelPath)
	if err != nil {
		return nil, err
	}
	enforcer.SetAdapter(fileadapter.NewAdapter(policyPath))
	if err := enforcer.LoadPolicy(); err != nil {
		return nil, fmt.Errorf("authz: load policy %s: %w", policyPath, err)
	}
	return &Authorizer{enforcer: enforcer, mode: mode}, nil
}

func (a *Authorizer) Mode() Mode { return a.mode }

func SubjectFromRole(role string) string {
	role = strings.TrimSpace(strings.ToLower(role))
	if role == "" {
		role = RoleAnonymous
	}
	return "role:" + role
}

// DomainForReseller scopes a request to the caller's reseller. Callers without one
// act in the global domain.
func DomainForReseller(resellerID *int64) string {
	if resellerID == nil {
		return DomainGlobal
	}
	return "reseller:" + strconv.FormatInt(*resellerID, 10)
}

func (a *Authorizer) Authorize(subject string, domain string, object string, action string) (Verdict, error) {
	switch a.mode {
	case ModeDisabled:
		return Verdict{Allowed: true}, nil
	case ModeShadow, ModeEnforce:
		enforced := a.mode == ModeEnforce
		ok, err := a.enforcer.Enforce(subject, domain, object, action)
		if err != nil {
			return Verdict{Enforced: enforced}, err
		}
		return Verdict{Allowed: ok, Enforced: enforced}, nil
	default:
		return Verdict{}, errors.New("authz: unknown mode")
	}
}
