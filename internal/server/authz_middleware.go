package server

import (
	"net/http"
	"strings"

	"github.com/jacksonlee411/fleet-console/internal/routing"
	"github.com/jacksonlee411/fleet-console/pkg/authz"
	"github.com/rs/zerolog"
)

func loadAuthorizer(cfg Config) (*authz.Authorizer, error) {
	modelPath, policyPath, err := cfg.authzPaths()
	if err != nil {
		return nil, err
	}
	return authz.NewAuthorizer(modelPath, policyPath, cfg.AuthzMode)
}

type authorizer interface {
	Authorize(subject string, domain string, object string, action string) (authz.Verdict, error)
}

type verifier interface {
	Verify(raw string) (Principal, error)
}

// withAuthn verifies the bearer token of every api route and stores the principal.
// Ops routes stay public.
func withAuthn(classifier *routing.Classifier, v verifier, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		rc := classifier.Classify(r.URL.Path)
		if rc != routing.RouteClassAPI {
			next.ServeHTTP(w, r)
			return
		}

		raw, ok := bearerToken(r)
		if !ok {
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "missing bearer token")
			return
		}
		p, err := v.Verify(raw)
		if err != nil {
			zerolog.Ctx(r.Context()).Debug().Err(err).Msg("token rejected")
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "invalid token")
			return
		}
		if _, err := p.Capability(); err != nil {
			routing.WriteError(w, r, rc, http.StatusUnauthorized, "unauthorized", "token role is not usable")
			return
		}

		ctx := withPrincipal(r.Context(), p)
		logger := zerolog.Ctx(ctx).With().Int64("user_id", p.UserID).Str("role", p.Role).Logger()
		next.ServeHTTP(w, r.WithContext(logger.WithContext(ctx)))
	})
}

func withAuthz(classifier *routing.Classifier, a authorizer, next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		object, action, shouldCheck := authzRequirementForRoute(r.Method, r.URL.Path)
		if !shouldCheck {
			next.ServeHTTP(w, r)
			return
		}
		rc := classifier.Classify(r.URL.Path)

		role := authz.RoleAnonymous
		var resellerID *int64
		if p, ok := currentPrincipal(r.Context()); ok {
			role = p.Role
			resellerID = p.ResellerID
		}
		subject := authz.SubjectFromRole(role)
		domain := authz.DomainForReseller(resellerID)

		verdict, err := a.Authorize(subject, domain, object, action)
		if err != nil {
			zerolog.Ctx(r.Context()).Error().Err(err).Str("subject", subject).Str("domain", domain).Msg("authz error")
			routing.WriteError(w, r, rc, http.StatusInternalServerError, "authz_error", "authz error")
			return
		}
		if verdict.Denies() {
			routing.WriteError(w, r, rc, http.StatusForbidden, "forbidden", "forbidden")
			return
		}
		if !verdict.Allowed {
			zerolog.Ctx(r.Context()).Warn().
				Str("subject", subject).
				Str("domain", domain).
				Str("object", object).
				Str("action", action).
				Msg("authz shadow deny")
		}

		next.ServeHTTP(w, r)
	})
}

func authzRequirementForRoute(method string, path string) (object string, action string, ok bool) {
	switch path {
	case "/device/api/access":
		if method == http.MethodGet {
			return authz.ObjectDeviceAccess, authz.ActionRead, true
		}
		return "", "", false
	case "/device/api/verifications":
		if method == http.MethodPost {
			return authz.ObjectDeviceVerifications, authz.ActionWrite, true
		}
		return "", "", false
	default:
		return "", "", false
	}
}

func bearerToken(r *http.Request) (string, bool) {
	h := strings.TrimSpace(r.Header.Get("Authorization"))
	scheme, token, ok := strings.Cut(h, " ")
	if !ok || !strings.EqualFold(scheme, "Bearer") {
		return "", false
	}
	token = strings.TrimSpace(token)
	return token, token != ""
}
