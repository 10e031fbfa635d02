package routing

import (
	"errors"
	"slices"
	"strings"
)

type RouteClass string

const (
	RouteClassAPI     RouteClass = "api"
	RouteClassOps     RouteClass = "ops"
	RouteClassUnknown RouteClass = "unknown"
)

type Classifier struct {
	entrypoint string
	routes     map[string]Route
}

func NewClassifier(a Allowlist, entrypoint string) (*Classifier, error) {
	ep, ok := a.Entrypoints[entrypoint]
	if !ok {
		return nil, errors.New("allowlist: missing entrypoint")
	}
	if len(ep.Routes) == 0 {
		return nil, errors.New("allowlist: entrypoint routes empty")
	}

	routes := make(map[string]Route, len(ep.Routes))
	for _, r := range ep.Routes {
		if _, dup := routes[r.Path]; dup {
			return nil, errors.New("allowlist: duplicate route " + r.Path)
		}
		routes[r.Path] = r
	}
	return &Classifier{entrypoint: entrypoint, routes: routes}, nil
}

func (c *Classifier) Entrypoint() string { return c.entrypoint }

// Classify maps a request path to its route class. Undeclared paths fall back to the
// /{module}/api/* convention.
func (c *Classifier) Classify(path string) RouteClass {
	if r, ok := c.routes[path]; ok {
		return RouteClass(r.RouteClass)
	}
	switch {
	case isModuleAPI(path):
		return RouteClassAPI
	case path == "/health" || path == "/metrics":
		return RouteClassOps
	default:
		return RouteClassUnknown
	}
}

// Allowed reports whether method on path is declared in the allowlist.
func (c *Classifier) Allowed(method string, path string) bool {
	r, ok := c.routes[path]
	if !ok {
		return false
	}
	return slices.Contains(r.Methods, method)
}

func hasPrefixSegment(path, prefix string) bool {
	if path == prefix {
		return true
	}
	return strings.HasPrefix(path, prefix+"/")
}

func isModuleAPI(path string) bool {
	// /{module}/api/*, module is a single segment.
	rest, ok := strings.CutPrefix(path, "/")
	if !ok {
		return false
	}
	module, after, ok := strings.Cut(rest, "/")
	if !ok || module == "" {
		return false
	}
	return hasPrefixSegment("/"+after, "/api")
}
