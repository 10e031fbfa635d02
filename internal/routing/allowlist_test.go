package routing

import (
	"os"
	"path/filepath"
	"testing"
)

const testAllowlist = `
version: 1
entrypoints:
  device:
    routes:
      - path: /health
        methods: [GET]
        route_class: ops
      - path: /device/api/access
        methods: [GET]
        route_class: api
      - path: /device/api/verifications
        methods: [POST]
        route_class: api
`

func TestParseAllowlistYAML(t *testing.T) {
	t.Parallel()

	a, err := ParseAllowlistYAML([]byte(testAllowlist))
	if err != nil {
		t.Fatal(err)
	}
	ep, ok := a.Entrypoints["device"]
	if !ok {
		t.Fatal("expected device entrypoint")
	}
	if len(ep.Routes) != 3 {
		t.Fatalf("routes=%d", len(ep.Routes))
	}
}

func TestParseAllowlistYAML_Errors(t *testing.T) {
	t.Parallel()

	cases := map[string]string{
		"yaml":          "\xff",
		"version":       "version: 2\nentrypoints: {}",
		"entrypoints":   "version: 1",
		"relative path": "version: 1\nentrypoints:\n  device:\n    routes:\n      - path: health\n        methods: [GET]\n        route_class: ops\n",
		"route class":   "version: 1\nentrypoints:\n  device:\n    routes:\n      - path: /x\n        methods: [GET]\n        route_class: ui\n",
		"no methods":    "version: 1\nentrypoints:\n  device:\n    routes:\n      - path: /x\n        route_class: api\n",
		"bad method":    "version: 1\nentrypoints:\n  device:\n    routes:\n      - path: /x\n        methods: [TRACE]\n        route_class: api\n",
	}
	for name, doc := range cases {
		if _, err := ParseAllowlistYAML([]byte(doc)); err == nil {
			t.Fatalf("%s: expected error", name)
		}
	}
}

func TestLoadAllowlist(t *testing.T) {
	t.Parallel()

	if _, err := LoadAllowlist(filepath.Join(t.TempDir(), "missing.yaml")); err == nil {
		t.Fatal("expected error")
	}

	path := filepath.Join(t.TempDir(), "allowlist.yaml")
	if err := os.WriteFile(path, []byte(testAllowlist), 0o644); err != nil {
		t.Fatal(err)
	}
	if _, err := LoadAllowlist(path); err != nil {
		t.Fatal(err)
	}
}

func TestRepoAllowlistParses(t *testing.T) {
	t.Parallel()

	a, err := LoadAllowlist("../../config/routing/allowlist.yaml")
	if err != nil {
		t.Fatal(err)
	}
	if _, err := NewClassifier(a, "device"); err != nil {
		t.Fatal(err)
	}
}
