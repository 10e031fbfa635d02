package main

import (
	"errors"
	"strings"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
)

func TestSmokeFixture(t *testing.T) {
	f := newSmokeFixture(990_000_000)
	if got := f.imei(f.devices[0]); got != "000000990000100" {
		t.Fatalf("imei=%q", got)
	}
	if got := f.imei(f.devices[2]); len(got) != 15 {
		t.Fatalf("imei=%q", got)
	}

	setup := f.setupStatements()
	if len(setup) != 5 {
		t.Fatalf("setup=%d", len(setup))
	}
	if !strings.Contains(setup[1], "'000000990000101'") {
		t.Fatalf("devices stmt=%q", setup[1])
	}
	if !strings.Contains(setup[4], "'deny'") {
		t.Fatalf("restriction stmt=%q", setup[4])
	}

	for _, stmt := range f.cleanupStatements() {
		if !strings.HasPrefix(stmt, "DELETE FROM access.") {
			t.Fatalf("stmt=%q", stmt)
		}
		if !strings.Contains(stmt, "BETWEEN 990000000 AND 990001000") {
			t.Fatalf("stmt=%q", stmt)
		}
	}
}

func TestPGErrorMessage(t *testing.T) {
	if _, ok := pgErrorMessage(errors.New("x")); ok {
		t.Fatal("expected ok=false")
	}

	msg, ok := pgErrorMessage(&pgconn.PgError{Message: "relation missing"})
	if !ok || msg != "relation missing" {
		t.Fatalf("ok=%v msg=%q", ok, msg)
	}
}
