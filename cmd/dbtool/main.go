package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"os"
	"time"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/ports"
	"github.com/jacksonlee411/fleet-console/modules/access/domain/types"
	"github.com/jacksonlee411/fleet-console/modules/access/infrastructure/persistence"
	"github.com/jacksonlee411/fleet-console/modules/access/services"
)

func main() {
	if len(os.Args) < 2 {
		fatalf("usage: dbtool <access-smoke> [args]")
	}

	switch os.Args[1] {
	case "access-smoke":
		accessSmoke(os.Args[2:])
	default:
		fatalf("unknown subcommand: %s", os.Args[1])
	}
}

// smokeFixture is a throwaway reseller with two technicians and three devices, placed in
// an id range real data does not use.
type smokeFixture struct {
	base        int64
	resellerID  int64
	techOpen    int64
	techBlocked int64
	tagID       int64
	devices     [3]int64
}

func newSmokeFixture(base int64) smokeFixture {
	return smokeFixture{
		base:        base,
		resellerID:  base + 9,
		techOpen:    base + 1,
		techBlocked: base + 2,
		tagID:       base + 30,
		devices:     [3]int64{base + 100, base + 101, base + 102},
	}
}

func (f smokeFixture) imei(deviceID int64) string {
	return fmt.Sprintf("%015d", deviceID)
}

func (f smokeFixture) setupStatements() []string {
	return []string{
		fmt.Sprintf(`INSERT INTO access.technicians (id, reseller_id) VALUES (%d, %d), (%d, %d);`, f.techOpen, f.resellerID, f.techBlocked, f.resellerID),
		fmt.Sprintf(`INSERT INTO access.devices (id, imei) VALUES (%d, '%s'), (%d, '%s'), (%d, '%s');`,
			f.devices[0], f.imei(f.devices[0]), f.devices[1], f.imei(f.devices[1]), f.devices[2], f.imei(f.devices[2])),
		fmt.Sprintf(`INSERT INTO access.tags (id, name, scope) VALUES (%d, 'smoke', 'reseller');`, f.tagID),
		fmt.Sprintf(`INSERT INTO access.tag_items (tag_id, entity_type, entity_id) VALUES (%d, 'device', %d), (%d, 'device', %d);`, f.tagID, f.devices[1], f.tagID, f.devices[2]),
		fmt.Sprintf(`INSERT INTO access.restrictions (id, technician_id, tag_id, access_type, is_permanent) VALUES (%d, %d, %d, 'deny', true);`, f.base+1, f.techBlocked, f.tagID),
	}
}

func (f smokeFixture) cleanupStatements() []string {
	lo, hi := f.base, f.base+1000
	return []string{
		fmt.Sprintf(`DELETE FROM access.verification_logs WHERE device_id BETWEEN %d AND %d;`, lo, hi),
		fmt.Sprintf(`DELETE FROM access.audit_events WHERE device_id BETWEEN %d AND %d;`, lo, hi),
		fmt.Sprintf(`DELETE FROM access.restrictions WHERE id BETWEEN %d AND %d;`, lo, hi),
		fmt.Sprintf(`DELETE FROM access.tags WHERE id BETWEEN %d AND %d;`, lo, hi),
		fmt.Sprintf(`DELETE FROM access.devices WHERE id BETWEEN %d AND %d;`, lo, hi),
		fmt.Sprintf(`DELETE FROM access.technicians WHERE id BETWEEN %d AND %d;`, lo, hi),
	}
}

func accessSmoke(args []string) {
	fs := flag.NewFlagSet("access-smoke", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	var url string
	var base int64
	fs.StringVar(&url, "url", "", "postgres connection string")
	fs.Int64Var(&base, "base-id", 990_000_000, "first id of the fixture range")
	if err := fs.Parse(args); err != nil {
		fatal(err)
	}
	if url == "" {
		fatalf("missing --url")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer cancel()

	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		fatal(err)
	}
	defer pool.Close()

	f := newSmokeFixture(base)
	exec := func(stmts []string) {
		for _, stmt := range stmts {
			if _, err := pool.Exec(ctx, stmt); err != nil {
				if msg, ok := pgErrorMessage(err); ok {
					fatalf("%s: %s", stmt, msg)
				}
				fatal(err)
			}
		}
	}
	exec(f.cleanupStatements())
	defer func() {
		for _, stmt := range f.cleanupStatements() {
			_, _ = pool.Exec(context.Background(), stmt)
		}
	}()
	exec(f.setupStatements())

	pg := persistence.NewAccessPGStore(pool)
	svc := services.NewAccessService(pg, pg, pg, persistence.NewVerificationPGStore(pool), services.AccessServiceOptions{})

	expect := func(label string, d types.Decision, err error, want bool) {
		if err != nil {
			fatalf("[access-smoke] %s: %v", label, err)
		}
		if d.HasAccess != want {
			fatalf("[access-smoke] %s: expected has_access=%v, got %v (%s)", label, want, d.HasAccess, d.Reason)
		}
	}

	d, err := svc.CheckAccess(ctx, f.techOpen, f.imei(f.devices[1]))
	expect("unrestricted technician", d, err, true)
	d, err = svc.CheckAccess(ctx, f.techBlocked, f.imei(f.devices[0]))
	expect("tag deny outside tag", d, err, true)
	d, err = svc.CheckAccess(ctx, f.techBlocked, f.imei(f.devices[2]))
	expect("tag deny inside tag", d, err, false)

	reseller := f.resellerID
	d, err = svc.CheckAdminAccess(ctx, 1, &reseller, f.imei(f.devices[1]))
	expect("reseller with an unrestricted technician", d, err, true)

	if _, err := svc.CheckAccess(ctx, f.techOpen, fmt.Sprintf("%015d", base+999)); !errors.Is(err, ports.ErrDeviceNotFound) {
		fatalf("[access-smoke] expected device_not_found, got %v", err)
	}

	capability := types.TechnicianCapability{TechnicianID: f.techOpen}
	payload := types.VerificationPayload{Status: types.VerificationPassed, Notes: "smoke"}
	first, err := svc.VerifyDevice(ctx, capability, f.imei(f.devices[0]), payload)
	if err != nil {
		fatal(err)
	}
	second, err := svc.VerifyDevice(ctx, capability, f.imei(f.devices[0]), payload)
	if err != nil {
		fatal(err)
	}
	if first.VerificationID == 0 || first.VerificationID != second.VerificationID {
		fatalf("[access-smoke] expected deduplicated verification, got %d and %d", first.VerificationID, second.VerificationID)
	}

	fmt.Println("[access-smoke] OK")
}

func pgErrorMessage(err error) (string, bool) {
	var pgErr *pgconn.PgError
	if !errors.As(err, &pgErr) {
		return "", false
	}
	return pgErr.Message, true
}

func fatal(err error) {
	if err == nil {
		os.Exit(1)
	}
	fatalf("%v", err)
}

func fatalf(format string, args ...any) {
	_, _ = fmt.Fprintf(os.Stderr, format+"\n", args...)
	os.Exit(1)
}
