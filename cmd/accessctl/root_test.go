package main

import (
	"bytes"
	"encoding/json"
	"strings"
	"testing"

	"github.com/jacksonlee411/fleet-console/modules/access/domain/types"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	var out bytes.Buffer
	cmd := newRootCmd(&out)
	cmd.SetErr(&bytes.Buffer{})
	cmd.SetArgs(append([]string{"--seed", "testdata/seed.yaml"}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func decision(t *testing.T, out string) types.Decision {
	t.Helper()
	var d types.Decision
	require.NoError(t, json.Unmarshal([]byte(out), &d))
	return d
}

func TestCheck(t *testing.T) {
	out, err := run(t, "check", "--technician", "7", "--imei", "490154203237518")
	require.NoError(t, err)
	assert.True(t, decision(t, out).HasAccess)

	out, err = run(t, "check", "--technician", "7", "--imei", "356938035643809")
	require.NoError(t, err)
	d := decision(t, out)
	assert.False(t, d.HasAccess)
	assert.Equal(t, int64(101), d.DeviceID)
}

func TestCheck_UnknownDevice(t *testing.T) {
	_, err := run(t, "check", "--technician", "7", "--imei", "111111111111111")
	require.Error(t, err)
}

func TestCheck_MissingFlags(t *testing.T) {
	_, err := run(t, "check", "--technician", "7")
	require.Error(t, err)
}

func TestCheckAdmin(t *testing.T) {
	out, err := run(t, "check-admin", "--user", "5", "--reseller", "9", "--imei", "012345678912345")
	require.NoError(t, err)
	assert.False(t, decision(t, out).HasAccess)

	out, err = run(t, "check-admin", "--user", "5", "--reseller", "9", "--imei", "490154203237518")
	require.NoError(t, err)
	assert.True(t, decision(t, out).HasAccess)

	out, err = run(t, "check-admin", "--user", "1", "--imei", "012345678912345")
	require.NoError(t, err)
	d := decision(t, out)
	assert.True(t, d.HasAccess)
	assert.Equal(t, types.BasisSuperAdmin, d.Basis)
}

func TestVerify(t *testing.T) {
	out, err := run(t, "verify", "--technician", "8", "--imei", "490154203237518", "--notes", "ok")
	require.NoError(t, err)
	var res verifyOutput
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.NotZero(t, res.VerificationID)
	assert.True(t, res.Decision.HasAccess)

	out, err = run(t, "verify", "--technician", "7", "--imei", "356938035643809")
	require.NoError(t, err)
	res = verifyOutput{}
	require.NoError(t, json.Unmarshal([]byte(out), &res))
	assert.Zero(t, res.VerificationID)
	assert.False(t, res.Decision.HasAccess)
}

func TestVerify_FlagRules(t *testing.T) {
	_, err := run(t, "verify", "--imei", "490154203237518")
	require.Error(t, err)

	_, err = run(t, "verify", "--technician", "7", "--admin-user", "1", "--imei", "490154203237518")
	require.Error(t, err)

	_, err = run(t, "verify", "--technician", "7", "--reseller", "9", "--imei", "490154203237518")
	require.Error(t, err)

	_, err = run(t, "verify", "--technician", "7", "--status", "maybe", "--imei", "490154203237518")
	require.Error(t, err)
}

func TestToken(t *testing.T) {
	out, err := run(t, "token", "--user", "5", "--role", "reseller-admin", "--reseller", "9", "--secret", "s3cret")
	require.NoError(t, err)
	assert.Len(t, strings.Split(strings.TrimSpace(out), "."), 3)

	_, err = run(t, "token", "--user", "5", "--role", "reseller-admin", "--secret", "s3cret")
	require.Error(t, err)
}

func TestUnknownStore(t *testing.T) {
	_, err := run(t, "--store", "redis", "check", "--technician", "7", "--imei", "490154203237518")
	require.Error(t, err)
}
