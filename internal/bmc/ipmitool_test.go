package bmc

import (
	"context"
	"os"
	"path/filepath"
	"runtime"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// installFakeIPMITool writes a shell script named ipmitool onto PATH that
// prints canned output (or simulates a failure), so Client.run can be
// exercised without a real BMC.
func installFakeIPMITool(t *testing.T, script string) {
	t.Helper()
	if runtime.GOOS == "windows" {
		t.Skip("fake ipmitool script requires a POSIX shell")
	}
	dir := t.TempDir()
	path := filepath.Join(dir, "ipmitool")
	require.NoError(t, os.WriteFile(path, []byte(script), 0o755))

	oldPath := os.Getenv("PATH")
	require.NoError(t, os.Setenv("PATH", dir+string(os.PathListSeparator)+oldPath))
	t.Cleanup(func() { _ = os.Setenv("PATH", oldPath) })
}

func TestPingTestSucceeds(t *testing.T) {
	installFakeIPMITool(t, "#!/bin/sh\necho 'Device ID : 32'\nexit 0\n")
	c := NewClient(Credentials{Host: "10.0.0.5", User: "admin", Password: "secret"}, 2*time.Second)

	err := c.PingTest(context.Background())
	require.NoError(t, err)
}

func TestAuthFailureIsDistinguished(t *testing.T) {
	installFakeIPMITool(t, "#!/bin/sh\necho 'Error: Unauthorized name' >&2\nexit 1\n")
	c := NewClient(Credentials{Host: "10.0.0.5", User: "admin", Password: "wrong"}, 2*time.Second)

	err := c.PingTest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "authentication failure")
}

func TestPowerVerifyMismatchFails(t *testing.T) {
	installFakeIPMITool(t, "#!/bin/sh\necho 'Chassis Power is off'\nexit 0\n")
	c := NewClient(Credentials{Host: "10.0.0.5", User: "admin", Password: "secret"}, 2*time.Second)

	err := c.VerifyPower(context.Background(), PowerOn)
	require.Error(t, err)
}

func TestPowerVerifyMatch(t *testing.T) {
	installFakeIPMITool(t, "#!/bin/sh\necho 'Chassis Power is on'\nexit 0\n")
	c := NewClient(Credentials{Host: "10.0.0.5", User: "admin", Password: "secret"}, 2*time.Second)

	err := c.VerifyPower(context.Background(), PowerOn)
	require.NoError(t, err)
}

func TestDetectVendorSupermicro(t *testing.T) {
	installFakeIPMITool(t, "#!/bin/sh\necho 'Firmware Revision : 1.0 Supermicro'\nexit 0\n")
	c := NewClient(Credentials{Host: "10.0.0.5", User: "admin", Password: "secret"}, 2*time.Second)

	v, err := c.DetectVendor(context.Background())
	require.NoError(t, err)
	assert.Equal(t, VendorSupermicro, v)
}

func TestTimeoutProducesDistinctError(t *testing.T) {
	installFakeIPMITool(t, "#!/bin/sh\nsleep 2\necho done\n")
	c := NewClient(Credentials{Host: "10.0.0.5", User: "admin", Password: "secret"}, 50*time.Millisecond)

	err := c.PingTest(context.Background())
	require.Error(t, err)
	assert.Contains(t, err.Error(), "timeout")
}
