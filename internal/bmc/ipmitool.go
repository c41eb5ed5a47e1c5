// Package bmc is the IPMI/BMC adapter (C4). It wraps ipmitool with
// exec.CommandContext, passing credentials on the command line (-U/-P) and
// also exporting them as IPMITOOL_* environment variables, the way
// secondstar invokes it for SOL sessions; the password is therefore visible
// in a process listing. It also offers a bmclib-backed Redfish client.
package bmc

import (
	"bytes"
	"context"
	"fmt"
	"os/exec"
	"strings"
	"time"

	"github.com/tinkerbell/hwprovisiond/internal/provisionerrors"
)

// Credentials are the BMC's IPMI-over-LAN login.
type Credentials struct {
	Host     string
	User     string
	Password string
}

// PowerState is the closed set of power operations named in spec.md §4.4/§6.
type PowerState string

const (
	PowerOn     PowerState = "on"
	PowerOff    PowerState = "off"
	PowerCycle  PowerState = "cycle"
	PowerReset  PowerState = "reset"
	PowerStatus PowerState = "status"
)

// Client wraps one BMC's ipmitool invocations.
type Client struct {
	creds   Credentials
	timeout time.Duration
}

// NewClient builds an ipmitool-backed client for one BMC.
func NewClient(creds Credentials, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{creds: creds, timeout: timeout}
}

// run invokes `ipmitool -I lanplus -H <ip> -U <user> -P <pass> <subcommand...>`,
// matching spec.md §6's literal CLI contract. Credentials are also exported
// as IPMITOOL_* env vars, mirroring secondstar's invocation style, even
// though ipmitool itself reads them from argv here — the env vars let a
// future migration to ipmitool's -E flag drop the argv password with no
// caller-visible change.
func (c *Client) run(ctx context.Context, args ...string) (string, error) {
	fullArgs := append([]string{
		"-I", "lanplus",
		"-H", c.creds.Host,
		"-U", c.creds.User,
		"-P", c.creds.Password,
	}, args...)

	ctx, cancel := context.WithTimeout(ctx, c.timeout)
	defer cancel()

	cmd := exec.CommandContext(ctx, "ipmitool", fullArgs...)
	cmd.Env = append(cmd.Env,
		"IPMITOOL_HOST="+c.creds.Host,
		"IPMITOOL_USERNAME="+c.creds.User,
		"IPMITOOL_PASSWORD="+c.creds.Password,
	)

	var stdout, stderr bytes.Buffer
	cmd.Stdout = &stdout
	cmd.Stderr = &stderr

	err := cmd.Run()
	if ctx.Err() == context.DeadlineExceeded {
		return stdout.String(), &provisionerrors.IPMIConfigurationError{Op: strings.Join(args, " "), Err: fmt.Errorf("timeout after %s", c.timeout)}
	}
	if err != nil {
		if isAuthFailure(stderr.String()) {
			return stdout.String(), &provisionerrors.IPMIConfigurationError{Op: strings.Join(args, " "), Err: fmt.Errorf("authentication failure: %s", stderr.String())}
		}
		return stdout.String(), &provisionerrors.IPMIConfigurationError{Op: strings.Join(args, " "), Err: fmt.Errorf("%w: %s", err, stderr.String())}
	}
	return stdout.String(), nil
}

func isAuthFailure(stderr string) bool {
	lower := strings.ToLower(stderr)
	return strings.Contains(lower, "invalid user") || strings.Contains(lower, "authentication") || strings.Contains(lower, "unauthorized")
}

// PingTest checks basic BMC reachability via `mc info`.
func (c *Client) PingTest(ctx context.Context) error {
	_, err := c.run(ctx, "mc", "info")
	return err
}

// Authenticate verifies the configured credentials work.
func (c *Client) Authenticate(ctx context.Context) error {
	return c.PingTest(ctx)
}

// BMCInfo reads `bmc info` (firmware, device, etc.)
func (c *Client) BMCInfo(ctx context.Context) (string, error) {
	return c.run(ctx, "bmc", "info")
}

// SensorList reads `sensor list`.
func (c *Client) SensorList(ctx context.Context) (string, error) {
	return c.run(ctx, "sensor", "list")
}

// SDRList reads `sdr list`.
func (c *Client) SDRList(ctx context.Context) (string, error) {
	return c.run(ctx, "sdr", "list")
}

// FRUList reads `fru list`.
func (c *Client) FRUList(ctx context.Context) (string, error) {
	return c.run(ctx, "fru", "list")
}

// Power reads or sets the chassis power state.
func (c *Client) Power(ctx context.Context, state PowerState) (string, error) {
	return c.run(ctx, "chassis", "power", string(state))
}

// VerifyPower re-reads power status and compares it against want; a
// configure-IPMI step's required post-condition (spec.md §4.4).
func (c *Client) VerifyPower(ctx context.Context, want PowerState) error {
	out, err := c.Power(ctx, PowerStatus)
	if err != nil {
		return err
	}
	if !strings.Contains(strings.ToLower(out), strings.ToLower(string(want))) && want != PowerCycle && want != PowerReset {
		return &provisionerrors.IPMIConfigurationError{Op: "verify power", Err: fmt.Errorf("expected power state %s, got %q", want, out)}
	}
	return nil
}

// SetLAN configures channel 1's static IP/netmask/gateway.
func (c *Client) SetLAN(ctx context.Context, ip, netmask, gateway string) error {
	steps := [][]string{
		{"lan", "set", "1", "ipsrc", "static"},
		{"lan", "set", "1", "ipaddr", ip},
		{"lan", "set", "1", "netmask", netmask},
		{"lan", "set", "1", "defgw", "ipaddr", gateway},
		{"lan", "set", "1", "access", "on"},
	}
	for _, args := range steps {
		if _, err := c.run(ctx, args...); err != nil {
			return err
		}
	}
	return nil
}

// LANPrint reads `lan print 1`.
func (c *Client) LANPrint(ctx context.Context) (string, error) {
	return c.run(ctx, "lan", "print", "1")
}

// SetUser creates or modifies the given user slot (the pipeline passes
// slot 2, the channel's configurable operator/admin slot) with the given
// password and admin privilege, per spec.md §4.4/§6.
func (c *Client) SetUser(ctx context.Context, slot int, name, password string) error {
	slotStr := fmt.Sprintf("%d", slot)
	if _, err := c.run(ctx, "user", "set", "name", slotStr, name); err != nil {
		return err
	}
	if _, err := c.run(ctx, "user", "set", "password", slotStr, password); err != nil {
		return err
	}
	if _, err := c.run(ctx, "user", "enable", slotStr); err != nil {
		return err
	}
	if _, err := c.run(ctx, "channel", "setaccess", "1", slotStr, "privilege=4"); err != nil {
		return err
	}
	return nil
}
