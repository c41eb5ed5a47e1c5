package fleet

import (
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strings"
	"time"
)

// nowFunc is overridable in tests; production code always uses time.Now.
var nowFunc = time.Now

// StatusName is the closed set of fleet-controller status strings the
// engine reasons about (spec.md §6).
type StatusName string

const (
	StatusNew                StatusName = "New"
	StatusReady              StatusName = "Ready"
	StatusCommissioning      StatusName = "Commissioning"
	StatusCommissioned       StatusName = "Commissioned"
	StatusTesting            StatusName = "Testing"
	StatusDeployed           StatusName = "Deployed"
	StatusDeploying          StatusName = "Deploying"
	StatusFailedCommission   StatusName = "Failed commissioning"
	StatusFailedTesting      StatusName = "Failed testing"
	StatusFailedDeployment   StatusName = "Failed deployment"
	StatusBroken             StatusName = "Broken"
	StatusAllocated          StatusName = "Allocated"
)

// InterfaceLink is one discovered or statically-configured network link on
// a machine.
type InterfaceLink struct {
	IPAddress string `json:"ip_address"`
	Subnet    string `json:"subnet,omitempty"`
}

// Interface is one NIC on a machine record, with both discovered and static
// links (spec.md §4.5).
type Interface struct {
	Name          string          `json:"name"`
	DiscoveredIPs []InterfaceLink `json:"discovered_ip,omitempty"`
	Links         []InterfaceLink `json:"links,omitempty"`
}

// Machine is the fleet controller's machine record, trimmed to the fields
// the core reasons about.
type Machine struct {
	SystemID     string      `json:"system_id"`
	StatusName   StatusName  `json:"status_name"`
	Hostname     string      `json:"hostname"`
	InterfaceSet []Interface `json:"interface_set"`
}

// Client is a signed HTTP client against the fleet-controller REST API.
type Client struct {
	baseURL string
	creds   OAuth1Credentials
	http    *http.Client
	now     func() int64
}

// New builds a fleet-controller client. baseURL should include the API
// version prefix, e.g. "https://maas.example.com/MAAS/api/2.0".
func New(baseURL string, creds OAuth1Credentials, timeout time.Duration) *Client {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &Client{
		baseURL: strings.TrimSuffix(baseURL, "/"),
		creds:   creds,
		http:    &http.Client{Timeout: timeout},
		now:     func() int64 { return timeNowUnix() },
	}
}

func (c *Client) do(ctx context.Context, method, path string, form url.Values) (*http.Response, error) {
	var body *bytes.Reader
	fullURL := c.baseURL + path
	if method == http.MethodGet {
		if len(form) > 0 {
			fullURL += "?" + form.Encode()
		}
		body = bytes.NewReader(nil)
	} else {
		body = bytes.NewReader([]byte(form.Encode()))
	}

	req, err := http.NewRequestWithContext(ctx, method, fullURL, body)
	if err != nil {
		return nil, err
	}
	if method != http.MethodGet {
		req.Header.Set("Content-Type", "application/x-www-form-urlencoded")
	}

	authHeader, err := authorizationHeader(c.creds, c.now())
	if err != nil {
		return nil, err
	}
	req.Header.Set("Authorization", authHeader)

	return c.http.Do(req)
}

// apiError wraps a non-2xx response; the adapter never raises into the
// engine directly, so callers translate this into a step-local failure
// (spec.md §4.5).
type apiError struct {
	StatusCode int
	Body       string
}

func (e *apiError) Error() string {
	return fmt.Sprintf("fleet controller returned %d: %s", e.StatusCode, e.Body)
}

func decodeOrError(resp *http.Response, out any) error {
	defer resp.Body.Close()
	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		buf := new(bytes.Buffer)
		_, _ = buf.ReadFrom(resp.Body)
		return &apiError{StatusCode: resp.StatusCode, Body: buf.String()}
	}
	if out == nil {
		return nil
	}
	return json.NewDecoder(resp.Body).Decode(out)
}

// ListMachines returns every machine, optionally filtered by a MAAS-style
// query (hostname, zone, etc.). Network errors return (nil, err); the
// caller logs and treats the result as empty (spec.md §4.5).
func (c *Client) ListMachines(ctx context.Context, filter url.Values) ([]Machine, error) {
	resp, err := c.do(ctx, http.MethodGet, "/machines/", filter)
	if err != nil {
		return nil, fmt.Errorf("listing machines: %w", err)
	}
	var machines []Machine
	if err := decodeOrError(resp, &machines); err != nil {
		return nil, err
	}
	return machines, nil
}

// GetMachine fetches one machine's full record.
func (c *Client) GetMachine(ctx context.Context, systemID string) (*Machine, error) {
	resp, err := c.do(ctx, http.MethodGet, fmt.Sprintf("/machines/%s/", systemID), nil)
	if err != nil {
		return nil, fmt.Errorf("getting machine %s: %w", systemID, err)
	}
	var m Machine
	if err := decodeOrError(resp, &m); err != nil {
		return nil, err
	}
	return &m, nil
}

func (c *Client) op(ctx context.Context, systemID, op string, form url.Values) error {
	if form == nil {
		form = url.Values{}
	}
	resp, err := c.do(ctx, http.MethodPost, fmt.Sprintf("/machines/%s/?op=%s", systemID, op), form)
	if err != nil {
		return fmt.Errorf("op-%s machine %s: %w", op, systemID, err)
	}
	return decodeOrError(resp, nil)
}

// Commission issues op-commission, optionally enabling SSH.
func (c *Client) Commission(ctx context.Context, systemID string, enableSSH bool) error {
	form := url.Values{}
	if enableSSH {
		form.Set("enable_ssh", "1")
	} else {
		form.Set("enable_ssh", "0")
	}
	return c.op(ctx, systemID, "commission", form)
}

// Abort issues op-abort.
func (c *Client) Abort(ctx context.Context, systemID string) error {
	return c.op(ctx, systemID, "abort", nil)
}

// Deploy issues op-deploy, with an optional distro series.
func (c *Client) Deploy(ctx context.Context, systemID, distroSeries string) error {
	form := url.Values{}
	if distroSeries != "" {
		form.Set("distro_series", distroSeries)
	}
	return c.op(ctx, systemID, "deploy", form)
}

// Release issues op-release.
func (c *Client) Release(ctx context.Context, systemID string) error {
	return c.op(ctx, systemID, "release", nil)
}

// Tag adds a tag to the machine.
func (c *Client) Tag(ctx context.Context, systemID, tag string) error {
	form := url.Values{}
	form.Set("tag", tag)
	return c.op(ctx, systemID, "tag", form)
}

// MarkReady transitions a machine to Ready after a successful manual check.
func (c *Client) MarkReady(ctx context.Context, systemID string) error {
	return c.op(ctx, systemID, "mark-ready", nil)
}

func timeNowUnix() int64 {
	return nowFunc().Unix()
}
