package bmc

import (
	"context"
	"fmt"
	"time"

	"dario.cat/mergo"
	"github.com/bmc-toolbox/bmclib/v2"
	"github.com/ccoveille/go-safecast/v2"
	"github.com/go-logr/logr"
)

// RedfishOptions configures the optional Redfish client. Nothing in the
// module calls RedfishClient yet: the BIOS engine (C7) configures BIOS only
// through vendor tools over SSH, whatever a device-type's
// preferred_bios_method says. Port defaults to 443 when zero.
type RedfishOptions struct {
	Port        int
	InsecureTLS bool
	Timeout     time.Duration
}

var redfishDefaults = RedfishOptions{Port: 443, Timeout: 30 * time.Second}

// merged overlays o onto the package defaults so a caller only needs to set
// the fields it cares about, the same pattern rufio's BMCOptions.Translate
// uses mergo for.
func (o RedfishOptions) merged() RedfishOptions {
	out := o
	_ = mergo.Merge(&out, redfishDefaults)
	return out
}

// RedfishClient opens a bmclib.Client against hostIP using the Redfish
// provider, for vendors whose Redfish-support level is "full" or "limited"
// (spec.md §4.6).
func RedfishClient(ctx context.Context, log logr.Logger, hostIP, user, password string, opts RedfishOptions) (*bmclib.Client, error) {
	opts = opts.merged()

	port, err := safecast.Convert[uint32](opts.Port)
	if err != nil {
		port = 443
	}

	// bmclib's WithRedfishPort takes a string; the safecast-checked value is
	// what reaches it, so a negative/overflowing int falls back to 443.
	client := bmclib.NewClient(hostIP, user, password,
		bmclib.WithRedfishPort(fmt.Sprintf("%d", port)),
		bmclib.WithLogger(log.WithValues("host", hostIP)),
	)

	ctx, cancel := context.WithTimeout(ctx, opts.Timeout)
	defer cancel()

	if err := client.Open(ctx); err != nil {
		return nil, fmt.Errorf("opening redfish connection to %s: %w", hostIP, err)
	}
	return client, nil
}
