// Package bios is the BIOS configuration engine (C7): a per-server
// PullCurrent -> Modify -> Push -> Verify state machine (spec.md §4.7). The
// Supermicro vendor-tool bootstrap (probe/upload/install/invoke) follows
// rufio/internal/controller/client.go's "ensure interface then open"
// pattern, generalized from a BMC connection bootstrap to a vendor-tool
// bootstrap carried out over an SSH session.
package bios

import (
	"context"
	"fmt"
	"time"

	"dario.cat/mergo"
	"github.com/avast/retry-go/v4"

	"github.com/tinkerbell/hwprovisiond/internal/sshadapter"
)

// Document is the vendor-neutral parsed BIOS settings document: a flat
// key-value map, matching the subset of settings the catalog and the
// vendor tools agree on.
type Document struct {
	Settings map[string]string
	Note     string // set on the unsupported-vendor placeholder path
}

// Diff records changed keys between two documents (spec.md §4.7 Modify
// step).
type Diff struct {
	Key      string
	OldValue string
	NewValue string
}

// VendorTool is the interface the Supermicro path (and any future
// vendor-tool-backed vendor) implements to dump/apply settings over SSH.
type VendorTool interface {
	// Ensure probes for the tool, installing a bundled archive if missing,
	// and validates the installed binary.
	Ensure(ctx context.Context, sess *sshadapter.Session) error
	// Dump invokes the tool to write current settings to a remote file and
	// fetches it back, parsed into a Document.
	Dump(ctx context.Context, sess *sshadapter.Session) (Document, error)
	// Apply pushes doc back via the vendor channel, returning whether the
	// vendor tool reports a reboot is required.
	Apply(ctx context.Context, sess *sshadapter.Session, doc Document) (rebootRequired bool, err error)
}

// RetryPolicy for the Push step: retryable up to 2x with 5s backoff
// (spec.md §4.7).
var pushRetryPolicy = struct {
	attempts uint
	delay    time.Duration
}{attempts: 3, delay: 5 * time.Second} // 2 retries == 3 total attempts

// Engine runs the C7 state machine for one server.
type Engine struct {
	tools map[string]VendorTool // keyed by lowercase vendor name, e.g. "supermicro"
}

// NewEngine builds an Engine with the given vendor-tool implementations.
func NewEngine(tools map[string]VendorTool) *Engine {
	return &Engine{tools: tools}
}

// PullCurrent implements the vendor-dependent pull step. Unsupported
// vendors get a placeholder document rather than an error (spec.md §4.7):
// "other vendors: if an adapter is not implemented, emit a placeholder
// document and continue".
func (e *Engine) PullCurrent(ctx context.Context, vendor string, sess *sshadapter.Session) (Document, error) {
	tool, ok := e.tools[vendor]
	if !ok {
		return Document{Note: vendor}, nil
	}
	if err := tool.Ensure(ctx, sess); err != nil {
		return Document{}, fmt.Errorf("ensuring vendor tool for %s: %w", vendor, err)
	}
	doc, err := tool.Dump(ctx, sess)
	if err != nil {
		return Document{}, fmt.Errorf("pulling current bios settings for %s: %w", vendor, err)
	}
	return doc, nil
}

// Modify overlays the device-type's settings bundle onto current using
// mergo, and computes the changed-keys diff (spec.md §4.7).
func (e *Engine) Modify(current Document, overlay map[string]string) (modified Document, diffs []Diff, changesApplied []string) {
	if current.Note != "" {
		// Placeholder path: no changes are meaningful.
		return current, nil, []string{fmt.Sprintf("No changes applied - %s BIOS configuration not yet supported", current.Note)}
	}

	modified = Document{Settings: make(map[string]string, len(current.Settings))}
	for k, v := range current.Settings {
		modified.Settings[k] = v
	}
	_ = mergo.Merge(&modified.Settings, overlay, mergo.WithOverride)

	for k, newVal := range overlay {
		if oldVal, existed := current.Settings[k]; !existed || oldVal != newVal {
			diffs = append(diffs, Diff{Key: k, OldValue: current.Settings[k], NewValue: newVal})
			changesApplied = append(changesApplied, fmt.Sprintf("%s: %q -> %q", k, current.Settings[k], newVal))
		}
	}
	return modified, diffs, changesApplied
}

// Push sends the modified document back, retrying up to 2x with 5s backoff
// (spec.md §4.7). It returns whether the vendor tool reported a required
// reboot.
func (e *Engine) Push(ctx context.Context, vendor string, sess *sshadapter.Session, doc Document) (rebootRequired bool, err error) {
	if doc.Note != "" {
		return false, nil // unsupported-vendor path: push is a no-op, reported "skipped" by the caller.
	}
	tool, ok := e.tools[vendor]
	if !ok {
		return false, nil
	}

	err = retry.Do(
		func() error {
			var innerErr error
			rebootRequired, innerErr = tool.Apply(ctx, sess, doc)
			return innerErr
		},
		retry.Attempts(pushRetryPolicy.attempts),
		retry.Delay(pushRetryPolicy.delay),
		retry.DelayType(retry.FixedDelay),
		retry.Context(ctx),
	)
	if err != nil {
		return false, fmt.Errorf("pushing bios settings for %s: %w", vendor, err)
	}
	return rebootRequired, nil
}

// Verify re-reads the document and compares only the keys in diffs; any
// mismatch fails (spec.md §4.7).
func (e *Engine) Verify(ctx context.Context, vendor string, sess *sshadapter.Session, diffs []Diff) error {
	if len(diffs) == 0 {
		return nil
	}
	tool, ok := e.tools[vendor]
	if !ok {
		return nil
	}
	reread, err := tool.Dump(ctx, sess)
	if err != nil {
		return fmt.Errorf("re-reading bios settings for verify: %w", err)
	}
	for _, d := range diffs {
		got, ok := reread.Settings[d.Key]
		if !ok || got != d.NewValue {
			return fmt.Errorf("verify mismatch for %s: want %q, got %q", d.Key, d.NewValue, got)
		}
	}
	return nil
}
