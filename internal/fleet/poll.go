package fleet

import (
	"context"
	"fmt"
	"time"

	"github.com/avast/retry-go/v4"
)

// PollProgressFunc reports a polled status transition to the workflow
// context's sub-task log (spec.md §4.5: "observable progress emitted to the
// context").
type PollProgressFunc func(status StatusName)

// PollForStatus polls GetMachine on a 30s inner interval up to a 30-minute
// outer cap until the machine reaches any of the wanted terminal statuses,
// per spec.md §4.5. It returns the terminal status observed, or an error if
// the outer cap elapses first.
func (c *Client) PollForStatus(ctx context.Context, systemID string, want []StatusName, onProgress PollProgressFunc) (StatusName, error) {
	const (
		outerCap = 30 * time.Minute
		inner    = 30 * time.Second
	)

	ctx, cancel := context.WithTimeout(ctx, outerCap)
	defer cancel()

	var last StatusName
	err := retry.Do(
		func() error {
			m, err := c.GetMachine(ctx, systemID)
			if err != nil {
				return err
			}
			last = m.StatusName
			if onProgress != nil {
				onProgress(last)
			}
			for _, w := range want {
				if last == w {
					return nil
				}
			}
			return fmt.Errorf("machine %s still %q", systemID, last)
		},
		retry.Context(ctx),
		retry.Delay(inner),
		retry.DelayType(retry.FixedDelay),
		retry.Attempts(0), // unbounded attempts; ctx's outer cap is the real bound
		retry.LastErrorOnly(true),
	)
	if err != nil {
		return last, fmt.Errorf("polling %s for status: %w", systemID, err)
	}
	return last, nil
}

// ForceCommission reconciles arbitrary prior machine state before
// commissioning (spec.md §4.5): a deployed machine is released first and
// awaited, a failed machine is aborted and recommissioned, otherwise
// commissioning proceeds directly.
func (c *Client) ForceCommission(ctx context.Context, systemID string, onProgress PollProgressFunc) error {
	m, err := c.GetMachine(ctx, systemID)
	if err != nil {
		return fmt.Errorf("force commission %s: %w", systemID, err)
	}

	switch m.StatusName {
	case StatusDeployed, StatusDeploying, StatusAllocated:
		if err := c.Release(ctx, systemID); err != nil {
			return fmt.Errorf("releasing %s before recommission: %w", systemID, err)
		}
		if _, err := c.PollForStatus(ctx, systemID, []StatusName{StatusReady, StatusNew}, onProgress); err != nil {
			return err
		}
	case StatusFailedCommission, StatusFailedTesting, StatusFailedDeployment, StatusBroken:
		if err := c.Abort(ctx, systemID); err != nil {
			return fmt.Errorf("aborting %s before recommission: %w", systemID, err)
		}
	}

	if err := c.Commission(ctx, systemID, true); err != nil {
		return fmt.Errorf("recommissioning %s: %w", systemID, err)
	}
	_, err = c.PollForStatus(ctx, systemID, []StatusName{StatusCommissioned, StatusReady}, onProgress)
	return err
}
