package main

import (
	"context"
	"errors"
	"fmt"

	"github.com/go-logr/logr"
	"github.com/peterbourgon/ff/v4"

	"github.com/tinkerbell/hwprovisiond/internal/config"
	"github.com/tinkerbell/hwprovisiond/internal/obs"
	"github.com/tinkerbell/hwprovisiond/internal/store"
	"github.com/tinkerbell/hwprovisiond/internal/strategy"
	"github.com/tinkerbell/hwprovisiond/internal/workflow"

	"github.com/tinkerbell/hwprovisiond/internal/engine"
)

// Execute parses args the way cmd/tinkerbell/cmd.go's Execute does (ff/v4
// flags over PROVISIONING_*-prefixed env over an optional YAML file),
// builds every component, and runs one workflow end to end for the server
// named by -server-id (the "-once" smoke-test mode spec.md's REDESIGN FLAGS
// section expects a standalone binary to offer, in place of the source's
// always-on orchestration daemon).
func Execute(ctx context.Context, args []string) error {
	cfg, usage, err := config.Load(args)
	if err != nil {
		if errors.Is(err, ff.ErrHelp) {
			fmt.Println(usage)
			return nil
		}
		return fmt.Errorf("%s\n%w", usage, err)
	}

	log := obs.New(cfg.Engine.LogLevel)
	log.Info("starting hwprovisiond",
		"store", cfg.Store.Path,
		"catalog", cfg.Catalog.Path,
		"firmwareFirst", cfg.Engine.FirmwareFirst,
	)

	components, err := Build(cfg, log)
	if err != nil {
		return fmt.Errorf("building components: %w", err)
	}
	defer components.Close()

	var strat strategy.Strategy = strategy.StandardStrategy{}
	if cfg.Engine.FirmwareFirst {
		strat = strategy.FirmwareFirstStrategy{}
	}

	if cfg.Engine.ServerID == "" {
		log.Info("no -server-id given, components built and idle")
		<-ctx.Done()
		return nil
	}

	return runOnce(ctx, components, strat, cfg.Engine.ServerID, cfg.Engine.DeviceTypeID, cfg.Engine.BMCIP, log)
}

// runOnce provisions a single server end to end, printing the terminal
// Outcome. It exists so the binary is independently runnable for
// smoke-testing without a surrounding scheduler, mirroring the teacher's own
// single-process "-once"-style flows in its CLI helpers.
func runOnce(ctx context.Context, c *Components, strat strategy.Strategy, serverID, deviceTypeID, bmcIP string, log logr.Logger) error {
	if serverID == "" {
		return errors.New("no server to provision: set -server-id")
	}

	if err := c.Store.EnsureServer(ctx, serverID); err != nil {
		return fmt.Errorf("ensure server: %w", err)
	}

	steps := BuildSteps(c, strat, deviceTypeID)

	wfCtx := workflow.NewContext(serverID, serverID, deviceTypeID, func(evt workflow.ProgressEvent) {
		log.Info("progress", "step", evt.StepName, "status", evt.Status, "subtask", evt.SubTask)
	})
	if bmcIP != "" {
		// Populates the key strategy.hasTargetBMCIP gates on, so an operator
		// who knows the BMC IP up front actually reaches the
		// ipmi-configuration and firmware stages instead of always skipping
		// them.
		wfCtx.Set("bmc_ip", bmcIP)
	}

	eng := engine.New(steps, c.Store, log)
	outcome := eng.Execute(ctx, wfCtx)

	log.Info("workflow complete",
		"status", outcome.Status,
		"stepsCompleted", outcome.StepsCompleted,
		"totalSteps", outcome.TotalSteps,
	)
	if outcome.Status == store.WorkflowFailed {
		return fmt.Errorf("workflow failed: %s", outcome.ErrorMessage)
	}
	return nil
}
