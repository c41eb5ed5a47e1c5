package main

import (
	"context"
	"time"

	"github.com/go-logr/logr"

	"github.com/tinkerbell/hwprovisiond/internal/bios"
	"github.com/tinkerbell/hwprovisiond/internal/bmc"
	"github.com/tinkerbell/hwprovisiond/internal/catalog"
	"github.com/tinkerbell/hwprovisiond/internal/config"
	"github.com/tinkerbell/hwprovisiond/internal/fleet"
	"github.com/tinkerbell/hwprovisiond/internal/sshadapter"
	"github.com/tinkerbell/hwprovisiond/internal/store"
)

// Components holds every adapter/engine built from config.Config, the way
// cmd/tinkerbell/cmd.go builds one struct per service before wiring them
// into its errgroup.
type Components struct {
	Store       *store.Store
	Catalog     *catalog.Catalog
	Fleet       *fleet.Client
	BIOS        *bios.Engine
	SSHCreds    sshadapter.Credentials
	IPMICreds   bmc.Credentials
	IPMITimeout time.Duration
	Log         logr.Logger
}

// Build constructs every adapter named in cfg. The store is opened
// eagerly (it owns the process's durable state); every other adapter is a
// cheap, side-effect-free struct until first use.
func Build(cfg *config.Config, log logr.Logger) (*Components, error) {
	ctx := context.Background()

	st, err := store.Open(ctx, cfg.Store.Path, log.WithName("store"))
	if err != nil {
		return nil, err
	}

	cat := catalog.New(cfg.Catalog.Path)
	if err := cat.Load(); err != nil {
		return nil, err
	}

	var fleetClient *fleet.Client
	if cfg.Fleet.BaseURL != nil {
		creds := fleet.OAuth1Credentials{
			ConsumerKey:    cfg.Fleet.ConsumerKey,
			Token:          cfg.Fleet.Token,
			TokenSecret:    cfg.Fleet.TokenSecret,
			ConsumerSecret: cfg.Fleet.ConsumerSecret,
		}
		fleetClient = fleet.New(cfg.Fleet.BaseURL.String(), creds, cfg.Fleet.Timeout)
	}

	biosEngine := bios.NewEngine(map[string]bios.VendorTool{
		"supermicro": &bios.SupermicroTool{},
	})

	return &Components{
		Store:   st,
		Catalog: cat,
		Fleet:   fleetClient,
		BIOS:    biosEngine,
		SSHCreds: sshadapter.Credentials{
			User:      cfg.SSH.User,
			KeyPath:   cfg.SSH.KeyPath,
			Password:  cfg.SSH.Password,
			ConnectTO: cfg.SSH.ConnectTO,
			CommandTO: cfg.SSH.CommandTO,
		},
		IPMICreds: bmc.Credentials{
			User:     cfg.IPMI.User,
			Password: cfg.IPMI.Password,
		},
		IPMITimeout: cfg.IPMI.Timeout,
		Log:         log,
	}, nil
}

// Close releases every resource Build acquired.
func (c *Components) Close() error {
	return c.Store.Close()
}
