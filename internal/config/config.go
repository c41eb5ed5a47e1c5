package config

import (
	"flag"
	"fmt"
	"net/url"
	"os"
	"time"

	"github.com/peterbourgon/ff/v4"
	"github.com/peterbourgon/ff/v4/ffhelp"
	"github.com/peterbourgon/ff/v4/ffval"
	"gopkg.in/yaml.v3"
)

// flagConfig names one registered flag, mirroring the teacher's
// cmd/tinkerbell/flag.Config shape.
type flagConfig struct {
	Name  string
	Usage string
}

// Set wraps ff.FlagSet the way the teacher's flag.Set does, adding a
// panic-on-duplicate Register helper.
type Set struct {
	*ff.FlagSet
}

// Register adds one flag value to the set. Duplicate names panic, matching
// the teacher: a misconfigured flag set is a programmer error, not a
// runtime condition to recover from.
func (s *Set) Register(f flagConfig, fv flag.Value) {
	ph := func() string {
		if _, ok := fv.(*ffval.Bool); ok {
			return "BOOL"
		}
		return ""
	}()
	if _, err := s.AddFlag(ff.FlagConfig{
		LongName:    f.Name,
		Usage:       f.Usage,
		Value:       fv,
		Placeholder: ph,
	}); err != nil {
		panic(err)
	}
}

// StoreConfig configures C1's persistent store.
type StoreConfig struct {
	Path string
}

// CatalogConfig configures C2's device catalog.
type CatalogConfig struct {
	Path string
}

// FleetConfig configures C5's fleet-controller adapter.
type FleetConfig struct {
	BaseURL        *url.URL
	ConsumerKey    string
	Token          string
	TokenSecret    string
	ConsumerSecret string
	Timeout        time.Duration
}

// SSHConfig configures C3's SSH session adapter defaults.
type SSHConfig struct {
	User      string
	KeyPath   string
	Password  string
	ConnectTO time.Duration
	CommandTO time.Duration
}

// IPMIConfig configures C4's ipmitool-backed BMC client defaults.
type IPMIConfig struct {
	User     string
	Password string
	Timeout  time.Duration
}

// EngineConfig configures C10's workflow engine and the "-once" smoke-test
// entry point.
type EngineConfig struct {
	LogLevel      int
	MetricsAddr   string
	FirmwareFirst bool
	ConfigFile    string
	ServerID      string
	DeviceTypeID  string
	BMCIP         string
}

// Config is the complete process configuration, one struct per component,
// assembled by cmd/hwprovisiond the way cmd/tinkerbell/cmd.go assembles its
// per-service *Config structs onto one flag.Set.
type Config struct {
	Store   StoreConfig
	Catalog CatalogConfig
	Fleet   FleetConfig
	SSH     SSHConfig
	IPMI    IPMIConfig
	Engine  EngineConfig
}

var (
	flagStorePath = flagConfig{Name: "store-path", Usage: "path to the sqlite database file"}

	flagCatalogPath = flagConfig{Name: "catalog-path", Usage: "path to the device catalog YAML tree"}

	flagFleetURL            = flagConfig{Name: "fleet-url", Usage: "base URL of the fleet controller API"}
	flagFleetConsumerKey    = flagConfig{Name: "fleet-consumer-key", Usage: "OAuth1 consumer key"}
	flagFleetToken          = flagConfig{Name: "fleet-token", Usage: "OAuth1 token"}
	flagFleetTokenSecret    = flagConfig{Name: "fleet-token-secret", Usage: "OAuth1 token secret"}
	flagFleetConsumerSecret = flagConfig{Name: "fleet-consumer-secret", Usage: "OAuth1 consumer secret"}
	flagFleetTimeout        = flagConfig{Name: "fleet-timeout", Usage: "fleet controller HTTP timeout"}

	flagSSHUser      = flagConfig{Name: "ssh-user", Usage: "default SSH username for managed hosts"}
	flagSSHKeyPath   = flagConfig{Name: "ssh-key-path", Usage: "default SSH private key path"}
	flagSSHPassword  = flagConfig{Name: "ssh-password", Usage: "default SSH password (used when ssh-key-path is unset)"}
	flagSSHConnectTO = flagConfig{Name: "ssh-connect-timeout", Usage: "SSH dial timeout"}
	flagSSHCommandTO = flagConfig{Name: "ssh-command-timeout", Usage: "SSH command timeout"}

	flagIPMIUser     = flagConfig{Name: "ipmi-user", Usage: "default IPMI username"}
	flagIPMIPassword = flagConfig{Name: "ipmi-password", Usage: "default IPMI password"}
	flagIPMITimeout  = flagConfig{Name: "ipmi-timeout", Usage: "ipmitool invocation timeout"}

	flagLogLevel      = flagConfig{Name: "log-level", Usage: "the higher the number the more verbose"}
	flagMetricsAddr   = flagConfig{Name: "metrics-addr", Usage: "Prometheus metrics address (accepted but not used: the binary starts no metrics listener)"}
	flagFirmwareFirst = flagConfig{Name: "firmware-first", Usage: "use the firmware-first provisioning strategy instead of the standard one"}
	flagConfigFile    = flagConfig{Name: "config", Usage: "path to a YAML config file"}

	flagServerID     = flagConfig{Name: "server-id", Usage: "id of the single server to provision, enables -once mode"}
	flagDeviceTypeID = flagConfig{Name: "device-type-id", Usage: "catalog device type id to apply during provisioning"}
	flagBMCIP        = flagConfig{Name: "bmc-ip", Usage: "known BMC IP for the server, enables the ipmi-configuration and firmware stages"}
)

// Register wires every component's flags onto one shared flag set, in the
// order the teacher's cmd.go registers its own per-service config.
func Register(fs *Set, cfg *Config) {
	fs.Register(flagStorePath, ffval.NewValueDefault(&cfg.Store.Path, cfg.Store.Path))

	fs.Register(flagCatalogPath, ffval.NewValueDefault(&cfg.Catalog.Path, cfg.Catalog.Path))

	fs.Register(flagFleetURL, newURLValue(&cfg.Fleet.BaseURL))
	fs.Register(flagFleetConsumerKey, ffval.NewValueDefault(&cfg.Fleet.ConsumerKey, cfg.Fleet.ConsumerKey))
	fs.Register(flagFleetToken, ffval.NewValueDefault(&cfg.Fleet.Token, cfg.Fleet.Token))
	fs.Register(flagFleetTokenSecret, ffval.NewValueDefault(&cfg.Fleet.TokenSecret, cfg.Fleet.TokenSecret))
	fs.Register(flagFleetConsumerSecret, ffval.NewValueDefault(&cfg.Fleet.ConsumerSecret, cfg.Fleet.ConsumerSecret))
	fs.Register(flagFleetTimeout, newDurationValue(&cfg.Fleet.Timeout))

	fs.Register(flagSSHUser, ffval.NewValueDefault(&cfg.SSH.User, cfg.SSH.User))
	fs.Register(flagSSHKeyPath, ffval.NewValueDefault(&cfg.SSH.KeyPath, cfg.SSH.KeyPath))
	fs.Register(flagSSHPassword, ffval.NewValueDefault(&cfg.SSH.Password, cfg.SSH.Password))
	fs.Register(flagSSHConnectTO, newDurationValue(&cfg.SSH.ConnectTO))
	fs.Register(flagSSHCommandTO, newDurationValue(&cfg.SSH.CommandTO))

	fs.Register(flagIPMIUser, ffval.NewValueDefault(&cfg.IPMI.User, cfg.IPMI.User))
	fs.Register(flagIPMIPassword, ffval.NewValueDefault(&cfg.IPMI.Password, cfg.IPMI.Password))
	fs.Register(flagIPMITimeout, newDurationValue(&cfg.IPMI.Timeout))

	fs.Register(flagLogLevel, ffval.NewValueDefault(&cfg.Engine.LogLevel, cfg.Engine.LogLevel))
	fs.Register(flagMetricsAddr, ffval.NewValueDefault(&cfg.Engine.MetricsAddr, cfg.Engine.MetricsAddr))
	fs.Register(flagFirmwareFirst, ffval.NewValueDefault(&cfg.Engine.FirmwareFirst, cfg.Engine.FirmwareFirst))
	fs.Register(flagConfigFile, ffval.NewValueDefault(&cfg.Engine.ConfigFile, cfg.Engine.ConfigFile))

	fs.Register(flagServerID, ffval.NewValueDefault(&cfg.Engine.ServerID, cfg.Engine.ServerID))
	fs.Register(flagDeviceTypeID, ffval.NewValueDefault(&cfg.Engine.DeviceTypeID, cfg.Engine.DeviceTypeID))
	fs.Register(flagBMCIP, ffval.NewValueDefault(&cfg.Engine.BMCIP, cfg.Engine.BMCIP))
}

// Defaults returns a Config populated with the engine's baseline values,
// the way the teacher's Execute seeds its GlobalConfig before registering
// flags over it.
func Defaults() *Config {
	return &Config{
		Store:   StoreConfig{Path: "hwprovisiond.db"},
		Catalog: CatalogConfig{Path: "catalog"},
		Fleet:   FleetConfig{Timeout: 30 * time.Second},
		SSH:     SSHConfig{ConnectTO: 10 * time.Second, CommandTO: 60 * time.Second},
		IPMI:    IPMIConfig{Timeout: 30 * time.Second},
		Engine:  EngineConfig{LogLevel: 0},
	}
}

// fileLayer is the subset of Config that may come from a YAML file. Only
// the fields applyFile copies are ever taken from it.
type fileLayer struct {
	Store   StoreConfig   `yaml:"store"`
	Catalog CatalogConfig `yaml:"catalog"`
	Fleet   struct {
		BaseURL        string        `yaml:"base_url"`
		ConsumerKey    string        `yaml:"consumer_key"`
		Token          string        `yaml:"token"`
		TokenSecret    string        `yaml:"token_secret"`
		ConsumerSecret string        `yaml:"consumer_secret"`
		Timeout        time.Duration `yaml:"timeout"`
	} `yaml:"fleet"`
	SSH    SSHConfig  `yaml:"ssh"`
	IPMI   IPMIConfig `yaml:"ipmi"`
	Engine struct {
		LogLevel      int    `yaml:"log_level"`
		MetricsAddr   string `yaml:"metrics_addr"`
		FirmwareFirst bool   `yaml:"firmware_first"`
	} `yaml:"engine"`
}

// applyFile loads path (if non-empty) and copies a file value only into a
// field that is still at its zero value after Defaults() and flag/env
// parsing, so flags/env always win over the file. Fields that Defaults()
// pre-populates (store path, catalog path, fleet timeout) therefore keep
// their default even when the file sets them, and the file's ssh
// connect/command timeouts, ipmi timeout, log_level and firmware_first are
// not applied at all.
func applyFile(cfg *Config, path string) error {
	if path == "" {
		return nil
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return fmt.Errorf("reading config file %q: %w", path, err)
	}
	var layer fileLayer
	if err := yaml.Unmarshal(data, &layer); err != nil {
		return fmt.Errorf("parsing config file %q: %w", path, err)
	}

	if cfg.Store.Path == "" {
		cfg.Store.Path = layer.Store.Path
	}
	if cfg.Catalog.Path == "" {
		cfg.Catalog.Path = layer.Catalog.Path
	}
	if cfg.Fleet.BaseURL == nil && layer.Fleet.BaseURL != "" {
		u, err := url.Parse(layer.Fleet.BaseURL)
		if err != nil {
			return fmt.Errorf("config file fleet.base_url: %w", err)
		}
		cfg.Fleet.BaseURL = u
	}
	if cfg.Fleet.ConsumerKey == "" {
		cfg.Fleet.ConsumerKey = layer.Fleet.ConsumerKey
	}
	if cfg.Fleet.Token == "" {
		cfg.Fleet.Token = layer.Fleet.Token
	}
	if cfg.Fleet.TokenSecret == "" {
		cfg.Fleet.TokenSecret = layer.Fleet.TokenSecret
	}
	if cfg.Fleet.ConsumerSecret == "" {
		cfg.Fleet.ConsumerSecret = layer.Fleet.ConsumerSecret
	}
	if cfg.Fleet.Timeout == 0 {
		cfg.Fleet.Timeout = layer.Fleet.Timeout
	}
	if cfg.SSH.User == "" {
		cfg.SSH.User = layer.SSH.User
	}
	if cfg.SSH.KeyPath == "" {
		cfg.SSH.KeyPath = layer.SSH.KeyPath
	}
	if cfg.SSH.Password == "" {
		cfg.SSH.Password = layer.SSH.Password
	}
	if cfg.IPMI.User == "" {
		cfg.IPMI.User = layer.IPMI.User
	}
	if cfg.IPMI.Password == "" {
		cfg.IPMI.Password = layer.IPMI.Password
	}
	if cfg.Engine.MetricsAddr == "" {
		cfg.Engine.MetricsAddr = layer.Engine.MetricsAddr
	}
	return nil
}

// Load parses args (CLI) over env (PROVISIONING_* prefix) over Defaults(),
// then fills remaining empty fields from an optional YAML file (see
// applyFile), returning the assembled Config. usage captures
// ffhelp's rendered usage text for callers that want to print it on error.
func Load(args []string) (cfg *Config, usage string, err error) {
	cfg = Defaults()
	top := ff.NewFlagSet("hwprovisiond")
	Register(&Set{FlagSet: top}, cfg)

	cmd := &ff.Command{
		Name:  "hwprovisiond",
		Usage: "hwprovisiond [flags]",
		Flags: top,
	}

	if perr := cmd.Parse(args, ff.WithEnvVarPrefix("PROVISIONING")); perr != nil {
		return nil, ffhelp.Command(cmd).String(), perr
	}

	if ferr := applyFile(cfg, cfg.Engine.ConfigFile); ferr != nil {
		return nil, "", ferr
	}

	return cfg, "", nil
}
