// Package catalog implements the unified device catalog (C2): a
// tree-structured YAML document describing every known vendor, motherboard,
// and device-type, memoized by file mtime and reloaded atomically.
package catalog

import (
	"fmt"
	"os"
	"sync/atomic"
	"time"

	"github.com/go-playground/validator/v10"
	"gopkg.in/yaml.v3"

	"github.com/tinkerbell/hwprovisiond/internal/provisionerrors"
)

// BIOSMethod is the set of BIOS-configuration approaches a device-type can
// declare as preferred or fallback.
type BIOSMethod string

const (
	BIOSMethodRedfish    BIOSMethod = "redfish"
	BIOSMethodVendorTool BIOSMethod = "vendor_tool"
	BIOSMethodHybrid     BIOSMethod = "hybrid"
)

// HardwareSpecs is the hardware-profile portion of a device-type entry.
type HardwareSpecs struct {
	CPUName  string `yaml:"cpu_name" validate:"required"`
	CPUCores int    `yaml:"cpu_cores" validate:"required,gt=0"`
	RAMGB    int    `yaml:"ram_gb" validate:"required,gt=0"`
	Vendor   string `yaml:"vendor"`
}

// DeviceType is one `device_types.<id>` leaf.
type DeviceType struct {
	ID                 string            `yaml:"-"`
	Vendor             string            `yaml:"-"`
	Motherboard        string            `yaml:"-"`
	Description        string            `yaml:"description"`
	HardwareSpecs      HardwareSpecs     `yaml:"hardware_specs" validate:"required"`
	BootConfigs        map[string]any    `yaml:"boot_configs"`
	CPUConfigs         map[string]any    `yaml:"cpu_configs"`
	MemoryConfigs      map[string]any    `yaml:"memory_configs"`
	SecurityConfigs    map[string]any    `yaml:"security_configs"`
	BIOSSettings       map[string]any    `yaml:"bios_settings"`
	BIOSSettingMethods map[string]string `yaml:"bios_setting_methods"`
	BIOSOverlayRules   map[string]any    `yaml:"bios_settings_overlay_rules"` // SPEC_FULL Open Question #3
	RedfishCapable     bool              `yaml:"redfish_capable"`
	PreferredBIOS      BIOSMethod        `yaml:"preferred_bios_method" validate:"omitempty,oneof=redfish vendor_tool hybrid"`
	FallbackBIOS       BIOSMethod        `yaml:"fallback_bios_method" validate:"omitempty,oneof=redfish vendor_tool hybrid"`
}

// Motherboard groups device-types under one board.
type Motherboard struct {
	Name        string                `yaml:"-"`
	DeviceTypes map[string]DeviceType `yaml:"device_types"`
}

// Vendor groups motherboards.
type Vendor struct {
	Name         string                 `yaml:"-"`
	Motherboards map[string]Motherboard `yaml:"motherboards"`
}

type document struct {
	DeviceConfiguration struct {
		Version        string         `yaml:"version"`
		LastUpdated    string         `yaml:"last_updated"`
		GlobalSettings map[string]any `yaml:"global_settings"`
		Vendors        map[string]struct {
			Motherboards map[string]struct {
				DeviceTypes map[string]DeviceType `yaml:"device_types"`
			} `yaml:"motherboards"`
		} `yaml:"vendors"`
	} `yaml:"device_configuration"`
}

// Stats are derived by tree traversal and cached alongside a snapshot.
type Stats struct {
	VendorCount      int
	MotherboardCount int
	DeviceTypeCount  int
	FirmwareFileRefs int
}

// snapshot is the immutable, atomically-swapped parsed state (spec.md §3
// invariant 4 / §9 redesign note: no torn reads across a reload).
type snapshot struct {
	version      string
	lastUpdated  string
	vendors      map[string]Vendor
	byDeviceType map[string]DeviceType
	stats        Stats
	loadedMtime  time.Time
}

// Catalog is the C2 entry point: load-once, mtime-checked, atomic-swap
// reload.
type Catalog struct {
	path     string
	snap     atomic.Pointer[snapshot]
	validate *validator.Validate
}

// New constructs a Catalog bound to path without loading it; call Load (or
// Reload) before first use.
func New(path string) *Catalog {
	return &Catalog{path: path, validate: validator.New()}
}

// Load performs (or repeats) the initial parse, unconditionally.
func (c *Catalog) Load() error {
	return c.reload()
}

// EnsureLoaded reloads only if the file's mtime has advanced since the
// snapshot currently installed, or if nothing is installed yet.
func (c *Catalog) EnsureLoaded() error {
	info, err := os.Stat(c.path)
	if err != nil {
		// Missing file: adapters return empty views and log, never raise
		// here — the caller-facing failure happens only on load, never on a
		// missed background reload check.
		if c.snap.Load() == nil {
			return fmt.Errorf("device catalog %s: %w", c.path, err)
		}
		return nil
	}
	cur := c.snap.Load()
	if cur != nil && !info.ModTime().After(cur.loadedMtime) {
		return nil
	}
	return c.reload()
}

func (c *Catalog) reload() error {
	info, err := os.Stat(c.path)
	if err != nil {
		return fmt.Errorf("stat device catalog %s: %w", c.path, err)
	}
	raw, err := os.ReadFile(c.path)
	if err != nil {
		return fmt.Errorf("read device catalog %s: %w", c.path, err)
	}

	var doc document
	if err := yaml.Unmarshal(raw, &doc); err != nil {
		return fmt.Errorf("parse device catalog %s: %w", c.path, err)
	}

	next := &snapshot{
		version:      doc.DeviceConfiguration.Version,
		lastUpdated:  doc.DeviceConfiguration.LastUpdated,
		vendors:      make(map[string]Vendor),
		byDeviceType: make(map[string]DeviceType),
		loadedMtime:  info.ModTime(),
	}

	for vendorName, vendorDoc := range doc.DeviceConfiguration.Vendors {
		vendor := Vendor{Name: vendorName, Motherboards: make(map[string]Motherboard)}
		for mbName, mbDoc := range vendorDoc.Motherboards {
			mb := Motherboard{Name: mbName, DeviceTypes: make(map[string]DeviceType)}
			for dtID, dt := range mbDoc.DeviceTypes {
				dt.ID = dtID
				dt.Vendor = vendorName
				dt.Motherboard = mbName
				if err := c.validate.Struct(dt); err != nil {
					return &provisionerrors.ConfigurationValidationError{
						Subject: fmt.Sprintf("device type %s/%s/%s", vendorName, mbName, dtID),
						Err:     err,
					}
				}
				if existing, ok := next.byDeviceType[dtID]; ok {
					return &provisionerrors.ConfigurationValidationError{
						Subject: dtID,
						Err: fmt.Errorf("device-type id %q duplicated across (%s/%s) and (%s/%s)",
							dtID, existing.Vendor, existing.Motherboard, vendorName, mbName),
					}
				}
				mb.DeviceTypes[dtID] = dt
				next.byDeviceType[dtID] = dt
				next.stats.DeviceTypeCount++
			}
			vendor.Motherboards[mbName] = mb
			next.stats.MotherboardCount++
		}
		next.vendors[vendorName] = vendor
		next.stats.VendorCount++
	}

	c.snap.Store(next)
	return nil
}

// LookupDeviceType returns the device-type by id, or ErrNotFound — never a
// panic, per spec.md §4.2 failure semantics.
func (c *Catalog) LookupDeviceType(id string) (DeviceType, error) {
	snap := c.snap.Load()
	if snap == nil {
		return DeviceType{}, fmt.Errorf("catalog not loaded: %w", provisionerrors.ErrNotFound)
	}
	dt, ok := snap.byDeviceType[id]
	if !ok {
		return DeviceType{}, provisionerrors.ErrNotFound
	}
	return dt, nil
}

// LookupMotherboard returns the motherboard entry (with its enumerated
// device-types) under the given vendor. It takes the vendor name as input
// and does not look up which vendor encloses a motherboard.
func (c *Catalog) LookupMotherboard(vendor, motherboard string) (Motherboard, error) {
	snap := c.snap.Load()
	if snap == nil {
		return Motherboard{}, provisionerrors.ErrNotFound
	}
	v, ok := snap.vendors[vendor]
	if !ok {
		return Motherboard{}, provisionerrors.ErrNotFound
	}
	mb, ok := v.Motherboards[motherboard]
	if !ok {
		return Motherboard{}, provisionerrors.ErrNotFound
	}
	return mb, nil
}

// Version returns the loaded document's version string.
func (c *Catalog) Version() string {
	snap := c.snap.Load()
	if snap == nil {
		return ""
	}
	return snap.version
}

// Statistics returns the cached, traversal-derived stats for the currently
// installed snapshot.
func (c *Catalog) Statistics() Stats {
	snap := c.snap.Load()
	if snap == nil {
		return Stats{}
	}
	return snap.stats
}
