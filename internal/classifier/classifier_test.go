package classifier

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/tinkerbell/hwprovisiond/internal/catalog"
	"github.com/tinkerbell/hwprovisiond/internal/sshadapter"
)

func TestDetectVendorMultiMatchBonus(t *testing.T) {
	facts := sshadapter.HardwareFacts{
		DMI: map[string]string{
			"sys-vendor":  "Supermicro",
			"board-vendor": "SMC",
			"bios-vendor": "American Megatrends",
			"bios-version": "supermicro rev 1.2",
		},
	}
	profile, ranked, err := DetectVendor(context.Background(), facts)
	require.NoError(t, err)
	require.NotEmpty(t, ranked)
	assert.Equal(t, "supermicro", profile.Name)
	// Two DMI matches trigger the +0.2 multi-match bonus (0.3+0.2 = 0.5);
	// the BIOS-string match scores 0.4; the max-merge keeps the higher one.
	assert.GreaterOrEqual(t, ranked[0].Confidence, 0.4)
}

func TestDetectVendorNoMatchesReturnsEmpty(t *testing.T) {
	facts := sshadapter.HardwareFacts{DMI: map[string]string{"sys-vendor": "Generic Whitebox"}}
	profile, ranked, err := DetectVendor(context.Background(), facts)
	require.NoError(t, err)
	assert.Empty(t, ranked)
	assert.Empty(t, profile.Name)
}

func TestClassifyDeviceTypeDropsLowConfidence(t *testing.T) {
	entries := []catalog.DeviceType{
		{
			ID:          "s2.c2.large",
			Vendor:      "supermicro",
			HardwareSpecs: catalog.HardwareSpecs{CPUName: "Xeon Gold 6248", CPUCores: 40, RAMGB: 384, Vendor: "supermicro"},
		},
		{
			ID:          "unrelated.tiny",
			Vendor:      "acme",
			HardwareSpecs: catalog.HardwareSpecs{CPUName: "Cortex A53", CPUCores: 4, RAMGB: 2, Vendor: "acme"},
		},
	}
	facts := sshadapter.HardwareFacts{CPUModel: "Intel Xeon Gold 6248", CPUCount: 40, MemoryGB: 384}

	top, alternates := ClassifyDeviceType(facts, "supermicro", entries)
	require.NotNil(t, top)
	assert.Equal(t, "s2.c2.large", top.DeviceType.ID)
	assert.Empty(t, alternates)
}

func TestClassifyDeviceTypeNoMatchesReturnsNilTop(t *testing.T) {
	entries := []catalog.DeviceType{
		{ID: "unrelated.tiny", HardwareSpecs: catalog.HardwareSpecs{CPUName: "Cortex A53", CPUCores: 4, RAMGB: 2}},
	}
	facts := sshadapter.HardwareFacts{CPUModel: "Intel Xeon Gold 6248", CPUCount: 40, MemoryGB: 384}

	top, alternates := ClassifyDeviceType(facts, "supermicro", entries)
	assert.Nil(t, top)
	assert.Empty(t, alternates)
}
