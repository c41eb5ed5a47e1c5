package bios

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestPullCurrentUnsupportedVendorIsPlaceholder(t *testing.T) {
	e := NewEngine(map[string]VendorTool{})
	doc, err := e.PullCurrent(context.Background(), "Lenovo", nil)
	require.NoError(t, err)
	assert.Equal(t, "Lenovo", doc.Note)
}

func TestModifyUnsupportedVendorReportsNoChanges(t *testing.T) {
	e := NewEngine(nil)
	current, _ := e.PullCurrent(context.Background(), "Lenovo", nil)

	modified, diffs, changes := e.Modify(current, map[string]string{"BootMode": "UEFI"})
	assert.Empty(t, diffs)
	require.Len(t, changes, 1)
	assert.Equal(t, "No changes applied - Lenovo BIOS configuration not yet supported", changes[0])
	assert.Equal(t, current, modified)
}

func TestModifyComputesDiff(t *testing.T) {
	e := NewEngine(nil)
	current := Document{Settings: map[string]string{"BootMode": "Legacy", "SecureBoot": "Disabled"}}

	modified, diffs, changes := e.Modify(current, map[string]string{"BootMode": "UEFI"})
	require.Len(t, diffs, 1)
	assert.Equal(t, "BootMode", diffs[0].Key)
	assert.Equal(t, "Legacy", diffs[0].OldValue)
	assert.Equal(t, "UEFI", diffs[0].NewValue)
	assert.Len(t, changes, 1)
	assert.Equal(t, "UEFI", modified.Settings["BootMode"])
	assert.Equal(t, "Disabled", modified.Settings["SecureBoot"])
}

func TestPushUnsupportedVendorIsNoOp(t *testing.T) {
	e := NewEngine(nil)
	reboot, err := e.Push(context.Background(), "lenovo", nil, Document{Note: "Lenovo"})
	require.NoError(t, err)
	assert.False(t, reboot)
}

func TestVerifyNoDiffsAlwaysPasses(t *testing.T) {
	e := NewEngine(nil)
	err := e.Verify(context.Background(), "lenovo", nil, nil)
	require.NoError(t, err)
}
