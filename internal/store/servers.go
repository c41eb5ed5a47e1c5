package store

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
)

// Server is the typed server record, replacing the source's "map of any"
// shape (spec.md §9 redesign note: typed record, not dynamic update-by-name).
type Server struct {
	ServerID             string         `db:"server_id"`
	StatusName           string         `db:"status_name"`
	IsReady              bool           `db:"is_ready"`
	ServerModel          sql.NullString `db:"server_model"`
	IPAddress            sql.NullString `db:"ip_address"`
	IPAddressWorks       bool           `db:"ip_address_works"`
	IPMIAddress          sql.NullString `db:"ipmi_address"`
	IPMIAddressWorks     bool           `db:"ipmi_address_works"`
	KCSStatus            sql.NullString `db:"kcs_status"`
	HostInterfaceStatus  sql.NullString `db:"host_interface_status"`
	IPMIUsername         sql.NullString `db:"ipmi_username"`
	IPMIPasswordSet      bool           `db:"ipmi_password_set"`
	BIOSPasswordSet      bool           `db:"bios_password_set"`
	RedfishAvailable     bool           `db:"redfish_available"`
	CreatedAt            sql.NullTime   `db:"created_at"`
	UpdatedAt            sql.NullTime   `db:"updated_at"`
	LastSeen             sql.NullTime   `db:"last_seen"`
	CPUModel             sql.NullString `db:"cpu_model"`
	MemoryGB             sql.NullInt64  `db:"memory_gb"`
	StorageInfo          sql.NullString `db:"storage_info"`
	NetworkInterfaces    sql.NullString `db:"network_interfaces"`
	FirmwareVersion      sql.NullString `db:"firmware_version"`
	RackLocation         sql.NullString `db:"rack_location"`
	Tags                 sql.NullString `db:"tags"`
	PowerState           sql.NullString `db:"power_state"`
	LastPowerChange      sql.NullTime   `db:"last_power_change"`
	DeviceType           sql.NullString `db:"device_type"`
	ServerType           sql.NullString `db:"server_type"`
	CommissioningStatus  sql.NullString `db:"commissioning_status"`
	WorkflowID           sql.NullString `db:"workflow_id"`
	WorkflowStatus       sql.NullString `db:"workflow_status"`
	LastWorkflowRun      sql.NullTime   `db:"last_workflow_run"`
	BIOSConfigApplied    bool           `db:"bios_config_applied"`
	BIOSConfigVersion    sql.NullString `db:"bios_config_version"`
	IPMIConfigured       bool           `db:"ipmi_configured"`
	SSHAccessible        bool           `db:"ssh_accessible"`
	HardwareValidated    bool           `db:"hardware_validated"`
	ProvisioningTarget   sql.NullString `db:"provisioning_target"`
	AssignedRole         sql.NullString `db:"assigned_role"`
	DeploymentStatus     sql.NullString `db:"deployment_status"`
	Notes                sql.NullString `db:"notes"`
}

// Field is a closed enum of updatable server columns, replacing the
// source's "update any column by name" pattern (spec.md §9 redesign note).
// Unknown fields are tolerated for forward compatibility: UpdateServer
// silently ignores them rather than erroring, per spec.md §4.1.
type Field string

const (
	FieldStatusName          Field = "status_name"
	FieldIsReady             Field = "is_ready"
	FieldServerModel         Field = "server_model"
	FieldIPAddress           Field = "ip_address"
	FieldIPAddressWorks      Field = "ip_address_works"
	FieldIPMIAddress         Field = "ipmi_address"
	FieldIPMIAddressWorks    Field = "ipmi_address_works"
	FieldKCSStatus           Field = "kcs_status"
	FieldHostInterfaceStatus Field = "host_interface_status"
	FieldIPMIUsername        Field = "ipmi_username"
	FieldIPMIPasswordSet     Field = "ipmi_password_set"
	FieldBIOSPasswordSet     Field = "bios_password_set"
	FieldRedfishAvailable    Field = "redfish_available"
	FieldLastSeen            Field = "last_seen"
	FieldCPUModel            Field = "cpu_model"
	FieldMemoryGB            Field = "memory_gb"
	FieldStorageInfo         Field = "storage_info"
	FieldNetworkInterfaces   Field = "network_interfaces"
	FieldFirmwareVersion     Field = "firmware_version"
	FieldRackLocation        Field = "rack_location"
	FieldTags                Field = "tags"
	FieldPowerState          Field = "power_state"
	FieldLastPowerChange     Field = "last_power_change"
	FieldDeviceType          Field = "device_type"
	FieldServerType          Field = "server_type"
	FieldCommissioningStatus Field = "commissioning_status"
	FieldWorkflowID          Field = "workflow_id"
	FieldWorkflowStatus      Field = "workflow_status"
	FieldLastWorkflowRun     Field = "last_workflow_run"
	FieldBIOSConfigApplied   Field = "bios_config_applied"
	FieldBIOSConfigVersion   Field = "bios_config_version"
	FieldIPMIConfigured      Field = "ipmi_configured"
	FieldSSHAccessible       Field = "ssh_accessible"
	FieldHardwareValidated   Field = "hardware_validated"
	FieldProvisioningTarget  Field = "provisioning_target"
	FieldAssignedRole        Field = "assigned_role"
	FieldDeploymentStatus    Field = "deployment_status"
	FieldNotes               Field = "notes"
)

// updatableColumns whitelists the columns UpdateServer is allowed to touch.
// Using the enum value directly as the column name is safe only because the
// enum is closed and every member above is reviewed against the schema; an
// unrecognized Field value never reaches the SQL string.
var updatableColumns = map[Field]struct{}{
	FieldStatusName: {}, FieldIsReady: {}, FieldServerModel: {}, FieldIPAddress: {},
	FieldIPAddressWorks: {}, FieldIPMIAddress: {}, FieldIPMIAddressWorks: {}, FieldKCSStatus: {},
	FieldHostInterfaceStatus: {}, FieldIPMIUsername: {}, FieldIPMIPasswordSet: {}, FieldBIOSPasswordSet: {},
	FieldRedfishAvailable: {}, FieldLastSeen: {}, FieldCPUModel: {}, FieldMemoryGB: {},
	FieldStorageInfo: {}, FieldNetworkInterfaces: {}, FieldFirmwareVersion: {}, FieldRackLocation: {},
	FieldTags: {}, FieldPowerState: {}, FieldLastPowerChange: {}, FieldDeviceType: {},
	FieldServerType: {}, FieldCommissioningStatus: {}, FieldWorkflowID: {}, FieldWorkflowStatus: {},
	FieldLastWorkflowRun: {}, FieldBIOSConfigApplied: {}, FieldBIOSConfigVersion: {}, FieldIPMIConfigured: {},
	FieldSSHAccessible: {}, FieldHardwareValidated: {}, FieldProvisioningTarget: {}, FieldAssignedRole: {},
	FieldDeploymentStatus: {}, FieldNotes: {},
}

// EnsureServer idempotently creates a row for serverID if one does not
// already exist.
func (s *Store) EnsureServer(ctx context.Context, serverID string) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO servers (server_id) VALUES (?)
		ON CONFLICT(server_id) DO NOTHING`, serverID)
	if err != nil {
		return fmt.Errorf("ensure_server %s: %w", serverID, err)
	}
	return nil
}

// UpdateServer updates a single field by its typed enum name. An unknown
// Field is silently ignored (forward compatibility, spec.md §4.1) rather
// than returning an error; persistence errors are logged and swallowed so a
// transient store outage never aborts a workflow (spec.md §4.1/§7).
func (s *Store) UpdateServer(ctx context.Context, serverID string, field Field, value any) {
	if _, ok := updatableColumns[field]; !ok {
		return
	}
	query := fmt.Sprintf(`UPDATE servers SET %s = ? WHERE server_id = ?`, string(field)) //nolint:gosec // field is enum-whitelisted above
	if _, err := s.db.ExecContext(ctx, query, value, serverID); err != nil {
		s.logPersistenceError("update_server:"+string(field), serverID, err)
	}
}

// GetServer returns the full record, or (nil, provisionerrors-style
// ErrNoRows) if absent.
func (s *Store) GetServer(ctx context.Context, serverID string) (*Server, error) {
	var rec Server
	err := s.db.GetContext(ctx, &rec, `SELECT * FROM servers WHERE server_id = ?`, serverID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("get_server %s: %w", serverID, err)
	}
	return &rec, nil
}

// ListServersWithWorkingIP returns every server whose in-band IP has been
// verified reachable, for batch tooling (spec.md §4.1).
func (s *Store) ListServersWithWorkingIP(ctx context.Context) ([]Server, error) {
	var recs []Server
	err := s.db.SelectContext(ctx, &recs, `SELECT * FROM servers WHERE ip_address_works = 1`)
	if err != nil {
		return nil, fmt.Errorf("list_servers_with_working_ip: %w", err)
	}
	return recs, nil
}
