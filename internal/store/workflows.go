package store

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"time"
)

// WorkflowStatus is the closed set of terminal/non-terminal workflow
// statuses named in spec.md §3.
type WorkflowStatus string

const (
	WorkflowPending   WorkflowStatus = "pending"
	WorkflowRunning   WorkflowStatus = "running"
	WorkflowSuccess   WorkflowStatus = "success"
	WorkflowFailed    WorkflowStatus = "failed"
	WorkflowCancelled WorkflowStatus = "cancelled"
)

// StepProgress is one entry of the workflow_history.metadata JSON blob,
// resolving SPEC_FULL's Open Question #4 decision on that blob's schema.
type StepProgress struct {
	Name        string    `json:"name"`
	Status      string    `json:"status"`
	StartedAt   time.Time `json:"started_at,omitempty"`
	CompletedAt time.Time `json:"completed_at,omitempty"`
	SubTasks    []string  `json:"sub_tasks,omitempty"`
	Error       string    `json:"error,omitempty"`
}

// WorkflowMetadata is the canonical shape persisted in
// workflow_history.metadata.
type WorkflowMetadata struct {
	SchemaVersion int            `json:"schema_version"`
	Steps         []StepProgress `json:"steps"`
}

// WorkflowRecord is the typed workflow_history row.
type WorkflowRecord struct {
	ID             int64          `db:"id"`
	WorkflowID     string         `db:"workflow_id"`
	ServerID       string         `db:"server_id"`
	DeviceType     sql.NullString `db:"device_type"`
	Status         string         `db:"status"`
	StartedAt      time.Time      `db:"started_at"`
	CompletedAt    sql.NullTime   `db:"completed_at"`
	StepsCompleted int            `db:"steps_completed"`
	TotalSteps     int            `db:"total_steps"`
	ErrorMessage   sql.NullString `db:"error_message"`
	Metadata       sql.NullString `db:"metadata"`
}

// RecordWorkflowStart inserts the workflow_history row marking a workflow as
// running, and links it from the server row (spec.md §3 invariant 2).
func (s *Store) RecordWorkflowStart(ctx context.Context, workflowID, serverID, deviceType string, totalSteps int) error {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO workflow_history (workflow_id, server_id, device_type, status, total_steps)
		VALUES (?, ?, ?, ?, ?)`,
		workflowID, serverID, deviceType, string(WorkflowRunning), totalSteps)
	if err != nil {
		return fmt.Errorf("record_workflow_start %s: %w", workflowID, err)
	}
	s.UpdateServer(ctx, serverID, FieldWorkflowID, workflowID)
	s.UpdateServer(ctx, serverID, FieldWorkflowStatus, string(WorkflowRunning))
	return nil
}

// UpdateWorkflowProgress persists steps-completed at a step boundary.
// Failures here are logged, never promoted (spec.md §4.1).
func (s *Store) UpdateWorkflowProgress(ctx context.Context, workflowID string, stepsCompleted int, metadata *WorkflowMetadata) {
	var metaJSON []byte
	if metadata != nil {
		var err error
		metaJSON, err = json.Marshal(metadata)
		if err != nil {
			s.logPersistenceError("update_workflow_progress:marshal", workflowID, err)
			return
		}
	}
	_, err := s.db.ExecContext(ctx, `
		UPDATE workflow_history SET steps_completed = ?, metadata = ? WHERE workflow_id = ?`,
		stepsCompleted, string(metaJSON), workflowID)
	if err != nil {
		s.logPersistenceError("update_workflow_progress", workflowID, err)
	}
}

// RecordWorkflowEnd marks the terminal status and, on failure, records the
// best-known server status_name as "Error: <message>" (spec.md §7).
func (s *Store) RecordWorkflowEnd(ctx context.Context, workflowID, serverID string, status WorkflowStatus, errMsg string) error {
	_, err := s.db.ExecContext(ctx, `
		UPDATE workflow_history SET status = ?, completed_at = ?, error_message = ? WHERE workflow_id = ?`,
		string(status), time.Now().UTC(), nullableString(errMsg), workflowID)
	if err != nil {
		return fmt.Errorf("record_workflow_end %s: %w", workflowID, err)
	}
	s.UpdateServer(ctx, serverID, FieldWorkflowStatus, string(status))
	if status == WorkflowFailed && errMsg != "" {
		s.UpdateServer(ctx, serverID, FieldStatusName, fmt.Sprintf("Error: %s", errMsg))
	}
	return nil
}

// GetWorkflow returns one workflow_history row by workflow id. This, and
// ListWorkflows below, supplement spec.md's C1 operation list with the
// history-query surface named in original_source's workflow_manager.py
// (SPEC_FULL.md's supplemented-features section).
func (s *Store) GetWorkflow(ctx context.Context, workflowID string) (*WorkflowRecord, error) {
	var rec WorkflowRecord
	err := s.db.GetContext(ctx, &rec, `SELECT * FROM workflow_history WHERE workflow_id = ?`, workflowID)
	if errors.Is(err, sql.ErrNoRows) {
		return nil, sql.ErrNoRows
	}
	if err != nil {
		return nil, fmt.Errorf("get_workflow %s: %w", workflowID, err)
	}
	return &rec, nil
}

// ListWorkflows returns workflow_history rows for a server, most recent
// first.
func (s *Store) ListWorkflows(ctx context.Context, serverID string) ([]WorkflowRecord, error) {
	var recs []WorkflowRecord
	err := s.db.SelectContext(ctx, &recs, `
		SELECT * FROM workflow_history WHERE server_id = ? ORDER BY started_at DESC`, serverID)
	if err != nil {
		return nil, fmt.Errorf("list_workflows %s: %w", serverID, err)
	}
	return recs, nil
}

// RecordPowerStateChange appends an entry to power_state_history.
func (s *Store) RecordPowerStateChange(ctx context.Context, serverID, oldState, newState, changedBy string) {
	_, err := s.db.ExecContext(ctx, `
		INSERT INTO power_state_history (server_id, old_state, new_state, changed_by) VALUES (?, ?, ?, ?)`,
		serverID, oldState, newState, changedBy)
	if err != nil {
		s.logPersistenceError("record_power_state_change", serverID, err)
	}
}

func nullableString(s string) sql.NullString {
	if s == "" {
		return sql.NullString{}
	}
	return sql.NullString{String: s, Valid: true}
}
