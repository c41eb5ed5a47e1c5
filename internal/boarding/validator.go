// Package boarding is the boarding validator (C12): a dependency-ordered
// pipeline of category handlers that checks a freshly-provisioned server
// against the boarding requirements document (spec.md §4.12), grounded on
// original_source/src/hwautomation/validation/boarding_validator.py's
// category/ValidationStatus/ValidationResult shape.
package boarding

import (
	"context"

	"github.com/tinkerbell/hwprovisiond/internal/workflow"
)

// Status is the closed set of per-check outcomes.
type Status string

const (
	StatusPass    Status = "pass"
	StatusFail    Status = "fail"
	StatusWarning Status = "warning"
	StatusSkip    Status = "skip"
)

// Category is the closed, dependency-ordered set of boarding-validation
// categories (spec.md §4.12).
type Category string

const (
	CategoryConnectivity  Category = "connectivity"
	CategoryHardware      Category = "hardware"
	CategoryIPMI          Category = "ipmi"
	CategoryBIOS          Category = "bios"
	CategoryNetwork       Category = "network"
	CategoryConfiguration Category = "configuration"
)

// order fixes the dependency chain named in spec.md §4.12.
var order = []Category{
	CategoryConnectivity,
	CategoryHardware,
	CategoryIPMI,
	CategoryBIOS,
	CategoryNetwork,
	CategoryConfiguration,
}

// Result is one named check's outcome, mirroring the original's
// ValidationResult dataclass.
type Result struct {
	CheckName   string
	Status      Status
	Message     string
	Details     map[string]any
	Remediation string
}

// Handler validates one category. GetRequiredPrerequisites names the
// categories that must have at least one passing check before this handler
// runs at all (spec.md §4.12: "coordinator skips with synthetic result if
// prerequisites unmet").
type Handler interface {
	Category() Category
	GetRequiredPrerequisites() []Category
	Validate(ctx context.Context, wfCtx *workflow.Context) []Result
}

// Report is the complete boarding-validation outcome for one server.
type Report struct {
	ServerID      string
	DeviceType    string
	OverallStatus Status
	Results       []Result
}

// Validate runs every handler in spec.md §4.12's dependency order, skipping
// a handler (with a single synthetic skip Result) when none of its required
// prerequisite categories produced a passing check.
func Validate(ctx context.Context, wfCtx *workflow.Context, handlers map[Category]Handler) Report {
	report := Report{ServerID: wfCtx.ServerID, DeviceType: wfCtx.DeviceType}
	passedCategories := make(map[Category]bool)

	for _, cat := range order {
		handler, ok := handlers[cat]
		if !ok {
			continue
		}

		if prereqs := handler.GetRequiredPrerequisites(); len(prereqs) > 0 && !anyPassed(prereqs, passedCategories) {
			report.Results = append(report.Results, Result{
				CheckName: string(cat),
				Status:    StatusSkip,
				Message:   skipMessage(cat),
			})
			continue
		}

		results := handler.Validate(ctx, wfCtx)
		report.Results = append(report.Results, results...)
		if anyStatus(results, StatusPass) {
			passedCategories[cat] = true
		}
	}

	report.OverallStatus = aggregate(report.Results)
	return report
}

// skipMessage names the one literal case spec.md §8's scenario 6 requires
// verbatim; other categories get a generic prerequisite-skip message.
func skipMessage(cat Category) string {
	if cat == CategoryIPMI {
		return "Skipping extended IPMI tests due to authentication failure"
	}
	return "skipped: required prerequisite category did not pass"
}

func anyPassed(categories []Category, passed map[Category]bool) bool {
	for _, c := range categories {
		if passed[c] {
			return true
		}
	}
	return false
}

func anyStatus(results []Result, want Status) bool {
	for _, r := range results {
		if r.Status == want {
			return true
		}
	}
	return false
}

// aggregate implements the original's update_summary rule: any fail wins,
// else any warning wins, else pass.
func aggregate(results []Result) Status {
	hasWarning := false
	for _, r := range results {
		if r.Status == StatusFail {
			return StatusFail
		}
		if r.Status == StatusWarning {
			hasWarning = true
		}
	}
	if hasWarning {
		return StatusWarning
	}
	return StatusPass
}
