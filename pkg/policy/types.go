package policy

import (
	"time"
)

// Severity represents the severity level of a policy violation.
type Severity string

const (
	// SeverityInfo is informational only.
	SeverityInfo Severity = "info"
	// SeverityWarning flags a suspicious input without blocking evaluation.
	SeverityWarning Severity = "warning"
	// SeverityError blocks evaluation.
	SeverityError Severity = "error"
	// SeverityCritical blocks evaluation.
	SeverityCritical Severity = "critical"
)

// Blocking reports whether a violation of this severity denies the input
// set.
func (s Severity) Blocking() bool {
	return s == SeverityError || s == SeverityCritical
}

func (s Severity) valid() bool {
	switch s {
	case SeverityInfo, SeverityWarning, SeverityError, SeverityCritical:
		return true
	}
	return false
}

// Policy is a rego module checked against model inputs. The module must
// define a "deny" set in its package; each member is either a message string
// or an object with "message", and optionally "severity" and "input".
type Policy struct {
	// Name uniquely identifies the policy.
	Name string `json:"name"`

	// Description explains what the policy checks.
	Description string `json:"description,omitempty"`

	// Rego is the policy source.
	Rego string `json:"rego"`

	// Severity applies to violations that do not carry their own.
	Severity Severity `json:"severity"`

	// Enabled indicates whether the policy is checked.
	Enabled bool `json:"enabled"`

	// Source is the file the policy was loaded from, empty for built-ins.
	Source string `json:"source,omitempty"`

	// LoadedAt is when the policy was read.
	LoadedAt time.Time `json:"loaded_at"`
}

// Violation is one denial reported by a policy.
type Violation struct {
	// Policy is the name of the policy that reported the violation.
	Policy string `json:"policy"`

	// Input is the input name the violation refers to, if any.
	Input string `json:"input,omitempty"`

	// Message describes the violation.
	Message string `json:"message"`

	// Severity is the severity of the violation.
	Severity Severity `json:"severity"`
}

// Result is the outcome of checking an input set.
type Result struct {
	// Allowed is false when any violation has a blocking severity.
	Allowed bool `json:"allowed"`

	// Violations are the blocking violations.
	Violations []Violation `json:"violations,omitempty"`

	// Warnings are the non-blocking violations.
	Warnings []Violation `json:"warnings,omitempty"`

	// EvaluatedPolicies lists the policies that were checked.
	EvaluatedPolicies []string `json:"evaluated_policies"`

	// Duration is how long the check took.
	Duration time.Duration `json:"duration"`
}

// Input is the document exposed to rego as "input". Quantities appear as
// {"value": number, "unit": string} objects and plain numbers as numbers.
type Input struct {
	Output string                 `json:"output"`
	Inputs map[string]interface{} `json:"inputs"`
}
