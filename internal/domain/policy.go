package domain

import (
	"fmt"
	"strings"
	"time"
)

// Priority enumerates SLA priority tiers, lowest to highest.
type Priority string

const (
	PriorityLow      Priority = "low"
	PriorityMedium   Priority = "medium"
	PriorityHigh     Priority = "high"
	PriorityCritical Priority = "critical"
)

// ParsePriority normalizes a raw priority value. Unknown values map to medium.
func ParsePriority(raw string) Priority {
	switch strings.ToLower(strings.TrimSpace(raw)) {
	case "low":
		return PriorityLow
	case "medium":
		return PriorityMedium
	case "high":
		return PriorityHigh
	case "critical", "urgent":
		return PriorityCritical
	default:
		return PriorityMedium
	}
}

// Rank orders priorities for comparisons.
func (p Priority) Rank() int {
	switch p {
	case PriorityLow:
		return 0
	case PriorityMedium:
		return 1
	case PriorityHigh:
		return 2
	case PriorityCritical:
		return 3
	default:
		return 1
	}
}

// Escalated returns the next tier up. Critical stays critical.
func (p Priority) Escalated() Priority {
	switch p {
	case PriorityLow:
		return PriorityMedium
	case PriorityMedium:
		return PriorityHigh
	case PriorityHigh:
		return PriorityCritical
	default:
		return PriorityCritical
	}
}

// Severity enumerates breach alert severities.
type Severity string

const (
	SeverityInfo     Severity = "info"
	SeverityWarning  Severity = "warning"
	SeverityError    Severity = "error"
	SeverityCritical Severity = "critical"
)

// Rank orders severities for threshold checks.
func (s Severity) Rank() int {
	switch s {
	case SeverityInfo:
		return 0
	case SeverityWarning:
		return 1
	case SeverityError:
		return 2
	case SeverityCritical:
		return 3
	default:
		return 0
	}
}

// AtLeast reports whether s meets the given minimum severity.
func (s Severity) AtLeast(min Severity) bool {
	return s.Rank() >= min.Rank()
}

// EscalationRule fires a set of actions once per incident after a delay.
type EscalationRule struct {
	ID                   string
	Name                 string
	TriggerAfterMinutes  int
	EscalateToRole       string
	EscalateToUsers      []string
	NotificationTemplate string
	Actions              []ActionKind
	MinSeverity          Severity
	Active               bool
}

// Validate checks rule invariants.
func (r EscalationRule) Validate() error {
	if r.Name == "" {
		return fmt.Errorf("escalation rule requires a name")
	}
	if r.TriggerAfterMinutes < 0 {
		return fmt.Errorf("escalation rule %q: trigger delay must not be negative", r.Name)
	}
	return nil
}

// TriggerAfter returns the rule delay as a duration.
func (r EscalationRule) TriggerAfter() time.Duration {
	return time.Duration(r.TriggerAfterMinutes) * time.Minute
}

// AlertRule describes a monitoring alert attached to a policy.
type AlertRule struct {
	ID                   string
	Name                 string
	Condition            string
	Severity             Severity
	NotificationChannels []string
	Active               bool
	CooldownMinutes      int
}

// ServiceLevelPolicy defines response/resolution targets for one priority tier.
type ServiceLevelPolicy struct {
	ID                    string
	Name                  string
	Description           string
	Priority              Priority
	ResponseTargetMinutes int
	ResolutionTargetHours int
	BusinessHoursOnly     bool
	EscalationRules       []EscalationRule
	AlertRules            []AlertRule
	Active                bool
	CreatedAt             time.Time
	UpdatedAt             time.Time
}

// Validate enforces policy invariants: both targets positive, response target
// strictly below resolution target when expressed in the same unit.
func (p *ServiceLevelPolicy) Validate() error {
	if p.ID == "" {
		return fmt.Errorf("policy requires an id")
	}
	if p.ResponseTargetMinutes <= 0 {
		return fmt.Errorf("policy %s: response target must be positive", p.ID)
	}
	if p.ResolutionTargetHours <= 0 {
		return fmt.Errorf("policy %s: resolution target must be positive", p.ID)
	}
	if p.ResponseTargetMinutes >= p.ResolutionTargetHours*60 {
		return fmt.Errorf("policy %s: response target must be less than resolution target", p.ID)
	}
	for _, rule := range p.EscalationRules {
		if err := rule.Validate(); err != nil {
			return fmt.Errorf("policy %s: %w", p.ID, err)
		}
	}
	return nil
}

// ResponseTarget returns the response target as a duration.
func (p *ServiceLevelPolicy) ResponseTarget() time.Duration {
	return time.Duration(p.ResponseTargetMinutes) * time.Minute
}

// ResolutionTarget returns the resolution target as a duration.
func (p *ServiceLevelPolicy) ResolutionTarget() time.Duration {
	return time.Duration(p.ResolutionTargetHours) * time.Hour
}
