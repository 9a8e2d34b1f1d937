package model

import "strings"

type ConditionType string

const (
	ConditionSubstring ConditionType = "substring"
	ConditionRegex     ConditionType = "regex"
	ConditionExact     ConditionType = "exact"
)

type Severity string

const (
	SeverityLow      Severity = "low"
	SeverityMedium   Severity = "medium"
	SeverityHigh     Severity = "high"
	SeverityCritical Severity = "critical"
)

// ParseSeverity normalizes case and surrounding whitespace.
func ParseSeverity(s string) Severity {
	return Severity(strings.ToLower(strings.TrimSpace(s)))
}

// Rank orders severities from low (1) to critical (4). Unknown values rank 0.
func (s Severity) Rank() int {
	switch s {
	case SeverityLow:
		return 1
	case SeverityMedium:
		return 2
	case SeverityHigh:
		return 3
	case SeverityCritical:
		return 4
	}
	return 0
}

const (
	DefaultThreshold  = 1
	DefaultTimeWindow = 60
	DefaultPriority   = 5
)

// Rule is a detection definition as held by the rule store.
type Rule struct {
	ID            int           `yaml:"id" json:"id"`
	Name          string        `yaml:"rule_name" json:"rule_name"`
	ConditionType ConditionType `yaml:"condition_type" json:"condition_type"`
	Condition     string        `yaml:"condition,omitempty" json:"condition,omitempty"`
	Pattern       string        `yaml:"pattern,omitempty" json:"pattern,omitempty"`
	Severity      Severity      `yaml:"severity" json:"severity"`
	Threshold     int           `yaml:"threshold" json:"threshold"`
	TimeWindow    int           `yaml:"time_window" json:"time_window"`
	Enabled       bool          `yaml:"enabled" json:"enabled"`
	Priority      int           `yaml:"priority" json:"priority"`
	Description   *string       `yaml:"description,omitempty" json:"description,omitempty"`
	LoadError     string        `yaml:"-" json:"load_error,omitempty"`
}

// RuleInput is a rule record as found in a rule file or a create request.
// Nil fields take their defaults.
type RuleInput struct {
	Name          string  `yaml:"rule_name" json:"rule_name" validate:"required,max=255"`
	ConditionType string  `yaml:"condition_type" json:"condition_type" validate:"omitempty,oneof=substring regex exact"`
	Condition     string  `yaml:"condition" json:"condition"`
	Pattern       string  `yaml:"pattern" json:"pattern"`
	Severity      string  `yaml:"severity" json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Threshold     *int    `yaml:"threshold" json:"threshold" validate:"omitempty,min=1"`
	TimeWindow    *int    `yaml:"time_window" json:"time_window" validate:"omitempty,min=1"`
	Enabled       *bool   `yaml:"enabled" json:"enabled"`
	Priority      *int    `yaml:"priority" json:"priority"`
	Description   *string `yaml:"description" json:"description"`
}

// RulePatch carries a partial update. Only non-nil fields are applied.
type RulePatch struct {
	Name          *string `json:"rule_name" validate:"omitempty,min=1,max=255"`
	ConditionType *string `json:"condition_type" validate:"omitempty,oneof=substring regex exact"`
	Condition     *string `json:"condition"`
	Pattern       *string `json:"pattern"`
	Severity      *string `json:"severity" validate:"omitempty,oneof=low medium high critical"`
	Threshold     *int    `json:"threshold" validate:"omitempty,min=1"`
	TimeWindow    *int    `json:"time_window" validate:"omitempty,min=1"`
	Enabled       *bool   `json:"enabled"`
	Priority      *int    `json:"priority"`
	Description   *string `json:"description"`
}

// Normalize lowercases the enumerated fields so validation accepts "HIGH" or "Regex".
func (in *RuleInput) Normalize() {
	in.Name = strings.TrimSpace(in.Name)
	in.ConditionType = strings.ToLower(strings.TrimSpace(in.ConditionType))
	in.Severity = string(ParseSeverity(in.Severity))
}

func (p *RulePatch) Normalize() {
	if p.ConditionType != nil {
		ct := strings.ToLower(strings.TrimSpace(*p.ConditionType))
		p.ConditionType = &ct
	}
	if p.Severity != nil {
		sev := string(ParseSeverity(*p.Severity))
		p.Severity = &sev
	}
	if p.Name != nil {
		name := strings.TrimSpace(*p.Name)
		p.Name = &name
	}
}

// ToRule applies defaults. The caller validates the input first.
func (in RuleInput) ToRule() Rule {
	r := Rule{
		Name:          in.Name,
		ConditionType: ConditionType(in.ConditionType),
		Condition:     in.Condition,
		Pattern:       in.Pattern,
		Severity:      Severity(in.Severity),
		Threshold:     DefaultThreshold,
		TimeWindow:    DefaultTimeWindow,
		Enabled:       true,
		Priority:      DefaultPriority,
	}
	if r.ConditionType == "" {
		r.ConditionType = ConditionSubstring
	}
	if r.Severity == "" {
		r.Severity = SeverityMedium
	}
	if in.Threshold != nil {
		r.Threshold = *in.Threshold
	}
	if in.TimeWindow != nil {
		r.TimeWindow = *in.TimeWindow
	}
	if in.Enabled != nil {
		r.Enabled = *in.Enabled
	}
	if in.Priority != nil {
		r.Priority = *in.Priority
	}
	if in.Description != nil {
		d := *in.Description
		r.Description = &d
	}
	return r
}

// Apply returns a copy of r with the patch applied.
func (p RulePatch) Apply(r Rule) Rule {
	if p.Name != nil {
		r.Name = *p.Name
	}
	if p.ConditionType != nil {
		r.ConditionType = ConditionType(*p.ConditionType)
	}
	if p.Condition != nil {
		r.Condition = *p.Condition
	}
	if p.Pattern != nil {
		r.Pattern = *p.Pattern
	}
	if p.Severity != nil {
		r.Severity = Severity(*p.Severity)
	}
	if p.Threshold != nil {
		r.Threshold = *p.Threshold
	}
	if p.TimeWindow != nil {
		r.TimeWindow = *p.TimeWindow
	}
	if p.Enabled != nil {
		r.Enabled = *p.Enabled
	}
	if p.Priority != nil {
		r.Priority = *p.Priority
	}
	if p.Description != nil {
		d := *p.Description
		r.Description = &d
	}
	return r
}
