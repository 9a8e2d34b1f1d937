package rules

import (
	"bytes"
	"fmt"
	"strings"
	"text/template"
	"time"

	"logsentry/internal/model"

	"github.com/dlclark/regexp2"
)

const DefaultRegexTimeout = 100 * time.Millisecond

// compiledRule is an immutable rule plus everything precomputed at load time.
// Stores swap whole values; a Check holding an older pointer keeps a
// consistent view.
type compiledRule struct {
	rule      model.Rule
	epoch     uint64
	condition string
	re        *regexp2.Regexp
	descTmpl  *template.Template
}

type descriptionData struct {
	RuleName string
	SourceIP string
	Message  string
	Severity model.Severity
}

func compileRule(r model.Rule, epoch uint64, regexTimeout time.Duration) (*compiledRule, error) {
	cr := &compiledRule{
		rule:      r,
		epoch:     epoch,
		condition: strings.ToLower(r.Condition),
	}

	switch r.ConditionType {
	case model.ConditionRegex:
		if r.Pattern == "" {
			return cr, fmt.Errorf("regex rule %q has an empty pattern", r.Name)
		}
		re, err := regexp2.Compile(r.Pattern, regexp2.IgnoreCase)
		if err != nil {
			return cr, fmt.Errorf("invalid regex pattern for rule %q: %w", r.Name, err)
		}
		if regexTimeout > 0 {
			re.MatchTimeout = regexTimeout
		}
		cr.re = re
	case model.ConditionSubstring, model.ConditionExact:
	default:
		return cr, fmt.Errorf("unknown condition type %q for rule %q", r.ConditionType, r.Name)
	}

	if r.Description != nil && strings.Contains(*r.Description, "{{") {
		tmpl, err := template.New(r.Name).Option("missingkey=zero").Parse(*r.Description)
		if err != nil {
			return cr, fmt.Errorf("invalid description template for rule %q: %w", r.Name, err)
		}
		cr.descTmpl = tmpl
	}

	return cr, nil
}

// matches expects the message already lowercased.
func (cr *compiledRule) matches(lowered string) (bool, error) {
	switch cr.rule.ConditionType {
	case model.ConditionSubstring:
		return strings.Contains(lowered, cr.condition), nil
	case model.ConditionExact:
		return lowered == cr.condition, nil
	case model.ConditionRegex:
		if cr.re == nil {
			return false, nil
		}
		return cr.re.MatchString(lowered)
	}
	return false, nil
}

// describe renders a template description as-is. Otherwise the rule's
// description, or a default when it has none, is suffixed with the source.
// An explicitly empty description is kept.
func (cr *compiledRule) describe(ev model.LogEvent) string {
	desc, ok := cr.render(ev)
	if !ok {
		base := fmt.Sprintf("Rule '%s' triggered", cr.rule.Name)
		if cr.rule.Description != nil && cr.descTmpl == nil {
			base = *cr.rule.Description
		}
		desc = fmt.Sprintf("%s from %s", base, ev.SourceIP)
	}

	if cr.rule.Threshold > 1 {
		desc += fmt.Sprintf(" (%d events in %ds)", cr.rule.Threshold, cr.rule.TimeWindow)
	}
	return desc
}

func (cr *compiledRule) render(ev model.LogEvent) (string, bool) {
	if cr.descTmpl == nil {
		return "", false
	}
	var buf bytes.Buffer
	err := cr.descTmpl.Execute(&buf, descriptionData{
		RuleName: cr.rule.Name,
		SourceIP: ev.SourceIP,
		Message:  ev.Message,
		Severity: cr.rule.Severity,
	})
	if err != nil {
		return "", false
	}
	return buf.String(), true
}
