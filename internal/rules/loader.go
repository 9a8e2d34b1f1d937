package rules

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"logsentry/internal/model"

	"gopkg.in/yaml.v3"
)

type ruleFile struct {
	Rules []model.RuleInput `yaml:"rules" json:"rules"`
}

// ParseRulesJSON parses a JSON rule document: {"rules": [...]} or a bare list.
func ParseRulesJSON(data []byte) ([]model.RuleInput, error) {
	trimmed := bytes.TrimSpace(data)
	if len(trimmed) > 0 && trimmed[0] == '[' {
		var list []model.RuleInput
		if err := json.Unmarshal(trimmed, &list); err != nil {
			return nil, fmt.Errorf("failed to parse rules file: %w", err)
		}
		return list, nil
	}

	var doc ruleFile
	if err := json.Unmarshal(trimmed, &doc); err != nil {
		return nil, fmt.Errorf("failed to parse rules file: %w", err)
	}
	return doc.Rules, nil
}

// ParseRulesYAML parses a YAML rule document: a top-level "rules" key or a bare list.
func ParseRulesYAML(data []byte) ([]model.RuleInput, error) {
	var root yaml.Node
	if err := yaml.Unmarshal(data, &root); err != nil {
		return nil, fmt.Errorf("failed to parse YAML rules file: %w", err)
	}
	if len(root.Content) == 0 {
		return nil, nil
	}

	node := root.Content[0]
	switch node.Kind {
	case yaml.SequenceNode:
		var list []model.RuleInput
		if err := node.Decode(&list); err != nil {
			return nil, fmt.Errorf("failed to parse YAML rules file: %w", err)
		}
		return list, nil
	case yaml.MappingNode:
		var doc ruleFile
		if err := node.Decode(&doc); err != nil {
			return nil, fmt.Errorf("failed to parse YAML rules file: %w", err)
		}
		return doc.Rules, nil
	default:
		return nil, fmt.Errorf("failed to parse YAML rules file: expected a rules mapping or a list at line %d", node.Line)
	}
}

// ReadRules parses a rule document from r. YAML is a superset of JSON so
// both formats are accepted.
func ReadRules(r io.Reader) ([]model.RuleInput, error) {
	data, err := io.ReadAll(r)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules: %w", err)
	}
	return ParseRulesYAML(data)
}

// ReadRulesFile reads and parses a rule file.
func ReadRulesFile(filename string) ([]model.RuleInput, error) {
	if filename == "" {
		return nil, fmt.Errorf("rules file path is empty")
	}

	data, err := os.ReadFile(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to read rules file: %w", err)
	}
	return ParseRules(filename, data)
}

// ParseRules picks the parser from the file extension, defaulting to YAML.
func ParseRules(filename string, data []byte) ([]model.RuleInput, error) {
	switch strings.ToLower(filepath.Ext(filename)) {
	case ".json":
		return ParseRulesJSON(data)
	default:
		return ParseRulesYAML(data)
	}
}
