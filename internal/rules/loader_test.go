package rules

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseRulesYAMLForms(t *testing.T) {
	tests := []struct {
		name string
		doc  string
		want []string
	}{
		{"rules key", "rules:\n  - rule_name: a\n  - rule_name: b\n", []string{"a", "b"}},
		{"bare list", "- rule_name: a\n", []string{"a"}},
		{"json document", `{"rules": [{"rule_name": "j"}]}`, []string{"j"}},
		{"empty", "", nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			inputs, err := ParseRulesYAML([]byte(tt.doc))
			require.NoError(t, err)
			var names []string
			for _, in := range inputs {
				names = append(names, in.Name)
			}
			assert.Equal(t, tt.want, names)
		})
	}
}

func TestParseRulesYAMLReportsFieldError(t *testing.T) {
	_, err := ParseRulesYAML([]byte("rules:\n  - rule_name: a\n    threshold: abc\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "abc")
	assert.NotContains(t, err.Error(), "!!map")
}

func TestParseRulesYAMLRejectsScalar(t *testing.T) {
	_, err := ParseRulesYAML([]byte("just text"))
	assert.Error(t, err)
}
