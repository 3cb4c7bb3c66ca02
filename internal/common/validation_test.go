package common

import (
	"testing"

	"missioncontrol/internal/errors"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var configuredFormats = []string{"json", "text", "markdown", "yaml"}

func TestValidateOutputFormat(t *testing.T) {
	tests := []struct {
		name      string
		format    string
		supported []string
		wantErr   string
	}{
		{name: "json", format: "json", supported: configuredFormats},
		{name: "markdown", format: "markdown", supported: configuredFormats},
		{name: "yaml", format: "yaml", supported: configuredFormats},
		{
			name:      "unknown format",
			format:    "xml",
			supported: configuredFormats,
			wantErr:   "INVALID_FORMAT: unsupported output format 'xml'. Supported formats: [json text markdown yaml]",
		},
		{
			name:      "formats are case sensitive",
			format:    "JSON",
			supported: configuredFormats,
			wantErr:   "INVALID_FORMAT: unsupported output format 'JSON'. Supported formats: [json text markdown yaml]",
		},
		{
			name:      "narrowed configuration",
			format:    "text",
			supported: []string{"json"},
			wantErr:   "INVALID_FORMAT: unsupported output format 'text'. Supported formats: [json]",
		},
		{name: "no restriction configured", format: "anything", supported: nil},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := ValidateOutputFormat(tt.format, tt.supported)
			if tt.wantErr == "" {
				assert.NoError(t, err)
				return
			}
			require.Error(t, err)
			assert.True(t, errors.HasCode(err, errors.ErrCodeInvalidFormat))
			assert.True(t, errors.IsType(err, errors.ErrorTypeValidation))
			assert.EqualError(t, err, tt.wantErr)
		})
	}
}

func TestGetSupportedFormats(t *testing.T) {
	available := []string{"json", "markdown", "text", "yaml"}

	tests := []struct {
		name       string
		configured []string
		expected   []string
	}{
		{name: "configured order is kept", configured: configuredFormats, expected: configuredFormats},
		{name: "unrenderable formats are dropped", configured: []string{"xml", "yaml", "csv"}, expected: []string{"yaml"}},
		{name: "duplicates collapse", configured: []string{"json", "json"}, expected: []string{"json"}},
		{name: "nothing configured offers everything", configured: nil, expected: available},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, GetSupportedFormats(tt.configured, available))
		})
	}
}

func BenchmarkValidateOutputFormat(b *testing.B) {
	b.Run("valid format", func(b *testing.B) {
		for b.Loop() {
			_ = ValidateOutputFormat("json", configuredFormats)
		}
	})

	b.Run("invalid format", func(b *testing.B) {
		for b.Loop() {
			_ = ValidateOutputFormat("xml", configuredFormats)
		}
	})
}
