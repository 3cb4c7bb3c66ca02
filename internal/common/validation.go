package common

import (
	"fmt"
	"slices"

	"missioncontrol/internal/errors"
)

// ValidateOutputFormat validates format against configured supported formats
func ValidateOutputFormat(format string, supportedFormats []string) error {
	if len(supportedFormats) == 0 {
		return nil // No restrictions configured
	}

	if slices.Contains(supportedFormats, format) {
		return nil
	}

	return errors.NewValidationError(errors.ErrCodeInvalidFormat,
		fmt.Sprintf("unsupported output format '%s'. Supported formats: %v", format, supportedFormats), nil)
}

// GetSupportedFormats lists the configured formats that a formatter can actually render,
// in configured order. With nothing configured every available format is offered.
func GetSupportedFormats(configured, available []string) []string {
	if len(configured) == 0 {
		return slices.Clone(available)
	}
	out := make([]string, 0, len(configured))
	for _, f := range configured {
		if slices.Contains(available, f) && !slices.Contains(out, f) {
			out = append(out, f)
		}
	}
	return out
}
