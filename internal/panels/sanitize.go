package panels

import (
	"html"
	"strings"
	"unicode"

	"github.com/JohannesKaufmann/html-to-markdown/v2/converter"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/base"
	"github.com/JohannesKaufmann/html-to-markdown/v2/plugin/commonmark"
	"github.com/microcosm-cc/bluemonday"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

// Sanitizer cleans free text produced by the backend before it is rendered
type Sanitizer struct {
	strict *bluemonday.Policy
	ugc    *bluemonday.Policy
	md     *converter.Converter
}

// NewSanitizer creates a sanitizer with a strict and a user-content policy
func NewSanitizer() *Sanitizer {
	return &Sanitizer{
		strict: bluemonday.StrictPolicy(),
		ugc:    bluemonday.UGCPolicy(),
		md: converter.NewConverter(
			converter.WithPlugins(
				base.NewBasePlugin(),
				commonmark.NewCommonmarkPlugin(),
			),
		),
	}
}

// PlainText strips every tag and returns readable text
func (s *Sanitizer) PlainText(in string) string {
	return strings.TrimSpace(html.UnescapeString(s.strict.Sanitize(in)))
}

// Clean keeps text as it is unless it carries HTML, which is sanitized and turned into markdown
func (s *Sanitizer) Clean(in string) string {
	if !strings.ContainsRune(in, '<') {
		return strings.TrimSpace(in)
	}
	safe := s.ugc.Sanitize(in)
	out, err := s.md.ConvertString(safe)
	if err != nil {
		return s.PlainText(in)
	}
	return strings.TrimSpace(out)
}

// CleanAll applies Clean to each entry and drops the ones left empty
func (s *Sanitizer) CleanAll(in []string) []string {
	out := make([]string, 0, len(in))
	for _, v := range in {
		if c := s.Clean(v); c != "" {
			out = append(out, c)
		}
	}
	return out
}

var defaultSanitizer = NewSanitizer()

// PlainText strips markup with the shared sanitizer
func PlainText(in string) string { return defaultSanitizer.PlainText(in) }

// Clean sanitizes free text with the shared sanitizer
func Clean(in string) string { return defaultSanitizer.Clean(in) }

// Fold lowercases and removes accents so "Zürich" and "zurich" compare equal
func Fold(in string) string {
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	result, _, err := transform.String(t, in)
	if err != nil {
		result = in
	}
	return strings.ToLower(strings.TrimSpace(result))
}
