package formatters

import (
	"fmt"
	"strings"
)

// doc writes the same structure as plain text or markdown
type doc struct {
	b  strings.Builder
	md bool
}

func (d *doc) title(s string) {
	if d.md {
		fmt.Fprintf(&d.b, "# %s\n\n", s)
		return
	}
	fmt.Fprintf(&d.b, "=== %s ===\n\n", strings.ToUpper(s))
}

func (d *doc) section(s string) {
	if d.md {
		fmt.Fprintf(&d.b, "## %s\n\n", s)
		return
	}
	fmt.Fprintf(&d.b, "=== %s ===\n", strings.ToUpper(s))
}

func (d *doc) sub(s string) {
	if d.md {
		fmt.Fprintf(&d.b, "### %s\n", s)
		return
	}
	fmt.Fprintf(&d.b, "%s:\n", s)
}

// field writes "label: value" and skips empty values
func (d *doc) field(label string, value any) {
	s := fmt.Sprint(value)
	if s == "" {
		return
	}
	if d.md {
		fmt.Fprintf(&d.b, "**%s:** %s\n\n", label, s)
		return
	}
	fmt.Fprintf(&d.b, "%s: %s\n", label, s)
}

func (d *doc) para(s string) {
	if s == "" {
		return
	}
	d.b.WriteString(s)
	d.b.WriteString("\n\n")
}

func (d *doc) list(items []string) {
	if len(items) == 0 {
		return
	}
	for _, it := range items {
		fmt.Fprintf(&d.b, "- %s\n", it)
	}
	d.b.WriteString("\n")
}

func (d *doc) numbered(items []string) {
	if len(items) == 0 {
		return
	}
	for i, it := range items {
		fmt.Fprintf(&d.b, "%d. %s\n", i+1, it)
	}
	d.b.WriteString("\n")
}

// blank ends a block of fields in text mode
func (d *doc) blank() {
	if !d.md {
		d.b.WriteString("\n")
	}
}

func (d *doc) String() string {
	return strings.TrimRight(d.b.String(), "\n") + "\n"
}

// viewFormatter renders one view type as text or markdown
type viewFormatter[T any] struct {
	render func(*doc, T)
	md     bool
}

func (f viewFormatter[T]) Format(data any) (string, error) {
	var v T
	switch x := data.(type) {
	case T:
		v = x
	case *T:
		if x == nil {
			return "", fmt.Errorf("cannot format nil %s", f.SupportedType())
		}
		v = *x
	default:
		return "", fmt.Errorf("expected %s, got %T", f.SupportedType(), data)
	}
	d := &doc{md: f.md}
	f.render(d, v)
	return d.String(), nil
}

func (f viewFormatter[T]) SupportedType() string {
	var zero T
	return getDataType(zero)
}

type registration interface {
	SupportedType() string
	text() Formatter
	markdown() Formatter
}

type renderer[T any] func(*doc, T)

func (r renderer[T]) SupportedType() string {
	var zero T
	return getDataType(zero)
}

func (r renderer[T]) text() Formatter     { return viewFormatter[T]{render: r} }
func (r renderer[T]) markdown() Formatter { return viewFormatter[T]{render: r, md: true} }
