package badge

import "strconv"

// ValueType tells which variant of Value is set.
type ValueType int

const (
	TypePercentage ValueType = iota + 1
	TypeLiteral
)

// Value is what a badge displays next to its label: either a percentage,
// colored by ColorFor, or a literal text with an explicit color.
type Value struct {
	Type       ValueType
	Percentage float64
	Text       string
	Color      string
}

// Percentage returns a percentage value.
func Percentage(p float64) Value {
	return Value{Type: TypePercentage, Percentage: p}
}

// Literal returns a literal text/color value.
func Literal(text, color string) Value {
	return Value{Type: TypeLiteral, Text: text, Color: color}
}

// Render returns the value text and color to send to the rendering service.
func (v Value) Render() (text, color string) {
	if v.Type == TypeLiteral {
		return v.Text, v.Color
	}
	return FormatPercentage(v.Percentage) + "%", string(ColorFor(v.Percentage))
}

// FormatPercentage formats p in its shortest decimal form, e.g. 92 or 85.5.
func FormatPercentage(p float64) string {
	return strconv.FormatFloat(p, 'f', -1, 64)
}

// Request asks for a single badge to be rendered and stored.
type Request struct {
	Label string
	Value Value
}

// CoverageReport is a named batch of badge requests. Every item is stored
// under CompositeName(Name, item.Label).
type CoverageReport struct {
	Name    string
	Reports []Request
}
