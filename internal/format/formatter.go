package format

import (
	"fmt"
	"io"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/coverage"
)

// Result describes a pushed coverage badge.
type Result struct {
	// Name is the badge name on the server
	Name string
	// Label is the text on the left side of the badge
	Label string
	// BadgeURL is where the badge is served
	BadgeURL string
	// Summary is the merged statement coverage
	Summary *coverage.Summary
}

// Formatter formats a push result for output.
type Formatter interface {
	Format(result *Result, w io.Writer) error
}

// New creates a formatter based on the specified format type.
// Supported formats: "text", "markdown"
func New(format string) (Formatter, error) {
	switch format {
	case "text":
		return &TextFormatter{}, nil
	case "markdown":
		return &MarkdownFormatter{}, nil
	default:
		return nil, fmt.Errorf("unknown format: %s (supported: text, markdown)", format)
	}
}

func checkResult(result *Result) error {
	if result == nil {
		return fmt.Errorf("result is nil")
	}
	if result.Summary == nil {
		return fmt.Errorf("result has no coverage summary")
	}
	return nil
}

// embedSnippet is the Markdown image that shows the badge in a README.
func embedSnippet(result *Result) string {
	return fmt.Sprintf("![%s](%s)", result.Label, result.BadgeURL)
}
