package format

import (
	"fmt"
	"io"
)

// TextFormatter formats push results as plain text for console output.
type TextFormatter struct{}

// Format formats the push result as plain text.
func (f *TextFormatter) Format(result *Result, w io.Writer) error {
	if err := checkResult(result); err != nil {
		return err
	}

	summary := result.Summary
	if summary.Statements == 0 {
		fmt.Fprintln(w, "No statements found in coverage profiles")
	} else {
		fmt.Fprintln(w, "Coverage by file:")
		fmt.Fprintln(w)
		for _, file := range summary.Files {
			fmt.Fprintf(w, "%s\n", file.FileName)
			fmt.Fprintf(w, "  %d/%d statements (%.1f%%)\n", file.Covered, file.Statements, file.Percent)
			fmt.Fprintln(w)
		}
		fmt.Fprintf(w, "Summary: %d of %d statements covered (%.1f%%)\n",
			summary.Covered, summary.Statements, summary.Percent)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "Badge %s updated: %s\n", result.Name, result.BadgeURL)
	fmt.Fprintln(w)
	fmt.Fprintln(w, "Embed in README:")
	fmt.Fprintf(w, "  %s\n", embedSnippet(result))

	return nil
}
