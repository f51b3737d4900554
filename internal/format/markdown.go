package format

import (
	"fmt"
	"io"
)

// MarkdownFormatter formats push results as Markdown, e.g. for a job summary.
// Outputs a per-file table, the totals and the badge embed snippet.
type MarkdownFormatter struct{}

// Format formats the push result as Markdown.
func (f *MarkdownFormatter) Format(result *Result, w io.Writer) error {
	if err := checkResult(result); err != nil {
		return err
	}

	fmt.Fprintf(w, "## %s\n", result.Name)
	fmt.Fprintln(w)
	fmt.Fprintln(w, embedSnippet(result))
	fmt.Fprintln(w)

	summary := result.Summary
	if summary.Statements == 0 {
		fmt.Fprintln(w, "No statements found in coverage profiles")
		return nil
	}

	fmt.Fprintln(w, "| File | Statements | Covered | Coverage |")
	fmt.Fprintln(w, "|------|------------|---------|----------|")
	for _, file := range summary.Files {
		fmt.Fprintf(w, "| %s | %d | %d | %.1f%% |\n", file.FileName, file.Statements, file.Covered, file.Percent)
	}

	fmt.Fprintln(w)
	fmt.Fprintf(w, "**Summary:** %d of %d statements covered (%.1f%%)\n",
		summary.Covered, summary.Statements, summary.Percent)

	return nil
}
