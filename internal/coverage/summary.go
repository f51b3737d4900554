package coverage

import "math"

// Summary is the statement coverage of a set of profiles.
type Summary struct {
	Statements int
	Covered    int

	// Percent is Covered/Statements in percent, 0 when there are no statements
	Percent float64

	Files []FileSummary
}

// FileSummary is the statement coverage of one source file.
type FileSummary struct {
	FileName   string
	Statements int
	Covered    int
	Percent    float64
}

// Summarize computes statement coverage the way "go tool cover -func" does:
// a statement is covered when its block ran at least once. Profiles for the
// same file are merged first so shared blocks are counted once. Files are
// sorted by name.
func Summarize(profiles []*Profile) (*Summary, error) {
	summary := &Summary{}
	if len(profiles) == 0 {
		return summary, nil
	}

	merged, err := MergeProfiles(profiles)
	if err != nil {
		return nil, err
	}

	for _, p := range merged {
		file := FileSummary{FileName: p.FileName}
		for _, b := range p.Blocks {
			file.Statements += b.NumStmt
			if b.Count > 0 {
				file.Covered += b.NumStmt
			}
		}
		file.Percent = percent(file.Covered, file.Statements)

		summary.Statements += file.Statements
		summary.Covered += file.Covered
		summary.Files = append(summary.Files, file)
	}
	summary.Percent = percent(summary.Covered, summary.Statements)

	return summary, nil
}

func percent(covered, total int) float64 {
	if total == 0 {
		return 0
	}
	return float64(covered) * 100 / float64(total)
}

// Round returns p rounded to one decimal place.
func Round(p float64) float64 {
	return math.Round(p*10) / 10
}
