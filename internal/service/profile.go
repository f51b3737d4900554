package service

import (
	"context"
	"strings"

	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/badge"
	"github.com/oleg-kozlyuk-grafana/go-badgehouse/internal/coverage"
)

// DefaultProfileLabel labels badges built from coverage profiles.
const DefaultProfileLabel = "coverage"

// ProfileResult reports a badge built from coverage profiles.
type ProfileResult struct {
	UpdateResult

	Percent    float64 `json:"percent"`
	Statements int     `json:"statements"`
	Covered    int     `json:"covered"`
}

// UpdateFromProfile computes the statement coverage of Go coverage profiles
// (plain text or a zip archive of them) and stores it as a percentage badge.
func (b *Badges) UpdateFromProfile(ctx context.Context, name, label string, profile []byte) (*ProfileResult, error) {
	label = strings.TrimSpace(label)
	if label == "" {
		label = DefaultProfileLabel
	}

	profiles, err := coverage.Parse(profile)
	if err != nil {
		return nil, invalidProfile(err)
	}
	for _, p := range profiles {
		if err := coverage.ValidateProfile(p); err != nil {
			return nil, invalidProfile(err)
		}
	}

	summary, err := coverage.Summarize(profiles)
	if err != nil {
		return nil, invalidProfile(err)
	}

	percent := coverage.Round(summary.Percent)
	res, err := b.Update(ctx, name, badge.Request{Label: label, Value: badge.Percentage(percent)})
	if err != nil {
		return nil, err
	}

	return &ProfileResult{
		UpdateResult: *res,
		Percent:      percent,
		Statements:   summary.Statements,
		Covered:      summary.Covered,
	}, nil
}

func invalidProfile(err error) *badge.Error {
	return badge.Invalid("invalid coverage profile", badge.FieldError{Field: "profile", Reason: err.Error()})
}
