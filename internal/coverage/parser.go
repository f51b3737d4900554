// Package coverage parses, merges and summarises Go coverage profiles.
package coverage

import (
	"archive/zip"
	"bufio"
	"bytes"
	"errors"
	"fmt"
	"io"
	"strings"

	"golang.org/x/tools/cover"
)

// MaxArchiveEntrySize caps a single decompressed file read from a zip upload.
const MaxArchiveEntrySize = 64 << 20

// zipMagic starts every zip local file header.
var zipMagic = []byte("PK\x03\x04")

// Profile is the coverage of one source file.
type Profile struct {
	FileName string
	Mode     string
	Blocks   []ProfileBlock
}

// ProfileBlock is one instrumented block of a source file.
type ProfileBlock struct {
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
	NumStmt   int
	Count     int
}

// Parse reads a plain text coverage profile, or a zip archive of them.
func Parse(data []byte) ([]*Profile, error) {
	if bytes.HasPrefix(data, zipMagic) {
		return ParseProfilesFromZip(data)
	}
	return ParseProfiles(data)
}

// ParseProfiles parses coverage data in the format written by
// "go test -coverprofile".
func ParseProfiles(data []byte) ([]*Profile, error) {
	if len(bytes.TrimSpace(data)) == 0 {
		return nil, errors.New("coverage data is empty")
	}

	parsed, err := cover.ParseProfilesFromReader(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("failed to parse coverage profiles: %w", err)
	}
	if len(parsed) == 0 {
		return nil, errors.New("no coverage profiles found in data")
	}

	profiles := make([]*Profile, len(parsed))
	for i, p := range parsed {
		profiles[i] = fromCover(p)
	}

	return profiles, nil
}

func fromCover(p *cover.Profile) *Profile {
	profile := &Profile{
		FileName: p.FileName,
		Mode:     p.Mode,
		Blocks:   make([]ProfileBlock, len(p.Blocks)),
	}
	for i, b := range p.Blocks {
		profile.Blocks[i] = ProfileBlock{
			StartLine: b.StartLine,
			StartCol:  b.StartCol,
			EndLine:   b.EndLine,
			EndCol:    b.EndCol,
			NumStmt:   b.NumStmt,
			Count:     b.Count,
		}
	}
	return profile
}

// ParseProfilesFromZip parses every coverage file (*.out, *.cov, *coverage*.txt)
// in a zip archive. Files that fail to parse are skipped as long as at least
// one file parses; otherwise their errors are returned.
func ParseProfilesFromZip(zipData []byte) ([]*Profile, error) {
	if len(zipData) == 0 {
		return nil, errors.New("zip data is empty")
	}

	reader, err := zip.NewReader(bytes.NewReader(zipData), int64(len(zipData)))
	if err != nil {
		return nil, fmt.Errorf("failed to read zip archive: %w", err)
	}

	var (
		all       []*Profile
		parseErrs []error
	)
	for _, file := range reader.File {
		if file.FileInfo().IsDir() || !IsCoverageFile(file.Name) {
			continue
		}

		data, err := readZipEntry(file)
		if err != nil {
			return nil, err
		}
		if len(bytes.TrimSpace(data)) == 0 {
			continue
		}

		profiles, err := ParseProfiles(data)
		if err != nil {
			parseErrs = append(parseErrs, fmt.Errorf("%s: %w", file.Name, err))
			continue
		}
		all = append(all, profiles...)
	}

	if len(all) == 0 {
		if len(parseErrs) > 0 {
			return nil, fmt.Errorf("no valid coverage files found in archive: %w", errors.Join(parseErrs...))
		}
		return nil, errors.New("no valid coverage files found in archive")
	}

	return all, nil
}

func readZipEntry(file *zip.File) ([]byte, error) {
	rc, err := file.Open()
	if err != nil {
		return nil, fmt.Errorf("failed to open file %s in archive: %w", file.Name, err)
	}
	defer rc.Close()

	data, err := io.ReadAll(io.LimitReader(rc, MaxArchiveEntrySize+1))
	if err != nil {
		return nil, fmt.Errorf("failed to read file %s from archive: %w", file.Name, err)
	}
	if len(data) > MaxArchiveEntrySize {
		return nil, fmt.Errorf("file %s in archive exceeds %d bytes", file.Name, MaxArchiveEntrySize)
	}
	return data, nil
}

// IsCoverageFile reports whether name looks like a coverage profile.
func IsCoverageFile(name string) bool {
	name = strings.ToLower(name)
	return strings.HasSuffix(name, ".out") ||
		strings.HasSuffix(name, ".cov") ||
		strings.Contains(name, "coverage") && strings.HasSuffix(name, ".txt")
}

// ValidateProfile checks that a profile is well-formed.
func ValidateProfile(p *Profile) error {
	if p == nil {
		return errors.New("profile is nil")
	}
	if p.FileName == "" {
		return errors.New("profile has empty filename")
	}
	if p.Mode == "" {
		return errors.New("profile has empty mode")
	}

	for i, block := range p.Blocks {
		if err := validateBlock(block, i); err != nil {
			return fmt.Errorf("invalid block in %s: %w", p.FileName, err)
		}
	}

	return nil
}

func validateBlock(b ProfileBlock, index int) error {
	switch {
	case b.StartLine <= 0:
		return fmt.Errorf("block %d has invalid start line: %d", index, b.StartLine)
	case b.EndLine <= 0:
		return fmt.Errorf("block %d has invalid end line: %d", index, b.EndLine)
	case b.EndLine < b.StartLine:
		return fmt.Errorf("block %d has end line (%d) before start line (%d)", index, b.EndLine, b.StartLine)
	case b.StartLine == b.EndLine && b.EndCol < b.StartCol:
		return fmt.Errorf("block %d has end column (%d) before start column (%d) on same line", index, b.EndCol, b.StartCol)
	case b.NumStmt < 0:
		return fmt.Errorf("block %d has negative statement count: %d", index, b.NumStmt)
	case b.Count < 0:
		return fmt.Errorf("block %d has negative count: %d", index, b.Count)
	}
	return nil
}

// SerializeProfiles writes profiles back in the "go test -coverprofile"
// format, with the mode of the first profile in the header.
func SerializeProfiles(profiles []*Profile) ([]byte, error) {
	if len(profiles) == 0 {
		return nil, errors.New("no profiles to serialize")
	}

	var buf bytes.Buffer
	w := bufio.NewWriter(&buf)

	mode := profiles[0].Mode
	if mode == "" {
		mode = ModeSet
	}
	fmt.Fprintf(w, "mode: %s\n", mode)

	for _, p := range profiles {
		for _, b := range p.Blocks {
			fmt.Fprintf(w, "%s:%d.%d,%d.%d %d %d\n",
				p.FileName,
				b.StartLine, b.StartCol,
				b.EndLine, b.EndCol,
				b.NumStmt, b.Count)
		}
	}

	if err := w.Flush(); err != nil {
		return nil, fmt.Errorf("failed to flush writer: %w", err)
	}

	return buf.Bytes(), nil
}
