package coverage

import (
	"fmt"
	"sort"
)

// Coverage modes written by "go test -covermode".
const (
	ModeSet    = "set"
	ModeCount  = "count"
	ModeAtomic = "atomic"
)

// MergeProfiles merges profiles from several test runs into one profile per
// file, sorted by file name. Identical blocks are combined: the higher count
// wins in set mode, counts are summed otherwise. All profiles must share a mode.
func MergeProfiles(profiles []*Profile) ([]*Profile, error) {
	if len(profiles) == 0 {
		return nil, fmt.Errorf("no profiles to merge")
	}

	mode := profiles[0].Mode
	for i, p := range profiles {
		if p.Mode != mode {
			return nil, fmt.Errorf("profile %d has mode %q, expected %q", i, p.Mode, mode)
		}
	}

	byFile := make(map[string][]*Profile)
	for _, p := range profiles {
		byFile[p.FileName] = append(byFile[p.FileName], p)
	}

	merged := make([]*Profile, 0, len(byFile))
	for fileName, fileProfiles := range byFile {
		merged = append(merged, mergeFile(fileName, mode, fileProfiles))
	}

	sort.Slice(merged, func(i, j int) bool {
		return merged[i].FileName < merged[j].FileName
	})

	return merged, nil
}

func mergeFile(fileName, mode string, profiles []*Profile) *Profile {
	blocks := make(map[blockKey]ProfileBlock)
	for _, p := range profiles {
		for _, b := range p.Blocks {
			key := makeBlockKey(b)
			if existing, ok := blocks[key]; ok {
				existing.Count = mergeCount(mode, existing.Count, b.Count)
				blocks[key] = existing
			} else {
				blocks[key] = b
			}
		}
	}

	merged := &Profile{
		FileName: fileName,
		Mode:     mode,
		Blocks:   make([]ProfileBlock, 0, len(blocks)),
	}
	for _, b := range blocks {
		merged.Blocks = append(merged.Blocks, b)
	}
	sortBlocks(merged.Blocks)

	return merged
}

func sortBlocks(blocks []ProfileBlock) {
	sort.Slice(blocks, func(i, j int) bool {
		if blocks[i].StartLine != blocks[j].StartLine {
			return blocks[i].StartLine < blocks[j].StartLine
		}
		if blocks[i].StartCol != blocks[j].StartCol {
			return blocks[i].StartCol < blocks[j].StartCol
		}
		if blocks[i].EndLine != blocks[j].EndLine {
			return blocks[i].EndLine < blocks[j].EndLine
		}
		return blocks[i].EndCol < blocks[j].EndCol
	})
}

// blockKey identifies a block by its position and statement count.
type blockKey struct {
	StartLine int
	StartCol  int
	EndLine   int
	EndCol    int
	NumStmt   int
}

func makeBlockKey(b ProfileBlock) blockKey {
	return blockKey{
		StartLine: b.StartLine,
		StartCol:  b.StartCol,
		EndLine:   b.EndLine,
		EndCol:    b.EndCol,
		NumStmt:   b.NumStmt,
	}
}

func mergeCount(mode string, a, b int) int {
	if mode == ModeSet {
		return max(a, b)
	}
	return a + b
}
