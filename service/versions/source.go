package versions

import (
	"errors"
	"fmt"
	"iter"
	"math"
	"os"
	"path/filepath"
	"slices"
	"sort"
)

var (
	// ErrFileRead is returned when a directory entry is not a valid merkle-tree file.
	ErrFileRead = errors.New("failed to read merkle tree file")

	// ErrInvalidRange is returned when from_version > to_version.
	ErrInvalidRange = errors.New("invalid version range")
)

// Source is an ordered, finite sequence of airdrop versions.
// Versions reports input errors before yielding anything. The returned
// sequence may be ranged over more than once and yields the same versions.
type Source interface {
	Versions() (iter.Seq[uint64], error)
	Describe() string
}

// Resolve calls Versions once and returns a Source that replays the result
// without touching the underlying input again.
func Resolve(s Source) (Source, error) {
	seq, err := s.Versions()
	if err != nil {
		return nil, err
	}
	return &resolved{seq: seq, desc: s.Describe()}, nil
}

type resolved struct {
	seq  iter.Seq[uint64]
	desc string
}

func (r *resolved) Versions() (iter.Seq[uint64], error) { return r.seq, nil }
func (r *resolved) Describe() string                    { return r.desc }

// Parser extracts a version from one merkle-tree file.
type Parser interface {
	ParseFile(filename string) (uint64, error)
}

// DirectorySource reads versions from every file in a directory,
// visiting entries in lexicographic path order.
type DirectorySource struct {
	dir    string
	parser Parser
}

// FromDirectory returns a Source backed by a directory of merkle-tree files.
func FromDirectory(dir string, parser Parser) *DirectorySource {
	return &DirectorySource{dir: dir, parser: parser}
}

// Versions parses every entry up front; any unreadable entry aborts the scan.
func (s *DirectorySource) Versions() (iter.Seq[uint64], error) {
	list, err := s.List()
	if err != nil {
		return nil, err
	}
	return slices.Values(list), nil
}

// List returns the parsed versions in path order.
func (s *DirectorySource) List() ([]uint64, error) {
	entries, err := os.ReadDir(s.dir)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %v", ErrFileRead, s.dir, err)
	}

	paths := make([]string, 0, len(entries))
	for _, entry := range entries {
		path := filepath.Join(s.dir, entry.Name())
		if entry.IsDir() {
			return nil, fmt.Errorf("%w: %s: is a directory", ErrFileRead, path)
		}
		paths = append(paths, path)
	}
	sort.Strings(paths)

	out := make([]uint64, 0, len(paths))
	for _, path := range paths {
		version, err := s.parser.ParseFile(path)
		if err != nil {
			return nil, fmt.Errorf("%w: %s: %v", ErrFileRead, path, err)
		}
		out = append(out, version)
	}
	return out, nil
}

func (s *DirectorySource) Describe() string {
	return fmt.Sprintf("directory %s", s.dir)
}

// RangeSource yields every version in [From, To]. Versions are generated
// as they are consumed, so the width of the range costs nothing up front.
type RangeSource struct {
	From uint64
	To   uint64
}

// FromRange validates the bounds and returns an inclusive range Source.
func FromRange(from, to uint64) (*RangeSource, error) {
	if from > to {
		return nil, fmt.Errorf("%w: from_version %d is greater than to_version %d", ErrInvalidRange, from, to)
	}
	return &RangeSource{From: from, To: to}, nil
}

func (s *RangeSource) Versions() (iter.Seq[uint64], error) {
	if s.From > s.To {
		return nil, fmt.Errorf("%w: from_version %d is greater than to_version %d", ErrInvalidRange, s.From, s.To)
	}
	from, to := s.From, s.To
	return func(yield func(uint64) bool) {
		// Compare before incrementing so To == MaxUint64 does not wrap.
		for v := from; ; v++ {
			if !yield(v) || v == to {
				return
			}
		}
	}, nil
}

// Len is the number of versions in the range, saturating at MaxUint64
// for the full [0, MaxUint64] range.
func (s *RangeSource) Len() uint64 {
	n := s.To - s.From
	if n == math.MaxUint64 {
		return n
	}
	return n + 1
}

func (s *RangeSource) Describe() string {
	return fmt.Sprintf("versions %d..=%d", s.From, s.To)
}
