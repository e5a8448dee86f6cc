package store

import (
	"fmt"
	"os"
	"path/filepath"
	"time"
)

// FileFilter decides whether a source entry is seeded. Entries for which
// the filter returns false are skipped silently.
type FileFilter func(name string, isDir bool) bool

// SeedConfig configures seeding a fresh table from a local directory
type SeedConfig struct {
	// SkipHidden skips hidden files (starting with '.' or '._')
	SkipHidden bool
	// AllowPartial continues on read errors and collects skipped files
	AllowPartial bool
	// Filter is an optional file filter. If provided, only files for
	// which Filter(name, isDir) returns true are seeded.
	Filter FileFilter
}

// DefaultSeedConfig returns the default configuration
func DefaultSeedConfig() SeedConfig {
	return SeedConfig{
		SkipHidden:   true,
		AllowPartial: false,
	}
}

// SeedResult contains the result of a seed operation
type SeedResult struct {
	TotalFiles   int
	CopiedFiles  int
	TotalBytes   int64
	CopiedBytes  int64
	SkippedFiles []string
	Duration     time.Duration
}

// Seeder populates an empty table from the top level of a source directory.
// The namespace is flat, so subdirectories and symlinks are never descended
// into or copied; they are reported in SkippedFiles.
type Seeder struct {
	table  *Table
	config SeedConfig
	result *SeedResult
}

// NewSeeder creates a Seeder writing into the given table
func NewSeeder(table *Table, config SeedConfig) *Seeder {
	return &Seeder{
		table:  table,
		config: config,
		result: &SeedResult{},
	}
}

// SeedFromDirectory creates one record per regular file in the top level of
// sourcePath and copies its content. Capacity errors from the table
// (ErrNoSpace, ErrNameTooLong) abort the seed; read errors abort unless
// AllowPartial is set, in which case the file is recorded and skipped.
func (s *Seeder) SeedFromDirectory(sourcePath string) (*SeedResult, error) {
	start := time.Now()

	resolved, err := filepath.EvalSymlinks(sourcePath)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve source path: %w", err)
	}

	entries, err := os.ReadDir(resolved)
	if err != nil {
		return nil, fmt.Errorf("failed to read source directory: %w", err)
	}

	for _, entry := range entries {
		name := entry.Name()

		if s.config.SkipHidden && len(name) > 0 && (name[0] == '.' || (len(name) >= 2 && name[:2] == "._")) {
			continue
		}
		if s.config.Filter != nil && !s.config.Filter(name, entry.IsDir()) {
			continue
		}

		// Flat namespace: only top-level regular files transfer
		if entry.IsDir() {
			s.result.SkippedFiles = append(s.result.SkippedFiles, name+": directory")
			continue
		}
		if !entry.Type().IsRegular() {
			s.result.SkippedFiles = append(s.result.SkippedFiles, name+": not a regular file")
			continue
		}

		s.result.TotalFiles++
		srcPath := filepath.Join(resolved, name)
		content, err := os.ReadFile(srcPath)
		if err != nil {
			if s.config.AllowPartial {
				s.result.SkippedFiles = append(s.result.SkippedFiles, name+": "+err.Error())
				continue
			}
			return s.result, fmt.Errorf("failed to read %s: %w", srcPath, err)
		}
		s.result.TotalBytes += int64(len(content))

		if err := s.seedFile(entry, name, content); err != nil {
			return s.result, err
		}
	}

	s.result.Duration = time.Since(start)
	return s.result, nil
}

func (s *Seeder) seedFile(entry os.DirEntry, name string, content []byte) error {
	mode := uint32(DefaultFileMode & 0777)
	if info, err := entry.Info(); err == nil {
		mode = uint32(info.Mode().Perm())
	}

	path := "/" + name
	if err := s.table.Create(path, mode); err != nil {
		return fmt.Errorf("failed to seed %s: %w", path, err)
	}
	if len(content) > 0 {
		if _, err := s.table.Write(path, content, 0); err != nil {
			return fmt.Errorf("failed to seed %s: %w", path, err)
		}
	}
	s.result.CopiedFiles++
	s.result.CopiedBytes += int64(len(content))
	return nil
}
