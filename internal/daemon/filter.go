package daemon

import (
	"os"
	"path/filepath"
	"strings"

	ignore "github.com/sabhiram/go-gitignore"
	log "github.com/sirupsen/logrus"

	"flatfs/internal/store"
)

// BuildFileFilter creates a store.FileFilter that:
// 1. Checks excludes list (force-exclude, highest priority)
// 2. Checks includes list (force-include, overrides gitignore)
// 3. Applies the seed directory's .gitignore rules
//
// Names are bare top-level entry names; the namespace being seeded is flat.
func BuildFileFilter(seedDir string, gitignoreEnabled bool, includes, excludes []string) store.FileFilter {
	var matcher *ignore.GitIgnore
	if gitignoreEnabled {
		matcher = loadGitignore(seedDir)
	}

	return func(name string, isDir bool) bool {
		// Check excludes (force-exclude, takes precedence over includes)
		for _, exc := range excludes {
			if name == exc {
				return false
			}
		}

		// Check includes override (force-include even if gitignored)
		for _, inc := range includes {
			if name == inc {
				return true
			}
		}

		// Apply gitignore rules
		if matcher != nil {
			checkName := name
			if isDir {
				checkName += "/"
			}
			if matcher.MatchesPath(checkName) {
				return false
			}
		}

		return true
	}
}

// loadGitignore compiles the seed directory's top-level .gitignore rules.
// Nested .gitignore files scope subdirectories, which a flat seed never
// descends into, so only the top-level file matters.
func loadGitignore(seedDir string) *ignore.GitIgnore {
	data, err := os.ReadFile(filepath.Join(seedDir, ".gitignore"))
	if err != nil {
		if !os.IsNotExist(err) {
			log.Warnf("[SEED] Failed to read .gitignore in %s: %v", seedDir, err)
		}
		return nil
	}

	lines := strings.Split(string(data), "\n")
	return ignore.CompileIgnoreLines(lines...)
}
