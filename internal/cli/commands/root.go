// Copyright 2024 FlatFS Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package commands

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"flatfs/internal/daemon"
)

var (
	version = "dev"
	commit  = "none"
	date    = "unknown"
)

// SetVersion sets the version info for --version flag
func SetVersion(v, c, d string) {
	version = v
	commit = c
	date = d
	rootCmd.Version = getVersionString()
}

// getVersionString renders the --version line. Dev builds carry the raw
// epoch and commit for troubleshooting.
func getVersionString() string {
	buildDate := formatBuildDate(date)
	if strings.HasSuffix(version, "-dev") {
		return fmt.Sprintf("%s (%s, epoch: %s, commit: %s)", version, buildDate, date, commit)
	}
	return fmt.Sprintf("%s (%s)", version, buildDate)
}

// formatBuildDate converts an ldflags epoch timestamp to a readable date
func formatBuildDate(epoch string) string {
	ts, err := strconv.ParseInt(epoch, 10, 64)
	if err != nil {
		return epoch
	}
	return time.Unix(ts, 0).Format("2006-01-02")
}

var rootCmd = &cobra.Command{
	Use:   "flatfs",
	Short: "Flat in-memory filesystem served over NFS",
	Long: `Serves flat in-memory file namespaces through the OS VFS interface.
Each mount is a fresh bounded file table exported by a local network
filesystem server and mounted at the path you choose. Contents live in
daemon memory and vanish at unmount.`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRunE: ensureDaemonContext,
}

// ensureDaemonContext prepares the config directory and auto-starts the
// daemon for commands that talk to it. Help output and the daemon's own
// subcommands skip both steps.
func ensureDaemonContext(cmd *cobra.Command, args []string) error {
	if cmd.Name() == "help" || cmd.Name() == "completion" {
		return nil
	}
	if cmd.Name() == "daemon" || (cmd.Parent() != nil && cmd.Parent().Name() == "daemon") {
		return nil
	}

	if err := daemon.InitConfigDir(); err != nil {
		return fmt.Errorf("failed to initialize config: %w", err)
	}

	if !daemon.IsDaemonRunning() {
		if err := StartDaemonIfNeeded(true); err != nil {
			// Commands that happen to not need the daemon still work
			fmt.Fprintf(os.Stderr, "Warning: could not auto-start daemon: %v\n", err)
		}
	}
	return nil
}

func init() {
	rootCmd.CompletionOptions.DisableDefaultCmd = true
	rootCmd.SetVersionTemplate("flatfs version {{.Version}}\n")
}

// Execute runs the root command
func Execute() error {
	return rootCmd.Execute()
}
