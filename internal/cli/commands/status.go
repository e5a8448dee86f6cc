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

	"github.com/spf13/cobra"

	"flatfs/internal/daemon"
)

var statusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon and mount status",
	Long: `Shows the daemon's PID and every active mount with its share name,
port, file count, and open handle count.

Examples:
  flatfs status`,
	Args: cobra.NoArgs,
	RunE: runStatus,
}

func init() {
	rootCmd.AddCommand(statusCmd)
}

func runStatus(cmd *cobra.Command, args []string) error {
	if !daemon.IsDaemonRunning() {
		fmt.Println("Daemon: not running")
		return nil
	}

	client, err := connectWithRetry()
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer client.Close()

	resp, err := client.Status()
	if err != nil {
		return fmt.Errorf("failed to get status: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}

	fmt.Printf("Daemon: running (PID %d)\n", resp.PID)
	fmt.Printf("Server type: %s\n", daemon.NetFSType())

	if len(resp.Mounts) == 0 {
		fmt.Println("\nNo active mounts")
		return nil
	}

	fmt.Printf("\nActive mounts (%d):\n", len(resp.Mounts))
	for _, m := range resp.Mounts {
		fmt.Printf("  %s  %s\n", shortID(m.ID), m.Target)
		fmt.Printf("    share: %s, port: %d, files: %d, open files: %d\n",
			m.Name, m.Port, m.Files, m.OpenFiles)
	}

	return nil
}

// shortID returns the leading uuid segment, enough to tell mounts apart
func shortID(id string) string {
	if len(id) > 8 {
		return id[:8]
	}
	return id
}
