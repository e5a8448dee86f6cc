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
	"path/filepath"

	"github.com/spf13/cobra"

	"flatfs/internal/daemon"
)

var mountCmd = &cobra.Command{
	Use:   "mount <mount-point>",
	Short: "Mount a fresh flat namespace",
	Long: `Mounts a fresh in-memory flat namespace at the specified mount point.

The daemon will be started automatically if not running. The namespace starts
empty unless --seed copies the top-level regular files of a local directory
into it. Contents are discarded at unmount.

Examples:
  flatfs mount ./scratch
  flatfs mount /tmp/work --name work
  flatfs mount ./scratch --seed ./project --exclude build --include .env`,
	Args: cobra.ExactArgs(1),
	RunE: runMount,
}

var mountLsCmd = &cobra.Command{
	Use:   "ls",
	Short: "List active mounts",
	Long:  `Lists all currently active flatfs mounts.`,
	Args:  cobra.NoArgs,
	RunE:  runMountLs,
}

var mountCheckCmd = &cobra.Command{
	Use:   "check <path>...",
	Short: "Check if paths are mounted",
	Long: `Check if one or more paths are currently mounted.

Returns exit code 0 if ALL paths are mounted, non-zero otherwise.
Use -q/--quiet to suppress output (useful in scripts).`,
	Args: cobra.MinimumNArgs(1),
	RunE: runMountCheck,
}

var (
	mountCheckQuiet  bool
	mountName        string
	mountSeed        string
	mountNoGitignore bool
	mountIncludes    []string
	mountExcludes    []string
)

func init() {
	rootCmd.AddCommand(mountCmd)
	mountCmd.AddCommand(mountLsCmd)
	mountCmd.AddCommand(mountCheckCmd)
	mountCheckCmd.Flags().BoolVarP(&mountCheckQuiet, "quiet", "q", false, "Suppress output, only set exit code")
	mountCmd.Flags().StringVarP(&mountName, "name", "n", "", "Share name for the export (default \"flatfs\")")
	mountCmd.Flags().StringVarP(&mountSeed, "seed", "s", "", "Directory whose top-level files seed the namespace")
	mountCmd.Flags().BoolVar(&mountNoGitignore, "no-gitignore", false, "Ignore the seed directory's .gitignore during seeding")
	mountCmd.Flags().StringArrayVar(&mountIncludes, "include", nil, "Seed entry to copy even when gitignored (repeatable)")
	mountCmd.Flags().StringArrayVar(&mountExcludes, "exclude", nil, "Seed entry to skip (repeatable, wins over --include)")
}

func runMount(cmd *cobra.Command, args []string) error {
	mountPoint := args[0]

	// Resolve mount point
	absMountPoint, err := filepath.Abs(mountPoint)
	if err != nil {
		return fmt.Errorf("failed to resolve mount point: %w", err)
	}

	// Check target doesn't exist or is an empty directory. Mounting over a
	// populated directory hides its contents until unmount, which is never
	// what the user meant.
	if info, err := os.Lstat(absMountPoint); err == nil {
		if !info.IsDir() {
			return fmt.Errorf("target exists and is not a directory: %s", absMountPoint)
		}
		entries, err := os.ReadDir(absMountPoint)
		if err != nil {
			return fmt.Errorf("failed to read target directory: %w", err)
		}
		if len(entries) > 0 {
			return fmt.Errorf("target directory is not empty: %s", absMountPoint)
		}
	}

	// Resolve seed directory
	absSeed := ""
	if mountSeed != "" {
		absSeed, err = filepath.Abs(mountSeed)
		if err != nil {
			return fmt.Errorf("failed to resolve seed path: %w", err)
		}
		info, err := os.Stat(absSeed)
		if os.IsNotExist(err) {
			return fmt.Errorf("seed directory not found: %s", absSeed)
		}
		if err != nil {
			return fmt.Errorf("failed to stat seed directory: %w", err)
		}
		if !info.IsDir() {
			return fmt.Errorf("seed path is not a directory: %s", absSeed)
		}
	}

	// Start daemon if not running
	if err := StartDaemonIfNeeded(true); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Connect to daemon
	client, err := connectWithRetry()
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer client.Close()

	// Send mount request (daemon creates the table, seeds it, and mounts)
	resp, err := client.Mount(absMountPoint, daemon.MountOptions{
		Name:        mountName,
		Seed:        absSeed,
		NoGitignore: mountNoGitignore,
		Includes:    mountIncludes,
		Excludes:    mountExcludes,
	})
	if err != nil {
		return fmt.Errorf("mount request failed: %w", err)
	}

	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}

	fmt.Println(resp.Message)
	return nil
}

func runMountLs(cmd *cobra.Command, args []string) error {
	if !daemon.IsDaemonRunning() {
		fmt.Println("No active mounts (daemon not running)")
		return nil
	}

	client, err := daemon.Connect()
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

	if len(resp.Mounts) == 0 {
		fmt.Println("No active mounts")
		return nil
	}

	fmt.Printf("Active mounts (%d):\n", len(resp.Mounts))
	for _, m := range resp.Mounts {
		fmt.Printf("  %s [%s]\n", m.Target, m.Name)
		fmt.Printf("    files: %d, open: %d, port: %d\n", m.Files, m.OpenFiles, m.Port)
	}

	return nil
}

func runMountCheck(cmd *cobra.Command, args []string) error {
	if !daemon.IsDaemonRunning() {
		if !mountCheckQuiet {
			fmt.Println("daemon not running")
		}
		return fmt.Errorf("daemon not running")
	}

	client, err := daemon.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer client.Close()

	// Resolve all paths first
	absPaths := make([]string, 0, len(args))
	pathErrors := make(map[string]bool)
	for _, path := range args {
		absPath, err := filepath.Abs(path)
		if err != nil {
			if !mountCheckQuiet {
				fmt.Printf("%s: error resolving path\n", path)
			}
			pathErrors[path] = true
			continue
		}
		absPaths = append(absPaths, absPath)
	}

	// Use batch IPC for efficiency
	mountedPaths, allMounted, err := client.CheckMounts(absPaths)
	if err != nil {
		return fmt.Errorf("failed to check mounts: %w", err)
	}

	// Print results if not quiet
	if !mountCheckQuiet {
		for _, absPath := range absPaths {
			if mountedPaths[absPath] {
				fmt.Printf("%s: mounted\n", absPath)
			} else {
				fmt.Printf("%s: not mounted\n", absPath)
			}
		}
	}

	// Check for path resolution errors
	if len(pathErrors) > 0 {
		allMounted = false
	}

	if !allMounted {
		return fmt.Errorf("one or more paths not mounted")
	}
	return nil
}
