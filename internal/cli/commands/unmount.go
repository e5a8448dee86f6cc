package commands

import (
	"fmt"
	"path/filepath"

	"github.com/spf13/cobra"

	"flatfs/internal/daemon"
)

var unmountCmd = &cobra.Command{
	Use:     "unmount <mount-point>",
	Aliases: []string{"umount"},
	Short:   "Unmount a namespace",
	Long: `Unmounts a mounted flatfs namespace. Its contents are discarded.

Use --all to unmount all namespaces (daemon continues running).`,
	Args: cobra.MaximumNArgs(1),
	RunE: runUnmount,
}

var unmountAll bool

func init() {
	unmountCmd.Flags().BoolVarP(&unmountAll, "all", "a", false, "Unmount all namespaces")
	rootCmd.AddCommand(unmountCmd)
}

func runUnmount(cmd *cobra.Command, args []string) error {
	if !unmountAll && len(args) == 0 {
		return fmt.Errorf("mount point required (or use --all)")
	}
	if !daemon.IsDaemonRunning() {
		return fmt.Errorf("daemon is not running")
	}

	client, err := daemon.Connect()
	if err != nil {
		return fmt.Errorf("failed to connect to daemon: %w", err)
	}
	defer client.Close()

	var target string
	if !unmountAll {
		target, err = filepath.Abs(args[0])
		if err != nil {
			return fmt.Errorf("failed to resolve mount point: %w", err)
		}
	}

	resp, err := client.Unmount(target, unmountAll)
	if err != nil {
		return fmt.Errorf("unmount request failed: %w", err)
	}
	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}

	fmt.Println(resp.Message)
	return nil
}
