package commands

import (
	"fmt"
	"os"
	"os/exec"
	"syscall"
	"time"

	"github.com/spf13/cobra"

	"flatfs/internal/daemon"
	"flatfs/internal/util"
)

var daemonCmd = &cobra.Command{
	Use:   "daemon",
	Short: "Daemon management commands",
	Long:  `Commands for controlling the flatfs daemon.`,
}

var daemonStartCmd = &cobra.Command{
	Use:   "start",
	Short: "Start the daemon",
	Long:  `Starts the flatfs daemon in the background.`,
	Args:  cobra.NoArgs,
	RunE:  runDaemonStart,
}

var daemonStopCmd = &cobra.Command{
	Use:   "stop",
	Short: "Stop the daemon",
	Long:  `Stops the running flatfs daemon. All mounts are torn down and their contents discarded.`,
	Args:  cobra.NoArgs,
	RunE:  runDaemonStop,
}

var daemonStatusCmd = &cobra.Command{
	Use:   "status",
	Short: "Show daemon status",
	Long:  `Shows the current status of the flatfs daemon and its settings.`,
	Args:  cobra.NoArgs,
	RunE:  runDaemonStatus,
}

var daemonConfigCmd = &cobra.Command{
	Use:   "config",
	Short: "Configure daemon settings",
	Long: `Configure persistent daemon settings.

Settings are stored in the config directory's settings.yaml. The log level
takes effect on next daemon start; capacity limits apply to mounts created
after the change.

Examples:
  # Enable trace logging
  flatfs daemon config --logging trace

  # Disable logging
  flatfs daemon config --logging none

  # Allow 128 files per namespace
  flatfs daemon config --dir-entries 128

  # Show current configuration
  flatfs daemon config`,
	Args: cobra.NoArgs,
	RunE: runDaemonConfig,
}

var daemonForeground bool
var daemonLogLevel string
var daemonRestart bool
var daemonSkipCleanup bool
var configLogLevel string
var configNameLength int
var configDirEntries int
var configOpenFiles int

func init() {
	daemonStartCmd.Flags().BoolVarP(&daemonForeground, "foreground", "f", false, "Run in foreground")
	daemonStartCmd.Flags().StringVar(&daemonLogLevel, "logging", "", "Log level (deprecated: use 'daemon config --logging' instead)")
	daemonStartCmd.Flags().MarkHidden("logging") // Hide deprecated flag
	daemonStartCmd.Flags().BoolVar(&daemonRestart, "restart", false, "Restart daemon if already running (no confirmation)")
	daemonStartCmd.Flags().BoolVar(&daemonSkipCleanup, "skip-cleanup", false, "Skip startup cleanup (stale mounts, zombie daemons)")
	daemonConfigCmd.Flags().StringVar(&configLogLevel, "logging", "", "Log level: trace, debug, info, warn, none")
	daemonConfigCmd.Flags().IntVar(&configNameLength, "name-length", 0, "Maximum file name length in bytes")
	daemonConfigCmd.Flags().IntVar(&configDirEntries, "dir-entries", 0, "Maximum number of files per namespace")
	daemonConfigCmd.Flags().IntVar(&configOpenFiles, "open-files", 0, "Maximum number of concurrently open files per namespace")
	daemonCmd.AddCommand(daemonStartCmd)
	daemonCmd.AddCommand(daemonStopCmd)
	daemonCmd.AddCommand(daemonStatusCmd)
	daemonCmd.AddCommand(daemonConfigCmd)
	rootCmd.AddCommand(daemonCmd)
}

func runDaemonStart(cmd *cobra.Command, args []string) error {
	// Check if already running
	if daemon.IsDaemonRunning() {
		pid, _ := daemon.GetPID()

		if daemonRestart {
			// --restart flag: stop and restart without prompting
			fmt.Printf("Daemon already running (PID %d), restarting...\n", pid)
			if err := stopDaemonAndWait(); err != nil {
				return fmt.Errorf("failed to stop daemon for restart: %w", err)
			}
		} else {
			// No --restart flag: just report and exit
			fmt.Printf("Daemon already running (PID %d)\n", pid)
			fmt.Println("Use --restart to restart the daemon")
			return nil
		}
	}

	// Load log level from settings (or use deprecated --logging flag for backwards compatibility)
	logLevel := daemonLogLevel
	if logLevel == "" {
		settings, err := daemon.LoadGlobalSettings()
		if err == nil {
			logLevel = settings.LogLevel
		}
	}

	if daemonForeground {
		// Run in foreground
		d := daemon.New()
		d.LogLevel = logLevel
		d.SkipCleanup = daemonSkipCleanup
		return d.Run()
	}

	// Start in background
	exe, err := os.Executable()
	if err != nil {
		return err
	}

	// Use "daemon start --foreground" for the actual daemon process
	// Pass log level via hidden --logging flag for the foreground process
	cmdArgs := []string{"daemon", "start", "--foreground"}
	if logLevel != "" {
		cmdArgs = append(cmdArgs, "--logging", logLevel)
	}
	if daemonSkipCleanup {
		cmdArgs = append(cmdArgs, "--skip-cleanup")
	}
	bgDaemon := exec.Command(exe, cmdArgs...)
	bgDaemon.Stdout = nil
	bgDaemon.Stderr = nil
	bgDaemon.Env = os.Environ() // Inherit environment variables (including FLATFS_CONFIG_DIR)
	bgDaemon.SysProcAttr = &syscall.SysProcAttr{
		Setsid: true, // Create new session (detach from terminal)
	}

	if err := bgDaemon.Start(); err != nil {
		return fmt.Errorf("failed to start daemon: %w", err)
	}

	// Wait for daemon to be ready (up to 10 seconds with fast polling).
	// Startup includes stale-mount cleanup, lock acquisition, and the IPC
	// server; under parallel test contention it can exceed a few seconds.
	if util.WaitFixed(400, 25*time.Millisecond, daemon.IsDaemonRunning) {
		pid, _ := daemon.GetPID()
		fmt.Printf("Daemon started (PID %d)\n", pid)
		return nil
	}

	return fmt.Errorf("daemon did not start")
}

func runDaemonStop(cmd *cobra.Command, args []string) error {
	if !daemon.IsDaemonRunning() {
		fmt.Println("Daemon not running")
		// Still clean up stale artifacts (mounts, pid file, socket)
		if result, err := daemon.CleanupStaleMounts(); err == nil {
			if len(result.StaleMounts) > 0 || result.CleanedPidFile || result.CleanedSocket {
				fmt.Println(daemon.FormatCleanupResult(result))
			}
		}
		return nil
	}

	if err := stopDaemonAndWait(); err != nil {
		return err
	}

	fmt.Println("Daemon stopped")
	return nil
}

// stopDaemonAndWait stops the daemon and waits for it to fully stop.
// It also performs cleanup if the daemon doesn't stop cleanly.
func stopDaemonAndWait() error {
	pid, _ := daemon.GetPID()

	// Connect and send stop request
	client, err := daemon.Connect()
	if err != nil {
		// Can't connect but daemon might still be running
		// Try to clean up anyway
		fmt.Println("Warning: could not connect to daemon, forcing cleanup")
		daemon.CleanupStaleMounts()
		return nil
	}

	resp, err := client.Stop()
	client.Close()

	if err != nil {
		return fmt.Errorf("stop request failed: %w", err)
	}

	if !resp.Success {
		return fmt.Errorf("%s", resp.Error)
	}

	// Wait for daemon to actually stop (up to 10 seconds, poll every 25ms)
	stopped := util.WaitFixed(400, 25*time.Millisecond, func() bool {
		return !daemon.IsDaemonRunning()
	})

	if !stopped {
		// Daemon didn't stop gracefully, force cleanup
		fmt.Printf("Warning: daemon (PID %d) did not stop gracefully, forcing cleanup\n", pid)

		// Force kill the process
		if proc, err := os.FindProcess(pid); err == nil {
			proc.Signal(syscall.SIGKILL)
		}

		// Wait a bit more for process to die
		time.Sleep(500 * time.Millisecond)

		// The dead daemon left its mounts behind; clear them
		daemon.CleanupStaleMounts()

		if daemon.IsDaemonRunning() {
			return fmt.Errorf("failed to stop daemon (PID %d)", pid)
		}
	}

	return nil
}

func runDaemonStatus(cmd *cobra.Command, args []string) error {
	// Load global settings
	settings, err := daemon.LoadGlobalSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// Daemon status
	if daemon.IsDaemonRunning() {
		pid, _ := daemon.GetPID()
		fmt.Printf("Daemon: running (PID %d)\n", pid)
	} else {
		fmt.Println("Daemon: not running")
	}

	logLevel := settings.LogLevel
	if logLevel == "" {
		logLevel = "none"
	}
	fmt.Printf("Log level: %s\n", logLevel)

	limits := settings.TableLimits()
	fmt.Printf("Limits: name-length=%d dir-entries=%d open-files=%d\n",
		limits.NameLength, limits.NumDirEntries, limits.NumOpenFiles)

	return nil
}

func runDaemonConfig(cmd *cobra.Command, args []string) error {
	// Load current settings
	settings, err := daemon.LoadGlobalSettings()
	if err != nil {
		return fmt.Errorf("failed to load settings: %w", err)
	}

	// If no flags provided, show current config
	if configLogLevel == "" && configNameLength == 0 && configDirEntries == 0 && configOpenFiles == 0 {
		logLevel := settings.LogLevel
		if logLevel == "" {
			logLevel = "none"
		}
		limits := settings.TableLimits()
		fmt.Println("Current daemon configuration:")
		fmt.Printf("  Log level: %s\n", logLevel)
		fmt.Printf("  Name length limit: %d bytes\n", limits.NameLength)
		fmt.Printf("  Namespace entry limit: %d files\n", limits.NumDirEntries)
		fmt.Printf("  Open file limit: %d handles\n", limits.NumOpenFiles)
		fmt.Println()
		fmt.Println("To change settings:")
		fmt.Println("  flatfs daemon config --logging <level>")
		fmt.Println("  flatfs daemon config --name-length <n> --dir-entries <n> --open-files <n>")
		return nil
	}

	// Handle --logging flag
	if configLogLevel != "" {
		if err := handleLoggingConfig(settings, configLogLevel); err != nil {
			return err
		}
	}

	// Handle limits flags
	if configNameLength != 0 || configDirEntries != 0 || configOpenFiles != 0 {
		if err := handleLimitsConfig(settings); err != nil {
			return err
		}
	}

	return nil
}

// handleLoggingConfig handles the --logging flag
func handleLoggingConfig(settings *daemon.GlobalSettings, value string) error {
	// Validate log level
	validLevels := map[string]bool{
		"trace": true, "debug": true, "info": true, "warn": true, "none": true, "": true,
	}
	normalizedLevel := value
	if normalizedLevel == "off" {
		normalizedLevel = "none"
	}
	if !validLevels[normalizedLevel] {
		return fmt.Errorf("invalid log level %q: must be one of trace, debug, info, warn, none", value)
	}

	// Update log level
	if normalizedLevel == "none" {
		settings.LogLevel = ""
	} else {
		settings.LogLevel = normalizedLevel
	}

	// Save settings
	if err := daemon.SaveGlobalSettings(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	displayLevel := settings.LogLevel
	if displayLevel == "" {
		displayLevel = "none"
	}
	fmt.Printf("Log level set to: %s\n", displayLevel)

	if daemon.IsDaemonRunning() {
		fmt.Println("Restart the daemon for the new log level to take effect:")
		fmt.Println("  flatfs daemon start --restart")
	}

	return nil
}

// handleLimitsConfig handles the --name-length/--dir-entries/--open-files flags.
// A zero flag leaves the stored value unchanged.
func handleLimitsConfig(settings *daemon.GlobalSettings) error {
	for name, v := range map[string]int{
		"--name-length": configNameLength,
		"--dir-entries": configDirEntries,
		"--open-files":  configOpenFiles,
	} {
		if v < 0 {
			return fmt.Errorf("invalid %s value %d: must be positive", name, v)
		}
	}

	if configNameLength > 0 {
		settings.Limits.NameLength = configNameLength
	}
	if configDirEntries > 0 {
		settings.Limits.NumDirEntries = configDirEntries
	}
	if configOpenFiles > 0 {
		settings.Limits.NumOpenFiles = configOpenFiles
	}

	if err := daemon.SaveGlobalSettings(settings); err != nil {
		return fmt.Errorf("failed to save settings: %w", err)
	}

	limits := settings.TableLimits()
	fmt.Printf("Limits set to: name-length=%d dir-entries=%d open-files=%d\n",
		limits.NameLength, limits.NumDirEntries, limits.NumOpenFiles)
	fmt.Println("New limits apply to mounts created after this change")

	return nil
}
