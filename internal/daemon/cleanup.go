package daemon

import (
	"bufio"
	"fmt"
	"os"
	"os/exec"
	"strings"

	"flatfs/internal/util"
)

// CleanupResult contains the result of a cleanup operation
type CleanupResult struct {
	StaleMounts    []string // Mount points that were unmounted
	CleanedPidFile bool     // Whether PID file was cleaned
	CleanedSocket  bool     // Whether socket file was cleaned
	Errors         []error  // Any errors encountered
}

// CleanupStaleMounts finds and unmounts stale flatfs mounts (both NFS and SMB).
// A stale mount is one served from localhost while the daemon isn't running:
// the server died with the daemon, so the mount point just hangs.
func CleanupStaleMounts() (*CleanupResult, error) {
	result := &CleanupResult{}

	// Don't clean up if daemon is running
	if IsDaemonRunning() {
		return result, nil
	}

	var staleMounts []string

	nfsMounts, err := findStaleNFSMounts()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("failed to find stale NFS mounts: %w", err))
	} else {
		staleMounts = append(staleMounts, nfsMounts...)
	}

	smbMounts, err := findStaleSMBMounts()
	if err != nil {
		result.Errors = append(result.Errors, fmt.Errorf("failed to find stale SMB mounts: %w", err))
	} else {
		staleMounts = append(staleMounts, smbMounts...)
	}

	for _, mountPoint := range staleMounts {
		if err := Unmount(mountPoint); err != nil {
			result.Errors = append(result.Errors, fmt.Errorf("failed to unmount %s: %w", mountPoint, err))
		} else {
			result.StaleMounts = append(result.StaleMounts, mountPoint)
		}
	}

	if cleanedPid := cleanupStalePidFile(); cleanedPid {
		result.CleanedPidFile = true
	}

	if cleanedSocket := cleanupStaleSocket(); cleanedSocket {
		result.CleanedSocket = true
	}

	return result, nil
}

// parseMountPoint extracts the mount point from one line of `mount` output.
// Handles both output shapes:
//
//	127.0.0.1:/ on /path/to/mount (nfs, ...)       (darwin)
//	127.0.0.1:/ on /path/to/mount type nfs (rw...) (linux)
func parseMountPoint(line string) string {
	parts := strings.SplitN(line, " on ", 2)
	if len(parts) < 2 {
		return ""
	}
	rest := parts[1]
	if idx := strings.Index(rest, " type "); idx != -1 {
		return rest[:idx]
	}
	if idx := strings.Index(rest, " ("); idx != -1 {
		return rest[:idx]
	}
	return strings.TrimSpace(rest)
}

// findStaleNFSMounts finds NFS mounts served from localhost.
// The server exports the whole root ("127.0.0.1:/"); real NFS servers export
// subtrees, so a whole-root localhost export is one of ours.
func findStaleNFSMounts() ([]string, error) {
	cmd := exec.Command("mount", "-t", "nfs")
	output, err := cmd.Output()
	if err != nil {
		// If command fails (e.g., no nfs mounts), that's OK
		return nil, nil
	}

	var staleMounts []string
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		line := scanner.Text()
		if !strings.HasPrefix(line, "localhost:/ ") && !strings.HasPrefix(line, "127.0.0.1:/ ") {
			continue
		}
		if mountPoint := parseMountPoint(line); mountPoint != "" {
			staleMounts = append(staleMounts, mountPoint)
		}
	}

	return staleMounts, scanner.Err()
}

// findStaleSMBMounts finds guest SMB mounts served from localhost.
func findStaleSMBMounts() ([]string, error) {
	cmd := exec.Command("mount", "-t", "smbfs")
	output, err := cmd.Output()
	if err != nil {
		// If command fails (e.g., no smbfs mounts), that's OK
		return nil, nil
	}

	var staleMounts []string
	scanner := bufio.NewScanner(strings.NewReader(string(output)))
	for scanner.Scan() {
		line := scanner.Text()
		// Format: //Guest@127.0.0.1:PORT/share on /path/to/mount (smbfs, ...)
		lower := strings.ToLower(line)
		if !strings.Contains(lower, "//guest@127.0.0.1:") && !strings.Contains(lower, "//guest@localhost:") {
			continue
		}
		if mountPoint := parseMountPoint(line); mountPoint != "" {
			staleMounts = append(staleMounts, mountPoint)
		}
	}

	return staleMounts, scanner.Err()
}

// cleanupStalePidFile removes the PID file if the recorded process is dead
func cleanupStalePidFile() bool {
	pid, err := GetPID()
	if err != nil {
		// No PID file or can't read it
		return false
	}

	if util.IsProcessRunning(pid) {
		return false
	}

	os.Remove(PidPath())
	return true
}

// cleanupStaleSocket removes the socket file if the daemon isn't running
func cleanupStaleSocket() bool {
	socketPath := SocketPath()

	if _, err := os.Stat(socketPath); os.IsNotExist(err) {
		return false
	}

	// If we can't connect to the daemon, the socket is stale
	if !IsDaemonRunning() {
		os.Remove(socketPath)
		return true
	}

	return false
}

// FormatCleanupResult formats a cleanup result for display
func FormatCleanupResult(result *CleanupResult) string {
	var parts []string

	if len(result.StaleMounts) > 0 {
		parts = append(parts, fmt.Sprintf("Unmounted %d stale mount(s):", len(result.StaleMounts)))
		for _, m := range result.StaleMounts {
			parts = append(parts, fmt.Sprintf("  - %s", m))
		}
	}

	if result.CleanedPidFile {
		parts = append(parts, "Cleaned up stale PID file")
	}

	if result.CleanedSocket {
		parts = append(parts, "Cleaned up stale socket file")
	}

	if len(result.Errors) > 0 {
		parts = append(parts, fmt.Sprintf("Encountered %d error(s):", len(result.Errors)))
		for _, e := range result.Errors {
			parts = append(parts, fmt.Sprintf("  - %s", e.Error()))
		}
	}

	if len(parts) == 0 {
		return "No cleanup needed"
	}

	return strings.Join(parts, "\n")
}
