package commands

import (
	"context"

	"flatfs/internal/daemon"
	"flatfs/internal/util"
)

// StartDaemonIfNeeded starts the daemon in the background if not running.
// If notify is true, prints a message to inform the user.
// Returns nil if daemon is already running or successfully started.
func StartDaemonIfNeeded(notify bool) error {
	cfg := util.DaemonStartConfig{
		Notify:     notify,
		PollConfig: util.FastPollConfig(),
	}

	return util.StartDaemonIfNeeded(
		context.Background(),
		cfg,
		daemon.IsDaemonRunning,
		[]string{"daemon", "start"},
	)
}

// connectWithRetry connects to the daemon socket, retrying briefly. A daemon
// that just auto-started can pass the liveness check while its IPC accept
// loop is still coming up.
func connectWithRetry() (*daemon.Client, error) {
	return util.RetryWithResult(context.Background(), daemon.Connect,
		util.IPCRetryOptions(context.Background())...)
}
