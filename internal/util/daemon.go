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

package util

import (
	"context"
	"fmt"
	"os"
)

// DaemonStartConfig controls StartDaemonIfNeeded.
type DaemonStartConfig struct {
	// Notify prints progress to stderr while the daemon comes up
	Notify bool
	// PollConfig bounds the wait for the daemon to report running
	PollConfig PollConfig
}

// StartDaemonIfNeeded spawns the current executable with startCmd in the
// background when isRunning reports false, then waits for isRunning to flip.
// The caller supplies the liveness check, so this package needs no knowledge
// of pid files or sockets.
func StartDaemonIfNeeded(ctx context.Context, cfg DaemonStartConfig, isRunning func() bool, startCmd []string) error {
	if isRunning() {
		return nil
	}

	notify := func(msg string) {
		if cfg.Notify {
			fmt.Fprint(os.Stderr, msg)
		}
	}
	notify("Starting daemon...")

	exe, err := os.Executable()
	if err != nil {
		notify(" failed\n")
		return err
	}
	if _, err := StartBackgroundProcess(exe, startCmd, nil); err != nil {
		notify(" failed\n")
		return err
	}

	if err := PollUntil(ctx, cfg.PollConfig, isRunning); err != nil {
		notify(" timeout\n")
		return fmt.Errorf("daemon did not start in time")
	}

	notify(" done\n")
	return nil
}
