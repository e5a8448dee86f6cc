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

//go:build darwin

package daemon

import (
	"context"
	"fmt"
	"log"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"
)

// Mount mounts a guest SMB share at mountPoint using mount_smbfs.
// -N skips the password prompt (guest auth), nobrowse keeps the share off
// the Desktop, nostreams disables named streams.
func Mount(port int, shareName, mountPoint string) error {
	if err := os.MkdirAll(mountPoint, 0755); err != nil {
		return fmt.Errorf("failed to create mount point: %w", err)
	}

	url := fmt.Sprintf("//Guest@127.0.0.1:%d/%s", port, shareName)
	log.Printf("Mount: mount_smbfs %s -> %s", url, mountPoint)

	output, err := exec.Command("mount_smbfs", "-N", "-o", "nobrowse,nostreams", url, mountPoint).CombinedOutput()
	if err != nil {
		log.Printf("Mount: mount_smbfs failed: %v, output: %s", err, string(output))
		return fmt.Errorf("mount_smbfs failed: %w, output: %s", err, string(output))
	}
	return nil
}

// unmountTimeout caps each unmount attempt. Once the server is gone the
// kernel client can sit on an unmount until its soft timeout fires; the
// force pass below does not wait that long.
const unmountTimeout = 3 * time.Second

// runUnmountCmd runs one unmount command under unmountTimeout
func runUnmountCmd(name string, args ...string) error {
	ctx, cancel := context.WithTimeout(context.Background(), unmountTimeout)
	defer cancel()
	output, err := exec.CommandContext(ctx, name, args...).CombinedOutput()
	if err != nil {
		return fmt.Errorf("%s %s failed: %w, output: %s", name, strings.Join(args, " "), err, string(output))
	}
	return nil
}

// Unmount detaches mountPoint, escalating from diskutil unmount to plain
// umount to umount -f. Not being mounted is not an error.
func Unmount(mountPoint string) error {
	if !IsMounted(mountPoint) {
		log.Printf("Unmount: %s is not mounted, nothing to do", mountPoint)
		return nil
	}

	attempts := [][]string{
		{"diskutil", "unmount", mountPoint},
		{"umount", mountPoint},
		{"umount", "-f", mountPoint},
	}

	var lastErr error
	for _, attempt := range attempts {
		if lastErr = runUnmountCmd(attempt[0], attempt[1:]...); lastErr == nil {
			log.Printf("Unmount: %s succeeded for %s", attempt[0], mountPoint)
			return nil
		}
		log.Printf("Unmount: %v", lastErr)
	}
	return fmt.Errorf("all unmount attempts failed for %s: %w", mountPoint, lastErr)
}

// IsMounted reports whether mountPoint appears in the kernel mount table
func IsMounted(mountPoint string) bool {
	output, err := exec.Command("mount").Output()
	if err != nil {
		return false
	}

	// Match against the resolved path: /tmp and /var are symlinks into
	// /private on macOS, and the mount table records the resolved form.
	realPath := mountPoint
	if resolved, err := filepath.EvalSymlinks(mountPoint); err == nil {
		realPath = resolved
	}

	for _, line := range strings.Split(string(output), "\n") {
		if strings.Contains(line, " on "+realPath+" ") {
			return true
		}
	}
	return false
}
