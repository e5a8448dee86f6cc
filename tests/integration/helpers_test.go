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

// Package integration exercises the full in-process filesystem stack: the
// file table (internal/store), the VFS layer (internal/vfs), and the billy
// adapter the NFS server hands to its clients (internal/daemon).
//
// These tests stop below the wire. No daemon process is spawned, no NFS or
// SMB server is bound to a port (except the server lifecycle test), and no
// kernel mount is created. Everything the protocol servers call runs here;
// the mount/unmount plumbing above needs a privileged kernel NFS client and
// is exercised manually through the CLI against a running daemon.
//
// ## Test Environments
//
//   - newTestFS:           FlatFS over a fresh table with default limits
//   - newTestFSWithLimits: FlatFS over a table with custom limits
//   - newTestAdapter:      BillyAdapter over a fresh FlatFS (billy_adapter_test.go)
//
// Every constructor returns the subject plus a cleanup func that tears the
// namespace down. Tests run in parallel; each builds its own namespace and
// never shares state.
package integration

import (
	"os"
	"testing"

	"flatfs/internal/store"
	flatfs "flatfs/internal/vfs"
)

// newTestFS creates a FlatFS over a fresh table with default limits.
func newTestFS(t *testing.T) (*flatfs.FlatFS, func()) {
	t.Helper()
	fs := flatfs.NewFlatFS(store.NewTable(store.DefaultLimits()))
	return fs, fs.Teardown
}

// newTestFSWithLimits creates a FlatFS over a table with custom limits.
func newTestFSWithLimits(t *testing.T, limits store.Limits) (*flatfs.FlatFS, func()) {
	t.Helper()
	fs := flatfs.NewFlatFS(store.NewTable(limits))
	return fs, fs.Teardown
}

// writeFile creates (or replaces) a file and writes content through the VFS.
func writeFile(t *testing.T, fs *flatfs.FlatFS, name, content string) {
	t.Helper()
	h, err := fs.Open(name, os.O_CREATE|os.O_RDWR|os.O_TRUNC, 0644)
	if err != nil {
		t.Fatalf("open %s for write: %v", name, err)
	}
	defer fs.Close(h)
	if _, err := fs.Write(h, []byte(content), 0, 0); err != nil {
		t.Fatalf("write %s: %v", name, err)
	}
}

// readFile reads a file's full content through the VFS.
func readFile(t *testing.T, fs *flatfs.FlatFS, name string) string {
	t.Helper()
	h, err := fs.Open(name, os.O_RDONLY, 0)
	if err != nil {
		t.Fatalf("open %s for read: %v", name, err)
	}
	defer fs.Close(h)

	attrs, err := fs.GetAttr(h)
	if err != nil {
		t.Fatalf("stat %s: %v", name, err)
	}
	size, _ := attrs.GetSizeBytes()
	if size == 0 {
		return ""
	}

	buf := make([]byte, size)
	n, err := fs.Read(h, buf, 0, 0)
	if err != nil {
		t.Fatalf("read %s: %v", name, err)
	}
	return string(buf[:n])
}

// fileExists reports whether a name resolves in the namespace.
func fileExists(fs *flatfs.FlatFS, name string) bool {
	_, err := fs.GetAttrByPath(name)
	return err == nil
}

// listNames returns the stored file names in the root, without the dot entries.
func listNames(t *testing.T, fs *flatfs.FlatFS) []string {
	t.Helper()
	h, err := fs.OpenDir("/")
	if err != nil {
		t.Fatalf("open root: %v", err)
	}
	defer fs.Close(h)

	entries, err := fs.ReadDir(h, 0, 0)
	if err != nil {
		t.Fatalf("read root: %v", err)
	}
	var names []string
	for _, e := range entries {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		names = append(names, e.Name)
	}
	return names
}
