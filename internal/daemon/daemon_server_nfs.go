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

//go:build !smb

package daemon

import (
	"log"

	"flatfs/internal/store"
	flatfs "flatfs/internal/vfs"
)

// createServerForTable creates a network filesystem server for a file table VFS
func createServerForTable(fs *flatfs.FlatFS, shareName string) (NetFSServer, error) {
	return NewNFSServer(fs, shareName), nil
}

// createTableAndServer builds an empty file table with the given limits and
// a server exporting it
func createTableAndServer(limits store.Limits, shareName string) (*flatfs.FlatFS, NetFSServer, error) {
	table := store.NewTable(limits)
	fs := flatfs.NewFlatFS(table)

	srv, err := createServerForTable(fs, shareName)
	if err != nil {
		fs.Teardown()
		return nil, nil, err
	}

	return fs, srv, nil
}

// mountNetFS mounts the network filesystem
func mountNetFS(ip string, port int, shareName string, mountPath string) error {
	return NFSMount(ip, port, shareName, mountPath)
}

// logServerType logs what type of server is being used
func logServerType() {
	log.Printf("Using NFS server")
}
