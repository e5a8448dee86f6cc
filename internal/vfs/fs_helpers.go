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

package vfs

import (
	"runtime/debug"
	"strings"

	log "github.com/sirupsen/logrus"

	"github.com/macos-fuse-t/go-smb2/vfs"

	"flatfs/internal/common"
	"flatfs/internal/store"
)

// =============================================================================
// Panic Recovery
// =============================================================================

// recoverFlatFSPanic recovers from panics in FlatFS operations
// This is CRITICAL for preventing SMB server disconnections
func recoverFlatFSPanic(operation string, err *error) {
	if r := recover(); r != nil {
		log.Errorf("[FlatFS] PANIC RECOVERED in %s: %v\nStack:\n%s", operation, r, debug.Stack())
		if err != nil {
			*err = EIO
		}
	}
}

// =============================================================================
// Path Helpers
// =============================================================================

// isNested reports whether a normalized path has more than one component
// under the root. Such paths can never exist in the flat namespace.
func isNested(path string) bool {
	return strings.Contains(strings.TrimPrefix(path, common.Separator), common.Separator)
}

// =============================================================================
// Inode Numbering
// =============================================================================

// RootIno is the inode number reported for the root directory.
const RootIno uint64 = 1

// hashPathToInode generates a deterministic inode number from a path.
// The table has no inode allocator, so inode numbers are derived from the
// path itself. The high bit keeps hashed numbers clear of RootIno.
func hashPathToInode(path string) uint64 {
	const fnvPrime = 1099511628211
	const fnvOffset = 14695981039346656037
	hash := uint64(fnvOffset)
	for i := 0; i < len(path); i++ {
		hash ^= uint64(path[i])
		hash *= fnvPrime
	}
	return hash | 0x8000000000000000
}

// inodeForPath returns the inode number reported for a VFS path.
func inodeForPath(path string) uint64 {
	if common.IsRoot(path) {
		return RootIno
	}
	return hashPathToInode(path)
}

// =============================================================================
// Attribute Conversion Helpers
// =============================================================================

// attrToAttributes converts table metadata to vfs.Attributes
func attrToAttributes(path string, a *store.Attr) *vfs.Attributes {
	attrs := &vfs.Attributes{}

	ino := inodeForPath(path)
	attrs.SetFileHandle(vfs.VfsNode(ino))
	attrs.SetInodeNumber(ino)
	attrs.SetSizeBytes(uint64(a.Size))
	attrs.SetLinkCount(a.Nlink)
	attrs.SetUID(a.UID)
	attrs.SetGID(a.GID)
	attrs.SetPermissions(vfs.NewPermissionsFromMode(a.Mode))
	attrs.SetUnixMode(a.Mode & 0777)
	attrs.SetLastDataModificationTime(a.Mtime)
	attrs.SetLastStatusChangeTime(a.Ctime)
	attrs.SetAccessTime(a.Atime)
	attrs.SetBirthTime(a.Ctime)
	attrs.SetChangeID(uint64(a.Mtime.UnixNano()))

	if a.IsDir() {
		attrs.SetFileType(vfs.FileTypeDirectory)
	} else {
		attrs.SetFileType(vfs.FileTypeRegularFile)
	}

	return attrs
}

// dirInfoFromAttr builds a directory entry from table metadata
func dirInfoFromAttr(name, path string, a *store.Attr) vfs.DirInfo {
	di := vfs.DirInfo{Name: name}
	ino := inodeForPath(path)

	di.SetFileHandle(vfs.VfsNode(ino))
	di.SetInodeNumber(ino)
	di.SetSizeBytes(uint64(a.Size))
	di.SetLastDataModificationTime(a.Mtime)

	if a.IsDir() {
		di.SetFileType(vfs.FileTypeDirectory)
	} else {
		di.SetFileType(vfs.FileTypeRegularFile)
	}
	di.SetPermissions(vfs.NewPermissionsFromMode(a.Mode))
	di.SetUnixMode(a.Mode & 0777)

	return di
}
