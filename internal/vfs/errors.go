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
	"errors"
	"syscall"

	"flatfs/internal/common"
)

// VFS error codes mapped to syscall errors
var (
	ENOENT       = syscall.ENOENT       // No such file or directory
	EEXIST       = syscall.EEXIST       // File exists
	ENOTDIR      = syscall.ENOTDIR      // Not a directory
	EISDIR       = syscall.EISDIR       // Is a directory
	EBADF        = syscall.EBADF        // Bad file descriptor
	EINVAL       = syscall.EINVAL       // Invalid argument
	ENOTSUP      = syscall.ENOTSUP      // Operation not supported
	ENOSPC       = syscall.ENOSPC       // No space left on device
	EIO          = syscall.EIO          // I/O error
	EACCES       = syscall.EACCES       // Permission denied
	EPERM        = syscall.EPERM        // Operation not permitted
	EROFS        = syscall.EROFS        // Read-only file system
	ENOTEMPTY    = syscall.ENOTEMPTY    // Directory not empty
	ENAMETOOLONG = syscall.ENAMETOOLONG // File name too long
	EMFILE       = syscall.EMFILE       // Too many open files
)

// errnoFromStore maps file-table sentinel errors onto the syscall errors
// above. Unknown errors come back as EIO so the protocol layer never sees
// a non-errno error.
func errnoFromStore(err error) error {
	switch {
	case err == nil:
		return nil
	case errors.Is(err, common.ErrNotFound):
		return ENOENT
	case errors.Is(err, common.ErrExists):
		return EEXIST
	case errors.Is(err, common.ErrNameTooLong):
		return ENAMETOOLONG
	case errors.Is(err, common.ErrNoSpace):
		return ENOSPC
	case errors.Is(err, common.ErrTooManyOpen):
		return EMFILE
	case errors.Is(err, common.ErrNotOpen):
		return EBADF
	case errors.Is(err, common.ErrIsDir):
		return EISDIR
	case errors.Is(err, common.ErrNotDir):
		return ENOTDIR
	case errors.Is(err, common.ErrInvalidHandle):
		return EBADF
	default:
		return EIO
	}
}
