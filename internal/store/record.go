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

package store

import "time"

// File type bits, matching the POSIX st_mode layout
const (
	ModeDir  = 0040000 // Directory
	ModeFile = 0100000 // Regular file
	ModeMask = 0170000 // Type mask
)

// Default modes for new entries
const (
	DefaultDirMode  = ModeDir | 0755  // rwxr-xr-x
	DefaultFileMode = ModeFile | 0644 // rw-r--r--
)

// Record holds one file's metadata and its content buffer. The buffer is
// owned exclusively by the record: Read copies out, Write copies in, and
// Delete drops the only reference.
type Record struct {
	Name  string // path without the leading separator
	Mode  uint32
	UID   uint32
	GID   uint32
	Size  int64 // always len(Data)
	Data  []byte
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// Permissions returns the permission bits
func (r *Record) Permissions() uint32 {
	return r.Mode & 0777
}

// touchModify stamps a content change (mtime + ctime).
func (r *Record) touchModify(now time.Time) {
	r.Mtime = now
	r.Ctime = now
}

// touchStatus stamps a metadata change (ctime only).
func (r *Record) touchStatus(now time.Time) {
	r.Ctime = now
}

// Attr is the metadata snapshot returned by attribute queries.
type Attr struct {
	Mode  uint32
	Nlink uint32
	UID   uint32
	GID   uint32
	Size  int64
	Atime time.Time
	Mtime time.Time
	Ctime time.Time
}

// IsDir returns true if the attributes describe a directory
func (a *Attr) IsDir() bool {
	return a.Mode&ModeMask == ModeDir
}

// IsFile returns true if the attributes describe a regular file
func (a *Attr) IsFile() bool {
	return a.Mode&ModeMask == ModeFile
}

// Permissions returns the permission bits
func (a *Attr) Permissions() uint32 {
	return a.Mode & 0777
}
