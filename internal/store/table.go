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

import (
	"os"
	"sort"
	"time"

	"flatfs/internal/common"
)

// Table is the file-table engine: a flat namespace of records keyed by
// path, with capacity limits and the open-handle admission counter. One
// Table backs one mount and dies with it; nothing is persisted.
//
// The table performs no locking. Operations must arrive one at a time;
// the VFS layer serializes calls from multi-threaded hosts. Offsets and
// sizes passed to Read/Write/Truncate must be non-negative.
type Table struct {
	limits    Limits
	files     map[string]*Record
	admission *Admission
}

// NewTable creates an empty table with the given limits. Zero or negative
// limit fields fall back to the defaults. The admission counter starts at 0.
func NewTable(limits Limits) *Table {
	limits.ApplyDefaults()
	return &Table{
		limits:    limits,
		files:     make(map[string]*Record),
		admission: newAdmission(limits.NumOpenFiles),
	}
}

// Limits returns the table's capacity limits.
func (t *Table) Limits() Limits {
	return t.limits
}

// Admission returns the table's open-handle counter.
func (t *Table) Admission() *Admission {
	return t.admission
}

// Len returns the number of stored records.
func (t *Table) Len() int {
	return len(t.files)
}

// lookup resolves a normalized key to its record.
func (t *Table) lookup(path string) (string, *Record, error) {
	key := common.NormalizePath(path)
	rec, ok := t.files[key]
	if !ok {
		return key, nil, common.ErrNotFound
	}
	return key, rec, nil
}

// remove erases a key and drops the record's buffer.
func (t *Table) remove(key string) {
	if rec, ok := t.files[key]; ok {
		rec.Data = nil
		rec.Size = 0
		delete(t.files, key)
	}
}

// Create inserts a new empty record at path with the given mode. The three
// timestamps are set to now; owner and group default to the process's
// effective ids until changed via SetOwner.
func (t *Table) Create(path string, mode uint32) error {
	key := common.NormalizePath(path)
	name := common.BaseName(key)
	if len(name) > t.limits.NameLength {
		return common.ErrNameTooLong
	}
	if _, ok := t.files[key]; ok {
		return common.ErrExists
	}
	if len(t.files) >= t.limits.NumDirEntries {
		return common.ErrNoSpace
	}

	now := time.Now()
	t.files[key] = &Record{
		Name:  name,
		Mode:  mode,
		UID:   uint32(os.Getuid()),
		GID:   uint32(os.Getgid()),
		Atime: now,
		Mtime: now,
		Ctime: now,
	}
	return nil
}

// Delete removes the record at path, releasing its buffer.
func (t *Table) Delete(path string) error {
	key, _, err := t.lookup(path)
	if err != nil {
		return err
	}
	t.remove(key)
	return nil
}

// Rename moves the record at path to newPath. An existing record at
// newPath is silently removed first (overwrite, not merge). The source is
// checked before anything is touched, so a failed rename leaves the table
// unchanged.
func (t *Table) Rename(path, newPath string) error {
	key, rec, err := t.lookup(path)
	if err != nil {
		return err
	}
	newKey := common.NormalizePath(newPath)
	newName := common.BaseName(newKey)
	if len(newName) > t.limits.NameLength {
		return common.ErrNameTooLong
	}
	if newKey == key {
		return nil
	}

	t.remove(newKey)
	rec.Name = newName
	rec.touchStatus(time.Now())
	t.files[newKey] = rec
	delete(t.files, key)
	return nil
}

// Attributes returns the metadata for path. The root is synthetic: a
// directory with two links whose access/modification times are the current
// time. Stored records report their stored mode, owner, size, and
// timestamps with the regular-file type bit applied.
func (t *Table) Attributes(path string) (*Attr, error) {
	if common.IsRoot(path) {
		now := time.Now()
		return &Attr{
			Mode:  DefaultDirMode,
			Nlink: 2,
			UID:   uint32(os.Getuid()),
			GID:   uint32(os.Getgid()),
			Atime: now,
			Mtime: now,
			Ctime: now,
		}, nil
	}

	_, rec, err := t.lookup(path)
	if err != nil {
		return nil, err
	}
	return &Attr{
		Mode:  ModeFile | rec.Permissions(),
		Nlink: 1,
		UID:   rec.UID,
		GID:   rec.GID,
		Size:  rec.Size,
		Atime: rec.Atime,
		Mtime: rec.Mtime,
		Ctime: rec.Ctime,
	}, nil
}

// SetMode overwrites the record's permission bits.
func (t *Table) SetMode(path string, mode uint32) error {
	_, rec, err := t.lookup(path)
	if err != nil {
		return err
	}
	rec.Mode = mode
	rec.touchStatus(time.Now())
	return nil
}

// SetOwner overwrites the record's owner and/or group. A negative uid or
// gid leaves that field unchanged, so either may be set independently.
func (t *Table) SetOwner(path string, uid, gid int) error {
	_, rec, err := t.lookup(path)
	if err != nil {
		return err
	}
	if uid >= 0 {
		rec.UID = uint32(uid)
	}
	if gid >= 0 {
		rec.GID = uint32(gid)
	}
	rec.touchStatus(time.Now())
	return nil
}

// Open admits one open handle for path. The admission counter is shared
// across the namespace; see Admission.
func (t *Table) Open(path string) error {
	if _, _, err := t.lookup(path); err != nil {
		return err
	}
	return t.admission.Acquire()
}

// Close releases one open handle for path.
func (t *Table) Close(path string) error {
	if _, _, err := t.lookup(path); err != nil {
		return err
	}
	return t.admission.Release()
}

// Read copies up to len(p) bytes from the record's content at offset into
// p and returns the count. Reading an empty record, or at or beyond the
// end of content, yields 0 bytes and no error.
func (t *Table) Read(path string, p []byte, offset int64) (int, error) {
	_, rec, err := t.lookup(path)
	if err != nil {
		return 0, err
	}
	// Clamp: offsets at or past the end read nothing. The size-offset
	// subtraction below is only safe once this holds.
	if rec.Size == 0 || offset < 0 || offset >= rec.Size {
		return 0, nil
	}

	n := int64(len(p))
	if remaining := rec.Size - offset; n > remaining {
		n = remaining
	}
	copy(p, rec.Data[offset:offset+n])
	rec.Atime = time.Now()
	return int(n), nil
}

// Write copies p into the record's content at offset, growing the buffer
// to exactly offset+len(p) when the write extends past the current end.
// Bytes between the old end and offset are left unspecified, not
// guaranteed zero. Returns len(p); growth is unbounded and cannot fail.
func (t *Table) Write(path string, p []byte, offset int64) (int, error) {
	_, rec, err := t.lookup(path)
	if err != nil {
		return 0, err
	}

	if end := offset + int64(len(p)); end > rec.Size {
		grown := make([]byte, end)
		copy(grown, rec.Data)
		rec.Data = grown
		rec.Size = end
	}
	copy(rec.Data[offset:], p)
	rec.touchModify(time.Now())
	return len(p), nil
}

// Truncate reallocates the record's content to exactly size bytes, even
// when size equals the current length. Shrinking discards trailing bytes;
// growing leaves the added region unspecified.
func (t *Table) Truncate(path string, size int64) error {
	_, rec, err := t.lookup(path)
	if err != nil {
		return err
	}

	resized := make([]byte, size)
	copy(resized, rec.Data)
	rec.Data = resized
	rec.Size = size
	rec.touchModify(time.Now())
	return nil
}

// List returns the directory entries for path. The root lists "." and
// ".." followed by every stored name in lexicographic order; any other
// path lists only "." and ".." (the namespace is flat, so non-root
// directories have nothing under them).
func (t *Table) List(path string) []string {
	names := []string{".", ".."}
	if !common.IsRoot(path) {
		return names
	}

	stored := make([]string, 0, len(t.files))
	for _, rec := range t.files {
		stored = append(stored, rec.Name)
	}
	sort.Strings(stored)
	return append(names, stored...)
}

// Teardown deletes every record and resets the admission counter. Invoked
// once at unmount.
func (t *Table) Teardown() {
	for key := range t.files {
		t.remove(key)
	}
	t.admission.Reset()
}
