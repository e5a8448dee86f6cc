package vfs

import (
	"errors"
	"io"
	"os"
	"sync"
	"time"

	log "github.com/sirupsen/logrus"

	"github.com/macos-fuse-t/go-smb2/vfs"

	"flatfs/internal/common"
	"flatfs/internal/store"
)

// FlatFS implements vfs.VFSFileSystem over an in-memory file table.
// The namespace is flat: the root is the only directory and every file
// lives directly under it.
//
// The table itself does no locking, so every operation serializes through
// fs.mu before touching it.
type FlatFS struct {
	mu      sync.RWMutex
	table   *store.Table
	handles *HandleManager
}

// NewFlatFS creates a new VFS backed by the given file table
func NewFlatFS(table *store.Table) *FlatFS {
	return &FlatFS{
		table:   table,
		handles: NewHandleManager(),
	}
}

// Table returns the underlying file table
func (fs *FlatFS) Table() *store.Table {
	return fs.table
}

// FileCount returns the number of files currently in the namespace.
// Safe to call while the filesystem is serving requests.
func (fs *FlatFS) FileCount() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.table.Len()
}

// OpenCount returns the number of open-file slots currently held.
// Safe to call while the filesystem is serving requests.
func (fs *FlatFS) OpenCount() int {
	fs.mu.RLock()
	defer fs.mu.RUnlock()
	return fs.table.Admission().Count()
}

// Teardown drops every outstanding handle and empties the table.
// Called once at unmount; the FlatFS must not be used afterwards.
func (fs *FlatFS) Teardown() {
	fs.mu.Lock()
	defer fs.mu.Unlock()

	if n := fs.handles.Clear(); n > 0 {
		log.Debugf("[VFS] Teardown: dropped %d open handles", n)
	}
	fs.table.Teardown()
}

// GetAttrByPath returns full attributes for a file or directory by path.
// This avoids the Open/GetAttr/Close round-trip used by BillyAdapter.Stat().
func (fs *FlatFS) GetAttrByPath(vfsPath string) (attrs *vfs.Attributes, err error) {
	defer recoverFlatFSPanic("GetAttrByPath", &err)
	if log.IsLevelEnabled(log.TraceLevel) {
		start := time.Now()
		defer func() { log.Tracef("[VFS] GetAttrByPath %q → %v (%v)", vfsPath, err, time.Since(start)) }()
	}
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	vfsPath = common.NormalizePath(vfsPath)

	a, aerr := fs.table.Attributes(vfsPath)
	if aerr != nil {
		return nil, errnoFromStore(aerr)
	}
	return attrToAttributes(vfsPath, a), nil
}

// --- File Operations ---
// All operations have panic recovery to prevent SMB server disconnections

// Open opens a file
func (fs *FlatFS) Open(path string, flags int, mode int) (handle vfs.VfsHandle, err error) {
	defer recoverFlatFSPanic("Open", &err)
	if log.IsLevelEnabled(log.TraceLevel) {
		start := time.Now()
		defer func() { log.Tracef("[VFS] Open %q flags=%d → %v (%v)", path, flags, err, time.Since(start)) }()
	}
	log.Debugf("[VFS] Open: path=%q flags=%d mode=%d", path, flags, mode)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = common.NormalizePath(path)
	if common.IsRoot(path) {
		return 0, EISDIR
	}
	if isNested(path) {
		// No subdirectories, so the parent cannot exist
		return 0, ENOENT
	}

	if _, aerr := fs.table.Attributes(path); aerr != nil {
		if !errors.Is(aerr, common.ErrNotFound) {
			return 0, errnoFromStore(aerr)
		}
		if flags&os.O_CREATE == 0 {
			return 0, ENOENT
		}
		if cerr := fs.table.Create(path, store.ModeFile|uint32(mode&0777)); cerr != nil {
			return 0, errnoFromStore(cerr)
		}
	} else {
		if flags&os.O_CREATE != 0 && flags&os.O_EXCL != 0 {
			return 0, EEXIST
		}
		if flags&os.O_TRUNC != 0 {
			if terr := fs.table.Truncate(path, 0); terr != nil {
				return 0, errnoFromStore(terr)
			}
		}
	}

	// Every file handle holds one admission slot until Close
	if oerr := fs.table.Open(path); oerr != nil {
		return 0, errnoFromStore(oerr)
	}

	h := fs.handles.Allocate(path, false, flags)
	return vfs.VfsHandle(h), nil
}

// Close closes a file handle
func (fs *FlatFS) Close(handle vfs.VfsHandle) (err error) {
	defer recoverFlatFSPanic("Close", &err)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	info, ok := fs.handles.Get(HandleID(handle))
	if ok && !info.isDir {
		if cerr := fs.table.Close(info.path); cerr != nil {
			// The record was unlinked or replaced while open. The handle
			// still holds its admission slot, so release it directly.
			if errors.Is(cerr, common.ErrNotFound) {
				fs.table.Admission().Release()
			} else {
				log.Debugf("[VFS] Close %q: %v", info.path, cerr)
			}
		}
	}
	fs.handles.Release(HandleID(handle))
	return nil
}

// Read reads data from a file.
// Reads take the write lock because the table bumps atime on every read.
func (fs *FlatFS) Read(handle vfs.VfsHandle, buf []byte, offset uint64, flags int) (n int, err error) {
	defer recoverFlatFSPanic("Read", &err)

	fs.mu.Lock()
	defer fs.mu.Unlock()

	info, ok := fs.handles.Get(HandleID(handle))
	if !ok {
		return 0, EBADF
	}

	if info.isDir {
		return 0, EISDIR
	}

	// Length comes from buffer size, not flags
	n, err = fs.table.Read(info.path, buf, int64(offset))
	if err != nil {
		return 0, errnoFromStore(err)
	}
	return n, nil
}

// Write writes data to a file
func (fs *FlatFS) Write(handle vfs.VfsHandle, buf []byte, offset uint64, flags int) (n int, err error) {
	defer recoverFlatFSPanic("Write", &err)
	if log.IsLevelEnabled(log.TraceLevel) {
		start := time.Now()
		defer func() { log.Tracef("[VFS] Write handle=%d len=%d off=%d → %v (%v)", handle, len(buf), offset, err, time.Since(start)) }()
	}
	fs.mu.Lock()
	defer fs.mu.Unlock()

	info, ok := fs.handles.Get(HandleID(handle))
	if !ok {
		return 0, EBADF
	}

	if info.isDir {
		return 0, EISDIR
	}

	// Write all data from buffer
	n, err = fs.table.Write(info.path, buf, int64(offset))
	if err != nil {
		return 0, errnoFromStore(err)
	}
	return n, nil
}

// Truncate truncates a file
func (fs *FlatFS) Truncate(handle vfs.VfsHandle, size uint64) (err error) {
	defer recoverFlatFSPanic("Truncate", &err)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	info, ok := fs.handles.Get(HandleID(handle))
	if !ok {
		return EBADF
	}

	if info.isDir {
		return EISDIR
	}

	if terr := fs.table.Truncate(info.path, int64(size)); terr != nil {
		return errnoFromStore(terr)
	}
	return nil
}

// FSync flushes file data to disk
func (fs *FlatFS) FSync(handle vfs.VfsHandle) error {
	// Contents live in memory; nothing to sync
	return nil
}

// Flush flushes file data
func (fs *FlatFS) Flush(handle vfs.VfsHandle) error {
	return nil
}

// --- Directory Operations ---

// Mkdir creates a directory. The namespace is flat, so directories other
// than the root cannot exist.
func (fs *FlatFS) Mkdir(path string, mode int) (attrs *vfs.Attributes, err error) {
	defer recoverFlatFSPanic("Mkdir", &err)
	log.Debugf("[VFS] Mkdir: path=%q mode=%o", path, mode)

	if common.IsRoot(common.NormalizePath(path)) {
		return nil, EEXIST
	}
	return nil, EPERM
}

// OpenDir opens a directory
func (fs *FlatFS) OpenDir(path string) (handle vfs.VfsHandle, err error) {
	defer recoverFlatFSPanic("OpenDir", &err)
	log.Debugf("[VFS] OpenDir: path=%q", path)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = common.NormalizePath(path)

	if !common.IsRoot(path) {
		// Only the root is a directory; a stored name is a file
		if _, aerr := fs.table.Attributes(path); aerr == nil {
			return 0, ENOTDIR
		}
		return 0, ENOENT
	}

	// Directory handles don't consume admission slots
	h := fs.handles.Allocate(path, true, os.O_RDONLY)
	return vfs.VfsHandle(h), nil
}

// OpenAny opens a file or directory by path in a single lock acquisition.
// This eliminates the try-Open-then-OpenDir double-attempt pattern used by
// BillyAdapter methods like Rename() and Chmod().
func (fs *FlatFS) OpenAny(path string, flags int, mode int) (handle vfs.VfsHandle, err error) {
	defer recoverFlatFSPanic("OpenAny", &err)
	log.Debugf("[VFS] OpenAny: path=%q flags=%d mode=%d", path, flags, mode)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	path = common.NormalizePath(path)

	if common.IsRoot(path) {
		h := fs.handles.Allocate(path, true, os.O_RDONLY)
		return vfs.VfsHandle(h), nil
	}

	if _, aerr := fs.table.Attributes(path); aerr != nil {
		return 0, errnoFromStore(aerr)
	}

	if oerr := fs.table.Open(path); oerr != nil {
		return 0, errnoFromStore(oerr)
	}

	h := fs.handles.Allocate(path, false, flags)
	return vfs.VfsHandle(h), nil
}

// ReadDir reads directory entries
func (fs *FlatFS) ReadDir(handle vfs.VfsHandle, offset int, count int) (entries []vfs.DirInfo, err error) {
	defer recoverFlatFSPanic("ReadDir", &err)
	if log.IsLevelEnabled(log.TraceLevel) {
		start := time.Now()
		defer func() {
			log.Tracef("[VFS] ReadDir handle=%d off=%d → %d entries, %v (%v)", handle, offset, len(entries), err, time.Since(start))
		}()
	}
	log.Debugf("[VFS] ReadDir: handle=%d offset=%d count=%d", handle, offset, count)
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	info, ok := fs.handles.Get(HandleID(handle))
	if !ok {
		return nil, EBADF
	}

	if !info.isDir {
		return nil, ENOTDIR
	}

	// SMB2 protocol: offset > 0 (RESTART_SCANS) means restart enumeration,
	// offset == 0 means continue from where we left off
	if offset > 0 {
		fs.handles.SetDirEnumDone(HandleID(handle), false)
		fs.handles.UpdateDirPos(HandleID(handle), 0)
	}

	// If we already returned all entries, return EOF
	if fs.handles.IsDirEnumDone(HandleID(handle)) {
		return nil, io.EOF
	}

	names := fs.table.List(info.path)

	rootAttr, aerr := fs.table.Attributes(common.Separator)
	if aerr != nil {
		return nil, EIO
	}

	all := make([]vfs.DirInfo, 0, len(names))
	for _, name := range names {
		if name == "." || name == ".." {
			// ".." gets the root's attributes too; the root is its own parent
			all = append(all, dirInfoFromAttr(name, common.Separator, rootAttr))
			continue
		}
		entryPath := common.JoinName(name)
		a, aerr := fs.table.Attributes(entryPath)
		if aerr != nil {
			continue
		}
		all = append(all, dirInfoFromAttr(name, entryPath, a))
	}

	// Serve a window when the client passed a count, continuing from the
	// stored position on the next call
	pos := fs.handles.GetDirPos(HandleID(handle))
	if pos >= len(all) {
		fs.handles.SetDirEnumDone(HandleID(handle), true)
		return nil, io.EOF
	}

	end := len(all)
	if count > 0 && pos+count < end {
		end = pos + count
	}

	entries = all[pos:end]
	fs.handles.UpdateDirPos(HandleID(handle), end)
	if end == len(all) {
		fs.handles.SetDirEnumDone(HandleID(handle), true)
	}

	return entries, nil
}

// --- Metadata Operations ---

// GetAttr gets file attributes
func (fs *FlatFS) GetAttr(handle vfs.VfsHandle) (attrs *vfs.Attributes, err error) {
	defer recoverFlatFSPanic("GetAttr", &err)
	log.Debugf("[VFS] GetAttr: handle=%d", handle)
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	// Handle 0 means root directory
	path := common.Separator
	if handle != 0 {
		info, ok := fs.handles.Get(HandleID(handle))
		if !ok {
			return nil, EBADF
		}
		path = info.path
	}

	a, aerr := fs.table.Attributes(path)
	if aerr != nil {
		return nil, errnoFromStore(aerr)
	}
	return attrToAttributes(path, a), nil
}

// SetAttr sets file attributes
func (fs *FlatFS) SetAttr(handle vfs.VfsHandle, inAttrs *vfs.Attributes) (attrs *vfs.Attributes, err error) {
	defer recoverFlatFSPanic("SetAttr", &err)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	info, ok := fs.handles.Get(HandleID(handle))
	if !ok {
		return nil, EBADF
	}

	if !info.isDir {
		if mode, ok := inAttrs.GetUnixMode(); ok {
			// Keep the type bit, apply new permission bits
			if serr := fs.table.SetMode(info.path, store.ModeFile|(mode&0777)); serr != nil {
				return nil, errnoFromStore(serr)
			}
		}

		uid, haveUID := inAttrs.GetUID()
		gid, haveGID := inAttrs.GetGID()
		if haveUID || haveGID {
			newUID, newGID := -1, -1
			if haveUID {
				newUID = int(uid)
			}
			if haveGID {
				newGID = int(gid)
			}
			if serr := fs.table.SetOwner(info.path, newUID, newGID); serr != nil {
				return nil, errnoFromStore(serr)
			}
		}

		if size, ok := inAttrs.GetSizeBytes(); ok {
			if terr := fs.table.Truncate(info.path, int64(size)); terr != nil {
				return nil, errnoFromStore(terr)
			}
		}

		// The table stamps times itself; explicit time updates are dropped
	}

	a, aerr := fs.table.Attributes(info.path)
	if aerr != nil {
		return nil, errnoFromStore(aerr)
	}
	return attrToAttributes(info.path, a), nil
}

// Lookup finds a file in a directory
func (fs *FlatFS) Lookup(dirHandle vfs.VfsHandle, name string) (attrs *vfs.Attributes, err error) {
	defer recoverFlatFSPanic("Lookup", &err)
	log.Debugf("[VFS] Lookup: dirHandle=%d name=%q", dirHandle, name)
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	// Handle 0 means root directory
	if dirHandle != 0 {
		info, ok := fs.handles.Get(HandleID(dirHandle))
		if !ok {
			return nil, EBADF
		}
		if !info.isDir {
			return nil, ENOTDIR
		}
	}

	// "/", "", "." and ".." all resolve to the root itself
	if name == "/" || name == "" || name == "." || name == ".." {
		a, aerr := fs.table.Attributes(common.Separator)
		if aerr != nil {
			return nil, EIO
		}
		return attrToAttributes(common.Separator, a), nil
	}

	path := common.NormalizePath(name)
	a, aerr := fs.table.Attributes(path)
	if aerr != nil {
		return nil, errnoFromStore(aerr)
	}
	return attrToAttributes(path, a), nil
}

// StatFS returns filesystem statistics synthesized from the table limits
func (fs *FlatFS) StatFS(handle vfs.VfsHandle) (*vfs.FSAttributes, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	limits := fs.table.Limits()
	free := limits.NumDirEntries - fs.table.Len()
	if free < 0 {
		free = 0
	}

	attrs := &vfs.FSAttributes{}
	attrs.SetBlockSize(4096)
	attrs.SetIOSize(4096)
	attrs.SetBlocks(1000000)
	attrs.SetFreeBlocks(500000)
	attrs.SetAvailableBlocks(500000)
	attrs.SetFiles(uint64(limits.NumDirEntries))
	attrs.SetFreeFiles(uint64(free))
	return attrs, nil
}

// --- File Management ---

// Unlink removes a file
func (fs *FlatFS) Unlink(handle vfs.VfsHandle) (err error) {
	defer recoverFlatFSPanic("Unlink", &err)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	log.Debugf("[VFS] Unlink: handle=%d", handle)
	info, ok := fs.handles.Get(HandleID(handle))
	if !ok {
		return EBADF
	}

	if info.isDir {
		// The only directory is the root, and it cannot be removed
		return EPERM
	}

	if derr := fs.table.Delete(info.path); derr != nil {
		return errnoFromStore(derr)
	}
	return nil
}

// UnlinkByPath removes a file by path without requiring a handle.
// This avoids the Open/Unlink/Close round-trip and the try-file-then-dir
// double-attempt used by BillyAdapter.Remove().
func (fs *FlatFS) UnlinkByPath(vfsPath string) (err error) {
	defer recoverFlatFSPanic("UnlinkByPath", &err)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	vfsPath = common.NormalizePath(vfsPath)
	log.Debugf("[VFS] UnlinkByPath: path=%q", vfsPath)

	if common.IsRoot(vfsPath) {
		return EPERM
	}

	if derr := fs.table.Delete(vfsPath); derr != nil {
		return errnoFromStore(derr)
	}
	return nil
}

// Rename renames a file within the flat namespace. An existing file at
// the new name is silently replaced.
func (fs *FlatFS) Rename(handle vfs.VfsHandle, newName string, flags int) (err error) {
	defer recoverFlatFSPanic("Rename", &err)
	fs.mu.Lock()
	defer fs.mu.Unlock()

	info, ok := fs.handles.Get(HandleID(handle))
	if !ok {
		return EBADF
	}

	if info.isDir {
		return EPERM
	}

	newPath := common.NormalizePath(newName)
	if common.IsRoot(newPath) {
		return EINVAL
	}
	if isNested(newPath) {
		return ENOENT
	}

	if rerr := fs.table.Rename(info.path, newPath); rerr != nil {
		return errnoFromStore(rerr)
	}

	// Retarget every handle that was open at the old path
	fs.handles.RenamePath(info.path, newPath)
	return nil
}

// --- Symbolic Link Operations ---

// Readlink reads a symbolic link target. The table stores only regular
// files, so any valid handle answers EINVAL.
func (fs *FlatFS) Readlink(handle vfs.VfsHandle) (string, error) {
	fs.mu.RLock()
	defer fs.mu.RUnlock()

	if _, ok := fs.handles.Get(HandleID(handle)); !ok {
		return "", EBADF
	}
	return "", EINVAL
}

// Symlink is not supported
func (fs *FlatFS) Symlink(handle vfs.VfsHandle, target string, mode int) (*vfs.Attributes, error) {
	return nil, EPERM
}

// Link creates a hard link
func (fs *FlatFS) Link(srcNode vfs.VfsNode, dstNode vfs.VfsNode, name string) (*vfs.Attributes, error) {
	return nil, ENOTSUP
}

// --- Extended Attributes (stub implementation) ---

func (fs *FlatFS) Listxattr(handle vfs.VfsHandle) ([]string, error) {
	// Return empty list - no xattrs supported
	return []string{}, nil
}

func (fs *FlatFS) Getxattr(handle vfs.VfsHandle, name string, buf []byte) (int, error) {
	// No xattrs supported
	return 0, ENOATTR
}

func (fs *FlatFS) Setxattr(handle vfs.VfsHandle, name string, value []byte) error {
	// Silently succeed (some SMB clients expect this to work)
	return nil
}

func (fs *FlatFS) Removexattr(handle vfs.VfsHandle, name string) error {
	// Silently succeed
	return nil
}
