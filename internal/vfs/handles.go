package vfs

import "sync"

// HandleID identifies one open file or directory enumeration.
type HandleID uint64

// openHandle is the state behind one issued HandleID.
type openHandle struct {
	path        string
	isDir       bool
	flags       int
	dirPos      int  // resume point for paged ReadDir
	dirEnumDone bool // set once a paged listing has been fully consumed
}

// HandleManager issues handles and tracks their state. Handles are keyed
// by path rather than inode, so renames must go through RenamePath to keep
// outstanding handles live.
type HandleManager struct {
	mu         sync.RWMutex
	handles    map[HandleID]*openHandle
	nextHandle HandleID
}

func NewHandleManager() *HandleManager {
	return &HandleManager{
		handles:    make(map[HandleID]*openHandle),
		nextHandle: 1,
	}
}

// Allocate creates a new handle for the given path.
// Handle 0 is never issued; the protocol layers use it to mean the root.
func (hm *HandleManager) Allocate(path string, isDir bool, flags int) HandleID {
	hm.mu.Lock()
	defer hm.mu.Unlock()

	handle := hm.nextHandle
	hm.nextHandle++

	hm.handles[handle] = &openHandle{
		path:  path,
		isDir: isDir,
		flags: flags,
	}

	return handle
}

// Get returns the state for h, or ok=false when h was never issued or has
// already been released.
func (hm *HandleManager) Get(h HandleID) (*openHandle, bool) {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	info, ok := hm.handles[h]
	return info, ok
}

// Release drops h. Releasing an unknown handle is a no-op.
func (hm *HandleManager) Release(h HandleID) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	delete(hm.handles, h)
}

// RenamePath rewrites the stored path on every handle open at oldPath.
// Handles are keyed by path, so a rename must retarget them or subsequent
// reads and writes through those handles would miss. Returns the number of
// handles updated.
func (hm *HandleManager) RenamePath(oldPath, newPath string) int {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	count := 0
	for _, info := range hm.handles {
		if info.path == oldPath {
			info.path = newPath
			count++
		}
	}
	return count
}

// UpdateDirPos records how far a paged directory listing has advanced.
func (hm *HandleManager) UpdateDirPos(h HandleID, pos int) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if info, ok := hm.handles[h]; ok {
		info.dirPos = pos
	}
}

// GetDirPos returns the resume point for a paged listing, 0 for unknown
// handles.
func (hm *HandleManager) GetDirPos(h HandleID) int {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	if info, ok := hm.handles[h]; ok {
		return info.dirPos
	}
	return 0
}

// SetDirEnumDone marks whether the listing behind h has been fully consumed.
func (hm *HandleManager) SetDirEnumDone(h HandleID, done bool) {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	if info, ok := hm.handles[h]; ok {
		info.dirEnumDone = done
	}
}

// IsDirEnumDone reports whether the listing behind h has been fully
// consumed.
func (hm *HandleManager) IsDirEnumDone(h HandleID) bool {
	hm.mu.RLock()
	defer hm.mu.RUnlock()
	if info, ok := hm.handles[h]; ok {
		return info.dirEnumDone
	}
	return false
}

// Clear drops every outstanding handle and returns how many there were.
// Teardown uses it to invalidate all handles at once.
func (hm *HandleManager) Clear() int {
	hm.mu.Lock()
	defer hm.mu.Unlock()
	count := len(hm.handles)
	hm.handles = make(map[HandleID]*openHandle)
	// nextHandle keeps counting so cleared IDs are never reissued
	return count
}
