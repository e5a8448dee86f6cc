//go:build !smb

package vfs

import (
	"time"

	smbvfs "github.com/macos-fuse-t/go-smb2/vfs"
)

// NfsVfsHandle aliases the underlying handle type so the NFS adapter can
// name it without importing the SMB packages itself.
type NfsVfsHandle = smbvfs.VfsHandle

// attrsWrapper presents *smbvfs.Attributes as FileAttrs.
type attrsWrapper struct {
	attrs *smbvfs.Attributes
}

func (w *attrsWrapper) GetFileType() FileType {
	return FileType(w.attrs.GetFileType())
}

func (w *attrsWrapper) GetSizeBytes() (uint64, bool) {
	return w.attrs.GetSizeBytes()
}

func (w *attrsWrapper) GetInodeNumber() uint64 {
	return w.attrs.GetInodeNumber()
}

func (w *attrsWrapper) GetLastDataModificationTime() (time.Time, bool) {
	return w.attrs.GetLastDataModificationTime()
}

func (w *attrsWrapper) GetUnixMode() (uint32, bool) {
	return w.attrs.GetUnixMode()
}

func (w *attrsWrapper) GetUID() (uint32, bool) {
	return w.attrs.GetUID()
}

func (w *attrsWrapper) GetGID() (uint32, bool) {
	return w.attrs.GetGID()
}

// dirInfoWrapper presents *smbvfs.DirInfo as DirEntry.
type dirInfoWrapper struct {
	info *smbvfs.DirInfo
}

func (w *dirInfoWrapper) GetFileType() FileType {
	return FileType(w.info.GetFileType())
}

func (w *dirInfoWrapper) GetSizeBytes() (uint64, bool) {
	return w.info.GetSizeBytes()
}

func (w *dirInfoWrapper) GetInodeNumber() uint64 {
	return w.info.GetInodeNumber()
}

func (w *dirInfoWrapper) GetUnixMode() (uint32, bool) {
	return w.info.GetUnixMode()
}

// WrapAttrs converts a value that may be *smbvfs.Attributes into FileAttrs,
// or nil when it is anything else.
func WrapAttrs(v any) FileAttrs {
	if v == nil {
		return nil
	}
	if a, ok := v.(*smbvfs.Attributes); ok {
		return &attrsWrapper{attrs: a}
	}
	return nil
}

// WrapDirInfo converts a value that may be *smbvfs.DirInfo into DirEntry,
// or nil when it is anything else.
func WrapDirInfo(v any) DirEntry {
	if v == nil {
		return nil
	}
	if d, ok := v.(*smbvfs.DirInfo); ok {
		return &dirInfoWrapper{info: d}
	}
	return nil
}

// NewAttrsWithMode builds an Attributes carrying only a unix mode, for
// SetAttr calls that change permissions and nothing else.
func NewAttrsWithMode(mode uint32) *smbvfs.Attributes {
	attrs := &smbvfs.Attributes{}
	attrs.SetUnixMode(mode)
	return attrs
}

// NewAttrsWithOwner creates a new Attributes object carrying only owner and
// group ids. A negative uid or gid is left unset so SetAttr keeps the
// stored value for that field.
func NewAttrsWithOwner(uid, gid int) *smbvfs.Attributes {
	attrs := &smbvfs.Attributes{}
	if uid >= 0 {
		attrs.SetUID(uint32(uid))
	}
	if gid >= 0 {
		attrs.SetGID(uint32(gid))
	}
	return attrs
}
