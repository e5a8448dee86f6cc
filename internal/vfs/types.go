package vfs

import "time"

// FileType distinguishes the two kinds of entries a flat namespace holds
type FileType int

const (
	// FileTypeRegularFile is a regular file
	FileTypeRegularFile FileType = iota
	// FileTypeDirectory is a directory (only the root here)
	FileTypeDirectory
)

// FileAttrs exposes file attributes without tying callers to the SMB
// attribute type. The NFS adapter reads through this interface.
type FileAttrs interface {
	GetFileType() FileType
	GetSizeBytes() (uint64, bool)
	GetInodeNumber() uint64
	GetLastDataModificationTime() (time.Time, bool)
	GetUnixMode() (uint32, bool)
	GetUID() (uint32, bool)
	GetGID() (uint32, bool)
}

// DirEntry exposes directory listing entries the same way
type DirEntry interface {
	GetFileType() FileType
	GetSizeBytes() (uint64, bool)
	GetInodeNumber() uint64
	GetUnixMode() (uint32, bool)
}
