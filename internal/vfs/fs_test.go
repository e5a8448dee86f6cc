package vfs

import (
	"io"
	"os"
	"strings"
	"testing"

	"github.com/macos-fuse-t/go-smb2/vfs"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"flatfs/internal/store"
)

// testFlatFS creates a FlatFS over a fresh table with default limits.
func testFlatFS(t *testing.T) *FlatFS {
	t.Helper()
	return NewFlatFS(store.NewTable(store.DefaultLimits()))
}

// testFlatFSWithLimits creates a FlatFS over a table with custom limits.
func testFlatFSWithLimits(t *testing.T, limits store.Limits) *FlatFS {
	t.Helper()
	return NewFlatFS(store.NewTable(limits))
}

func TestFlatFS(t *testing.T) {
	t.Parallel()

	t.Run("NewFlatFS initializes correctly", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		require.NotNil(t, fs)
		assert.NotNil(t, fs.table)
		assert.NotNil(t, fs.handles)
	})

	t.Run("Table returns the backing table", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		assert.NotNil(t, fs.Table())
	})
}

func TestOpen(t *testing.T) {
	t.Parallel()

	t.Run("creates file with O_CREATE", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		handle, err := fs.Open("/test.txt", os.O_CREATE|os.O_RDWR, 0644)
		require.NoError(t, err)
		assert.NotZero(t, handle)
		fs.Close(handle)
	})

	t.Run("returns ENOENT for nonexistent", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		_, err := fs.Open("/nonexistent.txt", os.O_RDONLY, 0)
		assert.Equal(t, ENOENT, err)
	})

	t.Run("opens existing file", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h1, _ := fs.Open("/test.txt", os.O_CREATE|os.O_RDWR, 0644)
		fs.Close(h1)

		h2, err := fs.Open("/test.txt", os.O_RDONLY, 0)
		require.NoError(t, err)
		fs.Close(h2)
	})

	t.Run("returns EISDIR for root", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		_, err := fs.Open("/", os.O_RDONLY, 0)
		assert.Equal(t, EISDIR, err)
	})

	t.Run("returns EEXIST with O_CREATE|O_EXCL on existing", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		fs.Close(h)

		_, err := fs.Open("/test.txt", os.O_CREATE|os.O_EXCL, 0644)
		assert.Equal(t, EEXIST, err)
	})

	t.Run("O_TRUNC empties an existing file", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE|os.O_RDWR, 0644)
		fs.Write(h, []byte("content"), 0, 0)
		fs.Close(h)

		h2, err := fs.Open("/test.txt", os.O_RDWR|os.O_TRUNC, 0)
		require.NoError(t, err)
		defer fs.Close(h2)

		attrs, err := fs.GetAttr(h2)
		require.NoError(t, err)
		size, _ := attrs.GetSizeBytes()
		assert.Zero(t, size)
	})

	t.Run("returns ENOENT for nested path", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		_, err := fs.Open("/subdir/file.txt", os.O_CREATE|os.O_RDWR, 0644)
		assert.Equal(t, ENOENT, err)
	})

	t.Run("returns ENAMETOOLONG for long names", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFSWithLimits(t, store.Limits{NameLength: 8})

		_, err := fs.Open("/much-too-long.txt", os.O_CREATE, 0644)
		assert.Equal(t, ENAMETOOLONG, err)
	})

	t.Run("returns ENOSPC when the table is full", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFSWithLimits(t, store.Limits{NumDirEntries: 1})

		h, err := fs.Open("/a.txt", os.O_CREATE, 0644)
		require.NoError(t, err)
		fs.Close(h)

		_, err = fs.Open("/b.txt", os.O_CREATE, 0644)
		assert.Equal(t, ENOSPC, err)
	})

	t.Run("returns EMFILE at the open-file ceiling", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFSWithLimits(t, store.Limits{NumOpenFiles: 2})

		h1, err := fs.Open("/a.txt", os.O_CREATE, 0644)
		require.NoError(t, err)
		h2, err := fs.Open("/b.txt", os.O_CREATE, 0644)
		require.NoError(t, err)

		_, err = fs.Open("/c.txt", os.O_CREATE, 0644)
		assert.Equal(t, EMFILE, err)

		// Closing any handle frees a slot for any file
		require.NoError(t, fs.Close(h1))
		h3, err := fs.Open("/c.txt", os.O_RDONLY, 0)
		require.NoError(t, err)

		fs.Close(h2)
		fs.Close(h3)
	})
}

func TestClose(t *testing.T) {
	t.Parallel()

	t.Run("releases the admission slot", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		assert.Equal(t, 1, fs.Table().Admission().Count())

		require.NoError(t, fs.Close(h))
		assert.Equal(t, 0, fs.Table().Admission().Count())
	})

	t.Run("is nil for unknown handles", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		assert.NoError(t, fs.Close(999))
	})

	t.Run("releases the slot after unlink", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		require.NoError(t, fs.UnlinkByPath("/test.txt"))

		require.NoError(t, fs.Close(h))
		assert.Equal(t, 0, fs.Table().Admission().Count())
	})

	t.Run("dir handles don't touch the counter", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, err := fs.OpenDir("/")
		require.NoError(t, err)
		assert.Equal(t, 0, fs.Table().Admission().Count())

		require.NoError(t, fs.Close(h))
		assert.Equal(t, 0, fs.Table().Admission().Count())
	})
}

func TestReadWrite(t *testing.T) {
	t.Parallel()

	t.Run("writes and reads data", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		handle, _ := fs.Open("/test.txt", os.O_CREATE|os.O_RDWR, 0644)
		defer fs.Close(handle)

		data := []byte("Hello, World!")
		n, err := fs.Write(handle, data, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, len(data), n)

		buf := make([]byte, 100)
		n, err = fs.Read(handle, buf, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, len(data), n)
		assert.Equal(t, string(data), string(buf[:n]))
	})

	t.Run("writes at offset", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		handle, _ := fs.Open("/test.txt", os.O_CREATE|os.O_RDWR, 0644)
		defer fs.Close(handle)

		fs.Write(handle, []byte("Hello"), 0, 0)
		fs.Write(handle, []byte(" World"), 5, 0)

		buf := make([]byte, 100)
		n, _ := fs.Read(handle, buf, 0, 0)
		assert.Equal(t, "Hello World", string(buf[:n]))
	})

	t.Run("read past the end returns zero bytes", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		handle, _ := fs.Open("/test.txt", os.O_CREATE|os.O_RDWR, 0644)
		defer fs.Close(handle)

		fs.Write(handle, []byte("hi"), 0, 0)

		buf := make([]byte, 10)
		n, err := fs.Read(handle, buf, 2, 0)
		require.NoError(t, err)
		assert.Zero(t, n)

		n, err = fs.Read(handle, buf, 100, 0)
		require.NoError(t, err)
		assert.Zero(t, n)
	})

	t.Run("Read returns EBADF for invalid handle", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		buf := make([]byte, 100)
		_, err := fs.Read(999, buf, 0, 0)
		assert.Equal(t, EBADF, err)
	})

	t.Run("Write returns EBADF for invalid handle", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		_, err := fs.Write(999, []byte("test"), 0, 0)
		assert.Equal(t, EBADF, err)
	})

	t.Run("Read returns EISDIR for directory", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		handle, _ := fs.OpenDir("/")
		defer fs.Close(handle)

		buf := make([]byte, 100)
		_, err := fs.Read(handle, buf, 0, 0)
		assert.Equal(t, EISDIR, err)
	})

	t.Run("write grows the file to offset plus length", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		handle, _ := fs.Open("/test.txt", os.O_CREATE|os.O_RDWR, 0644)
		defer fs.Close(handle)

		fs.Write(handle, []byte("tail"), 100, 0)

		attrs, err := fs.GetAttr(handle)
		require.NoError(t, err)
		size, _ := attrs.GetSizeBytes()
		assert.Equal(t, uint64(104), size)
	})
}

func TestTruncate(t *testing.T) {
	t.Parallel()

	t.Run("truncates file", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		handle, _ := fs.Open("/test.txt", os.O_CREATE|os.O_RDWR, 0644)
		defer fs.Close(handle)

		fs.Write(handle, []byte("Hello, World!"), 0, 0)

		err := fs.Truncate(handle, 5)
		require.NoError(t, err)

		buf := make([]byte, 100)
		n, _ := fs.Read(handle, buf, 0, 0)
		assert.Equal(t, "Hello", string(buf[:n]))
	})

	t.Run("returns EBADF for invalid handle", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		err := fs.Truncate(999, 0)
		assert.Equal(t, EBADF, err)
	})
}

func TestMkdir(t *testing.T) {
	t.Parallel()

	t.Run("returns EPERM in the flat namespace", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		_, err := fs.Mkdir("/testdir", 0755)
		assert.Equal(t, EPERM, err)
	})

	t.Run("returns EEXIST for root", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		_, err := fs.Mkdir("/", 0755)
		assert.Equal(t, EEXIST, err)
	})
}

func TestOpenDir(t *testing.T) {
	t.Parallel()

	t.Run("opens root", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		handle, err := fs.OpenDir("/")
		require.NoError(t, err)
		assert.NotZero(t, handle)
		require.NoError(t, fs.Close(handle))
	})

	t.Run("opens empty path as root", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		handle, err := fs.OpenDir("")
		require.NoError(t, err)
		assert.NotZero(t, handle)
		fs.Close(handle)
	})

	t.Run("returns ENOENT for nonexistent", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		_, err := fs.OpenDir("/nonexistent")
		assert.Equal(t, ENOENT, err)
	})

	t.Run("returns ENOTDIR for a file", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		fs.Close(h)

		_, err := fs.OpenDir("/test.txt")
		assert.Equal(t, ENOTDIR, err)
	})
}

func TestOpenAny(t *testing.T) {
	t.Parallel()

	t.Run("opens root as directory", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		handle, err := fs.OpenAny("/", os.O_RDONLY, 0)
		require.NoError(t, err)
		assert.NotZero(t, handle)

		attrs, err := fs.GetAttr(handle)
		require.NoError(t, err)
		assert.Equal(t, vfs.FileTypeDirectory, attrs.GetFileType())
		fs.Close(handle)
	})

	t.Run("opens a file with admission", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		fs.Close(h)

		handle, err := fs.OpenAny("/test.txt", os.O_RDONLY, 0)
		require.NoError(t, err)
		assert.Equal(t, 1, fs.Table().Admission().Count())
		fs.Close(handle)
		assert.Equal(t, 0, fs.Table().Admission().Count())
	})

	t.Run("returns ENOENT for nonexistent", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		_, err := fs.OpenAny("/missing.txt", os.O_RDONLY, 0)
		assert.Equal(t, ENOENT, err)
	})
}

func TestReadDir(t *testing.T) {
	t.Parallel()

	t.Run("returns dot entries for empty root", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		handle, _ := fs.OpenDir("/")
		defer fs.Close(handle)

		entries, err := fs.ReadDir(handle, 0, 0)
		require.NoError(t, err)
		require.Len(t, entries, 2)
		assert.Equal(t, ".", entries[0].Name)
		assert.Equal(t, "..", entries[1].Name)
	})

	t.Run("lists files in sorted order", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		for _, name := range []string{"/zeta.txt", "/alpha.txt", "/mid.txt"} {
			h, _ := fs.Open(name, os.O_CREATE, 0644)
			fs.Close(h)
		}

		handle, _ := fs.OpenDir("/")
		defer fs.Close(handle)

		entries, err := fs.ReadDir(handle, 0, 0)
		require.NoError(t, err)
		require.Len(t, entries, 5)

		names := make([]string, 0, len(entries))
		for _, e := range entries {
			names = append(names, e.Name)
		}
		assert.Equal(t, []string{".", "..", "alpha.txt", "mid.txt", "zeta.txt"}, names)
	})

	t.Run("entries carry type and size", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/data.bin", os.O_CREATE|os.O_RDWR, 0644)
		fs.Write(h, []byte("12345"), 0, 0)
		fs.Close(h)

		handle, _ := fs.OpenDir("/")
		defer fs.Close(handle)

		entries, err := fs.ReadDir(handle, 0, 0)
		require.NoError(t, err)
		require.Len(t, entries, 3)

		assert.Equal(t, vfs.FileTypeDirectory, entries[0].GetFileType())
		assert.Equal(t, "data.bin", entries[2].Name)
		assert.Equal(t, vfs.FileTypeRegularFile, entries[2].GetFileType())
		size, _ := entries[2].GetSizeBytes()
		assert.Equal(t, uint64(5), size)
	})

	t.Run("returns EOF on second read", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		handle, _ := fs.OpenDir("/")
		defer fs.Close(handle)

		_, err := fs.ReadDir(handle, 0, 0)
		require.NoError(t, err)

		_, err = fs.ReadDir(handle, 0, 0)
		assert.Equal(t, io.EOF, err)
	})

	t.Run("restarts with offset", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		handle, _ := fs.OpenDir("/")
		defer fs.Close(handle)

		fs.ReadDir(handle, 0, 0)

		entries, err := fs.ReadDir(handle, 1, 0)
		require.NoError(t, err)
		assert.Len(t, entries, 2)
	})

	t.Run("windows with count and continues", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		for _, name := range []string{"/a.txt", "/b.txt"} {
			h, _ := fs.Open(name, os.O_CREATE, 0644)
			fs.Close(h)
		}

		handle, _ := fs.OpenDir("/")
		defer fs.Close(handle)

		// 4 entries total: ".", "..", a.txt, b.txt
		first, err := fs.ReadDir(handle, 0, 3)
		require.NoError(t, err)
		require.Len(t, first, 3)
		assert.Equal(t, ".", first[0].Name)

		second, err := fs.ReadDir(handle, 0, 3)
		require.NoError(t, err)
		require.Len(t, second, 1)
		assert.Equal(t, "b.txt", second[0].Name)

		_, err = fs.ReadDir(handle, 0, 3)
		assert.Equal(t, io.EOF, err)
	})

	t.Run("returns ENOTDIR for file handle", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		defer fs.Close(h)

		_, err := fs.ReadDir(h, 0, 0)
		assert.Equal(t, ENOTDIR, err)
	})

	t.Run("returns EBADF for unknown handle", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		_, err := fs.ReadDir(999, 0, 0)
		assert.Equal(t, EBADF, err)
	})
}

func TestGetAttr(t *testing.T) {
	t.Parallel()

	t.Run("returns root for handle 0", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		attrs, err := fs.GetAttr(0)
		require.NoError(t, err)
		assert.Equal(t, vfs.FileTypeDirectory, attrs.GetFileType())
		assert.Equal(t, RootIno, attrs.GetInodeNumber())
	})

	t.Run("returns file attributes", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		handle, _ := fs.Open("/test.txt", os.O_CREATE|os.O_RDWR, 0644)
		fs.Write(handle, []byte("hello"), 0, 0)

		attrs, err := fs.GetAttr(handle)
		require.NoError(t, err)
		assert.Equal(t, vfs.FileTypeRegularFile, attrs.GetFileType())
		size, _ := attrs.GetSizeBytes()
		assert.Equal(t, uint64(5), size)
		mode, _ := attrs.GetUnixMode()
		assert.Equal(t, uint32(0644), mode)
		fs.Close(handle)
	})

	t.Run("returns EBADF for invalid handle", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		_, err := fs.GetAttr(999)
		assert.Equal(t, EBADF, err)
	})
}

func TestSetAttr(t *testing.T) {
	t.Parallel()

	t.Run("applies mode", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		defer fs.Close(h)

		in := &vfs.Attributes{}
		in.SetUnixMode(0600)
		attrs, err := fs.SetAttr(h, in)
		require.NoError(t, err)
		mode, _ := attrs.GetUnixMode()
		assert.Equal(t, uint32(0600), mode)
		// Still a regular file after the mode change
		assert.Equal(t, vfs.FileTypeRegularFile, attrs.GetFileType())
	})

	t.Run("applies size", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE|os.O_RDWR, 0644)
		defer fs.Close(h)
		fs.Write(h, []byte("hello world"), 0, 0)

		in := &vfs.Attributes{}
		in.SetSizeBytes(5)
		attrs, err := fs.SetAttr(h, in)
		require.NoError(t, err)
		size, _ := attrs.GetSizeBytes()
		assert.Equal(t, uint64(5), size)
	})

	t.Run("applies owner", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		defer fs.Close(h)

		in := &vfs.Attributes{}
		in.SetUID(4242)
		in.SetGID(4343)
		attrs, err := fs.SetAttr(h, in)
		require.NoError(t, err)
		uid, _ := attrs.GetUID()
		assert.Equal(t, uint32(4242), uid)

		a, err := fs.Table().Attributes("/test.txt")
		require.NoError(t, err)
		assert.Equal(t, uint32(4242), a.UID)
		assert.Equal(t, uint32(4343), a.GID)
	})

	t.Run("returns EBADF for invalid handle", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		in := &vfs.Attributes{}
		in.SetUnixMode(0600)
		_, err := fs.SetAttr(999, in)
		assert.Equal(t, EBADF, err)
	})
}

func TestLookup(t *testing.T) {
	t.Parallel()

	t.Run("finds file", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		fs.Close(h)

		attrs, err := fs.Lookup(0, "test.txt")
		require.NoError(t, err)
		assert.Equal(t, vfs.FileTypeRegularFile, attrs.GetFileType())
	})

	t.Run("finds root with /", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		attrs, err := fs.Lookup(0, "/")
		require.NoError(t, err)
		assert.Equal(t, vfs.FileTypeDirectory, attrs.GetFileType())
	})

	t.Run("dot names resolve to root", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		for _, name := range []string{".", "..", ""} {
			attrs, err := fs.Lookup(0, name)
			require.NoError(t, err, "name %q", name)
			assert.Equal(t, vfs.FileTypeDirectory, attrs.GetFileType())
		}
	})

	t.Run("returns ENOENT for nonexistent", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		_, err := fs.Lookup(0, "nonexistent")
		assert.Equal(t, ENOENT, err)
	})

	t.Run("returns ENOENT for nested names", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/child.txt", os.O_CREATE, 0644)
		fs.Close(h)

		_, err := fs.Lookup(0, "parent/child.txt")
		assert.Equal(t, ENOENT, err)
	})

	t.Run("returns ENOTDIR for file handle", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		defer fs.Close(h)

		_, err := fs.Lookup(h, "other.txt")
		assert.Equal(t, ENOTDIR, err)
	})
}

func TestStatFS(t *testing.T) {
	t.Parallel()

	t.Run("reports table limits", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFSWithLimits(t, store.Limits{NumDirEntries: 10})

		h, _ := fs.Open("/a.txt", os.O_CREATE, 0644)
		fs.Close(h)

		attrs, err := fs.StatFS(0)
		require.NoError(t, err)
		require.NotNil(t, attrs)

		blockSize, _ := attrs.GetBlockSize()
		assert.Equal(t, uint64(4096), blockSize)
		files, _ := attrs.GetFiles()
		assert.Equal(t, uint64(10), files)
		freeFiles, _ := attrs.GetFreeFiles()
		assert.Equal(t, uint64(9), freeFiles)
	})
}

func TestUnlink(t *testing.T) {
	t.Parallel()

	t.Run("deletes file", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		err := fs.Unlink(h)
		require.NoError(t, err)
		fs.Close(h)

		_, err = fs.Lookup(0, "test.txt")
		assert.Equal(t, ENOENT, err)
	})

	t.Run("returns EBADF for invalid handle", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		err := fs.Unlink(999)
		assert.Equal(t, EBADF, err)
	})

	t.Run("returns EPERM for the root handle", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.OpenDir("/")
		defer fs.Close(h)

		err := fs.Unlink(h)
		assert.Equal(t, EPERM, err)
	})
}

func TestUnlinkByPath(t *testing.T) {
	t.Parallel()

	t.Run("deletes file by path", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		fs.Close(h)

		require.NoError(t, fs.UnlinkByPath("/test.txt"))

		_, err := fs.Lookup(0, "test.txt")
		assert.Equal(t, ENOENT, err)
	})

	t.Run("returns ENOENT for missing", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		assert.Equal(t, ENOENT, fs.UnlinkByPath("/missing.txt"))
	})

	t.Run("returns EPERM for root", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		assert.Equal(t, EPERM, fs.UnlinkByPath("/"))
	})
}

func TestRename(t *testing.T) {
	t.Parallel()

	t.Run("renames file", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/old.txt", os.O_CREATE, 0644)
		err := fs.Rename(h, "new.txt", 0)
		require.NoError(t, err)
		fs.Close(h)

		_, err = fs.Lookup(0, "old.txt")
		assert.Equal(t, ENOENT, err)

		_, err = fs.Lookup(0, "new.txt")
		require.NoError(t, err)
	})

	t.Run("open handle follows the rename", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/old.txt", os.O_CREATE|os.O_RDWR, 0644)
		fs.Write(h, []byte("payload"), 0, 0)

		require.NoError(t, fs.Rename(h, "new.txt", 0))

		// Reads and writes through the handle still reach the file
		buf := make([]byte, 16)
		n, err := fs.Read(h, buf, 0, 0)
		require.NoError(t, err)
		assert.Equal(t, "payload", string(buf[:n]))

		require.NoError(t, fs.Close(h))
		assert.Equal(t, 0, fs.Table().Admission().Count())
	})

	t.Run("silently replaces the target", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h1, _ := fs.Open("/a.txt", os.O_CREATE|os.O_RDWR, 0644)
		fs.Write(h1, []byte("from a"), 0, 0)

		h2, _ := fs.Open("/b.txt", os.O_CREATE|os.O_RDWR, 0644)
		fs.Write(h2, []byte("from b"), 0, 0)
		fs.Close(h2)

		require.NoError(t, fs.Rename(h1, "b.txt", 0))
		fs.Close(h1)

		buf := make([]byte, 16)
		h3, _ := fs.Open("/b.txt", os.O_RDONLY, 0)
		n, _ := fs.Read(h3, buf, 0, 0)
		assert.Equal(t, "from a", string(buf[:n]))
		fs.Close(h3)
	})

	t.Run("returns ENAMETOOLONG for long target", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFSWithLimits(t, store.Limits{NameLength: 8})

		h, _ := fs.Open("/ok.txt", os.O_CREATE, 0644)
		defer fs.Close(h)

		err := fs.Rename(h, strings.Repeat("x", 9), 0)
		assert.Equal(t, ENAMETOOLONG, err)

		_, err = fs.Lookup(0, "ok.txt")
		require.NoError(t, err)
	})

	t.Run("returns EPERM for the root handle", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.OpenDir("/")
		defer fs.Close(h)

		assert.Equal(t, EPERM, fs.Rename(h, "newroot", 0))
	})
}

func TestGetAttrByPath(t *testing.T) {
	t.Parallel()

	t.Run("returns root attributes", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		attrs, err := fs.GetAttrByPath("/")
		require.NoError(t, err)
		assert.Equal(t, vfs.FileTypeDirectory, attrs.GetFileType())
	})

	t.Run("returns file attributes", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		fs.Close(h)

		attrs, err := fs.GetAttrByPath("/test.txt")
		require.NoError(t, err)
		assert.Equal(t, vfs.FileTypeRegularFile, attrs.GetFileType())
	})

	t.Run("returns ENOENT for missing", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		_, err := fs.GetAttrByPath("/missing.txt")
		assert.Equal(t, ENOENT, err)
	})
}

func TestMiscOperations(t *testing.T) {
	t.Parallel()

	t.Run("FSync succeeds", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		defer fs.Close(h)

		err := fs.FSync(h)
		assert.NoError(t, err)
	})

	t.Run("Flush succeeds", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		defer fs.Close(h)

		err := fs.Flush(h)
		assert.NoError(t, err)
	})

	t.Run("Symlink returns EPERM", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		defer fs.Close(h)

		_, err := fs.Symlink(h, "/target", 0777)
		assert.Equal(t, EPERM, err)
	})

	t.Run("Readlink returns EINVAL", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		defer fs.Close(h)

		_, err := fs.Readlink(h)
		assert.Equal(t, EINVAL, err)
	})

	t.Run("Link returns ENOTSUP", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		_, err := fs.Link(0, 0, "link")
		assert.Equal(t, ENOTSUP, err)
	})
}

func TestXattr(t *testing.T) {
	t.Parallel()

	t.Run("Listxattr returns empty", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		defer fs.Close(h)

		names, err := fs.Listxattr(h)
		assert.NoError(t, err)
		assert.Empty(t, names)
	})

	t.Run("Getxattr returns ENOATTR", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		defer fs.Close(h)

		buf := make([]byte, 100)
		_, err := fs.Getxattr(h, "user.test", buf)
		assert.Equal(t, ENOATTR, err)
	})

	t.Run("Setxattr succeeds silently", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		defer fs.Close(h)

		err := fs.Setxattr(h, "user.test", []byte("value"))
		assert.NoError(t, err)
	})

	t.Run("Removexattr succeeds silently", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		defer fs.Close(h)

		err := fs.Removexattr(h, "user.test")
		assert.NoError(t, err)
	})
}

func TestTeardown(t *testing.T) {
	t.Parallel()

	t.Run("drops handles and empties the table", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/test.txt", os.O_CREATE, 0644)
		fs.OpenDir("/")

		fs.Teardown()

		assert.Zero(t, fs.Table().Len())
		assert.Zero(t, fs.Table().Admission().Count())

		// Old handles are gone
		_, err := fs.GetAttr(h)
		assert.Equal(t, EBADF, err)
	})
}

func TestAttrToAttributes(t *testing.T) {
	t.Parallel()

	t.Run("regular file", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		h, _ := fs.Open("/file.txt", os.O_CREATE|os.O_RDWR, 0640)
		fs.Write(h, []byte("0123456789"), 0, 0)
		fs.Close(h)

		a, err := fs.Table().Attributes("/file.txt")
		require.NoError(t, err)

		attrs := attrToAttributes("/file.txt", a)
		assert.Equal(t, vfs.FileTypeRegularFile, attrs.GetFileType())
		size, _ := attrs.GetSizeBytes()
		assert.Equal(t, uint64(10), size)
		mode, _ := attrs.GetUnixMode()
		assert.Equal(t, uint32(0640), mode)
		assert.Equal(t, hashPathToInode("/file.txt"), attrs.GetInodeNumber())
	})

	t.Run("root directory", func(t *testing.T) {
		t.Parallel()
		fs := testFlatFS(t)

		a, err := fs.Table().Attributes("/")
		require.NoError(t, err)

		attrs := attrToAttributes("/", a)
		assert.Equal(t, vfs.FileTypeDirectory, attrs.GetFileType())
		assert.Equal(t, RootIno, attrs.GetInodeNumber())
	})
}

func TestHashPathToInode(t *testing.T) {
	t.Parallel()

	t.Run("deterministic", func(t *testing.T) {
		t.Parallel()
		assert.Equal(t, hashPathToInode("/a.txt"), hashPathToInode("/a.txt"))
	})

	t.Run("distinct paths differ", func(t *testing.T) {
		t.Parallel()
		assert.NotEqual(t, hashPathToInode("/a.txt"), hashPathToInode("/b.txt"))
	})

	t.Run("never collides with the root inode", func(t *testing.T) {
		t.Parallel()
		for _, p := range []string{"/", "/a", "/b.txt", "/quite-long-name.bin"} {
			assert.NotEqual(t, RootIno, hashPathToInode(p))
		}
	})
}
