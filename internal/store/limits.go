package store

// Default capacity limits. Overridable at daemon startup via the global
// settings file; fixed for the lifetime of a Table once constructed.
const (
	DefaultNameLength    = 255
	DefaultNumDirEntries = 64
	DefaultNumOpenFiles  = 64
)

// Limits holds the capacity limits of a Table.
type Limits struct {
	// NameLength is the maximum stored name length in bytes
	// (the path without its leading separator).
	NameLength int `yaml:"name_length"`

	// NumDirEntries is the maximum number of simultaneous files.
	NumDirEntries int `yaml:"num_dir_entries"`

	// NumOpenFiles is the maximum number of simultaneously open handles.
	NumOpenFiles int `yaml:"num_open_files"`
}

// DefaultLimits returns the default capacity limits.
func DefaultLimits() Limits {
	return Limits{
		NameLength:    DefaultNameLength,
		NumDirEntries: DefaultNumDirEntries,
		NumOpenFiles:  DefaultNumOpenFiles,
	}
}

// ApplyDefaults fills in defaults for unset (zero or negative) fields.
func (l *Limits) ApplyDefaults() {
	if l.NameLength <= 0 {
		l.NameLength = DefaultNameLength
	}
	if l.NumDirEntries <= 0 {
		l.NumDirEntries = DefaultNumDirEntries
	}
	if l.NumOpenFiles <= 0 {
		l.NumOpenFiles = DefaultNumOpenFiles
	}
}
