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
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestAttr_IsDir(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mode     uint32
		expected bool
	}{
		{"directory", ModeDir | 0755, true},
		{"file", ModeFile | 0644, false},
		{"default dir mode", DefaultDirMode, true},
		{"default file mode", DefaultFileMode, false},
		{"bare permission bits", 0644, false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := &Attr{Mode: tt.mode}
			assert.Equal(t, tt.expected, a.IsDir(), "mode=%o", tt.mode)
		})
	}
}

func TestAttr_IsFile(t *testing.T) {
	t.Parallel()

	tests := []struct {
		name     string
		mode     uint32
		expected bool
	}{
		{"directory", ModeDir | 0755, false},
		{"file", ModeFile | 0644, true},
		{"default file mode", DefaultFileMode, true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			t.Parallel()
			a := &Attr{Mode: tt.mode}
			assert.Equal(t, tt.expected, a.IsFile(), "mode=%o", tt.mode)
		})
	}
}

func TestPermissions(t *testing.T) {
	t.Parallel()

	assert.Equal(t, uint32(0644), (&Record{Mode: ModeFile | 0644}).Permissions())
	assert.Equal(t, uint32(0755), (&Attr{Mode: ModeDir | 0755}).Permissions())
	assert.Equal(t, uint32(0600), (&Record{Mode: 0600}).Permissions())
}

func TestLimitsApplyDefaults(t *testing.T) {
	t.Parallel()

	t.Run("zero fields get defaults", func(t *testing.T) {
		t.Parallel()
		var l Limits
		l.ApplyDefaults()
		assert.Equal(t, DefaultLimits(), l)
	})

	t.Run("set fields are kept", func(t *testing.T) {
		t.Parallel()
		l := Limits{NameLength: 12, NumDirEntries: 3, NumOpenFiles: 5}
		l.ApplyDefaults()
		assert.Equal(t, Limits{NameLength: 12, NumDirEntries: 3, NumOpenFiles: 5}, l)
	})

	t.Run("negative fields get defaults", func(t *testing.T) {
		t.Parallel()
		l := Limits{NameLength: -1, NumDirEntries: 10, NumOpenFiles: -4}
		l.ApplyDefaults()
		assert.Equal(t, DefaultNameLength, l.NameLength)
		assert.Equal(t, 10, l.NumDirEntries)
		assert.Equal(t, DefaultNumOpenFiles, l.NumOpenFiles)
	})
}
