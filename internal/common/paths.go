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

package common

import (
	"path/filepath"
	"strings"
)

// Separator is the namespace separator. Every stored key starts with it.
const Separator = "/"

// NormalizePath cleans a path into the canonical stored form: a single
// leading slash followed by the file name. The root normalizes to "/".
func NormalizePath(path string) string {
	path = filepath.ToSlash(path)
	path = filepath.Clean(path)
	path = strings.TrimPrefix(path, "/")
	path = strings.TrimSuffix(path, "/")
	if path == "." {
		path = ""
	}
	return Separator + path
}

// IsRoot reports whether the path normalizes to the root directory.
func IsRoot(path string) bool {
	return NormalizePath(path) == Separator
}

// BaseName returns the path with its leading separator stripped; empty for
// the root. This is the name stored in a record and shown in listings.
func BaseName(path string) string {
	return strings.TrimPrefix(NormalizePath(path), Separator)
}

// JoinName prepends the separator to a bare file name.
func JoinName(name string) string {
	return NormalizePath(Separator + name)
}
