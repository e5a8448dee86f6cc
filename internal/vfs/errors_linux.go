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

//go:build linux

package vfs

import "syscall"

// Linux has no ENOATTR errno; getxattr(2) reports a missing attribute as
// ENODATA, and libc's xattr.h defines ENOATTR as ENODATA.
var ENOATTR = syscall.ENODATA // Attribute not found (xattr)
