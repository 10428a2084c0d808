/*
 * Copyright 2025 CloudWeGo Authors
 *
 * Licensed under the Apache License, Version 2.0 (the "License");
 * you may not use this file except in compliance with the License.
 * You may obtain a copy of the License at
 *
 *     http://www.apache.org/licenses/LICENSE-2.0
 *
 * Unless required by applicable law or agreed to in writing, software
 * distributed under the License is distributed on an "AS IS" BASIS,
 * WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
 * See the License for the specific language governing permissions and
 * limitations under the License.
 */

// Package sysmem abstracts anonymous, private virtual-memory mappings.
//
// It offers two acquisition modes:
//   - Map: a committed read/write region, for standalone allocations.
//   - Reserve + Commit: a large inaccessible reservation whose pages are
//     made read/write incrementally. Reserved-but-uncommitted pages cost
//     address space only.
//
// Committed pages are always zero-filled by the OS.
package sysmem

import "os"

var pageSize = os.Getpagesize()

// PageSize returns the OS page size.
func PageSize() int {
	return pageSize
}

// RoundPage rounds n up to a whole number of OS pages.
func RoundPage(n int) int {
	return (n + pageSize - 1) &^ (pageSize - 1)
}
