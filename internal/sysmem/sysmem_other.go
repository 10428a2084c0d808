//go:build !unix

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

package sysmem

import "fmt"

// Fallback for targets without mmap: regions come from the Go heap.
// Reserve is a plain allocation (the runtime backs it with untouched
// virtual pages), Commit is a no-op, Release lets the GC take it back.

// Map returns a zeroed region of n bytes, rounded up to whole pages.
func Map(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sysmem: map size must be positive, got %d", n)
	}
	return make([]byte, RoundPage(n)), nil
}

// Reserve claims n bytes, rounded up to whole pages.
func Reserve(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sysmem: reserve size must be positive, got %d", n)
	}
	return make([]byte, RoundPage(n)), nil
}

// Commit is a no-op; reserved pages are already accessible.
func Commit(b []byte) error {
	return nil
}

// Release drops the region.
func Release(b []byte) error {
	return nil
}
