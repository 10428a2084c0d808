//go:build unix

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

import (
	"fmt"

	"golang.org/x/sys/unix"
)

// Map returns a committed, zero-filled read/write mapping of n bytes,
// rounded up to whole pages. The slice length is the rounded size.
func Map(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sysmem: map size must be positive, got %d", n)
	}
	b, err := unix.Mmap(-1, 0, RoundPage(n), unix.PROT_READ|unix.PROT_WRITE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("sysmem: mmap %d bytes: %w", n, err)
	}
	return b, nil
}

// Reserve claims n bytes (rounded up to whole pages) of address space
// without committing it. The region is inaccessible until Commit.
func Reserve(n int) ([]byte, error) {
	if n <= 0 {
		return nil, fmt.Errorf("sysmem: reserve size must be positive, got %d", n)
	}
	b, err := unix.Mmap(-1, 0, RoundPage(n), unix.PROT_NONE, unix.MAP_PRIVATE|unix.MAP_ANON)
	if err != nil {
		return nil, fmt.Errorf("sysmem: reserve %d bytes: %w", n, err)
	}
	return b, nil
}

// Commit makes a page-aligned slice of a reservation readable and
// writable. Pages committed for the first time read as zero.
func Commit(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := unix.Mprotect(b, unix.PROT_READ|unix.PROT_WRITE); err != nil {
		return fmt.Errorf("sysmem: commit %d bytes: %w", len(b), err)
	}
	return nil
}

// Release unmaps a region obtained from Map or Reserve.
func Release(b []byte) error {
	if len(b) == 0 {
		return nil
	}
	if err := unix.Munmap(b); err != nil {
		return fmt.Errorf("sysmem: munmap: %w", err)
	}
	return nil
}
