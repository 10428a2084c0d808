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

// Package mallocx implements a general-purpose dynamic allocator over
// memory mapped directly from the OS, bypassing the Go heap and the
// garbage collector.
//
// Free space is tracked by per-CPU sharded arenas, each pairing a mapped
// heap region with an occupancy bitmap (one bit per 16-byte block) and a
// lock of its own. Goroutines stick to one arena for life, assigned
// round-robin on first use, which keeps unrelated goroutines off each
// other's locks. Requests of 1MB and above bypass the arenas and map
// dedicated regions.
//
// Memory returned by Malloc is invisible to the GC: do not store the only
// reference to a Go-managed object in it.
package mallocx

import (
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cloudwego/mallocx/internal/debug"
	"github.com/cloudwego/mallocx/internal/sysmem"
)

const (
	// largeRequestMin is the size above which the sticky arena binding
	// is overridden by the least-loaded choice.
	largeRequestMin = 256 * blockSize // 4096B

	// hugeThreshold routes a request straight to its own OS mapping.
	hugeThreshold = 1 << 20
)

// Malloc allocates n bytes and returns a pointer to the first, aligned
// to at least 8 bytes, or nil if n <= 0 or no memory could be obtained.
// The bytes are not zeroed when a freed run is reused. The region stays
// valid until the matching Free.
func Malloc(n int) unsafe.Pointer {
	if n <= 0 {
		return nil
	}
	initOnce.Do(initArenas)
	if len(arenas) == 0 {
		return nil
	}
	if n >= hugeThreshold {
		return hugeAlloc(n)
	}
	a := boundArena.Get()
	if n > largeRequestMin {
		a = leastLoaded()
	}
	return a.alloc(n)
}

// Free returns an allocation to its arena. Accepts nil and pointers
// outside every arena and the huge table as silent no-ops. A pointer
// inside an arena's committed heap is read as an allocation start: it is
// dropped only if its stored size fails the range and size guards.
func Free(p unsafe.Pointer) {
	if p == nil {
		return
	}
	if hugeFree(uintptr(p)) {
		return
	}
	if a := lookupArena(uintptr(p)); a != nil {
		a.free(p)
	}
}

// MallocBytes allocates n bytes and returns them as a slice backed by
// allocator memory. Nil if the allocation failed. Release with
// FreeBytes, not by dropping the slice.
func MallocBytes(n int) []byte {
	p := Malloc(n)
	if p == nil {
		return nil
	}
	return unsafe.Slice((*byte)(p), n)
}

// FreeBytes releases a slice obtained from MallocBytes.
func FreeBytes(b []byte) {
	if cap(b) == 0 {
		return
	}
	Free(unsafe.Pointer(unsafe.SliceData(b)))
}

// AllocatedBytes returns the bytes currently held by live allocations,
// counting whole blocks for arena allocations and mapped sizes for huge
// ones. A load hint, not a synchronized snapshot.
func AllocatedBytes() int {
	total := 0
	for _, a := range arenas {
		total += int(atomic.LoadInt64(&a.allocatedBlocks)) << blockShift
	}
	hugeMu.Lock()
	for _, b := range hugeAllocs {
		total += len(b)
	}
	hugeMu.Unlock()
	return total
}

var (
	hugeMu sync.Mutex
	// hugeAllocs maps the user pointer of each live huge allocation to
	// its mapping, so the release path can resolve it before the arena
	// range scan.
	hugeAllocs map[uintptr][]byte
)

// hugeAlloc maps a dedicated region for an oversized request. The size
// prefix discipline is the same as in the arenas: one word holding n,
// user pointer one word past it.
func hugeAlloc(n int) unsafe.Pointer {
	b, err := sysmem.Map(n + headerSize)
	if err != nil {
		debug.Logf("huge alloc of %d bytes failed: %v", n, err)
		return nil
	}
	*(*uint64)(unsafe.Pointer(&b[0])) = uint64(n)
	p := unsafe.Pointer(&b[headerSize])
	hugeMu.Lock()
	if hugeAllocs == nil {
		hugeAllocs = make(map[uintptr][]byte)
	}
	hugeAllocs[uintptr(p)] = b
	hugeMu.Unlock()
	return p
}

// hugeFree unmaps p's region if p is a live huge allocation.
func hugeFree(addr uintptr) bool {
	hugeMu.Lock()
	b, ok := hugeAllocs[addr]
	if ok {
		delete(hugeAllocs, addr)
	}
	hugeMu.Unlock()
	if ok {
		_ = sysmem.Release(b)
	}
	return ok
}
