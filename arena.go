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

package mallocx

import (
	"fmt"
	"sync"
	"sync/atomic"
	"unsafe"

	"github.com/cloudwego/mallocx/internal/debug"
	"github.com/cloudwego/mallocx/internal/sysmem"
)

const (
	// blockSize is the accounting unit. Every allocation consumes a whole
	// number of blocks.
	blockSize  = 16
	blockShift = 4

	// headerSize is the size prefix written at the start of each
	// allocation's block run; the user pointer sits one word past it.
	headerSize = 8

	// initialHeapSize is the committed heap an arena starts with.
	initialHeapSize = 1 << 20

	intBits = 32 << (^uint(0) >> 63)

	// arenaReserve is the address space claimed per arena up front.
	// Committed lazily, so the cost is virtual until pages are touched.
	// 1GB on 64-bit targets, 256MB on 32-bit.
	arenaReserve = 1 << (26 + intBits/16)
)

// arena is one shard of the allocator: a heap region, its occupancy
// bitmap and a lock serializing all mutation of both. The heap and
// bitmap live at fixed bases inside their reservations, so growing the
// committed size never moves live allocations.
type arena struct {
	mu sync.Mutex

	heapRes []byte // heap reservation; [0:heapSize] is committed
	bmRes   []byte // bitmap reservation; [0:bmCommitted] is committed

	heapSize    int    // committed heap bytes, a multiple of the page and block size
	bm          bitmap // words covering exactly the committed blocks
	bmCommitted int    // committed bitmap bytes

	// allocatedBlocks counts live blocks. Updated under mu, read with
	// atomics by the least-loaded policy and stats.
	allocatedBlocks int64
}

func newArena() (*arena, error) {
	heapRes, err := sysmem.Reserve(arenaReserve)
	if err != nil {
		return nil, err
	}
	bmRes, err := sysmem.Reserve(arenaReserve / (blockSize * wordBits) * 8)
	if err != nil {
		_ = sysmem.Release(heapRes)
		return nil, err
	}
	a := &arena{heapRes: heapRes, bmRes: bmRes}
	if err = a.extend(initialHeapSize); err != nil {
		a.destroy()
		return nil, err
	}
	return a, nil
}

func (a *arena) destroy() {
	_ = sysmem.Release(a.heapRes)
	_ = sysmem.Release(a.bmRes)
}

func (a *arena) base() uintptr {
	return uintptr(unsafe.Pointer(&a.heapRes[0]))
}

// blocks returns the number of real blocks in the committed heap.
func (a *arena) blocks() int {
	return a.heapSize >> blockShift
}

// extend grows the committed heap by at least n bytes, rounded up to
// whole pages, and commits enough bitmap words to cover the new blocks.
// Freshly committed pages read as zero, so the new words arrive clear.
// Caller must hold mu (or own the arena exclusively, as newArena does).
func (a *arena) extend(n int) error {
	n = sysmem.RoundPage(n)
	if n > len(a.heapRes)-a.heapSize {
		return fmt.Errorf("mallocx: arena reservation exhausted (%d committed, %d wanted)", a.heapSize, n)
	}
	newSize := a.heapSize + n
	if err := sysmem.Commit(a.heapRes[a.heapSize:newSize]); err != nil {
		return err
	}
	words := (newSize>>blockShift + wordBits - 1) / wordBits
	if need := sysmem.RoundPage(words * 8); need > a.bmCommitted {
		if err := sysmem.Commit(a.bmRes[a.bmCommitted:need]); err != nil {
			return err
		}
		a.bmCommitted = need
	}
	a.heapSize = newSize
	a.bm = unsafe.Slice((*uint64)(unsafe.Pointer(&a.bmRes[0])), words)
	debug.Logf("arena %#x: heap grown to %d bytes, %d blocks", a.base(), a.heapSize, a.blocks())
	return nil
}

// findFree returns the first block of the lowest-address run of
// blocksNeeded consecutive free blocks, or -1. First-fit: words are
// walked in ascending order and only each word's lowest clear bit is
// tried as a candidate before moving on.
func (a *arena) findFree(blocksNeeded int, class sizeClass) int {
	nblocks := a.blocks()
	for wi := 0; wi < len(a.bm); wi++ {
		w := a.bm[wi]
		if w == ^uint64(0) {
			continue
		}
		start := wi*wordBits + firstFreeInWord(w, class)
		if start+blocksNeeded > nblocks {
			continue
		}
		if a.bm.rangeFree(start, blocksNeeded) {
			return start
		}
	}
	return -1
}

// alloc carves n user bytes plus the size prefix out of the arena and
// returns the user pointer, or nil if the arena cannot satisfy the
// request even after growing.
func (a *arena) alloc(n int) unsafe.Pointer {
	blocksNeeded := (n + headerSize + blockSize - 1) >> blockShift
	class := sizeClassOf(n)

	a.mu.Lock()
	start := a.findFree(blocksNeeded, class)
	if start < 0 {
		grow := blocksNeeded << blockShift
		if quarter := a.heapSize / 4; quarter > grow {
			grow = quarter
		}
		if err := a.extend(grow); err != nil {
			a.mu.Unlock()
			debug.Logf("arena %#x: extend for %d bytes failed: %v", a.base(), n, err)
			return nil
		}
		start = a.findFree(blocksNeeded, class)
		if start < 0 {
			a.mu.Unlock()
			return nil
		}
	}
	a.bm.setRange(start, blocksNeeded)
	atomic.AddInt64(&a.allocatedBlocks, int64(blocksNeeded))

	off := start << blockShift
	// the run start must be prefix-aligned; block offsets already are
	off = (off + headerSize - 1) &^ (headerSize - 1)
	p := unsafe.Add(unsafe.Pointer(&a.heapRes[0]), off)
	*(*uint64)(p) = uint64(n)
	a.mu.Unlock()
	return unsafe.Add(p, headerSize)
}

// free returns p's block run to the arena. p must lie inside the
// arena's reservation; anything that does not resolve to a plausible
// allocation is dropped without touching the bitmap.
func (a *arena) free(p unsafe.Pointer) {
	a.mu.Lock()
	off := int(uintptr(p)-a.base()) - headerSize
	if off < 0 || off >= a.heapSize {
		a.mu.Unlock()
		return
	}
	stored := *(*uint64)(unsafe.Add(unsafe.Pointer(&a.heapRes[0]), off))
	if stored >= uint64(a.heapSize) {
		a.mu.Unlock()
		return
	}
	n := int(stored)
	blockIndex := off >> blockShift
	blocksUsed := (n + headerSize + blockSize - 1) >> blockShift
	if blockIndex+blocksUsed > a.blocks() {
		a.mu.Unlock()
		return
	}
	a.bm.clearRange(blockIndex, blocksUsed)
	atomic.AddInt64(&a.allocatedBlocks, -int64(blocksUsed))
	a.mu.Unlock()
}
