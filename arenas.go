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
	"runtime"
	"sort"
	"sync"
	"sync/atomic"

	"github.com/timandy/routine"

	"github.com/cloudwego/mallocx/internal/debug"
)

var (
	initOnce sync.Once

	// arenas is the process-wide table, one arena per logical CPU at
	// first use. Empty if initialization failed; read-only afterwards.
	arenas []*arena

	// byBase holds the same arenas sorted by reservation base, for the
	// pointer lookup on the release path.
	byBase []*arena

	// nextArena is the round-robin cursor handing an index to each
	// goroutine on its first allocation.
	nextArena uint32

	// boundArena caches the sticky assignment per goroutine.
	boundArena = routine.NewThreadLocalWithInitial(bindArena)
)

func initArenas() {
	n := runtime.NumCPU()
	made := make([]*arena, 0, n)
	for i := 0; i < n; i++ {
		a, err := newArena()
		if err != nil {
			for _, b := range made {
				b.destroy()
			}
			debug.Logf("arena table init failed at %d/%d: %v", i, n, err)
			return
		}
		made = append(made, a)
	}
	arenas = made
	byBase = append([]*arena(nil), made...)
	sort.Slice(byBase, func(i, j int) bool { return byBase[i].base() < byBase[j].base() })
	debug.Logf("arena table ready: %d arenas, %d bytes committed each", n, initialHeapSize)
}

// bindArena draws the next round-robin index. Runs once per goroutine,
// on its first allocation; the assignment then sticks for the
// goroutine's life.
func bindArena() *arena {
	if len(arenas) == 0 {
		return nil
	}
	idx := (atomic.AddUint32(&nextArena, 1) - 1) % uint32(len(arenas))
	return arenas[idx]
}

// leastLoaded picks the arena with the fewest live block bytes. Loads
// are read with atomics only; the choice is a heuristic and may be
// stale by the time the arena lock is taken.
func leastLoaded() *arena {
	best := arenas[0]
	bestLoad := atomic.LoadInt64(&best.allocatedBlocks)
	for _, a := range arenas[1:] {
		if load := atomic.LoadInt64(&a.allocatedBlocks); load < bestLoad {
			best, bestLoad = a, load
		}
	}
	return best
}

// lookupArena attributes a pointer to the arena whose reservation
// contains it. Reservations are disjoint and never move, so the sorted
// index is immutable after init and the search needs no lock.
func lookupArena(addr uintptr) *arena {
	i := sort.Search(len(byBase), func(i int) bool { return byBase[i].base() > addr })
	if i == 0 {
		return nil
	}
	a := byBase[i-1]
	if addr-a.base() >= uintptr(len(a.heapRes)) {
		return nil
	}
	return a
}
