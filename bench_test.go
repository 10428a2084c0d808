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
	"runtime"
	"testing"

	"github.com/bytedance/gopkg/lang/dirtmake"
	"github.com/bytedance/gopkg/lang/mcache"
)

var benchSizes = []int{16, 64, 512, 4096}

func BenchmarkMallocFree(b *testing.B) {
	for _, sz := range benchSizes {
		b.Run(fmt.Sprintf("size_%d", sz), func(b *testing.B) {
			b.ReportAllocs()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					p := Malloc(sz)
					*(*byte)(p) = 1
					Free(p)
				}
			})
		})
	}
}

func BenchmarkMallocFreeMixed(b *testing.B) {
	sizes := []int{24, 100, 700, 3000, 9000}
	b.ReportAllocs()
	b.RunParallel(func(pb *testing.PB) {
		i := 0
		for pb.Next() {
			p := Malloc(sizes[i%len(sizes)])
			*(*byte)(p) = 1
			Free(p)
			i++
		}
	})
}

// baselines: bytedance's pooled allocator and a plain uninitialized make

func BenchmarkMcacheMallocFree(b *testing.B) {
	for _, sz := range benchSizes {
		b.Run(fmt.Sprintf("size_%d", sz), func(b *testing.B) {
			b.ReportAllocs()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					buf := mcache.Malloc(sz)
					buf[0] = 1
					mcache.Free(buf)
				}
			})
		})
	}
}

func BenchmarkDirtmakeBytes(b *testing.B) {
	for _, sz := range benchSizes {
		b.Run(fmt.Sprintf("size_%d", sz), func(b *testing.B) {
			b.ReportAllocs()
			b.RunParallel(func(pb *testing.PB) {
				for pb.Next() {
					buf := dirtmake.Bytes(sz, sz)
					buf[0] = 1
					runtime.KeepAlive(buf)
				}
			})
		})
	}
}
