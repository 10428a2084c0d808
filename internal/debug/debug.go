//go:build mallocxdebug

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

// Package debug holds the tracing hooks compiled in with the
// `mallocxdebug` build tag. Without the tag every hook is a no-op and
// the production paths carry no tracing cost.
package debug

import (
	"fmt"
	"os"
	"regexp"

	"github.com/timandy/routine"
	"github.com/xyproto/env/v2"
)

// Enabled reports whether the build carries the mallocxdebug tag.
const Enabled = true

// filter drops trace lines not matching MALLOCX_DEBUG_FILTER, when set.
var filter = func() *regexp.Regexp {
	if pat := env.Str("MALLOCX_DEBUG_FILTER"); pat != "" {
		return regexp.MustCompile(pat)
	}
	return nil
}()

// Logf prints one trace line to stderr, tagged with the calling
// goroutine's id.
func Logf(format string, args ...any) {
	msg := fmt.Sprintf(format, args...)
	if filter != nil && !filter.MatchString(msg) {
		return
	}
	_, _ = fmt.Fprintf(os.Stderr, "mallocx [g%05d] %s\n", routine.Goid(), msg)
}
