// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package admission

import "golang.org/x/sys/unix"

// residentMemoryMBPrecise uses getrusage(2) for maxrss, a closer
// approximation of actual resident memory than the Go allocator's
// own Sys figure, which includes address space the OS hasn't
// necessarily backed with pages. Falls back to false on error so the
// caller can use the portable runtime.MemStats reading instead.
func residentMemoryMBPrecise() (int64, bool) {
	var ru unix.Rusage
	if err := unix.Getrusage(unix.RUSAGE_SELF, &ru); err != nil {
		return 0, false
	}
	// ru.Maxrss is in KB on Linux.
	return int64(ru.Maxrss) / 1024, true
}
