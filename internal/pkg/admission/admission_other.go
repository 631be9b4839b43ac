// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

//go:build !linux

package admission

// residentMemoryMBPrecise has no portable getrusage(2)-based
// implementation off Linux; the caller falls back to
// runtime.ReadMemStats.
func residentMemoryMBPrecise() (int64, bool) {
	return 0, false
}
