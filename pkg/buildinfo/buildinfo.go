// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package buildinfo holds build-time metadata, injected via -ldflags
// at release build time.
package buildinfo

// Overridden at build time with:
//
//	go build -ldflags "-X github.com/proxycore/tester/pkg/buildinfo.Version=... -X .../Commit=..."
var (
	PackageName = "proxytester"
	Version     = "0.0.0-dev"
	Commit      = "unknown"
)
