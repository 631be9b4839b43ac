// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cli

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/proxycore/tester/docs"
	"github.com/proxycore/tester/pkg/buildinfo"
)

// VersionCmd prints the installed proxytester version.
var VersionCmd = &cobra.Command{
	DisableFlagsInUseLine: true,
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Printf("%s version %s (%s)\n", buildinfo.PackageName, buildinfo.Version, buildinfo.Commit)
	},

	Use:   docs.VersionUse,
	Short: docs.VersionShort,
}
