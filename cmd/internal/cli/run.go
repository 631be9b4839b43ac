// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cli

import (
	"os"

	"github.com/spf13/cobra"

	app "github.com/proxycore/tester/internal/app/proxytester"
	"github.com/proxycore/tester/docs"
	"github.com/proxycore/tester/pkg/cmdline"
)

// RunCmd is the `proxytester run` subcommand: it streams proxy
// configurations from its single argument (a file path, or "-" for
// stdin) and exits with the code internal/app/proxytester.Run
// computes for the outcome.
var RunCmd = &cobra.Command{
	Args:                  cobra.ExactArgs(1),
	DisableFlagsInUseLine: true,
	Use:                   docs.RunUse,
	Short:                 docs.RunShort,
	Long:                  docs.RunLong,
	Example:               docs.RunExample,
	Run: func(cmd *cobra.Command, args []string) {
		os.Exit(app.Run(cmd.Context(), args[0]))
	},
}

func init() {
	addCmdInit(func(cmdManager *cmdline.CommandManager) {
		cmdManager.RegisterCmd(RunCmd)
	})
}
