// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package cli registers the proxytester command tree on top of
// pkg/cmdline, a flag-as-data registry built on cobra/pflag.
package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"
	"text/template"

	"github.com/fatih/color"
	"github.com/spf13/cobra"
	"golang.org/x/term"

	"github.com/proxycore/tester/docs"
	"github.com/proxycore/tester/internal/pkg/sylog"
	"github.com/proxycore/tester/pkg/buildinfo"
	"github.com/proxycore/tester/pkg/cmdline"
)

// cmdInits holds every init function that registers a command/flag
// against the root command manager, collected by addCmdInit so each
// command file can register itself without a central switch.
var cmdInits = make([]func(*cmdline.CommandManager), 0)

const envPrefix = "PROXY_"

// Top-level flags on the root command.
var (
	debug   bool
	verbose bool
	quiet   bool
	silent  bool
	nocolor bool
)

var rootDebugFlag = cmdline.Flag{
	ID:           "rootDebugFlag",
	Value:        &debug,
	DefaultValue: false,
	Name:         "debug",
	ShortHand:    "d",
	Usage:        "print debugging information (highest verbosity)",
	EnvKeys:      []string{"DEBUG"},
}

var rootVerboseFlag = cmdline.Flag{
	ID:           "rootVerboseFlag",
	Value:        &verbose,
	DefaultValue: false,
	Name:         "verbose",
	ShortHand:    "v",
	Usage:        "print additional information",
	EnvKeys:      []string{"VERBOSE"},
}

var rootQuietFlag = cmdline.Flag{
	ID:           "rootQuietFlag",
	Value:        &quiet,
	DefaultValue: false,
	Name:         "quiet",
	ShortHand:    "q",
	Usage:        "suppress normal output",
}

var rootSilentFlag = cmdline.Flag{
	ID:           "rootSilentFlag",
	Value:        &silent,
	DefaultValue: false,
	Name:         "silent",
	ShortHand:    "s",
	Usage:        "only print errors",
}

var rootNoColorFlag = cmdline.Flag{
	ID:           "rootNoColorFlag",
	Value:        &nocolor,
	DefaultValue: false,
	Name:         "nocolor",
	Usage:        "disable colorized log output",
	EnvKeys:      []string{"NOCOLOR"},
}

func addCmdInit(cmdInit func(*cmdline.CommandManager)) {
	cmdInits = append(cmdInits, cmdInit)
}

func setSylogMessageLevel() {
	switch {
	case debug:
		sylog.SetLevelString("debug")
	case verbose:
		sylog.SetLevelString("info")
	case quiet:
		sylog.SetLevelString("error")
	case silent:
		sylog.SetLevelString("fatal")
	default:
		sylog.SetLevelString("info")
	}

	if nocolor || !term.IsTerminal(int(os.Stderr.Fd())) {
		color.NoColor = true
		sylog.DisableColor()
	}
}

func persistentPreRun(*cobra.Command, []string) error {
	setSylogMessageLevel()
	sylog.Debugf("proxytester version: %s", buildinfo.Version)
	return nil
}

// rootCmd is the base command when proxytester is called without a
// subcommand.
var rootCmd = &cobra.Command{
	TraverseChildren:      true,
	DisableFlagsInUseLine: true,
	RunE: func(_ *cobra.Command, _ []string) error {
		return cmdline.NewCommandError("invalid command")
	},

	Use:           docs.TesterUse,
	Version:       buildinfo.Version,
	Short:         docs.TesterShort,
	Long:          docs.TesterLong,
	Example:       docs.TesterExample,
	SilenceErrors: true,
	SilenceUsage:  true,
}

// RootCmd returns the root proxytester cobra command.
func RootCmd() *cobra.Command {
	return rootCmd
}

// Init registers every command and top-level flag against rootCmd.
func Init() {
	cmdManager := cmdline.NewCommandManager(rootCmd)

	rootCmd.Flags().SetInterspersed(false)
	rootCmd.PersistentFlags().SetInterspersed(false)

	cobra.AddTemplateFuncs(template.FuncMap{
		"TraverseParentsUses": TraverseParentsUses,
	})
	rootCmd.SetHelpTemplate(docs.HelpTemplate)
	rootCmd.SetUsageTemplate(docs.UseTemplate)
	rootCmd.SetVersionTemplate(fmt.Sprintf("%s version {{printf \"%%s\" .Version}}\n", buildinfo.PackageName))

	rootCmd.PersistentPreRunE = func(cmd *cobra.Command, args []string) error {
		if err := cmdManager.UpdateCmdFlagFromEnv(rootCmd, envPrefix); err != nil {
			sylog.Fatalf("while parsing global environment variables: %s", err)
		}
		if err := cmdManager.UpdateCmdFlagFromEnv(cmd, envPrefix); err != nil {
			sylog.Fatalf("while parsing environment variables: %s", err)
		}
		if err := persistentPreRun(cmd, args); err != nil {
			sylog.Fatalf("while initializing: %s", err)
		}
		return nil
	}

	cmdManager.RegisterFlagForCmd(&rootDebugFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&rootVerboseFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&rootQuietFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&rootSilentFlag, rootCmd)
	cmdManager.RegisterFlagForCmd(&rootNoColorFlag, rootCmd)

	cmdManager.RegisterCmd(VersionCmd)

	for _, cmdInit := range cmdInits {
		cmdInit(cmdManager)
	}

	if errs := cmdManager.GetError(); len(errs) > 0 {
		for _, e := range errs {
			sylog.Errorf("%s", e)
		}
		sylog.Fatalf("CLI command manager reported %d error(s)", len(errs))
	}
}

// Execute runs the proxytester command tree, trapping SIGINT/SIGTERM
// into a cancellable context for top-level Ctrl-C handling; the run
// subcommand layers its own two-stage drain/abort supervisor on top
// of this context via internal/app/proxytester.
func Execute() {
	Init()

	ctx := context.Background()
	ctx, cancel := context.WithCancel(ctx)
	c := make(chan os.Signal, 1)
	signal.Notify(c, os.Interrupt, syscall.SIGTERM)
	defer func() {
		signal.Stop(c)
		cancel()
	}()
	go func() {
		select {
		case <-c:
			sylog.Debugf("user requested cancellation with interrupt")
			cancel()
		case <-ctx.Done():
		}
	}()

	if err := rootCmd.ExecuteContext(ctx); err != nil {
		args := os.Args
		subCmd, _, subCmdErr := rootCmd.Find(args[1:])
		if subCmdErr != nil {
			rootCmd.Printf("Error: %v\n\n", subCmdErr)
		}

		name := subCmd.Name()
		switch err.(type) {
		case cmdline.FlagError:
			usage := subCmd.Flags().FlagUsagesWrapped(80)
			rootCmd.Printf("Error for command %q: %s\n\n", name, err)
			rootCmd.Printf("Options for %s command:\n\n%s\n", name, usage)
		case cmdline.CommandError:
			rootCmd.Println(subCmd.UsageString())
		default:
			rootCmd.Printf("Error for command %q: %s\n\n", name, err)
			rootCmd.Println(subCmd.UsageString())
		}
		rootCmd.Printf("Run '%s --help' for more detailed usage information.\n", rootCmd.CommandPath())
		os.Exit(1)
	}
}

// TraverseParentsUses walks the parent commands and outputs a
// properly formatted use string, used by docs.UseTemplate.
func TraverseParentsUses(cmd *cobra.Command) string {
	if cmd.HasParent() {
		return TraverseParentsUses(cmd.Parent()) + cmd.Use + " "
	}
	return cmd.Use + " "
}
