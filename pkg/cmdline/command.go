// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cmdline

import (
	"github.com/spf13/cobra"
)

// FlagError reports a problem encountered while parsing or validating
// a registered flag's value at runtime (not at registration time).
type FlagError struct {
	s string
}

func (e FlagError) Error() string { return e.s }

// NewFlagError returns a FlagError carrying msg.
func NewFlagError(msg string) FlagError { return FlagError{s: msg} }

// CommandError reports that a command was invoked incorrectly, e.g. a
// bare command that requires a subcommand.
type CommandError struct {
	s string
}

func (e CommandError) Error() string { return e.s }

// NewCommandError returns a CommandError carrying msg.
func NewCommandError(msg string) CommandError { return CommandError{s: msg} }

// CommandManager collects flag-registration errors across many
// command-file init() calls so the caller can report all of them
// together instead of failing on the first one (see DESIGN.md).
type CommandManager struct {
	rootCmd *cobra.Command
	flags   *flagManager
	errs    []error
}

// NewCommandManager returns a CommandManager rooted at root.
func NewCommandManager(root *cobra.Command) *CommandManager {
	return &CommandManager{
		rootCmd: root,
		flags:   newFlagManager(),
	}
}

// RegisterCmd adds cmd as a child of the root command.
func (m *CommandManager) RegisterCmd(cmd *cobra.Command) {
	m.rootCmd.AddCommand(cmd)
}

// RegisterSubCmd adds child as a child of parent.
func (m *CommandManager) RegisterSubCmd(parent, child *cobra.Command) {
	parent.AddCommand(child)
}

// RegisterFlagForCmd registers flag against each of cmds, recording
// any registration error for later retrieval via GetError.
func (m *CommandManager) RegisterFlagForCmd(flag *Flag, cmds ...*cobra.Command) {
	if err := m.flags.registerFlagForCmd(flag, cmds...); err != nil {
		m.errs = append(m.errs, err)
	}
}

// UpdateCmdFlagFromEnv applies environment-variable overrides for
// every flag registered against cmd that declared EnvKeys. Only the
// prefixed name (e.g. PROXY_DEBUG) is consulted; the bare name
// (DEBUG) is not.
func (m *CommandManager) UpdateCmdFlagFromEnv(cmd *cobra.Command, prefix string) error {
	return m.flags.updateCmdFlagFromEnv(cmd, prefix)
}

// GetError returns every registration error observed so far.
func (m *CommandManager) GetError() []error {
	return m.errs
}
