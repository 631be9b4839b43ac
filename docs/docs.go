// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package docs holds the long-form help text for the proxytester
// command tree, separated out from cmd/internal/cli so Use/Short/
// Long/Example strings don't clutter the command files that register
// them.
package docs

const (
	TesterUse   = "proxytester"
	TesterShort = "Concurrently validate a batch of proxy configurations"
	TesterLong  = `proxytester drives a pool of short-lived core-proxy child processes to
validate a stream of proxy configurations concurrently. Each configuration is
written out as a standalone inbound/outbound proxy config, launched as its own
child process on a leased local port, and probed with a single HTTP request
through that local port. The result (success, failure, timeout, or one of the
harness's own failure classes) is collected into a JSON report.

Configuration is read from a file or stdin as either a JSON array or
newline-delimited JSON objects. Every setting is controlled by environment
variables: XRAY_PATH and the PROXY_* variables.`

	TesterExample = `  # validate configs read from a file, up to 50 core binaries at a time
  PROXY_MAX_WORKERS=50 proxytester run configs.json

  # read from stdin, write per-batch results under ./results/working_json
  cat configs.ndjson | PROXY_DATA_DIR=./results proxytester run -`

	RunUse   = "run [file|-]"
	RunShort = "Test a batch of proxy configurations"
	RunLong  = `run streams proxy configurations from the given file (or stdin, given "-"),
slices them into batches, and tests each configuration by launching a core
proxy child process against it and probing the resulting local inbound.`
	RunExample = `  proxytester run configs.json
  cat configs.json | proxytester run -`

	VersionUse   = "version"
	VersionShort = "Show the proxytester version"
)

// HelpTemplate and UseTemplate are passed verbatim to cobra; command
// help rendering isn't part of this harness's domain, so both are
// carried unmodified from a standard cobra command tree.
const HelpTemplate = `{{with (or .Long .Short)}}{{. | trimTrailingWhitespaces}}

{{end}}{{if or .Runnable .HasSubCommands}}{{.UsageString}}{{end}}`

const UseTemplate = `Usage:
{{if .Runnable}}  {{.UseLine}}{{end}}{{if .HasAvailableSubCommands}}
  {{TraverseParentsUses .}}[command]{{end}}{{if gt (len .Aliases) 0}}

Aliases:
  {{.NameAndAliases}}{{end}}{{if .HasExample}}

Examples:
{{.Example}}{{end}}{{if .HasAvailableSubCommands}}

Available Commands:{{range .Commands}}{{if .IsAvailableCommand}}
  {{rpad .Name .NamePadding }} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableLocalFlags}}

Flags:
{{.LocalFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasAvailableInheritedFlags}}

Global Flags:
{{.InheritedFlags.FlagUsages | trimTrailingWhitespaces}}{{end}}{{if .HasHelpSubCommands}}

Additional help topics:{{range .Commands}}{{if .IsAdditionalHelpTopicCommand}}
  {{rpad .CommandPath .CommandPathPadding}} {{.Short}}{{end}}{{end}}{{end}}{{if .HasAvailableSubCommands}}

Use "{{.CommandPath}} [command] --help" for more information about a command.{{end}}
`
