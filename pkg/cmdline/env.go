// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package cmdline

import "github.com/spf13/pflag"

// EnvHandler applies an environment variable's string value to flag,
// returning an error if val cannot be parsed as flag's type. Most
// flags use EnvSetValue; a Flag may supply its own to customize
// parsing (e.g. comma-splitting, path expansion).
type EnvHandler func(flag *pflag.Flag, val string) error

// EnvSetValue is the default EnvHandler: it defers to pflag's own
// Set, which already knows how to parse every flag type this package
// registers (string, bool, int).
func EnvSetValue(flag *pflag.Flag, val string) error {
	return flag.Value.Set(val)
}
