// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package sylog is the process-wide logging facade used throughout
// this repository: Debugf/Infof/Warningf/Errorf/Fatalf against a
// package-level logger, backed by github.com/sirupsen/logrus rather
// than a hand-rolled level filter.
package sylog

import (
	"io"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/sirupsen/logrus"
)

var log = logrus.New()

func init() {
	log.SetFormatter(&logrus.TextFormatter{
		DisableColors:   false,
		FullTimestamp:   true,
		TimestampFormat: "15:04:05.000",
	})
	log.SetLevel(logrus.InfoLevel)
	log.SetOutput(os.Stderr)
}

// SetOutput redirects all log output; primarily for tests.
func SetOutput(w io.Writer) { log.SetOutput(w) }

// SetLevelString parses one of "fatal", "error", "warn", "info",
// "debug" and applies it; unrecognized values fall back to "info".
func SetLevelString(level string) {
	lvl, err := logrus.ParseLevel(strings.ToLower(level))
	if err != nil {
		lvl = logrus.InfoLevel
	}
	log.SetLevel(lvl)
}

// DisableColor turns off ANSI colorization, for non-terminal output
// or the --nocolor flag.
func DisableColor() {
	color.NoColor = true
	log.SetFormatter(&logrus.TextFormatter{DisableColors: true, FullTimestamp: true})
}

// GetLevel returns the active logrus level, for call sites (like the
// progress bar) that need to suppress decorative output below a
// given verbosity rather than log a message.
func GetLevel() logrus.Level { return log.GetLevel() }

func Debugf(format string, args ...interface{}) { log.Debugf(format, args...) }
func Infof(format string, args ...interface{})  { log.Infof(format, args...) }
func Warningf(format string, args ...interface{}) {
	log.Warnf(format, args...)
}
func Errorf(format string, args ...interface{}) { log.Errorf(format, args...) }

// Fatalf logs at fatal level and terminates the process with exit
// code 1, for unrecoverable startup failures.
func Fatalf(format string, args ...interface{}) {
	log.Fatalf(format, args...)
}

// WithField returns a field-scoped entry for structured call sites
// (port numbers, batch IDs, PIDs) that want to avoid format-string
// wrangling.
func WithField(key string, value interface{}) *logrus.Entry {
	return log.WithField(key, value)
}
