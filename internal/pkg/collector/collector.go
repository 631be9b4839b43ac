// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package collector is a thin stand-in for the subscription-fetching
// and link-parsing collaborator spec.md §1 places out of scope: it
// only turns a file (or stdin) of ProxyConfig JSON into the stream
// BatchDriver consumes, per SPEC_FULL.md §4.12.
package collector

import (
	"bufio"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/proxycore/tester/pkg/proxyconfig"
)

// Open returns a reader over path, or stdin when path is "-". The
// caller is responsible for closing the returned io.ReadCloser.
func Open(path string) (io.ReadCloser, error) {
	if path == "-" {
		return io.NopCloser(os.Stdin), nil
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, fmt.Errorf("collector: opening %s: %w", path, err)
	}
	return f, nil
}

// StreamFile reads ProxyConfig records from r, accepting either a
// single JSON array or newline-delimited JSON objects, and streams
// them on the returned channel, closing it at EOF. Decode errors are
// sent on the error channel and stop the stream; both channels are
// closed once done.
func StreamFile(r io.Reader) (<-chan proxyconfig.Config, <-chan error) {
	out := make(chan proxyconfig.Config)
	errCh := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errCh)

		br := bufio.NewReader(r)
		first, err := peekFirstNonSpace(br)
		if err != nil {
			if err != io.EOF {
				errCh <- fmt.Errorf("collector: reading input: %w", err)
			}
			return
		}

		dec := json.NewDecoder(br)
		if first == '[' {
			streamArray(dec, out, errCh)
			return
		}
		streamNDJSON(dec, out, errCh)
	}()

	return out, errCh
}

func peekFirstNonSpace(br *bufio.Reader) (byte, error) {
	for {
		b, err := br.Peek(1)
		if err != nil {
			return 0, err
		}
		if !strings.ContainsRune(" \t\r\n", rune(b[0])) {
			return b[0], nil
		}
		if _, err := br.Discard(1); err != nil {
			return 0, err
		}
	}
}

func streamArray(dec *json.Decoder, out chan<- proxyconfig.Config, errCh chan<- error) {
	if _, err := dec.Token(); err != nil {
		errCh <- fmt.Errorf("collector: reading array start: %w", err)
		return
	}
	for dec.More() {
		var cfg proxyconfig.Config
		if err := dec.Decode(&cfg); err != nil {
			errCh <- fmt.Errorf("collector: decoding record: %w", err)
			return
		}
		out <- cfg
	}
}

func streamNDJSON(dec *json.Decoder, out chan<- proxyconfig.Config, errCh chan<- error) {
	for {
		var cfg proxyconfig.Config
		err := dec.Decode(&cfg)
		if err == io.EOF {
			return
		}
		if err != nil {
			errCh <- fmt.Errorf("collector: decoding record: %w", err)
			return
		}
		out <- cfg
	}
}
