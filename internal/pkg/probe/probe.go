// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package probe drives one canonical HTTP request through a ready
// child's local loopback endpoint and classifies the outcome, per
// spec.md §4.3. Dispatch between the SOCKS5 and HTTP CONNECT dial
// variants is polymorphic over proxyconfig.LocalInboundKind, per
// spec.md §9.
package probe

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"net/url"
	"time"

	"golang.org/x/net/proxy"

	"github.com/proxycore/tester/pkg/proxyconfig"
)

// Outcome classifies how a probe concluded.
type Outcome string

const (
	Success     Outcome = "success"
	Timeout     Outcome = "timeout"
	ProbeFailed Outcome = "probe_failed"
	Cancelled   Outcome = "cancelled"
)

// Result carries the classification and the wall-clock time from
// probe start to the first response byte (zero on non-success).
type Result struct {
	Outcome      Outcome
	ResponseTime time.Duration
	Detail       string
}

// Prober is implemented by both dial variants so Run can dispatch
// without a type switch at every call site.
type Prober interface {
	probe(ctx context.Context, localAddr, targetURL string) (*http.Response, error)
}

// Run dials 127.0.0.1:localPort using the dial variant selected by
// kind, issues a GET against targetURL, and classifies the outcome.
// ctx carries the per-config Timeout deadline set by the caller
// (spec.md §4.7); Run never imposes a deadline of its own.
func Run(ctx context.Context, kind proxyconfig.LocalInboundKind, localPort int, targetURL string) Result {
	start := time.Now()
	localAddr := fmt.Sprintf("127.0.0.1:%d", localPort)

	var p Prober
	switch kind {
	case proxyconfig.LocalHTTPConnect:
		p = httpConnectProber{}
	default:
		p = socks5Prober{}
	}

	resp, err := p.probe(ctx, localAddr, targetURL)
	if err != nil {
		if ctx.Err() != nil {
			if errors.Is(ctx.Err(), context.Canceled) {
				return Result{Outcome: Cancelled, Detail: err.Error()}
			}
			return Result{Outcome: Timeout, Detail: err.Error()}
		}
		return Result{Outcome: ProbeFailed, Detail: err.Error()}
	}
	defer resp.Body.Close()

	elapsed := time.Since(start)
	if resp.StatusCode >= 200 && resp.StatusCode < 400 {
		return Result{Outcome: Success, ResponseTime: elapsed}
	}
	return Result{Outcome: ProbeFailed, Detail: fmt.Sprintf("unexpected status %d", resp.StatusCode)}
}

// socks5Prober dials the child's inbound as a SOCKS5 proxy, the
// default variant per spec.md §4.3.
type socks5Prober struct{}

func (socks5Prober) probe(ctx context.Context, localAddr, targetURL string) (*http.Response, error) {
	dialer, err := proxy.SOCKS5("tcp", localAddr, nil, &net.Dialer{})
	if err != nil {
		return nil, fmt.Errorf("probe: building socks5 dialer: %w", err)
	}
	contextDialer, ok := dialer.(proxy.ContextDialer)
	if !ok {
		return nil, errors.New("probe: socks5 dialer does not support context cancellation")
	}

	client := &http.Client{
		Transport: &http.Transport{
			DialContext: contextDialer.DialContext,
		},
	}
	return doGet(ctx, client, targetURL)
}

// httpConnectProber uses the child's inbound as an HTTP proxy,
// selected only when the candidate's Type is http. net/http tunnels
// https targets through it with CONNECT and sends http targets to it
// as absolute-form requests.
type httpConnectProber struct{}

func (httpConnectProber) probe(ctx context.Context, localAddr, targetURL string) (*http.Response, error) {
	proxyURL := &url.URL{Scheme: "http", Host: localAddr}
	client := &http.Client{
		Transport: &http.Transport{
			Proxy: http.ProxyURL(proxyURL),
		},
	}
	return doGet(ctx, client, targetURL)
}

func doGet(ctx context.Context, client *http.Client, targetURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, targetURL, nil)
	if err != nil {
		return nil, fmt.Errorf("probe: building request: %w", err)
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	return resp, nil
}
