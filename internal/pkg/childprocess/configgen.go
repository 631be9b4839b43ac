// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package childprocess

import (
	"encoding/json"
	"fmt"
	"os"
	"path/filepath"

	"github.com/proxycore/tester/pkg/proxyconfig"
)

// coreConfig is the minimal subset of the proxy-core's own config
// schema this harness needs to populate: one inbound bound to
// 127.0.0.1:<leasedPort>, and one outbound built from the candidate.
// Generating the full proxy-core config (ciphers, transport
// settings, routing) is the collaborator's job per spec.md §1; this
// harness only needs enough of it to make the core bind and proxy.
type coreConfig struct {
	Inbounds  []inbound  `json:"inbounds"`
	Outbounds []outbound `json:"outbounds"`
}

type inbound struct {
	Listen   string `json:"listen"`
	Port     int    `json:"port"`
	Protocol string `json:"protocol"`
}

type outbound struct {
	Protocol string         `json:"protocol"`
	Settings map[string]any `json:"settings"`
	Tag      string         `json:"tag"`
}

// WriteConfig generates the proxy-core JSON config for cfg, bound to
// 127.0.0.1:port, at a unique per-task temp path under dir, and
// returns that path. leaseToken de-duplicates the filename across
// concurrent tasks even when ports happen to collide in timing.
func WriteConfig(dir string, cfg proxyconfig.Config, port int, leaseToken string) (string, error) {
	if err := os.MkdirAll(dir, 0o755); err != nil {
		return "", fmt.Errorf("childprocess: creating config dir %s: %w", dir, err)
	}

	inboundProtocol := "socks"
	if cfg.Type.LocalInboundKind() == proxyconfig.LocalHTTPConnect {
		inboundProtocol = "http"
	}

	cc := coreConfig{
		Inbounds: []inbound{{
			Listen:   "127.0.0.1",
			Port:     port,
			Protocol: inboundProtocol,
		}},
		Outbounds: []outbound{{
			Protocol: string(cfg.Type),
			Tag:      cfg.Tag,
			Settings: outboundSettings(cfg),
		}},
	}

	data, err := json.MarshalIndent(cc, "", "  ")
	if err != nil {
		return "", fmt.Errorf("childprocess: marshaling config for %s: %w", cfg.Tag, err)
	}

	path := filepath.Join(dir, fmt.Sprintf("task-%s.json", leaseToken))
	if err := os.WriteFile(path, data, 0o600); err != nil {
		return "", fmt.Errorf("childprocess: writing config %s: %w", path, err)
	}
	return path, nil
}

func outboundSettings(cfg proxyconfig.Config) map[string]any {
	s := map[string]any{
		"address": cfg.Server,
		"port":    cfg.ServerPort,
	}
	o := cfg.Options
	if o.UUID != "" {
		s["id"] = o.UUID
	}
	if o.AlterID != 0 {
		s["alterId"] = o.AlterID
	}
	if o.Cipher != "" {
		s["method"] = o.Cipher
	}
	if o.Password != "" {
		s["password"] = o.Password
	}
	if o.Username != "" {
		s["username"] = o.Username
	}
	if o.Network != "" {
		s["network"] = o.Network
	}
	if o.TLS {
		s["tls"] = true
	}
	if o.SNI != "" {
		s["sni"] = o.SNI
	}
	if o.Host != "" {
		s["host"] = o.Host
	}
	if o.Path != "" {
		s["path"] = o.Path
	}
	if o.Flow != "" {
		s["flow"] = o.Flow
	}
	return s
}
