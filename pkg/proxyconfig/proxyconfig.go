// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package proxyconfig defines the normalized candidate record the
// collector (out of scope for this repository) is expected to
// produce, and that the tester harness consumes.
package proxyconfig

import (
	"encoding/json"
	"fmt"
)

// Protocol identifies the proxy wire protocol a Config describes.
type Protocol string

const (
	Vmess       Protocol = "vmess"
	Shadowsocks Protocol = "shadowsocks"
	Trojan      Protocol = "trojan"
	Vless       Protocol = "vless"
	Socks       Protocol = "socks"
	HTTP        Protocol = "http"
)

func (p Protocol) Valid() bool {
	switch p {
	case Vmess, Shadowsocks, Trojan, Vless, Socks, HTTP:
		return true
	default:
		return false
	}
}

// LocalInboundKind identifies which local dial mechanism the core
// binary's generated inbound speaks for this Type, per spec.md §9's
// capability set {connect(throughSocks), connect(throughHttp)}. Only
// HTTP candidates drive an HTTP CONNECT inbound; every other wire
// protocol is proxied through the core's SOCKS5 inbound, SOCKS5 being
// the default per spec.md §4.3.
type LocalInboundKind string

const (
	LocalSocks5      LocalInboundKind = "socks5"
	LocalHTTPConnect LocalInboundKind = "httpConnect"
)

func (p Protocol) LocalInboundKind() LocalInboundKind {
	if p == HTTP {
		return LocalHTTPConnect
	}
	return LocalSocks5
}

// Options carries the protocol-specific fields a Config may need.
// Every field is optional; which ones are meaningful depends on Type.
type Options struct {
	UUID     string `json:"uuid,omitempty"`
	AlterID  int    `json:"alterId,omitempty"`
	Cipher   string `json:"cipher,omitempty"`
	Network  string `json:"network,omitempty"` // tcp|ws|grpc
	TLS      bool   `json:"tls,omitempty"`
	SNI      string `json:"sni,omitempty"`
	Host     string `json:"host,omitempty"`
	Path     string `json:"path,omitempty"`
	Password string `json:"password,omitempty"`
	Flow     string `json:"flow,omitempty"`
	Username string `json:"username,omitempty"`
	Method   string `json:"method,omitempty"`
}

// Config describes one candidate proxy endpoint to be tested.
//
// A Config is immutable once enqueued into the tester, except for
// Port: the Tester fills that slot with a leased port immediately
// before launching the child process for this candidate.
type Config struct {
	Tag        string   `json:"tag"`
	Type       Protocol `json:"type"`
	Server     string   `json:"server"`
	ServerPort int      `json:"-"` // the upstream server's port, decoded from input as "port"
	Port       int      `json:"-"` // filled by the Tester from a PortLease, never decoded from input
	Options    Options  `json:"options,omitempty"`
}

// Clone returns a deep copy safe to mutate (specifically, to set Port)
// without affecting the caller's original record.
func (c Config) Clone() Config {
	clone := c
	return clone
}

func (c Config) Validate() error {
	if c.Tag == "" {
		return fmt.Errorf("proxyconfig: tag is required")
	}
	if !c.Type.Valid() {
		return fmt.Errorf("proxyconfig: unknown protocol %q", c.Type)
	}
	if c.Server == "" {
		return fmt.Errorf("proxyconfig: server is required")
	}
	if c.ServerPort <= 0 || c.ServerPort > 65535 {
		return fmt.Errorf("proxyconfig: port must be between 1 and 65535, got %d", c.ServerPort)
	}
	return nil
}

// wireConfig mirrors the documented JSON shape in spec §6, where
// type-specific fields are flattened at the top level rather than
// nested under "options".
type wireConfig struct {
	Tag      string   `json:"tag"`
	Type     Protocol `json:"type"`
	Server   string   `json:"server"`
	Port     int      `json:"port"`
	UUID     string   `json:"uuid,omitempty"`
	AlterID  int      `json:"alterId,omitempty"`
	Cipher   string   `json:"cipher,omitempty"`
	Network  string   `json:"network,omitempty"`
	TLS      bool     `json:"tls,omitempty"`
	SNI      string   `json:"sni,omitempty"`
	Host     string   `json:"host,omitempty"`
	Path     string   `json:"path,omitempty"`
	Password string   `json:"password,omitempty"`
	Flow     string   `json:"flow,omitempty"`
	Username string   `json:"username,omitempty"`
	Method   string   `json:"method,omitempty"`
}

func (c *Config) UnmarshalJSON(data []byte) error {
	var w wireConfig
	if err := json.Unmarshal(data, &w); err != nil {
		return err
	}
	*c = Config{
		Tag:        w.Tag,
		Type:       w.Type,
		Server:     w.Server,
		ServerPort: w.Port,
		Options: Options{
			UUID:     w.UUID,
			AlterID:  w.AlterID,
			Cipher:   w.Cipher,
			Network:  w.Network,
			TLS:      w.TLS,
			SNI:      w.SNI,
			Host:     w.Host,
			Path:     w.Path,
			Password: w.Password,
			Flow:     w.Flow,
			Username: w.Username,
			Method:   w.Method,
		},
	}
	return nil
}

func (c Config) MarshalJSON() ([]byte, error) {
	w := wireConfig{
		Tag:      c.Tag,
		Type:     c.Type,
		Server:   c.Server,
		Port:     c.ServerPort,
		UUID:     c.Options.UUID,
		AlterID:  c.Options.AlterID,
		Cipher:   c.Options.Cipher,
		Network:  c.Options.Network,
		TLS:      c.Options.TLS,
		SNI:      c.Options.SNI,
		Host:     c.Options.Host,
		Path:     c.Options.Path,
		Password: c.Options.Password,
		Flow:     c.Options.Flow,
		Username: c.Options.Username,
		Method:   c.Options.Method,
	}
	return json.Marshal(w)
}
