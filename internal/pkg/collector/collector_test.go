// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

package collector

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func drain(t *testing.T, input string) ([]string, error) {
	t.Helper()
	out, errCh := StreamFile(strings.NewReader(input))

	var tags []string
	for cfg := range out {
		tags = append(tags, cfg.Tag)
	}
	return tags, <-errCh
}

func TestStreamFileJSONArray(t *testing.T) {
	input := `[{"tag":"a","type":"socks","server":"1.2.3.4:1"},{"tag":"b","type":"http","server":"1.2.3.4:2"}]`
	tags, err := drain(t, input)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tags)
}

func TestStreamFileNDJSON(t *testing.T) {
	input := "{\"tag\":\"a\",\"type\":\"socks\",\"server\":\"1.2.3.4:1\"}\n{\"tag\":\"b\",\"type\":\"socks\",\"server\":\"1.2.3.4:2\"}\n"
	tags, err := drain(t, input)
	require.NoError(t, err)
	assert.Equal(t, []string{"a", "b"}, tags)
}

func TestStreamFileEmptyArray(t *testing.T) {
	tags, err := drain(t, "[]")
	require.NoError(t, err)
	assert.Empty(t, tags)
}

func TestStreamFileMalformedRecordSurfacesError(t *testing.T) {
	tags, err := drain(t, `[{"tag":"a","type":"socks","server":"1.2.3.4:1"}, not-json]`)
	assert.Error(t, err)
	assert.Equal(t, []string{"a"}, tags)
}

func TestOpenStdinSentinel(t *testing.T) {
	rc, err := Open("-")
	require.NoError(t, err)
	assert.NotNil(t, rc)
}
