// Copyright (c) 2024 The proxytester Authors. All rights reserved.
// This software is licensed under a 3-clause BSD license. Please consult the
// LICENSE file distributed with the sources of this project regarding your
// rights to use or distribute this software.

// Package progress renders a single mpb progress bar tracking how
// many configs in a run have been tested against how many have been
// queued so far.
package progress

import (
	"github.com/vbauerster/mpb/v8"
	"github.com/vbauerster/mpb/v8/decor"
)

var unknownTotalOption = []mpb.BarOption{
	mpb.PrependDecorators(decor.Name("testing proxies ")),
	mpb.AppendDecorators(decor.CountersNoUnit("%d / %d")),
}

// Bar reports BatchDriver progress as configs finish testing. It is
// safe to use with a nil *Bar: every method becomes a no-op, so a run
// without a bar (PROXY_NO_PROGRESS set, or logging at error level or
// quieter) can pass a nil Bar through unchanged code paths.
type Bar struct {
	p     *mpb.Progress
	bar   *mpb.Bar
	total int64
}

// New starts a new indeterminate-total bar; the total grows as
// IncrTotal is called, since BatchDriver doesn't know the full config
// count until the input stream closes.
func New() *Bar {
	p := mpb.New()
	return &Bar{p: p, bar: p.AddBar(0, unknownTotalOption...)}
}

// IncrTotal extends the bar's total by n; BatchDriver calls it once
// per valid config read off the collector stream.
func (b *Bar) IncrTotal(n int) {
	if b == nil {
		return
	}
	b.total += int64(n)
	b.bar.SetTotal(b.total, false)
}

// IncrBy advances the bar by n completed results.
func (b *Bar) IncrBy(n int) {
	if b == nil {
		return
	}
	b.bar.IncrBy(n)
}

// Done finalizes the bar at its current position and waits for the
// render goroutine to flush.
func (b *Bar) Done() {
	if b == nil {
		return
	}
	b.bar.SetTotal(b.bar.Current(), true)
	b.p.Wait()
}
