// -*- Mode: Go; indent-tabs-mode: t -*-

/*
 * Copyright (C) 2025-2026 Embedfleet Ltd
 *
 * This program is free software: you can redistribute it and/or modify
 * it under the terms of the GNU General Public License version 3 as
 * published by the Free Software Foundation.
 *
 * This program is distributed in the hope that it will be useful,
 * but WITHOUT ANY WARRANTY; without even the implied warranty of
 * MERCHANTABILITY or FITNESS FOR A PARTICULAR PURPOSE.  See the
 * GNU General Public License for more details.
 *
 * You should have received a copy of the GNU General Public License
 * along with this program.  If not, see <http://www.gnu.org/licenses/>.
 *
 */

package update

import (
	"io"

	"golang.org/x/time/rate"

	"github.com/embedfleet/updated/logger"
)

// progressWriter logs write progress at most once per second so slow
// partition writes remain observable in the journal without flooding
// it.
type progressWriter struct {
	w       io.Writer
	target  string
	total   uint64
	written uint64
	limiter *rate.Limiter
}

func newProgressWriter(w io.Writer, target string, total uint64) *progressWriter {
	return &progressWriter{
		w:       w,
		target:  target,
		total:   total,
		limiter: rate.NewLimiter(rate.Limit(1), 1),
	}
}

func (pw *progressWriter) Write(p []byte) (int, error) {
	n, err := pw.w.Write(p)
	pw.written += uint64(n)
	if err == nil && pw.limiter.Allow() {
		logger.Debugf("wrote %d/%d bytes to %s", pw.written, pw.total, pw.target)
	}
	return n, err
}
