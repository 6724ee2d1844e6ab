// Copyright (C) 2025 Aleutian AI (jinterlante@aleutian.ai)
// This program is free software: you can redistribute it and/or modify
// it under the terms of the GNU Affero General Public License as published by
// the Free Software Foundation, either version 3 of the License, or
// (at your option) any later version.
// See the LICENSE.txt file for the full license text.
//
// NOTE: This work is subject to additional terms under AGPL v3 Section 7.
// See the NOTICE.txt file for details regarding AI system attribution.

package cache

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"sync/atomic"
	"time"

	"github.com/dgraph-io/badger/v4"
)

// maxSweepPasses bounds the value log rewrites done in one sweep so a
// busy store cannot pin the compactor.
const maxSweepPasses = 8

// compactor reclaims value log space left behind by expired and
// overwritten outcome records.
type compactor struct {
	db       *badger.DB
	interval time.Duration
	ratio    float64
	logger   *slog.Logger

	// rewrites counts value log files rewritten since creation.
	rewrites atomic.Int64
}

func newCompactor(db *badger.DB, interval time.Duration, ratio float64, logger *slog.Logger) (*compactor, error) {
	switch {
	case db == nil:
		return nil, fmt.Errorf("%w: compactor needs a database", ErrInvalidConfig)
	case interval <= 0:
		return nil, fmt.Errorf("%w: gc interval %s", ErrInvalidConfig, interval)
	case ratio <= 0 || ratio >= 1:
		return nil, fmt.Errorf("%w: gc discard ratio %.2f", ErrInvalidConfig, ratio)
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &compactor{db: db, interval: interval, ratio: ratio, logger: logger}, nil
}

// run sweeps every interval until ctx is done.
func (c *compactor) run(ctx context.Context) {
	ticker := time.NewTicker(c.interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			c.sweep(ctx)
		}
	}
}

// sweep rewrites value log files until badger reports nothing left to
// reclaim, ctx ends, or maxSweepPasses is reached. It returns the number
// of files rewritten.
func (c *compactor) sweep(ctx context.Context) int {
	n := 0
	for n < maxSweepPasses && ctx.Err() == nil {
		err := c.db.RunValueLogGC(c.ratio)
		if err != nil {
			if !errors.Is(err, badger.ErrNoRewrite) && !errors.Is(err, badger.ErrRejected) {
				c.logger.Warn("cache compaction failed", slog.String("error", err.Error()))
			}
			break
		}
		n++
	}
	if n > 0 {
		c.rewrites.Add(int64(n))
		c.logger.Debug("cache compacted", slog.Int("rewrites", n))
	}
	return n
}
