// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 AuthCore Contributors

// Package memstore provides in-memory implementations of auth.SessionStore
// and auth.RevocationRegistry. Entries expire lazily on read and are removed
// by a background reaper.
package memstore

import (
	"sync"
	"time"
)

// DefaultReapInterval is the interval at which expired entries are removed.
const DefaultReapInterval = time.Minute

// Config configures the in-memory stores.
type Config struct {
	// ReapInterval defaults to DefaultReapInterval when zero.
	ReapInterval time.Duration

	// Now defaults to time.Now.
	Now func() time.Time
}

func (c Config) withDefaults() Config {
	if c.ReapInterval <= 0 {
		c.ReapInterval = DefaultReapInterval
	}
	if c.Now == nil {
		c.Now = time.Now
	}
	return c
}

// reaper runs a cleanup function periodically until closed.
type reaper struct {
	stopChan  chan struct{}
	wg        sync.WaitGroup
	closeOnce sync.Once
}

func newReaper(interval time.Duration, cleanup func()) *reaper {
	r := &reaper{stopChan: make(chan struct{})}
	r.wg.Add(1)
	go r.loop(interval, cleanup)
	return r
}

func (r *reaper) loop(interval time.Duration, cleanup func()) {
	defer r.wg.Done()

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-r.stopChan:
			return
		case <-ticker.C:
			cleanup()
		}
	}
}

// close stops the loop and blocks until it has exited. Safe to call twice.
func (r *reaper) close() {
	r.closeOnce.Do(func() { close(r.stopChan) })
	r.wg.Wait()
}
