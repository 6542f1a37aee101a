// Package hsp ingests the Darwin Historical Service Performance feed:
// POST /serviceMetrics to discover service RIDs for a corridor, then
// POST /serviceDetails per RID for schedule and actual times at the corridor
// endpoints.
package hsp

import (
	"errors"
	"time"
)

// Config carries every HSP knob. It is built once at process start from
// flags/env and passed in; nothing here mutates after construction.
type Config struct {
	BaseURL  string
	Username string
	Password string

	ConnectTimeout time.Duration
	WriteTimeout   time.Duration
	IdleTimeout    time.Duration

	// Read timeouts differ per request class: bulk serviceMetrics queries run
	// much longer than per-RID serviceDetails lookups.
	MetricsReadTimeout time.Duration
	DetailsReadTimeout time.Duration

	// WindowMinutes bounds each serviceMetrics chunk to keep provider
	// responses under its size limit.
	WindowMinutes  int
	FilterWeekdays bool

	// Delay is the politeness pause between serviceDetails requests.
	Delay time.Duration

	// MaxDetails caps detail fetches for sampling runs; 0 means unlimited.
	MaxDetails int

	Retries       int
	BackoffBase   time.Duration
	ProgressEvery int
}

// Validate fails fast on missing credentials, before any network activity.
func (c Config) Validate() error {
	if c.Username == "" || c.Password == "" {
		return errors.New("hsp: HSP_USERNAME/HSP_PASSWORD not set")
	}
	if c.BaseURL == "" {
		return errors.New("hsp: base URL not set")
	}
	return nil
}
