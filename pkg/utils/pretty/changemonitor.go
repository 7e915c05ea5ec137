/*
Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

    http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/

package pretty

import (
	"time"

	"github.com/mitchellh/hashstructure/v2"
	cache "github.com/patrickmn/go-cache"
)

// ChangeMonitor reduces logging when discovering information that may
// or may not have changed since it was last observed. CarbonMonitor
// uses one to keep a zone's fetch-failure log from repeating every
// poll once a feed is down — the same noisy-logging problem the
// teacher's original use (discovering cluster state) has, just
// pointed at carbon feed health instead. Recorded values expire after
// VisibilityTimeout (default 24h) so a long-silent key doesn't
// suppress a log forever.
type ChangeMonitor struct {
	lastSeen *cache.Cache
}

// Options configures a ChangeMonitor.
type Options struct {
	VisibilityTimeout time.Duration
}

// Option mutates Options during NewChangeMonitor.
type Option func(*Options)

// WithVisibilityTimeout overrides the default 24h expiration.
func WithVisibilityTimeout(d time.Duration) Option {
	return func(o *Options) { o.VisibilityTimeout = d }
}

// NewChangeMonitor builds a ChangeMonitor.
func NewChangeMonitor(opts ...Option) *ChangeMonitor {
	options := Options{VisibilityTimeout: 24 * time.Hour}
	for _, opt := range opts {
		opt(&options)
	}
	return &ChangeMonitor{
		lastSeen: cache.New(options.VisibilityTimeout, options.VisibilityTimeout/2),
	}
}

// Reconfigure resets the monitor with a new expiration, discarding
// anything previously recorded. Only meant to be used right after
// construction.
func (c *ChangeMonitor) Reconfigure(expiration time.Duration) {
	c.lastSeen = cache.New(expiration, expiration/2)
}

// HasChanged reports whether value's hash differs from what was last
// recorded under key, recording the new hash either way.
func (c *ChangeMonitor) HasChanged(key string, value any) bool {
	hv, _ := hashstructure.Hash(value, hashstructure.FormatV2, &hashstructure.HashOptions{SlicesAsSets: true})
	existing, ok := c.lastSeen.Get(key)
	var existingHash uint64
	if ok {
		existingHash = existing.(uint64)
	}
	if !ok || existingHash != hv {
		c.lastSeen.SetDefault(key, hv)
		return true
	}
	return false
}
