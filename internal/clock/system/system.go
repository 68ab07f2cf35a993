// Package system holds the clocks that stamp runs and result tables.
package system

import "time"

// Clock reads the wall clock in UTC.
type Clock struct{}

// New returns the wall clock.
func New() Clock { return Clock{} }

// Now implements scrape.Clock.
func (Clock) Now() time.Time { return time.Now().UTC() }

// Fixed always reports the same instant, normalized to UTC.
type Fixed time.Time

// Now implements scrape.Clock.
func (f Fixed) Now() time.Time { return time.Time(f).UTC() }
