package poller

import (
	"time"

	"github.com/cenkalti/backoff/v4"
)

// LinearBackOff waits Base*n before the (n+1)th attempt and stops after MaxRetries retries.
type LinearBackOff struct {
	Base       time.Duration
	MaxRetries int

	retries int
}

var _ backoff.BackOff = (*LinearBackOff)(nil)

func NewLinearBackOff(base time.Duration, maxRetries int) *LinearBackOff {
	return &LinearBackOff{Base: base, MaxRetries: maxRetries}
}

func (b *LinearBackOff) Reset() {
	b.retries = 0
}

func (b *LinearBackOff) NextBackOff() time.Duration {
	if b.retries >= b.MaxRetries {
		return backoff.Stop
	}
	b.retries++
	return b.Base * time.Duration(b.retries)
}
