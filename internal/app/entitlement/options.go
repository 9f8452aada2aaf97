// internal/app/entitlement/options.go
package entitlement

import "time"

// SetRetryBackoff overrides the pause before the single transient-failure
// retry. Values <= 0 are ignored. Call before serving traffic.
func (e *Engine) SetRetryBackoff(d time.Duration) {
	if d <= 0 {
		return
	}
	e.backoff = d
	e.identity.backoff = d
	e.features.backoff = d
	e.subs.backoff = d
}
