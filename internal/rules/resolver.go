package rules

import (
	"errors"

	"github.com/renewhq/renewd/internal/models"
)

// ErrNoRules means retries are enabled but no rule table is configured.
var ErrNoRules = errors.New("rules: retries enabled with an empty rule table")

// Resolver maps a 0-based retry count to the rule governing the next retry.
// retryCount 0 is the first retry, i.e. the rule applied right after the
// original failed attempt.
type Resolver struct {
	source  Source
	enabled bool
}

// NewResolver fails with ErrNoRules when retries are enabled but the source
// has an empty table. Misconfiguration surfaces here, at wiring time, rather
// than on the first payment failure.
func NewResolver(source Source, enabled bool) (*Resolver, error) {
	if enabled && len(source.Rules()) == 0 {
		return nil, ErrNoRules
	}
	return &Resolver{source: source, enabled: enabled}, nil
}

func (r *Resolver) Enabled() bool {
	return r.enabled
}

// Resolve returns the rule for the given retry count. Past the end of the
// table it reports false: retries stop at the boundary rather than repeating
// the last rule.
func (r *Resolver) Resolve(retryCount int) (models.RetryRule, bool) {
	if !r.enabled || retryCount < 0 {
		return models.RetryRule{}, false
	}
	table := r.source.Rules()
	if retryCount >= len(table) {
		return models.RetryRule{}, false
	}
	return table[retryCount], true
}
