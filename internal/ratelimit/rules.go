package ratelimit

import (
	"slices"
	"strings"
	"time"

	"github.com/Proton-105/raybot/pkg/config"
)

// Rules resolves the configured limit for a user and command.
type Rules struct {
	config config.RateLimitConfig
}

// NewRules constructs rate limiting rules from configuration settings.
func NewRules(cfg config.RateLimitConfig) *Rules {
	return &Rules{config: cfg}
}

// Enabled reports whether limiting is switched on at all.
func (r *Rules) Enabled() bool {
	return r.config.Enabled
}

// IsWhitelisted returns true if the userID bypasses rate limits.
func (r *Rules) IsWhitelisted(userID int64) bool {
	return slices.Contains(r.config.Whitelist, userID)
}

// Limit returns the limit and window for a command, falling back to the
// default rule. The bucket name identifies which counter the command shares.
func (r *Rules) Limit(command string) (bucket string, limit int, window time.Duration) {
	name := strings.TrimPrefix(strings.ToLower(command), "/")
	if rule, ok := r.config.Rules[name]; ok && rule.Limit > 0 && rule.Window > 0 {
		return name, rule.Limit, rule.Window
	}

	def := r.config.Default
	if def.Window <= 0 {
		def.Window = time.Minute
	}
	return "default", def.Limit, def.Window
}
