package ratelimit

import (
	"fmt"
	"strconv"
	"strings"
	"time"

	"github.com/pulsoria/social-sync/internal/domain"
)

// Limit is one platform's fixed request window.
type Limit struct {
	MaxRequests int64
	Window      time.Duration
}

// DefaultLimits holds the per-platform request windows published (or observed)
// for each provider API. Distinct on purpose: the providers genuinely differ.
var DefaultLimits = map[domain.Platform]Limit{
	domain.PlatformInstagram: {MaxRequests: 200, Window: time.Hour},
	domain.PlatformFacebook:  {MaxRequests: 200, Window: time.Hour},
	domain.PlatformTikTok:    {MaxRequests: 600, Window: time.Minute},
	domain.PlatformYouTube:   {MaxRequests: 10000, Window: 24 * time.Hour},
	domain.PlatformTwitter:   {MaxRequests: 300, Window: 15 * time.Minute},
	domain.PlatformLinkedIn:  {MaxRequests: 100, Window: 24 * time.Hour},
}

// ParseOverrides merges "count/window" override strings (keyed by platform)
// into a copy of the default table. Used to shrink windows in tests.
func ParseOverrides(overrides map[string]string) (map[domain.Platform]Limit, error) {
	limits := make(map[domain.Platform]Limit, len(DefaultLimits))
	for platform, limit := range DefaultLimits {
		limits[platform] = limit
	}

	for key, spec := range overrides {
		platform := domain.Platform(strings.ToLower(key))
		if !platform.Valid() {
			return nil, fmt.Errorf("unknown platform %q in rate limit override", key)
		}

		parts := strings.SplitN(spec, "/", 2)
		if len(parts) != 2 {
			return nil, fmt.Errorf("invalid rate limit override %q: want count/window", spec)
		}

		count, err := strconv.ParseInt(parts[0], 10, 64)
		if err != nil || count <= 0 {
			return nil, fmt.Errorf("invalid rate limit count in %q", spec)
		}

		window, err := time.ParseDuration(parts[1])
		if err != nil || window <= 0 {
			return nil, fmt.Errorf("invalid rate limit window in %q", spec)
		}

		limits[platform] = Limit{MaxRequests: count, Window: window}
	}

	return limits, nil
}
