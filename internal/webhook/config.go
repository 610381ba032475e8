package webhook

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/scottdmilner/pipebot/internal/config"
)

// FromConfig converts the global configuration into a webhook.Config.
// Channel names are resolved to IDs and max body sizes are parsed.
func FromConfig(cfg *config.Config) (Config, error) {
	if cfg == nil {
		return Config{}, fmt.Errorf("config is nil")
	}

	wc := Config{
		Listen:          cfg.Webhooks.Listen,
		DeliveryTimeout: cfg.Service.DeliveryTimeout,
		Endpoints:       make([]EndpointConfig, len(cfg.Webhooks.Endpoints)),
	}

	for i, ep := range cfg.Webhooks.Endpoints {
		if _, err := handlerFor(ep.Handler); err != nil {
			return Config{}, fmt.Errorf("webhook endpoint %q: %w", ep.Path, err)
		}

		channelID, ok := cfg.Discord.Channels[ep.Channel]
		if !ok || channelID == "" {
			return Config{}, fmt.Errorf("webhook endpoint %q: channel %q not configured", ep.Path, ep.Channel)
		}

		if ep.Secret == "" {
			return Config{}, fmt.Errorf("webhook endpoint %q: no secret configured", ep.Path)
		}

		// Parse max body size (e.g., "1MB", "2048576")
		maxBodySize, err := parseMaxBodySize(ep.MaxBodySize)
		if err != nil {
			return Config{}, fmt.Errorf("webhook endpoint %q: invalid max_body_size %q: %w", ep.Path, ep.MaxBodySize, err)
		}

		wc.Endpoints[i] = EndpointConfig{
			Path:            ep.Path,
			Handler:         ep.Handler,
			ChannelID:       channelID,
			Secret:          ep.Secret,
			SignatureHeader: ep.SignatureHeader,
			MaxBodySize:     maxBodySize,
		}
	}

	return wc, nil
}

// parseMaxBodySize parses size strings like "1MB", "512KB", "2048576" to bytes.
// Returns DefaultMaxBodySize if empty.
func parseMaxBodySize(size string) (int64, error) {
	if size == "" {
		return DefaultMaxBodySize, nil
	}

	upper := strings.ToUpper(strings.TrimSpace(size))
	multiplier := int64(1)

	switch {
	case strings.HasSuffix(upper, "KB"):
		multiplier = 1024
		upper = strings.TrimSuffix(upper, "KB")
	case strings.HasSuffix(upper, "MB"):
		multiplier = 1024 * 1024
		upper = strings.TrimSuffix(upper, "MB")
	case strings.HasSuffix(upper, "GB"):
		multiplier = 1024 * 1024 * 1024
		upper = strings.TrimSuffix(upper, "GB")
	}

	value, err := strconv.ParseInt(strings.TrimSpace(upper), 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid size value: %w", err)
	}

	if value <= 0 {
		return 0, fmt.Errorf("size must be positive")
	}

	result := value * multiplier
	if result/multiplier != value {
		return 0, fmt.Errorf("size too large")
	}

	return result, nil
}
