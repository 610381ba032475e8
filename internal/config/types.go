package config

import "time"

// Config represents the complete pipebot configuration.
type Config struct {
	Service  ServiceConfig  `yaml:"service"`
	Discord  DiscordConfig  `yaml:"discord"`
	GitHub   GitHubConfig   `yaml:"github"`
	Webhooks WebhooksConfig `yaml:"webhooks"`
	Assets   AssetsConfig   `yaml:"assets"`
	Report   ReportConfig   `yaml:"report"`
	Admin    AdminConfig    `yaml:"admin"`
}

// ServiceConfig defines core service settings.
type ServiceConfig struct {
	Name      string `yaml:"name"`
	LogLevel  string `yaml:"log_level"`
	LogFormat string `yaml:"log_format"`
	LockPath  string `yaml:"lock_path"`

	// DeliveryTimeout bounds a single chat notification delivery.
	DeliveryTimeout time.Duration `yaml:"delivery_timeout"`
}

// DiscordConfig defines the chat transport.
type DiscordConfig struct {
	Token string `yaml:"token"`

	// GuildID scopes command registration to one guild. Empty registers globally.
	GuildID string `yaml:"guild_id"`

	// Channels maps logical channel names (referenced by webhook endpoints)
	// to channel IDs.
	Channels map[string]string `yaml:"channels"`
}

// GitHubConfig defines the issue tracker connection.
type GitHubConfig struct {
	Token      string `yaml:"token"`
	Repository string `yaml:"repository"` // owner/name
	BaseURL    string `yaml:"base_url,omitempty"`

	// WritesPerSecond throttles content-creating requests (issues, files).
	WritesPerSecond float64       `yaml:"writes_per_second"`
	WriteBurst      int           `yaml:"write_burst"`
	RequestTimeout  time.Duration `yaml:"request_timeout"`
}

// WebhooksConfig defines webhook listener settings.
type WebhooksConfig struct {
	Listen    string            `yaml:"listen"`
	Endpoints []WebhookEndpoint `yaml:"endpoints"`
}

// WebhookEndpoint defines a single webhook endpoint.
type WebhookEndpoint struct {
	Path            string `yaml:"path"`
	Handler         string `yaml:"handler"`
	Channel         string `yaml:"channel"`
	Secret          string `yaml:"secret"`
	SignatureHeader string `yaml:"signature_header"`
	MaxBodySize     string `yaml:"max_body_size,omitempty"`
}

// AssetsConfig defines where report attachments are stored.
type AssetsConfig struct {
	Backend string `yaml:"backend"` // github or s3

	// Namespace is the branch (github) or key prefix (s3) holding assets.
	Namespace        string   `yaml:"namespace"`
	MaxDownloadBytes int64    `yaml:"max_download_bytes"`
	S3               S3Config `yaml:"s3,omitempty"`
}

// S3Config defines an S3-compatible asset store.
type S3Config struct {
	Bucket          string `yaml:"bucket"`
	Region          string `yaml:"region"`
	Endpoint        string `yaml:"endpoint,omitempty"`
	AccessKeyID     string `yaml:"access_key_id,omitempty"`
	SecretAccessKey string `yaml:"secret_access_key,omitempty"`
	ForcePathStyle  bool   `yaml:"force_path_style"`
	PublicBaseURL   string `yaml:"public_base_url"`
}

// ReportConfig defines the bug report command.
type ReportConfig struct {
	FormTimeout time.Duration `yaml:"form_timeout"`

	// Labels overrides the tracker label used for a category or severity value.
	Labels map[string]string `yaml:"labels,omitempty"`
}

// AdminConfig defines the health and metrics listener.
type AdminConfig struct {
	Enabled bool   `yaml:"enabled"`
	Listen  string `yaml:"listen"`
	Token   string `yaml:"token,omitempty"`
}

// Defaults returns a Config with the values used when a field is left unset.
func Defaults() *Config {
	return &Config{
		Service: ServiceConfig{
			Name:            "pipebot",
			LogLevel:        "info",
			LogFormat:       "json",
			LockPath:        "./data/pipebot.lock",
			DeliveryTimeout: 10 * time.Second,
		},
		Discord: DiscordConfig{
			Channels: make(map[string]string),
		},
		GitHub: GitHubConfig{
			WritesPerSecond: 1,
			WriteBurst:      5,
			RequestTimeout:  30 * time.Second,
		},
		Assets: AssetsConfig{
			Backend:          "github",
			Namespace:        "pipebot-issues-assets",
			MaxDownloadBytes: 25 << 20,
			S3: S3Config{
				Region: "us-east-1",
			},
		},
		Report: ReportConfig{
			FormTimeout: 20 * time.Minute,
		},
		Admin: AdminConfig{
			Listen: "127.0.0.1:9090",
		},
	}
}
