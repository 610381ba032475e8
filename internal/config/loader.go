package config

import (
	_ "embed"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"regexp"
	"sort"
	"strings"

	"github.com/joho/godotenv"
	"gopkg.in/yaml.v3"
)

//go:embed default.yaml
var defaultConfig []byte

// envVarPattern matches ${VAR} and ${VAR:-fallback}.
var envVarPattern = regexp.MustCompile(`\$\{([A-Za-z_][A-Za-z0-9_]*)(?::-([^}]*))?\}`)

var snowflakePattern = regexp.MustCompile(`^[0-9]+$`)

// DefaultEnvFile is loaded by LoadEnvFile when no explicit path is given.
const DefaultEnvFile = ".env"

// LoadEnvFile loads KEY=VALUE pairs into the process environment. Variables
// already set are not overridden. A missing default file is not an error.
func LoadEnvFile(path string) error {
	explicit := path != ""
	if !explicit {
		path = DefaultEnvFile
	}

	if _, err := os.Stat(path); err != nil {
		if !explicit && errors.Is(err, fs.ErrNotExist) {
			return nil
		}
		return fmt.Errorf("env file %s: %w", path, err)
	}

	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load env file %s: %w", path, err)
	}
	return nil
}

// Load reads and parses configuration from a file. An empty path selects the
// built-in configuration, which is driven entirely by environment variables.
func Load(configPath string) (*Config, error) {
	data := defaultConfig

	if configPath != "" {
		absPath, err := filepath.Abs(configPath)
		if err != nil {
			return nil, fmt.Errorf("failed to resolve config path %q: %w", configPath, err)
		}

		data, err = os.ReadFile(absPath)
		if err != nil {
			return nil, fmt.Errorf("config file not found: %s\n"+
				"Hint: Check the path or run with --config flag", absPath)
		}

		if err := verifyConfigHash(absPath); err != nil {
			return nil, err
		}
	}

	cfg, err := parse(data)
	if err != nil {
		return nil, err
	}

	applyConfigDefaults(cfg)

	if err := validate(cfg); err != nil {
		return nil, err
	}
	return cfg, nil
}

// parse interpolates environment variables and decodes YAML. Any placeholder
// left unresolved is a configuration error naming every missing variable.
func parse(data []byte) (*Config, error) {
	interpolated, missing := interpolateEnv(string(data))
	if len(missing) > 0 {
		return nil, configErrorf("environment",
			"required variables not set: %s", strings.Join(missing, ", "))
	}

	var cfg Config
	if err := yaml.Unmarshal([]byte(interpolated), &cfg); err != nil {
		return nil, fmt.Errorf("failed to parse YAML: %w", err)
	}
	return &cfg, nil
}

// interpolateEnv replaces ${VAR} and ${VAR:-fallback} placeholders. It returns
// the sorted names of variables that are unset and have no fallback.
func interpolateEnv(input string) (string, []string) {
	seen := make(map[string]bool)
	var missing []string

	out := envVarPattern.ReplaceAllStringFunc(input, func(match string) string {
		groups := envVarPattern.FindStringSubmatch(match)
		name := groups[1]

		if value, ok := os.LookupEnv(name); ok {
			return value
		}
		if strings.Contains(match, ":-") {
			return groups[2]
		}

		if !seen[name] {
			seen[name] = true
			missing = append(missing, name)
		}
		return match
	})

	sort.Strings(missing)
	return out, missing
}

// applyConfigDefaults merges default values into config where not explicitly set.
func applyConfigDefaults(cfg *Config) {
	defaults := Defaults()

	if cfg.Service.Name == "" {
		cfg.Service.Name = defaults.Service.Name
	}
	if cfg.Service.LogLevel == "" {
		cfg.Service.LogLevel = defaults.Service.LogLevel
	}
	if cfg.Service.LogFormat == "" {
		cfg.Service.LogFormat = defaults.Service.LogFormat
	}
	if cfg.Service.LockPath == "" {
		cfg.Service.LockPath = defaults.Service.LockPath
	}
	if cfg.Service.DeliveryTimeout == 0 {
		cfg.Service.DeliveryTimeout = defaults.Service.DeliveryTimeout
	}

	if cfg.Discord.Channels == nil {
		cfg.Discord.Channels = defaults.Discord.Channels
	}

	if cfg.GitHub.WritesPerSecond == 0 {
		cfg.GitHub.WritesPerSecond = defaults.GitHub.WritesPerSecond
	}
	if cfg.GitHub.WriteBurst == 0 {
		cfg.GitHub.WriteBurst = defaults.GitHub.WriteBurst
	}
	if cfg.GitHub.RequestTimeout == 0 {
		cfg.GitHub.RequestTimeout = defaults.GitHub.RequestTimeout
	}

	if cfg.Assets.Backend == "" {
		cfg.Assets.Backend = defaults.Assets.Backend
	}
	if cfg.Assets.Namespace == "" {
		cfg.Assets.Namespace = defaults.Assets.Namespace
	}
	if cfg.Assets.MaxDownloadBytes == 0 {
		cfg.Assets.MaxDownloadBytes = defaults.Assets.MaxDownloadBytes
	}
	if cfg.Assets.S3.Region == "" {
		cfg.Assets.S3.Region = defaults.Assets.S3.Region
	}

	if cfg.Report.FormTimeout == 0 {
		cfg.Report.FormTimeout = defaults.Report.FormTimeout
	}

	if cfg.Admin.Listen == "" {
		cfg.Admin.Listen = defaults.Admin.Listen
	}
}

// validate performs fail-fast validation on the configuration.
func validate(cfg *Config) error {
	validLogLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLogLevels[strings.ToLower(cfg.Service.LogLevel)] {
		return configErrorf("service.log_level", "must be one of: debug, info, warn, error (got %q)", cfg.Service.LogLevel)
	}
	if cfg.Service.DeliveryTimeout < 0 {
		return configErrorf("service.delivery_timeout", "must be positive")
	}

	// Discord
	if cfg.Discord.Token == "" {
		return configErrorf("discord.token", "is required")
	}
	for name, id := range cfg.Discord.Channels {
		if !snowflakePattern.MatchString(id) {
			return configErrorf("discord.channels."+name, "channel id must be numeric (got %q)", id)
		}
	}

	// GitHub
	if cfg.GitHub.Token == "" {
		return configErrorf("github.token", "is required")
	}
	if _, _, err := SplitRepository(cfg.GitHub.Repository); err != nil {
		return configErrorf("github.repository", "%v", err)
	}
	if cfg.GitHub.WritesPerSecond < 0 {
		return configErrorf("github.writes_per_second", "must not be negative")
	}

	// Webhooks
	if cfg.Webhooks.Listen == "" {
		return configErrorf("webhooks.listen", "is required")
	}
	if len(cfg.Webhooks.Endpoints) == 0 {
		return configErrorf("webhooks.endpoints", "at least one endpoint is required")
	}
	paths := make(map[string]bool)
	for i, ep := range cfg.Webhooks.Endpoints {
		field := fmt.Sprintf("webhooks.endpoints[%d]", i)
		if !strings.HasPrefix(ep.Path, "/") || ep.Path == "/" {
			return configErrorf(field+".path", "must start with / and not be the root path (got %q)", ep.Path)
		}
		if paths[ep.Path] {
			return configErrorf(field+".path", "duplicate path %q", ep.Path)
		}
		paths[ep.Path] = true

		if ep.Secret == "" {
			return configErrorf(field+".secret", "is required for %s", ep.Path)
		}
		if ep.SignatureHeader == "" {
			return configErrorf(field+".signature_header", "is required for %s", ep.Path)
		}
		if ep.Handler == "" {
			return configErrorf(field+".handler", "is required for %s", ep.Path)
		}
		if _, ok := cfg.Discord.Channels[ep.Channel]; !ok {
			return configErrorf(field+".channel", "channel %q is not defined in discord.channels", ep.Channel)
		}
	}

	// Assets
	switch cfg.Assets.Backend {
	case "github":
	case "s3":
		if cfg.Assets.S3.Bucket == "" {
			return configErrorf("assets.s3.bucket", "is required for the s3 backend")
		}
		if cfg.Assets.S3.PublicBaseURL == "" {
			return configErrorf("assets.s3.public_base_url", "is required for the s3 backend")
		}
	default:
		return configErrorf("assets.backend", "must be github or s3 (got %q)", cfg.Assets.Backend)
	}
	if cfg.Assets.MaxDownloadBytes < 0 {
		return configErrorf("assets.max_download_bytes", "must be positive")
	}

	if cfg.Report.FormTimeout < 0 {
		return configErrorf("report.form_timeout", "must be positive")
	}

	if cfg.Admin.Enabled && cfg.Admin.Listen == "" {
		return configErrorf("admin.listen", "is required when admin is enabled")
	}

	return nil
}

// SplitRepository splits "owner/name" into its parts.
func SplitRepository(repository string) (owner, name string, err error) {
	parts := strings.Split(repository, "/")
	if len(parts) != 2 || parts[0] == "" || parts[1] == "" {
		return "", "", fmt.Errorf("repository must be in owner/name form (got %q)", repository)
	}
	return parts[0], parts[1], nil
}
