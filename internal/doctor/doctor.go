// Package doctor validates pipebot configuration beyond the fail-fast checks
// done at load time, collecting every error and warning in one pass.
package doctor

import (
	"encoding/json"
	"errors"
	"fmt"
	"io/fs"
	"net"
	"path/filepath"
	"sort"
	"strings"

	"github.com/scottdmilner/pipebot/internal/config"
	"github.com/scottdmilner/pipebot/internal/report"
	"github.com/scottdmilner/pipebot/internal/webhook"
)

// minSecretLength is the shortest webhook secret accepted without a warning.
const minSecretLength = 16

// Result holds the outcome of a validation run.
type Result struct {
	Valid    bool    `json:"valid"`
	Errors   []Issue `json:"errors,omitempty"`
	Warnings []Issue `json:"warnings,omitempty"`
}

// Issue describes a single validation error or warning.
type Issue struct {
	Category string `json:"category"`
	Message  string `json:"message"`
	Field    string `json:"field,omitempty"`
}

// Doctor validates a loaded configuration.
type Doctor struct {
	cfg *config.Config

	// path is the config file checked; empty for the built-in config.
	path string
}

// New creates a Doctor for cfg, loaded from path (empty for the built-in
// configuration).
func New(cfg *config.Config, path string) *Doctor {
	return &Doctor{cfg: cfg, path: path}
}

// LoadFailure reports a configuration that could not be loaded at all.
func LoadFailure(err error) *Result {
	r := &Result{}
	issue := Issue{Category: "config", Message: err.Error()}

	var cerr *config.ConfigurationError
	if errors.As(err, &cerr) {
		issue.Field = cerr.Field
		issue.Message = cerr.Message
		if cerr.Field == "environment" {
			issue.Category = "env_vars"
		}
	}
	r.Errors = append(r.Errors, issue)
	return r
}

// Validate runs all checks and returns a result.
func (d *Doctor) Validate() *Result {
	r := &Result{Valid: true}

	d.validateWebhooks(r)
	d.validateReportLabels(r)
	d.warnUnusedChannels(r)
	d.warnWeakSecrets(r)
	d.warnGlobalCommands(r)
	d.warnAssetNamespace(r)
	d.warnAdminExposure(r)
	d.warnUnlockedConfig(r)

	r.Valid = len(r.Errors) == 0
	return r
}

func (d *Doctor) addError(r *Result, category, field, msg string) {
	r.Errors = append(r.Errors, Issue{Category: category, Field: field, Message: msg})
}

func (d *Doctor) addWarning(r *Result, category, field, msg string) {
	r.Warnings = append(r.Warnings, Issue{Category: category, Field: field, Message: msg})
}

// validateWebhooks resolves endpoints exactly as serve would.
func (d *Doctor) validateWebhooks(r *Result) {
	if _, err := webhook.FromConfig(d.cfg); err != nil {
		d.addError(r, "webhooks", "webhooks.endpoints", err.Error())
	}

	seen := make(map[string]int)
	for i, ep := range d.cfg.Webhooks.Endpoints {
		normalized := strings.TrimSuffix(ep.Path, "/")
		if prev, exists := seen[normalized]; exists {
			d.addError(r, "webhooks", fmt.Sprintf("webhooks.endpoints[%d].path", i),
				fmt.Sprintf("webhook path %q conflicts with webhooks.endpoints[%d]", ep.Path, prev))
		}
		seen[normalized] = i
	}
}

// validateReportLabels checks label overrides refer to real option values.
func (d *Doctor) validateReportLabels(r *Result) {
	known := make(map[string]bool)
	for _, c := range report.Categories {
		known[c.Value] = true
	}
	for _, s := range report.Severities {
		known[s.Value] = true
	}

	for _, value := range sortedKeys(d.cfg.Report.Labels) {
		field := "report.labels." + value
		if !known[value] {
			d.addWarning(r, "report", field,
				fmt.Sprintf("%q is not a report category or severity; the override is never used", value))
		}
		if strings.TrimSpace(d.cfg.Report.Labels[value]) == "" {
			d.addError(r, "report", field, "label must not be empty")
		}
	}
}

// warnUnusedChannels warns about channels no endpoint delivers to.
func (d *Doctor) warnUnusedChannels(r *Result) {
	used := make(map[string]bool)
	for _, ep := range d.cfg.Webhooks.Endpoints {
		used[ep.Channel] = true
	}
	for _, name := range sortedKeys(d.cfg.Discord.Channels) {
		if !used[name] {
			d.addWarning(r, "unused", "discord.channels."+name,
				fmt.Sprintf("channel %q is not referenced by any webhook endpoint", name))
		}
	}
}

func (d *Doctor) warnWeakSecrets(r *Result) {
	for i, ep := range d.cfg.Webhooks.Endpoints {
		if ep.Secret != "" && len(ep.Secret) < minSecretLength {
			d.addWarning(r, "security", fmt.Sprintf("webhooks.endpoints[%d].secret", i),
				fmt.Sprintf("secret for %s is shorter than %d characters", ep.Path, minSecretLength))
		}
	}
}

func (d *Doctor) warnGlobalCommands(r *Result) {
	if d.cfg.Discord.GuildID == "" {
		d.addWarning(r, "discord", "discord.guild_id",
			"no guild_id set; /report is registered globally and may take up to an hour to appear")
	}
}

func (d *Doctor) warnAssetNamespace(r *Result) {
	if d.cfg.Assets.Backend != "github" {
		return
	}
	switch d.cfg.Assets.Namespace {
	case "main", "master":
		d.addWarning(r, "assets", "assets.namespace",
			fmt.Sprintf("attachments will be committed to the %q branch", d.cfg.Assets.Namespace))
	}
}

// warnAdminExposure flags an unauthenticated admin listener bound beyond
// loopback.
func (d *Doctor) warnAdminExposure(r *Result) {
	if !d.cfg.Admin.Enabled || d.cfg.Admin.Token != "" {
		return
	}
	host, _, err := net.SplitHostPort(d.cfg.Admin.Listen)
	if err != nil {
		d.addError(r, "admin", "admin.listen", fmt.Sprintf("invalid listen address: %v", err))
		return
	}
	if ip := net.ParseIP(host); host != "localhost" && (ip == nil || !ip.IsLoopback()) {
		d.addWarning(r, "admin", "admin.token",
			fmt.Sprintf("admin listener %s is not loopback and /metrics has no token", d.cfg.Admin.Listen))
	}
}

// warnUnlockedConfig warns when a config file has no integrity manifest.
func (d *Doctor) warnUnlockedConfig(r *Result) {
	if d.path == "" {
		return
	}
	manifest, err := config.LoadChecksums(filepath.Dir(d.path))
	if errors.Is(err, fs.ErrNotExist) {
		d.addWarning(r, "integrity", config.ChecksumFile,
			"configuration is not locked; run 'pipebot config lock' to record its hash")
		return
	}
	if err != nil {
		d.addError(r, "integrity", config.ChecksumFile, err.Error())
		return
	}
	if _, ok := manifest.Hashes[filepath.Base(d.path)]; !ok {
		d.addWarning(r, "integrity", config.ChecksumFile,
			fmt.Sprintf("%s is not listed in the integrity manifest", filepath.Base(d.path)))
	}
}

func sortedKeys(m map[string]string) []string {
	keys := make([]string, 0, len(m))
	for k := range m {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	return keys
}

// FormatHuman returns a human-readable validation report.
func FormatHuman(r *Result) string {
	var b strings.Builder

	if r.Valid && len(r.Warnings) == 0 {
		b.WriteString("Configuration valid.\n")
		return b.String()
	}

	if r.Valid {
		fmt.Fprintf(&b, "Configuration valid (%d warning(s))\n", len(r.Warnings))
	} else {
		fmt.Fprintf(&b, "Configuration invalid (%d error(s), %d warning(s))\n", len(r.Errors), len(r.Warnings))
	}

	for _, e := range r.Errors {
		b.WriteString("  ERROR " + FormatIssue(e) + "\n")
	}
	for _, w := range r.Warnings {
		b.WriteString("  WARN  " + FormatIssue(w) + "\n")
	}

	return b.String()
}

// FormatIssue renders one issue as "[category] field: message".
func FormatIssue(i Issue) string {
	if i.Field != "" {
		return fmt.Sprintf("[%s] %s: %s", i.Category, i.Field, i.Message)
	}
	return fmt.Sprintf("[%s] %s", i.Category, i.Message)
}

// FormatJSON returns the result as indented JSON.
func FormatJSON(r *Result) (string, error) {
	data, err := json.MarshalIndent(r, "", "  ")
	if err != nil {
		return "", err
	}
	return string(data), nil
}
