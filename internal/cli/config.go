package cli

import (
	"fmt"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/ralt/debmirror/internal/models"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"
)

const (
	defaultIndexName = "Packages.bz2"
	defaultRelease   = "InRelease"
	defaultJobs      = 4
)

// loadConfigFile reads a YAML mirror configuration
func loadConfigFile(path string) (*models.MirrorConfig, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, &models.MirrorError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("cannot read config %s: %w", path, err),
		}
	}

	var cfg models.MirrorConfig
	if err := yaml.Unmarshal(data, &cfg); err != nil {
		return nil, &models.MirrorError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("invalid YAML in %s: %w", path, err),
		}
	}
	return &cfg, nil
}

// mergeFlags copies into cfg the values of flags set on the command line
func mergeFlags(cmd *cobra.Command, cfg, flags *models.MirrorConfig) {
	changed := cmd.Flags().Changed

	if changed("base-url") {
		cfg.BaseURL = flags.BaseURL
	}
	if changed("output-dir") {
		cfg.OutputDir = flags.OutputDir
	}
	if changed("index") {
		cfg.IndexName = flags.IndexName
	}
	if changed("release") {
		cfg.Release = flags.Release
	}
	if changed("user-agent") {
		cfg.UserAgent = flags.UserAgent
	}
	if changed("timezone") {
		cfg.Timezone = flags.Timezone
	}
	if changed("strict") {
		cfg.Strict = flags.Strict
	}
	if changed("always-verify") {
		cfg.AlwaysVerify = flags.AlwaysVerify
	}
	if changed("keyring") {
		cfg.KeyringPath = flags.KeyringPath
	}
	if changed("jobs") {
		cfg.Jobs = flags.Jobs
	}
	if changed("dry-run") {
		cfg.DryRun = flags.DryRun
	}
	if changed("prune") {
		cfg.Prune = flags.Prune
	}
}

func validateConfig(config *models.MirrorConfig) error {
	if config.BaseURL == "" {
		return &models.MirrorError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("base-url is required"),
		}
	}

	u, err := url.Parse(config.BaseURL)
	if err != nil || (u.Scheme != "http" && u.Scheme != "https") || u.Host == "" {
		return &models.MirrorError{
			Type: models.ErrInvalidConfig,
			Err:  fmt.Errorf("base-url must be an http(s) URL: %q", config.BaseURL),
		}
	}
	if !strings.HasSuffix(config.BaseURL, "/") {
		config.BaseURL += "/"
	}

	// Mirror into ./<host> unless told otherwise
	if config.OutputDir == "" {
		config.OutputDir = filepath.Join(".", u.Host)
	}

	if config.IndexName == "" {
		config.IndexName = defaultIndexName
	}
	if config.Release == "" {
		config.Release = defaultRelease
	}
	if config.Jobs <= 0 {
		config.Jobs = defaultJobs
	}

	return nil
}
