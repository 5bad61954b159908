package cli

import (
	"context"
	"fmt"

	"github.com/ralt/debmirror/internal/mirror"
	"github.com/ralt/debmirror/internal/models"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
)

// NewSyncCmd creates the sync command
func NewSyncCmd() *cobra.Command {
	var flags models.MirrorConfig
	var configPath string

	cmd := &cobra.Command{
		Use:   "sync",
		Short: "Synchronise the local mirror with the remote repository",
		Long: `Downloads the remote package index, then downloads every package
whose local copy is missing or does not match the size or checksums
declared by the index.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			config := &models.MirrorConfig{}
			if configPath != "" {
				loaded, err := loadConfigFile(configPath)
				if err != nil {
					return err
				}
				config = loaded
			}
			mergeFlags(cmd, config, &flags)

			// Validate configuration
			if err := validateConfig(config); err != nil {
				return err
			}

			logrus.Info("Starting mirror run...")
			logrus.Debugf("Configuration: %+v", *config)

			return runSync(cmd.Context(), config)
		},
	}

	cmd.Flags().StringVarP(&configPath, "config", "c", "", "Path to a YAML configuration file")

	// Remote repository flags
	cmd.Flags().StringVarP(&flags.BaseURL, "base-url", "u", "", "Base URL of the remote repository")
	cmd.Flags().StringVar(&flags.IndexName, "index", defaultIndexName, "Index file relative to the base URL")
	cmd.Flags().StringVar(&flags.Release, "release", defaultRelease, "Release file to verify the index with (InRelease or Release)")
	cmd.Flags().StringVar(&flags.UserAgent, "user-agent", "", "User-Agent header for HTTP requests")

	// Output flags
	cmd.Flags().StringVarP(&flags.OutputDir, "output-dir", "o", "", "Output directory (defaults to ./<host>)")
	cmd.Flags().StringVar(&flags.Timezone, "timezone", "", "Time zone used to name run directories (defaults to UTC)")

	// Verification flags
	cmd.Flags().BoolVar(&flags.Strict, "strict", false, "Require MD5, SHA1 and SHA256 to all match")
	cmd.Flags().BoolVar(&flags.AlwaysVerify, "always-verify", false, "Hash local files even when their size matches")
	cmd.Flags().StringVarP(&flags.KeyringPath, "keyring", "k", "", "OpenPGP keyring used to verify the Release file")

	// Execution flags
	cmd.Flags().IntVarP(&flags.Jobs, "jobs", "j", defaultJobs, "Number of packages verified and downloaded in parallel")
	cmd.Flags().BoolVar(&flags.DryRun, "dry-run", false, "Report what would be downloaded or removed without doing it")
	cmd.Flags().BoolVar(&flags.Prune, "prune", false, "Remove local packages no longer listed in the index")

	return cmd
}

func runSync(ctx context.Context, config *models.MirrorConfig) error {
	if ctx == nil {
		ctx = context.Background()
	}

	m, err := mirror.New(config)
	if err != nil {
		return err
	}

	result, err := m.Run(ctx)
	if err != nil {
		return err
	}

	logrus.Infof("Output directory: %s", config.OutputDir)
	if result.Pending > 0 {
		logrus.Infof("Dry run: %d packages would be downloaded", result.Pending)
	}

	if result.Failed() > 0 {
		for _, f := range result.Failures {
			logrus.Errorf("%s: %v", f.Filename, f.Err)
		}
		return &models.MirrorError{
			Type: models.ErrFetch,
			Err:  fmt.Errorf("%d of %d packages could not be mirrored", result.Failed(), result.Records),
		}
	}

	return nil
}
