package models

// MirrorConfig contains configuration for a mirror run
type MirrorConfig struct {
	// Remote repository
	BaseURL   string `yaml:"base_url"`
	IndexName string `yaml:"index"`   // Index file relative to BaseURL, e.g. Packages.bz2
	Release   string `yaml:"release"` // Release file to verify the index against (InRelease or Release)
	UserAgent string `yaml:"user_agent,omitempty"`

	// Local layout
	OutputDir string `yaml:"output_dir"`
	Timezone  string `yaml:"timezone,omitempty"` // Location used for run directory names

	// Verification
	Strict       bool   `yaml:"strict"`        // Require all three digests to match
	AlwaysVerify bool   `yaml:"always_verify"` // Hash local files even when the size matches
	KeyringPath  string `yaml:"keyring,omitempty"`

	// Execution
	Jobs   int  `yaml:"jobs"`
	DryRun bool `yaml:"dry_run"`
	Prune  bool `yaml:"prune"` // Remove local .deb files no longer in the index
}
