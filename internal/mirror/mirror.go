// Package mirror runs one synchronisation of a remote package repository
// into a local directory.
package mirror

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"path/filepath"
	"sync"
	"time"

	"github.com/gofrs/flock"
	"github.com/ralt/debmirror/internal/archive"
	"github.com/ralt/debmirror/internal/fetch"
	"github.com/ralt/debmirror/internal/index"
	"github.com/ralt/debmirror/internal/keyring"
	"github.com/ralt/debmirror/internal/models"
	"github.com/ralt/debmirror/internal/planner"
	"github.com/ralt/debmirror/internal/release"
	"github.com/ralt/debmirror/internal/scanner"
	"github.com/ralt/debmirror/internal/utils"
	"github.com/ralt/debmirror/internal/verify"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// LockFileName is created in the output directory for the duration of a run
const LockFileName = ".debmirror.lock"

// Failure records a package that could not be mirrored
type Failure struct {
	Filename string
	Err      error
}

// Result summarises a mirror run
type Result struct {
	RunID     string
	RunDir    string
	IndexPath string

	Records    int // stanzas in the index
	Ignored    int // stanzas with nothing to do
	Skipped    int
	Downloaded int
	Pending    int // downloads not performed because of dry-run
	Pruned     int
	Bytes      int64

	Failures []Failure
}

// Failed returns the number of packages that could not be mirrored
func (r *Result) Failed() int {
	return len(r.Failures)
}

// Option configures a Mirror
type Option func(*Mirror)

// WithFetcher replaces the default HTTP fetcher
func WithFetcher(f fetch.Fetcher) Option {
	return func(m *Mirror) {
		m.fetcher = f
	}
}

// WithClock replaces time.Now for run directory names
func WithClock(now func() time.Time) Option {
	return func(m *Mirror) {
		m.now = now
	}
}

// Mirror synchronises a remote repository into config.OutputDir
type Mirror struct {
	config   *models.MirrorConfig
	fetcher  fetch.Fetcher
	planner  *planner.Planner
	verifier *keyring.Verifier
	scanner  scanner.Scanner
	location *time.Location
	now      func() time.Time

	mu sync.Mutex
}

// New creates a Mirror for a validated configuration
func New(config *models.MirrorConfig, opts ...Option) (*Mirror, error) {
	m := &Mirror{
		config: config,
		planner: &planner.Planner{
			Policy:       verify.Lenient,
			AlwaysVerify: config.AlwaysVerify,
		},
		scanner:  scanner.NewFileSystemScanner(),
		location: time.UTC,
		now:      time.Now,
	}
	if config.Strict {
		m.planner.Policy = verify.Strict
	}

	if config.Timezone != "" {
		loc, err := time.LoadLocation(config.Timezone)
		if err != nil {
			return nil, &models.MirrorError{Type: models.ErrInvalidConfig, Err: fmt.Errorf("invalid timezone: %w", err)}
		}
		m.location = loc
	}

	if config.KeyringPath != "" {
		v, err := keyring.NewVerifier(config.KeyringPath)
		if err != nil {
			return nil, &models.MirrorError{Type: models.ErrInvalidConfig, Err: err}
		}
		m.verifier = v
	}

	for _, opt := range opts {
		opt(m)
	}
	if m.fetcher == nil {
		m.fetcher = fetch.NewHTTPFetcher(nil, config.UserAgent)
	}

	return m, nil
}

// Run performs one mirror run. A failure to obtain, verify or parse the
// index aborts the run; failures of individual packages are collected in
// the result and do not stop the remaining packages.
func (m *Mirror) Run(ctx context.Context) (*Result, error) {
	cfg := m.config

	if err := utils.EnsureDir(cfg.OutputDir); err != nil {
		return nil, &models.MirrorError{Type: models.ErrIOFailure, Package: cfg.OutputDir, Err: err}
	}

	unlock, err := m.lock()
	if err != nil {
		return nil, err
	}
	defer unlock()

	result := &Result{RunID: utils.RunID(m.now(), m.location)}
	result.RunDir = filepath.Join(cfg.OutputDir, result.RunID)
	if err := utils.EnsureDir(result.RunDir); err != nil {
		return nil, &models.MirrorError{Type: models.ErrIOFailure, Package: result.RunDir, Err: err}
	}
	logrus.Infof("Run directory: %s", result.RunDir)

	doc, err := m.fetchIndex(ctx, result)
	if err != nil {
		return nil, err
	}
	result.Records = len(doc)
	logrus.Infof("Processed index, total package count: %d", len(doc))

	items := m.buildItems(doc, result)

	planned, err := m.planner.PlanAll(ctx, items, cfg.Jobs)
	if err != nil {
		return nil, err
	}

	var toFetch []planner.Result
	for _, res := range planned {
		switch res.Decision {
		case planner.None:
			result.Ignored++
		case planner.Skip:
			result.Skipped++
			logrus.Debugf("Skipping (existed): %s", res.LocalPath)
		case planner.Fetch:
			toFetch = append(toFetch, res)
		}
	}

	if err := m.fetchAll(ctx, toFetch, result); err != nil {
		return nil, err
	}

	if cfg.Prune {
		if err := m.prune(ctx, items, result); err != nil {
			return nil, err
		}
	}

	logrus.Infof("Done! skipped: %d, downloaded: %d, failed: %d, ignored: %d",
		result.Skipped, result.Downloaded, result.Failed(), result.Ignored)

	return result, nil
}

func (m *Mirror) lock() (func(), error) {
	lockPath := filepath.Join(m.config.OutputDir, LockFileName)
	l := flock.New(lockPath)

	locked, err := l.TryLock()
	if err != nil {
		return nil, &models.MirrorError{Type: models.ErrLock, Err: fmt.Errorf("cannot acquire lock: %w", err)}
	}
	if !locked {
		return nil, &models.MirrorError{Type: models.ErrLock, Err: fmt.Errorf("another run is in progress (lock: %s)", lockPath)}
	}
	return func() { _ = l.Unlock() }, nil
}

// fetchIndex downloads, verifies, decompresses and parses the index
func (m *Mirror) fetchIndex(ctx context.Context, result *Result) (index.Document, error) {
	cfg := m.config

	compressed := filepath.Join(result.RunDir, path.Base(cfg.IndexName))
	if _, err := m.fetcher.Fetch(ctx, utils.RemoteURL(cfg.BaseURL, cfg.IndexName), compressed); err != nil {
		return nil, err
	}
	logrus.Infof("Downloaded: %s", compressed)

	if m.verifier != nil {
		rel, err := release.Fetch(ctx, m.fetcher, m.verifier, cfg.BaseURL, cfg.Release, result.RunDir)
		if err != nil {
			return nil, err
		}
		if err := rel.VerifyFile(cfg.IndexName, compressed); err != nil {
			return nil, err
		}
		logrus.Infof("Verified %s against %s", cfg.IndexName, cfg.Release)
	}

	result.IndexPath = filepath.Join(result.RunDir, archive.DetectCompression(compressed).TrimExtension(path.Base(cfg.IndexName)))
	if result.IndexPath != compressed {
		if _, err := archive.DecompressFile(compressed, result.IndexPath); err != nil {
			return nil, err
		}
		logrus.Infof("Decompressed: %s", result.IndexPath)
	}

	return index.ParseFile(result.IndexPath)
}

// buildItems keeps one record per Filename and maps it to a local path
func (m *Mirror) buildItems(doc index.Document, result *Result) []planner.Item {
	records := index.Dedupe(doc)
	result.Ignored += len(doc) - len(records)

	items := make([]planner.Item, 0, len(records))
	for _, rec := range records {
		localPath, err := utils.LocalPath(m.config.OutputDir, rec.Filename())
		if err != nil {
			logrus.Warnf("Ignoring %s: %v", rec.Name(), err)
			result.Ignored++
			continue
		}
		items = append(items, planner.Item{Record: rec, LocalPath: localPath})
	}
	return items
}

// fetchAll downloads every planned package with at most Jobs transfers in
// flight. Per-package failures are recorded and do not stop other packages.
func (m *Mirror) fetchAll(ctx context.Context, planned []planner.Result, result *Result) error {
	if m.config.DryRun {
		for _, res := range planned {
			logrus.Infof("Would download: %s", utils.RemoteURL(m.config.BaseURL, res.Record.Filename()))
		}
		result.Pending = len(planned)
		return nil
	}

	jobs := m.config.Jobs
	if jobs <= 0 {
		jobs = 1
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for _, res := range planned {
		res := res
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			n, err := m.fetchOne(gctx, res)
			if err != nil {
				if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
					return err
				}
				logrus.Warnf("Failed to mirror %s: %v", res.Record.Filename(), err)
				m.mu.Lock()
				result.Failures = append(result.Failures, Failure{Filename: res.Record.Filename(), Err: err})
				m.mu.Unlock()
				return nil
			}

			m.mu.Lock()
			result.Downloaded++
			result.Bytes += n
			m.mu.Unlock()
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return fmt.Errorf("downloads interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return fmt.Errorf("downloads interrupted: %w", err)
	}
	return nil
}

// fetchOne downloads one package and checks the new file against the index
func (m *Mirror) fetchOne(ctx context.Context, res planner.Result) (int64, error) {
	url := utils.RemoteURL(m.config.BaseURL, res.Record.Filename())

	n, err := m.fetcher.Fetch(ctx, url, res.LocalPath)
	if err != nil {
		return 0, err
	}

	if err := m.checkDownload(res.Record, res.LocalPath, n); err != nil {
		return n, err
	}

	logrus.Infof("Downloaded: %s", url)
	return n, nil
}

// checkDownload hashes a freshly downloaded file. The size must match and
// the declared digests must satisfy the planner's policy. A record that
// declares no digest is checked on size alone.
func (m *Mirror) checkDownload(record models.PackageRecord, localPath string, n int64) error {
	if size, ok := record.Size(); ok && size != n {
		return &models.MirrorError{
			Type:    models.ErrFetch,
			Package: record.Filename(),
			Err:     fmt.Errorf("downloaded %d bytes, index declares %d", n, size),
		}
	}

	expected := record.Expected()
	if expected == (models.ExpectedDigests{}) {
		return nil
	}

	matched, err := verify.CheckFileSum(localPath, expected, m.planner.Policy)
	if err != nil {
		return err
	}
	if !matched {
		return &models.MirrorError{
			Type:    models.ErrFetch,
			Package: record.Filename(),
			Err:     fmt.Errorf("downloaded file does not match the index checksums"),
		}
	}
	return nil
}

// prune removes local package files that the index no longer references
func (m *Mirror) prune(ctx context.Context, items []planner.Item, result *Result) error {
	keep := make(map[string]bool, len(items))
	for _, item := range items {
		keep[filepath.Clean(item.LocalPath)] = true
	}

	scanned, err := m.scanner.Scan(ctx, m.config.OutputDir)
	if err != nil {
		return &models.MirrorError{Type: models.ErrIOFailure, Package: m.config.OutputDir, Err: err}
	}

	for _, orphan := range scanner.Orphans(scanned, keep) {
		if m.config.DryRun {
			logrus.Infof("Would remove: %s", orphan.Path)
			continue
		}
		if err := os.Remove(orphan.Path); err != nil {
			logrus.Warnf("Failed to remove %s: %v", orphan.Path, err)
			continue
		}
		logrus.Infof("Removed (%s): %s", orphan.Type, orphan.Path)
		result.Pruned++
	}
	return nil
}
