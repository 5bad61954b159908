// Package planner decides, for each index record, whether the local copy of
// its artifact can be kept or has to be downloaded again.
package planner

import (
	"context"
	"fmt"

	"github.com/ralt/debmirror/internal/models"
	"github.com/ralt/debmirror/internal/utils"
	"github.com/ralt/debmirror/internal/verify"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"
)

// Decision is the outcome of planning one record
type Decision int

const (
	// None means the record lacks Filename or Size and cannot be planned
	None Decision = iota
	// Skip means the local file is acceptable
	Skip
	// Fetch means the local file is missing or invalid
	Fetch
)

// String returns the string representation of Decision
func (d Decision) String() string {
	switch d {
	case None:
		return "none"
	case Skip:
		return "skip"
	case Fetch:
		return "fetch"
	default:
		return "unknown"
	}
}

// Planner evaluates records against the local filesystem
type Planner struct {
	// Policy is used for the digest check. The zero value is verify.Lenient.
	Policy verify.Policy

	// AlwaysVerify disables the size-only shortcut so that every local
	// file is hashed.
	AlwaysVerify bool
}

// Plan decides what to do with record given its local copy at localPath.
//
// A matching size is accepted without hashing unless AlwaysVerify is set.
// Otherwise the declared digests are checked; a file that matches is kept
// even when its size differs from the declared one.
func (p *Planner) Plan(record models.PackageRecord, localPath string) (Decision, error) {
	size, ok := record.Size()
	if record.Filename() == "" || !ok {
		return None, nil
	}

	localSize, err := utils.FileSize(localPath)
	if err != nil {
		return Fetch, &models.MirrorError{Type: models.ErrIOFailure, Package: localPath, Err: err}
	}

	if !p.AlwaysVerify && localSize == size {
		return Skip, nil
	}

	matched, err := verify.CheckFileSum(localPath, record.Expected(), p.Policy)
	if err != nil {
		return Fetch, err
	}
	if matched {
		return Skip, nil
	}
	return Fetch, nil
}

// Item is one record to plan together with its local path
type Item struct {
	Record    models.PackageRecord
	LocalPath string
}

// Result is the planning outcome of one Item. Err is set when the local
// file could not be read; the decision is then Fetch.
type Result struct {
	Item
	Decision Decision
	Err      error
}

// PlanAll plans items concurrently with at most jobs evaluations in flight.
// Results are returned in the order of items. Per-item read failures are
// reported in the results; only context cancellation aborts the call.
func (p *Planner) PlanAll(ctx context.Context, items []Item, jobs int) ([]Result, error) {
	if jobs <= 0 {
		jobs = 1
	}

	results := make([]Result, len(items))
	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(jobs)

	for i := range items {
		i := i
		if gctx.Err() != nil {
			break
		}
		g.Go(func() error {
			if err := gctx.Err(); err != nil {
				return err
			}
			decision, err := p.Plan(items[i].Record, items[i].LocalPath)
			if err != nil {
				logrus.Warnf("Cannot verify %s, scheduling download: %v", items[i].LocalPath, err)
			}
			logrus.Debugf("Planned %s: %s", items[i].LocalPath, decision)
			results[i] = Result{Item: items[i], Decision: decision, Err: err}
			return nil
		})
	}

	if err := g.Wait(); err != nil {
		return nil, fmt.Errorf("planning interrupted: %w", err)
	}
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("planning interrupted: %w", err)
	}
	return results, nil
}
