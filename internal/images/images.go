// Package images verifies candidate image URLs with bounded concurrency
// before their metadata is written to animal_images. Verification means the
// URL answers 2xx with an image content type; the bytes are never stored.
package images

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"
	"time"

	"golang.org/x/sync/semaphore"

	"github.com/rescueradar/rescueradar/internal/fetch"
	"github.com/rescueradar/rescueradar/internal/types"
)

// Fetcher is the slice of the fetch client the checker needs.
type Fetcher interface {
	Head(ctx context.Context, url string) (*fetch.Response, error)
	Get(ctx context.Context, url string) (*fetch.Response, error)
}

// Candidate is one image URL to verify for one animal.
type Candidate struct {
	ExternalID string
	URL        string
	Position   int
}

// Checker verifies image URLs under a worker bound.
type Checker struct {
	fetcher Fetcher
	workers int64
	logger  *slog.Logger
	now     func() time.Time
}

// New creates a Checker. workers below 1 defaults to 5.
func New(fetcher Fetcher, workers int, logger *slog.Logger) *Checker {
	if workers < 1 {
		workers = 5
	}
	return &Checker{
		fetcher: fetcher,
		workers: int64(workers),
		logger:  logger.With("component", "images"),
		now:     time.Now,
	}
}

// Verify checks every candidate and returns one row per candidate, verified
// or failed, in input order. A cancelled context stops admitting work but the
// in-flight checks still report.
func (c *Checker) Verify(ctx context.Context, orgID int64, candidates []Candidate) []*types.AnimalImage {
	results := make([]*types.AnimalImage, len(candidates))
	sem := semaphore.NewWeighted(c.workers)
	var wg sync.WaitGroup

	for i, cand := range candidates {
		if err := sem.Acquire(ctx, 1); err != nil {
			results[i] = c.failed(orgID, cand)
			continue
		}
		wg.Add(1)
		go func(i int, cand Candidate) {
			defer wg.Done()
			defer sem.Release(1)
			results[i] = c.check(ctx, orgID, cand)
		}(i, cand)
	}
	wg.Wait()

	verified := 0
	for _, r := range results {
		if r.Verified {
			verified++
		}
	}
	c.logger.Debug("image verification finished",
		"candidates", len(candidates), "verified", verified)
	return results
}

func (c *Checker) check(ctx context.Context, orgID int64, cand Candidate) *types.AnimalImage {
	resp, err := c.fetcher.Head(ctx, cand.URL)
	if err != nil || !headUsable(resp) {
		// Plenty of CDNs answer HEAD with 403 or an empty content type; one
		// bounded GET settles it.
		resp, err = c.fetcher.Get(ctx, cand.URL)
	}
	if err != nil || !resp.IsSuccess() {
		return c.failed(orgID, cand)
	}

	contentType := strings.ToLower(strings.TrimSpace(resp.Header.Get("Content-Type")))
	if i := strings.IndexByte(contentType, ';'); i >= 0 {
		contentType = strings.TrimSpace(contentType[:i])
	}
	if !strings.HasPrefix(contentType, "image/") {
		return c.failed(orgID, cand)
	}

	size := int64(len(resp.Body))
	if size == 0 {
		if n, err := strconv.ParseInt(resp.Header.Get("Content-Length"), 10, 64); err == nil {
			size = n
		}
	}

	now := c.now()
	return &types.AnimalImage{
		OrganizationID: orgID,
		ExternalID:     cand.ExternalID,
		ImageURL:       cand.URL,
		Position:       cand.Position,
		ContentType:    contentType,
		Bytes:          size,
		Verified:       true,
		CheckedAt:      &now,
	}
}

func headUsable(resp *fetch.Response) bool {
	return resp != nil && resp.IsSuccess() && resp.Header.Get("Content-Type") != ""
}

func (c *Checker) failed(orgID int64, cand Candidate) *types.AnimalImage {
	now := c.now()
	return &types.AnimalImage{
		OrganizationID: orgID,
		ExternalID:     cand.ExternalID,
		ImageURL:       cand.URL,
		Position:       cand.Position,
		Verified:       false,
		CheckedAt:      &now,
	}
}
