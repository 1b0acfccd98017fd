package vcs

import (
	"context"
	"fmt"
	"log/slog"

	"github.com/artpar/releaser/internal/core/release"
	"github.com/artpar/releaser/internal/core/version"
)

// DefaultTagPattern selects tags that look like versions.
const DefaultTagPattern = "*.*.*"

// TagLister lists tags. The result is never cached; every call asks the VCS.
type TagLister interface {
	ListTags(ctx context.Context, pattern string) ([]string, error)
}

// Publisher creates and pushes tags.
type Publisher interface {
	CreateTag(ctx context.Context, tag, message string) error
	PushTags(ctx context.Context) error
}

// Repository is a VCS that can both list and publish tags.
type Repository interface {
	TagLister
	Publisher
}

// Resolver turns a version request into a tag, publishing new tags.
type Resolver struct {
	repo    Repository
	pattern string
	logger  *slog.Logger
}

// NewResolver creates a resolver. An empty pattern uses DefaultTagPattern.
func NewResolver(repo Repository, pattern string, logger *slog.Logger) *Resolver {
	if pattern == "" {
		pattern = DefaultTagPattern
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{
		repo:    repo,
		pattern: pattern,
		logger:  logger.With("component", "resolver"),
	}
}

// Preview resolves request against the current tags without publishing.
func (r *Resolver) Preview(ctx context.Context, request string) (version.Resolution, error) {
	tags, err := r.repo.ListTags(ctx, r.pattern)
	if err != nil {
		return version.Resolution{}, fmt.Errorf("list tags: %w", err)
	}
	return version.Resolve(tags, request)
}

// Resolve resolves request and, when the result is a new tag, creates it
// with message and pushes tags. A failure in either step is
// release.ErrPublishFailure.
func (r *Resolver) Resolve(ctx context.Context, request, message string) (version.Resolution, error) {
	res, err := r.Preview(ctx, request)
	if err != nil {
		return version.Resolution{}, err
	}

	if !res.Created {
		r.logger.Info("using existing tag", "tag", res.Tag)
		return res, nil
	}

	r.logger.Info("publishing tag",
		"tag", res.Tag,
		"baseline", res.Baseline,
		"request", request,
	)
	if err := r.repo.CreateTag(ctx, res.Tag, message); err != nil {
		return version.Resolution{}, release.NewStepError("", "create tag", release.ErrPublishFailure, err)
	}
	if err := r.repo.PushTags(ctx); err != nil {
		return version.Resolution{}, release.NewStepError("", "push tags", release.ErrPublishFailure, err)
	}
	return res, nil
}

// Tags returns the tags in descending natural order.
func (r *Resolver) Tags(ctx context.Context) ([]string, error) {
	tags, err := r.repo.ListTags(ctx, r.pattern)
	if err != nil {
		return nil, fmt.Errorf("list tags: %w", err)
	}
	return version.SortTags(tags, true), nil
}
