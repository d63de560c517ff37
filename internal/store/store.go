// Package store persists the listing cache, the geocode cache and the
// submission log.
package store

import (
	"context"
	"errors"
	"time"

	"github.com/sells-group/commute-rent/internal/model"
)

// ErrNotFound is returned when a requested record does not exist.
var ErrNotFound = errors.New("not found")

// SubmissionFilter specifies criteria for listing submissions.
type SubmissionFilter struct {
	Policy model.Policy `json:"policy,omitempty"`
	Limit  int          `json:"limit,omitempty"`
	Offset int          `json:"offset,omitempty"`
}

// ListingSet is the last generated listing set with its batch metadata.
type ListingSet struct {
	BatchID     string          `json:"batch_id"`
	GeneratedAt time.Time       `json:"generated_at"`
	Listings    []model.Listing `json:"listings"`
}

// Store defines the persistence interface for the estimator.
type Store interface {
	// Listing cache. SaveListings replaces the previous set.
	SaveListings(ctx context.Context, listings []model.Listing) (*ListingSet, error)
	// LatestListings returns nil, nil when no set has been saved.
	LatestListings(ctx context.Context) (*ListingSet, error)

	// Geocode cache. Get returns nil, nil on a miss or an expired entry.
	GetCachedGeocode(ctx context.Context, key string) ([]byte, error)
	SetCachedGeocode(ctx context.Context, key string, data []byte, ttl time.Duration) error
	DeleteExpiredGeocodes(ctx context.Context) (int, error)

	// Submissions
	RecordSubmission(ctx context.Context, sub model.Submission) error
	GetSubmission(ctx context.Context, id string) (*model.Submission, error)
	ListSubmissions(ctx context.Context, filter SubmissionFilter) ([]model.Submission, error)

	// Lifecycle
	Migrate(ctx context.Context) error
	Close() error
}

const defaultListLimit = 100

func listLimit(f SubmissionFilter) int {
	if f.Limit <= 0 {
		return defaultListLimit
	}
	return f.Limit
}
