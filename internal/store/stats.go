// Package store encapsulates MongoDB client management and collection helpers.
package store

import (
	"context"
	"errors"
	"fmt"

	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo/options"

	"tg_community_bot/internal/domain"
)

type countCollection interface {
	CountDocuments(ctx context.Context, filter interface{}, opts ...*options.CountOptions) (int64, error)
}

// StatsProvider exposes active-user counts for the admin panel and the
// scheduled export without leaking MongoDB internals to callers. Inactive
// users are logically deleted and never counted.
type StatsProvider struct {
	users countCollection
}

// NewStatsProvider constructs a StatsProvider backed by the users collection.
func NewStatsProvider(users countCollection) *StatsProvider {
	return &StatsProvider{users: users}
}

// CountActive returns the number of active users.
func (p *StatsProvider) CountActive(ctx context.Context) (int64, error) {
	if ctx == nil {
		return 0, errors.New("context is required")
	}
	if p == nil || p.users == nil {
		return 0, errors.New("stats provider is not initialized")
	}

	count, err := p.users.CountDocuments(ctx, bson.M{"is_active": true})
	if err != nil {
		return 0, fmt.Errorf("count active users: %w", err)
	}

	return count, nil
}

// CountActiveByCategory returns active-user counts keyed by category code.
// Every known code appears in the result, with 0 for empty buckets.
func (p *StatsProvider) CountActiveByCategory(ctx context.Context) (map[int]int64, error) {
	if ctx == nil {
		return nil, errors.New("context is required")
	}
	if p == nil || p.users == nil {
		return nil, errors.New("stats provider is not initialized")
	}

	counts := make(map[int]int64, len(domain.KnownCategories))
	for _, category := range domain.KnownCategories {
		count, err := p.users.CountDocuments(ctx, bson.M{
			"is_active": true,
			"category":  category,
		})
		if err != nil {
			return nil, fmt.Errorf("count category %d: %w", category, err)
		}
		counts[category] = count
	}

	return counts, nil
}
