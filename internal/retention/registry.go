package retention

import (
	"context"
	"errors"
	"fmt"
	"sort"
	"sync"

	"github.com/karloscodes/cartridge"
)

var ErrUnregisteredType = errors.New("entity type has no resolver")

// Registry resolves live ids through lookups registered per entity type.
// Types without a lookup fail with ErrUnregisteredType, so PurgeOrphaned
// treats them as gone.
type Registry struct {
	mu      sync.RWMutex
	lookups map[string]EntityResolverFunc
}

func NewRegistry() *Registry {
	return &Registry{lookups: make(map[string]EntityResolverFunc)}
}

// Register sets the lookup of entityType, replacing any previous one.
func (r *Registry) Register(entityType string, lookup EntityResolverFunc) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.lookups[entityType] = lookup
}

// RegisterTable resolves entityType to the values of column in table.
func (r *Registry) RegisterTable(entityType string, dbManager cartridge.DBManager, table, column string) {
	r.Register(entityType, func(ctx context.Context, _ string) ([]string, error) {
		var ids []string
		if err := dbManager.GetConnection().WithContext(ctx).
			Table(table).
			Pluck(column, &ids).Error; err != nil {
			return nil, fmt.Errorf("retention: read ids of %s from %s.%s: %w", entityType, table, column, err)
		}
		return ids, nil
	})
}

// Types lists the registered entity types in order.
func (r *Registry) Types() []string {
	r.mu.RLock()
	defer r.mu.RUnlock()
	types := make([]string, 0, len(r.lookups))
	for t := range r.lookups {
		types = append(types, t)
	}
	sort.Strings(types)
	return types
}

func (r *Registry) LiveIDs(ctx context.Context, entityType string) ([]string, error) {
	r.mu.RLock()
	lookup, ok := r.lookups[entityType]
	r.mu.RUnlock()
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredType, entityType)
	}
	return lookup(ctx, entityType)
}

// StaticResolver answers from a fixed map of live ids.
type StaticResolver map[string][]string

func (s StaticResolver) LiveIDs(_ context.Context, entityType string) ([]string, error) {
	ids, ok := s[entityType]
	if !ok {
		return nil, fmt.Errorf("%w: %s", ErrUnregisteredType, entityType)
	}
	return ids, nil
}

// FirstOf asks each resolver in turn and returns the first answer that is
// not ErrUnregisteredType.
func FirstOf(resolvers ...EntityResolver) EntityResolver {
	return EntityResolverFunc(func(ctx context.Context, entityType string) ([]string, error) {
		err := fmt.Errorf("%w: %s", ErrUnregisteredType, entityType)
		for _, r := range resolvers {
			if r == nil {
				continue
			}
			var ids []string
			ids, err = r.LiveIDs(ctx, entityType)
			if !errors.Is(err, ErrUnregisteredType) {
				return ids, err
			}
		}
		return nil, err
	})
}
