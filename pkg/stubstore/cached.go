package stubstore

import (
	"context"
	"log/slog"
	"strconv"
	"strings"
	"sync"

	repository "github.com/goliatone/go-repository-bun"
	"github.com/uptrace/bun"

	"github.com/goliatone/go-todo-sync/cache"
)

// Interface assertion to ensure CachedRepository implements Repository[*Todo]
var _ repository.Repository[*Todo] = (*CachedRepository)(nil)

// Cache namespaces used by CachedRepository.
const (
	NamespaceList       = "stub_list"
	NamespaceCount      = "stub_count"
	NamespaceGet        = "stub_get"
	NamespaceID         = "stub_id"
	NamespaceIdentifier = "stub_ident"
)

// listResult wraps the tuple result from List operations for caching
type listResult struct {
	Records []*Todo `json:"records"`
	Total   int     `json:"total"`
}

// CachedRepository decorates a record repository with read caching. Reads
// by id or identifier are always cached; reads by criteria only when the
// context carries a read key, since criteria are functions. Writes pass
// through and drop the cached reads they affect. Transactional reads, Raw
// and Handlers go straight to the base.
type CachedRepository struct {
	repository.Repository[*Todo]

	cache         cache.CacheService
	keySerializer cache.KeySerializer
	keyRegistry   *sync.Map // Track active cache keys for invalidation
	logger        *slog.Logger
}

// NewCachedRepository wraps base with caching.
func NewCachedRepository(base repository.Repository[*Todo], cacheService cache.CacheService, keySerializer cache.KeySerializer, logger *slog.Logger) *CachedRepository {
	if keySerializer == nil {
		keySerializer = cache.NewDefaultKeySerializer()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &CachedRepository{
		Repository:    base,
		cache:         cacheService,
		keySerializer: keySerializer,
		keyRegistry:   &sync.Map{},
		logger:        logger.With("component", "stub_cache"),
	}
}

// Get retrieves a single record, cached under the context's read key.
func (c *CachedRepository) Get(ctx context.Context, criteria ...repository.SelectCriteria) (*Todo, error) {
	readKey, ok := readKeyFrom(ctx)
	if !ok {
		return c.Repository.Get(ctx, criteria...)
	}
	key := c.keySerializer.SerializeKey(NamespaceGet, readKey)
	c.trackKey(key)
	record, err := cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (*Todo, error) {
		return c.Repository.Get(ctx, criteria...)
	})
	return cloneTodo(record), err
}

// GetByID retrieves a record by ID, with caching
func (c *CachedRepository) GetByID(ctx context.Context, id string, criteria ...repository.SelectCriteria) (*Todo, error) {
	key, ok := c.addressKey(ctx, NamespaceID, id, len(criteria))
	if !ok {
		return c.Repository.GetByID(ctx, id, criteria...)
	}
	c.trackKey(key)
	record, err := cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (*Todo, error) {
		return c.Repository.GetByID(ctx, id, criteria...)
	})
	return cloneTodo(record), err
}

// GetByIdentifier retrieves a record by document id, with caching
func (c *CachedRepository) GetByIdentifier(ctx context.Context, identifier string, criteria ...repository.SelectCriteria) (*Todo, error) {
	key, ok := c.addressKey(ctx, NamespaceIdentifier, identifier, len(criteria))
	if !ok {
		return c.Repository.GetByIdentifier(ctx, identifier, criteria...)
	}
	c.trackKey(key)
	record, err := cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (*Todo, error) {
		return c.Repository.GetByIdentifier(ctx, identifier, criteria...)
	})
	return cloneTodo(record), err
}

// List retrieves one page, cached under the context's read key.
func (c *CachedRepository) List(ctx context.Context, criteria ...repository.SelectCriteria) ([]*Todo, int, error) {
	readKey, ok := readKeyFrom(ctx)
	if !ok {
		return c.Repository.List(ctx, criteria...)
	}
	key := c.keySerializer.SerializeKey(NamespaceList, readKey)
	c.trackKey(key)
	res, err := cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (listResult, error) {
		records, total, err := c.Repository.List(ctx, criteria...)
		return listResult{Records: records, Total: total}, err
	})
	if err != nil {
		return nil, 0, err
	}
	return cloneTodos(res.Records), res.Total, nil
}

// Count returns the number of matches, cached under the context's read key.
func (c *CachedRepository) Count(ctx context.Context, criteria ...repository.SelectCriteria) (int, error) {
	readKey, ok := readKeyFrom(ctx)
	if !ok {
		return c.Repository.Count(ctx, criteria...)
	}
	key := c.keySerializer.SerializeKey(NamespaceCount, readKey)
	c.trackKey(key)
	return cache.GetOrFetch(ctx, c.cache, key, func(ctx context.Context) (int, error) {
		return c.Repository.Count(ctx, criteria...)
	})
}

// Create creates a new record. New records shift every page, so all list
// results are dropped.
func (c *CachedRepository) Create(ctx context.Context, record *Todo, criteria ...repository.InsertCriteria) (*Todo, error) {
	result, err := c.Repository.Create(ctx, record, criteria...)
	if err == nil {
		c.invalidateQueries(ctx)
	}
	return result, err
}

// CreateTx creates a new record within a transaction
func (c *CachedRepository) CreateTx(ctx context.Context, tx bun.IDB, record *Todo, criteria ...repository.InsertCriteria) (*Todo, error) {
	result, err := c.Repository.CreateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateQueries(ctx)
	}
	return result, err
}

// CreateMany creates multiple records
func (c *CachedRepository) CreateMany(ctx context.Context, records []*Todo, criteria ...repository.InsertCriteria) ([]*Todo, error) {
	result, err := c.Repository.CreateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateQueries(ctx)
	}
	return result, err
}

// CreateManyTx creates multiple records within a transaction
func (c *CachedRepository) CreateManyTx(ctx context.Context, tx bun.IDB, records []*Todo, criteria ...repository.InsertCriteria) ([]*Todo, error) {
	result, err := c.Repository.CreateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateQueries(ctx)
	}
	return result, err
}

// GetOrCreate may insert, so it invalidates like Create.
func (c *CachedRepository) GetOrCreate(ctx context.Context, record *Todo) (*Todo, error) {
	result, err := c.Repository.GetOrCreate(ctx, record)
	if err == nil {
		c.invalidateQueries(ctx)
	}
	return result, err
}

func (c *CachedRepository) GetOrCreateTx(ctx context.Context, tx bun.IDB, record *Todo) (*Todo, error) {
	result, err := c.Repository.GetOrCreateTx(ctx, tx, record)
	if err == nil {
		c.invalidateQueries(ctx)
	}
	return result, err
}

// Update updates a record
func (c *CachedRepository) Update(ctx context.Context, record *Todo, criteria ...repository.UpdateCriteria) (*Todo, error) {
	result, err := c.Repository.Update(ctx, record, criteria...)
	if err == nil {
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

// UpdateTx updates a record within a transaction
func (c *CachedRepository) UpdateTx(ctx context.Context, tx bun.IDB, record *Todo, criteria ...repository.UpdateCriteria) (*Todo, error) {
	result, err := c.Repository.UpdateTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

func (c *CachedRepository) UpdateMany(ctx context.Context, records []*Todo, criteria ...repository.UpdateCriteria) ([]*Todo, error) {
	result, err := c.Repository.UpdateMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return result, err
}

func (c *CachedRepository) UpdateManyTx(ctx context.Context, tx bun.IDB, records []*Todo, criteria ...repository.UpdateCriteria) ([]*Todo, error) {
	result, err := c.Repository.UpdateManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return result, err
}

// Upsert may insert or update, so it invalidates like Update.
func (c *CachedRepository) Upsert(ctx context.Context, record *Todo, criteria ...repository.UpdateCriteria) (*Todo, error) {
	result, err := c.Repository.Upsert(ctx, record, criteria...)
	if err == nil {
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

func (c *CachedRepository) UpsertTx(ctx context.Context, tx bun.IDB, record *Todo, criteria ...repository.UpdateCriteria) (*Todo, error) {
	result, err := c.Repository.UpsertTx(ctx, tx, record, criteria...)
	if err == nil {
		c.invalidateRecord(ctx, result)
	}
	return result, err
}

func (c *CachedRepository) UpsertMany(ctx context.Context, records []*Todo, criteria ...repository.UpdateCriteria) ([]*Todo, error) {
	result, err := c.Repository.UpsertMany(ctx, records, criteria...)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return result, err
}

func (c *CachedRepository) UpsertManyTx(ctx context.Context, tx bun.IDB, records []*Todo, criteria ...repository.UpdateCriteria) ([]*Todo, error) {
	result, err := c.Repository.UpsertManyTx(ctx, tx, records, criteria...)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return result, err
}

// Delete deletes a record
func (c *CachedRepository) Delete(ctx context.Context, record *Todo) error {
	err := c.Repository.Delete(ctx, record)
	if err == nil {
		c.invalidateRecord(ctx, record)
	}
	return err
}

// DeleteTx deletes a record within a transaction
func (c *CachedRepository) DeleteTx(ctx context.Context, tx bun.IDB, record *Todo) error {
	err := c.Repository.DeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateRecord(ctx, record)
	}
	return err
}

// DeleteMany cannot tell which records went away, so everything is dropped.
func (c *CachedRepository) DeleteMany(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.Repository.DeleteMany(ctx, criteria...)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return err
}

func (c *CachedRepository) DeleteManyTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.Repository.DeleteManyTx(ctx, tx, criteria...)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return err
}

func (c *CachedRepository) DeleteWhere(ctx context.Context, criteria ...repository.DeleteCriteria) error {
	err := c.Repository.DeleteWhere(ctx, criteria...)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return err
}

func (c *CachedRepository) DeleteWhereTx(ctx context.Context, tx bun.IDB, criteria ...repository.DeleteCriteria) error {
	err := c.Repository.DeleteWhereTx(ctx, tx, criteria...)
	if err == nil {
		c.invalidateAll(ctx)
	}
	return err
}

func (c *CachedRepository) ForceDelete(ctx context.Context, record *Todo) error {
	err := c.Repository.ForceDelete(ctx, record)
	if err == nil {
		c.invalidateRecord(ctx, record)
	}
	return err
}

func (c *CachedRepository) ForceDeleteTx(ctx context.Context, tx bun.IDB, record *Todo) error {
	err := c.Repository.ForceDeleteTx(ctx, tx, record)
	if err == nil {
		c.invalidateRecord(ctx, record)
	}
	return err
}

// TrackedKeys returns the number of cached reads currently registered.
func (c *CachedRepository) TrackedKeys() int {
	n := 0
	c.keyRegistry.Range(func(_, _ any) bool {
		n++
		return true
	})
	return n
}

// addressKey builds the key for a read by id or identifier. Extra criteria
// need a read key to be cacheable.
func (c *CachedRepository) addressKey(ctx context.Context, namespace, address string, criteria int) (string, bool) {
	if criteria == 0 {
		return c.keySerializer.SerializeKey(namespace, address), true
	}
	readKey, ok := readKeyFrom(ctx)
	if !ok {
		return "", false
	}
	return c.keySerializer.SerializeKey(namespace, address, readKey), true
}

// trackKey registers a cache key in the key registry for later invalidation
func (c *CachedRepository) trackKey(key string) {
	c.keyRegistry.Store(key, struct{}{})
}

// invalidateQueries drops every read that depends on the set of records.
func (c *CachedRepository) invalidateQueries(ctx context.Context) {
	c.invalidateByPrefix(ctx, cache.PrefixOf(NamespaceList))
	c.invalidateByPrefix(ctx, cache.PrefixOf(NamespaceCount))
	c.invalidateByPrefix(ctx, cache.PrefixOf(NamespaceGet))
}

// invalidateRecord drops both addressable forms of record plus every query.
func (c *CachedRepository) invalidateRecord(ctx context.Context, record *Todo) {
	if record == nil {
		c.invalidateAll(ctx)
		return
	}
	c.invalidateAddress(ctx, NamespaceID, strconv.FormatInt(record.ID, 10))
	if record.DocumentID != "" {
		c.invalidateAddress(ctx, NamespaceIdentifier, record.DocumentID)
	}
	c.invalidateQueries(ctx)
}

func (c *CachedRepository) invalidateAll(ctx context.Context) {
	c.invalidateByPrefix(ctx, cache.PrefixOf(NamespaceID))
	c.invalidateByPrefix(ctx, cache.PrefixOf(NamespaceIdentifier))
	c.invalidateQueries(ctx)
}

// invalidateAddress drops the plain read of address and its criteria
// variants, leaving other addresses that share its prefix alone.
func (c *CachedRepository) invalidateAddress(ctx context.Context, namespace, address string) {
	key := c.keySerializer.SerializeKey(namespace, address)
	c.invalidateByPrefix(ctx, cache.PrefixOf(key))
	if _, ok := c.keyRegistry.Load(key); ok {
		c.deleteKey(ctx, key)
	}
}

// invalidateByPrefix removes all cached keys that start with the given prefix
func (c *CachedRepository) invalidateByPrefix(ctx context.Context, prefix string) {
	var keysToDelete []string
	c.keyRegistry.Range(func(k, _ any) bool {
		if key, ok := k.(string); ok && strings.HasPrefix(key, prefix) {
			keysToDelete = append(keysToDelete, key)
		}
		return true
	})

	for _, key := range keysToDelete {
		c.deleteKey(ctx, key)
	}
}

func (c *CachedRepository) deleteKey(ctx context.Context, key string) {
	if err := c.cache.Delete(ctx, key); err != nil {
		c.logger.Warn("cache delete failed", "key", key, "error", err)
	}
	c.keyRegistry.Delete(key)
}

func cloneTodo(in *Todo) *Todo {
	if in == nil {
		return nil
	}
	out := *in
	return &out
}

func cloneTodos(in []*Todo) []*Todo {
	out := make([]*Todo, len(in))
	for i, record := range in {
		out[i] = cloneTodo(record)
	}
	return out
}
