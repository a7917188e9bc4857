package listsync

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-todo-sync/remote"
	"github.com/goliatone/go-todo-sync/swr"
	"github.com/goliatone/go-todo-sync/todo"
)

// Kind names a mutation.
type Kind string

const (
	KindToggle Kind = "toggle"
	KindRename Kind = "rename"
	KindDelete Kind = "delete"
)

// Mutation is the record of one in-flight change. It lives only for the
// duration of its remote call.
type Mutation struct {
	ID        string
	Kind      Kind
	Target    string
	ItemID    int64
	Key       string
	Snapshot  todo.Item
	Confirmed bool
	StartedAt time.Time
}

// PageStore is the part of swr.Store the coordinator writes through.
type PageStore interface {
	Peek(key string) (todo.ListResponse, bool)
	WriteLocal(ctx context.Context, key string, value todo.ListResponse, opts swr.WriteOptions) error
	BeginMutation(key string) (end func())
	Revalidate(key string)
}

// PageSource returns a page that is still on screen under key. The
// coordinator falls back to it when the store no longer holds the entry.
type PageSource func(key string) (todo.ListResponse, bool)

// Coordinator applies changes optimistically and reconciles them with the
// remote once the call returns.
type Coordinator struct {
	store   PageStore
	client  remote.Client
	logger  *slog.Logger
	pending *xsync.MapOf[string, Mutation]
	source  PageSource

	// localMu serializes read-modify-write cycles on stored pages.
	localMu sync.Mutex
}

// NewCoordinator returns a Coordinator writing through store.
func NewCoordinator(store PageStore, client remote.Client, logger *slog.Logger) *Coordinator {
	if logger == nil {
		logger = slog.Default()
	}
	return &Coordinator{
		store:   store,
		client:  client,
		logger:  logger.With("component", "coordinator"),
		pending: xsync.NewMapOf[string, Mutation](),
	}
}

// WithPageSource sets the fallback used when a stored page has expired or
// was invalidated. The optimistic write re-seeds the store from it.
func (c *Coordinator) WithPageSource(source PageSource) *Coordinator {
	c.source = source
	return c
}

// Toggle flips the done flag of the item with id on the page stored under
// key. The flipped item is visible to store observers before the remote call
// is issued.
func (c *Coordinator) Toggle(ctx context.Context, key string, id int64) error {
	return c.apply(ctx, KindToggle, key, id,
		func(it todo.Item) todo.Item {
			it.Done = !it.Done
			return it
		},
		func(ctx context.Context, before todo.Item) error {
			_, err := c.client.Update(ctx, before.Ref(), remote.DonePatch(!before.Done))
			return err
		},
	)
}

// Rename sets the title of the item with id. A title that is empty after
// trimming is rejected before anything is written. A title equal to the
// current one is a no-op.
func (c *Coordinator) Rename(ctx context.Context, key string, id int64, title string) error {
	clean, err := todo.CleanTitle(title)
	if err != nil {
		return err
	}

	current, ok := c.lookup(key, id)
	if !ok {
		return notLoaded(id)
	}
	if current.Title == clean {
		return nil
	}

	return c.apply(ctx, KindRename, key, id,
		func(it todo.Item) todo.Item {
			it.Title = clean
			return it
		},
		func(ctx context.Context, before todo.Item) error {
			_, err := c.client.Update(ctx, before.Ref(), remote.TitlePatch(clean))
			return err
		},
	)
}

// Delete removes the item addressed by ref. Nothing is written locally; on
// success every key in revalidate is refetched.
func (c *Coordinator) Delete(ctx context.Context, ref string, revalidate []string) error {
	m := Mutation{
		ID:        uuid.NewString(),
		Kind:      KindDelete,
		Target:    ref,
		StartedAt: time.Now(),
	}
	c.pending.Store(m.ID, m)
	defer c.pending.Delete(m.ID)

	if err := c.client.Delete(ctx, ref); err != nil {
		c.logFailure(m, err)
		return err
	}

	for _, key := range revalidate {
		c.store.Revalidate(key)
	}
	return nil
}

// Pending returns the mutations whose remote call has not returned, oldest
// first.
func (c *Coordinator) Pending() []Mutation {
	out := make([]Mutation, 0, c.pending.Size())
	c.pending.Range(func(_ string, m Mutation) bool {
		out = append(out, m)
		return true
	})
	sort.Slice(out, func(i, j int) bool { return out[i].StartedAt.Before(out[j].StartedAt) })
	return out
}

func (c *Coordinator) apply(
	ctx context.Context,
	kind Kind,
	key string,
	id int64,
	change func(todo.Item) todo.Item,
	call func(context.Context, todo.Item) error,
) error {
	// opened before the read so no revalidation lands between read and write
	end := c.store.BeginMutation(key)

	c.localMu.Lock()
	page, ok := c.page(key)
	if !ok {
		c.localMu.Unlock()
		end()
		return notLoaded(id)
	}
	idx := page.IndexOf(id)
	if idx < 0 {
		c.localMu.Unlock()
		end()
		return notLoaded(id)
	}
	before := page.Items[idx]

	m := Mutation{
		ID:        uuid.NewString(),
		Kind:      kind,
		Target:    before.Ref(),
		ItemID:    id,
		Key:       key,
		Snapshot:  before,
		StartedAt: time.Now(),
	}
	c.pending.Store(m.ID, m)
	defer c.pending.Delete(m.ID)

	optimistic, _ := page.Update(id, change)
	err := c.store.WriteLocal(ctx, key, optimistic, swr.WriteOptions{})
	c.localMu.Unlock()
	if err != nil {
		end()
		return err
	}

	err = call(ctx, before)
	end()

	if err != nil {
		c.logFailure(m, err)
		c.rollback(ctx, m)
		return err
	}

	m.Confirmed = true
	c.pending.Store(m.ID, m)
	c.store.Revalidate(key)
	return nil
}

// rollback puts the snapshot back in place of the optimistic item and
// refetches the page. Other items on the page keep their current state.
func (c *Coordinator) rollback(ctx context.Context, m Mutation) {
	c.localMu.Lock()
	page, ok := c.page(m.Key)
	if ok {
		restored, found := page.Update(m.ItemID, func(todo.Item) todo.Item { return m.Snapshot })
		if found {
			if err := c.store.WriteLocal(context.WithoutCancel(ctx), m.Key, restored, swr.WriteOptions{}); err != nil {
				c.logger.Error("restore snapshot", "key", m.Key, "mutation", m.ID, "error", err)
			}
		}
	}
	c.localMu.Unlock()
	c.store.Revalidate(m.Key)
}

// page returns the stored page for key, or the source's copy when the store
// entry is gone.
func (c *Coordinator) page(key string) (todo.ListResponse, bool) {
	if page, ok := c.store.Peek(key); ok {
		return page, true
	}
	if c.source == nil {
		return todo.ListResponse{}, false
	}
	page, ok := c.source(key)
	if ok {
		c.logger.Debug("stored page missing, using loaded copy", "key", key)
	}
	return page, ok
}

func (c *Coordinator) lookup(key string, id int64) (todo.Item, bool) {
	page, ok := c.page(key)
	if !ok {
		return todo.Item{}, false
	}
	idx := page.IndexOf(id)
	if idx < 0 {
		return todo.Item{}, false
	}
	return page.Items[idx], true
}

func (c *Coordinator) logFailure(m Mutation, err error) {
	logger := c.logger.With("mutation", m.ID, "kind", string(m.Kind), "target", m.Target)
	if rich, ok := todo.AsError(err); ok {
		errors.LogBySeverity(logger, rich)
		return
	}
	logger.Warn("mutation failed", "error", err)
}

func notLoaded(id int64) error {
	return errors.New("item is not on a loaded page", errors.CategoryNotFound).
		WithTextCode("ITEM_NOT_LOADED").
		WithMetadata(map[string]any{"id": id})
}
