package listsync

import (
	"context"
	"log/slog"
	"net/url"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/goliatone/go-errors"
	"github.com/google/uuid"
	"github.com/puzpuzpuz/xsync/v3"

	"github.com/goliatone/go-todo-sync/remote"
	"github.com/goliatone/go-todo-sync/swr"
	"github.com/goliatone/go-todo-sync/todo"
)

// Notice texts shown for failed actions.
const (
	NoticeUpdateFailed = "Failed to update"
	NoticeRenameFailed = "Failed to save title"
	NoticeCreateFailed = "Failed to create"
	NoticeDeletePrefix = "Failed to delete: "
)

// Store is the page cache the Engine reads and writes through.
// *swr.Store[todo.ListResponse] implements it.
type Store interface {
	PageStore
	Get(ctx context.Context, key string) (todo.ListResponse, error)
	SubscribeAll(fn swr.Observer[todo.ListResponse]) (unsubscribe func())
	Invalidate(ctx context.Context, prefix string) error
	Wait()
}

// Notice is a transient, dismissible message about a failed action.
type Notice struct {
	ID      string
	Message string
	Err     error
	At      time.Time
}

// EditSession is the single in-progress rename.
type EditSession struct {
	ItemID int64
	Ref    string
	Draft  string
	Saving bool
}

// PendingDelete is a delete waiting for confirmation.
type PendingDelete struct {
	ItemID   int64
	Ref      string
	Title    string
	Deleting bool
}

// State is a snapshot of everything the presentation layer renders.
type State struct {
	// Items is the accumulated list in page order.
	Items []todo.Item
	// Visible is Items filtered and ordered by Query.
	Visible []todo.Item

	Query       todo.Query
	SearchInput string

	Page    int
	HasMore bool
	Loading bool
	Err     error

	Notice        *Notice
	Editing       *EditSession
	PendingDelete *PendingDelete
}

// Listener receives a fresh State after every change.
type Listener func(State)

// Engine is the list synchronization facade.
type Engine struct {
	store  Store
	client remote.Client
	coord  *Coordinator
	ctrl   *QueryController
	opts   Options
	logger *slog.Logger

	mu            sync.Mutex
	acc           *Accumulator
	queryRev      uint64
	err           error
	notice        *Notice
	editing       *EditSession
	pendingDelete *PendingDelete

	listeners    *xsync.MapOf[uint64, Listener]
	nextListener atomic.Uint64
	unsubscribe  func()

	wg     sync.WaitGroup
	ctx    context.Context
	cancel context.CancelFunc
	closed atomic.Bool
}

// NewEngine wires an Engine over store and client. Unset options take their
// defaults, including the 500ms search and 250ms mirror delays. Call Start to
// load the first page.
func NewEngine(store Store, client remote.Client, opts Options) (*Engine, error) {
	opts = opts.withDefaults()
	if err := opts.Validate(); err != nil {
		return nil, err
	}

	ctx, cancel := context.WithCancel(context.Background())
	logger := opts.Logger.With("component", "listsync")

	e := &Engine{
		store:     store,
		client:    client,
		opts:      opts,
		logger:    logger,
		acc:       NewAccumulator(opts.PageSize, opts.InitialQuery),
		listeners: xsync.NewMapOf[uint64, Listener](),
		ctx:       ctx,
		cancel:    cancel,
	}
	e.coord = NewCoordinator(store, client, logger).WithPageSource(e.loadedPage)
	e.ctrl = NewQueryController(opts.InitialQuery, opts.SearchDebounce, opts.MirrorDelay, opts.Mirror, e.onQueryChange)
	e.unsubscribe = store.SubscribeAll(e.onStoreEvent)

	return e, nil
}

// Start loads page 1 of the initial query.
func (e *Engine) Start() {
	e.mu.Lock()
	req := e.acc.Reset(e.ctrl.Query())
	e.mu.Unlock()

	e.notify()
	e.spawnLoad(req)
}

// State returns the current snapshot.
func (e *Engine) State() State {
	input := e.ctrl.Input()

	e.mu.Lock()
	defer e.mu.Unlock()
	return e.snapshotLocked(input)
}

// Subscribe registers fn for state changes. Listeners run on the goroutine
// that caused the change and must not block.
func (e *Engine) Subscribe(fn Listener) (unsubscribe func()) {
	id := e.nextListener.Add(1)
	e.listeners.Store(id, fn)
	return func() { e.listeners.Delete(id) }
}

// Pending returns the mutations still waiting on the remote.
func (e *Engine) Pending() []Mutation {
	return e.coord.Pending()
}

// SetSearch records search input. The query follows after the search delay.
func (e *Engine) SetSearch(input string) {
	e.ctrl.SetSearch(input)
	e.notify()
}

// FlushSearch commits pending search input without waiting.
func (e *Engine) FlushSearch() {
	e.ctrl.FlushSearch()
}

// SetFilter switches the completion filter. Pagination resets before this
// returns.
func (e *Engine) SetFilter(f todo.Filter) {
	e.ctrl.SetFilter(f)
}

// SetSort switches the sort order. Pagination resets before this returns.
func (e *Engine) SetSort(s todo.Sort) {
	e.ctrl.SetSort(s)
}

// Restore applies a query from its shareable form.
func (e *Engine) Restore(values url.Values) {
	e.ctrl.Restore(todo.ParseShareable(values))
	e.notify()
}

// LoadNextPage requests the following page. It returns false while a page is
// in flight or when no pages remain.
func (e *Engine) LoadNextPage() bool {
	e.mu.Lock()
	req, ok := e.acc.Next()
	e.mu.Unlock()
	if !ok {
		return false
	}

	e.notify()
	e.spawnLoad(req)
	return true
}

// Refresh drops cached pages and reloads page 1. Loaded items stay visible
// until it lands.
func (e *Engine) Refresh() {
	if err := e.store.Invalidate(e.ctx, todo.CollectionPath); err != nil {
		e.logger.Warn("invalidate cached pages", "error", err)
	}

	e.mu.Lock()
	req := e.acc.Refresh()
	e.mu.Unlock()

	e.notify()
	e.spawnLoad(req)
}

// Add creates an item and reloads the list from page 1.
func (e *Engine) Add(ctx context.Context, title string) (todo.Item, error) {
	clean, err := todo.CleanTitle(title)
	if err != nil {
		e.pushNotice(todo.Message(err), err)
		return todo.Item{}, err
	}

	item, err := e.client.Create(ctx, remote.CreateInput{Title: clean})
	if err != nil {
		e.logError("create", err)
		e.pushNotice(NoticeCreateFailed, err)
		return todo.Item{}, err
	}

	e.Refresh()
	return item, nil
}

// Toggle flips item's done flag. The change is visible before the remote
// call is issued and is rolled back if the call fails.
func (e *Engine) Toggle(ctx context.Context, item todo.Item) error {
	key, ok := e.keyOf(item.ID)
	if !ok {
		err := notLoaded(item.ID)
		e.pushNotice(NoticeUpdateFailed, err)
		return err
	}

	if err := e.coord.Toggle(ctx, key, item.ID); err != nil {
		e.pushNotice(NoticeUpdateFailed, err)
		return err
	}
	return nil
}

// Rename sets item's title optimistically. A blank title is rejected with a
// notice and no network call; an unchanged title does nothing.
func (e *Engine) Rename(ctx context.Context, item todo.Item, title string) error {
	if _, err := todo.CleanTitle(title); err != nil {
		e.pushNotice(todo.Message(err), err)
		return err
	}

	key, ok := e.keyOf(item.ID)
	if !ok {
		err := notLoaded(item.ID)
		e.pushNotice(NoticeRenameFailed, err)
		return err
	}

	if err := e.coord.Rename(ctx, key, item.ID, title); err != nil {
		e.pushNotice(NoticeRenameFailed, err)
		return err
	}
	return nil
}

// Remove deletes the item addressed by ref and refetches the loaded pages.
func (e *Engine) Remove(ctx context.Context, ref string) error {
	e.mu.Lock()
	keys := e.acc.Keys()
	e.mu.Unlock()

	if err := e.coord.Delete(ctx, ref, keys); err != nil {
		e.pushNotice(NoticeDeletePrefix+todo.Message(err), err)
		return err
	}
	return nil
}

// BeginEdit opens an edit session for item. An open session on another item
// is abandoned without saving.
func (e *Engine) BeginEdit(item todo.Item) {
	e.mu.Lock()
	e.editing = &EditSession{ItemID: item.ID, Ref: item.Ref(), Draft: item.Title}
	e.mu.Unlock()
	e.notify()
}

// SetDraft updates the draft title of the open session.
func (e *Engine) SetDraft(draft string) {
	e.mu.Lock()
	if e.editing == nil {
		e.mu.Unlock()
		return
	}
	e.editing.Draft = draft
	e.mu.Unlock()
	e.notify()
}

// CancelEdit closes the session without saving.
func (e *Engine) CancelEdit() {
	e.mu.Lock()
	e.editing = nil
	e.mu.Unlock()
	e.notify()
}

// CommitEdit saves the open session's draft. The session closes on success
// or when the draft equals the current title; it stays open on failure.
func (e *Engine) CommitEdit(ctx context.Context) error {
	e.mu.Lock()
	session := e.editing
	if session == nil {
		e.mu.Unlock()
		return nil
	}
	session.Saving = true
	id, draft := session.ItemID, session.Draft
	e.mu.Unlock()
	e.notify()

	err := e.Rename(ctx, todo.Item{ID: id}, draft)

	e.mu.Lock()
	if e.editing == session {
		session.Saving = false
		if err == nil {
			e.editing = nil
		}
	}
	e.mu.Unlock()
	e.notify()
	return err
}

// RequestDelete asks for confirmation before deleting item.
func (e *Engine) RequestDelete(item todo.Item) {
	e.mu.Lock()
	e.pendingDelete = &PendingDelete{ItemID: item.ID, Ref: item.Ref(), Title: item.Title}
	e.mu.Unlock()
	e.notify()
}

// CancelDelete drops the pending confirmation.
func (e *Engine) CancelDelete() {
	e.mu.Lock()
	e.pendingDelete = nil
	e.mu.Unlock()
	e.notify()
}

// ConfirmDelete deletes the item awaiting confirmation. The confirmation
// stays open if the delete fails.
func (e *Engine) ConfirmDelete(ctx context.Context) error {
	e.mu.Lock()
	pd := e.pendingDelete
	if pd == nil || pd.Deleting {
		e.mu.Unlock()
		return nil
	}
	pd.Deleting = true
	ref := pd.Ref
	e.mu.Unlock()
	e.notify()

	err := e.Remove(ctx, ref)

	e.mu.Lock()
	if e.pendingDelete == pd {
		pd.Deleting = false
		if err == nil {
			e.pendingDelete = nil
		}
	}
	e.mu.Unlock()
	e.notify()
	return err
}

// DismissNotice clears the notice with id. A newer notice is left alone.
func (e *Engine) DismissNotice(id string) {
	e.mu.Lock()
	if e.notice == nil || e.notice.ID != id {
		e.mu.Unlock()
		return
	}
	e.notice = nil
	e.mu.Unlock()
	e.notify()
}

// Wait blocks until page loads and background revalidations have finished.
func (e *Engine) Wait() {
	e.wg.Wait()
	e.store.Wait()
	e.wg.Wait()
}

// Close stops timers, drops the store subscription and waits for page loads
// to return. The store is left open.
func (e *Engine) Close() {
	if e.closed.Swap(true) {
		return
	}
	e.ctrl.Stop()
	e.cancel()
	e.unsubscribe()
	e.wg.Wait()
}

func (e *Engine) onQueryChange(q todo.Query, rev uint64) {
	e.mu.Lock()
	if rev <= e.queryRev {
		e.mu.Unlock()
		return
	}
	e.queryRev = rev
	req := e.acc.Reset(q)
	e.err = nil
	e.mu.Unlock()

	e.logger.Debug("query changed", "search", q.Search, "filter", string(q.Filter), "sort", string(q.Sort))
	e.notify()
	e.spawnLoad(req)
}

func (e *Engine) spawnLoad(req PageRequest) {
	if e.closed.Load() {
		return
	}
	e.wg.Add(1)
	go func() {
		defer e.wg.Done()
		e.load(req)
	}()
}

func (e *Engine) load(req PageRequest) {
	resp, err := e.store.Get(e.ctx, req.Key)

	e.mu.Lock()
	if err != nil {
		applied := e.acc.Fail(req)
		if applied {
			e.err = err
			e.setNoticeLocked(todo.Message(err), err)
		}
		e.mu.Unlock()
		if applied {
			e.notify()
		}
		return
	}

	// a revalidation may have landed between Get and the lock
	if latest, ok := e.store.Peek(req.Key); ok {
		resp = latest
	}
	applied := e.acc.Apply(req, resp)
	if applied {
		e.err = nil
	}
	e.mu.Unlock()

	if !applied {
		e.logger.Debug("discarding superseded page", "page", req.Page, "generation", req.Generation)
		return
	}
	e.notify()
}

func (e *Engine) onStoreEvent(ev swr.Event[todo.ListResponse]) {
	e.mu.Lock()
	changed := false
	if ev.Err != nil {
		if slices.Contains(e.acc.Keys(), ev.Key) {
			e.err = ev.Err
			changed = true
		}
	} else {
		changed = e.acc.Replace(ev.Key, ev.Value)
	}
	e.mu.Unlock()

	if changed {
		e.notify()
	}
}

func (e *Engine) loadedPage(key string) (todo.ListResponse, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acc.Slot(key)
}

func (e *Engine) keyOf(id int64) (string, bool) {
	e.mu.Lock()
	defer e.mu.Unlock()
	return e.acc.KeyOf(id)
}

func (e *Engine) pushNotice(msg string, err error) {
	e.mu.Lock()
	e.setNoticeLocked(msg, err)
	e.mu.Unlock()
	e.notify()
}

func (e *Engine) setNoticeLocked(msg string, err error) {
	e.notice = &Notice{
		ID:      uuid.NewString(),
		Message: msg,
		Err:     err,
		At:      time.Now(),
	}
}

func (e *Engine) logError(op string, err error) {
	logger := e.logger.With("op", op)
	if rich, ok := todo.AsError(err); ok {
		errors.LogBySeverity(logger, rich)
		return
	}
	logger.Warn("operation failed", "error", err)
}

func (e *Engine) notify() {
	if e.listeners.Size() == 0 {
		return
	}
	st := e.State()
	e.listeners.Range(func(_ uint64, fn Listener) bool {
		fn(st)
		return true
	})
}

func (e *Engine) snapshotLocked(input string) State {
	items := e.acc.Items()
	q := e.acc.Query()

	st := State{
		Items:       items,
		Visible:     q.Apply(items),
		Query:       q,
		SearchInput: input,
		Page:        e.acc.Page(),
		HasMore:     e.acc.HasMore(),
		Loading:     e.acc.Loading(),
		Err:         e.err,
	}
	if e.notice != nil {
		n := *e.notice
		st.Notice = &n
	}
	if e.editing != nil {
		s := *e.editing
		st.Editing = &s
	}
	if e.pendingDelete != nil {
		pd := *e.pendingDelete
		st.PendingDelete = &pd
	}
	return st
}
