// Package remotetest provides an in-memory remote.Client for tests.
package remotetest

import (
	"context"
	"net/url"
	"strconv"
	"sync"
	"time"

	"github.com/goliatone/go-todo-sync/remote"
	"github.com/goliatone/go-todo-sync/todo"
)

// DefaultPageSize is used when a locator carries no page size.
const DefaultPageSize = 10

// Call is one recorded invocation.
type Call struct {
	Method  string
	Locator string
	Ref     string
	Patch   remote.Patch
	Title   string
}

// FakeClient is an in-memory implementation of remote.Client.
type FakeClient struct {
	mu     sync.RWMutex
	items  []todo.Item
	nextID int64
	clock  time.Time
	calls  []Call

	// Error injection
	ListErr   error
	CreateErr error
	UpdateErr error
	DeleteErr error

	// Gate, when set, is called before each call touches the store, with the
	// item ref or, for List, the locator. Tests use it to hold a call in
	// flight. Set it before the client is shared.
	Gate func(method, ref string)
}

// NewFakeClient creates an empty FakeClient.
func NewFakeClient() *FakeClient {
	return &FakeClient{
		nextID: 1,
		clock:  time.Date(2024, 1, 1, 9, 0, 0, 0, time.UTC),
	}
}

// Seed adds items with the given titles. Each gets the next id and a
// creation time one minute after the previous one.
func (f *FakeClient) Seed(titles ...string) []todo.Item {
	f.mu.Lock()
	defer f.mu.Unlock()
	out := make([]todo.Item, 0, len(titles))
	for _, title := range titles {
		out = append(out, f.insertLocked(title))
	}
	return out
}

// Put stores item as given, replacing any item with the same id.
func (f *FakeClient) Put(item todo.Item) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := range f.items {
		if f.items[i].ID == item.ID {
			f.items[i] = item
			return
		}
	}
	f.items = append(f.items, item)
	if item.ID >= f.nextID {
		f.nextID = item.ID + 1
	}
}

// Items returns a snapshot of the stored items in insertion order.
func (f *FakeClient) Items() []todo.Item {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]todo.Item, len(f.items))
	copy(out, f.items)
	return out
}

// Calls returns the recorded calls.
func (f *FakeClient) Calls() []Call {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]Call, len(f.calls))
	copy(out, f.calls)
	return out
}

// CallCount returns the number of recorded calls for method.
func (f *FakeClient) CallCount(method string) int {
	f.mu.RLock()
	defer f.mu.RUnlock()
	n := 0
	for _, c := range f.calls {
		if c.Method == method {
			n++
		}
	}
	return n
}

// SetErr swaps an injected error while other goroutines may be calling.
func (f *FakeClient) SetErr(method string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	switch method {
	case "List":
		f.ListErr = err
	case "Create":
		f.CreateErr = err
	case "Update":
		f.UpdateErr = err
	case "Delete":
		f.DeleteErr = err
	}
}

// List implements remote.Client.
func (f *FakeClient) List(ctx context.Context, locator string) (todo.ListResponse, error) {
	f.record(Call{Method: "List", Locator: locator})
	if f.Gate != nil {
		f.Gate("List", locator)
	}

	f.mu.RLock()
	err := f.ListErr
	f.mu.RUnlock()
	if err != nil {
		return todo.ListResponse{}, err
	}
	if err := ctx.Err(); err != nil {
		return todo.ListResponse{}, todo.NewTransportFailure("Failed to fetch todos", err)
	}

	var values url.Values
	if u, perr := url.Parse(locator); perr == nil {
		values = u.Query()
	}
	params := todo.DecodeListQuery(values, DefaultPageSize)

	f.mu.RLock()
	matched := params.Query.Apply(f.items)
	f.mu.RUnlock()

	return Paginate(matched, params.Page, params.PageSize), nil
}

// Create implements remote.Client.
func (f *FakeClient) Create(ctx context.Context, input remote.CreateInput) (todo.Item, error) {
	f.record(Call{Method: "Create", Title: input.Title})
	if f.Gate != nil {
		f.Gate("Create", "")
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.CreateErr != nil {
		return todo.Item{}, f.CreateErr
	}
	return f.insertLocked(input.Title), nil
}

// Update implements remote.Client.
func (f *FakeClient) Update(ctx context.Context, ref string, patch remote.Patch) (todo.Item, error) {
	f.record(Call{Method: "Update", Ref: ref, Patch: patch})
	if f.Gate != nil {
		f.Gate("Update", ref)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.UpdateErr != nil {
		return todo.Item{}, f.UpdateErr
	}
	idx := f.indexLocked(ref)
	if idx < 0 {
		return todo.Item{}, notFound("Failed to update todo")
	}
	if patch.Title != nil {
		f.items[idx].Title = *patch.Title
	}
	if patch.Done != nil {
		f.items[idx].Done = *patch.Done
	}
	return f.items[idx], nil
}

// Delete implements remote.Client.
func (f *FakeClient) Delete(ctx context.Context, ref string) error {
	f.record(Call{Method: "Delete", Ref: ref})
	if f.Gate != nil {
		f.Gate("Delete", ref)
	}
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.DeleteErr != nil {
		return f.DeleteErr
	}
	idx := f.indexLocked(ref)
	if idx < 0 {
		return notFound("Failed to delete todo")
	}
	f.items = append(f.items[:idx], f.items[idx+1:]...)
	return nil
}

// Paginate slices items into the requested page and fills in pagination
// metadata the way the remote does.
func Paginate(items []todo.Item, page, pageSize int) todo.ListResponse {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	if page <= 0 {
		page = 1
	}
	total := len(items)
	pageCount := (total + pageSize - 1) / pageSize

	start := (page - 1) * pageSize
	end := start + pageSize
	if start > total {
		start = total
	}
	if end > total {
		end = total
	}

	out := make([]todo.Item, end-start)
	copy(out, items[start:end])
	return todo.ListResponse{
		Items: out,
		Pagination: todo.Pagination{
			Page:      page,
			PageSize:  pageSize,
			PageCount: pageCount,
			Total:     total,
		},
	}
}

func (f *FakeClient) record(c Call) {
	f.mu.Lock()
	f.calls = append(f.calls, c)
	f.mu.Unlock()
}

func (f *FakeClient) insertLocked(title string) todo.Item {
	item := todo.Item{
		ID:        f.nextID,
		Title:     title,
		CreatedAt: f.clock.Format(time.RFC3339),
	}
	f.nextID++
	f.clock = f.clock.Add(time.Minute)
	f.items = append(f.items, item)
	return item
}

func (f *FakeClient) indexLocked(ref string) int {
	for i, item := range f.items {
		if item.Ref() == ref || strconv.FormatInt(item.ID, 10) == ref {
			return i
		}
	}
	return -1
}

func notFound(action string) error {
	return todo.NewHTTPFailure(action, 404, "404 Not Found", "")
}

var _ remote.Client = (*FakeClient)(nil)
