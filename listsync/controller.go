package listsync

import (
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/goliatone/go-todo-sync/todo"
)

// QueryChangeFunc is called synchronously each time the committed query
// changes. rev increases with every commit, so a receiver can ignore a
// change that arrives after a newer one.
type QueryChangeFunc func(q todo.Query, rev uint64)

// QueryController owns the active query. Search input is committed after a
// quiet period; filter and sort commit at once. Every commit resets the
// receiver before returning and schedules the mirror.
type QueryController struct {
	onChange QueryChangeFunc
	sink     Mirror

	search *Debouncer
	mirror *Debouncer

	mu        sync.Mutex
	input     string
	committed todo.Query
	rev       uint64
}

// NewQueryController starts from initial without firing onChange.
func NewQueryController(initial todo.Query, searchDelay, mirrorDelay time.Duration, sink Mirror, onChange QueryChangeFunc) *QueryController {
	if sink == nil {
		sink = MirrorFunc(func(_ url.Values) {})
	}
	if onChange == nil {
		onChange = func(todo.Query, uint64) {}
	}
	initial = canonical(initial)
	return &QueryController{
		onChange:  onChange,
		sink:      sink,
		search:    NewDebouncer(searchDelay),
		mirror:    NewDebouncer(mirrorDelay),
		input:     initial.Search,
		committed: initial,
	}
}

// SetSearch records raw search input. It is committed once input has been
// quiet for the search delay.
func (c *QueryController) SetSearch(input string) {
	c.mu.Lock()
	c.input = input
	c.mu.Unlock()

	c.search.Trigger(c.commitSearch)
}

// FlushSearch commits pending search input immediately.
func (c *QueryController) FlushSearch() bool {
	return c.search.Flush()
}

// SetFilter commits a new filter immediately.
func (c *QueryController) SetFilter(f todo.Filter) bool {
	return c.commit(func(q *todo.Query) { q.Filter = f })
}

// SetSort commits a new sort immediately.
func (c *QueryController) SetSort(s todo.Sort) bool {
	return c.commit(func(q *todo.Query) { q.Sort = s })
}

// Restore replaces the whole query, e.g. from a shared link. Pending search
// input is discarded.
func (c *QueryController) Restore(q todo.Query) bool {
	c.search.Cancel()
	q = canonical(q)

	c.mu.Lock()
	c.input = q.Search
	c.mu.Unlock()

	return c.commit(func(cur *todo.Query) { *cur = q })
}

// Query returns the committed query.
func (c *QueryController) Query() todo.Query {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.committed
}

// Input returns the raw search input, which may be ahead of the committed
// query.
func (c *QueryController) Input() string {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.input
}

// SearchPending reports whether typed input is waiting to be committed.
func (c *QueryController) SearchPending() bool {
	return c.search.Pending()
}

// Stop cancels pending commits and mirror updates.
func (c *QueryController) Stop() {
	c.search.Stop()
	c.mirror.Stop()
}

func (c *QueryController) commitSearch() {
	c.mu.Lock()
	input := c.input
	c.mu.Unlock()

	c.commit(func(q *todo.Query) { q.Search = input })
}

func (c *QueryController) commit(update func(*todo.Query)) bool {
	c.mu.Lock()
	next := c.committed
	update(&next)
	next = canonical(next)
	if next == c.committed {
		c.mu.Unlock()
		return false
	}
	c.committed = next
	c.rev++
	rev := c.rev
	c.mu.Unlock()

	c.onChange(next, rev)
	c.mirror.Trigger(c.publish)
	return true
}

func (c *QueryController) publish() {
	c.sink.Replace(todo.ShareableParams(c.Query()))
}

func canonical(q todo.Query) todo.Query {
	q = q.Normalize()
	q.Search = strings.TrimSpace(q.Search)
	return q
}
