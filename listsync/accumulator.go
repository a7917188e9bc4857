package listsync

import "github.com/goliatone/go-todo-sync/todo"

// PageRequest identifies one page fetch. Generation ties it to the query
// lifetime it was issued for; results from an older generation are dropped.
type PageRequest struct {
	Generation uint64
	Page       int
	PageSize   int
	Query      todo.Query
	// Key is the store key and request locator for the page.
	Key string
}

type pageSlot struct {
	key  string
	page int
	resp todo.ListResponse
}

// Accumulator merges sequential pages of one query into a single ordered
// list. It is not safe for concurrent use; the Engine serializes access.
type Accumulator struct {
	pageSize   int
	query      todo.Query
	generation uint64

	slots     []pageSlot
	inFlight  *PageRequest
	hasMore   bool
	pageCount int
}

// NewAccumulator returns an idle accumulator for q.
func NewAccumulator(pageSize int, q todo.Query) *Accumulator {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	return &Accumulator{
		pageSize: pageSize,
		query:    q.Normalize(),
		hasMore:  true,
	}
}

// Reset starts a new query lifetime. The list is emptied immediately and the
// returned page 1 request is marked in flight.
func (a *Accumulator) Reset(q todo.Query) PageRequest {
	a.generation++
	a.query = q.Normalize()
	a.slots = nil
	a.hasMore = true
	a.pageCount = 0
	return a.begin(1)
}

// Refresh starts a new lifetime for the same query. Loaded items stay visible
// until page 1 lands and replaces them.
func (a *Accumulator) Refresh() PageRequest {
	a.generation++
	a.hasMore = true
	return a.begin(1)
}

// Next returns the request for the following page. It refuses while a fetch
// is in flight or once the last page has been applied.
func (a *Accumulator) Next() (PageRequest, bool) {
	if a.inFlight != nil || !a.hasMore {
		return PageRequest{}, false
	}
	return a.begin(len(a.slots) + 1), true
}

func (a *Accumulator) begin(page int) PageRequest {
	req := PageRequest{
		Generation: a.generation,
		Page:       page,
		PageSize:   a.pageSize,
		Query:      a.query,
		Key:        todo.ListLocator(page, a.pageSize, a.query),
	}
	a.inFlight = &req
	return req
}

func (a *Accumulator) current(req PageRequest) bool {
	return a.inFlight != nil &&
		req.Generation == a.generation &&
		req.Page == a.inFlight.Page
}

// Apply merges a fetched page. It returns false, leaving the state untouched,
// when req is stale or out of order. Page 1 replaces the list; later pages
// append.
func (a *Accumulator) Apply(req PageRequest, resp todo.ListResponse) bool {
	if !a.current(req) {
		return false
	}

	slot := pageSlot{key: req.Key, page: req.Page, resp: resp}
	if req.Page == 1 {
		a.slots = []pageSlot{slot}
	} else {
		a.slots = append(a.slots, slot)
	}

	// An absent or zero page count ends accumulation.
	a.pageCount = resp.Pagination.PageCount
	a.hasMore = req.Page < a.pageCount && len(resp.Items) > 0
	a.inFlight = nil
	return true
}

// Fail clears the in-flight marker for req. Loaded items are kept.
func (a *Accumulator) Fail(req PageRequest) bool {
	if !a.current(req) {
		return false
	}
	a.inFlight = nil
	return true
}

// Replace swaps the loaded page stored under key. It reports whether key
// belongs to a loaded page. A replaced last page also updates the page count,
// so a server reporting fewer pages ends accumulation.
func (a *Accumulator) Replace(key string, resp todo.ListResponse) bool {
	for i := range a.slots {
		if a.slots[i].key != key {
			continue
		}
		a.slots[i].resp = resp
		if i == len(a.slots)-1 && a.inFlight == nil {
			a.pageCount = resp.Pagination.PageCount
			a.hasMore = a.slots[i].page < a.pageCount && len(resp.Items) > 0
		}
		return true
	}
	return false
}

// Slot returns the loaded page stored under key.
func (a *Accumulator) Slot(key string) (todo.ListResponse, bool) {
	for _, slot := range a.slots {
		if slot.key == key {
			return slot.resp, true
		}
	}
	return todo.ListResponse{}, false
}

// Items returns the merged list in page order. An item that moved between
// pages is listed once, at its first position.
func (a *Accumulator) Items() []todo.Item {
	out := make([]todo.Item, 0, len(a.slots)*a.pageSize)
	seen := make(map[int64]struct{}, cap(out))
	for _, slot := range a.slots {
		for _, item := range slot.resp.Items {
			if _, dup := seen[item.ID]; dup {
				continue
			}
			seen[item.ID] = struct{}{}
			out = append(out, item)
		}
	}
	return out
}

// KeyOf returns the key of the loaded page holding the item with id.
func (a *Accumulator) KeyOf(id int64) (string, bool) {
	for _, slot := range a.slots {
		for _, item := range slot.resp.Items {
			if item.ID == id {
				return slot.key, true
			}
		}
	}
	return "", false
}

// Keys returns the keys of the loaded pages in page order.
func (a *Accumulator) Keys() []string {
	keys := make([]string, len(a.slots))
	for i, slot := range a.slots {
		keys[i] = slot.key
	}
	return keys
}

// HasMore reports whether another page may be requested.
func (a *Accumulator) HasMore() bool { return a.hasMore }

// Loading reports whether a page fetch is in flight.
func (a *Accumulator) Loading() bool { return a.inFlight != nil }

// Page returns the number of loaded pages.
func (a *Accumulator) Page() int { return len(a.slots) }

// PageCount returns the page count reported by the last applied page.
func (a *Accumulator) PageCount() int { return a.pageCount }

// Query returns the query of the current lifetime.
func (a *Accumulator) Query() todo.Query { return a.query }

// Generation returns the current lifetime counter.
func (a *Accumulator) Generation() uint64 { return a.generation }
