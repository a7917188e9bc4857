package todo

import "strconv"

// Item is the canonical, shape-agnostic representation of a todo.
type Item struct {
	ID          int64  `json:"id" msgpack:"id"`
	AlternateID string `json:"alternateId,omitempty" msgpack:"alternate_id,omitempty"`
	Title       string `json:"title" msgpack:"title"`
	Done        bool   `json:"done" msgpack:"done"`
	CreatedAt   string `json:"createdAt,omitempty" msgpack:"created_at,omitempty"`
}

// Ref returns the identifier mutations must address: the alternate id when the
// remote supplied one, the numeric id otherwise.
func (i Item) Ref() string {
	if i.AlternateID != "" {
		return i.AlternateID
	}
	return strconv.FormatInt(i.ID, 10)
}

// Pagination is the page metadata returned alongside a list.
type Pagination struct {
	Page      int `json:"page" msgpack:"page"`
	PageSize  int `json:"pageSize" msgpack:"page_size"`
	PageCount int `json:"pageCount" msgpack:"page_count"`
	Total     int `json:"total" msgpack:"total"`
}

// ListResponse is one normalized page as stored by the cache layer.
type ListResponse struct {
	Items      []Item     `json:"items" msgpack:"items"`
	Pagination Pagination `json:"pagination" msgpack:"pagination"`
}

// IndexOf returns the position of the item with the given id, or -1.
func (r ListResponse) IndexOf(id int64) int {
	for i, item := range r.Items {
		if item.ID == id {
			return i
		}
	}
	return -1
}

// Clone returns a copy that shares no backing array with r.
func (r ListResponse) Clone() ListResponse {
	out := ListResponse{Pagination: r.Pagination}
	if r.Items != nil {
		out.Items = make([]Item, len(r.Items))
		copy(out.Items, r.Items)
	}
	return out
}

// Update returns a copy of r with fn applied to the item matching id.
// The boolean reports whether the item was found.
func (r ListResponse) Update(id int64, fn func(Item) Item) (ListResponse, bool) {
	idx := r.IndexOf(id)
	if idx < 0 {
		return r, false
	}
	out := r.Clone()
	out.Items[idx] = fn(out.Items[idx])
	return out, true
}
