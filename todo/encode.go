package todo

import (
	"net/url"
	"strconv"
	"strings"
)

// CollectionPath is the remote collection endpoint.
const CollectionPath = "/api/todos"

// Remote parameter names.
const (
	ParamPage       = "pagination[page]"
	ParamPageSize   = "pagination[pageSize]"
	ParamSort       = "sort"
	ParamTitleMatch = "filters[title][$containsi]"
	ParamDoneEquals = "filters[done][$eq]"
)

// Shareable parameter names.
const (
	ShareSearch = "q"
	ShareFilter = "f"
	ShareSort   = "s"
)

// EncodeListQuery builds the remote parameters for one page of q.
func EncodeListQuery(page, pageSize int, q Query) url.Values {
	q = q.Normalize()

	v := url.Values{}
	v.Set(ParamPage, strconv.Itoa(page))
	v.Set(ParamPageSize, strconv.Itoa(pageSize))
	v.Set(ParamSort, SortParam(q.Sort))

	if term := q.Term(); term != "" {
		v.Set(ParamTitleMatch, term)
	}

	switch q.Filter {
	case FilterActive:
		v.Set(ParamDoneEquals, "false")
	case FilterCompleted:
		v.Set(ParamDoneEquals, "true")
	}

	return v
}

// SortParam returns the remote sort expression for s.
func SortParam(s Sort) string {
	if s == SortCreatedAsc {
		return "createdAt:asc"
	}
	return "createdAt:desc"
}

// ListLocator returns the collection path with the encoded query attached.
// Equal inputs always produce byte-identical locators, so the result doubles as
// a cache key.
func ListLocator(page, pageSize int, q Query) string {
	return CollectionPath + "?" + EncodeListQuery(page, pageSize, q).Encode()
}

// ItemPath returns the path addressing a single item by reference.
func ItemPath(ref string) string {
	return CollectionPath + "/" + url.PathEscape(ref)
}

// ShareableParams encodes q in the short form used for links. Defaults are
// omitted, so the default query encodes to an empty set.
func ShareableParams(q Query) url.Values {
	q = q.Normalize()

	v := url.Values{}
	if term := q.Term(); term != "" {
		v.Set(ShareSearch, term)
	}
	if q.Filter != FilterAll {
		v.Set(ShareFilter, string(q.Filter))
	}
	if q.Sort != SortCreatedDesc {
		v.Set(ShareSort, string(q.Sort))
	}
	return v
}

// ParseShareable is the inverse of ShareableParams. Unknown values fall back
// to defaults.
func ParseShareable(v url.Values) Query {
	q := Query{
		Search: strings.TrimSpace(v.Get(ShareSearch)),
		Filter: Filter(v.Get(ShareFilter)),
		Sort:   Sort(v.Get(ShareSort)),
	}
	return q.Normalize()
}

// ListParams is a decoded list request.
type ListParams struct {
	Page     int
	PageSize int
	Query    Query
}

// DecodeListQuery is the inverse of EncodeListQuery. Missing or invalid
// pagination falls back to page 1 and defaultPageSize.
func DecodeListQuery(v url.Values, defaultPageSize int) ListParams {
	p := ListParams{Page: 1, PageSize: defaultPageSize}

	if n, err := strconv.Atoi(v.Get(ParamPage)); err == nil && n > 0 {
		p.Page = n
	}
	if n, err := strconv.Atoi(v.Get(ParamPageSize)); err == nil && n > 0 {
		p.PageSize = n
	}

	p.Query.Search = v.Get(ParamTitleMatch)
	switch strings.ToLower(v.Get(ParamDoneEquals)) {
	case "false":
		p.Query.Filter = FilterActive
	case "true":
		p.Query.Filter = FilterCompleted
	default:
		p.Query.Filter = FilterAll
	}
	if v.Get(ParamSort) == "createdAt:asc" {
		p.Query.Sort = SortCreatedAsc
	} else {
		p.Query.Sort = SortCreatedDesc
	}

	return p
}
