package espo

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
)

// Filter operators accepted by the Espo search API. Filters combine with
// implicit AND.
const (
	OpEquals       = "equals"
	OpGreaterEqual = "greaterThanOrEquals"
)

// Filter is one (attribute, operator, value) search predicate.
type Filter struct {
	Type      string
	Attribute string
	Value     any
}

// Equals builds an equality filter.
func Equals(attribute string, value any) Filter {
	return Filter{Type: OpEquals, Attribute: attribute, Value: value}
}

// GreaterEqual builds a greaterThanOrEquals filter.
func GreaterEqual(attribute string, value any) Filter {
	return Filter{Type: OpGreaterEqual, Attribute: attribute, Value: value}
}

// NotDeleted is the filter every list query carries.
func NotDeleted() Filter {
	return Equals("deleted", false)
}

// encodeWhere serializes filters into Espo's indexed query-parameter form:
// where[0][type]=equals&where[0][attribute]=status&where[0][value]=Invoice
func encodeWhere(params url.Values, where []Filter) {
	for i, f := range where {
		key := "where[" + strconv.Itoa(i) + "]"
		params.Set(key+"[type]", f.Type)
		params.Set(key+"[attribute]", f.Attribute)
		params.Set(key+"[value]", fmt.Sprintf("%v", f.Value))
	}
}

// DefaultPageSize matches the legacy job's list request size.
const DefaultPageSize = 200

// ListPage fetches one page of an entity listing.
func ListPage[T any](ctx context.Context, c *Client, entity string, where []Filter, offset, limit int) ([]T, error) {
	params := url.Values{}
	params.Set("offset", strconv.Itoa(offset))
	params.Set("maxSize", strconv.Itoa(limit))
	encodeWhere(params, where)

	var envelope listEnvelope
	if err := c.Request(ctx, http.MethodGet, entity, params, nil, &envelope); err != nil {
		return nil, err
	}

	var page []T
	if len(envelope.List) > 0 {
		if err := json.Unmarshal(envelope.List, &page); err != nil {
			return nil, fmt.Errorf("decode %s list: %w", entity, err)
		}
	}
	return page, nil
}

// ListAll walks an entity listing page by page and returns every matching
// record. The walk ends exactly when a page comes back shorter than the
// page size. A transport or API error aborts the whole fetch; the caller
// decides whether a partial result is usable.
func ListAll[T any](ctx context.Context, c *Client, entity string, where []Filter, pageSize int) ([]T, error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}

	var all []T
	for offset := 0; ; offset += pageSize {
		page, err := ListPage[T](ctx, c, entity, where, offset, pageSize)
		if err != nil {
			return nil, fmt.Errorf("list %s at offset %d: %w", entity, offset, err)
		}
		all = append(all, page...)
		if len(page) < pageSize {
			return all, nil
		}
	}
}
