package api

import (
	"encoding/json"
	"net/http"
	"net/url"
	"strconv"

	"github.com/diwise/farm-operations/pkg/types"
)

type meta struct {
	TotalRecords uint64  `json:"totalRecords"`
	Offset       *uint64 `json:"offset,omitempty"`
	Limit        *uint64 `json:"limit,omitempty"`
	Count        uint64  `json:"count"`
}

type links struct {
	Self  *string `json:"self,omitempty"`
	First *string `json:"first,omitempty"`
	Prev  *string `json:"prev,omitempty"`
	Next  *string `json:"next,omitempty"`
	Last  *string `json:"last,omitempty"`
}

type ApiResponse struct {
	Meta  *meta  `json:"meta,omitempty"`
	Data  any    `json:"data"`
	Links *links `json:"links,omitempty"`
}

func (r ApiResponse) Byte() []byte {
	b, _ := json.Marshal(r)
	return b
}

type ApiError struct {
	Status  int    `json:"status"`
	Message string `json:"message"`
}

func (e ApiError) Byte() []byte {
	b, _ := json.Marshal(e)
	return b
}

// page wraps a collection with paging metadata and, when the collection was
// limited, links to the neighbouring pages.
func page[T any](r *http.Request, c types.Collection[T]) ApiResponse {
	response := ApiResponse{
		Meta: &meta{
			TotalRecords: c.TotalCount,
			Count:        c.Count,
		},
		Data: c.Data,
	}

	if c.Limit == 0 {
		return response
	}

	response.Meta.Offset = &c.Offset
	response.Meta.Limit = &c.Limit

	link := func(offset uint64) *string {
		u := url.URL{Path: r.URL.Path}
		q := r.URL.Query()
		q.Set("offset", strconv.FormatUint(offset, 10))
		q.Set("limit", strconv.FormatUint(c.Limit, 10))
		u.RawQuery = q.Encode()
		s := u.String()
		return &s
	}

	l := &links{
		Self:  link(c.Offset),
		First: link(0),
	}

	if c.Offset > 0 {
		prev := uint64(0)
		if c.Offset > c.Limit {
			prev = c.Offset - c.Limit
		}
		l.Prev = link(prev)
	}

	if c.Offset+c.Count < c.TotalCount {
		l.Next = link(c.Offset + c.Limit)
	}

	if c.TotalCount > 0 {
		l.Last = link(((c.TotalCount - 1) / c.Limit) * c.Limit)
	}

	response.Links = l

	return response
}
