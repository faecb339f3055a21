package pagination

import (
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 50
)

// Params holds page-based pagination parameters extracted from a request.
type Params struct {
	Page  int
	Limit int
}

// Normalize coerces page to >= 1 and limit into [1, MaxLimit], applying the
// default limit when unset.
func (p Params) Normalize() Params {
	if p.Page < 1 {
		p.Page = 1
	}
	if p.Limit <= 0 {
		p.Limit = DefaultLimit
	}
	if p.Limit > MaxLimit {
		p.Limit = MaxLimit
	}
	return p
}

// FromContext extracts page/limit query parameters from the echo context.
func FromContext(c echo.Context) Params {
	page, _ := strconv.Atoi(c.QueryParam("page"))
	limit, _ := strconv.Atoi(c.QueryParam("limit"))
	return Params{Page: page, Limit: limit}.Normalize()
}

// Offset returns the row offset for SQL queries.
func (p Params) Offset() int {
	return (p.Page - 1) * p.Limit
}

// Meta describes the position of a page within the full result set.
type Meta struct {
	Page    int  `json:"page"`
	Limit   int  `json:"limit"`
	Total   int  `json:"total"`
	Pages   int  `json:"pages"`
	HasNext bool `json:"hasNext"`
	HasPrev bool `json:"hasPrev"`
}

// NewMeta computes page metadata for a total row count.
func NewMeta(p Params, total int) Meta {
	pages := 0
	if total > 0 {
		pages = (total + p.Limit - 1) / p.Limit
	}
	return Meta{
		Page:    p.Page,
		Limit:   p.Limit,
		Total:   total,
		Pages:   pages,
		HasNext: p.Page < pages,
		HasPrev: p.Page > 1 && total > 0,
	}
}

// Response wraps a paginated API response.
type Response struct {
	Data       interface{} `json:"data"`
	Pagination Meta        `json:"pagination"`
}

func NewResponse(data interface{}, p Params, total int) *Response {
	return &Response{Data: data, Pagination: NewMeta(p, total)}
}
