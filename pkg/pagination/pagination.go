package pagination

import (
	"fmt"
	"math"
	"net/url"
	"strconv"

	"github.com/labstack/echo/v4"
)

const (
	DefaultLimit = 20
	MaxLimit     = 100
	// MaxOffset keeps Offset+Limit from overflowing. No table holds more rows.
	MaxOffset = math.MaxInt32
)

// Params holds pagination parameters extracted from a request. A zero Limit
// means "everything".
type Params struct {
	Limit  int
	Offset int
}

// Paged reports whether p restricts the result set.
func (p Params) Paged() bool {
	return p.Limit > 0
}

// FromContext reads ?limit= and ?offset=. Requests without either get the
// zero Params. Non-numeric or negative values, and offsets past MaxOffset, are
// an error; limit is capped at MaxLimit and defaults to DefaultLimit when only
// offset is given.
func FromContext(c echo.Context) (Params, error) {
	rawLimit, rawOffset := c.QueryParam("limit"), c.QueryParam("offset")
	if rawLimit == "" && rawOffset == "" {
		return Params{}, nil
	}

	p := Params{Limit: DefaultLimit}
	if rawLimit != "" {
		n, err := strconv.Atoi(rawLimit)
		if err != nil || n <= 0 {
			return Params{}, fmt.Errorf("limit must be a positive integer")
		}
		p.Limit = min(n, MaxLimit)
	}
	if rawOffset != "" {
		n, err := strconv.Atoi(rawOffset)
		if err != nil || n < 0 {
			return Params{}, fmt.Errorf("offset must be a non-negative integer")
		}
		if n > MaxOffset {
			return Params{}, fmt.Errorf("offset must not exceed %d", MaxOffset)
		}
		p.Offset = n
	}
	return p, nil
}

// HasNext returns true if there are more results after the current page.
func (p Params) HasNext(total int) bool {
	return p.Paged() && p.Limit < total-p.Offset
}

// HasPrevious returns true if there are results before the current page.
func (p Params) HasPrevious() bool {
	return p.Paged() && p.Offset > 0
}

// NextOffset returns the offset for the next page.
func (p Params) NextOffset() int {
	return p.Offset + p.Limit
}

// PreviousOffset returns the offset for the previous page, never negative.
func (p Params) PreviousOffset() int {
	return max(p.Offset-p.Limit, 0)
}

// SetHeaders writes X-Total-Count and, for paged requests, an RFC 8288 Link
// header with next/prev relations.
func SetHeaders(c echo.Context, p Params, total int) {
	h := c.Response().Header()
	h.Set("X-Total-Count", strconv.Itoa(total))
	if !p.Paged() {
		return
	}

	path := c.Request().URL.Path
	var links []string
	if p.HasNext(total) {
		links = append(links, link(path, p.Limit, p.NextOffset(), "next"))
	}
	if p.HasPrevious() {
		links = append(links, link(path, p.Limit, p.PreviousOffset(), "prev"))
	}
	for _, l := range links {
		h.Add("Link", l)
	}
}

func link(path string, limit, offset int, rel string) string {
	q := url.Values{}
	q.Set("limit", strconv.Itoa(limit))
	q.Set("offset", strconv.Itoa(offset))
	return fmt.Sprintf(`<%s?%s>; rel="%s"`, path, q.Encode(), rel)
}
