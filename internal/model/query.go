package model

import (
	"errors"
	"fmt"
	"math"
	"net/url"
	"strconv"
	"strings"
)

const (
	DefaultListLimit = 20
	MaxListLimit     = 200
	// MaxListOffset bounds (page-1)*limit so the offset fits every store.
	MaxListOffset = math.MaxInt32
)

// SortableFields maps public sort keys to identity columns.
var SortableFields = map[string]string{
	"created_at": "created_at",
	"updated_at": "updated_at",
	"name":       "name",
	"email":      "email",
	"role":       "role",
}

type SortField struct {
	Column     string
	Descending bool
}

// ListQuery describes an administrative identity listing.
type ListQuery struct {
	Role   *Role
	Active *bool
	Email  string
	Sort   []SortField
	Page   int
	Limit  int
}

func (q ListQuery) Offset() int {
	return (q.Page - 1) * q.Limit
}

// ParseListQuery reads filters, sort and paging from query parameters.
// sort is a comma separated list where a leading "-" means descending;
// the default order is newest first.
func ParseListQuery(values url.Values) (ListQuery, error) {
	page, err := parsePositive("page", values.Get("page"), 1)
	if err != nil {
		return ListQuery{}, err
	}
	limit, err := parsePositive("limit", values.Get("limit"), DefaultListLimit)
	if err != nil {
		return ListQuery{}, err
	}

	query := ListQuery{
		Page:  page,
		Limit: min(limit, MaxListLimit),
		Email: NormalizeEmail(values.Get("email")),
	}
	if query.Page-1 > MaxListOffset/query.Limit {
		return ListQuery{}, fmt.Errorf("page %d is out of range", query.Page)
	}

	if raw := strings.TrimSpace(values.Get("role")); raw != "" {
		role, ok := ParseRole(raw)
		if !ok {
			return ListQuery{}, fmt.Errorf("unknown role %q", raw)
		}
		query.Role = &role
	}

	if raw := strings.TrimSpace(values.Get("active")); raw != "" {
		active, err := strconv.ParseBool(raw)
		if err != nil {
			return ListQuery{}, fmt.Errorf("active must be a boolean")
		}
		query.Active = &active
	}

	rawSort := strings.TrimSpace(values.Get("sort"))
	if rawSort == "" {
		rawSort = "-created_at"
	}
	for _, part := range strings.Split(rawSort, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		descending := strings.HasPrefix(part, "-")
		column, ok := SortableFields[strings.TrimPrefix(part, "-")]
		if !ok {
			return ListQuery{}, fmt.Errorf("cannot sort by %q", strings.TrimPrefix(part, "-"))
		}
		query.Sort = append(query.Sort, SortField{Column: column, Descending: descending})
	}

	return query, nil
}

// parsePositive falls back on blank, malformed or non-positive input and
// only refuses numbers too large to represent.
func parsePositive(name string, raw string, fallback int) (int, error) {
	v, err := strconv.Atoi(strings.TrimSpace(raw))
	if errors.Is(err, strconv.ErrRange) {
		return 0, fmt.Errorf("%s is out of range", name)
	}
	if err != nil || v <= 0 {
		return fallback, nil
	}
	return v, nil
}
