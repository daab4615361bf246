package catalog

import (
	"fmt"
	"strings"
)

// TableKind names a logical table of the media catalog.
type TableKind string

const (
	TableContents   TableKind = "contents"
	TableEpisodes   TableKind = "episodes"
	TableBanners    TableKind = "banners"
	TableCategories TableKind = "categories"
)

// ParseTableKind validates a table name received from a caller.
func ParseTableKind(s string) (TableKind, error) {
	switch k := TableKind(strings.ToLower(strings.TrimSpace(s))); k {
	case TableContents, TableEpisodes, TableBanners, TableCategories:
		return k, nil
	default:
		return "", fmt.Errorf("%w: %q", ErrUnknownTable, s)
	}
}

// Row is a remote record. Field names and meaning depend on the table.
type Row struct {
	ID     int
	Fields map[string]any
}

// String returns the named field as a string, or "" when it is absent
// or not textual.
func (r Row) String(field string) string {
	if r.Fields == nil {
		return ""
	}
	s, _ := r.Fields[field].(string)
	return s
}

// Page is one page of a paginated listing.
type Page struct {
	Rows    []Row
	Count   int
	HasNext bool
}

// FilterOp is a server-side comparison.
type FilterOp string

const (
	FilterEqual    FilterOp = "equal"
	FilterContains FilterOp = "contains"
)

// Filter restricts a listing to rows whose field matches value.
type Filter struct {
	Field string
	Op    FilterOp
	Value string
}

// ListOptions selects a page of rows. Page numbers start at 1.
type ListOptions struct {
	Page    int
	Size    int
	Filters []Filter
}
