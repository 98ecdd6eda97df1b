package store

import (
	"context"
	"fmt"
	"regexp"
	"strings"

	"github.com/untoldecay/shelfbot/internal/types"
)

// maxSearchTerms bounds the conjunction so a pasted paragraph cannot blow up
// the FTS query planner.
const maxSearchTerms = 8

var searchTermRE = regexp.MustCompile(`[0-9A-Za-z\x{0400}-\x{04FF}]+`)

// SearchCatalog matches the query against the full-text mirror of
// (title, path), ordered by relevance, folders before files, then title.
// When the mirror is unavailable (schema skew, corruption) the query falls
// back transparently to a case-insensitive substring scan over both title
// and path.
func (s *Store) SearchCatalog(ctx context.Context, query string, limit, offset int) ([]*types.CatalogItem, error) {
	match := ftsQuery(query)
	if match == "" {
		return nil, nil
	}

	items, err := s.searchFTS(ctx, match, limit, offset)
	if err == nil {
		return items, nil
	}
	return s.searchLike(ctx, query, limit, offset)
}

func (s *Store) searchFTS(ctx context.Context, match string, limit, offset int) ([]*types.CatalogItem, error) {
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+prefixed(itemColumns, "ci.")+`
		FROM catalog_fts f
		JOIN catalog_items ci ON ci.id = f.rowid
		WHERE catalog_fts MATCH ? AND ci.is_deleted = 0
		ORDER BY bm25(catalog_fts), ci.kind DESC, ci.title COLLATE NOCASE ASC
		LIMIT ? OFFSET ?`,
		match, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("fts search failed: %w", err)
	}
	defer rows.Close()

	var out []*types.CatalogItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

func (s *Store) searchLike(ctx context.Context, query string, limit, offset int) ([]*types.CatalogItem, error) {
	like := "%" + escapeLike(strings.TrimSpace(query)) + "%"
	rows, err := s.db.QueryContext(ctx,
		`SELECT `+itemColumns+` FROM catalog_items
		WHERE is_deleted = 0 AND (title LIKE ? ESCAPE '\' OR path LIKE ? ESCAPE '\')
		ORDER BY kind DESC, title COLLATE NOCASE ASC
		LIMIT ? OFFSET ?`,
		like, like, limit, offset)
	if err != nil {
		return nil, fmt.Errorf("substring search failed: %w", err)
	}
	defer rows.Close()

	var out []*types.CatalogItem
	for rows.Next() {
		it, err := scanItem(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan search row: %w", err)
		}
		out = append(out, it)
	}
	return out, rows.Err()
}

// ftsQuery tokenizes free text into alphanumeric and Cyrillic terms, caps
// them at maxSearchTerms, appends a prefix wildcard to each and joins with
// AND. Returns "" when no usable terms remain.
func ftsQuery(query string) string {
	terms := searchTermRE.FindAllString(query, maxSearchTerms)
	if len(terms) == 0 {
		return ""
	}
	quoted := make([]string, len(terms))
	for i, t := range terms {
		quoted[i] = `"` + t + `"*`
	}
	return strings.Join(quoted, " AND ")
}

// prefixed qualifies each column of a comma-separated list with the given
// table alias.
func prefixed(columns, alias string) string {
	parts := strings.Split(columns, ", ")
	for i, p := range parts {
		parts[i] = alias + p
	}
	return strings.Join(parts, ", ")
}
