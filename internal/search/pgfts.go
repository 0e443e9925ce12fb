package search

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
)

// PgFTS implements Searcher using PostgreSQL full-text search as a fallback.
type PgFTS struct {
	db *sql.DB
}

// NewPgFTS creates a PostgreSQL FTS searcher.
func NewPgFTS(db *sql.DB) *PgFTS {
	return &PgFTS{db: db}
}

// Healthy always returns true. If Postgres is down the whole app is down.
func (p *PgFTS) Healthy() bool {
	return true
}

// Search executes a UNION ALL query across documents and spaces using
// plainto_tsquery and ts_rank, with ts_headline for snippets.
func (p *PgFTS) Search(q Query) ([]Result, int, error) {
	if strings.TrimSpace(q.Text) == "" {
		return nil, 0, nil
	}

	limit := q.Limit
	if limit <= 0 {
		limit = 20
	}
	offset := q.Offset
	if offset < 0 {
		offset = 0
	}

	tsQuery := "plainto_tsquery('english', $1)"
	args := []any{q.Text}
	argN := 2

	var subQueries []string

	if q.FilterType == "" || q.FilterType == ResultDocument {
		docWhere := "d.fts @@ " + tsQuery + " AND d.deleted_at IS NULL"
		if q.FilterSpaceID != "" {
			docWhere += fmt.Sprintf(" AND d.space_id = $%d", argN)
			args = append(args, q.FilterSpaceID)
			argN++
		}
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'document'::text AS type, d.id, d.title,
				ts_headline('english', coalesce(d.content, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				coalesce(d.space_id, '') AS space_id,
				ts_rank(d.fts, %s) AS rank
			FROM documents d
			WHERE %s`, tsQuery, tsQuery, docWhere))
	}

	if (q.FilterType == "" || q.FilterType == ResultSpace) && q.FilterSpaceID == "" {
		subQueries = append(subQueries, fmt.Sprintf(`
			SELECT 'space'::text AS type, sp.id, sp.name AS title,
				ts_headline('english', coalesce(sp.description, ''), %s, 'MaxFragments=1,MaxWords=30') AS snippet,
				''::text AS space_id,
				ts_rank(to_tsvector('english', sp.name || ' ' || coalesce(sp.description, '')), %s) AS rank
			FROM spaces sp
			WHERE to_tsvector('english', sp.name || ' ' || coalesce(sp.description, '')) @@ %s`,
			tsQuery, tsQuery, tsQuery))
	}

	if len(subQueries) == 0 {
		return nil, 0, nil
	}

	countSQL := fmt.Sprintf("SELECT count(*) FROM (%s) sub",
		strings.Join(subQueries, " UNION ALL "))

	dataSQL := fmt.Sprintf(`SELECT type, id, title, snippet, space_id
		FROM (%s) sub
		ORDER BY rank DESC
		LIMIT %d OFFSET %d`,
		strings.Join(subQueries, " UNION ALL "),
		limit, offset)

	ctx := context.Background()

	var total int
	if err := p.db.QueryRowContext(ctx, countSQL, args...).Scan(&total); err != nil {
		return nil, 0, fmt.Errorf("pgfts count: %w", err)
	}

	rows, err := p.db.QueryContext(ctx, dataSQL, args...)
	if err != nil {
		return nil, 0, fmt.Errorf("pgfts query: %w", err)
	}
	defer rows.Close()

	var results []Result
	for rows.Next() {
		var r Result
		var typ string
		if err := rows.Scan(&typ, &r.ID, &r.Title, &r.Snippet, &r.SpaceID); err != nil {
			return nil, 0, fmt.Errorf("pgfts scan: %w", err)
		}
		r.Type = ResultType(typ)
		results = append(results, r)
	}

	return results, total, rows.Err()
}

// LoadAllRecords returns all searchable records for full reindexing.
func (p *PgFTS) LoadAllRecords(ctx context.Context) ([]DocumentRecord, []SpaceRecord, error) {
	docRows, err := p.db.QueryContext(ctx, `
		SELECT id, title, content, coalesce(space_id, '')
		FROM documents
		WHERE deleted_at IS NULL
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load documents: %w", err)
	}
	defer docRows.Close()

	documents := make([]DocumentRecord, 0)
	for docRows.Next() {
		var d DocumentRecord
		if err := docRows.Scan(&d.ID, &d.Title, &d.Content, &d.SpaceID); err != nil {
			return nil, nil, fmt.Errorf("scan document: %w", err)
		}
		documents = append(documents, d)
	}
	if err := docRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate documents: %w", err)
	}

	spaceRows, err := p.db.QueryContext(ctx, `
		SELECT id, name, coalesce(description, '')
		FROM spaces
	`)
	if err != nil {
		return nil, nil, fmt.Errorf("load spaces: %w", err)
	}
	defer spaceRows.Close()

	spaces := make([]SpaceRecord, 0)
	for spaceRows.Next() {
		var sp SpaceRecord
		if err := spaceRows.Scan(&sp.ID, &sp.Name, &sp.Description); err != nil {
			return nil, nil, fmt.Errorf("scan space: %w", err)
		}
		spaces = append(spaces, sp)
	}
	if err := spaceRows.Err(); err != nil {
		return nil, nil, fmt.Errorf("iterate spaces: %w", err)
	}

	return documents, spaces, nil
}
