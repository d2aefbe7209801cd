// Package sqlpoints serves point layers stored in an address-monitor style
// table: one row per point, with integer spherical Mercator coordinates in
// two columns.
package sqlpoints

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"math"
	"strings"

	"github.com/jackc/pgx/v5"
	_ "github.com/jackc/pgx/v5/stdlib" // registers the "pgx" database/sql driver
	"github.com/paulmach/orb"

	"github.com/mohammed-shakir/mercator-pick/internal/core/model"
	"github.com/mohammed-shakir/mercator-pick/internal/core/projection"
)

type Table struct {
	Name     string
	IDColumn string
	XColumn  string
	YColumn  string
	// Definition is an optional SQL filter ANDed to every query.
	Definition string
	// Radius the stored coordinates were projected with.
	Radius float64
}

// DefaultTable mirrors the address-monitor index table layout.
func DefaultTable(name string) Table {
	return Table{
		Name:     name,
		IDColumn: "AUTOINC",
		XColumn:  "X",
		YColumn:  "Y",
		Radius:   projection.SphereRadius,
	}
}

// Provider holds a shared pool; Open pins one connection for the duration
// of a query and Close hands it back. A Provider serves one query at a
// time, use Clone for concurrent callers.
type Provider struct {
	db    *sql.DB
	table Table
	conn  *sql.Conn
}

// OpenDB opens a pool through pgx's database/sql driver.
func OpenDB(dsn string) (*sql.DB, error) {
	if strings.TrimSpace(dsn) == "" {
		return nil, errors.New("sqlpoints: dsn is required")
	}
	db, err := sql.Open("pgx", dsn)
	if err != nil {
		return nil, fmt.Errorf("sqlpoints: open: %w", err)
	}
	return db, nil
}

func New(db *sql.DB, t Table) (*Provider, error) {
	if db == nil {
		return nil, errors.New("sqlpoints: db is nil")
	}
	if t.Name == "" || t.XColumn == "" || t.YColumn == "" {
		return nil, errors.New("sqlpoints: table name and coordinate columns are required")
	}
	if !(t.Radius > 0) {
		return nil, fmt.Errorf("sqlpoints: invalid radius %v", t.Radius)
	}
	return &Provider{db: db, table: t}, nil
}

// Clone returns an unopened provider over the same pool and table.
func (p *Provider) Clone() *Provider {
	return &Provider{db: p.db, table: p.table}
}

func (p *Provider) Open(ctx context.Context) error {
	if p.conn != nil {
		return errors.New("sqlpoints: already open")
	}
	c, err := p.db.Conn(ctx)
	if err != nil {
		return fmt.Errorf("sqlpoints: acquire conn: %w", err)
	}
	p.conn = c
	return nil
}

func (p *Provider) Close() error {
	if p.conn == nil {
		return nil
	}
	err := p.conn.Close()
	p.conn = nil
	if err != nil {
		return fmt.Errorf("sqlpoints: release conn: %w", err)
	}
	return nil
}

// Query returns rows inside env ordered by Y descending, so points further
// south are drawn (and picked) on top.
func (p *Provider) Query(ctx context.Context, env model.Envelope) ([]model.Feature, error) {
	if p.conn == nil {
		return nil, errors.New("sqlpoints: query on closed provider")
	}
	stmt, args := p.table.intersectionQuery(env)

	rows, err := p.conn.QueryContext(ctx, stmt, args...)
	if err != nil {
		return nil, fmt.Errorf("sqlpoints: query %s: %w", p.table.Name, err)
	}
	defer rows.Close()

	cols, err := rows.Columns()
	if err != nil {
		return nil, fmt.Errorf("sqlpoints: columns: %w", err)
	}

	var out []model.Feature
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, fmt.Errorf("sqlpoints: scan: %w", err)
		}
		out = append(out, p.table.feature(cols, vals))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("sqlpoints: rows: %w", err)
	}
	return out, nil
}

func (t Table) intersectionQuery(env model.Envelope) (string, []any) {
	m := projection.EnvelopeToMercator(env, t.Radius)
	x, y := ident(t.XColumn), ident(t.YColumn)

	var b strings.Builder
	b.WriteString("SELECT * FROM ")
	b.WriteString(ident(t.Name))
	b.WriteString(" WHERE ")
	if t.Definition != "" {
		b.WriteString("(")
		b.WriteString(t.Definition)
		b.WriteString(") AND ")
	}
	fmt.Fprintf(&b, "%s BETWEEN $1 AND $2 AND %s BETWEEN $3 AND $4 ORDER BY %s DESC", x, y, y)

	args := []any{
		int64(math.Floor(m.MinX)), int64(math.Ceil(m.MaxX)),
		int64(math.Floor(m.MinY)), int64(math.Ceil(m.MaxY)),
	}
	return b.String(), args
}

// feature maps every column to an attribute and derives the point from the
// coordinate columns. Rows with NULL coordinates get no geometry.
func (t Table) feature(cols []string, vals []any) model.Feature {
	attrs := make(map[string]any, len(cols))
	var (
		x, y       float64
		hasX, hasY bool
	)
	for i, c := range cols {
		v := vals[i]
		if b, ok := v.([]byte); ok {
			v = string(b)
		}
		attrs[c] = v
		switch {
		case strings.EqualFold(c, t.XColumn):
			x, hasX = toFloat(v)
		case strings.EqualFold(c, t.YColumn):
			y, hasY = toFloat(v)
		}
	}

	f := model.Feature{Attributes: attrs}
	if hasX && hasY {
		f.Geometry = projection.ToGeographic(orb.Point{x, y}, t.Radius)
	}
	return f
}

func toFloat(v any) (float64, bool) {
	switch n := v.(type) {
	case int64:
		return float64(n), true
	case int32:
		return float64(n), true
	case int:
		return float64(n), true
	case float64:
		return n, true
	case float32:
		return float64(n), true
	default:
		return 0, false
	}
}

func ident(name string) string {
	return pgx.Identifier{name}.Sanitize()
}
