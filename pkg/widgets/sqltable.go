package widgets

import (
	"context"
	"database/sql"
	"fmt"
	"math"
	"sort"
	"strconv"
	"strings"

	_ "github.com/mattn/go-sqlite3"

	"github.com/rmax-ai/signalflow/pkg/data"
	"github.com/rmax-ai/signalflow/pkg/flow"
)

const (
	KindSQLTable = "sql_table"

	// MaxDownloadRows caps the rows read into memory.
	MaxDownloadRows = 1000000
	// maxGuessedValues is the largest number of distinct labels a text
	// column may have to be read as a discrete variable.
	maxGuessedValues = 20
)

type sqlSettings struct {
	Database         string `yaml:"database"`
	Table            string `yaml:"table,omitempty"`
	SQL              string `yaml:"sql,omitempty"`
	Materialize      bool   `yaml:"materialize,omitempty"`
	MaterializeTable string `yaml:"materialize_table,omitempty"`
	GuessValues      bool   `yaml:"guess_values"`
	Class            string `yaml:"class,omitempty"`
	Limit            int    `yaml:"limit,omitempty"`
}

// SQLTable loads a table, or the result of a custom query, from a sqlite
// database. A custom query can be materialized into a table first.
type SQLTable struct {
	stateful
	settings sqlSettings
}

func NewSQLTable(settings map[string]any) (*SQLTable, error) {
	w := &SQLTable{settings: sqlSettings{GuessValues: true, Limit: MaxDownloadRows}}
	if err := decodeSettings(settings, &w.settings); err != nil {
		return nil, err
	}
	if err := w.settings.normalize(); err != nil {
		return nil, err
	}
	return w, nil
}

func (s *sqlSettings) normalize() error {
	if s.Materialize && s.MaterializeTable == "" {
		return fmt.Errorf("materialize requires materialize_table")
	}
	if s.Limit <= 0 || s.Limit > MaxDownloadRows {
		s.Limit = MaxDownloadRows
	}
	return nil
}

func (w *SQLTable) Kind() string { return KindSQLTable }

func (w *SQLTable) Signature() flow.Signature {
	return flow.Signature{Outputs: []flow.PortSpec{
		{Name: PortData, Type: flow.TypeTable, Doc: "rows read from the database"},
	}}
}

func (w *SQLTable) Settings() map[string]any { return encodeSettings(w.settings) }

// SetTable selects a database table.
func (w *SQLTable) SetTable(ctx context.Context, table string) error {
	return w.change(ctx, func() error {
		w.settings.Table, w.settings.SQL = table, ""
		return nil
	})
}

// SetQuery switches to a custom query.
func (w *SQLTable) SetQuery(ctx context.Context, query string) error {
	return w.change(ctx, func() error {
		w.settings.SQL = query
		return nil
	})
}

// UpdateSettings implements Tuner. Setting a table drops a custom query
// unless the same update sets one.
func (w *SQLTable) UpdateSettings(ctx context.Context, update map[string]any) error {
	return w.change(ctx, func() error {
		next, err := mergeSettings(w.settings, update)
		if err != nil {
			return err
		}
		_, hasTable := update["table"]
		if _, hasSQL := update["sql"]; hasTable && !hasSQL {
			next.SQL = ""
		}
		if err := next.normalize(); err != nil {
			return err
		}
		w.settings = next
		return nil
	})
}

// Tables lists the user tables of the configured database.
func (w *SQLTable) Tables(ctx context.Context) ([]string, error) {
	db, err := sql.Open("sqlite3", w.settings.Database)
	if err != nil {
		return nil, err
	}
	defer db.Close()
	rows, err := db.QueryContext(ctx,
		`SELECT name FROM sqlite_master WHERE type IN ('table','view') AND name NOT LIKE 'sqlite\_%' ESCAPE '\' ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()
	var names []string
	for rows.Next() {
		var n string
		if err := rows.Scan(&n); err != nil {
			return nil, err
		}
		names = append(names, n)
	}
	return names, rows.Err()
}

// Process sends nothing until a database and a table or query are set.
func (w *SQLTable) Process(ctx context.Context, _ flow.Inputs) (flow.Outputs, error) {
	s := w.settings
	if s.Database == "" || (s.Table == "" && s.SQL == "") {
		return flow.Outputs{}, nil
	}
	t, err := loadSQL(ctx, s)
	if err != nil {
		return nil, err
	}
	out := flow.Outputs{}
	out.Send(PortData, t)
	return out, nil
}

func loadSQL(ctx context.Context, s sqlSettings) (*data.Table, error) {
	db, err := sql.Open("sqlite3", s.Database)
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	defer db.Close()

	name, source := s.Table, quoteIdent(s.Table)
	if s.SQL != "" {
		name, source = "query", "("+s.SQL+")"
		if s.Materialize {
			mt := quoteIdent(s.MaterializeTable)
			if _, err := db.ExecContext(ctx, "DROP TABLE IF EXISTS "+mt); err != nil {
				return nil, fmt.Errorf("failed to drop %s: %w", s.MaterializeTable, err)
			}
			if _, err := db.ExecContext(ctx, "CREATE TABLE "+mt+" AS "+s.SQL); err != nil {
				return nil, fmt.Errorf("failed to materialize query: %w", err)
			}
			name, source = s.MaterializeTable, mt
		}
	}

	rows, err := db.QueryContext(ctx, fmt.Sprintf("SELECT * FROM %s LIMIT %d", source, s.Limit))
	if err != nil {
		return nil, fmt.Errorf("failed to query %s: %w", name, err)
	}
	defer rows.Close()
	cols, err := rows.Columns()
	if err != nil {
		return nil, err
	}
	var raw [][]any
	for rows.Next() {
		vals := make([]any, len(cols))
		ptrs := make([]any, len(cols))
		for i := range vals {
			ptrs[i] = &vals[i]
		}
		if err := rows.Scan(ptrs...); err != nil {
			return nil, err
		}
		raw = append(raw, vals)
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}

	loc := fmt.Sprintf("Table '%s' in database '%s'", name, s.Database)
	return buildFromColumns(name, loc, cols, raw, s.Class, s.GuessValues)
}

// column is a result column with its inferred variable.
type column struct {
	v       data.Variable
	numeric bool
	labels  map[string]int
}

func buildFromColumns(name, location string, cols []string, raw [][]any, class string, guess bool) (*data.Table, error) {
	inferred := make([]column, len(cols))
	for c, colName := range cols {
		numeric := true
		distinct := make(map[string]bool)
		for _, r := range raw {
			switch r[c].(type) {
			case nil, int64, float64:
			default:
				numeric = false
			}
		}
		if !numeric {
			for _, r := range raw {
				if r[c] != nil {
					distinct[textValue(r[c])] = true
				}
			}
		}
		switch {
		case numeric:
			inferred[c] = column{v: data.Continuous(colName), numeric: true}
		case guess && len(distinct) <= maxGuessedValues:
			values := make([]string, 0, len(distinct))
			for v := range distinct {
				values = append(values, v)
			}
			sort.Strings(values)
			idx := make(map[string]int, len(values))
			for i, v := range values {
				idx[v] = i
			}
			inferred[c] = column{v: data.Discrete(colName, values...), labels: idx}
		default:
			inferred[c] = column{v: data.String(colName)}
		}
	}

	var attrs, metas []data.Variable
	var attrCols, metaCols []int
	classCol := -1
	for c, col := range inferred {
		switch {
		case class != "" && strings.EqualFold(col.v.Name, class):
			if col.v.Kind == data.KindString {
				return nil, fmt.Errorf("class column %q holds text", class)
			}
			classCol = c
		case col.v.Kind == data.KindString:
			metas = append(metas, col.v)
			metaCols = append(metaCols, c)
		default:
			attrs = append(attrs, col.v)
			attrCols = append(attrCols, c)
		}
	}
	if class != "" && classCol < 0 {
		return nil, fmt.Errorf("no column %q", class)
	}
	var classVar *data.Variable
	if classCol >= 0 {
		classVar = &inferred[classCol].v
	}

	value := func(col column, v any) float64 {
		if v == nil {
			return math.NaN()
		}
		if !col.numeric {
			if i, ok := col.labels[textValue(v)]; ok {
				return float64(i)
			}
			return math.NaN()
		}
		switch x := v.(type) {
		case int64:
			return float64(x)
		case float64:
			return x
		}
		return math.NaN()
	}
	insts := make([]data.Instance, len(raw))
	for i, r := range raw {
		inst := data.Instance{X: make([]float64, len(attrCols)), Y: math.NaN()}
		for j, c := range attrCols {
			inst.X[j] = value(inferred[c], r[c])
		}
		if classCol >= 0 {
			inst.Y = value(inferred[classCol], r[classCol])
		}
		for _, c := range metaCols {
			inst.Metas = append(inst.Metas, textValue(r[c]))
		}
		insts[i] = inst
	}
	return data.New(name, data.NewDomain(attrs, classVar, metas...), insts, data.WithLocation(location))
}

func textValue(v any) string {
	switch x := v.(type) {
	case nil:
		return ""
	case []byte:
		return string(x)
	case string:
		return x
	case int64:
		return strconv.FormatInt(x, 10)
	case float64:
		return strconv.FormatFloat(x, 'g', -1, 64)
	}
	return fmt.Sprint(v)
}

func quoteIdent(name string) string {
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}
