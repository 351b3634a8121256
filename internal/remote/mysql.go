// Package remote writes queued operations to the hosted relational database.
package remote

import (
	"context"
	"database/sql"
	"encoding/json"
	"errors"
	"fmt"
	"regexp"
	"sort"
	"strings"

	"trakn-sync-service/internal/config"
	"trakn-sync-service/internal/queue"
)

var (
	ErrUnknownTable  = errors.New("table is not synchronized")
	ErrInvalidColumn = errors.New("invalid column name")
)

var identRe = regexp.MustCompile(`^[A-Za-z_][A-Za-z0-9_]*$`)

type MySQLStore struct {
	db     *sql.DB
	tables map[string]config.TableConfig
}

func NewMySQLStore(db *sql.DB, tables []config.TableConfig) *MySQLStore {
	m := make(map[string]config.TableConfig, len(tables))
	for _, t := range tables {
		if t.PrimaryKey == "" {
			t.PrimaryKey = "id"
		}
		m[t.Name] = t
	}
	return &MySQLStore{db: db, tables: m}
}

func (s *MySQLStore) Ping(ctx context.Context) error {
	return s.db.PingContext(ctx)
}

// Validate reports whether record could ever be written to table: the table must be
// synchronized and every field a plain column name.
func (s *MySQLStore) Validate(table string, record queue.Record) error {
	if _, err := s.table(table); err != nil {
		return err
	}
	_, err := columns(record, "")
	return err
}

// IsInvalid reports whether err means the write is malformed rather than undeliverable.
func IsInvalid(err error) bool {
	return errors.Is(err, ErrUnknownTable) || errors.Is(err, ErrInvalidColumn)
}

func (s *MySQLStore) Insert(ctx context.Context, table string, record queue.Record) error {
	query, args, err := s.insertQuery(table, record)
	if err != nil {
		return err
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *MySQLStore) Update(ctx context.Context, table, id string, record queue.Record) error {
	query, args, err := s.updateQuery(table, id, record)
	if err != nil {
		return err
	}
	if query == "" {
		return nil
	}
	_, err = s.db.ExecContext(ctx, query, args...)
	return err
}

func (s *MySQLStore) Delete(ctx context.Context, table, id string) error {
	t, err := s.table(table)
	if err != nil {
		return err
	}
	query := fmt.Sprintf("DELETE FROM %s WHERE %s = ?", quote(t.Name), quote(t.PrimaryKey))
	_, err = s.db.ExecContext(ctx, query, id)
	return err
}

func (s *MySQLStore) insertQuery(table string, record queue.Record) (string, []interface{}, error) {
	t, err := s.table(table)
	if err != nil {
		return "", nil, err
	}

	cols, err := columns(record, "")
	if err != nil {
		return "", nil, err
	}
	if len(cols) == 0 {
		return "", nil, fmt.Errorf("insert into %s: empty record", table)
	}

	quoted := make([]string, len(cols))
	args := make([]interface{}, len(cols))
	for i, c := range cols {
		quoted[i] = quote(c)
		if args[i], err = value(record[c]); err != nil {
			return "", nil, err
		}
	}

	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)",
		quote(t.Name), strings.Join(quoted, ", "), strings.TrimSuffix(strings.Repeat("?, ", len(cols)), ", "))
	return query, args, nil
}

// updateQuery returns an empty query when the record carries nothing but its key.
func (s *MySQLStore) updateQuery(table, id string, record queue.Record) (string, []interface{}, error) {
	t, err := s.table(table)
	if err != nil {
		return "", nil, err
	}

	cols, err := columns(record, t.PrimaryKey)
	if err != nil {
		return "", nil, err
	}
	if len(cols) == 0 {
		return "", nil, nil
	}

	sets := make([]string, len(cols))
	args := make([]interface{}, 0, len(cols)+1)
	for i, c := range cols {
		sets[i] = quote(c) + " = ?"
		v, err := value(record[c])
		if err != nil {
			return "", nil, err
		}
		args = append(args, v)
	}
	args = append(args, id)

	query := fmt.Sprintf("UPDATE %s SET %s WHERE %s = ?",
		quote(t.Name), strings.Join(sets, ", "), quote(t.PrimaryKey))
	return query, args, nil
}

func (s *MySQLStore) table(name string) (config.TableConfig, error) {
	t, ok := s.tables[name]
	if !ok {
		return config.TableConfig{}, fmt.Errorf("%w: %q", ErrUnknownTable, name)
	}
	return t, nil
}

// columns returns the record's field names in a stable order, minus skip ("id" is skipped
// for updates as well since it only addresses the row).
func columns(record queue.Record, skip string) ([]string, error) {
	cols := make([]string, 0, len(record))
	for k := range record {
		if skip != "" && (k == skip || k == "id") {
			continue
		}
		if !identRe.MatchString(k) {
			return nil, fmt.Errorf("%w: %q", ErrInvalidColumn, k)
		}
		cols = append(cols, k)
	}
	sort.Strings(cols)
	return cols, nil
}

// value converts decoded JSON into something the MySQL driver accepts. Objects and arrays
// are stored as JSON text.
func value(v interface{}) (interface{}, error) {
	switch v.(type) {
	case map[string]interface{}, []interface{}:
		b, err := json.Marshal(v)
		if err != nil {
			return nil, err
		}
		return string(b), nil
	default:
		return v, nil
	}
}

func quote(ident string) string {
	return "`" + ident + "`"
}
