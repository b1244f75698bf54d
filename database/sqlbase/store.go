package sqlbase

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/jing2uo/rufeng/model"
	"github.com/jmoiron/sqlx"
)

// Dialect supplies the engine specific SQL.
type Dialect interface {
	Name() string
	CreateTableSQL(meta *model.TableMeta) string
	InsertSQL(meta *model.TableMeta) string
	// TableRef is how a table is referenced in reads, e.g. "t FINAL".
	TableRef(table string) string
	Views() map[model.ViewID][]string
}

// Store implements the repository on top of sqlx for any Dialect.
type Store struct {
	db      *sqlx.DB
	dialect Dialect

	tx    *sqlx.Tx
	stmts map[string]*sqlx.Stmt
}

func New(dialect Dialect) *Store {
	return &Store{dialect: dialect, stmts: make(map[string]*sqlx.Stmt)}
}

// Attach hands an opened connection pool to the store.
func (s *Store) Attach(db *sqlx.DB) {
	s.db = db
}

func (s *Store) DB() *sqlx.DB {
	return s.db
}

func (s *Store) Close() error {
	if s.db == nil {
		return nil
	}
	if s.tx != nil {
		s.closeStmts()
		_ = s.tx.Rollback()
		s.tx = nil
	}
	return s.db.Close()
}

func (s *Store) InitSchema() error {
	for _, t := range model.AllTables() {
		if _, err := s.db.Exec(s.dialect.CreateTableSQL(t)); err != nil {
			return fmt.Errorf("failed to create table %s: %w", t.TableName, err)
		}
	}

	impls := s.dialect.Views()
	for _, viewID := range model.AllViews() {
		stmts, exists := impls[viewID]
		if !exists {
			return fmt.Errorf("[%s] missing implementation for required view: %s", s.dialect.Name(), viewID)
		}
		for _, q := range stmts {
			if _, err := s.db.Exec(q); err != nil {
				return fmt.Errorf("failed to create view %s: %w", viewID, err)
			}
		}
	}
	return nil
}

func (s *Store) DropSchema() error {
	for _, viewID := range model.AllViews() {
		if _, err := s.db.Exec(fmt.Sprintf("DROP VIEW IF EXISTS %s", viewID)); err != nil {
			return fmt.Errorf("failed to drop view %s: %w", viewID, err)
		}
	}
	for _, t := range model.AllTables() {
		if _, err := s.db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", t.TableName)); err != nil {
			return fmt.Errorf("failed to drop table %s: %w", t.TableName, err)
		}
	}
	return nil
}

// stmt returns the prepared insert for meta inside the pending transaction,
// opening the transaction on first use.
func (s *Store) stmt(meta *model.TableMeta) (*sqlx.Stmt, error) {
	if s.tx == nil {
		tx, err := s.db.Beginx()
		if err != nil {
			return nil, fmt.Errorf("failed to begin transaction: %w", err)
		}
		s.tx = tx
	}
	if st, ok := s.stmts[meta.TableName]; ok {
		return st, nil
	}
	st, err := s.tx.Preparex(s.dialect.InsertSQL(meta))
	if err != nil {
		return nil, fmt.Errorf("failed to prepare insert into %s: %w", meta.TableName, err)
	}
	s.stmts[meta.TableName] = st
	return st, nil
}

func (s *Store) write(meta *model.TableMeta, row interface{}) error {
	st, err := s.stmt(meta)
	if err != nil {
		return err
	}
	if _, err := st.Exec(meta.Values(row)...); err != nil {
		return fmt.Errorf("failed to write %s row: %w", meta.TableName, err)
	}
	return nil
}

func (s *Store) WriteStock(stock *model.Stock) error {
	return s.write(model.TableStocks, stock)
}

func (s *Store) WriteIndex(index *model.Index) error {
	return s.write(model.TableIndexes, index)
}

func (s *Store) WriteQuotes(quotes []model.Quote) error {
	for i := range quotes {
		if err := s.write(model.TableQuotesDaily, &quotes[i]); err != nil {
			return err
		}
	}
	return nil
}

func (s *Store) closeStmts() {
	for name, st := range s.stmts {
		_ = st.Close()
		delete(s.stmts, name)
	}
}

// Commit flushes the pending transaction; it is a no-op when nothing is staged.
func (s *Store) Commit() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil

	// ClickHouse sends the batch on commit, statements must stay open until then
	err := tx.Commit()
	s.closeStmts()
	if err != nil {
		return fmt.Errorf("failed to commit: %w", err)
	}
	return nil
}

// Rollback discards everything staged since the last Commit.
func (s *Store) Rollback() error {
	if s.tx == nil {
		return nil
	}
	tx := s.tx
	s.tx = nil

	s.closeStmts()
	if err := tx.Rollback(); err != nil {
		return fmt.Errorf("failed to rollback: %w", err)
	}
	return nil
}

func (s *Store) selectCols(meta *model.TableMeta) string {
	return strings.Join(meta.ColumnNames(), ", ")
}

func (s *Store) ReadAllStocks() ([]*model.Stock, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY symbol",
		s.selectCols(model.TableStocks), s.dialect.TableRef(model.TableStocks.TableName))

	var stocks []*model.Stock
	if err := s.db.Select(&stocks, query); err != nil {
		return nil, fmt.Errorf("failed to query stocks: %w", err)
	}
	return stocks, nil
}

func (s *Store) ReadAllIndexes() ([]*model.Index, error) {
	query := fmt.Sprintf("SELECT %s FROM %s ORDER BY symbol",
		s.selectCols(model.TableIndexes), s.dialect.TableRef(model.TableIndexes.TableName))

	var indexes []*model.Index
	if err := s.db.Select(&indexes, query); err != nil {
		return nil, fmt.Errorf("failed to query indexes: %w", err)
	}
	return indexes, nil
}

func dateRange(startDate, endDate *time.Time) ([]string, []interface{}) {
	var conditions []string
	var args []interface{}
	if startDate != nil {
		conditions = append(conditions, "date >= ?")
		args = append(args, model.Day(*startDate))
	}
	if endDate != nil {
		conditions = append(conditions, "date <= ?")
		args = append(args, model.Day(*endDate))
	}
	return conditions, args
}

func (s *Store) readQuotes(from string, symbol string, startDate, endDate *time.Time) ([]model.Quote, error) {
	conditions, args := dateRange(startDate, endDate)
	conditions = append([]string{"symbol = ?"}, conditions...)
	args = append([]interface{}{symbol}, args...)

	query := fmt.Sprintf(
		`SELECT %s FROM %s WHERE %s ORDER BY date ASC`,
		s.selectCols(model.TableQuotesDaily),
		from,
		strings.Join(conditions, " AND "),
	)

	var results []model.Quote
	if err := s.db.Select(&results, query, args...); err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	return results, nil
}

func (s *Store) ReadQuotes(symbol string, startDate, endDate *time.Time) ([]model.Quote, error) {
	return s.readQuotes(s.dialect.TableRef(model.TableQuotesDaily.TableName), symbol, startDate, endDate)
}

func (s *Store) ReadQFQQuotes(symbol string, startDate, endDate *time.Time) ([]model.Quote, error) {
	return s.readQuotes(string(model.ViewDailyQFQ), symbol, startDate, endDate)
}

// ReadAllQuotes loads every stored bar grouped by symbol, date ascending.
func (s *Store) ReadAllQuotes(startDate *time.Time) (map[string][]model.Quote, error) {
	conditions, args := dateRange(startDate, nil)
	where := ""
	if len(conditions) > 0 {
		where = " WHERE " + strings.Join(conditions, " AND ")
	}
	query := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY symbol, date",
		s.selectCols(model.TableQuotesDaily),
		s.dialect.TableRef(model.TableQuotesDaily.TableName),
		where)

	rows, err := s.db.Queryx(query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query quotes: %w", err)
	}
	defer rows.Close()

	result := make(map[string][]model.Quote)
	for rows.Next() {
		var q model.Quote
		if err := rows.StructScan(&q); err != nil {
			return nil, fmt.Errorf("failed to scan quote: %w", err)
		}
		result[q.Symbol] = append(result[q.Symbol], q)
	}
	return result, rows.Err()
}

func (s *Store) GetLatestDate(tableName string, dateCol string) (time.Time, error) {
	query := fmt.Sprintf("SELECT max(%s) AS latest FROM %s", dateCol, s.dialect.TableRef(tableName))

	var latest ScanTime
	if err := s.db.QueryRow(query).Scan(&latest); err != nil {
		return time.Time{}, err
	}
	return latest.Time, nil
}

// ScanTime accepts the time shapes drivers hand back for aggregates:
// native time values, text and NULL.
type ScanTime struct {
	Time time.Time
}

var timeLayouts = []string{
	"2006-01-02 15:04:05.999999999-07:00",
	"2006-01-02 15:04:05.999999999 -0700 MST",
	time.RFC3339Nano,
	"2006-01-02 15:04:05",
	"2006-01-02",
}

func (t *ScanTime) Scan(src interface{}) error {
	switch v := src.(type) {
	case nil:
		t.Time = time.Time{}
		return nil
	case time.Time:
		t.Time = v
		return nil
	case []byte:
		return t.parse(string(v))
	case string:
		return t.parse(v)
	default:
		return fmt.Errorf("unsupported time value %T", src)
	}
}

func (t *ScanTime) parse(s string) error {
	s = strings.TrimSpace(s)
	if s == "" {
		t.Time = time.Time{}
		return nil
	}
	for _, layout := range timeLayouts {
		if parsed, err := time.Parse(layout, s); err == nil {
			t.Time = parsed
			return nil
		}
	}
	return errors.New("unrecognized time value: " + s)
}
