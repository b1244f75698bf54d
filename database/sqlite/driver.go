package sqlite

import (
	"fmt"
	"strings"

	"github.com/jing2uo/rufeng/database/sqlbase"
	"github.com/jing2uo/rufeng/model"
	"github.com/jmoiron/sqlx"
	_ "modernc.org/sqlite"
)

type SQLiteDriver struct {
	*sqlbase.Store
	dsn string
}

func NewDriver(cfg model.DBConfig) *SQLiteDriver {
	d := &SQLiteDriver{dsn: cfg.DSN}
	d.Store = sqlbase.New(d)
	return d
}

func (d *SQLiteDriver) Connect() error {
	dsn := d.dsn
	if !strings.Contains(dsn, "_pragma") {
		sep := "?"
		if strings.Contains(dsn, "?") {
			sep = "&"
		}
		dsn += sep + "_pragma=busy_timeout(5000)&_pragma=journal_mode(WAL)"
	}

	db, err := sqlx.Open("sqlite", dsn)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(4)
	db.SetMaxIdleConns(2)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("sqlite ping failed: %w", err)
	}

	d.Attach(db)
	return nil
}

func (d *SQLiteDriver) Name() string {
	return "SQLite"
}

// 声明 DATE/TIMESTAMP 让驱动在读取时还原为 time.Time
func (d *SQLiteDriver) mapType(dt model.DataType) string {
	switch dt {
	case model.TypeFloat64:
		return "REAL"
	case model.TypeInt64:
		return "INTEGER"
	case model.TypeDate:
		return "DATE"
	case model.TypeDateTime:
		return "TIMESTAMP"
	default:
		return "TEXT"
	}
}

func (d *SQLiteDriver) CreateTableSQL(meta *model.TableMeta) string {
	var colDefs []string
	for _, col := range meta.Columns {
		colDefs = append(colDefs, fmt.Sprintf("%s %s", col.Name, d.mapType(col.Type)))
	}
	if len(meta.OrderByKey) > 0 {
		colDefs = append(colDefs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(meta.OrderByKey, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		meta.TableName, strings.Join(colDefs, ", "))
}

func (d *SQLiteDriver) InsertSQL(meta *model.TableMeta) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(meta.Columns)), ", ")
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		meta.TableName, strings.Join(meta.ColumnNames(), ", "), placeholders)
}

func (d *SQLiteDriver) TableRef(table string) string {
	return table
}

func (d *SQLiteDriver) Views() map[model.ViewID][]string {
	quotes := model.TableQuotesDaily.TableName
	adj := fmt.Sprintf(`COALESCE(q.factor / NULLIF((
					SELECT l.factor FROM %s l
					WHERE l.symbol = q.symbol
					ORDER BY l.date DESC LIMIT 1
				), 0), 1)`, quotes)

	return map[model.ViewID][]string{
		model.ViewDailyQFQ: {
			fmt.Sprintf("DROP VIEW IF EXISTS %s", model.ViewDailyQFQ),
			fmt.Sprintf(`
			CREATE VIEW %s AS
			SELECT
				q.symbol,
				q.date,
				q.open  * %s AS open,
				q.high  * %s AS high,
				q.low   * %s AS low,
				q.close * %s AS close,
				q.volume,
				q.amount,
				q.turnover,
				q.factor
			FROM %s q
		`, model.ViewDailyQFQ, adj, adj, adj, adj, quotes),
		},
	}
}
