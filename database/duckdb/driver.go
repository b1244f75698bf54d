package duckdb

import (
	"fmt"

	_ "github.com/duckdb/duckdb-go/v2"
	"github.com/jing2uo/rufeng/database/sqlbase"
	"github.com/jing2uo/rufeng/model"
	"github.com/jmoiron/sqlx"
)

type DuckDBDriver struct {
	*sqlbase.Store
	dsn string
}

func NewDriver(cfg model.DBConfig) *DuckDBDriver {
	d := &DuckDBDriver{dsn: cfg.DSN}
	d.Store = sqlbase.New(d)
	return d
}

func (d *DuckDBDriver) Connect() error {
	db, err := sqlx.Open("duckdb", d.dsn)
	if err != nil {
		return err
	}
	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(0)

	if err := db.Ping(); err != nil {
		_ = db.Close()
		return fmt.Errorf("duckdb ping failed: %w", err)
	}

	d.Attach(db)
	return nil
}

func (d *DuckDBDriver) Name() string {
	return "DuckDB"
}
