package model

type DBType string

const (
	DBTypeDuckDB     DBType = "duckdb"
	DBTypeClickHouse DBType = "clickhouse"
	DBTypeSQLite     DBType = "sqlite"
)

type DBConfig struct {
	Type DBType
	DSN  string
}
