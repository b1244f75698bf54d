package database

import (
	"testing"

	"github.com/jing2uo/rufeng/model"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseDSN(t *testing.T) {
	tests := []struct {
		uri     string
		dbType  model.DBType
		dsn     string
		wantErr bool
	}{
		{uri: "duckdb://data/rufeng.duckdb", dbType: model.DBTypeDuckDB, dsn: "data/rufeng.duckdb"},
		{uri: "sqlite:///tmp/rufeng.db", dbType: model.DBTypeSQLite, dsn: "/tmp/rufeng.db"},
		{uri: "clickhouse://default@localhost:9000/stock", dbType: model.DBTypeClickHouse, dsn: "clickhouse://default@localhost:9000/stock"},
		{uri: "rufeng.duckdb", dbType: model.DBTypeDuckDB, dsn: "rufeng.duckdb"},
		{uri: "rufeng.db", dbType: model.DBTypeSQLite, dsn: "rufeng.db"},
		{uri: "mongodb://localhost", wantErr: true},
		{uri: "  ", wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.uri, func(t *testing.T) {
			cfg, err := ParseDSN(tt.uri)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			assert.Equal(t, tt.dbType, cfg.Type)
			assert.Equal(t, tt.dsn, cfg.DSN)
		})
	}
}

func TestNewDatabaseUnsupported(t *testing.T) {
	_, err := NewDatabase(model.DBConfig{Type: "oracle"})
	assert.Error(t, err)
}

func TestNewDatabaseClickHouseWithoutHost(t *testing.T) {
	_, err := NewDatabase(model.DBConfig{Type: model.DBTypeClickHouse, DSN: "clickhouse:///stock"})
	assert.Error(t, err)
}
