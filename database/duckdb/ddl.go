package duckdb

import (
	"fmt"
	"strings"

	"github.com/jing2uo/rufeng/model"
)

// mapType 将通用 DataType 转换为 DuckDB 的 SQL 类型
func (d *DuckDBDriver) mapType(dt model.DataType) string {
	switch dt {
	case model.TypeString:
		return "VARCHAR"
	case model.TypeFloat64:
		return "DOUBLE"
	case model.TypeInt64:
		return "BIGINT"
	case model.TypeDate:
		return "DATE"
	case model.TypeDateTime:
		return "TIMESTAMP"
	default:
		return "VARCHAR"
	}
}

func (d *DuckDBDriver) CreateTableSQL(meta *model.TableMeta) string {
	var colDefs []string
	for _, col := range meta.Columns {
		colDefs = append(colDefs, fmt.Sprintf("%s %s", col.Name, d.mapType(col.Type)))
	}
	// INSERT OR REPLACE 依赖主键
	if len(meta.OrderByKey) > 0 {
		colDefs = append(colDefs, fmt.Sprintf("PRIMARY KEY (%s)", strings.Join(meta.OrderByKey, ", ")))
	}

	return fmt.Sprintf("CREATE TABLE IF NOT EXISTS %s (%s)",
		meta.TableName, strings.Join(colDefs, ", "))
}

func (d *DuckDBDriver) InsertSQL(meta *model.TableMeta) string {
	placeholders := strings.TrimSuffix(strings.Repeat("?, ", len(meta.Columns)), ", ")
	return fmt.Sprintf("INSERT OR REPLACE INTO %s (%s) VALUES (%s)",
		meta.TableName, strings.Join(meta.ColumnNames(), ", "), placeholders)
}

func (d *DuckDBDriver) TableRef(table string) string {
	return table
}

func (d *DuckDBDriver) Views() map[model.ViewID][]string {
	quotes := model.TableQuotesDaily.TableName

	return map[model.ViewID][]string{
		model.ViewDailyQFQ: {fmt.Sprintf(`
			CREATE OR REPLACE VIEW %s AS
			WITH latest AS (
				SELECT symbol, arg_max(factor, date) AS factor
				FROM %s
				GROUP BY symbol
			)
			SELECT
				q.symbol,
				q.date,
				q.open  * COALESCE(q.factor / NULLIF(l.factor, 0), 1) AS open,
				q.high  * COALESCE(q.factor / NULLIF(l.factor, 0), 1) AS high,
				q.low   * COALESCE(q.factor / NULLIF(l.factor, 0), 1) AS low,
				q.close * COALESCE(q.factor / NULLIF(l.factor, 0), 1) AS close,
				q.volume,
				q.amount,
				q.turnover,
				q.factor
			FROM %s q
			JOIN latest l ON q.symbol = l.symbol
		`, model.ViewDailyQFQ, quotes, quotes)},
	}
}
