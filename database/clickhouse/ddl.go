package clickhouse

import (
	"fmt"
	"strings"

	"github.com/jing2uo/rufeng/model"
)

// mapType 针对 ClickHouse 进行类型优化
func (d *ClickHouseDriver) mapType(colName string, dt model.DataType) string {
	isKey := strings.Contains(strings.ToLower(colName), "symbol")

	switch dt {
	case model.TypeString:
		if isKey {
			return "LowCardinality(String)"
		}
		return "String"
	case model.TypeFloat64:
		return "Float64"
	case model.TypeInt64:
		return "Int64"
	case model.TypeDate:
		return "Date32" // Date32 范围比 Date 更大 (1900-2299)
	case model.TypeDateTime:
		return "DateTime64(0, 'Asia/Shanghai')"
	default:
		return "String"
	}
}

// CreateTableSQL 用 ReplacingMergeTree 去重, 读取时配合 FINAL
func (d *ClickHouseDriver) CreateTableSQL(meta *model.TableMeta) string {
	var colDefs []string
	for _, col := range meta.Columns {
		colDefs = append(colDefs, fmt.Sprintf("%s %s", col.Name, d.mapType(col.Name, col.Type)))
	}

	orderBy := "tuple()"
	if len(meta.OrderByKey) > 0 {
		orderBy = fmt.Sprintf("(%s)", strings.Join(meta.OrderByKey, ", "))
	}

	return fmt.Sprintf(`
		CREATE TABLE IF NOT EXISTS %s (
			%s
		) ENGINE = ReplacingMergeTree()
		ORDER BY %s
	`, meta.TableName, strings.Join(colDefs, ", "), orderBy)
}

// InsertSQL 只给出列, 事务内 Prepare 后按批发送
func (d *ClickHouseDriver) InsertSQL(meta *model.TableMeta) string {
	return fmt.Sprintf("INSERT INTO %s (%s)", meta.TableName, strings.Join(meta.ColumnNames(), ", "))
}

func (d *ClickHouseDriver) TableRef(table string) string {
	return table + " FINAL"
}

func (d *ClickHouseDriver) Views() map[model.ViewID][]string {
	quotes := model.TableQuotesDaily.TableName

	return map[model.ViewID][]string{
		model.ViewDailyQFQ: {fmt.Sprintf(`
			CREATE OR REPLACE VIEW %s AS
			SELECT
				q.symbol AS symbol,
				q.date AS date,
				q.open  * if(l.factor > 0, q.factor / l.factor, 1) AS open,
				q.high  * if(l.factor > 0, q.factor / l.factor, 1) AS high,
				q.low   * if(l.factor > 0, q.factor / l.factor, 1) AS low,
				q.close * if(l.factor > 0, q.factor / l.factor, 1) AS close,
				q.volume AS volume,
				q.amount AS amount,
				q.turnover AS turnover,
				q.factor AS factor
			FROM %s AS q FINAL
			INNER JOIN (
				SELECT symbol, argMax(factor, date) AS factor
				FROM %s FINAL
				GROUP BY symbol
			) AS l ON q.symbol = l.symbol
		`, model.ViewDailyQFQ, quotes, quotes)},
	}
}
