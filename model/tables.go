package model

import (
	"reflect"
	"strings"
	"sync"
	"time"
)

type DataType int

const (
	TypeString DataType = iota
	TypeFloat64
	TypeInt64
	TypeDate     // YYYY-MM-DD
	TypeDateTime // YYYY-MM-DD HH:MM:SS
)

type Column struct {
	Name  string
	Type  DataType
	index []int
}

type TableMeta struct {
	TableName  string
	Columns    []Column
	OrderByKey []string
}

var (
	tableRegistry   []*TableMeta
	tableRegistryMu sync.Mutex
)

func registerTable(t *TableMeta) {
	tableRegistryMu.Lock()
	defer tableRegistryMu.Unlock()
	tableRegistry = append(tableRegistry, t)
}

// AllTables 返回当前所有已注册的表结构
func AllTables() []*TableMeta {
	tableRegistryMu.Lock()
	defer tableRegistryMu.Unlock()

	result := make([]*TableMeta, len(tableRegistry))
	copy(result, tableRegistry)
	return result
}

// SchemaFromStruct 通过反射生成 TableMeta 并自动注册
// 匿名嵌入的结构体会被展开, col:"-" 的字段不入表
func SchemaFromStruct(tableName string, model interface{}, orderByKey []string) *TableMeta {
	t := reflect.TypeOf(model)
	if t.Kind() == reflect.Ptr {
		t = t.Elem()
	}

	meta := &TableMeta{
		TableName:  tableName,
		Columns:    collectColumns(t, nil),
		OrderByKey: orderByKey,
	}

	registerTable(meta)

	return meta
}

func collectColumns(t reflect.Type, parent []int) []Column {
	var cols []Column

	for i := 0; i < t.NumField(); i++ {
		field := t.Field(i)
		index := append(append([]int{}, parent...), i)

		colName := field.Tag.Get("col")
		if colName == "-" {
			continue
		}
		if field.Anonymous && field.Type.Kind() == reflect.Struct {
			cols = append(cols, collectColumns(field.Type, index)...)
			continue
		}
		if colName == "" {
			colName = strings.ToLower(field.Name)
		}

		var dType DataType
		switch field.Tag.Get("type") {
		case "date":
			dType = TypeDate
		case "datetime":
			dType = TypeDateTime
		default:
			switch field.Type.Kind() {
			case reflect.String:
				dType = TypeString
			case reflect.Float64, reflect.Float32:
				dType = TypeFloat64
			case reflect.Int, reflect.Int64, reflect.Int32, reflect.Uint32:
				dType = TypeInt64
			case reflect.Struct:
				if field.Type == reflect.TypeOf(time.Time{}) {
					dType = TypeDateTime
				}
			default:
				dType = TypeString
			}
		}

		cols = append(cols, Column{Name: colName, Type: dType, index: index})
	}
	return cols
}

// ColumnNames 按建表顺序返回列名
func (t *TableMeta) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Values 按列顺序取出一行的值, row 必须是注册时的结构体 (或其指针)
func (t *TableMeta) Values(row interface{}) []interface{} {
	v := reflect.ValueOf(row)
	if v.Kind() == reflect.Ptr {
		v = v.Elem()
	}
	values := make([]interface{}, len(t.Columns))
	for i, c := range t.Columns {
		values[i] = v.FieldByIndex(c.index).Interface()
	}
	return values
}

// --- 表结构元数据 (TableMeta) ---

var TableStocks = SchemaFromStruct(
	"stocks",
	Stock{},
	[]string{"symbol"},
)

var TableIndexes = SchemaFromStruct(
	"indexes",
	Index{},
	[]string{"symbol"},
)

var TableQuotesDaily = SchemaFromStruct(
	"quotes_daily",
	Quote{},
	[]string{"symbol", "date"},
)
