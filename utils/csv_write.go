package utils

import (
	"encoding/csv"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"reflect"
	"strconv"
	"time"
)

// CSVWriter 通用 CSV 写入器, 表头取 col 标签, col:"-" 的字段不输出
type CSVWriter[T any] struct {
	closer        io.Closer
	writer        *csv.Writer
	headerWritten bool
	columns       []columnInfo
	rows          int
}

type columnInfo struct {
	Index      []int  // 字段索引, 支持嵌入结构体
	HeaderName string // CSV 表头
	IsTime     bool
	IsPtrTime  bool
	IsDateType bool // type:"date" 输出 yyyy-mm-dd
}

var (
	timeType    = reflect.TypeOf(time.Time{})
	ptrTimeType = reflect.TypeOf((*time.Time)(nil))
)

// NewCSVWriter 创建文件并写入, 父目录不存在时自动创建
func NewCSVWriter[T any](filename string) (*CSVWriter[T], error) {
	if err := os.MkdirAll(filepath.Dir(filename), 0755); err != nil {
		return nil, fmt.Errorf("failed to create directory: %w", err)
	}
	f, err := os.Create(filename)
	if err != nil {
		return nil, fmt.Errorf("failed to create file: %w", err)
	}
	cw, err := NewCSVStream[T](f)
	if err != nil {
		f.Close()
		return nil, err
	}
	cw.closer = f
	return cw, nil
}

// NewCSVStream writes to w; Close flushes but does not close w.
func NewCSVStream[T any](w io.Writer) (*CSVWriter[T], error) {
	cols, err := analyzeStructTags[T]()
	if err != nil {
		return nil, err
	}
	return &CSVWriter[T]{
		writer:  csv.NewWriter(w),
		columns: cols,
	}, nil
}

func analyzeStructTags[T any]() ([]columnInfo, error) {
	var t T
	typ := reflect.TypeOf(t)
	if typ != nil && typ.Kind() == reflect.Ptr {
		typ = typ.Elem()
	}
	if typ == nil || typ.Kind() != reflect.Struct {
		return nil, fmt.Errorf("generic type T must be a struct")
	}

	var cols []columnInfo
	for _, field := range reflect.VisibleFields(typ) {
		if !field.IsExported() {
			continue
		}
		// 嵌入结构体本身不是一列, 它的字段已经由 VisibleFields 展开
		if field.Anonymous && field.Type.Kind() == reflect.Struct && field.Type != timeType {
			continue
		}

		colTag := field.Tag.Get("col")
		if colTag == "-" {
			continue
		}
		if colTag == "" {
			colTag = field.Name
		}

		cols = append(cols, columnInfo{
			Index:      field.Index,
			HeaderName: colTag,
			IsTime:     field.Type == timeType,
			IsPtrTime:  field.Type == ptrTimeType,
			IsDateType: field.Tag.Get("type") == "date",
		})
	}
	if len(cols) == 0 {
		return nil, fmt.Errorf("struct %s has no exported columns", typ.Name())
	}
	return cols, nil
}

func (cw *CSVWriter[T]) Header() []string {
	headers := make([]string, len(cw.columns))
	for i, col := range cw.columns {
		headers[i] = col.HeaderName
	}
	return headers
}

func formatField(col columnInfo, v reflect.Value) string {
	if col.IsTime || col.IsPtrTime {
		var t time.Time
		if col.IsTime {
			t = v.Interface().(time.Time)
		} else if !v.IsNil() {
			t = *v.Interface().(*time.Time)
		}
		if t.IsZero() {
			return ""
		}
		if col.IsDateType {
			return t.Format("2006-01-02")
		}
		return t.Format(time.RFC3339)
	}

	switch v.Kind() {
	case reflect.Float32, reflect.Float64:
		return strconv.FormatFloat(v.Float(), 'f', -1, 64)
	default:
		return fmt.Sprint(v.Interface())
	}
}

func (cw *CSVWriter[T]) Write(data []T) error {
	if len(data) == 0 {
		return nil
	}

	if !cw.headerWritten {
		if err := cw.writer.Write(cw.Header()); err != nil {
			return fmt.Errorf("failed to write header: %w", err)
		}
		cw.headerWritten = true
	}

	record := make([]string, len(cw.columns))
	for _, item := range data {
		val := reflect.ValueOf(item)
		if val.Kind() == reflect.Ptr {
			if val.IsNil() {
				continue
			}
			val = val.Elem()
		}

		for i, col := range cw.columns {
			record[i] = formatField(col, val.FieldByIndex(col.Index))
		}
		if err := cw.writer.Write(record); err != nil {
			return fmt.Errorf("failed to write record: %w", err)
		}
		cw.rows++
	}
	return nil
}

// Rows is the number of data records written so far.
func (cw *CSVWriter[T]) Rows() int {
	return cw.rows
}

func (cw *CSVWriter[T]) Close() error {
	cw.writer.Flush()
	err := cw.writer.Error()
	if cw.closer != nil {
		if cerr := cw.closer.Close(); err == nil && cerr != nil {
			err = cerr
		}
	}
	if err != nil {
		return fmt.Errorf("failed to flush: %w", err)
	}
	return nil
}
