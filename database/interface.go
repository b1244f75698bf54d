package database

import (
	"time"

	"github.com/jing2uo/rufeng/model"
)

// DataRepository is the persistence layer. Writes are staged in a pending
// transaction until Commit or Rollback. Implementations are not safe for
// concurrent writers; callers serialize writes through a single goroutine.
type DataRepository interface {
	Connect() error
	Close() error

	InitSchema() error
	DropSchema() error

	WriteStock(stock *model.Stock) error
	WriteIndex(index *model.Index) error
	WriteQuotes(quotes []model.Quote) error
	Commit() error
	Rollback() error

	ReadAllStocks() ([]*model.Stock, error)
	ReadAllIndexes() ([]*model.Index, error)
	ReadQuotes(symbol string, startDate, endDate *time.Time) ([]model.Quote, error)
	ReadQFQQuotes(symbol string, startDate, endDate *time.Time) ([]model.Quote, error)
	ReadAllQuotes(startDate *time.Time) (map[string][]model.Quote, error)
	GetLatestDate(tableName string, dateCol string) (time.Time, error)
}
