package model

import (
	"strings"
	"time"
)

type Kind string

const (
	KindStock Kind = "stock"
	KindIndex Kind = "index"
)

// Quote 日线行情, factor 为累计后复权因子
type Quote struct {
	Symbol   string    `col:"symbol"   db:"symbol"   parquet:"symbol,dict"`
	Date     time.Time `col:"date"     db:"date"     parquet:"date"     type:"date"`
	Open     float64   `col:"open"     db:"open"     parquet:"open"`
	High     float64   `col:"high"     db:"high"     parquet:"high"`
	Low      float64   `col:"low"      db:"low"      parquet:"low"`
	Close    float64   `col:"close"    db:"close"    parquet:"close"`
	Volume   int64     `col:"volume"   db:"volume"   parquet:"volume"`
	Amount   float64   `col:"amount"   db:"amount"   parquet:"amount"`
	Turnover float64   `col:"turnover" db:"turnover" parquet:"turnover"`
	Factor   float64   `col:"factor"   db:"factor"   parquet:"factor"`
}

// Base is the shape shared by stocks and indexes.
type Base struct {
	Symbol     string    `col:"symbol"      db:"symbol"`
	Code       string    `col:"code"        db:"code"`
	Name       string    `col:"name"        db:"name"`
	Price      float64   `col:"price"       db:"price"`
	LastUpdate time.Time `col:"last_update" db:"last_update" type:"datetime"`

	History []Quote `col:"-" db:"-"`
}

// Security is anything the crawler can fetch history for.
type Security interface {
	Common() *Base
	Kind() Kind
}

type Stock struct {
	Base

	Industry     string    `col:"industry"       db:"industry"`
	Area         string    `col:"area"           db:"area"`
	PE           float64   `col:"pe"             db:"pe"`
	PB           float64   `col:"pb"             db:"pb"`
	EPS          float64   `col:"eps"            db:"eps"`
	ROE          float64   `col:"roe"            db:"roe"`
	Outstanding  float64   `col:"outstanding"    db:"outstanding"`
	Totals       float64   `col:"totals"         db:"totals"`
	NMC          float64   `col:"nmc"            db:"nmc"`    // 流通市值, 万元
	MktCap       float64   `col:"mktcap"         db:"mktcap"` // 总市值, 万元
	TimeToMarket time.Time `col:"time_to_market" db:"time_to_market" type:"date"`
}

func (s *Stock) Common() *Base { return &s.Base }
func (s *Stock) Kind() Kind    { return KindStock }

func (s *Stock) String() string {
	return s.Symbol + "(" + s.Name + ")"
}

// IsST reports whether the listing carries a special treatment marker.
func (s *Stock) IsST() bool {
	return strings.Contains(strings.ToUpper(s.Name), "ST")
}

type Index struct {
	Base
}

func (i *Index) Common() *Base { return &i.Base }
func (i *Index) Kind() Kind    { return KindIndex }

func (i *Index) String() string {
	return i.Symbol + "(" + i.Name + ")"
}

// LastQuote returns the newest bar, ok is false for an empty history.
func (b *Base) LastQuote() (Quote, bool) {
	if len(b.History) == 0 {
		return Quote{}, false
	}
	return b.History[len(b.History)-1], true
}

// LastQuoteDate is the zero time when nothing is stored yet.
func (b *Base) LastQuoteDate() time.Time {
	q, ok := b.LastQuote()
	if !ok {
		return time.Time{}
	}
	return q.Date
}

// CurrentPrice prefers the quoted price and falls back to the last close.
func (b *Base) CurrentPrice() float64 {
	if b.Price > 0 {
		return b.Price
	}
	if q, ok := b.LastQuote(); ok {
		return q.Close
	}
	return 0
}

// Tick 实时行情快照
type Tick struct {
	Symbol   string
	Name     string
	Open     float64
	PreClose float64
	Price    float64
	High     float64
	Low      float64
	Volume   int64
	Amount   float64
	Time     time.Time
}

// ChangePercent is the move against the previous close, in percent.
func (t Tick) ChangePercent() float64 {
	if t.PreClose == 0 {
		return 0
	}
	return (t.Price - t.PreClose) / t.PreClose * 100
}

// CrawlTask is one unit of crawler work, consumed once.
type CrawlTask struct {
	Security Security
	Start    time.Time
	End      time.Time
}

func (t CrawlTask) Symbol() string {
	return t.Security.Common().Symbol
}

// Day truncates t to its calendar date in UTC, the form dates are stored in.
func Day(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
