package search

import (
	"fmt"
	"strings"

	"github.com/blevesearch/bleve/v2"
	"github.com/blevesearch/bleve/v2/mapping"
	"github.com/blevesearch/bleve/v2/search/query"
	"github.com/jing2uo/rufeng/model"
)

type document struct {
	Symbol   string `json:"symbol"`
	Code     string `json:"code"`
	Name     string `json:"name"`
	Industry string `json:"industry"`
	Area     string `json:"area"`
}

// Index is an in-memory full text index over the stock list.
type Index struct {
	index bleve.Index
}

func buildIndexMapping() mapping.IndexMapping {
	indexMapping := bleve.NewIndexMapping()
	stockMapping := bleve.NewDocumentMapping()

	keyword := bleve.NewKeywordFieldMapping()
	stockMapping.AddFieldMappingsAt("symbol", keyword)
	stockMapping.AddFieldMappingsAt("code", keyword)

	text := bleve.NewTextFieldMapping()
	text.Store = true
	stockMapping.AddFieldMappingsAt("name", text)
	stockMapping.AddFieldMappingsAt("industry", text)
	stockMapping.AddFieldMappingsAt("area", text)

	indexMapping.DefaultMapping = stockMapping
	return indexMapping
}

func New(stocks []*model.Stock) (*Index, error) {
	index, err := bleve.NewMemOnly(buildIndexMapping())
	if err != nil {
		return nil, fmt.Errorf("failed to create index: %w", err)
	}

	batch := index.NewBatch()
	for _, s := range stocks {
		doc := document{Symbol: s.Symbol, Code: s.Code, Name: s.Name, Industry: s.Industry, Area: s.Area}
		if err := batch.Index(s.Symbol, doc); err != nil {
			index.Close()
			return nil, fmt.Errorf("failed to add %s to batch: %w", s.Symbol, err)
		}
	}
	if err := index.Batch(batch); err != nil {
		index.Close()
		return nil, fmt.Errorf("failed to execute batch: %w", err)
	}
	return &Index{index: index}, nil
}

// Search matches q against code and symbol prefixes and every word of
// name, industry and area. It returns symbols, best match first.
func (i *Index) Search(q string, limit int) ([]string, error) {
	q = strings.TrimSpace(q)
	if q == "" {
		return nil, nil
	}
	if limit <= 0 {
		limit = 50
	}

	lower := strings.ToLower(q)
	code := bleve.NewPrefixQuery(lower)
	code.SetField("code")
	symbol := bleve.NewPrefixQuery(lower)
	symbol.SetField("symbol")

	queries := []query.Query{code, symbol}
	for _, field := range []string{"name", "industry", "area"} {
		m := bleve.NewMatchQuery(q)
		m.SetField(field)
		m.SetOperator(query.MatchQueryOperatorAnd)
		queries = append(queries, m)
	}

	req := bleve.NewSearchRequestOptions(bleve.NewDisjunctionQuery(queries...), limit, 0, false)
	res, err := i.index.Search(req)
	if err != nil {
		return nil, fmt.Errorf("search %q: %w", q, err)
	}

	out := make([]string, 0, len(res.Hits))
	for _, hit := range res.Hits {
		out = append(out, hit.ID)
	}
	return out, nil
}

func (i *Index) Close() error {
	return i.index.Close()
}
