package source

import (
	"bufio"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"time"

	"github.com/jing2uo/rufeng/logger"
	"github.com/jing2uo/rufeng/utils"
	"golang.org/x/text/encoding/simplifiedchinese"
	"golang.org/x/text/transform"
)

const hqCacheDir = "T0002/hq_cache"

// tdxMeta is what a TDX install knows about stocks besides the bars.
type tdxMeta struct {
	names      map[string]string // symbol -> name
	industries map[string]string // symbol -> 通达信行业名称
}

// loadTdxMeta reads hq_cache; missing or broken files leave the
// corresponding map empty.
func loadTdxMeta(tdxHome string) tdxMeta {
	log := logger.GetLogger().WithComponent("source.tdx")
	hqCache := filepath.Join(tdxHome, hqCacheDir)
	meta := tdxMeta{names: map[string]string{}, industries: map[string]string{}}

	if names, err := readInfoharborCode(filepath.Join(hqCache, "infoharbor_ex.code")); err != nil {
		log.WithError(err).Debug("stock names unavailable")
	} else {
		meta.names = names
	}

	labels, err := readTdxzs3(filepath.Join(hqCache, "tdxzs3.cfg"))
	if err != nil {
		log.WithError(err).Debug("industry names unavailable")
		return meta
	}
	codes, err := readTdxhy(filepath.Join(hqCache, "tdxhy.cfg"))
	if err != nil {
		log.WithError(err).Debug("industry members unavailable")
		return meta
	}
	for symbol, code := range codes {
		// 细分行业没有名称时退回上一级
		for l := len(code); l >= 3; l -= 2 {
			if name, ok := labels[code[:l]]; ok {
				meta.industries[symbol] = name
				break
			}
		}
	}
	return meta
}

func gbkReader(r io.Reader) io.Reader {
	return transform.NewReader(r, simplifiedchinese.GBK.NewDecoder())
}

// readInfoharborCode 股票代码|名称|...
func readInfoharborCode(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	names := make(map[string]string)
	scanner := bufio.NewScanner(gbkReader(file))
	for scanner.Scan() {
		parts := strings.Split(strings.TrimSpace(scanner.Text()), "|")
		if len(parts) < 2 {
			continue
		}
		if symbol, ok := utils.GenerateSymbol(strings.TrimSpace(parts[0])); ok {
			names[symbol] = NormalizeName(parts[1])
		}
	}
	return names, scanner.Err()
}

func readPipeRecords(r io.Reader, minFields int, fn func(record []string)) error {
	reader := csv.NewReader(r)
	reader.Comma = '|'
	reader.FieldsPerRecord = -1
	reader.LazyQuotes = true

	for {
		record, err := reader.Read()
		if err == io.EOF {
			return nil
		}
		if err != nil {
			return err
		}
		if len(record) >= minFields {
			fn(record)
		}
	}
}

// readTdxzs3 maps industry labels (X/T codes) to names. Line layout:
// 名称|板块代码|类型|...|...|编码; 类型 2 普通行业, 12 研究行业.
func readTdxzs3(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	labels := make(map[string]string)
	err = readPipeRecords(gbkReader(file), 6, func(record []string) {
		if record[2] != "2" && record[2] != "12" {
			return
		}
		if label := strings.TrimSpace(record[5]); label != "" {
			labels[label] = strings.TrimSpace(record[0])
		}
	})
	return labels, err
}

// readTdxhy maps symbols to their industry code, preferring the general
// industry (X) over the research one (T). Line layout: 市场|代码|T码|||X码.
func readTdxhy(path string) (map[string]string, error) {
	file, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer file.Close()

	prefixes := map[string]string{"0": "sz", "1": "sh", "2": "bj"}
	codes := make(map[string]string)
	err = readPipeRecords(file, 6, func(record []string) {
		prefix, ok := prefixes[record[0]]
		if !ok {
			return
		}
		code := prefix + strings.TrimSpace(record[1])
		if x := strings.TrimSpace(record[5]); x != "" {
			codes[code] = x
		} else if t := strings.TrimSpace(record[2]); t != "" {
			codes[code] = t
		}
	})
	return codes, err
}

// ReadTdxHolidays reads the market holidays of a TDX install from
// hq_cache/needini.dat, lines like "Y2024=2024,0101,0209,...".
func ReadTdxHolidays(tdxHome string) ([]time.Time, error) {
	content, err := os.ReadFile(filepath.Join(tdxHome, hqCacheDir, "needini.dat"))
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, nil
		}
		return nil, fmt.Errorf("failed to read holidays: %w", err)
	}

	var holidays []time.Time
	for _, line := range strings.Split(string(content), "\n") {
		line = strings.TrimSpace(line)
		if !strings.HasPrefix(line, "Y") {
			continue
		}
		_, list, ok := strings.Cut(line, "=")
		if !ok {
			continue
		}

		var items []string
		for _, item := range strings.Split(list, ",") {
			if item = strings.TrimSpace(item); item != "" {
				items = append(items, item)
			}
		}
		if len(items) < 2 {
			continue
		}

		year := items[0]
		for _, mmdd := range items[1:] {
			if len(mmdd) != 4 {
				continue
			}
			d, err := time.Parse("20060102", year+mmdd)
			if err != nil {
				return nil, fmt.Errorf("invalid holiday %s%s: %w", year, mmdd, err)
			}
			holidays = append(holidays, d)
		}
	}

	sort.Slice(holidays, func(i, j int) bool { return holidays[i].Before(holidays[j]) })
	return holidays, nil
}
