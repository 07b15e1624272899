package sheet

import (
	"bufio"
	"net/url"
	"os"
	"path/filepath"
	"strings"

	"github.com/rotisserie/eris"
)

var urlColumns = []string{"url", "source_url", "link", "listing_url"}

// ReadURLs loads listing URLs from a .csv, .xlsx or plain text file. Tabular
// files use the first column whose header names a URL, else the first
// column. Blank, duplicate and non-http(s) entries are dropped.
func ReadURLs(path string) ([]string, error) {
	var rows [][]string
	switch strings.ToLower(filepath.Ext(path)) {
	case ".xlsx":
		r, err := ReadXLSX(path)
		if err != nil {
			return nil, err
		}
		rows = r
	case ".csv":
		f, err := os.Open(path)
		if err != nil {
			return nil, eris.Wrap(err, "sheet: open file")
		}
		defer f.Close() //nolint:errcheck
		r, err := ReadCSV(f)
		if err != nil {
			return nil, err
		}
		rows = r
	default:
		r, err := readLines(path)
		if err != nil {
			return nil, err
		}
		rows = r
	}
	return URLsFromRows(rows), nil
}

// URLsFromRows extracts URLs from tabular rows.
func URLsFromRows(rows [][]string) []string {
	if len(rows) == 0 {
		return nil
	}

	col := 0
	start := 0
	if idx := headerColumn(rows[0]); idx >= 0 {
		col = idx
		start = 1
	}

	seen := make(map[string]bool)
	var out []string
	for _, row := range rows[start:] {
		if col >= len(row) {
			continue
		}
		raw := strings.TrimSpace(row[col])
		if !isListingURL(raw) || seen[raw] {
			continue
		}
		seen[raw] = true
		out = append(out, raw)
	}
	return out
}

func headerColumn(header []string) int {
	for _, name := range urlColumns {
		for i, h := range header {
			if strings.EqualFold(strings.TrimSpace(h), name) {
				return i
			}
		}
	}
	return -1
}

func isListingURL(raw string) bool {
	if raw == "" {
		return false
	}
	u, err := url.Parse(raw)
	if err != nil {
		return false
	}
	return (u.Scheme == "http" || u.Scheme == "https") && u.Host != ""
}

func readLines(path string) ([][]string, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "sheet: open file")
	}
	defer f.Close() //nolint:errcheck

	var rows [][]string
	sc := bufio.NewScanner(f)
	for sc.Scan() {
		line := strings.TrimSpace(sc.Text())
		if line == "" || strings.HasPrefix(line, "#") {
			continue
		}
		rows = append(rows, []string{line})
	}
	if err := sc.Err(); err != nil {
		return nil, eris.Wrap(err, "sheet: read lines")
	}
	return rows, nil
}
