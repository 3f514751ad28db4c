package ingest

import (
	"bufio"
	"bytes"
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"
)

// Options controls how an export is read.
type Options struct {
	// Name labels the export in rejection errors, usually the file name.
	Name string
	// Now anchors future-date rejection. Zero means time.Now.
	Now time.Time
	// MaxFutureDays is how far past Now a row may be dated before it is rejected.
	MaxFutureDays int
}

const defaultMaxFutureDays = 7

func (o Options) latest() time.Time {
	now := o.Now
	if now.IsZero() {
		now = time.Now()
	}
	days := o.MaxFutureDays
	if days <= 0 {
		days = defaultMaxFutureDays
	}
	y, m, d := now.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC).AddDate(0, 0, days)
}

var utf8BOM = []byte{0xEF, 0xBB, 0xBF}

// readTable reads a delimited export. The delimiter is whichever of ';', tab or ',' occurs most
// in the header line.
func readTable(r io.Reader) ([]string, [][]string, error) {
	br := bufio.NewReader(r)
	if b, err := br.Peek(3); err == nil && bytes.Equal(b, utf8BOM) {
		_, _ = br.Discard(3)
	}
	first, err := br.Peek(br.Size())
	if err != nil && !errors.Is(err, io.EOF) && !errors.Is(err, bufio.ErrBufferFull) {
		return nil, nil, err
	}
	if i := bytes.IndexByte(first, '\n'); i >= 0 {
		first = first[:i]
	}

	cr := csv.NewReader(br)
	cr.Comma = detectDelimiter(string(first))
	cr.FieldsPerRecord = -1
	cr.LazyQuotes = true
	cr.ReuseRecord = false

	header, err := cr.Read()
	if errors.Is(err, io.EOF) {
		return nil, nil, errors.New("empty export")
	}
	if err != nil {
		return nil, nil, fmt.Errorf("read header: %w", err)
	}
	records, err := cr.ReadAll()
	if err != nil {
		return nil, nil, fmt.Errorf("read rows: %w", err)
	}
	return header, records, nil
}

func detectDelimiter(line string) rune {
	best, bestN := ',', strings.Count(line, ",")
	for _, d := range []rune{';', '\t'} {
		if n := strings.Count(line, string(d)); n > bestN {
			best, bestN = d, n
		}
	}
	return best
}

func cell(rec []string, cols map[string]int, field string) string {
	i, ok := cols[field]
	if !ok || i >= len(rec) {
		return ""
	}
	return strings.TrimSpace(rec[i])
}

func blank(rec []string) bool {
	for _, c := range rec {
		if strings.TrimSpace(c) != "" {
			return false
		}
	}
	return true
}
