// Package source locates the channel tables of a (topic, date) and streams
// their rows in batches, either from JSONL files or from a relational database.
package source

import (
	"context"
	"encoding/json"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// Row is one channel-table row with every value normalized to a trimmed string
type Row struct {
	ID             string
	Author         string
	Title          string
	Contents       string
	Platform       string
	PublishedAt    string
	URL            string
	Region         string
	HitWords       string
	Polarity       string
	Classification string
}

// BatchFunc receives one batch of rows. Returning an error stops the read.
type BatchFunc func(rows []Row) error

// Source reads channel tables
type Source interface {
	// ReadTable streams the table in batches of at most batchSize rows
	ReadTable(ctx context.Context, table string, batchSize int, fn BatchFunc) error
	Close() error
}

// RowFromMap normalizes a decoded record. Unknown columns are ignored.
func RowFromMap(m map[string]any) Row {
	return Row{
		ID:             stringify(m["id"]),
		Author:         stringify(m["author"]),
		Title:          stringify(m["title"]),
		Contents:       stringify(m["contents"]),
		Platform:       stringify(m["platform"]),
		PublishedAt:    stringify(m["published_at"]),
		URL:            stringify(m["url"]),
		Region:         stringify(m["region"]),
		HitWords:       stringify(m["hit_words"]),
		Polarity:       stringify(m["polarity"]),
		Classification: stringify(m["classification"]),
	}
}

func stringify(v any) string {
	var s string
	switch val := v.(type) {
	case nil:
		return ""
	case string:
		s = val
	case []byte:
		s = string(val)
	case json.Number:
		s = val.String()
	case float64:
		s = strconv.FormatFloat(val, 'f', -1, 64)
	case float32:
		s = strconv.FormatFloat(float64(val), 'f', -1, 32)
	case int64:
		s = strconv.FormatInt(val, 10)
	case int:
		s = strconv.Itoa(val)
	case bool:
		s = strconv.FormatBool(val)
	case time.Time:
		if val.IsZero() {
			return ""
		}
		s = val.Format("2006-01-02 15:04:05")
	default:
		s = fmt.Sprint(val)
	}
	return strings.TrimSpace(s)
}

// batcher accumulates rows and flushes every size rows
type batcher struct {
	size int
	buf  []Row
	fn   BatchFunc
}

func newBatcher(size int, fn BatchFunc) *batcher {
	if size <= 0 {
		size = 1000
	}
	return &batcher{size: size, fn: fn, buf: make([]Row, 0, size)}
}

func (b *batcher) add(r Row) error {
	b.buf = append(b.buf, r)
	if len(b.buf) < b.size {
		return nil
	}
	return b.flush()
}

func (b *batcher) flush() error {
	if len(b.buf) == 0 {
		return nil
	}
	batch := b.buf
	b.buf = make([]Row, 0, b.size)
	return b.fn(batch)
}
