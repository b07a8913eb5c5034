package federation

import (
	"bufio"
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/ekaya-inc/ekaya-query/pkg/models"
)

// Record is one raw JSON value. Objects become rows; any other value becomes a row
// with a single "value" column.
type Record = json.RawMessage

// materialize creates table name from a query result, preserving column order.
func (s *session) materialize(ctx context.Context, name string, result *models.QueryResult) error {
	if result == nil || len(result.Columns) == 0 {
		return fmt.Errorf("sample has no columns")
	}
	if len(result.Rows) == 0 {
		cols := make([]string, len(result.Columns))
		for i, c := range result.Columns {
			cols[i] = quoteIdent(c) + " VARCHAR"
		}
		_, err := s.conn.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (%s)", quoteIdent(name), strings.Join(cols, ", ")))
		return err
	}

	records := make([]Record, 0, len(result.Rows))
	for _, row := range result.Rows {
		line, err := orderedObject(result.Columns, row)
		if err != nil {
			return err
		}
		records = append(records, line)
	}
	return s.loadRecords(ctx, name, records)
}

// loadRecords writes records as newline-delimited JSON and creates table name from them.
func (s *session) loadRecords(ctx context.Context, name string, records []Record) error {
	if len(records) == 0 {
		_, err := s.conn.ExecContext(ctx, fmt.Sprintf("CREATE TABLE %s (value VARCHAR)", quoteIdent(name)))
		return err
	}

	f, err := os.CreateTemp(s.dir, "records-*.ndjson")
	if err != nil {
		return err
	}
	w := bufio.NewWriter(f)
	for _, rec := range records {
		line := bytes.TrimSpace(rec)
		if len(line) == 0 {
			continue
		}
		if line[0] != '{' {
			line = append(append([]byte(`{"value":`), line...), '}')
		}
		var compact bytes.Buffer
		if err := json.Compact(&compact, line); err != nil {
			f.Close()
			return fmt.Errorf("invalid record: %w", err)
		}
		compact.WriteByte('\n')
		if _, err := w.Write(compact.Bytes()); err != nil {
			f.Close()
			return err
		}
	}
	if err := w.Flush(); err != nil {
		f.Close()
		return err
	}
	if err := f.Close(); err != nil {
		return err
	}

	stmt := fmt.Sprintf("CREATE TABLE %s AS SELECT * FROM read_json_auto(%s, format = 'newline_delimited')",
		quoteIdent(name), quoteLiteral(f.Name()))
	_, err = s.conn.ExecContext(ctx, stmt)
	return err
}

// orderedObject encodes a row as a JSON object whose keys follow columns.
func orderedObject(columns []string, row []any) (Record, error) {
	var buf bytes.Buffer
	buf.WriteByte('{')
	for i, col := range columns {
		if i > 0 {
			buf.WriteByte(',')
		}
		key, err := json.Marshal(col)
		if err != nil {
			return nil, err
		}
		buf.Write(key)
		buf.WriteByte(':')
		var v any
		if i < len(row) {
			v = row[i]
		}
		val, err := json.Marshal(v)
		if err != nil {
			return nil, fmt.Errorf("encode column %q: %w", col, err)
		}
		buf.Write(val)
	}
	buf.WriteByte('}')
	return buf.Bytes(), nil
}
