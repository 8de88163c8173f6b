package ingest

import (
	"bufio"
	"encoding/csv"
	"encoding/json"
	"io"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"time"

	"github.com/rotisserie/eris"
)

// LoadRecords reads historical outcomes from a file for replay. CSV files
// use the columns sequence,category,value,timestamp (header optional,
// timestamps RFC3339); any other extension is treated as JSON lines with
// one FeedRecord per line. Records are returned sorted by sequence.
func LoadRecords(path string) ([]FeedRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, eris.Wrap(err, "ingest: open replay file")
	}
	defer f.Close() //nolint:errcheck

	var records []FeedRecord
	if strings.EqualFold(filepath.Ext(path), ".csv") {
		records, err = readCSV(f)
	} else {
		records, err = readJSONLines(f)
	}
	if err != nil {
		return nil, err
	}
	if len(records) == 0 {
		return nil, eris.Errorf("ingest: replay file %s contains no records", path)
	}

	sort.Slice(records, func(i, j int) bool { return records[i].Sequence < records[j].Sequence })
	return records, nil
}

func readCSV(r io.Reader) ([]FeedRecord, error) {
	cr := csv.NewReader(r)
	cr.TrimLeadingSpace = true

	var records []FeedRecord
	line := 0
	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, eris.Wrap(err, "ingest: read csv")
		}
		line++

		// Skip a header row.
		if line == 1 && strings.EqualFold(row[0], "sequence") {
			continue
		}
		if len(row) < 4 {
			return nil, eris.Errorf("ingest: csv line %d: expected 4 columns, got %d", line, len(row))
		}

		seq, err := strconv.ParseInt(row[0], 10, 64)
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: csv line %d: sequence", line)
		}
		value, err := strconv.Atoi(row[2])
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: csv line %d: value", line)
		}
		ts, err := time.Parse(time.RFC3339, row[3])
		if err != nil {
			return nil, eris.Wrapf(err, "ingest: csv line %d: timestamp", line)
		}

		records = append(records, FeedRecord{
			Sequence:  seq,
			Category:  row[1],
			Value:     value,
			Timestamp: ts,
		})
	}
	return records, nil
}

func readJSONLines(r io.Reader) ([]FeedRecord, error) {
	var records []FeedRecord
	scanner := bufio.NewScanner(r)
	line := 0
	for scanner.Scan() {
		line++
		text := strings.TrimSpace(scanner.Text())
		if text == "" {
			continue
		}
		var rec FeedRecord
		if err := json.Unmarshal([]byte(text), &rec); err != nil {
			return nil, eris.Wrapf(err, "ingest: jsonl line %d", line)
		}
		records = append(records, rec)
	}
	if err := scanner.Err(); err != nil {
		return nil, eris.Wrap(err, "ingest: read jsonl")
	}
	return records, nil
}
