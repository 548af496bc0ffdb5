package readings

import (
	"encoding/csv"
	"errors"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/icodeforyou/priceplan-go/decimal"
	"github.com/icodeforyou/priceplan-go/types"
)

// ParseCSV reads readings from CSV with the header "time,reading".
//
// Times are RFC 3339 and converted to UTC. Readings must be non negative
// decimals. Invalid rows are skipped and reported together as one joined
// error, so a partially valid file still yields its good rows.
func ParseCSV(r io.Reader) ([]types.Reading, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true

	header, err := cr.Read()
	if err != nil {
		return nil, fmt.Errorf("read header: %w", err)
	}
	if len(header) < 2 || !strings.EqualFold(strings.TrimSpace(header[0]), "time") || !strings.EqualFold(strings.TrimSpace(header[1]), "reading") {
		return nil, fmt.Errorf("unexpected header %q (want %q)", strings.Join(header, ","), "time,reading")
	}

	var (
		readings = []types.Reading{}
		rowErrs  []error
		rowNum   = 1
	)

	for {
		row, err := cr.Read()
		if err == io.EOF {
			break
		}
		rowNum++
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("row %d: read: %w", rowNum, err))
			continue
		}
		if len(row) < 2 {
			rowErrs = append(rowErrs, fmt.Errorf("row %d: expected 2 columns, got %d", rowNum, len(row)))
			continue
		}

		t, err := time.Parse(time.RFC3339Nano, strings.TrimSpace(row[0]))
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("row %d: parse time %q: %w", rowNum, row[0], err))
			continue
		}

		v, err := decimal.New(strings.TrimSpace(row[1]))
		if err != nil {
			rowErrs = append(rowErrs, fmt.Errorf("row %d: %w", rowNum, err))
			continue
		}
		if !v.IsFinite() || v.Sign() < 0 {
			rowErrs = append(rowErrs, fmt.Errorf("row %d: invalid reading %s", rowNum, v))
			continue
		}

		readings = append(readings, types.Reading{Time: t.UTC(), Value: v})
	}

	return readings, errors.Join(rowErrs...)
}
