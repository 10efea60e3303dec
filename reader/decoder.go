package reader

import (
	"fmt"
	"io"
	"strings"

	preader "github.com/xitongsys/parquet-go/reader"
	"github.com/xitongsys/parquet-go/source"

	"taxiflow/models"
)

// FileDecoder reads a TLC parquet file column by column and assembles raw
// trip records of one kind. Columns are matched by name, so files whose
// schema drifted across years decode into the same record shape.
type FileDecoder struct {
	kind    models.TaxiKind
	file    source.ParquetFile
	pr      *preader.ParquetReader
	columns []*column
	missing []string
	ignored []string
	rows    int64
	read    int64
}

func NewFileDecoder(file source.ParquetFile, kind models.TaxiKind, parallel int64) (*FileDecoder, error) {
	if parallel < 1 {
		parallel = 1
	}
	pr, err := preader.NewParquetColumnReader(file, parallel)
	if err != nil {
		return nil, fmt.Errorf("open parquet column reader: %w", err)
	}

	d := &FileDecoder{kind: kind, file: file, pr: pr, rows: pr.GetNumRows()}
	sh := pr.SchemaHandler
	seen := make(map[string]bool)
	for i := 1; i < len(sh.SchemaElements); i++ {
		el := sh.SchemaElements[i]
		if el.GetNumChildren() > 0 {
			continue
		}
		exName := sh.Infos[i].ExName
		assign, ok := lookupAssign(kind, exName)
		if !ok {
			d.ignored = append(d.ignored, exName)
			continue
		}
		seen[strings.ToLower(exName)] = true
		d.columns = append(d.columns, &column{
			name:   exName,
			inPath: sh.IndexMap[int32(i)],
			ptype:  el.GetType(),
			unit:   timeUnitOf(el),
			assign: assign,
		})
	}
	for _, name := range requiredColumns[kind] {
		if !seen[name] {
			d.missing = append(d.missing, name)
		}
	}
	return d, nil
}

func (d *FileDecoder) Kind() models.TaxiKind { return d.kind }

func (d *FileDecoder) NumRows() int64 { return d.rows }

// MissingColumns lists mandatory source columns absent from the file.
// Every row of such a file is rejected by the normalizer.
func (d *FileDecoder) MissingColumns() []string { return d.missing }

// IgnoredColumns lists file columns with no raw record field.
func (d *FileDecoder) IgnoredColumns() []string { return d.ignored }

// Next decodes up to n rows. It returns io.EOF once every row was read.
func (d *FileDecoder) Next(n int) ([]models.RawTripRecord, error) {
	remaining := d.rows - d.read
	if remaining <= 0 {
		return nil, io.EOF
	}
	if int64(n) > remaining {
		n = int(remaining)
	}

	records := make([]models.RawTripRecord, n)
	for i := range records {
		records[i] = models.NewRawTrip(d.kind)
	}

	for _, col := range d.columns {
		values, _, _, err := d.pr.ReadColumnByPath(col.inPath, int64(n))
		if err != nil {
			return nil, fmt.Errorf("read column %s: %w", col.name, err)
		}
		if len(values) != n {
			return nil, fmt.Errorf("read column %s: got %d values, want %d", col.name, len(values), n)
		}
		for i, v := range values {
			if v == nil {
				continue
			}
			col.assign(records[i], v, col)
		}
	}

	d.read += int64(n)
	return records, nil
}

func (d *FileDecoder) Close() error {
	d.pr.ReadStop()
	return d.file.Close()
}
