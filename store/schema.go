package store

import (
	"context"
	"fmt"
	"iter"
	"strings"
	"time"

	"taxiflow/models"
)

type colType int

const (
	typeKind colType = iota
	typeInt
	typeFloat
	typeBool
	typeTimestamp
	typeDate
)

var columnTypes = map[string]colType{
	models.ColTaxiKind:             typeKind,
	models.ColVendorID:             typeInt,
	models.ColPickupDatetime:       typeTimestamp,
	models.ColDropoffDatetime:      typeTimestamp,
	models.ColPassengerCount:       typeInt,
	models.ColTripDistance:         typeFloat,
	models.ColRateCodeID:           typeInt,
	models.ColStoreAndFwdFlag:      typeBool,
	models.ColPickupLocationID:     typeInt,
	models.ColDropoffLocationID:    typeInt,
	models.ColPaymentType:          typeInt,
	models.ColTripType:             typeInt,
	models.ColFareAmount:           typeFloat,
	models.ColExtra:                typeFloat,
	models.ColMTATax:               typeFloat,
	models.ColTipAmount:            typeFloat,
	models.ColTollsAmount:          typeFloat,
	models.ColImprovementSurcharge: typeFloat,
	models.ColCongestionSurcharge:  typeFloat,
	models.ColAirportFee:           typeFloat,
	models.ColTotalAmount:          typeFloat,
	models.ColTripDurationMinutes:  typeFloat,
	models.ColPickupHour:           typeInt,
	models.ColPickupDayOfWeek:      typeInt,
	models.ColPickupDate:           typeDate,
	models.ColTipPercentage:        typeFloat,
	models.ColAvgSpeedMPH:          typeFloat,
}

// orderingColumns is the ordering and partition key.
var orderingColumns = []string{
	models.ColPickupDate, models.ColPickupHour, models.ColPickupLocationID, models.ColDropoffLocationID,
}

// dialect holds what differs between the SQL engines.
type dialect struct {
	types map[colType]string
	// tableSuffix follows the closing parenthesis of CREATE TABLE.
	tableSuffix string
	// placeholder returns the n-th (1-based) bind marker.
	placeholder func(n int) string
	// dateArg converts a date bound into a bind value.
	dateArg func(t time.Time) any
	// zero renders the literal stored for an absent column.
	zero func(t colType) string
	// createView starts a view definition, e.g. CREATE VIEW IF NOT EXISTS.
	createView string
}

func createTableSQL(d dialect, table string) string {
	var b strings.Builder
	fmt.Fprintf(&b, "CREATE TABLE IF NOT EXISTS %s (\n", table)
	for i, col := range models.CanonicalColumns {
		sep := ","
		if i == len(models.CanonicalColumns)-1 {
			sep = ""
		}
		fmt.Fprintf(&b, "    %s %s%s\n", col, d.types[columnTypes[col]], sep)
	}
	b.WriteString(")")
	if d.tableSuffix != "" {
		b.WriteString("\n")
		b.WriteString(d.tableSuffix)
	}
	return b.String()
}

// selectColumns lists CanonicalColumns for kind's table: taxi_kind becomes
// the kind literal and absent columns become zero literals.
func selectColumns(d dialect, kind models.TaxiKind) string {
	absent := make(map[string]bool)
	for _, col := range models.AbsentFields(kind) {
		absent[col] = true
	}
	parts := make([]string, len(models.CanonicalColumns))
	for i, col := range models.CanonicalColumns {
		switch {
		case col == models.ColTaxiKind:
			parts[i] = fmt.Sprintf("'%s' AS %s", kind, col)
		case absent[col]:
			parts[i] = fmt.Sprintf("%s AS %s", d.zero(columnTypes[col]), col)
		default:
			parts[i] = col
		}
	}
	return strings.Join(parts, ", ")
}

func createViewSQL(d dialect) string {
	selects := make([]string, len(models.Kinds))
	for i, kind := range models.Kinds {
		selects[i] = fmt.Sprintf("SELECT %s FROM %s", selectColumns(d, kind), kind.Table())
	}
	return fmt.Sprintf("%s %s AS\n%s", d.createView, models.UnionView, strings.Join(selects, "\nUNION ALL\n"))
}

// rangeFilter renders the WHERE clause and bind values for r.
func rangeFilter(d dialect, r models.DateRange) (string, []any) {
	var conds []string
	var args []any
	if !r.From.IsZero() {
		args = append(args, d.dateArg(r.From))
		conds = append(conds, fmt.Sprintf("%s >= %s", models.ColPickupDate, d.placeholder(len(args))))
	}
	if !r.To.IsZero() {
		args = append(args, d.dateArg(r.To))
		conds = append(conds, fmt.Sprintf("%s <= %s", models.ColPickupDate, d.placeholder(len(args))))
	}
	if len(conds) == 0 {
		return "", nil
	}
	return " WHERE " + strings.Join(conds, " AND "), args
}

func scanSQL(d dialect, from string, r models.DateRange) (string, []any) {
	where, args := rangeFilter(d, r)
	q := fmt.Sprintf("SELECT %s FROM %s%s ORDER BY %s",
		strings.Join(models.CanonicalColumns, ", "), from, where, strings.Join(orderingColumns, ", "))
	return q, args
}

func statsSQL(table string) string {
	return fmt.Sprintf("SELECT count(*), min(%[1]s), max(%[1]s), count(DISTINCT %[1]s) FROM %[2]s",
		models.ColPickupDate, table)
}

func questionMark(int) string { return "?" }

func dollar(n int) string { return fmt.Sprintf("$%d", n) }

func dateString(t time.Time) any { return t.Format(models.DateLayout) }

func dateValue(t time.Time) any { return t }

func numericZero(t colType) string {
	if t == typeFloat {
		return "0.0"
	}
	return "0"
}

type rowCursor interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close() error
}

type scanFunc func(rows rowCursor) (models.CanonicalTripRecord, error)

// scanCanonical scans CanonicalColumns with driver native types.
func scanCanonical(rows rowCursor) (models.CanonicalTripRecord, error) {
	var rec models.CanonicalTripRecord
	var kind string
	if err := rows.Scan(rec.ScanTargets(&kind)...); err != nil {
		return rec, err
	}
	restoreKind(&rec, kind)
	return rec, nil
}

// rowIter adapts a row cursor to iter.Seq2. The query runs on the first
// pull and the cursor is closed when iteration stops.
func rowIter(ctx context.Context, open func(ctx context.Context) (rowCursor, error), scan scanFunc) iter.Seq2[models.CanonicalTripRecord, error] {
	return func(yield func(models.CanonicalTripRecord, error) bool) {
		rows, err := open(ctx)
		if err != nil {
			yield(models.CanonicalTripRecord{}, err)
			return
		}
		defer rows.Close()
		for rows.Next() {
			rec, err := scan(rows)
			if err != nil {
				yield(models.CanonicalTripRecord{}, fmt.Errorf("scan row: %w", err))
				return
			}
			if !yield(rec, nil) {
				return
			}
		}
		if err := rows.Err(); err != nil {
			yield(models.CanonicalTripRecord{}, err)
		}
	}
}

// restoreKind copies the scanned taxi_kind back and normalizes time
// locations to UTC.
func restoreKind(rec *models.CanonicalTripRecord, kind string) {
	rec.TaxiKind = models.TaxiKind(kind)
	rec.PickupDatetime = rec.PickupDatetime.UTC()
	rec.DropoffDatetime = rec.DropoffDatetime.UTC()
	rec.PickupDate = rec.PickupDate.UTC()
}
