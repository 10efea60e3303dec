package reader

import (
	"math"
	"strconv"
	"strings"
	"time"

	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/types"

	"taxiflow/models"
)

type timeUnit int

const (
	unitMicros timeUnit = iota
	unitMillis
	unitNanos
)

// column is one leaf column of the file bound to a raw record field.
type column struct {
	name   string // as written in the file
	inPath string
	ptype  parquet.Type
	unit   timeUnit
	assign assignFunc
}

type assignFunc func(rec models.RawTripRecord, v any, c *column)

// sharedColumns and the per-kind tables are keyed by lower-cased column
// name, which folds the TLC spelling drift (RatecodeID/Ratecodeid,
// Airport_fee/airport_fee, congestion_surcharge/Congestion_Surcharge).
var sharedColumns = map[string]assignFunc{
	"vendorid":              sharedInt(func(c *models.RawCommon) **int64 { return &c.VendorID }),
	"passenger_count":       sharedInt(func(c *models.RawCommon) **int64 { return &c.PassengerCount }),
	"trip_distance":         sharedFloat(func(c *models.RawCommon) **float64 { return &c.TripDistance }),
	"ratecodeid":            sharedInt(func(c *models.RawCommon) **int64 { return &c.RatecodeID }),
	"store_and_fwd_flag":    sharedString(func(c *models.RawCommon) **string { return &c.StoreAndFwdFlag }),
	"pulocationid":          sharedInt(func(c *models.RawCommon) **int64 { return &c.PULocationID }),
	"dolocationid":          sharedInt(func(c *models.RawCommon) **int64 { return &c.DOLocationID }),
	"payment_type":          sharedInt(func(c *models.RawCommon) **int64 { return &c.PaymentType }),
	"fare_amount":           sharedFloat(func(c *models.RawCommon) **float64 { return &c.FareAmount }),
	"extra":                 sharedFloat(func(c *models.RawCommon) **float64 { return &c.Extra }),
	"mta_tax":               sharedFloat(func(c *models.RawCommon) **float64 { return &c.MTATax }),
	"tip_amount":            sharedFloat(func(c *models.RawCommon) **float64 { return &c.TipAmount }),
	"tolls_amount":          sharedFloat(func(c *models.RawCommon) **float64 { return &c.TollsAmount }),
	"improvement_surcharge": sharedFloat(func(c *models.RawCommon) **float64 { return &c.ImprovementSurcharge }),
	"total_amount":          sharedFloat(func(c *models.RawCommon) **float64 { return &c.TotalAmount }),
	"congestion_surcharge":  sharedFloat(func(c *models.RawCommon) **float64 { return &c.CongestionSurcharge }),
}

var yellowColumns = map[string]assignFunc{
	"tpep_pickup_datetime": func(r models.RawTripRecord, v any, c *column) {
		r.(*models.YellowTrip).TpepPickupDatetime = c.asTime(v)
	},
	"tpep_dropoff_datetime": func(r models.RawTripRecord, v any, c *column) {
		r.(*models.YellowTrip).TpepDropoffDatetime = c.asTime(v)
	},
	"airport_fee": func(r models.RawTripRecord, v any, _ *column) {
		r.(*models.YellowTrip).AirportFee = asFloat(v)
	},
}

var greenColumns = map[string]assignFunc{
	"lpep_pickup_datetime": func(r models.RawTripRecord, v any, c *column) {
		r.(*models.GreenTrip).LpepPickupDatetime = c.asTime(v)
	},
	"lpep_dropoff_datetime": func(r models.RawTripRecord, v any, c *column) {
		r.(*models.GreenTrip).LpepDropoffDatetime = c.asTime(v)
	},
	"trip_type": func(r models.RawTripRecord, v any, _ *column) {
		r.(*models.GreenTrip).TripType = asInt(v)
	},
	"ehail_fee": func(r models.RawTripRecord, v any, _ *column) {
		r.(*models.GreenTrip).EhailFee = asFloat(v)
	},
}

// requiredColumns are the source columns behind mandatory canonical fields.
var requiredColumns = map[models.TaxiKind][]string{
	models.KindYellow: {"vendorid", "tpep_pickup_datetime", "tpep_dropoff_datetime", "trip_distance",
		"pulocationid", "dolocationid", "payment_type", "fare_amount", "extra", "mta_tax",
		"tip_amount", "tolls_amount", "improvement_surcharge", "total_amount"},
	models.KindGreen: {"vendorid", "lpep_pickup_datetime", "lpep_dropoff_datetime", "trip_distance",
		"pulocationid", "dolocationid", "fare_amount", "extra", "mta_tax",
		"tip_amount", "tolls_amount", "improvement_surcharge", "total_amount"},
}

func lookupAssign(kind models.TaxiKind, name string) (assignFunc, bool) {
	key := strings.ToLower(name)
	if f, ok := sharedColumns[key]; ok {
		return f, true
	}
	switch kind {
	case models.KindYellow:
		f, ok := yellowColumns[key]
		return f, ok
	case models.KindGreen:
		f, ok := greenColumns[key]
		return f, ok
	}
	return nil, false
}

func sharedInt(field func(*models.RawCommon) **int64) assignFunc {
	return func(r models.RawTripRecord, v any, _ *column) { *field(r.Shared()) = asInt(v) }
}

func sharedFloat(field func(*models.RawCommon) **float64) assignFunc {
	return func(r models.RawTripRecord, v any, _ *column) { *field(r.Shared()) = asFloat(v) }
}

func sharedString(field func(*models.RawCommon) **string) assignFunc {
	return func(r models.RawTripRecord, v any, _ *column) { *field(r.Shared()) = asString(v) }
}

// asInt accepts every numeric physical type; whole floats (pandas writes
// nullable ints as DOUBLE) are truncated, NaN and garbage become nil.
func asInt(v any) *int64 {
	var n int64
	switch x := v.(type) {
	case int32:
		n = int64(x)
	case int64:
		n = x
	case float64:
		if math.IsNaN(x) || math.IsInf(x, 0) {
			return nil
		}
		n = int64(x)
	case float32:
		if math.IsNaN(float64(x)) {
			return nil
		}
		n = int64(x)
	case string:
		p, err := strconv.ParseInt(strings.TrimSpace(x), 10, 64)
		if err != nil {
			return nil
		}
		n = p
	default:
		return nil
	}
	return &n
}

func asFloat(v any) *float64 {
	var f float64
	switch x := v.(type) {
	case float64:
		f = x
	case float32:
		f = float64(x)
	case int32:
		f = float64(x)
	case int64:
		f = float64(x)
	case string:
		p, err := strconv.ParseFloat(strings.TrimSpace(x), 64)
		if err != nil {
			return nil
		}
		f = p
	default:
		return nil
	}
	if math.IsNaN(f) {
		return nil
	}
	return &f
}

func asString(v any) *string {
	switch x := v.(type) {
	case string:
		return &x
	case int32:
		s := strconv.FormatInt(int64(x), 10)
		return &s
	case int64:
		s := strconv.FormatInt(x, 10)
		return &s
	}
	return nil
}

// asTime decodes INT64 timestamps in the column's unit and INT96 values.
// Results are wall-clock times in UTC.
func (c *column) asTime(v any) *time.Time {
	var t time.Time
	switch x := v.(type) {
	case int64:
		switch c.unit {
		case unitMillis:
			t = time.UnixMilli(x)
		case unitNanos:
			t = time.Unix(0, x)
		default:
			t = time.UnixMicro(x)
		}
	case string:
		if c.ptype != parquet.Type_INT96 || len(x) != 12 {
			return nil
		}
		t = types.INT96ToTime(x)
	default:
		return nil
	}
	t = t.UTC()
	return &t
}

func timeUnitOf(el *parquet.SchemaElement) timeUnit {
	if lt := el.GetLogicalType(); lt != nil && lt.IsSetTIMESTAMP() {
		u := lt.GetTIMESTAMP().GetUnit()
		switch {
		case u.IsSetMILLIS():
			return unitMillis
		case u.IsSetNANOS():
			return unitNanos
		}
		return unitMicros
	}
	if el.ConvertedType != nil && *el.ConvertedType == parquet.ConvertedType_TIMESTAMP_MILLIS {
		return unitMillis
	}
	return unitMicros
}
