package models

import "time"

// Persisted column names of a canonical trip, in storage order.
const (
	ColTaxiKind             = "taxi_kind"
	ColVendorID             = "vendor_id"
	ColPickupDatetime       = "pickup_datetime"
	ColDropoffDatetime      = "dropoff_datetime"
	ColPassengerCount       = "passenger_count"
	ColTripDistance         = "trip_distance"
	ColRateCodeID           = "rate_code_id"
	ColStoreAndFwdFlag      = "store_and_fwd_flag"
	ColPickupLocationID     = "pickup_location_id"
	ColDropoffLocationID    = "dropoff_location_id"
	ColPaymentType          = "payment_type"
	ColTripType             = "trip_type"
	ColFareAmount           = "fare_amount"
	ColExtra                = "extra"
	ColMTATax               = "mta_tax"
	ColTipAmount            = "tip_amount"
	ColTollsAmount          = "tolls_amount"
	ColImprovementSurcharge = "improvement_surcharge"
	ColCongestionSurcharge  = "congestion_surcharge"
	ColAirportFee           = "airport_fee"
	ColTotalAmount          = "total_amount"
	ColTripDurationMinutes  = "trip_duration_minutes"
	ColPickupHour           = "pickup_hour"
	ColPickupDayOfWeek      = "pickup_day_of_week"
	ColPickupDate           = "pickup_date"
	ColTipPercentage        = "tip_percentage"
	ColAvgSpeedMPH          = "avg_speed_mph"
)

// CanonicalColumns is the column order used by every store and by Values.
var CanonicalColumns = []string{
	ColTaxiKind, ColVendorID, ColPickupDatetime, ColDropoffDatetime,
	ColPassengerCount, ColTripDistance, ColRateCodeID, ColStoreAndFwdFlag,
	ColPickupLocationID, ColDropoffLocationID, ColPaymentType, ColTripType,
	ColFareAmount, ColExtra, ColMTATax, ColTipAmount, ColTollsAmount,
	ColImprovementSurcharge, ColCongestionSurcharge, ColAirportFee, ColTotalAmount,
	ColTripDurationMinutes, ColPickupHour, ColPickupDayOfWeek, ColPickupDate,
	ColTipPercentage, ColAvgSpeedMPH,
}

// DateLayout formats pickup_date and partition values.
const DateLayout = "2006-01-02"

// CanonicalTripRecord is the analytics shape shared by both taxi kinds.
// Timestamps are NYC wall-clock times carried in the UTC location.
// Derived fields (duration through avg speed) are only set by the normalizer.
type CanonicalTripRecord struct {
	TaxiKind             TaxiKind  `json:"taxi_kind"`
	VendorID             int32     `json:"vendor_id"`
	PickupDatetime       time.Time `json:"pickup_datetime"`
	DropoffDatetime      time.Time `json:"dropoff_datetime"`
	PassengerCount       int32     `json:"passenger_count"`
	TripDistance         float64   `json:"trip_distance"`
	RateCodeID           int32     `json:"rate_code_id"`
	StoreAndFwdFlag      bool      `json:"store_and_fwd_flag"`
	PickupLocationID     int32     `json:"pickup_location_id"`
	DropoffLocationID    int32     `json:"dropoff_location_id"`
	PaymentType          int32     `json:"payment_type"`
	TripType             int32     `json:"trip_type"`
	FareAmount           float64   `json:"fare_amount"`
	Extra                float64   `json:"extra"`
	MTATax               float64   `json:"mta_tax"`
	TipAmount            float64   `json:"tip_amount"`
	TollsAmount          float64   `json:"tolls_amount"`
	ImprovementSurcharge float64   `json:"improvement_surcharge"`
	CongestionSurcharge  float64   `json:"congestion_surcharge"`
	AirportFee           float64   `json:"airport_fee"`
	TotalAmount          float64   `json:"total_amount"`

	TripDurationMinutes float64   `json:"trip_duration_minutes"`
	PickupHour          int32     `json:"pickup_hour"`
	PickupDayOfWeek     int32     `json:"pickup_day_of_week"`
	PickupDate          time.Time `json:"pickup_date"`
	TipPercentage       float64   `json:"tip_percentage"`
	AvgSpeedMPH         float64   `json:"avg_speed_mph"`
}

// Values returns the record in CanonicalColumns order using plain Go types
// accepted by the database drivers.
func (c *CanonicalTripRecord) Values() []any {
	return []any{
		string(c.TaxiKind), c.VendorID, c.PickupDatetime, c.DropoffDatetime,
		c.PassengerCount, c.TripDistance, c.RateCodeID, c.StoreAndFwdFlag,
		c.PickupLocationID, c.DropoffLocationID, c.PaymentType, c.TripType,
		c.FareAmount, c.Extra, c.MTATax, c.TipAmount, c.TollsAmount,
		c.ImprovementSurcharge, c.CongestionSurcharge, c.AirportFee, c.TotalAmount,
		c.TripDurationMinutes, c.PickupHour, c.PickupDayOfWeek, c.PickupDate,
		c.TipPercentage, c.AvgSpeedMPH,
	}
}

// ScanTargets returns pointers in CanonicalColumns order for rows.Scan.
// taxi_kind is scanned into kind; callers convert it back to TaxiKind.
func (c *CanonicalTripRecord) ScanTargets(kind *string) []any {
	return []any{
		kind, &c.VendorID, &c.PickupDatetime, &c.DropoffDatetime,
		&c.PassengerCount, &c.TripDistance, &c.RateCodeID, &c.StoreAndFwdFlag,
		&c.PickupLocationID, &c.DropoffLocationID, &c.PaymentType, &c.TripType,
		&c.FareAmount, &c.Extra, &c.MTATax, &c.TipAmount, &c.TollsAmount,
		&c.ImprovementSurcharge, &c.CongestionSurcharge, &c.AirportFee, &c.TotalAmount,
		&c.TripDurationMinutes, &c.PickupHour, &c.PickupDayOfWeek, &c.PickupDate,
		&c.TipPercentage, &c.AvgSpeedMPH,
	}
}

// PartitionDate is the pickup_date formatted as YYYY-MM-DD.
func (c *CanonicalTripRecord) PartitionDate() string {
	return c.PickupDate.Format(DateLayout)
}

// Key returns the ordering/partition key of the record.
func (c *CanonicalTripRecord) Key() OrderingKey {
	return OrderingKey{
		PickupDate:        c.PickupDate,
		PickupHour:        c.PickupHour,
		PickupLocationID:  c.PickupLocationID,
		DropoffLocationID: c.DropoffLocationID,
	}
}

// CanonicalBatch groups records of one kind sharing a pickup_date,
// sorted by OrderingKey.
type CanonicalBatch struct {
	BatchID       string                `json:"batch_id"`
	Kind          TaxiKind              `json:"taxi_kind"`
	PartitionDate string                `json:"partition_date"`
	SourceFiles   []string              `json:"source_files"`
	Records       []CanonicalTripRecord `json:"records"`
	RecordCount   int                   `json:"record_count"`
	ProcessedAt   time.Time             `json:"processed_at"`
}
