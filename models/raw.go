package models

import "time"

// RawTripRecord is one trip as published by the TLC. It is implemented only
// by *YellowTrip and *GreenTrip; nil pointer fields are values missing from
// the source row.
type RawTripRecord interface {
	Kind() TaxiKind
	Shared() *RawCommon
	rawTrip()
}

// RawCommon holds the columns both publications share.
type RawCommon struct {
	VendorID             *int64
	PassengerCount       *int64
	TripDistance         *float64
	RatecodeID           *int64
	StoreAndFwdFlag      *string
	PULocationID         *int64
	DOLocationID         *int64
	PaymentType          *int64
	FareAmount           *float64
	Extra                *float64
	MTATax               *float64
	TipAmount            *float64
	TollsAmount          *float64
	ImprovementSurcharge *float64
	TotalAmount          *float64
	CongestionSurcharge  *float64
}

// YellowTrip is a row of yellow_tripdata_*.parquet.
type YellowTrip struct {
	RawCommon
	TpepPickupDatetime  *time.Time
	TpepDropoffDatetime *time.Time
	AirportFee          *float64
}

// GreenTrip is a row of green_tripdata_*.parquet.
type GreenTrip struct {
	RawCommon
	LpepPickupDatetime  *time.Time
	LpepDropoffDatetime *time.Time
	TripType            *int64
	EhailFee            *float64
}

func (*YellowTrip) Kind() TaxiKind { return KindYellow }
func (y *YellowTrip) Shared() *RawCommon { return &y.RawCommon }
func (*YellowTrip) rawTrip() {}

func (*GreenTrip) Kind() TaxiKind { return KindGreen }
func (g *GreenTrip) Shared() *RawCommon { return &g.RawCommon }
func (*GreenTrip) rawTrip() {}

// NewRawTrip returns an empty record of the given kind.
func NewRawTrip(kind TaxiKind) RawTripRecord {
	if kind == KindGreen {
		return &GreenTrip{}
	}
	return &YellowTrip{}
}

// RawBatch is a slice of consecutive rows read from one source file.
type RawBatch struct {
	BatchID    string
	Kind       TaxiKind
	SourceFile string
	// Offset is the row index of Records[0] within SourceFile.
	Offset  int
	Records []RawTripRecord
	ReadAt  time.Time
}

// Ptr returns a pointer to v. Handy for building raw records.
func Ptr[T any](v T) *T { return &v }
