// Package normalizer maps raw TLC trip rows of either taxi kind onto the
// canonical trip record and derives the analytics fields.
package normalizer

import (
	"fmt"
	"time"

	"taxiflow/models"
)

// Normalizer is stateless apart from its Policy and safe for concurrent use.
type Normalizer struct {
	policy Policy
}

func New(policy Policy) *Normalizer {
	return &Normalizer{policy: policy}
}

func (n *Normalizer) Policy() Policy { return n.policy }

var defaultNormalizer = New(DefaultPolicy())

// Normalize uses DefaultPolicy.
func Normalize(raw models.RawTripRecord) (models.CanonicalTripRecord, []error, error) {
	return defaultNormalizer.Normalize(raw)
}

// Normalize maps raw onto a canonical record. The error is a
// *MissingFieldError when mandatory fields are missing; warnings carry
// non-fatal findings such as *TimestampOrderError.
func (n *Normalizer) Normalize(raw models.RawTripRecord) (models.CanonicalTripRecord, []error, error) {
	var out models.CanonicalTripRecord
	if raw == nil {
		return out, nil, fmt.Errorf("normalize: nil raw record")
	}

	f := &fieldReader{kind: raw.Kind()}
	var pickup, dropoff time.Time

	switch r := raw.(type) {
	case *models.YellowTrip:
		if r == nil {
			return out, nil, fmt.Errorf("normalize: nil %s raw record", models.KindYellow)
		}
		pickup = f.time(models.ColPickupDatetime, r.TpepPickupDatetime)
		dropoff = f.time(models.ColDropoffDatetime, r.TpepDropoffDatetime)
		out.AirportFee = f.float(models.ColAirportFee, r.AirportFee)
		out.TripType = int32(f.absent(models.ColTripType))
	case *models.GreenTrip:
		if r == nil {
			return out, nil, fmt.Errorf("normalize: nil %s raw record", models.KindGreen)
		}
		pickup = f.time(models.ColPickupDatetime, r.LpepPickupDatetime)
		dropoff = f.time(models.ColDropoffDatetime, r.LpepDropoffDatetime)
		out.TripType = f.int(models.ColTripType, r.TripType)
		out.AirportFee = f.absent(models.ColAirportFee)
	default:
		return out, nil, fmt.Errorf("normalize: unsupported raw record %T", raw)
	}

	c := raw.Shared()
	out.TaxiKind = raw.Kind()
	out.VendorID = f.int(models.ColVendorID, c.VendorID)
	out.PassengerCount = f.int(models.ColPassengerCount, c.PassengerCount)
	out.TripDistance = f.float(models.ColTripDistance, c.TripDistance)
	out.RateCodeID = f.int(models.ColRateCodeID, c.RatecodeID)
	out.StoreAndFwdFlag = f.flag(models.ColStoreAndFwdFlag, c.StoreAndFwdFlag)
	out.PickupLocationID = f.int(models.ColPickupLocationID, c.PULocationID)
	out.DropoffLocationID = f.int(models.ColDropoffLocationID, c.DOLocationID)
	out.PaymentType = f.int(models.ColPaymentType, c.PaymentType)
	out.FareAmount = f.float(models.ColFareAmount, c.FareAmount)
	out.Extra = f.float(models.ColExtra, c.Extra)
	out.MTATax = f.float(models.ColMTATax, c.MTATax)
	out.TipAmount = f.float(models.ColTipAmount, c.TipAmount)
	out.TollsAmount = f.float(models.ColTollsAmount, c.TollsAmount)
	out.ImprovementSurcharge = f.float(models.ColImprovementSurcharge, c.ImprovementSurcharge)
	out.CongestionSurcharge = f.float(models.ColCongestionSurcharge, c.CongestionSurcharge)
	out.TotalAmount = f.float(models.ColTotalAmount, c.TotalAmount)

	if len(f.missing) > 0 {
		return models.CanonicalTripRecord{}, nil, &MissingFieldError{Kind: raw.Kind(), Fields: f.missing}
	}

	out.PickupDatetime = pickup
	out.DropoffDatetime = dropoff
	n.derive(&out)

	var warnings []error
	if dropoff.Before(pickup) {
		warnings = append(warnings, &TimestampOrderError{Kind: raw.Kind(), Pickup: pickup, Dropoff: dropoff})
	}
	return out, warnings, nil
}

// derive fills the temporal fields and guarded ratios from the raw values
// already copied into c.
func (n *Normalizer) derive(c *models.CanonicalTripRecord) {
	pickup := c.PickupDatetime
	c.TripDurationMinutes = c.DropoffDatetime.Sub(pickup).Minutes()
	c.PickupHour = int32(pickup.Hour())
	c.PickupDayOfWeek = DayOfWeek(pickup)
	c.PickupDate = DateOf(pickup)

	if c.FareAmount > 0 {
		c.TipPercentage = clamp(c.TipAmount/c.FareAmount*100, n.policy.TipPercentageCap)
	} else {
		c.TipPercentage = n.policy.ZeroFareTipPercentage
	}

	if c.TripDurationMinutes > 0 {
		c.AvgSpeedMPH = clamp(c.TripDistance/(c.TripDurationMinutes/60), n.policy.SpeedCap)
	} else {
		c.AvgSpeedMPH = n.policy.ZeroDurationSpeed
	}
}

// DayOfWeek numbers days Monday=0 through Sunday=6.
func DayOfWeek(t time.Time) int32 {
	return int32((t.Weekday() + 6) % 7)
}

// DateOf truncates t to its calendar date, as midnight UTC.
func DateOf(t time.Time) time.Time {
	y, m, d := t.Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}
