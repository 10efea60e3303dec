package normalizer

import (
	"context"
	"errors"
	"math"
	"reflect"
	"testing"
	"time"

	"taxiflow/models"
)

func ts(s string) *time.Time {
	t, err := time.Parse("2006-01-02T15:04:05", s)
	if err != nil {
		panic(err)
	}
	return &t
}

func common(distance, fare, tip float64) models.RawCommon {
	return models.RawCommon{
		VendorID:             models.Ptr[int64](2),
		TripDistance:         models.Ptr(distance),
		PULocationID:         models.Ptr[int64](132),
		DOLocationID:         models.Ptr[int64](236),
		PaymentType:          models.Ptr[int64](1),
		FareAmount:           models.Ptr(fare),
		Extra:                models.Ptr(0.5),
		MTATax:               models.Ptr(0.5),
		TipAmount:            models.Ptr(tip),
		TollsAmount:          models.Ptr(0.0),
		ImprovementSurcharge: models.Ptr(1.0),
		TotalAmount:          models.Ptr(fare + tip + 2),
	}
}

func yellow(pickup, dropoff string, distance, fare, tip float64) *models.YellowTrip {
	return &models.YellowTrip{
		RawCommon:           common(distance, fare, tip),
		TpepPickupDatetime:  ts(pickup),
		TpepDropoffDatetime: ts(dropoff),
	}
}

func green(pickup, dropoff string, distance, fare, tip float64) *models.GreenTrip {
	return &models.GreenTrip{
		RawCommon:           common(distance, fare, tip),
		LpepPickupDatetime:  ts(pickup),
		LpepDropoffDatetime: ts(dropoff),
	}
}

func TestYellowScenario(t *testing.T) {
	out, warns, err := Normalize(yellow("2024-01-01T08:00:00", "2024-01-01T08:15:00", 2.5, 10.0, 2.0))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if len(warns) != 0 {
		t.Fatalf("unexpected warnings: %v", warns)
	}
	if out.TaxiKind != models.KindYellow {
		t.Errorf("taxi_kind = %q", out.TaxiKind)
	}
	if out.TripDurationMinutes != 15.0 {
		t.Errorf("duration = %v, want 15", out.TripDurationMinutes)
	}
	if out.PickupHour != 8 {
		t.Errorf("pickup_hour = %d, want 8", out.PickupHour)
	}
	if out.TipPercentage != 20.0 {
		t.Errorf("tip_percentage = %v, want 20", out.TipPercentage)
	}
	if out.AvgSpeedMPH != 10.0 {
		t.Errorf("avg_speed = %v, want 10", out.AvgSpeedMPH)
	}
	// 2024-01-01 is a Monday
	if out.PickupDayOfWeek != 0 {
		t.Errorf("pickup_day_of_week = %d, want 0", out.PickupDayOfWeek)
	}
	if got := out.PickupDate.Format(models.DateLayout); got != "2024-01-01" {
		t.Errorf("pickup_date = %s", got)
	}
}

func TestDefaults(t *testing.T) {
	out, _, err := Normalize(yellow("2024-01-01T08:00:00", "2024-01-01T08:15:00", 2.5, 10, 2))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.PassengerCount != 1 || out.RateCodeID != 1 {
		t.Errorf("passenger_count/rate_code_id defaults: %d/%d", out.PassengerCount, out.RateCodeID)
	}
	if out.StoreAndFwdFlag || out.CongestionSurcharge != 0 || out.AirportFee != 0 || out.TripType != 0 {
		t.Errorf("unexpected defaults: %+v", out)
	}
}

func TestGreenWithoutAirportFee(t *testing.T) {
	raw := green("2024-03-05T23:50:00", "2024-03-06T00:10:00", 3, 14, 0)
	raw.TripType = models.Ptr[int64](2)
	raw.EhailFee = models.Ptr(9.99)

	out, _, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.TaxiKind != models.KindGreen {
		t.Fatalf("taxi_kind = %q", out.TaxiKind)
	}
	if out.AirportFee != 0 {
		t.Fatalf("airport_fee = %v, want 0", out.AirportFee)
	}
	if out.TripType != 2 {
		t.Fatalf("trip_type = %d, want 2", out.TripType)
	}
}

func TestGreenPaymentTypeDefaulted(t *testing.T) {
	raw := green("2024-03-05T10:00:00", "2024-03-05T10:10:00", 1, 8, 0)
	raw.PaymentType = nil
	out, _, err := Normalize(raw)
	if err != nil {
		t.Fatalf("green payment_type must default: %v", err)
	}
	if out.PaymentType != 0 {
		t.Fatalf("payment_type = %d", out.PaymentType)
	}

	y := yellow("2024-03-05T10:00:00", "2024-03-05T10:10:00", 1, 8, 0)
	y.PaymentType = nil
	if _, _, err := Normalize(y); !errors.Is(err, ErrMissingField) {
		t.Fatalf("yellow payment_type must be mandatory, got %v", err)
	}
}

func TestMissingFields(t *testing.T) {
	raw := yellow("2024-01-01T08:00:00", "2024-01-01T08:15:00", 2.5, 10, 2)
	raw.FareAmount = nil
	raw.TpepDropoffDatetime = nil

	_, _, err := Normalize(raw)
	if !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected ErrMissingField, got %v", err)
	}
	var mf *MissingFieldError
	if !errors.As(err, &mf) {
		t.Fatalf("expected *MissingFieldError, got %T", err)
	}
	want := []string{models.ColDropoffDatetime, models.ColFareAmount}
	if mf.Kind != models.KindYellow || !reflect.DeepEqual(mf.Fields, want) {
		t.Fatalf("unexpected error detail: %+v", mf)
	}
}

func TestNaNIsMissing(t *testing.T) {
	raw := green("2024-01-01T08:00:00", "2024-01-01T08:15:00", 2.5, 10, 2)
	nan := 0.0
	nan = nan / nan
	raw.TipAmount = &nan
	if _, _, err := Normalize(raw); !errors.Is(err, ErrMissingField) {
		t.Fatalf("expected NaN tip to be missing, got %v", err)
	}
}

func TestInfinityIsMissing(t *testing.T) {
	raw := yellow("2024-01-01T08:00:00", "2024-01-01T08:15:00", 2.5, 10, 2)
	inf := math.Inf(1)
	raw.TripDistance = &inf
	_, _, err := Normalize(raw)
	var mf *MissingFieldError
	if !errors.As(err, &mf) || !reflect.DeepEqual(mf.Fields, []string{models.ColTripDistance}) {
		t.Fatalf("expected +Inf distance to be missing, got %v", err)
	}

	raw = yellow("2024-01-01T08:00:00", "2024-01-01T08:15:00", 2.5, 10, 2)
	ninf := math.Inf(-1)
	raw.CongestionSurcharge = &ninf
	out, _, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.CongestionSurcharge != 0 {
		t.Fatalf("expected -Inf surcharge to default to 0, got %v", out.CongestionSurcharge)
	}
}

func TestOutOfRangeIntegers(t *testing.T) {
	raw := yellow("2024-01-01T08:00:00", "2024-01-01T08:15:00", 2.5, 10, 2)
	raw.PULocationID = models.Ptr[int64](5_000_000_000)
	raw.VendorID = models.Ptr[int64](math.MinInt32 - 1)
	_, _, err := Normalize(raw)
	var mf *MissingFieldError
	if !errors.As(err, &mf) {
		t.Fatalf("expected *MissingFieldError, got %v", err)
	}
	want := []string{models.ColVendorID, models.ColPickupLocationID}
	if !reflect.DeepEqual(mf.Fields, want) {
		t.Fatalf("missing fields = %v, want %v", mf.Fields, want)
	}

	raw = yellow("2024-01-01T08:00:00", "2024-01-01T08:15:00", 2.5, 10, 2)
	raw.PassengerCount = models.Ptr[int64](math.MaxInt32 + 1)
	raw.DOLocationID = models.Ptr[int64](math.MaxInt32)
	out, _, err := Normalize(raw)
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.PassengerCount != 1 {
		t.Errorf("expected out-of-range passenger_count to default to 1, got %d", out.PassengerCount)
	}
	if out.DropoffLocationID != math.MaxInt32 {
		t.Errorf("expected boundary zone id to be kept, got %d", out.DropoffLocationID)
	}
}

func TestTypedNilRawRecord(t *testing.T) {
	for _, raw := range []models.RawTripRecord{(*models.YellowTrip)(nil), (*models.GreenTrip)(nil)} {
		if _, _, err := Normalize(raw); err == nil {
			t.Errorf("expected an error for typed nil %T", raw)
		}
	}

	res, err := New(DefaultPolicy()).NormalizeAll(context.Background(), []models.RawTripRecord{
		(*models.GreenTrip)(nil),
		yellow("2024-01-01T08:00:00", "2024-01-01T08:15:00", 2.5, 10, 2),
	}, 2)
	if err != nil {
		t.Fatalf("NormalizeAll: %v", err)
	}
	if len(res.Records) != 1 || len(res.Rejections) != 1 || res.Rejections[0].Kind != models.KindGreen {
		t.Fatalf("unexpected batch result %+v", res)
	}
}

func TestDropoffBeforePickup(t *testing.T) {
	out, warns, err := Normalize(yellow("2024-01-01T08:15:00", "2024-01-01T08:00:00", 2.5, 10, 2))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.TripDurationMinutes != -15 {
		t.Fatalf("duration = %v, want -15", out.TripDurationMinutes)
	}
	if out.AvgSpeedMPH != 0 {
		t.Fatalf("avg_speed = %v, want sentinel 0", out.AvgSpeedMPH)
	}
	if len(warns) != 1 || !errors.Is(warns[0], ErrTimestampOrder) {
		t.Fatalf("expected one timestamp order warning, got %v", warns)
	}
	var te *TimestampOrderError
	if !errors.As(warns[0], &te) || !te.Dropoff.Before(te.Pickup) {
		t.Fatalf("unexpected warning detail: %v", warns[0])
	}
}

func TestTipPercentageExact(t *testing.T) {
	pairs := [][2]float64{{10, 2}, {7.3, 1.11}, {52.5, 10}, {3.33, 0}, {0.01, 100}, {19.9, 3.98}}
	for _, p := range pairs {
		fare, tip := p[0], p[1]
		out, _, err := Normalize(yellow("2024-01-01T08:00:00", "2024-01-01T08:15:00", 1, fare, tip))
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if want := tip / fare * 100; out.TipPercentage != want {
			t.Errorf("fare %v tip %v: tip_percentage %v, want %v", fare, tip, out.TipPercentage, want)
		}
	}
}

func TestZeroAndNegativeFareSentinel(t *testing.T) {
	for _, fare := range []float64{0, -5} {
		out, _, err := Normalize(yellow("2024-01-01T08:00:00", "2024-01-01T08:15:00", 1, fare, 2))
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if out.TipPercentage != 0 {
			t.Errorf("fare %v: tip_percentage = %v, want 0", fare, out.TipPercentage)
		}
	}
}

func TestPolicySentinelsAndCaps(t *testing.T) {
	n := New(Policy{ZeroFareTipPercentage: -1, ZeroDurationSpeed: -1, TipPercentageCap: 100, SpeedCap: 60})

	out, _, err := n.Normalize(yellow("2024-01-01T08:00:00", "2024-01-01T08:00:00", 1, 0, 2))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.TipPercentage != -1 || out.AvgSpeedMPH != -1 {
		t.Fatalf("sentinels not applied: tip %v speed %v", out.TipPercentage, out.AvgSpeedMPH)
	}

	out, _, err = n.Normalize(yellow("2024-01-01T08:00:00", "2024-01-01T08:01:00", 5, 1, 5))
	if err != nil {
		t.Fatalf("Normalize: %v", err)
	}
	if out.TipPercentage != 100 || out.AvgSpeedMPH != 60 {
		t.Fatalf("caps not applied: tip %v speed %v", out.TipPercentage, out.AvgSpeedMPH)
	}
}

func TestPickupDateIgnoresTimeOfDay(t *testing.T) {
	for _, pickup := range []string{"2024-02-29T00:00:00", "2024-02-29T12:34:56", "2024-02-29T23:59:59"} {
		out, _, err := Normalize(green(pickup, "2024-03-01T01:00:00", 1, 5, 1))
		if err != nil {
			t.Fatalf("Normalize: %v", err)
		}
		if got := out.PickupDate.Format(models.DateLayout); got != "2024-02-29" {
			t.Errorf("pickup %s: pickup_date = %s", pickup, got)
		}
		if !out.PickupDate.Equal(DateOf(*ts(pickup))) {
			t.Errorf("pickup_date differs from DateOf")
		}
	}
}

func TestDayOfWeekMondayZero(t *testing.T) {
	// 2024-01-01 Monday .. 2024-01-07 Sunday
	for i := 0; i < 7; i++ {
		d := time.Date(2024, 1, 1+i, 12, 0, 0, 0, time.UTC)
		if got := DayOfWeek(d); got != int32(i) {
			t.Errorf("%s: day of week %d, want %d", d.Weekday(), got, i)
		}
	}
}

func TestNormalizeIsDeterministic(t *testing.T) {
	raw := green("2024-05-10T17:42:13", "2024-05-10T18:03:58", 4.21, 23.3, 4.66)
	a, wa, ea := Normalize(raw)
	b, wb, eb := Normalize(raw)
	if ea != nil || eb != nil {
		t.Fatalf("unexpected errors: %v %v", ea, eb)
	}
	if !reflect.DeepEqual(a, b) || len(wa) != len(wb) {
		t.Fatalf("outputs differ: %+v vs %+v", a, b)
	}
}

func TestStoreAndForwardFlag(t *testing.T) {
	raw := yellow("2024-01-01T08:00:00", "2024-01-01T08:15:00", 2.5, 10, 2)
	raw.StoreAndFwdFlag = models.Ptr("Y")
	out, _, _ := Normalize(raw)
	if !out.StoreAndFwdFlag {
		t.Fatalf("expected flag true for Y")
	}
	raw.StoreAndFwdFlag = models.Ptr("?")
	out, _, _ = Normalize(raw)
	if out.StoreAndFwdFlag {
		t.Fatalf("expected default false for unknown flag")
	}
}

func TestNormalizeAll(t *testing.T) {
	var raws []models.RawTripRecord
	for i := 0; i < 100; i++ {
		r := yellow("2024-01-01T08:00:00", "2024-01-01T08:15:00", float64(i+1), 10, 2)
		if i%10 == 3 {
			r.TotalAmount = nil
		}
		if i%25 == 0 {
			r.TpepPickupDatetime, r.TpepDropoffDatetime = r.TpepDropoffDatetime, r.TpepPickupDatetime
		}
		raws = append(raws, r)
	}
	raws = append(raws, green("2024-01-01T09:00:00", "2024-01-01T09:30:00", 1, 5, 0))

	res, err := New(DefaultPolicy()).NormalizeAll(context.Background(), raws, 7)
	if err != nil {
		t.Fatalf("NormalizeAll: %v", err)
	}
	if len(res.Rejections) != 10 {
		t.Fatalf("rejections = %d, want 10", len(res.Rejections))
	}
	if len(res.Records) != 91 {
		t.Fatalf("records = %d, want 91", len(res.Records))
	}
	if len(res.Warnings) != 4 {
		t.Fatalf("warnings = %d, want 4", len(res.Warnings))
	}
	for _, r := range res.Rejections {
		if r.Index%10 != 3 || !errors.Is(r.Err, ErrMissingField) || r.Kind != models.KindYellow {
			t.Fatalf("unexpected rejection %+v", r)
		}
	}
	// input order preserved
	prev := 0.0
	for _, rec := range res.Records[:90] {
		if rec.TripDistance <= prev {
			t.Fatalf("records out of input order")
		}
		prev = rec.TripDistance
	}
	if res.Records[90].TaxiKind != models.KindGreen {
		t.Fatalf("last record should be green")
	}
}

func TestNormalizeAllCanceled(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	raws := []models.RawTripRecord{yellow("2024-01-01T08:00:00", "2024-01-01T08:15:00", 1, 1, 1)}
	if _, err := New(DefaultPolicy()).NormalizeAll(ctx, raws, 2); !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
}

func TestQualityFilter(t *testing.T) {
	q := &QualityFilter{MaxDistance: 200, MinDuration: 0.5, MaxDuration: 480, MaxFareAmount: 1000, MaxTotalAmount: 1000}
	ok := models.CanonicalTripRecord{TripDistance: 2, TripDurationMinutes: 10, FareAmount: 10, TotalAmount: 12}
	if got := q.Check(&ok); got != "" {
		t.Fatalf("expected pass, failed on %s", got)
	}
	cases := map[string]models.CanonicalTripRecord{
		models.ColTripDistance:        {TripDistance: 0, TripDurationMinutes: 10, FareAmount: 10, TotalAmount: 12},
		models.ColTripDurationMinutes: {TripDistance: 2, TripDurationMinutes: 0.5, FareAmount: 10, TotalAmount: 12},
		models.ColFareAmount:          {TripDistance: 2, TripDurationMinutes: 10, FareAmount: 1000, TotalAmount: 12},
		models.ColTotalAmount:         {TripDistance: 2, TripDurationMinutes: 480, FareAmount: 10, TotalAmount: -1},
	}
	for want, rec := range cases {
		if got := q.Check(&rec); got != want {
			t.Errorf("Check = %q, want %q", got, want)
		}
	}
	var none *QualityFilter
	if none.Check(&models.CanonicalTripRecord{}) != "" {
		t.Fatalf("nil filter must pass everything")
	}
}
