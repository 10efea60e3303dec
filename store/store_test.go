package store

import (
	"context"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/ClickHouse/clickhouse-go/v2"

	"taxiflow/models"
	"taxiflow/union"
)

func trip(kind models.TaxiKind, date string, hour, pu int32) models.CanonicalTripRecord {
	d, _ := time.Parse(models.DateLayout, date)
	pickup := d.Add(time.Duration(hour)*time.Hour + 7*time.Minute)
	return models.CanonicalTripRecord{
		TaxiKind:             kind,
		VendorID:             2,
		PickupDatetime:       pickup,
		DropoffDatetime:      pickup.Add(12 * time.Minute),
		PassengerCount:       1,
		TripDistance:         1.8,
		RateCodeID:           1,
		StoreAndFwdFlag:      true,
		PickupLocationID:     pu,
		DropoffLocationID:    100,
		PaymentType:          1,
		TripType:             2,
		FareAmount:           12.5,
		TipAmount:            2.5,
		ImprovementSurcharge: 1,
		AirportFee:           1.75,
		TotalAmount:          17.75,
		TripDurationMinutes:  12,
		PickupHour:           hour,
		PickupDayOfWeek:      int32(d.Weekday()),
		PickupDate:           d,
		TipPercentage:        20,
		AvgSpeedMPH:          9,
	}
}

func newTestStore(t *testing.T) *SQLiteStore {
	t.Helper()
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "trips.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	t.Cleanup(func() { s.Close() })
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("EnsureSchema: %v", err)
	}
	return s
}

func collect(t *testing.T, seq func(func(models.CanonicalTripRecord, error) bool)) []models.CanonicalTripRecord {
	t.Helper()
	var out []models.CanonicalTripRecord
	for rec, err := range seq {
		if err != nil {
			t.Fatalf("scan: %v", err)
		}
		out = append(out, rec)
	}
	return out
}

func TestSQLiteEnsureSchemaIdempotent(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()
	if err := s.EnsureSchema(ctx); err != nil {
		t.Fatalf("second EnsureSchema: %v", err)
	}
	for _, k := range models.Kinds {
		ok, err := s.TableExists(ctx, k)
		if err != nil {
			t.Fatalf("TableExists(%s): %v", k, err)
		}
		if !ok {
			t.Errorf("table %s missing", k.Table())
		}
	}
}

func TestSQLiteTableExistsBeforeSchema(t *testing.T) {
	ctx := context.Background()
	s, err := NewSQLiteStore(ctx, filepath.Join(t.TempDir(), "empty.db"))
	if err != nil {
		t.Fatalf("NewSQLiteStore: %v", err)
	}
	defer s.Close()
	ok, err := s.TableExists(ctx, models.KindYellow)
	if err != nil {
		t.Fatalf("TableExists: %v", err)
	}
	if ok {
		t.Fatal("expected no table before EnsureSchema")
	}
}

func TestSQLiteAppendAndScanOrdered(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	in := []models.CanonicalTripRecord{
		trip(models.KindYellow, "2024-01-02", 9, 50),
		trip(models.KindYellow, "2024-01-01", 23, 10),
		trip(models.KindYellow, "2024-01-01", 8, 90),
		trip(models.KindYellow, "2024-01-01", 8, 40),
	}
	if err := s.Append(ctx, models.KindYellow, in); err != nil {
		t.Fatalf("Append: %v", err)
	}

	got := collect(t, s.Scan(ctx, models.KindYellow, models.DateRange{}))
	if len(got) != len(in) {
		t.Fatalf("expected %d rows, got %d", len(in), len(got))
	}
	for i := 1; i < len(got); i++ {
		if got[i].Key().Less(got[i-1].Key()) {
			t.Fatalf("row %d out of order: %+v before %+v", i, got[i-1].Key(), got[i].Key())
		}
	}

	first := got[0]
	want := in[3]
	if first.TaxiKind != models.KindYellow {
		t.Errorf("expected yellow, got %q", first.TaxiKind)
	}
	if !first.PickupDatetime.Equal(want.PickupDatetime) || first.PickupDatetime.Location() != time.UTC {
		t.Errorf("pickup %v, want %v in UTC", first.PickupDatetime, want.PickupDatetime)
	}
	if !first.PickupDate.Equal(want.PickupDate) {
		t.Errorf("pickup_date %v, want %v", first.PickupDate, want.PickupDate)
	}
	if !first.StoreAndFwdFlag || first.PickupLocationID != 40 || first.TotalAmount != 17.75 {
		t.Errorf("unexpected row %+v", first)
	}
}

func TestSQLiteScanDateRange(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	var in []models.CanonicalTripRecord
	for _, d := range []string{"2024-01-01", "2024-01-02", "2024-01-03", "2024-01-04"} {
		in = append(in, trip(models.KindGreen, d, 12, 74))
	}
	if err := s.Append(ctx, models.KindGreen, in); err != nil {
		t.Fatalf("Append: %v", err)
	}

	r, err := models.ParseDateRange("2024-01-02", "2024-01-03")
	if err != nil {
		t.Fatalf("ParseDateRange: %v", err)
	}
	got := collect(t, s.Scan(ctx, models.KindGreen, r))
	if len(got) != 2 {
		t.Fatalf("expected 2 rows in range, got %d", len(got))
	}
	if got[0].PartitionDate() != "2024-01-02" || got[1].PartitionDate() != "2024-01-03" {
		t.Errorf("unexpected dates %s, %s", got[0].PartitionDate(), got[1].PartitionDate())
	}

	open := collect(t, s.Scan(ctx, models.KindGreen, models.DateRange{From: r.From}))
	if len(open) != 3 {
		t.Errorf("expected 3 rows from 2024-01-02, got %d", len(open))
	}
}

func TestSQLiteScanIsLazy(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	seq := s.Scan(ctx, models.KindYellow, models.DateRange{})
	if err := s.Append(ctx, models.KindYellow, []models.CanonicalTripRecord{trip(models.KindYellow, "2024-02-01", 1, 1)}); err != nil {
		t.Fatalf("Append: %v", err)
	}
	if got := collect(t, seq); len(got) != 1 {
		t.Fatalf("expected the row appended before iteration, got %d", len(got))
	}
}

func TestSQLiteScanUnionView(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	yellow := []models.CanonicalTripRecord{
		trip(models.KindYellow, "2024-01-01", 1, 1),
		trip(models.KindYellow, "2024-01-02", 1, 1),
	}
	green := []models.CanonicalTripRecord{
		trip(models.KindGreen, "2024-01-01", 2, 1),
	}
	if err := s.Append(ctx, models.KindYellow, yellow); err != nil {
		t.Fatalf("Append yellow: %v", err)
	}
	if err := s.Append(ctx, models.KindGreen, green); err != nil {
		t.Fatalf("Append green: %v", err)
	}

	got := collect(t, s.ScanUnion(ctx, models.DateRange{}))
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	counts := map[models.TaxiKind]int{}
	for _, rec := range got {
		counts[rec.TaxiKind]++
		switch rec.TaxiKind {
		case models.KindYellow:
			if rec.TripType != 0 {
				t.Errorf("yellow trip_type should read as 0, got %d", rec.TripType)
			}
			if rec.AirportFee != 1.75 {
				t.Errorf("yellow airport_fee lost: %v", rec.AirportFee)
			}
		case models.KindGreen:
			if rec.AirportFee != 0 {
				t.Errorf("green airport_fee should read as 0, got %v", rec.AirportFee)
			}
			if rec.TripType != 2 {
				t.Errorf("green trip_type lost: %d", rec.TripType)
			}
		default:
			t.Errorf("unexpected kind %q", rec.TaxiKind)
		}
	}
	if counts[models.KindYellow] != 2 || counts[models.KindGreen] != 1 {
		t.Errorf("unexpected kind counts %v", counts)
	}
}

func TestSQLiteUnionFromStore(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	if err := s.Append(ctx, models.KindYellow, []models.CanonicalTripRecord{trip(models.KindYellow, "2024-01-01", 1, 1)}); err != nil {
		t.Fatalf("Append yellow: %v", err)
	}
	if err := s.Append(ctx, models.KindGreen, []models.CanonicalTripRecord{
		trip(models.KindGreen, "2024-01-01", 1, 1),
		trip(models.KindGreen, "2024-01-01", 3, 1),
	}); err != nil {
		t.Fatalf("Append green: %v", err)
	}

	got := collect(t, union.FromStore(ctx, s, models.DateRange{}))
	if len(got) != 3 {
		t.Fatalf("expected 3 rows, got %d", len(got))
	}
	if got[0].TaxiKind != models.KindYellow || got[1].TaxiKind != models.KindGreen {
		t.Errorf("expected yellow rows before green rows, got %s, %s", got[0].TaxiKind, got[1].TaxiKind)
	}
}

func TestSQLiteStats(t *testing.T) {
	s := newTestStore(t)
	ctx := context.Background()

	empty, err := s.Stats(ctx, models.KindGreen)
	if err != nil {
		t.Fatalf("Stats on empty table: %v", err)
	}
	if empty.Rows != 0 || !empty.MinDate.IsZero() {
		t.Errorf("unexpected empty stats %+v", empty)
	}

	in := []models.CanonicalTripRecord{
		trip(models.KindGreen, "2024-03-05", 1, 1),
		trip(models.KindGreen, "2024-03-01", 1, 1),
		trip(models.KindGreen, "2024-03-01", 2, 1),
	}
	if err := s.Append(ctx, models.KindGreen, in); err != nil {
		t.Fatalf("Append: %v", err)
	}
	st, err := s.Stats(ctx, models.KindGreen)
	if err != nil {
		t.Fatalf("Stats: %v", err)
	}
	if st.Table != "green_taxi_trips" || st.Rows != 3 || st.Days != 2 {
		t.Errorf("unexpected stats %+v", st)
	}
	if st.MinDate.Format(models.DateLayout) != "2024-03-01" || st.MaxDate.Format(models.DateLayout) != "2024-03-05" {
		t.Errorf("unexpected date bounds %s..%s", st.MinDate, st.MaxDate)
	}
}

func TestSQLiteAppendEmpty(t *testing.T) {
	s := newTestStore(t)
	if err := s.Append(context.Background(), models.KindYellow, nil); err != nil {
		t.Fatalf("Append(nil): %v", err)
	}
}

func TestClickHouseDDL(t *testing.T) {
	ddl := createTableSQL(clickhouseDialect, models.KindYellow.Table())
	for _, want := range []string{
		"CREATE TABLE IF NOT EXISTS yellow_taxi_trips",
		"taxi_kind LowCardinality(String)",
		"pickup_datetime DateTime",
		"pickup_date Date",
		"ENGINE = MergeTree()",
		"PARTITION BY toYYYYMM(pickup_date)",
		"ORDER BY (pickup_date, pickup_hour, pickup_location_id, dropoff_location_id)",
	} {
		if !strings.Contains(ddl, want) {
			t.Errorf("DDL missing %q:\n%s", want, ddl)
		}
	}
}

func TestUnionViewSQL(t *testing.T) {
	view := createViewSQL(clickhouseDialect)
	for _, want := range []string{
		"CREATE VIEW IF NOT EXISTS all_taxi_trips AS",
		"'yellow' AS taxi_kind",
		"'green' AS taxi_kind",
		"toInt32(0) AS trip_type",
		"toFloat64(0) AS airport_fee",
		"UNION ALL",
	} {
		if !strings.Contains(view, want) {
			t.Errorf("view missing %q:\n%s", want, view)
		}
	}
	if strings.Index(view, "FROM yellow_taxi_trips") > strings.Index(view, "FROM green_taxi_trips") {
		t.Error("expected yellow select before green select")
	}
}

func TestScanSQLPlaceholders(t *testing.T) {
	r, _ := models.ParseDateRange("2024-01-01", "2024-01-31")

	q, args := scanSQL(postgresDialect, "green_taxi_trips", r)
	if !strings.Contains(q, "pickup_date >= $1 AND pickup_date <= $2") {
		t.Errorf("unexpected postgres filter: %s", q)
	}
	if len(args) != 2 {
		t.Fatalf("expected 2 args, got %d", len(args))
	}
	if _, ok := args[0].(time.Time); !ok {
		t.Errorf("postgres date arg should be time.Time, got %T", args[0])
	}

	q, args = scanSQL(sqliteDialect, "green_taxi_trips", models.DateRange{To: r.To})
	if !strings.Contains(q, "WHERE pickup_date <= ?") || !strings.HasSuffix(q, "ORDER BY pickup_date, pickup_hour, pickup_location_id, dropoff_location_id") {
		t.Errorf("unexpected sqlite query: %s", q)
	}
	if len(args) != 1 || args[0] != "2024-01-31" {
		t.Errorf("unexpected sqlite args %v", args)
	}

	q, args = scanSQL(sqliteDialect, "green_taxi_trips", models.DateRange{})
	if strings.Contains(q, "WHERE") || len(args) != 0 {
		t.Errorf("open range should not filter: %s %v", q, args)
	}
}

func TestParseClickHouseDSN(t *testing.T) {
	tests := []struct {
		dsn      string
		addr     string
		protocol clickhouse.Protocol
		secure   bool
		database string
	}{
		{"clickhouse://default:pw@localhost/trips", "localhost:9000", clickhouse.Native, false, "trips"},
		{"clickhouse://localhost", "localhost:9000", clickhouse.Native, false, "default"},
		{"clickhouse://localhost?secure=true", "localhost:9440", clickhouse.Native, true, "default"},
		{"clickhouse://localhost:9440", "localhost:9440", clickhouse.Native, true, "default"},
		{"clickhouse://localhost:8123/db", "localhost:8123", clickhouse.HTTP, false, "db"},
		{"clickhouse://localhost:8443", "localhost:8443", clickhouse.HTTP, true, "default"},
	}
	for _, tt := range tests {
		t.Run(tt.dsn, func(t *testing.T) {
			opts, err := ParseClickHouseDSN(tt.dsn)
			if err != nil {
				t.Fatalf("ParseClickHouseDSN: %v", err)
			}
			if len(opts.Addr) != 1 || opts.Addr[0] != tt.addr {
				t.Errorf("addr = %v, want %s", opts.Addr, tt.addr)
			}
			if opts.Protocol != tt.protocol {
				t.Errorf("protocol = %v, want %v", opts.Protocol, tt.protocol)
			}
			if (opts.TLS != nil) != tt.secure {
				t.Errorf("secure = %v, want %v", opts.TLS != nil, tt.secure)
			}
			if opts.Auth.Database != tt.database {
				t.Errorf("database = %q, want %q", opts.Auth.Database, tt.database)
			}
		})
	}
}
