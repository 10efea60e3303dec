package writer

import (
	"bytes"
	"context"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/xitongsys/parquet-go/parquet"
	"github.com/xitongsys/parquet-go/source"
	"github.com/xitongsys/parquet-go/writer"

	appconfig "taxiflow/config"
	"taxiflow/internal/metadata"
	"taxiflow/internal/objectstore"
	"taxiflow/logger"
	"taxiflow/models"
)

// LakeRecord is the parquet layout of a canonical trip. Timestamps are
// microseconds and pickup_date is days since the epoch.
type LakeRecord struct {
	TaxiKind             string  `parquet:"name=taxi_kind, type=BYTE_ARRAY, convertedtype=UTF8"`
	VendorID             int32   `parquet:"name=vendor_id, type=INT32"`
	PickupDatetime       int64   `parquet:"name=pickup_datetime, type=INT64, convertedtype=TIMESTAMP_MICROS"`
	DropoffDatetime      int64   `parquet:"name=dropoff_datetime, type=INT64, convertedtype=TIMESTAMP_MICROS"`
	PassengerCount       int32   `parquet:"name=passenger_count, type=INT32"`
	TripDistance         float64 `parquet:"name=trip_distance, type=DOUBLE"`
	RateCodeID           int32   `parquet:"name=rate_code_id, type=INT32"`
	StoreAndFwdFlag      bool    `parquet:"name=store_and_fwd_flag, type=BOOLEAN"`
	PickupLocationID     int32   `parquet:"name=pickup_location_id, type=INT32"`
	DropoffLocationID    int32   `parquet:"name=dropoff_location_id, type=INT32"`
	PaymentType          int32   `parquet:"name=payment_type, type=INT32"`
	TripType             int32   `parquet:"name=trip_type, type=INT32"`
	FareAmount           float64 `parquet:"name=fare_amount, type=DOUBLE"`
	Extra                float64 `parquet:"name=extra, type=DOUBLE"`
	MTATax               float64 `parquet:"name=mta_tax, type=DOUBLE"`
	TipAmount            float64 `parquet:"name=tip_amount, type=DOUBLE"`
	TollsAmount          float64 `parquet:"name=tolls_amount, type=DOUBLE"`
	ImprovementSurcharge float64 `parquet:"name=improvement_surcharge, type=DOUBLE"`
	CongestionSurcharge  float64 `parquet:"name=congestion_surcharge, type=DOUBLE"`
	AirportFee           float64 `parquet:"name=airport_fee, type=DOUBLE"`
	TotalAmount          float64 `parquet:"name=total_amount, type=DOUBLE"`
	TripDurationMinutes  float64 `parquet:"name=trip_duration_minutes, type=DOUBLE"`
	PickupHour           int32   `parquet:"name=pickup_hour, type=INT32"`
	PickupDayOfWeek      int32   `parquet:"name=pickup_day_of_week, type=INT32"`
	PickupDate           int32   `parquet:"name=pickup_date, type=INT32, convertedtype=DATE"`
	TipPercentage        float64 `parquet:"name=tip_percentage, type=DOUBLE"`
	AvgSpeedMPH          float64 `parquet:"name=avg_speed_mph, type=DOUBLE"`
}

const secondsPerDay = 24 * 60 * 60

func toLakeRecord(c *models.CanonicalTripRecord) LakeRecord {
	return LakeRecord{
		TaxiKind:             string(c.TaxiKind),
		VendorID:             c.VendorID,
		PickupDatetime:       c.PickupDatetime.UnixMicro(),
		DropoffDatetime:      c.DropoffDatetime.UnixMicro(),
		PassengerCount:       c.PassengerCount,
		TripDistance:         c.TripDistance,
		RateCodeID:           c.RateCodeID,
		StoreAndFwdFlag:      c.StoreAndFwdFlag,
		PickupLocationID:     c.PickupLocationID,
		DropoffLocationID:    c.DropoffLocationID,
		PaymentType:          c.PaymentType,
		TripType:             c.TripType,
		FareAmount:           c.FareAmount,
		Extra:                c.Extra,
		MTATax:               c.MTATax,
		TipAmount:            c.TipAmount,
		TollsAmount:          c.TollsAmount,
		ImprovementSurcharge: c.ImprovementSurcharge,
		CongestionSurcharge:  c.CongestionSurcharge,
		AirportFee:           c.AirportFee,
		TotalAmount:          c.TotalAmount,
		TripDurationMinutes:  c.TripDurationMinutes,
		PickupHour:           c.PickupHour,
		PickupDayOfWeek:      c.PickupDayOfWeek,
		PickupDate:           int32(c.PickupDate.Unix() / secondsPerDay),
		TipPercentage:        c.TipPercentage,
		AvgSpeedMPH:          c.AvgSpeedMPH,
	}
}

// Canonical converts a lake row back into a canonical record.
func (r *LakeRecord) Canonical() models.CanonicalTripRecord {
	return models.CanonicalTripRecord{
		TaxiKind:             models.TaxiKind(r.TaxiKind),
		VendorID:             r.VendorID,
		PickupDatetime:       time.UnixMicro(r.PickupDatetime).UTC(),
		DropoffDatetime:      time.UnixMicro(r.DropoffDatetime).UTC(),
		PassengerCount:       r.PassengerCount,
		TripDistance:         r.TripDistance,
		RateCodeID:           r.RateCodeID,
		StoreAndFwdFlag:      r.StoreAndFwdFlag,
		PickupLocationID:     r.PickupLocationID,
		DropoffLocationID:    r.DropoffLocationID,
		PaymentType:          r.PaymentType,
		TripType:             r.TripType,
		FareAmount:           r.FareAmount,
		Extra:                r.Extra,
		MTATax:               r.MTATax,
		TipAmount:            r.TipAmount,
		TollsAmount:          r.TollsAmount,
		ImprovementSurcharge: r.ImprovementSurcharge,
		CongestionSurcharge:  r.CongestionSurcharge,
		AirportFee:           r.AirportFee,
		TotalAmount:          r.TotalAmount,
		TripDurationMinutes:  r.TripDurationMinutes,
		PickupHour:           r.PickupHour,
		PickupDayOfWeek:      r.PickupDayOfWeek,
		PickupDate:           time.Unix(int64(r.PickupDate)*secondsPerDay, 0).UTC(),
		TipPercentage:        r.TipPercentage,
		AvgSpeedMPH:          r.AvgSpeedMPH,
	}
}

// memoryFileWriter implements ParquetFile for in-memory writing
type memoryFileWriter struct {
	buffer *bytes.Buffer
}

func newMemoryFileWriter() *memoryFileWriter {
	return &memoryFileWriter{buffer: &bytes.Buffer{}}
}

func (mfw *memoryFileWriter) Create(name string) (source.ParquetFile, error) { return mfw, nil }
func (mfw *memoryFileWriter) Open(name string) (source.ParquetFile, error)   { return mfw, nil }

// Seek only reports the write position; the parquet writer never seeks back.
func (mfw *memoryFileWriter) Seek(offset int64, whence int) (int64, error) {
	return int64(mfw.buffer.Len()), nil
}

func (mfw *memoryFileWriter) Read(b []byte) (int, error)  { return mfw.buffer.Read(b) }
func (mfw *memoryFileWriter) Write(b []byte) (int, error) { return mfw.buffer.Write(b) }
func (mfw *memoryFileWriter) Close() error                { return nil }
func (mfw *memoryFileWriter) Bytes() []byte               { return mfw.buffer.Bytes() }

// LakeSink writes each batch as one parquet object under hive style keys
// taxi_kind=<kind>/pickup_date=<date>/ and records it in a per-kind
// manifest.
type LakeSink struct {
	store       objectstore.Store
	compression string
	version     string
	log         *logger.Log

	mu   sync.Mutex
	gens map[models.TaxiKind]*metadata.Generator
}

func NewLakeSink(store objectstore.Store, cfg *appconfig.Config) *LakeSink {
	s := &LakeSink{
		store:       store,
		compression: cfg.Storage.Lake.Compression,
		version:     cfg.Taxiflow.Version,
		log:         logger.GetLogger(),
		gens:        make(map[models.TaxiKind]*metadata.Generator),
	}
	s.log.WithComponent("lake_sink").WithFields(logger.Fields{
		"location":    store.Location(""),
		"compression": s.compression,
	}).Info("parquet lake sink initialized")
	return s
}

func (s *LakeSink) Name() string { return "lake" }

func (s *LakeSink) generator(kind models.TaxiKind) *metadata.Generator {
	s.mu.Lock()
	defer s.mu.Unlock()
	g, ok := s.gens[kind]
	if !ok {
		g = metadata.NewGenerator(s.store, kind.Table())
		s.gens[kind] = g
	}
	return g
}

// ObjectKey builds taxi_kind=<kind>/pickup_date=<date>/<kind>_<date>_<id>.parquet.
func ObjectKey(kind models.TaxiKind, date, id string) string {
	return path.Join(
		"taxi_kind="+string(kind),
		"pickup_date="+date,
		fmt.Sprintf("%s_%s_%s.parquet", kind, date, id),
	)
}

// Append splits records by pickup_date and writes one object per date.
func (s *LakeSink) Append(ctx context.Context, kind models.TaxiKind, records []models.CanonicalTripRecord) error {
	byDate := make(map[string][]models.CanonicalTripRecord)
	var order []string
	for _, r := range records {
		d := r.PartitionDate()
		if _, ok := byDate[d]; !ok {
			order = append(order, d)
		}
		byDate[d] = append(byDate[d], r)
	}
	for _, d := range order {
		if err := s.writePartition(ctx, kind, d, byDate[d]); err != nil {
			return err
		}
	}
	return nil
}

func (s *LakeSink) writePartition(ctx context.Context, kind models.TaxiKind, date string, records []models.CanonicalTripRecord) error {
	key := ObjectKey(kind, date, uuid.New().String())
	log := s.log.WithComponent("lake_sink").WithFields(logger.Fields{
		"key":          key,
		"record_count": len(records),
		"operation":    "write_partition",
	})

	data, err := s.createParquetFile(records)
	if err != nil {
		return fmt.Errorf("create parquet file: %w", err)
	}

	meta := map[string]string{
		"content-type":     "parquet",
		"compression":      s.compression,
		"taxiflow-version": s.version,
	}
	if err := s.store.Put(ctx, key, data, meta); err != nil {
		log.WithError(err).WithEnv("S3_BUCKET").Error("failed to store parquet file")
		return err
	}
	log.WithFields(logger.Fields{"file_size": len(data)}).Debug("parquet file stored")

	df := metadata.DataFile{
		Path:        s.store.Location(key),
		FileSize:    int64(len(data)),
		RecordCount: int64(len(records)),
		Partition: map[string]any{
			"taxi_kind":   string(kind),
			"pickup_date": date,
		},
		Timestamp: time.Now(),
	}
	if err := s.generator(kind).AddFile(ctx, df); err != nil {
		log.WithError(err).Warn("failed to update metadata")
	}
	return nil
}

func (s *LakeSink) createParquetFile(records []models.CanonicalTripRecord) ([]byte, error) {
	fw := newMemoryFileWriter()

	pw, err := writer.NewParquetWriter(fw, new(LakeRecord), 4)
	if err != nil {
		return nil, fmt.Errorf("failed to create parquet writer: %w", err)
	}

	switch s.compression {
	case "snappy":
		pw.CompressionType = parquet.CompressionCodec_SNAPPY
	case "gzip":
		pw.CompressionType = parquet.CompressionCodec_GZIP
	case "zstd":
		pw.CompressionType = parquet.CompressionCodec_ZSTD
	default:
		pw.CompressionType = parquet.CompressionCodec_UNCOMPRESSED
	}

	for i := range records {
		if err := pw.Write(toLakeRecord(&records[i])); err != nil {
			pw.WriteStop()
			return nil, fmt.Errorf("failed to write parquet record: %w", err)
		}
	}
	if err := pw.WriteStop(); err != nil {
		return nil, fmt.Errorf("failed to finalize parquet writing: %w", err)
	}
	return fw.Bytes(), nil
}

// Close writes the catalog entry of every table touched.
func (s *LakeSink) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var first error
	for _, g := range s.gens {
		if err := g.WriteCatalogEntry(context.Background()); err != nil && first == nil {
			first = err
		}
	}
	return first
}
