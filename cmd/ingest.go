package cmd

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"taxiflow/internal/dashboard"
	"taxiflow/internal/objectstore"
	"taxiflow/internal/pipeline"
	"taxiflow/logger"
	"taxiflow/reader"
	"taxiflow/store"
	"taxiflow/writer"
)

var ingestCmd = &cobra.Command{
	Use:   "ingest",
	Short: "Read trip files, normalize them and append canonical trips to every enabled sink",
	RunE: func(cmd *cobra.Command, args []string) error {
		ctx, cancel := signalContext()
		defer cancel()
		return runIngest(ctx)
	},
}

func init() {
	ingestCmd.Flags().StringVar(&ingestDataDir, "data-dir", "", "Override reader.data_dir")
}

var ingestDataDir string

func newSource(ctx context.Context) (reader.Source, error) {
	if cfg.Reader.Source == "s3" {
		client, err := objectstore.NewClient(ctx, cfg.Storage.S3)
		if err != nil {
			return nil, err
		}
		return &reader.S3Source{Client: client, Bucket: cfg.Storage.S3.Bucket, Prefix: cfg.Reader.Prefix}, nil
	}
	dir := cfg.Reader.DataDir
	if ingestDataDir != "" {
		dir = ingestDataDir
	}
	return &reader.LocalSource{Dir: dir}, nil
}

// openSinks opens the database stores followed by the lake and kafka sinks.
func openSinks(ctx context.Context) ([]writer.Sink, error) {
	stores, err := store.Open(ctx, cfg.Storage)
	if err != nil {
		return nil, err
	}
	sinks := make([]writer.Sink, 0, len(stores)+2)
	for _, s := range stores {
		sinks = append(sinks, s)
	}

	fail := func(err error) ([]writer.Sink, error) {
		for _, s := range sinks {
			s.Close()
		}
		return nil, err
	}

	if lc := cfg.Storage.Lake; lc.Enabled {
		var objects objectstore.Store = &objectstore.LocalStore{Dir: lc.Dir}
		if cfg.Storage.S3.Enabled {
			client, err := objectstore.NewClient(ctx, cfg.Storage.S3)
			if err != nil {
				return fail(err)
			}
			objects = &objectstore.S3Store{Client: client, Bucket: cfg.Storage.S3.Bucket, Prefix: lc.Prefix}
		}
		sinks = append(sinks, writer.NewLakeSink(objects, cfg))
	}

	if cfg.Storage.Kafka.Enabled {
		ks, err := writer.NewKafkaSink(cfg)
		if err != nil {
			return fail(err)
		}
		sinks = append(sinks, ks)
	}

	if len(sinks) == 0 {
		return nil, fmt.Errorf("no storage backend enabled")
	}
	return sinks, nil
}

func runIngest(ctx context.Context) error {
	log := logger.GetLogger()

	if strings.ToLower(cfg.Logging.Level) == "report" || cfg.Metrics.CloudWatch {
		interval := cfg.Metrics.ReportInterval
		if interval <= 0 {
			interval = 30 * time.Second
		}
		logger.StartReport(ctx, log, interval)
	}

	src, err := newSource(ctx)
	if err != nil {
		return err
	}
	sinks, err := openSinks(ctx)
	if err != nil {
		return err
	}

	p := pipeline.New(cfg, src, kinds, sinks...)

	dash := dashboard.NewServer(cfg.Dashboard, log, cfg.Reader.DataDir, p.Status)
	if dash != nil {
		dashCtx, stopDash := context.WithCancel(ctx)
		defer stopDash()
		go func() {
			if err := dash.Run(dashCtx); err != nil {
				log.WithError(err).Warn("dashboard stopped")
			}
		}()
	}

	res, err := p.Run(ctx)
	if res != nil {
		for _, rej := range res.Rejections {
			log.WithComponent("ingest").WithFields(logger.Fields{
				"file": rej.SourceFile,
				"row":  rej.Row,
				"kind": rej.Kind,
			}).WithError(rej.Err).Debug("rejected record")
		}
	}
	return err
}
