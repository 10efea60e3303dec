package metadata

import (
	"context"
	"encoding/json"
	"fmt"
	"path"
	"sync"
	"time"

	"github.com/google/uuid"

	"taxiflow/internal/objectstore"
)

// DataFile describes a single parquet file written to the lake.
type DataFile struct {
	Path        string         `json:"path"`
	FileSize    int64          `json:"file_size_in_bytes"`
	RecordCount int64          `json:"record_count"`
	Partition   map[string]any `json:"partition"`
	Timestamp   time.Time      `json:"-"`
}

// ManifestEntry mirrors the information kept in an Iceberg manifest file.
type ManifestEntry struct {
	Status   int      `json:"status"`
	DataFile DataFile `json:"data_file"`
}

// Snapshot holds minimal information required for time-travel queries.
type Snapshot struct {
	SnapshotID   int64  `json:"snapshot-id"`
	TimestampMs  int64  `json:"timestamp-ms"`
	Manifest     string `json:"manifest-list"`
	AddedRecords int64  `json:"added-records"`
}

// TableMetadata represents the high level Iceberg table metadata file.
type TableMetadata struct {
	FormatVersion     int        `json:"format-version"`
	TableUUID         string     `json:"table-uuid"`
	Location          string     `json:"location"`
	CurrentSnapshotID int64      `json:"current-snapshot-id"`
	TotalRecords      int64      `json:"total-records"`
	Snapshots         []Snapshot `json:"snapshots"`
}

// Generator incrementally builds Iceberg style metadata for one lake
// table. Every added file becomes a snapshot with its own manifest.
type Generator struct {
	store     objectstore.Store
	tableName string
	tableUUID string

	mu        sync.Mutex
	snapshots []Snapshot
	total     int64
	lastID    int64
}

// NewGenerator returns a generator writing below <tableName>/metadata/.
func NewGenerator(store objectstore.Store, tableName string) *Generator {
	return &Generator{
		store:     store,
		tableName: tableName,
		tableUUID: uuid.NewString(),
	}
}

func (g *Generator) metadataKey(name string) string {
	return path.Join(g.tableName, "metadata", name)
}

// AddFile records a newly written parquet file and rewrites metadata.json.
func (g *Generator) AddFile(ctx context.Context, df DataFile) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	snapID := df.Timestamp.UnixNano()
	if snapID <= g.lastID {
		snapID = g.lastID + 1
	}
	g.lastID = snapID

	manifestFile := fmt.Sprintf("manifest-%d.json", snapID)
	b, err := json.Marshal([]ManifestEntry{{Status: 1, DataFile: df}})
	if err != nil {
		return err
	}
	if err := g.store.Put(ctx, g.metadataKey(manifestFile), b, nil); err != nil {
		return fmt.Errorf("write manifest: %w", err)
	}

	g.snapshots = append(g.snapshots, Snapshot{
		SnapshotID:   snapID,
		TimestampMs:  df.Timestamp.UnixMilli(),
		Manifest:     manifestFile,
		AddedRecords: df.RecordCount,
	})
	g.total += df.RecordCount
	return g.writeTableMetadata(ctx)
}

func (g *Generator) writeTableMetadata(ctx context.Context) error {
	if len(g.snapshots) == 0 {
		return nil
	}
	tm := TableMetadata{
		FormatVersion:     2,
		TableUUID:         g.tableUUID,
		Location:          g.store.Location(g.tableName),
		CurrentSnapshotID: g.snapshots[len(g.snapshots)-1].SnapshotID,
		TotalRecords:      g.total,
		Snapshots:         g.snapshots,
	}
	b, err := json.MarshalIndent(tm, "", "  ")
	if err != nil {
		return err
	}
	return g.store.Put(ctx, g.metadataKey("metadata.json"), b, nil)
}

// WriteCatalogEntry writes catalog/<table>.json pointing at the table metadata.
func (g *Generator) WriteCatalogEntry(ctx context.Context) error {
	entry := map[string]string{
		"name":              g.tableName,
		"metadata_location": g.store.Location(g.metadataKey("metadata.json")),
	}
	b, err := json.MarshalIndent(entry, "", "  ")
	if err != nil {
		return err
	}
	return g.store.Put(ctx, path.Join("catalog", g.tableName+".json"), b, nil)
}
