package reader

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"sort"
	"strings"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/xitongsys/parquet-go-source/buffer"
	"github.com/xitongsys/parquet-go-source/local"
	"github.com/xitongsys/parquet-go/source"

	"taxiflow/models"
)

// FileRef names one monthly trip file in a Source.
type FileRef struct {
	Kind models.TaxiKind
	Path string
	Size int64
}

// Source lists and opens trip files.
type Source interface {
	Name() string
	List(ctx context.Context, kind models.TaxiKind) ([]FileRef, error)
	Open(ctx context.Context, ref FileRef) (source.ParquetFile, error)
}

// LocalSource reads <Dir>/<kind>_tripdata_*.parquet.
type LocalSource struct {
	Dir string
}

func (s *LocalSource) Name() string { return "local:" + s.Dir }

func (s *LocalSource) List(_ context.Context, kind models.TaxiKind) ([]FileRef, error) {
	matches, err := filepath.Glob(filepath.Join(s.Dir, kind.FileGlob()))
	if err != nil {
		return nil, fmt.Errorf("glob %s: %w", kind.FileGlob(), err)
	}
	sort.Strings(matches)
	refs := make([]FileRef, 0, len(matches))
	for _, m := range matches {
		info, err := os.Stat(m)
		if err != nil {
			return nil, fmt.Errorf("stat %s: %w", m, err)
		}
		refs = append(refs, FileRef{Kind: kind, Path: m, Size: info.Size()})
	}
	return refs, nil
}

func (s *LocalSource) Open(_ context.Context, ref FileRef) (source.ParquetFile, error) {
	f, err := local.NewLocalFileReader(ref.Path)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", ref.Path, err)
	}
	return f, nil
}

// S3API is the subset of the S3 client used by S3Source.
type S3API interface {
	s3.ListObjectsV2APIClient
	GetObject(ctx context.Context, in *s3.GetObjectInput, optFns ...func(*s3.Options)) (*s3.GetObjectOutput, error)
}

// S3Source reads trip files under s3://Bucket/Prefix. Objects are fetched
// whole into memory since parquet needs random access to the footer.
type S3Source struct {
	Client S3API
	Bucket string
	Prefix string
}

func (s *S3Source) Name() string { return fmt.Sprintf("s3://%s/%s", s.Bucket, s.Prefix) }

func (s *S3Source) List(ctx context.Context, kind models.TaxiKind) ([]FileRef, error) {
	prefix := strings.TrimLeft(path.Join(s.Prefix, string(kind)+"_tripdata_"), "/")
	p := s3.NewListObjectsV2Paginator(s.Client, &s3.ListObjectsV2Input{
		Bucket: aws.String(s.Bucket),
		Prefix: aws.String(prefix),
	})
	var refs []FileRef
	for p.HasMorePages() {
		page, err := p.NextPage(ctx)
		if err != nil {
			return nil, fmt.Errorf("list s3://%s/%s: %w", s.Bucket, prefix, err)
		}
		for _, obj := range page.Contents {
			key := aws.ToString(obj.Key)
			if k, ok := models.KindFromFileName(key); !ok || k != kind {
				continue
			}
			refs = append(refs, FileRef{Kind: kind, Path: key, Size: aws.ToInt64(obj.Size)})
		}
	}
	sort.Slice(refs, func(i, j int) bool { return refs[i].Path < refs[j].Path })
	return refs, nil
}

func (s *S3Source) Open(ctx context.Context, ref FileRef) (source.ParquetFile, error) {
	out, err := s.Client.GetObject(ctx, &s3.GetObjectInput{
		Bucket: aws.String(s.Bucket),
		Key:    aws.String(ref.Path),
	})
	if err != nil {
		return nil, fmt.Errorf("get s3://%s/%s: %w", s.Bucket, ref.Path, err)
	}
	defer out.Body.Close()

	data, err := io.ReadAll(out.Body)
	if err != nil {
		return nil, fmt.Errorf("read s3://%s/%s: %w", s.Bucket, ref.Path, err)
	}
	return buffer.NewBufferFile(data)
}
