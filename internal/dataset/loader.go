package dataset

import (
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"

	"github.com/rs/zerolog/log"

	"github.com/andresuchdata/autopo-py/forecast-go/internal/domain"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/drive"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/repository"
	"github.com/andresuchdata/autopo-py/forecast-go/internal/storage"
)

// DriveSource is the part of the Drive client the loader needs.
type DriveSource interface {
	Resolve(ctx context.Context, ref string) (*drive.File, error)
	DownloadFile(ctx context.Context, file *drive.File, w io.Writer) error
}

// Connector opens a sales repository for a database URL. The returned
// func releases it.
type Connector func(dsn string) (repository.SalesRepository, func() error, error)

// Loader resolves a training source to sales records. Backends left nil
// reject their scheme.
type Loader struct {
	Storage storage.ObjectStorage
	Drive   DriveSource
	Sales   repository.SalesRepository
	Connect Connector
}

// Load reads source by scheme:
//
//	/path/file.csv, file:///path/file.xlsx  local file
//	s3://bucket/key                          object storage
//	gdrive://fileID, gdrive://folder/name    Google Drive
//	db:, db:store=S1                         configured sales table
//	postgres://..., postgresql://...         sales table at that URL
//
// Any failure is wrapped in ErrDataSource.
func (l *Loader) Load(ctx context.Context, source string) ([]domain.SalesRecord, error) {
	source = strings.TrimSpace(source)
	if source == "" {
		return nil, fmt.Errorf("%w: empty source", domain.ErrDataSource)
	}

	records, err := l.load(ctx, source)
	if err != nil {
		return nil, fmt.Errorf("%w: %s: %w", domain.ErrDataSource, Redact(source), err)
	}
	if len(records) == 0 {
		return nil, fmt.Errorf("%w: %s: no rows", domain.ErrDataSource, Redact(source))
	}

	log.Info().Str("source", Redact(source)).Int("rows", len(records)).Msg("training data loaded")
	return records, nil
}

func (l *Loader) load(ctx context.Context, source string) ([]domain.SalesRecord, error) {
	scheme, rest, _ := strings.Cut(source, "://")
	switch {
	case strings.HasPrefix(source, "db:"):
		return l.loadDB(ctx, strings.TrimPrefix(source, "db:"))
	case !strings.Contains(source, "://"):
		return readFile(source)
	}

	switch scheme {
	case "file":
		return readFile(rest)
	case "s3":
		return l.loadObject(ctx, rest)
	case "gdrive":
		return l.loadDrive(ctx, rest)
	case "postgres", "postgresql":
		return l.loadURL(ctx, source)
	}
	return nil, fmt.Errorf("unsupported scheme %q", scheme)
}

func decode(name string, r io.Reader) ([]domain.SalesRecord, error) {
	if strings.EqualFold(filepath.Ext(name), ".xlsx") {
		return ReadXLSX(r)
	}
	return ReadCSV(r)
}

func readFile(path string) ([]domain.SalesRecord, error) {
	f, err := os.Open(path)
	if err != nil {
		return nil, err
	}
	defer f.Close()
	return decode(path, f)
}

func (l *Loader) loadObject(ctx context.Context, ref string) ([]domain.SalesRecord, error) {
	if l.Storage == nil {
		return nil, fmt.Errorf("object storage not configured")
	}
	bucket, key, ok := strings.Cut(ref, "/")
	if !ok || key == "" {
		return nil, fmt.Errorf("expected s3://bucket/key")
	}
	if bucket != l.Storage.Bucket() {
		return nil, fmt.Errorf("bucket %s is not configured", bucket)
	}

	obj, err := l.Storage.OpenObject(ctx, key)
	if err != nil {
		return nil, err
	}
	defer obj.Close()
	return decode(key, obj)
}

func (l *Loader) loadDrive(ctx context.Context, ref string) ([]domain.SalesRecord, error) {
	if l.Drive == nil {
		return nil, fmt.Errorf("google drive not configured")
	}
	file, err := l.Drive.Resolve(ctx, ref)
	if err != nil {
		return nil, err
	}

	pr, pw := io.Pipe()
	go func() {
		pw.CloseWithError(l.Drive.DownloadFile(ctx, file, pw))
	}()
	defer pr.Close()

	return decode(file.Name, pr)
}

// loadDB accepts an optional filter such as "store=S1,sku=A".
func (l *Loader) loadDB(ctx context.Context, expr string) ([]domain.SalesRecord, error) {
	if l.Sales == nil {
		return nil, fmt.Errorf("database not configured")
	}
	filter, err := parseFilter(expr)
	if err != nil {
		return nil, err
	}
	return l.Sales.ListSales(ctx, filter)
}

func (l *Loader) loadURL(ctx context.Context, dsn string) ([]domain.SalesRecord, error) {
	if l.Connect == nil {
		return nil, fmt.Errorf("database connector not configured")
	}
	repo, closeFn, err := l.Connect(dsn)
	if err != nil {
		return nil, err
	}
	defer closeFn()
	return repo.ListSales(ctx, repository.SalesFilter{})
}

func parseFilter(expr string) (repository.SalesFilter, error) {
	var filter repository.SalesFilter
	for _, part := range strings.Split(expr, ",") {
		part = strings.TrimSpace(part)
		if part == "" {
			continue
		}
		k, v, ok := strings.Cut(part, "=")
		if !ok {
			return filter, fmt.Errorf("bad filter %q", part)
		}
		key := strings.TrimSpace(k)
		switch key {
		case "store", "store_id":
			filter.StoreID = strings.TrimSpace(v)
		case "sku", "sku_id":
			filter.SKUID = strings.TrimSpace(v)
		case "from", "to":
			t, err := ParseDate(v)
			if err != nil {
				return filter, err
			}
			if key == "from" {
				filter.From = &t
			} else {
				filter.To = &t
			}
		default:
			return filter, fmt.Errorf("unknown filter key %q", k)
		}
	}
	return filter, nil
}

// Redact hides credentials in database URLs.
func Redact(source string) string {
	scheme, rest, ok := strings.Cut(source, "://")
	if !ok {
		return source
	}
	if at := strings.LastIndex(rest, "@"); at >= 0 {
		return scheme + "://***@" + rest[at+1:]
	}
	return source
}
