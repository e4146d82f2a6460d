// Package lab runs the schema experiments against a real or fake AWS account:
// comparing the columnar and row/array schemas of the sample dataset,
// publishing it as a partitioned Glue table and cleaning everything up again.
package lab

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	dataframe "github.com/rocketlaunchr/dataframe-go"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"

	"github.com/rudderlabs/rudder-datalake-lab/datalake/arrayframe"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/catalog"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/dataset"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/encoding"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/schema"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/storage"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/writer"
)

// ErrWidenedColumns is returned when a schema inferred through the row/array
// frame would declare integer columns as double and widening is rejected.
var ErrWidenedColumns = errors.New("columns widened by the row/array frame")

// Source selects where the catalog schema of a published table comes from.
type Source string

const (
	// Manual uses ManualSchema.
	Manual Source = "manual"
	// Columnar infers the schema from the arrow record.
	Columnar Source = "columnar"
	// ArrayFrame infers the schema from the row/array frame built from the
	// record. Integer columns with absent values come out as double.
	ArrayFrame Source = "arrayframe"
)

func ParseSource(s string) (Source, error) {
	switch src := Source(strings.ToLower(s)); src {
	case Manual, Columnar, ArrayFrame:
		return src, nil
	case "":
		return Columnar, nil
	default:
		return "", fmt.Errorf("unknown schema source %q", s)
	}
}

type Lab struct {
	settings Settings
	logger   logger.Logger
	mem      memory.Allocator

	store     storage.ObjectStore
	writer    *writer.Writer
	registrar *catalog.Registrar
}

func New(conf *config.Config, log logger.Logger, statsFactory stats.Stats, settings Settings, clients Clients) (*Lab, error) {
	log = log.Child("lab")
	mem := memory.NewGoAllocator()

	w, err := writer.New(conf, log, statsFactory, clients.Store, mem)
	if err != nil {
		return nil, fmt.Errorf("create writer: %w", err)
	}

	var repairer catalog.PartitionRepairer
	switch settings.PartitionRepair {
	case RepairAthena:
		repairer = catalog.NewAthenaRepair(conf, log, clients.Athena)
	default:
		repairer = catalog.NewGlueDiscovery(conf, log, clients.Glue, clients.Store)
	}

	return &Lab{
		settings:  settings,
		logger:    log,
		mem:       mem,
		store:     clients.Store,
		writer:    w,
		registrar: catalog.NewRegistrar(log, clients.Glue, repairer),
	}, nil
}

// FidelityOptions configure SchemaFidelity.
type FidelityOptions struct {
	Naming           dataset.Naming
	NullableIntegers bool
}

// ColumnComparison is the type of one column as inferred from both sides.
type ColumnComparison struct {
	Name       string
	Columnar   string
	ArrayFrame string
	Widened    bool
}

const (
	ColumnarFile   = "columnar.json"
	ArrayFrameFile = "arrayframe.json"
)

// SchemaFidelity converts the sample into a row/array frame, writes both
// sides as ndjson into dir for a manual diff and compares the schemas
// inferred from each side.
func (l *Lab) SchemaFidelity(ctx context.Context, dir string, opts FidelityOptions) ([]ColumnComparison, error) {
	rec, err := dataset.Sample(l.mem, opts.Naming)
	if err != nil {
		return nil, fmt.Errorf("build sample: %w", err)
	}
	defer rec.Release()

	df, err := arrayframe.FromRecord(rec, arrayframe.Options{NullableIntegers: opts.NullableIntegers})
	if err != nil {
		return nil, fmt.Errorf("convert to array frame: %w", err)
	}

	if err := os.MkdirAll(dir, 0o755); err != nil {
		return nil, fmt.Errorf("create output directory: %w", err)
	}
	if err := writeColumnar(filepath.Join(dir, ColumnarFile), rec); err != nil {
		return nil, err
	}
	if err := writeArrayFrame(filepath.Join(dir, ArrayFrameFile), df); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	columnar, err := schema.FromArrowSchema(rec.Schema())
	if err != nil {
		return nil, fmt.Errorf("columnar schema: %w", err)
	}
	frame, err := arrayframe.InferSchema(df)
	if err != nil {
		return nil, fmt.Errorf("array frame schema: %w", err)
	}

	frameTypes := make(map[string]string, len(frame))
	for _, c := range frame {
		frameTypes[c.Name] = schema.MustRender(c.Type)
	}

	comparison := make([]ColumnComparison, 0, len(columnar))
	for _, c := range columnar {
		ct := schema.MustRender(c.Type)
		comparison = append(comparison, ColumnComparison{
			Name:       c.Name,
			Columnar:   ct,
			ArrayFrame: frameTypes[c.Name],
			Widened:    ct != frameTypes[c.Name],
		})
	}

	l.logger.Infon("Wrote schema fidelity files",
		logger.NewStringField("dir", dir),
		logger.NewIntField("widened", int64(len(arrayframe.Widened(columnar, frame)))),
	)
	return comparison, nil
}

func writeColumnar(path string, rec arrow.Record) error {
	enc, err := encoding.NewEncoder(encoding.NDJSON)
	if err != nil {
		return err
	}
	return writeFile(path, func(f *os.File) error { return enc.Encode(f, rec) })
}

func writeArrayFrame(path string, df *dataframe.DataFrame) error {
	return writeFile(path, func(f *os.File) error { return arrayframe.WriteNDJSON(f, df) })
}

func writeFile(path string, write func(f *os.File) error) error {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("create %s: %w", path, err)
	}
	if err := write(f); err != nil {
		_ = f.Close()
		return fmt.Errorf("write %s: %w", path, err)
	}
	if err := f.Close(); err != nil {
		return fmt.Errorf("close %s: %w", path, err)
	}
	return nil
}

type PublishRequest struct {
	Format encoding.Format
	Source Source
	Naming dataset.Naming
}

type PublishResult struct {
	*TableSchema
	Table   catalog.Table
	Objects []writer.Object
}

// Publish writes the sample as a partitioned dataset under <root>/<format>/
// and registers it as the lab table, replacing any previous definition.
func (l *Lab) Publish(ctx context.Context, req PublishRequest) (*PublishResult, error) {
	if err := l.settings.RequireBucket(); err != nil {
		return nil, err
	}

	rec, err := dataset.Sample(l.mem, req.Naming)
	if err != nil {
		return nil, fmt.Errorf("build sample: %w", err)
	}
	defer rec.Release()

	ts, err := l.tableSchema(rec, req.Source, req.Naming)
	if err != nil {
		return nil, err
	}

	location := l.settings.Root().Join(string(req.Format))
	log := l.logger.Withn(
		logger.NewStringField("source", string(req.Source)),
		logger.NewStringField("format", string(req.Format)),
		logger.NewStringField("location", location.URI()),
	)
	for _, issue := range ts.NameIssues {
		log.Warnn("Catalog will lower case column name",
			logger.NewStringField("column", issue.Path),
			logger.NewStringField("suggestion", issue.Suggestion),
		)
	}

	objects, err := l.writer.Write(ctx, writer.Request{
		Record:       rec,
		PartitionKey: req.Naming.Name(l.settings.PartitionKey),
		Location:     location,
		Format:       req.Format,
	})
	if err != nil {
		return nil, fmt.Errorf("write dataset: %w", err)
	}
	log.Infon("Dataset location", logger.NewStringField("console", storage.ConsoleURL(l.settings.Region, location)))

	if err := l.registrar.EnsureDatabase(ctx, l.settings.Database); err != nil {
		return nil, err
	}

	table := catalog.NewTable(l.settings.Database, l.settings.Table, location, req.Format, ts.Translation)
	if err := l.registrar.Register(ctx, table); err != nil {
		log.Warnn("Registering table failed", obskit.Error(err))
		return nil, err
	}
	log.Infon("Registered table", logger.NewStringField("console", catalog.TableConsoleURL(l.settings.Region, table.Database, table.Name)))

	return &PublishResult{
		TableSchema: ts,
		Table:       table,
		Objects:     objects,
	}, nil
}

// TableSchema is what a published table declares for a schema source.
type TableSchema struct {
	Columns     []schema.Column
	Translation *schema.Translation
	// Widened lists the columns declared with a wider type than the data has.
	// Only an ArrayFrame source can widen.
	Widened []string
	// NameIssues lists columns and fields the catalog will not keep as spelled.
	NameIssues []schema.NameIssue
}

// TableSchema returns the schema Publish would register for the sample
// without writing or registering anything.
func (l *Lab) TableSchema(source Source, naming dataset.Naming) (*TableSchema, error) {
	rec, err := dataset.Sample(l.mem, naming)
	if err != nil {
		return nil, fmt.Errorf("build sample: %w", err)
	}
	defer rec.Release()

	return l.tableSchema(rec, source, naming)
}

func (l *Lab) tableSchema(rec arrow.Record, source Source, naming dataset.Naming) (*TableSchema, error) {
	columns, widened, err := l.sourceColumns(rec, source, naming)
	if err != nil {
		return nil, err
	}

	translation, err := schema.Translate(columns, []string{naming.Name(l.settings.PartitionKey)})
	if err != nil {
		return nil, fmt.Errorf("translate schema: %w", err)
	}
	return &TableSchema{
		Columns:     columns,
		Translation: translation,
		Widened:     widened,
		NameIssues:  schema.CatalogNameIssues(columns),
	}, nil
}

func (l *Lab) sourceColumns(rec arrow.Record, source Source, naming dataset.Naming) ([]schema.Column, []string, error) {
	switch source {
	case Manual:
		return ManualSchema(naming), nil, nil
	case Columnar:
		columns, err := schema.FromArrowSchema(rec.Schema())
		if err != nil {
			return nil, nil, fmt.Errorf("columnar schema: %w", err)
		}
		return columns, nil, nil
	case ArrayFrame:
		columnar, err := schema.FromArrowSchema(rec.Schema())
		if err != nil {
			return nil, nil, fmt.Errorf("columnar schema: %w", err)
		}
		df, err := arrayframe.FromRecord(rec, arrayframe.Options{})
		if err != nil {
			return nil, nil, fmt.Errorf("convert to array frame: %w", err)
		}
		columns, err := arrayframe.InferSchema(df)
		if err != nil {
			return nil, nil, fmt.Errorf("array frame schema: %w", err)
		}

		widened := arrayframe.Widened(columnar, columns)
		if len(widened) > 0 {
			if l.settings.RejectWidenedColumns {
				return nil, nil, fmt.Errorf("%s: %w", strings.Join(widened, ", "), ErrWidenedColumns)
			}
			l.logger.Warnn("Array frame schema widens integer columns to double",
				logger.NewStringField("columns", strings.Join(widened, ",")),
			)
		}
		return columns, widened, nil
	default:
		return nil, nil, fmt.Errorf("unknown schema source %q", source)
	}
}

// Cleanup deletes the lab datasets, table and database. Running it again is a no-op.
func (l *Lab) Cleanup(ctx context.Context) error {
	if err := l.settings.RequireBucket(); err != nil {
		return err
	}
	root := l.settings.Root()

	deleted, err := l.store.DeletePrefix(ctx, root.Bucket, root.Prefix)
	if err != nil {
		return fmt.Errorf("delete %s: %w", root.URI(), err)
	}
	l.logger.Infon("Deleted lab objects",
		logger.NewStringField("location", root.URI()),
		logger.NewIntField("count", int64(deleted)),
	)

	if err := l.registrar.DeleteTable(ctx, l.settings.Database, l.settings.Table); err != nil {
		return err
	}
	l.logger.Infon("Deleted table",
		logger.NewStringField("console", catalog.TableConsoleURL(l.settings.Region, l.settings.Database, l.settings.Table)),
	)

	if err := l.registrar.DeleteDatabase(ctx, l.settings.Database); err != nil {
		return err
	}
	l.logger.Infon("Deleted database",
		logger.NewStringField("console", catalog.DatabaseConsoleURL(l.settings.Region, l.settings.Database)),
	)
	return nil
}

func (l *Lab) Settings() Settings {
	return l.settings
}
