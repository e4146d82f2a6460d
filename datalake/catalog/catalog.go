// Package catalog registers partitioned datasets as external tables in the
// AWS Glue data catalog.
package catalog

import (
	"context"
	"errors"
	"fmt"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/samber/lo"

	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/rudderlabs/rudder-datalake-lab/datalake/encoding"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/schema"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/storage"
)

// GlueAPI is the part of the glue client the catalog uses.
type GlueAPI interface {
	GetDatabase(ctx context.Context, params *glue.GetDatabaseInput, optFns ...func(*glue.Options)) (*glue.GetDatabaseOutput, error)
	CreateDatabase(ctx context.Context, params *glue.CreateDatabaseInput, optFns ...func(*glue.Options)) (*glue.CreateDatabaseOutput, error)
	DeleteDatabase(ctx context.Context, params *glue.DeleteDatabaseInput, optFns ...func(*glue.Options)) (*glue.DeleteDatabaseOutput, error)
	GetTable(ctx context.Context, params *glue.GetTableInput, optFns ...func(*glue.Options)) (*glue.GetTableOutput, error)
	CreateTable(ctx context.Context, params *glue.CreateTableInput, optFns ...func(*glue.Options)) (*glue.CreateTableOutput, error)
	DeleteTable(ctx context.Context, params *glue.DeleteTableInput, optFns ...func(*glue.Options)) (*glue.DeleteTableOutput, error)
	GetPartition(ctx context.Context, params *glue.GetPartitionInput, optFns ...func(*glue.Options)) (*glue.GetPartitionOutput, error)
	BatchCreatePartition(ctx context.Context, params *glue.BatchCreatePartitionInput, optFns ...func(*glue.Options)) (*glue.BatchCreatePartitionOutput, error)
}

// serde and file formats per dataset format
const (
	parquetSerdeName             = "ParquetHiveSerDe"
	parquetSerdeSerializationLib = "org.apache.hadoop.hive.ql.io.parquet.serde.ParquetHiveSerDe"
	parquetInputFormat           = "org.apache.hadoop.hive.ql.io.parquet.MapredParquetInputFormat"
	parquetOutputFormat          = "org.apache.hadoop.hive.ql.io.parquet.MapredParquetOutputFormat"

	jsonSerdeName             = "OpenXJsonSerDe"
	jsonSerdeSerializationLib = "org.openx.data.jsonserde.JsonSerDe"
	textInputFormat           = "org.apache.hadoop.mapred.TextInputFormat"
	textOutputFormat          = "org.apache.hadoop.hive.ql.io.HiveIgnoreKeyTextOutputFormat"

	externalTableType = "EXTERNAL_TABLE"
)

// Table is an external table over a hive partitioned dataset.
type Table struct {
	Database string
	Name     string
	Location storage.Location
	Format   encoding.Format
	// Columns are the regular columns in declaration order.
	Columns []schema.CatalogColumn
	// Partitions are the partition columns in partition key order.
	Partitions []schema.CatalogColumn
}

// NewTable builds the table for a translated schema.
func NewTable(database, name string, loc storage.Location, format encoding.Format, t *schema.Translation) Table {
	return Table{
		Database:   database,
		Name:       name,
		Location:   loc,
		Format:     format,
		Columns:    t.Columns,
		Partitions: t.Partitions,
	}
}

// PartitionKeys returns the partition column names in order.
func (t Table) PartitionKeys() []string {
	return lo.Map(t.Partitions, func(c schema.CatalogColumn, _ int) string { return c.Name })
}

// storageDescriptor describes the files at location. Partitions use the same
// descriptor pointed at their own folder.
func storageDescriptor(format encoding.Format, location string, columns []schema.CatalogColumn) (*gluetypes.StorageDescriptor, error) {
	sd := &gluetypes.StorageDescriptor{
		Location: aws.String(location),
		Columns:  glueColumns(columns),
	}

	switch format {
	case encoding.Parquet:
		sd.SerdeInfo = &gluetypes.SerDeInfo{
			Name:                 aws.String(parquetSerdeName),
			SerializationLibrary: aws.String(parquetSerdeSerializationLib),
		}
		sd.InputFormat = aws.String(parquetInputFormat)
		sd.OutputFormat = aws.String(parquetOutputFormat)
	case encoding.NDJSON:
		sd.SerdeInfo = &gluetypes.SerDeInfo{
			Name:                 aws.String(jsonSerdeName),
			SerializationLibrary: aws.String(jsonSerdeSerializationLib),
		}
		sd.InputFormat = aws.String(textInputFormat)
		sd.OutputFormat = aws.String(textOutputFormat)
	default:
		return nil, fmt.Errorf("%q: %w", format, encoding.ErrUnknownFormat)
	}
	return sd, nil
}

func glueColumns(columns []schema.CatalogColumn) []gluetypes.Column {
	return lo.Map(columns, func(c schema.CatalogColumn, _ int) gluetypes.Column {
		return gluetypes.Column{Name: aws.String(c.Name), Type: aws.String(c.Type)}
	})
}

func classification(format encoding.Format) string {
	if format == encoding.NDJSON {
		return "json"
	}
	return string(format)
}

type Registrar struct {
	glue     GlueAPI
	repairer PartitionRepairer
	logger   logger.Logger
}

// NewRegistrar returns a registrar. repairer may be nil, in which case
// partitions are left for the caller to register.
func NewRegistrar(log logger.Logger, glueClient GlueAPI, repairer PartitionRepairer) *Registrar {
	return &Registrar{
		glue:     glueClient,
		repairer: repairer,
		logger:   log.Child("catalog"),
	}
}

// EnsureDatabase creates the database unless it already exists.
func (r *Registrar) EnsureDatabase(ctx context.Context, name string) error {
	_, err := r.glue.GetDatabase(ctx, &glue.GetDatabaseInput{Name: aws.String(name)})
	if err == nil {
		r.logger.Debugn("Database already exists", logger.NewStringField("database", name))
		return nil
	}
	if !isNotFound(err) {
		return fmt.Errorf("get database %s: %w", name, err)
	}

	_, err = r.glue.CreateDatabase(ctx, &glue.CreateDatabaseInput{
		DatabaseInput: &gluetypes.DatabaseInput{Name: aws.String(name)},
	})
	if err != nil {
		var alreadyExists *gluetypes.AlreadyExistsException
		if errors.As(err, &alreadyExists) {
			r.logger.Infon("Skipping database creation: database already exists", logger.NewStringField("database", name))
			return nil
		}
		return fmt.Errorf("create database %s: %w", name, err)
	}

	r.logger.Infon("Created database", logger.NewStringField("database", name))
	return nil
}

// DeleteDatabase deletes the database and the tables in it. A missing database is not an error.
func (r *Registrar) DeleteDatabase(ctx context.Context, name string) error {
	if _, err := r.glue.GetDatabase(ctx, &glue.GetDatabaseInput{Name: aws.String(name)}); err != nil {
		if isNotFound(err) {
			r.logger.Infon("Skipping database deletion: database does not exist", logger.NewStringField("database", name))
			return nil
		}
		return fmt.Errorf("get database %s: %w", name, err)
	}

	if _, err := r.glue.DeleteDatabase(ctx, &glue.DeleteDatabaseInput{Name: aws.String(name)}); err != nil && !isNotFound(err) {
		return fmt.Errorf("delete database %s: %w", name, err)
	}

	r.logger.Infon("Deleted database", logger.NewStringField("database", name))
	return nil
}

// DeleteTable deletes the table. A missing table or database is not an error.
func (r *Registrar) DeleteTable(ctx context.Context, database, name string) error {
	log := r.logger.Withn(
		logger.NewStringField("database", database),
		logger.NewStringField("table", name),
	)

	_, err := r.glue.GetTable(ctx, &glue.GetTableInput{DatabaseName: aws.String(database), Name: aws.String(name)})
	if err != nil {
		if isNotFound(err) {
			log.Infon("Skipping table deletion: table does not exist")
			return nil
		}
		return fmt.Errorf("get table %s.%s: %w", database, name, err)
	}

	_, err = r.glue.DeleteTable(ctx, &glue.DeleteTableInput{DatabaseName: aws.String(database), Name: aws.String(name)})
	if err != nil && !isNotFound(err) {
		return fmt.Errorf("delete table %s.%s: %w", database, name, err)
	}

	log.Infon("Deleted table")
	return nil
}

// CreateTable creates the external table. It fails if the table exists.
func (r *Registrar) CreateTable(ctx context.Context, t Table) error {
	sd, err := storageDescriptor(t.Format, t.Location.URI(), t.Columns)
	if err != nil {
		return fmt.Errorf("storage descriptor: %w", err)
	}

	_, err = r.glue.CreateTable(ctx, &glue.CreateTableInput{
		DatabaseName: aws.String(t.Database),
		TableInput: &gluetypes.TableInput{
			Name:              aws.String(t.Name),
			TableType:         aws.String(externalTableType),
			PartitionKeys:     glueColumns(t.Partitions),
			StorageDescriptor: sd,
			Parameters: map[string]string{
				"EXTERNAL":       "TRUE",
				"classification": classification(t.Format),
			},
		},
	})
	if err != nil {
		return fmt.Errorf("create table %s.%s: %w", t.Database, t.Name, err)
	}

	r.logger.Infon("Created table",
		logger.NewStringField("database", t.Database),
		logger.NewStringField("table", t.Name),
		logger.NewStringField("location", t.Location.URI()),
		logger.NewIntField("columns", int64(len(t.Columns))),
		logger.NewIntField("partitionKeys", int64(len(t.Partitions))),
	)
	return nil
}

// Register replaces any table of the same name with t and registers the
// partitions found under its location. Any failure is returned as is, there
// is no retry and no schema merge with the previous table.
func (r *Registrar) Register(ctx context.Context, t Table) error {
	if err := r.DeleteTable(ctx, t.Database, t.Name); err != nil {
		return err
	}
	if err := r.CreateTable(ctx, t); err != nil {
		return err
	}
	if r.repairer == nil || len(t.Partitions) == 0 {
		return nil
	}
	if err := r.repairer.Repair(ctx, t); err != nil {
		return fmt.Errorf("repair partitions of %s.%s: %w", t.Database, t.Name, err)
	}
	return nil
}

func isNotFound(err error) bool {
	var notFound *gluetypes.EntityNotFoundException
	return errors.As(err, &notFound)
}
