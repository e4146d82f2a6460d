package lab_test

import (
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/aws/aws-sdk-go-v2/aws"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/stretchr/testify/require"
	"github.com/tidwall/gjson"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/rudder-datalake-lab/datalake/catalog/catalogtest"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/dataset"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/encoding"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/lab"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/schema"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/storage"
)

const (
	bucket   = "lab-bucket"
	database = "create_glue_catalog_test_database"
	table    = "create_glue_catalog_test_table"

	parquetSerDe = "org.apache.hadoop.hive.ql.io.parquet.serde.ParquetHiveSerDe"
)

type testEnv struct {
	lab   *lab.Lab
	store *storage.MemoryStore
	glue  *catalogtest.Glue
}

func newTestEnv(t *testing.T, c *config.Config) *testEnv {
	t.Helper()
	return newTestEnvWithLogger(t, c, logger.NOP)
}

func newTestEnvWithLogger(t *testing.T, c *config.Config, log logger.Logger) *testEnv {
	t.Helper()

	if c == nil {
		c = config.New()
	}
	c.Set("Lab.bucket", bucket)

	settings, err := lab.LoadSettings(c)
	require.NoError(t, err)

	env := &testEnv{store: storage.NewMemoryStore(), glue: catalogtest.NewGlue()}
	env.lab, err = lab.New(c, log, stats.NOP, settings, lab.Clients{
		Store: env.store,
		Glue:  env.glue,
		Athena: &catalogtest.Athena{
			States: []athenatypes.QueryExecutionState{athenatypes.QueryExecutionStateSucceeded},
		},
	})
	require.NoError(t, err)
	return env
}

func (e *testEnv) tableColumns(t *testing.T) map[string]string {
	t.Helper()

	created, ok := e.glue.Tables[database+"."+table]
	require.True(t, ok, "table is not registered")

	columns := make(map[string]string)
	for _, c := range created.StorageDescriptor.Columns {
		columns[aws.ToString(c.Name)] = aws.ToString(c.Type)
	}
	return columns
}

func (e *testEnv) keys(t *testing.T) []string {
	t.Helper()

	objects, err := e.store.List(context.Background(), bucket, "")
	require.NoError(t, err)

	keys := make([]string, 0, len(objects))
	for _, o := range objects {
		keys = append(keys, o.Key)
	}
	return keys
}

func TestLoadSettings(t *testing.T) {
	t.Run("defaults", func(t *testing.T) {
		c := config.New()
		c.Set("Lab.bucket", bucket)

		s, err := lab.LoadSettings(c)
		require.NoError(t, err)
		require.Equal(t, database, s.Database)
		require.Equal(t, table, s.Table)
		require.Equal(t, "year", s.PartitionKey)
		require.Equal(t, lab.RepairGlue, s.PartitionRepair)
		require.Equal(t, "s3://lab-bucket/projects/learn_awswrangler/", s.Root().URI())
	})

	t.Run("missing bucket", func(t *testing.T) {
		s, err := lab.LoadSettings(config.New())
		require.NoError(t, err)
		require.ErrorIs(t, s.RequireBucket(), lab.ErrMissingBucket)
	})

	t.Run("unknown partition repair", func(t *testing.T) {
		c := config.New()
		c.Set("Lab.bucket", bucket)
		c.Set("Lab.partitionRepair", "crawler")

		_, err := lab.LoadSettings(c)
		require.ErrorContains(t, err, "crawler")
	})
}

func TestParseSource(t *testing.T) {
	testCases := []struct {
		input    string
		expected lab.Source
		wantErr  bool
	}{
		{input: "", expected: lab.Columnar},
		{input: "manual", expected: lab.Manual},
		{input: "ArrayFrame", expected: lab.ArrayFrame},
		{input: "crawler", wantErr: true},
	}
	for _, tc := range testCases {
		t.Run(tc.input, func(t *testing.T) {
			src, err := lab.ParseSource(tc.input)
			if tc.wantErr {
				require.Error(t, err)
				return
			}
			require.NoError(t, err)
			require.Equal(t, tc.expected, src)
		})
	}
}

func TestManualSchema(t *testing.T) {
	for _, n := range []dataset.Naming{dataset.SnakeCase, dataset.CamelCase} {
		t.Run(string(n), func(t *testing.T) {
			columns := lab.ManualSchema(n)

			names := make([]string, 0, len(columns))
			for _, c := range columns {
				require.NoError(t, schema.Validate(c.Type))
				names = append(names, c.Name)
			}
			var expected []string
			for _, f := range dataset.Schema(n).Fields() {
				expected = append(expected, f.Name)
			}
			require.Equal(t, expected, names)

			_, err := schema.Translate(columns, []string{n.Name(dataset.PartitionKey)})
			require.NoError(t, err)
		})
	}
}

func TestLab_SchemaFidelity(t *testing.T) {
	ctx := context.Background()

	t.Run("widened integer columns", func(t *testing.T) {
		env := newTestEnv(t, nil)
		dir := t.TempDir()

		comparison, err := env.lab.SchemaFidelity(ctx, dir, lab.FidelityOptions{Naming: dataset.SnakeCase})
		require.NoError(t, err)

		byName := make(map[string]lab.ColumnComparison)
		for _, c := range comparison {
			byName[c.Name] = c
		}
		require.Len(t, byName, len(dataset.Schema(dataset.SnakeCase).Fields()))

		require.Equal(t, lab.ColumnComparison{Name: "a_int", Columnar: "bigint", ArrayFrame: "double", Widened: true}, byName["a_int"])
		require.Equal(t, lab.ColumnComparison{Name: "a_int_list", Columnar: "array<bigint>", ArrayFrame: "array<double>", Widened: true}, byName["a_int_list"])
		require.False(t, byName["id"].Widened)
		require.False(t, byName["a_str_list"].Widened)

		columnar, err := os.ReadFile(filepath.Join(dir, lab.ColumnarFile))
		require.NoError(t, err)
		frame, err := os.ReadFile(filepath.Join(dir, lab.ArrayFrameFile))
		require.NoError(t, err)

		columnarRows := strings.Split(strings.TrimSpace(string(columnar)), "\n")
		frameRows := strings.Split(strings.TrimSpace(string(frame)), "\n")
		require.Len(t, columnarRows, 2)
		require.Len(t, frameRows, 2)

		require.Equal(t, "1", gjson.Get(columnarRows[0], "a_int").Raw)
		require.Equal(t, "1.0", gjson.Get(frameRows[0], "a_int").Raw)
		require.Equal(t, "null", gjson.Get(frameRows[1], "a_int").Raw)
		require.Equal(t, "[1.0,null,3.0]", gjson.Get(frameRows[1], "a_int_list").Raw)
		require.Equal(t, "[1,2,3]", gjson.Get(columnarRows[0], "a_int_list").Raw)
	})

	t.Run("nullable integers keep their type", func(t *testing.T) {
		env := newTestEnv(t, nil)

		comparison, err := env.lab.SchemaFidelity(ctx, t.TempDir(), lab.FidelityOptions{
			Naming:           dataset.CamelCase,
			NullableIntegers: true,
		})
		require.NoError(t, err)
		for _, c := range comparison {
			require.False(t, c.Widened, c.Name)
			require.Equal(t, c.Columnar, c.ArrayFrame)
		}
	})
}

func TestLab_Publish(t *testing.T) {
	ctx := context.Background()

	t.Run("parquet with manual schema", func(t *testing.T) {
		env := newTestEnv(t, nil)

		res, err := env.lab.Publish(ctx, lab.PublishRequest{
			Format: encoding.Parquet,
			Source: lab.Manual,
			Naming: dataset.SnakeCase,
		})
		require.NoError(t, err)

		require.Equal(t, []string{
			"projects/learn_awswrangler/parquet/year=2001/data.parquet",
			"projects/learn_awswrangler/parquet/year=2002/data.parquet",
		}, env.keys(t))
		require.Len(t, res.Objects, 2)
		require.Empty(t, res.Widened)
		require.Empty(t, res.NameIssues)

		columns := env.tableColumns(t)
		require.NotContains(t, columns, "year")
		require.Equal(t, "int", columns["a_int"])
		require.Equal(t, "array<array<int>>", columns["a_list_of_int_list"])

		created := env.glue.Tables[database+"."+table]
		require.Equal(t, parquetSerDe, aws.ToString(created.StorageDescriptor.SerdeInfo.SerializationLibrary))
		require.Equal(t, "s3://lab-bucket/projects/learn_awswrangler/parquet/", aws.ToString(created.StorageDescriptor.Location))
		require.Equal(t, map[string]string{
			"2001": "s3://lab-bucket/projects/learn_awswrangler/parquet/year=2001/",
			"2002": "s3://lab-bucket/projects/learn_awswrangler/parquet/year=2002/",
		}, env.glue.PartitionLocations(database, table))
	})

	t.Run("ndjson with columnar schema", func(t *testing.T) {
		env := newTestEnv(t, nil)

		_, err := env.lab.Publish(ctx, lab.PublishRequest{
			Format: encoding.NDJSON,
			Source: lab.Columnar,
			Naming: dataset.CamelCase,
		})
		require.NoError(t, err)

		require.Equal(t, []string{
			"projects/learn_awswrangler/ndjson/year=2001/data.json",
			"projects/learn_awswrangler/ndjson/year=2002/data.json",
		}, env.keys(t))

		columns := env.tableColumns(t)
		require.Equal(t, "bigint", columns["aInt"])
		require.Equal(t, "array<bigint>", columns["aIntList"])
	})

	t.Run("array frame source widens", func(t *testing.T) {
		env := newTestEnv(t, nil)

		res, err := env.lab.Publish(ctx, lab.PublishRequest{
			Format: encoding.Parquet,
			Source: lab.ArrayFrame,
			Naming: dataset.SnakeCase,
		})
		require.NoError(t, err)
		require.Contains(t, res.Widened, "a_int")
		require.NotContains(t, res.Widened, "id")
		require.Equal(t, "double", env.tableColumns(t)["a_int"])
	})

	t.Run("widened columns rejected", func(t *testing.T) {
		c := config.New()
		c.Set("Lab.rejectWidenedColumns", true)
		env := newTestEnv(t, c)

		_, err := env.lab.Publish(ctx, lab.PublishRequest{
			Format: encoding.Parquet,
			Source: lab.ArrayFrame,
			Naming: dataset.SnakeCase,
		})
		require.ErrorIs(t, err, lab.ErrWidenedColumns)
		require.ErrorContains(t, err, "a_int")
		require.Empty(t, env.keys(t))
		require.Empty(t, env.glue.Tables)
	})

	t.Run("camel case names are reported", func(t *testing.T) {
		env := newTestEnv(t, nil)

		res, err := env.lab.Publish(ctx, lab.PublishRequest{
			Format: encoding.Parquet,
			Source: lab.Manual,
			Naming: dataset.CamelCase,
		})
		require.NoError(t, err)
		require.Contains(t, res.NameIssues, schema.NameIssue{Path: "aInt", Suggestion: "a_int"})
	})

	t.Run("republishing replaces the table", func(t *testing.T) {
		env := newTestEnv(t, nil)

		for _, f := range []encoding.Format{encoding.NDJSON, encoding.Parquet} {
			_, err := env.lab.Publish(ctx, lab.PublishRequest{Format: f, Source: lab.Columnar, Naming: dataset.SnakeCase})
			require.NoError(t, err)
		}

		created := env.glue.Tables[database+"."+table]
		require.Equal(t, parquetSerDe, aws.ToString(created.StorageDescriptor.SerdeInfo.SerializationLibrary))
		require.Len(t, env.keys(t), 4)
	})

	t.Run("athena partition repair", func(t *testing.T) {
		c := config.New()
		c.Set("Lab.partitionRepair", lab.RepairAthena)
		c.Set("Lab.athenaPollInterval", "1ms")
		env := newTestEnv(t, c)

		_, err := env.lab.Publish(ctx, lab.PublishRequest{Format: encoding.Parquet, Source: lab.Columnar, Naming: dataset.SnakeCase})
		require.NoError(t, err)
		require.NotContains(t, env.glue.Calls, "BatchCreatePartition")
	})
}

func TestLab_Cleanup(t *testing.T) {
	ctx := context.Background()
	env := newTestEnv(t, nil)

	require.NoError(t, env.store.Put(ctx, bucket, "unrelated/data.json", []byte("{}")))
	_, err := env.lab.Publish(ctx, lab.PublishRequest{Format: encoding.Parquet, Source: lab.Columnar, Naming: dataset.SnakeCase})
	require.NoError(t, err)

	require.NoError(t, env.lab.Cleanup(ctx))
	require.Equal(t, []string{"unrelated/data.json"}, env.keys(t))
	require.Empty(t, env.glue.Tables)
	require.Empty(t, env.glue.Databases)

	t.Run("idempotent", func(t *testing.T) {
		require.NoError(t, env.lab.Cleanup(ctx))
	})

	t.Run("logs console links", func(t *testing.T) {
		logFile := filepath.Join(t.TempDir(), "lab.log")
		c := config.New()
		c.Set("Logger.enableConsole", false)
		c.Set("Logger.enableFile", true)
		c.Set("Logger.fileJsonFormat", true)
		c.Set("Logger.logFileLocation", logFile)
		env := newTestEnvWithLogger(t, c, logger.NewFactory(c).NewLogger())

		require.NoError(t, env.lab.Cleanup(ctx))

		logs, err := os.ReadFile(logFile)
		require.NoError(t, err)
		require.Contains(t, string(logs), "data-catalog/tables/view/"+table+"?database="+database)
		require.Contains(t, string(logs), "data-catalog/databases/view/"+database)
	})
}

func TestLab_WithoutBucket(t *testing.T) {
	ctx := context.Background()
	c := config.New()

	settings, err := lab.LoadSettings(c)
	require.NoError(t, err)
	l, err := lab.New(c, logger.NOP, stats.NOP, settings, lab.LocalClients())
	require.NoError(t, err)

	comparison, err := l.SchemaFidelity(ctx, t.TempDir(), lab.FidelityOptions{Naming: dataset.SnakeCase})
	require.NoError(t, err)
	require.NotEmpty(t, comparison)

	ts, err := l.TableSchema(lab.ArrayFrame, dataset.SnakeCase)
	require.NoError(t, err)
	require.Contains(t, ts.Widened, "a_int")

	_, err = l.Publish(ctx, lab.PublishRequest{Format: encoding.Parquet, Source: lab.Columnar, Naming: dataset.SnakeCase})
	require.ErrorIs(t, err, lab.ErrMissingBucket)
	require.ErrorIs(t, l.Cleanup(ctx), lab.ErrMissingBucket)
}

func TestLab_TableSchema(t *testing.T) {
	env := newTestEnv(t, nil)

	ts, err := env.lab.TableSchema(lab.Columnar, dataset.SnakeCase)
	require.NoError(t, err)
	require.Equal(t, []schema.CatalogColumn{{Name: "year", Type: "string"}}, ts.Translation.Partitions)
	require.Len(t, ts.Translation.Columns, len(ts.Columns)-1)
	require.Empty(t, ts.Widened)

	_, err = env.lab.TableSchema("crawler", dataset.SnakeCase)
	require.ErrorContains(t, err, "unknown schema source")

	require.Empty(t, env.keys(t))
	require.Empty(t, env.glue.Calls)
}
