package writer_test

import (
	"bytes"
	"context"
	"errors"
	"testing"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/compress"
	"github.com/apache/arrow-go/v18/parquet/file"
	"github.com/stretchr/testify/require"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	"github.com/rudderlabs/rudder-go-kit/stats/memstats"

	"github.com/rudderlabs/rudder-datalake-lab/datalake/dataset"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/encoding"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/schema"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/storage"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/writer"
)

// failingStore fails every Put after the first failAfter successful ones.
type failingStore struct {
	storage.ObjectStore
	failAfter int
	puts      int
}

var errPut = errors.New("put failed")

func (f *failingStore) Put(ctx context.Context, bucket, key string, body []byte) error {
	if f.puts >= f.failAfter {
		return errPut
	}
	f.puts++
	return f.ObjectStore.Put(ctx, bucket, key, body)
}

func sample(t *testing.T) arrow.Record {
	t.Helper()
	rec, err := dataset.Sample(memory.NewGoAllocator(), dataset.SnakeCase)
	require.NoError(t, err)
	t.Cleanup(rec.Release)
	return rec
}

func keys(t *testing.T, store storage.ObjectStore, loc storage.Location) []string {
	t.Helper()
	objects, err := store.List(context.Background(), loc.Bucket, loc.Prefix)
	require.NoError(t, err)

	var out []string
	for _, o := range objects {
		out = append(out, o.Key)
	}
	return out
}

func TestWriter(t *testing.T) {
	ctx := context.Background()
	rec := sample(t)
	loc := storage.Location{Bucket: "bucket", Prefix: "projects/lab/parquet"}

	t.Run("one object per partition", func(t *testing.T) {
		testCases := []struct {
			name     string
			format   encoding.Format
			fileName string
			expected []string
		}{
			{
				name:     "parquet",
				format:   encoding.Parquet,
				expected: []string{"projects/lab/parquet/year=2001/data.parquet", "projects/lab/parquet/year=2002/data.parquet"},
			},
			{
				name:     "ndjson with file name",
				format:   encoding.NDJSON,
				fileName: "part-0",
				expected: []string{"projects/lab/parquet/year=2001/part-0.json", "projects/lab/parquet/year=2002/part-0.json"},
			},
		}

		for _, tc := range testCases {
			t.Run(tc.name, func(t *testing.T) {
				store := storage.NewMemoryStore()
				statsStore, err := memstats.New()
				require.NoError(t, err)

				w, err := writer.New(config.New(), logger.NOP, statsStore, store, memory.NewGoAllocator())
				require.NoError(t, err)

				objects, err := w.Write(ctx, writer.Request{
					Record:       rec,
					PartitionKey: dataset.PartitionKey,
					Location:     loc,
					Format:       tc.format,
					FileName:     tc.fileName,
				})
				require.NoError(t, err)
				require.Len(t, objects, 2)
				require.Equal(t, "2001", objects[0].PartitionValue)
				require.Equal(t, "2002", objects[1].PartitionValue)
				for _, o := range objects {
					require.EqualValues(t, 1, o.Rows)
					require.Positive(t, o.Bytes)
				}

				require.Equal(t, tc.expected, keys(t, store, loc))

				tags := stats.Tags{"format": string(tc.format)}
				require.EqualValues(t, 2, statsStore.Get("datalake_writer_objects", tags).LastValue())
				require.Len(t, statsStore.Get("datalake_writer_object_bytes", tags).Values(), 2)
			})
		}
	})

	t.Run("overwrites the location", func(t *testing.T) {
		store := storage.NewMemoryStore()
		require.NoError(t, store.Put(ctx, loc.Bucket, loc.Key("year=1999", "data.parquet"), []byte("stale")))
		require.NoError(t, store.Put(ctx, loc.Bucket, loc.Key("year=2001", "old.parquet"), []byte("stale")))
		require.NoError(t, store.Put(ctx, loc.Bucket, "projects/lab/other/keep.parquet", []byte("keep")))

		w, err := writer.New(config.New(), logger.NOP, stats.NOP, store, memory.NewGoAllocator())
		require.NoError(t, err)

		_, err = w.Write(ctx, writer.Request{Record: rec, PartitionKey: dataset.PartitionKey, Location: loc, Format: encoding.Parquet})
		require.NoError(t, err)

		require.Equal(t, []string{
			"projects/lab/parquet/year=2001/data.parquet",
			"projects/lab/parquet/year=2002/data.parquet",
		}, keys(t, store, loc))
		require.Equal(t, []string{"projects/lab/other/keep.parquet"}, keys(t, store, storage.Location{Bucket: loc.Bucket, Prefix: "projects/lab/other"}))
	})

	t.Run("parquet objects use the configured compression", func(t *testing.T) {
		store := storage.NewMemoryStore()
		c := config.New()
		c.Set("Lab.parquetCompression", "gzip")

		w, err := writer.New(c, logger.NOP, stats.NOP, store, memory.NewGoAllocator())
		require.NoError(t, err)

		objects, err := w.Write(ctx, writer.Request{Record: rec, PartitionKey: dataset.PartitionKey, Location: loc, Format: encoding.Parquet})
		require.NoError(t, err)

		body, err := store.Get(ctx, loc.Bucket, objects[0].Key)
		require.NoError(t, err)

		reader, err := file.NewParquetReader(bytes.NewReader(body))
		require.NoError(t, err)
		defer func() { _ = reader.Close() }()

		require.EqualValues(t, 1, reader.NumRows())
		chunk, err := reader.MetaData().RowGroup(0).ColumnChunk(0)
		require.NoError(t, err)
		require.Equal(t, compress.Codecs.Gzip, chunk.Compression())
	})

	t.Run("invalid compression", func(t *testing.T) {
		c := config.New()
		c.Set("Lab.parquetCompression", "lzma")

		_, err := writer.New(c, logger.NOP, stats.NOP, storage.NewMemoryStore(), memory.NewGoAllocator())
		require.Error(t, err)
	})

	t.Run("first failure aborts", func(t *testing.T) {
		store := &failingStore{ObjectStore: storage.NewMemoryStore(), failAfter: 1}

		w, err := writer.New(config.New(), logger.NOP, stats.NOP, store, memory.NewGoAllocator())
		require.NoError(t, err)

		_, err = w.Write(ctx, writer.Request{Record: rec, PartitionKey: dataset.PartitionKey, Location: loc, Format: encoding.Parquet})
		require.ErrorIs(t, err, errPut)
		require.Equal(t, []string{"projects/lab/parquet/year=2001/data.parquet"}, keys(t, store, loc))
	})

	t.Run("missing partition column leaves the location untouched", func(t *testing.T) {
		store := storage.NewMemoryStore()
		require.NoError(t, store.Put(ctx, loc.Bucket, loc.Key("year=1999", "data.parquet"), []byte("stale")))

		w, err := writer.New(config.New(), logger.NOP, stats.NOP, store, memory.NewGoAllocator())
		require.NoError(t, err)

		_, err = w.Write(ctx, writer.Request{Record: rec, PartitionKey: "month", Location: loc, Format: encoding.Parquet})
		require.ErrorIs(t, err, schema.ErrMissingPartitionColumn)
		require.Equal(t, []string{"projects/lab/parquet/year=1999/data.parquet"}, keys(t, store, loc))
	})

	t.Run("unknown format", func(t *testing.T) {
		w, err := writer.New(config.New(), logger.NOP, stats.NOP, storage.NewMemoryStore(), memory.NewGoAllocator())
		require.NoError(t, err)

		_, err = w.Write(ctx, writer.Request{Record: rec, PartitionKey: dataset.PartitionKey, Location: loc, Format: "avro"})
		require.ErrorIs(t, err, encoding.ErrUnknownFormat)
	})
}

func TestPartitionFolder(t *testing.T) {
	testCases := []struct {
		value    string
		expected string
	}{
		{value: "2001", expected: "year=2001"},
		{value: "a b", expected: "year=a b"},
		{value: "a/b", expected: "year=a%2Fb"},
		{value: "x=y:z", expected: "year=x%3Dy%3Az"},
		{value: dataset.HiveDefaultPartition, expected: "year=" + dataset.HiveDefaultPartition},
	}

	for _, tc := range testCases {
		t.Run(tc.value, func(t *testing.T) {
			require.Equal(t, tc.expected, writer.PartitionFolder("year", tc.value))
		})
	}
}
