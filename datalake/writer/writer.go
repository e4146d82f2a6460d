// Package writer writes a record as a hive partitioned dataset:
// <prefix>/<key>=<value>/<file>.<ext>, one object per partition value.
package writer

import (
	"bytes"
	"context"
	"fmt"
	"strings"

	"github.com/apache/arrow-go/v18/arrow"
	"github.com/apache/arrow-go/v18/arrow/memory"
	"github.com/apache/arrow-go/v18/parquet/compress"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"
	obskit "github.com/rudderlabs/rudder-observability-kit/go/labels"

	"github.com/rudderlabs/rudder-datalake-lab/datalake/dataset"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/encoding"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/storage"
)

const defaultFileName = "data"

type Request struct {
	Record       arrow.Record
	PartitionKey string
	Location     storage.Location
	Format       encoding.Format
	// FileName is the object name inside every partition folder, without
	// extension. Defaults to "data".
	FileName string
}

// Object describes one written partition file.
type Object struct {
	PartitionValue string
	Key            string
	Rows           int64
	Bytes          int
}

type Writer struct {
	store        storage.ObjectStore
	mem          memory.Allocator
	logger       logger.Logger
	statsFactory stats.Stats

	config struct {
		compression compress.Compression
	}
}

func New(conf *config.Config, log logger.Logger, statsFactory stats.Stats, store storage.ObjectStore, mem memory.Allocator) (*Writer, error) {
	w := &Writer{
		store:        store,
		mem:          mem,
		logger:       log.Child("writer"),
		statsFactory: statsFactory,
	}

	c, err := encoding.ParseCompression(conf.GetString("Lab.parquetCompression", "snappy"))
	if err != nil {
		return nil, fmt.Errorf("parquet compression: %w", err)
	}
	w.config.compression = c
	return w, nil
}

// Write replaces everything under req.Location with one object per distinct
// value of req.PartitionKey, in the order values first appear in the record.
// Objects are written one after the other and the first failure aborts the
// write; objects written before the failure are left in place.
func (w *Writer) Write(ctx context.Context, req Request) ([]Object, error) {
	fileName := req.FileName
	if fileName == "" {
		fileName = defaultFileName
	}

	enc, err := encoding.NewEncoder(req.Format, encoding.WithCompression(w.config.compression))
	if err != nil {
		return nil, err
	}

	groups, err := dataset.GroupBy(w.mem, req.Record, req.PartitionKey)
	if err != nil {
		return nil, fmt.Errorf("partition by %s: %w", req.PartitionKey, err)
	}
	defer dataset.Release(groups)

	log := w.logger.Withn(
		logger.NewStringField("location", req.Location.URI()),
		logger.NewStringField("format", string(req.Format)),
		logger.NewStringField("partitionKey", req.PartitionKey),
	)

	deleted, err := w.store.DeletePrefix(ctx, req.Location.Bucket, req.Location.Prefix)
	if err != nil {
		return nil, fmt.Errorf("clear %s: %w", req.Location.URI(), err)
	}
	if deleted > 0 {
		log.Infon("Removed existing objects", logger.NewIntField("count", int64(deleted)))
	}

	tags := stats.Tags{"format": string(req.Format)}
	objectsStat := w.statsFactory.NewTaggedStat("datalake_writer_objects", stats.CountType, tags)
	bytesStat := w.statsFactory.NewTaggedStat("datalake_writer_object_bytes", stats.HistogramType, tags)

	objects := make([]Object, 0, len(groups))
	for _, g := range groups {
		if err := ctx.Err(); err != nil {
			return nil, err
		}

		var buf bytes.Buffer
		if err := enc.Encode(&buf, g.Record); err != nil {
			return nil, fmt.Errorf("encode partition %s=%s: %w", req.PartitionKey, g.Value, err)
		}

		key := req.Location.Key(PartitionFolder(req.PartitionKey, g.Value), fileName+"."+req.Format.Extension())
		if err := w.store.Put(ctx, req.Location.Bucket, key, buf.Bytes()); err != nil {
			log.Warnn("Writing partition failed",
				logger.NewStringField("key", key),
				obskit.Error(err),
			)
			return nil, fmt.Errorf("write partition %s=%s: %w", req.PartitionKey, g.Value, err)
		}

		objectsStat.Increment()
		bytesStat.Observe(float64(buf.Len()))

		objects = append(objects, Object{
			PartitionValue: g.Value,
			Key:            key,
			Rows:           g.Record.NumRows(),
			Bytes:          buf.Len(),
		})
	}

	log.Infon("Wrote partitioned dataset", logger.NewIntField("partitions", int64(len(objects))))
	return objects, nil
}

// PartitionFolder returns the key=value folder name of a partition, escaping
// the characters hive escapes in partition values.
func PartitionFolder(key, value string) string {
	return key + "=" + escapePartitionValue(value)
}

func escapePartitionValue(v string) string {
	var b strings.Builder
	for _, r := range v {
		if r < 0x20 || r == 0x7f || strings.ContainsRune("\"#%'*/:=?\\{[]^", r) {
			fmt.Fprintf(&b, "%%%02X", r)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
