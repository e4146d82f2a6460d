package catalog

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"path"
	"regexp"
	"strings"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"
	"github.com/cenkalti/backoff/v4"
	"github.com/google/uuid"
	"github.com/samber/lo"
	"golang.org/x/sync/errgroup"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/rudderlabs/rudder-datalake-lab/datalake/storage"
)

// PartitionRepairer makes the partitions written under a table's location
// known to the catalog.
type PartitionRepairer interface {
	Repair(ctx context.Context, t Table) error
}

// maximum accepted by BatchCreatePartition
const maxPartitionBatchSize = 100

var partitionFolderRegex = regexp.MustCompile(`^(?P<name>[^=]+)=(?P<value>.*)$`)

// GlueDiscovery lists the table location, derives partitions from key=value
// folders and creates the ones Glue does not know about yet.
type GlueDiscovery struct {
	glue   GlueAPI
	store  storage.ObjectStore
	logger logger.Logger

	config struct {
		batchSize         int
		lookupConcurrency int
	}
}

func NewGlueDiscovery(conf *config.Config, log logger.Logger, glueClient GlueAPI, store storage.ObjectStore) *GlueDiscovery {
	g := &GlueDiscovery{
		glue:   glueClient,
		store:  store,
		logger: log.Child("glue-discovery"),
	}
	g.config.batchSize = min(conf.GetInt("Catalog.partitionBatchSize", maxPartitionBatchSize), maxPartitionBatchSize)
	if g.config.batchSize <= 0 {
		g.config.batchSize = maxPartitionBatchSize
	}
	g.config.lookupConcurrency = max(conf.GetInt("Catalog.partitionLookupConcurrency", 8), 1)
	return g
}

// Partition is a set of partition values and the folder holding their files.
type Partition struct {
	Values   []string
	Location storage.Location
}

// DiscoverPartitions returns the partitions found below t's location, in key
// order. Objects outside a complete key=value folder path are ignored.
func DiscoverPartitions(ctx context.Context, store storage.ObjectStore, t Table) ([]Partition, error) {
	objects, err := store.List(ctx, t.Location.Bucket, t.Location.Prefix)
	if err != nil {
		return nil, fmt.Errorf("list %s: %w", t.Location.URI(), err)
	}

	keys := t.PartitionKeys()
	if len(keys) == 0 {
		return nil, nil
	}
	base := t.Location.Key()
	if base != "" {
		base += "/"
	}

	var (
		partitions []Partition
		seen       = make(map[string]struct{})
	)
	for _, o := range objects {
		dir := path.Dir(strings.TrimPrefix(o.Key, base))
		segments := strings.Split(dir, "/")
		if len(segments) < len(keys) {
			continue
		}
		segments = segments[:len(keys)]

		folder := strings.Join(segments, "/")
		if _, ok := seen[folder]; ok {
			continue
		}

		values, ok := partitionValues(segments, keys)
		if !ok {
			continue
		}
		seen[folder] = struct{}{}
		partitions = append(partitions, Partition{
			Values:   values,
			Location: t.Location.Join(segments...),
		})
	}
	return partitions, nil
}

func partitionValues(segments, keys []string) ([]string, bool) {
	values := make([]string, 0, len(keys))
	for i, segment := range segments {
		match := partitionFolderRegex.FindStringSubmatch(segment)
		if match == nil || !strings.EqualFold(match[partitionFolderRegex.SubexpIndex("name")], keys[i]) {
			return nil, false
		}
		value, err := url.PathUnescape(match[partitionFolderRegex.SubexpIndex("value")])
		if err != nil {
			return nil, false
		}
		values = append(values, value)
	}
	return values, true
}

func (g *GlueDiscovery) Repair(ctx context.Context, t Table) error {
	log := g.logger.Withn(
		logger.NewStringField("database", t.Database),
		logger.NewStringField("table", t.Name),
	)

	partitions, err := DiscoverPartitions(ctx, g.store, t)
	if err != nil {
		return err
	}

	// Partitions that already exist are skipped so that the table does not
	// collect a new version for every repair.
	missing := make([]*gluetypes.PartitionInput, len(partitions))
	lookups, lookupCtx := errgroup.WithContext(ctx)
	lookups.SetLimit(g.config.lookupConcurrency)
	for i, p := range partitions {
		lookups.Go(func() error {
			_, err := g.glue.GetPartition(lookupCtx, &glue.GetPartitionInput{
				DatabaseName:    aws.String(t.Database),
				TableName:       aws.String(t.Name),
				PartitionValues: p.Values,
			})
			if err == nil {
				log.Debugn("Partition already exists", logger.NewStringField("location", p.Location.URI()))
				return nil
			}
			if !isNotFound(err) {
				return fmt.Errorf("get partition %v: %w", p.Values, err)
			}

			sd, err := storageDescriptor(t.Format, p.Location.URI(), t.Columns)
			if err != nil {
				return err
			}
			missing[i] = &gluetypes.PartitionInput{
				Values:            p.Values,
				StorageDescriptor: sd,
			}
			return nil
		})
	}
	if err := lookups.Wait(); err != nil {
		return err
	}

	var inputs []gluetypes.PartitionInput
	for _, in := range missing {
		if in != nil {
			inputs = append(inputs, *in)
		}
	}
	if len(inputs) == 0 {
		log.Infon("No new partitions to register")
		return nil
	}

	for _, batch := range lo.Chunk(inputs, g.config.batchSize) {
		out, err := g.glue.BatchCreatePartition(ctx, &glue.BatchCreatePartitionInput{
			DatabaseName:       aws.String(t.Database),
			TableName:          aws.String(t.Name),
			PartitionInputList: batch,
		})
		if err != nil {
			return fmt.Errorf("batch create partitions: %w", err)
		}
		if len(out.Errors) > 0 {
			failed := lo.Map(out.Errors, func(e gluetypes.PartitionError, _ int) string {
				msg := "unknown error"
				if e.ErrorDetail != nil {
					msg = aws.ToString(e.ErrorDetail.ErrorCode) + ": " + aws.ToString(e.ErrorDetail.ErrorMessage)
				}
				return fmt.Sprintf("%v (%s)", e.PartitionValues, msg)
			})
			return fmt.Errorf("batch create partitions: %s", strings.Join(failed, ", "))
		}
	}

	log.Infon("Registered partitions", logger.NewIntField("count", int64(len(inputs))))
	return nil
}

// AthenaAPI is the part of the athena client AthenaRepair uses.
type AthenaAPI interface {
	StartQueryExecution(ctx context.Context, params *athena.StartQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error)
	GetQueryExecution(ctx context.Context, params *athena.GetQueryExecutionInput, optFns ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error)
}

var (
	ErrQueryFailed = errors.New("athena query failed")

	errQueryRunning = errors.New("athena query still running")
)

// AthenaRepair runs MSCK REPAIR TABLE and waits for it to finish.
type AthenaRepair struct {
	athena AthenaAPI
	logger logger.Logger

	config struct {
		workgroup      string
		outputLocation string
		pollInterval   time.Duration
		maxPolls       int
	}
}

func NewAthenaRepair(conf *config.Config, log logger.Logger, client AthenaAPI) *AthenaRepair {
	a := &AthenaRepair{
		athena: client,
		logger: log.Child("athena-repair"),
	}
	a.config.workgroup = conf.GetString("Lab.athenaWorkgroup", "primary")
	a.config.outputLocation = conf.GetString("Lab.athenaOutputLocation", "")
	a.config.pollInterval = conf.GetDuration("Lab.athenaPollInterval", 1, time.Second)
	a.config.maxPolls = conf.GetInt("Lab.athenaMaxPolls", 300)
	return a
}

func (a *AthenaRepair) Repair(ctx context.Context, t Table) error {
	input := &athena.StartQueryExecutionInput{
		QueryString:           aws.String(fmt.Sprintf("MSCK REPAIR TABLE `%s`", t.Name)),
		QueryExecutionContext: &athenatypes.QueryExecutionContext{Database: aws.String(t.Database)},
		WorkGroup:             aws.String(a.config.workgroup),
		ClientRequestToken:    aws.String(uuid.NewString()),
	}
	if a.config.outputLocation != "" {
		input.ResultConfiguration = &athenatypes.ResultConfiguration{OutputLocation: aws.String(a.config.outputLocation)}
	}

	started, err := a.athena.StartQueryExecution(ctx, input)
	if err != nil {
		return fmt.Errorf("start partition repair: %w", err)
	}
	id := aws.ToString(started.QueryExecutionId)

	log := a.logger.Withn(
		logger.NewStringField("database", t.Database),
		logger.NewStringField("table", t.Name),
		logger.NewStringField("queryExecutionId", id),
	)

	operation := func() error {
		out, err := a.athena.GetQueryExecution(ctx, &athena.GetQueryExecutionInput{QueryExecutionId: aws.String(id)})
		if err != nil {
			return backoff.Permanent(fmt.Errorf("get query execution %s: %w", id, err))
		}
		if out.QueryExecution == nil || out.QueryExecution.Status == nil {
			return errQueryRunning
		}

		status := out.QueryExecution.Status
		switch status.State {
		case athenatypes.QueryExecutionStateSucceeded:
			return nil
		case athenatypes.QueryExecutionStateFailed, athenatypes.QueryExecutionStateCancelled:
			return backoff.Permanent(fmt.Errorf("%w: %s %s", ErrQueryFailed, status.State, aws.ToString(status.StateChangeReason)))
		default:
			return errQueryRunning
		}
	}

	b := backoff.WithContext(backoff.WithMaxRetries(backoff.NewConstantBackOff(a.config.pollInterval), uint64(a.config.maxPolls)), ctx)
	err = backoff.RetryNotify(operation, b, func(err error, d time.Duration) {
		log.Debugn("Waiting for partition repair", logger.NewDurationField("retryIn", d))
	})
	if err != nil {
		if errors.Is(err, errQueryRunning) {
			return fmt.Errorf("partition repair %s did not finish after %d polls", id, a.config.maxPolls)
		}
		return err
	}

	log.Infon("Repaired partitions")
	return nil
}

// TableConsoleURL links to the table in the Glue console.
func TableConsoleURL(region, database, table string) string {
	return fmt.Sprintf("https://%s.console.aws.amazon.com/glue/home?region=%s#/v2/data-catalog/tables/view/%s?database=%s",
		region, region, url.PathEscape(table), url.QueryEscape(database))
}

// DatabaseConsoleURL links to the database in the Glue console.
func DatabaseConsoleURL(region, database string) string {
	return fmt.Sprintf("https://%s.console.aws.amazon.com/glue/home?region=%s#/v2/data-catalog/databases/view/%s",
		region, region, url.PathEscape(database))
}
