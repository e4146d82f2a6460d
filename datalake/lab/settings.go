package lab

import (
	"context"
	"errors"
	"fmt"
	"strings"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	"github.com/aws/aws-sdk-go-v2/service/glue"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"

	"github.com/rudderlabs/rudder-datalake-lab/datalake/catalog"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/storage"
)

const (
	RepairGlue   = "glue"
	RepairAthena = "athena"
)

var ErrMissingBucket = errors.New("bucket is not configured, set Lab.bucket")

// LocalClients keeps datasets in memory and has no catalog. It serves the
// operations that never touch the catalog, such as SchemaFidelity and
// TableSchema.
func LocalClients() Clients {
	return Clients{Store: storage.NewMemoryStore()}
}

// Settings are the names and locations every lab operation works against.
type Settings struct {
	Profile  string
	Region   string
	Endpoint string

	Bucket          string
	RootPrefix      string
	Database        string
	Table           string
	PartitionKey    string
	PartitionRepair string

	RejectWidenedColumns bool
}

// LoadSettings reads the settings from conf. Every key can be overridden from
// the environment, e.g. RSERVER_LAB_BUCKET for Lab.bucket. The bucket is only
// required by the operations that write to it, see RequireBucket.
func LoadSettings(conf *config.Config) (Settings, error) {
	s := Settings{
		Profile:              conf.GetString("AWS.profile", ""),
		Region:               conf.GetString("AWS.region", "us-east-1"),
		Endpoint:             conf.GetString("AWS.endpoint", ""),
		Bucket:               conf.GetString("Lab.bucket", ""),
		RootPrefix:           strings.Trim(conf.GetString("Lab.rootPrefix", "projects/learn_awswrangler"), "/"),
		Database:             conf.GetString("Lab.database", "create_glue_catalog_test_database"),
		Table:                conf.GetString("Lab.table", "create_glue_catalog_test_table"),
		PartitionKey:         conf.GetString("Lab.partitionKey", "year"),
		PartitionRepair:      strings.ToLower(conf.GetString("Lab.partitionRepair", RepairGlue)),
		RejectWidenedColumns: conf.GetBool("Lab.rejectWidenedColumns", false),
	}

	switch s.PartitionRepair {
	case RepairGlue, RepairAthena:
	default:
		return Settings{}, fmt.Errorf("unknown partition repair %q, expected %s or %s", s.PartitionRepair, RepairGlue, RepairAthena)
	}
	return s, nil
}

func (s Settings) RequireBucket() error {
	if s.Bucket == "" {
		return ErrMissingBucket
	}
	return nil
}

// Root is the location all datasets of the lab are written under.
func (s Settings) Root() storage.Location {
	return storage.Location{Bucket: s.Bucket, Prefix: s.RootPrefix}
}

// Clients are the backends a Lab talks to.
type Clients struct {
	Store  storage.ObjectStore
	Glue   catalog.GlueAPI
	Athena catalog.AthenaAPI
}

// NewAWSClients builds the clients from the default credential chain, using
// the configured profile and region. A custom endpoint applies to S3 only.
func NewAWSClients(ctx context.Context, conf *config.Config, log logger.Logger, s Settings) (Clients, error) {
	opts := []func(*awsconfig.LoadOptions) error{
		awsconfig.WithRegion(s.Region),
	}
	if s.Profile != "" {
		opts = append(opts, awsconfig.WithSharedConfigProfile(s.Profile))
	}

	cfg, err := awsconfig.LoadDefaultConfig(ctx, opts...)
	if err != nil {
		return Clients{}, fmt.Errorf("load aws config: %w", err)
	}

	return Clients{
		Store:  storage.NewS3Store(conf, log, storage.NewS3Client(cfg, s.Endpoint)),
		Glue:   glue.NewFromConfig(cfg),
		Athena: athena.NewFromConfig(cfg),
	}, nil
}
