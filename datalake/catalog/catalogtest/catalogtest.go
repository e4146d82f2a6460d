// Package catalogtest provides in-memory Glue and Athena clients for tests.
package catalogtest

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/aws/aws-sdk-go-v2/aws"
	"github.com/aws/aws-sdk-go-v2/service/athena"
	athenatypes "github.com/aws/aws-sdk-go-v2/service/athena/types"
	"github.com/aws/aws-sdk-go-v2/service/glue"
	gluetypes "github.com/aws/aws-sdk-go-v2/service/glue/types"
)

// Glue is an in-memory glue catalog.
type Glue struct {
	mu         sync.Mutex
	Databases  map[string]struct{}
	Tables     map[string]*gluetypes.TableInput
	Partitions map[string]gluetypes.PartitionInput
	Calls      []string

	FailCreateTable error
	PartitionErrors []gluetypes.PartitionError
	BatchSizes      []int
}

func NewGlue() *Glue {
	return &Glue{
		Databases:  make(map[string]struct{}),
		Tables:     make(map[string]*gluetypes.TableInput),
		Partitions: make(map[string]gluetypes.PartitionInput),
	}
}

func notFound(what string) error {
	return &gluetypes.EntityNotFoundException{Message: aws.String(what + " not found")}
}

func tableKey(database, table string) string {
	return database + "." + table
}

func partitionKey(database, table string, values []string) string {
	return tableKey(database, table) + "/" + strings.Join(values, "/")
}

func (f *Glue) record(call string) {
	f.Calls = append(f.Calls, call)
}

func (f *Glue) GetDatabase(_ context.Context, in *glue.GetDatabaseInput, _ ...func(*glue.Options)) (*glue.GetDatabaseOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetDatabase")

	if _, ok := f.Databases[aws.ToString(in.Name)]; !ok {
		return nil, notFound("database")
	}
	return &glue.GetDatabaseOutput{Database: &gluetypes.Database{Name: in.Name}}, nil
}

func (f *Glue) CreateDatabase(_ context.Context, in *glue.CreateDatabaseInput, _ ...func(*glue.Options)) (*glue.CreateDatabaseOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateDatabase")

	name := aws.ToString(in.DatabaseInput.Name)
	if _, ok := f.Databases[name]; ok {
		return nil, &gluetypes.AlreadyExistsException{Message: aws.String("database exists")}
	}
	f.Databases[name] = struct{}{}
	return &glue.CreateDatabaseOutput{}, nil
}

func (f *Glue) DeleteDatabase(_ context.Context, in *glue.DeleteDatabaseInput, _ ...func(*glue.Options)) (*glue.DeleteDatabaseOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteDatabase")

	name := aws.ToString(in.Name)
	if _, ok := f.Databases[name]; !ok {
		return nil, notFound("database")
	}
	delete(f.Databases, name)
	for key := range f.Tables {
		if strings.HasPrefix(key, name+".") {
			delete(f.Tables, key)
		}
	}
	return &glue.DeleteDatabaseOutput{}, nil
}

func (f *Glue) GetTable(_ context.Context, in *glue.GetTableInput, _ ...func(*glue.Options)) (*glue.GetTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetTable")

	if _, ok := f.Databases[aws.ToString(in.DatabaseName)]; !ok {
		return nil, notFound("database")
	}
	t, ok := f.Tables[tableKey(aws.ToString(in.DatabaseName), aws.ToString(in.Name))]
	if !ok {
		return nil, notFound("table")
	}
	return &glue.GetTableOutput{Table: &gluetypes.Table{Name: t.Name, StorageDescriptor: t.StorageDescriptor, PartitionKeys: t.PartitionKeys}}, nil
}

func (f *Glue) CreateTable(_ context.Context, in *glue.CreateTableInput, _ ...func(*glue.Options)) (*glue.CreateTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("CreateTable")

	if f.FailCreateTable != nil {
		return nil, f.FailCreateTable
	}
	database := aws.ToString(in.DatabaseName)
	if _, ok := f.Databases[database]; !ok {
		return nil, notFound("database")
	}
	key := tableKey(database, aws.ToString(in.TableInput.Name))
	if _, ok := f.Tables[key]; ok {
		return nil, &gluetypes.AlreadyExistsException{Message: aws.String("table exists")}
	}
	f.Tables[key] = in.TableInput
	return &glue.CreateTableOutput{}, nil
}

func (f *Glue) DeleteTable(_ context.Context, in *glue.DeleteTableInput, _ ...func(*glue.Options)) (*glue.DeleteTableOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("DeleteTable")

	key := tableKey(aws.ToString(in.DatabaseName), aws.ToString(in.Name))
	if _, ok := f.Tables[key]; !ok {
		return nil, notFound("table")
	}
	delete(f.Tables, key)
	for pk := range f.Partitions {
		if strings.HasPrefix(pk, key+"/") {
			delete(f.Partitions, pk)
		}
	}
	return &glue.DeleteTableOutput{}, nil
}

func (f *Glue) GetPartition(_ context.Context, in *glue.GetPartitionInput, _ ...func(*glue.Options)) (*glue.GetPartitionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("GetPartition")

	p, ok := f.Partitions[partitionKey(aws.ToString(in.DatabaseName), aws.ToString(in.TableName), in.PartitionValues)]
	if !ok {
		return nil, notFound("partition")
	}
	return &glue.GetPartitionOutput{Partition: &gluetypes.Partition{Values: p.Values, StorageDescriptor: p.StorageDescriptor}}, nil
}

func (f *Glue) BatchCreatePartition(_ context.Context, in *glue.BatchCreatePartitionInput, _ ...func(*glue.Options)) (*glue.BatchCreatePartitionOutput, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.record("BatchCreatePartition")

	f.BatchSizes = append(f.BatchSizes, len(in.PartitionInputList))
	if len(f.PartitionErrors) > 0 {
		return &glue.BatchCreatePartitionOutput{Errors: f.PartitionErrors}, nil
	}
	database, table := aws.ToString(in.DatabaseName), aws.ToString(in.TableName)
	if _, ok := f.Tables[tableKey(database, table)]; !ok {
		return nil, notFound("table")
	}
	for _, p := range in.PartitionInputList {
		f.Partitions[partitionKey(database, table, p.Values)] = p
	}
	return &glue.BatchCreatePartitionOutput{}, nil
}

func (f *Glue) PartitionLocations(database, table string) map[string]string {
	f.mu.Lock()
	defer f.mu.Unlock()

	locations := make(map[string]string)
	prefix := tableKey(database, table) + "/"
	for key, p := range f.Partitions {
		if strings.HasPrefix(key, prefix) {
			locations[strings.TrimPrefix(key, prefix)] = aws.ToString(p.StorageDescriptor.Location)
		}
	}
	return locations
}

// Athena reports the given states, one per GetQueryExecution call, and
// then keeps reporting the last one.
type Athena struct {
	States  []athenatypes.QueryExecutionState
	Polls   int
	Queries []*athena.StartQueryExecutionInput
	Reason  string
}

func (f *Athena) StartQueryExecution(_ context.Context, in *athena.StartQueryExecutionInput, _ ...func(*athena.Options)) (*athena.StartQueryExecutionOutput, error) {
	f.Queries = append(f.Queries, in)
	return &athena.StartQueryExecutionOutput{QueryExecutionId: aws.String(fmt.Sprintf("query-%d", len(f.Queries)))}, nil
}

func (f *Athena) GetQueryExecution(_ context.Context, in *athena.GetQueryExecutionInput, _ ...func(*athena.Options)) (*athena.GetQueryExecutionOutput, error) {
	state := f.States[min(f.Polls, len(f.States)-1)]
	f.Polls++
	return &athena.GetQueryExecutionOutput{
		QueryExecution: &athenatypes.QueryExecution{
			QueryExecutionId: in.QueryExecutionId,
			Status: &athenatypes.QueryExecutionStatus{
				State:             state,
				StateChangeReason: aws.String(f.Reason),
			},
		},
	}, nil
}
