package commands

import (
	"fmt"
	"strconv"

	"github.com/alexeyco/simpletable"
	"github.com/urfave/cli/v2"

	"github.com/rudderlabs/rudder-go-kit/config"
	"github.com/rudderlabs/rudder-go-kit/logger"
	"github.com/rudderlabs/rudder-go-kit/stats"

	"github.com/rudderlabs/rudder-datalake-lab/datalake/dataset"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/encoding"
	"github.com/rudderlabs/rudder-datalake-lab/datalake/lab"
)

var DefaultList []*cli.Command

func init() {
	DefaultList = append(DefaultList, FIDELITY(), SCHEMA(), PUBLISH(), CLEANUP())
}

var namingFlag = &cli.StringFlag{
	Name:  "naming",
	Usage: "spelling of the sample columns: snake or camel",
	Value: string(dataset.SnakeCase),
}

var sourceFlag = &cli.StringFlag{
	Name:  "source",
	Usage: "where the table schema comes from: manual, columnar or arrayframe",
	Value: string(lab.Columnar),
}

func FIDELITY() *cli.Command {
	return &cli.Command{
		Name:   "fidelity",
		Usage:  "compare the columnar schema of the sample with the one inferred through a row/array frame",
		Action: Fidelity,
		Flags: []cli.Flag{
			namingFlag,
			&cli.StringFlag{
				Name:  "dir",
				Usage: "directory the ndjson renditions are written to",
				Value: "fidelity",
			},
			&cli.BoolFlag{
				Name:  "nullable-integers",
				Usage: "keep integer columns with absent values as integers",
			},
		},
	}
}

func SCHEMA() *cli.Command {
	return &cli.Command{
		Name:   "schema",
		Usage:  "print the catalog columns a published table would declare",
		Action: Schema,
		Flags:  []cli.Flag{namingFlag, sourceFlag},
	}
}

func PUBLISH() *cli.Command {
	return &cli.Command{
		Name:   "publish",
		Usage:  "write the sample as a partitioned dataset and register it in the glue catalog",
		Action: Publish,
		Flags: []cli.Flag{
			namingFlag,
			sourceFlag,
			&cli.StringFlag{
				Name:  "format",
				Usage: "parquet or json",
				Value: string(encoding.Parquet),
			},
		},
	}
}

func CLEANUP() *cli.Command {
	return &cli.Command{
		Name:   "cleanup",
		Usage:  "delete the lab datasets, table and database",
		Action: Cleanup,
	}
}

func newLab(c *cli.Context) (*lab.Lab, error) {
	conf := config.New()
	log := logger.NewFactory(conf).NewLogger()

	settings, err := lab.LoadSettings(conf)
	if err != nil {
		return nil, err
	}
	if err := settings.RequireBucket(); err != nil {
		return nil, err
	}
	clients, err := lab.NewAWSClients(c.Context, conf, log, settings)
	if err != nil {
		return nil, err
	}
	return lab.New(conf, log, stats.NOP, settings, clients)
}

// newLocalLab builds a Lab for the commands that only work on the sample. It
// needs neither a bucket nor AWS credentials.
func newLocalLab() (*lab.Lab, error) {
	conf := config.New()
	log := logger.NewFactory(conf).NewLogger()

	settings, err := lab.LoadSettings(conf)
	if err != nil {
		return nil, err
	}
	return lab.New(conf, log, stats.NOP, settings, lab.LocalClients())
}

func Fidelity(c *cli.Context) error {
	naming, err := dataset.ParseNaming(c.String("naming"))
	if err != nil {
		return err
	}
	l, err := newLocalLab()
	if err != nil {
		return err
	}

	comparison, err := l.SchemaFidelity(c.Context, c.String("dir"), lab.FidelityOptions{
		Naming:           naming,
		NullableIntegers: c.Bool("nullable-integers"),
	})
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(comparison))
	for _, cc := range comparison {
		rows = append(rows, []string{cc.Name, cc.Columnar, cc.ArrayFrame, strconv.FormatBool(cc.Widened)})
	}
	printTable([]string{"Column", "Columnar", "ArrayFrame", "Widened"}, rows)
	return nil
}

func Schema(c *cli.Context) error {
	naming, err := dataset.ParseNaming(c.String("naming"))
	if err != nil {
		return err
	}
	source, err := lab.ParseSource(c.String("source"))
	if err != nil {
		return err
	}
	l, err := newLocalLab()
	if err != nil {
		return err
	}

	ts, err := l.TableSchema(source, naming)
	if err != nil {
		return err
	}

	var rows [][]string
	for _, col := range ts.Translation.Columns {
		rows = append(rows, []string{col.Name, col.Type, ""})
	}
	for _, col := range ts.Translation.Partitions {
		rows = append(rows, []string{col.Name, col.Type, "partition"})
	}
	printTable([]string{"Name", "Type", ""}, rows)

	for _, issue := range ts.NameIssues {
		fmt.Printf("%s is stored lower cased by the catalog, consider %s\n", issue.Path, issue.Suggestion)
	}
	return nil
}

func Publish(c *cli.Context) error {
	naming, err := dataset.ParseNaming(c.String("naming"))
	if err != nil {
		return err
	}
	source, err := lab.ParseSource(c.String("source"))
	if err != nil {
		return err
	}
	format, err := encoding.ParseFormat(c.String("format"))
	if err != nil {
		return err
	}
	l, err := newLab(c)
	if err != nil {
		return err
	}

	res, err := l.Publish(c.Context, lab.PublishRequest{Format: format, Source: source, Naming: naming})
	if err != nil {
		return err
	}

	rows := make([][]string, 0, len(res.Objects))
	for _, o := range res.Objects {
		rows = append(rows, []string{o.PartitionValue, "s3://" + res.Table.Location.Bucket + "/" + o.Key, strconv.FormatInt(o.Rows, 10), strconv.Itoa(o.Bytes)})
	}
	printTable([]string{"Partition", "Object", "Rows", "Bytes"}, rows)
	fmt.Printf("registered %s.%s at %s\n", res.Table.Database, res.Table.Name, res.Table.Location.URI())
	return nil
}

func Cleanup(c *cli.Context) error {
	l, err := newLab(c)
	if err != nil {
		return err
	}
	if err := l.Cleanup(c.Context); err != nil {
		return err
	}

	s := l.Settings()
	fmt.Printf("removed %s, %s.%s and %s\n", s.Root().URI(), s.Database, s.Table, s.Database)
	return nil
}

func printTable(header []string, rows [][]string) {
	table := simpletable.New()
	for _, h := range header {
		table.Header.Cells = append(table.Header.Cells, &simpletable.Cell{Align: simpletable.AlignCenter, Text: h})
	}
	for _, row := range rows {
		cells := make([]*simpletable.Cell, 0, len(row))
		for _, v := range row {
			cells = append(cells, &simpletable.Cell{Align: simpletable.AlignLeft, Text: v})
		}
		table.Body.Cells = append(table.Body.Cells, cells)
	}

	table.SetStyle(simpletable.StyleCompactLite)
	fmt.Println(table.String())
}
