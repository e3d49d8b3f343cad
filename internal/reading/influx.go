package reading

import (
	"context"
	"fmt"
	"sort"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"

	"github.com/zombor/meter-tracker/internal/common"
)

// InfluxStore implements SeriesStore on an InfluxDB 2.x bucket
type InfluxStore struct {
	client influxdb2.Client
	bucket string
	writer api.WriteAPIBlocking
	reader api.QueryAPI
}

// NewInfluxStore creates a client for the given server. No connection is made until first use.
func NewInfluxStore(url, token, org, bucket string) (*InfluxStore, error) {
	if url == "" || org == "" || bucket == "" {
		return nil, fmt.Errorf("influx url, org and bucket are required")
	}

	client := influxdb2.NewClientWithOptions(url, token,
		influxdb2.DefaultOptions().SetHTTPRequestTimeout(30))

	return &InfluxStore{
		client: client,
		bucket: bucket,
		writer: client.WriteAPIBlocking(org, bucket),
		reader: client.QueryAPI(org),
	}, nil
}

// WritePoint writes one point synchronously
func (s *InfluxStore) WritePoint(ctx context.Context, p Point) error {
	point := influxdb2.NewPoint(p.Measurement, p.Tags, p.Fields, p.Time)
	if err := s.writer.WritePoint(ctx, point); err != nil {
		return common.BackendUnavailable("influx write", err)
	}
	return nil
}

// LastRows runs a range/last/pivot flux query and flattens the result tables
func (s *InfluxStore) LastRows(ctx context.Context, q LastQuery) ([]Row, error) {
	result, err := s.reader.Query(ctx, lastFlux(s.bucket, q))
	if err != nil {
		return nil, common.BackendUnavailable("influx query", err)
	}
	defer result.Close()

	rows := make([]Row, 0)
	for result.Next() {
		row := Row{}
		for k, v := range result.Record().Values() {
			switch k {
			case "result", "table", "_start", "_stop":
				continue
			}
			row[k] = v
		}
		rows = append(rows, row)
	}
	if err := result.Err(); err != nil {
		return nil, common.BackendUnavailable("influx query result", err)
	}
	return rows, nil
}

// Close closes the client
func (s *InfluxStore) Close() error {
	s.client.Close()
	return nil
}

// lastFlux builds the latest-point query for a measurement
func lastFlux(bucket string, q LastQuery) string {
	var b strings.Builder
	fmt.Fprintf(&b, "from(bucket: %s)\n", fluxString(bucket))
	fmt.Fprintf(&b, "  |> range(start: -%s)\n", fluxDuration(q.window()))
	fmt.Fprintf(&b, "  |> filter(fn: (r) => r._measurement == %s)\n", fluxString(q.Measurement))

	keys := make([]string, 0, len(q.Tags))
	for k := range q.Tags {
		keys = append(keys, k)
	}
	sort.Strings(keys)
	for _, k := range keys {
		fmt.Fprintf(&b, "  |> filter(fn: (r) => r[%s] == %s)\n", fluxString(k), fluxString(q.Tags[k]))
	}

	b.WriteString("  |> last()\n")
	b.WriteString(`  |> pivot(rowKey: ["_time"], columnKey: ["_field"], valueColumn: "_value")`)
	return b.String()
}

func fluxString(s string) string {
	r := strings.NewReplacer(`\`, `\\`, `"`, `\"`, "${", `\${`)
	return `"` + r.Replace(s) + `"`
}

// fluxDuration uses whole days where possible, seconds otherwise
func fluxDuration(d time.Duration) string {
	const day = 24 * time.Hour
	if d%day == 0 {
		return fmt.Sprintf("%dd", d/day)
	}
	if d < time.Second {
		d = time.Second
	}
	return fmt.Sprintf("%ds", int64(d/time.Second))
}
