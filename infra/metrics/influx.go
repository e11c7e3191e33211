package metrics

import (
	"context"
	"net/http"
	"strconv"
	"strings"
	"time"

	influxdb2 "github.com/influxdata/influxdb-client-go/v2"
	"github.com/influxdata/influxdb-client-go/v2/api"
	"github.com/influxdata/influxdb-client-go/v2/api/write"

	coremetrics "github.com/kilianp07/kioskpower/core/metrics"
	"github.com/kilianp07/kioskpower/infra/logger"
)

// InfluxSink writes schedule events to an InfluxDB instance using the
// official client.
type InfluxSink struct {
	client   influxdb2.Client
	writeAPI api.WriteAPIBlocking
	log      logger.Logger
}

// NewInfluxSink creates a new sink configured for the given InfluxDB endpoint.
func NewInfluxSink(url, token, org, bucket string) *InfluxSink {
	base := strings.TrimSuffix(url, "/api/v2/write")
	client := influxdb2.NewClientWithOptions(base, token,
		influxdb2.DefaultOptions().SetHTTPClient(&http.Client{Timeout: 5 * time.Second}))
	return &InfluxSink{
		client:   client,
		writeAPI: client.WriteAPIBlocking(org, bucket),
		log:      logger.New("influx-sink"),
	}
}

// NewInfluxSinkWithFallback pings the InfluxDB instance and returns a
// NopRecorder if the health check fails.
func NewInfluxSinkWithFallback(cfg coremetrics.Config) coremetrics.Recorder {
	sink := NewInfluxSink(cfg.InfluxURL, cfg.InfluxToken, cfg.InfluxOrg, cfg.InfluxBucket)
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	health, err := sink.client.Health(ctx)
	if err != nil || health.Status != "pass" {
		if err != nil {
			sink.log.Errorf("influx health check error: %v", err)
		} else {
			sink.log.Errorf("influx health status: %s", health.Status)
		}
		sink.client.Close()
		return coremetrics.NopRecorder{}
	}
	return sink
}

// RecordWrite writes a schedule_write point.
func (s *InfluxSink) RecordWrite(ev coremetrics.WriteEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("schedule_write").
		AddTag("source", string(ev.Source)).
		AddTag("season", strconv.Itoa(ev.Season)).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddField("clients", ev.Clients).
		AddField("days", ev.Days).
		AddField("latency_ms", ev.Latency.Milliseconds()).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordFetch writes a schedule_fetch point.
func (s *InfluxSink) RecordFetch(ev coremetrics.FetchEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("schedule_fetch").
		AddTag("client_id", ev.ClientID).
		AddTag("season", strconv.Itoa(ev.Season)).
		AddTag("success", strconv.FormatBool(ev.Success)).
		AddField("discarded", ev.Discarded).
		AddField("latency_ms", ev.Latency.Milliseconds()).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// RecordPush writes a terminal_push point.
func (s *InfluxSink) RecordPush(ev coremetrics.PushEvent) error {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	p := write.NewPointWithMeasurement("terminal_push").
		AddTag("client_id", ev.ClientID).
		AddTag("date", ev.Date).
		AddTag("acknowledged", strconv.FormatBool(ev.Acknowledged)).
		AddField("actions", ev.Actions).
		AddField("latency_ms", ev.Latency.Milliseconds()).
		AddField("error", ev.Error).
		SetTime(ev.Time)
	return s.writeAPI.WritePoint(ctx, p)
}

// Close releases the client.
func (s *InfluxSink) Close() { s.client.Close() }
