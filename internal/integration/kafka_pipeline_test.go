//go:build integration

package integration_test

import (
	"context"
	"encoding/json"
	"fmt"
	"testing"
	"time"

	"github.com/couchcryptid/terrain-change-etl/internal/adapter/kafka"
	"github.com/couchcryptid/terrain-change-etl/internal/adapter/localfs"
	"github.com/couchcryptid/terrain-change-etl/internal/app"
	"github.com/couchcryptid/terrain-change-etl/internal/config"
	"github.com/couchcryptid/terrain-change-etl/internal/domain"
	"github.com/couchcryptid/terrain-change-etl/internal/geo"
	"github.com/couchcryptid/terrain-change-etl/internal/observability"
	"github.com/couchcryptid/terrain-change-etl/internal/pipeline"
	kafkago "github.com/segmentio/kafka-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const (
	testSourceTopic = "test-source"
	testSinkTopic   = "test-sink"

	testAOI = "POLYGON((72.9 23.2,73.1 23.2,73.1 23.4,72.9 23.4,72.9 23.2))"
)

// resultMessage holds a deserialized message read from the sink topic.
type resultMessage struct {
	Result  domain.AnalysisResult
	Key     string
	Headers map[string]string
}

// readResult reads a single message from the sink consumer and deserializes it.
func readResult(ctx context.Context, t *testing.T, consumer *kafkago.Reader) resultMessage {
	t.Helper()
	readCtx, cancel := context.WithTimeout(ctx, 60*time.Second)
	defer cancel()

	msg, err := consumer.ReadMessage(readCtx)
	require.NoError(t, err, "read from sink topic")

	headers := make(map[string]string, len(msg.Headers))
	for _, h := range msg.Headers {
		headers[h.Key] = string(h.Value)
	}
	var res domain.AnalysisResult
	require.NoError(t, json.Unmarshal(msg.Value, &res), "unmarshal sink message")

	return resultMessage{Result: res, Key: string(msg.Key), Headers: headers}
}

// fixtureAnalyzer generates a two-scene fixture set and builds the analyzer
// over it, returning the config with Kafka settings pointed at broker.
func fixtureAnalyzer(t *testing.T, broker, group string) (*config.Config, *pipeline.Analyzer) {
	t.Helper()

	dir := t.TempDir()
	b, err := geo.ParseBounds(testAOI)
	require.NoError(t, err)
	_, err = localfs.New(dir).Generate(localfs.FixtureOptions{Bounds: b, Seed: 7})
	require.NoError(t, err)

	t.Setenv("CORRELATION_WINDOW", "5")
	cfg, err := config.Load()
	require.NoError(t, err)
	cfg.KafkaBrokers = []string{broker}
	cfg.KafkaSourceTopic = testSourceTopic
	cfg.KafkaSinkTopic = testSinkTopic
	cfg.KafkaGroupID = group
	cfg.BatchFlushInterval = 5 * time.Second

	a, cleanup, err := app.BuildAnalyzer(context.Background(), cfg, app.Sources{FixtureDir: dir},
		discardLogger(), observability.NewMetricsForTesting())
	require.NoError(t, err)
	t.Cleanup(cleanup)
	return cfg, a
}

func requestPayload(t *testing.T, id, start, end string) []byte {
	t.Helper()
	payload, err := json.Marshal(map[string]any{
		"request_id": id,
		"aoi_wkt":    testAOI,
		"start":      start,
		"end":        end,
	})
	require.NoError(t, err)
	return payload
}

func sinkConsumer(t *testing.T, broker string) *kafkago.Reader {
	t.Helper()
	consumer := kafkago.NewReader(kafkago.ReaderConfig{
		Brokers:     []string{broker},
		Topic:       testSinkTopic,
		GroupID:     fmt.Sprintf("test-sink-%d", time.Now().UnixNano()),
		StartOffset: kafkago.FirstOffset,
	})
	t.Cleanup(func() { _ = consumer.Close() })
	return consumer
}

// TestKafkaReaderWriter verifies the adapter layer: kafka.Reader (Extractor) and
// kafka.Writer (Loader) correctly round-trip a request and its result.
func TestKafkaReaderWriter(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)

	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg, analyzer := fixtureAnalyzer(t, broker, fmt.Sprintf("test-reader-%d", time.Now().UnixNano()))

	payload := requestPayload(t, "req-roundtrip", "2024-01-01", "2024-02-15")
	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	require.NoError(t, producer.WriteMessages(ctx, kafkago.Message{
		Key:   []byte("test-key"),
		Value: payload,
	}))

	// Retry because the consumer group may need time to rebalance before
	// partitions are assigned and messages become available.
	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	var batch []domain.RawEvent
	for {
		var err error
		batch, err = reader.ExtractBatch(ctx, 1)
		require.NoError(t, err)
		if len(batch) > 0 {
			break
		}
		if ctx.Err() != nil {
			t.Fatal("timed out waiting for message from source topic")
		}
	}
	require.Len(t, batch, 1)
	raw := batch[0]
	assert.Equal(t, []byte("test-key"), raw.Key)
	assert.Equal(t, payload, raw.Value)
	assert.Equal(t, testSourceTopic, raw.Topic)
	require.NotNil(t, raw.Commit, "commit callback should be set")
	require.NoError(t, raw.Commit(ctx))

	res, err := analyzer.Transform(ctx, raw)
	require.NoError(t, err)

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })
	require.NoError(t, writer.LoadBatch(ctx, []domain.AnalysisResult{res}))

	rm := readResult(ctx, t, sinkConsumer(t, broker))
	assert.Equal(t, "req-roundtrip", rm.Key)
	assert.Equal(t, domain.SARObserved, rm.Headers["sar_source"])
	assert.NotEmpty(t, rm.Headers["risk_level"])
	_, err = time.Parse(time.RFC3339, rm.Headers["processed_at"])
	assert.NoError(t, err, "processed_at should be valid RFC3339")

	assert.Equal(t, domain.StatusSucceeded, rm.Result.Status)
	assert.Equal(t, [2]int{24, 24}, rm.Result.Shape)
	assert.Equal(t, 24*24, rm.Result.Rows)
	require.NotNil(t, rm.Result.Before)
	require.NotNil(t, rm.Result.After)
	assert.True(t, rm.Result.Before.AcquiredAt.Before(rm.Result.After.AcquiredAt))
}

// TestPipelineEndToEnd wires the full pipeline (Reader → Analyzer → Writer)
// with real Kafka and verifies one result per request.
func TestPipelineEndToEnd(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 3*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)

	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg, analyzer := fixtureAnalyzer(t, broker, fmt.Sprintf("test-pipeline-%d", time.Now().UnixNano()))

	// The fixture scenes are 2024-01-05 and 2024-01-29. The last window
	// misses both and falls back to synthetic backscatter.
	requests := []struct {
		id, start, end string
		source         string
	}{
		{"req-1", "2024-01-01", "2024-02-15", domain.SARObserved},
		{"req-2", "2024-01-04T00:00:00Z", "2024-01-30T00:00:00Z", domain.SARObserved},
		{"req-3", "2024-06-01", "2024-07-01", domain.SARSynthetic},
	}

	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	msgs := make([]kafkago.Message, 0, len(requests))
	for _, r := range requests {
		msgs = append(msgs, kafkago.Message{
			Key:   []byte(r.id),
			Value: requestPayload(t, r.id, r.start, r.end),
		})
	}
	require.NoError(t, producer.WriteMessages(ctx, msgs...))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, analyzer, writer, discardLogger(), metrics, cfg.BatchSize)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	received := make(map[string]resultMessage, len(requests))
	for len(received) < len(requests) {
		rm := readResult(ctx, t, consumer)
		received[rm.Key] = rm
	}

	pipelineCancel()
	require.NoError(t, <-errCh)

	for _, r := range requests {
		rm, ok := received[r.id]
		require.True(t, ok, "missing result for %s", r.id)

		assert.Equal(t, domain.StatusSucceeded, rm.Result.Status, r.id)
		assert.Equal(t, r.source, rm.Result.SARSource, r.id)
		assert.Equal(t, r.source, rm.Headers["sar_source"], r.id)
		_, err := time.Parse(time.RFC3339, rm.Headers["processed_at"])
		assert.NoError(t, err, "invalid processed_at format")

		assert.Equal(t, domain.ElevationMosaic, rm.Result.Elevation.Source, r.id)
		assert.Len(t, rm.Result.TilesUsed, 2, r.id)
		require.NotNil(t, rm.Result.Risk, r.id)
		assert.Equal(t, rm.Result.Risk.Level, rm.Headers["risk_level"], r.id)
		assert.Equal(t, rm.Result.Rows, rm.Result.Risk.TotalPixels, r.id)
	}
	assert.NotEmpty(t, received["req-3"].Result.Warnings, "synthetic fallback should warn")
}

// TestPipelineTransformError verifies that an invalid message (poison pill) is
// answered with a failed result and the pipeline continues with valid messages.
func TestPipelineTransformError(t *testing.T) {
	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	broker := startKafka(ctx, t)

	createTopic(t, broker, testSourceTopic)
	createTopic(t, broker, testSinkTopic)

	cfg, analyzer := fixtureAnalyzer(t, broker, fmt.Sprintf("test-poison-%d", time.Now().UnixNano()))

	producer := &kafkago.Writer{
		Addr:  kafkago.TCP(broker),
		Topic: testSourceTopic,
	}
	t.Cleanup(func() { _ = producer.Close() })

	require.NoError(t, producer.WriteMessages(ctx,
		kafkago.Message{Key: []byte("bad"), Value: []byte("not-json{{{")},
		kafkago.Message{Key: []byte("good"), Value: requestPayload(t, "good", "2024-01-01", "2024-02-15")},
	))

	reader := kafka.NewReader(cfg, discardLogger())
	t.Cleanup(func() { _ = reader.Close() })

	writer := kafka.NewWriter(cfg, discardLogger())
	t.Cleanup(func() { _ = writer.Close() })

	metrics := observability.NewMetricsForTesting()
	p := pipeline.New(reader, analyzer, writer, discardLogger(), metrics, cfg.BatchSize)

	pipelineCtx, pipelineCancel := context.WithCancel(ctx)
	errCh := make(chan error, 1)
	go func() { errCh <- p.Run(pipelineCtx) }()

	consumer := sinkConsumer(t, broker)
	bad := readResult(ctx, t, consumer)
	good := readResult(ctx, t, consumer)

	assert.Equal(t, "bad", bad.Key)
	assert.Equal(t, domain.StatusFailed, bad.Result.Status)
	assert.Contains(t, bad.Result.Error, domain.ErrInvalidRequest.Error())
	assert.Empty(t, bad.Headers["risk_level"])

	assert.Equal(t, "good", good.Key)
	assert.Equal(t, domain.StatusSucceeded, good.Result.Status)
	assert.Equal(t, domain.SARObserved, good.Result.SARSource)

	// Exactly one result per request.
	readCtx, readCancel := context.WithTimeout(ctx, 5*time.Second)
	_, err := consumer.ReadMessage(readCtx)
	readCancel()
	assert.Error(t, err, "expected no third message on sink topic")

	pipelineCancel()
	require.NoError(t, <-errCh)
}
