package core

import (
	"context"
	"time"

	"github.com/pithecene-io/quarry-radius/cli/config"
	"github.com/pithecene-io/quarry-radius/log"
	"github.com/pithecene-io/quarry-radius/metrics"
	"github.com/pithecene-io/quarry-radius/policy"
	"github.com/pithecene-io/quarry-radius/trace"
	"github.com/pithecene-io/quarry-radius/types"
)

// dispatchTracer adapts a policy.Policy to vserver.Tracer, converting each
// dispatch outcome into a trace.DispatchTraceRecord and handing it to the
// configured write policy. A policy error is logged but never propagated
// back into the dispatch path — tracing is an observability concern, never
// allowed to fail a RADIUS request.
type dispatchTracer struct {
	instance string
	policy   policy.Policy
	log      *log.Logger
}

func (t *dispatchTracer) TraceDispatch(server, component string, index int, module string, rc types.RCode, duration time.Duration, now time.Time) {
	record := trace.NewDispatchTraceRecord(t.instance, server, component, index, module, rc, duration, now)
	if err := t.policy.IngestDispatchRecord(context.Background(), record); err != nil && t.log != nil {
		t.log.Error("dispatch trace policy failure", map[string]any{"error": err.Error()})
	}
}

// newTracePolicy builds the write policy named by cfg, backed by a trace
// archive client wired per cfg.Backend. Returns a NoopPolicy when tracing
// is disabled (cfg.Policy is "" or "noop").
func newTracePolicy(cfg config.TraceConfig, instance string, collector *metrics.Collector, logger *log.Logger) (policy.Policy, error) {
	if cfg.Policy == "" || cfg.Policy == "noop" {
		return policy.NewNoopPolicy(), nil
	}

	dataset := cfg.Dataset
	if dataset == "" {
		dataset = trace.DefaultDataset
	}
	traceCfg := trace.Config{
		Dataset: dataset,
		Server:  instance,
		Day:     trace.DeriveDay(time.Now()),
	}

	var client trace.StorageClient
	switch cfg.Backend {
	case "s3":
		c, err := trace.NewClientS3(traceCfg, trace.S3Config{
			Bucket:       cfg.S3.Bucket,
			Prefix:       cfg.S3.Prefix,
			Region:       cfg.S3.Region,
			Endpoint:     cfg.S3.Endpoint,
			UsePathStyle: cfg.S3.UsePathStyle,
		})
		if err != nil {
			return nil, err
		}
		client = c
	default:
		root := cfg.Root
		if root == "" {
			root = "."
		}
		c, err := trace.NewClient(traceCfg, root)
		if err != nil {
			return nil, err
		}
		client = c
	}

	rawSink := trace.NewSink(traceCfg, client)
	var sink policy.Sink = rawSink
	if collector != nil {
		sink = trace.NewInstrumentedSink(rawSink, collector)
	}

	switch cfg.Policy {
	case "strict":
		return policy.NewStrictPolicy(sink), nil
	case "streaming":
		return policy.NewStreamingPolicy(sink, policy.StreamingConfig{
			FlushCount:    cfg.FlushCount,
			FlushInterval: cfg.FlushInterval.Duration,
			Logger:        logger,
		})
	default: // "buffered"
		bc := policy.DefaultBufferedConfig()
		if cfg.MaxBufferRecords > 0 {
			bc.MaxBufferRecords = cfg.MaxBufferRecords
		}
		if cfg.MaxBufferBytes > 0 {
			bc.MaxBufferBytes = cfg.MaxBufferBytes
		}
		bc.Logger = logger
		return policy.NewBufferedPolicy(sink, bc)
	}
}
