// Package metrics records one usage row per successful fix.
//
// Sinks:
//   - CSVSink appends to metrics.csv under the logs directory.
//   - PrometheusSink feeds the /metrics endpoint.
//   - NATSSink publishes each record as JSON.
//   - SQLiteSink keeps a queryable table of records.
//
// Fanout combines them so the request path writes once.
package metrics

import (
	"context"
	"errors"

	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// Record is one metrics row.
type Record struct {
	Language     string `json:"language"`
	CWE          string `json:"cwe"`
	ModelUsed    string `json:"model_used"`
	InputTokens  int    `json:"input_tokens"`
	OutputTokens int    `json:"output_tokens"`
	LatencyMS    int64  `json:"latency_ms"`
}

// MarshalLogObject lets a Record be logged with zap.Object.
func (r Record) MarshalLogObject(enc zapcore.ObjectEncoder) error {
	enc.AddString("language", r.Language)
	enc.AddString("cwe", r.CWE)
	enc.AddString("model_used", r.ModelUsed)
	enc.AddInt("input_tokens", r.InputTokens)
	enc.AddInt("output_tokens", r.OutputTokens)
	enc.AddInt64("latency_ms", r.LatencyMS)
	return nil
}

// Field returns r as a structured log field.
func (r Record) Field() zap.Field {
	return zap.Object("metrics", r)
}

// Sink persists records. Implementations are safe for concurrent use.
type Sink interface {
	Write(ctx context.Context, r Record) error
	Close() error
}

// Fanout writes every record to each sink in order.
type Fanout []Sink

// Write attempts every sink and returns the first error.
func (f Fanout) Write(ctx context.Context, r Record) error {
	var first error
	for _, s := range f {
		if err := s.Write(ctx, r); err != nil && first == nil {
			first = err
		}
	}
	return first
}

// Close closes every sink.
func (f Fanout) Close() error {
	var errs []error
	for _, s := range f {
		if err := s.Close(); err != nil {
			errs = append(errs, err)
		}
	}
	return errors.Join(errs...)
}
