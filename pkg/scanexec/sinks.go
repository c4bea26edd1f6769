package scanexec

import (
	"context"

	"github.com/janowagner/ospd-openvas/pkg/event"
)

// ResultKind classifies a forwarded result record.
type ResultKind int

const (
	ResultLog ResultKind = iota
	ResultError
	ResultHostDetail
	ResultAlarm
)

func (k ResultKind) String() string {
	switch k {
	case ResultLog:
		return "log"
	case ResultError:
		return "error"
	case ResultHostDetail:
		return "host_detail"
	case ResultAlarm:
		return "alarm"
	default:
		return "unknown"
	}
}

// Result is one record forwarded from the engine, enriched with the VT's
// name and quality-of-detection. Severity is set for scored alarms only.
type Result struct {
	Kind     ResultKind
	Host     string
	Port     string
	OID      string
	Name     string
	Value    string
	QoD      string
	Severity *float64
}

// ResultSink receives forwarded results.
type ResultSink interface {
	Result(ctx context.Context, scanID string, result Result)
}

// ProgressSink receives target progress updates in percent.
type ProgressSink interface {
	Progress(ctx context.Context, scanID string, percent float64)
}

// ResultFunc adapts a function to ResultSink.
type ResultFunc func(ctx context.Context, scanID string, result Result)

func (f ResultFunc) Result(ctx context.Context, scanID string, result Result) {
	f(ctx, scanID, result)
}

// ProgressFunc adapts a function to ProgressSink.
type ProgressFunc func(ctx context.Context, scanID string, percent float64)

func (f ProgressFunc) Progress(ctx context.Context, scanID string, percent float64) {
	f(ctx, scanID, percent)
}

// ResultEvent is the payload published for event.ScanResult.
type ResultEvent struct {
	ScanID string
	Result Result
}

// ProgressEvent is the payload published for event.ScanProgress.
type ProgressEvent struct {
	ScanID  string
	Percent float64
}

// BusSink forwards results and progress to an event bus, so embedders can
// subscribe instead of implementing the sink interfaces.
type BusSink struct {
	bus *event.Manager
}

// NewBusSink creates a BusSink publishing to bus.
func NewBusSink(bus *event.Manager) *BusSink {
	return &BusSink{bus: bus}
}

func (s *BusSink) Result(ctx context.Context, scanID string, result Result) {
	s.bus.Publish(ctx, event.ScanResult, ResultEvent{ScanID: scanID, Result: result})
}

func (s *BusSink) Progress(ctx context.Context, scanID string, percent float64) {
	s.bus.Publish(ctx, event.ScanProgress, ProgressEvent{ScanID: scanID, Percent: percent})
}
