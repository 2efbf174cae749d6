package otel

import (
	"context"
	"errors"
	"fmt"
	"strconv"

	goSession "github.com/MrEthical07/goSession"
	"github.com/MrEthical07/goSession/metrics/export/internaldefs"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/metric"
)

var (
	// ErrNilMeter is returned when no meter is supplied.
	ErrNilMeter = errors.New("nil meter")
	// ErrNilSource is returned when no engine or snapshot source is supplied.
	ErrNilSource = errors.New("nil metrics source")
)

type metricsSource interface {
	MetricsSnapshot() goSession.MetricsSnapshot
	AuditDropped() uint64
}

type counterBinding struct {
	id         goSession.MetricID
	instrument metric.Int64ObservableCounter
}

// latencyBinding exposes a bucketed engine histogram as one gauge per
// cumulative bucket, distinguished by the le attribute.
type latencyBinding struct {
	id      goSession.MetricID
	buckets metric.Int64ObservableGauge
	count   metric.Int64ObservableGauge
	les     [8]metric.ObserveOption
}

// OTelExporter publishes engine metrics through observable instruments.
type OTelExporter struct {
	source       metricsSource
	registration metric.Registration
	counters     []counterBinding
	latency      []latencyBinding
	auditDropped metric.Int64ObservableCounter
}

// NewOTelExporter registers engine metrics on meter. Close unregisters them.
func NewOTelExporter(meter metric.Meter, engine *goSession.Engine) (*OTelExporter, error) {
	if engine == nil {
		return nil, ErrNilSource
	}
	return NewOTelExporterFromSource(meter, engine)
}

// NewOTelExporterFromSource registers metrics read from any snapshot source.
func NewOTelExporterFromSource(meter metric.Meter, source metricsSource) (*OTelExporter, error) {
	if meter == nil {
		return nil, ErrNilMeter
	}
	if source == nil {
		return nil, ErrNilSource
	}

	e := &OTelExporter{source: source}
	var observables []metric.Observable

	for _, def := range internaldefs.CounterDefs {
		ins, err := meter.Int64ObservableCounter(def.Name,
			metric.WithDescription(def.Help),
			metric.WithUnit("{event}"),
		)
		if err != nil {
			return nil, fmt.Errorf("create counter %s: %w", def.Name, err)
		}
		e.counters = append(e.counters, counterBinding{id: def.ID, instrument: ins})
		observables = append(observables, ins)
	}

	for _, def := range internaldefs.HistogramDefs {
		b, err := newLatencyBinding(meter, def)
		if err != nil {
			return nil, err
		}
		e.latency = append(e.latency, b)
		observables = append(observables, b.buckets, b.count)
	}

	dropped, err := meter.Int64ObservableCounter(internaldefs.AuditDroppedName,
		metric.WithDescription(internaldefs.AuditDroppedHelp),
		metric.WithUnit("{event}"),
	)
	if err != nil {
		return nil, fmt.Errorf("create counter %s: %w", internaldefs.AuditDroppedName, err)
	}
	e.auditDropped = dropped
	observables = append(observables, dropped)

	reg, err := meter.RegisterCallback(e.observe, observables...)
	if err != nil {
		return nil, fmt.Errorf("register callback: %w", err)
	}
	e.registration = reg
	return e, nil
}

func newLatencyBinding(meter metric.Meter, def internaldefs.HistogramDef) (latencyBinding, error) {
	b := latencyBinding{id: def.ID}

	buckets, err := meter.Int64ObservableGauge(def.Name+"_bucket",
		metric.WithDescription(def.Help+" Cumulative bucket counts."),
	)
	if err != nil {
		return b, fmt.Errorf("create gauge %s_bucket: %w", def.Name, err)
	}
	count, err := meter.Int64ObservableGauge(def.Name+"_count",
		metric.WithDescription(def.Help+" Sample count."),
	)
	if err != nil {
		return b, fmt.Errorf("create gauge %s_count: %w", def.Name, err)
	}
	b.buckets = buckets
	b.count = count

	for i := range b.les {
		le := "+Inf"
		if i < len(internaldefs.HistogramUpperBounds) {
			le = strconv.FormatFloat(internaldefs.HistogramUpperBounds[i], 'f', -1, 64)
		}
		b.les[i] = metric.WithAttributes(attribute.String("le", le))
	}
	return b, nil
}

func (e *OTelExporter) observe(_ context.Context, o metric.Observer) error {
	snapshot := e.source.MetricsSnapshot()

	for _, c := range e.counters {
		if v, ok := snapshot.Counters[c.id]; ok {
			o.ObserveInt64(c.instrument, int64(v))
		}
	}

	for _, l := range e.latency {
		raw, ok := snapshot.Histograms[l.id]
		if !ok {
			continue
		}
		cumulative := internaldefs.CumulativeBuckets(internaldefs.NormalizeBuckets(raw))
		for i, v := range cumulative {
			o.ObserveInt64(l.buckets, int64(v), l.les[i])
		}
		o.ObserveInt64(l.count, int64(cumulative[len(cumulative)-1]))
	}

	o.ObserveInt64(e.auditDropped, int64(e.source.AuditDropped()))
	return nil
}

// Close unregisters the collection callback.
func (e *OTelExporter) Close() error {
	if e == nil || e.registration == nil {
		return nil
	}
	return e.registration.Unregister()
}
