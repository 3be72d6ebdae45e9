// Copyright 2018 The gVisor Authors.
// Copyright 2026 The tinyos Authors.
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
//     http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

// Package metric provides primitives for collecting metrics.
//
// Metrics are registered at init by the kernel components and exported in the
// Prometheus text exposition format by WritePrometheus.
package metric

import (
	"errors"
	"fmt"
	"io"
	"regexp"
	"sort"
	"strings"
	"sync"
	"sync/atomic"

	dto "github.com/prometheus/client_model/go"
	"github.com/prometheus/common/expfmt"
	"google.golang.org/protobuf/proto"
)

var (
	// ErrNameInUse indicates that another metric is already defined for
	// the given name.
	ErrNameInUse = errors.New("metric name already in use")

	// ErrInvalidName indicates that the metric name is not of the form
	// /component/name.
	ErrInvalidName = errors.New("metric name must be a path of lowercase components")

	// ErrFieldHasNoAllowedValues indicates that the field needs to define some
	// allowed values to be a valid and useful field.
	ErrFieldHasNoAllowedValues = errors.New("metric field does not define any allowed values")

	// ErrTooManyFields indicates that more than one field was given.
	ErrTooManyFields = errors.New("metric supports at most one field")
)

// namespace prefixes every exported metric name.
const namespace = "tinyos"

var nameRE = regexp.MustCompile(`^(/[a-z][a-z0-9_]*)+$`)

// Field contains the field name and allowed values for the metric which is
// used in registration of the metric.
type Field struct {
	// name is the metric field name.
	name string

	// allowedValues is the list of allowed values for the field.
	allowedValues []string
}

// NewField defines a new Field that can be used to break down a metric.
func NewField(name string, allowedValues ...string) Field {
	return Field{
		name:          name,
		allowedValues: allowedValues,
	}
}

// index returns the position of value among f's allowed values.
func (f *Field) index(value string) int {
	for i, v := range f.allowedValues {
		if v == value {
			return i
		}
	}
	panic(fmt.Sprintf("disallowed value %q for field %q", value, f.name))
}

// Uint64Metric encapsulates a uint64 that represents some kind of metric to be
// monitored. A cumulative metric only ever grows; a gauge may also be
// decremented.
type Uint64Metric struct {
	name        string
	description string
	cumulative  bool

	// field is the optional field breaking down this metric.
	field *Field

	// values holds one counter per allowed field value, or a single counter
	// when there is no field.
	values []atomic.Uint64
}

var (
	// mu protects allMetrics.
	mu sync.Mutex

	// allMetrics are the registered metrics, by name.
	allMetrics = make(map[string]*Uint64Metric)
)

func newUint64Metric(name, description string, cumulative bool, fields ...Field) (*Uint64Metric, error) {
	if !nameRE.MatchString(name) {
		return nil, ErrInvalidName
	}
	if len(fields) > 1 {
		return nil, ErrTooManyFields
	}
	m := &Uint64Metric{
		name:        name,
		description: description,
		cumulative:  cumulative,
		values:      make([]atomic.Uint64, 1),
	}
	if len(fields) == 1 {
		f := fields[0]
		if len(f.allowedValues) == 0 {
			return nil, ErrFieldHasNoAllowedValues
		}
		m.field = &f
		m.values = make([]atomic.Uint64, len(f.allowedValues))
	}

	mu.Lock()
	defer mu.Unlock()
	if _, ok := allMetrics[name]; ok {
		return nil, ErrNameInUse
	}
	allMetrics[name] = m
	return m, nil
}

// NewUint64Metric creates and registers a new cumulative metric with the given
// name.
//
// Metrics must be statically defined (i.e., at init).
func NewUint64Metric(name, description string, fields ...Field) (*Uint64Metric, error) {
	return newUint64Metric(name, description, true /* cumulative */, fields...)
}

// MustCreateNewUint64Metric calls NewUint64Metric and panics if it returns an
// error.
func MustCreateNewUint64Metric(name, description string, fields ...Field) *Uint64Metric {
	m, err := NewUint64Metric(name, description, fields...)
	if err != nil {
		panic(fmt.Sprintf("Unable to create metric %q: %s", name, err))
	}
	return m
}

// MustCreateNewUint64Gauge creates and registers a gauge and panics on error.
func MustCreateNewUint64Gauge(name, description string, fields ...Field) *Uint64Metric {
	m, err := newUint64Metric(name, description, false /* cumulative */, fields...)
	if err != nil {
		panic(fmt.Sprintf("Unable to create metric %q: %s", name, err))
	}
	return m
}

func (m *Uint64Metric) key(fieldValues []string) int {
	switch {
	case m.field == nil && len(fieldValues) == 0:
		return 0
	case m.field != nil && len(fieldValues) == 1:
		return m.field.index(fieldValues[0])
	default:
		panic(fmt.Sprintf("metric %q: invalid field lookup depth %d", m.name, len(fieldValues)))
	}
}

// Value returns the current value of the metric for the given set of fields.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) Value(fieldValues ...string) uint64 {
	return m.values[m.key(fieldValues)].Load()
}

// Increment increments the metric field by 1.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) Increment(fieldValues ...string) {
	m.values[m.key(fieldValues)].Add(1)
}

// IncrementBy increments the metric by v.
// This must be called with the correct number of field values or it will panic.
func (m *Uint64Metric) IncrementBy(v uint64, fieldValues ...string) {
	m.values[m.key(fieldValues)].Add(v)
}

// Decrement decrements a gauge by 1.
func (m *Uint64Metric) Decrement(fieldValues ...string) {
	if m.cumulative {
		panic(fmt.Sprintf("metric %q: Decrement on cumulative metric", m.name))
	}
	m.values[m.key(fieldValues)].Add(^uint64(0))
}

// prometheusName returns the exported name of m, e.g. /pipe/created becomes
// tinyos_pipe_created.
func (m *Uint64Metric) prometheusName() string {
	return namespace + strings.ReplaceAll(m.name, "/", "_")
}

func (m *Uint64Metric) family() *dto.MetricFamily {
	typ := dto.MetricType_GAUGE
	if m.cumulative {
		typ = dto.MetricType_COUNTER
	}
	mf := &dto.MetricFamily{
		Name: proto.String(m.prometheusName()),
		Help: proto.String(m.description),
		Type: typ.Enum(),
	}
	sample := func(v uint64, labels []*dto.LabelPair) *dto.Metric {
		if m.cumulative {
			return &dto.Metric{Label: labels, Counter: &dto.Counter{Value: proto.Float64(float64(v))}}
		}
		return &dto.Metric{Label: labels, Gauge: &dto.Gauge{Value: proto.Float64(float64(v))}}
	}
	if m.field == nil {
		mf.Metric = append(mf.Metric, sample(m.values[0].Load(), nil))
		return mf
	}
	for i, v := range m.field.allowedValues {
		labels := []*dto.LabelPair{{Name: proto.String(m.field.name), Value: proto.String(v)}}
		mf.Metric = append(mf.Metric, sample(m.values[i].Load(), labels))
	}
	return mf
}

// WritePrometheus writes every registered metric to w in the Prometheus text
// exposition format, ordered by name.
func WritePrometheus(w io.Writer) error {
	mu.Lock()
	ms := make([]*Uint64Metric, 0, len(allMetrics))
	for _, m := range allMetrics {
		ms = append(ms, m)
	}
	mu.Unlock()
	sort.Slice(ms, func(i, j int) bool { return ms[i].name < ms[j].name })

	for _, m := range ms {
		if _, err := expfmt.MetricFamilyToText(w, m.family()); err != nil {
			return fmt.Errorf("writing metric %q: %w", m.name, err)
		}
	}
	return nil
}
