// Copyright 2025 btf Project Authors
//
// Licensed under the Apache License, Version 2.0 (the "License");
// you may not use this file except in compliance with the License.
// You may obtain a copy of the License at
//
// http://www.apache.org/licenses/LICENSE-2.0
//
// Unless required by applicable law or agreed to in writing, software
// distributed under the License is distributed on an "AS IS" BASIS,
// WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
// See the License for the specific language governing permissions and
// limitations under the License.

package progress

import (
	"context"
	"sync"
	"sync/atomic"
	"time"

	"github.com/google/uuid"
)

type spanKeyType string

var spanKeyName = spanKeyType(uuid.New().String())

type Status string

const (
	StatusPending  Status = "Pending"
	StatusComplete Status = "Complete"
	StatusRunning  Status = "Running"
	StatusFailed   Status = "Failed"
)

// Span tracks the progress of a long-running task. Counters are atomic so a
// monitor goroutine may poll a span while the task advances it.
type Span struct {
	name     string
	status   Status
	total    int64
	count    int64
	err      error
	start    time.Time
	finish   time.Time
	children sync.Map
}

func (s *Span) Add(n int) {
	atomic.AddInt64(&s.count, int64(n))
}

func (s *Span) End() {
	atomic.StoreInt64(&s.count, s.total)
	s.status = StatusComplete
	s.finish = time.Now()
}

func (s *Span) Fail(err error) {
	s.err = err
	s.status = StatusFailed
	s.finish = time.Now()
}

func (s *Span) Count() int {
	return int(atomic.LoadInt64(&s.count))
}

func (s *Span) Total() int {
	return int(s.total)
}

func (s *Span) Progress() Progress {
	return Progress{
		Name:       s.name,
		Status:     s.status,
		Count:      s.Count(),
		Total:      int(s.total),
		StartTime:  s.start,
		FinishTime: s.finish,
	}
}

// Child returns the nested span with the given name, or nil.
func (s *Span) Child(name string) *Span {
	if child, ok := s.children.Load(name); ok {
		return child.(*Span)
	}
	return nil
}

// Start creates a span and attaches it to the context, nesting under any span
// already carried by the context.
func Start(ctx context.Context, name string, total int) (context.Context, *Span) {
	childSpan := &Span{
		name:   name,
		status: StatusRunning,
		total:  int64(total),
		start:  time.Now(),
	}
	if ctx == nil {
		return nil, childSpan
	}
	if parent, ok := ctx.Value(spanKeyName).(*Span); ok {
		parent.children.Store(name, childSpan)
	}
	return context.WithValue(ctx, spanKeyName, childSpan), childSpan
}

// Tracer keeps the root spans of named tasks.
type Tracer struct {
	name  string
	spans sync.Map
}

func NewTracer(name string) *Tracer {
	return &Tracer{name: name}
}

// Start creates a root span registered in the tracer.
func (t *Tracer) Start(ctx context.Context, name string, total int) (context.Context, *Span) {
	ctx, span := Start(ctx, name, total)
	t.spans.Store(name, span)
	return ctx, span
}

func (t *Tracer) Find(name string) *Span {
	if span, ok := t.spans.Load(name); ok {
		return span.(*Span)
	}
	return nil
}

func (t *Tracer) List() []Progress {
	var progress []Progress
	t.spans.Range(func(_, value interface{}) bool {
		span := value.(*Span)
		p := span.Progress()
		p.Tracer = t.name
		progress = append(progress, p)
		return true
	})
	return progress
}

type Progress struct {
	Tracer     string
	Name       string
	Status     Status
	Count      int
	Total      int
	StartTime  time.Time
	FinishTime time.Time
}
