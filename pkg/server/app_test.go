package server

import (
	"context"
	"strings"
	"sync"
	"testing"

	"RecessionLens/internal/usecase"
	"RecessionLens/pkg/config"
)

type event struct {
	mu  sync.Mutex
	log []string
}

func (e *event) add(s string) {
	e.mu.Lock()
	defer e.mu.Unlock()
	e.log = append(e.log, s)
}

type fakeWorker struct {
	name string
	ev   *event
}

func (w fakeWorker) Start() error { w.ev.add("start " + w.name); return nil }
func (w fakeWorker) Stop(ctx context.Context) error { w.ev.add("stop " + w.name); return nil }

type fakeCloser struct {
	name string
	ev   *event
}

func (c fakeCloser) Close() error { c.ev.add("close " + c.name); return nil }

func TestRunStopsInReverseOrder(t *testing.T) {
	cfg := config.Default()
	cfg.Server.Port = 0
	cfg.Metrics.Enabled = false

	ev := &event{}
	app := New(cfg, nil, usecase.NewModelRegistry(nil), nil, nil, nil)
	app.AddWorker(fakeWorker{"a", ev})
	app.AddWorker(fakeWorker{"b", ev})
	app.AddCloser(fakeCloser{"x", ev})
	app.AddCloser(fakeCloser{"y", ev})
	app.AddWorker(nil)
	app.AddCloser(nil)

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	if err := app.Run(ctx); err != nil {
		t.Fatalf("run: %v", err)
	}

	want := "start a,start b,stop b,stop a,close y,close x"
	if got := strings.Join(ev.log, ","); got != want {
		t.Fatalf("lifecycle = %s, want %s", got, want)
	}
}
