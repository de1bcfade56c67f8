package main

import (
	"context"
	"fmt"
	"io"
	"sync"

	"github.com/rendis/cmdkit/internal/streaming"
	"github.com/rendis/cmdkit/pkg/schema"
)

// consoleMu serializes writes from live command output and progress lines,
// which may share one terminal.
var consoleMu sync.Mutex

type consoleWriter struct {
	w io.Writer
}

func (c consoleWriter) Write(p []byte) (int, error) {
	consoleMu.Lock()
	defer consoleMu.Unlock()
	return c.w.Write(p)
}

func console(w io.Writer) io.Writer {
	if w == nil {
		return nil
	}
	return consoleWriter{w: w}
}

var progressEvents = []string{
	schema.EventCommandStarted,
	schema.EventCommandSucceeded,
	schema.EventCommandFailed,
}

// followProgress prints a line to w for every command event of workflow
// until the returned stop func is called. stop drains what was already
// published before returning.
func followProgress(ctx context.Context, hub streaming.Hub, workflow string, total int, w io.Writer) (stop func(), err error) {
	events, cancel, err := hub.Subscribe(ctx, streaming.Filter{Workflow: workflow, Types: progressEvents})
	if err != nil {
		return nil, err
	}
	w = console(w)
	done := make(chan struct{})
	go func() {
		defer close(done)
		for ev := range events {
			printProgress(w, ev, total)
		}
	}()
	return func() {
		cancel()
		<-done
	}, nil
}

func printProgress(w io.Writer, ev streaming.RunEvent, total int) {
	if ev.CommandIndex == nil {
		return
	}
	pos := fmt.Sprintf("[%d/%d]", *ev.CommandIndex+1, total)

	switch ev.Type {
	case schema.EventCommandStarted:
		if p, ok := ev.Payload.(map[string]any); ok {
			fmt.Fprintf(w, "%s %v\n", pos, p["command"])
			return
		}
		fmt.Fprintf(w, "%s started\n", pos)
	case schema.EventCommandSucceeded, schema.EventCommandFailed:
		out, ok := ev.Payload.(schema.CommandOutcome)
		if !ok {
			return
		}
		if out.Failed() {
			fmt.Fprintf(w, "%s FAIL %s (%dms)\n", pos, truncate(out.ErrorDetail, 100), out.DurationMs)
			return
		}
		fmt.Fprintf(w, "%s ok (%dms)\n", pos, out.DurationMs)
	}
}
