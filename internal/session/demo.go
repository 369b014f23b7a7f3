package session

import (
	"context"
	"time"

	"github.com/woxQAQ/jsbridge/api/guest"
	"github.com/woxQAQ/jsbridge/internal/host"
	"github.com/woxQAQ/jsbridge/internal/loopback"
	"github.com/woxQAQ/jsbridge/internal/script"
	"go.uber.org/zap"
	"go.uber.org/zap/zapcore"
)

// DemoResult describes a Demo run.
type DemoResult struct {
	Effects []string
	Loop    host.Summary
	Host    host.Stats
	Guest   guest.Stats
}

// Demo runs the tik/tok routine in-process, without a wasm module: a
// guest task sleeps twice through host timers and logs each step through
// the host console.
func Demo(ctx context.Context, clock host.Clock, logger *zap.Logger) (*DemoResult, error) {
	engine, err := script.New(logger)
	if err != nil {
		return nil, err
	}
	defer engine.Close()

	h := host.New(engine, logger)
	link := loopback.New(ctx, h, logger)
	b := link.Bridge()

	// Guest logs travel through console.log and back into logger.
	console := zap.New(guest.NewConsoleCore(b, zapcore.DebugLevel)).Named("demo")

	result := &DemoResult{}
	step := func(word string, d time.Duration) guest.Task {
		return guest.Await(func() *guest.Future { return b.Sleep(d) }, func(guest.Value) {
			result.Effects = append(result.Effects, word)
			console.Info(word)
		})
	}

	err = link.Call("demo", func() {
		b.BlockOn(guest.Seq(step("tik", 0), step("tok", 10*time.Millisecond)))
	})
	if err != nil {
		return nil, err
	}

	loop := host.NewLoop(h, clock, host.LoopConfig{MaxEvents: 100}, logger)
	result.Loop, err = loop.Run(ctx, link)
	result.Host = h.Stats()
	result.Guest = b.Stats()
	return result, err
}
