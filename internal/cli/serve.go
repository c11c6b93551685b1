package cli

import (
	"context"
	"fmt"
	"os"
	"time"

	"cgmatch/internal/pipeline"
	"cgmatch/internal/server"
	"cgmatch/internal/watch"
)

// watchLoop reprocesses the input tree on every debounced change. onReport,
// when set, receives each finished report (used by serve to stream results).
func (r *Root) watchLoop(ctx context.Context, opts runOptions, debounce time.Duration, onReport func()) error {
	w, err := watch.New(opts.input, debounce, r.log)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	// Initial pass so the output reflects the current tree.
	if rep, err := r.runOnce(ctx, opts); err != nil {
		r.log.Error("initial run failed", "error", err)
	} else {
		fmt.Fprint(os.Stdout, rep.Summary())
	}

	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-w.Triggers:
			if !ok {
				return nil
			}
			r.log.Info("change detected, reprocessing", "input", opts.input)
			rep, err := r.runOnce(ctx, opts)
			if err != nil {
				r.log.Error("run failed", "error", err)
				continue
			}
			fmt.Fprint(os.Stdout, rep.Summary())
			if onReport != nil {
				onReport()
			}
		}
	}
}

// serve starts the status server, optionally with a watch-triggered
// processing loop feeding it.
func (r *Root) serve(ctx context.Context, addr string, opts runOptions, withWatch bool) error {
	srv := server.NewServer(addr, r.store, r.log)

	if withWatch {
		go func() {
			if err := r.watchAndStream(ctx, opts, srv); err != nil && ctx.Err() == nil {
				r.log.Error("watch loop stopped", "error", err)
			}
		}()
	}

	return srv.Start(ctx)
}

// watchAndStream is the serve-mode watch loop: every run's pipeline is
// attached to the server so clients see pair results as they happen.
func (r *Root) watchAndStream(ctx context.Context, opts runOptions, srv *server.Server) error {
	w, err := watch.New(opts.input, 0, r.log)
	if err != nil {
		return err
	}
	if err := w.Start(ctx); err != nil {
		return err
	}
	defer w.Stop()

	run := func() {
		rep, err := r.run(ctx, opts, func(p *pipeline.Pipeline) {
			go srv.Attach(p)
		})
		if err != nil {
			r.log.Error("run failed", "error", err)
			return
		}
		r.log.Info("run finished", "summary", rep.Summary())
	}

	run()
	for {
		select {
		case <-ctx.Done():
			return ctx.Err()
		case _, ok := <-w.Triggers:
			if !ok {
				return nil
			}
			run()
		}
	}
}
