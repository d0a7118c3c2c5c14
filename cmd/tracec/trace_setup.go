package main

import (
	"fmt"

	"github.com/spf13/cobra"

	"tracec/internal/prof"
	"tracec/internal/trace"
)

// setupTracing inspects trace-related flags and attaches a tracer to the
// command context.
func (c *cli) setupTracing(cmd *cobra.Command) error {
	flags := cmd.Flags()

	output, err := flags.GetString("trace")
	if err != nil {
		return fmt.Errorf("failed to get trace flag: %w", err)
	}
	ringSize, err := flags.GetInt("trace-ring-size")
	if err != nil {
		return fmt.Errorf("failed to get trace-ring-size flag: %w", err)
	}
	heartbeat, err := flags.GetDuration("trace-heartbeat")
	if err != nil {
		return fmt.Errorf("failed to get trace-heartbeat flag: %w", err)
	}

	level := c.traceLevel
	// --trace без уровня включает фазы
	if level == trace.LevelOff && output != "" {
		level = trace.LevelPhase
	}
	if level == trace.LevelOff {
		return nil
	}

	tracer, err := trace.New(trace.Config{
		Level:      level,
		Mode:       c.traceMode,
		Format:     c.traceFmt,
		OutputPath: output,
		RingSize:   ringSize,
	})
	if err != nil {
		return fmt.Errorf("failed to create tracer: %w", err)
	}
	switch t := tracer.(type) {
	case *trace.RingTracer:
		c.ring = t
	case *trace.MultiTracer:
		c.ring = t.Ring()
	}
	ctx := trace.WithTracer(cmd.Context(), tracer)

	// heartbeat сообщает, сколько программ уже прошло type-check
	var hb *trace.Heartbeat
	if heartbeat > 0 {
		p := &progress{}
		ctx = withProgress(ctx, p)
		hb = trace.StartHeartbeat(tracer, heartbeat, p.String)
	}
	cmd.SetContext(ctx)
	c.cleanups = append(c.cleanups, func() error {
		if hb != nil {
			hb.Stop()
		}
		if err := tracer.Flush(); err != nil {
			return fmt.Errorf("trace: flush: %w", err)
		}
		if err := tracer.Close(); err != nil {
			return fmt.Errorf("trace: close: %w", err)
		}
		return nil
	})
	return nil
}

func (c *cli) setupProfiling(cmd *cobra.Command) error {
	var opts prof.Options
	var err error
	if opts.CPU, err = cmd.Flags().GetString("cpu-profile"); err != nil {
		return fmt.Errorf("failed to get cpu-profile flag: %w", err)
	}
	if opts.Heap, err = cmd.Flags().GetString("mem-profile"); err != nil {
		return fmt.Errorf("failed to get mem-profile flag: %w", err)
	}
	if opts.Trace, err = cmd.Flags().GetString("runtime-trace"); err != nil {
		return fmt.Errorf("failed to get runtime-trace flag: %w", err)
	}
	if !opts.Enabled() {
		return nil
	}
	stop, err := prof.Start(opts)
	if err != nil {
		return err
	}
	c.cleanups = append(c.cleanups, stop)
	return nil
}
