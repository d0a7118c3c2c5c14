// Package prof wires runtime profilers to command-line flags.
package prof

import (
	"fmt"
	"os"
	"runtime"
	"runtime/pprof"
	"runtime/trace"
	"sync"

	"go.uber.org/multierr"
)

// Options names output files; an empty path leaves that profile off.
type Options struct {
	CPU   string
	Heap  string
	Trace string
}

// Enabled reports whether any profile was requested.
func (o Options) Enabled() bool {
	return o.CPU != "" || o.Heap != "" || o.Trace != ""
}

// Start enables the requested profiles. The returned stop function writes
// the heap profile, closes every file and is safe to call more than once.
func Start(opts Options) (stop func() error, err error) {
	var cpuFile, traceFile *os.File
	if opts.CPU != "" {
		if cpuFile, err = os.Create(opts.CPU); err != nil {
			return nil, fmt.Errorf("failed to start cpu profile: %w", err)
		}
		if err = pprof.StartCPUProfile(cpuFile); err != nil {
			_ = cpuFile.Close()
			return nil, fmt.Errorf("failed to start cpu profile: %w", err)
		}
	}
	if opts.Trace != "" {
		if traceFile, err = os.Create(opts.Trace); err == nil {
			if err = trace.Start(traceFile); err != nil {
				_ = traceFile.Close()
			}
		}
		if err != nil {
			if cpuFile != nil {
				pprof.StopCPUProfile()
				_ = cpuFile.Close()
			}
			return nil, fmt.Errorf("failed to start trace: %w", err)
		}
	}

	var (
		once    sync.Once
		stopErr error
	)
	stop = func() error {
		once.Do(func() {
			if traceFile != nil {
				trace.Stop()
				stopErr = multierr.Append(stopErr, traceFile.Close())
			}
			if cpuFile != nil {
				pprof.StopCPUProfile()
				stopErr = multierr.Append(stopErr, cpuFile.Close())
			}
			if opts.Heap != "" {
				stopErr = multierr.Append(stopErr, writeHeap(opts.Heap))
			}
		})
		return stopErr
	}
	return stop, nil
}

func writeHeap(path string) (err error) {
	f, err := os.Create(path)
	if err != nil {
		return fmt.Errorf("failed to write heap profile: %w", err)
	}
	defer func() {
		err = multierr.Append(err, f.Close())
	}()
	runtime.GC()
	return pprof.WriteHeapProfile(f)
}
