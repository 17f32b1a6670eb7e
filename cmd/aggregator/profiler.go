package main

import (
	pyroscope "github.com/grafana/pyroscope-go"
	"github.com/yanun0323/errors"
	"github.com/yanun0323/logs"

	"aggregator/internal/ops"
)

// startProfiler pushes continuous profiles when a server address is set.
func startProfiler(cfg ops.ProfilingConfig, pair string) (stop func(), err error) {
	if cfg.ServerAddress == "" {
		return func() {}, nil
	}

	profiler, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: cfg.ApplicationName,
		ServerAddress:   cfg.ServerAddress,
		Tags: map[string]string{
			"pair": pair,
		},
		Logger: profilerLogger{},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileAllocSpace,
			pyroscope.ProfileInuseObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return nil, errors.Wrap(err, "start pyroscope")
	}
	logs.Infof("profiling to %s as %s", cfg.ServerAddress, cfg.ApplicationName)

	return func() {
		_ = profiler.Stop()
	}, nil
}

type profilerLogger struct{}

func (profilerLogger) Infof(format string, args ...any)  { logs.Infof("pyroscope: "+format, args...) }
func (profilerLogger) Debugf(format string, args ...any) { logs.Debugf("pyroscope: "+format, args...) }
func (profilerLogger) Errorf(format string, args ...any) { logs.Errorf("pyroscope: "+format, args...) }
