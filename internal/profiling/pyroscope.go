// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

//go:build pyroscope

package profiling

import (
	"errors"
	"os"

	"github.com/grafana/pyroscope-go"
	"gopkg.in/op/go-logging.v1"
)

const defaultAppName = "sigrelay"

// Start begins continuous profiling to the Pyroscope server named by
// PYROSCOPE_SERVER_ADDRESS. The returned function stops the profiler.
func Start(log *logging.Logger, service string) (func(), error) {
	serverAddress := os.Getenv("PYROSCOPE_SERVER_ADDRESS")
	if serverAddress == "" {
		return nil, errors.New("PYROSCOPE_SERVER_ADDRESS is not set")
	}
	appName := os.Getenv("PYROSCOPE_APP_NAME")
	if appName == "" {
		appName = defaultAppName
	}
	if tag := os.Getenv("PYROSCOPE_SERVICE_TAG"); tag != "" {
		service = tag
	}

	p, err := pyroscope.Start(pyroscope.Config{
		ApplicationName: appName,
		ServerAddress:   serverAddress,
		Logger:          pyroscope.StandardLogger,
		Tags: map[string]string{
			"service": service,
		},
		ProfileTypes: []pyroscope.ProfileType{
			pyroscope.ProfileCPU,
			pyroscope.ProfileAllocObjects,
			pyroscope.ProfileInuseSpace,
			pyroscope.ProfileGoroutines,
		},
	})
	if err != nil {
		return nil, err
	}
	log.Noticef("Pyroscope profiling to %s as %s/%s", serverAddress, appName, service)
	return func() {
		if err := p.Stop(); err != nil {
			log.Warningf("Pyroscope stop: %v", err)
		}
	}, nil
}
