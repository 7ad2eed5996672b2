// SPDX-FileCopyrightText: © 2026 David Stainton
// SPDX-License-Identifier: AGPL-3.0-only

package main

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"os"

	"gopkg.in/op/go-logging.v1"

	"github.com/katzenpost/sigrelay/client"
	"github.com/katzenpost/sigrelay/client/config"
	"github.com/katzenpost/sigrelay/core/log"
	"github.com/katzenpost/sigrelay/core/utils"
	"github.com/katzenpost/sigrelay/credstore"
	"github.com/katzenpost/sigrelay/internal/instrument"
	"github.com/katzenpost/sigrelay/internal/profiling"
	"github.com/katzenpost/sigrelay/session"
)

// app is what a subcommand runs with.
type app struct {
	cfg     *config.Config
	backend *log.Backend
	log     *logging.Logger
	client  *client.Client
	store   *credstore.Store

	metrics     *http.Server
	stopProfile func()
}

func loadConfig(gf *globalFlags) (*config.Config, error) {
	cfg, err := config.LoadFile(gf.ConfigFile)
	if err != nil {
		return nil, fmt.Errorf("failed to load config file: %v", err)
	}
	if gf.LogLevel != "" {
		if _, err := log.LevelFromString(gf.LogLevel); err != nil {
			return nil, err
		}
		cfg.Logging.Level = gf.LogLevel
	}
	return cfg, nil
}

// newApp opens the credential store and, if withClient is set, creates
// the relay client along with metrics and profiling.
func newApp(gf *globalFlags, withClient bool) (*app, error) {
	cfg, err := loadConfig(gf)
	if err != nil {
		return nil, err
	}
	a := &app{cfg: cfg, stopProfile: func() {}}

	var backend *log.Backend
	if withClient {
		if a.client, err = newClient(cfg); err != nil {
			return nil, err
		}
		backend = a.client.LogBackend()
	} else if backend, err = log.New(cfg.Logging.File, cfg.Logging.Level, cfg.Logging.Disable); err != nil {
		return nil, err
	}
	a.backend = backend
	a.log = backend.GetLogger("sigrelay")

	if err := utils.EnsureParentDir(cfg.Credentials.Path); err != nil {
		a.Close()
		return nil, err
	}
	if a.store, err = credstore.Open(cfg.Credentials.Path, backend.GetLogger("credstore")); err != nil {
		a.Close()
		return nil, err
	}

	if !withClient {
		return a, nil
	}
	if a.metrics, err = instrument.Init(cfg.Metrics.Address); err != nil {
		a.Close()
		return nil, err
	}
	if gf.Profile {
		if a.stopProfile, err = profiling.Start(a.log, "sigrelay"); err != nil {
			a.stopProfile = func() {}
			a.Close()
			return nil, err
		}
	}
	return a, nil
}

func newClient(cfg *config.Config) (*client.Client, error) {
	secret := cfg.ServiceSecret()
	if secret == nil {
		return client.New(cfg, nil)
	}
	sm, err := session.NewServiceMode(secret)
	if err != nil {
		return nil, err
	}
	return client.NewServiceClient(cfg, nil, sm)
}

// credential returns the stored credential of account, or a new one
// holding only the identity.
func (a *app) credential(account string) (*session.Credential, error) {
	cred, err := a.store.Get(account)
	switch {
	case err == nil:
		return cred, nil
	case errors.Is(err, credstore.ErrNotFound):
		return &session.Credential{Identity: account}, nil
	default:
		return nil, err
	}
}

// Close releases everything newApp set up.
func (a *app) Close() {
	if a.client != nil {
		a.client.Shutdown()
	}
	if a.store != nil {
		if err := a.store.Close(); err != nil {
			a.log.Warningf("Closing credential store: %v", err)
		}
	}
	if a.metrics != nil {
		a.metrics.Shutdown(context.Background())
	}
	a.stopProfile()
	if err := a.backend.Close(); err != nil {
		fmt.Fprintf(os.Stderr, "closing log: %v\n", err)
	}
}
