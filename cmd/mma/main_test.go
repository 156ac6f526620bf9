// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/curioloop/mma/config"
	"github.com/sirupsen/logrus"
	"github.com/sirupsen/logrus/hooks/test"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func newViper(t *testing.T, args ...string) *viper.Viper {
	fs := pflag.NewFlagSet("mma", pflag.ContinueOnError)
	fs.String("config", "", "")
	fs.String("log-level", "", "")
	fs.String("log-format", "", "")
	runFlags(fs)
	require.NoError(t, fs.Parse(args))

	v := viper.New()
	require.NoError(t, bindFlags(v, fs))
	v.SetEnvPrefix("MMA")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()
	return v
}

func TestLoadConfigDefaults(t *testing.T) {
	cfg, err := loadConfig(newViper(t))
	require.NoError(t, err)
	assert.Equal(t, config.Default(), cfg)
}

func TestLoadConfigOverrides(t *testing.T) {
	path := filepath.Join(t.TempDir(), "run.yaml")
	require.NoError(t, os.WriteFile(path, []byte("variant: gcmma\nmax_iters: 30\nproblems: [beam]\n"), 0o644))

	cfg, err := loadConfig(newViper(t, "--config", path))
	require.NoError(t, err)
	assert.Equal(t, "gcmma", cfg.Variant)
	assert.Equal(t, 30, cfg.MaxIters)
	assert.Equal(t, []string{"beam"}, cfg.Problems)

	t.Setenv("MMA_MAX_ITERS", "7")
	t.Setenv("MMA_LOG_LEVEL", "debug")
	cfg, err = loadConfig(newViper(t,
		"--config", path, "--variant", "mma", "--rel-tol", "1e-8",
		"--problem", "toy,halfplane", "--filter", "density", "--kkt-check=false",
	))
	require.NoError(t, err)
	assert.Equal(t, "mma", cfg.Variant)
	assert.Equal(t, 1e-8, cfg.RelTol)
	assert.Equal(t, 7, cfg.MaxIters)
	assert.Equal(t, "debug", cfg.Log.Level)
	assert.Equal(t, "density", cfg.Filter.Type)
	assert.False(t, cfg.KKTCheck)
	assert.Equal(t, []string{"toy", "halfplane"}, cfg.Problems)
}

func TestLoadConfigInvalid(t *testing.T) {
	_, err := loadConfig(newViper(t, "--variant", "sqp"))
	assert.Error(t, err)

	_, err = loadConfig(newViper(t, "--config", filepath.Join(t.TempDir(), "missing.yaml")))
	assert.Error(t, err)
}

func TestSetupLogger(t *testing.T) {
	logger, err := setupLogger(config.Log{Level: "debug", Format: "json"})
	require.NoError(t, err)
	assert.Equal(t, logrus.DebugLevel, logger.GetLevel())
	assert.IsType(t, &logrus.JSONFormatter{}, logger.Formatter)

	logger, err = setupLogger(config.Log{Level: "warn", Format: "text"})
	require.NoError(t, err)
	assert.Equal(t, logrus.WarnLevel, logger.GetLevel())
	assert.IsType(t, &logrus.TextFormatter{}, logger.Formatter)

	_, err = setupLogger(config.Log{Level: "loud"})
	assert.Error(t, err)
}

func TestRunProblems(t *testing.T) {
	log, hook := test.NewNullLogger()
	cfg := config.Default()
	cfg.Problems = []string{"halfplane", "toy"}
	cfg.Metrics.Listen = "127.0.0.1:0"

	var out bytes.Buffer
	require.NoError(t, runProblems(context.Background(), cfg, log, &out))

	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 3)
	assert.True(t, strings.HasPrefix(lines[0], "PROBLEM"))
	assert.True(t, strings.HasPrefix(lines[1], "halfplane"))
	assert.True(t, strings.HasPrefix(lines[2], "toy"))
	assert.Contains(t, lines[2], "CONVERGENCE")

	finished := 0
	for _, e := range hook.AllEntries() {
		if e.Message == "optimization finished" {
			finished++
		}
	}
	assert.Equal(t, 2, finished)
}

func TestRunProblemsErrors(t *testing.T) {
	log, _ := test.NewNullLogger()
	cfg := config.Default()

	cfg.Problems = []string{"rosenbrock"}
	assert.Error(t, runProblems(context.Background(), cfg, log, &bytes.Buffer{}))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()
	cfg.Problems = []string{"beam"}
	assert.ErrorIs(t, runProblems(ctx, cfg, log, &bytes.Buffer{}), context.Canceled)
}

func TestProblemsCommand(t *testing.T) {
	var out bytes.Buffer
	problemsCmd.SetOut(&out)
	require.NoError(t, problemsCmd.RunE(problemsCmd, nil))
	lines := strings.Split(strings.TrimSpace(out.String()), "\n")
	require.Len(t, lines, 4)
	assert.True(t, strings.HasPrefix(lines[0], "beam"))
}
