// Copyright ©2025 curioloop. All rights reserved.
// Use of this source code is governed by a BSD-style
// license that can be found in the LICENSE file.

// Command mma solves the bundled benchmark problems with MMA or GCMMA.
//
//	mma problems
//	mma run --config run.yaml --problem beam,toy
//
// Every configuration key can be overridden by a flag or an MMA_ prefixed
// environment variable, e.g. MMA_REL_TOL=1e-8 or MMA_LOG_LEVEL=debug.
package main

import (
	"fmt"
	"os"
	"strings"

	"github.com/curioloop/mma/benchmark"
	"github.com/curioloop/mma/config"
	"github.com/pkg/errors"
	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/pflag"
	"github.com/spf13/viper"
)

var rootCmd = &cobra.Command{
	Use:           "mma",
	Short:         "Method of moving asymptotes solver",
	SilenceUsage:  true,
	SilenceErrors: true,
}

var problemsCmd = &cobra.Command{
	Use:   "problems",
	Short: "List the benchmark problems",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		out := cmd.OutOrStdout()
		for _, name := range benchmark.Names() {
			b, _ := benchmark.Lookup(name)
			fmt.Fprintf(out, "%-10s %s\n", b.Name, b.Description)
		}
		return nil
	},
}

// flag name → configuration key
var bindings = map[string]string{
	"variant":        "variant",
	"rel-tol":        "rel_tol",
	"max-iters":      "max_iters",
	"min-iters":      "min_iters",
	"move-limit":     "move_limit",
	"filter":         "filter.type",
	"kkt-check":      "kkt_check",
	"gradient-check": "gradient_check",
	"log-level":      "log.level",
	"log-format":     "log.format",
	"metrics-listen": "metrics.listen",
	"problem":        "problems",
}

func init() {
	flags := rootCmd.PersistentFlags()
	flags.String("config", "", "YAML configuration file")
	flags.String("log-level", "", "log level: trace, debug, info, warn or error")
	flags.String("log-format", "", "log format: text or json")
	runFlags(runCmd.Flags())

	rootCmd.AddCommand(runCmd, problemsCmd)

	if err := bindFlags(viper.GetViper(), rootCmd.PersistentFlags(), runCmd.Flags()); err != nil {
		panic(err)
	}
	viper.SetEnvPrefix("MMA")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	viper.AutomaticEnv()
}

// bindFlags binds every known flag of the sets to its configuration key.
func bindFlags(v *viper.Viper, sets ...*pflag.FlagSet) error {
	for _, fs := range sets {
		var err error
		fs.VisitAll(func(f *pflag.Flag) {
			key, ok := bindings[f.Name]
			if !ok {
				key = f.Name
			}
			if err == nil {
				err = v.BindPFlag(key, f)
			}
		})
		if err != nil {
			return errors.Wrap(err, "bind flags")
		}
	}
	return nil
}

// loadConfig reads the configuration file, if any, and applies the flag and
// environment overrides on top of it.
func loadConfig(v *viper.Viper) (*config.Config, error) {
	cfg := config.Default()
	if path := v.GetString("config"); path != "" {
		var err error
		if cfg, err = config.Load(path); err != nil {
			return nil, err
		}
	}

	if v.IsSet("variant") {
		cfg.Variant = v.GetString("variant")
	}
	if v.IsSet("rel_tol") {
		cfg.RelTol = v.GetFloat64("rel_tol")
	}
	if v.IsSet("max_iters") {
		cfg.MaxIters = v.GetInt("max_iters")
	}
	if v.IsSet("min_iters") {
		cfg.MinIters = v.GetInt("min_iters")
	}
	if v.IsSet("move_limit") {
		cfg.MoveLimit = v.GetFloat64("move_limit")
	}
	if v.IsSet("filter.type") {
		cfg.Filter.Type = v.GetString("filter.type")
	}
	if v.IsSet("kkt_check") {
		cfg.KKTCheck = v.GetBool("kkt_check")
	}
	if v.IsSet("gradient_check") {
		cfg.GradientCheck = v.GetBool("gradient_check")
	}
	if v.IsSet("log.level") {
		cfg.Log.Level = v.GetString("log.level")
	}
	if v.IsSet("log.format") {
		cfg.Log.Format = v.GetString("log.format")
	}
	if v.IsSet("metrics.listen") {
		cfg.Metrics.Listen = v.GetString("metrics.listen")
	}
	if v.IsSet("problems") {
		cfg.Problems = config.ProblemList(v.GetStringSlice("problems")...)
	}

	if err := cfg.Validate(); err != nil {
		return nil, errors.Wrap(err, "invalid configuration")
	}
	return cfg, nil
}

// setupLogger builds the logger described by the configuration.
func setupLogger(cfg config.Log) (*logrus.Logger, error) {
	level, err := logrus.ParseLevel(cfg.Level)
	if err != nil {
		return nil, err
	}
	logger := logrus.New()
	logger.SetOutput(os.Stderr)
	logger.SetLevel(level)
	switch cfg.Format {
	case "json":
		logger.SetFormatter(&logrus.JSONFormatter{})
	default:
		logger.SetFormatter(&logrus.TextFormatter{
			FullTimestamp:   true,
			TimestampFormat: "2006-01-02 15:04:05",
		})
	}
	return logger, nil
}

func main() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}
