/*
Copyright © 2025 Valentyn Solomko <valentyn.solomko@gmail.com>

Licensed under the Apache License, Version 2.0 (the "License");
you may not use this file except in compliance with the License.
You may obtain a copy of the License at

	http://www.apache.org/licenses/LICENSE-2.0

Unless required by applicable law or agreed to in writing, software
distributed under the License is distributed on an "AS IS" BASIS,
WITHOUT WARRANTIES OR CONDITIONS OF ANY KIND, either express or implied.
See the License for the specific language governing permissions and
limitations under the License.
*/
package cmd

import (
	"os"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/valpere/perebench/internal/logging"
)

var version = "0.1.0"

// logger is the process-wide logger, built once before any subcommand runs.
var logger *zap.Logger

var rootCmd = &cobra.Command{
	Use:   "perebench",
	Short: "Offline evaluation harness for LLM translation pipelines",
	Long: `perebench runs a corpus of Japanese→English translation tasks through
pipeline variants that differ in narrative-state building and verify/repair,
and records machine-scored results for comparison.

Conditions:
  A0  baseline translation
  A1  with narrative state
  A2  with verify/repair loop
  A3  with both

Use "perebench run --help" for experiment options.`,
	Version: version,
	PersistentPreRun: func(cmd *cobra.Command, args []string) {
		logger = logging.FromEnv()
	},
	PersistentPostRun: func(cmd *cobra.Command, args []string) {
		if logger != nil {
			_ = logger.Sync()
		}
	},
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		os.Exit(1)
	}
}
