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
	"bytes"
	"context"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"github.com/valpere/perebench/internal/config"
	"github.com/valpere/perebench/internal/dataset"
	"github.com/valpere/perebench/internal/record"
	"github.com/valpere/perebench/internal/runner"
)

var (
	oneConfigFile   string
	oneSampleFile   string
	oneCondition    string
	oneOutputFormat string
)

var runOneCmd = &cobra.Command{
	Use:   "run-one",
	Short: "Run a single sample through the pipeline",
	Long: `Run one sample and print the result to stdout.

The sample is read from --sample or stdin, either as a dataset JSONL line
or as raw Japanese text. Raw multi-paragraph text translates the final
paragraph with the preceding text as sliding-window context.`,
	RunE: func(cmd *cobra.Command, args []string) error {
		cfg, err := config.Load(oneConfigFile)
		if err != nil {
			return err
		}

		var input []byte
		if oneSampleFile != "" {
			input, err = os.ReadFile(oneSampleFile)
		} else {
			input, err = io.ReadAll(os.Stdin)
		}
		if err != nil {
			return fmt.Errorf("read sample: %w", err)
		}

		sample, err := parseOneSample(input)
		if err != nil {
			return err
		}

		if _, ok := record.CapabilitiesFor(oneCondition); !ok {
			return fmt.Errorf("unknown condition %q", oneCondition)
		}

		r, err := runner.Build(cfg, logger)
		if err != nil {
			return err
		}

		rec, err := r.RunOne(context.Background(), "run-one", sample, oneCondition)
		if err != nil {
			return err
		}

		switch oneOutputFormat {
		case "text", "":
			fmt.Println(rec.Final)
		case "json":
			enc := json.NewEncoder(os.Stdout)
			enc.SetIndent("", "  ")
			return enc.Encode(rec)
		default:
			return fmt.Errorf("unknown output format %q", oneOutputFormat)
		}
		return nil
	},
}

// parseOneSample accepts a dataset JSONL line or raw Japanese text. Raw
// text translates its final paragraph; everything before it becomes the
// context window.
func parseOneSample(input []byte) (record.Sample, error) {
	trimmed := bytes.TrimSpace(input)
	if len(trimmed) == 0 {
		return record.Sample{}, fmt.Errorf("sample input is empty")
	}

	if trimmed[0] == '{' {
		samples, err := dataset.Parse(bytes.NewReader(trimmed))
		if err != nil {
			return record.Sample{}, err
		}
		return samples[0], nil
	}

	paragraphs := strings.Split(string(trimmed), "\n\n")
	text := strings.TrimSpace(paragraphs[len(paragraphs)-1])
	window := ""
	if len(paragraphs) > 1 {
		preceding := strings.Join(paragraphs[:len(paragraphs)-1], "\n\n")
		window = dataset.ContextWindow(preceding, dataset.DefaultContextWords)
	}

	return record.Sample{
		SampleID:   "adhoc:0",
		SourceText: text,
		Context:    window,
	}, nil
}

func init() {
	rootCmd.AddCommand(runOneCmd)

	runOneCmd.Flags().StringVar(&oneConfigFile, "config", "", "Experiment configuration file (required)")
	runOneCmd.Flags().StringVar(&oneSampleFile, "sample", "", "Sample file (default: stdin)")
	runOneCmd.Flags().StringVar(&oneCondition, "condition", "A0", "Condition to run (A0|A1|A2|A3)")
	runOneCmd.Flags().StringVar(&oneOutputFormat, "output-format", "text", "Output format (text|json)")

	runOneCmd.MarkFlagRequired("config")
}
