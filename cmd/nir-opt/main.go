// Command nir-opt runs variable rewriting passes over built-in sample
// shaders and prints the IR before and after.
//
// Usage:
//
//	nir-opt list                          # list passes and samples
//	nir-opt run struct-temp               # run the default pipeline
//	nir-opt run array-temp -p split-array-vars -p remove-dead-derefs
//	nir-opt run array-copy --config pipeline.yaml
//	nir-opt validate struct-temp          # build and validate a sample
package main

import (
	"fmt"
	"log/slog"
	"os"

	"github.com/spf13/cobra"

	"github.com/ValveSoftware/steamos-mesa/nir"
	"github.com/ValveSoftware/steamos-mesa/nir/passes"
)

func main() {
	if err := newRootCmd().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "Error:", err)
		os.Exit(1)
	}
}

func newRootCmd() *cobra.Command {
	root := &cobra.Command{
		Use:           "nir-opt",
		Short:         "nir-opt applies IR variable rewriting passes to sample shaders",
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(newListCmd(), newRunCmd(), newValidateCmd())
	return root
}

func newListCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "list",
		Short: "List the registered passes and built-in samples",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			out := cmd.OutOrStdout()
			fmt.Fprintln(out, "passes:")
			for _, name := range passes.PassNames() {
				fmt.Fprintln(out, " ", name)
			}
			fmt.Fprintln(out, "samples:")
			for _, name := range sampleNames() {
				fmt.Fprintln(out, " ", name)
			}
			return nil
		},
	}
}

func newRunCmd() *cobra.Command {
	var (
		passNames  []string
		configPath string
		verbose    bool
		noBefore   bool
	)
	cmd := &cobra.Command{
		Use:   "run <sample>",
		Short: "Run a pass pipeline over a sample module and print the result",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := buildSample(args[0])
			if err != nil {
				return err
			}

			cfg := passes.DefaultConfig()
			switch {
			case configPath != "" && len(passNames) > 0:
				return fmt.Errorf("--config and --passes are mutually exclusive")
			case configPath != "":
				data, err := os.ReadFile(configPath)
				if err != nil {
					return fmt.Errorf("reading pipeline config: %w", err)
				}
				if cfg, err = passes.ParseConfig(data); err != nil {
					return err
				}
			case len(passNames) > 0:
				cfg = passes.Config{Passes: passNames}
			}

			pipeline, err := passes.NewPipeline(cfg)
			if err != nil {
				return err
			}
			if verbose {
				pipeline.SetLogger(slog.New(slog.NewTextHandler(cmd.ErrOrStderr(), &slog.HandlerOptions{
					Level: slog.LevelDebug,
				})))
			}

			out := cmd.OutOrStdout()
			if !noBefore {
				fmt.Fprintln(out, "; before")
				if err := nir.Fprint(out, m); err != nil {
					return err
				}
			}

			progress := pipeline.Run(m)

			fmt.Fprintf(out, "; after (progress=%v)\n", progress)
			if err := nir.Fprint(out, m); err != nil {
				return err
			}
			return validateModule(m)
		},
	}
	cmd.Flags().StringSliceVarP(&passNames, "passes", "p", nil, "passes to run, in order (default: the standard pipeline)")
	cmd.Flags().StringVar(&configPath, "config", "", "YAML pipeline configuration file")
	cmd.Flags().BoolVarP(&verbose, "verbose", "v", false, "trace per-pass progress to stderr")
	cmd.Flags().BoolVar(&noBefore, "no-before", false, "only print the IR after the pipeline")
	return cmd
}

func newValidateCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "validate <sample>",
		Short: "Build a sample module and run the IR validator over it",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			m, err := buildSample(args[0])
			if err != nil {
				return err
			}
			if err := validateModule(m); err != nil {
				return err
			}
			fmt.Fprintln(cmd.OutOrStdout(), "ok")
			return nil
		},
	}
}

func buildSample(name string) (*nir.Module, error) {
	build, ok := samples[name]
	if !ok {
		return nil, fmt.Errorf("unknown sample %q; try \"nir-opt list\"", name)
	}
	return build(), nil
}

func validateModule(m *nir.Module) error {
	errs, err := nir.Validate(m)
	if err != nil {
		return err
	}
	if len(errs) > 0 {
		for _, e := range errs {
			fmt.Fprintln(os.Stderr, "validation:", e.Error())
		}
		return fmt.Errorf("module failed validation with %d errors", len(errs))
	}
	return nil
}
