package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"

	"github.com/spf13/cobra"
	"github.com/spf13/pflag"

	"github.com/JohnPlummer/prompt-evaluator/evaluator"
	"github.com/JohnPlummer/prompt-evaluator/hub"
	"github.com/JohnPlummer/prompt-evaluator/internal/config"
	"github.com/JohnPlummer/prompt-evaluator/metrics"
)

type options struct {
	configPath string
	input      string
	model      string
	owner      string
	dataset    string
	private    bool
	dryRun     bool
	debug      bool
}

func newRootCmd() *cobra.Command {
	var opts options

	cmd := &cobra.Command{
		Use:   "prompt-evaluator",
		Short: "Evaluate CSV prompts against an LLM and publish the results",
		Long: `prompt-evaluator reads prompts from the first column of a CSV file, sends each
one to an OpenAI compatible inference API and uploads prompt/response pairs
as a dataset to the Hugging Face Hub.

Credentials are read from GROQ_API_KEY and HUGGINGFACE_TOKEN (or HF_TOKEN),
optionally via a .env file in the working directory.`,
		Version:       evaluator.Version,
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return run(cmd.Context(), cmd, opts)
		},
	}
	cmd.SetVersionTemplate("{{.Name}} {{.Version}}\n")

	f := cmd.Flags()
	f.StringVar(&opts.configPath, "config", "", "config file (default is ./"+config.DefaultFile+" when present)")
	f.StringVarP(&opts.input, "input", "i", "", "CSV file with one prompt per row (default \""+config.DefaultInputPath+"\")")
	f.StringVarP(&opts.model, "model", "m", "", "model identifier (default \""+evaluator.DefaultModel+"\")")
	f.StringVar(&opts.owner, "owner", "", "dataset owner, user or organization (default is the token owner)")
	f.StringVar(&opts.dataset, "dataset", "", "dataset repository name (default \""+hub.DefaultDatasetName+"\")")
	f.BoolVar(&opts.private, "private", false, "create the dataset repository as private")
	f.BoolVar(&opts.dryRun, "dry-run", false, "process prompts without uploading the dataset")
	f.BoolVar(&opts.debug, "debug", false, "enable debug logging")

	return cmd
}

// apply overrides cfg with the flags set on the command line
func (o options) apply(flags *pflag.FlagSet, cfg *config.RunConfig) {
	if flags.Changed("input") {
		cfg.InputPath = o.input
	}
	if flags.Changed("model") {
		cfg.Model = o.model
	}
	if flags.Changed("owner") {
		cfg.DatasetOwner = o.owner
	}
	if flags.Changed("dataset") {
		cfg.DatasetName = o.dataset
	}
	if flags.Changed("private") {
		cfg.Private = o.private
	}
	cfg.DryRun = o.dryRun
}

func configureLogging(w io.Writer, debug bool) {
	level := slog.LevelInfo
	if debug {
		level = slog.LevelDebug
	}
	slog.SetDefault(slog.New(slog.NewTextHandler(w, &slog.HandlerOptions{Level: level})))
}

func run(ctx context.Context, cmd *cobra.Command, opts options) error {
	configureLogging(cmd.ErrOrStderr(), opts.debug)

	cfg, err := config.Load(opts.configPath)
	if err != nil {
		return err
	}
	opts.apply(cmd.Flags(), &cfg)
	if err := cfg.Validate(); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	info := evaluator.GetVersion()
	slog.Info("Starting evaluation",
		"version", info.Version,
		"input", cfg.InputPath,
		"model", cfg.Model,
		"dry_run", cfg.DryRun)

	rec := metrics.NewRecorder(cfg.MetricsPushURL != "")

	proc, err := evaluator.New(cfg.Evaluator(), evaluator.WithMetrics(rec))
	if err != nil {
		return err
	}

	var pub evaluator.Publisher
	if !cfg.DryRun {
		uploader, err := hub.NewUploader(cfg.Hub(), hub.WithMetrics(rec))
		if err != nil {
			return err
		}
		pub = uploader
	}

	summary, err := evaluator.Run(ctx, proc, pub, cfg.InputPath)
	if err != nil {
		return err
	}

	slog.Info("Evaluation finished",
		"total", summary.Total,
		"succeeded", summary.Succeeded,
		"failed", summary.Failed,
		"published", summary.Published)

	if cfg.MetricsPushURL != "" {
		if err := rec.Push(ctx, cfg.MetricsPushURL); err != nil {
			slog.Warn("Error pushing metrics", "error", err)
		}
	}

	fmt.Fprintf(cmd.OutOrStdout(), "Processed %d prompts: %d succeeded, %d failed\n",
		summary.Total, summary.Succeeded, summary.Failed)
	return nil
}
