package chat

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"
)

// Options are the command-line overrides applied on top of the environment.
type Options struct {
	SystemPrompt     string
	SystemPromptFile string
	MaxLoops         int
}

// Opener starts the conversation the commands drive.
type Opener func(ctx context.Context, opts Options) (Runner, error)

// Execute runs the sqlanalyst command tree wired to the configured warehouse
// and inference endpoint.
func Execute(ctx context.Context) error {
	return NewRootCommand(OpenSession).ExecuteContext(ctx)
}

func NewRootCommand(open Opener) *cobra.Command {
	opts := &Options{}
	rootCmd := &cobra.Command{
		Use:   "sqlanalyst",
		Short: "Ask the data warehouse questions in plain English",
		Long: "sqlanalyst answers plain-English questions by letting a hosted model write " +
			"read-only SQL, running it against the warehouse and summarising the results. " +
			"Without a subcommand it starts an interactive conversation.",
		Args:          cobra.NoArgs,
		SilenceUsage:  true,
		SilenceErrors: false,
		RunE: func(cmd *cobra.Command, _ []string) error {
			runner, err := open(cmd.Context(), *opts)
			if err != nil {
				return err
			}
			defer func() { _ = runner.Close() }()
			return newConsole(runner, cmd.InOrStdin(), cmd.OutOrStdout()).run(cmd.Context())
		},
	}

	flags := rootCmd.PersistentFlags()
	flags.StringVarP(&opts.SystemPrompt, "system-prompt", "s", "", "system prompt text for the session")
	flags.StringVarP(&opts.SystemPromptFile, "system-prompt-file", "f", "", "path to a file containing the system prompt (takes precedence over --system-prompt)")
	flags.IntVar(&opts.MaxLoops, "max-loops", 0, "maximum model round-trips per question (default from SQLANALYST_AGENT_MAX_LOOPS)")

	rootCmd.AddCommand(newAskCmd(open, opts))
	return rootCmd
}

func newAskCmd(open Opener, opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "ask <question>",
		Short: "Answer a single question and exit",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			question := strings.TrimSpace(strings.Join(args, " "))
			if question == "" {
				return errors.New("question is required")
			}
			runner, err := open(cmd.Context(), *opts)
			if err != nil {
				return err
			}
			defer func() { _ = runner.Close() }()

			answer := newConsole(runner, strings.NewReader(""), cmd.OutOrStdout()).ask(cmd.Context(), question)
			if answer.Err != nil {
				return fmt.Errorf("answer question: %w", answer.Err)
			}
			return nil
		},
	}
}
