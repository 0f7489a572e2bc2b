package app

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

func Main() {
	if err := NewRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func NewRootCommand() *cobra.Command {
	root := &cobra.Command{
		Use:           "feedbackdesk",
		Short:         "Feedback triage service",
		Long:          `feedbackdesk ingests product feedback, classifies it with an LLM, and serves a triage API with daily digests.`,
		SilenceUsage:  true,
		SilenceErrors: true,
	}
	root.AddCommand(
		newServeCommand(),
		newMigrateCommand(),
		newIngestCommand(),
		newDigestCommand(),
		newUserCommand(),
	)
	return root
}
