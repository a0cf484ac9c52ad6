package main

import (
	"fmt"
	"os"

	"command-center/core/auth"

	"github.com/spf13/cobra"
)

func main() {
	if err := newRootCommand().Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func newRootCommand() *cobra.Command {
	var configFile string

	root := &cobra.Command{
		Use:           "command-center",
		Short:         "Orchestrates AI agent jobs against new projects, existing repositories and remote hosts",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), configFile)
		},
	}
	root.PersistentFlags().StringVarP(&configFile, "config", "c", "", "config file path (default $HOME/.command-center/config.yaml or ./config.yaml)")

	root.AddCommand(
		newServeCommand(&configFile),
		newRunCommand(&configFile),
		newAuthStatusCommand(&configFile),
		newRecipesCommand(&configFile),
	)
	return root
}

func newServeCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "serve",
		Short: "Start the API server",
		RunE: func(cmd *cobra.Command, args []string) error {
			return serve(cmd.Context(), *configFile)
		},
	}
}

func newRunCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "run <job.yaml>",
		Short: "Run one job spec in the foreground and stream its progress to the log",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return runJob(cmd.Context(), *configFile, args[0])
		},
	}
}

func newAuthStatusCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "auth-status",
		Short: "Report which service credentials are available",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			state := auth.Status(newAuthStore(cfg))
			fmt.Fprintf(cmd.OutOrStdout(), "github: %s\nagent:  %s\n",
				yesNo(state.GithubAuthenticated), yesNo(state.AgentAuthenticated))
			return nil
		},
	}
}

func newRecipesCommand(configFile *string) *cobra.Command {
	return &cobra.Command{
		Use:   "recipes",
		Short: "List the scaffold recipes",
		RunE: func(cmd *cobra.Command, args []string) error {
			cfg, err := loadConfig(*configFile)
			if err != nil {
				return err
			}
			catalog, err := loadRecipes(cfg)
			if err != nil {
				return err
			}
			for _, r := range catalog.List() {
				fmt.Fprintf(cmd.OutOrStdout(), "%-16s %s\n", r.ID, r.ScriptURL)
			}
			return nil
		},
	}
}

func yesNo(ok bool) string {
	if ok {
		return "authenticated"
	}
	return "not authenticated"
}
