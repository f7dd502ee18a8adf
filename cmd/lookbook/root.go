package main

import (
	"github.com/spf13/cobra"
)

func newRootCommand() *cobra.Command {
	var serverFlag string
	var userFlag string
	var configFlag string

	ctx := newCommandContext(&serverFlag, &userFlag, &configFlag)

	rootCmd := &cobra.Command{
		Use:           "lookbook",
		Short:         "Lookbook photoshoot generation CLI",
		SilenceUsage:  true,
		SilenceErrors: true,
		RunE: func(cmd *cobra.Command, args []string) error {
			return cmd.Help()
		},
	}

	rootCmd.PersistentFlags().StringVar(&serverFlag, "server", "", "Base URL of the lookbook daemon API")
	rootCmd.PersistentFlags().StringVarP(&userFlag, "user", "u", "", "User id sent with every request")
	rootCmd.PersistentFlags().StringVarP(&configFlag, "config", "c", "", "Configuration file path")

	rootCmd.AddCommand(newStatusCommand(ctx))
	rootCmd.AddCommand(newGarmentCommand(ctx))
	rootCmd.AddCommand(newStyleCommand(ctx))
	rootCmd.AddCommand(newGenerateCommand(ctx))
	rootCmd.AddCommand(newConfigCommand())

	return rootCmd
}
