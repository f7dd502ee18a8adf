package main

import (
	"errors"
	"fmt"
	"strings"

	"github.com/spf13/cobra"

	"lookbook/internal/api"
)

func newStyleCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "style",
		Short: "Manage style presets and collections",
	}
	cmd.AddCommand(newStyleCreateCommand(ctx))
	cmd.AddCommand(newStyleListCommand(ctx))
	return cmd
}

func newStyleCreateCommand(ctx *commandContext) *cobra.Command {
	var req api.CreateStyleRequest
	var shotSubjects []string

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a preset or collection",
		RunE: func(cmd *cobra.Command, args []string) error {
			if req.Kind != "preset" && req.Kind != "collection" {
				return errors.New("--kind must be preset or collection")
			}
			if strings.TrimSpace(req.Name) == "" {
				return errors.New("--name is required")
			}

			for _, entry := range shotSubjects {
				shot, subject, ok := strings.Cut(entry, "=")
				if !ok || strings.TrimSpace(shot) == "" {
					return fmt.Errorf("invalid --shot-subject %q, expected shot=subject", entry)
				}
				if req.ShotOptions == nil {
					req.ShotOptions = make(map[string]api.ShotOptionPayload)
				}
				option := req.ShotOptions[strings.TrimSpace(shot)]
				option.Subject = strings.TrimSpace(subject)
				req.ShotOptions[strings.TrimSpace(shot)] = option
			}

			style, err := ctx.apiClient().CreateStyle(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Style %s created (%s %q)\n",
				style.ID, style.Kind, style.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Kind, "kind", "preset", "Style source kind: preset or collection")
	cmd.Flags().StringVar(&req.Name, "name", "", "Style name")
	cmd.Flags().StringVar(&req.Background, "background", "", "Backdrop description")
	cmd.Flags().StringVar(&req.Lighting, "lighting", "", "Lighting description")
	cmd.Flags().StringVar(&req.Props, "props", "", "Scene props")
	cmd.Flags().StringVar(&req.Footwear, "footwear", "", "Footwear worn by subjects")
	cmd.Flags().StringVar(&req.PantsPhrase, "pants", "", "Pants phrase for modeled shots")
	cmd.Flags().StringVar(&req.Subject, "subject", "", "Default subject description")
	cmd.Flags().StringArrayVar(&shotSubjects, "shot-subject", nil, "Per-shot subject override, shot=subject (repeatable)")
	return cmd
}

func newStyleListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List style sources",
		RunE: func(cmd *cobra.Command, args []string) error {
			styles, err := ctx.apiClient().ListStyles(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, styles)
			}

			rows := make([][]string, 0, len(styles))
			for _, style := range styles {
				rows = append(rows, []string{style.ID, style.Kind, style.Name, style.Subject})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Kind", "Name", "Subject"},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}
