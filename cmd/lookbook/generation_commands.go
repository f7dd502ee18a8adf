package main

import (
	"errors"
	"fmt"
	"os"
	"strconv"
	"strings"

	"github.com/spf13/cobra"

	"lookbook/internal/api"
	"lookbook/internal/prompt"
)

func newGenerateCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "generate",
		Short: "Manage photoshoot generation runs",
	}
	cmd.AddCommand(newGenerateCreateCommand(ctx))
	cmd.AddCommand(newGenerateListCommand(ctx))
	cmd.AddCommand(newGenerateShowCommand(ctx))
	cmd.AddCommand(newGenerateBuildCommand(ctx))
	cmd.AddCommand(newGenerateEditCommand(ctx))
	cmd.AddCommand(newGenerateExecuteCommand(ctx))
	cmd.AddCommand(newGenerateRetryCommand(ctx))
	cmd.AddCommand(newGenerateResetCommand(ctx))
	cmd.AddCommand(newGenerateProgressCommand(ctx))
	cmd.AddCommand(newGenerateDownloadCommand(ctx))
	return cmd
}

func newGenerateCreateCommand(ctx *commandContext) *cobra.Command {
	var req api.CreateGenerationRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a run for a garment and one style source",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(req.GarmentID) == "" {
				return errors.New("--garment is required")
			}
			generation, err := ctx.apiClient().CreateGeneration(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generation %s created\n", generation.ID)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.GarmentID, "garment", "", "Garment id")
	cmd.Flags().StringVar(&req.PresetID, "preset", "", "Preset style id")
	cmd.Flags().StringVar(&req.CollectionID, "collection", "", "Collection style id")
	return cmd
}

func newGenerateListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List generation runs",
		RunE: func(cmd *cobra.Command, args []string) error {
			generations, err := ctx.apiClient().ListGenerations(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, generations)
			}

			rows := make([][]string, 0, len(generations))
			for _, generation := range generations {
				rows = append(rows, []string{
					generation.ID,
					generation.Status,
					generation.CurrentStep,
					fmt.Sprintf("%d%%", generation.ProgressPercent),
					generation.CreatedAt.Local().Format("2006-01-02 15:04"),
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Status", "Step", "Progress", "Created"},
				rows,
				3,
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newGenerateShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "show <generation-id>",
		Short: "Show a run, its prompts, and its visuals",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			generation, err := ctx.apiClient().GetGeneration(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, generation)
			}
			printGeneration(cmd, generation)
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func newGenerateBuildCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "build <generation-id>",
		Short: "Synthesize the six shot prompts",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			generation, err := ctx.apiClient().BuildPrompts(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Built %d prompts for generation %s\n", len(generation.Prompts), generation.ID)
			for _, shot := range shotOrder(generation) {
				fmt.Fprintf(out, "  %-16s %s\n", shot, truncate(generation.Prompts[shot].Prompt, 100))
			}
			return nil
		},
	}
	return cmd
}

func newGenerateEditCommand(ctx *commandContext) *cobra.Command {
	var promptText string
	var negativeText string
	var displayName string

	cmd := &cobra.Command{
		Use:   "edit <generation-id> <shot-type>",
		Short: "Edit one shot's prompt before execution",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			edit := api.PromptEditPayload{}
			if cmd.Flags().Changed("prompt") {
				edit.Prompt = &promptText
			}
			if cmd.Flags().Changed("negative") {
				edit.NegativePrompt = &negativeText
			}
			if cmd.Flags().Changed("name") {
				edit.DisplayName = &displayName
			}
			if edit.Prompt == nil && edit.NegativePrompt == nil && edit.DisplayName == nil {
				return errors.New("nothing to edit, pass --prompt, --negative, or --name")
			}

			generation, err := ctx.apiClient().SavePrompts(cmd.Context(), args[0], api.SavePromptsRequest{
				Edits: map[string]api.PromptEditPayload{args[1]: edit},
			})
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved %s, step is now %s\n", args[1], generation.CurrentStep)
			return nil
		},
	}

	cmd.Flags().StringVar(&promptText, "prompt", "", "Replacement prompt text")
	cmd.Flags().StringVar(&negativeText, "negative", "", "Replacement negative prompt text")
	cmd.Flags().StringVar(&displayName, "name", "", "Replacement display name")
	return cmd
}

func newGenerateExecuteCommand(ctx *commandContext) *cobra.Command {
	var req api.ExecuteRequest

	cmd := &cobra.Command{
		Use:   "execute <generation-id>",
		Short: "Queue the run for rendering",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			generation, err := ctx.apiClient().Execute(cmd.Context(), args[0], req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generation %s queued with %d shots\n",
				generation.ID, len(generation.Visuals))
			return nil
		},
	}

	cmd.Flags().StringArrayVar(&req.Shots, "shot", nil, "Shot type to render (repeatable, default all six)")
	cmd.Flags().StringVar(&req.Model, "model", "", "Model override for this run")
	return cmd
}

func newGenerateRetryCommand(ctx *commandContext) *cobra.Command {
	var model string

	cmd := &cobra.Command{
		Use:   "retry <generation-id> <visual-index>",
		Short: "Re-render a single failed visual",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			index, err := strconv.Atoi(args[1])
			if err != nil {
				return fmt.Errorf("invalid visual index %q", args[1])
			}
			generation, err := ctx.apiClient().RetryVisual(cmd.Context(), args[0], index,
				api.RetryVisualRequest{Model: model})
			if err != nil {
				return err
			}
			visual := generation.Visuals[index]
			fmt.Fprintf(cmd.OutOrStdout(), "Visual %d (%s) is now %s\n", index, visual.ShotType, visual.Status)
			return nil
		},
	}

	cmd.Flags().StringVar(&model, "model", "", "Model override for this shot")
	return cmd
}

func newGenerateResetCommand(ctx *commandContext) *cobra.Command {
	return &cobra.Command{
		Use:   "reset <generation-id>",
		Short: "Clear render results and return the run to an editable state",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			generation, err := ctx.apiClient().Reset(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Generation %s reset to step %s\n",
				generation.ID, generation.CurrentStep)
			return nil
		},
	}
}

func newGenerateProgressCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "progress <generation-id>",
		Short: "Show run progress",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			progress, err := ctx.apiClient().Progress(cmd.Context(), args[0])
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, progress)
			}

			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "%s (%s) %d%%, %d/%d visuals completed\n",
				progress.Status, progress.CurrentStep, progress.ProgressPercent,
				progress.CompletedCount, progress.TotalCount)
			for _, visual := range progress.Visuals {
				line := fmt.Sprintf("  %-16s %s", visual.ShotType, visual.Status)
				if visual.Error != "" {
					line += " (" + visual.Error + ")"
				}
				fmt.Fprintln(out, line)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of text")
	return cmd
}

func newGenerateDownloadCommand(ctx *commandContext) *cobra.Command {
	var outputPath string

	cmd := &cobra.Command{
		Use:   "download <generation-id>",
		Short: "Download the finished bundle as a zip archive",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			target := strings.TrimSpace(outputPath)
			if target == "" {
				target = fmt.Sprintf("lookbook-%s.zip", args[0])
			}
			file, err := os.Create(target)
			if err != nil {
				return fmt.Errorf("create %s: %w", target, err)
			}
			if err := ctx.apiClient().Download(cmd.Context(), args[0], file); err != nil {
				file.Close()
				os.Remove(target)
				return err
			}
			if err := file.Close(); err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Saved bundle to %s\n", target)
			return nil
		},
	}

	cmd.Flags().StringVarP(&outputPath, "output", "o", "", "Destination path for the zip archive")
	return cmd
}

func printGeneration(cmd *cobra.Command, generation *api.GenerationView) {
	out := cmd.OutOrStdout()
	fmt.Fprintf(out, "Generation %s\n", generation.ID)
	fmt.Fprintf(out, "  status:   %s (%s) %d%%\n",
		generation.Status, generation.CurrentStep, generation.ProgressPercent)
	fmt.Fprintf(out, "  garment:  %s\n", generation.GarmentID)
	if generation.PresetID != "" {
		fmt.Fprintf(out, "  preset:   %s\n", generation.PresetID)
	}
	if generation.CollectionID != "" {
		fmt.Fprintf(out, "  collection: %s\n", generation.CollectionID)
	}
	if len(generation.Prompts) > 0 {
		fmt.Fprintln(out, "  prompts:")
		for _, shot := range shotOrder(generation) {
			fmt.Fprintf(out, "    %-16s %s\n", shot, truncate(generation.Prompts[shot].Prompt, 90))
		}
	}
	if len(generation.Visuals) > 0 {
		fmt.Fprintln(out, "  visuals:")
		for index, visual := range generation.Visuals {
			line := fmt.Sprintf("    [%d] %-16s %s", index, visual.ShotType, visual.Status)
			if visual.ImageURL != "" {
				line += " " + visual.ImageURL
			}
			if visual.Error != "" {
				line += " (" + visual.Error + ")"
			}
			fmt.Fprintln(out, line)
		}
	}
}

// shotOrder returns the run's prompt keys in the canonical shot order.
func shotOrder(generation *api.GenerationView) []string {
	ordered := make([]string, 0, len(generation.Prompts))
	for _, shot := range prompt.AllShots() {
		if _, ok := generation.Prompts[string(shot)]; ok {
			ordered = append(ordered, string(shot))
		}
	}
	for shot := range generation.Prompts {
		found := false
		for _, known := range ordered {
			if known == shot {
				found = true
				break
			}
		}
		if !found {
			ordered = append(ordered, shot)
		}
	}
	return ordered
}

func truncate(s string, limit int) string {
	if len(s) <= limit {
		return s
	}
	return s[:limit-3] + "..."
}
