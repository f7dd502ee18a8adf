package main

import (
	"encoding/base64"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"strings"

	"github.com/spf13/cobra"

	"lookbook/internal/api"
)

func newGarmentCommand(ctx *commandContext) *cobra.Command {
	cmd := &cobra.Command{
		Use:   "garment",
		Short: "Manage the garment catalog",
	}
	cmd.AddCommand(newGarmentCreateCommand(ctx))
	cmd.AddCommand(newGarmentListCommand(ctx))
	cmd.AddCommand(newGarmentAnalyzeCommand(ctx))
	return cmd
}

func newGarmentCreateCommand(ctx *commandContext) *cobra.Command {
	var req api.CreateGarmentRequest

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Register a garment",
		RunE: func(cmd *cobra.Command, args []string) error {
			if strings.TrimSpace(req.Name) == "" {
				return errors.New("--name is required")
			}
			garment, err := ctx.apiClient().CreateGarment(cmd.Context(), req)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "Garment %s created (%s)\n", garment.ID, garment.Name)
			return nil
		},
	}

	cmd.Flags().StringVar(&req.Name, "name", "", "Product name")
	cmd.Flags().StringVar(&req.Category, "category", "", "Garment category (jacket, hoodie, chino pants, ...)")
	cmd.Flags().StringVar(&req.Color, "color", "", "Dominant color")
	cmd.Flags().StringVar(&req.ClosureDescription, "closure", "", "Closure description (full zip front, button placket, ...)")
	cmd.Flags().StringVar(&req.FabricTexture, "fabric", "", "Fabric texture (suede, velvet, corduroy, ...)")
	cmd.Flags().BoolVar(&req.HasLogo, "logo", false, "Garment carries a visible brand logo")
	cmd.Flags().BoolVar(&req.Analyzed, "analyzed", false, "Mark the garment as analysis-complete")
	return cmd
}

func newGarmentListCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool

	cmd := &cobra.Command{
		Use:   "list",
		Short: "List garments",
		RunE: func(cmd *cobra.Command, args []string) error {
			garments, err := ctx.apiClient().ListGarments(cmd.Context())
			if err != nil {
				return err
			}
			if asJSON {
				return writeJSON(cmd, garments)
			}

			rows := make([][]string, 0, len(garments))
			for _, garment := range garments {
				analyzed := "no"
				if garment.Analyzed {
					analyzed = "yes"
				}
				rows = append(rows, []string{
					garment.ID, garment.Name, garment.Category, garment.Color, analyzed,
				})
			}
			fmt.Fprintln(cmd.OutOrStdout(), renderTable(
				[]string{"ID", "Name", "Category", "Color", "Analyzed"},
				rows,
			))
			return nil
		},
	}

	cmd.Flags().BoolVar(&asJSON, "json", false, "Emit JSON instead of a table")
	return cmd
}

func newGarmentAnalyzeCommand(ctx *commandContext) *cobra.Command {
	var imagePath string

	cmd := &cobra.Command{
		Use:   "analyze <garment-id>",
		Short: "Extract garment attributes from a product photo",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			path := strings.TrimSpace(imagePath)
			if path == "" {
				return errors.New("--image is required")
			}
			data, err := os.ReadFile(path)
			if err != nil {
				return fmt.Errorf("read image: %w", err)
			}
			garment, err := ctx.apiClient().AnalyzeGarment(cmd.Context(), args[0], api.AnalyzeGarmentRequest{
				ImageBase64: base64.StdEncoding.EncodeToString(data),
				MimeType:    imageMimeType(path),
			})
			if err != nil {
				return err
			}
			out := cmd.OutOrStdout()
			fmt.Fprintf(out, "Garment %s analyzed\n", garment.ID)
			fmt.Fprintf(out, "  name:     %s\n", garment.Name)
			fmt.Fprintf(out, "  category: %s\n", garment.Category)
			fmt.Fprintf(out, "  color:    %s\n", garment.Color)
			fmt.Fprintf(out, "  closure:  %s\n", garment.ClosureDescription)
			fmt.Fprintf(out, "  fabric:   %s\n", garment.FabricTexture)
			fmt.Fprintf(out, "  logo:     %t\n", garment.HasLogo)
			return nil
		},
	}

	cmd.Flags().StringVar(&imagePath, "image", "", "Path to the product photo")
	return cmd
}

func imageMimeType(path string) string {
	switch strings.ToLower(filepath.Ext(path)) {
	case ".jpg", ".jpeg":
		return "image/jpeg"
	case ".webp":
		return "image/webp"
	default:
		return "image/png"
	}
}
