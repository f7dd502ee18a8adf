package main

import (
	"encoding/json"

	"github.com/spf13/cobra"
)

// writeJSON prints v to the command's stdout as indented JSON. Every
// listing command carries a --json flag that routes through here so
// scripted callers get stable output.
func writeJSON(cmd *cobra.Command, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	data = append(data, '\n')
	_, err = cmd.OutOrStdout().Write(data)
	return err
}
