package cmd

import (
	"fmt"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stuagano/litellm/internal/providers"
)

var providersCmd = &cobra.Command{
	Use:   "providers",
	Short: "List providers and their capabilities",
	Long:  `Display the capability table: which operations each built-in provider supports.`,
	RunE:  runProviders,
}

func runProviders(_ *cobra.Command, _ []string) error {
	registry := providers.NewRegistry()
	if err := registry.Initialize(); err != nil {
		return err
	}

	color.Blue("Registered providers:")

	for _, desc := range registry.List() {
		ops := make([]string, 0, len(desc.Operations))
		for _, op := range desc.Operations {
			ops = append(ops, string(op))
		}

		streaming := "no"
		if desc.Streaming {
			streaming = "yes"
		}

		fmt.Printf("  %-12s operations: %-45s streaming: %-4s credentials: %s\n",
			desc.ID, strings.Join(ops, ", "), streaming, desc.CredentialShape)
	}

	return nil
}
