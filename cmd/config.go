package cmd

import (
	"bufio"
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/fatih/color"
	"github.com/spf13/cobra"

	"github.com/stuagano/litellm/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Manage configuration",
	Long:  `Manage the LLM gateway configuration.`,
}

var configInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Initialize configuration interactively",
	Long:  `Initialize configuration by prompting for provider details.`,
	RunE:  runConfigInit,
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show current configuration",
	Long:  `Display the current configuration with API keys redacted.`,
	RunE:  runConfigShow,
}

var configPathCmd = &cobra.Command{
	Use:   "path",
	Short: "Print the configuration file path",
	Run: func(_ *cobra.Command, _ []string) {
		fmt.Println(cfgMgr.GetPath())
	},
}

func init() {
	configCmd.AddCommand(configInitCmd)
	configCmd.AddCommand(configShowCmd)
	configCmd.AddCommand(configPathCmd)
}

func runConfigInit(_ *cobra.Command, _ []string) error {
	color.Blue("%s configuration setup", AppName)
	color.Yellow("Follow the prompts to configure your LLM providers.")

	reader := bufio.NewReader(os.Stdin)

	fmt.Print("\nProvider name (openai, anthropic, gemini, vertex): ")
	providerName, _ := reader.ReadString('\n')
	providerName = strings.TrimSpace(providerName)

	fmt.Print("API key: ")
	apiKey, _ := reader.ReadString('\n')
	apiKey = strings.TrimSpace(apiKey)

	fmt.Print("API base URL (blank for provider default): ")
	baseURL, _ := reader.ReadString('\n')
	baseURL = strings.TrimSpace(baseURL)

	provider := config.Provider{
		Name:    providerName,
		APIKey:  apiKey,
		APIBase: baseURL,
	}

	if providerName == "vertex" {
		fmt.Print("GCP project: ")
		project, _ := reader.ReadString('\n')
		provider.Project = strings.TrimSpace(project)

		fmt.Print("GCP region: ")
		region, _ := reader.ReadString('\n')
		provider.Region = strings.TrimSpace(region)
	}

	fmt.Print("Gateway API key (optional, for authentication): ")
	gatewayKey, _ := reader.ReadString('\n')
	gatewayKey = strings.TrimSpace(gatewayKey)

	cfg := &config.Config{
		Host:      config.DefaultHost,
		Port:      config.DefaultPort,
		APIKey:    gatewayKey,
		Providers: []config.Provider{provider},
	}

	if err := cfgMgr.Save(cfg); err != nil {
		return err
	}

	color.Green("Configuration written to %s", cfgMgr.GetPath())

	return nil
}

func runConfigShow(_ *cobra.Command, _ []string) error {
	cfg := cfgMgr.Get()

	// Redact secrets before printing
	redacted := *cfg
	if redacted.APIKey != "" {
		redacted.APIKey = "****"
	}

	redacted.Providers = make([]config.Provider, len(cfg.Providers))
	copy(redacted.Providers, cfg.Providers)

	for i := range redacted.Providers {
		if redacted.Providers[i].APIKey != "" {
			redacted.Providers[i].APIKey = "****"
		}
	}

	data, err := json.MarshalIndent(redacted, "", "  ")
	if err != nil {
		return err
	}

	fmt.Println(string(data))

	return nil
}
