package main

import (
	"bufio"
	"fmt"
	"os"
	"strings"

	"github.com/haasonsaas/pilot/internal/assistant/config"
	"github.com/haasonsaas/pilot/internal/profile"
	"github.com/spf13/cobra"
)

// buildConfigureCmd creates the "configure" command: interactive
// provider/model/credentials setup writing a profile config.
func buildConfigureCmd() *cobra.Command {
	var (
		providerType   string
		host           string
		apiKey         string
		model          string
		maxTokens      int
		nonInteractive bool
		setActive      bool
	)

	cmd := &cobra.Command{
		Use:   "configure",
		Short: "Interactively configure a provider profile",
		RunE: func(cmd *cobra.Command, args []string) error {
			if !nonInteractive {
				reader := bufio.NewReader(cmd.InOrStdin())
				providerType = promptString(reader, "Provider type (openai/anthropic/ollama/databricks)", providerType)
				host = promptString(reader, "Host (blank for provider default)", host)
				model = promptString(reader, "Model", model)
				if providerType != "databricks" {
					apiKey = promptString(reader, "API key (blank to read from GOOSE_PROVIDER__API_KEY)", apiKey)
				}
			}

			providerType = strings.ToLower(strings.TrimSpace(providerType))
			switch providerType {
			case "openai", "anthropic", "ollama", "databricks":
			default:
				return userError("unknown provider type %q (want one of openai, anthropic, ollama, databricks)", providerType)
			}
			if strings.TrimSpace(model) == "" {
				return userError("model is required")
			}

			cfg := &config.Config{
				Provider: config.ProviderConfig{
					Type:      providerType,
					Host:      host,
					APIKey:    apiKey,
					Model:     model,
					MaxTokens: maxTokens,
				},
			}

			path := resolveConfigPath()
			if err := config.Save(path, cfg); err != nil {
				return userError("writing config: %v", err)
			}
			if setActive && strings.TrimSpace(profileName) != "" {
				if err := profile.WriteActiveProfile(profileName); err != nil {
					return userError("setting active profile: %v", err)
				}
			}

			fmt.Fprintf(cmd.OutOrStdout(), "Profile config written: %s\n", path)
			return nil
		},
	}

	cmd.Flags().StringVar(&providerType, "type", "anthropic", "Provider type (openai/anthropic/ollama/databricks)")
	cmd.Flags().StringVar(&host, "host", "", "Provider host override")
	cmd.Flags().StringVar(&apiKey, "api-key", "", "Provider API key")
	cmd.Flags().StringVar(&model, "model", "", "Model identifier")
	cmd.Flags().IntVar(&maxTokens, "max-tokens", 4096, "Max output tokens (Anthropic)")
	cmd.Flags().BoolVar(&nonInteractive, "non-interactive", false, "Disable prompts and use flags only")
	cmd.Flags().BoolVar(&setActive, "use", true, "Set this profile as active after writing it")

	return cmd
}

func promptString(reader *bufio.Reader, label string, defaultValue string) string {
	if defaultValue != "" {
		fmt.Fprintf(os.Stdout, "%s [%s]: ", label, defaultValue)
	} else {
		fmt.Fprintf(os.Stdout, "%s: ", label)
	}
	text, _ := reader.ReadString('\n')
	text = strings.TrimSpace(text)
	if text == "" {
		return defaultValue
	}
	return text
}
