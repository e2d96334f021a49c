package main

import (
	"io"
	"os"

	"github.com/rotisserie/eris"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/boazzati/AFH-Platform-sub001/internal/config"
)

var configCmd = &cobra.Command{
	Use:   "config",
	Short: "Inspect configuration",
}

var configShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Print the effective configuration with secrets redacted",
	RunE: func(cmd *cobra.Command, _ []string) error {
		return writeConfig(os.Stdout, cfg)
	},
}

var configValidateCmd = &cobra.Command{
	Use:   "validate",
	Short: "Validate the effective configuration",
	RunE: func(cmd *cobra.Command, _ []string) error {
		if err := cfg.Validate(); err != nil {
			return err
		}
		cmd.Println("configuration ok")
		return nil
	},
}

const redacted = "<redacted>"

func writeConfig(w io.Writer, c *config.Config) error {
	out := *c
	if out.Anthropic.Key != "" {
		out.Anthropic.Key = redacted
	}
	if out.Jina.Key != "" {
		out.Jina.Key = redacted
	}
	if out.Store.Driver == "postgres" && out.Store.DatabaseURL != "" {
		out.Store.DatabaseURL = redacted
	}
	if out.Alerts.WebhookURL != "" {
		out.Alerts.WebhookURL = redacted
	}

	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(out); err != nil {
		return eris.Wrap(err, "config: encode yaml")
	}
	return enc.Close()
}

func init() {
	configCmd.AddCommand(configShowCmd, configValidateCmd)
	rootCmd.AddCommand(configCmd)
}
