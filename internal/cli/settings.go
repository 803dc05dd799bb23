package cli

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/watchfire-io/agentwatch/internal/config"
	"github.com/watchfire-io/agentwatch/internal/models"
)

var settingsCmd = &cobra.Command{
	Use:     "settings",
	Aliases: []string{"config"},
	Short:   "Show the effective settings",
	Long: `Show the settings in effect after defaults and environment overrides
(` + config.ClaudePathEnv + `, ` + config.RolesDirEnv + `, ` + config.HomeEnv + `).`,
	Args: cobra.NoArgs,
	RunE: runSettingsShow,
}

var settingsInitCmd = &cobra.Command{
	Use:   "init",
	Short: "Write a settings file with default values",
	Args:  cobra.NoArgs,
	RunE:  runSettingsInit,
}

func init() {
	settingsCmd.AddCommand(settingsInitCmd)
}

func runSettingsShow(cmd *cobra.Command, args []string) error {
	path, err := config.GlobalSettingsFile()
	if err != nil {
		return err
	}
	settings, err := config.LoadSettings()
	if err != nil {
		return err
	}

	source := "defaults"
	if config.FileExists(path) {
		source = path
	}
	fmt.Printf("%s %s\n\n", paint(styleLabel, "# source:"), source)

	data, err := yaml.Marshal(settings)
	if err != nil {
		return err
	}
	_, err = os.Stdout.Write(data)
	return err
}

func runSettingsInit(cmd *cobra.Command, args []string) error {
	path, err := config.GlobalSettingsFile()
	if err != nil {
		return err
	}
	if config.FileExists(path) {
		fmt.Printf("Settings already exist at %s.\n", path)
		return nil
	}
	if err := config.EnsureGlobalDir(); err != nil {
		return err
	}
	if err := config.SaveSettings(models.NewSettings()); err != nil {
		return fmt.Errorf("failed to write settings: %w", err)
	}
	fmt.Printf("%s %s\n", paint(styleSuccess, "Wrote"), path)
	return nil
}
