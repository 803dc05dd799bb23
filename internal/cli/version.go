package cli

import (
	"fmt"
	"runtime"

	"github.com/spf13/cobra"

	"github.com/watchfire-io/agentwatch/internal/buildinfo"
	"github.com/watchfire-io/agentwatch/internal/store"
)

var versionCmd = &cobra.Command{
	Use:     "version",
	Aliases: []string{"v"},
	Short:   "Show version information",
	Run: func(cmd *cobra.Command, args []string) {
		fmt.Printf("%s %s (%s)\n", paint(styleBrand, "agentwatch"), paint(styleVersion, buildinfo.Version), buildinfo.Codename)
		fmt.Printf("  %s %s\n", paint(styleLabel, "Commit:    "), buildinfo.CommitHash)
		fmt.Printf("  %s %s\n", paint(styleLabel, "Built:     "), buildinfo.BuildDate)
		fmt.Printf("  %s %d\n", paint(styleLabel, "Schema:    "), store.SchemaVersion())
		fmt.Printf("  %s %s/%s\n", paint(styleLabel, "OS/Arch:   "), runtime.GOOS, runtime.GOARCH)
		fmt.Printf("  %s %s\n", paint(styleLabel, "Go:        "), runtime.Version())
	},
}
