package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/flowcraft/orchestrator/internal/cli"
)

var rootCmd = &cobra.Command{Use: "engine"}

func main() {
	cli.SetupCLI(rootCmd)
	if err := rootCmd.Execute(); err != nil {
		fmt.Println(err)
		os.Exit(1)
	}
}
