package main

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "jetpredict-notifier",
	Short: "A CLI for managing the JetPredict notifier services",
	Long:  `JetPredict Notifier delivers timely push alerts for upcoming crash-game predictions.`,
}

func main() {

	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintf(os.Stderr, "Whoops. There was an error while executing your CLI '%s'", err)
		os.Exit(1)
	}
}
