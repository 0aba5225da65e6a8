package cmd

import (
	"fmt"
	"os"

	"github.com/facebuddy/facebuddy/internal/logger"
	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var rootCmd = &cobra.Command{
	Use:   "facebuddy",
	Short: "Recognize people by face and act on spoken requests",
	Long: `FaceBuddy keeps a gallery of registered faces, recognizes the largest
known face in a camera frame and turns a spoken request ("face buddy, send
him five dollars") into a payment or social connection for that person.`,
	SilenceUsage: true,
}

func Execute() {
	defer logger.Sync()
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().String("log-level", "", "Log level (debug, info, warn, error); overrides LOG_LEVEL")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()

	level := os.Getenv("LOG_LEVEL")
	if flagLevel, err := rootCmd.PersistentFlags().GetString("log-level"); err == nil && flagLevel != "" {
		level = flagLevel
	}
	if err := logger.Init(level, os.Getenv("LOG_FORMAT")); err != nil {
		fmt.Fprintf(os.Stderr, "Warning: logger setup failed: %v\n", err)
	}
}
