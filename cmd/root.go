package cmd

import (
	"fmt"
	"os"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"
)

var driverOverride string

var rootCmd = &cobra.Command{
	Use:   "face-attendance",
	Short: "Face recognition attendance tracking",
	Long: `Face Attendance matches face embeddings against a gallery of enrolled
identities and records an attendance event for every recognized face.

Embeddings are produced by an external embedding server; this tool stores
the gallery, decides identity and keeps the attendance log.`,
	SilenceUsage: true,
}

func Execute() {
	if err := rootCmd.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func init() {
	cobra.OnInitialize(initConfig)
	rootCmd.PersistentFlags().StringVar(&driverOverride, "driver", "",
		"Storage backend: postgres, mariadb or memory (overrides DATABASE_DRIVER)")
}

func initConfig() {
	// .env file is optional, don't fail if not found
	_ = godotenv.Load()
}
