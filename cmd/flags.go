package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"github.com/kozaktomas/face-attendance/internal/config"
)

// mustGet reads a flag with the given pflag getter or panics.
// Flags are defined in init(), so an error here is a programming bug.
func mustGet[T any](name string, get func(string) (T, error)) T {
	val, err := get(name)
	if err != nil {
		panic(fmt.Sprintf("flag error for --%s: %v", name, err))
	}
	return val
}

func mustGetBool(cmd *cobra.Command, name string) bool {
	return mustGet(name, cmd.Flags().GetBool)
}

func mustGetInt(cmd *cobra.Command, name string) int {
	return mustGet(name, cmd.Flags().GetInt)
}

func mustGetString(cmd *cobra.Command, name string) string {
	return mustGet(name, cmd.Flags().GetString)
}

func mustGetFloat64(cmd *cobra.Command, name string) float64 {
	return mustGet(name, cmd.Flags().GetFloat64)
}

func mustGetStringSlice(cmd *cobra.Command, name string) []string {
	return mustGet(name, cmd.Flags().GetStringSlice)
}

// addMatchFlags registers flags that override the matcher configuration.
func addMatchFlags(cmd *cobra.Command) {
	cmd.Flags().Float64("threshold", 0, "Match threshold, accept when distance < threshold (overrides MATCH_THRESHOLD)")
	cmd.Flags().String("algorithm", "", "Matcher algorithm: exact-v1 or hnsw-v1 (overrides MATCH_ALGORITHM)")
}

// matchOverrides applies the match flags the user actually set.
func matchOverrides(cmd *cobra.Command) func(*config.Config) {
	return func(cfg *config.Config) {
		if cmd.Flags().Changed("threshold") {
			cfg.Match.Threshold = mustGetFloat64(cmd, "threshold")
		}
		if cmd.Flags().Changed("algorithm") {
			cfg.Match.Algorithm = mustGetString(cmd, "algorithm")
		}
	}
}
