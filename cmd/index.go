package cmd

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/kozaktomas/face-attendance/internal/config"
	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/spf13/cobra"
)

var indexCmd = &cobra.Command{
	Use:   "index",
	Short: "Manage the persisted gallery HNSW index",
	Long: `Manage the gallery HNSW index used by the hnsw-v1 matcher.

The index is only consulted when MATCH_ALGORITHM=hnsw-v1. It is persisted to
GALLERY_INDEX_PATH (plus a .meta file) and rebuilt automatically when stale.`,
}

var indexRebuildCmd = &cobra.Command{
	Use:   "rebuild",
	Short: "Rebuild the gallery index from storage and save it",
	Args:  cobra.NoArgs,
	RunE:  runIndexRebuild,
}

var indexInfoCmd = &cobra.Command{
	Use:   "info",
	Short: "Show metadata of the persisted gallery index",
	Args:  cobra.NoArgs,
	RunE:  runIndexInfo,
}

func init() {
	rootCmd.AddCommand(indexCmd)
	indexCmd.AddCommand(indexRebuildCmd)
	indexCmd.AddCommand(indexInfoCmd)

	indexCmd.PersistentFlags().String("path", "", "Index file path (defaults to GALLERY_INDEX_PATH)")
}

func indexPath(cmd *cobra.Command, configured string) (string, error) {
	path := mustGetString(cmd, "path")
	if path == "" {
		path = configured
	}
	if path == "" {
		return "", errors.New("no index path: set GALLERY_INDEX_PATH or pass --path")
	}
	return path, nil
}

func runIndexRebuild(cmd *cobra.Command, args []string) error {
	ctx := context.Background()

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	path, err := indexPath(cmd, a.cfg.Match.IndexPath)
	if err != nil {
		return err
	}

	identities, err := a.store.All(ctx)
	if err != nil {
		return err
	}

	start := time.Now()
	idx := database.NewGalleryIndex()
	if err := idx.Build(identities); err != nil {
		return fmt.Errorf("build gallery index: %w", err)
	}
	if err := idx.Save(path); err != nil {
		return fmt.Errorf("save gallery index: %w", err)
	}
	if a.index != nil {
		a.index = idx
	}

	fmt.Printf("Gallery index rebuilt with %d identities in %s\n", idx.Count(), time.Since(start).Round(time.Millisecond))
	fmt.Printf("Saved to %s\n", path)
	return nil
}

func runIndexInfo(cmd *cobra.Command, args []string) error {
	path, err := indexPath(cmd, config.Load().Match.IndexPath)
	if err != nil {
		return err
	}

	meta, err := database.LoadGalleryIndexMetadata(path)
	if err != nil {
		return err
	}

	fmt.Printf("Index:       %s\n", path)
	fmt.Printf("Version:     %d\n", meta.Version)
	fmt.Printf("Identities:  %d\n", meta.IdentityCount)
	fmt.Printf("Max ID:      %d\n", meta.MaxIdentityID)
	fmt.Printf("Dimension:   %d\n", meta.Dim)
	fmt.Printf("Built:       %s\n", meta.BuildTime.Format(time.RFC3339))
	return nil
}
