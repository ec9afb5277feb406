package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/schollz/progressbar/v3"
	"github.com/spf13/cobra"
	"gopkg.in/yaml.v3"

	"github.com/kozaktomas/face-attendance/internal/embedding"
)

var importCmd = &cobra.Command{
	Use:   "import <manifest.yaml>",
	Short: "Bulk enroll identities from a YAML manifest",
	Long: `Bulk enroll identities listed in a YAML manifest.

Each entry has a name and either an embedding or an image path. Image paths
are resolved relative to the manifest and sent to the embedding server.

Manifest format:
  identities:
    - name: Jane Doe
      embedding: [0.12, -0.03, 0.88]
    - name: John Roe
      image: photos/john.jpg

Entries that fail are reported and skipped unless --strict is set.`,
	Args: cobra.ExactArgs(1),
	RunE: runImport,
}

func init() {
	rootCmd.AddCommand(importCmd)

	importCmd.Flags().Bool("strict", false, "Stop at the first entry that fails")
	importCmd.Flags().Bool("dry-run", false, "Validate the manifest without enrolling")
}

// Manifest is the bulk enrollment file format.
type Manifest struct {
	Identities []ManifestEntry `yaml:"identities"`
}

// ManifestEntry is one identity to enroll.
type ManifestEntry struct {
	Name      string    `yaml:"name"`
	Embedding []float32 `yaml:"embedding,omitempty"`
	Image     string    `yaml:"image,omitempty"`
}

// loadManifest parses a manifest file and resolves image paths against its directory.
func loadManifest(path string) (*Manifest, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read manifest: %w", err)
	}

	var m Manifest
	if err := yaml.Unmarshal(data, &m); err != nil {
		return nil, fmt.Errorf("failed to parse manifest: %w", err)
	}
	if len(m.Identities) == 0 {
		return nil, errors.New("manifest contains no identities")
	}

	dir := filepath.Dir(path)
	for i := range m.Identities {
		e := &m.Identities[i]
		if e.Name == "" {
			return nil, fmt.Errorf("entry %d: name is required", i+1)
		}
		if (len(e.Embedding) == 0) == (e.Image == "") {
			return nil, fmt.Errorf("entry %d (%s): exactly one of embedding or image is required", i+1, e.Name)
		}
		if e.Image != "" && !filepath.IsAbs(e.Image) {
			e.Image = filepath.Join(dir, e.Image)
		}
	}
	return &m, nil
}

func runImport(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	strict := mustGetBool(cmd, "strict")
	dryRun := mustGetBool(cmd, "dry-run")

	manifest, err := loadManifest(args[0])
	if err != nil {
		return err
	}
	fmt.Printf("Manifest lists %d identities\n", len(manifest.Identities))
	if dryRun {
		fmt.Println("[DRY RUN] Manifest is valid, nothing enrolled")
		return nil
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	bar := progressbar.NewOptions(len(manifest.Identities),
		progressbar.OptionSetDescription("Enrolling"),
		progressbar.OptionShowCount(),
		progressbar.OptionShowIts(),
		progressbar.OptionSetItsString("identities"),
		progressbar.OptionShowElapsedTimeOnFinish(),
		progressbar.OptionFullWidth(),
		progressbar.OptionSetTheme(progressbar.Theme{
			Saucer:        "=",
			SaucerHead:    ">",
			SaucerPadding: " ",
			BarStart:      "[",
			BarEnd:        "]",
		}),
	)

	var enrolled int
	var failures []string
	for _, entry := range manifest.Identities {
		err := importEntry(ctx, a, entry)
		bar.Add(1)
		if err != nil {
			if strict {
				fmt.Println()
				return fmt.Errorf("import %s: %w", entry.Name, err)
			}
			failures = append(failures, fmt.Sprintf("%s: %v", entry.Name, err))
			continue
		}
		enrolled++
	}
	fmt.Println()

	fmt.Printf("Enrolled %d of %d identities\n", enrolled, len(manifest.Identities))
	if len(failures) > 0 {
		fmt.Printf("Failed (%d):\n", len(failures))
		for _, f := range failures {
			fmt.Printf("  - %s\n", f)
		}
	}
	return nil
}

func importEntry(ctx context.Context, a *app, entry ManifestEntry) error {
	if entry.Image == "" {
		_, err := a.store.Enroll(ctx, entry.Name, embedding.Vector(entry.Embedding))
		return err
	}
	ref, err := singleFaceEmbedding(ctx, a, entry.Image)
	if err != nil {
		return err
	}
	_, err = a.store.EnrollWithImage(ctx, entry.Name, ref, filepath.Base(entry.Image))
	return err
}
