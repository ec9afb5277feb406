package cmd

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/kozaktomas/face-attendance/internal/database"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/spf13/cobra"
)

var enrollCmd = &cobra.Command{
	Use:   "enroll <name>",
	Short: "Enroll a new identity into the gallery",
	Long: `Enroll a new identity with one reference face embedding.

The embedding is given directly as comma-separated numbers, or extracted from
a photo by the embedding server. A photo must contain exactly one face.

Examples:
  # Enroll from a precomputed embedding
  face-attendance enroll "Jane Doe" --embedding 0.12,-0.03,0.88

  # Enroll from a photo
  face-attendance enroll "Jane Doe" --image jane.jpg`,
	Args: cobra.ExactArgs(1),
	RunE: runEnroll,
}

func init() {
	rootCmd.AddCommand(enrollCmd)

	enrollCmd.Flags().String("embedding", "", "Reference embedding as comma-separated floats")
	enrollCmd.Flags().String("image", "", "Photo to extract the reference embedding from")
	enrollCmd.Flags().Bool("json", false, "Output as JSON")
}

// identityOutput is the CLI view of an enrolled identity.
type identityOutput struct {
	ID          int64  `json:"id"`
	DisplayName string `json:"display_name"`
	Dim         int    `json:"dim"`
	ImageFile   string `json:"image_file,omitempty"`
	CreatedAt   string `json:"created_at"`
}

func newIdentityOutput(identity database.Identity) identityOutput {
	return identityOutput{
		ID:          identity.ID,
		DisplayName: identity.DisplayName,
		Dim:         identity.Dim(),
		ImageFile:   identity.ImageFile,
		CreatedAt:   identity.CreatedAt.UTC().Format("2006-01-02 15:04:05"),
	}
}

func runEnroll(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	name := args[0]
	embeddingStr := mustGetString(cmd, "embedding")
	imagePath := mustGetString(cmd, "image")
	jsonOutput := mustGetBool(cmd, "json")

	if (embeddingStr == "") == (imagePath == "") {
		return errors.New("exactly one of --embedding or --image is required")
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	var ref embedding.Vector
	var imageFile string
	if embeddingStr != "" {
		ref, err = embedding.Parse(embeddingStr)
		if err != nil {
			return err
		}
	} else {
		ref, err = singleFaceEmbedding(ctx, a, imagePath)
		if err != nil {
			return err
		}
		imageFile = filepath.Base(imagePath)
	}

	identity, err := a.store.EnrollWithImage(ctx, name, ref, imageFile)
	if err != nil {
		return fmt.Errorf("enroll %q: %w", name, err)
	}

	if jsonOutput {
		return printJSON(newIdentityOutput(identity))
	}
	fmt.Printf("Enrolled %s as identity %d (%d dimensions)\n", identity.DisplayName, identity.ID, identity.Dim())
	return nil
}

// singleFaceEmbedding reads a photo and returns the embedding of its only face.
func singleFaceEmbedding(ctx context.Context, a *app, path string) (embedding.Vector, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read image: %w", err)
	}
	faces, err := a.extractor.FaceEmbeddings(ctx, data)
	if err != nil {
		return nil, err
	}
	switch len(faces) {
	case 0:
		return nil, fmt.Errorf("no face detected in %s", path)
	case 1:
		return faces[0], nil
	default:
		return nil, fmt.Errorf("%d faces detected in %s, expected exactly one", len(faces), path)
	}
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}
