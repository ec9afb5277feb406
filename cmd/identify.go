package cmd

import (
	"context"
	"errors"
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"
	"time"

	"github.com/kozaktomas/face-attendance/internal/constants"
	"github.com/kozaktomas/face-attendance/internal/embedding"
	"github.com/kozaktomas/face-attendance/internal/matcher"
	"github.com/kozaktomas/face-attendance/internal/recognition"
	"github.com/spf13/cobra"
)

var identifyCmd = &cobra.Command{
	Use:   "identify",
	Short: "Identify faces against the enrolled gallery",
	Long: `Run a recognition pass on one embedding or on every face found in a photo.

By default nothing is written. Use --record to store attendance events for
recognized faces, exactly as the HTTP recognize endpoint does.

Examples:
  # Identify a precomputed embedding
  face-attendance identify --embedding 0.12,-0.03,0.88

  # Take attendance from a photo
  face-attendance identify --image class.jpg --record

  # Show the five nearest identities
  face-attendance identify --embedding 0.12,-0.03,0.88 --top

  # Show the ten nearest identities
  face-attendance identify --embedding 0.12,-0.03,0.88 --top=10`,
	Args: cobra.NoArgs,
	RunE: runIdentify,
}

func init() {
	rootCmd.AddCommand(identifyCmd)

	identifyCmd.Flags().String("embedding", "", "Query embedding as comma-separated floats")
	identifyCmd.Flags().String("image", "", "Photo to extract query embeddings from")
	identifyCmd.Flags().Bool("record", false, "Record attendance for recognized faces")
	identifyCmd.Flags().Int("top", 0, "Also list the N nearest identities per face")
	identifyCmd.Flags().Lookup("top").NoOptDefVal = strconv.Itoa(constants.DefaultTopK)
	identifyCmd.Flags().Bool("json", false, "Output as JSON")
	addMatchFlags(identifyCmd)
}

// identifyOutput is the JSON output of the identify command.
type identifyOutput struct {
	Pass      recognition.Pass  `json:"pass"`
	Threshold float64           `json:"threshold"`
	Nearest   [][]candidateJSON `json:"nearest,omitempty"`
}

type candidateJSON struct {
	IdentityID int64   `json:"identity_id"`
	Name       string  `json:"name"`
	Distance   float64 `json:"distance"`
}

func runIdentify(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	embeddingStr := mustGetString(cmd, "embedding")
	imagePath := mustGetString(cmd, "image")
	record := mustGetBool(cmd, "record")
	top := mustGetInt(cmd, "top")
	jsonOutput := mustGetBool(cmd, "json")

	if (embeddingStr == "") == (imagePath == "") {
		return errors.New("exactly one of --embedding or --image is required")
	}

	a, err := openApp(ctx, matchOverrides(cmd))
	if err != nil {
		return err
	}
	defer a.Close()

	var queries []embedding.Vector
	if embeddingStr != "" {
		q, err := embedding.Parse(embeddingStr)
		if err != nil {
			return err
		}
		queries = []embedding.Vector{q}
	} else {
		data, err := os.ReadFile(imagePath)
		if err != nil {
			return fmt.Errorf("failed to read image: %w", err)
		}
		queries, err = a.extractor.FaceEmbeddings(ctx, data)
		if err != nil {
			return err
		}
	}

	var pass recognition.Pass
	if record {
		pass, err = a.service.Recognize(ctx, queries, time.Now())
	} else {
		pass, err = a.service.Identify(ctx, queries)
	}
	if err != nil {
		return err
	}

	var nearest [][]candidateJSON
	if top > 0 && len(queries) > 0 {
		nearest, err = rankQueries(ctx, a, queries, top)
		if err != nil {
			return err
		}
	}

	if jsonOutput {
		return printJSON(identifyOutput{Pass: pass, Threshold: a.service.Threshold(), Nearest: nearest})
	}
	printPass(pass, a.service.Threshold(), nearest)
	return nil
}

// rankQueries lists the nearest identities for every query using the exact scan.
func rankQueries(ctx context.Context, a *app, queries []embedding.Vector, k int) ([][]candidateJSON, error) {
	gallery, err := a.store.All(ctx)
	if err != nil {
		return nil, err
	}
	out := make([][]candidateJSON, len(queries))
	for i, q := range queries {
		ranked, err := matcher.Rank(q, gallery, k)
		if err != nil {
			return nil, fmt.Errorf("rank face %d: %w", i, err)
		}
		out[i] = make([]candidateJSON, 0, len(ranked))
		for _, c := range ranked {
			out[i] = append(out[i], candidateJSON{
				IdentityID: c.Identity.ID,
				Name:       c.Identity.DisplayName,
				Distance:   c.Distance,
			})
		}
	}
	return out, nil
}

func printPass(pass recognition.Pass, threshold float64, nearest [][]candidateJSON) {
	fmt.Printf("Pass %s: %s (%d faces, gallery %d, %s, threshold %.2f)\n",
		pass.ID, pass.Outcome, len(pass.Faces), pass.GallerySize, pass.Algorithm, threshold)
	if len(pass.Faces) == 0 {
		return
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "FACE\tSTATE\tIDENTITY\tNAME\tDISTANCE")
	fmt.Fprintln(w, "----\t-----\t--------\t----\t--------")
	for _, f := range pass.Faces {
		id, dist := "-", "-"
		if f.IdentityID != 0 {
			id = fmt.Sprintf("%d", f.IdentityID)
		}
		if f.Distance != nil {
			dist = fmt.Sprintf("%.4f", *f.Distance)
		}
		fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\n", f.Index, f.State, id, f.DisplayName, dist)
	}
	w.Flush()

	for i, candidates := range nearest {
		fmt.Printf("\nNearest identities for face %d:\n", i)
		for rank, c := range candidates {
			fmt.Printf("  %d. %s (id %d) distance %.4f\n", rank+1, c.Name, c.IdentityID, c.Distance)
		}
	}
}
