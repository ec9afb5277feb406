package cmd

import (
	"context"
	"fmt"
	"os"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
)

var attendanceCmd = &cobra.Command{
	Use:   "attendance",
	Short: "Show the attendance report",
	Long: `Show attendance events joined with identity names, ordered by time.

--from is inclusive and --to is exclusive. Both accept RFC3339 timestamps or
plain dates (YYYY-MM-DD, UTC midnight). Omitting either leaves that side open.

Examples:
  # Everything recorded so far
  face-attendance attendance

  # One day
  face-attendance attendance --from 2024-03-01 --to 2024-03-02`,
	Args: cobra.NoArgs,
	RunE: runAttendance,
}

func init() {
	rootCmd.AddCommand(attendanceCmd)

	attendanceCmd.Flags().String("from", "", "Start of the range (inclusive)")
	attendanceCmd.Flags().String("to", "", "End of the range (exclusive)")
	attendanceCmd.Flags().Bool("json", false, "Output as JSON")
}

// parseRangeBound parses a CLI time bound; empty means unbounded.
func parseRangeBound(s string) (time.Time, error) {
	if s == "" {
		return time.Time{}, nil
	}
	if t, err := time.Parse(time.RFC3339, s); err == nil {
		return t.UTC(), nil
	}
	t, err := time.Parse(time.DateOnly, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q (want RFC3339 or YYYY-MM-DD)", s)
	}
	return t, nil
}

func runAttendance(cmd *cobra.Command, args []string) error {
	ctx := context.Background()
	jsonOutput := mustGetBool(cmd, "json")

	from, err := parseRangeBound(mustGetString(cmd, "from"))
	if err != nil {
		return err
	}
	to, err := parseRangeBound(mustGetString(cmd, "to"))
	if err != nil {
		return err
	}

	a, err := openApp(ctx)
	if err != nil {
		return err
	}
	defer a.Close()

	rows, err := a.ledger.Report(ctx, from, to)
	if err != nil {
		return err
	}

	if jsonOutput {
		return printJSON(rows)
	}

	if len(rows) == 0 {
		fmt.Println("No attendance recorded")
		return nil
	}

	w := tabwriter.NewWriter(os.Stdout, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "EVENT\tIDENTITY\tNAME\tTIMESTAMP (UTC)")
	fmt.Fprintln(w, "-----\t--------\t----\t---------------")
	for _, row := range rows {
		fmt.Fprintf(w, "%d\t%d\t%s\t%s\n", row.EventID, row.IdentityID, row.DisplayName, row.Timestamp)
	}
	w.Flush()

	fmt.Printf("\nTotal: %d events\n", len(rows))
	return nil
}
