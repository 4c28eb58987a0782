package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/reporttrack/internal/api/client"
)

func NewStatsCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "stats",
		Short:   "Compliance statistics commands",
		Aliases: []string{"stat", "s"},
	}

	// Add subcommands
	cmd.AddCommand(newStatsSummaryCommand())
	cmd.AddCommand(newStatsTrendCommand())
	cmd.AddCommand(newStatsTopCommand())

	return cmd
}

func newStatsSummaryCommand() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "summary",
		Short: "Show the compliance summary for a date range",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			start, end, err := parseRange(from, to)
			if err != nil {
				return err
			}

			s, err := c.Summary(start, end)
			if err != nil {
				return fmt.Errorf("failed to get summary: %v", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintf(w, "Range:\t%s .. %s\n", s.From.Format(dateLayout), s.To.Format(dateLayout))
			fmt.Fprintf(w, "Total:\t%d\n", s.Total)
			fmt.Fprintf(w, "On time:\t%d (%.1f%%)\n", s.OnTime, s.OnTimePercent)
			fmt.Fprintf(w, "Late:\t%d\n", s.Late)
			fmt.Fprintf(w, "Overdue:\t%d\n", s.Overdue)
			fmt.Fprintf(w, "Pending:\t%d\n", s.Pending)
			fmt.Fprintf(w, "Average late days:\t%.1f\n", s.AverageLateDays)
			fmt.Fprintf(w, "Due within 7 days:\t%d\n", s.DueWithin7Days)
			fmt.Fprintf(w, "Unread critical alerts:\t%d\n", s.UnreadCritical)
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "End date (YYYY-MM-DD)")

	return cmd
}

func newStatsTrendCommand() *cobra.Command {
	var months int

	cmd := &cobra.Command{
		Use:   "trend",
		Short: "Show the monthly on-time trend",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			trend, err := c.Trend(months)
			if err != nil {
				return fmt.Errorf("failed to get trend: %v", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "MONTH\tTOTAL\tON TIME\tON TIME %")
			for _, p := range trend {
				fmt.Fprintf(w, "%s\t%d\t%d\t%.1f%%\n", p.Month, p.Total, p.OnTime, p.OnTimePercent)
			}
			return w.Flush()
		},
	}

	cmd.Flags().IntVar(&months, "months", 6, "Number of trailing months")
	return cmd
}

func newStatsTopCommand() *cobra.Command {
	var (
		by string
		n  int
	)

	cmd := &cobra.Command{
		Use:   "top",
		Short: "Show the groups with the most late reports",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			top, err := c.TopOffenders(by, n)
			if err != nil {
				return fmt.Errorf("failed to get top offenders: %v", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "NAME\tLATE")
			for _, o := range top {
				fmt.Fprintf(w, "%s\t%d\n", o.Name, o.Count)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&by, "by", "entity", "Group by entity or responsible")
	cmd.Flags().IntVarP(&n, "top", "n", 5, "Number of groups")

	return cmd
}
