package commands

import (
	"fmt"
	"os"
	"strconv"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/reporttrack/internal/api/client"
)

func NewAlertCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "alert",
		Short:   "Alert management commands",
		Aliases: []string{"alerts", "a"},
	}

	// Add subcommands
	cmd.AddCommand(newAlertListCommand())
	cmd.AddCommand(newAlertReadCommand())
	cmd.AddCommand(newAlertSweepCommand())
	cmd.AddCommand(newAlertManualCommand())

	return cmd
}

func newAlertListCommand() *cobra.Command {
	var (
		unread bool
		limit  int
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List your alerts",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			alerts, err := c.ListAlerts(unread, limit)
			if err != nil {
				return fmt.Errorf("failed to list alerts: %v", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tDAY\tLEVEL\tTYPE\tSUBJECT\tREAD")

			for _, alert := range alerts {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%t\n",
					alert.ID,
					alert.Day,
					alert.Level,
					alert.AlertType.Name,
					alert.Subject,
					alert.Read,
				)
			}

			return w.Flush()
		},
	}

	cmd.Flags().BoolVar(&unread, "unread", false, "Only unread alerts")
	cmd.Flags().IntVar(&limit, "limit", 50, "Maximum number of alerts")

	return cmd
}

func newAlertReadCommand() *cobra.Command {
	var all bool

	cmd := &cobra.Command{
		Use:   "read [alert_id]",
		Short: "Mark an alert, or all alerts, as read",
		Args:  cobra.MaximumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if all == (len(args) == 1) {
				return fmt.Errorf("pass either an alert ID or --all")
			}

			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			if all {
				n, err := c.MarkAllAlertsRead()
				if err != nil {
					return fmt.Errorf("failed to mark alerts read: %v", err)
				}
				fmt.Printf("%d alerts marked read\n", n)
				return nil
			}

			if err := c.MarkAlertRead(args[0]); err != nil {
				return fmt.Errorf("failed to mark alert read: %v", err)
			}

			fmt.Printf("Alert %s marked read\n", args[0])
			return nil
		},
	}

	cmd.Flags().BoolVar(&all, "all", false, "Mark every unread alert as read")
	return cmd
}

func newAlertSweepCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run the daily alert sweep now",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			result, err := c.RunSweep()
			if err != nil {
				return fmt.Errorf("failed to run sweep: %v", err)
			}

			fmt.Printf("Sweep %s: %d instances checked, %d alerts created, %d notification failures\n",
				result.Day, result.Instances, result.AlertsCreated, result.NotifyFailures)
			return nil
		},
	}
}

func newAlertManualCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "manual [instance_id] [alert_type_id]",
		Short: "Raise an alert of the given type for an instance",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			instanceID, err := strconv.ParseUint(args[0], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid instance ID %q", args[0])
			}
			typeID, err := strconv.ParseUint(args[1], 10, 64)
			if err != nil {
				return fmt.Errorf("invalid alert type ID %q", args[1])
			}

			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			alerts, err := c.ManualAlert(uint(instanceID), uint(typeID))
			if err != nil {
				return fmt.Errorf("failed to raise alert: %v", err)
			}

			fmt.Printf("%d alerts created\n", len(alerts))
			return nil
		},
	}
}
