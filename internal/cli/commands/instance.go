package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reporttrack/internal/api/client"
	"github.com/reporttrack/internal/models"
)

func NewInstanceCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "instance",
		Short:   "Report instance commands",
		Aliases: []string{"instances", "i"},
	}

	cmd.AddCommand(newInstanceListCommand())
	cmd.AddCommand(newInstancePendingCommand())
	cmd.AddCommand(newInstanceOverdueCommand())
	cmd.AddCommand(newInstanceSubmitLinkCommand())
	cmd.AddCommand(newInstanceExportCommand())

	return cmd
}

func newInstanceListCommand() *cobra.Command {
	var (
		q        client.InstanceQuery
		from, to string
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "Search report instances",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			if q.From, q.To, err = parseRange(from, to); err != nil {
				return err
			}

			instances, err := c.ListInstances(q)
			if err != nil {
				return fmt.Errorf("failed to list instances: %v", err)
			}
			return writeInstances(os.Stdout, instances)
		},
	}

	cmd.Flags().UintVar(&q.DefinitionID, "definition", 0, "Filter by definition ID")
	cmd.Flags().UintVar(&q.EntityID, "entity", 0, "Filter by entity ID")
	cmd.Flags().StringVar(&q.Status, "status", "", "Comma separated statuses (PENDING,IN_PROGRESS,SUBMITTED,APPROVED)")
	cmd.Flags().StringVar(&q.Period, "period", "", "Period label substring")
	cmd.Flags().StringVar(&from, "from", "", "Due on or after (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "Due on or before (YYYY-MM-DD)")

	return cmd
}

func newInstancePendingCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "pending",
		Short: "List open instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listWith(func(c *client.Client) ([]models.ReportInstance, error) {
				return c.PendingInstances()
			})
		},
	}
}

func newInstanceOverdueCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "overdue",
		Short: "List open instances past their due date",
		RunE: func(cmd *cobra.Command, args []string) error {
			return listWith(func(c *client.Client) ([]models.ReportInstance, error) {
				return c.OverdueInstances()
			})
		},
	}
}

func listWith(fetch func(*client.Client) ([]models.ReportInstance, error)) error {
	c, err := client.NewClient()
	if err != nil {
		return fmt.Errorf("failed to create client: %v", err)
	}
	instances, err := fetch(c)
	if err != nil {
		return fmt.Errorf("failed to list instances: %v", err)
	}
	return writeInstances(os.Stdout, instances)
}

func newInstanceSubmitLinkCommand() *cobra.Command {
	var notes string

	cmd := &cobra.Command{
		Use:   "submit-link [instance_id] [url]",
		Short: "Mark an instance submitted with an external report link",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			inst, err := c.SubmitLink(args[0], args[1], notes)
			if err != nil {
				return fmt.Errorf("failed to submit instance: %v", err)
			}

			fmt.Printf("Instance %d submitted (%s, deviation %s days)\n", inst.ID, inst.Status, optionalInt(inst.DeviationDays))
			return nil
		},
	}

	cmd.Flags().StringVar(&notes, "notes", "", "Submission notes")
	return cmd
}

func newInstanceExportCommand() *cobra.Command {
	var from, to, output string

	cmd := &cobra.Command{
		Use:   "export",
		Short: "Export instances and compliance statistics to an xlsx workbook",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			start, end, err := parseRange(from, to)
			if err != nil {
				return err
			}

			if err := c.ExportInstances(start, end, output); err != nil {
				return fmt.Errorf("failed to export instances: %v", err)
			}

			fmt.Printf("Report exported to %s\n", output)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Start date (YYYY-MM-DD), defaults to three months ago")
	cmd.Flags().StringVar(&to, "to", "", "End date (YYYY-MM-DD), defaults to today")
	cmd.Flags().StringVarP(&output, "output", "o", "", "Output file")
	cmd.MarkFlagRequired("output")

	return cmd
}
