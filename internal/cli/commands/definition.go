package commands

import (
	"fmt"
	"os"
	"text/tabwriter"

	"github.com/spf13/cobra"

	"github.com/reporttrack/internal/api/client"
	"github.com/reporttrack/internal/tracking"
)

func NewDefinitionCommand() *cobra.Command {
	cmd := &cobra.Command{
		Use:     "definition",
		Short:   "Report definition commands",
		Aliases: []string{"definitions", "def", "d"},
	}

	cmd.AddCommand(newDefinitionListCommand())
	cmd.AddCommand(newDefinitionGetCommand())
	cmd.AddCommand(newDefinitionCreateCommand())
	cmd.AddCommand(newDefinitionGenerateCommand())

	return cmd
}

func newDefinitionListCommand() *cobra.Command {
	var (
		frequency string
		entityID  uint
		active    bool
	)

	cmd := &cobra.Command{
		Use:     "list",
		Short:   "List report definitions",
		Aliases: []string{"ls"},
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			defs, err := c.ListDefinitions(frequency, entityID, active)
			if err != nil {
				return fmt.Errorf("failed to list definitions: %v", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintln(w, "ID\tCODE\tNAME\tENTITY\tFREQUENCY\tDUE DAY\tACTIVE")
			for _, def := range defs {
				fmt.Fprintf(w, "%d\t%s\t%s\t%s\t%s\t%s\t%t\n",
					def.ID,
					def.Code,
					def.Name,
					def.Entity.Name,
					def.Frequency,
					optionalInt(def.DueDay),
					def.IsActive,
				)
			}
			return w.Flush()
		},
	}

	cmd.Flags().StringVar(&frequency, "frequency", "", "Filter by frequency (MONTHLY, QUARTERLY, ...)")
	cmd.Flags().UintVar(&entityID, "entity", 0, "Filter by entity ID")
	cmd.Flags().BoolVar(&active, "active", false, "Only active definitions")

	return cmd
}

func newDefinitionGetCommand() *cobra.Command {
	return &cobra.Command{
		Use:   "get [definition_id]",
		Short: "Show a report definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			def, err := c.GetDefinition(args[0])
			if err != nil {
				return fmt.Errorf("failed to get definition: %v", err)
			}

			w := tabwriter.NewWriter(os.Stdout, 0, 0, 3, ' ', 0)
			fmt.Fprintf(w, "Code:\t%s\n", def.Code)
			fmt.Fprintf(w, "Name:\t%s\n", def.Name)
			fmt.Fprintf(w, "Entity:\t%s\n", def.Entity.Name)
			fmt.Fprintf(w, "Frequency:\t%s\n", def.Frequency)
			fmt.Fprintf(w, "Due day:\t%s\n", optionalInt(def.DueDay))
			fmt.Fprintf(w, "Due month:\t%s\n", optionalInt(def.DueMonth))
			fmt.Fprintf(w, "Grace days:\t%d\n", def.GraceDays)
			fmt.Fprintf(w, "Responsible:\t%s\n", def.Responsible.Username)
			fmt.Fprintf(w, "Supervisor:\t%s\n", def.Supervisor.Username)
			fmt.Fprintf(w, "Active:\t%t\n", def.IsActive)
			return w.Flush()
		},
	}
}

func newDefinitionCreateCommand() *cobra.Command {
	var (
		in       tracking.DefinitionInput
		dueDay   int
		dueMonth int
		from     string
		until    string
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Create a report definition and generate its instances",
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			if cmd.Flags().Changed("due-day") {
				in.DueDay = &dueDay
			}
			if cmd.Flags().Changed("due-month") {
				in.DueMonth = &dueMonth
			}
			if in.ValidFrom, err = optionalDate(from); err != nil {
				return err
			}
			if in.ValidUntil, err = optionalDate(until); err != nil {
				return err
			}

			def, err := c.CreateDefinition(in)
			if err != nil {
				return fmt.Errorf("failed to create definition: %v", err)
			}

			fmt.Printf("Definition %d (%s) created\n", def.ID, def.Code)
			return nil
		},
	}

	cmd.Flags().StringVar(&in.Code, "code", "", "Unique report code")
	cmd.Flags().StringVar(&in.Name, "name", "", "Report name")
	cmd.Flags().UintVar(&in.EntityID, "entity", 0, "Receiving entity ID")
	cmd.Flags().StringVar(&in.Frequency, "frequency", "", "Frequency (MONTHLY, QUARTERLY, ...)")
	cmd.Flags().IntVar(&dueDay, "due-day", 0, "Due day of month, or weekday for WEEKLY")
	cmd.Flags().IntVar(&dueMonth, "due-month", 0, "Due month for ANNUAL and ONE_TIME")
	cmd.Flags().IntVar(&in.GraceDays, "grace-days", 0, "Days after the due date before the report counts as late")
	cmd.Flags().UintVar(&in.ResponsibleID, "responsible", 0, "Responsible user ID")
	cmd.Flags().UintVar(&in.SupervisorID, "supervisor", 0, "Supervisor user ID")
	cmd.Flags().StringVar(&in.LegalBasis, "legal-basis", "", "Legal basis")
	cmd.Flags().StringVar(&in.RequiredFormat, "format", "", "Required file format")
	cmd.Flags().StringVar(&from, "valid-from", "", "First day of validity (YYYY-MM-DD)")
	cmd.Flags().StringVar(&until, "valid-until", "", "Last day of validity (YYYY-MM-DD)")
	cmd.Flags().StringSliceVar(&in.ExtraRecipients, "notify", nil, "Extra notification e-mail addresses")
	for _, name := range []string{"code", "name", "entity", "frequency", "responsible", "supervisor"} {
		cmd.MarkFlagRequired(name)
	}

	return cmd
}

func newDefinitionGenerateCommand() *cobra.Command {
	var from, to string

	cmd := &cobra.Command{
		Use:   "generate [definition_id]",
		Short: "Generate missing instances for a definition",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			c, err := client.NewClient()
			if err != nil {
				return fmt.Errorf("failed to create client: %v", err)
			}

			start, end, err := parseRange(from, to)
			if err != nil {
				return err
			}

			created, err := c.GenerateInstances(args[0], start, end)
			if err != nil {
				return fmt.Errorf("failed to generate instances: %v", err)
			}

			fmt.Printf("%d instances created\n", created)
			return nil
		},
	}

	cmd.Flags().StringVar(&from, "from", "", "Start date (YYYY-MM-DD)")
	cmd.Flags().StringVar(&to, "to", "", "End date (YYYY-MM-DD)")

	return cmd
}
