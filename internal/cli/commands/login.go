package commands

import (
	"fmt"
	"os"

	"github.com/spf13/cobra"

	"github.com/reporttrack/internal/api/client"
)

func NewLoginCommand() *cobra.Command {
	var username, password string

	cmd := &cobra.Command{
		Use:   "login",
		Short: "Obtain an API token for REPORTTRACK_TOKEN",
		RunE: func(cmd *cobra.Command, args []string) error {
			baseURL := os.Getenv("REPORTTRACK_API_URL")
			if baseURL == "" {
				baseURL = "http://localhost:8080"
			}
			if password == "" {
				password = os.Getenv("REPORTTRACK_PASSWORD")
			}

			token, err := client.New(baseURL, "").Login(username, password)
			if err != nil {
				return fmt.Errorf("failed to log in: %v", err)
			}

			fmt.Printf("export REPORTTRACK_TOKEN=%s\n", token)
			return nil
		},
	}

	cmd.Flags().StringVarP(&username, "username", "u", "", "Username")
	cmd.Flags().StringVarP(&password, "password", "p", "", "Password (or REPORTTRACK_PASSWORD)")
	cmd.MarkFlagRequired("username")

	return cmd
}
