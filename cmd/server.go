package cmd

import (
	"fmt"

	"github.com/spf13/cobra"

	"rmcli/internal/storage"
)

type serverInfo struct {
	Profile       string `json:"profile"`
	Endpoint      string `json:"endpoint"`
	Authenticated bool   `json:"authenticated"`
	Default       bool   `json:"default"`
}

func init() {
	serverCmd := &cobra.Command{
		Use:   "server",
		Short: "Show or change the API endpoint of a profile",
	}

	showCmd := &cobra.Command{
		Use:   "show",
		Short: "Show the endpoint of the active profile",
		Args:  cobra.NoArgs,
		Run:   runServerShow,
	}

	updateCmd := &cobra.Command{
		Use:   "update",
		Short: "Point the active profile at another endpoint",
		Long: `Point the active profile at another endpoint.

The stored token is kept; log in again if the new endpoint does not accept it.

Example:
  rmcli server update --endpoint https://rainmaker.example.org`,
		Args: cobra.NoArgs,
		Run:  runServerUpdate,
	}
	updateCmd.Flags().String("endpoint", "", "New API endpoint (http or https URL)")
	_ = updateCmd.MarkFlagRequired("endpoint")

	resetCmd := &cobra.Command{
		Use:   "reset",
		Short: "Reset the default profile to the public endpoint and log it out",
		Args:  cobra.NoArgs,
		Run:   runServerReset,
	}

	cleanupCmd := &cobra.Command{
		Use:   "cleanup",
		Short: "Remove named profiles not used for a number of days",
		Args:  cobra.NoArgs,
		Run:   runServerCleanup,
	}
	cleanupCmd.Flags().Int("days", 30, "Remove profiles unused for more than this many days")

	serverCmd.AddCommand(showCmd, updateCmd, resetCmd, cleanupCmd)
	rootCmd.AddCommand(serverCmd)
}

func runServerShow(cmd *cobra.Command, args []string) {
	active := activeProfile()
	info := serverInfo{
		Profile:       active.ID,
		Endpoint:      active.BaseURL,
		Authenticated: active.TokenPresent,
		Default:       active.IsDefault(),
	}
	if err := printer().PrintValue(info); err != nil {
		fail(err)
	}
}

func runServerUpdate(cmd *cobra.Command, args []string) {
	endpoint, _ := cmd.Flags().GetString("endpoint")
	active := activeProfile()

	stored, err := updateEndpoint(rt.store, active.ID, endpoint)
	if err != nil {
		fail(err)
	}
	printer().PrintSuccess(fmt.Sprintf("Profile %s now uses %s", active.ID, stored))
}

// updateEndpoint points profile id at endpoint and returns the URL as stored.
func updateEndpoint(store *storage.ProfileStore, id, endpoint string) (string, error) {
	if err := store.UpdateBaseURL(id, endpoint); err != nil {
		return "", err
	}
	doc, err := store.Load(id)
	if err != nil {
		return "", err
	}
	return doc.Environments.HTTPBaseURL, nil
}

func runServerReset(cmd *cobra.Command, args []string) {
	if err := rt.store.ResetDefault(); err != nil {
		fail(err)
	}
	printer().PrintSuccess("Default profile reset; log in again to use it")
}

func runServerCleanup(cmd *cobra.Command, args []string) {
	days, _ := cmd.Flags().GetInt("days")
	if days < 0 {
		fail(fmt.Errorf("%w: --days must not be negative", errUsage))
	}

	removed, err := rt.store.Cleanup(days)
	if err != nil {
		fail(err)
	}
	if len(removed) == 0 {
		printer().PrintSuccess("No profiles to remove")
		return
	}
	for _, id := range removed {
		printer().PrintSuccess(fmt.Sprintf("Removed profile %s", id))
	}
}
