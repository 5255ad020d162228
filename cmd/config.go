package cmd

import (
	"encoding/json"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rmcli/internal/format"
	"rmcli/internal/model"
)

func init() {
	configCmd := &cobra.Command{
		Use:     "config",
		Aliases: []string{"profile"},
		Short:   "Manage stored profiles",
	}

	listCmd := &cobra.Command{
		Use:   "list",
		Short: "List all profiles",
		Args:  cobra.NoArgs,
		Run:   runConfigList,
	}

	showCmd := &cobra.Command{
		Use:   "show [id]",
		Short: "Show a profile (tokens are abbreviated)",
		Args:  cobra.MaximumNArgs(1),
		Run:   runConfigShow,
	}

	deleteCmd := &cobra.Command{
		Use:   "delete <id>",
		Short: "Delete a named profile",
		Args:  cobra.ExactArgs(1),
		Run:   runConfigDelete,
	}

	configCmd.AddCommand(listCmd, showCmd, deleteCmd)
	rootCmd.AddCommand(configCmd)
}

func runConfigList(cmd *cobra.Command, args []string) {
	ids, err := rt.store.ListProfileIDs()
	if err != nil {
		fail(err)
	}

	current := viper.GetString("config")
	if current == "" {
		current = model.DefaultProfileID
	}

	profiles := make([]format.ProfileSummary, 0, len(ids))
	for _, id := range ids {
		summary := format.ProfileSummary{ID: id, Active: id == current}
		doc, err := rt.store.Load(id)
		if err != nil {
			summary.Error = err.Error()
		} else {
			summary.BaseURL = doc.Environments.HTTPBaseURL
			summary.Authenticated = doc.Session.Authenticated()
			summary.LastUsed = doc.Session.LastUsed.Time
		}
		profiles = append(profiles, summary)
	}

	if structuredOutput(cmd) {
		if err := printer().PrintValue(profiles); err != nil {
			fail(err)
		}
		return
	}
	printer().PrintProfileList(profiles)
}

func runConfigShow(cmd *cobra.Command, args []string) {
	id := viper.GetString("config")
	if len(args) == 1 {
		id = args[0]
	}
	if id == "" {
		id = model.DefaultProfileID
	}

	doc, err := rt.store.Load(id)
	if err != nil {
		fail(err)
	}

	shown := *doc
	shown.Session.AccessToken = abbreviateToken(doc.Session.AccessToken)
	shown.Session.IDToken = abbreviateToken(doc.Session.IDToken)
	shown.Session.Extra = maskSecrets(doc.Session.Extra)

	if err := printer().PrintValue(map[string]any{"id": id, "profile": shown}); err != nil {
		fail(err)
	}
}

func runConfigDelete(cmd *cobra.Command, args []string) {
	if err := rt.store.Delete(args[0]); err != nil {
		fail(err)
	}
	printer().PrintSuccess(fmt.Sprintf("Profile %s deleted", args[0]))
}

// structuredOutput reports whether -o/--output was given explicitly, in which
// case list commands print json/yaml instead of a table.
func structuredOutput(cmd *cobra.Command) bool {
	if f := cmd.Flags().Lookup("output"); f != nil && f.Changed {
		return true
	}
	return os.Getenv("RMCLI_OUTPUT") != ""
}

func abbreviateToken(token string) string {
	if len(token) <= 8 {
		return strings.Repeat("*", len(token))
	}
	return token[:8] + "..."
}

// maskSecrets hides session keys written by other tools that look like
// passwords or tokens.
func maskSecrets(fields map[string]json.RawMessage) map[string]json.RawMessage {
	if len(fields) == 0 {
		return fields
	}
	masked := make(map[string]json.RawMessage, len(fields))
	for k, v := range fields {
		lower := strings.ToLower(k)
		if strings.Contains(lower, "password") || strings.Contains(lower, "token") || strings.Contains(lower, "secret") {
			v = json.RawMessage(`"***"`)
		}
		masked[k] = v
	}
	return masked
}
