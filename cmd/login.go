package cmd

import (
	"bufio"
	"context"
	"fmt"
	"os"
	"strings"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"
	"golang.org/x/term"

	"rmcli/internal/profile"
	"rmcli/internal/session"
	"rmcli/internal/storage"
)

func init() {
	loginCmd := &cobra.Command{
		Use:   "login",
		Short: "Log in and store the session token",
		Long: `Log in with a RainMaker username and password.

The access token is stored in the active profile. With --endpoint a new
profile is created for that endpoint first and its id is printed; pass it
with --config on later calls.

Examples:
  rmcli login --username user@example.com
  rmcli login --endpoint https://rainmaker.example.org --username admin`,
		Args: cobra.NoArgs,
		Run:  runLogin,
	}
	loginCmd.Flags().StringP("username", "u", "", "Account username (prompted when omitted)")
	loginCmd.Flags().StringP("password", "p", "", "Account password (prompted without echo when omitted)")
	loginCmd.Flags().String("endpoint", "", "Create a new profile for this API endpoint and log in to it")

	logoutCmd := &cobra.Command{
		Use:   "logout",
		Short: "Remove the stored session token",
		Args:  cobra.NoArgs,
		Run:   runLogout,
	}

	rootCmd.AddCommand(loginCmd, logoutCmd)
}

func runLogin(cmd *cobra.Command, args []string) {
	username, _ := cmd.Flags().GetString("username")
	password, _ := cmd.Flags().GetString("password")
	endpoint, _ := cmd.Flags().GetString("endpoint")

	username, password, err := promptCredentials(username, password)
	if err != nil {
		fail(err)
	}

	active, createdID, err := loginTo(cmd.Context(), rt.store, logrus.NewEntry(rt.log),
		func(a profile.ActiveProfile) session.Executor { return newExecutor(a) },
		viper.GetString("config"), endpoint, username, password)
	if err != nil {
		fail(err)
	}

	printer().PrintSuccess(fmt.Sprintf("Logged in as %s (%s)", username, active.BaseURL))
	if createdID != "" {
		printer().PrintSuccess(fmt.Sprintf("Created profile %s; use --config %s for later calls", createdID, createdID))
		if err := printer().PrintValue(map[string]string{"profile_id": createdID}); err != nil {
			fail(err)
		}
	}
}

// loginTo logs in to profileID, or to a new profile for endpoint when one is
// given. A profile created here is removed again when the login fails.
func loginTo(ctx context.Context, store *storage.ProfileStore, log *logrus.Entry,
	newExec func(profile.ActiveProfile) session.Executor,
	profileID, endpoint, username, password string) (profile.ActiveProfile, string, error) {
	createdID := ""
	if endpoint != "" {
		id, err := store.CreateNewConfig(endpoint, username)
		if err != nil {
			return profile.ActiveProfile{}, "", err
		}
		createdID, profileID = id, id
	}

	active, err := profile.NewResolver(store, log).Resolve(profileID)
	if err == nil {
		_, err = session.NewLifecycle(newExec(active), store, log).Login(ctx, username, password, active.ID)
	}
	if err != nil {
		if createdID != "" {
			if delErr := store.Delete(createdID); delErr != nil {
				log.WithError(delErr).Warn("Could not remove profile created for failed login")
			}
		}
		return profile.ActiveProfile{}, "", err
	}
	return active, createdID, nil
}

func runLogout(cmd *cobra.Command, args []string) {
	active := activeProfile()
	lifecycle := session.NewLifecycle(newExecutor(active), rt.store, logrus.NewEntry(rt.log))

	if err := lifecycle.Logout(cmd.Context(), active.ID); err != nil {
		fail(err)
	}
	printer().PrintSuccess("Logged out")
}

// promptCredentials asks for whatever was not passed as a flag.
func promptCredentials(username, password string) (string, string, error) {
	if username == "" {
		fmt.Fprint(os.Stderr, "Username: ")
		line, err := bufio.NewReader(os.Stdin).ReadString('\n')
		if err != nil && line == "" {
			return "", "", fmt.Errorf("%w: reading username: %v", errUsage, err)
		}
		username = strings.TrimSpace(line)
	}
	if username == "" {
		return "", "", fmt.Errorf("%w: username is required", errUsage)
	}

	if password == "" {
		fmt.Fprint(os.Stderr, "Password: ")
		pw, err := term.ReadPassword(int(os.Stdin.Fd()))
		fmt.Fprintln(os.Stderr)
		if err != nil {
			return "", "", fmt.Errorf("%w: reading password: %v", errUsage, err)
		}
		password = string(pw)
	}
	if password == "" {
		return "", "", fmt.Errorf("%w: password is required", errUsage)
	}
	return username, password, nil
}
