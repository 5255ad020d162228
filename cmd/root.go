package cmd

import (
	"context"
	"fmt"
	"io"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/sirupsen/logrus"
	"github.com/spf13/cobra"
	"github.com/spf13/viper"

	"rmcli/internal/format"
	httpclient "rmcli/internal/http"
	"rmcli/internal/logging"
	"rmcli/internal/profile"
	"rmcli/internal/storage"
)

var rootCmd = &cobra.Command{
	Use:   "rmcli",
	Short: "A CLI for the RainMaker device management API",
	Long: `rmcli talks to the RainMaker device management REST API.

Log in once, then call any API path with the stored session. Every profile
keeps its own endpoint and token; the default profile points at the public
RainMaker cloud.

Examples:
  rmcli login --username user@example.com
  rmcli get /v1/user/nodes -q node_details=true
  rmcli --config 6f1c... get /v1/user
  rmcli login --endpoint https://rainmaker.example.org
  rmcli history`,
	SilenceUsage:      true,
	SilenceErrors:     true,
	PersistentPreRun:  setupRuntime,
	PersistentPostRun: teardownRuntime,
}

// cliState is what every command needs once flags are parsed.
type cliState struct {
	log     *logrus.Logger
	store   *storage.ProfileStore
	journal *storage.Journal
	printer *format.Printer
	closers []io.Closer
}

var rt = &cliState{}

// Execute runs the root command
func Execute() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	err := rootCmd.ExecuteContext(ctx)
	stop()

	if err != nil {
		format.NewPrinter(format.FormatJSON).PrintError(err.Error())
		os.Exit(ExitUsage)
	}
}

func init() {
	pf := rootCmd.PersistentFlags()
	pf.String("config", "", "Profile id to use (default profile when omitted)")
	pf.String("data-dir", "", "Directory holding profiles, logs and history (default ~/.rainmaker)")
	pf.Bool("debug", false, "Log debug output to stderr")
	pf.StringP("output", "o", format.FormatJSON, "Output format: json or yaml")
	pf.Bool("no-history", false, "Don't record calls in the history journal")
	pf.Duration("timeout", httpclient.DefaultTimeout, "HTTP request timeout")

	for _, name := range []string{"config", "data-dir", "debug", "output", "no-history", "timeout"} {
		_ = viper.BindPFlag(name, pf.Lookup(name))
	}
	viper.SetEnvPrefix("RMCLI")
	viper.SetEnvKeyReplacer(strings.NewReplacer("-", "_"))
	viper.AutomaticEnv()
}

func setupRuntime(cmd *cobra.Command, args []string) {
	outputFormat := strings.ToLower(viper.GetString("output"))
	if !format.ValidFormat(outputFormat) {
		format.NewPrinter(format.FormatJSON).PrintError(fmt.Sprintf("Unsupported output format %q (use json or yaml)", outputFormat))
		os.Exit(ExitUsage)
	}
	rt.printer = format.NewPrinter(outputFormat)

	dataDir := viper.GetString("data-dir")
	if dataDir == "" {
		dir, err := storage.DefaultDataDir()
		if err != nil {
			fail(fmt.Errorf("%w: locating home directory: %w", storage.ErrIOFailure, err))
		}
		dataDir = dir
	}

	rt.log = logrus.New()
	closer, err := logging.Setup(rt.log, dataDir, viper.GetBool("debug"))
	if err != nil {
		rt.printer.PrintWarning(fmt.Sprintf("Logging to file disabled: %v", err))
	}
	rt.closers = append(rt.closers, closer)

	rt.store = storage.NewProfileStore(dataDir, logrus.NewEntry(rt.log))
}

func teardownRuntime(cmd *cobra.Command, args []string) {
	closeRuntime()
}

func closeRuntime() {
	for i := len(rt.closers) - 1; i >= 0; i-- {
		_ = rt.closers[i].Close()
	}
	rt.closers = nil
	rt.journal = nil
}

// openJournal opens the call journal unless --no-history is set. A journal
// that cannot be opened only disables recording.
func openJournal() *storage.Journal {
	if viper.GetBool("no-history") {
		return nil
	}
	if rt.journal != nil {
		return rt.journal
	}
	j, err := storage.OpenJournal(storage.JournalPath(rt.store.DataDir()))
	if err != nil {
		rt.log.WithError(err).Warn("History journal unavailable; calls will not be recorded")
		return nil
	}
	rt.journal = j
	rt.closers = append(rt.closers, j)
	return j
}

// activeProfile resolves --config (or the default profile).
func activeProfile() profile.ActiveProfile {
	resolver := profile.NewResolver(rt.store, logrus.NewEntry(rt.log))
	active, err := resolver.Resolve(viper.GetString("config"))
	if err != nil {
		fail(err)
	}
	rt.log.WithField("profile", active.ID).Debugf("Using endpoint %s", active.BaseURL)
	return active
}

// newExecutor builds the request executor for the active profile.
func newExecutor(active profile.ActiveProfile) *httpclient.Executor {
	opts := []httpclient.Option{
		httpclient.WithLogger(logrus.NewEntry(rt.log)),
		httpclient.WithTimeout(viper.GetDuration("timeout")),
	}
	if j := openJournal(); j != nil {
		opts = append(opts, httpclient.WithRecorder(j))
	}
	return httpclient.NewExecutor(active, rt.store, opts...)
}
