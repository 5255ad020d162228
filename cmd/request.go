package cmd

import (
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/avast/retry-go/v4"
	"github.com/spf13/cobra"

	httpclient "rmcli/internal/http"
	"rmcli/internal/model"
)

var (
	queryParams []string
	data        string
	noAuth      bool
	retries     int
)

var retryDelay = 500 * time.Millisecond

func init() {
	// GET command
	getCmd := &cobra.Command{
		Use:   "get <path>",
		Short: "Send a GET request to the API",
		Long: `Send a GET request to a path of the active profile's endpoint.

Example:
  rmcli get /v1/user/nodes -q node_details=true`,
		Args: cobra.ExactArgs(1),
		Run:  runRequest(http.MethodGet),
	}
	addRequestFlags(getCmd)
	rootCmd.AddCommand(getCmd)

	// POST command
	postCmd := &cobra.Command{
		Use:   "post <path>",
		Short: "Send a POST request to the API",
		Long: `Send a POST request to a path of the active profile's endpoint.

Example:
  rmcli post /v1/user/nodes/mapping -d '{"node_id": "abc", "operation": "add"}'`,
		Args: cobra.ExactArgs(1),
		Run:  runRequest(http.MethodPost),
	}
	addRequestFlags(postCmd)
	rootCmd.AddCommand(postCmd)

	// PUT command
	putCmd := &cobra.Command{
		Use:   "put <path>",
		Short: "Send a PUT request to the API",
		Args:  cobra.ExactArgs(1),
		Run:   runRequest(http.MethodPut),
	}
	addRequestFlags(putCmd)
	rootCmd.AddCommand(putCmd)

	// DELETE command
	deleteCmd := &cobra.Command{
		Use:   "delete <path>",
		Short: "Send a DELETE request to the API",
		Args:  cobra.ExactArgs(1),
		Run:   runRequest(http.MethodDelete),
	}
	addRequestFlags(deleteCmd)
	rootCmd.AddCommand(deleteCmd)
}

func addRequestFlags(cmd *cobra.Command) {
	cmd.Flags().StringArrayVarP(&queryParams, "query", "q", []string{}, "Add query parameter key=value (can be used multiple times)")
	cmd.Flags().StringVarP(&data, "data", "d", "", "JSON request body (JSON string or @filename)")
	cmd.Flags().BoolVar(&noAuth, "no-auth", false, "Send the request without the stored token")
	cmd.Flags().IntVar(&retries, "retry", 0, "Retry transport failures and 5xx responses this many times (not for POST)")
}

func runRequest(method string) func(cmd *cobra.Command, args []string) {
	return func(cmd *cobra.Command, args []string) {
		req, err := buildRequest(method, args[0], queryParams, data, !noAuth)
		if err != nil {
			fail(err)
		}
		if retries < 0 {
			fail(fmt.Errorf("%w: --retry must not be negative", errUsage))
		}
		if retries > 0 && method == http.MethodPost {
			fail(fmt.Errorf("%w: --retry is not allowed for POST requests", errUsage))
		}

		exec := newExecutor(activeProfile())
		finish(executeWithRetry(cmd, exec, req, retries))
	}
}

// executeWithRetry runs req once plus up to n retries of retryable failures.
func executeWithRetry(cmd *cobra.Command, exec *httpclient.Executor, req model.Request, n int) model.Result {
	ctx := cmd.Context()
	var result model.Result

	_ = retry.Do(
		func() error {
			result = exec.Execute(ctx, req)
			return result.Err()
		},
		retry.Context(ctx),
		retry.Attempts(uint(n)+1),
		retry.Delay(retryDelay),
		retry.LastErrorOnly(true),
		retry.RetryIf(httpclient.IsRetryable),
		retry.OnRetry(func(attempt uint, err error) {
			rt.log.WithError(err).Warnf("Retrying %s %s (attempt %d of %d)", req.Method, req.Path, attempt+2, n+1)
		}),
	)
	return result
}

// buildRequest validates command-line input and turns it into a Request.
func buildRequest(method, path string, params []string, body string, authenticate bool) (model.Request, error) {
	lower := strings.ToLower(path)
	if strings.HasPrefix(lower, "http://") || strings.HasPrefix(lower, "https://") {
		return model.Request{}, fmt.Errorf("%w: pass an API path such as /v1/user, not a full URL; use 'server update' to change the endpoint", errUsage)
	}

	values, err := parseQuery(params)
	if err != nil {
		return model.Request{}, err
	}

	req := model.Request{
		Method:       method,
		Path:         path,
		Params:       values,
		Authenticate: authenticate,
	}

	if body == "" {
		return req, nil
	}
	if strings.HasPrefix(body, "@") {
		content, err := readBodyFromFile(strings.TrimPrefix(body, "@"))
		if err != nil {
			return model.Request{}, fmt.Errorf("%w: failed to read file: %v", errUsage, err)
		}
		body = content
	}
	if !json.Valid([]byte(body)) {
		return model.Request{}, fmt.Errorf("%w: request body is not valid JSON", errUsage)
	}
	req.Body = json.RawMessage(body)
	return req, nil
}

func parseQuery(params []string) (url.Values, error) {
	if len(params) == 0 {
		return nil, nil
	}
	values := url.Values{}
	for _, p := range params {
		key, value, ok := strings.Cut(p, "=")
		key = strings.TrimSpace(key)
		if !ok || key == "" {
			return nil, fmt.Errorf("%w: query parameter %q must be key=value", errUsage, p)
		}
		values.Add(key, value)
	}
	return values, nil
}

// readBodyFromFile reads file content with path validation to prevent directory traversal
func readBodyFromFile(filename string) (string, error) {
	// Get working directory
	wd, err := os.Getwd()
	if err != nil {
		return "", fmt.Errorf("failed to get working directory: %w", err)
	}

	// Get absolute path of the requested file
	absPath, err := filepath.Abs(filename)
	if err != nil {
		return "", fmt.Errorf("invalid file path: %w", err)
	}

	// Clean the path to resolve any .. or . components
	cleanPath := filepath.Clean(absPath)

	// Ensure file is within working directory (prevent path traversal)
	if !strings.HasPrefix(cleanPath, wd+string(filepath.Separator)) && cleanPath != wd {
		return "", fmt.Errorf("access denied: file must be within current directory")
	}

	// Check for symlinks - resolve and verify target is also within working directory
	realPath, err := filepath.EvalSymlinks(cleanPath)
	if err != nil {
		if !os.IsNotExist(err) {
			return "", fmt.Errorf("failed to resolve path: %w", err)
		}
		realPath = cleanPath
	} else if !strings.HasPrefix(realPath, wd+string(filepath.Separator)) && realPath != wd {
		return "", fmt.Errorf("access denied: symlink target must be within current directory")
	}

	content, err := os.ReadFile(realPath)
	if err != nil {
		return "", err
	}

	return string(content), nil
}
