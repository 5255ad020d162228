package format

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"strings"
	"time"
	"unicode"

	"github.com/fatih/color"
	"gopkg.in/yaml.v3"

	"rmcli/internal/model"
)

const (
	FormatJSON = "json"
	FormatYAML = "yaml"
)

// sanitizeOutput removes or escapes potentially dangerous control characters
// that could manipulate terminal display or execute commands
func sanitizeOutput(s string) string {
	var result strings.Builder
	result.Grow(len(s))

	for _, r := range s {
		switch {
		case r == '\n' || r == '\r' || r == '\t':
			result.WriteRune(r)
		case r == '\x1b':
			// Escape ANSI escape sequences - replace ESC with visible representation
			result.WriteString("\\x1b")
		case unicode.IsControl(r) && r < 0x20:
			result.WriteString(fmt.Sprintf("\\x%02x", r))
		case r == 0x7F:
			result.WriteString("\\x7f")
		default:
			result.WriteRune(r)
		}
	}

	return result.String()
}

var (
	successColor   = color.New(color.FgGreen, color.Bold)
	clientErrColor = color.New(color.FgRed, color.Bold)
	serverErrColor = color.New(color.FgRed, color.Bold, color.BgWhite)
	headerKeyColor = color.New(color.FgCyan)
	methodColor    = color.New(color.FgMagenta, color.Bold)
	urlColor       = color.New(color.FgBlue)
	dimColor       = color.New(color.Faint)
)

// Printer renders results for the terminal. Data goes to Out, status
// messages to Err.
type Printer struct {
	Out    io.Writer
	Err    io.Writer
	Format string
}

// NewPrinter writes to stdout/stderr in the given format (json or yaml).
func NewPrinter(format string) *Printer {
	return &Printer{Out: os.Stdout, Err: os.Stderr, Format: format}
}

// ValidFormat reports whether f is a supported output format
func ValidFormat(f string) bool {
	return f == FormatJSON || f == FormatYAML
}

// PrintResult renders the envelope.
func (p *Printer) PrintResult(r model.Result) error {
	return p.PrintValue(r)
}

// PrintValue renders any JSON-serializable value in the configured format.
// Numbers are printed exactly as they arrive.
func (p *Printer) PrintValue(v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}

	if p.Format == FormatYAML {
		dec := json.NewDecoder(bytes.NewReader(data))
		dec.UseNumber()
		var generic any
		if err := dec.Decode(&generic); err != nil {
			return err
		}

		enc := yaml.NewEncoder(p.Out)
		enc.SetIndent(2)
		if err := enc.Encode(yamlNumbers(generic)); err != nil {
			return err
		}
		return enc.Close()
	}

	var out bytes.Buffer
	if err := json.Indent(&out, data, "", "  "); err != nil {
		return err
	}
	_, err = fmt.Fprintln(p.Out, sanitizeOutput(out.String()))
	return err
}

// yamlNumbers replaces every json.Number in v with a YAML scalar carrying the
// literal digits, so values beyond float64 precision survive.
func yamlNumbers(v any) any {
	switch val := v.(type) {
	case map[string]any:
		for k, item := range val {
			val[k] = yamlNumbers(item)
		}
		return val
	case []any:
		for i, item := range val {
			val[i] = yamlNumbers(item)
		}
		return val
	case json.Number:
		tag := "!!int"
		if strings.ContainsAny(val.String(), ".eE") {
			tag = "!!float"
		}
		return &yaml.Node{Kind: yaml.ScalarNode, Tag: tag, Value: val.String()}
	default:
		return v
	}
}

// PrintSuccess prints a success message
func (p *Printer) PrintSuccess(msg string) {
	successColor.Fprintf(p.Err, "✓ %s\n", sanitizeOutput(msg))
}

// PrintError prints an error message
func (p *Printer) PrintError(msg string) {
	clientErrColor.Fprintf(p.Err, "✗ %s\n", sanitizeOutput(msg))
}

// PrintWarning prints a dimmed note
func (p *Printer) PrintWarning(msg string) {
	dimColor.Fprintf(p.Err, "! %s\n", sanitizeOutput(msg))
}

func getStatusColor(code int) *color.Color {
	switch {
	case code >= 200 && code < 300:
		return successColor
	case code >= 400 && code < 500:
		return clientErrColor
	default:
		return serverErrColor
	}
}

// ProfileSummary is one row of the profile list.
type ProfileSummary struct {
	ID            string    `json:"id"`
	BaseURL       string    `json:"base_url"`
	Authenticated bool      `json:"authenticated"`
	LastUsed      time.Time `json:"last_used,omitzero"`
	Active        bool      `json:"active"`
	Error         string    `json:"error,omitempty"`
}

// PrintProfileList prints profiles in a compact format
func (p *Printer) PrintProfileList(profiles []ProfileSummary) {
	if len(profiles) == 0 {
		dimColor.Fprintln(p.Out, "No profiles found")
		return
	}

	for _, prof := range profiles {
		marker := "  "
		if prof.Active {
			marker = "* "
		}
		fmt.Fprint(p.Out, marker)
		headerKeyColor.Fprintf(p.Out, "%-36s ", sanitizeOutput(prof.ID))

		if prof.Error != "" {
			clientErrColor.Fprintf(p.Out, "%s\n", sanitizeOutput(prof.Error))
			continue
		}

		urlColor.Fprintf(p.Out, "%-40s ", sanitizeOutput(prof.BaseURL))
		if prof.Authenticated {
			successColor.Fprint(p.Out, "logged in")
		} else {
			dimColor.Fprint(p.Out, "logged out")
		}
		if !prof.LastUsed.IsZero() {
			dimColor.Fprintf(p.Out, "  (last used %s)", prof.LastUsed.Local().Format("2006-01-02 15:04"))
		}
		fmt.Fprintln(p.Out)
	}
}

// PrintHistoryList prints journal entries, newest first
func (p *Printer) PrintHistoryList(records []model.CallRecord, limit int) {
	if len(records) == 0 {
		dimColor.Fprintln(p.Out, "No requests in history")
		return
	}

	count := len(records)
	if limit > 0 && limit < count {
		count = limit
	}

	for i := 0; i < count; i++ {
		rec := records[i]
		dimColor.Fprintf(p.Out, "[%d] %s ", i+1, rec.ID)
		methodColor.Fprintf(p.Out, "%-7s ", rec.Method)

		path := rec.Path
		if len(path) > 50 {
			path = path[:47] + "..."
		}
		urlColor.Fprintf(p.Out, "%-50s ", sanitizeOutput(path))

		code := rec.StatusCode
		if code == 0 {
			code = rec.ErrorCode
		}
		getStatusColor(code).Fprintf(p.Out, "%d ", code)
		dimColor.Fprintf(p.Out, "(%dms) %s", rec.DurationMs, rec.Timestamp.Local().Format("2006-01-02 15:04:05"))
		fmt.Fprintln(p.Out)
	}

	if limit > 0 && len(records) > limit {
		dimColor.Fprintf(p.Out, "\n... and %d more requests\n", len(records)-limit)
	}
}

// PrintCallRecord prints one journal entry in full
func (p *Printer) PrintCallRecord(rec *model.CallRecord) {
	methodColor.Fprintf(p.Out, "%s ", rec.Method)
	urlColor.Fprintln(p.Out, sanitizeOutput(rec.Path))
	dimColor.Fprintf(p.Out, "  ID: %s\n", rec.ID)
	dimColor.Fprintf(p.Out, "  Profile: %s\n", sanitizeOutput(rec.ProfileID))
	dimColor.Fprintf(p.Out, "  Time: %s\n", rec.Timestamp.Local().Format("2006-01-02 15:04:05"))
	fmt.Fprint(p.Out, "  Status: ")
	if rec.StatusCode == 0 {
		serverErrColor.Fprintf(p.Out, "no response (error code %d)\n", rec.ErrorCode)
	} else {
		getStatusColor(rec.StatusCode).Fprintf(p.Out, "%d\n", rec.StatusCode)
	}
	dimColor.Fprintf(p.Out, "  Duration: %dms\n", rec.DurationMs)
}
