package cli

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"sort"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/charmbracelet/lipgloss"
	"github.com/prometheus/client_golang/prometheus"
	"golang.org/x/text/language"
	"golang.org/x/text/message"
	"gopkg.in/yaml.v3"

	"github.com/rshade/specrepo/internal/document"
	"github.com/rshade/specrepo/internal/metrics"
	"github.com/rshade/specrepo/internal/paging"
)

// Output formats.
const (
	outputTable = "table"
	outputJSON  = "json"
	outputYAML  = "yaml"
)

// ErrInvalidOutput is returned for an unknown --output value.
var ErrInvalidOutput = errors.New("output must be table, json or yaml")

const (
	tabPadding   = 2
	maxDataWidth = 60
)

//nolint:gochecknoglobals // immutable style
var headerStyle = lipgloss.NewStyle().Bold(true).Foreground(lipgloss.Color("33"))

func validateOutput(format string) error {
	switch format {
	case outputTable, outputJSON, outputYAML:
		return nil
	default:
		return fmt.Errorf("%w: got %q", ErrInvalidOutput, format)
	}
}

// styled reports whether w is an interactive terminal.
func styled(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && isTerminal(f)
}

// pageView is the structured form of a query result.
type pageView struct {
	Items      []*document.Document `json:"items"      yaml:"items"`
	Pagination paging.Meta          `json:"pagination" yaml:"pagination"`
}

func renderPage(w io.Writer, format string, result *paging.Result[*document.Document]) error {
	switch format {
	case outputJSON:
		return writeJSON(w, pageView{Items: result.Items(), Pagination: result.Meta()})
	case outputYAML:
		return writeYAML(w, pageView{Items: result.Items(), Pagination: result.Meta()})
	default:
		if err := renderTable(w, result.Items()); err != nil {
			return err
		}
		meta := result.Meta()
		p := message.NewPrinter(language.English)
		_, err := p.Fprintf(w, "\nPage %d of %d (%d documents)\n",
			meta.CurrentPage, max(meta.TotalPages, 1), meta.TotalItems)
		return err
	}
}

func renderDocument(w io.Writer, format string, doc *document.Document) error {
	switch format {
	case outputJSON:
		return writeJSON(w, doc)
	case outputYAML:
		return writeYAML(w, doc)
	default:
		return renderTable(w, []*document.Document{doc})
	}
}

func renderTable(w io.Writer, docs []*document.Document) error {
	if len(docs) == 0 {
		_, err := fmt.Fprintln(w, "No documents found.")
		return err
	}

	header := "ID\tKIND\tCREATED\tDATA"
	if styled(w) {
		header = headerStyle.Render("ID") + "\t" + headerStyle.Render("KIND") + "\t" +
			headerStyle.Render("CREATED") + "\t" + headerStyle.Render("DATA")
	}

	tw := tabwriter.NewWriter(w, 0, 0, tabPadding, ' ', 0)
	fmt.Fprintln(tw, header)
	fmt.Fprintln(tw, "--\t----\t-------\t----")
	for _, d := range docs {
		fmt.Fprintf(tw, "%s\t%s\t%s\t%s\n", d.ID, orDash(d.Kind), d.CreatedAt.UTC().Format(time.RFC3339), d.Summary(maxDataWidth))
	}
	return tw.Flush()
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}

func writeJSON(w io.Writer, v any) error {
	enc := json.NewEncoder(w)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func writeYAML(w io.Writer, v any) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(v); err != nil {
		return err
	}
	return enc.Close()
}

func renderCheck(w io.Writer, id string, satisfied bool, unmet []string) error {
	verdict := "satisfies"
	if !satisfied {
		verdict = "does not satisfy"
	}
	if _, err := fmt.Fprintf(w, "Document %s %s the specification.\n", id, verdict); err != nil {
		return err
	}
	if len(unmet) == 0 {
		return nil
	}
	if _, err := fmt.Fprintln(w, "Unmet conditions:"); err != nil {
		return err
	}
	for _, name := range unmet {
		if _, err := fmt.Fprintf(w, "  - %s\n", name); err != nil {
			return err
		}
	}
	return nil
}

// printMetrics writes one line per counter sample, sorted.
func printMetrics(w io.Writer, g prometheus.Gatherer) error {
	samples, err := metrics.Counters(g)
	if err != nil || len(samples) == 0 {
		return err
	}
	lines := make([]string, len(samples))
	for i, s := range samples {
		lines[i] = s.String()
	}
	sort.Strings(lines)
	_, err = fmt.Fprintln(w, strings.Join(lines, "\n"))
	return err
}
