// Package view renders the state of a record state holder to a terminal.
//
// A view only reads state: it never triggers fetches.
package view

import (
	"encoding/json"
	"fmt"
	"io"
	"log/slog"
	"strconv"
	"sync"
	"text/tabwriter"

	"github.com/ubuntu/recordfeed/internal/model"
	"github.com/ubuntu/recordfeed/internal/viewmodel"
	"gopkg.in/yaml.v3"
)

// Format is an output format.
type Format string

// Supported output formats.
const (
	FormatTable Format = "table"
	FormatJSON  Format = "json"
	FormatYAML  Format = "yaml"
)

// ParseFormat returns the format named s.
func ParseFormat(s string) (Format, error) {
	switch f := Format(s); f {
	case FormatTable, FormatJSON, FormatYAML:
		return f, nil
	}
	return "", fmt.Errorf("unknown output format %q, expected one of %s, %s or %s", s, FormatTable, FormatJSON, FormatYAML)
}

// Source is what a view binds to.
type Source interface {
	Items() *viewmodel.Observable[[]model.Record]
	LastError() *viewmodel.Observable[error]
}

// Table writes records to an output, once per state change.
type Table struct {
	out    io.Writer
	errOut io.Writer
	format Format

	mu  sync.Mutex
	log *slog.Logger
}

type options struct {
	errOut io.Writer
	format Format
	logger *slog.Logger
}

// Options represents an optional function to override Table default values.
type Options func(*options)

// WithErrorOutput sets where failures are printed. They go to the records output by default.
func WithErrorOutput(w io.Writer) Options {
	return func(o *options) {
		o.errOut = w
	}
}

// WithFormat sets the output format.
func WithFormat(f Format) Options {
	return func(o *options) {
		o.format = f
	}
}

// WithLogger sets the logger of the view.
func WithLogger(l *slog.Logger) Options {
	return func(o *options) {
		o.logger = l
	}
}

// NewTable returns a view writing to out.
func NewTable(out io.Writer, args ...Options) *Table {
	opts := options{
		format: FormatTable,
		logger: slog.Default(),
	}
	for _, opt := range args {
		opt(&opts)
	}
	if opts.errOut == nil {
		opts.errOut = out
	}

	return &Table{
		out:    out,
		errOut: opts.errOut,
		format: opts.format,
		log:    opts.logger,
	}
}

// Bind renders every change of src until unbind is called.
func (t *Table) Bind(src Source) (unbind func()) {
	stopItems := src.Items().Observe(func(rs []model.Record) {
		if err := t.Render(rs); err != nil {
			t.log.Warn("Could not render records", "error", err)
		}
	})
	stopErr := src.LastError().Observe(func(err error) {
		if err != nil {
			t.RenderError(err)
		}
	})

	return func() {
		stopItems()
		stopErr()
	}
}

// Render writes rs in the view format.
func (t *Table) Render(rs []model.Record) error {
	t.mu.Lock()
	defer t.mu.Unlock()

	switch t.format {
	case FormatJSON:
		enc := json.NewEncoder(t.out)
		enc.SetIndent("", "  ")
		return enc.Encode(toDocs(rs))
	case FormatYAML:
		enc := yaml.NewEncoder(t.out)
		enc.SetIndent(2)
		if err := enc.Encode(toDocs(rs)); err != nil {
			return err
		}
		return enc.Close()
	}
	return t.renderTable(rs)
}

// RenderError writes err on the error output.
func (t *Table) RenderError(err error) {
	t.mu.Lock()
	defer t.mu.Unlock()

	fmt.Fprintf(t.errOut, "Error: %v\n", err)
}

func (t *Table) renderTable(rs []model.Record) error {
	if len(rs) == 0 {
		_, err := fmt.Fprintln(t.out, "No records found.")
		return err
	}

	w := tabwriter.NewWriter(t.out, 0, 0, 2, ' ', 0)
	fmt.Fprintln(w, "ID\tNAME\tDESCRIPTION\tPRICE")
	for _, r := range rs {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", r.ID, r.Name, r.Description, strconv.FormatFloat(r.Price, 'f', -1, 64))
	}
	return w.Flush()
}

// doc is the serialized form of a record, with canonical keys.
type doc struct {
	ID          string  `json:"id" yaml:"id"`
	Name        string  `json:"name" yaml:"name"`
	Description string  `json:"description,omitempty" yaml:"description,omitempty"`
	Price       float64 `json:"price,omitempty" yaml:"price,omitempty"`
}

func toDocs(rs []model.Record) []doc {
	docs := make([]doc, 0, len(rs))
	for _, r := range rs {
		docs = append(docs, doc(r))
	}
	return docs
}
