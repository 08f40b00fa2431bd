package publicators

import (
	"context"
	"errors"
	"io"
	"sort"
	"sync"

	"git.handmade.network/hmn/edu/src/config"
	"git.handmade.network/hmn/edu/src/oops"
)

var ErrUnknownFormat = errors.New("no publicator for this format")

const (
	FormatHTML  = "html"
	FormatLaTeX = "latex"
	FormatPDF   = "pdf"
)

/*
Turns the Markdown export of a content into one downloadable file.

mdPath is the export, front matter included. baseName is the path of the
output without its extension; each publicator appends its own.
*/
type Publicator interface {
	Publish(ctx context.Context, mdPath, baseName string, opts Options) error
}

type Options struct {
	// Stylesheet inlined into HTML output. Empty means the built-in one.
	Css string
}

// Print formats are slow and depend on outside tools, so they are only built
// on publication when the config asks for it.
func IsPrintFormat(format string) bool {
	return format == FormatLaTeX || format == FormatPDF
}

type Entry struct {
	Format     string
	Publicator Publicator
}

/*
Maps output formats to publicators. A Registry is safe for concurrent use.

Tests and commands that need a different publicator for a while take a
Snapshot first and Restore it when they are done.
*/
type Registry struct {
	mu          sync.RWMutex
	publicators map[string]Publicator
}

// A frozen copy of a registry's bindings.
type Snapshot struct {
	publicators map[string]Publicator
}

func NewRegistry() *Registry {
	return &Registry{publicators: map[string]Publicator{}}
}

// Registers the built-in publicators.
func DefaultRegistry(cfg config.ContentConfig) *Registry {
	r := NewRegistry()
	r.Register(FormatHTML, &HTMLPublicator{})
	r.Register(FormatLaTeX, &LaTeXPublicator{})
	r.Register(FormatPDF, &PDFPublicator{
		Renderer: NewRodRenderer(cfg.ChromiumBin, cfg.PDFTimeout),
	})
	return r
}

// Binds p to format, replacing any previous binding.
func (r *Registry) Register(format string, p Publicator) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publicators[format] = p
}

func (r *Registry) Get(format string) (Publicator, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.publicators[format]
	if !ok {
		return nil, oops.New(ErrUnknownFormat, "format %q", format)
	}
	return p, nil
}

// Every binding, sorted by format.
func (r *Registry) All() []Entry {
	r.mu.RLock()
	defer r.mu.RUnlock()
	entries := make([]Entry, 0, len(r.publicators))
	for format, p := range r.publicators {
		entries = append(entries, Entry{Format: format, Publicator: p})
	}
	sort.Slice(entries, func(i, j int) bool {
		return entries[i].Format < entries[j].Format
	})
	return entries
}

func (r *Registry) Snapshot() Snapshot {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return Snapshot{publicators: copyBindings(r.publicators)}
}

// Puts back exactly the bindings of s, dropping any registered since.
func (r *Registry) Restore(s Snapshot) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.publicators = copyBindings(s.publicators)
}

// Releases whatever the publicators hold on to, such as a browser.
func (r *Registry) Close() error {
	var errs []error
	for _, e := range r.All() {
		if c, ok := e.Publicator.(io.Closer); ok {
			if err := c.Close(); err != nil {
				errs = append(errs, oops.New(err, "failed to close %s publicator", e.Format))
			}
		}
	}
	return errors.Join(errs...)
}

func copyBindings(m map[string]Publicator) map[string]Publicator {
	cp := make(map[string]Publicator, len(m))
	for k, v := range m {
		cp[k] = v
	}
	return cp
}
