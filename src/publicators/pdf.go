package publicators

import (
	"context"
	"errors"
	"io"
	"os"
	"sync"
	"time"

	"git.handmade.network/hmn/edu/src/oops"
	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
)

var ErrPDFGeneration = errors.New("PDF generation failed")

// Prints a local HTML file to PDF.
type PDFRenderer interface {
	RenderFromFile(ctx context.Context, filename string) ([]byte, error)
}

// The HTML download printed to PDF, written to <baseName>.pdf.
type PDFPublicator struct {
	Renderer PDFRenderer
}

var _ Publicator = &PDFPublicator{}

func (p *PDFPublicator) Publish(ctx context.Context, mdPath, baseName string, opts Options) error {
	page, err := renderDownload(mdPath, opts)
	if err != nil {
		return err
	}

	tmp, err := os.CreateTemp("", "edu-print-*.html")
	if err != nil {
		return oops.New(err, "failed to create temporary page")
	}
	defer os.Remove(tmp.Name())
	_, err = tmp.Write(page)
	if closeErr := tmp.Close(); err == nil {
		err = closeErr
	}
	if err != nil {
		return oops.New(err, "failed to write temporary page")
	}

	pdf, err := p.Renderer.RenderFromFile(ctx, tmp.Name())
	if err != nil {
		return err
	}
	return writeOutput(baseName+".pdf", pdf)
}

func (p *PDFPublicator) Close() error {
	if c, ok := p.Renderer.(io.Closer); ok {
		return c.Close()
	}
	return nil
}

// A4 in inches.
const (
	paperWidth  = 8.27
	paperHeight = 11.69
	margin      = 0.6
)

/*
Prints with headless Chromium. The browser is started on first use and kept
until Close. With no binary configured, rod downloads a Chromium build the
first time.
*/
type RodRenderer struct {
	bin     string
	timeout time.Duration

	mu      sync.Mutex
	browser *rod.Browser
}

var _ PDFRenderer = &RodRenderer{}

func NewRodRenderer(bin string, timeout time.Duration) *RodRenderer {
	if timeout <= 0 {
		timeout = time.Minute
	}
	return &RodRenderer{bin: bin, timeout: timeout}
}

func (r *RodRenderer) ensureBrowser() (*rod.Browser, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser != nil {
		return r.browser, nil
	}

	l := launcher.New()
	if r.bin != "" {
		l = l.Bin(r.bin).NoSandbox(true)
	}
	u, err := l.Launch()
	if err != nil {
		return nil, oops.New(err, "failed to launch browser")
	}

	browser := rod.New().ControlURL(u)
	if err := browser.Connect(); err != nil {
		return nil, oops.New(err, "failed to connect to browser")
	}
	r.browser = browser
	return browser, nil
}

func (r *RodRenderer) RenderFromFile(ctx context.Context, filename string) ([]byte, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	browser, err := r.ensureBrowser()
	if err != nil {
		return nil, err
	}

	page, err := browser.Context(ctx).Page(proto.TargetCreateTarget{URL: "file://" + filename})
	if err != nil {
		return nil, oops.New(ErrPDFGeneration, "failed to open page: %v", err)
	}
	defer page.Close()

	if err := page.Timeout(r.timeout).WaitLoad(); err != nil {
		return nil, oops.New(ErrPDFGeneration, "page did not load: %v", err)
	}

	stream, err := page.PDF(&proto.PagePrintToPDF{
		PaperWidth:      floatPtr(paperWidth),
		PaperHeight:     floatPtr(paperHeight),
		MarginTop:       floatPtr(margin),
		MarginBottom:    floatPtr(margin),
		MarginLeft:      floatPtr(margin),
		MarginRight:     floatPtr(margin),
		PrintBackground: true,
	})
	if err != nil {
		return nil, oops.New(ErrPDFGeneration, "%v", err)
	}
	pdf, err := io.ReadAll(stream)
	if err != nil {
		return nil, oops.New(ErrPDFGeneration, "failed to read PDF stream: %v", err)
	}
	return pdf, nil
}

func (r *RodRenderer) Close() error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.browser == nil {
		return nil
	}
	err := r.browser.Close()
	r.browser = nil
	return err
}

func floatPtr(v float64) *float64 {
	return &v
}
