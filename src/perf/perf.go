package perf

import (
	"context"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/rs/zerolog"
)

// Timing of one run of a multi-step operation, such as publishing a content.
// Blocks can nest; EndBlock always closes the innermost open one.
type Run struct {
	Name   string
	Start  time.Time
	End    time.Time
	Blocks []Block
}

func NewRun(name string) *Run {
	return &Run{
		Name:  name,
		Start: time.Now(),
	}
}

func (r *Run) Finish() {
	if r == nil {
		return
	}
	for r.EndBlock() {
	}
	r.End = time.Now()
}

func (r *Run) Checkpoint(category, description string) {
	if r == nil {
		return
	}
	now := time.Now()
	r.Blocks = append(r.Blocks, Block{
		Start:       now,
		End:         now,
		Category:    category,
		Description: description,
		checkpoint:  true,
	})
}

func (r *Run) StartBlock(category, description string) {
	if r == nil {
		return
	}
	r.Blocks = append(r.Blocks, Block{
		Start:       time.Now(),
		Category:    category,
		Description: description,
	})
}

func (r *Run) EndBlock() bool {
	if r == nil {
		return false
	}
	for i := len(r.Blocks) - 1; i >= 0; i -= 1 {
		if r.Blocks[i].End.IsZero() {
			r.Blocks[i].End = time.Now()
			return true
		}
	}
	return false
}

func (r *Run) MsFromStart(block *Block) float64 {
	return float64(block.Start.Sub(r.Start).Nanoseconds()) / 1000 / 1000
}

func (r *Run) Duration() time.Duration {
	return r.End.Sub(r.Start)
}

// Writes the run and each of its blocks to the logger at debug level.
func (r *Run) Log(logger *zerolog.Logger) {
	if r == nil {
		return
	}
	arr := zerolog.Arr()
	for i := range r.Blocks {
		b := &r.Blocks[i]
		arr.Dict(zerolog.Dict().
			Str("category", b.Category).
			Str("description", b.Description).
			Float64("at_ms", r.MsFromStart(b)).
			Float64("ms", b.DurationMs()))
	}
	logger.Debug().
		Str("run", r.Name).
		Dur("duration", r.Duration()).
		Array("blocks", arr).
		Msg("perf")
}

// Feeds the duration of every block into a histogram labeled by category.
func (r *Run) Observe(hist *prometheus.HistogramVec) {
	if r == nil {
		return
	}
	for i := range r.Blocks {
		b := &r.Blocks[i]
		if b.checkpoint {
			continue
		}
		hist.WithLabelValues(b.Category).Observe(b.Duration().Seconds())
	}
}

type Block struct {
	Start       time.Time
	End         time.Time
	Category    string
	Description string

	checkpoint bool
}

func (b *Block) Duration() time.Duration {
	return b.End.Sub(b.Start)
}

func (b *Block) DurationMs() float64 {
	return float64(b.Duration().Nanoseconds()) / 1000 / 1000
}

type runContextKey struct{}

func AttachToContext(ctx context.Context, r *Run) context.Context {
	return context.WithValue(ctx, runContextKey{}, r)
}

// Returns the run attached to ctx, or nil. All Run methods are safe to call on
// a nil Run.
func ExtractRun(ctx context.Context) *Run {
	r, _ := ctx.Value(runContextKey{}).(*Run)
	return r
}
