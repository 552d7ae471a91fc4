package trends

import (
	"context"
	"fmt"
	"log"
	"math"
	"sort"
	"time"

	"karpet/internal/domain"

	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/trace"
)

const (
	MaxKeywords        = 5
	MaxWindowDays      = 270
	DefaultWindowDays  = 250
	DefaultOverlapDays = 100

	dateLayout = "2006-01-02"
	day        = 24 * time.Hour
)

// Query is a single request to a trends provider.
type Query struct {
	Keywords  []string
	Timeframe string
	Category  int
	Geo       string
	Property  string
	Language  string
	TZ        int
}

// Provider returns interest-over-time rows for one timeframe.
type Provider interface {
	InterestOverTime(ctx context.Context, q Query) ([]domain.TrendPoint, error)
}

// Options tunes the window plan and the provider query.
type Options struct {
	WindowDays  int
	OverlapDays int
	Category    int
	Geo         string
	Property    string
	Language    string
	TZ          int
	// Sleep is the pause between consecutive provider calls.
	Sleep time.Duration
}

// DefaultOptions mirrors the Google Trends defaults for daily resolution.
func DefaultOptions() Options {
	return Options{
		WindowDays:  DefaultWindowDays,
		OverlapDays: DefaultOverlapDays,
		Language:    "en-US",
		TZ:          360,
		Sleep:       time.Second,
	}
}

// Overrides replaces the fields of a base Options that are set. A nil field
// keeps the base value, so an explicit zero can still be requested.
type Overrides struct {
	WindowDays  *int
	OverlapDays *int
	Category    *int
	Geo         *string
	Property    *string
	Language    *string
	TZ          *int
	Sleep       *time.Duration
}

// Apply returns base with every set override written over it.
func (o Overrides) Apply(base Options) Options {
	if o.WindowDays != nil {
		base.WindowDays = *o.WindowDays
	}
	if o.OverlapDays != nil {
		base.OverlapDays = *o.OverlapDays
	}
	if o.Category != nil {
		base.Category = *o.Category
	}
	if o.Geo != nil {
		base.Geo = *o.Geo
	}
	if o.Property != nil {
		base.Property = *o.Property
	}
	if o.Language != nil {
		base.Language = *o.Language
	}
	if o.TZ != nil {
		base.TZ = *o.TZ
	}
	if o.Sleep != nil {
		base.Sleep = *o.Sleep
	}
	return base
}

// DateRange is an inclusive [Start, End] query unit.
type DateRange struct {
	Start time.Time
	End   time.Time
}

func (r DateRange) Timeframe() string {
	return r.Start.Format(dateLayout) + " " + r.End.Format(dateLayout)
}

// Stitcher fetches daily trend data over arbitrarily long spans by
// querying overlapping windows and rescaling them onto one another.
type Stitcher struct {
	tracer   trace.Tracer
	provider Provider
	sleep    func(ctx context.Context, d time.Duration) error
}

func NewStitcher(tracer trace.Tracer, provider Provider) *Stitcher {
	return &Stitcher{tracer: tracer, provider: provider, sleep: sleepCtx}
}

// Fetch returns a continuous series for keywords over [start, end] whose
// maximum value across all keywords is 100.
func (s *Stitcher) Fetch(ctx context.Context, keywords []string, start, end time.Time, opts Options) (domain.TrendSeries, error) {
	ctx, span := s.tracer.Start(ctx, "trends.fetch")
	defer span.End()

	if err := validate(keywords, opts); err != nil {
		return domain.TrendSeries{}, err
	}
	start, end = truncateDay(start), truncateDay(end)
	if end.Before(start) {
		return domain.TrendSeries{}, fmt.Errorf("%w: end %s is before start %s", domain.ErrInvalidArgument, end.Format(dateLayout), start.Format(dateLayout))
	}

	windows := PlanWindows(start, end, opts.WindowDays, opts.OverlapDays)
	span.SetAttributes(
		attribute.StringSlice("keywords", keywords),
		attribute.Int("windows", len(windows)),
	)

	first, err := s.query(ctx, keywords, windows[0], opts)
	if err != nil {
		return domain.TrendSeries{}, err
	}
	if len(first) == 0 {
		return domain.TrendSeries{}, fmt.Errorf("%w: search terms returned no results", domain.ErrNoData)
	}

	acc := make(map[time.Time]domain.TrendPoint, len(first))
	for _, p := range first {
		d := truncateDay(p.Date)
		values := make(map[string]float64, len(keywords))
		for _, kw := range keywords {
			values[kw] = p.Values[kw]
		}
		acc[d] = domain.TrendPoint{Date: d, IsPartial: p.IsPartial, Values: values}
	}

	for _, w := range windows[1:] {
		if err := s.sleep(ctx, opts.Sleep); err != nil {
			return domain.TrendSeries{}, err
		}
		batch, err := s.query(ctx, keywords, w, opts)
		if err != nil {
			return domain.TrendSeries{}, err
		}
		stitch(acc, batch, keywords)
	}

	points := make([]domain.TrendPoint, 0, len(acc))
	for d, p := range acc {
		if d.Before(start) {
			continue
		}
		p.Date = d
		points = append(points, p)
	}
	sort.Slice(points, func(i, j int) bool { return points[i].Date.Before(points[j].Date) })

	series := domain.TrendSeries{Keywords: append([]string(nil), keywords...), Points: points}
	rescale(series)
	return series, nil
}

func (s *Stitcher) query(ctx context.Context, keywords []string, w DateRange, opts Options) ([]domain.TrendPoint, error) {
	rows, err := s.provider.InterestOverTime(ctx, Query{
		Keywords:  keywords,
		Timeframe: w.Timeframe(),
		Category:  opts.Category,
		Geo:       opts.Geo,
		Property:  opts.Property,
		Language:  opts.Language,
		TZ:        opts.TZ,
	})
	if err != nil {
		return nil, fmt.Errorf("query trends %s: %w", w.Timeframe(), err)
	}
	return rows, nil
}

func validate(keywords []string, opts Options) error {
	if len(keywords) == 0 || len(keywords) > MaxKeywords {
		return fmt.Errorf("%w: keyword list must contain 1 to %d terms, got %d", domain.ErrInvalidArgument, MaxKeywords, len(keywords))
	}
	if opts.WindowDays <= 0 || opts.WindowDays > MaxWindowDays {
		return fmt.Errorf("%w: window days must be in 1..%d, got %d", domain.ErrInvalidArgument, MaxWindowDays, opts.WindowDays)
	}
	if opts.OverlapDays < 0 || opts.OverlapDays >= opts.WindowDays {
		return fmt.Errorf("%w: overlap %d must be smaller than window %d", domain.ErrInvalidArgument, opts.OverlapDays, opts.WindowDays)
	}
	return nil
}

// PlanWindows splits [start, end] into query windows. Window 0 ends at end;
// each following window starts window-overlap days earlier.
func PlanWindows(start, end time.Time, windowDays, overlapDays int) []DateRange {
	nDays := int(end.Sub(start) / day)
	if nDays <= windowDays {
		return []DateRange{{Start: start, End: end}}
	}

	step := windowDays - overlapDays
	var windows []DateRange
	for i := 0; i < nDays-windowDays+step; i += step {
		windows = append(windows, DateRange{
			Start: end.AddDate(0, 0, -(i + windowDays)),
			End:   end.AddDate(0, 0, -i),
		})
	}
	return windows
}

// stitch rescales batch onto acc using the dates both share, then adds
// the dates acc does not have yet.
func stitch(acc map[time.Time]domain.TrendPoint, batch []domain.TrendPoint, keywords []string) {
	factors := make(map[string]float64, len(keywords))
	for _, kw := range keywords {
		var sum float64
		var n int
		for _, p := range batch {
			prev, ok := acc[truncateDay(p.Date)]
			if !ok {
				continue
			}
			ratio := prev.Values[kw] / p.Values[kw]
			if math.IsNaN(ratio) || math.IsInf(ratio, 0) {
				continue
			}
			sum += ratio
			n++
		}
		// No usable overlap leaves the batch on its own scale.
		factors[kw] = 1
		if n > 0 {
			factors[kw] = sum / float64(n)
		}
	}

	added := 0
	for _, p := range batch {
		d := truncateDay(p.Date)
		if _, ok := acc[d]; ok {
			continue
		}
		values := make(map[string]float64, len(keywords))
		for _, kw := range keywords {
			values[kw] = p.Values[kw] * factors[kw]
		}
		acc[d] = domain.TrendPoint{Date: d, IsPartial: p.IsPartial, Values: values}
		added++
	}
	log.Printf("trends: stitched %d new rows (factors %v)", added, factors)
}

func rescale(series domain.TrendSeries) {
	max := series.Max()
	if max <= 0 {
		return
	}
	for _, p := range series.Points {
		for _, kw := range series.Keywords {
			p.Values[kw] = 100.0 * p.Values[kw] / max
		}
	}
}

func truncateDay(t time.Time) time.Time {
	y, m, d := t.UTC().Date()
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func sleepCtx(ctx context.Context, d time.Duration) error {
	if d <= 0 {
		return ctx.Err()
	}
	select {
	case <-ctx.Done():
		return ctx.Err()
	case <-time.After(d):
		return nil
	}
}
