// Package dataset loads the time series and images a report refers to.
//
// A reference is either "inline:<id>" (series supplied by the caller), an
// http(s) URL, or a path relative to Loader.BaseDir. Series come as CSV
// (t,v per row) or JSON ([{"t": RFC3339, "v": number}]).
package dataset

import (
	"context"
	"encoding/csv"
	"encoding/json"
	"errors"
	"fmt"
	"image"
	_ "image/jpeg"
	_ "image/png"
	"io"
	"log/slog"
	"net/http"
	"os"
	"path/filepath"
	"sort"
	"strconv"
	"strings"
	"sync"
	"time"

	"github.com/ByLCY/chartfolio/layout"
)

// InlinePrefix marks a reference resolved from Loader.Inline.
const InlinePrefix = "inline:"

const maxBodyBytes = 32 << 20

var (
	// ErrNotFound is returned when an inline series is missing.
	ErrNotFound = errors.New("dataset: not found")
	// ErrForbidden is returned for a reference kind the loader does not allow.
	ErrForbidden = errors.New("dataset: reference not allowed")
)

// Fetcher resolves series and image references.
type Fetcher interface {
	Series(ctx context.Context, ref string) ([]layout.Point, error)
	Image(ctx context.Context, ref string) (image.Image, error)
}

// Loader is the default Fetcher.
type Loader struct {
	BaseDir string
	Inline  map[string][]layout.Point
	// AllowLocal and AllowRemote gate file paths and http(s) URLs.
	AllowLocal  bool
	AllowRemote bool
	Client      *http.Client
	Logger      *slog.Logger
}

// NewLoader returns a Loader reading files under baseDir and remote URLs.
func NewLoader(baseDir string, timeout time.Duration, logger *slog.Logger) *Loader {
	if logger == nil {
		logger = slog.Default()
	}
	return &Loader{
		BaseDir:     baseDir,
		AllowLocal:  true,
		AllowRemote: true,
		Client:      &http.Client{Timeout: timeout},
		Logger:      logger,
	}
}

var _ Fetcher = (*Loader)(nil)

// Series loads and decodes the series behind ref, sorted by timestamp.
func (l *Loader) Series(ctx context.Context, ref string) ([]layout.Point, error) {
	ref = strings.TrimSpace(ref)
	if id, ok := strings.CutPrefix(ref, InlinePrefix); ok {
		pts, found := l.Inline[id]
		if !found {
			return nil, fmt.Errorf("%w: inline series %q", ErrNotFound, id)
		}
		out := append([]layout.Point(nil), pts...)
		sortPoints(out)
		return out, nil
	}
	rc, kind, err := l.open(ctx, ref)
	if err != nil {
		return nil, err
	}
	defer rc.Close()

	var pts []layout.Point
	switch kind {
	case "json":
		pts, err = DecodeJSON(rc)
	default:
		pts, err = DecodeCSV(rc)
	}
	if err != nil {
		return nil, fmt.Errorf("dataset: decode %s: %w", ref, err)
	}
	l.logger().Debug("dataset: series loaded", "ref", ref, "points", len(pts))
	return pts, nil
}

// Image loads a PNG or JPEG image.
func (l *Loader) Image(ctx context.Context, ref string) (image.Image, error) {
	rc, _, err := l.open(ctx, strings.TrimSpace(ref))
	if err != nil {
		return nil, err
	}
	defer rc.Close()
	img, _, err := image.Decode(rc)
	if err != nil {
		return nil, fmt.Errorf("dataset: decode image %s: %w", ref, err)
	}
	return img, nil
}

// open returns the raw content behind ref and its kind (json or csv).
func (l *Loader) open(ctx context.Context, ref string) (io.ReadCloser, string, error) {
	if ref == "" {
		return nil, "", fmt.Errorf("%w: empty reference", ErrNotFound)
	}
	if strings.HasPrefix(ref, "http://") || strings.HasPrefix(ref, "https://") {
		if !l.AllowRemote {
			return nil, "", fmt.Errorf("%w: %s", ErrForbidden, ref)
		}
		return l.get(ctx, ref)
	}
	if !l.AllowLocal {
		return nil, "", fmt.Errorf("%w: %s", ErrForbidden, ref)
	}
	path := ref
	if !filepath.IsAbs(path) && l.BaseDir != "" {
		path = filepath.Join(l.BaseDir, path)
	}
	f, err := os.Open(path)
	if err != nil {
		return nil, "", fmt.Errorf("dataset: %w", err)
	}
	return f, kindOf(path, ""), nil
}

func (l *Loader) get(ctx context.Context, url string) (io.ReadCloser, string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, "", fmt.Errorf("dataset: request %s: %w", url, err)
	}
	client := l.Client
	if client == nil {
		client = http.DefaultClient
	}
	resp, err := client.Do(req)
	if err != nil {
		return nil, "", fmt.Errorf("dataset: fetch %s: %w", url, err)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, "", fmt.Errorf("dataset: fetch %s: unexpected status %s", url, resp.Status)
	}
	body := struct {
		io.Reader
		io.Closer
	}{io.LimitReader(resp.Body, maxBodyBytes), resp.Body}
	return body, kindOf(url, resp.Header.Get("Content-Type")), nil
}

func (l *Loader) logger() *slog.Logger {
	if l.Logger == nil {
		return slog.Default()
	}
	return l.Logger
}

func kindOf(ref, contentType string) string {
	if strings.Contains(contentType, "json") {
		return "json"
	}
	if strings.Contains(contentType, "csv") {
		return "csv"
	}
	if i := strings.IndexAny(ref, "?#"); i >= 0 {
		ref = ref[:i]
	}
	if strings.EqualFold(filepath.Ext(ref), ".json") {
		return "json"
	}
	return "csv"
}

// DecodeJSON decodes [{"t": ..., "v": ...}].
func DecodeJSON(r io.Reader) ([]layout.Point, error) {
	var pts []layout.Point
	if err := json.NewDecoder(r).Decode(&pts); err != nil {
		return nil, err
	}
	sortPoints(pts)
	return pts, nil
}

// DecodeCSV reads "timestamp,value" rows. A first row that does not parse
// is treated as a header; any later bad row is an error.
func DecodeCSV(r io.Reader) ([]layout.Point, error) {
	cr := csv.NewReader(r)
	cr.FieldsPerRecord = -1
	cr.TrimLeadingSpace = true
	cr.Comment = '#'

	var pts []layout.Point
	for line := 1; ; line++ {
		rec, err := cr.Read()
		if err == io.EOF {
			break
		}
		if err != nil {
			return nil, err
		}
		if len(rec) < 2 {
			return nil, fmt.Errorf("line %d: expected 2 columns, got %d", line, len(rec))
		}
		p, err := parseRow(rec[0], rec[1])
		if err != nil {
			if line == 1 {
				continue
			}
			return nil, fmt.Errorf("line %d: %w", line, err)
		}
		pts = append(pts, p)
	}
	sortPoints(pts)
	return pts, nil
}

var timeLayouts = []string{time.RFC3339Nano, "2006-01-02 15:04:05", "2006-01-02 15:04", "2006-01-02"}

func parseRow(ts, val string) (layout.Point, error) {
	v, err := strconv.ParseFloat(strings.TrimSpace(val), 64)
	if err != nil {
		return layout.Point{}, fmt.Errorf("value %q: %w", val, err)
	}
	t, err := ParseTime(ts)
	if err != nil {
		return layout.Point{}, err
	}
	return layout.Point{T: t, V: v}, nil
}

// ParseTime accepts RFC 3339, a few date-time layouts and unix seconds.
func ParseTime(s string) (time.Time, error) {
	s = strings.TrimSpace(s)
	for _, l := range timeLayouts {
		if t, err := time.Parse(l, s); err == nil {
			return t, nil
		}
	}
	if sec, err := strconv.ParseInt(s, 10, 64); err == nil {
		return time.Unix(sec, 0).UTC(), nil
	}
	return time.Time{}, fmt.Errorf("timestamp %q: unrecognised format", s)
}

func sortPoints(pts []layout.Point) {
	sort.SliceStable(pts, func(i, j int) bool { return pts[i].T.Before(pts[j].T) })
}

// Source names one series to fetch.
type Source struct {
	ID  string
	Ref string
}

// FetchAll loads every source concurrently. It waits for all fetches and
// returns the results keyed by source id together with every failure
// joined; nothing is retried.
func FetchAll(ctx context.Context, f Fetcher, sources []Source) (map[string][]layout.Point, error) {
	var (
		mu   sync.Mutex
		wg   sync.WaitGroup
		out  = make(map[string][]layout.Point, len(sources))
		errs []error
	)
	for _, src := range sources {
		wg.Add(1)
		go func(src Source) {
			defer wg.Done()
			pts, err := f.Series(ctx, src.Ref)
			mu.Lock()
			defer mu.Unlock()
			if err != nil {
				errs = append(errs, fmt.Errorf("series %s: %w", src.ID, err))
				return
			}
			out[src.ID] = pts
		}(src)
	}
	wg.Wait()
	if len(errs) > 0 {
		sort.Slice(errs, func(i, j int) bool { return errs[i].Error() < errs[j].Error() })
		return out, errors.Join(errs...)
	}
	return out, nil
}
