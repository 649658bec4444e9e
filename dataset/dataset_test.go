package dataset

import (
	"bytes"
	"context"
	"image"
	"image/color"
	"image/png"
	"net/http"
	"net/http/httptest"
	"os"
	"path/filepath"
	"strings"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ByLCY/chartfolio/layout"
)

func TestDecodeCSVSkipsHeaderAndSorts(t *testing.T) {
	pts, err := DecodeCSV(strings.NewReader("t,v\n2026-03-02T00:00:00Z,2.5\n2026-03-01,1\n# note\n1772496000,3\n"))
	require.NoError(t, err)
	require.Len(t, pts, 3)
	assert.Equal(t, 1.0, pts[0].V)
	assert.Equal(t, 2.5, pts[1].V)
	assert.Equal(t, 3.0, pts[2].V)
	assert.True(t, pts[0].T.Before(pts[1].T))
}

func TestDecodeCSVRejectsBadRows(t *testing.T) {
	_, err := DecodeCSV(strings.NewReader("2026-03-01,1\nyesterday,2\n"))
	require.Error(t, err)
	assert.Contains(t, err.Error(), "line 2")

	_, err = DecodeCSV(strings.NewReader("2026-03-01\n"))
	require.Error(t, err)
}

func TestDecodeJSON(t *testing.T) {
	pts, err := DecodeJSON(strings.NewReader(`[{"t":"2026-03-02T10:00:00Z","v":4},{"t":"2026-03-01T10:00:00Z","v":-1.5}]`))
	require.NoError(t, err)
	require.Len(t, pts, 2)
	assert.Equal(t, -1.5, pts[0].V)
	assert.Equal(t, 2026, pts[1].T.Year())
}

func TestLoaderReadsFilesRelativeToBaseDir(t *testing.T) {
	dir := t.TempDir()
	require.NoError(t, os.WriteFile(filepath.Join(dir, "temp.csv"), []byte("2026-03-01,1\n2026-03-02,2\n"), 0o644))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "ph.json"), []byte(`[{"t":"2026-03-01T00:00:00Z","v":7.1}]`), 0o644))

	l := NewLoader(dir, time.Second, nil)
	pts, err := l.Series(context.Background(), "temp.csv")
	require.NoError(t, err)
	assert.Len(t, pts, 2)

	pts, err = l.Series(context.Background(), "ph.json")
	require.NoError(t, err)
	assert.Equal(t, 7.1, pts[0].V)

	_, err = l.Series(context.Background(), "missing.csv")
	assert.Error(t, err)
}

func TestLoaderInlineAndPermissions(t *testing.T) {
	l := &Loader{Inline: map[string][]layout.Point{"temp": {{T: time.Unix(10, 0), V: 2}, {T: time.Unix(5, 0), V: 1}}}}

	pts, err := l.Series(context.Background(), "inline:temp")
	require.NoError(t, err)
	assert.Equal(t, 1.0, pts[0].V, "inline series are sorted")
	assert.Equal(t, 2.0, l.Inline["temp"][0].V, "caller data is left untouched")

	_, err = l.Series(context.Background(), "inline:nope")
	assert.ErrorIs(t, err, ErrNotFound)
	_, err = l.Series(context.Background(), "/etc/passwd")
	assert.ErrorIs(t, err, ErrForbidden)
	_, err = l.Series(context.Background(), "https://example.invalid/x.csv")
	assert.ErrorIs(t, err, ErrForbidden)
}

func TestLoaderFetchesOverHTTP(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		switch r.URL.Path {
		case "/series":
			w.Header().Set("Content-Type", "application/json")
			_, _ = w.Write([]byte(`[{"t":"2026-03-01T00:00:00Z","v":3}]`))
		case "/logo.png":
			img := image.NewRGBA(image.Rect(0, 0, 4, 2))
			img.Set(0, 0, color.Black)
			_ = png.Encode(w, img)
		default:
			http.NotFound(w, r)
		}
	}))
	defer srv.Close()

	l := NewLoader("", time.Second, nil)
	pts, err := l.Series(context.Background(), srv.URL+"/series")
	require.NoError(t, err)
	require.Len(t, pts, 1)
	assert.Equal(t, 3.0, pts[0].V)

	img, err := l.Image(context.Background(), srv.URL+"/logo.png")
	require.NoError(t, err)
	assert.Equal(t, image.Rect(0, 0, 4, 2), img.Bounds())

	_, err = l.Series(context.Background(), srv.URL+"/missing.csv")
	require.Error(t, err)
	assert.Contains(t, err.Error(), "404")
}

func TestLoaderImageFromFile(t *testing.T) {
	dir := t.TempDir()
	var buf bytes.Buffer
	require.NoError(t, png.Encode(&buf, image.NewGray(image.Rect(0, 0, 3, 3))))
	require.NoError(t, os.WriteFile(filepath.Join(dir, "logo.png"), buf.Bytes(), 0o644))

	img, err := NewLoader(dir, time.Second, nil).Image(context.Background(), "logo.png")
	require.NoError(t, err)
	assert.Equal(t, 3, img.Bounds().Dx())
}

type slowFetcher struct {
	inFlight, peak atomic.Int32
}

func (f *slowFetcher) Series(_ context.Context, ref string) ([]layout.Point, error) {
	n := f.inFlight.Add(1)
	defer f.inFlight.Add(-1)
	for {
		p := f.peak.Load()
		if n <= p || f.peak.CompareAndSwap(p, n) {
			break
		}
	}
	time.Sleep(30 * time.Millisecond)
	if ref == "bad" {
		return nil, ErrNotFound
	}
	return []layout.Point{{V: float64(len(ref))}}, nil
}

func (f *slowFetcher) Image(context.Context, string) (image.Image, error) { return nil, nil }

func TestFetchAllRunsConcurrently(t *testing.T) {
	f := &slowFetcher{}
	out, err := FetchAll(context.Background(), f, []Source{{"a", "x"}, {"b", "xx"}, {"c", "xxx"}})
	require.NoError(t, err)
	assert.Len(t, out, 3)
	assert.Equal(t, 2.0, out["b"][0].V)
	assert.Greater(t, f.peak.Load(), int32(1))
}

func TestFetchAllJoinsFailures(t *testing.T) {
	out, err := FetchAll(context.Background(), &slowFetcher{}, []Source{{"ok", "x"}, {"broken", "bad"}})
	require.Error(t, err)
	assert.ErrorIs(t, err, ErrNotFound)
	assert.Contains(t, err.Error(), "series broken")
	assert.Contains(t, out, "ok")
}
