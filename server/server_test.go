package server

import (
	"bytes"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ByLCY/chartfolio/document"
	"github.com/ByLCY/chartfolio/layout"
	"github.com/ByLCY/chartfolio/poll"
)

const exportDSL = `report Weekly v1 {
  meta { title: "Pond weekly" }
  page A4 portrait margin 20pt scale 1 width 480
  capacity 1
  header { title: "<b>Water</b> & quality" subtitle: "Page ${page} / ${pages}" }
  chart temp { title: "Temperature" height: 160 }
  chart ph { title: "pH" height: 160 }
}`

func newTestServer() *Server {
	return New(nil, Options{Readiness: poll.Budget{Attempts: 50, Interval: 5 * time.Millisecond}}, nil)
}

func series(n int) []layout.Point {
	t0 := time.Date(2026, 3, 1, 0, 0, 0, 0, time.UTC)
	out := make([]layout.Point, n)
	for i := range out {
		out[i] = layout.Point{T: t0.Add(time.Duration(i) * time.Hour), V: float64(i % 7)}
	}
	return out
}

func post(t *testing.T, s *Server, body any) *httptest.ResponseRecorder {
	t.Helper()
	var buf bytes.Buffer
	require.NoError(t, json.NewEncoder(&buf).Encode(body))
	req := httptest.NewRequest(http.MethodPost, "/v1/exports", &buf)
	req.Header.Set("Content-Type", "application/json")
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	return rec
}

func TestHealthz(t *testing.T) {
	rec := httptest.NewRecorder()
	newTestServer().Handler().ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	assert.Equal(t, http.StatusOK, rec.Code)
	assert.Contains(t, rec.Body.String(), `"status":"ok"`)
}

func TestExportReturnsPDF(t *testing.T) {
	s := newTestServer()
	rec := post(t, s, ExportRequest{
		Report: exportDSL,
		Series: map[string][]layout.Point{"temp": series(48), "ph": series(24)},
	})
	require.Equal(t, http.StatusOK, rec.Code, rec.Body.String())
	assert.Equal(t, "application/pdf", rec.Header().Get("Content-Type"))
	assert.Equal(t, "2", rec.Header().Get("X-Chartfolio-Pages"))
	assert.True(t, bytes.HasPrefix(rec.Body.Bytes(), []byte("%PDF")))

	n, err := document.CountPagesReader(bytes.NewReader(rec.Body.Bytes()))
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.Zero(t, s.composer.Scratch().Len())
}

func TestExportEmptyReportHasNoContent(t *testing.T) {
	rec := post(t, newTestServer(), ExportRequest{Report: "report Empty v1 {\n}\n"})
	assert.Equal(t, http.StatusNoContent, rec.Code)
	assert.Zero(t, rec.Body.Len())
}

func TestExportRejectsBadInput(t *testing.T) {
	s := newTestServer()

	req := httptest.NewRequest(http.MethodPost, "/v1/exports", strings.NewReader("{"))
	rec := httptest.NewRecorder()
	s.Handler().ServeHTTP(rec, req)
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, s, ExportRequest{Report: "doc Old v1 {}"})
	assert.Equal(t, http.StatusBadRequest, rec.Code)

	rec = post(t, s, ExportRequest{Report: exportDSL, Series: map[string][]layout.Point{"temp": series(3)}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, "ph series is missing")
	assert.Contains(t, rec.Body.String(), "ph")
}

func TestExportRefusesFileAndURLReferences(t *testing.T) {
	s := newTestServer()
	for _, src := range []string{
		"report R v1 {\n chart t { source: \"/etc/hosts\" }\n}",
		"report R v1 {\n chart t { source: \"http://127.0.0.1:1/x.csv\" }\n}",
		"report R v1 {\n image i { src: \"logo.png\" }\n}",
	} {
		rec := post(t, s, ExportRequest{Report: src})
		assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, src)
		assert.Contains(t, rec.Body.String(), "not allowed")
	}
}

func TestPlainTextStripsMarkup(t *testing.T) {
	s := newTestServer()
	assert.Equal(t, "Water & quality", s.plainText("<b>Water</b> & quality"))
	assert.Equal(t, "hi", s.plainText(`<script>alert(1)</script>hi`))
}

func TestExportRefusesOversizedRaster(t *testing.T) {
	s := newTestServer()
	rec := post(t, s, ExportRequest{Report: "report R v1 {\n page A4 width 200000 scale 40\n}"})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code)
	assert.Contains(t, rec.Body.String(), "limit")

	// Each chart fits on its own, but three on one page do not.
	tall := `report R v1 {
  page A4 width 400 scale 2
  capacity 3
  chart a { height: 3000 }
  chart b { height: 3000 }
  chart c { height: 3000 }
}`
	rec = post(t, s, ExportRequest{Report: tall, Series: map[string][]layout.Point{"a": series(4), "b": series(4), "c": series(4)}})
	assert.Equal(t, http.StatusUnprocessableEntity, rec.Code, rec.Body.String())
	assert.Contains(t, rec.Body.String(), "too large")
	assert.Zero(t, s.composer.Scratch().Len())
}
