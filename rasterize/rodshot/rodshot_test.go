package rodshot

import (
	"bytes"
	"context"
	"image/color"
	"os"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/ByLCY/chartfolio/layout"
	"github.com/ByLCY/chartfolio/rasterize"
	"github.com/ByLCY/chartfolio/scene"
)

func TestDocumentSizesStage(t *testing.T) {
	doc, err := Document(320, 180, func(buf *bytes.Buffer) error {
		buf.WriteString("<svg></svg>")
		return nil
	})
	require.NoError(t, err)
	assert.Contains(t, doc, `<div id="stage"><svg></svg></div>`)
	assert.Contains(t, doc, "width:320.000px;height:180.000px")
	assert.True(t, strings.HasPrefix(doc, "<!DOCTYPE html>"))
}

// 需要可用的 Chrome；设置 CHARTFOLIO_ROD_URL 指向 DevTools 地址时运行。
func TestScreenshotThroughBrowser(t *testing.T) {
	url := os.Getenv("CHARTFOLIO_ROD_URL")
	if url == "" {
		t.Skip("CHARTFOLIO_ROD_URL not set")
	}
	s, err := Connect(url, nil)
	require.NoError(t, err)
	defer s.Close()

	root := &scene.Element{Style: scene.Style{WidthPx: 200}}
	header := &scene.HeaderBlock{Header: layout.Header{Title: "Weekly"}}
	root.Append(scene.NewItem("h", header))

	r := rasterize.New(s, nil)
	img, _, err := r.Capture(context.Background(), root, rasterize.Options{Scale: 2, Background: color.White})
	require.NoError(t, err)
	assert.Equal(t, 400, img.Bounds().Dx())
}
