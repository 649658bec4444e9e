// Package rodshot captures staged containers through a headless Chrome.
// The tree is painted to SVG, loaded into a blank tab and screenshotted
// element-wise at the requested device scale factor.
package rodshot

import (
	"bytes"
	"context"
	"fmt"
	"image"
	"image/png"
	"log/slog"
	"math"

	"github.com/go-rod/rod"
	"github.com/go-rod/rod/lib/launcher"
	"github.com/go-rod/rod/lib/proto"
	"github.com/tdewolff/canvas/renderers/svg"

	"github.com/ByLCY/chartfolio/rasterize"
	"github.com/ByLCY/chartfolio/scene"
)

const stageSelector = "#stage"

// Screenshotter implements rasterize.Screenshotter on a rod browser.
type Screenshotter struct {
	browser  *rod.Browser
	launcher *launcher.Launcher
	logger   *slog.Logger
}

var _ rasterize.Screenshotter = (*Screenshotter)(nil)

// Connect attaches to controlURL, or launches a local headless Chrome when
// controlURL is empty.
func Connect(controlURL string, logger *slog.Logger) (*Screenshotter, error) {
	if logger == nil {
		logger = slog.Default()
	}
	s := &Screenshotter{logger: logger}
	if controlURL == "" {
		l := launcher.New().Headless(true)
		u, err := l.Launch()
		if err != nil {
			return nil, fmt.Errorf("rodshot: launch: %w", err)
		}
		controlURL = u
		s.launcher = l
		logger.Info("rodshot: launched local chrome", "url", u)
	}
	b := rod.New().ControlURL(controlURL)
	if err := b.Connect(); err != nil {
		s.cleanup()
		return nil, fmt.Errorf("rodshot: connect: %w", err)
	}
	s.browser = b
	return s, nil
}

// Close disconnects and stops a locally launched browser.
func (s *Screenshotter) Close() error {
	var err error
	if s.browser != nil {
		err = s.browser.Close()
	}
	s.cleanup()
	return err
}

func (s *Screenshotter) cleanup() {
	if s.launcher != nil {
		s.launcher.Kill()
		s.launcher = nil
	}
}

func (s *Screenshotter) Screenshot(ctx context.Context, root *scene.Element, shot rasterize.Shot) (image.Image, error) {
	c, err := rasterize.PaintCanvas(root, shot.Background, shot.Skip)
	if err != nil {
		return nil, err
	}
	doc, err := Document(c.W, c.H, func(buf *bytes.Buffer) error {
		r := svg.New(buf, c.W, c.H, nil)
		c.RenderTo(r)
		return r.Close()
	})
	if err != nil {
		return nil, err
	}

	page, err := s.browser.Context(ctx).Page(proto.TargetCreateTarget{URL: ""})
	if err != nil {
		return nil, fmt.Errorf("rodshot: create tab: %w", err)
	}
	defer page.Close()

	scale := shot.Scale
	if scale <= 0 {
		scale = 1
	}
	if err := page.SetViewport(&proto.EmulationSetDeviceMetricsOverride{
		Width:             int(math.Ceil(c.W)),
		Height:            int(math.Ceil(c.H)),
		DeviceScaleFactor: scale,
	}); err != nil {
		return nil, fmt.Errorf("rodshot: viewport: %w", err)
	}
	if err := page.SetDocumentContent(doc); err != nil {
		return nil, fmt.Errorf("rodshot: load: %w", err)
	}
	if err := page.WaitLoad(); err != nil {
		return nil, fmt.Errorf("rodshot: wait load: %w", err)
	}
	el, err := page.Element(stageSelector)
	if err != nil {
		return nil, fmt.Errorf("rodshot: find stage: %w", err)
	}
	data, err := el.Screenshot(proto.PageCaptureScreenshotFormatPng, 0)
	if err != nil {
		return nil, fmt.Errorf("rodshot: screenshot: %w", err)
	}
	img, err := png.Decode(bytes.NewReader(data))
	if err != nil {
		return nil, fmt.Errorf("rodshot: decode: %w", err)
	}
	s.logger.Debug("rodshot: captured", "width", img.Bounds().Dx(), "height", img.Bounds().Dy(), "scale", scale)
	return img, nil
}

// Document wraps an SVG rendering in an HTML page whose stage element is
// exactly widthPx × heightPx CSS pixels.
func Document(widthPx, heightPx float64, render func(*bytes.Buffer) error) (string, error) {
	var body bytes.Buffer
	if err := render(&body); err != nil {
		return "", fmt.Errorf("rodshot: svg: %w", err)
	}
	return fmt.Sprintf(`<!DOCTYPE html><html><head><style>
html,body{margin:0;padding:0;background:transparent}
%s{width:%.3fpx;height:%.3fpx;overflow:hidden}
%s svg{display:block;width:100%%;height:100%%}
</style></head><body><div id="stage">%s</div></body></html>`,
		stageSelector, widthPx, heightPx, stageSelector, body.String()), nil
}
