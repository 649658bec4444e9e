package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"os"
	"os/signal"
	"path/filepath"
	"syscall"

	"github.com/ByLCY/chartfolio/compose"
	"github.com/ByLCY/chartfolio/config"
	"github.com/ByLCY/chartfolio/dataset"
	"github.com/ByLCY/chartfolio/document"
	"github.com/ByLCY/chartfolio/dsl"
	"github.com/ByLCY/chartfolio/layout"
	"github.com/ByLCY/chartfolio/rasterize"
	"github.com/ByLCY/chartfolio/rasterize/rodshot"
	"github.com/ByLCY/chartfolio/report"
	"github.com/ByLCY/chartfolio/server"
)

func main() {
	os.Exit(realMain())
}

func realMain() int {
	input := flag.String("in", "examples/weekly.report", "报表描述文件路径")
	output := flag.String("out", "output/report.pdf", "PDF 输出路径")
	cfgPath := flag.String("config", "", "配置文件路径（.yaml/.yml/.toml）")
	debug := flag.String("debug", "", "分页与几何调试 JSON 输出路径")
	legacy := flag.Bool("legacy", false, "将第一个块整体截图后按页切片")
	verify := flag.Bool("verify", false, "导出后使用 pdfcpu 校验页数")
	serve := flag.Bool("serve", false, "启动 HTTP 导出服务")
	flag.Parse()

	cfg, err := config.Load(*cfgPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "加载配置失败: %v\n", err)
		return 2
	}
	logger := newLogger(cfg.Log)
	slog.SetDefault(logger)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	composer, closeShooter, err := newComposer(cfg, logger)
	if err != nil {
		logger.Error("初始化导出器失败", "error", err)
		return 1
	}
	defer closeShooter()

	if *serve {
		srv := server.New(composer, server.Options{
			Geometry:  geometry(cfg),
			Readiness: cfg.Readiness.Budget(),
			MaxSidePx: cfg.MaxSidePx,
		}, logger)
		if err := srv.ListenAndServe(ctx, cfg.Server.Addr); err != nil {
			logger.Error("HTTP 服务异常退出", "error", err)
			return 1
		}
		return 0
	}

	res, err := run(ctx, composer, cfg, runOptions{
		input:  *input,
		output: *output,
		debug:  *debug,
		legacy: *legacy,
		verify: *verify,
	}, logger)
	if err != nil {
		logger.Error("生成 PDF 失败", "error", err)
		return 1
	}
	if res.Pages == 0 {
		fmt.Println("没有可导出的内容")
		return 0
	}
	fmt.Printf("已生成 PDF：%s（%d 页）\n", *output, res.Pages)
	return 0
}

type runOptions struct {
	input  string
	output string
	debug  string
	legacy bool
	verify bool
}

// run 串联解析、取数、分页截图与写出。
func run(ctx context.Context, composer *compose.Composer, cfg *config.Config, ro runOptions, logger *slog.Logger) (compose.Result, error) {
	var res compose.Result
	doc, err := dsl.ParseFile(ro.input)
	if err != nil {
		return res, fmt.Errorf("解析报表失败: %w", err)
	}

	loader := dataset.NewLoader(filepath.Dir(ro.input), cfg.HTTP.Timeout, logger)
	job, err := report.Build(ctx, doc, loader, report.BuildOptions{Geometry: geometry(cfg), MaxSidePx: cfg.MaxSidePx})
	if err != nil {
		return res, err
	}

	if err := os.MkdirAll(filepath.Dir(ro.output), 0o755); err != nil {
		return res, fmt.Errorf("创建输出目录失败: %w", err)
	}
	opts := job.Options
	opts.Filename = ro.output
	opts.Debug = ro.debug
	opts.Readiness = cfg.Readiness.Budget()

	if ro.legacy {
		if len(job.Blocks) == 0 {
			return res, nil
		}
		if len(job.Blocks) > 1 {
			logger.Warn("legacy 模式只导出第一个块", "blocks", len(job.Blocks))
		}
		res, err = composer.ComposeLegacy(ctx, job.Blocks[0], opts)
	} else {
		res, err = composer.Compose(ctx, job.Blocks, opts)
	}
	if err != nil {
		return res, err
	}
	if res.Unready > 0 {
		logger.Warn("部分图表在截图时尚未完成布局", "unready", res.Unready)
	}

	if ro.verify && res.Pages > 0 {
		n, err := document.CountPages(ro.output)
		if err != nil {
			return res, fmt.Errorf("校验 PDF 失败: %w", err)
		}
		if n != res.Pages {
			return res, fmt.Errorf("校验 PDF 失败: 期望 %d 页，实际 %d 页", res.Pages, n)
		}
		logger.Info("PDF 校验通过", "pages", n)
	}
	return res, nil
}

func newLogger(lc config.LogConfig) *slog.Logger {
	level, _ := lc.SlogLevel()
	opts := &slog.HandlerOptions{Level: level}
	if lc.Format == "json" {
		return slog.New(slog.NewJSONHandler(os.Stderr, opts))
	}
	return slog.New(slog.NewTextHandler(os.Stderr, opts))
}

// newComposer 按配置选择截图方式与 PDF 后端。返回的函数负责释放浏览器。
func newComposer(cfg *config.Config, logger *slog.Logger) (*compose.Composer, func(), error) {
	closeFn := func() {}
	var shooter rasterize.Screenshotter
	if cfg.Screenshotter == config.ShooterRod {
		s, err := rodshot.Connect(cfg.Rod.ControlURL, logger)
		if err != nil {
			return nil, closeFn, fmt.Errorf("连接浏览器失败: %w", err)
		}
		shooter = s
		closeFn = func() {
			if err := s.Close(); err != nil {
				logger.Warn("关闭浏览器失败", "error", err)
			}
		}
	}

	var newPrimitive func() document.Primitive
	if cfg.Backend == config.BackendFPDF {
		newPrimitive = func() document.Primitive { return document.NewFPDF() }
	}
	return compose.New(rasterize.New(shooter, logger), newPrimitive, logger), closeFn, nil
}

func geometry(cfg *config.Config) layout.PageGeometry {
	g := layout.DefaultGeometry()
	g.Scale = cfg.Scale
	g.WidthPx = cfg.WidthPx
	return g
}
