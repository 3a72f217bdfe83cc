package visual

import (
	"context"
	"fmt"
	"os"
	"path/filepath"
	"time"

	"github.com/chromedp/chromedp"
	"github.com/go-echarts/go-echarts/v2/charts"
	"github.com/go-echarts/go-echarts/v2/opts"

	"kestrel/internal/logger"
	"kestrel/internal/market"
)

// 中文说明：
// K 线图渲染：go-echarts 生成 HTML，chromedp 无头截图成 PNG，给视觉
// 模型当图片输入。渲染失败只是少一张图，不影响决策流程。

type Config struct {
	Width   int
	Height  int
	Dir     string        // HTML 临时文件目录
	Timeout time.Duration // 整个渲染过程的上限
}

type Renderer struct {
	cfg Config
}

func NewRenderer(cfg Config) *Renderer {
	if cfg.Width <= 0 {
		cfg.Width = 1280
	}
	if cfg.Height <= 0 {
		cfg.Height = 720
	}
	if cfg.Dir == "" {
		cfg.Dir = os.TempDir()
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 20 * time.Second
	}
	return &Renderer{cfg: cfg}
}

// Render 实现 market.ChartRenderer。
func (r *Renderer) Render(ctx context.Context, pair string, cs market.Candles) ([]byte, error) {
	if len(cs) == 0 {
		return nil, fmt.Errorf("无 K 线数据可渲染")
	}
	htmlPath, err := r.writeHTML(pair, cs)
	if err != nil {
		return nil, err
	}
	defer os.Remove(htmlPath)
	return r.screenshot(ctx, htmlPath)
}

func (r *Renderer) writeHTML(pair string, cs market.Candles) (string, error) {
	kline := charts.NewKLine()
	kline.SetGlobalOptions(
		charts.WithInitializationOpts(opts.Initialization{
			Width:  fmt.Sprintf("%dpx", r.cfg.Width),
			Height: fmt.Sprintf("%dpx", r.cfg.Height),
		}),
		charts.WithTitleOpts(opts.Title{Title: pair}),
		charts.WithXAxisOpts(opts.XAxis{SplitNumber: 10}),
		charts.WithYAxisOpts(opts.YAxis{Scale: opts.Bool(true)}),
		charts.WithTooltipOpts(opts.Tooltip{Show: opts.Bool(true), Trigger: "axis"}),
	)

	x := make([]string, 0, len(cs))
	y := make([]opts.KlineData, 0, len(cs))
	for _, c := range cs {
		x = append(x, c.TimeString())
		// echarts 蜡烛图取值顺序固定为 [开, 收, 低, 高]
		y = append(y, opts.KlineData{Value: [4]float64{c.Open, c.Close, c.Low, c.High}})
	}
	kline.SetXAxis(x).AddSeries(pair, y)

	if err := os.MkdirAll(r.cfg.Dir, 0o755); err != nil {
		return "", fmt.Errorf("创建渲染目录: %w", err)
	}
	f, err := os.CreateTemp(r.cfg.Dir, "kline-*.html")
	if err != nil {
		return "", err
	}
	defer f.Close()
	if err := kline.Render(f); err != nil {
		os.Remove(f.Name())
		return "", fmt.Errorf("渲染 HTML: %w", err)
	}
	return f.Name(), nil
}

// EnsureHeadlessAvailable 打开一次空白页，确认 headless Chrome 真的能跑。
// 启动时调用，避免到第一个带图周期才发现环境缺浏览器。
func EnsureHeadlessAvailable(ctx context.Context) error {
	tctx, cancel := context.WithTimeout(ctx, 15*time.Second)
	defer cancel()
	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.NoSandbox,
	)
	actx, acancel := chromedp.NewExecAllocator(tctx, allocOpts...)
	defer acancel()
	bctx, bcancel := chromedp.NewContext(actx)
	defer bcancel()
	return chromedp.Run(bctx, chromedp.Navigate("about:blank"))
}

func (r *Renderer) screenshot(ctx context.Context, htmlPath string) ([]byte, error) {
	tctx, cancel := context.WithTimeout(ctx, r.cfg.Timeout)
	defer cancel()

	allocOpts := append(chromedp.DefaultExecAllocatorOptions[:],
		chromedp.Flag("headless", true),
		chromedp.NoSandbox,
	)
	actx, acancel := chromedp.NewExecAllocator(tctx, allocOpts...)
	defer acancel()
	bctx, bcancel := chromedp.NewContext(actx)
	defer bcancel()

	abs, err := filepath.Abs(htmlPath)
	if err != nil {
		return nil, err
	}
	var png []byte
	err = chromedp.Run(bctx,
		chromedp.EmulateViewport(int64(r.cfg.Width), int64(r.cfg.Height)),
		chromedp.Navigate("file://"+abs),
		// 等 echarts 把画布画出来再截
		chromedp.WaitVisible("canvas", chromedp.ByQuery),
		chromedp.Sleep(500*time.Millisecond),
		chromedp.FullScreenshot(&png, 90),
	)
	if err != nil {
		return nil, fmt.Errorf("截图: %w", err)
	}
	logger.Debugf("K 线图渲染完成 %s: %d bytes", filepath.Base(htmlPath), len(png))
	return png, nil
}
