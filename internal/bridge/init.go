package bridge

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/chromedp/chromedp"

	"github.com/Aneesh-Madupalli/Speed-Tune/internal/config"
)

// InitChrome dials a running Chrome when CDP_URL is set, otherwise launches
// one. Returns the allocator and browser contexts with their cancels.
func InitChrome(cfg *config.RuntimeConfig) (context.Context, context.CancelFunc, context.Context, context.CancelFunc, error) {
	var (
		allocCtx    context.Context
		allocCancel context.CancelFunc
	)

	if cfg.CdpURL != "" {
		slog.Info("connecting to chrome", "cdp", cfg.CdpURL)
		allocCtx, allocCancel = chromedp.NewRemoteAllocator(context.Background(), cfg.CdpURL)
	} else {
		if err := os.MkdirAll(cfg.ProfileDir, 0o755); err != nil {
			return nil, nil, nil, nil, fmt.Errorf("create profile dir: %w", err)
		}
		slog.Info("launching chrome", "profile", cfg.ProfileDir, "headless", cfg.Headless)

		opts := append(chromedp.DefaultExecAllocatorOptions[:],
			chromedp.UserDataDir(cfg.ProfileDir),
			chromedp.NoFirstRun,
			chromedp.NoDefaultBrowserCheck,
			// Media autoplay must not require a user gesture, or pages
			// attached headless never start playback.
			chromedp.Flag("autoplay-policy", "no-user-gesture-required"),
		)
		if cfg.ChromeBinary != "" {
			opts = append(opts, chromedp.ExecPath(cfg.ChromeBinary))
		}
		if cfg.Headless {
			opts = append(opts, chromedp.Headless)
		} else {
			opts = append(opts, chromedp.Flag("headless", false))
		}
		allocCtx, allocCancel = chromedp.NewExecAllocator(context.Background(), opts...)
	}

	browserCtx, browserCancel := chromedp.NewContext(allocCtx)
	if err := chromedp.Run(browserCtx); err != nil {
		browserCancel()
		allocCancel()
		return nil, nil, nil, nil, fmt.Errorf("connect to chrome: %w", err)
	}

	return allocCtx, allocCancel, browserCtx, browserCancel, nil
}
