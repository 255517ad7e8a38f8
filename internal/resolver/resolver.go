// Package resolver turns a remote page URL into a local video file.
// Resolution failures are submission-time errors, never job failures.
package resolver

import (
	"context"
	"fmt"
	"io"
	"log"
	"net/http"
	"os"
	"os/exec"
	"path/filepath"
	"strings"
	"time"

	"github.com/chromedp/cdproto/runtime"
	"github.com/chromedp/chromedp"
)

// Resolver downloads remote sources into a local directory.
type Resolver struct {
	downloadDir string
	timeout     time.Duration
}

func New(downloadDir string, timeout time.Duration) *Resolver {
	if timeout <= 0 {
		timeout = 30 * time.Minute
	}
	return &Resolver{downloadDir: downloadDir, timeout: timeout}
}

// Resolve fetches the media behind url into the download directory and
// returns the local path. It first tries to lift a direct stream URL off
// the page with headless Chrome; when the page hides its stream (blob
// sources, segmented players) it falls back to a yt-dlp subprocess.
func (r *Resolver) Resolve(ctx context.Context, url, assetID string) (string, error) {
	outputPath := filepath.Join(r.downloadDir, fmt.Sprintf("%s.mp4", assetID))

	ctx, cancel := context.WithTimeout(ctx, r.timeout)
	defer cancel()

	if src, err := r.extractVideoSource(ctx, url); err == nil && downloadable(src) {
		if err := r.download(ctx, src, outputPath); err == nil {
			return outputPath, nil
		}
		log.Printf("Resolver: direct download of %s failed, falling back to yt-dlp", src)
	}

	if err := r.downloadWithYtDlp(ctx, url, outputPath); err != nil {
		return "", err
	}
	return outputPath, nil
}

// extractVideoSource loads the page in headless Chrome and reads the
// current source of its first <video> element.
func (r *Resolver) extractVideoSource(ctx context.Context, url string) (string, error) {
	ctx, cancel := chromedp.NewContext(ctx)
	defer cancel()

	var src string
	err := chromedp.Run(ctx,
		chromedp.Navigate(url),
		chromedp.WaitReady("body"),
		chromedp.Sleep(2*time.Second), // let the player attach its source
		chromedp.Evaluate(`
			(() => {
				const v = document.querySelector('video');
				if (!v) return '';
				return v.currentSrc || v.src || '';
			})()
		`, &src, func(p *runtime.EvaluateParams) *runtime.EvaluateParams {
			return p.WithAwaitPromise(true)
		}),
	)
	if err != nil {
		return "", fmt.Errorf("failed to inspect page: %v", err)
	}
	if src == "" {
		return "", fmt.Errorf("page has no video source")
	}
	return src, nil
}

// downloadable filters out blob: and data: sources that only exist inside
// the page's media pipeline.
func downloadable(src string) bool {
	return strings.HasPrefix(src, "http://") || strings.HasPrefix(src, "https://")
}

func (r *Resolver) download(ctx context.Context, src, outputPath string) error {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, src, nil)
	if err != nil {
		return err
	}
	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		return fmt.Errorf("failed to fetch stream: %v", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return fmt.Errorf("stream responded %d", resp.StatusCode)
	}

	out, err := os.Create(outputPath)
	if err != nil {
		return fmt.Errorf("failed to create download file: %v", err)
	}
	defer out.Close()

	if _, err := io.Copy(out, resp.Body); err != nil {
		os.Remove(outputPath)
		return fmt.Errorf("failed to write download: %v", err)
	}
	return nil
}

// downloadWithYtDlp shells out to yt-dlp, which knows the per-platform
// extraction tricks this service should not reimplement.
func (r *Resolver) downloadWithYtDlp(ctx context.Context, url, outputPath string) error {
	log.Printf("Resolver: downloading %s via yt-dlp", url)

	cmd := exec.CommandContext(ctx, "yt-dlp",
		"-f", "mp4/bestvideo+bestaudio",
		"--merge-output-format", "mp4",
		"-o", outputPath,
		url,
	)
	output, err := cmd.CombinedOutput()
	if err != nil {
		tail := string(output)
		if len(tail) > 1024 {
			tail = tail[len(tail)-1024:]
		}
		return fmt.Errorf("yt-dlp failed: %v: %s", err, strings.TrimSpace(tail))
	}
	return nil
}
