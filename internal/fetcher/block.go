package fetcher

import (
	"fmt"
	"net/http"
	"strings"

	"github.com/IshaanNene/unitscout/internal/types"
)

// DefaultBlockPatterns are content markers of captcha, robot-check and
// error pages served instead of results.
var DefaultBlockPatterns = []string{
	"/errors/validateCaptcha",
	"Type the characters you see in this image",
	"Enter the characters you see below",
	"表示されている文字を入力してください",
	"ロボットではないことを確認",
	"認証が必要",
	"Sorry! Something went wrong",
	"申し訳ありませんが、問題が発生しました",
	"api-services-support@amazon.com",
}

// BlockDetector recognises anti-automation responses.
type BlockDetector struct {
	patterns []string
}

// NewBlockDetector creates a detector over the default patterns plus extra.
func NewBlockDetector(extra []string) *BlockDetector {
	patterns := make([]string, 0, len(DefaultBlockPatterns)+len(extra))
	for _, p := range append(append([]string{}, DefaultBlockPatterns...), extra...) {
		if p = strings.TrimSpace(p); p != "" {
			patterns = append(patterns, strings.ToLower(p))
		}
	}
	return &BlockDetector{patterns: patterns}
}

// Check returns a *types.BlockedError when resp is a block page.
func (d *BlockDetector) Check(resp *types.Response) error {
	switch resp.StatusCode {
	case http.StatusServiceUnavailable, http.StatusTooManyRequests:
		return &types.BlockedError{
			URL:        resp.URL(),
			Pattern:    fmt.Sprintf("HTTP %d", resp.StatusCode),
			StatusCode: resp.StatusCode,
		}
	}

	body := strings.ToLower(string(resp.Body))
	for _, p := range d.patterns {
		if strings.Contains(body, p) {
			return &types.BlockedError{URL: resp.URL(), Pattern: p, StatusCode: resp.StatusCode}
		}
	}
	return nil
}
