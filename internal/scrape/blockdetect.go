package scrape

import (
	"net/http"
	"strings"
)

// BlockType describes the kind of anti-bot page detected.
type BlockType string

const (
	BlockNone       BlockType = ""
	BlockCloudflare BlockType = "cloudflare"
	BlockCaptcha    BlockType = "captcha"
	BlockJSShell    BlockType = "js_shell"
)

var challengeMarkers = map[BlockType][]string{
	BlockCloudflare: {"checking your browser", "cf-browser-verification", "just a moment..."},
	BlockCaptcha:    {"g-recaptcha", "h-captcha", "captcha-container", "are you a robot"},
}

// DetectBlock checks a response for a challenge page instead of a listing.
// Marketplaces often answer 200 with an interstitial, so the body is checked
// regardless of status.
func DetectBlock(resp *http.Response, body []byte) BlockType {
	if resp == nil {
		return BlockNone
	}

	if resp.StatusCode == http.StatusForbidden || resp.StatusCode == http.StatusServiceUnavailable {
		if resp.Header.Get("cf-ray") != "" || strings.EqualFold(resp.Header.Get("server"), "cloudflare") {
			return BlockCloudflare
		}
	}

	lower := strings.ToLower(string(body))
	for _, bt := range []BlockType{BlockCloudflare, BlockCaptcha} {
		for _, m := range challengeMarkers[bt] {
			if strings.Contains(lower, m) {
				return bt
			}
		}
	}

	// Small shells that render everything client-side.
	if len(body) < 2000 && strings.Contains(lower, "<noscript") && strings.Contains(lower, "enable javascript") {
		return BlockJSShell
	}
	return BlockNone
}
