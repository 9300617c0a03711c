package utils

import (
	"fmt"
	"net/url"
	"strings"
)

// ClickTrackURL builds the redirect URL for one rewritten link. The link
// index is zero-based and stable within a single body, which is what lets a
// click attribute back to a specific link.
func ClickTrackURL(baseURL string, sentBroadcastID uint, linkIndex int, originalURL, email string) string {
	return fmt.Sprintf("%s/t/c/%d/%d?url=%s&r=%s",
		baseURL, sentBroadcastID, linkIndex,
		url.QueryEscape(originalURL), url.QueryEscape(email))
}

// OpenPixelURL builds the 1x1 open-tracking beacon URL for one recipient.
func OpenPixelURL(baseURL string, sentBroadcastID uint, email string) string {
	return fmt.Sprintf("%s/t/o/%d?r=%s", baseURL, sentBroadcastID, url.QueryEscape(email))
}

// InjectTracking personalizes an HTML body for one recipient: every link
// target is rewritten to a click-tracking redirect and an open pixel is
// appended. mailto:, tel:, bare-fragment and placeholder hrefs are left
// alone.
func InjectTracking(html, baseURL string, sentBroadcastID uint, email string) string {
	rewritten := RewriteLinks(html, func(index int, target string) string {
		return ClickTrackURL(baseURL, sentBroadcastID, index, target, email)
	})

	pixel := fmt.Sprintf(`<img src="%s" alt="" width="1" height="1" style="display:none">`,
		OpenPixelURL(baseURL, sentBroadcastID, email))
	return rewritten + pixel
}

// RewriteLinks replaces every href target in the body with rewrite(index,
// target), assigning strictly increasing zero-based indices in document
// order. Targets that are not real outbound pages (mailto:, tel:, "#..." and
// unresolved {{...}} placeholders) are skipped and consume no index.
func RewriteLinks(html string, rewrite func(index int, target string) string) string {
	const startTag = `<a href="`
	const endTag = `"`

	var b strings.Builder
	b.Grow(len(html))

	index := 0
	rest := html
	for {
		start := strings.Index(rest, startTag)
		if start == -1 {
			b.WriteString(rest)
			return b.String()
		}
		start += len(startTag)

		end := strings.Index(rest[start:], endTag)
		if end == -1 {
			b.WriteString(rest)
			return b.String()
		}
		end += start

		target := rest[start:end]
		b.WriteString(rest[:start])
		if skipRewrite(target) {
			b.WriteString(target)
		} else {
			b.WriteString(rewrite(index, target))
			index++
		}
		rest = rest[end:]
	}
}

func skipRewrite(target string) bool {
	return strings.HasPrefix(target, "mailto:") ||
		strings.HasPrefix(target, "tel:") ||
		strings.HasPrefix(target, "#") ||
		strings.HasPrefix(target, "{{")
}
