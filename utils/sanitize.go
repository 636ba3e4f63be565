package utils

import (
	"regexp"
	"strings"

	"github.com/microcosm-cc/bluemonday"
)

// cleanPolicy whitelists the handful of inline tags posts may carry. Links
// keep only a validated href and are forced to rel="nofollow"; everything
// else, including inline styles, is stripped.
var cleanPolicy = func() *bluemonday.Policy {
	p := bluemonday.NewPolicy()
	p.AllowElements("br", "p", "b", "i", "strong", "em")
	p.AllowAttrs("href").OnElements("a")
	p.AllowStandardURLs()
	p.RequireNoFollowOnLinks(true)
	return p
}()

var (
	blockTagRe = regexp.MustCompile(`(?i)</?(?:p|div|blockquote)[^>]*>`)
	brTagRe    = regexp.MustCompile(`(?i)<br[^>]*>`)
	anchorRe   = regexp.MustCompile(`(?is)<a\b[^>]*>.*?</a>`)
	bareURLRe  = regexp.MustCompile(`https?://[^\s<>"']+`)
	runsRe     = regexp.MustCompile(`\n{3,}`)
)

// CleanContent derives the sanitized rendering of raw user markup:
// paragraph and line-break markup is normalized into plain line breaks,
// bare URLs are auto-linked, and only whitelisted tags survive. The
// function is idempotent: running it on its own output yields the same
// string, so the async cleaning job can be retried freely.
func CleanContent(raw string) string {
	s := blockTagRe.ReplaceAllString(raw, "\n")
	s = brTagRe.ReplaceAllString(s, "\n")
	s = linkifyOutsideAnchors(s)
	s = runsRe.ReplaceAllString(s, "\n\n")
	s = strings.TrimSpace(s)
	s = strings.ReplaceAll(s, "\n", "<br/>")
	return strings.TrimSpace(cleanPolicy.Sanitize(s))
}

// linkifyOutsideAnchors wraps bare URLs in anchor tags, leaving anything
// already inside an <a> element untouched so re-cleaning never nests links.
func linkifyOutsideAnchors(s string) string {
	var b strings.Builder
	last := 0
	for _, loc := range anchorRe.FindAllStringIndex(s, -1) {
		b.WriteString(linkify(s[last:loc[0]]))
		b.WriteString(s[loc[0]:loc[1]])
		last = loc[1]
	}
	b.WriteString(linkify(s[last:]))
	return b.String()
}

func linkify(s string) string {
	return bareURLRe.ReplaceAllString(s, `<a href="$0">$0</a>`)
}
