package utils

import (
	"strings"
	"unicode"

	"github.com/PuerkitoBio/goquery"
)

// HTMLToText extracts the plain text of an HTML fragment. Used for the
// excerpt embedded in notification mails.
func HTMLToText(htmlStr string) string {
	if htmlStr == "" {
		return ""
	}
	// <br> contributes no text node, so turn breaks into whitespace first
	htmlStr = brTagRe.ReplaceAllString(htmlStr, " ")
	doc, err := goquery.NewDocumentFromReader(strings.NewReader(htmlStr))
	if err != nil {
		return htmlStr
	}
	text := doc.Text()
	// collapse whitespace runs left behind by stripped tags
	return strings.Join(strings.FieldsFunc(text, unicode.IsSpace), " ")
}

// Excerpt returns at most n runes of the plain text of htmlStr, with an
// ellipsis when truncated.
func Excerpt(htmlStr string, n int) string {
	text := HTMLToText(htmlStr)
	runes := []rune(text)
	if len(runes) <= n {
		return text
	}
	return strings.TrimSpace(string(runes[:n])) + "…"
}
