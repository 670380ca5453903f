// Package extractor turns a fetched HTML page into one clean text blob.
package extractor

import (
	"fmt"
	"io"
	"regexp"
	"strings"

	"github.com/PuerkitoBio/goquery"
)

// NavigationSelector matches the site navigation container removed before extraction.
const NavigationSelector = "div.navbar_container"

// whitespace covers newlines, tabs, runs of spaces and non-breaking spaces.
var whitespace = regexp.MustCompile(`[\s\x{00a0}]+`)

// Extract removes the first header, the first footer and the navigation
// container from the body of doc, then returns its text with whitespace
// collapsed.
func Extract(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}

	body := doc.Find("body")
	body.Find("header").First().Remove()
	body.Find("footer").First().Remove()
	body.Find(NavigationSelector).Remove()
	// Script and style contents are not page text.
	body.Find("script, style, noscript").Remove()

	return Normalize(body.Text())
}

// ExtractHTML parses r as HTML and extracts its text.
func ExtractHTML(r io.Reader) (string, error) {
	doc, err := goquery.NewDocumentFromReader(r)
	if err != nil {
		return "", fmt.Errorf("failed to parse html: %w", err)
	}
	return Extract(doc), nil
}

// Title returns the trimmed <title> of doc, or "" when absent.
func Title(doc *goquery.Document) string {
	if doc == nil {
		return ""
	}
	return Normalize(doc.Find("title").First().Text())
}

// Normalize collapses every whitespace run into a single ASCII space.
func Normalize(text string) string {
	return strings.TrimSpace(whitespace.ReplaceAllString(text, " "))
}
