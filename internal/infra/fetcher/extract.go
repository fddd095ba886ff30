package fetcher

import (
	"bytes"
	"fmt"
	"mime"
	"net/http"
	"net/url"
	"sort"
	"strings"
	"time"

	"github.com/PuerkitoBio/goquery"
	"github.com/go-shiori/go-readability"
	"github.com/mmcdole/gofeed"
)

// Content types reported in FetchResult.ContentType.
const (
	ContentTypeHTML = "text/html"
	ContentTypeFeed = "application/feed"
	ContentTypeText = "text/plain"
)

// sniff decides how a body is rendered to text. The declared type wins for
// HTML and plain text; XML and JSON bodies are checked for a feed.
func sniff(declared string, body []byte) string {
	mediaType, _, err := mime.ParseMediaType(declared)
	if err != nil || mediaType == "" {
		mediaType, _, _ = mime.ParseMediaType(http.DetectContentType(body))
	}

	switch {
	case mediaType == "text/html" || mediaType == "application/xhtml+xml":
		return ContentTypeHTML
	case strings.Contains(mediaType, "xml") || strings.Contains(mediaType, "json") ||
		strings.Contains(mediaType, "rss") || strings.Contains(mediaType, "atom"):
		if gofeed.DetectFeedType(bytes.NewReader(body)) != gofeed.FeedTypeUnknown {
			return ContentTypeFeed
		}
		return ContentTypeText
	default:
		return ContentTypeText
	}
}

// render turns body into the text handed to change detection.
func render(kind string, body []byte, pageURL *url.URL, chromeSelectors []string) (string, error) {
	switch kind {
	case ContentTypeHTML:
		return extractHTML(body, pageURL, chromeSelectors)
	case ContentTypeFeed:
		return renderFeed(body)
	default:
		text := strings.TrimSpace(string(body))
		if text == "" {
			return "", fmt.Errorf("%w: empty body", ErrExtractionFailed)
		}
		return text, nil
	}
}

// extractHTML strips page chrome with goquery and keeps the main content
// found by readability. Pages readability rejects fall back to the text of
// the stripped body. Either way the result is one line per block element,
// so re-wrapping the page source does not change it.
func extractHTML(body []byte, pageURL *url.URL, chromeSelectors []string) (string, error) {
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: parse HTML: %v", ErrExtractionFailed, err)
	}
	if len(chromeSelectors) > 0 {
		doc.Find(strings.Join(chromeSelectors, ", ")).Remove()
	}

	cleaned, err := doc.Html()
	if err == nil {
		article, rerr := readability.FromReader(strings.NewReader(cleaned), pageURL)
		if rerr == nil {
			if text := articleText(article.Content, article.TextContent); text != "" {
				return text, nil
			}
		}
	}

	text := blockText(doc.Find("body"))
	if text == "" {
		return "", fmt.Errorf("%w: no readable content found", ErrExtractionFailed)
	}
	return text, nil
}

// articleText renders readability's cleaned HTML by block. The flattened
// TextContent is only used, whitespace-collapsed, when Content is unusable.
func articleText(content, textContent string) string {
	if content != "" {
		if doc, err := goquery.NewDocumentFromReader(strings.NewReader(content)); err == nil {
			if text := blockText(doc.Selection); text != "" {
				return text
			}
		}
	}
	return strings.Join(strings.Fields(textContent), " ")
}

// blockElements end the current line when they open and when they close.
var blockElements = map[string]bool{
	"address": true, "article": true, "aside": true, "blockquote": true, "br": true,
	"dd": true, "div": true, "dl": true, "dt": true, "figcaption": true, "figure": true,
	"footer": true, "form": true, "h1": true, "h2": true, "h3": true, "h4": true,
	"h5": true, "h6": true, "header": true, "hr": true, "li": true, "main": true,
	"nav": true, "ol": true, "p": true, "pre": true, "section": true, "table": true,
	"tbody": true, "td": true, "tfoot": true, "th": true, "thead": true, "tr": true,
	"ul": true,
}

// blockText renders sel as one line per block element. Whitespace inside a
// block, source line breaks included, collapses to a single space.
func blockText(sel *goquery.Selection) string {
	var (
		lines []string
		cur   strings.Builder
	)
	flush := func() {
		if line := strings.Join(strings.Fields(cur.String()), " "); line != "" {
			lines = append(lines, line)
		}
		cur.Reset()
	}

	var walk func(*goquery.Selection)
	walk = func(s *goquery.Selection) {
		s.Contents().Each(func(_ int, c *goquery.Selection) {
			switch name := goquery.NodeName(c); {
			case name == "#text":
				cur.WriteString(c.Text())
			case name == "#comment", name == "script", name == "style", name == "noscript", name == "template":
			case blockElements[name]:
				flush()
				walk(c)
				flush()
			default:
				walk(c)
			}
		})
	}
	walk(sel)
	flush()
	return strings.Join(lines, "\n")
}

// renderFeed lists feed entries as "title | link | published" lines in a
// stable order, so a new entry shows up as a changed page.
func renderFeed(body []byte) (string, error) {
	feed, err := gofeed.NewParser().Parse(bytes.NewReader(body))
	if err != nil {
		return "", fmt.Errorf("%w: parse feed: %v", ErrExtractionFailed, err)
	}

	lines := make([]string, 0, len(feed.Items))
	for _, item := range feed.Items {
		if item == nil {
			continue
		}
		published := item.Published
		switch {
		case item.PublishedParsed != nil:
			published = item.PublishedParsed.UTC().Format(time.RFC3339)
		case item.UpdatedParsed != nil:
			published = item.UpdatedParsed.UTC().Format(time.RFC3339)
		}
		lines = append(lines, strings.Join([]string{
			strings.TrimSpace(item.Title), strings.TrimSpace(item.Link), published,
		}, " | "))
	}
	sort.Strings(lines)

	header := strings.TrimSpace(feed.Title)
	if header == "" && len(lines) == 0 {
		return "", fmt.Errorf("%w: feed has no title and no items", ErrExtractionFailed)
	}
	return strings.Join(append([]string{header}, lines...), "\n"), nil
}
