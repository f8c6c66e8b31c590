// Package extract pulls outbound links out of fetched HTML pages.
package extract

import (
	"bytes"
	"fmt"
	"net/url"
	"strings"

	"github.com/PuerkitoBio/goquery"

	"github.com/JakeFAU/ripples/internal/crawler"
)

const (
	anchorSelector = "a[href]"
	linkSelector   = "link[href]"
)

// Options tunes which elements contribute links.
type Options struct {
	// IncludeLinkTags also collects <link href> targets such as stylesheets
	// and alternates.
	IncludeLinkTags bool
}

// Extractor implements crawler.LinkExtractor with goquery.
type Extractor struct {
	opts Options
}

// New constructs an Extractor.
func New(opts Options) *Extractor {
	return &Extractor{opts: opts}
}

// ExtractLinks returns the absolute http(s) links found in page, in document
// order. Duplicates are kept; the graph collapses them.
func (e *Extractor) ExtractLinks(page crawler.Page) ([]string, error) {
	if len(page.Body) == 0 {
		return nil, nil
	}
	doc, err := goquery.NewDocumentFromReader(bytes.NewReader(page.Body))
	if err != nil {
		return nil, fmt.Errorf("parse html: %w", err)
	}

	base, err := resolveBase(page.BaseURL(), doc)
	if err != nil {
		return nil, err
	}

	selector := anchorSelector
	if e.opts.IncludeLinkTags {
		selector += ", " + linkSelector
	}

	var links []string
	doc.Find(selector).Each(func(_ int, s *goquery.Selection) {
		href, _ := s.Attr("href")
		if link, ok := Resolve(base, href); ok {
			links = append(links, link)
		}
	})
	return links, nil
}

// resolveBase honors a <base href> element when present.
func resolveBase(pageURL string, doc *goquery.Document) (*url.URL, error) {
	base, err := url.Parse(pageURL)
	if err != nil {
		return nil, fmt.Errorf("parse page url %q: %w", pageURL, err)
	}
	if href, ok := doc.Find("base[href]").First().Attr("href"); ok {
		if ref, err := url.Parse(strings.TrimSpace(href)); err == nil {
			base = base.ResolveReference(ref)
		}
	}
	return base, nil
}

// Resolve turns href into an absolute URL relative to base. Empty values,
// fragment-only references and non-http(s) schemes are rejected. The fragment
// is always dropped.
func Resolve(base *url.URL, href string) (string, bool) {
	href = strings.TrimSpace(href)
	if href == "" || strings.HasPrefix(href, "#") {
		return "", false
	}
	ref, err := url.Parse(href)
	if err != nil {
		return "", false
	}
	abs := ref
	if base != nil {
		abs = base.ResolveReference(ref)
	}
	switch strings.ToLower(abs.Scheme) {
	case "http", "https":
	default:
		return "", false
	}
	if abs.Host == "" {
		return "", false
	}
	abs.Fragment = ""
	abs.RawFragment = ""
	return abs.String(), true
}
