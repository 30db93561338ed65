// Package scrape crawls documentation sites for the offline indexing
// step. Pages are fetched with colly, boiled down to readable text, and
// handed to the indexer for embedding.
package scrape

import (
	"bytes"
	"context"
	"fmt"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/PuerkitoBio/goquery"
	readability "github.com/go-shiori/go-readability"
	"github.com/gocolly/colly/v2"

	"github.com/rosslabs/ross/internal/log"
)

// Page is one crawled documentation page.
type Page struct {
	URL     string
	Title   string
	Content string
}

// Config bounds a crawl.
type Config struct {
	// AllowedDomains restricts the crawl; empty means the start URL's
	// domain only.
	AllowedDomains []string

	// MaxDepth limits link following from the start URL. Defaults to 2.
	MaxDepth int

	// Parallelism is the number of concurrent fetches. Defaults to 2.
	Parallelism int

	// Delay between requests to the same domain.
	Delay time.Duration

	// Timeout per request. Defaults to 30s.
	Timeout time.Duration
}

// Crawler fetches documentation pages.
type Crawler struct {
	cfg    Config
	logger log.Logger
}

// NewCrawler creates a crawler.
func NewCrawler(cfg Config, logger log.Logger) *Crawler {
	if cfg.MaxDepth <= 0 {
		cfg.MaxDepth = 2
	}
	if cfg.Parallelism <= 0 {
		cfg.Parallelism = 2
	}
	if cfg.Timeout <= 0 {
		cfg.Timeout = 30 * time.Second
	}
	return &Crawler{cfg: cfg, logger: logger}
}

// Crawl walks the site from startURL and returns the readable pages it
// found. Pages with no extractable text are dropped. Cancelling ctx stops
// new requests; in-flight ones finish.
func (c *Crawler) Crawl(ctx context.Context, startURL string) ([]Page, error) {
	collector := colly.NewCollector(
		colly.AllowedDomains(c.cfg.AllowedDomains...),
		colly.MaxDepth(c.cfg.MaxDepth),
		colly.Async(true),
	)
	collector.SetRequestTimeout(c.cfg.Timeout)
	if err := collector.Limit(&colly.LimitRule{
		DomainGlob:  "*",
		Parallelism: c.cfg.Parallelism,
		Delay:       c.cfg.Delay,
	}); err != nil {
		return nil, fmt.Errorf("configuring crawl limits: %w", err)
	}

	var (
		mu    sync.Mutex
		pages []Page
	)

	collector.OnRequest(func(r *colly.Request) {
		if ctx.Err() != nil {
			r.Abort()
			return
		}
		c.logger.Debug("crawling", "url", r.URL.String())
	})

	collector.OnResponse(func(r *colly.Response) {
		page, ok := extract(r.Request.URL.String(), r.Body)
		if !ok {
			c.logger.Debug("page had no readable content", "url", r.Request.URL.String())
			return
		}
		mu.Lock()
		pages = append(pages, page)
		mu.Unlock()
	})

	collector.OnHTML("a[href]", func(e *colly.HTMLElement) {
		// Visit dedupes and enforces depth/domain rules itself.
		_ = e.Request.Visit(e.Attr("href"))
	})

	collector.OnError(func(r *colly.Response, err error) {
		c.logger.Warn("fetching page failed", "url", r.Request.URL.String(), "error", err)
	})

	if err := collector.Visit(startURL); err != nil {
		return nil, fmt.Errorf("starting crawl at %s: %w", startURL, err)
	}
	collector.Wait()

	if err := ctx.Err(); err != nil {
		return pages, err
	}
	c.logger.Info("crawl finished", "start_url", startURL, "pages", len(pages))
	return pages, nil
}

// extract boils an HTML page down to its readable text. Readability
// handles the main content; when it cannot find a title, the document's
// <title> tag is used instead.
func extract(pageURL string, body []byte) (Page, bool) {
	u, err := url.Parse(pageURL)
	if err != nil {
		return Page{}, false
	}

	article, err := readability.FromReader(bytes.NewReader(body), u)
	if err != nil {
		return Page{}, false
	}

	content := strings.TrimSpace(article.TextContent)
	if content == "" {
		return Page{}, false
	}

	title := strings.TrimSpace(article.Title)
	if title == "" {
		if doc, err := goquery.NewDocumentFromReader(bytes.NewReader(body)); err == nil {
			title = strings.TrimSpace(doc.Find("title").First().Text())
		}
	}

	return Page{
		URL:     pageURL,
		Title:   title,
		Content: content,
	}, true
}
