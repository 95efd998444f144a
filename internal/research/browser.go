// Package research provides the page-browsing capability behind the
// research action: an HTTP-backed session that loads pages and extracts
// text, content, and links, plus a bounded pool so concurrent research runs
// never share page state.
package research

import (
	"context"
	"fmt"
	"io"
	"net"
	"net/http"
	"net/url"
	"strings"
	"time"

	"golang.org/x/net/html"
)

const maxResponseSize = 10 * 1024 * 1024 // 10MB

// Link is one hyperlink extracted from a page.
type Link struct {
	Text string `json:"text"`
	Href string `json:"href"`
}

// PageInfo summarizes the currently loaded page.
type PageInfo struct {
	URL        string `json:"url"`
	Status     int    `json:"status"`
	Title      string `json:"title"`
	SizeBytes  int    `json:"sizeBytes"`
	LinkCount  int    `json:"linkCount"`
	FetchedAt  string `json:"fetchedAt"`
	DurationMS int64  `json:"durationMs"`
}

// Session is one research run's view of the web. Implementations hold the
// current page between tool calls; sessions must not be shared across runs.
type Session interface {
	Navigate(ctx context.Context, rawURL string) (*Page, error)
	CurrentPage() (*Page, error)
	Reset()
}

// ErrNoPage is returned when an extraction runs before any navigation.
var ErrNoPage = fmt.Errorf("no page loaded, navigate first")

// HTTPSession is a Session over plain HTTP fetches. Private and loopback
// targets are refused, including via redirects.
type HTTPSession struct {
	client    *http.Client
	userAgent string
	current   *Page

	// allowPrivate disables the SSRF guard; only tests set it.
	allowPrivate bool
}

// NewHTTPSession creates a session with the given per-fetch timeout.
func NewHTTPSession(timeout time.Duration) *HTTPSession {
	s := &HTTPSession{userAgent: "Quill-Research/1.0"}
	s.client = &http.Client{
		Timeout: timeout,
		CheckRedirect: func(req *http.Request, via []*http.Request) error {
			if len(via) >= 10 {
				return fmt.Errorf("too many redirects")
			}
			if err := s.validate(req.URL.Hostname()); err != nil {
				return fmt.Errorf("redirect blocked: %w", err)
			}
			return nil
		},
	}
	return s
}

func (s *HTTPSession) validate(host string) error {
	if s.allowPrivate {
		return nil
	}
	return validateTarget(host)
}

// Navigate fetches a page and makes it the session's current page.
func (s *HTTPSession) Navigate(ctx context.Context, rawURL string) (*Page, error) {
	parsed, err := url.Parse(rawURL)
	if err != nil {
		return nil, fmt.Errorf("invalid url: %w", err)
	}
	if parsed.Scheme != "http" && parsed.Scheme != "https" {
		return nil, fmt.Errorf("url must start with http:// or https://")
	}
	if err := s.validate(parsed.Hostname()); err != nil {
		return nil, fmt.Errorf("blocked: %w", err)
	}

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", s.userAgent)

	start := time.Now()
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("fetching %s: %w", rawURL, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxResponseSize))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", rawURL, err)
	}

	page, err := parsePage(resp.Request.URL, resp.StatusCode, body, time.Since(start))
	if err != nil {
		return nil, err
	}
	s.current = page
	return page, nil
}

// CurrentPage returns the last navigated page or ErrNoPage.
func (s *HTTPSession) CurrentPage() (*Page, error) {
	if s.current == nil {
		return nil, ErrNoPage
	}
	return s.current, nil
}

// Reset clears page state so the session can be pooled for the next run.
func (s *HTTPSession) Reset() {
	s.current = nil
}

// validateTarget refuses hostnames that resolve to private or reserved
// address space.
func validateTarget(host string) error {
	ips, err := net.LookupIP(host)
	if err != nil {
		return fmt.Errorf("cannot resolve host %q: %w", host, err)
	}
	for _, ip := range ips {
		if isPrivateIP(ip) {
			return fmt.Errorf("host %q resolves to a private address", host)
		}
	}
	return nil
}

func isPrivateIP(ip net.IP) bool {
	privateRanges := []string{
		"127.0.0.0/8",
		"10.0.0.0/8",
		"172.16.0.0/12",
		"192.168.0.0/16",
		"169.254.0.0/16",
		"::1/128",
		"fc00::/7",
		"fe80::/10",
	}
	for _, cidr := range privateRanges {
		_, block, err := net.ParseCIDR(cidr)
		if err != nil {
			continue
		}
		if block.Contains(ip) {
			return true
		}
	}
	return false
}

// Page is one fetched document with its parsed DOM.
type Page struct {
	URL        string
	Status     int
	Title      string
	FetchedAt  time.Time
	DurationMS int64

	size int
	base *url.URL
	doc  *html.Node
}

func parsePage(u *url.URL, status int, body []byte, elapsed time.Duration) (*Page, error) {
	doc, err := html.Parse(strings.NewReader(string(body)))
	if err != nil {
		return nil, fmt.Errorf("parsing html: %w", err)
	}
	p := &Page{
		URL:        u.String(),
		Status:     status,
		FetchedAt:  time.Now().UTC(),
		DurationMS: elapsed.Milliseconds(),
		size:       len(body),
		base:       u,
		doc:        doc,
	}
	p.Title = strings.TrimSpace(textOf(findFirst(doc, "title")))
	return p, nil
}

// Text returns the page's visible text, whitespace-collapsed and truncated
// to maxChars (0 = no limit).
func (p *Page) Text(maxChars int) string {
	return truncate(collectText(p.doc, nil), maxChars)
}

// MainContent returns the text of the page's primary content region:
// <main> or <article> when present, otherwise the body with chrome
// elements (nav, header, footer, aside) excluded.
func (p *Page) MainContent(maxChars int) string {
	for _, tag := range []string{"main", "article"} {
		if node := findFirst(p.doc, tag); node != nil {
			return truncate(collectText(node, nil), maxChars)
		}
	}
	skip := map[string]bool{"nav": true, "header": true, "footer": true, "aside": true}
	root := findFirst(p.doc, "body")
	if root == nil {
		root = p.doc
	}
	return truncate(collectText(root, skip), maxChars)
}

// Links returns up to limit hyperlinks from the page, hrefs resolved
// against the page URL (0 = no limit).
func (p *Page) Links(limit int) []Link {
	var links []Link
	walk(p.doc, func(n *html.Node) bool {
		if n.Type != html.ElementNode || n.Data != "a" {
			return true
		}
		href := attr(n, "href")
		if href == "" || strings.HasPrefix(href, "#") || strings.HasPrefix(href, "javascript:") {
			return true
		}
		if ref, err := url.Parse(href); err == nil {
			href = p.base.ResolveReference(ref).String()
		}
		links = append(links, Link{
			Text: strings.TrimSpace(collectText(n, nil)),
			Href: href,
		})
		return limit == 0 || len(links) < limit
	})
	return links
}

// Info returns the page summary.
func (p *Page) Info() PageInfo {
	return PageInfo{
		URL:        p.URL,
		Status:     p.Status,
		Title:      p.Title,
		SizeBytes:  p.size,
		LinkCount:  len(p.Links(0)),
		FetchedAt:  p.FetchedAt.Format(time.RFC3339),
		DurationMS: p.DurationMS,
	}
}

// walk visits nodes depth-first until fn returns false.
func walk(n *html.Node, fn func(*html.Node) bool) bool {
	if !fn(n) {
		return false
	}
	for c := n.FirstChild; c != nil; c = c.NextSibling {
		if !walk(c, fn) {
			return false
		}
	}
	return true
}

func findFirst(root *html.Node, tag string) *html.Node {
	var found *html.Node
	walk(root, func(n *html.Node) bool {
		if n.Type == html.ElementNode && n.Data == tag {
			found = n
			return false
		}
		return true
	})
	return found
}

var nonContentTags = map[string]bool{"script": true, "style": true, "noscript": true, "template": true}

// collectText gathers visible text under root, skipping non-content tags
// and any element whose tag appears in skip.
func collectText(root *html.Node, skip map[string]bool) string {
	if root == nil {
		return ""
	}
	var parts []string
	var visit func(*html.Node)
	visit = func(n *html.Node) {
		if n.Type == html.ElementNode && (nonContentTags[n.Data] || skip[n.Data]) {
			return
		}
		if n.Type == html.TextNode {
			if t := strings.TrimSpace(n.Data); t != "" {
				parts = append(parts, t)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			visit(c)
		}
	}
	visit(root)
	return strings.Join(parts, " ")
}

func textOf(n *html.Node) string {
	return collectText(n, nil)
}

func truncate(s string, maxChars int) string {
	if maxChars <= 0 || len(s) <= maxChars {
		return s
	}
	return s[:maxChars] + "…"
}

func attr(n *html.Node, key string) string {
	for _, a := range n.Attr {
		if a.Key == key {
			return a.Val
		}
	}
	return ""
}
