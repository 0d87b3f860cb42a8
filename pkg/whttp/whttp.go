// Package whttp checks that a portal answers plain HTTP before a browser is started.
package whttp

import (
	"context"
	"fmt"
	"io"
	"net/http"
	"strings"
	"time"
	"unicode/utf8"

	"github.com/hashicorp/go-retryablehttp"
	"golang.org/x/net/html"
)

const (
	DefaultTimeout   = 20 * time.Second
	DefaultRetries   = 3
	DefaultUserAgent = "Mozilla/5.0 (X11; Linux x86_64; rv:83.0) Gecko/20100101 Firefox/83.0"
	maxBody          = 4 << 20
)

type Header struct {
	Name  string
	Value string
}

type Options struct {
	Timeout time.Duration
	Retries int
	Headers []Header
	// Logger receives retryablehttp's request log. Nil keeps it quiet.
	Logger retryablehttp.LeveledLogger
}

type Response struct {
	URL        string
	StatusCode int
	Length     int
	Title      string
	Elapsed    time.Duration
}

func (r *Response) OK() bool {
	return r.StatusCode >= 200 && r.StatusCode < 400
}

// NewClient returns a retrying client. Server errors and connection failures are retried
// with the library's default policy.
func NewClient(opts Options) *retryablehttp.Client {
	client := retryablehttp.NewClient()
	client.RetryMax = opts.Retries
	if client.RetryMax <= 0 {
		client.RetryMax = DefaultRetries
	}
	client.RetryWaitMin = 500 * time.Millisecond
	client.RetryWaitMax = 3 * time.Second
	client.Backoff = retryablehttp.LinearJitterBackoff
	timeout := opts.Timeout
	if timeout <= 0 {
		timeout = DefaultTimeout
	}
	client.HTTPClient.Timeout = timeout
	client.Logger = nil
	if opts.Logger != nil {
		client.Logger = opts.Logger
	}
	return client
}

// Probe fetches url once (plus retries) and reports its status and page title.
func Probe(ctx context.Context, client *retryablehttp.Client, url string, headers ...Header) (*Response, error) {
	req, err := retryablehttp.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return nil, err
	}
	req.Header.Set("User-Agent", DefaultUserAgent)
	req.Header.Set("Cache-Control", "no-transform")
	req.Header.Set("Accept-Language", "ja,en;q=0.8")
	for _, h := range headers {
		req.Header.Add(h.Name, h.Value)
	}

	start := time.Now()
	resp, err := client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("probing %s: %w", url, err)
	}
	defer resp.Body.Close()

	body, err := io.ReadAll(io.LimitReader(resp.Body, maxBody))
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", url, err)
	}
	res := &Response{
		URL:        url,
		StatusCode: resp.StatusCode,
		Length:     utf8.RuneCount(body),
		Elapsed:    time.Since(start),
	}
	if title, ok := Title(string(body)); ok {
		res.Title = strings.ToValidUTF8(strings.TrimSpace(strings.NewReplacer("\n", "", "\r", "").Replace(title)), "")
	}
	return res, nil
}

func isTitleElement(n *html.Node) bool {
	return n.Type == html.ElementNode && n.Data == "title"
}

func traverse(n *html.Node) (string, bool) {
	if isTitleElement(n) {
		if n.FirstChild != nil {
			return n.FirstChild.Data, true
		}
		return "", true
	}

	for c := n.FirstChild; c != nil; c = c.NextSibling {
		result, ok := traverse(c)
		if ok {
			return result, ok
		}
	}

	return "", false
}

// Title returns the text of the first <title> element.
func Title(body string) (string, bool) {
	doc, err := html.Parse(strings.NewReader(body))
	if err != nil {
		return "", false
	}
	return traverse(doc)
}
