package source

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"mime"
	"net/http"
	"net/url"
	"path"
	"strings"
	"time"

	"golang.org/x/net/html"
)

// HTTP reads files from a web server and lists directories served by nginx
// autoindex (JSON format) or an HTML index page.
type HTTP struct {
	base   string
	client *http.Client
}

// NewHTTP returns an HTTP source. Relative paths are resolved against base.
func NewHTTP(base string, timeout time.Duration) *HTTP {
	if timeout <= 0 {
		timeout = 30 * time.Second
	}
	return &HTTP{
		base:   strings.TrimSuffix(base, "/"),
		client: &http.Client{Timeout: timeout},
	}
}

func (s *HTTP) url(p string) string {
	if strings.HasPrefix(p, "http://") || strings.HasPrefix(p, "https://") {
		return p
	}
	return s.base + "/" + strings.TrimPrefix(p, "/")
}

func (s *HTTP) get(ctx context.Context, rawURL string) (*http.Response, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, rawURL, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to create request: %w", err)
	}
	resp, err := s.client.Do(req)
	if err != nil {
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, err)
	}
	if resp.StatusCode == http.StatusNotFound {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch %s: %w", rawURL, ErrNotFound)
	}
	if resp.StatusCode != http.StatusOK {
		resp.Body.Close()
		return nil, fmt.Errorf("failed to fetch %s: status %d", rawURL, resp.StatusCode)
	}
	return resp, nil
}

// ReadFile implements Source.
func (s *HTTP) ReadFile(ctx context.Context, p string) ([]byte, error) {
	resp, err := s.get(ctx, s.url(p))
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return nil, fmt.Errorf("failed to read body of %s: %w", p, err)
	}
	return data, nil
}

// List implements Source.
func (s *HTTP) List(ctx context.Context, dir string) ([]string, error) {
	resp, err := s.get(ctx, strings.TrimSuffix(s.url(dir), "/")+"/")
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	mediaType, _, _ := mime.ParseMediaType(resp.Header.Get("Content-Type"))
	if mediaType == "application/json" {
		return parseJSONIndex(resp.Body)
	}
	return parseHTMLIndex(resp.Body)
}

type indexEntry struct {
	Name string `json:"name"`
	Type string `json:"type"`
}

func parseJSONIndex(r io.Reader) ([]string, error) {
	var entries []indexEntry
	if err := json.NewDecoder(r).Decode(&entries); err != nil {
		return nil, fmt.Errorf("failed to decode directory index: %w", err)
	}
	files := make([]string, 0, len(entries))
	for _, e := range entries {
		if e.Type == "file" {
			files = append(files, e.Name)
		}
	}
	return files, nil
}

// parseHTMLIndex collects anchor targets that name files in the listed
// directory itself.
func parseHTMLIndex(r io.Reader) ([]string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return nil, fmt.Errorf("failed to parse directory index: %w", err)
	}
	var files []string
	seen := make(map[string]bool)
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && n.Data == "a" {
			for _, attr := range n.Attr {
				if attr.Key != "href" {
					continue
				}
				if name, ok := fileFromHref(attr.Val); ok && !seen[name] {
					seen[name] = true
					files = append(files, name)
				}
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
	}
	walk(doc)
	return files, nil
}

func fileFromHref(href string) (string, bool) {
	if href == "" || strings.HasSuffix(href, "/") || strings.HasPrefix(href, "?") ||
		strings.HasPrefix(href, "#") || strings.Contains(href, "://") || strings.HasPrefix(href, "..") {
		return "", false
	}
	if i := strings.IndexAny(href, "?#"); i >= 0 {
		href = href[:i]
	}
	name, err := url.PathUnescape(path.Base(href))
	if err != nil || name == "" || name == "." {
		return "", false
	}
	return name, true
}
