// Package materials loads study materials from files, PDFs and web pages
// into plain text, one fact or topic per line.
package materials

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	neturl "net/url"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
)

// MaxBytes caps any single source.
const MaxBytes = 5 << 20

const fetchTimeout = 30 * time.Second

// ErrTooLarge is returned when a source exceeds MaxBytes.
var ErrTooLarge = errors.New("materials: source exceeds size limit")

// Loader resolves material references.
type Loader struct {
	client *http.Client
}

// NewLoader creates a Loader with a bounded HTTP timeout.
func NewLoader() *Loader {
	return &Loader{client: &http.Client{Timeout: fetchTimeout}}
}

// IsURL reports whether ref is an absolute http or https URL.
func IsURL(ref string) bool {
	u, err := neturl.Parse(strings.TrimSpace(ref))
	if err != nil || u.Host == "" {
		return false
	}
	return u.Scheme == "http" || u.Scheme == "https"
}

// Load reads ref as an http(s) URL when it has that scheme, otherwise as a
// local path. Only the CLI resolves local paths; network surfaces call FromURL.
func (l *Loader) Load(ctx context.Context, ref string) (string, error) {
	ref = strings.TrimSpace(ref)
	if IsURL(ref) {
		return l.FromURL(ctx, ref)
	}
	return FromFile(ref)
}

// FromFile reads a text or PDF file.
func FromFile(path string) (string, error) {
	info, err := os.Stat(path)
	if err != nil {
		return "", fmt.Errorf("reading materials file: %w", err)
	}
	if info.Size() > MaxBytes {
		return "", fmt.Errorf("%w: %s is %d bytes", ErrTooLarge, path, info.Size())
	}
	if strings.EqualFold(filepath.Ext(path), ".pdf") {
		return fromPDF(path)
	}
	b, err := os.ReadFile(path)
	if err != nil {
		return "", fmt.Errorf("reading materials file: %w", err)
	}
	return Normalize(string(b)), nil
}

func fromPDF(path string) (string, error) {
	f, r, err := pdf.Open(path)
	if err != nil {
		return "", fmt.Errorf("open pdf: %w", err)
	}
	defer f.Close()

	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	b, err := io.ReadAll(io.LimitReader(plain, MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	if len(b) > MaxBytes {
		return "", fmt.Errorf("%w: text extracted from %s", ErrTooLarge, path)
	}
	return Normalize(string(b)), nil
}

// FromURL fetches a page. HTML bodies are reduced to their visible text;
// anything else is taken as plain text.
func (l *Loader) FromURL(ctx context.Context, url string) (string, error) {
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return "", fmt.Errorf("creating request: %w", err)
	}
	req.Header.Set("User-Agent", "cramplan")

	resp, err := l.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("fetching %s: %w", url, err)
	}
	defer resp.Body.Close()

	if resp.StatusCode < 200 || resp.StatusCode >= 300 {
		return "", fmt.Errorf("fetching %s: unexpected status %d", url, resp.StatusCode)
	}

	body, err := io.ReadAll(io.LimitReader(resp.Body, MaxBytes+1))
	if err != nil {
		return "", fmt.Errorf("reading %s: %w", url, err)
	}
	if len(body) > MaxBytes {
		return "", fmt.Errorf("%w: %s", ErrTooLarge, url)
	}

	if strings.Contains(resp.Header.Get("Content-Type"), "html") {
		return HTMLText(bytes.NewReader(body))
	}
	return Normalize(string(body)), nil
}

// skipped elements contribute no visible text.
var skipped = map[string]bool{
	"script": true, "style": true, "noscript": true, "head": true,
	"nav": true, "footer": true, "svg": true, "template": true,
}

var blocks = map[string]bool{
	"p": true, "div": true, "br": true, "li": true, "tr": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "blockquote": true, "pre": true,
	"dt": true, "dd": true, "td": true, "th": true,
}

// HTMLText extracts visible text, one block element per line.
func HTMLText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var sb strings.Builder
	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		if n.Type == html.ElementNode && skipped[n.Data] {
			return
		}
		if n.Type == html.TextNode {
			sb.WriteString(n.Data)
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blocks[n.Data] {
			sb.WriteByte('\n')
		}
	}
	walk(doc)
	return Normalize(sb.String()), nil
}

// Normalize collapses runs of whitespace inside each line and drops blank lines.
func Normalize(s string) string {
	s = strings.ReplaceAll(s, "\r\n", "\n")
	var out []string
	for _, line := range strings.Split(s, "\n") {
		if line = strings.Join(strings.Fields(line), " "); line != "" {
			out = append(out, line)
		}
	}
	return strings.Join(out, "\n")
}
