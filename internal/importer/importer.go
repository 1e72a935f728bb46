// Package importer turns brokerage statements and holdings exports into the
// free-text portfolio description sent with a plan request.
package importer

import (
	"bytes"
	"context"
	"fmt"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"strings"

	"github.com/ledongthuc/pdf"
	"golang.org/x/net/html"
	"golang.org/x/sync/errgroup"
)

// MaxFileSize bounds a single imported file.
const MaxFileSize = 10 << 20

// File is an in-memory upload.
type File struct {
	Name string
	Data []byte
}

// Import reads each path and returns the concatenated, marker-wrapped text
// in argument order.
func Import(ctx context.Context, paths []string) (string, error) {
	files := make([]File, len(paths))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, path := range paths {
		i, path := i, path
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			data, err := readFile(path)
			if err != nil {
				return err
			}
			files[i] = File{Name: filepath.Base(path), Data: data}
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}
	return ImportFiles(ctx, files)
}

// ImportFiles extracts text from already-loaded files. PDF and HTML files
// are converted to plain text; anything else is taken as-is.
func ImportFiles(ctx context.Context, files []File) (string, error) {
	texts := make([]string, len(files))
	g, gCtx := errgroup.WithContext(ctx)
	g.SetLimit(4)

	for i, f := range files {
		i, f := i, f
		g.Go(func() error {
			if err := gCtx.Err(); err != nil {
				return err
			}
			text, err := extract(f)
			if err != nil {
				return fmt.Errorf("importing %s: %w", f.Name, err)
			}
			texts[i] = text
			return nil
		})
	}
	if err := g.Wait(); err != nil {
		return "", err
	}

	var sb strings.Builder
	for i, f := range files {
		if i > 0 {
			sb.WriteString("\n")
		}
		fmt.Fprintf(&sb, "# --- BEGIN FILE: %s ---\n", f.Name)
		sb.WriteString(strings.TrimRight(texts[i], "\n"))
		fmt.Fprintf(&sb, "\n# --- END FILE: %s ---\n", f.Name)
	}
	slog.Debug("files imported", "count", len(files), "chars", sb.Len())
	return sb.String(), nil
}

// Append adds imported text after the user's own description.
func Append(existing, imported string) string {
	existing = strings.TrimRight(existing, " \t\n")
	if existing == "" {
		return imported
	}
	return existing + "\n\n" + imported
}

func readFile(path string) ([]byte, error) {
	info, err := os.Stat(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	if info.IsDir() {
		return nil, fmt.Errorf("reading %s: is a directory", path)
	}
	if info.Size() > MaxFileSize {
		return nil, fmt.Errorf("reading %s: file exceeds %d bytes", path, MaxFileSize)
	}
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("reading %s: %w", path, err)
	}
	return data, nil
}

func extract(f File) (string, error) {
	if len(f.Data) > MaxFileSize {
		return "", fmt.Errorf("file exceeds %d bytes", MaxFileSize)
	}
	switch strings.ToLower(filepath.Ext(f.Name)) {
	case ".pdf":
		return pdfText(f.Data)
	case ".html", ".htm":
		return htmlText(bytes.NewReader(f.Data))
	default:
		return string(f.Data), nil
	}
}

func pdfText(data []byte) (string, error) {
	r, err := pdf.NewReader(bytes.NewReader(data), int64(len(data)))
	if err != nil {
		return "", fmt.Errorf("opening pdf: %w", err)
	}
	plain, err := r.GetPlainText()
	if err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	var buf bytes.Buffer
	if _, err := buf.ReadFrom(plain); err != nil {
		return "", fmt.Errorf("extracting pdf text: %w", err)
	}
	return buf.String(), nil
}

// skipElements never contribute visible text.
var skipElements = map[string]bool{
	"script":   true,
	"style":    true,
	"noscript": true,
	"head":     true,
	"template": true,
}

// blockElements end a line of text.
var blockElements = map[string]bool{
	"p": true, "div": true, "br": true, "tr": true, "li": true, "table": true,
	"h1": true, "h2": true, "h3": true, "h4": true, "h5": true, "h6": true,
	"section": true, "article": true, "header": true, "footer": true,
}

// htmlText returns the visible text of an HTML document, one block per line
// with table cells separated by " | ".
func htmlText(r io.Reader) (string, error) {
	doc, err := html.Parse(r)
	if err != nil {
		return "", fmt.Errorf("parsing html: %w", err)
	}

	var lines []string
	var cur []string
	flush := func() {
		if len(cur) > 0 {
			lines = append(lines, strings.Join(cur, " "))
			cur = nil
		}
	}

	var walk func(n *html.Node)
	walk = func(n *html.Node) {
		switch n.Type {
		case html.ElementNode:
			if skipElements[n.Data] {
				return
			}
			if (n.Data == "td" || n.Data == "th") && len(cur) > 0 {
				cur = append(cur, "|")
			}
		case html.TextNode:
			if text := strings.Join(strings.Fields(n.Data), " "); text != "" {
				cur = append(cur, text)
			}
		}
		for c := n.FirstChild; c != nil; c = c.NextSibling {
			walk(c)
		}
		if n.Type == html.ElementNode && blockElements[n.Data] {
			flush()
		}
	}
	walk(doc)
	flush()

	return strings.Join(lines, "\n"), nil
}
