package filesystem

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/pdfcpu/pdfcpu/pkg/api"
	"golang.org/x/text/encoding/charmap"

	"github.com/sfdxb7/oc-hub/internal/core/domain"
	"github.com/sfdxb7/oc-hub/internal/core/ports/driven"
	"github.com/sfdxb7/oc-hub/internal/normalisers"
)

// Verify interface compliance
var _ driven.SourceReader = (*Reader)(nil)

const (
	vlmDir            = "vlm"
	contentListSuffix = "_content_list.json"
	originPDFSuffix   = "_origin.pdf"
)

// Reader implements SourceReader over MinerU output folders on local disk:
//
//	<folder>/vlm/<name>.md
//	<folder>/vlm/<name>_content_list.json
//	<folder>/vlm/<name>_origin.pdf
//
// The vlm/ level is optional.
type Reader struct {
	registry driven.NormaliserRegistry
	logger   *slog.Logger
}

// NewReader creates a reader. A nil registry uses the default normalisers.
func NewReader(registry driven.NormaliserRegistry, logger *slog.Logger) *Reader {
	if registry == nil {
		registry = normalisers.DefaultRegistry()
	}
	if logger == nil {
		logger = slog.Default()
	}
	return &Reader{registry: registry, logger: logger}
}

func (r *Reader) normalise(content, mimeType string) string {
	n := r.registry.Get(mimeType)
	if n == nil {
		return content
	}
	return n.Normalise(content, mimeType)
}

// Read loads the document in folder.
func (r *Reader) Read(ctx context.Context, folder string) (*domain.SourceDocument, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	info, err := os.Stat(folder)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", folder, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to stat %s: %w", folder, err)
	}
	if !info.IsDir() {
		return nil, fmt.Errorf("%s is not a directory: %w", folder, domain.ErrNotFound)
	}

	dir := sourceDir(folder)
	files, err := r.scan(dir)
	if err != nil {
		return nil, err
	}
	if files.text == "" && files.contentList == "" {
		return nil, fmt.Errorf("no markdown file in %s: %w", folder, domain.ErrNotFound)
	}

	doc := &domain.SourceDocument{
		IdentityKey: filepath.Base(filepath.Clean(folder)),
		Path:        folder,
	}

	var list normalisers.ContentList
	var listMarkdown string
	if files.contentList != "" {
		data, err := os.ReadFile(files.contentList)
		if err == nil {
			list, err = normalisers.ParseContentList(data)
		}
		if err != nil {
			r.logger.Warn("failed to read content list", "path", files.contentList, "error", err)
		} else {
			listMarkdown = list.Markdown()
		}
	}

	if files.text != "" {
		data, err := os.ReadFile(files.text)
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", files.text, err)
		}
		doc.FileName = filepath.Base(files.text)
		doc.RawText = r.normalise(decodeText(data), normalisers.MIMETypeForFile(files.text))
	} else {
		doc.FileName = filepath.Base(files.contentList)
		doc.RawText = listMarkdown
	}

	if doc.IsBlank() {
		return nil, fmt.Errorf("%s: %w", filepath.Join(dir, doc.FileName), domain.ErrEmptySource)
	}

	// Page segments come from the layout data when present, else from
	// markers already in the text.
	if listMarkdown != "" {
		doc.Pages = normalisers.SplitPages(listMarkdown)
	} else {
		doc.Pages = normalisers.SplitPages(doc.RawText)
	}

	doc.PageCount = r.pageCount(files.originPDF, list, doc.RawText)
	return doc, nil
}

// List returns the document folders under root, sorted by name.
func (r *Reader) List(ctx context.Context, root string) ([]string, error) {
	entries, err := os.ReadDir(root)
	if err != nil {
		if errors.Is(err, fs.ErrNotExist) {
			return nil, fmt.Errorf("%s: %w", root, domain.ErrNotFound)
		}
		return nil, fmt.Errorf("failed to read %s: %w", root, err)
	}

	var folders []string
	for _, e := range entries {
		if err := ctx.Err(); err != nil {
			return nil, err
		}
		if !e.IsDir() || strings.HasPrefix(e.Name(), ".") {
			continue
		}
		folder := filepath.Join(root, e.Name())
		files, err := r.scan(sourceDir(folder))
		if err != nil || (files.text == "" && files.contentList == "") {
			continue
		}
		folders = append(folders, folder)
	}
	sort.Strings(folders)
	return folders, nil
}

// sourceFiles are the files found in one source directory
type sourceFiles struct {
	text        string
	contentList string
	originPDF   string
}

// scan picks the first markdown file (HTML when there is none), the first
// content list and the first origin PDF, in name order.
func (r *Reader) scan(dir string) (sourceFiles, error) {
	entries, err := os.ReadDir(dir)
	if err != nil {
		return sourceFiles{}, fmt.Errorf("failed to read %s: %w", dir, err)
	}

	var files sourceFiles
	var html string
	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		name := e.Name()
		path := filepath.Join(dir, name)
		switch normalisers.MIMETypeForFile(name) {
		case normalisers.MIMEMarkdown:
			if files.text == "" {
				files.text = path
			}
		case normalisers.MIMEHTML:
			if html == "" {
				html = path
			}
		case normalisers.MIMEContentList:
			if files.contentList == "" {
				files.contentList = path
			}
		default:
			if files.originPDF == "" && strings.HasSuffix(strings.ToLower(name), originPDFSuffix) {
				files.originPDF = path
			}
		}
	}
	if files.text == "" {
		files.text = html
	}
	return files, nil
}

// pageCount prefers the original PDF, then the content list, then page markers.
func (r *Reader) pageCount(pdfPath string, list normalisers.ContentList, text string) int {
	if pdfPath != "" {
		n, err := api.PageCountFile(pdfPath)
		if err == nil && n > 0 {
			return n
		}
		r.logger.Debug("failed to count PDF pages", "path", pdfPath, "error", err)
	}
	if n := list.PageCount(); n > 0 {
		return n
	}
	return normalisers.CountPageMarkers(text)
}

// sourceDir returns folder/vlm when it exists, else folder.
func sourceDir(folder string) string {
	vlm := filepath.Join(folder, vlmDir)
	if info, err := os.Stat(vlm); err == nil && info.IsDir() {
		return vlm
	}
	return folder
}

// decodeText returns data as UTF-8, decoding it as Latin-1 when it is not valid UTF-8.
func decodeText(data []byte) string {
	if utf8.Valid(data) {
		return string(data)
	}
	decoded, err := charmap.ISO8859_1.NewDecoder().Bytes(data)
	if err != nil {
		return strings.ToValidUTF8(string(data), "\uFFFD")
	}
	return string(decoded)
}
