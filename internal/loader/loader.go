// Package loader discovers statute source files and reads them as plain text.
package loader

import (
	"bytes"
	"errors"
	"fmt"
	"io/fs"
	"os"
	"path/filepath"
	"sort"
	"strings"
	"unicode/utf8"

	"github.com/bmatcuk/doublestar/v4"
	"golang.org/x/text/encoding/simplifiedchinese"
)

// ErrNotText is returned by Load for files whose bytes are not text.
var ErrNotText = errors.New("not a text file")

// DefaultIncludes are the patterns used when no include patterns are configured.
var DefaultIncludes = []string{"**/*.txt", "**/*.md"}

// DefaultExcludes skip hidden directories and editor backups.
var DefaultExcludes = []string{"**/.*/**", "**/*~"}

// File is a discovered source file.
type File struct {
	Path       string // Filesystem path
	SourceFile string // Identifier stored with chunks: path relative to the ingest root
}

// Document is a loaded source file.
type Document struct {
	File
	Title    string // First markdown heading or first non-empty line
	Text     string // Plain text content
	Encoding string // "utf-8" or "gb18030"
}

// Loader finds and reads text sources.
type Loader struct {
	includes []string
	excludes []string
}

// New creates a loader. Empty includes fall back to DefaultIncludes; nil excludes to DefaultExcludes.
func New(includes, excludes []string) *Loader {
	if len(includes) == 0 {
		includes = DefaultIncludes
	}
	if excludes == nil {
		excludes = DefaultExcludes
	}
	return &Loader{includes: includes, excludes: excludes}
}

// Discover returns the source files under root, sorted by SourceFile.
// A regular file is returned as-is, identified by its base name.
func (l *Loader) Discover(root string) ([]File, error) {
	info, err := os.Stat(root)
	if err != nil {
		return nil, fmt.Errorf("stat %s: %w", root, err)
	}
	if !info.IsDir() {
		return []File{{Path: root, SourceFile: filepath.Base(root)}}, nil
	}

	var files []File
	err = filepath.WalkDir(root, func(path string, d fs.DirEntry, err error) error {
		if err != nil {
			return err
		}
		rel, err := filepath.Rel(root, path)
		if err != nil {
			return err
		}
		rel = filepath.ToSlash(rel)

		if d.IsDir() {
			if rel != "." && (l.excluded(rel) || l.excluded(rel+"/")) {
				return filepath.SkipDir
			}
			return nil
		}
		if l.included(rel) && !l.excluded(rel) {
			files = append(files, File{Path: path, SourceFile: rel})
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("walk %s: %w", root, err)
	}

	sort.Slice(files, func(i, j int) bool { return files[i].SourceFile < files[j].SourceFile })
	return files, nil
}

func (l *Loader) included(path string) bool {
	return matchAny(l.includes, path)
}

func (l *Loader) excluded(path string) bool {
	return matchAny(l.excludes, path)
}

func matchAny(patterns []string, path string) bool {
	for _, pattern := range patterns {
		if matched, err := doublestar.Match(pattern, path); err == nil && matched {
			return true
		}
	}
	return false
}

// Load reads a file, decodes it and flattens markdown to plain text.
func (l *Loader) Load(file File) (*Document, error) {
	data, err := os.ReadFile(file.Path)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file.Path, err)
	}

	text, encoding, err := decode(data)
	if err != nil {
		return nil, fmt.Errorf("%s: %w", file.Path, err)
	}

	doc := &Document{File: file, Encoding: encoding}
	if isMarkdown(file.Path) {
		doc.Text, doc.Title = flattenMarkdown([]byte(text))
	} else {
		doc.Text = text
	}
	if doc.Title == "" {
		doc.Title = firstLine(doc.Text)
	}
	return doc, nil
}

// decode returns UTF-8 text. Invalid UTF-8 is read as GB18030, a superset of GBK and GB2312.
func decode(data []byte) (string, string, error) {
	if bytes.IndexByte(data, 0) >= 0 {
		return "", "", ErrNotText
	}
	data = bytes.TrimPrefix(data, []byte("\xef\xbb\xbf"))
	if utf8.Valid(data) {
		return string(data), "utf-8", nil
	}

	decoded, err := simplifiedchinese.GB18030.NewDecoder().Bytes(data)
	if err != nil || !utf8.Valid(decoded) || bytes.ContainsRune(decoded, utf8.RuneError) {
		return "", "", fmt.Errorf("%w: unknown encoding", ErrNotText)
	}
	return string(decoded), "gb18030", nil
}

func isMarkdown(path string) bool {
	ext := strings.ToLower(filepath.Ext(path))
	return ext == ".md" || ext == ".markdown"
}

func firstLine(text string) string {
	for _, line := range strings.Split(text, "\n") {
		if line = strings.TrimSpace(line); line != "" {
			if r := []rune(line); len(r) > 100 {
				return string(r[:100])
			}
			return line
		}
	}
	return ""
}
