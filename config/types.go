package config

import (
	"path/filepath"
	"slices"
	"strings"
)

// Format names the extraction route a file takes.
type Format string

const (
	FormatUnknown Format = ""
	FormatPDF     Format = "pdf"
	FormatWord    Format = "word"
	FormatText    Format = "text"
	FormatEML     Format = "eml"
	FormatMBOX    Format = "mbox"
)

// DocumentTypes maps lowercase extensions (without dot) to their format
var DocumentTypes = map[string]Format{
	"pdf":  FormatPDF,
	"doc":  FormatWord,
	"docx": FormatWord,
	"txt":  FormatText,
	"md":   FormatText,
	"csv":  FormatText,
	"json": FormatText,
	"eml":  FormatEML,
	"mbox": FormatMBOX,
}

// FormatFor returns the format for a file name based on its suffix
func FormatFor(filename string) Format {
	return DocumentTypes[getFileExtension(filename)]
}

// IsDocumentFile checks if a file extension is a supported document type
func IsDocumentFile(filename string) bool {
	return FormatFor(filename) != FormatUnknown
}

// SupportedExtensions returns the supported extensions in sorted order
func SupportedExtensions() []string {
	exts := make([]string, 0, len(DocumentTypes))
	for ext := range DocumentTypes {
		exts = append(exts, ext)
	}
	slices.Sort(exts)
	return exts
}

// getFileExtension extracts the lowercase extension without the dot
func getFileExtension(filename string) string {
	ext := filepath.Ext(filename)
	if ext == "" || ext == "." {
		return ""
	}
	return strings.ToLower(ext[1:])
}

// IsHiddenFile checks if a file should be treated as hidden
func IsHiddenFile(filename string) bool {
	return strings.HasPrefix(filename, ".")
}

// ShouldSkipDirectory determines if a directory should be skipped during traversal
func ShouldSkipDirectory(dirName string) bool {
	skipDirs := map[string]bool{
		".git":          true,
		".svn":          true,
		".hg":           true,
		"node_modules":  true,
		".vscode":       true,
		".idea":         true,
		"__pycache__":   true,
		".pytest_cache": true,
		"vendor":        true,
		"target":        true,
		"build":         true,
		"dist":          true,
		".next":         true,
		".nuxt":         true,
		"coverage":      true,
	}

	return skipDirs[dirName] || (len(dirName) > 1 && strings.HasPrefix(dirName, "."))
}

// GetFileTypeDescription returns a human-readable description of file types
func GetFileTypeDescription() string {
	return "documents (" + strings.Join(SupportedExtensions(), ", ") + ")"
}
