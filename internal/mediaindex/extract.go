package mediaindex

import (
	"net/http"
	"os"
	"path/filepath"
	"regexp"
	"strings"

	"chatgpt-export-corpus/internal/idgen"
	"chatgpt-export-corpus/internal/models"
)

// MediaExtensions is the media-extension set from spec.md §4.2. ".dat"
// is included deliberately: some export generations ship media under
// a bare ".dat" extension and can only be recognized by magic bytes
// (see classifyMIME), per the Open Question resolved in DESIGN.md.
var MediaExtensions = map[string]bool{
	".png": true, ".webp": true, ".jpg": true, ".jpeg": true,
	".gif": true, ".bmp": true, ".tiff": true, ".svg": true,
	".wav": true, ".mp3": true, ".m4a": true, ".ogg": true, ".flac": true,
	".pdf": true, ".dat": true,
	".mp4": true, ".mov": true, ".avi": true, ".mkv": true, ".webm": true,
}

var (
	// filename begins with the literal "file-", one or more
	// alphanumerics, then a '_' or '-' separator. Interior occurrences
	// of "file-" do not match (regexp anchored at start).
	fileIDPattern = regexp.MustCompile(`^(file-[A-Za-z0-9]+)[_-]`)

	// filename matches file_{32-hex}-{uuid-36}.{ext} exactly.
	fileHashPattern = regexp.MustCompile(`^file_([a-f0-9]{32})-[a-f0-9-]{36}\.[A-Za-z0-9]+$`)
)

// ExtractFileID returns the file-{ID} token (the "file-" prefix
// included, the separator excluded) of a file-{ID}_… or file-{ID}-…
// filename, per spec.md §4.2. Returns "" if the filename doesn't
// start with the literal "file-" pattern.
func ExtractFileID(filename string) string {
	m := fileIDPattern.FindStringSubmatch(filename)
	if m == nil {
		return ""
	}
	return m[1]
}

// ExtractContentHash pulls the 32-hex segment out of a
// file_{hash}-{uuid}.{ext} filename, per spec.md §4.2.
func ExtractContentHash(filename string) string {
	m := fileHashPattern.FindStringSubmatch(filename)
	if m == nil {
		return ""
	}
	return m[1]
}

// ExtractConversationID walks path's ancestor directory names from
// nearest to furthest and returns the first one that is a canonical
// 8-4-4-4-12 hex UUID, per spec.md §4.2 ("the nearest such ancestor
// wins").
func ExtractConversationID(path string) string {
	dir := filepath.Dir(path)
	for dir != "." && dir != string(filepath.Separator) && dir != "" {
		base := filepath.Base(dir)
		if idgen.IsCanonical(base) {
			return strings.ToLower(base)
		}
		parent := filepath.Dir(dir)
		if parent == dir {
			break
		}
		dir = parent
	}
	return ""
}

// classifyMIME derives a coarse MIME class from extension, falling
// back to magic-byte sniffing for ambiguous extensions like ".dat".
func classifyMIME(path, ext string) models.MIMEClass {
	switch ext {
	case ".png", ".webp", ".jpg", ".jpeg", ".gif", ".bmp", ".tiff", ".svg":
		return models.MIMEImage
	case ".wav", ".mp3", ".m4a", ".ogg", ".flac":
		return models.MIMEAudio
	case ".pdf":
		return models.MIMEDocument
	case ".mp4", ".mov", ".avi", ".mkv", ".webm":
		return models.MIMEOther
	}

	// Ambiguous extension (".dat" or unrecognized): sniff magic bytes.
	// Never renamed in place — classification only affects indexing
	// and the eventual output copy's name, per the Open Question in
	// DESIGN.md.
	f, err := os.Open(path)
	if err != nil {
		return models.MIMEOther
	}
	defer f.Close()

	buf := make([]byte, 512)
	n, _ := f.Read(buf)
	sniffed := http.DetectContentType(buf[:n])
	switch {
	case strings.HasPrefix(sniffed, "image/"):
		return models.MIMEImage
	case strings.HasPrefix(sniffed, "audio/"):
		return models.MIMEAudio
	case sniffed == "application/pdf":
		return models.MIMEDocument
	default:
		return models.MIMEOther
	}
}
