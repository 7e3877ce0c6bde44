package server

import (
	"io"
	"mime"
	"net/http"
	"os"
	"path/filepath"
	"strings"
)

const octetStream = "application/octet-stream"

var imageTypes = map[string]string{
	".jpg":  "image/jpeg",
	".jpeg": "image/jpeg",
	".png":  "image/png",
	".gif":  "image/gif",
	".bmp":  "image/bmp",
	".svg":  "image/svg+xml",
	".webp": "image/webp",
	".ico":  "image/x-icon",
}

var textTypes = map[string]string{
	".txt":      "text/plain",
	".md":       "text/markdown",
	".markdown": "text/markdown",
	".rst":      "text/x-rst",
	".log":      "text/plain",
	".csv":      "text/csv",
	".tsv":      "text/tab-separated-values",
	".html":     "text/html",
	".htm":      "text/html",
	".css":      "text/css",
	".js":       "text/javascript",
	".xml":      "text/xml",
	".yaml":     "text/yaml",
	".yml":      "text/yaml",
	".toml":     "text/x-toml",
	".go":       "text/x-go",
	".py":       "text/x-python",
	".java":     "text/x-java",
	".c":        "text/x-c",
	".h":        "text/x-c",
	".cpp":      "text/x-c++",
	".hpp":      "text/x-c++",
	".cc":       "text/x-c++",
	".cs":       "text/x-csharp",
	".rs":       "text/x-rust",
	".rb":       "text/x-ruby",
	".php":      "text/x-php",
	".sh":       "text/x-shellscript",
	".sql":      "text/x-sql",
}

var binaryTypes = map[string]string{
	".zip":  "application/zip",
	".tar":  "application/x-tar",
	".gz":   "application/gzip",
	".bz2":  "application/x-bzip2",
	".xz":   "application/x-xz",
	".rar":  "application/vnd.rar",
	".7z":   "application/x-7z-compressed",
	".pdf":  "application/pdf",
	".json": "application/json",
	".mp3":  "audio/mpeg",
	".wav":  "audio/wav",
	".ogg":  "audio/ogg",
	".flac": "audio/flac",
	".mp4":  "video/mp4",
	".mkv":  "video/x-matroska",
	".webm": "video/webm",
	".mov":  "video/quicktime",
	".exe":  "application/vnd.microsoft.portable-executable",
	".bin":  octetStream,
}

// ProbeContentType guesses a MIME type from the file name alone. The
// built-in tables make the common cases independent of the host's mime
// database; anything else falls back to it. Unknown names yield "".
func ProbeContentType(name string) string {
	ext := strings.ToLower(filepath.Ext(name))
	if ext == "" {
		return ""
	}
	for _, table := range []map[string]string{textTypes, imageTypes, binaryTypes} {
		if t, ok := table[ext]; ok {
			return t
		}
	}
	return mime.TypeByExtension(ext)
}

// sniffContentType looks at the first bytes of f and rewinds it.
func sniffContentType(f *os.File) (string, error) {
	head := make([]byte, 512)
	n, err := io.ReadFull(f, head)
	if err != nil && err != io.EOF && err != io.ErrUnexpectedEOF {
		return "", err
	}
	if _, err := f.Seek(0, io.SeekStart); err != nil {
		return "", err
	}
	if n == 0 {
		return "", nil
	}
	return http.DetectContentType(head[:n]), nil
}

type fileKind int

const (
	kindBinary fileKind = iota
	kindText
	kindImage
)

func classify(contentType string) fileKind {
	switch {
	case strings.HasPrefix(contentType, "text"):
		return kindText
	case strings.HasPrefix(contentType, "image"):
		return kindImage
	}
	return kindBinary
}

// isAcceptedUpload reports whether an upload named name may be stored.
// Only text and image types are accepted; an undetectable type is not.
func isAcceptedUpload(name string) (string, bool) {
	ct := ProbeContentType(name)
	return ct, classify(ct) != kindBinary
}
