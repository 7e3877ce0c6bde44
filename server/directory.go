package server

import (
	"bytes"
	"context"
	"embed"
	"fmt"
	"html/template"
	"os"
	"path"
	"strconv"

	"go.sakib.dev/shuttle/protocol"
)

//go:embed templates/directory.html
var templateFS embed.FS

var dirTemplate = template.Must(template.ParseFS(templateFS, "templates/directory.html"))

type DirEntry struct {
	Name  string
	Href  string
	IsDir bool
}

type DirectoryData struct {
	Path    string
	Entries []DirEntry
}

// listDirectory returns the immediate entries of dirPath. Hrefs are absolute
// so they resolve even when the request path lacks a trailing slash.
// os.ReadDir returns entries sorted by name.
func listDirectory(reqPath, dirPath string) ([]DirEntry, error) {
	files, err := os.ReadDir(dirPath)
	if err != nil {
		return nil, err
	}

	entries := make([]DirEntry, 0, len(files))
	for _, file := range files {
		href := path.Join("/", reqPath, file.Name())
		isDir := file.IsDir()
		if isDir {
			href += "/"
		}
		entries = append(entries, DirEntry{
			Name:  file.Name(),
			Href:  href,
			IsDir: isDir,
		})
	}
	return entries, nil
}

func renderDirectory(reqPath string, entries []DirEntry) ([]byte, error) {
	var buf bytes.Buffer
	data := DirectoryData{Path: reqPath, Entries: entries}
	if err := dirTemplate.Execute(&buf, data); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}

func (s *Server) serveDirectory(ctx context.Context, t *transport, reqPath, dirPath string) error {
	entries, err := listDirectory(reqPath, dirPath)
	if err != nil {
		return fmt.Errorf("read directory %s: %w", dirPath, err)
	}
	body, err := renderDirectory(reqPath, entries)
	if err != nil {
		return fmt.Errorf("render directory %s: %w", dirPath, err)
	}

	if err := t.WriteResponse(protocol.StatusOK, "text/html", body); err != nil {
		return err
	}
	s.info(ctx, "OK - Serving directory", protocol.StatusOK, "path", reqPath, "entries", len(entries))
	s.record(ctx, "GET "+reqPath+": directory listed", protocol.StatusOK)
	return nil
}

func humanizeSize(size int64) string {
	const unit = 1024
	if size < unit {
		return strconv.FormatInt(size, 10) + " B"
	}

	units := []string{"KB", "MB", "GB", "TB"}
	val := float64(size) / unit
	exp := 0
	for val >= unit && exp < len(units)-1 {
		val /= unit
		exp++
	}

	if val < 10 {
		return strconv.FormatFloat(val, 'f', 1, 64) + " " + units[exp]
	}
	return strconv.FormatInt(int64(val), 10) + " " + units[exp]
}
