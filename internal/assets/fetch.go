package assets

import (
	"context"
	"fmt"
	"io"
	"mime"
	"net/http"
	"path"
	"regexp"
	"strings"
	"time"
)

const defaultUserAgent = "scene-engine/1.0"

// DefaultClient is used by Fetch when the caller passes nil.
var DefaultClient = &http.Client{Timeout: 60 * time.Second}

// Fetch downloads url. The name is taken from Content-Disposition or the URL
// path; an extension is added from Content-Type when the name has none.
func Fetch(ctx context.Context, client *http.Client, url string) (File, error) {
	if client == nil {
		client = DefaultClient
	}
	req, err := http.NewRequestWithContext(ctx, http.MethodGet, url, nil)
	if err != nil {
		return File{}, fmt.Errorf("fetch: %w", err)
	}
	req.Header.Set("User-Agent", defaultUserAgent)
	resp, err := client.Do(req)
	if err != nil {
		return File{}, fmt.Errorf("fetch: %w", err)
	}
	defer resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		return File{}, fmt.Errorf("fetch %s: HTTP %d", url, resp.StatusCode)
	}
	data, err := io.ReadAll(resp.Body)
	if err != nil {
		return File{}, fmt.Errorf("fetch: %w", err)
	}

	name := filenameFromContentDisposition(resp.Header.Get("Content-Disposition"))
	if name == "" {
		name = filenameFromURL(url)
	}
	name = sanitizeFilename(name)
	if path.Ext(name) == "" {
		name += extensionFromContentType(resp.Header.Get("Content-Type"))
	}
	return File{Name: name, Data: data}, nil
}

// AddURL fetches url into the stage.
func (s *Stage) AddURL(ctx context.Context, client *http.Client, url string) (string, error) {
	f, err := Fetch(ctx, client, url)
	if err != nil {
		return "", err
	}
	return f.Name, s.Add(f)
}

func filenameFromContentDisposition(cd string) string {
	if cd == "" {
		return ""
	}
	_, params, err := mime.ParseMediaType(cd)
	if err != nil {
		return ""
	}
	return params["filename"]
}

func extensionFromContentType(ct string) string {
	ct, _, _ = mime.ParseMediaType(ct)
	switch ct {
	case "model/gltf-binary":
		return ".glb"
	case "model/gltf+json":
		return ".gltf"
	case "application/zip", "application/x-zip-compressed":
		return ".zip"
	case "image/png":
		return ".png"
	case "image/jpeg":
		return ".jpg"
	case "image/webp":
		return ".webp"
	}
	return ".bin"
}

func filenameFromURL(url string) string {
	if i := strings.IndexAny(url, "?#"); i >= 0 {
		url = url[:i]
	}
	if i := strings.Index(url, "://"); i >= 0 {
		url = url[i+3:]
		if j := strings.Index(url, "/"); j >= 0 {
			url = url[j:]
		} else {
			url = ""
		}
	}
	return path.Base("/" + url)
}

var safeNameRe = regexp.MustCompile(`[^a-zA-Z0-9_.-]+`)

func sanitizeFilename(name string) string {
	name = safeNameRe.ReplaceAllString(name, "_")
	name = strings.Trim(name, ".")
	if name == "" || name == "_" {
		return "download"
	}
	if len(name) > 96 {
		name = name[:96]
	}
	return name
}
