package utils

import (
	"fmt"
	"net/url"
	"path/filepath"
	"strings"
)

func UriToPath(uri string) (string, error) {
	if !IsFileURI(uri) {
		return "", fmt.Errorf("unsupported URI scheme: %s", uri)
	}
	u, err := url.Parse(uri)
	if err != nil {
		return "", err
	}
	return filepath.FromSlash(u.Path), nil
}

func PathToURI(path string) string {
	uri := url.URL{Scheme: "file", Path: filepath.ToSlash(path)}
	return uri.String()
}

func IsFileURI(uri string) bool {
	return strings.HasPrefix(uri, "file://")
}

// Contains reports whether path is dir or lies below it.
func Contains(dir, path string) bool {
	rel, err := filepath.Rel(dir, path)
	if err != nil {
		return false
	}
	return rel == "." || (rel != ".." && !strings.HasPrefix(rel, ".."+string(filepath.Separator)))
}
