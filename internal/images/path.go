// Package images downloads an item's cover URLs, classifies failures, and
// assigns collision-safe storage paths under a flat "full" directory.
package images

import (
	"fmt"
	"hash/fnv"
	"net/url"
	"path"
	"strings"
	"unicode"
)

var allowedExts = map[string]struct{}{
	".jpg":  {},
	".jpeg": {},
	".png":  {},
	".gif":  {},
	".webp": {},
}

const maxTitleRunes = 50

// FilePath derives the storage path (relative to the image root) for a
// source URL. The name comes from the URL path's basename; an extension
// outside the allowed set is replaced with ".jpg". When the basename is
// empty or has no extension at all, a synthetic name is built from the
// sanitized title plus a numeric suffix hashed from the URL.
func FilePath(rawURL, title string) string {
	var urlPath string
	if u, err := url.Parse(rawURL); err == nil {
		urlPath = u.Path
	}
	base := path.Base(urlPath)
	ext := strings.ToLower(path.Ext(base))
	if _, ok := allowedExts[ext]; !ok {
		ext = ".jpg"
	}

	var name string
	if base == "" || base == "." || base == "/" || path.Ext(base) == "" {
		name = syntheticName(title, rawURL, ext)
	} else {
		name = strings.TrimSuffix(base, path.Ext(base)) + ext
	}
	return path.Join("full", name)
}

// syntheticName builds a human-readable fallback filename from the sanitized
// title and the URL hash reduced modulo 10000. The hash is FNV-1a: it is not
// cryptographic and will collide at scale. It only keeps filenames readable
// and roughly unique; the database key for an image is its source URL, never
// this name.
func syntheticName(title, rawURL, ext string) string {
	safe := sanitizeTitle(title)
	if safe == "" {
		safe = "image"
	}
	h := fnv.New32a()
	h.Write([]byte(rawURL))
	return fmt.Sprintf("%s_%04d%s", safe, h.Sum32()%10000, ext)
}

func sanitizeTitle(title string) string {
	var b strings.Builder
	for _, r := range title {
		switch {
		case unicode.IsLetter(r) || unicode.IsDigit(r):
			b.WriteRune(r)
		case r == '.' || r == '_' || r == '-' || r == ' ':
			b.WriteRune(r)
		}
	}
	safe := strings.TrimSpace(b.String())
	safe = strings.ReplaceAll(safe, " ", "_")
	runes := []rune(safe)
	if len(runes) > maxTitleRunes {
		runes = runes[:maxTitleRunes]
	}
	return string(runes)
}
