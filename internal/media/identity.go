package media

import (
	"net/url"
	"path"
	"strings"
	"unicode"

	"golang.org/x/text/cases"
	"golang.org/x/text/runes"
	"golang.org/x/text/transform"
	"golang.org/x/text/unicode/norm"
)

var folder = cases.Fold()

// BaseName returns the final path element of a storage key or URI with any
// query string or fragment removed.
func BaseName(identity string) string {
	identity = strings.TrimSpace(identity)
	if identity == "" {
		return ""
	}
	if u, err := url.Parse(identity); err == nil && u.Path != "" {
		identity = u.Path
	} else if i := strings.IndexAny(identity, "?#"); i >= 0 {
		identity = identity[:i]
	}
	identity = strings.ReplaceAll(identity, "\\", "/")
	base := path.Base(identity)
	if base == "." || base == "/" {
		return ""
	}
	return base
}

// NormalizeIdentity reduces a storage key, URI or filename to the comparison
// form used for lookup: basename, extension stripped, NFC composed, diacritic
// marks removed, case folded, whitespace and separators collapsed to "-".
func NormalizeIdentity(identity string) string {
	base := BaseName(identity)
	if base == "" {
		return ""
	}
	if ext := path.Ext(base); ext != "" && len(ext) <= 5 {
		base = strings.TrimSuffix(base, ext)
	}
	t := transform.Chain(norm.NFD, runes.Remove(runes.In(unicode.Mn)), norm.NFC)
	cleaned, _, err := transform.String(t, base)
	if err != nil {
		cleaned = norm.NFC.String(base)
	}
	cleaned = folder.String(cleaned)

	var b strings.Builder
	dash := false
	for _, r := range cleaned {
		if unicode.IsLetter(r) || unicode.IsDigit(r) {
			b.WriteRune(r)
			dash = false
			continue
		}
		if !dash && b.Len() > 0 {
			b.WriteByte('-')
			dash = true
		}
	}
	return strings.TrimSuffix(b.String(), "-")
}
