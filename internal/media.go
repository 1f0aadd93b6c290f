package internal

import (
	"fmt"
	"net/url"
	"strings"
)

// Same-origin prefixes for proxied media. Browsers only ever see these
// paths; the original host is kept as the first path segment so the byte
// fetch can reconstruct the upstream URL.
const (
	imgPrefix   = "/img/"
	vidPrefix   = "/vid/"
	thumbPrefix = "/thumb/"
)

// mediaHosts maps known upstream media hosts to their proxy prefix.
var mediaHosts = map[string]string{
	"i.redd.it":                imgPrefix,
	"preview.redd.it":          imgPrefix,
	"external-preview.redd.it": imgPrefix,
	"styles.redditmedia.com":   imgPrefix,
	"emoji.redditmedia.com":    imgPrefix,
	"v.redd.it":                vidPrefix,
	"a.thumbs.redditmedia.com": thumbPrefix,
	"b.thumbs.redditmedia.com": thumbPrefix,
}

// RewriteMediaURL maps an absolute upstream media URL onto a same-origin
// proxy path. URLs that do not point at a known media host are returned
// unchanged, as are already-rewritten paths, making the function
// idempotent: RewriteMediaURL(RewriteMediaURL(u)) == RewriteMediaURL(u).
func RewriteMediaURL(raw string) string {
	if raw == "" {
		return raw
	}
	for _, prefix := range []string{imgPrefix, vidPrefix, thumbPrefix} {
		if strings.HasPrefix(raw, prefix) {
			return raw
		}
	}

	u, err := url.Parse(raw)
	if err != nil || !u.IsAbs() {
		return raw
	}
	prefix, ok := mediaHosts[u.Host]
	if !ok {
		return raw
	}

	// Upstream HTML-escapes preview URLs; undo the one entity that shows up.
	rewritten := prefix + u.Host + u.EscapedPath()
	if u.RawQuery != "" {
		rewritten += "?" + strings.ReplaceAll(u.RawQuery, "&amp;", "&")
	}
	return rewritten
}

// ResolveMediaPath inverts RewriteMediaURL: given a proxy path (with its
// query, if any) it reconstructs the upstream URL for the byte fetch.
func ResolveMediaPath(p string) (string, error) {
	var rest string
	switch {
	case strings.HasPrefix(p, imgPrefix):
		rest = strings.TrimPrefix(p, imgPrefix)
	case strings.HasPrefix(p, vidPrefix):
		rest = strings.TrimPrefix(p, vidPrefix)
	case strings.HasPrefix(p, thumbPrefix):
		rest = strings.TrimPrefix(p, thumbPrefix)
	default:
		return "", fmt.Errorf("not a proxied media path: %q", p)
	}

	host, tail, _ := strings.Cut(rest, "/")
	if host == "" {
		return "", fmt.Errorf("media path %q is missing the upstream host", p)
	}
	if _, known := mediaHosts[host]; !known {
		return "", fmt.Errorf("media path %q names unknown host %q", p, host)
	}
	return "https://" + host + "/" + tail, nil
}
