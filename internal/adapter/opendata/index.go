package opendata

import (
	"errors"
	"io"
	"strings"

	"golang.org/x/net/html"
)

// scanLinks returns the href of every anchor that starts with prefix and has
// at least one more character, in document order and without duplicates.
func scanLinks(r io.Reader, prefix string) ([]string, error) {
	z := html.NewTokenizer(r)
	seen := make(map[string]struct{})
	var files []string

	for {
		switch z.Next() {
		case html.ErrorToken:
			if errors.Is(z.Err(), io.EOF) {
				return files, nil
			}
			return files, z.Err()
		case html.StartTagToken, html.SelfClosingTagToken:
			name, hasAttr := z.TagName()
			if string(name) != "a" {
				continue
			}
			for hasAttr {
				var key, val []byte
				key, val, hasAttr = z.TagAttr()
				if string(key) != "href" {
					continue
				}
				href := string(val)
				if len(href) <= len(prefix) || !strings.HasPrefix(href, prefix) || strings.ContainsAny(href, " \t\n") {
					continue
				}
				if _, dup := seen[href]; dup {
					continue
				}
				seen[href] = struct{}{}
				files = append(files, href)
			}
		}
	}
}
