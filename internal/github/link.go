// internal/github/link.go
package github

import "strings"

// Links holds the page URLs named by a Link response header. A nil field
// means the relation was absent.
type Links struct {
	First *string
	Prev  *string
	Next  *string
	Last  *string
}

// ParseLinkHeader parses a Link header of the form
//
//	<https://api.github.com/user/starred?page=2>; rel="next", <...>; rel="last"
//
// into its named relations. An empty header yields the zero value. Segments
// without a recognized rel are ignored rather than rejected, so unknown
// relations added by the platform never break pagination.
func ParseLinkHeader(header string) Links {
	var links Links
	if header == "" {
		return links
	}
	for _, part := range strings.Split(header, ",") {
		url := cleanLink(strings.SplitN(part, ";", 2)[0])
		switch {
		case strings.Contains(part, `rel="first"`):
			links.First = &url
		case strings.Contains(part, `rel="prev"`):
			links.Prev = &url
		case strings.Contains(part, `rel="next"`):
			links.Next = &url
		case strings.Contains(part, `rel="last"`):
			links.Last = &url
		}
	}
	return links
}

// cleanLink strips surrounding whitespace and the enclosing angle brackets
// from a link segment's URL portion.
func cleanLink(link string) string {
	link = strings.TrimSpace(link)
	link = strings.TrimPrefix(link, "<")
	link = strings.TrimSuffix(link, ">")
	return strings.TrimSpace(link)
}
