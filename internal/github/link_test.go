// internal/github/link_test.go
package github

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestParseLinkHeader(t *testing.T) {
	t.Run("empty header yields zero value", func(t *testing.T) {
		links := ParseLinkHeader("")

		assert.Nil(t, links.First)
		assert.Nil(t, links.Prev)
		assert.Nil(t, links.Next)
		assert.Nil(t, links.Last)
	})

	t.Run("parses all four relations", func(t *testing.T) {
		header := `<https://api.github.com/user/starred?page=1>; rel="first", ` +
			`<https://api.github.com/user/starred?page=2>; rel="prev", ` +
			`<https://api.github.com/user/starred?page=4>; rel="next", ` +
			`<https://api.github.com/user/starred?page=9>; rel="last"`

		links := ParseLinkHeader(header)

		require.NotNil(t, links.First)
		require.NotNil(t, links.Prev)
		require.NotNil(t, links.Next)
		require.NotNil(t, links.Last)
		assert.Equal(t, "https://api.github.com/user/starred?page=1", *links.First)
		assert.Equal(t, "https://api.github.com/user/starred?page=2", *links.Prev)
		assert.Equal(t, "https://api.github.com/user/starred?page=4", *links.Next)
		assert.Equal(t, "https://api.github.com/user/starred?page=9", *links.Last)
	})

	t.Run("only next and last on first page", func(t *testing.T) {
		header := `<https://api.github.com/user/starred?page=2>; rel="next", ` +
			`<https://api.github.com/user/starred?page=3>; rel="last"`

		links := ParseLinkHeader(header)

		assert.Nil(t, links.First)
		assert.Nil(t, links.Prev)
		require.NotNil(t, links.Next)
		assert.Equal(t, "https://api.github.com/user/starred?page=2", *links.Next)
		require.NotNil(t, links.Last)
		assert.Equal(t, "https://api.github.com/user/starred?page=3", *links.Last)
	})

	t.Run("ignores malformed and unknown segments", func(t *testing.T) {
		header := `not-a-link, <https://api.github.com/user/starred?page=2>, ` +
			`<https://api.github.com/user/starred?page=5>; rel="weird", ` +
			`<https://api.github.com/user/starred?page=2>; rel="next"`

		links := ParseLinkHeader(header)

		assert.Nil(t, links.First)
		assert.Nil(t, links.Prev)
		assert.Nil(t, links.Last)
		require.NotNil(t, links.Next)
		assert.Equal(t, "https://api.github.com/user/starred?page=2", *links.Next)
	})

	t.Run("trims whitespace and angle brackets", func(t *testing.T) {
		header := `  < https://api.github.com/user/starred?page=2 >  ; rel="next"`

		links := ParseLinkHeader(header)

		require.NotNil(t, links.Next)
		assert.Equal(t, "https://api.github.com/user/starred?page=2", *links.Next)
	})
}
