package shelfdb

import (
	"encoding/base64"
	"fmt"

	"github.com/AlexandriaDAO/shelfdb/shelfdb_errors"
)

// A cursor is an opaque base64 token: one kind byte tying it to the query
// that produced it, then the substrate key the next page starts at. A cursor
// replayed against a different query fails with ErrInvalidCursor instead of
// silently paging the wrong index.
const (
	cursorPopular    byte = 'p'
	cursorLexical    byte = 'l'
	cursorTagShelves byte = 'a'
	cursorTagRecency byte = 'c'
	cursorRecency    byte = 'g'
	cursorUsersFeed  byte = 'u'
	cursorTagsFeed   byte = 't'
	cursorStoryline  byte = 's'
)

func encodeCursor(kind byte, key []byte) string {
	return base64.RawURLEncoding.EncodeToString(append([]byte{kind}, key...))
}

func decodeCursor(cursor *string, kind byte) ([]byte, error) {
	if cursor == nil || *cursor == "" {
		return nil, nil
	}
	raw, err := base64.RawURLEncoding.DecodeString(*cursor)
	if err != nil || len(raw) < 2 {
		return nil, fmt.Errorf("%w: undecodable cursor", shelfdb_errors.ErrInvalidCursor)
	}
	if raw[0] != kind {
		return nil, fmt.Errorf("%w: cursor belongs to a different query", shelfdb_errors.ErrInvalidCursor)
	}
	return raw[1:], nil
}
