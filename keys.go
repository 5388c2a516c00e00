package shelfdb

// Root keyspace: shelf records under 'S', per-owner shelf counts under 'U',
// follow sets under 'F'. Secondary-index keys live in the indexes package.

func shelfKey(shelfID string) []byte {
	return append([]byte{'S'}, shelfID...)
}

func ownerCountKey(owner string) []byte {
	return append([]byte{'U'}, owner...)
}

func followUserKey(user, followed string) []byte {
	key := append([]byte{'F', 'U'}, user...)
	key = append(key, 0x00)
	return append(key, followed...)
}

func followTagKey(user, tag string) []byte {
	key := append([]byte{'F', 'T'}, user...)
	key = append(key, 0x00)
	return append(key, tag...)
}

func followUserPrefix(user string) []byte {
	key := append([]byte{'F', 'U'}, user...)
	return append(key, 0x00)
}

func followTagPrefix(user string) []byte {
	key := append([]byte{'F', 'T'}, user...)
	return append(key, 0x00)
}
