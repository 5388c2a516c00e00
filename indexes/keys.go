package indexes

import "encoding/binary"

// Key prefixes. Tag indices live under 'G', timelines under 'T', asset
// membership under 'A', discovery pool under 'D'. Variable-length components
// are 0x00-terminated so range bounds stay simple; tags, owners and shelf ids
// never contain a zero byte.
const (
	sep = 0x00
)

// revTS order-inverts a timestamp so an ascending scan sees newest first.
func revTS(ts uint64) uint64 {
	return ^ts
}

// revCount order-inverts a shelf count so an ascending scan sees the most
// used tags first.
func revCount(count uint64) uint32 {
	return ^uint32(count)
}

func tagMetaKey(tag string) []byte {
	return append([]byte{'G', 'M'}, tag...)
}

func tagShelfKey(tag, shelfID string) []byte {
	key := append([]byte{'G', 'A'}, tag...)
	key = append(key, sep)
	return append(key, shelfID...)
}

func shelfTagKey(shelfID, tag string) []byte {
	key := append([]byte{'G', 'B'}, shelfID...)
	key = append(key, sep)
	return append(key, tag...)
}

func popularityKey(count uint64, tag string) []byte {
	key := binary.BigEndian.AppendUint32([]byte{'G', 'P'}, revCount(count))
	return append(key, tag...)
}

func lexicalKey(tag string) []byte {
	return append([]byte{'G', 'L'}, tag...)
}

func tagTimeKey(tag string, createdAt uint64, shelfID string) []byte {
	key := append([]byte{'G', 'C'}, tag...)
	key = append(key, sep)
	key = binary.BigEndian.AppendUint64(key, revTS(createdAt))
	return append(key, shelfID...)
}

func ownerTimeKey(owner string, ts uint64) []byte {
	key := append([]byte{'T', 'O'}, owner...)
	key = append(key, sep)
	return binary.BigEndian.AppendUint64(key, revTS(ts))
}

func globalTimeKey(ts uint64) []byte {
	return binary.BigEndian.AppendUint64([]byte{'T', 'G'}, revTS(ts))
}

func assetKey(assetID string) []byte {
	return append([]byte{'A', 'N'}, assetID...)
}

func poolKey(shelfID string) []byte {
	return append([]byte{'D', '!'}, shelfID...)
}

var poolCountKey = []byte{'D', '#'}

// KeyUpperBound returns the exclusive upper bound for scanning all keys with
// the given prefix.
func KeyUpperBound(prefix []byte) []byte {
	end := make([]byte, len(prefix))
	copy(end, prefix)
	for i := len(end) - 1; i >= 0; i-- {
		end[i]++
		if end[i] != 0 {
			return end[:i+1]
		}
	}
	return nil // prefix is all 0xff, no upper bound
}
