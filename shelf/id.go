package shelf

import (
	"encoding/binary"
	"strconv"

	"github.com/cespare/xxhash"
)

// NewID derives a stable opaque shelf id from owner, creation time and title.
// The timestamp component keeps ids unique per engine even for identical
// owner+title pairs.
func NewID(owner UID, createdAt uint64, title string) string {
	var buf []byte
	buf = append(buf, owner...)
	buf = binary.BigEndian.AppendUint64(buf, createdAt)
	buf = append(buf, title...)
	sum := xxhash.Sum64(buf)
	return strconv.FormatUint(sum, 36) + "-" + strconv.FormatUint(createdAt, 36)
}
