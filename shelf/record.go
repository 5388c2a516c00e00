package shelf

import (
	"encoding/json"
	"fmt"

	"github.com/AlexandriaDAO/shelfdb/shelfdb_errors"
	"github.com/pkg/errors"
)

// EncodeRecord serializes a shelf for the substrate. Records above
// MaxShelfRecordBytes fail to persist.
func EncodeRecord(s *Shelf) ([]byte, error) {
	data, err := json.Marshal(s)
	if err != nil {
		return nil, errors.Wrap(err, "encode shelf record")
	}
	if len(data) > MaxShelfRecordBytes {
		return nil, fmt.Errorf("%w: shelf record is %d bytes, cap is %d",
			shelfdb_errors.ErrLimitExceeded, len(data), MaxShelfRecordBytes)
	}
	return data, nil
}

func DecodeRecord(data []byte) (*Shelf, error) {
	s := &Shelf{}
	if err := json.Unmarshal(data, s); err != nil {
		return nil, errors.Wrap(err, "decode shelf record")
	}
	if s.Items == nil {
		s.Items = make(map[uint32]Item)
	}
	if s.ItemPositions == nil {
		s.ItemPositions = make(map[uint32]float64)
	}
	return s, nil
}
