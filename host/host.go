package host

import (
	"github.com/AlexandriaDAO/shelfdb/utils"
	"github.com/cockroachdb/pebble"
)

// Host is the slice of the engine the index coordinator needs: substrate
// access, write durability options, the engine clock and the logger.
type Host interface {
	Database() *pebble.DB
	WriteOptions() *pebble.WriteOptions
	Logger() utils.Logger
	Now() uint64
}
