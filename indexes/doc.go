// Package indexes keeps every secondary index consistent with the shelf
// records. The engine pairs each mutating operation with the matching index
// updates in one Pebble batch, so records and indexes either commit together
// or not at all.
//
// # Key layout in Pebble
//
// Variable-length components are 0x00-separated.
//
//   - Tag metadata:     "GM" + tag -> JSON {first_seen, last_association,
//     last_active, shelf_count}. Deleted when shelf_count reaches 0.
//
//   - Tag->shelf:       "GA" + tag + 0x00 + shelf_id -> empty
//
//   - Shelf->tag:       "GB" + shelf_id + 0x00 + tag -> empty
//
//   - Popularity:       "GP" + ^count(u32, BE) + tag -> empty. The count is
//     order-inverted, so an ascending scan yields tags by descending use.
//     The old entry is deleted and the new one inserted whenever a tag's
//     count changes.
//
//   - Lexical:          "GL" + tag -> empty. Prefix scans drive tag search.
//
//   - Tag timeline:     "GC" + tag + 0x00 + ^created_at(u64, BE) + shelf_id
//     -> empty. Ascending scan is newest-first per tag.
//
//   - Owner timeline:   "TO" + owner + 0x00 + ^ts(u64, BE) -> shelf_id
//
//   - Global timeline:  "TG" + ^ts(u64, BE) -> JSON {shelf_id, owner, tags,
//     public_editing}. The value is denormalized so feed filters never read
//     the shelf record. Tag and visibility changes rewrite it in place.
//
//   - Asset membership: "AN" + asset_id -> JSON list of shelf ids. Capped at
//     shelf.MaxAssetBacklinks; once full, further additions are skipped and
//     logged, never failed. Deleted when the list empties.
//
//   - Discovery pool:   "D!" + shelf_id -> empty, "D#" -> u64 pool size.
//     A bounded candidate set for the shuffled discovery feed.
//
// Timeline keys rely on the engine clock being strictly increasing, so a
// timestamp never lands on an occupied key.
//
// # Consistency
//
// Writers never read their own batch: every per-batch read goes to the
// committed state. That is sound because the engine locks every read-modify-
// write scope an operation touches, not just the shelf: a "tag/"+tag key for
// tag count updates, an "asset/"+id key for membership lists and a "pool" key
// for the discovery pool counter. Two operations on different shelves that
// update the same tag therefore serialize on the tag lock and cannot both
// commit the same count.
package indexes
