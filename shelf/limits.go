package shelf

// Structural bounds enforced on every mutation.
const (
	MaxTitleLength       = 100
	MaxDescriptionLength = 500
	MaxMarkdownLength    = 3000
	MaxAssetIDLength     = 20
	MaxTagLength         = 25
	MaxTagsPerShelf      = 5
	MaxItemsPerShelf     = 500
	MaxAppearsInCount    = 5
	MaxAssetBacklinks    = 50
	MaxUserShelves       = 500
	MaxShelfRecordBytes  = 8 << 10
)

// DefaultPositionStep is the spacing used for appended items and for
// rebalanced position ranges.
const DefaultPositionStep = 10.0
