package shelf

import "fmt"

// ContentKind discriminates the closed set of item payload variants.
type ContentKind string

const (
	KindText  ContentKind = "text"
	KindAsset ContentKind = "asset"
	KindShelf ContentKind = "shelf"
)

// ItemContent is a tagged union. Exactly one payload field is meaningful,
// selected by Kind. Code interpreting content must switch on Kind and treat
// any other value as corruption.
type ItemContent struct {
	Kind    ContentKind `json:"kind"`
	Text    string      `json:"text,omitempty"`
	AssetID string      `json:"asset_id,omitempty"`
	ShelfID string      `json:"shelf_id,omitempty"`
}

func Text(text string) ItemContent {
	return ItemContent{Kind: KindText, Text: text}
}

func AssetRef(assetID string) ItemContent {
	return ItemContent{Kind: KindAsset, AssetID: assetID}
}

func NestedShelf(shelfID string) ItemContent {
	return ItemContent{Kind: KindShelf, ShelfID: shelfID}
}

func (c ItemContent) Validate() error {
	switch c.Kind {
	case KindText:
		if len(c.Text) == 0 {
			return fmt.Errorf("%w: empty text item", errValidation)
		}
		if len(c.Text) > MaxMarkdownLength {
			return fmt.Errorf("%w: text item over %d bytes", errValidation, MaxMarkdownLength)
		}
	case KindAsset:
		if err := ValidateAssetID(c.AssetID); err != nil {
			return err
		}
	case KindShelf:
		if c.ShelfID == "" {
			return fmt.Errorf("%w: empty nested shelf id", errValidation)
		}
	default:
		return fmt.Errorf("%w: unknown content kind %q", errValidation, c.Kind)
	}
	return nil
}

func (c ItemContent) String() string {
	switch c.Kind {
	case KindText:
		return fmt.Sprintf("text(%d bytes)", len(c.Text))
	case KindAsset:
		return "asset#" + c.AssetID
	case KindShelf:
		return "shelf:" + c.ShelfID
	default:
		return "?" + string(c.Kind)
	}
}
