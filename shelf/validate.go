package shelf

import (
	"fmt"
	"strings"

	"github.com/AlexandriaDAO/shelfdb/shelfdb_errors"
)

var errValidation = shelfdb_errors.ErrValidation

// UID identifies a caller. The engine treats it as opaque.
type UID string

// Anonymous is the distinguished unauthenticated identity. Every mutating
// operation rejects it.
const Anonymous UID = "2vxsx-fae"

func (u UID) Valid() bool {
	return u != "" && u != Anonymous
}

func ValidateTitle(title string) error {
	if strings.TrimSpace(title) == "" {
		return fmt.Errorf("%w: title must not be empty", errValidation)
	}
	if len(title) > MaxTitleLength {
		return fmt.Errorf("%w: title over %d bytes", errValidation, MaxTitleLength)
	}
	return nil
}

func ValidateDescription(description string) error {
	if len(description) > MaxDescriptionLength {
		return fmt.Errorf("%w: description over %d bytes", errValidation, MaxDescriptionLength)
	}
	return nil
}

// ValidateAssetID accepts decimal numeric strings only.
func ValidateAssetID(assetID string) error {
	if assetID == "" || len(assetID) > MaxAssetIDLength {
		return fmt.Errorf("%w: asset id must be 1..%d digits", errValidation, MaxAssetIDLength)
	}
	for _, r := range assetID {
		if r < '0' || r > '9' {
			return fmt.Errorf("%w: asset id %q is not numeric", errValidation, assetID)
		}
	}
	return nil
}

// NormalizeTag lowercases and trims a tag, then checks the format:
// 1..MaxTagLength of [a-z0-9-_], starting alphanumeric.
func NormalizeTag(tag string) (string, error) {
	norm := strings.ToLower(strings.TrimSpace(tag))
	if norm == "" || len(norm) > MaxTagLength {
		return "", fmt.Errorf("%w: tag must be 1..%d chars", errValidation, MaxTagLength)
	}
	for i, r := range norm {
		alnum := (r >= 'a' && r <= 'z') || (r >= '0' && r <= '9')
		if alnum {
			continue
		}
		if i > 0 && (r == '-' || r == '_') {
			continue
		}
		return "", fmt.Errorf("%w: tag %q has invalid characters", errValidation, tag)
	}
	return norm, nil
}

// NormalizeTags normalizes a tag list, rejecting duplicates and oversize lists.
func NormalizeTags(tags []string) ([]string, error) {
	if len(tags) > MaxTagsPerShelf {
		return nil, fmt.Errorf("%w: more than %d tags", shelfdb_errors.ErrLimitExceeded, MaxTagsPerShelf)
	}
	out := make([]string, 0, len(tags))
	seen := make(map[string]bool, len(tags))
	for _, t := range tags {
		norm, err := NormalizeTag(t)
		if err != nil {
			return nil, err
		}
		if seen[norm] {
			return nil, fmt.Errorf("%w: duplicate tag %q", errValidation, norm)
		}
		seen[norm] = true
		out = append(out, norm)
	}
	return out, nil
}
