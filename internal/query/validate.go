package query

import (
	"errors"
	"fmt"
	"strconv"
	"strings"
	"unicode"

	"golang.org/x/text/unicode/norm"
)

// ErrInvalidInput marks caller input rejected before any network call.
var ErrInvalidInput = errors.New("invalid query input")

// MaxSearchLength bounds search text in bytes after normalization.
const MaxSearchLength = 255

// SearchText trims and NFC-normalizes raw search input and rejects empty,
// oversized or control-character input.
func SearchText(raw string) (string, error) {
	text := norm.NFC.String(strings.TrimSpace(raw))
	if text == "" {
		return "", fmt.Errorf("%w: search text is required", ErrInvalidInput)
	}
	if len(text) > MaxSearchLength {
		return "", fmt.Errorf("%w: search text too long (max %d bytes)", ErrInvalidInput, MaxSearchLength)
	}
	for _, r := range text {
		if unicode.IsControl(r) {
			return "", fmt.Errorf("%w: search text contains control characters", ErrInvalidInput)
		}
	}
	return text, nil
}

// ParseID parses a single positive decimal id.
func ParseID(raw string) (int64, error) {
	id, err := strconv.ParseInt(strings.TrimSpace(raw), 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid id %q", ErrInvalidInput, raw)
	}
	return id, nil
}

// ParseIDs parses a comma-separated id list. Non-numeric entries are dropped
// and duplicates removed, preserving first occurrence. At least one valid id
// must remain.
func ParseIDs(raw string) ([]int64, error) {
	parts := strings.Split(raw, ",")
	ids := make([]int64, 0, len(parts))
	seen := make(map[int64]struct{}, len(parts))
	for _, part := range parts {
		id, err := ParseID(part)
		if err != nil {
			continue
		}
		if _, exists := seen[id]; exists {
			continue
		}
		seen[id] = struct{}{}
		ids = append(ids, id)
	}
	if len(ids) == 0 {
		return nil, fmt.Errorf("%w: no valid ids provided", ErrInvalidInput)
	}
	return ids, nil
}

func validateIDs(ids []int64) error {
	if len(ids) == 0 {
		return fmt.Errorf("%w: at least one id is required", ErrInvalidInput)
	}
	for _, id := range ids {
		if id <= 0 {
			return fmt.Errorf("%w: invalid id %d", ErrInvalidInput, id)
		}
	}
	return nil
}

// Chunk splits ids into consecutive slices of at most size elements.
func Chunk(ids []int64, size int) [][]int64 {
	if size <= 0 || len(ids) == 0 {
		return nil
	}
	chunks := make([][]int64, 0, (len(ids)+size-1)/size)
	for start := 0; start < len(ids); start += size {
		end := min(start+size, len(ids))
		chunks = append(chunks, ids[start:end])
	}
	return chunks
}
