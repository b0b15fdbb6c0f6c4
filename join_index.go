package semjoin

import (
	"strings"

	"github.com/zeebo/xxh3"
)

// keySeparator joins the canonical values of a composite key.
const keySeparator = "|"

var keyEscaper = strings.NewReplacer(`\`, `\\`, keySeparator, `\`+keySeparator)

// compositeKey joins canonical values into one key. It returns "" when
// every part is empty; such rows are neither indexed nor probed.
func compositeKey(parts []string) string {
	empty := true
	for _, p := range parts {
		if p != "" {
			empty = false
			break
		}
	}
	if empty {
		return ""
	}
	if len(parts) == 1 {
		return parts[0]
	}
	escaped := make([]string, len(parts))
	for i, p := range parts {
		escaped[i] = keyEscaper.Replace(p)
	}
	return strings.Join(escaped, keySeparator)
}

// compositeKeys builds the key of every row from per-column canonical values.
func compositeKeys(canonical [][]string, rows int) []string {
	keys := make([]string, rows)
	parts := make([]string, len(canonical))
	for r := 0; r < rows; r++ {
		for c := range canonical {
			parts[c] = canonical[c][r]
		}
		keys[r] = compositeKey(parts)
	}
	return keys
}

// keyBucket holds the rows sharing one composite key.
type keyBucket struct {
	key  string
	rows []int
}

// keyIndex maps composite keys to row indices. Keys are hashed with xxh3;
// rows are only returned when the stored key string is equal, so hash
// collisions never produce matches.
type keyIndex struct {
	buckets map[uint64][]*keyBucket
	order   []*keyBucket // first-seen order, for deterministic fuzzy scans
	rows    int
}

// buildKeyIndex indexes keys by row number, skipping empty keys.
func buildKeyIndex(keys []string) *keyIndex {
	idx := &keyIndex{buckets: make(map[uint64][]*keyBucket, len(keys))}
	for row, key := range keys {
		if key == "" {
			continue
		}
		h := xxh3.HashString(key)
		var bucket *keyBucket
		for _, b := range idx.buckets[h] {
			if b.key == key {
				bucket = b
				break
			}
		}
		if bucket == nil {
			bucket = &keyBucket{key: key}
			idx.buckets[h] = append(idx.buckets[h], bucket)
			idx.order = append(idx.order, bucket)
		}
		bucket.rows = append(bucket.rows, row)
		idx.rows++
	}
	return idx
}

// lookup returns the rows whose key equals key, in ascending order.
func (idx *keyIndex) lookup(key string) []int {
	for _, b := range idx.buckets[xxh3.HashString(key)] {
		if b.key == key {
			return b.rows
		}
	}
	return nil
}

// Len returns the number of distinct keys.
func (idx *keyIndex) Len() int {
	return len(idx.order)
}
