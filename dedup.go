package aidetect

import (
	"image"
	"sync"

	"github.com/corona10/goimagehash"
)

// similarityThreshold is the maximum Hamming distance between two dHash values
// below which images are considered perceptually identical.
const similarityThreshold = 10

// DefaultSimilaritySize is the capacity of NewSimilarityIndex when size <= 0.
const DefaultSimilaritySize = 4096

// SimilarityIndex remembers the perceptual hashes of analysed images and
// reports near-duplicates of earlier, byte-different uploads (re-encoded or
// resized copies). It is safe for concurrent use and holds at most capacity
// entries, dropping the oldest first.
type SimilarityIndex struct {
	mu       sync.Mutex
	capacity int
	entries  []similarityEntry // insertion order
}

type similarityEntry struct {
	contentHash string
	hash        *goimagehash.ImageHash
}

// NewSimilarityIndex returns an index bounded to capacity entries.
func NewSimilarityIndex(capacity int) *SimilarityIndex {
	if capacity <= 0 {
		capacity = DefaultSimilaritySize
	}
	return &SimilarityIndex{capacity: capacity}
}

// PerceptualHash computes the dHash of img.
func PerceptualHash(img image.Image) (*goimagehash.ImageHash, error) {
	return goimagehash.DifferenceHash(img)
}

// Observe records (contentHash, hash) and returns the content hash of an
// earlier entry that is perceptually identical but byte-different.
// Only entries recorded before this content hash are considered, so observing
// the same bytes again gives the same answer.
func (s *SimilarityIndex) Observe(contentHash string, hash *goimagehash.ImageHash) (string, bool) {
	if s == nil || hash == nil {
		return "", false
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	match := ""
	for _, e := range s.entries {
		if e.contentHash == contentHash {
			return match, match != ""
		}
		if match != "" {
			continue
		}
		dist, err := hash.Distance(e.hash)
		if err == nil && dist < similarityThreshold {
			match = e.contentHash
		}
	}

	s.entries = append(s.entries, similarityEntry{contentHash: contentHash, hash: hash})
	if over := len(s.entries) - s.capacity; over > 0 {
		s.entries = append(s.entries[:0:0], s.entries[over:]...)
	}
	return match, match != ""
}

// Len returns the number of remembered images.
func (s *SimilarityIndex) Len() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return len(s.entries)
}
