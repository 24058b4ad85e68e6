package codec

import (
	"fmt"
	"sync"

	"github.com/klauspost/compress/zstd"
)

// encoderSet lazily builds and caches one *zstd.Encoder per compression
// level. Levels in this extension are a small, known set (1-22), so the
// cache never grows unbounded, and every encoder is configured with the
// same pinned options so that encode(text, level) is a pure function of
// its two arguments across the lifetime of a process.
type encoderSet struct {
	mu      sync.Mutex
	byLevel map[int]*zstd.Encoder
}

func (s *encoderSet) get(level int) (*zstd.Encoder, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	if enc, ok := s.byLevel[level]; ok {
		return enc, nil
	}

	enc, err := zstd.NewWriter(nil,
		zstd.WithEncoderLevel(zstd.EncoderLevelFromZstd(level)),
		zstd.WithEncoderCRC(false),
		zstd.WithWindowSize(1<<20),
	)
	if err != nil {
		return nil, fmt.Errorf("%w: level %d: %v", ErrEncode, level, err)
	}

	if s.byLevel == nil {
		s.byLevel = make(map[int]*zstd.Encoder)
	}
	s.byLevel[level] = enc
	return enc, nil
}

var encoderCache encoderSet
