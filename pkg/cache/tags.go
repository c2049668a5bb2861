package cache

import "go.uber.org/zap"

// SetWithTags stores value under key and registers the key under every
// tag, so related entries can later be invalidated in one call without
// knowing their exact keys. Registration happens under the same lock as
// the set itself.
func (s *Store) SetWithTags(key string, value interface{}, tags []string, opts ...EntryOptions) {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.setLocked(key, value, opts)

	for _, tag := range tags {
		keys, ok := s.tags[tag]
		if !ok {
			keys = make(map[string]struct{})
			s.tags[tag] = keys
		}
		keys[key] = struct{}{}
	}
}

// InvalidateByTag removes every key registered under tag from the store
// and drops the tag from the index. Keys already gone (expired, evicted,
// or deleted through the untagged path) are skipped. Returns the number of
// entries actually removed.
func (s *Store) InvalidateByTag(tag string) int {
	s.mu.Lock()
	defer s.mu.Unlock()

	keys, ok := s.tags[tag]
	if !ok {
		return 0
	}

	n := 0
	for k := range keys {
		if _, present := s.entries[k]; present {
			delete(s.entries, k)
			n++
		}
	}
	delete(s.tags, tag)

	s.logger.Info("Invalidated cache entries by tag",
		zap.String("tag", tag),
		zap.Int("count", n),
	)
	return n
}
