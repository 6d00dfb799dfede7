package services

import (
	"github.com/mbocsi/telemux/proto"
	"github.com/mbocsi/telemux/server"
)

// StateServiceImpl implements StateService
type StateServiceImpl struct {
	cache *server.LatestCache
}

// NewStateService creates a new state service
func NewStateService(cache *server.LatestCache) StateService {
	return &StateServiceImpl{cache: cache}
}

// ListKinds returns every kind in tag order
func (s *StateServiceImpl) ListKinds() []KindInfo {
	kinds := proto.Kinds()
	result := make([]KindInfo, 0, len(kinds))
	for _, kind := range kinds {
		_, cached := s.cache.Get(kind)
		result = append(result, KindInfo{Tag: uint8(kind), Name: kind.String(), Cached: cached})
	}
	return result
}

// ListLatest returns the cached value of every kind seen so far
func (s *StateServiceImpl) ListLatest() []LatestValue {
	result := make([]LatestValue, 0, s.cache.Len())
	for msg := range s.cache.All() {
		result = append(result, convertMessage(msg))
	}
	return result
}

// GetLatest returns the cached value for a kind name or tag number
func (s *StateServiceImpl) GetLatest(name string) (*LatestValue, error) {
	kind, err := proto.ParseKind(name)
	if err != nil {
		return nil, ServiceError{
			Code:    ErrCodeInvalidInput,
			Message: "Unknown message kind: " + name,
			Cause:   err,
		}
	}

	msg, ok := s.cache.Get(kind)
	if !ok {
		return nil, ServiceError{
			Code:    ErrCodeNotFound,
			Message: "No value received yet for " + kind.String(),
		}
	}
	value := convertMessage(msg)
	return &value, nil
}
