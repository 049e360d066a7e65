package application

import (
	"context"

	"github.com/sirupsen/logrus"
)

// Session ties cache and background work to the signed-in identity.
type Session struct {
	cache      *CacheService
	rehydrator *Rehydrator
}

func NewSession(cache *CacheService, rehydrator *Rehydrator) *Session {
	return &Session{cache: cache, rehydrator: rehydrator}
}

// SignOut stops background rehydration before wiping the cache, so no
// in-flight download can repopulate it afterwards.
func (s *Session) SignOut(ctx context.Context) error {
	dropped := 0
	if s.rehydrator != nil {
		dropped = s.rehydrator.ClearQueue()
	}
	if err := s.cache.ClearAll(ctx); err != nil {
		return err
	}
	logrus.WithField("dropped_tasks", dropped).Info("[CACHE] Session signed out")
	return nil
}
