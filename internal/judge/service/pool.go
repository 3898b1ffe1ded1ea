package service

import (
	"context"
	"time"

	appErr "ojbox/pkg/errors"
	"ojbox/pkg/utils/logger"

	"go.uber.org/zap"
)

func (s *Service) acquireSlot(ctx context.Context) error {
	if s.sem == nil {
		return nil
	}
	timer := time.NewTimer(s.slotWait)
	defer timer.Stop()
	select {
	case s.sem <- struct{}{}:
		return nil
	case <-ctx.Done():
		return appErr.Wrapf(ctx.Err(), appErr.Timeout, "wait for sandbox slot")
	case <-timer.C:
		logger.Warn(ctx, "sandbox pool is full", zap.Int("capacity", cap(s.sem)), zap.Duration("waited", s.slotWait))
		return appErr.New(appErr.ServiceUnavailable).WithMessage("sandbox pool is full")
	}
}

func (s *Service) releaseSlot() {
	if s.sem == nil {
		return
	}
	select {
	case <-s.sem:
	default:
	}
}
