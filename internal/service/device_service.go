package service

import (
	"context"
	"strconv"
	"time"

	"tillpoint/internal/apierror"
	"tillpoint/internal/dto"
	"tillpoint/internal/model"
	"tillpoint/internal/repository"

	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog/log"
)

const deviceCacheTTL = 60 * time.Second

func deviceCacheKey(deviceID string) string { return "tillpoint:device:last:" + deviceID }

type DeviceService interface {
	// Lookup resolves a terminal identifier to its register context: the
	// currently open register bound to it, or failing that the register
	// number it was most recently associated with.
	Lookup(ctx context.Context, deviceID, role string) (*dto.DeviceLookupResponse, error)
}

type deviceService struct {
	registerRepo repository.RegisterRepository
	cache        *redis.Client // nil disables caching
}

func NewDeviceService(registerRepo repository.RegisterRepository, cache *redis.Client) DeviceService {
	return &deviceService{registerRepo: registerRepo, cache: cache}
}

func (s *deviceService) Lookup(ctx context.Context, deviceID, role string) (*dto.DeviceLookupResponse, error) {
	if deviceID == "" {
		return nil, apierror.Validationf("device_id is required")
	}

	resp := &dto.DeviceLookupResponse{
		DeviceID:        deviceID,
		CanManageOthers: role == model.RoleAdmin || role == model.RoleManager,
	}

	if open, err := s.registerRepo.FindOpenByDevice(ctx, deviceID); err == nil && open != nil {
		resp.OpenRegister = registerToResponse(open)
		return resp, nil
	}

	if n, ok := s.cachedLastNumber(ctx, deviceID); ok {
		resp.LastRegisterNumber = &n
		return resp, nil
	}

	last, err := s.registerRepo.LastByDevice(ctx, deviceID)
	if err != nil {
		// Never-seen device: still a valid lookup, just with no association.
		return resp, nil
	}
	resp.LastRegisterNumber = &last.RegisterNumber
	s.cacheLastNumber(ctx, deviceID, last.RegisterNumber)
	return resp, nil
}

// Cache reads and writes are best effort; a broken cache degrades to a
// database lookup, never to an error.

func (s *deviceService) cachedLastNumber(ctx context.Context, deviceID string) (int, bool) {
	if s.cache == nil {
		return 0, false
	}
	raw, err := s.cache.Get(ctx, deviceCacheKey(deviceID)).Result()
	if err != nil {
		return 0, false
	}
	n, err := strconv.Atoi(raw)
	if err != nil {
		return 0, false
	}
	return n, true
}

func (s *deviceService) cacheLastNumber(ctx context.Context, deviceID string, n int) {
	if s.cache == nil {
		return
	}
	if err := s.cache.Set(ctx, deviceCacheKey(deviceID), strconv.Itoa(n), deviceCacheTTL).Err(); err != nil {
		log.Warn().Err(err).Str("device_id", deviceID).Msg("device lookup cache write failed")
	}
}
