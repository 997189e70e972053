package service

import (
	"context"
	"encoding/json"
	"errors"
	"time"

	"github.com/peterz0310/image-placer-sub000/config"
	"github.com/peterz0310/image-placer-sub000/model"
	"github.com/peterz0310/image-placer-sub000/utils"
	"github.com/redis/go-redis/v9"
	"go.uber.org/zap"
)

const (
	selectionPrefix = "selection:"
	maskPrefix      = "mask:"
)

// RedisService 缓存选区和掩码结果，推理调用不缓存
type RedisService struct {
	client *redis.Client
	ttl    time.Duration
}

func NewRedisService(cfg *config.RedisConfig) *RedisService {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})

	return &RedisService{
		client: client,
		ttl:    cfg.TTL,
	}
}

func (s *RedisService) Ping(ctx context.Context) error {
	return s.client.Ping(ctx).Err()
}

// GetSelection 从缓存获取选区结果，未命中时返回 nil, nil
func (s *RedisService) GetSelection(ctx context.Context, key string) (*model.SelectionResult, error) {
	var result model.SelectionResult
	ok, err := s.getJSON(ctx, selectionPrefix+key, &result)
	if err != nil || !ok {
		return nil, err
	}
	return &result, nil
}

// SetSelection 设置选区结果到缓存
func (s *RedisService) SetSelection(ctx context.Context, key string, result *model.SelectionResult) error {
	return s.setJSON(ctx, selectionPrefix+key, result)
}

// GetMask 从缓存获取掩码结果，未命中时返回 nil, nil
func (s *RedisService) GetMask(ctx context.Context, key string) (*model.MaskResult, error) {
	var result model.MaskResult
	ok, err := s.getJSON(ctx, maskPrefix+key, &result)
	if err != nil || !ok {
		return nil, err
	}
	return &result, nil
}

// SetMask 设置掩码结果到缓存
func (s *RedisService) SetMask(ctx context.Context, key string, result *model.MaskResult) error {
	return s.setJSON(ctx, maskPrefix+key, result)
}

func (s *RedisService) getJSON(ctx context.Context, key string, dst any) (bool, error) {
	data, err := s.client.Get(ctx, key).Bytes()
	if err != nil {
		if errors.Is(err, redis.Nil) {
			return false, nil // 缓存未命中
		}
		return false, err
	}

	if err := json.Unmarshal(data, dst); err != nil {
		utils.Logger.Error("failed to unmarshal cached value",
			zap.String("key", key), zap.Error(err))
		return false, err
	}
	return true, nil
}

func (s *RedisService) setJSON(ctx context.Context, key string, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return err
	}
	return s.client.Set(ctx, key, data, s.ttl).Err()
}

func (s *RedisService) Close() error {
	return s.client.Close()
}
