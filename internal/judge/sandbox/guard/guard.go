package guard

import (
	"bytes"
	"context"
	"encoding/json"
	"path"
	"time"

	"ojbox/internal/common/storage"
	"ojbox/internal/judge/sandbox/observer"
	"ojbox/internal/judge/sandbox/result"
	appErr "ojbox/pkg/errors"
	"ojbox/pkg/utils/logger"

	"github.com/google/uuid"
	"go.uber.org/zap"
)

const (
	DefaultOffloadThreshold = 5_500_000
	DefaultInlineBudget     = 5_000_000
	DefaultURLTTL           = 24 * time.Hour
	DefaultKeyPrefix        = "outputs"
	offloadContentType      = "application/json"
)

// Config controls when and where oversized responses are offloaded.
type Config struct {
	Bucket string
	// OffloadThreshold is the serialized size above which the full response is uploaded.
	OffloadThreshold int
	// InlineBudget bounds the serialized inline copy after offloading.
	InlineBudget int
	URLTTL       time.Duration
	KeyPrefix    string
}

// Guard offloads oversized run responses to object storage.
type Guard struct {
	cfg     Config
	store   storage.BlobStore
	metrics observer.MetricsRecorder
	newKey  func() string
}

// New creates a guard. A nil store disables offloading: oversized responses
// are only truncated.
func New(cfg Config, store storage.BlobStore, metrics observer.MetricsRecorder) *Guard {
	if cfg.OffloadThreshold <= 0 {
		cfg.OffloadThreshold = DefaultOffloadThreshold
	}
	if cfg.InlineBudget <= 0 {
		cfg.InlineBudget = DefaultInlineBudget
	}
	if cfg.URLTTL <= 0 {
		cfg.URLTTL = DefaultURLTTL
	}
	if cfg.KeyPrefix == "" {
		cfg.KeyPrefix = DefaultKeyPrefix
	}
	if metrics == nil {
		metrics = observer.NoopRecorder{}
	}
	return &Guard{
		cfg:     cfg,
		store:   store,
		metrics: metrics,
		newKey:  func() string { return uuid.NewString() },
	}
}

// Apply returns res unchanged when it serializes within the threshold.
// Otherwise the full response is uploaded, FullOutputURL points at it and
// the inline copy is bounded.
func (g *Guard) Apply(ctx context.Context, res result.RunResult) (result.RunResult, error) {
	payload, err := json.Marshal(res)
	if err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.OutputEncodeFailed, "encode run result")
	}
	if len(payload) <= g.cfg.OffloadThreshold {
		return res, nil
	}

	if g.store == nil {
		logger.Warn(ctx, "response exceeds inline limit and offload is disabled, truncating",
			zap.Int("bytes", len(payload)))
		return g.bound(res)
	}

	key := path.Join(g.cfg.KeyPrefix, g.newKey()+".json")
	if err := g.store.PutObject(ctx, g.cfg.Bucket, key, bytes.NewReader(payload), int64(len(payload)), offloadContentType); err != nil {
		g.metrics.ObserveOffload(ctx, false, len(payload))
		logger.Error(ctx, "upload full output failed", zap.String("key", key), zap.Int("bytes", len(payload)), zap.Error(err))
		return result.RunResult{}, appErr.Wrapf(err, appErr.OutputOffloadFailed, "upload %s", key)
	}
	url, err := g.store.PresignGetObject(ctx, g.cfg.Bucket, key, g.cfg.URLTTL)
	if err != nil {
		g.metrics.ObserveOffload(ctx, false, len(payload))
		logger.Error(ctx, "presign full output failed", zap.String("key", key), zap.Error(err))
		return result.RunResult{}, appErr.Wrapf(err, appErr.OutputOffloadFailed, "presign %s", key)
	}
	g.metrics.ObserveOffload(ctx, true, len(payload))
	logger.Info(ctx, "offloaded full output", zap.String("key", key), zap.Int("bytes", len(payload)))

	res.FullOutputURL = &url
	return g.bound(res)
}

// bound fits the serialized inline copy of res into the inline budget. The
// fields other than the streams are charged against the budget first.
func (g *Guard) bound(res result.RunResult) (result.RunResult, error) {
	frame := res
	frame.Stdout, frame.Stderr = "", ""
	if frame.FileOutput != nil {
		empty := ""
		frame.FileOutput = &empty
	}
	encoded, err := json.Marshal(frame)
	if err != nil {
		return result.RunResult{}, appErr.Wrapf(err, appErr.OutputEncodeFailed, "encode run result")
	}
	return Bound(res, g.cfg.InlineBudget-len(encoded)), nil
}
