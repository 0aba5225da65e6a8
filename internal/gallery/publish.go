package gallery

import (
	"context"
	"fmt"
	"time"

	"github.com/facebuddy/facebuddy/internal/blobstore"
	"github.com/facebuddy/facebuddy/internal/logger"
	"github.com/go-co-op/gocron"
)

// Publish uploads the current gallery to the blob store, records the blob ID
// and returns it.
func (s *Service) Publish(ctx context.Context) (string, error) {
	if s.blobs == nil || !s.blobs.Enabled() {
		return "", blobstore.ErrDisabled
	}

	v := s.current.Load()
	saved := s.Export()
	data, err := EncodeSnapshot(saved)
	if err != nil {
		return "", err
	}

	blobID, err := s.blobs.Put(ctx, data)
	if err != nil {
		return "", fmt.Errorf("publishing gallery: %w", err)
	}
	if err := s.store.RecordSnapshot(ctx, blobID, len(saved)); err != nil {
		// The blob exists; losing the record only affects bookkeeping.
		logger.Error("recording snapshot failed",
			logger.Options{Key: "blob_id", Data: blobID},
			logger.Options{Key: "error", Data: err},
		)
	}
	s.published.Store(v.version)

	logger.Info("gallery published",
		logger.Options{Key: "blob_id", Data: blobID},
		logger.Options{Key: "faces", Data: len(saved)},
	)
	return blobID, nil
}

// PublishIfChanged publishes only when the gallery changed since the last
// publish. The bool reports whether a publish happened.
func (s *Service) PublishIfChanged(ctx context.Context) (string, bool, error) {
	if !s.Changed() {
		return "", false, nil
	}
	blobID, err := s.Publish(ctx)
	if err != nil {
		return "", false, err
	}
	return blobID, true, nil
}

// StartSnapshots publishes changed galleries every interval until the
// returned stop function is called. A non-positive interval or a disabled
// blob store schedules nothing.
func (s *Service) StartSnapshots(interval time.Duration) (func(), error) {
	if interval <= 0 || s.blobs == nil || !s.blobs.Enabled() {
		return func() {}, nil
	}

	scheduler := gocron.NewScheduler(time.UTC)
	scheduler.SingletonModeAll()

	_, err := scheduler.Every(interval).WaitForSchedule().Do(func() {
		ctx, cancel := context.WithTimeout(context.Background(), interval)
		defer cancel()
		if _, _, err := s.PublishIfChanged(ctx); err != nil {
			logger.Error("scheduled snapshot failed", logger.Options{Key: "error", Data: err})
		}
	})
	if err != nil {
		return nil, fmt.Errorf("scheduling snapshots: %w", err)
	}

	scheduler.StartAsync()
	logger.Info("snapshot schedule started", logger.Options{Key: "interval", Data: interval.String()})
	return scheduler.Stop, nil
}
