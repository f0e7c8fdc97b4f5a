package server

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"time"

	"github.com/Desarso/shopbot/metrics"
	"github.com/robfig/cron/v3"
	"github.com/rs/zerolog/log"
)

// SweepUploads removes regular files in dir last modified more than ttl
// before now. A missing dir is not an error.
func SweepUploads(dir string, ttl time.Duration, now time.Time) (int, error) {
	entries, err := os.ReadDir(dir)
	if errors.Is(err, os.ErrNotExist) {
		return 0, nil
	}
	if err != nil {
		return 0, err
	}

	removed := 0
	var errs []error
	for _, entry := range entries {
		if !entry.Type().IsRegular() {
			continue
		}
		info, err := entry.Info()
		if err != nil {
			continue
		}
		if now.Sub(info.ModTime()) <= ttl {
			continue
		}
		if err := os.Remove(filepath.Join(dir, entry.Name())); err != nil && !errors.Is(err, os.ErrNotExist) {
			errs = append(errs, err)
			continue
		}
		removed++
	}
	return removed, errors.Join(errs...)
}

// UploadJanitor periodically sweeps the upload directory.
type UploadJanitor struct {
	dir     string
	ttl     time.Duration
	metrics *metrics.Registry
	cron    *cron.Cron
	entryID cron.EntryID
}

// NewUploadJanitor schedules sweeps with a cron spec such as "@every 1h"
// or "0 3 * * *".
func NewUploadJanitor(dir string, ttl time.Duration, spec string, reg *metrics.Registry) (*UploadJanitor, error) {
	j := &UploadJanitor{dir: dir, ttl: ttl, metrics: reg, cron: cron.New()}
	id, err := j.cron.AddFunc(spec, j.Sweep)
	if err != nil {
		return nil, err
	}
	j.entryID = id
	return j, nil
}

// Sweep runs one pass immediately.
func (j *UploadJanitor) Sweep() {
	removed, err := SweepUploads(j.dir, j.ttl, time.Now())
	if err != nil {
		log.Warn().Err(err).Str("dir", j.dir).Msg("upload sweep incomplete")
	}
	if removed > 0 {
		j.metrics.Inc(context.Background(), metrics.UploadsSwept, nil, int64(removed))
		log.Info().Int("removed", removed).Str("dir", j.dir).Msg("expired uploads removed")
	}
}

// Next reports when the next sweep is due. Zero until Start.
func (j *UploadJanitor) Next() time.Time {
	return j.cron.Entry(j.entryID).Next
}

func (j *UploadJanitor) Start() {
	j.cron.Start()
}

// Stop halts the schedule and returns a context done when a running sweep finishes.
func (j *UploadJanitor) Stop() context.Context {
	return j.cron.Stop()
}
