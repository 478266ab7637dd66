// Package jobstatus turns a raw backend job status into a JobStatus.
package jobstatus

import (
	"strconv"
	"strings"
	"time"

	"github.com/foundry/artifactview/internal/core/models"
)

// Summarize derives worker id and start time from raw. A nil or empty status
// means "not building" and yields the zero JobStatus. A start time that is
// missing or not a positive unix timestamp is left unknown.
func Summarize(raw *models.RawJobStatus) models.JobStatus {
	if raw == nil {
		return models.JobStatus{}
	}
	status := models.JobStatus{WorkerID: strings.TrimSpace(raw.WorkerID)}
	if ts, err := strconv.ParseInt(strings.TrimSpace(raw.StartTime), 10, 64); err == nil && ts > 0 {
		start := time.Unix(ts, 0).UTC()
		status.StartTime = &start
	}
	return status
}

// ElapsedSeconds returns the build time in whole seconds, or nil when unknown.
func ElapsedSeconds(s models.JobStatus, now time.Time) *int64 {
	d, ok := s.Elapsed(now)
	if !ok {
		return nil
	}
	secs := int64(d / time.Second)
	return &secs
}
