package httpapi

import (
	"time"

	"analysisd/internal/analysis"
	"analysisd/pkg/types"
)

// BackendInfo is the engine state reported by /status. backend.Host satisfies it.
type BackendInfo interface {
	State() string
	Kind() string
	Err() error
}

type supervisorService struct {
	*analysis.Supervisor
	backend BackendInfo
	started time.Time
}

// NewService adapts a Supervisor and its engine to Service.
func NewService(sup *analysis.Supervisor, be BackendInfo) Service {
	return &supervisorService{Supervisor: sup, backend: be, started: time.Now()}
}

func (s *supervisorService) Status() types.StatusResponse {
	snap := s.Snapshot()
	now := time.Now()
	resp := types.StatusResponse{
		State:          snap.State,
		OverlapPolicy:  snap.OverlapPolicy,
		TimeoutMillis:  snap.Timeout.Milliseconds(),
		AdmittedTotal:  snap.Admitted,
		RejectedTotal:  snap.Rejected,
		TimeoutsTotal:  snap.Timeouts,
		UptimeSeconds:  int64(now.Sub(s.started).Seconds()),
		ServerTimeUnix: now.Unix(),
	}
	if s.backend != nil {
		resp.Backend = s.backend.State()
		resp.BackendKind = s.backend.Kind()
		if err := s.backend.Err(); err != nil {
			resp.BackendError = err.Error()
		}
	}
	if a := snap.Active; a != nil {
		resp.Active = &types.ActiveRequest{
			ID:           a.ID,
			Structured:   a.Structured,
			AdmittedUnix: a.AdmittedAt.Unix(),
			Fragments:    a.Fragments,
		}
	}
	return resp
}
