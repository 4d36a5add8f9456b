package service

import (
	"context"

	"github.com/aiplaza/serving-client/internal/model"
	"github.com/aiplaza/serving-client/internal/worker"
)

// tick returns the poll callback for job jobID submitted in generation gen.
func (s *SessionService) tick(gen uint64, jobID int64) worker.TickFunc {
	return func(ctx context.Context, seq uint64) {
		job, err := s.api.GetJob(ctx, jobID)

		s.mu.Lock()
		if gen != s.submitGen || s.state.Phase != model.PollPhasePolling {
			s.mu.Unlock()
			return
		}
		if err != nil {
			s.mu.Unlock()
			if ctx.Err() == nil {
				s.logger.Warnw("poll failed, retrying on next tick", "job_id", jobID, "seq", seq, "error", err)
			}
			return
		}
		if seq <= s.appliedSeq {
			applied := s.appliedSeq
			s.mu.Unlock()
			s.logger.Debugw("discarding stale poll response", "job_id", jobID, "seq", seq, "applied", applied)
			return
		}
		s.appliedSeq = seq

		snap := s.updateLocked(func(next *model.Snapshot) {
			s.applyJobLocked(next, job)
		})
		s.mu.Unlock()
		s.publish(snap)

		if job.Status.IsTerminal() {
			s.logger.Infow("job settled", "job_id", jobID, "status", job.Status)
		}
	}
}

// applyJobLocked stores job in next. A terminal status releases the poll
// handle and, on success, triggers the result fetch. Callers hold mu.
func (s *SessionService) applyJobLocked(next *model.Snapshot, job *model.Job) {
	next.Job = job
	if !job.Status.IsTerminal() {
		next.Phase = model.PollPhasePolling
		return
	}

	s.stopPollLocked()
	next.Phase = model.PollPhaseSettled
	if job.HasResult() {
		s.resolveResultLocked(next, *job.ResultPath)
	}
}
