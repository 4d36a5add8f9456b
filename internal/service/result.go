package service

import (
	"context"

	"github.com/aiplaza/serving-client/internal/model"
)

// resultEntry memoizes the content of one result path. done is closed when
// the fetch finishes. Failed entries are dropped so a later request retries.
type resultEntry struct {
	done chan struct{}
	text string
	err  error
}

// resolveResultLocked fills next from the memo or starts a fetch for
// resultPath. Callers hold mu.
func (s *SessionService) resolveResultLocked(next *model.Snapshot, resultPath string) {
	entry, ok := s.results[resultPath]
	if ok {
		select {
		case <-entry.done:
			next.Result = &model.Result{Path: resultPath, Text: entry.text}
			next.ResultOutcome = succeeded()
			return
		default:
			next.ResultOutcome = pending()
			return
		}
	}

	s.startFetchLocked(resultPath)
	next.ResultOutcome = pending()
}

func (s *SessionService) startFetchLocked(resultPath string) *resultEntry {
	entry := &resultEntry{done: make(chan struct{})}
	s.results[resultPath] = entry
	go s.fetchResult(resultPath, entry)
	return entry
}

func (s *SessionService) fetchResult(resultPath string, entry *resultEntry) {
	text, err := s.api.FetchFile(s.ctx, resultPath)

	s.mu.Lock()
	entry.text, entry.err = text, err
	close(entry.done)
	if err != nil && s.results[resultPath] == entry {
		delete(s.results, resultPath)
	}

	current := s.state.Job
	if !current.HasResult() || *current.ResultPath != resultPath {
		s.mu.Unlock()
		return
	}
	snap := s.updateLocked(func(next *model.Snapshot) {
		if err != nil {
			next.ResultOutcome = failed(err)
			return
		}
		next.Result = &model.Result{Path: resultPath, Text: text}
		next.ResultOutcome = succeeded()
	})
	s.mu.Unlock()
	s.publish(snap)

	if err != nil {
		s.logger.Warnw("result fetch failed", "path", resultPath, "error", err)
		return
	}
	s.logger.Infow("result fetched", "path", resultPath, "size", len(text))
}

// Result returns the current job's result. The content is fetched at most
// once per path; a failed fetch is retried on the next call.
func (s *SessionService) Result(ctx context.Context) (*model.Result, error) {
	s.mu.Lock()
	job := s.state.Job
	if !job.HasResult() {
		s.mu.Unlock()
		return nil, ErrNoResult
	}
	resultPath := *job.ResultPath

	entry, ok := s.results[resultPath]
	if !ok {
		entry = s.startFetchLocked(resultPath)
		snap := s.updateLocked(func(next *model.Snapshot) {
			next.ResultOutcome = pending()
		})
		s.mu.Unlock()
		s.publish(snap)
	} else {
		s.mu.Unlock()
	}

	select {
	case <-entry.done:
		if entry.err != nil {
			return nil, entry.err
		}
		return &model.Result{Path: resultPath, Text: entry.text}, nil
	case <-ctx.Done():
		return nil, ctx.Err()
	}
}
