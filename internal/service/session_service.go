package service

import (
	"bytes"
	"context"
	"encoding/base64"
	"errors"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"
	"sync"
	"time"

	"github.com/gabriel-vasile/mimetype"
	"go.uber.org/zap"

	"github.com/aiplaza/serving-client/internal/client"
	"github.com/aiplaza/serving-client/internal/config"
	"github.com/aiplaza/serving-client/internal/model"
	"github.com/aiplaza/serving-client/internal/worker"
)

var (
	// ErrNotReady is returned by Submit when the model or the uploaded file
	// reference is missing. State is left untouched.
	ErrNotReady = errors.New("model or uploaded file missing")
	// ErrNoFile is returned by Upload when nothing has been selected
	ErrNoFile = errors.New("no file selected")
	// ErrUploadSuperseded is returned by Upload when another file was selected
	// while the upload was in flight. The new selection stays un-uploaded.
	ErrUploadSuperseded = errors.New("file replaced during upload")
	// ErrModelNotFound is returned when no model has the configured name
	ErrModelNotFound = errors.New("model not found")
	// ErrNoJob is returned by WaitSettled when there is nothing to wait for
	ErrNoJob = errors.New("no job submitted")
	// ErrNoResult is returned by Result when the current job has no result
	ErrNoResult = errors.New("job has no result")
	// ErrStorageNotConfigured is returned for s3:// selections without a store
	ErrStorageNotConfigured = errors.New("object storage not configured")
)

// SessionService is the job orchestrator. It owns a single Snapshot that
// every stage replaces wholesale, and at most one live PollHandle.
type SessionService struct {
	api       client.ServingAPI
	objects   client.ObjectReader
	modelName string
	interval  time.Duration
	logger    *zap.SugaredLogger

	// ctx bounds polling and result fetches; canceled by Close
	ctx    context.Context
	cancel context.CancelFunc

	mu         sync.Mutex
	state      model.Snapshot
	fileData   []byte
	poll       *worker.PollHandle
	submitGen  uint64
	appliedSeq uint64
	results    map[string]*resultEntry
	changed    chan struct{}

	subMu         sync.Mutex
	subscribers   map[uint64]func(model.Snapshot)
	nextSubID     uint64
	lastPublished uint64
}

// NewSessionService creates an orchestrator in the idle state. objects may be
// nil when no object store is configured.
func NewSessionService(api client.ServingAPI, objects client.ObjectReader, cfg *config.APIConfig, logger *zap.SugaredLogger) *SessionService {
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionService{
		api:       api,
		objects:   objects,
		modelName: cfg.ModelName,
		interval:  cfg.PollInterval,
		logger:    logger,
		ctx:       ctx,
		cancel:    cancel,
		state: model.Snapshot{
			ModelOutcome:  model.Outcome{State: model.OutcomeNone},
			UploadOutcome: model.Outcome{State: model.OutcomeNone},
			JobOutcome:    model.Outcome{State: model.OutcomeNone},
			ResultOutcome: model.Outcome{State: model.OutcomeNone},
			Phase:         model.PollPhaseIdle,
		},
		results:     make(map[string]*resultEntry),
		changed:     make(chan struct{}),
		subscribers: make(map[uint64]func(model.Snapshot)),
	}
}

// ResolveModel lists the server's models and selects the one with the
// configured name.
func (s *SessionService) ResolveModel(ctx context.Context) error {
	s.commit(func(next *model.Snapshot) {
		next.ModelOutcome = pending()
	})

	models, err := s.api.ListModels(ctx)
	var found *model.Model
	if err == nil {
		for i := range models {
			if models[i].Name == s.modelName {
				m := models[i]
				found = &m
				break
			}
		}
		if found == nil {
			err = fmt.Errorf("%w: %q", ErrModelNotFound, s.modelName)
		}
	}

	s.commit(func(next *model.Snapshot) {
		if err != nil {
			next.ModelOutcome = failed(err)
			return
		}
		next.Model = found
		next.ModelOutcome = succeeded()
	})

	if err != nil {
		s.logger.Warnw("model resolution failed", "model", s.modelName, "error", err)
		return err
	}
	s.logger.Infow("model resolved", "model", found.Name, "model_id", found.ID)
	return nil
}

// SelectFile reads a local path or an s3://bucket/key reference and makes it
// the current file. The previous selection, and its path reference, is
// replaced.
func (s *SessionService) SelectFile(ctx context.Context, ref string) error {
	var (
		name string
		data []byte
		err  error
	)

	if bucket, key, ok := client.ParseObjectURI(ref); ok {
		if s.objects == nil {
			return ErrStorageNotConfigured
		}
		name = path.Base(key)
		data, err = s.objects.Download(ctx, bucket, key)
	} else {
		name = filepath.Base(ref)
		data, err = os.ReadFile(ref)
	}
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", ref, err)
	}

	s.selectData(name, data)
	return nil
}

// SelectReader makes the content of r the current file.
func (s *SessionService) SelectReader(name string, r io.Reader) error {
	data, err := io.ReadAll(r)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", name, err)
	}
	s.selectData(name, data)
	return nil
}

func (s *SessionService) selectData(name string, data []byte) {
	contentType := mimetype.Detect(data).String()
	mediaType, _, _ := strings.Cut(contentType, ";")

	file := &model.UploadedFile{
		Name:        name,
		ContentType: contentType,
		Size:        int64(len(data)),
		Preview:     "data:" + strings.TrimSpace(mediaType) + ";base64," + base64.StdEncoding.EncodeToString(data),
	}

	s.mu.Lock()
	s.fileData = data
	snap := s.updateLocked(func(next *model.Snapshot) {
		next.File = file
		next.UploadOutcome = model.Outcome{State: model.OutcomeNone}
	})
	s.mu.Unlock()
	s.publish(snap)

	s.logger.Infow("file selected", "name", name, "content_type", contentType, "size", len(data))
}

// Upload sends the selected file to the server and stores the returned path
// reference. A failed upload leaves the reference as it was. When the
// selection changes mid-flight the response is dropped and
// ErrUploadSuperseded is returned.
func (s *SessionService) Upload(ctx context.Context) error {
	s.mu.Lock()
	file := s.state.File
	if file == nil {
		s.mu.Unlock()
		return ErrNoFile
	}
	data := s.fileData
	snap := s.updateLocked(func(next *model.Snapshot) {
		next.UploadOutcome = pending()
	})
	s.mu.Unlock()
	s.publish(snap)

	created, err := s.api.UploadFile(ctx, file.Name, file.ContentType, bytes.NewReader(data))

	s.mu.Lock()
	if s.state.File != file {
		s.mu.Unlock()
		s.logger.Infow("discarding upload of replaced file", "name", file.Name)
		if err != nil {
			return fmt.Errorf("%w: %v", ErrUploadSuperseded, err)
		}
		return ErrUploadSuperseded
	}
	snap = s.updateLocked(func(next *model.Snapshot) {
		if err != nil {
			next.UploadOutcome = failed(err)
			return
		}
		uploaded := *file
		pathRef := created.Path
		uploaded.PathReference = &pathRef
		next.File = &uploaded
		next.UploadOutcome = succeeded()
	})
	s.mu.Unlock()
	s.publish(snap)

	if err != nil {
		s.logger.Warnw("upload failed", "name", file.Name, "error", err)
		return err
	}
	s.logger.Infow("file uploaded", "name", file.Name, "path", created.Path)
	return nil
}

// Submit creates a job for the resolved model and the uploaded file. Without
// both it returns ErrNotReady and changes nothing. A live poll from a
// previous job is canceled before the new job is requested.
func (s *SessionService) Submit(ctx context.Context) error {
	s.mu.Lock()
	if !s.state.ReadyToSubmit() {
		s.mu.Unlock()
		return ErrNotReady
	}

	req := &model.JobCreateRequest{
		ModelID:      s.state.Model.ID,
		ArgumentPath: *s.state.File.PathReference,
	}

	s.stopPollLocked()
	s.submitGen++
	gen := s.submitGen
	s.appliedSeq = 0
	snap := s.updateLocked(func(next *model.Snapshot) {
		next.Job = nil
		next.JobOutcome = pending()
		next.Phase = model.PollPhaseIdle
		next.Result = nil
		next.ResultOutcome = model.Outcome{State: model.OutcomeNone}
	})
	s.mu.Unlock()
	s.publish(snap)

	job, err := s.api.CreateJob(ctx, req)

	s.mu.Lock()
	if gen != s.submitGen {
		s.mu.Unlock()
		if err == nil {
			s.logger.Warnw("discarding superseded job", "job_id", job.ID)
		}
		return err
	}
	if err != nil {
		snap = s.updateLocked(func(next *model.Snapshot) {
			next.JobOutcome = failed(err)
		})
		s.mu.Unlock()
		s.publish(snap)
		s.logger.Warnw("job creation failed", "model_id", req.ModelID, "argument_path", req.ArgumentPath, "error", err)
		return err
	}

	snap = s.updateLocked(func(next *model.Snapshot) {
		next.JobOutcome = succeeded()
		s.applyJobLocked(next, job)
	})
	if !job.Status.IsTerminal() {
		s.poll = worker.StartPoll(s.ctx, job.ID, s.interval, s.tick(gen, job.ID))
	}
	s.mu.Unlock()
	s.publish(snap)

	s.logger.Infow("job created", "job_id", job.ID, "status", job.Status)
	return nil
}

// Snapshot returns the current state
func (s *SessionService) Snapshot() model.Snapshot {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Polling reports whether a poll handle is live
func (s *SessionService) Polling() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.poll != nil && !s.poll.Stopped()
}

// Subscribe registers fn to receive every published snapshot in version
// order. fn must not block and must not modify the snapshot.
func (s *SessionService) Subscribe(fn func(model.Snapshot)) (unsubscribe func()) {
	s.subMu.Lock()
	s.nextSubID++
	id := s.nextSubID
	s.subscribers[id] = fn
	s.subMu.Unlock()

	return func() {
		s.subMu.Lock()
		delete(s.subscribers, id)
		s.subMu.Unlock()
	}
}

// WaitSettled blocks until the current job reaches a terminal status.
func (s *SessionService) WaitSettled(ctx context.Context) (model.Snapshot, error) {
	for {
		s.mu.Lock()
		snap := s.state
		changed := s.changed
		s.mu.Unlock()

		switch {
		case snap.Phase == model.PollPhaseSettled:
			return snap, nil
		case snap.JobOutcome.State == model.OutcomeFailed:
			return snap, errors.New(snap.JobOutcome.Error)
		case snap.JobOutcome.State == model.OutcomeNone:
			return snap, ErrNoJob
		}

		select {
		case <-changed:
		case <-ctx.Done():
			return snap, ctx.Err()
		}
	}
}

// Close stops polling and any pending result fetch. The tick loop has exited
// when it returns, and responses of ticks still in flight are dropped. It is
// safe to call more than once.
func (s *SessionService) Close() {
	s.mu.Lock()
	h := s.poll
	s.stopPollLocked()
	s.submitGen++
	s.mu.Unlock()

	if h != nil {
		<-h.Done()
	}
	s.cancel()
}

// commit applies fn to a copy of the state and publishes the result
func (s *SessionService) commit(fn func(next *model.Snapshot)) {
	s.mu.Lock()
	snap := s.updateLocked(fn)
	s.mu.Unlock()
	s.publish(snap)
}

// updateLocked replaces the state with a modified copy. Callers hold mu.
func (s *SessionService) updateLocked(fn func(next *model.Snapshot)) model.Snapshot {
	next := s.state
	fn(&next)
	next.Version = s.state.Version + 1
	s.state = next

	close(s.changed)
	s.changed = make(chan struct{})
	return next
}

// publish hands snap to subscribers unless a newer one was already published
func (s *SessionService) publish(snap model.Snapshot) {
	s.subMu.Lock()
	defer s.subMu.Unlock()

	if snap.Version <= s.lastPublished {
		return
	}
	s.lastPublished = snap.Version
	for _, fn := range s.subscribers {
		fn(snap)
	}
}

func (s *SessionService) stopPollLocked() {
	if s.poll == nil {
		return
	}
	s.poll.Stop()
	s.logger.Debugw("poll released", "job_id", s.poll.JobID(), "ticks", s.poll.Ticks())
	s.poll = nil
}

func pending() model.Outcome {
	return model.Outcome{State: model.OutcomePending}
}

func succeeded() model.Outcome {
	return model.Outcome{State: model.OutcomeSucceeded}
}

func failed(err error) model.Outcome {
	return model.Outcome{State: model.OutcomeFailed, Error: err.Error()}
}
