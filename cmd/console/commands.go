package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"sync"

	"github.com/aiplaza/serving-client/internal/model"
	"github.com/aiplaza/serving-client/internal/service"
)

const helpText = `commands:
  model                  resolve the configured model
  models                 list models on the server
  select <path|s3://..>  select an input file
  upload                 upload the selected file
  run                    submit a job and follow its status
  wait                   block until the job settles
  status                 print the current state
  result                 print the job result
  register <name> <zip>  register a model archive
  quit`

type modelRegistry interface {
	ListModels(ctx context.Context) ([]model.Model, error)
	CreateModel(ctx context.Context, name, filename string, archive io.Reader) (*model.Model, error)
}

// console executes one command line at a time against a session
type console struct {
	session  *service.SessionService
	registry modelRegistry
	out      io.Writer

	// modelArchive is registered as modelName when batch runs find no model
	modelName    string
	modelArchive string

	mu         sync.Mutex
	lastJobID  int64
	lastStatus model.JobStatus
}

func newConsole(session *service.SessionService, registry modelRegistry, out io.Writer) *console {
	return &console{session: session, registry: registry, out: out}
}

// follow prints job status changes as they are applied
func (c *console) follow(snap model.Snapshot) {
	if snap.Job == nil {
		return
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if snap.Job.ID == c.lastJobID && snap.Job.Status == c.lastStatus {
		return
	}
	c.lastJobID, c.lastStatus = snap.Job.ID, snap.Job.Status
	fmt.Fprintf(c.out, "job %d: %s\n", snap.Job.ID, snap.Job.Status)
}

// exec runs a single command. quit is true when the user asked to leave.
func (c *console) exec(ctx context.Context, line string) (quit bool, err error) {
	fields := strings.Fields(line)
	if len(fields) == 0 {
		return false, nil
	}

	switch cmd, args := fields[0], fields[1:]; cmd {
	case "quit", "exit":
		return true, nil
	case "help":
		fmt.Fprintln(c.out, helpText)
	case "model":
		if err := c.session.ResolveModel(ctx); err != nil {
			return false, err
		}
		m := c.session.Snapshot().Model
		fmt.Fprintf(c.out, "model %s (id %d)\n", m.Name, m.ID)
	case "models":
		models, err := c.registry.ListModels(ctx)
		if err != nil {
			return false, err
		}
		for _, m := range models {
			fmt.Fprintf(c.out, "%d\t%s\n", m.ID, m.Name)
		}
	case "select":
		if len(args) != 1 {
			return false, errors.New("usage: select <path|s3://bucket/key>")
		}
		if err := c.session.SelectFile(ctx, args[0]); err != nil {
			return false, err
		}
		f := c.session.Snapshot().File
		fmt.Fprintf(c.out, "selected %s (%s, %d bytes)\n", f.Name, f.ContentType, f.Size)
	case "upload":
		if err := c.session.Upload(ctx); err != nil {
			return false, err
		}
		if f := c.session.Snapshot().File; f.Uploaded() {
			fmt.Fprintf(c.out, "uploaded as %s\n", *f.PathReference)
		}
	case "run":
		if err := c.session.Submit(ctx); err != nil {
			return false, err
		}
	case "wait":
		snap, err := c.session.WaitSettled(ctx)
		if err != nil {
			return false, err
		}
		c.printSettled(snap)
	case "status":
		c.printStatus(c.session.Snapshot())
	case "result":
		result, err := c.session.Result(ctx)
		if err != nil {
			return false, err
		}
		fmt.Fprintln(c.out, result.Text)
	case "register":
		if len(args) != 2 {
			return false, errors.New("usage: register <name> <zip>")
		}
		if err := c.register(ctx, args[0], args[1]); err != nil {
			return false, err
		}
	default:
		return false, fmt.Errorf("unknown command %q, try help", cmd)
	}
	return false, nil
}

func (c *console) register(ctx context.Context, name, archivePath string) error {
	f, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", archivePath, err)
	}
	defer f.Close()

	m, err := c.registry.CreateModel(ctx, name, filepath.Base(archivePath), f)
	if err != nil {
		return err
	}
	fmt.Fprintf(c.out, "registered %s (id %d)\n", m.Name, m.ID)
	return nil
}

func (c *console) printSettled(snap model.Snapshot) {
	if snap.Job.Status == model.JobStatusFailed && snap.Job.FailedLog != nil {
		fmt.Fprintf(c.out, "job %d failed: %s\n", snap.Job.ID, *snap.Job.FailedLog)
		return
	}
	fmt.Fprintf(c.out, "job %d %s\n", snap.Job.ID, snap.Job.Status)
}

func (c *console) printStatus(snap model.Snapshot) {
	switch {
	case snap.Model != nil:
		fmt.Fprintf(c.out, "model:  %s (id %d)\n", snap.Model.Name, snap.Model.ID)
	case snap.ModelOutcome.State == model.OutcomeFailed:
		fmt.Fprintf(c.out, "model:  error: %s\n", snap.ModelOutcome.Error)
	default:
		fmt.Fprintln(c.out, "model:  Loading...")
	}

	if f := snap.File; f != nil {
		ref := "not uploaded"
		if f.Uploaded() {
			ref = *f.PathReference
		}
		fmt.Fprintf(c.out, "file:   %s (%s)\n", f.Name, ref)
	}
	if snap.UploadOutcome.State == model.OutcomeFailed {
		fmt.Fprintf(c.out, "upload: error: %s\n", snap.UploadOutcome.Error)
	}

	if j := snap.Job; j != nil {
		fmt.Fprintf(c.out, "job:    %d %s (%s)\n", j.ID, j.Status, snap.Phase)
	} else if snap.JobOutcome.State == model.OutcomeFailed {
		fmt.Fprintf(c.out, "job:    error: %s\n", snap.JobOutcome.Error)
	}

	if r := snap.Result; r != nil {
		fmt.Fprintf(c.out, "result: %s\n", r.Text)
	} else if snap.ResultOutcome.State == model.OutcomeFailed {
		fmt.Fprintf(c.out, "result: error: %s\n", snap.ResultOutcome.Error)
	}
}

// ensureModel resolves the configured model, registering modelArchive first
// when the server does not know it yet.
func (c *console) ensureModel(ctx context.Context) error {
	if c.session.Snapshot().Model != nil {
		return nil
	}
	err := c.session.ResolveModel(ctx)
	if !errors.Is(err, service.ErrModelNotFound) || c.modelArchive == "" {
		return err
	}

	fmt.Fprintf(c.out, "creating model %s\n", c.modelName)
	if err := c.register(ctx, c.modelName, c.modelArchive); err != nil {
		return err
	}
	return c.session.ResolveModel(ctx)
}

// runBatch drives one file through the whole pipeline and prints the result
func (c *console) runBatch(ctx context.Context, ref string) error {
	if err := c.ensureModel(ctx); err != nil {
		return err
	}
	for _, line := range []string{"select " + ref, "upload", "run", "wait"} {
		if _, err := c.exec(ctx, line); err != nil {
			return err
		}
	}

	snap := c.session.Snapshot()
	if !snap.Job.Status.IsSuccess() {
		return fmt.Errorf("job %d %s", snap.Job.ID, snap.Job.Status)
	}
	if !snap.Job.HasResult() {
		return nil
	}
	_, err := c.exec(ctx, "result")
	return err
}

// runFiles runs each file in turn. A failing file is reported and the rest
// still run; the returned error joins every failure.
func (c *console) runFiles(ctx context.Context, refs []string) error {
	var errs []error
	for _, ref := range refs {
		if ctx.Err() != nil {
			errs = append(errs, ctx.Err())
			break
		}
		fmt.Fprintf(c.out, "== %s\n", ref)
		if err := c.runBatch(ctx, ref); err != nil {
			fmt.Fprintf(c.out, "error: %v\n", err)
			errs = append(errs, fmt.Errorf("%s: %w", ref, err))
		}
	}
	return errors.Join(errs...)
}
