// Package worker polls the store for pending jobs and runs them one at a time.
package worker

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"path/filepath"
	"time"

	"github.com/jupark12/model-processor/artifacts"
	"github.com/jupark12/model-processor/config"
	"github.com/jupark12/model-processor/converter"
	"github.com/jupark12/model-processor/models"
	"github.com/jupark12/model-processor/notify"
	"github.com/jupark12/model-processor/store"
)

// Converter produces the derived files for a model
type Converter interface {
	ConvertGLBToSTL(glbPath, stlPath string) error
	GeneratePreviewImage(glbPath, imagePath string) error
}

// Options controls output locations and pacing
type Options struct {
	STLDir          string
	PNGDir          string
	PollInterval    time.Duration
	ConversionDelay time.Duration
	PreviewDelay    time.Duration
}

// OptionsFromConfig derives processor options from service configuration
func OptionsFromConfig(cfg *config.Config) Options {
	return Options{
		STLDir:          cfg.STLPath(),
		PNGDir:          cfg.PNGPath(),
		PollInterval:    cfg.Worker.PollInterval,
		ConversionDelay: cfg.Worker.ConversionDelay,
		PreviewDelay:    cfg.Worker.PreviewDelay,
	}
}

// Processor is the single sequential job consumer
type Processor struct {
	store     store.Store
	converter Converter
	publisher notify.Publisher
	mirror    artifacts.Mirror
	opts      Options
	logger    *slog.Logger
}

// NewProcessor wires a processor. Nil publisher and mirror disable those features.
func NewProcessor(st store.Store, conv Converter, pub notify.Publisher, mirror artifacts.Mirror, opts Options, logger *slog.Logger) *Processor {
	if pub == nil {
		pub = notify.Nop
	}
	if mirror == nil {
		mirror = artifacts.Nop
	}
	return &Processor{
		store:     st,
		converter: conv,
		publisher: pub,
		mirror:    mirror,
		opts:      opts,
		logger:    logger.With("component", "worker"),
	}
}

// Run processes pending jobs every poll interval until ctx is cancelled.
// Cancellation is observed between iterations only.
func (p *Processor) Run(ctx context.Context) error {
	p.logger.Info("job processor started", "poll_interval", p.opts.PollInterval)
	defer p.logger.Info("job processor stopped")

	ticker := time.NewTicker(p.opts.PollInterval)
	defer ticker.Stop()

	for {
		if ctx.Err() != nil {
			return nil
		}
		if err := p.ProcessPending(ctx); err != nil {
			p.logger.Error("error processing pending jobs", "error", err)
		}

		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
		}
	}
}

// ProcessPending runs every currently pending job, oldest first.
// It returns the fetch error, if any; job failures are recorded on the job.
func (p *Processor) ProcessPending(ctx context.Context) error {
	jobs, err := p.store.PendingJobs(ctx)
	if err != nil {
		return fmt.Errorf("fetch pending jobs: %w", err)
	}

	for _, job := range jobs {
		if ctx.Err() != nil {
			return nil
		}
		// A started job runs to completion even during shutdown.
		p.processJob(context.WithoutCancel(ctx), job)
	}
	return nil
}

func (p *Processor) processJob(ctx context.Context, job models.Job) {
	logger := p.logger.With("job_id", job.ID, "model_id", job.ModelID, "job_type", job.JobType)
	logger.Info("processing job")

	if err := p.runJob(ctx, job, logger); err != nil {
		logger.Error("job failed", "error", err)
		p.failJob(ctx, job, err, logger)
		return
	}
	logger.Info("job completed successfully")
}

func (p *Processor) runJob(ctx context.Context, job models.Job, logger *slog.Logger) error {
	if err := p.transition(ctx, &job, models.StatusProcessing, ""); err != nil {
		return err
	}

	model, err := p.store.GetModel(ctx, job.ModelID)
	if errors.Is(err, store.ErrNotFound) {
		return fmt.Errorf("model %s not found", job.ModelID)
	}
	if err != nil {
		return err
	}

	switch job.JobType {
	case models.JobTypeSTLConversion:
		err = p.convertSTL(ctx, model, logger)
	case models.JobTypePreviewGeneration:
		err = p.generatePreview(ctx, model, logger)
	default:
		err = fmt.Errorf("unknown job type %s", job.JobType)
	}
	if err != nil {
		return err
	}

	if err := p.transition(ctx, &job, models.StatusCompleted, ""); err != nil {
		return err
	}
	return p.refreshModelStatus(ctx, job)
}

func (p *Processor) convertSTL(ctx context.Context, model *models.Model, logger *slog.Logger) error {
	if err := converter.EnsureDir(p.opts.STLDir); err != nil {
		return err
	}
	time.Sleep(p.opts.ConversionDelay)

	name := model.ID + ".stl"
	stlPath := filepath.Join(p.opts.STLDir, name)
	if err := p.converter.ConvertGLBToSTL(model.FileURI, stlPath); err != nil {
		return err
	}
	if err := p.store.UpdateModelSTLURI(ctx, model.ID, stlPath); err != nil {
		return err
	}
	p.mirrorFile(ctx, stlPath, artifacts.Key(config.STLDir, name), logger)
	return nil
}

func (p *Processor) generatePreview(ctx context.Context, model *models.Model, logger *slog.Logger) error {
	if err := converter.EnsureDir(p.opts.PNGDir); err != nil {
		return err
	}
	time.Sleep(p.opts.PreviewDelay)

	name := model.ID + "_preview.png"
	imagePath := filepath.Join(p.opts.PNGDir, name)
	if err := p.converter.GeneratePreviewImage(model.FileURI, imagePath); err != nil {
		return err
	}
	if err := p.store.UpdateModelPreviewURI(ctx, model.ID, imagePath); err != nil {
		return err
	}
	p.mirrorFile(ctx, imagePath, artifacts.Key(config.PNGDir, name), logger)
	return nil
}

func (p *Processor) mirrorFile(ctx context.Context, localPath, key string, logger *slog.Logger) {
	if err := p.mirror.Put(ctx, localPath, key); err != nil {
		logger.Warn("artifact mirror failed", "key", key, "error", err)
	}
}

// refreshModelStatus recomputes the model status from all of its jobs
func (p *Processor) refreshModelStatus(ctx context.Context, job models.Job) error {
	model, err := p.store.GetModel(ctx, job.ModelID)
	if err != nil {
		return err
	}
	jobs, err := p.store.JobsByModel(ctx, job.ModelID)
	if err != nil {
		return err
	}

	next := models.AggregateStatus(model.Status, jobs)
	if next != model.Status {
		if err := p.store.UpdateModelStatus(ctx, model.ID, next); err != nil {
			return err
		}
	}
	p.publish(ctx, job, next)
	return nil
}

func (p *Processor) failJob(ctx context.Context, job models.Job, cause error, logger *slog.Logger) {
	if err := p.transition(ctx, &job, models.StatusFailed, cause.Error()); err != nil {
		logger.Error("failed to record job failure", "error", err)
	}
	if err := p.store.UpdateModelStatus(ctx, job.ModelID, models.StatusFailed); err != nil {
		logger.Error("failed to mark model failed", "error", err)
		return
	}
	p.publish(ctx, job, models.StatusFailed)
}

// transition writes a job status and announces it. The model status in the
// event is left empty until it has been recomputed.
func (p *Processor) transition(ctx context.Context, job *models.Job, status models.Status, errorMessage string) error {
	if err := p.store.UpdateJobStatus(ctx, job.ID, status, errorMessage); err != nil {
		return fmt.Errorf("update job %s to %s: %w", job.ID, status, err)
	}
	job.Status = status
	job.ErrorMessage = errorMessage
	if status == models.StatusProcessing {
		p.publish(ctx, *job, "")
	}
	return nil
}

func (p *Processor) publish(ctx context.Context, job models.Job, modelStatus models.Status) {
	if err := p.publisher.Publish(ctx, models.NewJobEvent(job, modelStatus)); err != nil {
		p.logger.Warn("failed to publish model event", "job_id", job.ID, "error", err)
	}
}
