package generation

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"

	"github.com/pixelforge/imagesvc/internal/metrics"
)

// PipelineConfig controls blob paths and URL shaping for the pipeline.
type PipelineConfig struct {
	// BlobPrefix is prepended to uploaded object paths.
	BlobPrefix string
	// ContentType is sent with uploaded images.
	ContentType string
	// PublicBaseURL is the base under which stored images are served locally.
	PublicBaseURL string
	// Topic is the completion-event topic; empty disables publishing.
	Topic string
}

// Pipeline composes the full generation flow: validate, record, poll,
// materialize, upload, publish. Blob upload, record persistence, and event
// publishing are all optional collaborators; their failures never fail the
// overall request.
type Pipeline struct {
	poller    *Poller
	resolver  *Resolver
	blobs     BlobStore
	records   RecordStore
	publisher Publisher
	clock     Clock
	cfg       PipelineConfig
	logger    *zap.Logger
}

// NewPipeline constructs a Pipeline. blobs, records, and publisher may be nil.
func NewPipeline(
	poller *Poller,
	resolver *Resolver,
	blobs BlobStore,
	records RecordStore,
	publisher Publisher,
	clock Clock,
	cfg PipelineConfig,
	logger *zap.Logger,
) *Pipeline {
	if cfg.BlobPrefix == "" {
		cfg.BlobPrefix = "generated_images"
	}
	if cfg.ContentType == "" {
		cfg.ContentType = "image/png"
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Pipeline{
		poller:    poller,
		resolver:  resolver,
		blobs:     blobs,
		records:   records,
		publisher: publisher,
		clock:     clock,
		cfg:       cfg,
		logger:    logger,
	}
}

// Generate runs one request end to end and blocks until it resolves. The same
// request_id submitted twice produces two independent upstream jobs; there is
// no dedup.
func (p *Pipeline) Generate(ctx context.Context, req Request) (Result, error) {
	req.ApplyDefaults()
	if err := req.Validate(); err != nil {
		return Result{}, err
	}

	start := p.clock.Now()
	p.createRecord(ctx, req, start)

	reference, err := p.poller.Run(ctx, req)
	if err != nil {
		p.finishRecord(ctx, req.RequestID, JobStatusFailed, "", "", err.Error())
		return Result{}, err
	}

	path, data, err := p.resolver.Materialize(ctx, req.RequestID, reference)
	if err != nil {
		p.finishRecord(ctx, req.RequestID, JobStatusFailed, "", "", err.Error())
		return Result{}, err
	}

	res := Result{
		RequestID: req.RequestID,
		LocalPath: path,
		ImageURL:  p.localURL(req.RequestID),
	}

	if p.blobs != nil {
		blobURL, upErr := p.blobs.PutObject(ctx, p.blobPath(req.RequestID), p.cfg.ContentType, data)
		if upErr != nil {
			// Upload failure degrades to the local URL only.
			metrics.ObserveUploadFailure()
			p.logger.Warn("blob upload failed; serving local image only",
				zap.String("request_id", req.RequestID),
				zap.Error(fmt.Errorf("%w: %v", ErrUpload, upErr)),
			)
		} else {
			res.BlobURL = blobURL
		}
	}

	p.finishRecord(ctx, req.RequestID, JobStatusCompleted, res.ImageURL, res.BlobURL, "")
	p.publishCompletion(ctx, res)

	p.logger.Info("generation completed",
		zap.String("request_id", req.RequestID),
		zap.Duration("duration", p.clock.Now().Sub(start)),
		zap.String("image_url", res.ImageURL),
		zap.String("blob_url", res.BlobURL),
	)
	return res, nil
}

func (p *Pipeline) blobPath(requestID string) string {
	prefix := strings.Trim(p.cfg.BlobPrefix, "/")
	if prefix == "" {
		return ImageFileName(requestID)
	}
	return prefix + "/" + ImageFileName(requestID)
}

func (p *Pipeline) localURL(requestID string) string {
	base := strings.TrimSuffix(p.cfg.PublicBaseURL, "/")
	if base == "" {
		base = "/static/generated_images"
	}
	return base + "/" + ImageFileName(requestID)
}

func (p *Pipeline) createRecord(ctx context.Context, req Request, createdAt time.Time) {
	if p.records == nil {
		return
	}
	rec := Record{
		RequestID: req.RequestID,
		Prompt:    req.Prompt,
		Width:     req.Width,
		Height:    req.Height,
		Status:    JobStatusSubmitted,
		CreatedAt: createdAt,
	}
	if err := p.records.CreateRecord(ctx, rec); err != nil {
		p.logger.Warn("create generation record failed",
			zap.String("request_id", req.RequestID),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) finishRecord(ctx context.Context, requestID string, status JobStatus, imageURL, blobURL, errText string) {
	if p.records == nil {
		return
	}
	if err := p.records.FinishRecord(ctx, requestID, status, imageURL, blobURL, errText, p.clock.Now()); err != nil {
		p.logger.Warn("finish generation record failed",
			zap.String("request_id", requestID),
			zap.Error(err),
		)
	}
}

func (p *Pipeline) publishCompletion(ctx context.Context, res Result) {
	if p.publisher == nil || p.cfg.Topic == "" {
		return
	}
	payload := map[string]any{
		"request_id": res.RequestID,
		"image_url":  res.ImageURL,
		"blob_url":   res.BlobURL,
		"status":     string(JobStatusCompleted),
		"timestamp":  p.clock.Now().Format(time.RFC3339),
	}
	if _, err := p.publisher.Publish(ctx, p.cfg.Topic, payload); err != nil {
		p.logger.Warn("publish completion event failed",
			zap.String("request_id", res.RequestID),
			zap.Error(err),
		)
	}
}
