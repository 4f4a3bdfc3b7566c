package usecase

import (
	"context"
	"encoding/json"
	"fmt"
	"math"
	"os"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.uber.org/zap"

	"github.com/stillframe/stillframe-extraction-service/internal/domain/entity"
	"github.com/stillframe/stillframe-extraction-service/internal/domain/port"
	"github.com/stillframe/stillframe-extraction-service/internal/infra/ffmpeg"
	"github.com/stillframe/stillframe-extraction-service/internal/infra/metrics"
	"github.com/stillframe/stillframe-extraction-service/internal/photo"
)

type ExtractPhotosUseCase struct {
	repo      port.JobRepository
	storage   port.VideoStorage
	encoder   port.PhotoEncoder
	archiver  port.Archiver
	publisher port.StatusPublisher
	dlq       port.DLQPublisher
	notifier  port.FailureNotifier
	logger    *zap.Logger
	opts      photo.Options
	tempDir   string
	maxRetry  int
}

type ExtractPhotosConfig struct {
	TempDir    string
	MaxRetries int
	Options    photo.Options
}

func NewExtractPhotosUseCase(
	repo port.JobRepository,
	storage port.VideoStorage,
	encoder port.PhotoEncoder,
	archiver port.Archiver,
	publisher port.StatusPublisher,
	dlq port.DLQPublisher,
	notifier port.FailureNotifier,
	logger *zap.Logger,
	cfg ExtractPhotosConfig,
) *ExtractPhotosUseCase {
	return &ExtractPhotosUseCase{
		repo:      repo,
		storage:   storage,
		encoder:   encoder,
		archiver:  archiver,
		publisher: publisher,
		dlq:       dlq,
		notifier:  notifier,
		logger:    logger,
		opts:      cfg.Options,
		tempDir:   cfg.TempDir,
		maxRetry:  cfg.MaxRetries,
	}
}

func (uc *ExtractPhotosUseCase) Execute(ctx context.Context, rawMsg []byte) error {
	tracer := otel.Tracer("usecase")
	ctx, span := tracer.Start(ctx, "ExtractPhotosUseCase.Execute")
	defer span.End()

	totalTimer := time.Now()

	var msg entity.VideoExtractionMessage
	if err := json.Unmarshal(rawMsg, &msg); err != nil {
		uc.logger.Error("failed to unmarshal message", zap.Error(err), zap.ByteString("body", rawMsg))
		_ = uc.dlq.PublishToDLQ(ctx, rawMsg, "unmarshal_error: "+err.Error())
		return nil
	}

	span.SetAttributes(
		attribute.String("job.id", msg.JobID.String()),
		attribute.String("job.video_key", msg.VideoKey),
	)

	log := uc.logger.With(zap.String("job_id", msg.JobID.String()), zap.String("video_key", msg.VideoKey))

	job, err := uc.repo.FindByID(ctx, msg.JobID)
	if err != nil {
		job = entity.NewJob(msg.UserID, msg.VideoKey, msg.FileSize, uc.maxRetry)
		job.ID = msg.JobID
		if err := uc.repo.Create(ctx, job); err != nil {
			log.Error("failed to create job record", zap.Error(err))
			return fmt.Errorf("create job: %w", err)
		}
	}

	if !job.CanRetry() {
		log.Warn("job exhausted retries, sending to DLQ")
		_ = uc.handlePermanentFailure(ctx, job, msg, rawMsg, "max retries exceeded")
		return nil
	}

	job.MarkProcessing()
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to PROCESSING", zap.Error(err))
		return fmt.Errorf("update job: %w", err)
	}

	metrics.ActiveWorkers.Inc()
	defer metrics.ActiveWorkers.Dec()

	if err := uc.extractionPipeline(ctx, job, msg, rawMsg, log); err != nil {
		return err
	}

	metrics.JobsProcessedTotal.WithLabelValues("completed").Inc()
	metrics.JobProcessingDuration.WithLabelValues("total").Observe(time.Since(totalTimer).Seconds())

	return nil
}

func (uc *ExtractPhotosUseCase) extractionPipeline(
	ctx context.Context,
	job *entity.Job,
	msg entity.VideoExtractionMessage,
	rawMsg []byte,
	log *zap.Logger,
) error {
	tracer := otel.Tracer("usecase")

	workDir := filepath.Join(uc.tempDir, job.ID.String())
	if err := os.MkdirAll(workDir, 0755); err != nil {
		return fmt.Errorf("create workdir: %w", err)
	}
	defer os.RemoveAll(workDir)

	// Download video from MinIO
	dlStart := time.Now()
	ctx2, spanDl := tracer.Start(ctx, "download_video")
	videoPath := filepath.Join(workDir, "input"+filepath.Ext(msg.VideoKey))
	if err := uc.storage.DownloadVideo(ctx2, msg.VideoKey, videoPath); err != nil {
		spanDl.End()
		log.Error("failed to download video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "download_video: "+err.Error(), log)
	}
	spanDl.End()
	metrics.JobProcessingDuration.WithLabelValues("download").Observe(time.Since(dlStart).Seconds())

	// Probe the original, build a low-res scan proxy, probe that too
	prepStart := time.Now()
	ctx3, spanPrep := tracer.Start(ctx, "prepare_proxy")
	videoMeta, err := ffmpeg.Probe(ctx3, videoPath)
	if err != nil {
		spanPrep.End()
		log.Error("ffprobe failed on source video", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "probe_video: "+err.Error(), log)
	}
	proxyPath := filepath.Join(workDir, "proxy.mp4")
	if err := ffmpeg.TranscodeLowRes(ctx3, videoPath, proxyPath, log); err != nil {
		spanPrep.End()
		log.Error("low-res transcode failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "transcode: "+err.Error(), log)
	}
	proxyMeta, err := ffmpeg.Probe(ctx3, proxyPath)
	if err != nil {
		spanPrep.End()
		log.Error("ffprobe failed on proxy", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "probe_proxy: "+err.Error(), log)
	}
	spanPrep.End()
	metrics.JobProcessingDuration.WithLabelValues("prepare").Observe(time.Since(prepStart).Seconds())

	// Scan the proxy for static photo segments
	scanStart := time.Now()
	ctx4, spanScan := tracer.Start(ctx, "scan_segments")
	scanner, err := photo.NewScanner(uc.opts, log)
	if err != nil {
		spanScan.End()
		return fmt.Errorf("build scanner: %w", err)
	}
	src := ffmpeg.NewSource(videoPath, proxyPath, videoMeta, proxyMeta, uc.opts.StepTime, log)
	candidates, err := scanner.Scan(ctx4, src)
	closeErr := src.Close()
	if err != nil {
		spanScan.End()
		log.Error("scan failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "scan: "+err.Error(), log)
	}
	if closeErr != nil {
		log.Debug("low-res decoder exit", zap.Error(closeErr))
	}
	spanScan.End()
	metrics.JobProcessingDuration.WithLabelValues("scan").Observe(time.Since(scanStart).Seconds())

	log.Info("scan finished",
		zap.Int("candidates", len(candidates)),
		zap.Float64("video_duration", videoMeta.Duration),
	)

	// Re-extract each candidate at full resolution, trim and validate
	exStart := time.Now()
	ctx5, spanEx := tracer.Start(ctx, "extract_photos")
	photosDir := filepath.Join(workDir, "photos")
	if err := os.MkdirAll(photosDir, 0755); err != nil {
		spanEx.End()
		return fmt.Errorf("create photos dir: %w", err)
	}
	photoPaths := uc.extractCandidates(ctx5, src, candidates, videoMeta, msg.VideoKey, photosDir, log)
	spanEx.End()
	metrics.JobProcessingDuration.WithLabelValues("extract").Observe(time.Since(exStart).Seconds())
	metrics.PhotosExtractedTotal.Add(float64(len(photoPaths)))

	if len(photoPaths) == 0 {
		// No photos is a legitimate outcome for a video with no static
		// segments. The job completes with an empty result, not an error.
		job.MarkCompleted("", len(candidates), 0, videoMeta.Duration)
		if err := uc.repo.Update(ctx, job); err != nil {
			return fmt.Errorf("update job completed: %w", err)
		}
		uc.publishStatus(ctx, job, log)
		log.Info("job completed with no photos", zap.Int("candidate_count", len(candidates)))
		return nil
	}

	// Create ZIP from photos
	zipStart := time.Now()
	ctx6, spanZip := tracer.Start(ctx, "create_archive")
	zipPath := filepath.Join(workDir, "photos.zip")
	if err := uc.archiver.CreateArchive(ctx6, photoPaths, zipPath); err != nil {
		spanZip.End()
		log.Error("archive creation failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "create_archive: "+err.Error(), log)
	}
	spanZip.End()
	metrics.JobProcessingDuration.WithLabelValues("zip").Observe(time.Since(zipStart).Seconds())

	// Upload ZIP to MinIO
	upStart := time.Now()
	ctx7, spanUp := tracer.Start(ctx, "upload_archive")
	archiveKey := fmt.Sprintf("%s/photos_%s.zip", msg.UserID, job.ID.String())
	zipFile, err := os.Open(zipPath)
	if err != nil {
		spanUp.End()
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "open_archive: "+err.Error(), log)
	}
	zipStat, _ := zipFile.Stat()
	if err := uc.storage.UploadArchive(ctx7, archiveKey, zipFile, zipStat.Size()); err != nil {
		zipFile.Close()
		spanUp.End()
		log.Error("archive upload failed", zap.Error(err))
		return uc.handleRetryableFailure(ctx, job, msg, rawMsg, "upload_archive: "+err.Error(), log)
	}
	zipFile.Close()
	spanUp.End()
	metrics.JobProcessingDuration.WithLabelValues("upload").Observe(time.Since(upStart).Seconds())

	// Mark completed
	job.MarkCompleted(archiveKey, len(candidates), len(photoPaths), videoMeta.Duration)
	if err := uc.repo.Update(ctx, job); err != nil {
		log.Error("failed to update job to COMPLETED", zap.Error(err))
		return fmt.Errorf("update job completed: %w", err)
	}

	uc.publishStatus(ctx, job, log)

	log.Info("job completed successfully",
		zap.Int("candidate_count", len(candidates)),
		zap.Int("photo_count", len(photoPaths)),
		zap.Float64("duration_secs", videoMeta.Duration),
		zap.String("archive_key", archiveKey),
	)

	return nil
}

// extractCandidates turns scan candidates into encoded photo files. Failures
// here are per-candidate: a bad seek or a rejected frame skips that candidate
// and the extraction carries on.
func (uc *ExtractPhotosUseCase) extractCandidates(
	ctx context.Context,
	src photo.FrameSource,
	candidates []photo.Candidate,
	videoMeta ffmpeg.Metadata,
	videoKey string,
	photosDir string,
	log *zap.Logger,
) []string {
	trimmer := photo.NewTrimmer(uc.opts)
	validator := photo.NewValidator(uc.opts)
	safeName := makeSafeName(videoKey)

	var photoPaths []string
	for _, cand := range candidates {
		if ctx.Err() != nil {
			log.Info("extraction cancelled", zap.Int("photos_so_far", len(photoPaths)))
			break
		}

		frame, err := src.SeekFullRes(ctx, cand.Timestamp)
		if err != nil {
			log.Warn("full-res seek failed, skipping candidate",
				zap.Float64("timestamp", cand.Timestamp), zap.Error(err))
			metrics.CandidatesRejectedTotal.WithLabelValues("seek-failed").Inc()
			continue
		}

		trimmed := trimmer.TrimAndBorder(frame)

		if rej := validator.Validate(trimmed, videoMeta.FrameArea()); rej != nil {
			log.Info("candidate rejected",
				zap.Float64("timestamp", cand.Timestamp),
				zap.String("reason", string(rej.Reason)),
				zap.String("detail", rej.Detail),
			)
			metrics.CandidatesRejectedTotal.WithLabelValues(string(rej.Reason)).Inc()
			continue
		}

		destPath := filepath.Join(photosDir,
			fmt.Sprintf("%s_%s.jpg", safeName, formatTimestamp(cand.Timestamp)))
		if err := uc.encoder.Encode(ctx, trimmed, destPath); err != nil {
			log.Warn("photo encode failed, skipping candidate",
				zap.Float64("timestamp", cand.Timestamp), zap.Error(err))
			metrics.CandidatesRejectedTotal.WithLabelValues("encode-failed").Inc()
			continue
		}

		photoPaths = append(photoPaths, destPath)
	}

	return photoPaths
}

func (uc *ExtractPhotosUseCase) handleRetryableFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.VideoExtractionMessage,
	rawMsg []byte,
	errMsg string,
	log *zap.Logger,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	if !job.CanRetry() {
		return uc.handlePermanentFailure(ctx, job, msg, rawMsg, errMsg)
	}

	metrics.RetryTotal.WithLabelValues(strconv.Itoa(job.Attempt)).Inc()
	uc.publishStatus(ctx, job, log)

	return fmt.Errorf("retryable failure (attempt %d/%d): %s", job.Attempt, job.MaxAttempts, errMsg)
}

func (uc *ExtractPhotosUseCase) handlePermanentFailure(
	ctx context.Context,
	job *entity.Job,
	msg entity.VideoExtractionMessage,
	rawMsg []byte,
	errMsg string,
) error {
	job.MarkFailed(errMsg)
	_ = uc.repo.Update(ctx, job)

	_ = uc.dlq.PublishToDLQ(ctx, rawMsg, errMsg)

	uc.publishStatus(ctx, job, uc.logger)

	metrics.JobsProcessedTotal.WithLabelValues("dlq").Inc()

	if msg.UserEmail != "" {
		_ = uc.notifier.NotifyFailure(ctx, msg.UserEmail, job.ID.String(), msg.VideoKey, errMsg)
	}

	return nil
}

func (uc *ExtractPhotosUseCase) publishStatus(ctx context.Context, job *entity.Job, log *zap.Logger) {
	statusMsg := entity.ExtractionStatusMessage{
		JobID:          job.ID,
		UserID:         job.UserID,
		Status:         job.Status,
		VideoKey:       job.VideoKey,
		ArchiveKey:     job.ArchiveKey,
		CandidateCount: job.CandidateCount,
		PhotoCount:     job.PhotoCount,
		Duration:       job.VideoDuration,
		ErrorMessage:   job.ErrorMessage,
		Attempt:        job.Attempt,
		MaxAttempts:    job.MaxAttempts,
	}
	data, _ := json.Marshal(statusMsg)
	if err := uc.publisher.PublishStatus(ctx, data); err != nil {
		log.Error("failed to publish status", zap.Error(err))
	}
}

// makeSafeName derives a filesystem-safe photo name prefix from the video
// object key: base name without extension, non-alphanumerics collapsed to
// underscores.
func makeSafeName(videoKey string) string {
	base := filepath.Base(videoKey)
	base = strings.TrimSuffix(base, filepath.Ext(base))
	var b strings.Builder
	for _, r := range base {
		switch {
		case r >= 'a' && r <= 'z', r >= 'A' && r <= 'Z', r >= '0' && r <= '9', r == '-', r == '_':
			b.WriteRune(r)
		default:
			b.WriteRune('_')
		}
	}
	if b.Len() == 0 {
		return "video"
	}
	return b.String()
}

// formatTimestamp renders a timestamp as minutes and zero-padded seconds,
// with tenths only when they are nonzero: 5.5s -> "0m05.5", 83s -> "1m23".
func formatTimestamp(ts float64) string {
	totalTenths := int(math.Round(ts * 10))
	minutes := totalTenths / 600
	rem := totalTenths % 600
	seconds := rem / 10
	tenths := rem % 10
	if tenths == 0 {
		return fmt.Sprintf("%dm%02d", minutes, seconds)
	}
	return fmt.Sprintf("%dm%02d.%d", minutes, seconds, tenths)
}
