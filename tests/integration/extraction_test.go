package integration

import (
	"archive/zip"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5/pgxpool"
	miniogo "github.com/minio/minio-go/v7"
	"github.com/minio/minio-go/v7/pkg/credentials"
	amqp "github.com/rabbitmq/amqp091-go"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	tcminio "github.com/testcontainers/testcontainers-go/modules/minio"
	tcpostgres "github.com/testcontainers/testcontainers-go/modules/postgres"
	tcrabbitmq "github.com/testcontainers/testcontainers-go/modules/rabbitmq"

	"github.com/stillframe/stillframe-extraction-service/internal/domain/entity"
	"github.com/stillframe/stillframe-extraction-service/internal/infra/email"
	"github.com/stillframe/stillframe-extraction-service/internal/infra/ffmpeg"
	imagingenc "github.com/stillframe/stillframe-extraction-service/internal/infra/imaging"
	miniostorage "github.com/stillframe/stillframe-extraction-service/internal/infra/minio"
	"github.com/stillframe/stillframe-extraction-service/internal/infra/postgres"
	"github.com/stillframe/stillframe-extraction-service/internal/infra/rabbitmq"
	"github.com/stillframe/stillframe-extraction-service/internal/photo"
	"github.com/stillframe/stillframe-extraction-service/internal/usecase"
	"github.com/stillframe/stillframe-extraction-service/pkg/logger"
)

func TestExtractPhotosEndToEnd(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Minute)
	defer cancel()

	// Start PostgreSQL container
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("jobs"),
		tcpostgres.WithUsername("job_user"),
		tcpostgres.WithPassword("job_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	defer pgContainer.Terminate(ctx)

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Start RabbitMQ container
	rmqContainer, err := tcrabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
	)
	require.NoError(t, err)
	defer rmqContainer.Terminate(ctx)

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	// Start MinIO container
	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer minioContainer.Terminate(ctx)

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	// Run migrations
	err = postgres.RunMigrations(pgConnStr, "../../migrations")
	require.NoError(t, err)

	// Setup MinIO storage
	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      minioEndpoint,
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		UseSSL:        false,
		UploadBucket:  "uploads",
		ArchiveBucket: "photo-archives",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	// Upload test video to MinIO. The clip must hold a still image for a
	// few seconds so the scan finds a static segment.
	testVideoPath := filepath.Join("..", "testdata", "slideshow.mp4")
	if _, err := os.Stat(testVideoPath); os.IsNotExist(err) {
		t.Skip("test video not found at tests/testdata/slideshow.mp4 - generate it with: " +
			"ffmpeg -f lavfi -i smptebars=duration=4:size=320x240:rate=2 -c:v libx264 -pix_fmt yuv420p tests/testdata/slideshow.mp4")
	}

	minioClient, err := miniogo.New(minioEndpoint, &miniogo.Options{
		Creds:  credentials.NewStaticV4("minioadmin", "minioadmin", ""),
		Secure: false,
	})
	require.NoError(t, err)

	videoKey := "testuser/slideshow.mp4"
	_, err = minioClient.FPutObject(ctx, "uploads", videoKey, testVideoPath, miniogo.PutObjectOptions{
		ContentType: "video/mp4",
	})
	require.NoError(t, err)

	// Setup RabbitMQ publisher connection
	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, "stillframe.photo")
	require.NoError(t, err)

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, "photo.extraction.dlq")

	// Setup DB pool
	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	defer pool.Close()

	// Setup use case
	log, _ := logger.New("debug")
	repo := postgres.NewJobRepository(pool)
	encoder := imagingenc.NewJPEGEncoder(92)
	archiver := ffmpeg.NewArchiveCreator()
	notifier := email.NewSMTPNotifier("localhost", 1025, "test@test.local", log)

	opts := photo.DefaultOptions()
	opts.RequireBorders = false // the synthetic clip has no photo border

	uc := usecase.NewExtractPhotosUseCase(
		repo, storage, encoder, archiver,
		statusPub, dlqPub, notifier,
		log,
		usecase.ExtractPhotosConfig{
			TempDir:    t.TempDir(),
			MaxRetries: 3,
			Options:    opts,
		},
	)

	// Setup consumer
	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       "photo.extraction",
		Exchange:    "stillframe.photo",
		DLQ:         "photo.extraction.dlq",
		StatusQueue: "photo.status",
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)
	defer consumer.Close()

	// Start consumer in background
	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()

	go func() {
		consumer.Start(consumerCtx)
	}()

	// Give consumer time to start
	time.Sleep(500 * time.Millisecond)

	// Publish extraction message
	jobID := uuid.New()
	videoInfo, _ := os.Stat(testVideoPath)
	extractionMsg := entity.VideoExtractionMessage{
		JobID:     jobID,
		UserID:    "testuser",
		VideoKey:  videoKey,
		FileSize:  videoInfo.Size(),
		UserEmail: "test@test.local",
	}
	msgBody, err := json.Marshal(extractionMsg)
	require.NoError(t, err)

	pubCh, err := rmqConn.Channel()
	require.NoError(t, err)
	err = pubCh.PublishWithContext(ctx,
		"stillframe.photo",
		"photo.extraction",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        msgBody,
		},
	)
	require.NoError(t, err)
	pubCh.Close()

	// Wait for status message on photo.status queue
	statusCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer statusCh.Close()

	statusMsgs, err := statusCh.Consume("photo.status", "", true, false, false, false, nil)
	require.NoError(t, err)

	var statusMsg entity.ExtractionStatusMessage
	select {
	case delivery := <-statusMsgs:
		err = json.Unmarshal(delivery.Body, &statusMsg)
		require.NoError(t, err)
	case <-time.After(2 * time.Minute):
		t.Fatal("timeout waiting for status message")
	}

	// Assert status
	assert.Equal(t, jobID, statusMsg.JobID)
	assert.Equal(t, entity.JobStatusCompleted, statusMsg.Status)
	assert.GreaterOrEqual(t, statusMsg.CandidateCount, statusMsg.PhotoCount)

	// When validation accepted photos, the archive must exist and contain
	// exactly that many JPEGs.
	if statusMsg.ArchiveKey != "" {
		archiveObj, err := minioClient.GetObject(ctx, "photo-archives", statusMsg.ArchiveKey, miniogo.GetObjectOptions{})
		require.NoError(t, err)

		tmpZip := filepath.Join(t.TempDir(), "result.zip")
		tmpFile, err := os.Create(tmpZip)
		require.NoError(t, err)
		_, err = tmpFile.ReadFrom(archiveObj)
		require.NoError(t, err)
		tmpFile.Close()

		zipReader, err := zip.OpenReader(tmpZip)
		require.NoError(t, err)
		defer zipReader.Close()

		jpgCount := 0
		for _, f := range zipReader.File {
			if strings.HasSuffix(f.Name, ".jpg") {
				jpgCount++
			}
		}
		assert.Equal(t, statusMsg.PhotoCount, jpgCount, "archive should contain one JPEG per photo")
	}

	// Verify job record in database
	var dbStatus string
	var dbPhotoCount int
	err = pool.QueryRow(ctx,
		"SELECT status, photo_count FROM extraction_jobs WHERE id=$1", jobID,
	).Scan(&dbStatus, &dbPhotoCount)
	require.NoError(t, err)
	assert.Equal(t, "COMPLETED", dbStatus)
	assert.Equal(t, statusMsg.PhotoCount, dbPhotoCount)

	// Stop consumer
	consumerCancel()

	t.Logf("Test passed: %d candidates, %d photos, archive %q",
		statusMsg.CandidateCount, statusMsg.PhotoCount, statusMsg.ArchiveKey)
}

func TestExtractPhotosMalformedMessage(t *testing.T) {
	if testing.Short() {
		t.Skip("skipping integration test in short mode")
	}

	ctx, cancel := context.WithTimeout(context.Background(), 2*time.Minute)
	defer cancel()

	// Start PostgreSQL
	pgContainer, err := tcpostgres.Run(ctx,
		"postgres:15-alpine",
		tcpostgres.WithDatabase("jobs"),
		tcpostgres.WithUsername("job_user"),
		tcpostgres.WithPassword("job_pass"),
		tcpostgres.BasicWaitStrategies(),
	)
	require.NoError(t, err)
	defer pgContainer.Terminate(ctx)

	pgConnStr, err := pgContainer.ConnectionString(ctx, "sslmode=disable")
	require.NoError(t, err)

	// Start RabbitMQ
	rmqContainer, err := tcrabbitmq.Run(ctx,
		"rabbitmq:3.12-management-alpine",
	)
	require.NoError(t, err)
	defer rmqContainer.Terminate(ctx)

	rmqURL, err := rmqContainer.AmqpURL(ctx)
	require.NoError(t, err)

	// Run migrations
	err = postgres.RunMigrations(pgConnStr, "../../migrations")
	require.NoError(t, err)

	// MinIO (minimal - no video upload needed for this test)
	minioContainer, err := tcminio.Run(ctx,
		"minio/minio:latest",
		tcminio.WithUsername("minioadmin"),
		tcminio.WithPassword("minioadmin"),
	)
	require.NoError(t, err)
	defer minioContainer.Terminate(ctx)

	minioEndpoint, err := minioContainer.ConnectionString(ctx)
	require.NoError(t, err)

	storage, err := miniostorage.NewStorage(miniostorage.StorageConfig{
		Endpoint:      minioEndpoint,
		AccessKey:     "minioadmin",
		SecretKey:     "minioadmin",
		UseSSL:        false,
		UploadBucket:  "uploads",
		ArchiveBucket: "photo-archives",
	})
	require.NoError(t, err)
	require.NoError(t, storage.EnsureBuckets(ctx))

	// Setup
	pool, err := pgxpool.New(ctx, pgConnStr)
	require.NoError(t, err)
	defer pool.Close()

	log, _ := logger.New("debug")
	rmqConn, err := amqp.Dial(rmqURL)
	require.NoError(t, err)
	defer rmqConn.Close()

	pub, err := rabbitmq.NewPublisher(rmqConn, "stillframe.photo")
	require.NoError(t, err)

	statusPub := rabbitmq.NewStatusPublisher(pub)
	dlqPub := rabbitmq.NewDLQPublisher(pub, "photo.extraction.dlq")

	repo := postgres.NewJobRepository(pool)
	encoder := imagingenc.NewJPEGEncoder(92)
	archiver := ffmpeg.NewArchiveCreator()
	notifier := email.NewSMTPNotifier("localhost", 1025, "test@test.local", log)

	uc := usecase.NewExtractPhotosUseCase(
		repo, storage, encoder, archiver,
		statusPub, dlqPub, notifier,
		log,
		usecase.ExtractPhotosConfig{
			TempDir:    t.TempDir(),
			MaxRetries: 3,
			Options:    photo.DefaultOptions(),
		},
	)

	consumer, err := rabbitmq.NewConsumer(rabbitmq.ConsumerConfig{
		URL:         rmqURL,
		Queue:       "photo.extraction",
		Exchange:    "stillframe.photo",
		DLQ:         "photo.extraction.dlq",
		StatusQueue: "photo.status",
		Prefetch:    1,
		WorkerCount: 1,
		BaseDelayMs: 100,
	}, uc.Execute, log)
	require.NoError(t, err)
	defer consumer.Close()

	consumerCtx, consumerCancel := context.WithCancel(ctx)
	defer consumerCancel()

	go func() {
		consumer.Start(consumerCtx)
	}()
	time.Sleep(500 * time.Millisecond)

	// Publish malformed message
	pubCh, err := rmqConn.Channel()
	require.NoError(t, err)
	err = pubCh.PublishWithContext(ctx,
		"stillframe.photo",
		"photo.extraction",
		false, false,
		amqp.Publishing{
			ContentType: "application/json",
			Body:        []byte(`{invalid json`),
		},
	)
	require.NoError(t, err)
	pubCh.Close()

	// Wait and verify message landed in DLQ
	time.Sleep(2 * time.Second)

	dlqCh, err := rmqConn.Channel()
	require.NoError(t, err)
	defer dlqCh.Close()

	dlqMsg, ok, err := dlqCh.Get("photo.extraction.dlq", true)
	require.NoError(t, err)
	assert.True(t, ok, "malformed message should be in DLQ")
	assert.Equal(t, `{invalid json`, string(dlqMsg.Body))

	consumerCancel()
	t.Log("Test passed: malformed message sent to DLQ")
}
