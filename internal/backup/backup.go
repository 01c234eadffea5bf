// Package backup performs the nightly offsite upload of the workbench's
// durable state: the real-time stream file, the alerts/reports/patterns
// JSON stores, and the clientdata response-cache database. Unlike the
// teacher's Cloudflare R2 client, this talks to S3 directly through
// aws-sdk-go-v2's upload manager.
package backup

import (
	"archive/tar"
	"compress/gzip"
	"context"
	"crypto/sha256"
	"encoding/json"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"time"

	"github.com/aws/aws-sdk-go-v2/aws"
	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/feature/s3/manager"
	"github.com/aws/aws-sdk-go-v2/service/s3"
	"github.com/rs/zerolog"

	"github.com/stockworks/workbench/internal/events"
	"github.com/stockworks/workbench/internal/scheduler/base"
)

// Metadata describes one archived backup, mirroring the teacher's
// BackupMetadata/DatabaseMetadata shape (renamed: "databases" -> "files"
// since this repo's durable state is JSON files plus one sqlite cache, not
// seven relational databases).
type Metadata struct {
	Timestamp time.Time      `json:"timestamp"`
	Files     []FileMetadata `json:"files"`
}

// FileMetadata is one archived file's identity: name, size, sha256.
type FileMetadata struct {
	Name      string `json:"name"`
	SizeBytes int64  `json:"size_bytes"`
	Checksum  string `json:"checksum"`
}

// Service creates and uploads nightly archives of the data directory's
// durable files to S3.
type Service struct {
	base.JobBase

	s3     *s3.Client
	bucket string
	dataDir string
	files  []string // basenames under dataDir to archive, e.g. "alerts.json"
	log    zerolog.Logger
	events *events.Manager
}

// New builds a backup service from ambient AWS credentials (env vars,
// shared config file, or instance role — resolved by aws-sdk-go-v2's
// default credential chain). bucket/region come from internal/config.
func New(ctx context.Context, bucket, region, dataDir string, files []string, mgr *events.Manager, log zerolog.Logger) (*Service, error) {
	awsCfg, err := awsconfig.LoadDefaultConfig(ctx, awsconfig.WithRegion(region))
	if err != nil {
		return nil, fmt.Errorf("backup: load aws config: %w", err)
	}
	return &Service{
		JobBase: base.NewJobBase("nightly-backup"),
		s3:      s3.NewFromConfig(awsCfg),
		bucket:  bucket,
		dataDir: dataDir,
		files:   files,
		log:     log.With().Str("component", "backup").Logger(),
		events:  mgr,
	}, nil
}

// Run implements scheduler.Job: build an archive of the configured files
// and upload it to S3. Missing files are skipped (e.g. before the alerts
// store has ever been saved), not treated as an error.
func (s *Service) Run() error {
	return s.CreateAndUpload(context.Background())
}

// CreateAndUpload builds a tar.gz of every configured durable file plus a
// metadata.json manifest, then uploads it under a timestamped key.
func (s *Service) CreateAndUpload(ctx context.Context) error {
	start := time.Now()

	stagingDir, err := os.MkdirTemp("", "workbench-backup-*")
	if err != nil {
		return fmt.Errorf("backup: staging dir: %w", err)
	}
	defer os.RemoveAll(stagingDir)

	meta := Metadata{Timestamp: start.UTC()}
	var present []string
	for _, name := range s.files {
		src := filepath.Join(s.dataDir, name)
		info, err := os.Stat(src)
		if os.IsNotExist(err) {
			continue
		}
		if err != nil {
			return fmt.Errorf("backup: stat %s: %w", name, err)
		}
		checksum, err := checksumFile(src)
		if err != nil {
			return fmt.Errorf("backup: checksum %s: %w", name, err)
		}
		meta.Files = append(meta.Files, FileMetadata{Name: name, SizeBytes: info.Size(), Checksum: checksum})
		present = append(present, name)
	}

	metadataPath := filepath.Join(stagingDir, "metadata.json")
	if err := writeMetadata(metadataPath, meta); err != nil {
		return fmt.Errorf("backup: write metadata: %w", err)
	}

	archiveName := fmt.Sprintf("workbench-backup-%s.tar.gz", start.Format("2006-01-02-150405"))
	archivePath := filepath.Join(stagingDir, archiveName)
	if err := s.createArchive(archivePath, metadataPath, present); err != nil {
		return fmt.Errorf("backup: create archive: %w", err)
	}

	info, err := os.Stat(archivePath)
	if err != nil {
		return fmt.Errorf("backup: stat archive: %w", err)
	}
	archiveFile, err := os.Open(archivePath)
	if err != nil {
		return fmt.Errorf("backup: open archive: %w", err)
	}
	defer archiveFile.Close()

	uploader := manager.NewUploader(s.s3)
	_, uploadErr := uploader.Upload(ctx, &s3.PutObjectInput{
		Bucket: aws.String(s.bucket),
		Key:    aws.String(archiveName),
		Body:   archiveFile,
	})

	duration := time.Since(start)
	if s.events != nil {
		data := &events.BackupCompletedData{Key: archiveName, Bytes: info.Size(), Duration: duration.String()}
		if uploadErr != nil {
			data.Error = uploadErr.Error()
		}
		s.events.Emit("backup", data)
	}
	if uploadErr != nil {
		return fmt.Errorf("backup: upload %s: %w", archiveName, uploadErr)
	}

	s.log.Info().Str("archive", archiveName).Int64("bytes", info.Size()).Dur("duration_ms", duration).Msg("backup uploaded")
	return nil
}

func checksumFile(path string) (string, error) {
	f, err := os.Open(path)
	if err != nil {
		return "", err
	}
	defer f.Close()

	h := sha256.New()
	if _, err := io.Copy(h, f); err != nil {
		return "", err
	}
	return fmt.Sprintf("sha256:%x", h.Sum(nil)), nil
}

func writeMetadata(path string, meta Metadata) error {
	f, err := os.Create(path)
	if err != nil {
		return err
	}
	defer f.Close()
	enc := json.NewEncoder(f)
	enc.SetIndent("", "  ")
	return enc.Encode(meta)
}

// createArchive tars+gzips metadataPath plus every present file (resolved
// against s.dataDir) into archivePath.
func (s *Service) createArchive(archivePath, metadataPath string, present []string) error {
	archiveFile, err := os.Create(archivePath)
	if err != nil {
		return err
	}
	defer archiveFile.Close()

	gz := gzip.NewWriter(archiveFile)
	defer gz.Close()
	tw := tar.NewWriter(gz)
	defer tw.Close()

	if err := addFileToArchive(tw, metadataPath, "metadata.json"); err != nil {
		return err
	}
	for _, name := range present {
		if err := addFileToArchive(tw, filepath.Join(s.dataDir, name), name); err != nil {
			return err
		}
	}
	return nil
}

func addFileToArchive(tw *tar.Writer, path, nameInArchive string) error {
	f, err := os.Open(path)
	if err != nil {
		return err
	}
	defer f.Close()

	info, err := f.Stat()
	if err != nil {
		return err
	}
	header := &tar.Header{Name: nameInArchive, Size: info.Size(), Mode: int64(info.Mode()), ModTime: info.ModTime()}
	if err := tw.WriteHeader(header); err != nil {
		return err
	}
	_, err = io.Copy(tw, f)
	return err
}
