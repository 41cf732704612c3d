package main

import (
	"bytes"
	"compress/gzip"
	"context"
	"fmt"
	"io"
	"os"
	"os/exec"
	"time"

	"github.com/aws/aws-sdk-go-v2/service/s3"
	"go.uber.org/zap"

	"paper-trawl/config"
	"paper-trawl/storage"
)

func main() {
	logger, _ := zap.NewProduction()
	defer logger.Sync()

	logger.Info("Starte Backup-Prozess")

	cfg, err := config.Load()
	if err != nil {
		logger.Fatal("Fehler beim Laden der Konfiguration", zap.Error(err))
	}
	if cfg.BackupBucket() == "" {
		logger.Fatal("Kein S3-Bucket für Backups konfiguriert")
	}

	ctx := context.Background()

	dumpData, err := createDump(cfg)
	if err != nil {
		logger.Fatal("Fehler beim Erstellen des DB-Dumps", zap.Error(err))
	}

	s3Client, err := storage.NewS3Client(cfg)
	if err != nil {
		logger.Fatal("Fehler beim Erstellen des S3-Clients", zap.Error(err))
	}

	fileName := fmt.Sprintf("backup-%s.sql.gz", time.Now().UTC().Format("2006-01-02T15-04-05Z"))
	link, err := storage.UploadFile(ctx, s3Client, cfg.BackupBucket(), fileName, dumpData, cfg)
	if err != nil {
		logger.Fatal("Fehler beim Hochladen nach S3", zap.Error(err))
	}
	logger.Info("Backup hochgeladen", zap.String("link", link))

	if err := rotateBackups(ctx, s3Client, cfg, logger); err != nil {
		logger.Fatal("Fehler bei der Rotation alter Backups", zap.Error(err))
	}

	logger.Info("Backup-Prozess erfolgreich abgeschlossen")
}

func createDump(cfg *config.Config) ([]byte, error) {
	cmd := exec.Command("pg_dump",
		"-h", cfg.DBHost,
		"-p", fmt.Sprintf("%d", cfg.DBPort),
		"-U", cfg.DBUser,
		"-d", cfg.DBName,
		"-w", // Passwort kommt über PGPASSWORD
	)
	cmd.Env = append(os.Environ(), fmt.Sprintf("PGPASSWORD=%s", cfg.DBPassword))

	stdout, err := cmd.StdoutPipe()
	if err != nil {
		return nil, err
	}
	if err := cmd.Start(); err != nil {
		return nil, err
	}

	var buf bytes.Buffer
	gzipWriter := gzip.NewWriter(&buf)
	if _, err := io.Copy(gzipWriter, stdout); err != nil {
		return nil, err
	}
	if err := gzipWriter.Close(); err != nil {
		return nil, err
	}
	if err := cmd.Wait(); err != nil {
		return nil, err
	}

	return buf.Bytes(), nil
}

// rotateBackups behält die jüngsten KeepBackups Dumps und löscht den Rest.
func rotateBackups(ctx context.Context, client *s3.Client, cfg *config.Config, logger *zap.Logger) error {
	objects, err := storage.ListKeys(ctx, client, cfg.BackupBucket())
	if err != nil {
		return err
	}

	if len(objects) <= cfg.KeepBackups {
		logger.Info("Keine Rotation nötig", zap.Int("backups", len(objects)), zap.Int("keep", cfg.KeepBackups))
		return nil
	}

	for _, obj := range objects[cfg.KeepBackups:] {
		logger.Info("Lösche altes Backup", zap.String("key", obj.Key))
		if err := storage.DeleteObject(ctx, client, cfg.BackupBucket(), obj.Key); err != nil {
			logger.Warn("Fehler beim Löschen", zap.String("key", obj.Key), zap.Error(err))
		}
	}

	return nil
}
