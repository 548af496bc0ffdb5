package database

import (
	"archive/zip"
	"context"
	"errors"
	"fmt"
	"io"
	"io/fs"
	"log/slog"
	"os"
	"path/filepath"
	"slices"
	"strings"
	"time"
)

const (
	backupStamp  = "20060102_150405"
	backupSuffix = "_priceplan.db.zip"
)

// BackupFile is one compressed snapshot in the backup directory.
type BackupFile struct {
	Path  string
	Taken time.Time
	Size  int64
}

func backupName(taken time.Time) string {
	return taken.UTC().Format(backupStamp) + backupSuffix
}

// parseBackupName reports when a backup was taken. Files not named by
// backupName are not backups.
func parseBackupName(name string) (time.Time, bool) {
	stamp, ok := strings.CutSuffix(name, backupSuffix)
	if !ok {
		return time.Time{}, false
	}
	taken, err := time.Parse(backupStamp, stamp)
	if err != nil {
		return time.Time{}, false
	}
	return taken, true
}

func (d *Database) backupDir() string {
	return filepath.Join(filepath.Dir(d.path), "backups")
}

// Backup snapshots the database with VACUUM INTO and keeps it zip
// compressed in the "backups" directory next to the database file.
func (d *Database) Backup(ctx context.Context) error {
	dir := d.backupDir()
	if err := os.MkdirAll(dir, 0755); err != nil {
		return fmt.Errorf("create backup directory: %w", err)
	}

	dest := filepath.Join(dir, backupName(time.Now()))
	snapshot := strings.TrimSuffix(dest, ".zip")
	if _, err := d.write.ExecContext(ctx, "VACUUM INTO ?", snapshot); err != nil {
		return fmt.Errorf("vacuuming database into '%s': %w", snapshot, err)
	}
	defer func() {
		if err := os.Remove(snapshot); err != nil && !errors.Is(err, fs.ErrNotExist) {
			d.logger.Warn("could not remove uncompressed snapshot", slog.String("path", snapshot), slog.Any("error", err))
		}
	}()

	if err := compressFile(snapshot, dest, filepath.Base(d.path)); err != nil {
		return err
	}

	d.logger.Info("database backup complete", slog.String("filename", dest))
	return nil
}

// compressFile deflates src into a single entry zip archive. dest only
// shows up once the archive is complete.
func compressFile(src, dest, entry string) (err error) {
	in, err := os.Open(src)
	if err != nil {
		return fmt.Errorf("open snapshot for compression: %w", err)
	}
	defer in.Close()

	info, err := in.Stat()
	if err != nil {
		return fmt.Errorf("stat snapshot: %w", err)
	}
	header, err := zip.FileInfoHeader(info)
	if err != nil {
		return fmt.Errorf("create zip header: %w", err)
	}
	header.Name = entry
	header.Method = zip.Deflate

	part := dest + ".part"
	out, err := os.Create(part)
	if err != nil {
		return fmt.Errorf("create zip file: %w", err)
	}
	defer func() {
		if err != nil {
			_ = out.Close()
			_ = os.Remove(part)
		}
	}()

	zw := zip.NewWriter(out)
	w, err := zw.CreateHeader(header)
	if err != nil {
		return fmt.Errorf("create zip entry: %w", err)
	}
	if _, err = io.Copy(w, in); err != nil {
		return fmt.Errorf("write snapshot to zip: %w", err)
	}
	if err = zw.Close(); err != nil {
		return fmt.Errorf("finalize zip file: %w", err)
	}
	if err = out.Close(); err != nil {
		return fmt.Errorf("close zip file: %w", err)
	}
	if err = os.Rename(part, dest); err != nil {
		return fmt.Errorf("move zip file into place: %w", err)
	}
	return nil
}

// Backups lists the backup archives, newest first. A missing backup
// directory means there are none.
func (d *Database) Backups() ([]BackupFile, error) {
	dir := d.backupDir()
	entries, err := os.ReadDir(dir)
	if errors.Is(err, fs.ErrNotExist) {
		return nil, nil
	}
	if err != nil {
		return nil, fmt.Errorf("read backup directory: %w", err)
	}

	var backups []BackupFile
	for _, e := range entries {
		taken, ok := parseBackupName(e.Name())
		if !ok || e.IsDir() {
			d.logger.Debug("not a backup file", slog.String("filename", e.Name()))
			continue
		}
		info, err := e.Info()
		if err != nil {
			continue // removed while listing
		}
		backups = append(backups, BackupFile{
			Path:  filepath.Join(dir, e.Name()),
			Taken: taken,
			Size:  info.Size(),
		})
	}
	slices.SortFunc(backups, func(a, b BackupFile) int {
		return b.Taken.Compare(a.Taken)
	})
	return backups, nil
}

// PurgeBackups deletes backups older than retentionDays. Zero or less keeps everything.
func (d *Database) PurgeBackups(ctx context.Context, retentionDays int) error {
	if retentionDays < 1 {
		return nil
	}
	cutoff := time.Now().AddDate(0, 0, -retentionDays)

	backups, err := d.Backups()
	if err != nil {
		return err
	}

	removed := 0
	for _, b := range backups {
		if !b.Taken.Before(cutoff) {
			continue
		}
		if err := ctx.Err(); err != nil {
			return err
		}
		d.logger.Debug("deleting old backup", slog.String("path", b.Path))
		if err := os.Remove(b.Path); err != nil {
			return fmt.Errorf("remove old backup '%s': %w", b.Path, err)
		}
		removed++
	}

	d.logger.Info("backup purge complete", slog.Int("removed", removed), slog.Int("kept", len(backups)-removed))
	return nil
}
