package controller

import (
	"archive/zip"
	"context"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"
)

// BackupDataDir zips the flat contents of dir into
// <backupDir>/<profile>/<timestamp>.zip and returns the archive path.
func BackupDataDir(dir, backupDir, profile string) (string, error) {
	target := filepath.Join(backupDir, profile)
	if err := ensureDir(target); err != nil {
		return "", err
	}
	path := filepath.Join(target, time.Now().Format("2006-01-02_15-04-05")+".zip")

	entries, err := os.ReadDir(dir)
	if err != nil {
		return "", err
	}

	out, err := os.Create(path)
	if err != nil {
		return "", err
	}
	zw := zip.NewWriter(out)

	for _, e := range entries {
		if e.IsDir() {
			continue
		}
		if err := addToZip(zw, filepath.Join(dir, e.Name()), e.Name()); err != nil {
			_ = zw.Close()
			_ = out.Close()
			_ = os.Remove(path)
			return "", err
		}
	}
	if err := zw.Close(); err != nil {
		_ = out.Close()
		return "", err
	}
	if err := out.Close(); err != nil {
		return "", err
	}
	return path, nil
}

func addToZip(zw *zip.Writer, path, name string) error {
	in, err := os.Open(path)
	if err != nil {
		return err
	}
	defer in.Close()
	w, err := zw.Create(name)
	if err != nil {
		return err
	}
	_, err = io.Copy(w, in)
	return err
}

// RestoreBackup unpacks a backup archive over the data directory.
// An existing satellites.xml is kept; backups predate satellite edits
// and must not roll them back.
func RestoreBackup(archive, dir string) error {
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer zr.Close()

	if err := ensureDir(dir); err != nil {
		return err
	}
	_, satErr := os.Stat(filepath.Join(dir, "satellites.xml"))
	keepSatellites := satErr == nil

	for _, f := range zr.File {
		name := filepath.Base(f.Name)
		if name == "satellites.xml" && keepSatellites {
			continue
		}
		if f.FileInfo().IsDir() || strings.Contains(f.Name, "..") {
			continue
		}
		if err := extractZipFile(f, filepath.Join(dir, name)); err != nil {
			return err
		}
	}
	return nil
}

func extractZipFile(f *zip.File, dst string) error {
	in, err := f.Open()
	if err != nil {
		return err
	}
	defer in.Close()
	out, err := os.Create(dst)
	if err != nil {
		return err
	}
	_, err = io.Copy(out, in)
	cerr := out.Close()
	if err == nil {
		err = cerr
	}
	return err
}

// Backups lists the profile's backup archives, newest last.
func (c *Controller) Backups() ([]string, error) {
	c.mu.Lock()
	dir := filepath.Join(c.profile.Local.Backup, c.profileName)
	c.mu.Unlock()

	entries, err := os.ReadDir(dir)
	if err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	var out []string
	for _, e := range entries {
		if !e.IsDir() && strings.HasSuffix(e.Name(), ".zip") {
			out = append(out, filepath.Join(dir, e.Name()))
		}
	}
	return out, nil
}

// Restore rolls the data directory back to a named backup and reloads
// the model.
func (c *Controller) Restore(ctx context.Context, archive string) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if err := RestoreBackup(archive, c.profile.Local.Data); err != nil {
		return err
	}
	return c.openDir(ctx, c.profile.Local.Data)
}

// OpenArchive extracts a zipped configuration into a scratch directory
// and loads it as the current model. The profile's own data directory
// is untouched until Save.
func (c *Controller) OpenArchive(ctx context.Context, archive string) error {
	tmp, err := os.MkdirTemp("", "demonedit-archive-*")
	if err != nil {
		return err
	}
	// Scratch files stay around while the model is open; the OS temp
	// cleaner owns them after that.
	zr, err := zip.OpenReader(archive)
	if err != nil {
		return err
	}
	defer zr.Close()
	for _, f := range zr.File {
		if f.FileInfo().IsDir() || strings.Contains(f.Name, "..") {
			continue
		}
		if err := extractZipFile(f, filepath.Join(tmp, filepath.Base(f.Name))); err != nil {
			return err
		}
	}

	c.mu.Lock()
	defer c.mu.Unlock()
	if err := c.openDir(ctx, tmp); err != nil {
		return fmt.Errorf("controller: archive %s: %w", archive, err)
	}
	return nil
}
