package transfer

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/textproto"
	"os"
	"path"
	"path/filepath"
	"strconv"
	"strings"
	"time"

	"github.com/jlaffaye/ftp"
	"github.com/rs/zerolog"

	"github.com/demon-editor/core/internal/log"
)

const (
	defaultFTPPort    = 21
	defaultFTPTimeout = 10 * time.Second
	copyChunkSize     = 32 * 1024
)

// FTPConfig holds the connection parameters for a receiver's FTP server.
type FTPConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
}

func (c FTPConfig) addr() string {
	port := c.Port
	if port == 0 {
		port = defaultFTPPort
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

func (c FTPConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultFTPTimeout
	}
	return c.Timeout
}

// FTP is a session-scoped client. It is not safe for concurrent use;
// the transfer engine runs one session per task.
type FTP struct {
	cfg  FTPConfig
	conn *ftp.ServerConn
	log  zerolog.Logger
}

// Entry is a directory listing entry.
type Entry struct {
	Name string
	Size uint64
	Dir  bool
	Link string
	Time time.Time
}

// Progress reports byte counts while a file moves. Total is zero when
// the size is unknown up front.
type Progress struct {
	File  string
	Done  int64
	Total int64
}

// ProgressFunc receives progress updates. It must be fast; it is
// called from the transfer loop.
type ProgressFunc func(Progress)

// DialFTP connects and authenticates. The remote working directory is
// left at the server default.
func DialFTP(ctx context.Context, cfg FTPConfig) (*FTP, error) {
	conn, err := ftp.Dial(cfg.addr(),
		ftp.DialWithContext(ctx),
		ftp.DialWithTimeout(cfg.timeout()),
	)
	if err != nil {
		return nil, &TransferError{Op: "dial", File: cfg.addr(), Status: statusOf(err), Err: err}
	}
	if err := conn.Login(cfg.User, cfg.Password); err != nil {
		_ = conn.Quit()
		return nil, &TransferError{Op: "login", File: cfg.addr(), Status: statusOf(err), Err: err}
	}
	return &FTP{cfg: cfg, conn: conn, log: log.WithComponent("transfer.ftp")}, nil
}

// Close logs out and drops the control connection.
func (f *FTP) Close() error {
	return f.conn.Quit()
}

// List returns the typed entries of dir along with the server status.
func (f *FTP) List(dir string) ([]Entry, string, error) {
	raw, err := f.conn.List(dir)
	if err != nil {
		return nil, statusOf(err), &TransferError{Op: "list", File: dir, Status: statusOf(err), Err: err}
	}
	entries := make([]Entry, 0, len(raw))
	for _, e := range raw {
		if e.Name == "." || e.Name == ".." {
			continue
		}
		entries = append(entries, Entry{
			Name: e.Name,
			Size: e.Size,
			Dir:  e.Type == ftp.EntryTypeFolder,
			Link: e.Target,
			Time: e.Time,
		})
	}
	return entries, "226 Transfer complete", nil
}

// Download copies remote to local, creating parent directories as
// needed. Writes go through a temp file so a failed transfer never
// clobbers the previous copy.
func (f *FTP) Download(ctx context.Context, remote, local string, progress ProgressFunc) (string, error) {
	size, _ := f.conn.FileSize(remote)

	resp, err := f.conn.Retr(remote)
	if err != nil {
		return statusOf(err), &TransferError{Op: "download", File: remote, Status: statusOf(err), Err: err}
	}
	defer resp.Close()

	if err := os.MkdirAll(filepath.Dir(local), 0o755); err != nil {
		return "", &TransferError{Op: "download", File: local, Err: err}
	}
	tmp := local + ".part"
	out, err := os.Create(tmp)
	if err != nil {
		return "", &TransferError{Op: "download", File: local, Err: err}
	}

	err = copyChunks(ctx, out, resp, remote, size, progress)
	cerr := out.Close()
	if err == nil {
		err = cerr
	}
	if err != nil {
		_ = os.Remove(tmp)
		return "", &TransferError{Op: "download", File: remote, Err: err}
	}
	if err := os.Rename(tmp, local); err != nil {
		return "", &TransferError{Op: "download", File: local, Err: err}
	}
	f.log.Debug().Str("event", "ftp.download").Str("file", remote).Int64("bytes", size).Msg("file downloaded")
	return "226 Transfer complete", nil
}

// Upload copies local to remote.
func (f *FTP) Upload(ctx context.Context, local, remote string, progress ProgressFunc) (string, error) {
	in, err := os.Open(local)
	if err != nil {
		return "", &TransferError{Op: "upload", File: local, Err: err}
	}
	defer in.Close()

	fi, err := in.Stat()
	if err != nil {
		return "", &TransferError{Op: "upload", File: local, Err: err}
	}

	reader := &progressReader{
		ctx: ctx, r: in, file: remote, total: fi.Size(), progress: progress,
	}
	if err := f.conn.Stor(remote, reader); err != nil {
		if reader.err != nil {
			return "", &TransferError{Op: "upload", File: remote, Err: reader.err}
		}
		return statusOf(err), &TransferError{Op: "upload", File: remote, Status: statusOf(err), Err: err}
	}
	f.log.Debug().Str("event", "ftp.upload").Str("file", remote).Int64("bytes", fi.Size()).Msg("file uploaded")
	return "226 Transfer complete", nil
}

// Delete removes a remote file.
func (f *FTP) Delete(name string) (string, error) {
	if err := f.conn.Delete(name); err != nil {
		return statusOf(err), &TransferError{Op: "delete", File: name, Status: statusOf(err), Err: err}
	}
	return "250 Deleted", nil
}

// MakeDir creates a remote directory.
func (f *FTP) MakeDir(dir string) (string, error) {
	if err := f.conn.MakeDir(dir); err != nil {
		return statusOf(err), &TransferError{Op: "mkdir", File: dir, Status: statusOf(err), Err: err}
	}
	return "257 Created", nil
}

// Rename moves a remote file.
func (f *FTP) Rename(from, to string) (string, error) {
	if err := f.conn.Rename(from, to); err != nil {
		return statusOf(err), &TransferError{Op: "rename", File: from, Status: statusOf(err), Err: err}
	}
	return "250 Renamed", nil
}

// RemoveDirRecursive deletes a remote directory tree.
func (f *FTP) RemoveDirRecursive(dir string) (string, error) {
	if err := f.conn.RemoveDirRecur(dir); err != nil {
		return statusOf(err), &TransferError{Op: "rmdir", File: dir, Status: statusOf(err), Err: err}
	}
	return "250 Removed", nil
}

// UploadDir recursively uploads the contents of localDir under
// remoteDir, creating remote directories on demand. Cancellation is
// observed between files.
func (f *FTP) UploadDir(ctx context.Context, localDir, remoteDir string, progress ProgressFunc) error {
	return filepath.WalkDir(localDir, func(p string, d os.DirEntry, err error) error {
		if err != nil {
			return err
		}
		if cerr := ctx.Err(); cerr != nil {
			return ErrCanceled
		}
		rel, err := filepath.Rel(localDir, p)
		if err != nil {
			return err
		}
		target := path.Join(remoteDir, filepath.ToSlash(rel))
		if d.IsDir() {
			if rel == "." {
				return nil
			}
			_, _ = f.MakeDir(target) // may already exist
			return nil
		}
		_, err = f.Upload(ctx, p, target, progress)
		return err
	})
}

// DownloadDir recursively downloads remoteDir into localDir.
func (f *FTP) DownloadDir(ctx context.Context, remoteDir, localDir string, progress ProgressFunc) error {
	entries, _, err := f.List(remoteDir)
	if err != nil {
		return err
	}
	for _, e := range entries {
		if cerr := ctx.Err(); cerr != nil {
			return ErrCanceled
		}
		remote := path.Join(remoteDir, e.Name)
		local := filepath.Join(localDir, e.Name)
		if e.Dir {
			if err := f.DownloadDir(ctx, remote, local, progress); err != nil {
				return err
			}
			continue
		}
		if _, err := f.Download(ctx, remote, local, progress); err != nil {
			return err
		}
	}
	return nil
}

// Chmod issues SITE CHMOD over a dedicated control connection. The
// listing client keeps no raw-command surface, and receivers accept a
// second short-lived session for this.
func Chmod(cfg FTPConfig, mode os.FileMode, name string) (string, error) {
	conn, err := textproto.Dial("tcp", cfg.addr())
	if err != nil {
		return "", &TransferError{Op: "chmod", File: name, Err: err}
	}
	defer conn.Close()

	steps := []struct {
		cmd  string
		code int
	}{
		{"", 220},
		{"USER " + cfg.User, 331},
		{"PASS " + cfg.Password, 230},
		{fmt.Sprintf("SITE CHMOD %o %s", mode.Perm(), name), 200},
	}
	var code int
	var msg string
	for _, s := range steps {
		if s.cmd != "" {
			if _, err := conn.Cmd("%s", s.cmd); err != nil {
				return "", &TransferError{Op: "chmod", File: name, Err: err}
			}
		}
		code, msg, err = conn.ReadResponse(s.code)
		if err != nil {
			return statusOf(err), &TransferError{Op: "chmod", File: name, Status: statusOf(err), Err: err}
		}
	}
	_, _ = conn.Cmd("QUIT")
	return strconv.Itoa(code) + " " + msg, nil
}

// copyChunks copies in fixed chunks so progress callbacks fire and
// cancellation is honored mid-file.
func copyChunks(ctx context.Context, dst io.Writer, src io.Reader, file string, total int64, progress ProgressFunc) error {
	buf := make([]byte, copyChunkSize)
	var done int64
	for {
		if err := ctx.Err(); err != nil {
			return ErrCanceled
		}
		n, rerr := src.Read(buf)
		if n > 0 {
			if _, werr := dst.Write(buf[:n]); werr != nil {
				return werr
			}
			done += int64(n)
			if progress != nil {
				progress(Progress{File: file, Done: done, Total: total})
			}
		}
		if rerr == io.EOF {
			return nil
		}
		if rerr != nil {
			return rerr
		}
	}
}

// progressReader feeds Stor while counting bytes and watching the
// context. A context hit surfaces through err so the caller can tell
// cancellation from a server fault.
type progressReader struct {
	ctx      context.Context
	r        io.Reader
	file     string
	total    int64
	done     int64
	progress ProgressFunc
	err      error
}

func (p *progressReader) Read(b []byte) (int, error) {
	if err := p.ctx.Err(); err != nil {
		p.err = ErrCanceled
		return 0, ErrCanceled
	}
	n, err := p.r.Read(b)
	if n > 0 {
		p.done += int64(n)
		if p.progress != nil {
			p.progress(Progress{File: p.file, Done: p.done, Total: p.total})
		}
	}
	return n, err
}

// statusOf extracts the server status line from an FTP protocol error.
func statusOf(err error) string {
	var perr *textproto.Error
	if errors.As(err, &perr) {
		return strconv.Itoa(perr.Code) + " " + strings.TrimSpace(perr.Msg)
	}
	return ""
}

// IsNoSuchFile reports whether err is the server's 550 reply, which
// receivers use both for missing files and missing directories.
func IsNoSuchFile(err error) bool {
	var perr *textproto.Error
	return errors.As(err, &perr) && perr.Code == ftp.StatusFileUnavailable
}
