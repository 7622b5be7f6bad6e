package transfer

import (
	"context"
	"errors"
	"fmt"
	"net"
	"strings"
	"time"

	"github.com/rs/zerolog"
	"github.com/ziutek/telnet"

	"github.com/demon-editor/core/internal/log"
)

const (
	defaultTelnetPort    = 23
	defaultTelnetTimeout = 5 * time.Second

	// telnetQuietPeriod is how long the session waits for the box to
	// stop talking after each command before moving on. Receivers echo
	// shutdown chatter for a while after "init 4".
	telnetQuietPeriod = 5 * time.Second
)

// TelnetConfig holds the connection parameters for a receiver's
// Telnet service.
type TelnetConfig struct {
	Host     string
	Port     int
	User     string
	Password string
	Timeout  time.Duration
}

func (c TelnetConfig) addr() string {
	port := c.Port
	if port == 0 {
		port = defaultTelnetPort
	}
	return fmt.Sprintf("%s:%d", c.Host, port)
}

func (c TelnetConfig) timeout() time.Duration {
	if c.Timeout <= 0 {
		return defaultTelnetTimeout
	}
	return c.Timeout
}

// TelnetSession is a logged-in shell on the receiver. Commands are
// executed one at a time; each waits out the box's output before the
// next is sent.
type TelnetSession struct {
	conn  *telnet.Conn
	quiet time.Duration
	log   zerolog.Logger
}

// DialTelnet connects and walks the login/password prompts. Boxes
// without a password skip the second prompt, which shows up as a
// timeout we tolerate.
func DialTelnet(ctx context.Context, cfg TelnetConfig) (*TelnetSession, error) {
	conn, err := telnet.DialTimeout("tcp", cfg.addr(), cfg.timeout())
	if err != nil {
		return nil, &TransferError{Op: "telnet", File: cfg.addr(), Err: err}
	}
	conn.SetUnixWriteMode(true)

	s := &TelnetSession{conn: conn, quiet: telnetQuietPeriod, log: log.WithComponent("transfer.telnet")}
	if err := s.login(ctx, cfg); err != nil {
		_ = conn.Close()
		return nil, err
	}
	return s, nil
}

func (s *TelnetSession) login(ctx context.Context, cfg TelnetConfig) error {
	deadline := time.Now().Add(cfg.timeout())
	if d, ok := ctx.Deadline(); ok && d.Before(deadline) {
		deadline = d
	}
	if err := s.conn.SetReadDeadline(deadline); err != nil {
		return &TransferError{Op: "telnet", File: cfg.addr(), Err: err}
	}

	if err := s.conn.SkipUntil("login: ", "Login: "); err != nil {
		return &TransferError{Op: "telnet login", File: cfg.addr(), Err: err}
	}
	if err := s.send(cfg.User); err != nil {
		return err
	}
	// Passwordless boxes drop straight to the shell.
	if cfg.Password != "" {
		if err := s.conn.SkipUntil("Password: ", "password: "); err != nil {
			if !isTimeout(err) {
				return &TransferError{Op: "telnet login", File: cfg.addr(), Err: err}
			}
		} else if err := s.send(cfg.Password); err != nil {
			return err
		}
	}
	s.drain()
	s.log.Debug().Str("event", "telnet.login").Str("host", cfg.Host).Msg("telnet session established")
	return nil
}

// Exec sends one shell command and waits out the quiet period.
func (s *TelnetSession) Exec(ctx context.Context, cmd string) error {
	if err := ctx.Err(); err != nil {
		return ErrCanceled
	}
	s.log.Debug().Str("event", "telnet.exec").Str("cmd", cmd).Msg("sending command")
	if err := s.send(cmd); err != nil {
		return err
	}
	s.drain()
	return nil
}

// Close ends the remote shell and the connection.
func (s *TelnetSession) Close() error {
	_ = s.send("exit")
	return s.conn.Close()
}

func (s *TelnetSession) send(line string) error {
	if _, err := s.conn.Write([]byte(line + "\n")); err != nil {
		return &TransferError{Op: "telnet", File: line, Err: err}
	}
	return nil
}

// drain reads until the box has been silent for the quiet period.
func (s *TelnetSession) drain() {
	for {
		if err := s.conn.SetReadDeadline(time.Now().Add(s.quiet)); err != nil {
			return
		}
		if _, err := s.conn.ReadByte(); err != nil {
			return
		}
	}
}

func isTimeout(err error) bool {
	var nerr net.Error
	return errors.As(err, &nerr) && nerr.Timeout()
}

// StopServices halts the receiver's service layer before settings are
// replaced. Both Enigma2 and Neutrino use SysV runlevel 4 for this.
func StopServices(ctx context.Context, s *TelnetSession) error {
	return s.Exec(ctx, "init 4")
}

// StartServices restarts the service layer after an upload. Enigma2
// boots back into runlevel 3; Neutrino uses 6.
func StartServices(ctx context.Context, s *TelnetSession, neutrino bool) error {
	cmd := "init 3"
	if neutrino {
		cmd = "init 6"
	}
	return s.Exec(ctx, cmd)
}

// ReloadHTTP asks the box itself to hit its local web API reload
// endpoint, for firmwares whose web server stays up across init 4.
func ReloadHTTP(ctx context.Context, s *TelnetSession, port int, user, password string) error {
	auth := ""
	if user != "" {
		auth = fmt.Sprintf("--user=%s --password=%s ", user, password)
	}
	url := fmt.Sprintf("http://127.0.0.1:%d/web/servicelistreload?mode=0", port)
	return s.Exec(ctx, strings.TrimSpace(fmt.Sprintf("wget -qO- %s%s", auth, url)))
}
