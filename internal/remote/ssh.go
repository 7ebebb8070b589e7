package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"io"
	"net"
	"os"
	"path"
	"path/filepath"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/mitchellh/go-homedir"
	"github.com/pkg/sftp"
	"github.com/rs/zerolog"
	"golang.org/x/crypto/ssh"
	"golang.org/x/crypto/ssh/agent"
	"golang.org/x/crypto/ssh/knownhosts"
	"golang.org/x/term"

	"github.com/theblitlabs/parity-provision/pkg/logger"
)

// SSHConfig holds what is needed to reach one host.
type SSHConfig struct {
	Address               string
	User                  string
	KeyFile               string
	KnownHosts            string
	InsecureIgnoreHostKey bool
	DialTimeout           time.Duration
}

// SSHExecutor runs commands over a single SSH connection.
type SSHExecutor struct {
	client *ssh.Client
	addr   string
	log    zerolog.Logger

	Stdout io.Writer
	Stderr io.Writer
	Stdin  *os.File
}

// DialSSH connects and authenticates.
func DialSSH(ctx context.Context, cfg SSHConfig) (*SSHExecutor, error) {
	auth, err := authMethods(cfg.KeyFile)
	if err != nil {
		return nil, err
	}

	hostKeyCallback, err := hostKeyCallback(cfg)
	if err != nil {
		return nil, err
	}

	timeout := cfg.DialTimeout
	if timeout == 0 {
		timeout = 30 * time.Second
	}

	clientConfig := &ssh.ClientConfig{
		User:            cfg.User,
		Auth:            auth,
		HostKeyCallback: hostKeyCallback,
		Timeout:         timeout,
	}

	dialCtx, cancel := context.WithTimeout(ctx, timeout)
	defer cancel()

	var d net.Dialer
	conn, err := d.DialContext(dialCtx, "tcp", cfg.Address)
	if err != nil {
		return nil, fmt.Errorf("failed to dial %s: %w", cfg.Address, err)
	}

	c, chans, reqs, err := ssh.NewClientConn(conn, cfg.Address, clientConfig)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("ssh handshake with %s failed: %w", cfg.Address, err)
	}

	log := logger.WithComponent("ssh")
	log.Debug().Str("address", cfg.Address).Str("user", cfg.User).Msg("Connected")

	return &SSHExecutor{
		client: ssh.NewClient(c, chans, reqs),
		addr:   cfg.Address,
		log:    log,
		Stdout: os.Stdout,
		Stderr: os.Stderr,
		Stdin:  os.Stdin,
	}, nil
}

func authMethods(keyFile string) ([]ssh.AuthMethod, error) {
	var methods []ssh.AuthMethod

	if keyFile != "" {
		pem, err := os.ReadFile(keyFile)
		if err != nil {
			return nil, fmt.Errorf("failed to read key file: %w", err)
		}
		signer, err := ssh.ParsePrivateKey(pem)
		if err != nil {
			return nil, fmt.Errorf("failed to parse key file %s: %w", keyFile, err)
		}
		methods = append(methods, ssh.PublicKeys(signer))
	}

	if sock := os.Getenv("SSH_AUTH_SOCK"); sock != "" {
		if conn, err := net.Dial("unix", sock); err == nil {
			methods = append(methods, ssh.PublicKeysCallback(agent.NewClient(conn).Signers))
		}
	}

	if len(methods) == 0 {
		return nil, errors.New("no ssh key file configured and no agent available")
	}
	return methods, nil
}

func hostKeyCallback(cfg SSHConfig) (ssh.HostKeyCallback, error) {
	if cfg.InsecureIgnoreHostKey {
		return ssh.InsecureIgnoreHostKey(), nil
	}
	file := cfg.KnownHosts
	if file == "" {
		file = "~/.ssh/known_hosts"
	}
	file, err := homedir.Expand(file)
	if err != nil {
		return nil, err
	}
	cb, err := knownhosts.New(file)
	if err != nil {
		return nil, fmt.Errorf("failed to load known hosts %s: %w", file, err)
	}
	return cb, nil
}

// Run executes cmd and waits for it. A non-zero exit is a *CommandError.
func (e *SSHExecutor) Run(ctx context.Context, cmd *Command) (*Result, error) {
	if err := cmd.Validate(); err != nil {
		return nil, err
	}

	line := cmd.String()
	event := e.log.Info()
	if cmd.IsQuiet() {
		event = e.log.Debug()
	}
	shown := cmd.Display()
	event.Str("host", e.addr).Str("mode", cmd.Mode().String()).Msg(shown)

	session, err := e.client.NewSession()
	if err != nil {
		return nil, fmt.Errorf("failed to open session: %w", err)
	}
	defer session.Close()

	var out bytes.Buffer
	stdout := io.Writer(&out)
	stderr := io.Writer(&out)
	if !cmd.IsQuiet() {
		stdout = io.MultiWriter(&out, e.Stdout)
		stderr = io.MultiWriter(&out, e.Stderr)
	}
	session.Stdout = stdout
	session.Stderr = stderr

	if cmd.IsInteractive() {
		restore, err := e.attachTerminal(session)
		if err != nil {
			return nil, err
		}
		defer restore()
	} else if cmd.WantsPTY() {
		modes := ssh.TerminalModes{ssh.ECHO: 0, ssh.TTY_OP_ISPEED: 14400, ssh.TTY_OP_OSPEED: 14400}
		if err := session.RequestPty("xterm", 40, 200, modes); err != nil {
			return nil, fmt.Errorf("failed to request pty: %w", err)
		}
	}

	done := make(chan struct{})
	defer close(done)
	go func() {
		select {
		case <-ctx.Done():
			_ = session.Signal(ssh.SIGINT)
			session.Close()
		case <-done:
		}
	}()

	err = session.Run(line)
	res := &Result{Command: shown, Stdout: out.String()}
	if err == nil {
		return res, nil
	}

	if ctx.Err() != nil {
		return nil, ctx.Err()
	}

	var exitErr *ssh.ExitError
	if errors.As(err, &exitErr) {
		res.ExitCode = exitErr.ExitStatus()
		return res, &CommandError{Command: shown, ExitCode: res.ExitCode, Output: res.Stdout}
	}
	return nil, fmt.Errorf("remote command %q failed: %w", shown, err)
}

func (e *SSHExecutor) attachTerminal(session *ssh.Session) (func(), error) {
	session.Stdin = e.Stdin
	fd := int(e.Stdin.Fd())
	if !term.IsTerminal(fd) {
		return func() {}, nil
	}

	w, h, err := term.GetSize(fd)
	if err != nil {
		w, h = 200, 40
	}
	if err := session.RequestPty("xterm", h, w, ssh.TerminalModes{ssh.ECHO: 1}); err != nil {
		return nil, fmt.Errorf("failed to request pty: %w", err)
	}
	state, err := term.MakeRaw(fd)
	if err != nil {
		return nil, fmt.Errorf("failed to set raw mode: %w", err)
	}
	return func() { _ = term.Restore(fd, state) }, nil
}

// Put uploads a local file. A remotePath ending in "/" names a directory.
func (e *SSHExecutor) Put(ctx context.Context, localPath, remotePath string, opts PutOptions) error {
	e.log.Info().Str("host", e.addr).Str("local", localPath).Str("remote", remotePath).Bool("sudo", opts.UseSudo).Msg("put")

	src, err := os.Open(localPath)
	if err != nil {
		return fmt.Errorf("failed to open %s: %w", localPath, err)
	}
	defer src.Close()

	client, err := sftp.NewClient(e.client)
	if err != nil {
		return fmt.Errorf("failed to start sftp: %w", err)
	}
	defer client.Close()

	if strings.HasSuffix(remotePath, "/") {
		remotePath = path.Join(remotePath, filepath.Base(localPath))
	}

	dest := remotePath
	if opts.UseSudo {
		dest = path.Join("/tmp", uuid.NewString()+"-"+filepath.Base(localPath))
	} else if fi, err := client.Stat(remotePath); err == nil && fi.IsDir() {
		dest = path.Join(remotePath, filepath.Base(localPath))
	}

	dst, err := client.Create(dest)
	if err != nil {
		return fmt.Errorf("failed to create remote %s: %w", dest, err)
	}
	if _, err := io.Copy(dst, src); err != nil {
		dst.Close()
		return fmt.Errorf("failed to upload %s: %w", localPath, err)
	}
	if err := dst.Close(); err != nil {
		return err
	}

	if opts.UseSudo {
		if _, err := e.Run(ctx, Cmd("mv", dest, remotePath).Sudo()); err != nil {
			return fmt.Errorf("failed to move upload into place: %w", err)
		}
	}
	return nil
}

// Get downloads a remote file, creating local parent directories.
func (e *SSHExecutor) Get(ctx context.Context, remotePath, localPath string) error {
	e.log.Info().Str("host", e.addr).Str("remote", remotePath).Str("local", localPath).Msg("get")

	client, err := sftp.NewClient(e.client)
	if err != nil {
		return fmt.Errorf("failed to start sftp: %w", err)
	}
	defer client.Close()

	src, err := client.Open(remotePath)
	if err != nil {
		return fmt.Errorf("failed to open remote %s: %w", remotePath, err)
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return err
	}
	dst, err := os.Create(localPath)
	if err != nil {
		return err
	}
	defer dst.Close()

	if _, err := io.Copy(dst, src); err != nil {
		return fmt.Errorf("failed to download %s: %w", remotePath, err)
	}
	return nil
}

func (e *SSHExecutor) Close() error {
	return e.client.Close()
}
