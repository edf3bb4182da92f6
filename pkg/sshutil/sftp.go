package sshutil

import (
	"context"
	"fmt"
	"io"
	"os"
	"path"
	"path/filepath"
	"strings"

	"github.com/pkg/sftp"
	"github.com/rileyhilliard/sshman/internal/errors"
)

// sftpClient opens the SFTP subsystem on first use and reuses it.
func (c *Client) sftpClient() (*sftp.Client, error) {
	c.sftpMu.Lock()
	defer c.sftpMu.Unlock()

	if c.sftp != nil {
		return c.sftp, nil
	}
	client, err := sftp.NewClient(c.ssh)
	if err != nil {
		return nil, errors.WrapWithCode(err, errors.ErrSSH,
			fmt.Sprintf("Couldn't start SFTP on '%s'", c.Name),
			"Make sure the server has the sftp subsystem enabled (Subsystem sftp in sshd_config).")
	}
	c.sftp = client
	return client, nil
}

// PutFile uploads localPath to remotePath, keeping the local permission bits.
func (c *Client) PutFile(ctx context.Context, localPath, remotePath string) error {
	client, err := c.sftpClient()
	if err != nil {
		return err
	}

	src, err := os.Open(localPath)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrExec,
			"Can't open local file "+localPath,
			"Check the path exists and is readable.")
	}
	defer src.Close()

	info, err := src.Stat()
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrExec, "Can't stat local file "+localPath, "")
	}
	if info.IsDir() {
		return errors.New(errors.ErrExec,
			localPath+" is a directory",
			"Upload files one at a time.")
	}

	remotePath = sftpPath(remotePath)
	if dir := path.Dir(remotePath); dir != "." && dir != "/" {
		if err := client.MkdirAll(dir); err != nil {
			return errors.WrapWithCode(err, errors.ErrExec,
				fmt.Sprintf("Couldn't create %s on '%s'", dir, c.Name),
				"Check the remote user can write there, or deploy with sudo.")
		}
	}

	dst, err := client.Create(remotePath)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrExec,
			fmt.Sprintf("Couldn't create %s on '%s'", remotePath, c.Name),
			"Check the remote user can write there, or deploy with sudo.")
	}

	if _, err := io.Copy(dst, &ctxReader{ctx: ctx, r: src}); err != nil {
		dst.Close()
		return c.transferError(ctx, err, "upload "+localPath)
	}
	_ = dst.Chmod(info.Mode().Perm())
	if err := dst.Close(); err != nil {
		return c.transferError(ctx, err, "upload "+localPath)
	}
	return nil
}

// GetFile downloads remotePath to localPath, creating local parent directories.
func (c *Client) GetFile(ctx context.Context, remotePath, localPath string) error {
	client, err := c.sftpClient()
	if err != nil {
		return err
	}

	remotePath = sftpPath(remotePath)
	src, err := client.Open(remotePath)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrExec,
			fmt.Sprintf("Couldn't open %s on '%s'", remotePath, c.Name),
			"Check the path exists and the remote user can read it.")
	}
	defer src.Close()

	if err := os.MkdirAll(filepath.Dir(localPath), 0o755); err != nil {
		return errors.WrapWithCode(err, errors.ErrExec,
			"Couldn't create "+filepath.Dir(localPath), "")
	}

	dst, err := os.Create(localPath)
	if err != nil {
		return errors.WrapWithCode(err, errors.ErrExec,
			"Couldn't create local file "+localPath, "")
	}

	if _, err := io.Copy(dst, &ctxReader{ctx: ctx, r: src}); err != nil {
		dst.Close()
		os.Remove(localPath)
		return c.transferError(ctx, err, "download "+remotePath)
	}
	return dst.Close()
}

func (c *Client) transferError(ctx context.Context, err error, what string) error {
	if ctx.Err() != nil && isTimeout(ctx.Err()) {
		return errors.WrapWithCode(err, errors.ErrTimeout,
			fmt.Sprintf("Timed out trying to %s on '%s'", what, c.Name),
			"Raise command_timeout in settings.yaml for large files.")
	}
	return errors.WrapWithCode(err, errors.ErrExec,
		fmt.Sprintf("Failed to %s on '%s'", what, c.Name),
		"The connection may have dropped. Try again.")
}

// ctxReader stops a copy once ctx is done.
type ctxReader struct {
	ctx context.Context
	r   io.Reader
}

func (cr *ctxReader) Read(p []byte) (int, error) {
	if err := cr.ctx.Err(); err != nil {
		return 0, err
	}
	return cr.r.Read(p)
}

// sftpPath rewrites ~/x to x. SFTP doesn't expand tilde, but relative paths
// start in the login directory.
func sftpPath(p string) string {
	if p == "~" {
		return "."
	}
	if rest, ok := strings.CutPrefix(p, "~/"); ok {
		return rest
	}
	return p
}
