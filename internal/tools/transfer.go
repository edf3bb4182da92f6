package tools

import (
	"context"
	"fmt"
	"strings"

	"github.com/rileyhilliard/sshman/internal/config"
	"github.com/rileyhilliard/sshman/internal/errors"
)

// TransferResult describes a finished upload or download.
type TransferResult struct {
	Server  string `json:"server"`
	Local   string `json:"local"`
	Remote  string `json:"remote"`
	Message string `json:"message"`
}

// Upload copies localPath to remotePath on server.
func (s *Service) Upload(ctx context.Context, server, localPath, remotePath string) (TransferResult, error) {
	if err := requirePaths(localPath, remotePath); err != nil {
		return TransferResult{}, err
	}
	rec, err := s.resolve(server)
	if err != nil {
		return TransferResult{}, err
	}
	session, err := s.connect(ctx, rec)
	if err != nil {
		return TransferResult{}, err
	}

	local := config.ExpandTilde(localPath)
	remote := config.ExpandRemote(remotePath)
	if err := session.PutFile(ctx, local, remote); err != nil {
		err = transferError(err, fmt.Sprintf("Upload of %s to %s:%s failed", local, rec.Name, remote))
		s.fireError(ctx, rec.Name, "upload", err)
		return TransferResult{}, err
	}

	s.log.Info("uploaded %s to %s:%s", local, rec.Name, remote)
	return TransferResult{
		Server:  rec.Name,
		Local:   local,
		Remote:  remote,
		Message: "File uploaded successfully",
	}, nil
}

// Download copies remotePath on server to localPath.
func (s *Service) Download(ctx context.Context, server, remotePath, localPath string) (TransferResult, error) {
	if err := requirePaths(localPath, remotePath); err != nil {
		return TransferResult{}, err
	}
	rec, err := s.resolve(server)
	if err != nil {
		return TransferResult{}, err
	}
	session, err := s.connect(ctx, rec)
	if err != nil {
		return TransferResult{}, err
	}

	local := config.ExpandTilde(localPath)
	remote := config.ExpandRemote(remotePath)
	if err := session.GetFile(ctx, remote, local); err != nil {
		err = transferError(err, fmt.Sprintf("Download of %s:%s to %s failed", rec.Name, remote, local))
		s.fireError(ctx, rec.Name, "download", err)
		return TransferResult{}, err
	}

	s.log.Info("downloaded %s:%s to %s", rec.Name, remote, local)
	return TransferResult{
		Server:  rec.Name,
		Local:   local,
		Remote:  remote,
		Message: "File downloaded successfully",
	}, nil
}

func requirePaths(local, remote string) error {
	if strings.TrimSpace(local) == "" || strings.TrimSpace(remote) == "" {
		return errors.New(errors.ErrExec,
			"Both a local and a remote path are required", "")
	}
	return nil
}

func transferError(err error, message string) error {
	if errors.CodeOf(err) != "" {
		return err
	}
	return errors.WrapWithCode(err, errors.ErrExec, message, "")
}
