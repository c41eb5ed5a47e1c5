package sshadapter

import (
	"fmt"
	"io"
	"path/filepath"
)

// PutFile uploads local content to remotePath, creating parent directories
// first (spec.md §4.3: "transfer a file creating remote directories"). This
// uses a `cat > file` pipe over the same session channel rather than SFTP,
// matching the adapter's "same channel" contract.
func (s *Session) PutFile(content io.Reader, remotePath string, mode string) error {
	dir := filepath.Dir(remotePath)
	if _, err := s.Run(fmt.Sprintf("mkdir -p %q", dir)); err != nil {
		return fmt.Errorf("creating remote directory %s: %w", dir, err)
	}

	sess, err := s.client.NewSession()
	if err != nil {
		return err
	}
	defer sess.Close()

	stdin, err := sess.StdinPipe()
	if err != nil {
		return err
	}

	cmd := fmt.Sprintf("cat > %q && chmod %s %q", remotePath, mode, remotePath)
	if err := sess.Start(cmd); err != nil {
		return err
	}

	if _, err := io.Copy(stdin, content); err != nil {
		_ = stdin.Close()
		return fmt.Errorf("writing remote file %s: %w", remotePath, err)
	}
	if err := stdin.Close(); err != nil {
		return err
	}

	return sess.Wait()
}

// GetFile downloads remotePath's contents.
func (s *Session) GetFile(remotePath string) ([]byte, error) {
	res, err := s.Run(fmt.Sprintf("cat %q", remotePath))
	if err != nil {
		return nil, err
	}
	if res.ExitCode != 0 {
		return nil, fmt.Errorf("reading remote file %s: exit %d: %s", remotePath, res.ExitCode, res.Stderr)
	}
	return []byte(res.Stdout), nil
}
