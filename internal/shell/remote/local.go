package remote

import (
	"bytes"
	"context"
	"errors"
	"fmt"
	"os"
	"os/exec"

	"github.com/spf13/afero"
)

// LocalHost is the host name that selects LocalExecutor.
const LocalHost = "localhost"

// LocalExecutor implements Executor on this machine. Filesystem operations go
// through an afero filesystem; commands run under sh -c.
type LocalExecutor struct {
	fs afero.Fs
}

// NewLocalExecutor returns an executor on the OS filesystem.
func NewLocalExecutor() *LocalExecutor {
	return &LocalExecutor{fs: afero.NewOsFs()}
}

// NewLocalExecutorWithFs returns an executor on fs. Symlink operations need
// a filesystem that implements afero.Linker and afero.LinkReader.
func NewLocalExecutorWithFs(fs afero.Fs) *LocalExecutor {
	return &LocalExecutor{fs: fs}
}

func (l *LocalExecutor) Host() string { return LocalHost }

func (l *LocalExecutor) MkdirAll(_ context.Context, dir string) error {
	return l.fs.MkdirAll(dir, 0o755)
}

func (l *LocalExecutor) Mkdir(_ context.Context, dir string) error {
	err := l.fs.Mkdir(dir, 0o755)
	if errors.Is(err, os.ErrExist) {
		return fmt.Errorf("%s: %w", dir, ErrExists)
	}
	return err
}

func (l *LocalExecutor) Exists(_ context.Context, p string) (bool, error) {
	_, err := l.lstat(p)
	if err == nil {
		return true, nil
	}
	if errors.Is(err, os.ErrNotExist) {
		return false, nil
	}
	return false, err
}

func (l *LocalExecutor) RemoveAll(_ context.Context, p string) error {
	return l.fs.RemoveAll(p)
}

func (l *LocalExecutor) Symlink(ctx context.Context, target, link string) error {
	if err := l.RemoveAll(ctx, link); err != nil {
		return err
	}
	linker, ok := l.fs.(afero.Linker)
	if !ok {
		return fmt.Errorf("symlink %s: filesystem does not support symlinks", link)
	}
	return linker.SymlinkIfPossible(target, link)
}

func (l *LocalExecutor) SymlinkReplace(_ context.Context, target, link string) error {
	linker, ok := l.fs.(afero.Linker)
	if !ok {
		return fmt.Errorf("symlink %s: filesystem does not support symlinks", link)
	}
	tmp := link + ".next"
	if err := l.fs.RemoveAll(tmp); err != nil {
		return err
	}
	if err := linker.SymlinkIfPossible(target, tmp); err != nil {
		return err
	}
	if err := l.fs.Rename(tmp, link); err != nil {
		_ = l.fs.Remove(tmp)
		return fmt.Errorf("replace %s: %w", link, err)
	}
	return nil
}

func (l *LocalExecutor) ReadLink(_ context.Context, link string) (string, error) {
	reader, ok := l.fs.(afero.LinkReader)
	if !ok {
		return "", fmt.Errorf("readlink %s: filesystem does not support symlinks", link)
	}
	return reader.ReadlinkIfPossible(link)
}

func (l *LocalExecutor) CheckoutAtTag(ctx context.Context, repository, tag, dir string) error {
	_, err := l.runLine(ctx, checkoutScript(repository, tag, dir), nil)
	return err
}

func (l *LocalExecutor) Run(ctx context.Context, cmd Command) (string, error) {
	return l.runLine(ctx, cmd.String(), cmd.Stdin)
}

func (l *LocalExecutor) ListDir(_ context.Context, dir string) ([]Entry, error) {
	infos, err := afero.ReadDir(l.fs, dir)
	if err != nil {
		return nil, err
	}
	entries := make([]Entry, 0, len(infos))
	for _, info := range infos {
		entries = append(entries, Entry{
			Name:    info.Name(),
			IsDir:   info.IsDir(),
			ModTime: info.ModTime().UTC(),
		})
	}
	return entries, nil
}

func (l *LocalExecutor) ReadFile(_ context.Context, p string) ([]byte, error) {
	return afero.ReadFile(l.fs, p)
}

func (l *LocalExecutor) ReplaceCrontab(ctx context.Context, content []byte) error {
	// No existing crontab is not an error.
	_, _ = l.runLine(ctx, Command{Args: []string{"crontab", "-r"}}.String(), nil)
	_, err := l.runLine(ctx, Command{Args: []string{"crontab", "-"}}.String(), content)
	return err
}

func (l *LocalExecutor) Close() error { return nil }

func (l *LocalExecutor) lstat(p string) (os.FileInfo, error) {
	if lstater, ok := l.fs.(afero.Lstater); ok {
		info, _, err := lstater.LstatIfPossible(p)
		return info, err
	}
	return l.fs.Stat(p)
}

func (l *LocalExecutor) runLine(ctx context.Context, line string, stdin []byte) (string, error) {
	cmd := exec.CommandContext(ctx, "sh", "-c", line)
	if stdin != nil {
		cmd.Stdin = bytes.NewReader(stdin)
	}
	out, err := cmd.CombinedOutput()
	if err != nil {
		code := -1
		var exitErr *exec.ExitError
		if errors.As(err, &exitErr) {
			code = exitErr.ExitCode()
		}
		return string(out), &CommandError{Host: LocalHost, Command: line, ExitCode: code, Output: string(out), Err: err}
	}
	return string(out), nil
}
