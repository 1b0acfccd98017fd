package remote

import (
	"bufio"
	"context"
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// =============================================================================
// Shell Operations
// =============================================================================

// runFunc runs one shell line on a host and returns combined output and the
// exit code. err is non-nil only when the command could not be run or did
// not exit normally; a non-zero exit is reported through the exit code.
type runFunc func(ctx context.Context, line string, stdin []byte) (output string, exitCode int, err error)

// shellOps implements the filesystem half of Executor with POSIX commands.
// SSHExecutor embeds it; every operation is one round trip.
type shellOps struct {
	host string
	run  runFunc
}

func (s shellOps) exec(ctx context.Context, cmd Command) (string, error) {
	return s.execLine(ctx, cmd.String(), cmd.Stdin)
}

func (s shellOps) execLine(ctx context.Context, line string, stdin []byte) (string, error) {
	out, code, err := s.run(ctx, line, stdin)
	if err != nil || code != 0 {
		if err == nil {
			err = fmt.Errorf("exit status %d", code)
		}
		return out, &CommandError{Host: s.host, Command: line, ExitCode: code, Output: out, Err: err}
	}
	return out, nil
}

func (s shellOps) Host() string { return s.host }

func (s shellOps) MkdirAll(ctx context.Context, dir string) error {
	_, err := s.exec(ctx, Command{Args: []string{"mkdir", "-p", dir}})
	return err
}

func (s shellOps) Mkdir(ctx context.Context, dir string) error {
	_, err := s.exec(ctx, Command{Args: []string{"mkdir", dir}})
	if err == nil {
		return nil
	}
	if exists, existsErr := s.Exists(ctx, dir); existsErr == nil && exists {
		return fmt.Errorf("%s: %w", dir, ErrExists)
	}
	return err
}

func (s shellOps) Exists(ctx context.Context, p string) (bool, error) {
	_, err := s.exec(ctx, Command{Args: []string{"test", "-e", p, "-o", "-L", p}})
	if err == nil {
		return true, nil
	}
	if ExitCode(err) == 1 {
		return false, nil
	}
	return false, err
}

func (s shellOps) RemoveAll(ctx context.Context, p string) error {
	_, err := s.exec(ctx, Command{Args: []string{"rm", "-rf", p}})
	return err
}

func (s shellOps) Symlink(ctx context.Context, target, link string) error {
	if err := s.RemoveAll(ctx, link); err != nil {
		return err
	}
	_, err := s.exec(ctx, Command{Args: []string{"ln", "-s", target, link}})
	return err
}

func (s shellOps) SymlinkReplace(ctx context.Context, target, link string) error {
	tmp := link + ".next"
	line := strings.Join([]string{
		Command{Args: []string{"ln", "-sfn", target, tmp}}.String(),
		Command{Args: []string{"mv", "-Tf", tmp, link}}.String(),
	}, " && ")
	_, err := s.execLine(ctx, line, nil)
	return err
}

func (s shellOps) ReadLink(ctx context.Context, link string) (string, error) {
	out, err := s.exec(ctx, Command{Args: []string{"readlink", link}})
	if err != nil {
		return "", err
	}
	return strings.TrimSpace(out), nil
}

func (s shellOps) CheckoutAtTag(ctx context.Context, repository, tag, dir string) error {
	_, err := s.execLine(ctx, checkoutScript(repository, tag, dir), nil)
	return err
}

func (s shellOps) Run(ctx context.Context, cmd Command) (string, error) {
	return s.exec(ctx, cmd)
}

func (s shellOps) ListDir(ctx context.Context, dir string) ([]Entry, error) {
	out, err := s.exec(ctx, Command{Args: []string{
		"find", dir, "-mindepth", "1", "-maxdepth", "1", "-printf", `%T@\t%y\t%f\n`,
	}})
	if err != nil {
		return nil, err
	}
	return parseFindOutput(out)
}

func (s shellOps) ReadFile(ctx context.Context, p string) ([]byte, error) {
	out, err := s.exec(ctx, Command{Args: []string{"cat", p}})
	if err != nil {
		return nil, err
	}
	return []byte(out), nil
}

func (s shellOps) ReplaceCrontab(ctx context.Context, content []byte) error {
	// crontab -r fails when there is no crontab yet; that is fine.
	_, _, err := s.run(ctx, Command{Args: []string{"crontab", "-r"}}.String(), nil)
	if err != nil {
		return err
	}
	_, err = s.exec(ctx, Command{Args: []string{"crontab", "-"}, Stdin: content})
	return err
}

// parseFindOutput parses lines of "<epoch.frac>\t<type>\t<name>".
func parseFindOutput(out string) ([]Entry, error) {
	var entries []Entry
	sc := bufio.NewScanner(strings.NewReader(out))
	for sc.Scan() {
		line := sc.Text()
		if line == "" {
			continue
		}
		fields := strings.SplitN(line, "\t", 3)
		if len(fields) != 3 {
			return nil, fmt.Errorf("unexpected listing line %q", line)
		}
		secs, err := strconv.ParseFloat(fields[0], 64)
		if err != nil {
			return nil, fmt.Errorf("parse modification time %q: %w", fields[0], err)
		}
		whole, frac := math.Modf(secs)
		entries = append(entries, Entry{
			Name:    fields[2],
			IsDir:   fields[1] == "d",
			ModTime: time.Unix(int64(whole), int64(frac*1e9)).UTC(),
		})
	}
	if err := sc.Err(); err != nil {
		return nil, fmt.Errorf("read listing: %w", err)
	}
	return entries, nil
}
