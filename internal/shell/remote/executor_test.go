package remote

import (
	"context"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

// =============================================================================
// Command Tests
// =============================================================================

func TestCommand_String(t *testing.T) {
	tests := []struct {
		name string
		cmd  Command
		want string
	}{
		{
			name: "plain",
			cmd:  Command{Args: []string{"mkdir", "-p", "/srv/app/releases"}},
			want: "mkdir -p /srv/app/releases",
		},
		{
			name: "quotes unsafe arguments",
			cmd:  Command{Args: []string{"echo", "a b", "$(rm -rf /)"}},
			want: "echo 'a b' '$(rm -rf /)'",
		},
		{
			name: "directory and environment",
			cmd:  Command{Args: []string{"pip", "install", "-r", "requirements.txt"}, Dir: "/srv/app", Activate: "/srv/venv"},
			want: "cd /srv/app && . /srv/venv/bin/activate && pip install -r requirements.txt",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, tt.cmd.String())
		})
	}
}

func TestCheckoutScript(t *testing.T) {
	script := checkoutScript("git@example.com:app.git", "1.2.0", "/srv/app/releases/1.2.0")

	assert.Equal(t,
		"rm -rf /srv/app/releases/1.2.0.partial && "+
			"git clone --quiet --depth 1 --branch 1.2.0 git@example.com:app.git /srv/app/releases/1.2.0.partial && "+
			"rm -rf /srv/app/releases/1.2.0.partial/.git && "+
			"mv -T /srv/app/releases/1.2.0.partial /srv/app/releases/1.2.0",
		script)
}

func TestCommandError(t *testing.T) {
	err := &CommandError{Host: "web1", Command: "false", ExitCode: 1, Output: "boom\n", Err: errors.New("exit status 1")}

	assert.ErrorIs(t, err, ErrCommandFailed)
	assert.Equal(t, 1, ExitCode(err))
	assert.Equal(t, -1, ExitCode(errors.New("other")))
	assert.Contains(t, err.Error(), "boom")
}

// =============================================================================
// Shell Operations Tests
// =============================================================================

type recordingRunner struct {
	lines []string
	codes map[string]int // command prefix -> exit code
	out   string
}

func (r *recordingRunner) run(_ context.Context, line string, _ []byte) (string, int, error) {
	r.lines = append(r.lines, line)
	for prefix, code := range r.codes {
		if strings.HasPrefix(line, prefix) {
			return r.out, code, nil
		}
	}
	return r.out, 0, nil
}

func TestShellOps_Exists(t *testing.T) {
	r := &recordingRunner{codes: map[string]int{"test": 1}}
	ops := shellOps{host: "web1", run: r.run}

	ok, err := ops.Exists(context.Background(), "/srv/app")
	require.NoError(t, err)
	assert.False(t, ok)

	r.codes["test"] = 2
	_, err = ops.Exists(context.Background(), "/srv/app")
	assert.Error(t, err)

	r.codes = nil
	ok, err = ops.Exists(context.Background(), "/srv/app")
	require.NoError(t, err)
	assert.True(t, ok)
}

func TestShellOps_MkdirExisting(t *testing.T) {
	r := &recordingRunner{codes: map[string]int{"mkdir": 1}}
	ops := shellOps{host: "web1", run: r.run}

	err := ops.Mkdir(context.Background(), "/srv/app/.releaser.lock")

	assert.ErrorIs(t, err, ErrExists)
}

func TestShellOps_SymlinkReplaceUsesRename(t *testing.T) {
	r := &recordingRunner{}
	ops := shellOps{host: "web1", run: r.run}

	require.NoError(t, ops.SymlinkReplace(context.Background(), "/srv/app/releases/1.0.0/src", "/srv/app/src"))

	require.Len(t, r.lines, 1)
	assert.Equal(t, "ln -sfn /srv/app/releases/1.0.0/src /srv/app/src.next && mv -Tf /srv/app/src.next /srv/app/src", r.lines[0])
}

func TestShellOps_ReplaceCrontabIgnoresMissingCrontab(t *testing.T) {
	r := &recordingRunner{codes: map[string]int{"crontab -r": 1}}
	ops := shellOps{host: "web1", run: r.run}

	require.NoError(t, ops.ReplaceCrontab(context.Background(), []byte("* * * * * true\n")))

	assert.Equal(t, []string{"crontab -r", "crontab -"}, r.lines)
}

func TestShellOps_CommandFailureCarriesOutput(t *testing.T) {
	r := &recordingRunner{codes: map[string]int{"cd": 3}, out: "ImportError: no module named x"}
	ops := shellOps{host: "web1", run: r.run}

	_, err := ops.Run(context.Background(), Command{Args: []string{"./manage.py", "migrate"}, Dir: "/srv/app"})

	var cmdErr *CommandError
	require.ErrorAs(t, err, &cmdErr)
	assert.Equal(t, 3, cmdErr.ExitCode)
	assert.Equal(t, "web1", cmdErr.Host)
	assert.Contains(t, cmdErr.Output, "ImportError")
}

func TestParseFindOutput(t *testing.T) {
	out := "1700000000.5000000000\td\t1.0.0\n1700000100.0000000000\tl\tsrc\n"

	entries, err := parseFindOutput(out)

	require.NoError(t, err)
	require.Len(t, entries, 2)
	assert.Equal(t, "1.0.0", entries[0].Name)
	assert.True(t, entries[0].IsDir)
	assert.Equal(t, time.Unix(1700000000, 500000000).UTC(), entries[0].ModTime)
	assert.False(t, entries[1].IsDir)

	_, err = parseFindOutput("garbage\n")
	assert.Error(t, err)
}

// =============================================================================
// Endpoint Tests
// =============================================================================

func TestParseEndpoint(t *testing.T) {
	tests := []struct {
		in   string
		want Endpoint
	}{
		{"red@10.99.88.120", Endpoint{User: "red", Host: "10.99.88.120", Port: 22}},
		{"deploy@web1:2222", Endpoint{User: "deploy", Host: "web1", Port: 2222}},
		{"web1", Endpoint{User: "ops", Host: "web1", Port: 22}},
		{"[::1]:2200", Endpoint{User: "ops", Host: "::1", Port: 2200}},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseEndpoint(tt.in, "ops", 22)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}
}

func TestParseEndpoint_Invalid(t *testing.T) {
	_, err := ParseEndpoint("deploy@web1:notaport", "ops", 22)
	assert.Error(t, err)

	_, err = ParseEndpoint("deploy@", "ops", 22)
	assert.Error(t, err)
}

// =============================================================================
// Pool Tests
// =============================================================================

func TestPool_CachesExecutors(t *testing.T) {
	calls := 0
	pool := NewPool(func(host string) (Executor, error) {
		calls++
		return NewLocalExecutor(), nil
	})

	a, err := pool.Get("localhost")
	require.NoError(t, err)
	b, err := pool.Get("localhost")
	require.NoError(t, err)

	assert.Same(t, a, b)
	assert.Equal(t, 1, calls)
	assert.NoError(t, pool.Close())
}

func TestPool_FactoryError(t *testing.T) {
	pool := NewPool(func(host string) (Executor, error) {
		return nil, errors.New("no key")
	})

	_, err := pool.Get("web1")

	assert.ErrorContains(t, err, "web1")
}

func TestNewFactory_Localhost(t *testing.T) {
	e, err := NewFactory(DefaultSSHConfig())(LocalHost)

	require.NoError(t, err)
	assert.IsType(t, &LocalExecutor{}, e)
}
