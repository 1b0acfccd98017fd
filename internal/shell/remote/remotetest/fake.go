// Package remotetest provides an in-memory remote.Executor for tests.
package remotetest

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path"
	"sort"
	"strings"
	"sync"
	"time"

	"github.com/artpar/releaser/internal/shell/remote"
)

type nodeKind int

const (
	kindDir nodeKind = iota
	kindFile
	kindLink
)

type node struct {
	kind    nodeKind
	data    []byte
	target  string
	modTime time.Time
}

// Effect simulates what a command does to the filesystem.
type Effect func(f *FakeExecutor, cmd remote.Command)

type opFailure struct {
	op   string
	path string
	err  error
}

// FakeExecutor is an in-memory filesystem with a command recorder.
// Every created or modified path gets a strictly increasing modification time.
type FakeExecutor struct {
	HostName string

	// CheckoutFiles are created, relative to the checkout directory, by
	// every CheckoutAtTag call.
	CheckoutFiles map[string]string

	// Effects run after a successful command, keyed by its first argument.
	Effects map[string]Effect

	mu           sync.Mutex
	nodes        map[string]*node
	now          time.Time
	commands     []remote.Command
	checkouts    []string
	crontab      []byte
	opFailures   []opFailure
	cmdFailures  map[string]error
	cmdOutputs   map[string]string
	crontabCalls int
}

// NewFakeExecutor returns an empty fake. "virtualenv <dir>" creates dir.
func NewFakeExecutor(host string) *FakeExecutor {
	return &FakeExecutor{
		HostName:      host,
		CheckoutFiles: map[string]string{"src/requirements.txt": "flask\n"},
		Effects: map[string]Effect{
			"virtualenv": func(f *FakeExecutor, cmd remote.Command) {
				f.mkdirAll(cmd.Args[len(cmd.Args)-1])
			},
		},
		nodes:       map[string]*node{"/": {kind: kindDir}, ".": {kind: kindDir}},
		now:         time.Date(2024, 1, 1, 0, 0, 0, 0, time.UTC),
		cmdFailures: map[string]error{},
		cmdOutputs:  map[string]string{},
	}
}

// =============================================================================
// Failure Injection
// =============================================================================

// FailOp makes operation op ("mkdir", "mkdir-all", "remove", "symlink",
// "symlink-replace", "checkout", "list", "read", "crontab") fail with err.
// An empty p matches every path.
func (f *FakeExecutor) FailOp(op, p string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opFailures = append(f.opFailures, opFailure{op: op, path: p, err: err})
}

// FailCommand makes every command whose rendered line contains substr fail.
func (f *FakeExecutor) FailCommand(substr string, err error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmdFailures[substr] = err
}

// SetOutput makes commands whose rendered line contains substr print out.
func (f *FakeExecutor) SetOutput(substr, out string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.cmdOutputs[substr] = out
}

// Reset clears all injected failures.
func (f *FakeExecutor) Reset() {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.opFailures = nil
	f.cmdFailures = map[string]error{}
}

func (f *FakeExecutor) failure(op, p string) error {
	for _, fail := range f.opFailures {
		if fail.op == op && (fail.path == "" || fail.path == p) {
			return fail.err
		}
	}
	return nil
}

// =============================================================================
// Inspection
// =============================================================================

// Commands returns the commands run so far.
func (f *FakeExecutor) Commands() []remote.Command {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]remote.Command(nil), f.commands...)
}

// CommandLines returns the rendered command lines run so far.
func (f *FakeExecutor) CommandLines() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	lines := make([]string, 0, len(f.commands))
	for _, c := range f.commands {
		lines = append(lines, c.String())
	}
	return lines
}

// Checkouts returns the directories checked out so far.
func (f *FakeExecutor) Checkouts() []string {
	f.mu.Lock()
	defer f.mu.Unlock()
	return append([]string(nil), f.checkouts...)
}

// Crontab returns the installed crontab and how many times it was replaced.
func (f *FakeExecutor) Crontab() ([]byte, int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	return f.crontab, f.crontabCalls
}

// IsDir reports whether p is a directory.
func (f *FakeExecutor) IsDir(p string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[path.Clean(p)]
	return ok && n.kind == kindDir
}

// IsLink reports whether p is a symlink.
func (f *FakeExecutor) IsLink(p string) bool {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[path.Clean(p)]
	return ok && n.kind == kindLink
}

// WriteFile creates a file, creating parent directories.
func (f *FakeExecutor) WriteFile(p, content string) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.writeFile(p, content)
}

// =============================================================================
// remote.Executor
// =============================================================================

func (f *FakeExecutor) Host() string { return f.HostName }

func (f *FakeExecutor) MkdirAll(_ context.Context, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("mkdir-all", dir); err != nil {
		return err
	}
	f.mkdirAll(dir)
	return nil
}

func (f *FakeExecutor) Mkdir(_ context.Context, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("mkdir", dir); err != nil {
		return err
	}
	if _, ok := f.nodes[path.Clean(dir)]; ok {
		return fmt.Errorf("%s: %w", dir, remote.ErrExists)
	}
	f.mkdirAll(dir)
	return nil
}

func (f *FakeExecutor) Exists(_ context.Context, p string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	_, ok := f.nodes[path.Clean(p)]
	return ok, nil
}

func (f *FakeExecutor) RemoveAll(_ context.Context, p string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("remove", p); err != nil {
		return err
	}
	f.removeAll(p)
	return nil
}

func (f *FakeExecutor) Symlink(_ context.Context, target, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("symlink", link); err != nil {
		return err
	}
	f.removeAll(link)
	f.put(link, &node{kind: kindLink, target: target})
	return nil
}

func (f *FakeExecutor) SymlinkReplace(_ context.Context, target, link string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("symlink-replace", link); err != nil {
		return err
	}
	if n, ok := f.nodes[path.Clean(link)]; ok && n.kind == kindDir {
		return fmt.Errorf("rename over directory %s", link)
	}
	f.put(link, &node{kind: kindLink, target: target})
	return nil
}

func (f *FakeExecutor) ReadLink(_ context.Context, link string) (string, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	n, ok := f.nodes[path.Clean(link)]
	if !ok {
		return "", fmt.Errorf("readlink %s: %w", link, os.ErrNotExist)
	}
	if n.kind != kindLink {
		return "", fmt.Errorf("readlink %s: not a symlink", link)
	}
	return n.target, nil
}

func (f *FakeExecutor) CheckoutAtTag(_ context.Context, repository, tag, dir string) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("checkout", dir); err != nil {
		return err
	}
	f.checkouts = append(f.checkouts, dir)
	f.mkdirAll(dir)
	for rel, content := range f.CheckoutFiles {
		f.writeFile(path.Join(dir, rel), content)
	}
	return nil
}

func (f *FakeExecutor) Run(_ context.Context, cmd remote.Command) (string, error) {
	f.mu.Lock()
	f.commands = append(f.commands, cmd)
	line := cmd.String()
	for substr, err := range f.cmdFailures {
		if strings.Contains(line, substr) {
			f.mu.Unlock()
			return "", &remote.CommandError{Host: f.HostName, Command: line, ExitCode: 1, Err: err}
		}
	}
	out := ""
	for substr, o := range f.cmdOutputs {
		if strings.Contains(line, substr) {
			out = o
		}
	}
	var effect Effect
	if len(cmd.Args) > 0 {
		effect = f.Effects[cmd.Args[0]]
	}
	if effect != nil {
		effect(f, cmd)
	}
	f.mu.Unlock()
	return out, nil
}

func (f *FakeExecutor) ListDir(_ context.Context, dir string) ([]remote.Entry, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("list", dir); err != nil {
		return nil, err
	}
	dir = path.Clean(dir)
	if n, ok := f.nodes[dir]; !ok || n.kind != kindDir {
		return nil, fmt.Errorf("list %s: %w", dir, os.ErrNotExist)
	}
	var entries []remote.Entry
	for p, n := range f.nodes {
		if p != dir && path.Dir(p) == dir {
			entries = append(entries, remote.Entry{Name: path.Base(p), IsDir: n.kind == kindDir, ModTime: n.modTime})
		}
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].Name < entries[j].Name })
	return entries, nil
}

func (f *FakeExecutor) ReadFile(_ context.Context, p string) ([]byte, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("read", p); err != nil {
		return nil, err
	}
	n, ok := f.nodes[path.Clean(p)]
	if !ok || n.kind != kindFile {
		return nil, fmt.Errorf("read %s: %w", p, os.ErrNotExist)
	}
	return append([]byte(nil), n.data...), nil
}

func (f *FakeExecutor) ReplaceCrontab(_ context.Context, content []byte) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if err := f.failure("crontab", ""); err != nil {
		return err
	}
	f.crontab = append([]byte(nil), content...)
	f.crontabCalls++
	return nil
}

func (f *FakeExecutor) Close() error { return nil }

// =============================================================================
// Internal
// =============================================================================

func (f *FakeExecutor) tick() time.Time {
	f.now = f.now.Add(time.Second)
	return f.now
}

// put stores n at p, creating parents and touching the parent directory.
func (f *FakeExecutor) put(p string, n *node) {
	p = path.Clean(p)
	f.mkdirAll(path.Dir(p))
	n.modTime = f.tick()
	f.nodes[p] = n
	if parent, ok := f.nodes[path.Dir(p)]; ok {
		parent.modTime = n.modTime
	}
}

func (f *FakeExecutor) mkdirAll(dir string) {
	dir = path.Clean(dir)
	if _, ok := f.nodes[dir]; ok {
		return
	}
	f.mkdirAll(path.Dir(dir))
	f.put(dir, &node{kind: kindDir})
}

func (f *FakeExecutor) writeFile(p, content string) {
	f.put(p, &node{kind: kindFile, data: []byte(content)})
}

func (f *FakeExecutor) removeAll(p string) {
	p = path.Clean(p)
	if _, ok := f.nodes[p]; !ok {
		return
	}
	for k := range f.nodes {
		if k == p || strings.HasPrefix(k, p+"/") {
			delete(f.nodes, k)
		}
	}
	if parent, ok := f.nodes[path.Dir(p)]; ok {
		parent.modTime = f.tick()
	}
}

var _ remote.Executor = (*FakeExecutor)(nil)

// ErrInjected is a convenience error for failure injection.
var ErrInjected = errors.New("injected failure")
