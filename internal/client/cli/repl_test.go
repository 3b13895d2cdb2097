package cli

import (
	"bufio"
	"bytes"
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
)

// stubExec records which commands the REPL dispatched.
type stubExec struct {
	unlocked bool
	calls    []string
}

func (s *stubExec) record(name string) error {
	s.calls = append(s.calls, name)
	return nil
}

func (s *stubExec) isUnlocked() bool { return s.unlocked }
func (s *stubExec) Login(context.Context) error { return s.record("login") }
func (s *stubExec) Pull(context.Context) error { return s.record("pull") }
func (s *stubExec) Push(context.Context) error { return s.record("push") }
func (s *stubExec) Lock(context.Context) error { return s.record("lock") }
func (s *stubExec) ListAccounts(context.Context) error { return s.record("accounts") }
func (s *stubExec) AddAccount(context.Context) error { return s.record("addaccount") }
func (s *stubExec) RemoveAccount(context.Context) error { return s.record("rmaccount") }
func (s *stubExec) SyncAccount(context.Context) error { return s.record("sync") }
func (s *stubExec) Install(context.Context) error { return s.record("install") }
func (s *stubExec) Remove(context.Context) error { return s.record("remove") }
func (s *stubExec) Reorder(context.Context) error { return s.record("reorder") }
func (s *stubExec) Enable(context.Context) error { return s.record("enable") }
func (s *stubExec) Protect(context.Context) error { return s.record("protect") }
func (s *stubExec) Library(context.Context) error { return s.record("library") }
func (s *stubExec) Apply(context.Context) error { return s.record("apply") }
func (s *stubExec) Rules(context.Context) error { return s.record("rules") }
func (s *stubExec) Export(context.Context) error { return s.record("export") }
func (s *stubExec) Import(context.Context) error { return s.record("import") }

func runScript(t *testing.T, exec *stubExec, script string) string {
	t.Helper()
	var out bytes.Buffer
	reader := bufio.NewReader(strings.NewReader(script))
	runREPL(context.Background(), exec, func() string { return "test" }, reader, &out)
	return out.String()
}

func TestREPL_DispatchesCommands(t *testing.T) {
	exec := &stubExec{unlocked: true}
	runScript(t, exec, "login\naccounts\ninstall\npush\nexit\n")

	assert.Equal(t, []string{"login", "accounts", "install", "push"}, exec.calls)
}

func TestREPL_UnknownCommandReported(t *testing.T) {
	exec := &stubExec{}
	out := runScript(t, exec, "frobnicate\nexit\n")

	assert.Contains(t, out, "Unknown command: frobnicate")
	assert.Empty(t, exec.calls)
}

func TestREPL_EmptyLinesIgnored(t *testing.T) {
	exec := &stubExec{}
	runScript(t, exec, "\n   \nlock\nexit\n")

	assert.Equal(t, []string{"lock"}, exec.calls)
}

func TestREPL_ExitsOnEOF(t *testing.T) {
	exec := &stubExec{}
	runScript(t, exec, "accounts\n") // no exit, reader hits EOF

	assert.Equal(t, []string{"accounts"}, exec.calls)
}

func TestREPL_HelpReflectsLockState(t *testing.T) {
	locked := runScript(t, &stubExec{}, "help\nexit\n")
	assert.Contains(t, locked, "login")
	assert.NotContains(t, locked, "install")

	unlocked := runScript(t, &stubExec{unlocked: true}, "help\nexit\n")
	assert.Contains(t, unlocked, "install")
}
