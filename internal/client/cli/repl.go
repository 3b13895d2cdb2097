package cli

import (
	"bufio"
	"context"
	"fmt"
	"io"
	"strings"
)

// execIface defines the minimal command surface the REPL needs to operate.
// The real App type satisfies this interface; tests can provide a
// lightweight stub.
type execIface interface {
	isUnlocked() bool
	Login(ctx context.Context) error
	Pull(ctx context.Context) error
	Push(ctx context.Context) error
	Lock(ctx context.Context) error
	ListAccounts(ctx context.Context) error
	AddAccount(ctx context.Context) error
	RemoveAccount(ctx context.Context) error
	SyncAccount(ctx context.Context) error
	Install(ctx context.Context) error
	Remove(ctx context.Context) error
	Reorder(ctx context.Context) error
	Enable(ctx context.Context) error
	Protect(ctx context.Context) error
	Library(ctx context.Context) error
	Apply(ctx context.Context) error
	Rules(ctx context.Context) error
	Export(ctx context.Context) error
	Import(ctx context.Context) error
}

// runREPL starts a read-eval-print loop. It reads a line, parses the first
// token as the command, and dispatches to methods on 'a'. Unknown commands
// are reported back to the user. The loop exits on EOF or when the user
// types "exit" or "quit". Errors returned by command handlers are printed
// and the loop continues.
func runREPL(ctx context.Context, a execIface, statusFn func() string, reader *bufio.Reader, out io.Writer) {
	for {
		fmt.Fprintf(out, "aio> %s > ", statusFn())
		line, err := reader.ReadString('\n')
		if err != nil {
			return
		}
		parts := strings.Fields(line)
		if len(parts) == 0 {
			continue
		}
		cmd := parts[0]

		var cmdErr error
		switch cmd {
		case "help":
			if a.isUnlocked() {
				fmt.Fprintln(out, "Available commands: accounts, addaccount, rmaccount, sync, install, remove, reorder, enable, protect, library, apply, rules, pull, push, export, import, lock, exit")
			} else {
				fmt.Fprintln(out, "Available commands: login, export, import, exit")
			}

		case "login":
			cmdErr = a.Login(ctx)

		case "pull":
			cmdErr = a.Pull(ctx)

		case "push":
			cmdErr = a.Push(ctx)

		case "lock":
			cmdErr = a.Lock(ctx)

		case "accounts":
			cmdErr = a.ListAccounts(ctx)

		case "addaccount":
			cmdErr = a.AddAccount(ctx)

		case "rmaccount":
			cmdErr = a.RemoveAccount(ctx)

		case "sync":
			cmdErr = a.SyncAccount(ctx)

		case "install":
			cmdErr = a.Install(ctx)

		case "remove":
			cmdErr = a.Remove(ctx)

		case "reorder":
			cmdErr = a.Reorder(ctx)

		case "enable":
			cmdErr = a.Enable(ctx)

		case "protect":
			cmdErr = a.Protect(ctx)

		case "library":
			cmdErr = a.Library(ctx)

		case "apply":
			cmdErr = a.Apply(ctx)

		case "rules":
			cmdErr = a.Rules(ctx)

		case "export":
			cmdErr = a.Export(ctx)

		case "import":
			cmdErr = a.Import(ctx)

		case "exit", "quit":
			fmt.Fprintln(out, "Bye!")
			return

		default:
			fmt.Fprintln(out, "Unknown command:", cmd)
		}

		if cmdErr != nil {
			fmt.Fprintf(out, "error: %v\n", cmdErr)
		}
	}
}
