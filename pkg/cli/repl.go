package cli

import (
	"fmt"
	"io"
	"os"
	"strconv"
	"strings"

	"strata/pkg/database"
	"strata/pkg/txn"
	"strata/pkg/value"
	"strata/primitive/eventlog"
	"strata/primitive/kv"
)

// REPL is a read-eval-print loop over one open database.Database,
// grounded on the teacher's pkg/cli.REPL dot-command dispatch loop —
// rewired onto line commands (put/get/scan/branch/checkpoint/compact)
// instead of SQL statements.
type REPL struct {
	db    *database.Database
	shell *Shell

	output    io.Writer
	errOutput io.Writer

	exitRequested bool
}

// NewREPL opens dir as a database and returns a REPL reading from stdin.
func NewREPL(dir string, output, errOutput io.Writer) (*REPL, error) {
	return NewREPLWithInput(dir, os.Stdin, output, errOutput)
}

// NewREPLWithInput opens dir as a database and returns a REPL reading
// from input, for scripted or test-driven operation.
func NewREPLWithInput(dir string, input io.Reader, output, errOutput io.Writer) (*REPL, error) {
	db, err := database.Open(dir, database.DefaultConfig())
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}

	return &REPL{
		db:        db,
		shell:     NewShell(input, output, errOutput),
		output:    output,
		errOutput: errOutput,
	}, nil
}

// Close closes the underlying database.
func (r *REPL) Close() error {
	if r.db != nil {
		return r.db.Close()
	}
	return nil
}

// Run drives the loop until EOF or an exit command.
func (r *REPL) Run() {
	fmt.Fprintln(r.output, "strata shell")
	fmt.Fprintln(r.output, "Enter \"help\" for usage hints.")

	for !r.exitRequested {
		line, eof := r.shell.ReadCommand()
		if line == "" {
			if eof {
				fmt.Fprintln(r.output)
				break
			}
			continue
		}

		if err := r.dispatch(line); err != nil {
			r.printError(err)
		}

		if r.exitRequested || eof {
			break
		}
	}
}

func (r *REPL) dispatch(line string) error {
	fields := strings.Fields(line)
	cmd := strings.ToLower(fields[0])
	args := fields[1:]

	switch cmd {
	case "exit", "quit":
		r.exitRequested = true
		return nil
	case "help":
		r.printHelp()
		return nil
	case "put":
		return r.cmdPut(args)
	case "get":
		return r.cmdGet(args)
	case "del", "delete":
		return r.cmdDelete(args)
	case "scan":
		return r.cmdScan(args)
	case "append":
		return r.cmdAppend(args)
	case "events":
		return r.cmdEvents(args)
	case "branch":
		return r.cmdBranch(args)
	case "checkpoint":
		return r.cmdCheckpoint(args)
	case "compact":
		return r.cmdCompact(args)
	default:
		return fmt.Errorf("unknown command: %s (try \"help\")", fields[0])
	}
}

func (r *REPL) resolveBranch(name string) ([16]byte, error) {
	if name == "" || name == "default" {
		return [16]byte{}, nil
	}
	return r.db.ResolveBranch(name)
}

func (r *REPL) cmdPut(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: put <branch> <key> <value>")
	}
	branch, err := r.resolveBranch(args[0])
	if err != nil {
		return err
	}
	key := args[1]
	val := strings.Join(args[2:], " ")

	_, err = r.db.Transaction(branch, func(c *txn.Context) error {
		return r.db.KV().Put(c, []byte(key), inferValue(val), nil)
	})
	return err
}

func (r *REPL) cmdGet(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: get <branch> <key>")
	}
	branch, err := r.resolveBranch(args[0])
	if err != nil {
		return err
	}
	key := args[1]

	var found bool
	var got value.Value
	_, err = r.db.Transaction(branch, func(c *txn.Context) error {
		var gerr error
		got, found, gerr = r.db.KV().Get(c, []byte(key), 0)
		return gerr
	})
	if err != nil {
		return err
	}
	if !found {
		fmt.Fprintln(r.output, "(not found)")
		return nil
	}
	fmt.Fprintln(r.output, got.String())
	return nil
}

func (r *REPL) cmdDelete(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: del <branch> <key>")
	}
	branch, err := r.resolveBranch(args[0])
	if err != nil {
		return err
	}
	key := args[1]
	_, err = r.db.Transaction(branch, func(c *txn.Context) error {
		return r.db.KV().Delete(c, []byte(key))
	})
	return err
}

func (r *REPL) cmdScan(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: scan <branch> [prefix]")
	}
	branch, err := r.resolveBranch(args[0])
	if err != nil {
		return err
	}
	var prefix []byte
	if len(args) > 1 {
		prefix = []byte(args[1])
	}

	entries := kv.Scan(r.db.Store(), branch, prefix, r.db.CurrentVersion(), 0)
	if len(entries) == 0 {
		fmt.Fprintln(r.output, "(no entries)")
		return nil
	}
	for _, e := range entries {
		fmt.Fprintf(r.output, "%s\t%s\n", string(e.Key), e.Value.String())
	}
	fmt.Fprintf(r.output, "%d row(s)\n", len(entries))
	return nil
}

func (r *REPL) cmdAppend(args []string) error {
	if len(args) < 3 {
		return fmt.Errorf("usage: append <branch> <stream> <payload>")
	}
	branch, err := r.resolveBranch(args[0])
	if err != nil {
		return err
	}
	stream := args[1]
	payload := strings.Join(args[2:], " ")

	var seq uint64
	_, err = r.db.Transaction(branch, func(c *txn.Context) error {
		var aerr error
		seq, aerr = r.db.EventLog().Append(c, []byte(stream), inferValue(payload))
		return aerr
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(r.output, "appended at seq %d\n", seq)
	return nil
}

func (r *REPL) cmdEvents(args []string) error {
	if len(args) != 2 {
		return fmt.Errorf("usage: events <branch> <stream>")
	}
	branch, err := r.resolveBranch(args[0])
	if err != nil {
		return err
	}
	events, err := eventlog.Scan(r.db.Store(), branch, []byte(args[1]), r.db.CurrentVersion(), 0)
	if err != nil {
		return err
	}
	for _, e := range events {
		fmt.Fprintf(r.output, "%d\t%s\n", e.Seq, e.Payload.String())
	}
	fmt.Fprintf(r.output, "%d row(s)\n", len(events))
	return nil
}

func (r *REPL) cmdBranch(args []string) error {
	if len(args) < 1 {
		return fmt.Errorf("usage: branch create|resolve|drop|list [name]")
	}
	switch strings.ToLower(args[0]) {
	case "create":
		if len(args) != 2 {
			return fmt.Errorf("usage: branch create <name>")
		}
		id, err := r.db.CreateBranch(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(r.output, "created %s -> %x\n", args[1], id)
		return nil
	case "resolve":
		if len(args) != 2 {
			return fmt.Errorf("usage: branch resolve <name>")
		}
		id, err := r.db.ResolveBranch(args[1])
		if err != nil {
			return err
		}
		fmt.Fprintf(r.output, "%x\n", id)
		return nil
	case "drop":
		if len(args) != 2 {
			return fmt.Errorf("usage: branch drop <name>")
		}
		return r.db.DeleteBranch(args[1])
	case "list":
		for _, e := range r.db.ListBranches() {
			fmt.Fprintf(r.output, "%s\t%x\n", e.Name, e.BranchID)
		}
		return nil
	default:
		return fmt.Errorf("unknown branch subcommand: %s", args[0])
	}
}

func (r *REPL) cmdCheckpoint(args []string) error {
	res, err := r.db.Checkpoint()
	if err != nil {
		return err
	}
	fmt.Fprintf(r.output, "snapshot %s at watermark %d\n", res.SnapshotID, res.WatermarkTxn)
	return nil
}

func (r *REPL) cmdCompact(args []string) error {
	mode := database.CompactWalOnly
	if len(args) > 0 && strings.ToLower(args[0]) == "full" {
		mode = database.CompactFull
	}
	return r.db.Compact(mode)
}

// inferValue parses s as an int or float when possible, falling back
// to a string value — a REPL convenience, not part of the wire codec.
func inferValue(s string) value.Value {
	if i, err := strconv.ParseInt(s, 10, 64); err == nil {
		return value.Int(i)
	}
	if f, err := strconv.ParseFloat(s, 64); err == nil {
		return value.Float(f)
	}
	return value.String(s)
}

func (r *REPL) printHelp() {
	help := `
put <branch> <key> <value>       Write a KV entry
get <branch> <key>                Read a KV entry
del <branch> <key>                Delete a KV entry
scan <branch> [prefix]            List KV entries under prefix
append <branch> <stream> <value>  Append an event log entry
events <branch> <stream>          List a stream's events
branch create <name>              Create and name a new branch
branch resolve <name>             Print a branch's id
branch drop <name>                Drop a branch and its data
branch list                       List registered branches
checkpoint                        Write a snapshot and update the manifest
compact [full]                    Remove redundant WAL segments (full also runs GC)
exit, quit                        Leave the shell
`
	fmt.Fprintln(r.output, help)
}

func (r *REPL) printError(err error) {
	fmt.Fprintf(r.errOutput, "error: %v\n", err)
}
