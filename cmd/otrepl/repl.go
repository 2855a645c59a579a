package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"strconv"
	"strings"

	"github.com/drpcorg/otdag"
	"github.com/drpcorg/otdag/dag"
	"github.com/drpcorg/otdag/examples/register"
	"github.com/drpcorg/otdag/otdag_errors"
	"github.com/drpcorg/otdag/utils"
	"github.com/ergochat/readline"
	"github.com/prometheus/client_golang/prometheus"
)

type Diff = register.Diff

// REPL drives one replica of an integer register.
type REPL struct {
	algo  *otdag.Algorithms[dag.ID, Diff]
	mgr   *otdag.StateManager[dag.ID, Diff]
	state *register.State
	reg   *prometheus.Registry
	log   utils.Logger
	out   io.Writer

	rl *readline.Instance
}

var ErrBadArgument = errors.New("bad argument")

var completer = readline.NewPrefixCompleter(
	readline.PcItem("help"),

	readline.PcItem("add"),
	readline.PcItem("set"),
	readline.PcItem("show"),
	readline.PcItem("reset"),

	readline.PcItem("commit"),
	readline.PcItem("push"),
	readline.PcItem("pull"),
	readline.PcItem("sync"),
	readline.PcItem("checkout"),

	readline.PcItem("merge"),
	readline.PcItem("heads"),
	readline.PcItem("snapshot"),
	readline.PcItem("verify"),
	readline.PcItem("metrics"),

	readline.PcItem("exit"),
	readline.PcItem("quit"),
)

func filterInput(r rune) (rune, bool) {
	switch r {
	// block CtrlZ feature
	case readline.CharCtrlZ:
		return r, false
	}
	return r, true
}

// NewREPL checks out the repository, creating its root first if it is
// empty. The collectors are shown by the metrics command.
func NewREPL(ctx context.Context, repo dag.Repository[dag.ID, Diff], opts otdag.Options, out io.Writer, collectors ...prometheus.Collector) (*REPL, error) {
	opts.SetDefaults()
	algo := otdag.NewAlgorithms[dag.ID, Diff](register.NewSystem(), repo, dag.CompareIDs, opts)
	heads, err := repo.GetHeads(ctx)
	if err != nil {
		return nil, err
	}
	if len(heads) == 0 {
		root, err := dag.PushRoot[dag.ID, Diff](ctx, repo, nil)
		if err != nil && !errors.Is(err, otdag_errors.ErrHeadsConflict) {
			return nil, err
		}
		if err == nil {
			opts.Logger.InfoCtx(ctx, "created repository", "root", root.ID)
		}
	}
	st := &register.State{}
	mgr := otdag.NewStateManager[dag.ID, Diff](algo, st)
	if err = mgr.Checkout(ctx); err != nil {
		return nil, err
	}
	reg := prometheus.NewRegistry()
	if err = otdag.RegisterMetrics(reg); err != nil {
		return nil, err
	}
	for _, c := range collectors {
		if err = reg.Register(c); err != nil {
			return nil, err
		}
	}
	return &REPL{algo: algo, mgr: mgr, state: st, reg: reg, log: opts.Logger, out: out}, nil
}

func (repl *REPL) Open() (err error) {
	repl.rl, err = readline.NewEx(&readline.Config{
		Prompt:          "ot> ",
		HistoryFile:     ".otrepl_cmd_log.txt",
		AutoComplete:    completer,
		InterruptPrompt: "^C",
		EOFPrompt:       "exit",

		HistorySearchFold:   true,
		FuncFilterInputRune: filterInput,
	})
	if err != nil {
		return
	}
	repl.rl.CaptureExitSignal()
	return
}

func (repl *REPL) Close() error {
	if repl.rl != nil {
		_ = repl.rl.Close()
		repl.rl = nil
	}
	return nil
}

// REPL reads and executes one line.
func (repl *REPL) REPL(ctx context.Context) error {
	line, err := repl.rl.Readline()
	if err == readline.ErrInterrupt && len(line) != 0 {
		return nil
	}
	if err != nil {
		return err
	}
	return repl.Execute(ctx, line)
}

// Execute runs one command line. io.EOF means the user asked to leave.
func (repl *REPL) Execute(ctx context.Context, line string) (err error) {
	cmd, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)
	switch cmd {
	case "":
	case "help":
		repl.printf("add N | set N | show | reset | commit | push | pull | sync | checkout\n")
		repl.printf("merge | heads | snapshot | verify | metrics | exit\n")
	case "add":
		var n int64
		if n, err = parseInt(arg); err == nil {
			err = repl.mgr.Add(register.Add{Delta: n})
		}
	case "set":
		var n int64
		if n, err = parseInt(arg); err == nil {
			err = repl.mgr.Add(register.Set{Prev: repl.state.Value, Next: n})
		}
	case "show", "ls":
		repl.printf("%d @%s working %v pending %d\n",
			repl.state.Value, repl.mgr.Revision(), repl.mgr.WorkingDiffs(), len(repl.mgr.Pending()))
	case "reset":
		err = repl.mgr.Reset()
	case "commit":
		var c *dag.Commit[dag.ID, Diff]
		if c, err = repl.mgr.Commit(ctx); err == nil && c != nil {
			repl.printf("%s\n", c.ID)
		}
	case "push":
		err = repl.mgr.Push(ctx)
	case "pull":
		err = repl.mgr.Pull(ctx)
	case "sync":
		err = repl.mgr.Sync(ctx)
	case "checkout":
		if arg == "" {
			err = repl.mgr.Checkout(ctx)
			break
		}
		var id dag.ID
		if id, err = dag.ParseID(arg); err == nil {
			err = repl.mgr.CheckoutRevision(ctx, id)
		}
	case "merge":
		var head dag.ID
		if head, err = repl.algo.MergeHeads(ctx); err == nil {
			repl.printf("%s\n", head)
		}
	case "heads":
		var heads dag.Set[dag.ID]
		if heads, err = repl.algo.Repository().GetHeads(ctx); err == nil {
			for _, id := range heads.Sorted(dag.CompareIDs) {
				repl.printf("%s\n", id)
			}
		}
	case "snapshot":
		err = repl.algo.SaveSnapshot(ctx, repl.mgr.Revision())
	case "verify":
		var n int
		if n, err = repl.algo.Verify(ctx); err == nil {
			repl.printf("%d commits ok\n", n)
		}
	case "metrics":
		err = repl.printMetrics()
	case "exit", "quit":
		if len(repl.mgr.WorkingDiffs()) > 0 || len(repl.mgr.Pending()) > 0 {
			repl.log.Warn("leaving with unpushed changes")
		}
		return io.EOF
	default:
		return fmt.Errorf("command unknown: %s", cmd)
	}
	return
}

func (repl *REPL) printf(format string, args ...any) {
	_, _ = fmt.Fprintf(repl.out, format, args...)
}

func (repl *REPL) printMetrics() error {
	families, err := repl.reg.Gather()
	if err != nil {
		return err
	}
	for _, f := range families {
		for _, m := range f.GetMetric() {
			var val float64
			switch {
			case m.GetCounter() != nil:
				val = m.GetCounter().GetValue()
			case m.GetGauge() != nil:
				val = m.GetGauge().GetValue()
			case m.GetHistogram() != nil:
				val = float64(m.GetHistogram().GetSampleCount())
			}
			var labels []string
			for _, l := range m.GetLabel() {
				labels = append(labels, l.GetName()+"="+l.GetValue())
			}
			repl.printf("%s{%s} %g\n", f.GetName(), strings.Join(labels, ","), val)
		}
	}
	return nil
}

func parseInt(arg string) (int64, error) {
	n, err := strconv.ParseInt(arg, 10, 64)
	if err != nil {
		return 0, fmt.Errorf("%w: %q is not an integer", ErrBadArgument, arg)
	}
	return n, nil
}
