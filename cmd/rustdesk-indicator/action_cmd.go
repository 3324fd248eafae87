package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"os"
	"strconv"

	"github.com/e7d/rustdesk-indicator/internal/config"
	"github.com/e7d/rustdesk-indicator/internal/menu"
	"github.com/e7d/rustdesk-indicator/internal/rustdesk"
)

var errUsage = errors.New("usage")

// plannedAction is a parsed `action` invocation. Actions that operate on
// running processes observe one cycle first.
type plannedAction struct {
	name       string
	needsState bool
	run        func(ctx context.Context, cmd menu.Commander, st rustdesk.State) error
}

func parseAction(args []string) (plannedAction, error) {
	if len(args) == 0 {
		return plannedAction{}, errUsage
	}
	verb, rest := args[0], args[1:]
	want := func(n int) error {
		if len(rest) != n {
			return fmt.Errorf("%w: %s takes %d argument(s)", errUsage, verb, n)
		}
		return nil
	}

	switch verb {
	case "start-app":
		if err := want(0); err != nil {
			return plannedAction{}, err
		}
		return plannedAction{name: verb, run: func(_ context.Context, cmd menu.Commander, _ rustdesk.State) error {
			return cmd.StartApp()
		}}, nil

	case "quit":
		if len(rest) == 0 {
			return plannedAction{name: verb, needsState: true, run: func(_ context.Context, cmd menu.Commander, st rustdesk.State) error {
				return cmd.Quit(st)
			}}, nil
		}
		if err := want(1); err != nil {
			return plannedAction{}, err
		}
		pid, err := strconv.Atoi(rest[0])
		if err != nil || pid <= 0 {
			return plannedAction{}, fmt.Errorf("invalid pid %q", rest[0])
		}
		return plannedAction{name: "exit-app", run: func(_ context.Context, cmd menu.Commander, _ rustdesk.State) error {
			return cmd.ExitApp(pid)
		}}, nil

	case "service":
		if err := want(1); err != nil {
			return plannedAction{}, err
		}
		var fn func(menu.Commander) error
		switch rest[0] {
		case "start":
			fn = menu.Commander.StartService
		case "stop":
			fn = menu.Commander.StopService
		case "restart":
			fn = menu.Commander.RestartService
		default:
			return plannedAction{}, fmt.Errorf("unknown service verb %q (want start, stop or restart)", rest[0])
		}
		return plannedAction{name: "service-" + rest[0], run: func(_ context.Context, cmd menu.Commander, _ rustdesk.State) error {
			return fn(cmd)
		}}, nil

	case "session":
		if err := want(2); err != nil {
			return plannedAction{}, err
		}
		action, id := rest[0], rest[1]
		return plannedAction{name: "session-" + action, run: func(_ context.Context, cmd menu.Commander, _ rustdesk.State) error {
			return cmd.StartSession(action, id)
		}}, nil

	case "close-session":
		if err := want(1); err != nil {
			return plannedAction{}, err
		}
		id := rest[0]
		return plannedAction{name: verb, needsState: true, run: func(_ context.Context, cmd menu.Commander, st rustdesk.State) error {
			sess, ok := st.Sessions[id]
			if !ok || sess.Deleted {
				return fmt.Errorf("no running session %q", id)
			}
			return cmd.CloseSession(sess)
		}}, nil

	case "close-all":
		if err := want(0); err != nil {
			return plannedAction{}, err
		}
		return plannedAction{name: verb, needsState: true, run: func(_ context.Context, cmd menu.Commander, st rustdesk.State) error {
			return cmd.CloseAllSessions(st.LiveSessions())
		}}, nil

	case "activate":
		if err := want(1); err != nil {
			return plannedAction{}, err
		}
		windowID := rest[0]
		return plannedAction{name: verb, run: func(ctx context.Context, cmd menu.Commander, _ rustdesk.State) error {
			return cmd.ActivateWindow(ctx, windowID)
		}}, nil
	}
	return plannedAction{}, fmt.Errorf("%w: unknown action %q", errUsage, verb)
}

// handleAction runs one action the indicator menu offers.
func handleAction(settings *config.Settings, args []string) int {
	fs := flag.NewFlagSet("action", flag.ContinueOnError)
	jsonOutput := fs.Bool("json", false, "Output as JSON")
	fs.Usage = func() {
		fmt.Println("Usage: rustdesk-indicator action <action> [args] [options]")
		fmt.Println()
		fmt.Println("Actions:")
		fmt.Println("  start-app | quit [PID] | service start|stop|restart")
		fmt.Println("  session connect|file-transfer|port-forward ID")
		fmt.Println("  close-session ID | close-all | activate WINDOW")
		fmt.Println()
		fmt.Println("Options:")
		fs.PrintDefaults()
	}
	if err := fs.Parse(normalizeArgs(fs, args)); err != nil {
		return flagExitCode(err)
	}

	planned, err := parseAction(fs.Args())
	if err != nil {
		if errors.Is(err, errUsage) {
			fs.Usage()
		}
		return reportAction(*jsonOutput, planned.name, err)
	}

	a, err := newApp(settings)
	if err != nil {
		return reportAction(*jsonOutput, planned.name, err)
	}

	ctx, stop := signalContext()
	defer stop()

	st := rustdesk.NewState()
	if planned.needsState {
		st = a.observer.Poll(ctx)
	}
	return reportAction(*jsonOutput, planned.name, planned.run(ctx, a.commander, st))
}

func reportAction(jsonMode bool, name string, err error) int {
	if jsonMode {
		out := map[string]any{"success": err == nil, "action": name}
		if err != nil {
			out["error"] = err.Error()
		}
		data, _ := json.Marshal(out)
		fmt.Println(string(data))
	} else if err != nil {
		fmt.Fprintf(os.Stderr, "%s %v\n", errorSymbol, err)
	} else {
		fmt.Printf("%s %s\n", successSymbol, name)
	}
	if err != nil {
		return 1
	}
	return 0
}
