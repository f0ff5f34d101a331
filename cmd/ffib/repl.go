package main

import (
	"errors"
	"fmt"
	"io"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/chzyer/readline"

	"github.com/Gaurav-Gosain/ffibridge"
)

// showSource renders any script value on one line.
const showSource = `(function (v) {
	switch (typeof v) {
	case "string":
		return JSON.stringify(v);
	case "bigint":
		return v + "n";
	case "function":
		return "[Function" + (v.name ? ": " + v.name : "") + "]";
	case "undefined":
		return "undefined";
	}
	if (v instanceof Error) {
		return v.name + ": " + v.message;
	}
	if (v instanceof Map) {
		var parts = [];
		v.forEach(function (val, key) { parts.push(show(key) + " => " + show(val)); });
		return "Map(" + v.size + ") {" + parts.join(", ") + "}";
	}
	if (ArrayBuffer.isView(v)) {
		return v.constructor.name + "(" + Array.prototype.join.call(v, ", ") + ")";
	}
	try {
		var s = JSON.stringify(v, function (k, x) {
			return typeof x === "bigint" ? x + "n" : x;
		});
		if (s !== undefined) {
			return s;
		}
	} catch (e) {}
	return String(v);
	function show(x) { return typeof x === "object" && x !== null ? String(x) : JSON.stringify(x); }
})`

type replState struct {
	vm     *ffibridge.VM
	guard  *ffibridge.AttachedEnv
	env    *ffibridge.Env
	show   *ffibridge.GlobalRef
	engine string

	rl          *readline.Instance
	showTiming  bool
	evalCount   int
	multiline   strings.Builder
	inMultiline bool
	startTime   time.Time
}

// newReplState attaches the calling goroutine, which must run the REPL.
func newReplState(vm *ffibridge.VM, engine string, timing bool) (*replState, error) {
	guard, err := vm.Attach()
	if err != nil {
		return nil, err
	}
	s := &replState{
		vm:         vm,
		guard:      guard,
		env:        guard.Env,
		engine:     engine,
		showTiming: timing,
		startTime:  time.Now(),
	}
	fn, err := s.env.Eval(showSource, "<ffib>")
	if err == nil {
		s.show, err = s.env.Promote(fn)
	}
	if err != nil {
		guard.Close()
		return nil, fmt.Errorf("failed to install display helper: %w", err)
	}
	return s, nil
}

func (s *replState) close() {
	s.show.Release()
	s.guard.Close()
}

// scoped runs fn in a fresh local scope and then drains the event loop so
// jobs posted by callbacks run between inputs.
func (s *replState) scoped(fn func(env *ffibridge.Env) error) error {
	err := s.env.WithLocalScope(64, func() error { return fn(s.env) })
	s.vm.Loop().RunPending(s.env)
	return err
}

// display renders r with the script-side helper.
func (s *replState) display(env *ffibridge.Env, r ffibridge.Ref) (string, error) {
	out, err := env.CallFunction(s.show.Ref(), r)
	if err != nil {
		if msg, derr := env.DescribeError(); derr == nil && msg != "" {
			return "", errors.New(msg)
		}
		return "", err
	}
	return env.GetString(out)
}

func (s *replState) runFile(filename string) error {
	data, err := os.ReadFile(filename)
	if err != nil {
		return fmt.Errorf("failed to read %s: %w", filename, err)
	}
	if err := s.runScript(string(data), filename); err != nil {
		return fmt.Errorf("%s: %w", filename, err)
	}
	return nil
}

func (s *replState) runScript(code, filename string) error {
	start := time.Now()
	err := s.scoped(func(env *ffibridge.Env) error {
		_, err := env.Eval(code, filename)
		return err
	})
	if err == nil && s.showTiming {
		printTiming(time.Since(start))
	}
	return err
}

// evalAndPrint runs a dot command or evaluates code and prints the result.
func (s *replState) evalAndPrint(code string) error {
	code = strings.TrimSpace(code)
	if code == "" {
		return nil
	}
	if strings.HasPrefix(code, ".") {
		return s.handleCommand(code)
	}
	s.evalCount++

	start := time.Now()
	return s.scoped(func(env *ffibridge.Env) error {
		r, err := env.Eval(code, "<repl>")
		duration := time.Since(start)
		if err != nil {
			return err
		}
		if undef, _ := env.IsUndefined(r); !undef {
			out, err := s.display(env, r)
			if err != nil {
				return err
			}
			printResult(out)
		}
		if s.showTiming {
			printTiming(duration)
		}
		return nil
	})
}

func historyPath() string {
	if home, err := os.UserHomeDir(); err == nil {
		return filepath.Join(home, ".ffib_history")
	}
	return ""
}

func (s *replState) runREPL() {
	completer := readline.NewPrefixCompleter()
	for _, item := range completions() {
		completer.Children = append(completer.Children, readline.PcItem(item))
	}

	rl, err := readline.NewEx(&readline.Config{
		Prompt:            s.getPrompt(false),
		HistoryFile:       historyPath(),
		HistoryLimit:      1000,
		AutoComplete:      completer,
		InterruptPrompt:   "^C",
		EOFPrompt:         "exit",
		HistorySearchFold: true,
	})
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:")+" failed to initialize readline:", err)
		return
	}
	defer rl.Close()
	s.rl = rl

	printBanner(s.engine)

	for {
		rl.SetPrompt(s.getPrompt(s.inMultiline))

		line, err := rl.Readline()
		if err != nil {
			if errors.Is(err, readline.ErrInterrupt) {
				if s.inMultiline {
					s.multiline.Reset()
					s.inMultiline = false
					fmt.Println()
				}
				continue
			}
			if errors.Is(err, io.EOF) {
				fmt.Println()
				fmt.Println(dimStyle.Render("Goodbye!"))
				return
			}
			continue
		}

		if s.inMultiline {
			if line == "" {
				code := s.multiline.String()
				s.multiline.Reset()
				s.inMultiline = false
				s.report(s.evalAndPrint(code))
			} else {
				s.multiline.WriteString(line)
				s.multiline.WriteString("\n")
			}
			continue
		}

		trimmed := strings.TrimSpace(line)
		if trimmed == "exit" || trimmed == "quit" || isExitCommand(trimmed) {
			fmt.Println(dimStyle.Render("Goodbye!"))
			return
		}

		if strings.HasSuffix(line, "\\") {
			s.multiline.WriteString(strings.TrimSuffix(line, "\\"))
			s.multiline.WriteString("\n")
			s.inMultiline = true
			continue
		}
		if !strings.HasPrefix(trimmed, ".") && needsContinuation(line) {
			s.multiline.WriteString(line)
			s.multiline.WriteString("\n")
			s.inMultiline = true
			continue
		}

		s.report(s.evalAndPrint(line))
	}
}

func (s *replState) report(err error) {
	if err != nil {
		printError(err)
	}
}

func (s *replState) getPrompt(continuation bool) string {
	if continuation {
		return continuationStyle.Render("... ")
	}
	return promptStyle.Render("ffib") + dimStyle.Render(" > ")
}

// needsContinuation reports unbalanced brackets or an unterminated string.
func needsContinuation(line string) bool {
	opens := 0
	inString := false
	var stringChar byte

	for i := 0; i < len(line); i++ {
		ch := line[i]
		if inString {
			if ch == stringChar && (i == 0 || line[i-1] != '\\') {
				inString = false
			}
			continue
		}
		switch ch {
		case '"', '\'', '`':
			inString = true
			stringChar = ch
		case '{', '(', '[':
			opens++
		case '}', ')', ']':
			opens--
		}
	}
	return opens > 0 || inString
}
