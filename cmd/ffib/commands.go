package main

import (
	"errors"
	"fmt"
	"os"
	"runtime"
	"strconv"
	"strings"
	"time"
	"unicode"

	"github.com/google/go-cmp/cmp"

	"github.com/Gaurav-Gosain/ffibridge"
)

var commandHelp = []struct{ cmd, desc string }{
	{".de <type> <expr>", "Deserialize the value of expr as type"},
	{".rt <type> <expr>", "Deserialize, serialize back and compare"},
	{".type <type>", "Parse a type and print its canonical form"},
	{".save <file> <type> <expr>", "Deserialize expr and write a snapshot"},
	{".loadv <file> [name]", "Read a snapshot, optionally binding it to a global"},
	{".load <file>", "Load and execute a script"},
	{".history [n]", "Show the last n inputs (default: 20)"},
	{".timing", "Toggle execution timing"},
	{".info", "Show runtime information"},
	{".clear", "Clear the screen"},
	{".help", "Show this help message"},
	{".exit", "Exit the REPL"},
}

func completions() []string {
	items := []string{
		"bool", "i8", "i16", "i32", "i64", "f32", "f64", "char", "string", "unit",
		"bytes", "option<", "seq<", "map<", "struct ", "enum",
		"int8array", "int16array", "int32array", "uint8array", "uint16array", "uint32array",
		"ffi.Boolean", "ffi.Byte", "ffi.Short", "ffi.Int", "ffi.Long", "ffi.Float",
		"ffi.Double", "ffi.Char", "ffi.defineEnum", "ffi.BusinessError",
	}
	for _, c := range commandHelp {
		name, _, _ := strings.Cut(c.cmd, " ")
		items = append(items, name)
	}
	return items
}

func isExitCommand(line string) bool {
	switch strings.ToLower(line) {
	case ".exit", ".quit", ".q":
		return true
	}
	return false
}

func (s *replState) handleCommand(line string) error {
	name, arg, _ := strings.Cut(strings.TrimSpace(line), " ")
	arg = strings.TrimSpace(arg)

	switch strings.ToLower(name) {
	case ".help", ".h", ".?":
		s.cmdHelp()
	case ".exit", ".quit", ".q":
		fmt.Println(dimStyle.Render("Goodbye!"))
		os.Exit(0)
	case ".clear", ".cls":
		fmt.Print("\033[H\033[2J")
	case ".history":
		return s.cmdHistory(arg)
	case ".timing", ".time":
		s.showTiming = !s.showTiming
		if s.showTiming {
			printOK("Timing enabled")
		} else {
			fmt.Println(infoStyle.Render("○") + " Timing disabled")
		}
	case ".load", ".l":
		return s.cmdLoad(arg)
	case ".info", ".i":
		s.cmdInfo()
	case ".type":
		return s.cmdType(arg)
	case ".de":
		return s.cmdDeserialize(arg)
	case ".rt":
		return s.cmdRoundTrip(arg)
	case ".save":
		return s.cmdSave(arg)
	case ".loadv":
		return s.cmdLoadValue(arg)
	default:
		return fmt.Errorf("unknown command %s, type .help for available commands", name)
	}
	return nil
}

// splitTypeArg splits "<type> <rest>" where the type may contain spaces
// inside its brackets.
func splitTypeArg(arg string) (typ, rest string) {
	depth := 0
	for i, r := range arg {
		switch {
		case r == '<' || r == '{':
			depth++
		case r == '>' || r == '}':
			depth--
		case unicode.IsSpace(r) && depth <= 0:
			// "struct Name{...}" and "enum Name{...}" keep their name.
			head := arg[:i]
			if head == "struct" || head == "enum" {
				continue
			}
			return head, strings.TrimSpace(arg[i:])
		}
	}
	return arg, ""
}

func parseTypedArg(arg, usage string) (*ffibridge.Type, string, error) {
	src, expr := splitTypeArg(arg)
	if src == "" || expr == "" {
		return nil, "", errors.New("usage: " + usage)
	}
	t, err := ffibridge.ParseType(src)
	if err != nil {
		return nil, "", err
	}
	return t, expr, nil
}

// deserializeExpr evaluates expr and reads its value as t.
func deserializeExpr(env *ffibridge.Env, t *ffibridge.Type, expr string) (ffibridge.Value, error) {
	r, err := env.Eval(expr, "<repl>")
	if err != nil {
		return ffibridge.Value{}, err
	}
	return ffibridge.Deserialize(env, r, t)
}

func (s *replState) cmdType(arg string) error {
	if arg == "" {
		return errors.New("usage: .type <type>")
	}
	t, err := ffibridge.ParseType(arg)
	if err != nil {
		return err
	}
	printValue("type", t.String())
	return nil
}

func (s *replState) cmdDeserialize(arg string) error {
	t, expr, err := parseTypedArg(arg, ".de <type> <expr>")
	if err != nil {
		return err
	}
	return s.scoped(func(env *ffibridge.Env) error {
		v, err := deserializeExpr(env, t, expr)
		if err != nil {
			return err
		}
		printValue("→", v.String())
		return nil
	})
}

func (s *replState) cmdRoundTrip(arg string) error {
	t, expr, err := parseTypedArg(arg, ".rt <type> <expr>")
	if err != nil {
		return err
	}
	return s.scoped(func(env *ffibridge.Env) error {
		v, err := deserializeExpr(env, t, expr)
		if err != nil {
			return err
		}
		printValue("native ", v.String())

		r, err := ffibridge.Serialize(env, v)
		if err != nil {
			return err
		}
		out, err := s.display(env, r)
		if err != nil {
			return err
		}
		printValue("foreign", out)

		back, err := ffibridge.Deserialize(env, r, t)
		if err != nil {
			return err
		}
		if diff := cmp.Diff(v, back); diff != "" {
			fmt.Println(errorStyle.Render("✗") + " round trip changed the value (-before +after):")
			fmt.Println(diff)
			return nil
		}
		printOK("stable")
		return nil
	})
}

func (s *replState) cmdSave(arg string) error {
	file, rest, _ := strings.Cut(arg, " ")
	t, expr, err := parseTypedArg(strings.TrimSpace(rest), ".save <file> <type> <expr>")
	if err != nil {
		return err
	}
	return s.scoped(func(env *ffibridge.Env) error {
		v, err := deserializeExpr(env, t, expr)
		if err != nil {
			return err
		}
		data, err := ffibridge.EncodeValue(v)
		if err != nil {
			return err
		}
		if err := os.WriteFile(file, data, 0o644); err != nil {
			return fmt.Errorf("failed to write snapshot: %w", err)
		}
		printOK(fmt.Sprintf("wrote %d bytes to %s", len(data), file))
		return nil
	})
}

func (s *replState) cmdLoadValue(arg string) error {
	fields := strings.Fields(arg)
	if len(fields) == 0 || len(fields) > 2 {
		return errors.New("usage: .loadv <file> [name]")
	}
	data, err := os.ReadFile(fields[0])
	if err != nil {
		return fmt.Errorf("failed to read snapshot: %w", err)
	}
	v, err := ffibridge.DecodeValue(data)
	if err != nil {
		return err
	}
	printValue("→", v.String())
	if len(fields) == 1 {
		return nil
	}

	name := fields[1]
	return s.scoped(func(env *ffibridge.Env) error {
		r, err := ffibridge.Serialize(env, v)
		if err != nil {
			return err
		}
		global, err := env.Eval("globalThis", "<ffib>")
		if err != nil {
			return err
		}
		if err := env.SetPropertyRef(global, name, r); err != nil {
			return err
		}
		printOK("bound to " + name)
		return nil
	})
}

func (s *replState) cmdHelp() {
	fmt.Println()
	fmt.Println(titleStyle.Render("Commands"))
	fmt.Println()
	printCommands(commandHelp)

	fmt.Println()
	fmt.Println(titleStyle.Render("Types"))
	fmt.Println()
	for _, line := range []string{
		"bool i8 i16 i32 i64 f32 f64 char string unit bytes",
		"option<T> seq<T> map<K,V> int8array ... uint32array",
		"struct Class{field:T,...}  enum Name{A,B}  enum{I32:i32,S:string,Null}",
	} {
		fmt.Println("  " + highlightCode(line))
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("Keyboard"))
	fmt.Println()
	for _, sc := range []struct{ key, desc string }{
		{"↑/↓", "Navigate history"},
		{"Ctrl+R", "Search history"},
		{"Ctrl+C", "Cancel input"},
		{"Ctrl+D", "Exit REPL"},
		{"Tab", "Autocomplete"},
	} {
		fmt.Printf("  %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-12s", sc.key)), dimStyle.Render(sc.desc))
	}
	fmt.Println()
}

func (s *replState) cmdHistory(arg string) error {
	n := 20
	if arg != "" {
		if parsed, err := strconv.Atoi(arg); err == nil && parsed > 0 {
			n = parsed
		}
	}
	path := historyPath()
	if path == "" {
		return errors.New("no home directory for history")
	}
	data, err := os.ReadFile(path)
	if err != nil {
		fmt.Println(dimStyle.Render("No history"))
		return nil
	}

	lines := strings.Split(strings.TrimSpace(string(data)), "\n")
	start := max(len(lines)-n, 0)

	fmt.Println()
	fmt.Println(titleStyle.Render("History"))
	fmt.Println()
	for i, line := range lines[start:] {
		fmt.Printf("  %s  %s\n", dimStyle.Render(fmt.Sprintf("%4d", start+i+1)), highlightCode(line))
	}
	fmt.Println()
	return nil
}

func (s *replState) cmdLoad(arg string) error {
	if arg == "" {
		return errors.New("usage: .load <filename>")
	}
	fmt.Println(dimStyle.Render("Loading " + arg + "..."))
	if err := s.runFile(arg); err != nil {
		return err
	}
	printOK("Loaded successfully")
	return nil
}

type globalCounter interface{ GlobalCount() int }

func (s *replState) cmdInfo() {
	var memStats runtime.MemStats
	runtime.ReadMemStats(&memStats)

	globals := "n/a"
	if gc, ok := s.vm.Raw().(globalCounter); ok {
		globals = strconv.Itoa(gc.GlobalCount())
	}

	fmt.Println()
	fmt.Println(titleStyle.Render("Runtime Information"))
	fmt.Println()

	info := []struct{ label, value string }{
		{"Version", version},
		{"Engine", s.engine},
		{"Go Version", runtime.Version()},
		{"OS/Arch", fmt.Sprintf("%s/%s", runtime.GOOS, runtime.GOARCH)},
		{"Go Heap", fmt.Sprintf("%.2f MB", float64(memStats.HeapAlloc)/1024/1024)},
		{"Global refs", globals},
		{"Evaluations", strconv.Itoa(s.evalCount)},
		{"Uptime", time.Since(s.startTime).Round(time.Second).String()},
	}
	for _, i := range info {
		fmt.Printf("  %s  %s\n", dimStyle.Render(fmt.Sprintf("%-14s", i.label)), i.value)
	}
	fmt.Println()
}
