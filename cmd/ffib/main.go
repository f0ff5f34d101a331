// Command ffib is an interactive inspector for ffibridge. It evaluates
// JavaScript and shows how script values deserialize into typed values and
// serialize back.
package main

import (
	"context"
	"flag"
	"fmt"
	"io"
	"os"
	"runtime"

	"go.uber.org/zap"
	"golang.org/x/term"

	"github.com/Gaurav-Gosain/ffibridge"
	"github.com/Gaurav-Gosain/ffibridge/wasm"
)

const version = "0.1.0"

func main() {
	os.Exit(run())
}

func run() int {
	evalCode := flag.String("e", "", "evaluate code and exit")
	showVersion := flag.Bool("version", false, "show version")
	showHelp := flag.Bool("help", false, "show help")
	timing := flag.Bool("timing", false, "show execution time")
	quickjs := flag.String("quickjs", "", "run on QuickJS-ng using this wasm `module` (\"env\" reads "+wasm.EnvVar+")")
	verbose := flag.Bool("v", false, "log bridge activity to stderr")
	flag.Parse()

	initSyntaxHighlighter()

	if *showVersion {
		printVersion()
		return 0
	}
	if *showHelp {
		printUsage()
		return 0
	}

	logger := zap.NewNop()
	if *verbose {
		var err error
		if logger, err = zap.NewDevelopment(); err != nil {
			fmt.Fprintln(os.Stderr, errorStyle.Render("Error:")+" failed to create logger:", err)
			return 1
		}
		defer func() { _ = logger.Sync() }()
	}

	vm, engine, err := newVM(*quickjs, logger)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:")+" failed to create runtime:", err)
		return 1
	}
	defer vm.Close()

	state, err := newReplState(vm, engine, *timing)
	if err != nil {
		fmt.Fprintln(os.Stderr, errorStyle.Render("Error:")+" failed to attach:", err)
		return 1
	}
	defer state.close()

	if *evalCode != "" {
		if err := state.evalAndPrint(*evalCode); err != nil {
			printError(err)
			return 1
		}
		return 0
	}

	if args := flag.Args(); len(args) > 0 {
		for _, filename := range args {
			if err := state.runFile(filename); err != nil {
				printError(err)
				return 1
			}
		}
		return 0
	}

	if !term.IsTerminal(int(os.Stdin.Fd())) {
		code, err := io.ReadAll(os.Stdin)
		if err != nil {
			printError(err)
			return 1
		}
		if err := state.runScript(string(code), "<stdin>"); err != nil {
			printError(err)
			return 1
		}
		return 0
	}

	state.runREPL()
	return 0
}

// newVM starts the selected engine and makes it the process default.
func newVM(quickjs string, logger *zap.Logger) (*ffibridge.VM, string, error) {
	opts := []ffibridge.Option{ffibridge.WithLogger(logger)}
	var (
		vm     *ffibridge.VM
		err    error
		engine = "goja"
	)
	if quickjs == "" {
		vm, err = ffibridge.NewGojaVM(opts...)
	} else {
		engine = "QuickJS-ng"
		if quickjs != "env" {
			module, lerr := wasm.LoadFile(quickjs)
			if lerr != nil {
				return nil, "", lerr
			}
			opts = append(opts, ffibridge.WithQuickJSModule(module))
		}
		vm, err = ffibridge.NewQuickJSVM(context.Background(), opts...)
	}
	if err != nil {
		return nil, "", err
	}
	if err := ffibridge.SetDefaultVM(vm); err != nil {
		vm.Close()
		return nil, "", err
	}
	return vm, engine, nil
}

func printVersion() {
	fmt.Println(logoStyle.Render("ffib") + dimStyle.Render(" v"+version))
	fmt.Println(dimStyle.Render("Typed value inspector for the ffibridge runtime bridge"))
	fmt.Println(dimStyle.Render(fmt.Sprintf("Go %s, %s/%s", runtime.Version(), runtime.GOOS, runtime.GOARCH)))
}

func printUsage() {
	fmt.Println()
	fmt.Println(titleStyle.Render("ffib - ffibridge inspector"))
	fmt.Println()

	fmt.Println(logoStyle.Render("USAGE"))
	fmt.Println("  ffib [options] [script.js...]")
	fmt.Println()

	fmt.Println(logoStyle.Render("OPTIONS"))
	printCommands([]struct{ cmd, desc string }{
		{"-e <code>", "Evaluate code or a dot command and exit"},
		{"-quickjs <module|env>", "Use QuickJS-ng instead of goja"},
		{"-timing", "Show execution time"},
		{"-v", "Log bridge activity"},
		{"-version", "Show version information"},
		{"-help", "Show this help message"},
	})
	fmt.Println()

	fmt.Println(logoStyle.Render("REPL COMMANDS"))
	printCommands(commandHelp)
	fmt.Println()
}
