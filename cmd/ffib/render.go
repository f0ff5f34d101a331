package main

import (
	"bytes"
	"fmt"
	"os"
	"strings"
	"time"

	"github.com/alecthomas/chroma/v2"
	"github.com/alecthomas/chroma/v2/formatters"
	"github.com/alecthomas/chroma/v2/lexers"
	"github.com/alecthomas/chroma/v2/styles"
	"github.com/charmbracelet/lipgloss"
	"golang.org/x/term"
)

var (
	primaryColor   = lipgloss.Color("#7C3AED")
	secondaryColor = lipgloss.Color("#10B981")
	errorColor     = lipgloss.Color("#EF4444")
	warningColor   = lipgloss.Color("#F59E0B")
	infoColor      = lipgloss.Color("#3B82F6")
	dimColor       = lipgloss.Color("#6B7280")

	logoStyle         = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	promptStyle       = lipgloss.NewStyle().Foreground(primaryColor).Bold(true)
	continuationStyle = lipgloss.NewStyle().Foreground(dimColor)
	errorStyle        = lipgloss.NewStyle().Foreground(errorColor).Bold(true)
	errorMsgStyle     = lipgloss.NewStyle().Foreground(errorColor)
	successStyle      = lipgloss.NewStyle().Foreground(secondaryColor)
	infoStyle         = lipgloss.NewStyle().Foreground(infoColor)
	dimStyle          = lipgloss.NewStyle().Foreground(dimColor)
	cmdStyle          = lipgloss.NewStyle().Foreground(warningColor)
	titleStyle        = lipgloss.NewStyle().Foreground(primaryColor).Bold(true).Underline(true)
	resultStyle       = lipgloss.NewStyle().Foreground(lipgloss.Color("#A78BFA"))
)

// Syntax highlighting for scripts and for rendered values, which are close
// enough to JavaScript literals for its lexer.
var (
	jsLexer     chroma.Lexer
	chromaStyle *chroma.Style
	formatter   chroma.Formatter
)

func initSyntaxHighlighter() {
	if !term.IsTerminal(int(os.Stdout.Fd())) {
		return
	}
	jsLexer = lexers.Get("javascript")
	if jsLexer == nil {
		jsLexer = lexers.Fallback
	}
	jsLexer = chroma.Coalesce(jsLexer)
	chromaStyle = styles.Get("dracula")
	if chromaStyle == nil {
		chromaStyle = styles.Fallback
	}
	formatter = formatters.Get("terminal256")
	if formatter == nil {
		formatter = formatters.Fallback
	}
}

func highlightCode(code string) string {
	if jsLexer == nil {
		return code
	}
	var buf bytes.Buffer
	iterator, err := jsLexer.Tokenise(nil, code)
	if err != nil {
		return code
	}
	if err := formatter.Format(&buf, chromaStyle, iterator); err != nil {
		return code
	}
	return strings.TrimSuffix(buf.String(), "\n")
}

func printBanner(engine string) {
	logo := `
      ┌─┐┌─┐┬┌┐
      ├┤ ├┤ │├┴┐
      └  └  ┴└─┘`

	fmt.Println(logoStyle.Render(logo))
	fmt.Println()
	fmt.Println(dimStyle.Render("  ffibridge inspector v" + version + " on " + engine))
	fmt.Println(dimStyle.Render("  Type ") + cmdStyle.Render(".help") + dimStyle.Render(" for commands"))
	fmt.Println()
}

func printCommands(cmds []struct{ cmd, desc string }) {
	for _, c := range cmds {
		fmt.Printf("  %s  %s\n", cmdStyle.Render(fmt.Sprintf("%-26s", c.cmd)), dimStyle.Render(c.desc))
	}
}

func printResult(s string) {
	fmt.Println(highlightCode(s))
}

func printValue(label, s string) {
	fmt.Printf("%s %s\n", resultStyle.Render(label), highlightCode(s))
}

func printOK(msg string) {
	fmt.Println(successStyle.Render("✓") + " " + msg)
}

func printError(err error) {
	fmt.Println()
	fmt.Println(errorStyle.Render("Error"))
	fmt.Println(errorMsgStyle.Render(err.Error()))
	fmt.Println()
}

func printTiming(duration time.Duration) {
	var style lipgloss.Style
	switch {
	case duration < 10*time.Millisecond:
		style = successStyle
	case duration < 100*time.Millisecond:
		style = lipgloss.NewStyle().Foreground(warningColor)
	default:
		style = errorStyle
	}
	fmt.Println(style.Render(fmt.Sprintf("⏱  %v", duration)))
}
