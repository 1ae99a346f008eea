package main

import (
	"bufio"
	"context"
	"flag"
	"fmt"
	"io"
	"log"
	"log/slog"
	"os"
	"os/signal"
	"strconv"
	"strings"

	"github.com/podhmo/evalsession"
	"github.com/podhmo/evalsession/minihs"
)

// stringSlice is a flag that can be given multiple times.
type stringSlice []string

func (s *stringSlice) String() string {
	return strings.Join(*s, ", ")
}

func (s *stringSlice) Set(value string) error {
	*s = append(*s, value)
	return nil
}

type options struct {
	paths []string
	binds []string
	expr  string
}

func main() {
	var (
		path    string
		binds   stringSlice
		expr    string
		verbose bool
	)

	flag.StringVar(&path, "path", "", "comma separated directories searched for imported modules")
	flag.Var(&binds, "bind", "bind a value, name[::Type]=value (can be repeated)")
	flag.StringVar(&expr, "e", "", "evaluate a fragment and exit")
	flag.BoolVar(&verbose, "v", false, "enable debug logging")
	flag.Parse()

	level := slog.LevelWarn
	if verbose {
		level = slog.LevelDebug
	}
	logger := slog.New(slog.NewTextHandler(os.Stderr, &slog.HandlerOptions{Level: level}))

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt)
	defer stop()

	opts := options{paths: splitPaths(path), binds: binds, expr: expr}
	if err := run(ctx, os.Stdin, os.Stdout, logger, opts); err != nil {
		log.Fatalf("!! %+v", err)
	}
}

func splitPaths(s string) []string {
	var paths []string
	for _, p := range strings.Split(s, ",") {
		if p = strings.TrimSpace(p); p != "" {
			paths = append(paths, p)
		}
	}
	return paths
}

func run(ctx context.Context, in io.Reader, out io.Writer, logger *slog.Logger, opts options) error {
	ip, err := minihs.New(minihs.WithLogger(logger), minihs.WithSearchPath(opts.paths...))
	if err != nil {
		return err
	}
	s := evalsession.New(ip, evalsession.WithLogger(logger))

	for _, b := range opts.binds {
		if err := bind(ctx, s, b); err != nil {
			return err
		}
	}

	if opts.expr != "" {
		v, err := s.Evaluate(ctx, opts.expr)
		if err != nil {
			return err
		}
		printValue(out, v)
		return nil
	}
	return repl(ctx, s, in, out)
}

// bind handles "name[::Type]=value".
func bind(ctx context.Context, s *evalsession.Session, arg string) error {
	key, raw, ok := strings.Cut(arg, "=")
	if !ok {
		return fmt.Errorf("invalid binding %q: expected name[::Type]=value", arg)
	}
	return s.Bind(ctx, strings.TrimSpace(key), parseValue(raw))
}

// parseValue reads raw as an int or a bool, falling back to the string itself.
func parseValue(raw string) any {
	if n, err := strconv.Atoi(raw); err == nil {
		return n
	}
	if b, err := strconv.ParseBool(raw); err == nil {
		return b
	}
	return raw
}

func printValue(out io.Writer, v any) {
	if v == nil {
		return
	}
	fmt.Fprintf(out, ": %v\n", v)
}

// repl evaluates one fragment per line. A line ending with a backslash
// continues on the next line.
func repl(ctx context.Context, s *evalsession.Session, in io.Reader, out io.Writer) error {
	sc := bufio.NewScanner(in)
	var buf strings.Builder
	for sc.Scan() {
		line := sc.Text()
		if rest, ok := strings.CutSuffix(line, `\`); ok {
			buf.WriteString(rest)
			buf.WriteString("\n")
			continue
		}
		buf.WriteString(line)
		text := buf.String()
		buf.Reset()

		cmd := strings.TrimSpace(text)
		switch {
		case cmd == "":
			continue
		case cmd == ":quit":
			return nil
		case cmd == ":defs":
			for _, def := range s.Definitions() {
				fmt.Fprintln(out, strings.TrimSpace(def))
			}
			continue
		case cmd == ":prelude":
			fmt.Fprint(out, s.Prelude())
			continue
		case strings.HasPrefix(cmd, ":bind "):
			if err := bind(ctx, s, strings.TrimPrefix(cmd, ":bind ")); err != nil {
				fmt.Fprintf(out, "error: %v\n", err)
			}
			continue
		}

		v, err := s.Evaluate(ctx, text)
		if err != nil {
			fmt.Fprintf(out, "error: %v\n", err)
			if ctx.Err() != nil {
				return ctx.Err()
			}
			continue
		}
		printValue(out, v)
	}
	return sc.Err()
}
