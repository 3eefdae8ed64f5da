package main

import (
	"bufio"
	"flag"
	"fmt"
	"io"
	"os"
	"strings"

	"github.com/rs/zerolog"

	"github.com/zephyrtronium/formula"
)

func main() {
	var (
		inname  string
		with    [][2]string
		echo, v bool
		prec    uint
	)
	addwith := func(s string) error {
		d := strings.SplitN(s, "=", 2)
		if len(d) != 2 {
			return fmt.Errorf(`variable definitions must be "name=formula", not %q`, s)
		}
		with = append(with, [2]string{strings.TrimSpace(d[0]), strings.TrimSpace(d[1])})
		return nil
	}
	flag.StringVar(&inname, "in", "", "input file (default stdin if no args given)")
	flag.Func("given", "name=formula variable definition (any number of times)", addwith)
	flag.UintVar(&prec, "p", formula.DefaultPrecision, "significant decimal digits of calculations")
	flag.BoolVar(&echo, "echo", false, "print parse trees")
	flag.BoolVar(&v, "v", false, "log graph events")
	flag.Parse()

	level := zerolog.WarnLevel
	if v {
		level = zerolog.DebugLevel
	}
	log := zerolog.New(zerolog.ConsoleWriter{Out: os.Stderr}).Level(level).With().Timestamp().Logger()
	if prec == 0 || prec > 1e6 {
		log.Fatal().Uint("p", prec).Msg("precision must be between 1 and 1000000")
	}

	g := formula.NewGraph(formula.Precision(uint32(prec)), formula.WithLogger(log))
	s := &session{g: g, echo: echo}
	for _, d := range with {
		if _, err := s.exec(d[0] + " := " + d[1]); err != nil {
			log.Fatal().Err(err).Str("name", d[0]).Msg("bad definition")
		}
	}

	var ins []io.Reader
	f, err := infile(inname, flag.NArg() == 0)
	if err != nil {
		log.Fatal().Err(err).Msg("can't open input")
	}
	if f != nil {
		ins = append(ins, f)
	}
	for _, arg := range flag.Args() {
		ins = append(ins, strings.NewReader(arg))
	}

	failed := false
	for _, in := range ins {
		sc := bufio.NewScanner(in)
		for sc.Scan() {
			out, err := s.exec(sc.Text())
			if err != nil {
				fmt.Fprintln(os.Stderr, err)
				failed = true
				continue
			}
			if out != "" {
				fmt.Println(out)
			}
		}
		if err := sc.Err(); err != nil {
			log.Fatal().Err(err).Msg("reading input")
		}
	}
	if failed {
		os.Exit(1)
	}
}

// session executes input lines against a graph. A line is one of:
//
//	name := formula    define or redefine a variable in the root context
//	del name           remove a variable
//	formula            evaluate a formula and print its value
//
// Blank lines and lines starting with # are ignored.
type session struct {
	g    *formula.Graph
	echo bool
}

func (s *session) exec(line string) (string, error) {
	line = strings.TrimSpace(line)
	if line == "" || strings.HasPrefix(line, "#") {
		return "", nil
	}
	root := s.g.Root()
	if name, text, ok := strings.Cut(line, ":="); ok {
		name = strings.TrimSpace(name)
		v := root.Variable(name)
		if v == nil {
			var err error
			v, err = root.AddVariable(name)
			if err != nil {
				return "", err
			}
		}
		return "", v.SetFormula(text, formula.CreateVariables())
	}
	if name, ok := strings.CutPrefix(line, "del "); ok {
		name = strings.TrimSpace(name)
		v := root.Variable(name)
		if v == nil {
			return "", fmt.Errorf("no variable %q", name)
		}
		if !root.RemoveVariable(v) {
			return "", fmt.Errorf("%s is in use", name)
		}
		return "", nil
	}
	e, err := root.Parse(line)
	if err != nil {
		return "", err
	}
	r := e.Evaluate()
	out := r.String()
	if err, ok := r.(formula.Error); ok {
		out = err.Error()
	}
	if s.echo {
		out = e.String() + " : " + out
	}
	return out, nil
}

func infile(inname string, std bool) (io.Reader, error) {
	switch {
	case inname != "" && inname != "-":
		return os.Open(inname)
	case inname == "-", std:
		return os.Stdin, nil
	}
	return nil, nil
}
