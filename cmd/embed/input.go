package main

import (
	"bufio"
	"fmt"
	"io"
	"os"
	"strings"
)

// maxLineSize bounds a single document read from a file.
const maxLineSize = 1 << 20

// collectTexts gathers the texts a subcommand operates on. query and search
// join their arguments into one text; documents and index take one text per
// argument followed by one per non-empty line of file.
func collectTexts(cmd string, args []string, file string, stdin io.Reader) ([]string, error) {
	switch cmd {
	case "query", "search":
		if len(args) == 0 {
			return nil, fmt.Errorf("%s needs a text argument", cmd)
		}
		return []string{strings.Join(args, " ")}, nil
	}

	texts := append([]string(nil), args...)
	if file != "" {
		lines, err := readLinesFrom(file, stdin)
		if err != nil {
			return nil, err
		}
		texts = append(texts, lines...)
	}
	if len(texts) == 0 {
		return nil, fmt.Errorf("%s needs text arguments or -file", cmd)
	}
	return texts, nil
}

func readLinesFrom(file string, stdin io.Reader) ([]string, error) {
	if file == "-" {
		return readLines(stdin)
	}

	f, err := os.Open(file)
	if err != nil {
		return nil, fmt.Errorf("open %s: %w", file, err)
	}
	defer f.Close()

	lines, err := readLines(f)
	if err != nil {
		return nil, fmt.Errorf("read %s: %w", file, err)
	}
	return lines, nil
}

func readLines(r io.Reader) ([]string, error) {
	sc := bufio.NewScanner(r)
	sc.Buffer(make([]byte, 0, 64*1024), maxLineSize)

	var lines []string
	for sc.Scan() {
		line := strings.TrimRight(sc.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		lines = append(lines, line)
	}
	if err := sc.Err(); err != nil {
		return nil, err
	}
	return lines, nil
}
