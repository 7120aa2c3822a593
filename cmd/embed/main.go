// Command embed computes embeddings against a hosted endpoint and can index
// and search texts in a Qdrant-backed graph store.
package main

import (
	"context"
	"encoding/json"
	"errors"
	"flag"
	"fmt"
	"io"
	"os"
	"os/signal"
	"syscall"

	"github.com/joho/godotenv"
)

// Build-time variables set via ldflags.
var (
	version = "dev"
	commit  = "none"
)

var errUsage = errors.New("usage")

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdin, os.Stdout); err != nil {
		if !errors.Is(err, errUsage) {
			fmt.Fprintf(os.Stderr, "error: %v\n", err)
		}
		os.Exit(1)
	}
}

// options holds the flags shared by every subcommand.
type options struct {
	configPath  string
	envFile     string
	metricsAddr string
	file        string
	pretty      bool

	// index and search only
	searchType string
	k          int
	depth      int
}

func run(ctx context.Context, args []string, stdin io.Reader, stdout io.Writer) error {
	if len(args) == 0 {
		printUsage(os.Stderr)
		return errUsage
	}

	cmd := args[0]
	switch cmd {
	case "query", "documents", "index", "search":
	case "version", "-v", "--version":
		fmt.Fprintf(stdout, "embed %s (commit: %s)\n", version, commit)
		return nil
	case "help", "-h", "--help":
		printUsage(stdout)
		return nil
	default:
		printUsage(os.Stderr)
		return fmt.Errorf("unknown command %q", cmd)
	}

	opts, rest, err := parseFlags(cmd, args[1:])
	if err != nil {
		return err
	}

	if err := loadEnv(opts.envFile); err != nil {
		return err
	}

	texts, err := collectTexts(cmd, rest, opts.file, stdin)
	if err != nil {
		return err
	}

	result, err := execute(ctx, cmd, opts, texts)
	if err != nil {
		return err
	}
	return writeJSON(stdout, result, opts.pretty)
}

func parseFlags(cmd string, args []string) (options, []string, error) {
	var opts options

	fs := flag.NewFlagSet(cmd, flag.ContinueOnError)
	fs.StringVar(&opts.configPath, "config", "", "YAML file with embedding settings (env overrides it)")
	fs.StringVar(&opts.envFile, "env", "", "dotenv file with credentials (default: .env if present)")
	fs.StringVar(&opts.metricsAddr, "metrics-addr", "", "serve Prometheus metrics on this address while running")
	fs.BoolVar(&opts.pretty, "pretty", false, "indent JSON output")
	if cmd != "query" {
		fs.StringVar(&opts.file, "file", "", "read texts from a file, one per line (- for stdin)")
	}
	if cmd == "search" {
		fs.StringVar(&opts.searchType, "type", "traversal", "similarity, similarity_score_threshold, mmr, traversal or mmr_traversal")
		fs.IntVar(&opts.k, "k", 4, "number of results")
		fs.IntVar(&opts.depth, "depth", -1, "traversal depth (-1 keeps the search type default)")
	}

	if err := fs.Parse(args); err != nil {
		return options{}, nil, err
	}
	return opts, fs.Args(), nil
}

// loadEnv loads credentials from a dotenv file. An explicit file must exist;
// the default .env is optional. Variables already set are not overridden.
func loadEnv(path string) error {
	if path == "" {
		if _, err := os.Stat(".env"); err != nil {
			return nil
		}
		path = ".env"
	}
	if err := godotenv.Load(path); err != nil {
		return fmt.Errorf("load env file %s: %w", path, err)
	}
	return nil
}

func writeJSON(w io.Writer, v any, pretty bool) error {
	enc := json.NewEncoder(w)
	if pretty {
		enc.SetIndent("", "  ")
	}
	if err := enc.Encode(v); err != nil {
		return fmt.Errorf("write output: %w", err)
	}
	return nil
}

func printUsage(w io.Writer) {
	fmt.Fprintln(w, `embed - hosted embedding endpoint client

Usage:
  embed query [flags] <text>            Embed one query, print one vector
  embed documents [flags] <text>...     Embed documents, print one vector per input
  embed index [flags] <text>...         Embed texts and store them in Qdrant
  embed search [flags] <query>          Search the Qdrant graph store
  embed version                         Show version info
  embed help                            Show this help

Flags:
  -config string        YAML file with embedding settings
  -env string           dotenv file with credentials (default .env)
  -metrics-addr string  serve Prometheus metrics while running
  -file string          documents/index: one text per line (- for stdin)
  -pretty               indent JSON output
  -type string          search: search type (default traversal)
  -k int                search: number of results (default 4)
  -depth int            search: traversal depth

Environment:
  EMBEDDING_ENDPOINT, EMBEDDING_API_TOKEN, EMBEDDING_FORMAT, EMBEDDING_PROVIDER, ...
  QDRANT_ENDPOINT, QDRANT_PORT, QDRANT_COLLECTION, QDRANT_VECTOR_SIZE, ...`)
}
