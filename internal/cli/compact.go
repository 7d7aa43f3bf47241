package cli

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"os"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"golang.org/x/term"
	"gopkg.in/yaml.v3"

	"finchat/internal/compaction"
	"finchat/internal/server"
)

type compactOptions struct {
	file       string
	budget     int
	summarizer string
	timeout    time.Duration
	jsonOutput bool
	stats      bool
}

// NewCompactCmd creates the compact command.
func NewCompactCmd() *cobra.Command {
	var opts compactOptions

	cmd := &cobra.Command{
		Use:   "compact",
		Short: "Compact a transcript file into a bounded context",
		Long: `Compact a YAML transcript offline, without touching the database.

The transcript is either a list of messages or a mapping with a
"messages" key; each message has a role (user or assistant) and text:

  messages:
    - role: user
      text: How much did I spend on groceries in March?
    - role: assistant
      text: 412 EUR across 9 receipts.

On a terminal the context is followed by a stats table; when piped only
the context is written unless --stats is given.`,
		Example: `  # Compact with the configured summarizer
  finchat compact --file chat.yaml

  # Tight budget, truncation only, machine-readable output
  finchat compact -f chat.yaml --budget 300 --summarizer truncate --json`,
		RunE: func(cmd *cobra.Command, args []string) error {
			return runCompact(cmd, opts)
		},
	}

	cmd.Flags().StringVarP(&opts.file, "file", "f", "", "transcript file, - for stdin")
	cmd.Flags().IntVar(&opts.budget, "budget", 0, "token budget (overrides config)")
	cmd.Flags().StringVar(&opts.summarizer, "summarizer", "", "summarizer kind: ollama, anthropic or truncate (overrides config)")
	cmd.Flags().DurationVar(&opts.timeout, "timeout", 0, "overall deadline; unfinished layers fall back to truncation")
	cmd.Flags().BoolVar(&opts.jsonOutput, "json", false, "print the full result as JSON")
	cmd.Flags().BoolVar(&opts.stats, "stats", false, "always print the stats table")
	_ = cmd.MarkFlagRequired("file")

	return cmd
}

func runCompact(cmd *cobra.Command, opts compactOptions) error {
	cliCtx, err := mustCLIContext(cmd)
	if err != nil {
		return err
	}

	messages, err := readTranscript(cmd.InOrStdin(), opts.file)
	if err != nil {
		return err
	}

	cfg := *cliCtx.Config
	if opts.budget > 0 {
		cfg.Compaction.MaxTokenBudget = opts.budget
	}
	if opts.summarizer != "" {
		cfg.Summarizer.Kind = opts.summarizer
	}
	engine, err := server.BuildEngine(&cfg, cliCtx.Logger)
	if err != nil {
		return err
	}

	ctx := cmd.Context()
	if opts.timeout > 0 {
		var cancel context.CancelFunc
		ctx, cancel = context.WithTimeout(ctx, opts.timeout)
		defer cancel()
	}
	result := engine.Compact(ctx, messages)

	out := cmd.OutOrStdout()
	if opts.jsonOutput {
		enc := json.NewEncoder(out)
		enc.SetIndent("", "  ")
		return enc.Encode(result)
	}

	if result.Context != "" {
		fmt.Fprintln(out, result.Context)
	}
	switch {
	case isTerminal(out):
		fmt.Fprintln(out)
		return printStats(out, result)
	case opts.stats:
		return printStats(cmd.ErrOrStderr(), result)
	}
	return nil
}

type transcript struct {
	Messages []compaction.Message `yaml:"messages"`
}

func readTranscript(stdin io.Reader, path string) ([]compaction.Message, error) {
	var r io.Reader
	if path == "-" {
		r = stdin
	} else {
		f, err := os.Open(path)
		if err != nil {
			return nil, err
		}
		defer f.Close()
		r = f
	}

	messages, err := decodeTranscript(r)
	if err != nil {
		return nil, fmt.Errorf("read transcript %s: %w", path, err)
	}
	return messages, nil
}

// decodeTranscript accepts a bare message list or a {messages: [...]} mapping.
func decodeTranscript(r io.Reader) ([]compaction.Message, error) {
	var doc yaml.Node
	if err := yaml.NewDecoder(r).Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return nil, nil
		}
		return nil, err
	}
	if len(doc.Content) == 0 {
		return nil, nil
	}

	root := doc.Content[0]
	switch root.Kind {
	case yaml.SequenceNode:
		var messages []compaction.Message
		if err := root.Decode(&messages); err != nil {
			return nil, err
		}
		return messages, nil
	case yaml.MappingNode:
		var t transcript
		if err := root.Decode(&t); err != nil {
			return nil, err
		}
		return t.Messages, nil
	default:
		return nil, fmt.Errorf("line %d: expected a message list or a mapping with messages", root.Line)
	}
}

func printStats(w io.Writer, result compaction.Result) error {
	s := result.Stats
	tw := tabwriter.NewWriter(w, 0, 0, 2, ' ', 0)
	fmt.Fprintln(tw, "STAT\tVALUE")
	fmt.Fprintf(tw, "cycles\t%d\n", s.TotalCycles)
	fmt.Fprintf(tw, "verbatim\t%d\n", s.VerbatimCount)
	fmt.Fprintf(tw, "compressed\t%d\n", s.CompressedCount)
	fmt.Fprintf(tw, "layers\t%d\n", s.LayerCount)
	fmt.Fprintf(tw, "estimated tokens\t%d\n", s.EstimatedTokens)
	fmt.Fprintf(tw, "merges\t%d\n", s.MergeCount)
	fmt.Fprintf(tw, "fallbacks\t%d\n", s.FallbackCount)
	fmt.Fprintf(tw, "dropped turns\t%d\n", s.DroppedTurns)

	if len(result.Compaction.Layers) > 0 {
		fmt.Fprintln(tw)
		fmt.Fprintln(tw, "LAYER\tDEPTH\tRATIO\tSOURCE\tNOTE")
		for _, l := range result.Compaction.Layers {
			var notes []string
			if l.Merged {
				notes = append(notes, "merged")
			}
			if l.Fallback != compaction.FallbackNone {
				notes = append(notes, "fallback:"+string(l.Fallback))
			}
			fmt.Fprintf(tw, "%d-%d\t%d\t%g\t%d cycles\t%s\n",
				l.CycleRangeStart, l.CycleRangeEnd, l.Depth, l.CompressionRatio,
				l.OriginalCycleCount, strings.Join(notes, ","))
		}
	}
	return tw.Flush()
}

func isTerminal(w io.Writer) bool {
	f, ok := w.(*os.File)
	return ok && term.IsTerminal(int(f.Fd()))
}
