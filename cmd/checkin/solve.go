package main

import (
	"encoding/json"
	"fmt"
	"io"
	"os"

	"github.com/jedib0t/go-pretty/v6/table"
	"github.com/spf13/cobra"

	"github.com/ytget/checkin/internal/jsvm"
	"github.com/ytget/checkin/waf"
)

// solveOutput is the JSON form of an offline solve.
type solveOutput struct {
	Grammar   string         `json:"grammar"`
	Detected  bool           `json:"detected"`
	Challenge *waf.Challenge `json:"challenge,omitempty"`
	Fragment  string         `json:"fragment,omitempty"`
	Cookie    string         `json:"cookie,omitempty"`
	Engine    string         `json:"engine,omitempty"`
	Error     string         `json:"error,omitempty"`
}

func newSolveCmd() *cobra.Command {
	var (
		engineName string
		asJSON     bool
	)
	cmd := &cobra.Command{
		Use:   "solve <file|->",
		Short: "Decode a saved challenge page offline",
		Long: "Extracts the challenge parameters from a saved page, runs the decoder and\n" +
			"prints the clearance cookie. Use it to check whether the challenge format\n" +
			"has drifted. With --engine the page scripts are also run in a JS engine.",
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			page, err := readPage(cmd.InOrStdin(), args[0])
			if err != nil {
				return err
			}
			out := solvePage(cmd, page, engineName)
			if asJSON {
				enc := json.NewEncoder(cmd.OutOrStdout())
				enc.SetIndent("", "  ")
				if err := enc.Encode(out); err != nil {
					return err
				}
			} else {
				printSolve(cmd.OutOrStdout(), out)
			}
			if out.Cookie == "" {
				return fmt.Errorf("no clearance cookie: %s", out.Error)
			}
			return nil
		},
	}
	cmd.Flags().StringVar(&engineName, "engine", "", "cross-check with a JS engine (otto or goja)")
	cmd.Flags().BoolVar(&asJSON, "json", false, "print JSON")
	return cmd
}

func readPage(stdin io.Reader, name string) (string, error) {
	var (
		b   []byte
		err error
	)
	if name == "-" {
		b, err = io.ReadAll(stdin)
	} else {
		b, err = os.ReadFile(name)
	}
	if err != nil {
		return "", fmt.Errorf("read page: %w", err)
	}
	return string(b), nil
}

func solvePage(cmd *cobra.Command, page, engineName string) solveOutput {
	g := waf.DefaultGrammar()
	out := solveOutput{Grammar: g.Name(), Detected: g.Detect(page)}

	ch, err := waf.ExtractAll(g, page)
	if err == nil {
		out.Challenge = &ch
		out.Fragment = waf.Decode(ch.Array, ch.Seed, ch.Params)
		if kv, ok := waf.CookieKV(out.Fragment); ok {
			out.Cookie = kv
		} else {
			out.Error = "decoded script assigns no cookie"
		}
	} else {
		out.Error = err.Error()
	}

	if engineName == "" {
		return out
	}
	engine, err := jsvm.New(engineName, jsvm.Options{})
	if err != nil {
		out.Error = err.Error()
		return out
	}
	out.Engine = engine.Name()
	raw, err := engine.Evaluate(cmd.Context(), page)
	if err != nil {
		if out.Cookie == "" {
			out.Error = fmt.Sprintf("%s; %s: %v", out.Error, engine.Name(), err)
		}
		return out
	}
	kv, ok := waf.FirstPair(raw)
	switch {
	case !ok:
	case out.Cookie == "":
		out.Cookie = kv
		out.Error = ""
	case out.Cookie != kv:
		out.Error = fmt.Sprintf("%s disagrees with decoder: %s", engine.Name(), kv)
	}
	return out
}

func printSolve(w io.Writer, out solveOutput) {
	t := table.NewWriter()
	t.SetOutputMirror(w)
	t.SetStyle(table.StyleRounded)
	t.AppendRow(table.Row{"grammar", out.Grammar})
	t.AppendRow(table.Row{"detected", out.Detected})
	if ch := out.Challenge; ch != nil {
		p := ch.Params
		t.AppendRow(table.Row{"oo length", len(ch.Array)})
		t.AppendRow(table.Row{"wi", ch.Seed})
		t.AppendRow(table.Row{"loop1", fmt.Sprintf("start=%d >>%d <<%d -%d", p.Loop1Start, p.ShiftR, p.ShiftL, p.Sub)})
		t.AppendRow(table.Row{"loop2", fmt.Sprintf("start=%d", p.Loop2Start)})
		t.AppendRow(table.Row{"loop3", fmt.Sprintf("upper=%d +%d +%d rotl=%d", p.Loop3Upper, p.Add1, p.Add2, p.RotL)})
		t.AppendRow(table.Row{"mod skip", p.ModSkip})
	}
	if out.Engine != "" {
		t.AppendRow(table.Row{"engine", out.Engine})
	}
	if out.Cookie != "" {
		t.AppendRow(table.Row{"cookie", out.Cookie})
	}
	if out.Error != "" {
		t.AppendRow(table.Row{"error", out.Error})
	}
	t.Render()
}
