// Command guardcheck runs the guardrail evaluator over text from arguments or
// stdin, one line per evaluation, and prints each verdict as JSON.
package main

import (
	"bufio"
	"context"
	"encoding/json"
	"flag"
	"fmt"
	"log"
	"os"
	"strings"

	"github.com/ncecere/kereru_gateway/internal/guardrails"
)

func validateThreshold(v float64) error {
	if v <= 0 || v > 1 {
		return fmt.Errorf("threshold must be in (0, 1], got %v", v)
	}
	return nil
}

func main() {
	channel := flag.String("channel", "prompt", "prompt or output")
	patterns := flag.String("patterns", "", "optional YAML pattern file")
	regional := flag.Bool("regional", true, "include NZ regional patterns")
	threshold := flag.Float64("threshold", 0.7, "toxicity threshold, in (0, 1]")
	flag.Parse()

	if err := validateThreshold(*threshold); err != nil {
		log.Fatalf("%v", err)
	}

	ch := guardrails.Channel(*channel)
	if ch != guardrails.ChannelPrompt && ch != guardrails.ChannelOutput {
		log.Fatalf("channel must be prompt or output")
	}

	library := guardrails.DefaultLibrary()
	if *patterns != "" {
		var err error
		library, err = guardrails.LoadLibrary(*patterns)
		if err != nil {
			log.Fatalf("load patterns: %v", err)
		}
	}

	cfg := guardrails.DefaultConfig()
	cfg.ToxicityThreshold = *threshold
	evaluator := guardrails.NewEvaluator(cfg, library.Classifier(*regional), nil)

	enc := json.NewEncoder(os.Stdout)
	failed := false
	check := func(text string) {
		v := evaluator.Evaluate(context.Background(), ch, text)
		out := struct {
			Text string `json:"text"`
			guardrails.Verdict
			Message string `json:"message,omitempty"`
		}{Text: text, Verdict: v}
		if !v.Allowed {
			out.Message = guardrails.MessageFor(v.Reason)
			failed = true
		}
		if err := enc.Encode(out); err != nil {
			log.Fatalf("encode verdict: %v", err)
		}
	}

	if flag.NArg() > 0 {
		check(strings.Join(flag.Args(), " "))
	} else {
		scanner := bufio.NewScanner(os.Stdin)
		scanner.Buffer(make([]byte, 0, 64*1024), 1024*1024)
		for scanner.Scan() {
			if line := strings.TrimSpace(scanner.Text()); line != "" {
				check(line)
			}
		}
		if err := scanner.Err(); err != nil {
			fmt.Fprintf(os.Stderr, "read stdin: %v\n", err)
			os.Exit(2)
		}
	}
	if failed {
		os.Exit(1)
	}
}
