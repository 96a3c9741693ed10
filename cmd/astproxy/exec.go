package main

import (
	"context"
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"time"

	"github.com/spf13/cobra"

	"github.com/arzzra/astproxy/pkg/ami/command"
	"github.com/arzzra/astproxy/pkg/ami/proxy"
)

func newExecCmd(a *app) *cobra.Command {
	var timeout time.Duration

	cmd := &cobra.Command{
		Use:   "exec <verb> [key=value ...]",
		Short: "Run one command against the PBX and print the result as JSON",
		Example: `  astproxy exec listChannels
  astproxy exec dndGet exten=214
  astproxy exec redirectChannel chToRedirect=SIP/200-00000001 to=201`,
		Args: cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			cmdArgs, err := parseArgs(args[1:])
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), timeout)
			defer cancel()

			return a.exec(ctx, cmd.OutOrStdout(), args[0], cmdArgs)
		},
	}

	cmd.Flags().DurationVar(&timeout, "timeout", 10*time.Second, "how long to wait for the PBX reply")
	return cmd
}

func (a *app) exec(ctx context.Context, out io.Writer, verb string, args command.Args) error {
	p, err := proxy.New(a.cfg.Transport(), proxy.WithLogger(a.logger))
	if err != nil {
		return err
	}
	if err := p.Start(ctx); err != nil {
		return err
	}
	defer p.Close()

	result, err := p.Do(ctx, verb, args)
	if err != nil {
		return err
	}
	return writeResult(out, result)
}

// parseArgs разбирает аргументы вида key=value
func parseArgs(pairs []string) (command.Args, error) {
	args := make(command.Args, len(pairs))
	for _, kv := range pairs {
		key, value, ok := strings.Cut(kv, "=")
		if !ok || key == "" {
			return nil, fmt.Errorf("argument %q: expected key=value", kv)
		}
		args[key] = value
	}
	return args, nil
}

func writeResult(out io.Writer, result any) error {
	if result == nil {
		_, err := fmt.Fprintln(out, "ok")
		return err
	}
	enc := json.NewEncoder(out)
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}
