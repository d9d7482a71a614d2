package main

import (
	"bufio"
	"errors"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"miniq/internal/ids"
	"miniq/internal/journal"
)

// producerSysidPrefix starts the random sysid the CLI stamps on new ids when
// --sysid is not given.
const producerSysidPrefix = "c"

const maxPayloadLine = 1 << 20

func newAddCommand(ctx *commandContext) *cobra.Command {
	var fromStdin bool
	var sysid string

	cmd := &cobra.Command{
		Use:   "add TYPE [PAYLOAD]",
		Short: "Enqueue jobs through the journal",
		Long: "Writes one job of TYPE per payload to the configured journal and waits until\n" +
			"the lines are durable. With --stdin every non-empty input line is a payload.",
		Args: cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			jobType := strings.TrimSpace(args[0])
			payloads, err := collectPayloads(cmd.InOrStdin(), args[1:], fromStdin)
			if err != nil {
				return err
			}
			if len(payloads) == 0 {
				return errors.New("no payloads to enqueue")
			}

			producer := strings.TrimSpace(sysid)
			if producer == "" {
				producer = ids.ProducerSysid(producerSysidPrefix)
			}
			jobIDs := ids.New().NextN(producer, len(payloads))
			lines := make([]string, len(payloads))
			for i, payload := range payloads {
				line, err := journal.EncodeRecord(journal.Record{ID: jobIDs[i], Type: jobType, Payload: payload})
				if err != nil {
					return fmt.Errorf("payload %d: %w", i+1, err)
				}
				lines[i] = line
			}

			err = ctx.withJournal(cmd.Context(), func(j journal.Journal) error {
				if err := j.Write(cmd.Context(), lines); err != nil {
					return fmt.Errorf("write journal: %w", err)
				}
				if err := j.Sync(cmd.Context()); err != nil {
					return fmt.Errorf("sync journal: %w", err)
				}
				return nil
			})
			if err != nil {
				return err
			}

			out := cmd.OutOrStdout()
			for _, id := range jobIDs {
				fmt.Fprintln(out, id)
			}
			return nil
		},
	}

	cmd.Flags().BoolVar(&fromStdin, "stdin", false, "Read one payload per line from stdin")
	cmd.Flags().StringVar(&sysid, "sysid", "", "Producer id embedded in the new job ids")
	return cmd
}

func collectPayloads(in io.Reader, args []string, fromStdin bool) ([]string, error) {
	if !fromStdin {
		if len(args) == 0 {
			return []string{""}, nil
		}
		return []string{args[0]}, nil
	}
	if len(args) > 0 {
		return nil, errors.New("PAYLOAD and --stdin are mutually exclusive")
	}

	var payloads []string
	scanner := bufio.NewScanner(in)
	scanner.Buffer(make([]byte, 0, 64*1024), maxPayloadLine)
	for scanner.Scan() {
		line := strings.TrimRight(scanner.Text(), "\r")
		if strings.TrimSpace(line) == "" {
			continue
		}
		payloads = append(payloads, line)
	}
	if err := scanner.Err(); err != nil {
		return nil, fmt.Errorf("read stdin: %w", err)
	}
	return payloads, nil
}
