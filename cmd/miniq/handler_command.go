package main

import (
	"errors"
	"fmt"
	"os"
	"strings"

	"github.com/spf13/cobra"

	"miniq/internal/handlers"
	"miniq/internal/ids"
	"miniq/internal/jobstore"
)

func newHandlerCommand(ctx *commandContext) *cobra.Command {
	handlerCmd := &cobra.Command{
		Use:   "handler",
		Short: "Manage stored job handlers",
	}
	handlerCmd.AddCommand(newHandlerSetCommand(ctx))
	handlerCmd.AddCommand(newHandlerShowCommand(ctx))
	return handlerCmd
}

func newHandlerSetCommand(ctx *commandContext) *cobra.Command {
	var lang string
	var file string

	cmd := &cobra.Command{
		Use:   "set TYPE [BODY]",
		Short: "Store the handler that runs jobs of TYPE",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			body, err := handlerBody(args[1:], file)
			if err != nil {
				return err
			}
			jobType := strings.TrimSpace(args[0])
			return ctx.withStore(cmd.Context(), func(store jobstore.Store) error {
				hs := handlers.New(store, ids.New())
				if err := hs.Set(cmd.Context(), jobType, handlers.Handler{Lang: lang, Body: body}); err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "Stored %s handler for %s\n", strings.ToLower(strings.TrimSpace(lang)), jobType)
				return nil
			})
		},
	}
	cmd.Flags().StringVar(&lang, "lang", handlers.LangShell, "Handler language")
	cmd.Flags().StringVarP(&file, "file", "f", "", "Read the handler body from a file")
	return cmd
}

func handlerBody(args []string, file string) (string, error) {
	file = strings.TrimSpace(file)
	switch {
	case file != "" && len(args) > 0:
		return "", errors.New("BODY and --file are mutually exclusive")
	case file != "":
		data, err := os.ReadFile(file)
		if err != nil {
			return "", fmt.Errorf("read handler file: %w", err)
		}
		return string(data), nil
	case len(args) > 0:
		return args[0], nil
	}
	return "", errors.New("handler body is required (BODY or --file)")
}

func newHandlerShowCommand(ctx *commandContext) *cobra.Command {
	var asJSON bool
	cmd := &cobra.Command{
		Use:   "show TYPE",
		Short: "Print the current handler of TYPE",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return ctx.withStore(cmd.Context(), func(store jobstore.Store) error {
				handler, err := handlers.New(store, ids.New()).Get(cmd.Context(), strings.TrimSpace(args[0]))
				if err != nil {
					return err
				}
				if asJSON {
					return writeJSON(cmd, struct {
						handlers.Handler
						UpdatedAt string `json:"updated_at,omitempty"`
					}{Handler: handler, UpdatedAt: formatOptionalTime(handler)})
				}
				out := cmd.OutOrStdout()
				fmt.Fprintf(out, "Lang: %s\n", handler.Lang)
				if updated := formatOptionalTime(handler); updated != "" {
					fmt.Fprintf(out, "Updated: %s\n", updated)
				}
				fmt.Fprintln(out, strings.TrimRight(handler.Body, "\n"))
				return nil
			})
		},
	}
	cmd.Flags().BoolVar(&asJSON, "json", false, "Output JSON")
	return cmd
}

func formatOptionalTime(handler handlers.Handler) string {
	if handler.UpdatedAt.IsZero() {
		return ""
	}
	return formatTime(handler.UpdatedAt)
}
