package main

import (
	"bufio"
	"context"
	"encoding/json"
	"errors"
	"fmt"

	"github.com/spf13/cobra"

	"github.com/aussiebroadwan/tabgate/pkg/gatewaysdk"
)

func newConnectCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "connect",
		Short: "Open a gateway connection and exchange frames",
		Long: `Opens a websocket with the stored access token. Each line read from stdin
is sent as one frame; every received frame is printed.`,
		RunE: func(cmd *cobra.Command, _ []string) error {
			s, persist, err := session()
			if err != nil {
				return err
			}
			defer persist()

			ctx, cancel := context.WithCancel(cmd.Context())
			defer cancel()

			conn, err := s.Dial(ctx)
			if err != nil {
				return err
			}
			defer conn.Close()

			readErr := make(chan error, 1)
			go func() {
				for {
					m, err := conn.Receive(ctx)
					if err != nil {
						readErr <- err
						return
					}
					fmt.Fprintln(cmd.OutOrStdout(), string(m.Raw))
				}
			}()

			lines := make(chan string)
			go func() {
				sc := bufio.NewScanner(cmd.InOrStdin())
				for sc.Scan() {
					lines <- sc.Text()
				}
				close(lines)
			}()

			for {
				select {
				case err := <-readErr:
					var ce *gatewaysdk.CloseError
					if errors.As(err, &ce) {
						fmt.Fprintf(cmd.ErrOrStderr(), "connection closed: %d %s\n", ce.Code, ce.Reason)
						return nil
					}
					return err
				case line, ok := <-lines:
					if !ok {
						return nil
					}
					if line == "" {
						continue
					}
					if !json.Valid([]byte(line)) {
						fmt.Fprintln(cmd.ErrOrStderr(), "skipping invalid JSON line")
						continue
					}
					if err := conn.Send(ctx, json.RawMessage(line)); err != nil {
						return err
					}
				case <-ctx.Done():
					return nil
				}
			}
		},
	}
}
