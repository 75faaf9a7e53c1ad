package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
	"github.com/spf13/cobra"
)

type options struct {
	url     string
	timeout time.Duration
}

func newRootCmd() *cobra.Command {
	opts := &options{}
	root := &cobra.Command{
		Use:           "ucsctl",
		Short:         "Talk to a UCS gateway over its websocket",
		SilenceUsage:  true,
		SilenceErrors: false,
	}
	root.PersistentFlags().StringVar(&opts.url, "url", "ws://localhost:8080/ucs", "gateway websocket URL")
	root.PersistentFlags().DurationVar(&opts.timeout, "timeout", 10*time.Second, "how long to wait for a response")

	root.AddCommand(newSendCmd(opts), newTailCmd(opts))
	return root
}

func newSendCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "send <type> [json]",
		Short: "Send one command frame and print its response",
		Args:  cobra.RangeArgs(1, 2),
		RunE: func(cmd *cobra.Command, args []string) error {
			params := ""
			if len(args) == 2 {
				params = args[1]
			}
			callbackID := uuid.NewString()
			frame, err := buildFrame(args[0], callbackID, params)
			if err != nil {
				return err
			}

			ctx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			conn, _, err := websocket.DefaultDialer.DialContext(ctx, opts.url, nil)
			if err != nil {
				return fmt.Errorf("dial %s: %w", opts.url, err)
			}
			defer conn.Close()

			if deadline, ok := ctx.Deadline(); ok {
				_ = conn.SetReadDeadline(deadline)
			}
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				return fmt.Errorf("write frame: %w", err)
			}
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					return fmt.Errorf("waiting for response: %w", err)
				}
				if !isResponseFor(data, callbackID) {
					continue
				}
				return printFrame(cmd.OutOrStdout(), data)
			}
		},
	}
}

func newTailCmd(opts *options) *cobra.Command {
	return &cobra.Command{
		Use:   "tail",
		Short: "Print broadcast events until interrupted",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			dialCtx, cancel := context.WithTimeout(cmd.Context(), opts.timeout)
			defer cancel()
			conn, _, err := websocket.DefaultDialer.DialContext(dialCtx, opts.url, nil)
			if err != nil {
				return fmt.Errorf("dial %s: %w", opts.url, err)
			}
			defer conn.Close()

			go func() {
				<-cmd.Context().Done()
				_ = conn.Close()
			}()
			for {
				_, data, err := conn.ReadMessage()
				if err != nil {
					if cmd.Context().Err() != nil || websocket.IsCloseError(err, websocket.CloseNormalClosure) {
						return nil
					}
					return err
				}
				if !isEvent(data) {
					continue
				}
				if err := printFrame(cmd.OutOrStdout(), data); err != nil {
					return err
				}
			}
		},
	}
}

// buildFrame merges params into a frame carrying type and callbackId.
func buildFrame(msgType, callbackID, params string) ([]byte, error) {
	if msgType == "" {
		return nil, errors.New("type is required")
	}
	fields := map[string]any{}
	if params != "" {
		if err := json.Unmarshal([]byte(params), &fields); err != nil {
			return nil, fmt.Errorf("params must be a JSON object: %w", err)
		}
	}
	fields["type"] = msgType
	fields["callbackId"] = callbackID
	return json.Marshal(fields)
}

func isResponseFor(frame []byte, callbackID string) bool {
	var head struct {
		CallbackID string `json:"callbackId"`
	}
	if err := json.Unmarshal(frame, &head); err != nil {
		return false
	}
	return head.CallbackID == callbackID
}

func isEvent(frame []byte) bool {
	var head struct {
		Type  string          `json:"type"`
		Value json.RawMessage `json:"value"`
	}
	if err := json.Unmarshal(frame, &head); err != nil {
		return false
	}
	return head.Type != "" && len(head.Value) > 0
}

func printFrame(w io.Writer, frame []byte) error {
	var v any
	if err := json.Unmarshal(frame, &v); err != nil {
		_, err = fmt.Fprintln(w, string(frame))
		return err
	}
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
