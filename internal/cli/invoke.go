package cli

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	"github.com/spf13/cobra"
)

// InvokeOptions holds flags for the invoke command.
type InvokeOptions struct {
	*RootOptions
	Params  string
	Timeout time.Duration
	URL     string
	Token   string
}

// NewInvokeCommand creates the invoke command.
func NewInvokeCommand(rootOpts *RootOptions) *cobra.Command {
	opts := &InvokeOptions{RootOptions: rootOpts}

	cmd := &cobra.Command{
		Use:   "invoke <method>",
		Short: "Call one gateway method and print its result",
		Long: `Call one gateway method and print its result as JSON.

Example:
  clawdash invoke sessions.usage --params '{"startDate":"2026-01-01","endDate":"2026-01-31","limit":200}'`,
		Args: cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return invokeMethod(cmd, opts, args[0])
		},
	}

	cmd.Flags().StringVar(&opts.Params, "params", "{}", "method params as a JSON object")
	cmd.Flags().DurationVar(&opts.Timeout, "timeout", 0, "call deadline (default gateway.timeout)")
	cmd.Flags().StringVar(&opts.URL, "url", "", "gateway URL (overrides gateway.url)")
	cmd.Flags().StringVar(&opts.Token, "token", "", "gateway token (overrides gateway.token)")

	return cmd
}

func invokeMethod(cmd *cobra.Command, opts *InvokeOptions, method string) error {
	var params map[string]any
	if err := json.Unmarshal([]byte(opts.Params), &params); err != nil {
		return fmt.Errorf("invalid --params JSON: %w", err)
	}

	cfg := *opts.Config
	if opts.URL != "" {
		cfg.Gateway.URL = opts.URL
		cfg.Gateway.Discovery.Etcd = nil
	}
	if opts.Token != "" {
		cfg.Gateway.Token = opts.Token
	}

	gateway, cleanup, err := newGatewayClient(&cfg, opts.Logger)
	if err != nil {
		return err
	}
	defer cleanup()

	payload, err := gateway.Invoke(cmd.Context(), method, params, opts.Timeout)
	if err != nil {
		return err
	}

	var out bytes.Buffer
	if len(payload) == 0 {
		payload = []byte("null")
	}
	if err := json.Indent(&out, payload, "", "  "); err != nil {
		return err
	}
	out.WriteByte('\n')
	_, err = out.WriteTo(cmd.OutOrStdout())
	return err
}
