// paygatectl is the operator CLI. It talks to the running service's admin
// API; it never touches the database directly.
package main

import (
	"bytes"
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"os"
	"strings"
	"time"

	"github.com/joho/godotenv"
	"github.com/spf13/cobra"

	"github.com/dropDatabas3/paygate/internal/fulfillment"
)

var (
	flagAddr   string
	flagKey    string
	flagTenant string
)

func main() {
	_ = godotenv.Load()

	root := &cobra.Command{
		Use:           "paygatectl",
		Short:         "Operator CLI for the paygate service",
		SilenceUsage:  true,
		SilenceErrors: true,
	}

	root.PersistentFlags().StringVar(&flagAddr, "addr", envOr("PAYGATE_ADDR", "http://localhost:8080"), "service base URL")
	root.PersistentFlags().StringVar(&flagKey, "key", os.Getenv("PAYGATE_ADMIN_KEY"), "admin API key")
	root.PersistentFlags().StringVar(&flagTenant, "tenant", "", "tenant id")

	root.AddCommand(assetCmd())
	root.AddCommand(entitlementCmd())
	root.AddCommand(sweepCmd())
	root.AddCommand(webhookCmd())

	if err := root.Execute(); err != nil {
		fmt.Fprintln(os.Stderr, "error:", err)
		os.Exit(1)
	}
}

func envOr(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}

// ====================== HTTP plumbing ======================

func call(method, path string, body any) (map[string]any, error) {
	var rd io.Reader
	if body != nil {
		b, err := json.Marshal(body)
		if err != nil {
			return nil, err
		}
		rd = bytes.NewReader(b)
	}
	req, err := http.NewRequest(method, strings.TrimRight(flagAddr, "/")+path, rd)
	if err != nil {
		return nil, err
	}
	req.Header.Set("X-Admin-API-Key", flagKey)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}

	client := &http.Client{Timeout: 30 * time.Second}
	resp, err := client.Do(req)
	if err != nil {
		return nil, err
	}
	defer resp.Body.Close()

	raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
	var out map[string]any
	_ = json.Unmarshal(raw, &out)

	if resp.StatusCode/100 != 2 {
		desc := ""
		if out != nil {
			desc, _ = out["error_description"].(string)
			if desc == "" {
				desc, _ = out["error"].(string)
			}
		}
		return out, fmt.Errorf("%s %s: %d %s", method, path, resp.StatusCode, desc)
	}
	return out, nil
}

func printJSON(v any) {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	_ = enc.Encode(v)
}

func requireTenant() error {
	if flagTenant == "" {
		return fmt.Errorf("--tenant is required")
	}
	return nil
}

// ====================== assets ======================

func assetCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "asset", Short: "Catalog management"}

	var (
		title    string
		price    int64
		currency string
		storage  string
		duration float64
		publish  bool
	)
	create := &cobra.Command{
		Use:   "create",
		Short: "Create an asset",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(); err != nil {
				return err
			}
			out, err := call(http.MethodPost, "/v1/admin/assets", map[string]any{
				"tenantId":        flagTenant,
				"title":           title,
				"priceMinorUnits": price,
				"currency":        currency,
				"storageKey":      storage,
				"durationSeconds": duration,
				"published":       publish,
			})
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
	create.Flags().StringVar(&title, "title", "", "asset title")
	create.Flags().Int64Var(&price, "price", 0, "price in minor units (0 = free)")
	create.Flags().StringVar(&currency, "currency", "", "ISO currency code")
	create.Flags().StringVar(&storage, "storage-key", "", "media storage key")
	create.Flags().Float64Var(&duration, "duration", 0, "duration in seconds")
	create.Flags().BoolVar(&publish, "publish", false, "publish immediately")
	_ = create.MarkFlagRequired("title")
	_ = create.MarkFlagRequired("storage-key")

	list := &cobra.Command{
		Use:   "list",
		Short: "List the tenant's assets",
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(); err != nil {
				return err
			}
			out, err := call(http.MethodGet, "/v1/admin/assets?tenant_id="+url.QueryEscape(flagTenant), nil)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}

	var published bool
	setPublished := &cobra.Command{
		Use:   "publish <asset-id>",
		Short: "Publish or unpublish an asset",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(); err != nil {
				return err
			}
			out, err := call(http.MethodPost, "/v1/admin/assets/"+args[0]+"/publish", map[string]any{
				"tenantId":  flagTenant,
				"published": published,
			})
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
	setPublished.Flags().BoolVar(&published, "published", true, "published state to set")

	cmd.AddCommand(create, list, setPublished)
	return cmd
}

// ====================== entitlements ======================

func entitlementCmd() *cobra.Command {
	cmd := &cobra.Command{Use: "entitlement", Short: "Entitlement inspection and refunds"}

	get := &cobra.Command{
		Use:   "get <entitlement-id>",
		Short: "Show an entitlement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(); err != nil {
				return err
			}
			out, err := call(http.MethodGet, "/v1/admin/entitlements/"+args[0]+"?tenant_id="+url.QueryEscape(flagTenant), nil)
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}

	var reason, requestedBy string
	refund := &cobra.Command{
		Use:   "refund <entitlement-id>",
		Short: "Refund and revoke an entitlement",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			if err := requireTenant(); err != nil {
				return err
			}
			out, err := call(http.MethodPost, "/v1/admin/entitlements/"+args[0]+"/refund", map[string]any{
				"tenantId":    flagTenant,
				"reason":      reason,
				"requestedBy": requestedBy,
			})
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
	refund.Flags().StringVar(&reason, "reason", "", "refund reason")
	refund.Flags().StringVar(&requestedBy, "requested-by", "", "operator identifier")
	_ = refund.MarkFlagRequired("reason")

	cmd.AddCommand(get, refund)
	return cmd
}

// ====================== sweep ======================

func sweepCmd() *cobra.Command {
	return &cobra.Command{
		Use:   "sweep",
		Short: "Run one reconciliation pass now",
		RunE: func(cmd *cobra.Command, args []string) error {
			out, err := call(http.MethodPost, "/v1/admin/sweep", map[string]any{})
			if err != nil {
				return err
			}
			printJSON(out)
			return nil
		},
	}
}

// ====================== webhook replay ======================

// webhookCmd signs and posts a raw event payload. Used against dev
// environments to exercise the fulfillment path without a real processor.
func webhookCmd() *cobra.Command {
	parent := &cobra.Command{Use: "webhook", Short: "Webhook utilities"}

	var secret, file string
	cmd := &cobra.Command{
		Use:   "send",
		Short: "Sign a payload and deliver it to the webhook endpoint",
		RunE: func(cmd *cobra.Command, args []string) error {
			if secret == "" {
				return fmt.Errorf("--secret is required")
			}
			var body []byte
			var err error
			if file == "-" || file == "" {
				body, err = io.ReadAll(os.Stdin)
			} else {
				body, err = os.ReadFile(file)
			}
			if err != nil {
				return err
			}

			ts := time.Now().Unix()
			req, err := http.NewRequest(http.MethodPost,
				strings.TrimRight(flagAddr, "/")+"/v1/webhooks/payment", bytes.NewReader(body))
			if err != nil {
				return err
			}
			req.Header.Set("Content-Type", "application/json")
			req.Header.Set(fulfillment.SignatureHeaderName, fulfillment.SignatureHeader(secret, ts, body))

			client := &http.Client{Timeout: 30 * time.Second}
			resp, err := client.Do(req)
			if err != nil {
				return err
			}
			defer resp.Body.Close()
			raw, _ := io.ReadAll(io.LimitReader(resp.Body, 1<<20))
			fmt.Printf("%d %s\n", resp.StatusCode, strings.TrimSpace(string(raw)))
			return nil
		},
	}
	cmd.Flags().StringVar(&secret, "secret", os.Getenv("PAYGATE_WEBHOOK_SECRET"), "webhook signing secret")
	cmd.Flags().StringVar(&file, "file", "-", "payload file (- for stdin)")
	parent.AddCommand(cmd)
	return parent
}
