package main

import (
	"encoding/json"
	"fmt"
	"strconv"
	"strings"

	"github.com/google/uuid"
	"github.com/spf13/cobra"
)

type queryOptions struct {
	tenant     string
	datasource string
	params     []string
	limit      int
}

var queryOpts = &queryOptions{}

var queryCmd = &cobra.Command{
	Use:   "query [sql]",
	Short: "Run one query against a data source and print the result as JSON",
	Long: `Run one read-only query against a tenant's data source.

Examples:
  ekaya-query query --tenant 6c1d... --datasource sales "SELECT count(*) FROM orders"
  ekaya-query query --tenant 6c1d... --datasource ws -p region=north \
    "SELECT * FROM files.sales WHERE region = :region"`,
	Args: cobra.ExactArgs(1),
	RunE: runQuery,
}

func init() {
	queryCmd.Flags().StringVar(&queryOpts.tenant, "tenant", "", "tenant id")
	queryCmd.Flags().StringVarP(&queryOpts.datasource, "datasource", "d", "", "data source id or name")
	queryCmd.Flags().StringArrayVarP(&queryOpts.params, "param", "p", nil, "bind parameter name=value (repeatable)")
	queryCmd.Flags().IntVar(&queryOpts.limit, "limit", 0, "maximum rows (default: query.default_row_limit)")
	_ = queryCmd.MarkFlagRequired("tenant")
	_ = queryCmd.MarkFlagRequired("datasource")
}

func runQuery(cmd *cobra.Command, args []string) error {
	ctx := cmd.Context()
	tenantID, err := uuid.Parse(queryOpts.tenant)
	if err != nil {
		return fmt.Errorf("invalid tenant id: %w", err)
	}
	params, err := parseParams(queryOpts.params)
	if err != nil {
		return err
	}

	cfg, logger, err := loadConfig()
	if err != nil {
		return err
	}
	defer func() { _ = logger.Sync() }()

	a, err := newApp(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer a.Close()

	tenantCtx, cleanup, err := a.tenantContext(ctx, tenantID)
	if err != nil {
		return err
	}
	defer cleanup()

	src, err := a.datasources.GetByName(tenantCtx, tenantID, queryOpts.datasource)
	if id, perr := uuid.Parse(queryOpts.datasource); perr == nil {
		src, err = a.datasources.Get(tenantCtx, tenantID, id)
	}
	if err != nil {
		return fmt.Errorf("datasource %q: %w", queryOpts.datasource, err)
	}

	limit := queryOpts.limit
	if limit <= 0 {
		limit = cfg.Query.DefaultRowLimit
	}
	result, err := a.queries.Execute(tenantCtx, src, args[0], params, limit)
	if err != nil {
		return err
	}

	enc := json.NewEncoder(cmd.OutOrStdout())
	enc.SetIndent("", "  ")
	return enc.Encode(result)
}

// parseParams turns name=value pairs into bind values. Integers, floats and
// true/false are converted; everything else stays a string.
func parseParams(pairs []string) (map[string]any, error) {
	params := make(map[string]any, len(pairs))
	for _, p := range pairs {
		name, value, ok := strings.Cut(p, "=")
		name = strings.TrimSpace(name)
		if !ok || name == "" {
			return nil, fmt.Errorf("invalid parameter %q, expected name=value", p)
		}
		params[name] = convertParam(value)
	}
	return params, nil
}

func convertParam(v string) any {
	if i, err := strconv.ParseInt(v, 10, 64); err == nil {
		return i
	}
	if f, err := strconv.ParseFloat(v, 64); err == nil {
		return f
	}
	switch v {
	case "true":
		return true
	case "false":
		return false
	}
	return v
}
