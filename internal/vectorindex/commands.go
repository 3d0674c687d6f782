package app

import (
	"context"
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/kart-io/vecstore/internal/pkg/vector/docutil"
	"github.com/kart-io/vecstore/internal/vectorindex/biz"
	"github.com/kart-io/vecstore/internal/vectorindex/store"
	"github.com/kart-io/vecstore/pkg/utils/json"
)

// withRuntime builds the runtime, runs fn and releases the runtime.
func withRuntime(cmd *cobra.Command, opts *Options, fn func(ctx context.Context, rt *runtime) error) error {
	ctx := cmd.Context()
	if ctx == nil {
		ctx = context.Background()
	}
	rt, err := newRuntime(ctx, opts)
	if err != nil {
		return err
	}
	defer rt.close()
	return fn(ctx, rt)
}

func printJSON(w io.Writer, v any) error {
	data, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(data))
	return err
}

// printResponse prints resp and turns a failed response into a command error.
func printResponse(w io.Writer, resp *biz.Response) error {
	if err := printJSON(w, resp); err != nil {
		return err
	}
	if !resp.Success {
		return resp.Error
	}
	return nil
}

func toFilter(kv map[string]string) store.Filter {
	if len(kv) == 0 {
		return nil
	}
	f := make(store.Filter, len(kv))
	for k, v := range kv {
		f[k] = v
	}
	return f
}

func newInitCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "init",
		Short: "Create the index if needed and wait until it is ready",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				if err := rt.client.Initialize(ctx); err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), map[string]any{
					"index":    opts.Vector.IndexName,
					"provider": rt.client.Backend().Name(),
					"ready":    rt.client.Ready(),
				})
			})
		},
	}
}

func newIngestCommand(opts *Options) *cobra.Command {
	var (
		meta       map[string]string
		dir        string
		extensions []string
		parallel   bool
	)

	cmd := &cobra.Command{
		Use:   "ingest [file...]",
		Short: "Chunk, embed and store files, a directory or stdin",
		Long: `Ingest text into the index. Files given as arguments and files found under
--dir are read; with neither, text is read from stdin.`,
		RunE: func(cmd *cobra.Command, args []string) error {
			files := make([]biz.FileItem, 0, len(args))
			for _, path := range args {
				files = append(files, biz.FileItem{Path: path})
			}
			if dir != "" {
				paths, err := docutil.FindFiles(dir, extensions)
				if err != nil {
					return err
				}
				for _, path := range paths {
					files = append(files, biz.FileItem{Path: path})
				}
			}
			if len(files) == 0 {
				files = append(files, biz.FileItem{Name: "stdin", Reader: cmd.InOrStdin()})
			}

			base := make(store.Metadata, len(meta))
			for k, v := range meta {
				base[k] = v
			}

			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				cfg := &biz.ProcessConfig{
					BatchSize:            opts.Vector.ProcessBatchSize,
					MaxConcurrentBatches: opts.Vector.MaxConcurrentBatches,
				}
				if parallel {
					cfg.Strategy = biz.FullyParallelUpsert{BatchSize: opts.Vector.UpsertBatchSize}
				}

				result := rt.processor.ProcessFiles(ctx, files, base, cfg)
				if err := printJSON(cmd.OutOrStdout(), map[string]any{
					"run_id":        result.RunID,
					"success":       result.Success,
					"total_records": result.TotalRecords,
					"batches":       len(result.BatchResults),
					"errors":        result.ErrorMessages(),
				}); err != nil {
					return err
				}
				if !result.Success {
					return fmt.Errorf("ingest finished with %d errors", len(result.Errors))
				}
				return nil
			})
		},
	}

	cmd.Flags().StringToStringVar(&meta, "meta", nil, "Metadata attached to every record (key=value).")
	cmd.Flags().StringVar(&dir, "dir", "", "Directory to ingest recursively.")
	cmd.Flags().StringSliceVar(&extensions, "ext", []string{".md", ".txt"}, "File extensions picked up by --dir.")
	cmd.Flags().BoolVar(&parallel, "parallel", false, "Write all batches at once instead of the bounded default.")
	return cmd
}

func newQueryCommand(opts *Options) *cobra.Command {
	var (
		filter   map[string]string
		topK     int
		minScore float64
	)

	cmd := &cobra.Command{
		Use:   "query <text>",
		Short: "Return the records most similar to text",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			text := strings.Join(args, " ")
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				qopts := []biz.QueryOption{biz.WithTopK(topK)}
				if cmd.Flags().Changed("min-score") {
					qopts = append(qopts, biz.WithMinScore(minScore))
				}
				results, err := rt.client.Query(ctx, toFilter(filter), text, qopts...)
				if err != nil {
					return err
				}
				return printJSON(cmd.OutOrStdout(), results)
			})
		},
	}

	cmd.Flags().StringToStringVar(&filter, "filter", nil, "Metadata equality filter (key=value).")
	cmd.Flags().IntVar(&topK, "top-k", 0, "Number of results, 0 uses --vector.top-k.")
	cmd.Flags().Float64Var(&minScore, "min-score", 0, "Override --vector.min-score for this query.")
	return cmd
}

func newDeleteCommand(opts *Options) *cobra.Command {
	var (
		filter     map[string]string
		accountIDs []string
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Delete records by metadata filter or account id",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if len(filter) == 0 && len(accountIDs) == 0 {
				return fmt.Errorf("one of --filter or --account-ids is required")
			}
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				var resp *biz.Response
				if len(accountIDs) > 0 {
					resp = rt.client.DeleteByAccountIDs(ctx, accountIDs)
				} else {
					resp = rt.client.DeleteByFilter(ctx, toFilter(filter))
				}
				return printResponse(cmd.OutOrStdout(), resp)
			})
		},
	}

	cmd.Flags().StringToStringVar(&filter, "filter", nil, "Metadata equality filter (key=value).")
	cmd.Flags().StringSliceVar(&accountIDs, "account-ids", nil, "Delete records whose "+biz.MetadataAccountID+" is in this list.")
	return cmd
}

func newFetchCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "fetch <id...>",
		Short: "Fetch records by id",
		Args:  cobra.MinimumNArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				return printResponse(cmd.OutOrStdout(), rt.client.FetchRecordsByIDs(ctx, args))
			})
		},
	}
}

func newStatsCommand(opts *Options) *cobra.Command {
	var showMetrics bool

	cmd := &cobra.Command{
		Use:   "stats",
		Short: "Show the record count of the namespace",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				count, err := rt.client.Count(ctx)
				if err != nil {
					return err
				}
				if err := printJSON(cmd.OutOrStdout(), map[string]any{
					"index":     opts.Vector.IndexName,
					"namespace": opts.Vector.Namespace,
					"provider":  rt.client.Backend().Name(),
					"records":   count,
				}); err != nil {
					return err
				}
				if !showMetrics {
					return nil
				}
				out, err := rt.metrics.Export()
				if err != nil {
					return err
				}
				_, err = io.WriteString(cmd.OutOrStdout(), out)
				return err
			})
		},
	}

	cmd.Flags().BoolVar(&showMetrics, "metrics", false, "Also print the Prometheus metrics collected by this run.")
	return cmd
}

func newHealthCommand(opts *Options) *cobra.Command {
	return &cobra.Command{
		Use:   "health",
		Short: "Ping every configured backing service",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return withRuntime(cmd, opts, func(ctx context.Context, rt *runtime) error {
				statuses := rt.storage.HealthCheckAll(ctx)
				if err := printJSON(cmd.OutOrStdout(), statuses); err != nil {
					return err
				}
				for name, s := range statuses {
					if !s.Healthy {
						fmt.Fprintf(cmd.ErrOrStderr(), "%s unhealthy: %s\n", name, s.Message)
						return fmt.Errorf("%s is unhealthy", name)
					}
				}
				return nil
			})
		},
	}
}
