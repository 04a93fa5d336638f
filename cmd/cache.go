package main

import (
	"fmt"
	"io"
	"strings"

	"github.com/spf13/cobra"

	"github.com/sells-group/medcode-cli/internal/knowledge"
	"github.com/sells-group/medcode-cli/internal/model"
	"github.com/sells-group/medcode-cli/internal/resilience"
)

var cacheListFamily string

var cacheCmd = &cobra.Command{
	Use:   "cache",
	Short: "Inspect and populate the code cache",
	PersistentPreRunE: func(cmd *cobra.Command, args []string) error {
		if err := rootCmd.PersistentPreRunE(cmd, args); err != nil {
			return err
		}
		return cfg.Validate("cache")
	},
}

var cacheGetCmd = &cobra.Command{
	Use:   "get FAMILY CODE",
	Short: "Show a cached entry without fetching",
	Args:  cobra.ExactArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		family, err := parseFamilyArg(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cache := knowledge.New(st)
		if err := cache.Load(ctx); err != nil {
			return err
		}
		code := strings.ToUpper(args[1])
		e, ok := cache.Lookup(family, code)
		if !ok {
			return fmt.Errorf("%s %s is not cached", family, code)
		}
		printEntry(cmd.OutOrStdout(), family, e)
		return nil
	},
}

var cacheResolveCmd = &cobra.Command{
	Use:   "resolve FAMILY CODE...",
	Short: "Resolve codes through the cache, fetching misses",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		family, err := parseFamilyArg(args[0])
		if err != nil {
			return err
		}
		codes, err := parseCodeArgs(family, args[1:])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cache := buildCache(cfg, st, resilience.GuardFromConfig(cfg))
		if err := cache.Load(ctx); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, code := range codes {
			desc, err := cache.Resolve(ctx, family, code)
			if err != nil {
				return err
			}
			fmt.Fprintf(out, "%s %s: %s\n", family, code, desc) //nolint:errcheck
		}
		return nil
	},
}

var cacheRefreshCmd = &cobra.Command{
	Use:   "refresh FAMILY CODE...",
	Short: "Re-fetch codes cached as placeholders",
	Args:  cobra.MinimumNArgs(2),
	RunE: func(cmd *cobra.Command, args []string) error {
		family, err := parseFamilyArg(args[0])
		if err != nil {
			return err
		}
		codes, err := parseCodeArgs(family, args[1:])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cache := buildCache(cfg, st, resilience.GuardFromConfig(cfg))
		if err := cache.Load(ctx); err != nil {
			return err
		}
		out := cmd.OutOrStdout()
		for _, code := range codes {
			ok, err := cache.Refresh(ctx, family, code)
			if err != nil {
				return err
			}
			status := "unchanged"
			if ok {
				status = "refreshed"
			}
			fmt.Fprintf(out, "%s %s: %s\n", family, code, status) //nolint:errcheck
		}
		return nil
	},
}

var cacheListCmd = &cobra.Command{
	Use:   "list",
	Short: "List cached entries",
	Args:  cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		families := model.CodeFamilies
		if cacheListFamily != "" {
			f, err := parseFamilyArg(cacheListFamily)
			if err != nil {
				return err
			}
			families = []model.Family{f}
		}
		ctx := cmd.Context()
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		book, err := st.LoadCodes(ctx)
		if err != nil {
			return err
		}
		listEntries(cmd.OutOrStdout(), book, families)
		return nil
	},
}

var cacheExplainCmd = &cobra.Command{
	Use:   "explain FAMILY CODE EXPLANATION",
	Short: "Attach an explanation to a cached code",
	Args:  cobra.ExactArgs(3),
	RunE: func(cmd *cobra.Command, args []string) error {
		family, err := parseFamilyArg(args[0])
		if err != nil {
			return err
		}
		ctx := cmd.Context()
		st, err := initStore(ctx, cfg)
		if err != nil {
			return err
		}
		defer st.Close() //nolint:errcheck

		cache := knowledge.New(st)
		if err := cache.Load(ctx); err != nil {
			return err
		}
		code := strings.ToUpper(args[1])
		if err := cache.Enrich(ctx, family, code, strings.TrimSpace(args[2])); err != nil {
			return err
		}
		e, _ := cache.Lookup(family, code)
		printEntry(cmd.OutOrStdout(), family, e)
		return nil
	},
}

// parseCodeArgs upper-cases codes and rejects any that are not valid for
// family, before anything is fetched.
func parseCodeArgs(family model.Family, args []string) ([]string, error) {
	codes := make([]string, 0, len(args))
	for _, a := range args {
		code := strings.ToUpper(strings.TrimSpace(a))
		if !family.ValidCode(code) {
			return nil, fmt.Errorf("%q is not a valid %s code", a, family)
		}
		codes = append(codes, code)
	}
	return codes, nil
}

func printEntry(w io.Writer, family model.Family, e model.CodeEntry) {
	fmt.Fprintf(w, "%s %s: %s\n", family, e.Code, e.Description) //nolint:errcheck
	if e.Placeholder {
		fmt.Fprintln(w, "  (placeholder)") //nolint:errcheck
	}
	if e.Explanation != "" {
		fmt.Fprintf(w, "  explanation: %s\n", e.Explanation) //nolint:errcheck
	}
}

func listEntries(w io.Writer, book *model.CodeBook, families []model.Family) {
	total := 0
	for _, f := range families {
		for _, e := range book.Entries(f) {
			printEntry(w, f, e)
			total++
		}
	}
	fmt.Fprintf(w, "%d entries\n", total) //nolint:errcheck
}

func init() {
	cacheListCmd.Flags().StringVar(&cacheListFamily, "family", "", "only list this family (CPT, ICD-10, HCPCS)")
	cacheCmd.AddCommand(cacheGetCmd, cacheResolveCmd, cacheRefreshCmd, cacheListCmd, cacheExplainCmd)
	rootCmd.AddCommand(cacheCmd)
}
