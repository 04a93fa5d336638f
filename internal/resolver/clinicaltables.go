// Package resolver implements knowledge.Resolver against the external code
// sources: the Clinical Tables API for ICD-10 and HCPCS, and a reader-based
// page crawl for CPT.
package resolver

import (
	"context"
	"errors"

	"github.com/rotisserie/eris"

	"github.com/sells-group/medcode-cli/internal/knowledge"
	"github.com/sells-group/medcode-cli/internal/resilience"
	"github.com/sells-group/medcode-cli/pkg/clinicaltables"
)

// ClinicalTables resolves codes through the NLM Clinical Tables search API.
// Only an exact code match counts; near matches are not-found.
type ClinicalTables struct {
	client clinicaltables.Client
	table  clinicaltables.Table
	guard  *resilience.Guard
}

// NewClinicalTables creates a resolver over one code table. guard may be nil.
func NewClinicalTables(client clinicaltables.Client, table clinicaltables.Table, guard *resilience.Guard) *ClinicalTables {
	return &ClinicalTables{client: client, table: table, guard: guard}
}

// Fetch implements knowledge.Resolver.
func (r *ClinicalTables) Fetch(ctx context.Context, code string) (string, error) {
	search := func(ctx context.Context) (*clinicaltables.SearchResult, error) {
		res, err := r.client.Search(ctx, r.table, code, 10)
		if err != nil {
			var apiErr *clinicaltables.APIError
			if errors.As(err, &apiErr) && resilience.IsTransientHTTPStatus(apiErr.StatusCode) {
				return nil, resilience.NewTransientError(err, apiErr.StatusCode)
			}
			return nil, err
		}
		return res, nil
	}

	var (
		res *clinicaltables.SearchResult
		err error
	)
	if r.guard != nil {
		res, err = resilience.Call(ctx, r.guard, "clinicaltables", string(r.table), search)
	} else {
		res, err = search(ctx)
	}
	if err != nil {
		return "", eris.Wrapf(err, "resolver: %s search %s", r.table, code)
	}

	m, ok := res.Exact(code)
	if !ok || m.Display == "" {
		return "", eris.Wrapf(knowledge.ErrNotFound, "resolver: %s has no exact match for %s", r.table, code)
	}
	return m.Display, nil
}
