package bigquery

import (
	"context"
	"fmt"
	"sync"
	"time"

	"cloud.google.com/go/bigquery"
	"cloud.google.com/go/civil"

	"github.com/rhoekstra/pattern-engine/internal/engine"
)

// Repository is the BigQuery-backed implementation of the engine's
// PatternStore, TransactionSource and BankAccountLookup. It holds one
// shared client so a full analysis does not open a connection per write.
type Repository struct {
	client    *bigquery.Client
	projectID string
	datasetID string

	// bank-account membership is immutable reference data, so lookups
	// are memoized for the lifetime of the repository
	mu        sync.RWMutex
	bankAccts map[string]bool
}

// NewRepository creates a repository with a shared BigQuery client.
func NewRepository(ctx context.Context, projectID, datasetID string) (*Repository, error) {
	client, err := bigquery.NewClient(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("NewRepository: creating client: %w", err)
	}
	return &Repository{
		client:    client,
		projectID: projectID,
		datasetID: datasetID,
		bankAccts: make(map[string]bool),
	}, nil
}

// Close closes the BigQuery client connection.
func (r *Repository) Close() error {
	if r.client != nil {
		return r.client.Close()
	}
	return nil
}

// Query delegates to QueryTransactionsWithClient with the shared client.
func (r *Repository) Query(ctx context.Context, administration string, since time.Time, f engine.Filters) ([]engine.Transaction, error) {
	return QueryTransactionsWithClient(ctx, r.client, r.projectID, r.datasetID, administration, civil.DateOf(since), f)
}

// IsBankAccount delegates to IsBankAccountWithClient, memoizing results.
func (r *Repository) IsBankAccount(ctx context.Context, administration, accountCode string) (bool, error) {
	key := administration + "|" + accountCode

	r.mu.RLock()
	isBank, ok := r.bankAccts[key]
	r.mu.RUnlock()
	if ok {
		return isBank, nil
	}

	isBank, err := IsBankAccountWithClient(ctx, r.client, r.projectID, r.datasetID, administration, accountCode)
	if err != nil {
		return false, err
	}

	r.mu.Lock()
	r.bankAccts[key] = isBank
	r.mu.Unlock()
	return isBank, nil
}

// UpsertPattern delegates to UpsertVerbPatternWithClient with the shared client.
func (r *Repository) UpsertPattern(ctx context.Context, p engine.VerbPattern, mode engine.MergeMode) error {
	return UpsertVerbPatternWithClient(ctx, r.client, r.projectID, r.datasetID, p, mode)
}

// ReadAllPatterns delegates to ReadAllVerbPatternsWithClient with the shared client.
func (r *Repository) ReadAllPatterns(ctx context.Context, administration string) ([]engine.VerbPattern, error) {
	return ReadAllVerbPatternsWithClient(ctx, r.client, r.projectID, r.datasetID, administration)
}

// GetMetadata delegates to GetAnalysisMetadataWithClient with the shared client.
func (r *Repository) GetMetadata(ctx context.Context, administration string) (*engine.AnalysisMetadata, error) {
	return GetAnalysisMetadataWithClient(ctx, r.client, r.projectID, r.datasetID, administration)
}

// UpsertMetadata delegates to UpsertAnalysisMetadataWithClient with the shared client.
func (r *Repository) UpsertMetadata(ctx context.Context, md engine.AnalysisMetadata, mode engine.MergeMode) error {
	return UpsertAnalysisMetadataWithClient(ctx, r.client, r.projectID, r.datasetID, md, mode)
}
