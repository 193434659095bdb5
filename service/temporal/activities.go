package temporal

import (
	"context"
	"fmt"
	"log/slog"
	"strconv"
	"time"

	"github.com/brojonat/stellar-explain/service/apperror"
	"github.com/brojonat/stellar-explain/service/engine"
	"github.com/brojonat/stellar-explain/service/explain"
	"github.com/brojonat/stellar-explain/service/metrics"
	natspkg "github.com/brojonat/stellar-explain/service/nats"
	temporalsdk "go.temporal.io/sdk/temporal"
)

// ArchiveAccountInput contains the input parameters for archiving an account's history.
type ArchiveAccountInput struct {
	Address string `json:"address"`
	// Limit is how many of the most recent transactions to consider (1..50).
	Limit int `json:"limit"`
}

// ArchiveAccountResult contains the result of one archive run.
type ArchiveAccountResult struct {
	Address         string    `json:"address"`
	Listed          int       `json:"listed"`
	AlreadyArchived int       `json:"already_archived"`
	Archived        int       `json:"archived"`
	Failed          []string  `json:"failed,omitempty"`
	Published       int       `json:"published"`
	ArchiveTime     time.Time `json:"archive_time"`
	Error           *string   `json:"error,omitempty"`
}

// ListAccountTransactionsInput contains parameters for the ListAccountTransactions activity.
type ListAccountTransactionsInput struct {
	Address string `json:"address"`
	Limit   int    `json:"limit"`
}

// ListAccountTransactionsResult contains the hashes of the account's recent transactions, newest first.
type ListAccountTransactionsResult struct {
	Hashes []string `json:"hashes"`
}

// GetArchivedHashesInput contains parameters for the GetArchivedHashes activity.
// Address is only used for logging; Hashes are the candidates to look up.
type GetArchivedHashesInput struct {
	Address string   `json:"address"`
	Hashes  []string `json:"hashes"`
}

// GetArchivedHashesResult contains hashes already present in the archive.
type GetArchivedHashesResult struct {
	Hashes []string `json:"hashes"`
}

// ExplainAndArchiveInput contains parameters for the ExplainAndArchive activity.
type ExplainAndArchiveInput struct {
	Hash string `json:"hash"`
}

// ExplainAndArchiveResult contains the outcome of explaining one transaction.
type ExplainAndArchiveResult struct {
	Hash     string                    `json:"hash"`
	Inserted bool                      `json:"inserted"`
	Event    *natspkg.ExplanationEvent `json:"event"`
}

// PublishExplanationsInput contains the events for the PublishExplanations activity.
type PublishExplanationsInput struct {
	Events []*natspkg.ExplanationEvent `json:"events"`
}

// PublishExplanationsResult contains the number of events published.
type PublishExplanationsResult struct {
	Published int `json:"published"`
}

// ExplainerInterface is the slice of the engine the activities need.
type ExplainerInterface interface {
	ExplainTransaction(ctx context.Context, hash string) (*explain.TransactionExplanation, *engine.Trace, error)
	AccountTransactions(ctx context.Context, address string, req engine.PageRequest) (*explain.AccountTransactionsPage, *engine.Trace, error)
}

// StoreInterface defines the archive operations needed by activities.
// This allows for easy mocking in tests.
type StoreInterface interface {
	ArchivedHashes(ctx context.Context, hashes []string) ([]string, error)
	SaveTransactionExplanation(ctx context.Context, exp *explain.TransactionExplanation) (bool, error)
}

// PublisherInterface defines the NATS publishing operations needed by activities.
type PublisherInterface interface {
	PublishExplanationBatch(ctx context.Context, events []*natspkg.ExplanationEvent) (int, error)
}

// Activities holds the dependencies needed by Temporal activities.
type Activities struct {
	explainer ExplainerInterface
	store     StoreInterface
	publisher PublisherInterface
	metrics   *metrics.Metrics
	logger    *slog.Logger
}

// NewActivities creates a new Activities instance with explicit dependencies.
// publisher may be nil, in which case PublishExplanations is a no-op.
// If metrics is nil, no metrics will be recorded.
func NewActivities(explainer ExplainerInterface, store StoreInterface, publisher PublisherInterface, m *metrics.Metrics, logger *slog.Logger) *Activities {
	if logger == nil {
		logger = slog.Default()
	}
	return &Activities{
		explainer: explainer,
		store:     store,
		publisher: publisher,
		metrics:   m,
		logger:    logger,
	}
}

// ListAccountTransactions lists the hashes of an account's most recent transactions.
func (a *Activities) ListAccountTransactions(ctx context.Context, input ListAccountTransactionsInput) (result *ListAccountTransactionsResult, err error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("ListAccountTransactions", time.Since(start).Seconds(), err)
	}()

	limit := ""
	if input.Limit > 0 {
		limit = strconv.Itoa(input.Limit)
	}
	req, err := engine.ParsePageRequest(limit, "", "desc")
	if err != nil {
		return nil, activityError(err)
	}

	page, _, err := a.explainer.AccountTransactions(ctx, input.Address, req)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to list account transactions",
			"address", input.Address,
			"error", err,
		)
		return nil, activityError(err)
	}

	result = &ListAccountTransactionsResult{Hashes: make([]string, 0, len(page.Items))}
	for _, item := range page.Items {
		result.Hashes = append(result.Hashes, item.Hash)
	}

	a.logger.InfoContext(ctx, "listed account transactions",
		"address", input.Address,
		"count", len(result.Hashes),
	)
	return result, nil
}

// GetArchivedHashes returns which of the given hashes are already archived.
func (a *Activities) GetArchivedHashes(ctx context.Context, input GetArchivedHashesInput) (result *GetArchivedHashesResult, err error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("GetArchivedHashes", time.Since(start).Seconds(), err)
	}()

	hashes, err := a.store.ArchivedHashes(ctx, input.Hashes)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to get archived hashes",
			"address", input.Address,
			"error", err,
		)
		return nil, fmt.Errorf("failed to get archived hashes: %w", err)
	}

	result = &GetArchivedHashesResult{Hashes: hashes}

	a.logger.DebugContext(ctx, "fetched archived hashes",
		"address", input.Address,
		"candidates", len(input.Hashes),
		"archived", len(result.Hashes),
	)
	return result, nil
}

// ExplainAndArchive explains one transaction and writes it to the archive.
// Archiving is idempotent: a transaction already present reports Inserted=false.
func (a *Activities) ExplainAndArchive(ctx context.Context, input ExplainAndArchiveInput) (result *ExplainAndArchiveResult, err error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("ExplainAndArchive", time.Since(start).Seconds(), err)
	}()

	exp, _, err := a.explainer.ExplainTransaction(ctx, input.Hash)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to explain transaction",
			"hash", input.Hash,
			"error", err,
		)
		return nil, activityError(err)
	}

	inserted, err := a.store.SaveTransactionExplanation(ctx, exp)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to archive explanation",
			"hash", input.Hash,
			"error", err,
		)
		return nil, fmt.Errorf("failed to archive explanation: %w", err)
	}

	result = &ExplainAndArchiveResult{Hash: exp.TransactionHash, Inserted: inserted}
	if inserted {
		result.Event = natspkg.FromExplanation(exp)
	}

	a.logger.InfoContext(ctx, "explained and archived transaction",
		"hash", exp.TransactionHash,
		"inserted", inserted,
		"payments", len(exp.PaymentExplanations),
		"skipped_operations", exp.SkippedOperations,
	)
	return result, nil
}

// PublishExplanations publishes events for newly archived explanations.
func (a *Activities) PublishExplanations(ctx context.Context, input PublishExplanationsInput) (result *PublishExplanationsResult, err error) {
	start := time.Now()
	defer func() {
		a.metrics.RecordActivityDuration("PublishExplanations", time.Since(start).Seconds(), err)
	}()

	if a.publisher == nil || len(input.Events) == 0 {
		return &PublishExplanationsResult{}, nil
	}

	// A retry republishes the whole batch; the stream drops duplicates by
	// message ID.
	published, err := a.publisher.PublishExplanationBatch(ctx, input.Events)
	if err != nil {
		a.logger.ErrorContext(ctx, "failed to publish explanation events",
			"count", len(input.Events),
			"published", published,
			"error", err,
		)
		return nil, fmt.Errorf("published %d of %d explanation events: %w", published, len(input.Events), err)
	}

	a.logger.InfoContext(ctx, "published explanation events", "count", published)
	return &PublishExplanationsResult{Published: published}, nil
}

// activityError marks errors that cannot succeed on retry as non-retryable so
// Temporal does not burn attempts on them.
func activityError(err error) error {
	switch apperror.KindOf(err) {
	case apperror.InvalidInput, apperror.NotFound, apperror.MalformedUpstreamData:
		return temporalsdk.NewNonRetryableApplicationError(apperror.PublicMessage(err), apperror.KindOf(err).String(), err)
	default:
		return err
	}
}
