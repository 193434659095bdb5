package temporal

import (
	"fmt"
	"time"

	natspkg "github.com/brojonat/stellar-explain/service/nats"
	temporalsdk "go.temporal.io/sdk/temporal"
	"go.temporal.io/sdk/workflow"
)

var a *Activities // for type-safe activity invocation

// ArchiveAccountWorkflow explains and archives an account's recent
// transactions. It can be started on demand or by a schedule.
//
// The workflow performs these steps:
// 1. List the account's most recent transactions (ListAccountTransactions)
// 2. Skip hashes already in the archive (GetArchivedHashes)
// 3. Explain and archive each remaining transaction (ExplainAndArchive)
// 4. Publish one event per newly archived explanation (PublishExplanations)
//
// A transaction that cannot be explained is recorded in Failed and does not
// fail the run.
func ArchiveAccountWorkflow(ctx workflow.Context, input ArchiveAccountInput) (*ArchiveAccountResult, error) {
	logger := workflow.GetLogger(ctx)
	logger.Info("ArchiveAccountWorkflow started", "address", input.Address, "limit", input.Limit)

	result := &ArchiveAccountResult{
		Address:     input.Address,
		ArchiveTime: workflow.Now(ctx),
	}
	fail := func(step string, err error) (*ArchiveAccountResult, error) {
		msg := fmt.Sprintf("%s: %v", step, err)
		result.Error = &msg
		return result, fmt.Errorf("%s: %w", step, err)
	}

	ctx = workflow.WithActivityOptions(ctx, workflow.ActivityOptions{
		StartToCloseTimeout: 60 * time.Second,
		RetryPolicy: &temporalsdk.RetryPolicy{
			InitialInterval:    time.Second,
			BackoffCoefficient: 2.0,
			MaximumInterval:    30 * time.Second,
			MaximumAttempts:    3,
		},
	})

	var listed *ListAccountTransactionsResult
	err := workflow.ExecuteActivity(ctx, a.ListAccountTransactions, ListAccountTransactionsInput{
		Address: input.Address,
		Limit:   input.Limit,
	}).Get(ctx, &listed)
	if err != nil {
		return fail("failed to list account transactions", err)
	}
	result.Listed = len(listed.Hashes)

	var archived *GetArchivedHashesResult
	err = workflow.ExecuteActivity(ctx, a.GetArchivedHashes, GetArchivedHashesInput{
		Address: input.Address,
		Hashes:  listed.Hashes,
	}).Get(ctx, &archived)
	if err != nil {
		return fail("failed to get archived hashes", err)
	}
	seen := make(map[string]bool, len(archived.Hashes))
	for _, h := range archived.Hashes {
		seen[h] = true
	}

	var events []*natspkg.ExplanationEvent
	for _, hash := range listed.Hashes {
		if seen[hash] {
			result.AlreadyArchived++
			continue
		}

		var out *ExplainAndArchiveResult
		err := workflow.ExecuteActivity(ctx, a.ExplainAndArchive, ExplainAndArchiveInput{Hash: hash}).Get(ctx, &out)
		if err != nil {
			logger.Warn("failed to explain transaction, continuing", "hash", hash, "error", err)
			result.Failed = append(result.Failed, hash)
			continue
		}
		if !out.Inserted {
			result.AlreadyArchived++
			continue
		}
		result.Archived++
		if out.Event != nil {
			events = append(events, out.Event)
		}
	}

	if len(events) > 0 {
		var published *PublishExplanationsResult
		err = workflow.ExecuteActivity(ctx, a.PublishExplanations, PublishExplanationsInput{Events: events}).Get(ctx, &published)
		if err != nil {
			// The archive is already written; events are best-effort.
			logger.Warn("failed to publish explanation events", "count", len(events), "error", err)
		} else {
			result.Published = published.Published
		}
	}

	logger.Info("ArchiveAccountWorkflow completed",
		"address", input.Address,
		"listed", result.Listed,
		"already_archived", result.AlreadyArchived,
		"archived", result.Archived,
		"failed", len(result.Failed),
		"published", result.Published,
	)
	return result, nil
}
