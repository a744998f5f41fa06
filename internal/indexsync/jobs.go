package indexsync

import (
	"context"
	"time"

	"github.com/camunda/zeebe/clients/go/v8/pkg/entities"
	"github.com/camunda/zeebe/clients/go/v8/pkg/worker"

	apperrors "marketplace-search/internal/common/errors"
	"marketplace-search/internal/common/logger"
	"marketplace-search/internal/models"
	"marketplace-search/pkg/registry"
)

const SourceZeebe = "zeebe"

// JobOutput is the variable set completed jobs return to the process.
type JobOutput struct {
	ListingID string              `json:"listingId"`
	Outcome   models.WriteOutcome `json:"syncOutcome"`
}

// JobWorker exposes the sync operations as Zeebe job handlers, one per task
// type of the event registry.
type JobWorker struct {
	handler  *Handler
	decoder  *Decoder
	errors   *apperrors.ErrorHandler
	timeouts map[string]time.Duration
	logger   logger.Logger
}

func NewJobWorker(handler *Handler, decoder *Decoder, timeouts map[string]time.Duration, log logger.Logger) *JobWorker {
	return &JobWorker{
		handler:  handler,
		decoder:  decoder,
		errors:   apperrors.NewErrorHandler(log),
		timeouts: timeouts,
		logger:   log.WithFields(map[string]interface{}{"component": "sync-jobs"}),
	}
}

// HandlerFor returns the job handler of a task type, or nil when the task
// type is not a sync event.
func (w *JobWorker) HandlerFor(taskType string) func(worker.JobClient, entities.Job) {
	switch taskType {
	case registry.EventListingCreated, registry.EventListingEdited, registry.EventListingDeleted:
	default:
		return nil
	}

	return func(client worker.JobClient, job entities.Job) {
		w.logger.Info("processing job", map[string]interface{}{
			"taskType":    taskType,
			"jobKey":      job.Key,
			"workflowKey": job.ProcessInstanceKey,
		})

		ctx, cancel := context.WithTimeout(context.Background(), w.timeout(taskType))
		defer cancel()

		output, err := w.Execute(ctx, taskType, job.Variables)
		if err != nil {
			w.errors.HandleJobError(ctx, client, job, err)
			return
		}
		w.completeJob(client, job, output)
	}
}

// Execute decodes the job variables and applies the event.
func (w *JobWorker) Execute(ctx context.Context, taskType, variables string) (*JobOutput, error) {
	ctx = WithSource(ctx, SourceZeebe)

	if taskType == registry.EventListingDeleted {
		req, err := w.decoder.DecodeDelete([]byte(variables))
		if err != nil {
			return nil, err
		}
		outcome, err := w.handler.OnDeleted(ctx, req.ListingID, req.Version)
		if err != nil {
			return nil, err
		}
		return &JobOutput{ListingID: req.ListingID, Outcome: outcome}, nil
	}

	listing, err := w.decoder.DecodeListing(taskType, []byte(variables))
	if err != nil {
		return nil, err
	}

	var outcome models.WriteOutcome
	switch taskType {
	case registry.EventListingCreated:
		outcome, err = w.handler.OnCreated(ctx, listing)
	case registry.EventListingEdited:
		outcome, err = w.handler.OnEdited(ctx, listing)
	default:
		return nil, apperrors.NewValidationError("unsupported task type "+taskType, nil)
	}
	if err != nil {
		return nil, err
	}
	return &JobOutput{ListingID: listing.ListingID, Outcome: outcome}, nil
}

func (w *JobWorker) timeout(taskType string) time.Duration {
	if d, ok := w.timeouts[taskType]; ok && d > 0 {
		return d
	}
	return 30 * time.Second
}

func (w *JobWorker) completeJob(client worker.JobClient, job entities.Job, output *JobOutput) {
	cmd, err := client.NewCompleteJobCommand().
		JobKey(job.Key).
		VariablesFromObject(output)
	if err != nil {
		w.logger.Error("failed to create complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
		return
	}
	if _, err := cmd.Send(context.Background()); err != nil {
		w.logger.Error("failed to send complete job command", map[string]interface{}{
			"jobKey": job.Key,
			"error":  err,
		})
	}
}
