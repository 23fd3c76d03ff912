// Package scheduler runs delayed background work of the payment engine
package scheduler

import (
	"context"
	"errors"
	"fmt"
	"time"

	businessflow "github.com/amirphl/medipay/business_flow"
	"github.com/amirphl/medipay/config"
	"github.com/amirphl/medipay/models"
	json "github.com/goccy/go-json"
	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"go.uber.org/zap"
)

// TaskReconcileTransaction queries the provider for a gateway transaction still pending
const TaskReconcileTransaction = "payment:reconcile"

const reconcileQueueName = "payments"

// ErrStillPending makes asynq retry a reconciliation later
var ErrStillPending = errors.New("transaction is still pending at the provider")

// ReconcilePayload is the body of a reconciliation task
type ReconcilePayload struct {
	TransactionUUID string `json:"transaction_uuid"`
}

// NewReconcileTask builds the task for one transaction. The task id makes enqueueing idempotent.
func NewReconcileTask(transactionUUID uuid.UUID, opts ...asynq.Option) (*asynq.Task, error) {
	payload, err := json.Marshal(ReconcilePayload{TransactionUUID: transactionUUID.String()})
	if err != nil {
		return nil, err
	}
	opts = append([]asynq.Option{
		asynq.TaskID("reconcile:" + transactionUUID.String()),
		asynq.Queue(reconcileQueueName),
	}, opts...)
	return asynq.NewTask(TaskReconcileTransaction, payload, opts...), nil
}

// ReconcileQueue enqueues delayed reconciliation tasks; it implements businessflow.ReconcileScheduler
type ReconcileQueue struct {
	client   *asynq.Client
	delay    time.Duration
	maxRetry int
	logger   *zap.Logger
}

func NewReconcileQueue(client *asynq.Client, cfg config.QueueConfig, logger *zap.Logger) *ReconcileQueue {
	delay := cfg.ReconcileDelay
	if delay <= 0 {
		delay = 15 * time.Minute
	}
	return &ReconcileQueue{client: client, delay: delay, maxRetry: cfg.MaxRetry, logger: logger}
}

// ScheduleReconcile queues a status query for transactionUUID after the configured delay
func (q *ReconcileQueue) ScheduleReconcile(ctx context.Context, transactionUUID uuid.UUID) error {
	task, err := NewReconcileTask(transactionUUID, asynq.ProcessIn(q.delay), asynq.MaxRetry(q.maxRetry))
	if err != nil {
		return fmt.Errorf("build reconcile task: %w", err)
	}
	info, err := q.client.EnqueueContext(ctx, task)
	if errors.Is(err, asynq.ErrTaskIDConflict) {
		return nil
	}
	if err != nil {
		return fmt.Errorf("enqueue reconcile task: %w", err)
	}
	q.logger.Debug("reconciliation scheduled",
		zap.String("transaction_uuid", transactionUUID.String()),
		zap.String("task_id", info.ID),
		zap.Time("process_at", info.NextProcessAt),
	)
	return nil
}

// ReconcileWorker consumes reconciliation tasks
type ReconcileWorker struct {
	paymentFlow businessflow.PaymentFlow
	logger      *zap.Logger
}

func NewReconcileWorker(paymentFlow businessflow.PaymentFlow, logger *zap.Logger) *ReconcileWorker {
	return &ReconcileWorker{paymentFlow: paymentFlow, logger: logger}
}

// ProcessTask reconciles one transaction. A transaction the provider still reports as pending
// is returned as ErrStillPending so the task is retried; unknown transactions are dropped.
func (w *ReconcileWorker) ProcessTask(ctx context.Context, t *asynq.Task) error {
	var payload ReconcilePayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return fmt.Errorf("decode reconcile payload: %v: %w", err, asynq.SkipRetry)
	}

	metadata := businessflow.NewClientMetadata("", "reconcile-worker")
	if id, ok := asynq.GetTaskID(ctx); ok {
		metadata.SetRequestID(id)
	}

	resp, err := w.paymentFlow.ReconcileTransaction(ctx, businessflow.SystemCaller, payload.TransactionUUID, metadata)
	if err != nil {
		if businessflow.IsNotFound(err) || businessflow.IsUnsupportedPaymentMethod(err) {
			w.logger.Warn("reconcile task dropped", zap.String("transaction_uuid", payload.TransactionUUID), zap.Error(err))
			return fmt.Errorf("%v: %w", err, asynq.SkipRetry)
		}
		w.logger.Error("reconcile task failed", zap.String("transaction_uuid", payload.TransactionUUID), zap.Error(err))
		return err
	}

	if resp.Transaction.Status == string(models.PaymentTransactionStatusPending) {
		return ErrStillPending
	}

	w.logger.Info("transaction reconciled",
		zap.String("transaction_no", resp.Transaction.TransactionNo),
		zap.String("provider_status", resp.ProviderStatus),
		zap.Bool("applied", resp.Applied),
	)
	return nil
}

// NewServeMux routes reconciliation tasks to w
func (w *ReconcileWorker) NewServeMux() *asynq.ServeMux {
	mux := asynq.NewServeMux()
	mux.Handle(TaskReconcileTransaction, w)
	return mux
}

// NewReconcileServer configures the asynq server that runs ReconcileWorker
func NewReconcileServer(redisOpt asynq.RedisConnOpt, cfg config.QueueConfig, logger *zap.Logger) *asynq.Server {
	retryDelay := cfg.ReconcileDelay
	if retryDelay <= 0 {
		retryDelay = 15 * time.Minute
	}
	return asynq.NewServer(redisOpt, asynq.Config{
		Concurrency: cfg.Concurrency,
		Queues:      map[string]int{reconcileQueueName: 1},
		RetryDelayFunc: func(n int, err error, t *asynq.Task) time.Duration {
			if errors.Is(err, ErrStillPending) {
				return retryDelay
			}
			return asynq.DefaultRetryDelayFunc(n, err, t)
		},
		Logger: logger.Sugar(),
	})
}
