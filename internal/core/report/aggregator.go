package report

import (
	"context"
	"fmt"
	"strings"
	"time"

	"go.uber.org/zap"
)

// Clock は現在時刻を提供します。
type Clock interface {
	Now() time.Time
}

type realClock struct{}

func (realClock) Now() time.Time {
	return time.Now().UTC()
}

// TransactionManager はトランザクション制御の抽象化です。
type TransactionManager interface {
	WithinReadWrite(ctx context.Context, fn func(context.Context) error) error
}

type noopTransactionManager struct{}

func (noopTransactionManager) WithinReadWrite(ctx context.Context, fn func(context.Context) error) error {
	if fn == nil {
		return nil
	}
	return fn(ctx)
}

// Aggregator は業務報告の revenueGenerated を承認済み請求から再計算します。
type Aggregator struct {
	repo   Repository
	clock  Clock
	tx     TransactionManager
	logger *zap.Logger
}

// NewAggregator は Aggregator を生成します。
func NewAggregator(repo Repository, clock Clock, tx TransactionManager, logger *zap.Logger) *Aggregator {
	if clock == nil {
		clock = realClock{}
	}
	if tx == nil {
		tx = noopTransactionManager{}
	}
	if logger == nil {
		logger = zap.NewNop()
	}
	return &Aggregator{repo: repo, clock: clock, tx: tx, logger: logger}
}

// Recompute は報告を参照する APPROVED 請求の合計で revenueGenerated を置き換えます。
// 報告行のロック、合計の読み取り、書き込みを一つのトランザクションで行うため、
// 同一報告に対する並行呼び出しは直列化され、何度呼んでも同じ結果になります。
func (a *Aggregator) Recompute(ctx context.Context, reportID string) (*WorkReport, error) {
	id := strings.TrimSpace(reportID)
	if id == "" {
		return nil, fmt.Errorf("id: %w", ErrInvalidID)
	}

	var updated *WorkReport
	if err := a.tx.WithinReadWrite(ctx, func(txCtx context.Context) error {
		if _, err := a.repo.LockByID(txCtx, id); err != nil {
			return err
		}

		total, err := a.repo.SumApprovedClaims(txCtx, id)
		if err != nil {
			return fmt.Errorf("report %s: sum approved claims: %w", id, err)
		}

		result, err := a.repo.UpdateRevenueGenerated(txCtx, id, total, a.clock.Now())
		if err != nil {
			return err
		}
		updated = result
		return nil
	}); err != nil {
		return nil, err
	}

	a.logger.Debug("work report revenue recomputed",
		zap.String("work_report_id", updated.ID),
		zap.String("revenue_generated", updated.RevenueGenerated.StringFixed(2)),
	)
	return updated, nil
}
