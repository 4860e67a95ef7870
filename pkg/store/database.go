package store

import (
	"context"
	"database/sql"
	"os"

	"github.com/din-network/din-monitor/pkg/types"
	"github.com/jmoiron/sqlx"
	_ "github.com/lib/pq"
	"github.com/pkg/errors"
	"go.uber.org/zap"
)

type PostgresStore struct {
	DB *sqlx.DB

	logger *zap.SugaredLogger
}

func NewPostgresStore(dsn string, zapLogger *zap.Logger) (*PostgresStore, error) {
	db, err := sqlx.Connect("postgres", dsn)
	if err != nil {
		return nil, err
	}

	db.DB.SetMaxOpenConns(50)
	db.DB.SetMaxIdleConns(10)
	db.DB.SetConnMaxIdleTime(0)

	if os.Getenv("DB_DONT_APPLY_SCHEMA") == "" {
		_, err = db.Exec(schema)
		if err != nil {
			return nil, err
		}
	}

	return NewPostgresStoreFromDB(db, zapLogger), nil
}

// NewPostgresStoreFromDB wraps an open connection without applying the schema.
func NewPostgresStoreFromDB(db *sqlx.DB, zapLogger *zap.Logger) *PostgresStore {
	return &PostgresStore{DB: db, logger: zapLogger.Sugar()}
}

func (store *PostgresStore) Close() error {
	return store.DB.Close()
}

func (store *PostgresStore) CreateOperator(ctx context.Context, operator *types.Operator) error {
	entry := OperatorToOperatorEntry(operator)

	query := `INSERT INTO ` + TableOperators + `
	(operator_id, wallet_address, staked_amount, performance_score, registered_at, last_performance_check) VALUES
	(:operator_id, :wallet_address, :staked_amount, :performance_score, :registered_at, :last_performance_check)
	ON CONFLICT (operator_id) DO NOTHING`

	result, err := store.DB.NamedExecContext(ctx, query, entry)
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.Wrapf(types.ErrDuplicateOperator, "operator %s", operator.ID)
	}
	store.logger.Infow("saved operator to db", "operator", operator.ID)

	return nil
}

func (store *PostgresStore) GetOperator(ctx context.Context, id types.OperatorID) (*types.Operator, error) {
	query := `SELECT operator_id, wallet_address, staked_amount, performance_score, registered_at, last_performance_check
	FROM ` + TableOperators + `
	WHERE operator_id=$1`

	entry := &OperatorEntry{}
	err := store.DB.GetContext(ctx, entry, query, id)
	if errors.Cause(err) == sql.ErrNoRows {
		return nil, nil
	} else if err != nil {
		return nil, err
	}

	query = `SELECT id, operator_id, type, timestamp, duration_minutes, severity, description
	FROM ` + TableViolations + `
	WHERE operator_id=$1
	ORDER BY seq ASC`

	var violations []*ViolationEntry
	err = store.DB.SelectContext(ctx, &violations, query, id)
	if err != nil {
		return nil, err
	}

	return OperatorEntryToOperator(entry, violations)
}

func (store *PostgresStore) GetOperators(ctx context.Context) ([]*types.Operator, error) {
	query := `SELECT operator_id, wallet_address, staked_amount, performance_score, registered_at, last_performance_check
	FROM ` + TableOperators + `
	ORDER BY inserted_at ASC`

	var entries []*OperatorEntry
	err := store.DB.SelectContext(ctx, &entries, query)
	if err != nil {
		return nil, err
	}

	query = `SELECT id, operator_id, type, timestamp, duration_minutes, severity, description
	FROM ` + TableViolations + `
	ORDER BY seq ASC`

	var violationEntries []*ViolationEntry
	err = store.DB.SelectContext(ctx, &violationEntries, query)
	if err != nil {
		return nil, err
	}

	byOperator := make(map[string][]*ViolationEntry)
	for _, v := range violationEntries {
		byOperator[v.OperatorID] = append(byOperator[v.OperatorID], v)
	}

	operators := make([]*types.Operator, 0, len(entries))
	for _, entry := range entries {
		operator, err := OperatorEntryToOperator(entry, byOperator[entry.OperatorID])
		if err != nil {
			return nil, err
		}
		operators = append(operators, operator)
	}
	return operators, nil
}

// UpdateOperator writes the operator row, any violations not yet stored and the
// staking events in a single transaction.
func (store *PostgresStore) UpdateOperator(ctx context.Context, operator *types.Operator, events ...*types.StakingEvent) (err error) {
	tx, err := store.DB.BeginTxx(ctx, nil)
	if err != nil {
		return err
	}
	defer func() {
		if err != nil {
			_ = tx.Rollback()
		}
	}()

	query := `UPDATE ` + TableOperators + ` SET
	wallet_address=:wallet_address, staked_amount=:staked_amount, performance_score=:performance_score,
	last_performance_check=:last_performance_check
	WHERE operator_id=:operator_id`

	result, err := tx.NamedExecContext(ctx, query, OperatorToOperatorEntry(operator))
	if err != nil {
		return err
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return err
	}
	if rows == 0 {
		return errors.Wrapf(types.ErrUnknownOperator, "operator %s", operator.ID)
	}

	query = `INSERT INTO ` + TableViolations + `
	(id, operator_id, type, timestamp, duration_minutes, severity, description) VALUES
	(:id, :operator_id, :type, :timestamp, :duration_minutes, :severity, :description)
	ON CONFLICT (id) DO NOTHING`
	for i := range operator.Violations {
		entry, err := ViolationToViolationEntry(operator.ID, &operator.Violations[i])
		if err != nil {
			return err
		}
		if _, err = tx.NamedExecContext(ctx, query, entry); err != nil {
			return err
		}
	}

	query = `INSERT INTO ` + TableStakingEvents + `
	(operator_id, type, amount, timestamp, reason) VALUES
	(:operator_id, :type, :amount, :timestamp, :reason)`
	for _, event := range events {
		if _, err = tx.NamedExecContext(ctx, query, StakingEventToStakingEventEntry(event)); err != nil {
			return err
		}
	}

	if err = tx.Commit(); err != nil {
		return err
	}
	store.logger.Debugw("saved operator update to db", "operator", operator.ID, "events", len(events))

	return nil
}

func (store *PostgresStore) GetStakingEvents(ctx context.Context, id types.OperatorID) ([]*types.StakingEvent, error) {
	query := `SELECT id, operator_id, type, amount, timestamp, reason
	FROM ` + TableStakingEvents + `
	WHERE operator_id=$1
	ORDER BY id ASC`

	var entries []*StakingEventEntry
	err := store.DB.SelectContext(ctx, &entries, query, id)
	if err != nil {
		return nil, err
	}

	events := make([]*types.StakingEvent, 0, len(entries))
	for _, entry := range entries {
		event, err := StakingEventEntryToStakingEvent(entry)
		if err != nil {
			return nil, err
		}
		events = append(events, event)
	}
	return events, nil
}
