package postgres

import (
	"context"
	"sync"

	"github.com/jackc/pgx/v5"
	"github.com/pkg/errors"
)

// LsnSource is the narrow view of the database the WAL monitor needs:
// a reachability probe and the current WAL position.
type LsnSource interface {
	Ping(ctx context.Context) error
	CurrentWalLsn(ctx context.Context) (string, error)
}

// PgQueryRunner is implementation of LsnSource for PostgreSQL 9.6+
type PgQueryRunner struct {
	connection *pgx.Conn
	version    int
	mu         sync.Mutex
}

func NewPgQueryRunner(conn *pgx.Conn) (*PgQueryRunner, error) {
	runner := &PgQueryRunner{connection: conn}
	if err := runner.getVersion(context.Background()); err != nil {
		return nil, err
	}
	return runner, nil
}

// buildGetVersion formats a query to retrieve PostgreSQL numeric version
func (queryRunner *PgQueryRunner) buildGetVersion() string {
	return "select (current_setting('server_version_num'))::int"
}

// buildGetCurrentLsn formats a query to get cluster LSN
func (queryRunner *PgQueryRunner) buildGetCurrentLsn() string {
	if queryRunner.version >= 100000 {
		return "SELECT CASE " +
			"WHEN pg_is_in_recovery() " +
			"THEN pg_last_wal_receive_lsn() " +
			"ELSE pg_current_wal_lsn() " +
			"END"
	}
	return "SELECT CASE " +
		"WHEN pg_is_in_recovery() " +
		"THEN pg_last_xlog_receive_location() " +
		"ELSE pg_current_xlog_location() " +
		"END"
}

func (queryRunner *PgQueryRunner) getVersion(ctx context.Context) error {
	queryRunner.mu.Lock()
	defer queryRunner.mu.Unlock()

	err := queryRunner.connection.QueryRow(ctx, queryRunner.buildGetVersion()).Scan(&queryRunner.version)
	if err != nil {
		return errors.Wrap(err, "getVersion: getting Postgres version failed")
	}
	return nil
}

// CurrentWalLsn returns the cluster's current WAL position in "hi/lo" text
// form. On a standby this is the last received position.
func (queryRunner *PgQueryRunner) CurrentWalLsn(ctx context.Context) (string, error) {
	queryRunner.mu.Lock()
	defer queryRunner.mu.Unlock()

	var lsn string
	err := queryRunner.connection.QueryRow(ctx, queryRunner.buildGetCurrentLsn()).Scan(&lsn)
	if err != nil {
		return "", errors.Wrap(err, "CurrentWalLsn: getting current LSN of the cluster failed")
	}
	return lsn, nil
}

func (queryRunner *PgQueryRunner) Ping(ctx context.Context) error {
	queryRunner.mu.Lock()
	defer queryRunner.mu.Unlock()

	return queryRunner.connection.Ping(ctx)
}

func (queryRunner *PgQueryRunner) Close(ctx context.Context) error {
	queryRunner.mu.Lock()
	defer queryRunner.mu.Unlock()

	return queryRunner.connection.Close(ctx)
}
