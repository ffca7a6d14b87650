package postgres

import (
	"context"
	"fmt"
	"time"

	pgxdecimal "github.com/jackc/pgx-shopspring-decimal"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
	log "github.com/sirupsen/logrus"
)

// Tx abstrai uma transação de banco de dados
type Tx interface {
	Commit() error
	Rollback() error
}

// PgxTx implementa a interface Tx
type PgxTx struct {
	tx pgx.Tx
}

func (t *PgxTx) Commit() error {
	return t.tx.Commit(context.Background())
}

func (t *PgxTx) Rollback() error {
	return t.tx.Rollback(context.Background())
}

// Unwrap expõe a pgx.Tx subjacente para os repositórios
func Unwrap(tx Tx) pgx.Tx {
	return tx.(*PgxTx).tx
}

// Begin inicia uma nova transação no pool
func Begin(ctx context.Context, pool *pgxpool.Pool) (Tx, error) {
	tx, err := pool.Begin(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &PgxTx{tx: tx}, nil
}

// Connect cria o pool de conexões e aguarda o banco ficar pronto
func Connect(ctx context.Context, dsn string) (*pgxpool.Pool, error) {
	config, err := pgxpool.ParseConfig(dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to parse database config: %w", err)
	}

	// Configure connection pool
	config.MaxConns = 10
	config.MaxConnLifetime = time.Hour
	config.MaxConnIdleTime = 30 * time.Minute
	config.HealthCheckPeriod = 1 * time.Minute
	config.AfterConnect = func(ctx context.Context, conn *pgx.Conn) error {
		// Registra os codecs numeric <-> decimal.Decimal
		pgxdecimal.Register(conn.TypeMap())
		return nil
	}

	pool, err := pgxpool.NewWithConfig(ctx, config)
	if err != nil {
		return nil, fmt.Errorf("failed to create connection pool: %w", err)
	}

	// Wait for database to be ready
	for i := 0; i < 30; i++ {
		if err := pool.Ping(ctx); err == nil {
			log.Println("✅ Connected to database with connection pool")
			return pool, nil
		}
		log.Printf("⏳ Waiting for database... (%d/30)", i+1)
		time.Sleep(1 * time.Second)
	}

	pool.Close()
	return nil, fmt.Errorf("failed to connect to database after 30 attempts")
}
