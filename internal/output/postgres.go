package output

import (
	"context"
	"fmt"
	"sync"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// PostgresOutput inserts every record as it is published. Tables are created
// on first use.
type PostgresOutput struct {
	ctx     context.Context
	pool    *pgxpool.Pool
	records RecordFactory

	mu      sync.Mutex
	inserts map[string]string
}

func NewPostgresOutput(ctx context.Context, url string, records RecordFactory) (*PostgresOutput, error) {
	pool, err := pgxpool.New(ctx, url)
	if err != nil {
		return nil, fmt.Errorf("error connecting to database: %w", err)
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, fmt.Errorf("error pinging database: %w", err)
	}
	return NewPostgresOutputWithPool(ctx, pool, records), nil
}

func NewPostgresOutputWithPool(ctx context.Context, pool *pgxpool.Pool, records RecordFactory) *PostgresOutput {
	return &PostgresOutput{
		ctx:     ctx,
		pool:    pool,
		records: records,
		inserts: make(map[string]string),
	}
}

func (p *PostgresOutput) WriteMessage(topic string, msg []byte) error {
	cols, err := decode(p.records, topic, msg)
	if err != nil {
		return err
	}

	table := topicToTable(topic)
	query, err := p.insertFor(table, cols)
	if err != nil {
		return err
	}

	_, values, _ := dialectPostgres.buildInsertComponents(cols)
	if _, err := p.pool.Exec(p.ctx, query, values...); err != nil {
		return fmt.Errorf("failed to insert into %s: %w", table, err)
	}
	return nil
}

func (p *PostgresOutput) insertFor(table string, cols []column) (string, error) {
	p.mu.Lock()
	defer p.mu.Unlock()

	if query, ok := p.inserts[table]; ok {
		return query, nil
	}
	if _, err := p.pool.Exec(p.ctx, dialectPostgres.createTable(table, cols)); err != nil {
		return "", fmt.Errorf("creating table %s: %w", table, err)
	}

	columns, _, placeholders := dialectPostgres.buildInsertComponents(cols)
	query := fmt.Sprintf("INSERT INTO %s (%s) VALUES (%s)", table, columns, placeholders)
	p.inserts[table] = query
	logrus.WithField("table", table).Debug("postgres table ready")
	return query, nil
}

func (p *PostgresOutput) Close() error {
	p.pool.Close()
	return nil
}
