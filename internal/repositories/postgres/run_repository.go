package postgres

import (
	"context"
	"fmt"
	"math"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/chrisdamba/dronesim/internal/models"
)

// DB is the subset of pgxpool.Pool the repository uses.
type DB interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
	CopyFrom(ctx context.Context, tableName pgx.Identifier, columnNames []string, rowSrc pgx.CopyFromSource) (int64, error)
	Begin(ctx context.Context) (pgx.Tx, error)
}

var _ DB = (*pgxpool.Pool)(nil)

const schema = `
CREATE TABLE IF NOT EXISTS runs (
    run_id             TEXT PRIMARY KEY,
    seed               BIGINT NOT NULL,
    chef_count         INTEGER NOT NULL,
    drone_count        INTEGER NOT NULL,
    arrival_rate       DOUBLE PRECISION NOT NULL,
    horizon            DOUBLE PRECISION NOT NULL,
    orders             INTEGER NOT NULL,
    aborted            INTEGER NOT NULL,
    in_flight          INTEGER NOT NULL,
    mean_chef_wait     DOUBLE PRECISION,
    mean_drone_wait    DOUBLE PRECISION,
    mean_delivery_time DOUBLE PRECISION,
    chef_utilization   DOUBLE PRECISION NOT NULL,
    fleet_utilization  DOUBLE PRECISION NOT NULL,
    end_time           DOUBLE PRECISION NOT NULL,
    created_at         TIMESTAMPTZ NOT NULL
);
CREATE TABLE IF NOT EXISTS run_orders (
    run_id              TEXT NOT NULL REFERENCES runs(run_id) ON DELETE CASCADE,
    order_id            INTEGER NOT NULL,
    customer            TEXT,
    value               DOUBLE PRECISION,
    x                   DOUBLE PRECISION,
    y                   DOUBLE PRECISION,
    distance            DOUBLE PRECISION,
    prep_time           DOUBLE PRECISION,
    drone_id            INTEGER,
    arrival_time        DOUBLE PRECISION,
    prep_start_time     DOUBLE PRECISION,
    prep_done_time      DOUBLE PRECISION,
    drone_request_time  DOUBLE PRECISION,
    drone_ready_time    DOUBLE PRECISION,
    delivered_time      DOUBLE PRECISION,
    drone_release_time  DOUBLE PRECISION,
    battery_at_dispatch DOUBLE PRECISION,
    battery_at_return   DOUBLE PRECISION,
    PRIMARY KEY (run_id, order_id)
);`

var orderColumns = []string{
	"run_id", "order_id", "customer", "value", "x", "y", "distance", "prep_time", "drone_id",
	"arrival_time", "prep_start_time", "prep_done_time", "drone_request_time",
	"drone_ready_time", "delivered_time", "drone_release_time",
	"battery_at_dispatch", "battery_at_return",
}

type RunRepository struct {
	db DB
}

func NewRunRepository(db DB) *RunRepository {
	return &RunRepository{db: db}
}

func (r *RunRepository) EnsureSchema(ctx context.Context) error {
	if _, err := r.db.Exec(ctx, schema); err != nil {
		return fmt.Errorf("creating schema: %w", err)
	}
	return nil
}

func (r *RunRepository) SaveRun(ctx context.Context, run models.RunRecord) error {
	query := `
        INSERT INTO runs (
            run_id, seed, chef_count, drone_count, arrival_rate, horizon,
            orders, aborted, in_flight, mean_chef_wait, mean_drone_wait,
            mean_delivery_time, chef_utilization, fleet_utilization, end_time, created_at
        ) VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, $10, $11, $12, $13, $14, $15, $16)
    `
	_, err := r.db.Exec(ctx, query,
		run.RunID,
		run.Seed,
		run.ChefCount,
		run.DroneCount,
		run.ArrivalRate,
		run.Horizon,
		run.Orders,
		run.Aborted,
		run.InFlight,
		nullableFloat64(run.MeanChefWait),
		nullableFloat64(run.MeanDroneWait),
		nullableFloat64(run.MeanDeliveryTime),
		run.ChefUtilization,
		run.FleetUtilization,
		run.EndTime,
		run.CreatedAt,
	)
	if err != nil {
		return fmt.Errorf("saving run %s: %w", run.RunID, err)
	}
	return nil
}

// SaveOrders bulk-loads the completed orders of a run with COPY.
func (r *RunRepository) SaveOrders(ctx context.Context, runID string, orders []*models.Order) (int64, error) {
	tx, err := r.db.Begin(ctx)
	if err != nil {
		return 0, err
	}
	defer tx.Rollback(ctx)

	n, err := tx.CopyFrom(ctx, pgx.Identifier{"run_orders"}, orderColumns, pgx.CopyFromSlice(len(orders), func(i int) ([]any, error) {
		return orderRow(runID, orders[i]), nil
	}))
	if err != nil {
		return 0, fmt.Errorf("copying orders of run %s: %w", runID, err)
	}
	return n, tx.Commit(ctx)
}

func orderRow(runID string, o *models.Order) []any {
	return []any{
		runID,
		o.ID,
		o.Customer,
		o.Value,
		o.Location.X,
		o.Location.Y,
		o.Distance,
		o.PrepTime,
		o.DroneID,
		o.ArrivalTime,
		o.PrepStartTime,
		o.PrepDoneTime,
		o.DroneRequestTime,
		o.DroneReadyTime,
		o.DeliveredTime,
		o.DroneReleaseTime,
		o.BatteryAtDispatch,
		o.BatteryAtReturn,
	}
}

func (r *RunRepository) CountOrders(ctx context.Context, runID string) (int, error) {
	var count int
	err := r.db.QueryRow(ctx, "SELECT COUNT(*) FROM run_orders WHERE run_id = $1", runID).Scan(&count)
	return count, err
}

func (r *RunRepository) DeleteRun(ctx context.Context, runID string) error {
	_, err := r.db.Exec(ctx, "DELETE FROM runs WHERE run_id = $1", runID)
	return err
}

// nullableFloat64 stores NaN, the mean of an empty series, as NULL.
func nullableFloat64(f float64) *float64 {
	if math.IsNaN(f) {
		return nil
	}
	return &f
}
