package models

const (
	OrderStatusPlaced     = "placed"
	OrderStatusPreparing  = "preparing"
	OrderStatusWaiting    = "waiting_for_drone"
	OrderStatusInFlight   = "in_flight"
	OrderStatusDelivered  = "delivered"
	OrderStatusReturning  = "drone_returning"
	OrderStatusCompleted  = "completed"
	OrderStatusAborted    = "aborted"
	OrderStatusIncomplete = "incomplete"
)

const (
	OutputConsole  = "console"
	OutputJSON     = "json"
	OutputCSV      = "csv"
	OutputParquet  = "parquet"
	OutputKafka    = "kafka"
	OutputSQLite   = "sqlite"
	OutputPostgres = "postgres"
	OutputNone     = "none"
)

// FullBattery is the battery level of a fully charged drone, in percent.
const FullBattery = 100.0

func IsOutputFormat(format string) bool {
	switch format {
	case OutputConsole, OutputJSON, OutputCSV, OutputParquet, OutputKafka, OutputSQLite, OutputPostgres, OutputNone:
		return true
	}
	return false
}
