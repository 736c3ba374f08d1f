package repository

import "fmt"

const (
	signalsTable = "signals"
	resultsTable = "signal_results"
	ticksTable   = "ticks_raw"
)

// ClickHouseSchema returns the DDL for the signal and tick tables in db.
func ClickHouseSchema(db string) []string {
	return []string{
		fmt.Sprintf("CREATE DATABASE IF NOT EXISTS %s", db),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    id          String,
    symbol      LowCardinality(String),
    market      LowCardinality(String),
    direction   LowCardinality(String),
    entry       String,
    confidence  UInt8,
    ts          DateTime64(3, 'UTC'),
    expiry      DateTime64(3, 'UTC'),
    features    String,
    notes       String
) ENGINE = MergeTree
ORDER BY (ts, id)`, db, signalsTable),
		// one row per resolved signal; a second write would be collapsed on merge
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    id          String,
    result      LowCardinality(String),
    final_price Float64,
    resolved_at DateTime64(3, 'UTC')
) ENGINE = ReplacingMergeTree(resolved_at)
ORDER BY id`, db, resultsTable),
		fmt.Sprintf(`CREATE TABLE IF NOT EXISTS %s.%s (
    ts      DateTime64(3, 'UTC'),
    symbol  LowCardinality(String),
    price   Float64,
    qty     Float64,
    source  LowCardinality(String)
) ENGINE = MergeTree
PARTITION BY toYYYYMMDD(ts)
ORDER BY (symbol, ts)
TTL toDateTime(ts) + INTERVAL 7 DAY`, db, ticksTable),
	}
}
