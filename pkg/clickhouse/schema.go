package clickhouse

// Schema creates the tables the service reads and writes.
func Schema(database string) []string {
	return []string{
		"CREATE DATABASE IF NOT EXISTS " + database,
		`CREATE TABLE IF NOT EXISTS ` + database + `.training_samples (
			id String,
			symbol LowCardinality(String),
			ts DateTime64(3, 'UTC'),
			state Array(Float64),
			action UInt8,
			reward Float64,
			next_state Array(Float64),
			done UInt8,
			log_prob Float64,
			value Float64
		) ENGINE = ReplacingMergeTree
		PARTITION BY toYYYYMM(ts)
		ORDER BY (ts, id)`,
		`CREATE TABLE IF NOT EXISTS ` + database + `.training_epochs (
			cycle_id String,
			epoch UInt32,
			batches UInt32,
			policy_loss Float64,
			value_loss Float64,
			entropy_loss Float64,
			constraint_loss Float64,
			total_loss Float64,
			avg_reward Float64,
			avg_advantage Float64,
			clip_fraction Float64,
			approx_kl Float64,
			grad_norm Float64,
			recorded_at DateTime64(3, 'UTC') DEFAULT now64(3)
		) ENGINE = MergeTree
		ORDER BY (cycle_id, epoch)`,
		`CREATE TABLE IF NOT EXISTS ` + database + `.training_cycles (
			id String,
			model_name LowCardinality(String),
			started_at DateTime64(3, 'UTC'),
			finished_at DateTime64(3, 'UTC'),
			outcome LowCardinality(String),
			reason String,
			samples UInt32,
			dropped UInt32,
			train_samples UInt32,
			validation_samples UInt32,
			baseline_version String,
			baseline_reward Float64,
			candidate_version String,
			candidate_reward Float64,
			window_end DateTime64(3, 'UTC')
		) ENGINE = MergeTree
		ORDER BY (model_name, started_at)`,
		`ALTER TABLE ` + database + `.training_cycles
			ADD COLUMN IF NOT EXISTS window_end DateTime64(3, 'UTC')`,
		`CREATE TABLE IF NOT EXISTS ` + database + `.candles (
			symbol LowCardinality(String),
			timeframe LowCardinality(String),
			bucket DateTime('UTC'),
			open Float64,
			high Float64,
			low Float64,
			close Float64,
			volume Float64
		) ENGINE = ReplacingMergeTree
		ORDER BY (symbol, timeframe, bucket)`,
	}
}
