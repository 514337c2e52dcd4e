package metrics

// Metric names emitted by the pipeline.
const (
	LapsProcessed         = "laps_processed"
	PatchesEmitted        = "patches_emitted"
	ControlLogPollLatency = "control_log_poll_latency_ms"
	StaleCarCount         = "stale_car_count"
	IngestBatchSize       = "ingest_batch_size"
	BroadcastFailureCount = "broadcast_failure_count"
)
