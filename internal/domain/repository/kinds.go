package repository

// SinkKind selects where served predictions are sent.
type SinkKind string

const (
	SinkNone       SinkKind = "none"
	SinkClickHouse SinkKind = "clickhouse"
	SinkKafka      SinkKind = "kafka"
)

// SourceKind selects where indicator history is read from.
type SourceKind string

const (
	SourceCSV        SourceKind = "csv"
	SourceClickHouse SourceKind = "clickhouse"
)

// ArtifactBackend selects where bundles are stored.
type ArtifactBackend string

const (
	BackendFile   ArtifactBackend = "file"
	BackendBadger ArtifactBackend = "badger"
)

// IsValidSink returns true if k is a supported prediction sink.
func IsValidSink(k SinkKind) bool {
	switch k {
	case SinkNone, SinkClickHouse, SinkKafka:
		return true
	default:
		return false
	}
}

// NormalizeSink converts raw string to a valid sink (or none).
func NormalizeSink(s string) SinkKind {
	k := SinkKind(s)
	if IsValidSink(k) {
		return k
	}
	return SinkNone
}

// IsValidSource returns true if k is a supported indicator source.
func IsValidSource(k SourceKind) bool {
	return k == SourceCSV || k == SourceClickHouse
}

// IsValidBackend returns true if b is a supported artifact backend.
func IsValidBackend(b ArtifactBackend) bool {
	return b == BackendFile || b == BackendBadger
}
