package riftcql

import (
	"context"
	"time"

	"github.com/gocql/gocql"
)

// PhysicalStatement is one fully-lowered CQL statement ready for dispatch.
// It is the unit the lowering engine (C5) produces and the composite
// engines (C6) schedule; every field here is owned by riftcql, never
// mutated by the transport.
type PhysicalStatement struct {
	Keyspace string
	CQL      string
	Params   []interface{}

	Consistency       gocql.Consistency
	SerialConsistency gocql.SerialConsistency
	Timestamp         *int64 // microseconds, USING TIMESTAMP
	TTL               *int   // seconds, USING TTL

	Idempotent   bool
	RetryPolicy  gocql.RetryPolicy
	FetchSize    int
	ReadTimeout  time.Duration
	Tracing      bool
	TracePrefix  string

	// IfCondition is true for statements carrying an IF / IF NOT EXISTS
	// clause; WasApplied on the resulting row set is meaningful only then.
	IfCondition bool

	// counterStatement marks a leaf that mutates a counter column, set by
	// the lowering engine; composite construction (BatchLogged etc.) uses
	// it to enforce the counter/non-counter batch-mixing rule.
	counterStatement bool
}

// RawResultSet is what the transport hands back for one physical statement:
// decoded column maps plus the conditional-apply flag C6/C7 fold into their
// aggregate "was applied" semantics.
type RawResultSet struct {
	Rows        []map[string]interface{}
	Applied     bool
	HasApplied  bool // false when the statement carried no IF condition
	PageState   []byte
	FullyFetched bool
}

// ClusterMetadata is the shape cluster_metadata() returns (spec.md §6).
type ClusterMetadata struct {
	Nodes     int
	Keyspaces []string
	Tables    map[string][]string
	UDTs      map[string][]string
}

// TransportConfiguration is the shape configuration() returns (spec.md §6).
type TransportConfiguration struct {
	DefaultConsistency       gocql.Consistency
	DefaultSerialConsistency gocql.SerialConsistency
	DefaultIdempotence       bool
	RetryPolicy              gocql.RetryPolicy
	ReadTimeoutMS            int
}

// Transport is the external CQL transport riftcql consumes (spec.md §6). It
// is never implemented by the core itself — gocqltransport adapts a real
// *gocql.Session, and tests supply an in-memory fake.
type Transport interface {
	ExecuteAsync(ctx context.Context, stmt *PhysicalStatement) (<-chan TransportResult, error)
	ClusterMetadata(ctx context.Context) (ClusterMetadata, error)
	Configuration() TransportConfiguration
}

// TransportResult is delivered on the channel ExecuteAsync returns: exactly
// one value, then the channel is closed.
type TransportResult struct {
	ResultSet RawResultSet
	Err       error
}

// MetadataService is the external schema-observation collaborator ALTER
// diffing (C5) depends on (spec.md §6).
type MetadataService interface {
	ObserveSchema(ctx context.Context, keyspace string) (ObservedSchema, error)
}

// ObservedSchema is what MetadataService.ObserveSchema returns: the tables
// and columns actually present in a keyspace, as seen by the storage layer.
type ObservedSchema struct {
	Tables map[string]ObservedTable
}

// ObservedTable describes one physical table as observed live.
type ObservedTable struct {
	Name            string
	PartitionKeys   []string
	ClusteringKeys  []string
	Columns         map[string]string // column name -> CQL type string
	Options         map[string]string
}
