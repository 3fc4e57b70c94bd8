// Package gocqltransport adapts a real *gocql.Session/*gocql.ClusterConfig
// pair to the riftcql.Transport and riftcql.MetadataService interfaces
// (spec.md §6 "External Interfaces (Consumed)"). It is the one package that
// imports gocql for connection management; the core never does.
package gocqltransport

import (
	"context"
	"fmt"
	"regexp"

	"github.com/gocql/gocql"

	"github.com/riftcql/riftcql"
)

// Transport wraps a *gocql.Session as a riftcql.Transport.
type Transport struct {
	Session *gocql.Session
	Cluster *gocql.ClusterConfig
	Logger  riftcql.Logger

	defaultConsistency       gocql.Consistency
	defaultSerialConsistency gocql.SerialConsistency
	defaultIdempotence       bool
	retryPolicy              gocql.RetryPolicy
	readTimeoutMS            int
}

// Dial connects to cluster and returns a Transport wrapping the resulting
// session, the way the teacher's Connection constructors own a *gocql.Session
// for the lifetime of the process.
func Dial(cluster *gocql.ClusterConfig, logger riftcql.Logger) (*Transport, error) {
	session, err := cluster.CreateSession()
	if err != nil {
		return nil, riftcql.NewError(riftcql.KindNoHostAvailable, "", "failed to create gocql session", err)
	}
	if logger == nil {
		logger = riftcql.NoopLogger
	}
	return &Transport{
		Session:                  session,
		Cluster:                  cluster,
		Logger:                   logger,
		defaultConsistency:       cluster.Consistency,
		defaultSerialConsistency: gocql.Serial,
		defaultIdempotence:       false,
		retryPolicy:              cluster.RetryPolicy,
		readTimeoutMS:            int(cluster.Timeout.Milliseconds()),
	}, nil
}

// ExecuteAsync dispatches stmt against the session and returns a channel
// delivering exactly one riftcql.TransportResult, then closing (spec.md §6
// "execute_async(stmt) -> Future<ResultSet>").
func (t *Transport) ExecuteAsync(ctx context.Context, stmt *riftcql.PhysicalStatement) (<-chan riftcql.TransportResult, error) {
	ch := make(chan riftcql.TransportResult, 1)
	go func() {
		defer close(ch)
		ch <- t.execute(ctx, stmt)
	}()
	return ch, nil
}

func (t *Transport) execute(ctx context.Context, stmt *riftcql.PhysicalStatement) riftcql.TransportResult {
	q := t.Session.Query(stmt.CQL, stmt.Params...).WithContext(ctx)

	consistency := t.defaultConsistency
	if stmt.Consistency != 0 {
		consistency = stmt.Consistency
	}
	q = q.Consistency(consistency)

	if stmt.SerialConsistency != 0 {
		q = q.SerialConsistency(stmt.SerialConsistency)
	}
	if stmt.Timestamp != nil {
		q = q.WithTimestamp(*stmt.Timestamp)
	}
	idempotent := stmt.Idempotent
	q = q.Idempotent(idempotent)
	if stmt.FetchSize > 0 {
		q = q.PageSize(stmt.FetchSize)
	}
	if policy := t.retryPolicy; policy != nil {
		q = q.RetryPolicy(policy)
	}
	if stmt.Tracing {
		q = q.Trace(gocql.NewTraceWriter(t.Session, traceLogWriter{t.Logger, stmt.TracePrefix}))
	}

	if stmt.IfCondition {
		dest := map[string]interface{}{}
		applied, err := q.MapScanCAS(dest)
		if err != nil {
			return riftcql.TransportResult{Err: classifyError(err)}
		}
		var rows []map[string]interface{}
		if len(dest) > 0 {
			rows = []map[string]interface{}{dest}
		}
		return riftcql.TransportResult{ResultSet: riftcql.RawResultSet{
			Rows: rows, Applied: applied, HasApplied: true, FullyFetched: true,
		}}
	}

	iter := q.Iter()
	rows, err := drain(iter)
	if err != nil {
		return riftcql.TransportResult{Err: classifyError(err)}
	}
	return riftcql.TransportResult{ResultSet: riftcql.RawResultSet{
		Rows: rows, FullyFetched: true,
	}}
}

func drain(iter *gocql.Iter) ([]map[string]interface{}, error) {
	var rows []map[string]interface{}
	for {
		row := map[string]interface{}{}
		if !iter.MapScan(row) {
			break
		}
		rows = append(rows, row)
	}
	return rows, iter.Close()
}

// missingKeyspace matches the documented "keyspace X does not exist" pattern
// (spec.md §6 "validator-not-found signal", §7 "reclassifying 'keyspace does
// not exist' InvalidQuery -> ObjectNotFound"), independent of the exact
// casing/wording a given C* version's InvalidQuery message uses.
var missingKeyspace = regexp.MustCompile(`(?i)keyspace\s+\S+\s+does not exist`)

// classifyError reclassifies a gocql error into the riftcql taxonomy the
// core's CompositeResultSet/Statement layer expects (spec.md §7 "How
// transport errors surface").
func classifyError(err error) error {
	if err == nil {
		return nil
	}
	if rerr, ok := err.(gocql.RequestError); ok {
		if missingKeyspace.MatchString(rerr.Message()) {
			return riftcql.NewError(riftcql.KindObjectNotFound, "", rerr.Message(), err)
		}
		return riftcql.NewError(riftcql.KindQueryValidation, "", rerr.Message(), err)
	}
	if err == gocql.ErrNoConnections || err == gocql.ErrNoStreams {
		return riftcql.NewError(riftcql.KindNoHostAvailable, "", "no host available", err)
	}
	return riftcql.NewError(riftcql.KindQueryExecution, "", "query execution failed", err)
}

// ClusterMetadata reports the live cluster shape (spec.md §6
// "cluster_metadata()").
func (t *Transport) ClusterMetadata(ctx context.Context) (riftcql.ClusterMetadata, error) {
	return riftcql.ClusterMetadata{
		Nodes:     len(t.Cluster.Hosts),
		Keyspaces: []string{t.Cluster.Keyspace},
	}, nil
}

// Configuration reports the transport's effective defaults (spec.md §6
// "configuration()").
func (t *Transport) Configuration() riftcql.TransportConfiguration {
	return riftcql.TransportConfiguration{
		DefaultConsistency:       t.defaultConsistency,
		DefaultSerialConsistency: t.defaultSerialConsistency,
		DefaultIdempotence:       t.defaultIdempotence,
		RetryPolicy:              t.retryPolicy,
		ReadTimeoutMS:            t.readTimeoutMS,
	}
}

// Close releases the underlying session.
func (t *Transport) Close() { t.Session.Close() }

type traceLogWriter struct {
	logger Logger
	prefix string
}

// Logger is the minimal subset of riftcql.Logger the trace writer needs;
// declared locally to avoid importing riftcql's Logger type into a
// gocql.TraceWriter's Write signature.
type Logger interface {
	Printf(format string, v ...interface{})
}

func (w traceLogWriter) Write(p []byte) (int, error) {
	w.logger.Printf("%s%s", w.prefix, string(p))
	return len(p), nil
}

// MetadataService adapts gocql's system-schema introspection to
// riftcql.MetadataService, used by the lowering engine's ALTER diffing
// (spec.md §6 "observe_schema(keyspace) -> ObservedSchema").
type MetadataService struct {
	Session *gocql.Session
}

// ObserveSchema queries system_schema.tables/columns for the live shape of
// keyspace.
func (m *MetadataService) ObserveSchema(ctx context.Context, keyspace string) (riftcql.ObservedSchema, error) {
	out := riftcql.ObservedSchema{Tables: map[string]riftcql.ObservedTable{}}

	tableIter := m.Session.Query(
		`SELECT table_name FROM system_schema.tables WHERE keyspace_name = ?`, keyspace,
	).WithContext(ctx).Iter()
	var tableName string
	for tableIter.Scan(&tableName) {
		out.Tables[tableName] = riftcql.ObservedTable{Name: tableName, Columns: map[string]string{}}
	}
	if err := tableIter.Close(); err != nil {
		return out, riftcql.NewError(riftcql.KindQueryExecution, "", "failed to list tables", err)
	}

	for name, table := range out.Tables {
		colIter := m.Session.Query(
			`SELECT column_name, type, kind, clustering_order FROM system_schema.columns WHERE keyspace_name = ? AND table_name = ?`,
			keyspace, name,
		).WithContext(ctx).Iter()
		var col, typ, kind, order string
		for colIter.Scan(&col, &typ, &kind, &order) {
			table.Columns[col] = typ
			switch kind {
			case "partition_key":
				table.PartitionKeys = append(table.PartitionKeys, col)
			case "clustering":
				table.ClusteringKeys = append(table.ClusteringKeys, col)
			}
		}
		if err := colIter.Close(); err != nil {
			return out, riftcql.NewError(riftcql.KindQueryExecution, "", fmt.Sprintf("failed to describe table %q", name), err)
		}
		out.Tables[name] = table
	}
	return out, nil
}
