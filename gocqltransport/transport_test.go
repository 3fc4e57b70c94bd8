package gocqltransport

import (
	"errors"
	"fmt"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/riftcql/riftcql"
)

// classifyError's branches on concrete gocql sentinel/interface types
// (gocql.RequestError, gocql.ErrNoConnections, gocql.ErrNoStreams) aren't
// exercised here: this package is the one place in the repo grounded on
// general gocql API knowledge rather than a retrieved example file (see
// DESIGN.md), and asserting against invented gocql error shapes without a
// way to compile-check them would trade one guess for another. The fallback
// path, which needs no gocql-specific type, is still worth pinning down.
func TestClassifyErrorNilPassesThrough(t *testing.T) {
	assert.NoError(t, classifyError(nil))
}

func TestClassifyErrorFallsBackToQueryExecution(t *testing.T) {
	err := classifyError(errors.New("boom"))
	require.Error(t, err)
	assert.True(t, riftcql.IsKind(err, riftcql.KindQueryExecution))
}

// missingKeyspace is exercised directly rather than through classifyError's
// gocql.RequestError branch, for the same reason noted above.
func TestMissingKeyspaceMatchesDocumentedPattern(t *testing.T) {
	assert.True(t, missingKeyspace.MatchString("unable to execute query: keyspace acme does not exist"))
	assert.True(t, missingKeyspace.MatchString("Keyspace 'acme' does not exist"))
	assert.False(t, missingKeyspace.MatchString("table acme.users does not exist"))
	assert.False(t, missingKeyspace.MatchString("unconfigured table users"))
}

func TestTraceLogWriterForwardsToLoggerWithPrefix(t *testing.T) {
	var got string
	w := traceLogWriter{logger: testLogger(func(format string, v ...interface{}) {
		got = fmt.Sprintf(format, v...)
	}), prefix: "trace: "}
	n, err := w.Write([]byte("hello"))
	require.NoError(t, err)
	assert.Equal(t, 5, n)
	assert.Equal(t, "trace: hello", got)
}

type testLogger func(format string, v ...interface{})

func (f testLogger) Printf(format string, v ...interface{}) { f(format, v...) }
