// Package providertest provides shared conformance tests for provider.Store
// implementations. Call RunAll from a test function to verify a store
// satisfies the full behavioral contract.
package providertest

import (
	"testing"

	"github.com/dwsmith1983/forecastd/internal/provider"
)

// RunAll runs the complete store conformance suite as subtests. Every subtest
// writes under its own symbol so durable backends can share one database.
func RunAll(t *testing.T, store provider.Store) {
	t.Helper()

	t.Run("UpsertAndQuery", func(t *testing.T) { TestUpsertAndQuery(t, store) })
	t.Run("Idempotent", func(t *testing.T) { TestIdempotent(t, store) })
	t.Run("LastWriteWins", func(t *testing.T) { TestLastWriteWins(t, store) })
	t.Run("ModelIsolation", func(t *testing.T) { TestModelIsolation(t, store) })
	t.Run("UnknownKeyEmpty", func(t *testing.T) { TestUnknownKeyEmpty(t, store) })
	t.Run("SortedByDate", func(t *testing.T) { TestSortedByDate(t, store) })
	t.Run("ConcurrentUpserts", func(t *testing.T) { TestConcurrentUpserts(t, store) })
	t.Run("Ping", func(t *testing.T) { TestPing(t, store) })
}
