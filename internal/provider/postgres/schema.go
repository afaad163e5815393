// Package postgres implements a durable Postgres prediction store.
package postgres

const schemaDDL = `
CREATE TABLE IF NOT EXISTS predictions (
    symbol      TEXT NOT NULL,
    model       TEXT NOT NULL,
    date        DATE NOT NULL,
    value       DOUBLE PRECISION NOT NULL,
    updated_at  TIMESTAMPTZ NOT NULL DEFAULT NOW(),
    PRIMARY KEY (symbol, model, date)
);
`

// upsertSQL reports whether the row was freshly inserted. xmax is zero only for
// a tuple created by this statement, so an update of an existing key returns false.
const upsertSQL = `
INSERT INTO predictions (symbol, model, date, value, updated_at)
VALUES ($1, $2, $3, $4, NOW())
ON CONFLICT (symbol, model, date) DO UPDATE SET
    value      = EXCLUDED.value,
    updated_at = EXCLUDED.updated_at
RETURNING (xmax = 0) AS inserted
`

const querySQL = `
SELECT date, value FROM predictions
WHERE symbol = $1 AND model = $2
ORDER BY date ASC
`
