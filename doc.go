// Package sentinel is an embeddable authentication and authorization
// engine: argon2id credentials, JWT access tokens, rotating refresh tokens
// tracked in a durable ledger with reuse detection, per-identity rate
// limiting, session tracking with login anomaly scoring, and an append-only
// audit trail.
//
// Storage engines stay external. Hand the Builder a *sql.DB (Postgres via
// the pgx stdlib driver) and a *redis.Client for production, or run fully
// in-memory for tests:
//
//	engine, err := sentinel.New().
//		WithConfig(cfg).
//		WithDB(db).
//		WithRedis(rdb).
//		WithAuditSink(audit.NewPGStore(db)).
//		Build()
//
// The refresh ledger is the heart of the security model. Every refresh
// token is a node in a lineage rooted at login; rotation is a single
// conditional state transition, so exactly one concurrent caller wins.
// Presenting a token that already rotated revokes the entire lineage and
// its session.
package sentinel
