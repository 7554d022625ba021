// seed inserts development sample data for local testing: a group, a user with
// the manage_tns_robots role, TNS-registered instruments, and one source with
// photometry. Idempotent: every insert skips on conflict.
package main

import (
	"context"
	"log"

	"github.com/google/uuid"

	"transient-broker/backend/internal/config"
	"transient-broker/backend/internal/db"
)

const (
	devGroupID = 1
	devUserID  = 1
	devObjID   = "ZTF24aadevsrc"
)

func main() {
	cfg, err := config.Load()
	if err != nil {
		log.Fatalf("config: %v", err)
	}
	if cfg.DatabaseURL == "" {
		log.Fatal("DATABASE_URL is not set")
	}

	ctx := context.Background()
	pool, err := db.Open(ctx, cfg.DatabaseURL)
	if err != nil {
		log.Fatalf("open database: %v", err)
	}
	defer pool.Close()

	stmts := []struct {
		sql  string
		args []any
	}{
		{`INSERT INTO groups (id, name) VALUES ($1, 'Dev Group') ON CONFLICT DO NOTHING`,
			[]any{devGroupID}},
		{`INSERT INTO users (id, username, roles) VALUES ($1, 'dev', '{manage_tns_robots}') ON CONFLICT DO NOTHING`,
			[]any{devUserID}},
		{`INSERT INTO group_users (group_id, user_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			[]any{devGroupID, devUserID}},
		{`INSERT INTO instruments (name, tns_id, tns_filters) VALUES ('ZTF-Cam', 196, '{sdssg,sdssr,sdssi}') ON CONFLICT DO NOTHING`, nil},
		{`INSERT INTO instruments (name, tns_id, tns_filters) VALUES ('SEDM', 149, '{}') ON CONFLICT DO NOTHING`, nil},
		{`INSERT INTO objs (id, ra, dec, internal_key) VALUES ($1, 120.5, -33.25, $2) ON CONFLICT DO NOTHING`,
			[]any{devObjID, uuid.NewString()}},
		{`INSERT INTO obj_groups (obj_id, group_id) VALUES ($1, $2) ON CONFLICT DO NOTHING`,
			[]any{devObjID, devGroupID}},
		{`INSERT INTO photometry (obj_id, instrument_id, mjd, limiting_mag, filter, origin)
		  SELECT $1, id, 60310.0, 20.5, 'sdssr', 'dev' FROM instruments WHERE name = 'ZTF-Cam'
		  ON CONFLICT DO NOTHING`, []any{devObjID}},
		{`INSERT INTO photometry (obj_id, instrument_id, mjd, mag, magerr, filter, origin)
		  SELECT $1, id, 60311.0, 18.4, 0.1, 'sdssr', 'dev' FROM instruments WHERE name = 'ZTF-Cam'
		  ON CONFLICT DO NOTHING`, []any{devObjID}},
	}
	for _, s := range stmts {
		if _, err := pool.Exec(ctx, s.sql, s.args...); err != nil {
			log.Fatalf("seed: %v\n%s", err, s.sql)
		}
	}

	// keep the sequences ahead of the fixed dev IDs
	for _, seq := range []string{
		`SELECT setval('groups_id_seq', GREATEST((SELECT MAX(id) FROM groups), 1))`,
		`SELECT setval('users_id_seq', GREATEST((SELECT MAX(id) FROM users), 1))`,
	} {
		if _, err := pool.Exec(ctx, seq); err != nil {
			log.Fatalf("seed sequences: %v", err)
		}
	}
	log.Println("seeded development data")
}
