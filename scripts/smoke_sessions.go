//go:build integration
// +build integration

package scripts

import (
	"context"
	"fmt"
	"log"
	"os"
	"time"

	"github.com/ZanzyTHEbar/callbridge/callbridge/db"
	"github.com/ZanzyTHEbar/callbridge/callbridge/session"
	"github.com/redis/go-redis/v9"
	"github.com/rs/zerolog"
)

func must(err error, msg string) {
	if err != nil {
		log.Fatalf("%s: %v", msg, err)
	}
}

// RunSmokeLibSQL checks the embedded session database end to end.
func RunSmokeLibSQL() {
	fmt.Println("Smoke test: libsql session store")
	ctx := context.Background()
	tmp := "./smoke.db"
	defer os.Remove(tmp)

	conn, err := db.Connect(ctx, tmp, zerolog.Nop())
	must(err, "connect")
	defer conn.Close()

	must(db.Migrate(ctx, conn, zerolog.Nop()), "migrate")
	fmt.Println("OK: migrations")

	backend := session.NewSQLBackend(conn)
	now := time.Now().UTC()
	must(backend.Save(ctx, session.New("SESSION_smoke", "1234", 5, now)), "save")

	// JSON1 is needed for ad-hoc inspection of stored sessions
	var userID string
	err = conn.QueryRowContext(ctx, `SELECT json_extract(data, '$.userId') FROM sessions WHERE id = ?`, "SESSION_smoke").Scan(&userID)
	must(err, "JSON1 query")
	if userID != "1234" {
		log.Fatalf("JSON1 returned unexpected: %v", userID)
	}
	fmt.Println("OK: JSON1")

	n, err := backend.Sweep(ctx, now.Add(time.Hour))
	must(err, "sweep")
	if n != 1 {
		log.Fatalf("sweep removed %d sessions, want 1", n)
	}
	fmt.Println("OK: sweep")
	fmt.Println("Smoke checks completed.")
}

// RunSmokeRedis checks the redis backend and lock against a live server.
func RunSmokeRedis(addr string) {
	fmt.Println("Smoke test: redis session store at", addr)
	ctx := context.Background()
	client := redis.NewClient(&redis.Options{Addr: addr})
	defer client.Close()
	must(client.Ping(ctx).Err(), "ping")

	backend := session.NewRedisBackend(client, "callbridge:smoke:", time.Minute)
	must(backend.Save(ctx, session.New("SESSION_smoke", "1234", 5, time.Now())), "save")
	if _, err := backend.Load(ctx, "SESSION_smoke"); err != nil {
		log.Fatalf("load: %v", err)
	}
	must(backend.Delete(ctx, "SESSION_smoke"), "delete")
	fmt.Println("OK: backend")

	unlock, err := session.NewRedisLocker(client, "callbridge:smoke:").Lock(ctx, "SESSION_smoke", 10*time.Second)
	must(err, "lock")
	must(unlock(ctx), "unlock")
	fmt.Println("OK: distributed lock")
}
