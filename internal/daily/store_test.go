package daily

import (
	"context"
	"database/sql"
	"os"
	"path/filepath"
	"testing"

	_ "github.com/mattn/go-sqlite3"
)

func testDB(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "test.db"))
	if err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = db.Close() })

	schema, err := os.ReadFile(filepath.Join("..", "..", "sql", "0001_init.sql"))
	if err != nil {
		t.Fatal(err)
	}
	if _, err := db.Exec(string(schema)); err != nil {
		t.Fatal(err)
	}
	return db
}

func TestStoreOnePlayPerDay(t *testing.T) {
	ctx := context.Background()
	st := NewStore(testDB(t))

	played, err := st.AlreadyPlayed(ctx, "u1", "2026-03-14")
	if err != nil || played {
		t.Fatalf("AlreadyPlayed before insert = %v, %v", played, err)
	}

	res := Result{UserID: "u1", Date: "2026-03-14", IdentityIndex: 7, Questions: 5, Guesses: 2, ElapsedMs: 90000, Won: true}
	if err := st.InsertResult(ctx, res); err != nil {
		t.Fatal(err)
	}
	// A second result for the same user and date is silently dropped.
	res.Questions = 1
	if err := st.InsertResult(ctx, res); err != nil {
		t.Fatal(err)
	}

	played, err = st.AlreadyPlayed(ctx, "u1", "2026-03-14")
	if err != nil || !played {
		t.Fatalf("AlreadyPlayed after insert = %v, %v", played, err)
	}

	rows, err := st.Leaderboard(ctx, "2026-03-14", 10)
	if err != nil {
		t.Fatal(err)
	}
	if len(rows) != 1 || rows[0].Questions != 5 {
		t.Fatalf("leaderboard = %+v, want the first insert only", rows)
	}
}

func TestLeaderboardOrdering(t *testing.T) {
	ctx := context.Background()
	st := NewStore(testDB(t))

	inserts := []Result{
		{UserID: "slow", Date: "2026-03-14", Questions: 8, Guesses: 1, ElapsedMs: 300000, Won: true},
		{UserID: "fast", Date: "2026-03-14", Questions: 3, Guesses: 1, ElapsedMs: 60000, Won: true},
		{UserID: "tied", Date: "2026-03-14", Questions: 3, Guesses: 1, ElapsedMs: 45000, Won: true},
		{UserID: "loser", Date: "2026-03-14", Questions: 2, Guesses: 3, ElapsedMs: 30000, Won: false},
		{UserID: "other_day", Date: "2026-03-15", Questions: 1, Guesses: 1, ElapsedMs: 1000, Won: true},
	}
	for _, r := range inserts {
		if err := st.InsertResult(ctx, r); err != nil {
			t.Fatal(err)
		}
	}

	rows, err := st.Leaderboard(ctx, "2026-03-14", 10)
	if err != nil {
		t.Fatal(err)
	}
	want := []string{"tied", "fast", "slow"}
	if len(rows) != len(want) {
		t.Fatalf("leaderboard has %d rows, want %d: %+v", len(rows), len(want), rows)
	}
	for i, uid := range want {
		if rows[i].UserID != uid {
			t.Errorf("rank %d = %s, want %s", i+1, rows[i].UserID, uid)
		}
	}
}
