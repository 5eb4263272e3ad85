package main

import (
	"bytes"
	"context"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/warp/crm-inventory/inventory"
	"github.com/warp/crm-inventory/store/sqlite"
)

// seed writes two drifted records for 마커/소모품 and returns the db path.
func seed(t *testing.T) string {
	t.Helper()
	chdir(t, t.TempDir())
	path := filepath.Join(t.TempDir(), "cli.db")

	store, err := sqlite.New(path)
	require.NoError(t, err)
	defer store.Close()

	at := time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)
	for i, m := range []struct{ in, out int64 }{{20, 5}, {10, 3}} {
		require.NoError(t, store.Save(context.Background(), inventory.Movement{
			ID:           inventory.MovementID([]string{"m1", "m2"}[i]),
			Name:         "마커",
			Category:     "소모품",
			Kind:         inventory.KindInventory,
			Inflow:       inventory.QtyInt(m.in),
			Outflow:      inventory.QtyInt(m.out),
			RunningStock: decimal.Zero,
			CreatedAt:    inventory.NativeTime(at.Add(time.Duration(i) * time.Hour)),
		}))
	}
	return path
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out, errOut bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&errOut)
	cmd.SetArgs(args)
	err := cmd.Execute()
	return out.String(), err
}

func TestStockctl_HealThenStock(t *testing.T) {
	db := seed(t)

	out, err := run(t, "stock", "--db", db, "--name", "마커", "--category", "소모품")
	require.NoError(t, err)
	assert.Equal(t, "22\n", out, "no aggregate yet, falls back to history")

	out, err = run(t, "heal", "--db", db, "--name", "마커", "--category", "소모품")
	require.NoError(t, err)
	assert.Contains(t, out, "마커/소모품")
	assert.Contains(t, out, "stock=22")
	assert.Contains(t, out, "corrections=2")

	out, err = run(t, "heal-all", "--db", db)
	require.NoError(t, err)
	assert.Contains(t, out, "corrections=0")
	assert.Contains(t, out, "healed 1")
}

func TestStockctl_ResetRequiresConfirmation(t *testing.T) {
	db := seed(t)

	_, err := run(t, "reset", "--db", db)
	require.Error(t, err)

	out, err := run(t, "reset", "--db", db, "--yes")
	require.NoError(t, err)
	assert.Equal(t, "deleted 2 movements\n", out)

	out, err = run(t, "stock", "--db", db, "--name", "마커", "--category", "소모품", "--from-history")
	require.NoError(t, err)
	assert.Equal(t, "0\n", out)
}

func TestStockctl_NameIsRequired(t *testing.T) {
	db := seed(t)

	_, err := run(t, "heal", "--db", db)
	assert.Error(t, err)
}

// chdir changes the working directory for the duration of the test
// (equivalent of testing.T.Chdir, which requires Go 1.24).
func chdir(t *testing.T, dir string) {
	t.Helper()
	prev, err := os.Getwd()
	if err != nil {
		t.Fatal(err)
	}
	if err := os.Chdir(dir); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() { _ = os.Chdir(prev) })
}
