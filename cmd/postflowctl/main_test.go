package main

import (
	"bytes"
	"context"
	"encoding/json"
	"os"
	"path/filepath"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	config "github.com/maheshrc27/postflow/configs"
	"github.com/maheshrc27/postflow/internal/app"
	"github.com/maheshrc27/postflow/internal/models"
	"github.com/maheshrc27/postflow/pkg/utils"
)

const testSecret = "0123456789abcdef"

func setupEnv(t *testing.T) string {
	t.Helper()
	dir := t.TempDir()
	t.Setenv("STORE_DRIVER", "sqlite")
	t.Setenv("SQLITE_PATH", filepath.Join(dir, "schedule.db"))
	t.Setenv("OFFLINE_QUEUE_PATH", filepath.Join(dir, "offline.db"))
	t.Setenv("SECRET_KEY", testSecret)
	t.Setenv("REDIS_URI", "")
	t.Setenv("R2_ACCOUNT_ID", "")
	return dir
}

func run(t *testing.T, args ...string) (string, error) {
	t.Helper()
	cmd := newRootCommand()
	var out bytes.Buffer
	cmd.SetOut(&out)
	cmd.SetErr(&out)
	cmd.SetArgs(append([]string{"--env", ""}, args...))
	err := cmd.Execute()
	return out.String(), err
}

func TestTokenCommand(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "token", "--user", "ops")
	require.NoError(t, err)

	claims, err := utils.ValidateToken(testSecret, strings.TrimSpace(out))
	require.NoError(t, err)
	assert.Equal(t, "ops", claims.UserID)
}

func TestUpcomingAndSweepOnEmptyStore(t *testing.T) {
	setupEnv(t)

	out, err := run(t, "upcoming", "--account", "page-1")
	require.NoError(t, err)
	var records []*models.ScheduledRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	assert.Empty(t, records)

	out, err = run(t, "sweep")
	require.NoError(t, err)
	assert.Contains(t, out, `"published": 0`)

	out, err = run(t, "drain")
	require.NoError(t, err)
	assert.Contains(t, out, `"remaining": 0`)

	_, err = run(t, "upcoming")
	assert.Error(t, err)
}

func TestRecordsByStatus(t *testing.T) {
	setupEnv(t)
	ctx := context.Background()

	a, err := app.New(ctx, config.LoadConfig())
	require.NoError(t, err)
	require.NoError(t, a.Records.Create(ctx, nil, &models.ScheduledRecord{
		AccountID:    "17841",
		AccountName:  "Bakery IG",
		Platform:     models.PlatformTwoPhasePublish,
		Status:       models.RecordStatusTokenExpired,
		ErrorMessage: "Session has expired",
	}))
	require.NoError(t, a.Close())

	out, err := run(t, "records", "--status", "token_expired")
	require.NoError(t, err)
	var records []*models.ScheduledRecord
	require.NoError(t, json.Unmarshal([]byte(out), &records))
	require.Len(t, records, 1)
	assert.Equal(t, "17841", records[0].AccountID)

	out, err = run(t, "records")
	require.NoError(t, err)
	assert.JSONEq(t, `[]`, out)

	_, err = run(t, "records", "--status", "lost")
	assert.Error(t, err)
}

func TestLoadAccounts(t *testing.T) {
	path := filepath.Join(t.TempDir(), "accounts.toml")
	doc := `
[[accounts]]
id = "page-1"
display_name = "Bakery Page"
platform = "direct_publish"
access_token = "page-token"

[[accounts]]
id = "17841"
display_name = "Bakery IG"
platform = "instagram"
access_token = "ig-token"
parent_account_id = "page-1"
`
	require.NoError(t, os.WriteFile(path, []byte(doc), 0o600))

	accounts, err := loadAccounts(path)
	require.NoError(t, err)
	require.Len(t, accounts, 2)
	assert.Equal(t, models.PlatformDirectPublish, accounts[0].Platform)
	assert.Equal(t, models.PlatformTwoPhasePublish, accounts[1].Platform)

	empty := filepath.Join(t.TempDir(), "empty.toml")
	require.NoError(t, os.WriteFile(empty, []byte("# none\n"), 0o600))
	_, err = loadAccounts(empty)
	assert.Error(t, err)
}

func TestTruncate(t *testing.T) {
	assert.Equal(t, "short", truncate("short", 10))
	assert.Equal(t, "abcd…", truncate("abcdefgh", 5))
}
