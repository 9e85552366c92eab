package csvimport

import (
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

var importNow = time.Date(2026, 3, 1, 9, 0, 0, 0, time.UTC)

func TestParse(t *testing.T) {
	in := "Image URL,Caption,Schedule Date\n" +
		"https://cdn.example/a.jpg,Fresh bread,2026-03-02T10:30:00\n" +
		"https://cdn.example/b.jpg,\"Croissants, warm\",not a date\n" +
		",orphan caption,2026-03-02\n" +
		"https://cdn.example/c.jpg,No date,\n"

	intents, err := Parse(strings.NewReader(in), time.UTC, importNow)
	require.NoError(t, err)
	require.Len(t, intents, 3)

	assert.Equal(t, "https://cdn.example/a.jpg", intents[0].ImageURL)
	assert.True(t, intents[0].RequestedAt.Equal(time.Date(2026, 3, 2, 10, 30, 0, 0, time.UTC)), intents[0].RequestedAt)
	assert.Equal(t, "Croissants, warm", intents[1].Caption)
	assert.Equal(t, importNow, intents[1].RequestedAt)
	assert.Equal(t, importNow, intents[2].RequestedAt)
}

func TestParseCamelCaseHeaders(t *testing.T) {
	in := "scheduleDate,imageUrl,caption\n03/05/2026 14:00,https://cdn.example/a.jpg,hi\n"

	intents, err := Parse(strings.NewReader(in), time.UTC, importNow)
	require.NoError(t, err)
	require.Len(t, intents, 1)
	assert.Equal(t, "hi", intents[0].Caption)
	assert.True(t, intents[0].RequestedAt.Equal(time.Date(2026, 3, 5, 14, 0, 0, 0, time.UTC)), intents[0].RequestedAt)
}

func TestParseMissingImageColumn(t *testing.T) {
	_, err := Parse(strings.NewReader("Caption,Schedule Date\nx,y\n"), time.UTC, importNow)
	assert.ErrorIs(t, err, ErrMissingColumn)
}

func TestParseEmpty(t *testing.T) {
	intents, err := Parse(strings.NewReader(""), time.UTC, importNow)
	require.NoError(t, err)
	assert.Empty(t, intents)
}
