package models

import (
	"testing"

	"github.com/goccy/go-json"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestSessionReset(t *testing.T) {
	s := Session{Active: true, DatabaseID: "db-1", StartTime: 1700000000000}
	s.Reset()

	assert.False(t, s.Active)
	assert.Empty(t, s.DatabaseID)
	assert.Zero(t, s.StartTime)
}

func TestStatusHealthy(t *testing.T) {
	tests := []struct {
		level    StatusLevel
		expected bool
	}{
		{StatusOK, true},
		{StatusConnecting, false},
		{StatusBadConfig, false},
		{StatusUnknownError, false},
	}

	for _, tt := range tests {
		t.Run(string(tt.level), func(t *testing.T) {
			assert.Equal(t, tt.expected, Status{Level: tt.level}.Healthy())
		})
	}
}

func TestSnapshotJSONFieldNames(t *testing.T) {
	snap := Snapshot{
		Session: Session{Active: true, DatabaseID: "db-1", StartTime: 42},
		Status:  Status{Level: StatusUnknownError, Code: "unauthorized", HTTPStatus: 401},
	}

	data, err := json.Marshal(snap)
	require.NoError(t, err)

	var raw map[string]map[string]any
	require.NoError(t, json.Unmarshal(data, &raw))

	assert.Equal(t, "db-1", raw["session"]["databaseId"])
	assert.Equal(t, float64(42), raw["session"]["startTime"])
	assert.Equal(t, "unauthorized", raw["status"]["code"])
	assert.Equal(t, float64(401), raw["status"]["httpStatus"])
}
