package dashboard

import (
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"snakemesh/internal/field"
	"snakemesh/internal/roster"
	"snakemesh/internal/wire"
)

type fakeSnapshotter struct {
	roster roster.Snapshot
	field  field.Snapshot
}

func (f fakeSnapshotter) Snapshot() (roster.Snapshot, field.Snapshot) {
	return f.roster, f.field
}

func TestHandleStatsEncodesSnapshot(t *testing.T) {
	src := fakeSnapshotter{
		roster: roster.Snapshot{
			StateOrder: 9,
			Players: []roster.Player{
				{ID: 0, Name: "host", Role: wire.RoleMaster, Score: 3},
				{ID: 1, Name: "joiner", Role: wire.RoleNormal, Score: 1},
			},
		},
		field: field.Snapshot{
			StateOrder: 9,
			Food:       []field.Point{{X: 1, Y: 1}, {X: 2, Y: 2}},
		},
	}
	s := NewServer(":0", src, 0)

	req := httptest.NewRequest(http.MethodGet, StatsPath, nil)
	rec := httptest.NewRecorder()
	s.handleStats(rec, req)

	require.Equal(t, http.StatusOK, rec.Code)
	var got Stats
	require.NoError(t, json.Unmarshal(rec.Body.Bytes(), &got))
	assert.EqualValues(t, 9, got.StateOrder)
	assert.Len(t, got.Players, 2)
	assert.Equal(t, "MASTER", got.Players[0].Role)
	assert.Equal(t, 2, got.FoodCount)
}
