package db

import (
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/jonathan/hiring-board/internal/realtime"
)

func TestChannelName(t *testing.T) {
	assert.Equal(t, "jobs_changes", ChannelName("jobs"))
	assert.Equal(t, "applications_changes", ChannelName("applications"))
}

func TestSalaryRange(t *testing.T) {
	tests := []struct {
		name     string
		lo, hi   int
		expected *string
	}{
		{"none", 0, 0, nil},
		{"band", 90000, 120000, strPtr("90000-120000")},
		{"open floor", 0, 50000, strPtr("0-50000")},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.expected, SalaryRange(tt.lo, tt.hi))
		})
	}
}

func TestDecodeChange(t *testing.T) {
	id := uuid.MustParse("7d9f3c1e-2b4a-4c5d-8e6f-0a1b2c3d4e5f")

	tests := []struct {
		name    string
		payload string
		check   func(t *testing.T, ch *realtime.Change)
		wantErr bool
	}{
		{
			name:    "insert",
			payload: `{"op":"INSERT","table":"jobs","id":"` + id.String() + `","new":{"id":"` + id.String() + `","title":"Engineer"}}`,
			check: func(t *testing.T, ch *realtime.Change) {
				assert.Equal(t, realtime.OpInsert, ch.Op)
				assert.Equal(t, "jobs", ch.Table)
				assert.Equal(t, id, ch.ID)
				assert.JSONEq(t, `{"id":"`+id.String()+`","title":"Engineer"}`, string(ch.New))
				assert.False(t, ch.Partial)
			},
		},
		{
			name:    "delete",
			payload: `{"op":"DELETE","table":"applications","id":"` + id.String() + `","old":{"id":"` + id.String() + `"}}`,
			check: func(t *testing.T, ch *realtime.Change) {
				require.NotNil(t, ch.Old)
				assert.Equal(t, id, ch.Old.ID)
				assert.Empty(t, ch.New)
			},
		},
		{
			name:    "partial",
			payload: `{"op":"UPDATE","table":"jobs","id":"` + id.String() + `","partial":true}`,
			check: func(t *testing.T, ch *realtime.Change) {
				assert.True(t, ch.Partial)
				assert.Equal(t, id, ch.ID)
			},
		},
		{name: "not json", payload: `LISTEN`, wantErr: true},
		{name: "missing op", payload: `{"table":"jobs"}`, wantErr: true},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			ch, err := DecodeChange(tt.payload)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			tt.check(t, ch)
		})
	}
}

func strPtr(s string) *string {
	return &s
}
