package core

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestIsSQLVariable(t *testing.T) {
	tests := []struct {
		name string
		want bool
	}{
		{"sql", true},
		{"query", true},
		{"sql_query", true},
		{"monthly_query", true},
		{"orders_sql", true},
		{"querystring", false},
		{"sqlite", false},
		{"result", false},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			assert.Equal(t, tt.want, IsSQLVariable(tt.name))
		})
	}
}

func TestIsSafeBuiltin(t *testing.T) {
	assert.True(t, IsSafeBuiltin("len"))
	assert.True(t, IsSafeBuiltin("None"))
	assert.False(t, IsSafeBuiltin("getattr"))
	assert.False(t, IsSafeBuiltin("load"))
}
