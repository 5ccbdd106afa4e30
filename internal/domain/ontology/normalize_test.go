package ontology

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestNormalizeSection(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"IPC 376", "IPC 376"},
		{"  ipc   376 ", "IPC 376"},
		{"Section 376 IPC", "IPC 376"},
		{"SECTION 498A IPC", "IPC 498A"},
		{"IPC376", "IPC 376"},
		{"ipc397", "IPC 397"},
		{"POCSO4", "POCSO 4"},
		{"pocso 6", "POCSO 6"},
		{"Section 397 IPC", "IPC 397"},
		{"CrPC 313", "CRPC 313"},
		{"", ""},
	}
	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			assert.Equal(t, tt.want, NormalizeSection(tt.in))
		})
	}
}

func TestNormalizeSection_Idempotent(t *testing.T) {
	for _, s := range []string{"Section 376 IPC", "IPC376", "POCSO4", "IPC 302"} {
		once := NormalizeSection(s)
		assert.Equal(t, once, NormalizeSection(once), s)
	}
}

//Personal.AI order the ending
