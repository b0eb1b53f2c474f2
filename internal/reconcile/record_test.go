package reconcile

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestClassifyRecordType(t *testing.T) {
	tests := []struct {
		in   string
		want string
	}{
		{"CONTACT", RecordContact},
		{"contact", RecordContact},
		{" Contact ", RecordContact},
		{"contact row", RecordContact},
		{"SYNTHESIZED_DETAIL", RecordSynthDetail},
		{"synthesized_detail", RecordSynthDetail},
		{"ai_synthesized_detail", RecordSynthDetail},
		{"DETAIL", RecordSynthDetail},
		{"RAW_NOTE", RecordRawNote},
		{"raw note", RecordRawNote},
		{"", ""},
		{"   ", ""},
		{"banana", ""},
	}
	for _, tt := range tests {
		assert.Equal(t, tt.want, ClassifyRecordType(tt.in), "input %q", tt.in)
	}
}
