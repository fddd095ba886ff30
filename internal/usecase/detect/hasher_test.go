package detect_test

import (
	"testing"

	"github.com/stretchr/testify/assert"

	"regwatch/internal/domain/entity"
	"regwatch/internal/usecase/detect"
)

func TestFingerprint(t *testing.T) {
	tests := []struct {
		name  string
		input string
		want  string
	}{
		{
			name:  "empty input",
			input: "",
			want:  "e3b0c44298fc1c149afbf4c8996fb92427ae41e4649b934ca495991b7852b855",
		},
		{
			name:  "ascii",
			input: "abc",
			want:  "ba7816bf8f01cfea414140de5dae2223b00361a396177a9cb410ff61f20015ad",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got := detect.Fingerprint(tt.input)
			assert.Equal(t, entity.Fingerprint(tt.want), got)
			assert.Len(t, got.String(), entity.FingerprintLength)
		})
	}
}

func TestFingerprint_DeterministicAndDistinct(t *testing.T) {
	a := detect.Fingerprint("Regulation (EU) 2023/988 on general product safety")
	b := detect.Fingerprint("Regulation (EU) 2023/988 on general product safety")
	c := detect.Fingerprint("Regulation (EU) 2023/988 on general product safety.")

	assert.Equal(t, a, b)
	assert.NotEqual(t, a, c)

	_, err := entity.ParseFingerprint(a.String())
	assert.NoError(t, err)
}
