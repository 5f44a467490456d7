package utils

import (
	"testing"

	"github.com/stretchr/testify/assert"
)

func TestCodeChallengeS256(t *testing.T) {
	// known vector from RFC 7636 appendix B
	verifier := "dBjftJeZ4CVP-mB92K27uhbUJU1p1r_wW1gFWFOEjXk"
	assert.Equal(t, "E9Melhoa2OwvFrEMTJguCHaoeK1t8URWbuGJSstw-cM", CodeChallengeS256(verifier))
}
