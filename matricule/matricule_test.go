package matricule

import (
	"regexp"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
)

var reMatricule = regexp.MustCompile(`^ISTM\d{4}\d{4}$`)

func TestNew_Format(t *testing.T) {
	now := time.Date(2026, 2, 11, 9, 30, 0, 0, time.UTC)

	for i := 0; i < 100; i++ {
		m := New(now)
		assert.Regexp(t, reMatricule, m)
		assert.Equal(t, "ISTM2026", m[:8])
	}
}

// Two matricules generated in the same tick can collide; that weakness is
// documented, not fixed, so no distinctness is asserted here.

func TestQRPayload(t *testing.T) {
	date := time.Date(2026, 2, 11, 0, 0, 0, 0, time.UTC)
	assert.Equal(t, "ISTM-ISTM20261234-2026-02-11", QRPayload("ISTM20261234", date))
}
