// Package matricule generates the externally visible registration numbers.
package matricule

import (
	"fmt"
	"math/rand"
	"time"
)

// Prefix identifies the institution on every matricule and QR payload.
const Prefix = "ISTM"

// New builds a matricule of the form ISTM<year><4-digit tail>. The tail
// mixes the last two digits of the millisecond clock with a two-digit
// random suffix. Two matricules generated in the same tick can collide;
// uniqueness is best-effort here and enforced nowhere else.
func New(now time.Time) string {
	tick := now.UnixMilli() % 100
	return fmt.Sprintf("%s%d%02d%02d", Prefix, now.Year(), tick, rand.Intn(100))
}

// QRPayload is the string encoded into the registration PDF's QR code.
func QRPayload(m string, date time.Time) string {
	return fmt.Sprintf("%s-%s-%s", Prefix, m, date.Format("2006-01-02"))
}
