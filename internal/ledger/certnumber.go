package ledger

import (
	"encoding/hex"
	"strconv"
	"strings"
	"time"

	"github.com/google/uuid"
)

// NewCertificateNumber generates a globally unique certificate number of the
// form CPE-<year>-<8 hex chars>. The hex suffix comes from a v4 UUID, so
// numbers are unguessable; the unique index on certificate_number backstops
// the negligible collision chance.
func NewCertificateNumber(issueDate time.Time) string {
	id := uuid.New()
	suffix := strings.ToUpper(hex.EncodeToString(id[:4]))
	return "CPE-" + strconv.Itoa(issueDate.UTC().Year()) + "-" + suffix
}
