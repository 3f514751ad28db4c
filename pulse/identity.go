package pulse

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strconv"
	"strings"
	"time"

	"golang.org/x/text/cases"
	"golang.org/x/text/unicode/norm"
)

// IdentityVersion tags the normalization rules baked into every identity. The rules are frozen:
// changing any of them changes every key in the ledger and needs a new version and a migration.
//
// v1: NBSP to space, Unicode NFC, trim, collapse whitespace runs, Unicode case folding,
// dates as YYYY-MM-DD. Fields are length-prefixed before hashing.
const IdentityVersion = "v1"

// Identity is a 128-bit content hash rendered as 32 lowercase hex characters.
type Identity string

func (id Identity) String() string { return string(id) }

// NormalizeText applies the v1 text rules.
func NormalizeText(s string) string {
	s = strings.ReplaceAll(s, "\u00a0", " ")
	s = norm.NFC.String(s)
	s = strings.Join(strings.Fields(s), " ")
	// Casers carry state, so each call gets its own.
	return cases.Fold().String(s)
}

// NormalizeDate renders the calendar day of t as YYYY-MM-DD.
func NormalizeDate(t time.Time) string {
	return Day(t).Format("2006-01-02")
}

// MakeIdentity normalizes fields in order and hashes them.
func MakeIdentity(fields ...string) Identity {
	h := sha256.New()
	_, _ = h.Write([]byte(IdentityVersion))
	for _, f := range fields {
		n := NormalizeText(f)
		_, _ = fmt.Fprintf(h, "|%d:%s", len(n), n)
	}
	sum := h.Sum(nil)
	return Identity(hex.EncodeToString(sum[:16]))
}

// ReviewKey is the ledger key of a review. The same value is used in memory and as the persisted
// review_key column.
func ReviewKey(source, author string, date time.Time, text string) Identity {
	return MakeIdentity(source, author, NormalizeDate(date), text)
}

// SurveyKey identifies one questionnaire so overlapping exports do not count it twice.
func SurveyKey(date time.Time, booking, name, contact, comment string) Identity {
	return MakeIdentity(NormalizeDate(date), booking, name, contact, comment)
}

// AnonymousSurveyKey identifies a questionnaire with no booking, name or contact. The answers and
// the ordinal among identical rows of one export stand in for the respondent: equal rows inside an
// export stay distinct, while the same row repeated by an overlapping export matches.
func AnonymousSurveyKey(date time.Time, comment, answers string, ordinal int) Identity {
	return MakeIdentity("anonymous", NormalizeDate(date), comment, answers, strconv.Itoa(ordinal))
}
