package fulfillment

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"strconv"
	"strings"
	"time"
)

// ErrInvalidSignature: the notification cannot be authenticated. Checked
// before any other work — including logging of payload contents.
var ErrInvalidSignature = errors.New("invalid webhook signature")

// SignatureTolerance bounds how stale a signed timestamp may be. Replays
// older than this are rejected even with a valid MAC.
const SignatureTolerance = 5 * time.Minute

// SignatureHeaderName is the HTTP header carrying the processor's signature.
const SignatureHeaderName = "Paygate-Signature"

// Verifier checks the processor's signature header:
//
//	Paygate-Signature: t=<unix>,v1=<hex hmac-sha256(secret, "<t>.<body>")>
type Verifier struct {
	secret []byte
	now    func() time.Time
}

func NewVerifier(secret string) *Verifier {
	return &Verifier{
		secret: []byte(secret),
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// SetClock overrides the wall clock. Test hook.
func (v *Verifier) SetClock(now func() time.Time) { v.now = now }

// Verify authenticates body against the signature header. Comparison is
// constant-time.
func (v *Verifier) Verify(header string, body []byte) error {
	if len(v.secret) == 0 {
		return ErrInvalidSignature
	}

	var tsPart, sigPart string
	for _, p := range strings.Split(header, ",") {
		p = strings.TrimSpace(p)
		switch {
		case strings.HasPrefix(p, "t="):
			tsPart = strings.TrimPrefix(p, "t=")
		case strings.HasPrefix(p, "v1="):
			sigPart = strings.TrimPrefix(p, "v1=")
		}
	}
	if tsPart == "" || sigPart == "" {
		return ErrInvalidSignature
	}

	ts, err := strconv.ParseInt(tsPart, 10, 64)
	if err != nil {
		return ErrInvalidSignature
	}
	age := v.now().Sub(time.Unix(ts, 0))
	if age > SignatureTolerance || age < -SignatureTolerance {
		return ErrInvalidSignature
	}

	want := Sign(v.secret, ts, body)
	got, err := hex.DecodeString(sigPart)
	if err != nil {
		return ErrInvalidSignature
	}
	if !hmac.Equal(want, got) {
		return ErrInvalidSignature
	}
	return nil
}

// Sign computes the MAC for a timestamp + body pair. Exported for tests and
// for the CLI's webhook replay helper.
func Sign(secret []byte, ts int64, body []byte) []byte {
	mac := hmac.New(sha256.New, secret)
	fmt.Fprintf(mac, "%d.", ts)
	mac.Write(body)
	return mac.Sum(nil)
}

// SignatureHeader renders a complete header value for a body signed now.
func SignatureHeader(secret string, ts int64, body []byte) string {
	return fmt.Sprintf("t=%d,v1=%s", ts, hex.EncodeToString(Sign([]byte(secret), ts, body)))
}
