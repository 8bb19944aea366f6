// Package auth implements the optional sign-on-send / verify-on-receive
// hook around the raw, canonically-encoded envelope body.
package auth

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/base64"

	"github.com/goferhq/gofer/internal/envelope"
	"github.com/goferhq/gofer/internal/logging"
)

// Authenticator signs outbound envelope bodies and verifies inbound ones.
// An absent Authenticator accepts every inbound envelope unconditionally.
type Authenticator interface {
	Sign(senderID string, body []byte) (signature string, err error)
	Verify(senderID string, bodyWithoutSignature []byte, signature string) bool
}

// HMAC is the default Authenticator: HMAC-SHA256 over the canonical body,
// keyed per sender ID.
type HMAC struct {
	KeyFor func(senderID string) []byte
}

func (h *HMAC) Sign(senderID string, body []byte) (string, error) {
	key := h.KeyFor(senderID)
	mac := hmac.New(sha256.New, key)
	mac.Write(body)
	return base64.StdEncoding.EncodeToString(mac.Sum(nil)), nil
}

func (h *HMAC) Verify(senderID string, body []byte, signature string) bool {
	expected, err := h.Sign(senderID, body)
	if err != nil {
		return false
	}
	return hmac.Equal([]byte(expected), []byte(signature))
}

// Sign attaches a signature to env under the reserved signature key. If
// signing fails the original body is sent unchanged; the failure is
// logged at debug level and is never fatal on outbound.
func Sign(a Authenticator, senderID string, env *envelope.Envelope, log *logging.Logger) {
	if a == nil {
		return
	}
	body, err := env.Encode()
	if err != nil {
		log.Debug("sign: failed to encode envelope for sn=%s: %v", env.SN(), err)
		return
	}
	sig, err := a.Sign(senderID, body)
	if err != nil {
		log.Debug("sign: authenticator failed for sn=%s: %v", env.SN(), err)
		return
	}
	env.Set(envelope.KeySignature, sig)
}

// Verify strips the signature key, re-serialises canonically, and passes
// the original pre-signature bytes and the signature to the authenticator.
// An absent Authenticator always verifies true.
func Verify(a Authenticator, senderID string, env *envelope.Envelope) bool {
	if a == nil {
		return true
	}
	sig, ok := env.Get(envelope.KeySignature)
	if !ok {
		return false
	}
	sigStr, _ := sig.(string)

	stripped := env.Clone()
	stripped.Delete(envelope.KeySignature)
	body, err := stripped.Encode()
	if err != nil {
		return false
	}
	return a.Verify(senderID, body, sigStr)
}
