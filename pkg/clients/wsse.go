package clients

import (
	"crypto/sha1" //nolint:gosec // WSSE PasswordDigest is defined over SHA-1
	"encoding/base64"
	"encoding/hex"
	"fmt"
	"strings"
	"time"

	"github.com/google/uuid"
)

// wsseHeader builds the X-WSSE UsernameToken value for one request.
func wsseHeader(username, secret, nonce string, created time.Time) string {
	stamp := created.UTC().Format(time.RFC3339)
	return fmt.Sprintf(`UsernameToken Username="%s", PasswordDigest="%s", Nonce="%s", Created="%s"`,
		username, passwordDigest(nonce, stamp, secret), nonce, stamp)
}

// passwordDigest is base64(hex(sha1(nonce + created + secret))).
func passwordDigest(nonce, created, secret string) string {
	sum := sha1.Sum([]byte(nonce + created + secret)) //nolint:gosec
	return base64.StdEncoding.EncodeToString([]byte(hex.EncodeToString(sum[:])))
}

// newNonce returns a random 32 character hex nonce.
func newNonce() string {
	return strings.ReplaceAll(uuid.NewString(), "-", "")
}
