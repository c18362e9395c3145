package media

import (
	"crypto/hmac"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strconv"
	"time"

	"github.com/cieplik206/dokumenty/internal/apperr"
)

// Query parameters carried by signed media endpoint links.
const (
	ParamConversion = "conversion"
	ParamExpires    = "expires"
	ParamSignature  = "signature"
)

// urlSigner issues HMAC signatures that bind a media id and conversion to an
// expiry, so endpoint links cannot be guessed or replayed forever.
type urlSigner struct {
	key []byte
}

func newURLSigner(key []byte) urlSigner {
	if len(key) == 0 {
		key = make([]byte, 32)
		if _, err := rand.Read(key); err != nil {
			panic(fmt.Sprintf("media: failed to generate signing key: %v", err))
		}
	}
	return urlSigner{key: key}
}

func (s urlSigner) sign(id int64, conversion string, expires int64) string {
	mac := hmac.New(sha256.New, s.key)
	fmt.Fprintf(mac, "%d:%s:%d", id, conversion, expires)
	return hex.EncodeToString(mac.Sum(nil))
}

func (s urlSigner) query(id int64, conversion string, expires time.Time) string {
	q := url.Values{}
	if conversion != "" {
		q.Set(ParamConversion, conversion)
	}
	exp := expires.Unix()
	q.Set(ParamExpires, strconv.FormatInt(exp, 10))
	q.Set(ParamSignature, s.sign(id, conversion, exp))
	return q.Encode()
}

// Verify checks a signed endpoint link. Bad and expired links report not
// found, so the endpoint does not reveal which ids exist.
func (l *Library) Verify(id int64, conversion, expires, signature string) error {
	exp, err := strconv.ParseInt(expires, 10, 64)
	if err != nil || signature == "" {
		return fmt.Errorf("media %d: unsigned link: %w", id, apperr.ErrNotFound)
	}
	expected := l.signer.sign(id, conversion, exp)
	if !hmac.Equal([]byte(expected), []byte(signature)) {
		return fmt.Errorf("media %d: bad signature: %w", id, apperr.ErrNotFound)
	}
	if l.now().Unix() > exp {
		return fmt.Errorf("media %d: link expired: %w", id, apperr.ErrNotFound)
	}
	return nil
}
