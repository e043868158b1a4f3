// Package trackinglink issues the capability tokens carried by client
// tracking URLs. A token is bound to one (kind, id) pair, is deterministic and
// never expires; any route accepting one must resolve the job id itself and
// check the token against that id.
package trackinglink

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"net/url"
	"strings"

	"github.com/BearBump/CrewTrack/internal/auth/codec"
	"github.com/BearBump/CrewTrack/internal/models"
)

var tokenLen = hex.EncodedLen(sha256.Size)

type Issuer struct {
	codec   *codec.Codec
	baseURL string
}

func New(c *codec.Codec, baseURL string) *Issuer {
	return &Issuer{codec: c, baseURL: strings.TrimRight(baseURL, "/")}
}

func (i *Issuer) Sign(ref models.JobRef) string {
	return hex.EncodeToString(i.codec.Sign(message(ref)))
}

func (i *Issuer) Verify(ref models.JobRef, token string) bool {
	// длина токена публична: отсекаем до хеширования
	if len(token) != tokenLen {
		return false
	}
	return hmac.Equal([]byte(i.Sign(ref)), []byte(token))
}

// URL builds /track/{kind}/{jobCode}?token=... for the given job.
func (i *Issuer) URL(ref models.JobRef, jobCode string) string {
	q := url.Values{}
	q.Set("token", i.Sign(ref))
	return fmt.Sprintf("%s/track/%s/%s?%s", i.baseURL, ref.Kind, url.PathEscape(jobCode), q.Encode())
}

func message(ref models.JobRef) []byte {
	return []byte(string(ref.Kind) + ":" + ref.ID)
}
