package visitors

import (
	"crypto/sha256"
	"encoding/hex"
	"fmt"
	"strings"
	"time"
)

// RequestSignature fingerprints one tracking attempt. Two calls within the
// same request scope with the same signature are the same event.
func RequestSignature(entityType, entityID, action, fullURL, sessionID, actorKey string) string {
	data := strings.Join([]string{entityType, entityID, action, fullURL, sessionID, actorKey}, "|")
	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:])
}

// BuildVisitorToken derives an anonymous visitor token. A session id gives a
// token that is stable for the whole session. Without one the token is a
// daily rotating hash of the client fingerprint; the IP address is never
// stored, only hashed.
func BuildVisitorToken(sessionID, ipAddress, userAgent, salt string) string {
	var data string
	if sessionID != "" {
		data = fmt.Sprintf("%s.session.%s", salt, sessionID)
	} else {
		today := time.Now().UTC().Format("2006-01-02")
		data = fmt.Sprintf("%s-%s.%s.%s", today, salt, ipAddress, userAgent)
	}

	hash := sha256.Sum256([]byte(data))
	return hex.EncodeToString(hash[:16])
}
