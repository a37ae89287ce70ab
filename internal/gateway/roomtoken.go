package gateway

import (
	"encoding/json"
	"fmt"
	"net/http"
	"regexp"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// roomNameSanitizer matches the spec's room-name charset; anything else is
// dropped when deriving a room name from tenant/session identifiers.
var roomNameSanitizer = regexp.MustCompile(`[^A-Za-z0-9_-]`)

const (
	maxRoomTokenTTL     = 24 * time.Hour
	defaultRoomTokenTTL = time.Hour
	maxRoomNameLength   = 64
)

// RoomGrants names the capabilities a media-room token carries, modeled on
// LiveKit's VideoGrants (publish, subscribe, publish data). There is no
// separate room-join grant; the room is named by the token's claims.
type RoomGrants struct {
	CanPublish     bool `json:"can_publish"`
	CanSubscribe   bool `json:"can_subscribe"`
	CanPublishData bool `json:"can_publish_data"`
}

type roomTokenClaims struct {
	jwt.RegisteredClaims
	Room     string     `json:"room"`
	Identity string     `json:"identity"`
	Grants   RoomGrants `json:"grants"`
}

// RoomTokenIssuer mints short-lived JWTs granting access to a media room,
// signed with a tenant-scoped API key/secret pair resolved through
// TenantCredentials.
type RoomTokenIssuer struct {
	credentials *TenantCredentials
}

func NewRoomTokenIssuer(credentials *TenantCredentials) *RoomTokenIssuer {
	return &RoomTokenIssuer{credentials: credentials}
}

// RoomName derives the sanitized room name t-{tenant}-s-{session}, truncated
// to the maximum allowed room-name length.
func RoomName(tenantID, sessionID string) string {
	raw := fmt.Sprintf("t-%s-s-%s", tenantID, sessionID)
	clean := roomNameSanitizer.ReplaceAllString(raw, "")
	if clean == "" {
		clean = "room"
	}
	if len(clean) > maxRoomNameLength {
		clean = clean[:maxRoomNameLength]
	}
	return clean
}

// Issue mints a signed room-access token for identity joining the room
// derived from tenantID/sessionID. ttl is capped at 24h per the spec; a
// non-positive ttl falls back to a 1-hour default.
func (i *RoomTokenIssuer) Issue(tenantID, sessionID, identity string, ttl time.Duration, grants RoomGrants) (string, error) {
	_, secret, ok := i.credentials.Resolve(tenantID, "room", "")
	if !ok || secret == "" {
		return "", fmt.Errorf("no room signing secret configured for tenant %q", tenantID)
	}

	if ttl <= 0 {
		ttl = defaultRoomTokenTTL
	}
	if ttl > maxRoomTokenTTL {
		ttl = maxRoomTokenTTL
	}

	now := time.Now().UTC()
	claims := roomTokenClaims{
		RegisteredClaims: jwt.RegisteredClaims{
			IssuedAt:  jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(ttl)),
		},
		Room:     RoomName(tenantID, sessionID),
		Identity: identity,
		Grants:   grants,
	}

	token := jwt.NewWithClaims(jwt.SigningMethodHS256, claims)
	return token.SignedString([]byte(secret))
}

type roomTokenRequest struct {
	TenantID  string `json:"tenant_id"`
	SessionID string `json:"session_id"`
	Identity  string `json:"identity"`
	TTLSecs   int    `json:"ttl_seconds,omitempty"`
}

type roomTokenResponse struct {
	Token string `json:"token"`
	Room  string `json:"room"`
}

// HandleIssueToken is the POST /v1/rooms/token HTTP handler.
func (i *RoomTokenIssuer) HandleIssueToken(w http.ResponseWriter, r *http.Request) {
	var req roomTokenRequest
	if err := json.NewDecoder(r.Body).Decode(&req); err != nil {
		http.Error(w, "invalid request body", http.StatusBadRequest)
		return
	}
	if strings.TrimSpace(req.TenantID) == "" || strings.TrimSpace(req.SessionID) == "" || strings.TrimSpace(req.Identity) == "" {
		http.Error(w, "tenant_id, session_id and identity are required", http.StatusBadRequest)
		return
	}

	ttl := time.Duration(req.TTLSecs) * time.Second
	grants := RoomGrants{CanPublish: true, CanSubscribe: true, CanPublishData: true}

	token, err := i.Issue(req.TenantID, req.SessionID, req.Identity, ttl, grants)
	if err != nil {
		http.Error(w, err.Error(), http.StatusForbidden)
		return
	}

	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(roomTokenResponse{
		Token: token,
		Room:  RoomName(req.TenantID, req.SessionID),
	})
}
