package webapp

import (
	"crypto/hmac"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"net/url"
	"sort"
	"strconv"
	"strings"
	"time"
)

// InitDataMaxAge is how long a signed init_data payload stays acceptable.
const InitDataMaxAge = 24 * time.Hour

var (
	ErrMissingHash     = errors.New("init data has no hash")
	ErrMissingAuthDate = errors.New("init data has no auth_date")
	ErrExpired         = errors.New("init data auth_date expired")
	ErrBadSignature    = errors.New("init data signature mismatch")
	ErrMissingUser     = errors.New("init data has no user payload")
)

// User is the subset of the Telegram WebApp user object we care about.
type User struct {
	ID       int64  `json:"id"`
	Username string `json:"username"`
}

// ValidateInitData checks a raw Telegram WebApp init_data query string
// against the bot token, per the algorithm from the Telegram docs:
// the data-check string is every key=value pair except hash, sorted and
// joined with newlines, signed with HMAC-SHA256 under a secret derived
// from the bot token keyed by the constant "WebAppData".
func ValidateInitData(initData, botToken string, now time.Time) (*User, error) {
	if initData == "" || botToken == "" {
		return nil, errors.New("init data or bot token is empty")
	}

	params, err := url.ParseQuery(initData)
	if err != nil {
		return nil, err
	}

	hash := params.Get("hash")
	if hash == "" {
		return nil, ErrMissingHash
	}
	authDate := params.Get("auth_date")
	if authDate == "" {
		return nil, ErrMissingAuthDate
	}
	authTS, err := strconv.ParseInt(authDate, 10, 64)
	if err != nil || now.Sub(time.Unix(authTS, 0)) > InitDataMaxAge {
		return nil, ErrExpired
	}

	pairs := make([]string, 0, len(params))
	for key, values := range params {
		if key == "hash" || len(values) == 0 {
			continue
		}
		pairs = append(pairs, key+"="+values[0])
	}
	sort.Strings(pairs)
	dataCheckString := strings.Join(pairs, "\n")

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	secretKey := secret.Sum(nil)

	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(dataCheckString))
	expected := mac.Sum(nil)

	actual, err := hex.DecodeString(hash)
	if err != nil {
		return nil, ErrBadSignature
	}
	// Constant-time compare, same as any other signature check.
	if !hmac.Equal(expected, actual) {
		return nil, ErrBadSignature
	}

	userStr := params.Get("user")
	if userStr == "" {
		return nil, ErrMissingUser
	}
	var user User
	if err := json.Unmarshal([]byte(userStr), &user); err != nil {
		return nil, ErrMissingUser
	}
	if user.ID == 0 {
		return nil, ErrMissingUser
	}
	return &user, nil
}

// Sign produces a valid hash for the given params and bot token.
// It exists for tests and local tooling; the server only ever validates.
func Sign(params url.Values, botToken string) string {
	pairs := make([]string, 0, len(params))
	for key, values := range params {
		if key == "hash" || len(values) == 0 {
			continue
		}
		pairs = append(pairs, key+"="+values[0])
	}
	sort.Strings(pairs)

	secret := hmac.New(sha256.New, []byte("WebAppData"))
	secret.Write([]byte(botToken))
	secretKey := secret.Sum(nil)

	mac := hmac.New(sha256.New, secretKey)
	mac.Write([]byte(strings.Join(pairs, "\n")))
	return hex.EncodeToString(mac.Sum(nil))
}
