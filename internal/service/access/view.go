package access

import (
	"strings"
	"time"
	"unicode"

	"github.com/oggyb/muzz-engagement/internal/db"
	"github.com/oggyb/muzz-engagement/internal/server"
)

const ellipsis = "…"

// Access is the /profile-access payload.
type Access struct {
	Profile         *FullProfile    `json:"profile"`
	LimitedProfile  *LimitedProfile `json:"limitedProfile"`
	CanViewFull     bool            `json:"canViewFull"`
	UnlockReason    Reason          `json:"unlockReason"`
	AccessExpiresAt *time.Time      `json:"accessExpiresAt"`
}

// NotFound is the payload for a target without a profile.
func NotFound() *Access {
	return &Access{UnlockReason: ReasonNone}
}

type FullProfile struct {
	UserID      server.ID      `json:"userId"`
	DisplayName string         `json:"displayName"`
	Bio         string         `json:"bio"`
	Photos      []string       `json:"photos"`
	Preferences map[string]any `json:"preferences"`
	City        string         `json:"city"`
	Age         int            `json:"age"`
	Verified    bool           `json:"verified"`
}

// LimitedProfile is the safe projection shown to every viewer.
type LimitedProfile struct {
	UserID      server.ID `json:"userId"`
	DisplayName string    `json:"displayName"`
	Bio         string    `json:"bio"`
	Photos      []string  `json:"photos"`
	City        string    `json:"city"`
	Age         int       `json:"age"`
	Verified    bool      `json:"verified"`
}

func fullView(p *db.Profile) *FullProfile {
	photos := []string(p.Photos)
	if photos == nil {
		photos = []string{}
	}
	prefs := map[string]any(p.Preferences)
	if prefs == nil {
		prefs = map[string]any{}
	}
	return &FullProfile{
		UserID:      server.ID(p.UserID),
		DisplayName: p.DisplayName,
		Bio:         p.Bio,
		Photos:      photos,
		Preferences: prefs,
		City:        p.City,
		Age:         p.Age,
		Verified:    p.Verified,
	}
}

func limitedView(p *db.Profile, bioLimit int) *LimitedProfile {
	photos := []string{}
	if len(p.Photos) > 0 {
		photos = append(photos, p.Photos[0])
	}
	return &LimitedProfile{
		UserID:      server.ID(p.UserID),
		DisplayName: p.DisplayName,
		Bio:         TruncateBio(p.Bio, bioLimit),
		Photos:      photos,
		City:        p.City,
		Age:         p.Age,
		Verified:    p.Verified,
	}
}

// TruncateBio cuts bio to limit runes, marking the cut with an ellipsis.
// A non-positive limit disables truncation.
func TruncateBio(bio string, limit int) string {
	if limit <= 0 {
		return bio
	}
	runes := []rune(bio)
	if len(runes) <= limit {
		return bio
	}
	return strings.TrimRightFunc(string(runes[:limit]), unicode.IsSpace) + ellipsis
}
