package model

// Platform identifies a supported link target. Unknown keys coming back
// from the data service map to PlatformOther and keep their raw key for
// display.
type Platform string

const (
	PlatformGitHub   Platform = "github"
	PlatformYouTube  Platform = "youtube"
	PlatformLinkedIn Platform = "linkedin"
	PlatformFacebook Platform = "facebook"
	PlatformTwitch   Platform = "twitch"
	PlatformOther    Platform = "other"
)

// PlatformDef describes one entry of the platform registry.
type PlatformDef struct {
	Key   Platform
	Name  string
	Color string
}

// platformDefs is ordered; the first entry is the default platform for a
// newly added link.
var platformDefs = []PlatformDef{
	{Key: PlatformGitHub, Name: "GitHub", Color: "#1A1A1A"},
	{Key: PlatformYouTube, Name: "YouTube", Color: "#EE1D52"},
	{Key: PlatformLinkedIn, Name: "LinkedIn", Color: "#2D68FF"},
	{Key: PlatformFacebook, Name: "Facebook", Color: "#1877F2"},
	{Key: PlatformTwitch, Name: "Twitch", Color: "#9146FF"},
}

// Platforms returns the registry in display order.
func Platforms() []PlatformDef {
	out := make([]PlatformDef, len(platformDefs))
	copy(out, platformDefs)
	return out
}

// DefaultPlatform is the platform assigned to a freshly added link.
func DefaultPlatform() Platform {
	return platformDefs[0].Key
}

// LookupPlatform resolves a raw key from user input or the data service.
// Unknown non-empty keys resolve to a PlatformOther def carrying the raw
// key as its display name, so rendering code never needs a fallback branch.
func LookupPlatform(key string) (PlatformDef, bool) {
	for _, d := range platformDefs {
		if string(d.Key) == key {
			return d, true
		}
	}
	if key == "" {
		return PlatformDef{}, false
	}
	return PlatformDef{Key: PlatformOther, Name: key, Color: "#737373"}, false
}

// Link is one entry of a user's link collection. ID is client-generated
// (uuid) until the record is confirmed remotely, after which it is the
// data service's primary key. Position is the public display order.
type Link struct {
	ID       string `json:"id"`
	Platform string `json:"platform"`
	URL      string `json:"url"`
	Position int    `json:"position"`

	// IsNew marks a record that has never been persisted remotely. It is
	// cleared only after a confirmed remote create.
	IsNew bool `json:"-"`
}

// PlatformDef resolves the link's platform against the registry.
func (l Link) PlatformDef() PlatformDef {
	d, _ := LookupPlatform(l.Platform)
	return d
}

// Profile is the single per-user profile record. JSON tags follow the
// data service's column names.
type Profile struct {
	UserID    string `json:"user_id"`
	FirstName string `json:"first_name"`
	LastName  string `json:"last_name"`
	Email     string `json:"email"`
	ImageURL  string `json:"image"`
}

// DisplayName is the public-page heading; falls back to the email when
// both name fields are empty.
func (p Profile) DisplayName() string {
	switch {
	case p.FirstName != "" && p.LastName != "":
		return p.FirstName + " " + p.LastName
	case p.FirstName != "":
		return p.FirstName
	case p.LastName != "":
		return p.LastName
	default:
		return p.Email
	}
}
