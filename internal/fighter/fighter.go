package fighter

import (
	"strings"
	"time"
)

// Style is the fighting discipline a profile advertises.
type Style string

const (
	StyleMMA         Style = "MMA"
	StyleBoxing      Style = "Boxing"
	StyleMuayThai    Style = "Muay Thai"
	StyleStreetBrawl Style = "Street Brawl"
	StyleBJJ         Style = "BJJ"
	StyleWrestling   Style = "Wrestling"
)

func (s Style) IsValid() bool {
	switch s {
	case StyleMMA, StyleBoxing, StyleMuayThai, StyleStreetBrawl, StyleBJJ, StyleWrestling:
		return true
	default:
		return false
	}
}

// Stats is the public fight record of a profile.
type Stats struct {
	Wins      int `json:"wins"`
	Losses    int `json:"losses"`
	Brutality int `json:"brutalityScore"`
}

// Profile describes a combatant. Profiles are treated as values and never mutated
// once handed out by the roster.
type Profile struct {
	ID              string `json:"id"`
	Name            string `json:"name"`
	Age             int    `json:"age"`
	WeightClass     string `json:"weightClass"`
	Style           Style  `json:"style"`
	ExperienceYears int    `json:"experienceYears"`
	Bio             string `json:"bio"`
	Verified        bool   `json:"verified"`
	ImageURL        string `json:"imageUrl"`
	Stats           Stats  `json:"stats"`
}

// Nickname returns the quoted part of the name ("THE HAMMER" for VIKRAM "THE HAMMER" SINGH),
// or the full name when there is none.
func (p Profile) Nickname() string {
	parts := strings.Split(p.Name, `"`)
	if len(parts) > 1 && strings.TrimSpace(parts[1]) != "" {
		return parts[1]
	}
	return p.Name
}

type MatchStatus string

const (
	MatchPending   MatchStatus = "pending"
	MatchAccepted  MatchStatus = "accepted"
	MatchScheduled MatchStatus = "scheduled"
	MatchCompleted MatchStatus = "completed"
)

// Match pairs the challenger (the current user) with an opponent.
type Match struct {
	ID          string      `json:"id"`
	FighterA    Profile     `json:"fighterA"`
	FighterB    Profile     `json:"fighterB"`
	Status      MatchStatus `json:"status"`
	ScheduledAt *time.Time  `json:"scheduledTime,omitempty"`
	Location    string      `json:"location,omitempty"`
}

type Role string

const (
	RoleUser  Role = "user"
	RoleModel Role = "model"
)

type Part struct {
	Text string `json:"text"`
}

// ChatMessage is one transcript entry.
type ChatMessage struct {
	Role  Role   `json:"role"`
	Parts []Part `json:"parts"`
}

func NewMessage(role Role, text string) ChatMessage {
	return ChatMessage{Role: role, Parts: []Part{{Text: text}}}
}

// Text joins all parts of the message.
func (m ChatMessage) Text() string {
	texts := make([]string, 0, len(m.Parts))
	for _, part := range m.Parts {
		texts = append(texts, part.Text)
	}
	return strings.Join(texts, "\n")
}
