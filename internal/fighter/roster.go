package fighter

import "fmt"

var mockUser = Profile{
	ID:              "me",
	Name:            `DRAKE "THE PITBULL" VARMA`,
	Age:             28,
	WeightClass:     "Middleweight",
	Style:           StyleMMA,
	ExperienceYears: 6,
	Bio:             "Ready to bleed. No rules, just respect.",
	Verified:        true,
	ImageURL:        "https://images.unsplash.com/photo-1552072805-2a9039d00e57?q=80&w=800&auto=format&fit=crop",
	Stats:           Stats{Wins: 14, Losses: 2, Brutality: 88},
}

var opponents = []Profile{
	{
		ID:              "1",
		Name:            `VIKRAM "THE HAMMER" SINGH`,
		Age:             32,
		WeightClass:     "Heavyweight",
		Style:           StyleBoxing,
		ExperienceYears: 10,
		Bio:             "Heavy hands, steel chin. Come find out.",
		Verified:        true,
		ImageURL:        "https://images.unsplash.com/photo-1544117518-2b462fca8a49?q=80&w=800&auto=format&fit=crop",
		Stats:           Stats{Wins: 22, Losses: 4, Brutality: 92},
	},
	{
		ID:              "2",
		Name:            `RAHUL "GHOST" KHAN`,
		Age:             24,
		WeightClass:     "Welterweight",
		Style:           StyleMuayThai,
		ExperienceYears: 4,
		Bio:             "Elbows like razors. Speed kills.",
		Verified:        true,
		ImageURL:        "https://images.unsplash.com/photo-1599058917233-358334466e77?q=80&w=800&auto=format&fit=crop",
		Stats:           Stats{Wins: 9, Losses: 1, Brutality: 75},
	},
	{
		ID:              "3",
		Name:            `AJAY "STORM" REDDY`,
		Age:             29,
		WeightClass:     "Middleweight",
		Style:           StyleStreetBrawl,
		ExperienceYears: 15,
		Bio:             "I survived the streets, you won't survive me.",
		Verified:        false,
		ImageURL:        "https://images.unsplash.com/photo-1517438476312-10d79c67750d?q=80&w=800&auto=format&fit=crop",
		Stats:           Stats{Wins: 45, Losses: 0, Brutality: 98},
	},
	{
		ID:              "4",
		Name:            `SAM "THE BLADE" JOSHI`,
		Age:             27,
		WeightClass:     "Lightweight",
		Style:           StyleMMA,
		ExperienceYears: 5,
		Bio:             "Technical savagery.",
		Verified:        true,
		ImageURL:        "https://images.unsplash.com/photo-1509563268479-0f004cf3f58b?q=80&w=800&auto=format&fit=crop",
		Stats:           Stats{Wins: 12, Losses: 3, Brutality: 82},
	},
}

// Roster is the fixed rotation of opponents shown on the swiping screen.
type Roster struct {
	user      Profile
	opponents []Profile
}

// DefaultRoster returns the built-in mock roster.
func DefaultRoster() *Roster {
	r, _ := NewRoster(mockUser, opponents)
	return r
}

// NewRoster copies the given profiles so later changes by the caller do not leak in.
func NewRoster(user Profile, opps []Profile) (*Roster, error) {
	if len(opps) == 0 {
		return nil, fmt.Errorf("roster needs at least one opponent")
	}
	for _, p := range append([]Profile{user}, opps...) {
		if !p.Style.IsValid() {
			return nil, fmt.Errorf("profile %q: unknown fighting style %q", p.ID, p.Style)
		}
	}

	cp := make([]Profile, len(opps))
	copy(cp, opps)
	return &Roster{user: user, opponents: cp}, nil
}

func (r *Roster) User() Profile { return r.user }

func (r *Roster) Len() int { return len(r.opponents) }

// Opponent returns the opponent at the cyclic index i.
func (r *Roster) Opponent(i int) Profile {
	n := len(r.opponents)
	return r.opponents[((i%n)+n)%n]
}

// Next returns the index following i, wrapping at the roster length.
func (r *Roster) Next(i int) int {
	return (i + 1) % len(r.opponents)
}
