package devserver

import (
	"fmt"
	"os"
	"time"

	"memberconsole/internal/model"

	"gopkg.in/yaml.v3"
)

// Seed is the initial content of a dev server store.
type Seed struct {
	Users    []SeedUser    `yaml:"users"`
	Requests []SeedRequest `yaml:"requests"`
}

type SeedUser struct {
	ID        string `yaml:"id"`
	Email     string `yaml:"email" validate:"omitempty,email"`
	Name      string `yaml:"name"`
	Role      string `yaml:"role" validate:"required,role"`
	ChapterID string `yaml:"chapterId"`
	Password  string `yaml:"password"`
	Inactive  bool   `yaml:"inactive"`

	// GoogleCredential is accepted by the static Google verifier for this user.
	GoogleCredential string `yaml:"googleCredential"`

	// MemberOf and MembershipStatus make the user a chapter member.
	MemberOf         string `yaml:"memberOf"`
	MembershipStatus string `yaml:"membershipStatus" validate:"omitempty,membership_status"`
}

type SeedRequest struct {
	ID        string        `yaml:"id"`
	UserID    string        `yaml:"userId"`
	ChapterID string        `yaml:"chapterId"`
	Status    string        `yaml:"status"`
	Age       time.Duration `yaml:"age"`
}

// DefaultPassword is the password of every user in DefaultSeed.
const DefaultPassword = "password123"

// DefaultSeed is a small two-chapter organization covering every role.
func DefaultSeed() Seed {
	return Seed{
		Users: []SeedUser{
			{ID: "u-super", Email: "super@example.org", Name: "Sam Super", Role: "SUPER_ADMIN", Password: DefaultPassword,
				GoogleCredential: "google-super", MemberOf: "ch-1", MembershipStatus: "APPROVED"},
			{ID: "u-admin1", Email: "admin1@example.org", Name: "Ada Admin", Role: "CHAPTER_ADMIN", ChapterID: "ch-1", Password: DefaultPassword,
				GoogleCredential: "google-admin1"},
			{ID: "u-admin2", Email: "admin2@example.org", Name: "Ben Admin", Role: "CHAPTER_ADMIN", ChapterID: "ch-2", Password: DefaultPassword},
			{ID: "u-hq", Email: "hq@example.org", Name: "Hana HQ", Role: "HQ_STAFF", Password: DefaultPassword},
			{ID: "u-staff1", Email: "staff1@example.org", Name: "Cal Staff", Role: "CHAPTER_STAFF", ChapterID: "ch-1", Password: DefaultPassword},
			{ID: "u-inactive", Email: "inactive@example.org", Name: "Ina Active", Role: "CHAPTER_ADMIN", ChapterID: "ch-1", Password: DefaultPassword, Inactive: true},
			{ID: "u-member", Email: "member@example.org", Name: "Mia Member", Role: "MEMBER", Password: DefaultPassword,
				MemberOf: "ch-1", MembershipStatus: "APPROVED"},
			{ID: "u-suspended", Email: "suspended@example.org", Name: "Sid Suspended", Role: "MEMBER",
				MemberOf: "ch-1", MembershipStatus: "SUSPENDED"},
			{ID: "u-app1", Email: "app1@example.org", Name: "Ari Applicant", Role: "MEMBER"},
			{ID: "u-app2", Email: "app2@example.org", Name: "Bea Applicant", Role: "MEMBER"},
			{ID: "u-app3", Email: "app3@example.org", Name: "Cy Applicant", Role: "MEMBER"},
		},
		Requests: []SeedRequest{
			{ID: "r-1", UserID: "u-app1", ChapterID: "ch-1", Status: "PENDING", Age: 96 * time.Hour},
			{ID: "r-2", UserID: "u-app2", ChapterID: "ch-1", Status: "PENDING", Age: 2 * time.Hour},
			{ID: "r-3", UserID: "u-app3", ChapterID: "ch-2", Status: "PENDING", Age: 100 * time.Hour},
			{ID: "r-4", UserID: "u-member", ChapterID: "ch-1", Status: "APPROVED", Age: 720 * time.Hour},
			{ID: "r-5", UserID: "u-suspended", ChapterID: "ch-1", Status: "SUSPENDED", Age: 900 * time.Hour},
			{ID: "r-6", UserID: "u-super", ChapterID: "ch-1", Status: "APPROVED", Age: 1000 * time.Hour},
		},
	}
}

// LoadSeed reads a YAML seed file.
func LoadSeed(path string) (Seed, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return Seed{}, fmt.Errorf("read seed %s: %w", path, err)
	}
	var seed Seed
	if err := yaml.Unmarshal(data, &seed); err != nil {
		return Seed{}, fmt.Errorf("parse seed %s: %w", path, err)
	}
	return seed, nil
}

// Chapters returns the distinct chapter ids referenced by the seed.
func (s Seed) Chapters() []string {
	seen := map[string]bool{}
	var out []string
	add := func(id string) {
		if id != "" && !seen[id] {
			seen[id] = true
			out = append(out, id)
		}
	}
	for _, u := range s.Users {
		add(u.ChapterID)
		add(u.MemberOf)
	}
	for _, r := range s.Requests {
		add(r.ChapterID)
	}
	return out
}

// Principals returns the seeded accounts with valid roles.
func (s Seed) Principals() []model.Principal {
	out := make([]model.Principal, 0, len(s.Users))
	for _, u := range s.Users {
		role := model.ParseRole(u.Role)
		if !role.Valid() {
			continue
		}
		out = append(out, model.Principal{
			ID:        u.ID,
			Email:     u.Email,
			Name:      u.Name,
			Role:      role,
			ChapterID: u.ChapterID,
			Active:    !u.Inactive,
		})
	}
	return out
}
