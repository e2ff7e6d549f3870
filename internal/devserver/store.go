package devserver

import (
	"errors"
	"fmt"
	"slices"
	"strings"
	"sync"
	"time"

	"memberconsole/internal/membership"
	"memberconsole/internal/model"
	"memberconsole/internal/validator"

	"github.com/google/uuid"
	"golang.org/x/crypto/bcrypt"
)

var (
	ErrNotFound           = errors.New("not found")
	ErrConflict           = errors.New("conflict")
	ErrReapplyBlocked     = errors.New("re-application is not allowed")
	ErrInvalidCredentials = errors.New("invalid email or password")
)

type account struct {
	model.Principal
	passwordHash []byte
}

type blockKey struct {
	chapterID string
	userID    string
}

// Store is the in-memory state of the dev server: accounts, requests,
// members and issued tokens. Safe for concurrent use.
type Store struct {
	mu  sync.RWMutex
	now func() time.Time

	accessTTL  time.Duration
	refreshTTL time.Duration

	users    map[string]*account
	emails   map[string]string
	google   map[string]string
	members  map[string]*model.Member
	requests map[string]*model.MembershipRequest
	blocked  map[blockKey]struct{}
	chapters []string

	access  map[string]*accessToken
	refresh map[string]*refreshToken
}

type StoreOption func(*storeOptions)

type storeOptions struct {
	now        func() time.Time
	cost       int
	accessTTL  time.Duration
	refreshTTL time.Duration
}

func WithClock(now func() time.Time) StoreOption {
	return func(o *storeOptions) { o.now = now }
}

// WithHashCost sets the bcrypt cost used for seeded passwords.
func WithHashCost(cost int) StoreOption {
	return func(o *storeOptions) { o.cost = cost }
}

func WithTokenTTL(access, refresh time.Duration) StoreOption {
	return func(o *storeOptions) {
		o.accessTTL = access
		o.refreshTTL = refresh
	}
}

func NewStore(seed Seed, opts ...StoreOption) (*Store, error) {
	o := storeOptions{
		now:        time.Now,
		cost:       bcrypt.DefaultCost,
		accessTTL:  15 * time.Minute,
		refreshTTL: 7 * 24 * time.Hour,
	}
	for _, opt := range opts {
		opt(&o)
	}

	s := &Store{
		now:        o.now,
		accessTTL:  o.accessTTL,
		refreshTTL: o.refreshTTL,
		users:      map[string]*account{},
		emails:     map[string]string{},
		google:     map[string]string{},
		members:    map[string]*model.Member{},
		requests:   map[string]*model.MembershipRequest{},
		blocked:    map[blockKey]struct{}{},
		chapters:   seed.Chapters(),
		access:     map[string]*accessToken{},
		refresh:    map[string]*refreshToken{},
	}

	v := validator.New()
	for _, su := range seed.Users {
		if err := v.Validate(su); err != nil {
			return nil, fmt.Errorf("seed user %s: invalid %s", su.ID, strings.Join(validator.Fields(err), ", "))
		}
		if err := s.addUser(su, o.cost); err != nil {
			return nil, err
		}
	}
	for _, sr := range seed.Requests {
		if err := s.addRequest(sr); err != nil {
			return nil, err
		}
	}
	return s, nil
}

func (s *Store) addUser(su SeedUser, cost int) error {
	role := model.ParseRole(su.Role)
	id := su.ID
	if id == "" {
		id = uuid.NewString()
	}
	acc := &account{Principal: model.Principal{
		ID:        id,
		Email:     strings.ToLower(su.Email),
		Name:      su.Name,
		Role:      role,
		ChapterID: su.ChapterID,
		Active:    !su.Inactive,
	}}
	if err := acc.Validate(); err != nil {
		return fmt.Errorf("seed user %s: %w", id, err)
	}
	if su.Password != "" {
		hash, err := bcrypt.GenerateFromPassword([]byte(su.Password), cost)
		if err != nil {
			return fmt.Errorf("hash password of %s: %w", id, err)
		}
		acc.passwordHash = hash
	}

	s.users[id] = acc
	if acc.Email != "" {
		s.emails[acc.Email] = id
	}
	if su.GoogleCredential != "" {
		s.google[su.GoogleCredential] = id
	}
	if su.MemberOf != "" {
		status, ok := model.ParseRequestStatus(su.MembershipStatus)
		if !ok {
			status = model.RequestStatusApproved
		}
		s.members[id] = &model.Member{
			UserID:    id,
			Email:     acc.Email,
			Name:      acc.Name,
			Role:      role,
			ChapterID: su.MemberOf,
			Status:    status,
		}
	}
	return nil
}

func (s *Store) addRequest(sr SeedRequest) error {
	acc, ok := s.users[sr.UserID]
	if !ok {
		return fmt.Errorf("seed request %s: unknown user %s", sr.ID, sr.UserID)
	}
	status, ok := model.ParseRequestStatus(sr.Status)
	if !ok {
		return fmt.Errorf("seed request %s: unknown status %q", sr.ID, sr.Status)
	}
	id := sr.ID
	if id == "" {
		id = uuid.NewString()
	}
	s.requests[id] = &model.MembershipRequest{
		ID:          id,
		Applicant:   applicantOf(acc),
		ChapterID:   sr.ChapterID,
		Status:      status,
		SubmittedAt: s.now().Add(-sr.Age).UTC(),
		CanReapply:  true,
	}
	return nil
}

func applicantOf(acc *account) model.Applicant {
	return model.Applicant{ID: acc.ID, Email: acc.Email, Name: acc.Name, Role: acc.Role}
}

// Chapters returns the chapter ids known to the store.
func (s *Store) Chapters() []string {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return slices.Clone(s.chapters)
}

// Authenticate checks an email and password pair.
func (s *Store) Authenticate(email, password string) (model.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return model.Principal{}, ErrInvalidCredentials
	}
	acc := s.users[id]
	if len(acc.passwordHash) == 0 {
		return model.Principal{}, ErrInvalidCredentials
	}
	if err := bcrypt.CompareHashAndPassword(acc.passwordHash, []byte(password)); err != nil {
		return model.Principal{}, ErrInvalidCredentials
	}
	return acc.Principal, nil
}

func (s *Store) UserByEmail(email string) (model.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	id, ok := s.emails[strings.ToLower(strings.TrimSpace(email))]
	if !ok {
		return model.Principal{}, fmt.Errorf("user %s: %w", email, ErrNotFound)
	}
	return s.users[id].Principal, nil
}

func (s *Store) User(id string) (model.Principal, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	acc, ok := s.users[id]
	if !ok {
		return model.Principal{}, fmt.Errorf("user %s: %w", id, ErrNotFound)
	}
	return acc.Principal, nil
}

// Requests lists a chapter's requests, oldest first, optionally filtered by
// status.
func (s *Store) Requests(chapterID string, status model.RequestStatus) []model.MembershipRequest {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.MembershipRequest{}
	for _, r := range s.requests {
		if r.ChapterID != chapterID || (status != "" && r.Status != status) {
			continue
		}
		out = append(out, *r)
	}
	slices.SortFunc(out, func(a, b model.MembershipRequest) int {
		if c := a.SubmittedAt.Compare(b.SubmittedAt); c != 0 {
			return c
		}
		return strings.Compare(a.ID, b.ID)
	})
	return out
}

func (s *Store) Request(chapterID, requestID string) (model.MembershipRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[requestID]
	if !ok || r.ChapterID != chapterID {
		return model.MembershipRequest{}, fmt.Errorf("request %s: %w", requestID, ErrNotFound)
	}
	return *r, nil
}

// Submit files a new PENDING request for userID in chapterID.
func (s *Store) Submit(chapterID, userID string) (model.MembershipRequest, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	acc, ok := s.users[userID]
	if !ok {
		return model.MembershipRequest{}, fmt.Errorf("user %s: %w", userID, ErrNotFound)
	}
	if _, blocked := s.blocked[blockKey{chapterID, userID}]; blocked {
		return model.MembershipRequest{}, fmt.Errorf("chapter %s: %w", chapterID, ErrReapplyBlocked)
	}
	for _, r := range s.requests {
		if r.ChapterID == chapterID && r.Applicant.ID == userID && r.Status != model.RequestStatusRejected {
			return model.MembershipRequest{}, fmt.Errorf("open request %s in chapter %s: %w", r.ID, chapterID, ErrConflict)
		}
	}

	req := &model.MembershipRequest{
		ID:          uuid.NewString(),
		Applicant:   applicantOf(acc),
		ChapterID:   chapterID,
		Status:      model.RequestStatusPending,
		SubmittedAt: s.now().UTC(),
		CanReapply:  true,
	}
	s.requests[req.ID] = req
	if !slices.Contains(s.chapters, chapterID) {
		s.chapters = append(s.chapters, chapterID)
	}
	return *req, nil
}

// Review applies approve or reject to a request. Approval makes the
// applicant a member; rejection without re-application blocks future
// requests to the chapter.
func (s *Store) Review(chapterID, requestID string, t membership.Transition, reviewerID string, in membership.Input) (model.MembershipRequest, error) {
	if t != membership.Approve && t != membership.Reject {
		return model.MembershipRequest{}, fmt.Errorf("%s on a request: %w", t, membership.ErrInvalidTransition)
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.requests[requestID]
	if !ok || stored.ChapterID != chapterID {
		return model.MembershipRequest{}, fmt.Errorf("request %s: %w", requestID, ErrNotFound)
	}
	next := *stored
	if err := membership.Apply(&next, t, reviewerID, in, s.now()); err != nil {
		return model.MembershipRequest{}, err
	}
	*stored = next

	switch t {
	case membership.Approve:
		s.members[next.Applicant.ID] = &model.Member{
			UserID:    next.Applicant.ID,
			Email:     next.Applicant.Email,
			Name:      next.Applicant.Name,
			Role:      next.Applicant.Role,
			ChapterID: chapterID,
			Status:    model.RequestStatusApproved,
		}
	case membership.Reject:
		if !next.CanReapply {
			s.blocked[blockKey{chapterID, next.Applicant.ID}] = struct{}{}
		}
	}
	return next, nil
}

func (s *Store) Member(userID string) (model.Member, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	m, ok := s.members[userID]
	if !ok {
		return model.Member{}, fmt.Errorf("member %s: %w", userID, ErrNotFound)
	}
	return *m, nil
}

func (s *Store) Members(chapterID string) []model.Member {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := []model.Member{}
	for _, m := range s.members {
		if m.ChapterID == chapterID {
			out = append(out, *m)
		}
	}
	slices.SortFunc(out, func(a, b model.Member) int { return strings.Compare(a.UserID, b.UserID) })
	return out
}

// SetMemberStatus suspends or reinstates a member and moves the member's
// request along with it.
func (s *Store) SetMemberStatus(userID string, t membership.Transition, reviewerID string, in membership.Input) (model.Member, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.members[userID]
	if !ok {
		return model.Member{}, fmt.Errorf("member %s: %w", userID, ErrNotFound)
	}
	from := stored.Status
	next := *stored
	if err := membership.ApplyMember(&next, t); err != nil {
		return model.Member{}, err
	}
	*stored = next

	for _, r := range s.requests {
		if r.ChapterID == next.ChapterID && r.Applicant.ID == userID && r.Status == from {
			// Best effort: the member status is authoritative.
			_ = membership.Apply(r, t, reviewerID, in, s.now())
			break
		}
	}
	return next, nil
}
