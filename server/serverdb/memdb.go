package serverdb

import (
	"context"
	"sort"
	"sync"
	"time"
)

// MemDB is a mutex-guarded in-memory ServerDB. It is the zero-config
// default and the storage used by the test suite.
type MemDB struct {
	mu sync.RWMutex

	tournaments  map[int64]*Tournament
	participants map[int64][]*Participant // tournamentID -> insertion order
	matches      map[int64]*Match

	nextTournamentID  int64
	nextParticipantID int64
	nextMatchID       int64
}

func NewMemDB() *MemDB {
	return &MemDB{
		tournaments:  make(map[int64]*Tournament),
		participants: make(map[int64][]*Participant),
		matches:      make(map[int64]*Match),
	}
}

func (db *MemDB) CreateTournament(_ context.Context, t *Tournament) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	db.nextTournamentID++
	t.ID = db.nextTournamentID
	if t.Status == "" {
		t.Status = TournamentPending
	}
	if t.CreatedAt.IsZero() {
		t.CreatedAt = time.Now()
	}
	cp := *t
	db.tournaments[t.ID] = &cp
	return nil
}

func (db *MemDB) TournamentByID(_ context.Context, id int64) (*Tournament, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	t, ok := db.tournaments[id]
	if !ok {
		return nil, ErrTournamentNotFound
	}
	cp := *t
	return &cp, nil
}

func (db *MemDB) ActiveTournamentByName(_ context.Context, creatorID int64, name string) (*Tournament, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	for _, t := range db.tournaments {
		if t.CreatorID == creatorID && t.Name == name && t.Status != TournamentCompleted {
			cp := *t
			return &cp, nil
		}
	}
	return nil, nil
}

func (db *MemDB) UpdateTournamentStatus(_ context.Context, id int64, status TournamentStatus, winnerID *int64) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	t, ok := db.tournaments[id]
	if !ok {
		return ErrTournamentNotFound
	}
	t.Status = status
	if winnerID != nil {
		w := *winnerID
		t.WinnerID = &w
	}
	return nil
}

func (db *MemDB) AddParticipant(_ context.Context, p *Participant) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	if _, ok := db.tournaments[p.TournamentID]; !ok {
		return ErrTournamentNotFound
	}
	for _, existing := range db.participants[p.TournamentID] {
		if existing.UserID == p.UserID || existing.Username == p.Username {
			return ErrDuplicateEntry
		}
	}

	db.nextParticipantID++
	p.ID = db.nextParticipantID
	cp := *p
	db.participants[p.TournamentID] = append(db.participants[p.TournamentID], &cp)
	return nil
}

func (db *MemDB) ParticipantsByTournament(_ context.Context, tournamentID int64) ([]*Participant, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	src := db.participants[tournamentID]
	out := make([]*Participant, len(src))
	for i, p := range src {
		cp := *p
		out[i] = &cp
	}
	return out, nil
}

func (db *MemDB) CreateMatches(_ context.Context, matches []*Match) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	for _, m := range matches {
		db.nextMatchID++
		m.ID = db.nextMatchID
		if m.Status == "" {
			m.Status = MatchPending
		}
		cp := *m
		db.matches[m.ID] = &cp
	}
	return nil
}

func (db *MemDB) MatchByID(_ context.Context, id int64) (*Match, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	m, ok := db.matches[id]
	if !ok {
		return nil, ErrMatchNotFound
	}
	cp := *m
	return &cp, nil
}

func (db *MemDB) MatchesByTournament(_ context.Context, tournamentID int64) ([]*Match, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var out []*Match
	for _, m := range db.matches {
		if m.TournamentID == tournamentID {
			cp := *m
			out = append(out, &cp)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	return out, nil
}

func (db *MemDB) NextPendingMatch(_ context.Context, tournamentID int64) (*Match, error) {
	db.mu.RLock()
	defer db.mu.RUnlock()

	var next *Match
	for _, m := range db.matches {
		if m.TournamentID != tournamentID || m.Status != MatchPending {
			continue
		}
		if next == nil || m.ID < next.ID {
			next = m
		}
	}
	if next == nil {
		return nil, nil
	}
	cp := *next
	return &cp, nil
}

func (db *MemDB) UpdateMatchStatus(_ context.Context, id int64, status MatchStatus) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	m, ok := db.matches[id]
	if !ok {
		return ErrMatchNotFound
	}
	m.Status = status
	return nil
}

func (db *MemDB) FinishMatch(_ context.Context, id int64, winnerID *int64, score1, score2 int) error {
	db.mu.Lock()
	defer db.mu.Unlock()

	m, ok := db.matches[id]
	if !ok {
		return ErrMatchNotFound
	}
	m.Status = MatchCompleted
	m.Player1Score = score1
	m.Player2Score = score2
	if winnerID != nil {
		w := *winnerID
		m.WinnerID = &w
	}
	return nil
}

func (db *MemDB) Close() error {
	return nil
}
