package serverdb

import (
	"context"
	"errors"
	"fmt"
	"time"

	"gorm.io/driver/postgres"
	"gorm.io/gorm"
	"gorm.io/gorm/logger"
)

// tournamentRow / participantRow / matchRow are the gorm models backing
// GormDB. They are private so the rest of the module only sees the plain
// entities from interface.go.
type tournamentRow struct {
	ID              int64  `gorm:"primaryKey;autoIncrement"`
	Name            string `gorm:"index:idx_creator_name;not null"`
	CreatorID       int64  `gorm:"index:idx_creator_name;not null"`
	MaxParticipants int
	Status          string `gorm:"type:varchar(16);not null"`
	WinnerID        *int64
	CreatedAt       time.Time `gorm:"autoCreateTime"`
}

func (tournamentRow) TableName() string { return "tournaments" }

type participantRow struct {
	ID           int64  `gorm:"primaryKey;autoIncrement"`
	TournamentID int64  `gorm:"uniqueIndex:idx_tournament_user;uniqueIndex:idx_tournament_name;not null"`
	UserID       int64  `gorm:"uniqueIndex:idx_tournament_user;not null"`
	Username     string `gorm:"uniqueIndex:idx_tournament_name;not null"`
}

func (participantRow) TableName() string { return "participants" }

type matchRow struct {
	ID           int64 `gorm:"primaryKey;autoIncrement"`
	TournamentID int64 `gorm:"index;not null"`
	Player1ID    int64 `gorm:"not null"`
	Player2ID    int64 `gorm:"not null"`
	Player1Score int
	Player2Score int
	Status       string `gorm:"type:varchar(16);not null"`
	WinnerID     *int64
}

func (matchRow) TableName() string { return "matches" }

// GormDB is the Postgres-backed ServerDB.
type GormDB struct {
	db *gorm.DB
}

// NewGormDB opens the Postgres database at dsn and migrates the schema.
func NewGormDB(dsn string) (*GormDB, error) {
	db, err := gorm.Open(postgres.Open(dsn), &gorm.Config{
		Logger: logger.Default.LogMode(logger.Silent),
		// Map driver unique violations to gorm.ErrDuplicatedKey.
		TranslateError: true,
	})
	if err != nil {
		return nil, fmt.Errorf("failed to open database: %w", err)
	}
	if err := db.AutoMigrate(&tournamentRow{}, &participantRow{}, &matchRow{}); err != nil {
		return nil, fmt.Errorf("failed to migrate schema: %w", err)
	}
	return &GormDB{db: db}, nil
}

func (g *GormDB) CreateTournament(ctx context.Context, t *Tournament) error {
	row := tournamentRow{
		Name:            t.Name,
		CreatorID:       t.CreatorID,
		MaxParticipants: t.MaxParticipants,
		Status:          string(t.Status),
	}
	if row.Status == "" {
		row.Status = string(TournamentPending)
	}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		return err
	}
	t.ID = row.ID
	t.Status = TournamentStatus(row.Status)
	t.CreatedAt = row.CreatedAt
	return nil
}

func (g *GormDB) TournamentByID(ctx context.Context, id int64) (*Tournament, error) {
	var row tournamentRow
	err := g.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrTournamentNotFound
	}
	if err != nil {
		return nil, err
	}
	return tournamentFromRow(&row), nil
}

func (g *GormDB) ActiveTournamentByName(ctx context.Context, creatorID int64, name string) (*Tournament, error) {
	var row tournamentRow
	err := g.db.WithContext(ctx).
		Where("creator_id = ? AND name = ? AND status <> ?", creatorID, name, string(TournamentCompleted)).
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return tournamentFromRow(&row), nil
}

func (g *GormDB) UpdateTournamentStatus(ctx context.Context, id int64, status TournamentStatus, winnerID *int64) error {
	updates := map[string]any{"status": string(status)}
	if winnerID != nil {
		updates["winner_id"] = *winnerID
	}
	res := g.db.WithContext(ctx).Model(&tournamentRow{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrTournamentNotFound
	}
	return nil
}

func (g *GormDB) AddParticipant(ctx context.Context, p *Participant) error {
	row := participantRow{
		TournamentID: p.TournamentID,
		UserID:       p.UserID,
		Username:     p.Username,
	}
	if err := g.db.WithContext(ctx).Create(&row).Error; err != nil {
		if errors.Is(err, gorm.ErrDuplicatedKey) {
			return ErrDuplicateEntry
		}
		return err
	}
	p.ID = row.ID
	return nil
}

func (g *GormDB) ParticipantsByTournament(ctx context.Context, tournamentID int64) ([]*Participant, error) {
	var rows []participantRow
	err := g.db.WithContext(ctx).
		Where("tournament_id = ?", tournamentID).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*Participant, len(rows))
	for i := range rows {
		r := rows[i]
		out[i] = &Participant{ID: r.ID, TournamentID: r.TournamentID, UserID: r.UserID, Username: r.Username}
	}
	return out, nil
}

func (g *GormDB) CreateMatches(ctx context.Context, matches []*Match) error {
	if len(matches) == 0 {
		return nil
	}
	rows := make([]matchRow, len(matches))
	for i, m := range matches {
		rows[i] = matchRow{
			TournamentID: m.TournamentID,
			Player1ID:    m.Player1ID,
			Player2ID:    m.Player2ID,
			Status:       string(MatchPending),
		}
	}
	if err := g.db.WithContext(ctx).Create(&rows).Error; err != nil {
		return err
	}
	for i := range rows {
		matches[i].ID = rows[i].ID
		matches[i].Status = MatchStatus(rows[i].Status)
	}
	return nil
}

func (g *GormDB) MatchByID(ctx context.Context, id int64) (*Match, error) {
	var row matchRow
	err := g.db.WithContext(ctx).First(&row, id).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, ErrMatchNotFound
	}
	if err != nil {
		return nil, err
	}
	return matchFromRow(&row), nil
}

func (g *GormDB) MatchesByTournament(ctx context.Context, tournamentID int64) ([]*Match, error) {
	var rows []matchRow
	err := g.db.WithContext(ctx).
		Where("tournament_id = ?", tournamentID).
		Order("id asc").
		Find(&rows).Error
	if err != nil {
		return nil, err
	}
	out := make([]*Match, len(rows))
	for i := range rows {
		out[i] = matchFromRow(&rows[i])
	}
	return out, nil
}

func (g *GormDB) NextPendingMatch(ctx context.Context, tournamentID int64) (*Match, error) {
	var row matchRow
	err := g.db.WithContext(ctx).
		Where("tournament_id = ? AND status = ?", tournamentID, string(MatchPending)).
		Order("id asc").
		First(&row).Error
	if errors.Is(err, gorm.ErrRecordNotFound) {
		return nil, nil
	}
	if err != nil {
		return nil, err
	}
	return matchFromRow(&row), nil
}

func (g *GormDB) UpdateMatchStatus(ctx context.Context, id int64, status MatchStatus) error {
	res := g.db.WithContext(ctx).Model(&matchRow{}).Where("id = ?", id).
		Update("status", string(status))
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMatchNotFound
	}
	return nil
}

func (g *GormDB) FinishMatch(ctx context.Context, id int64, winnerID *int64, score1, score2 int) error {
	updates := map[string]any{
		"status":        string(MatchCompleted),
		"player1_score": score1,
		"player2_score": score2,
	}
	if winnerID != nil {
		updates["winner_id"] = *winnerID
	}
	res := g.db.WithContext(ctx).Model(&matchRow{}).Where("id = ?", id).Updates(updates)
	if res.Error != nil {
		return res.Error
	}
	if res.RowsAffected == 0 {
		return ErrMatchNotFound
	}
	return nil
}

func (g *GormDB) Close() error {
	sqlDB, err := g.db.DB()
	if err != nil {
		return err
	}
	return sqlDB.Close()
}

func tournamentFromRow(r *tournamentRow) *Tournament {
	return &Tournament{
		ID:              r.ID,
		Name:            r.Name,
		CreatorID:       r.CreatorID,
		MaxParticipants: r.MaxParticipants,
		Status:          TournamentStatus(r.Status),
		WinnerID:        r.WinnerID,
		CreatedAt:       r.CreatedAt,
	}
}

func matchFromRow(r *matchRow) *Match {
	return &Match{
		ID:           r.ID,
		TournamentID: r.TournamentID,
		Player1ID:    r.Player1ID,
		Player2ID:    r.Player2ID,
		Player1Score: r.Player1Score,
		Player2Score: r.Player2Score,
		Status:       MatchStatus(r.Status),
		WinnerID:     r.WinnerID,
	}
}
