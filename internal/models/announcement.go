package models

import (
	"context"
	"time"

	"github.com/babblebot-server/server-sub000/internal/core"
)

// AnnouncementChannel is the channel a guild receives bot announcements in.
type AnnouncementChannel struct {
	core.Model
	ID        int64     `db:"id,pk,increments"`
	GuildID   string    `db:"guild_id,unique"`
	ChannelID string    `db:"channel_id"`
	CreatedAt time.Time `db:"created_at"`
	UpdatedAt time.Time `db:"updated_at,onupdate=now"`
}

// TableName implements core.TableNamer.
func (AnnouncementChannel) TableName() string { return "announcement_channels" }

// BeforeCreate stamps CreatedAt.
func (a *AnnouncementChannel) BeforeCreate(context.Context) error {
	if a.CreatedAt.IsZero() {
		a.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Announcements is the repository of announcement channels.
type Announcements struct {
	repo *core.Repository[AnnouncementChannel]
}

// NewAnnouncements returns the announcement channel repository on db.
func NewAnnouncements(db *core.DB) *Announcements {
	return &Announcements{repo: core.MustRepository[AnnouncementChannel](db)}
}

// Repository exposes the underlying typed repository.
func (s *Announcements) Repository() *core.Repository[AnnouncementChannel] { return s.repo }

// ForGuild returns the announcement channel of guildID.
func (s *Announcements) ForGuild(ctx context.Context, guildID string) (*AnnouncementChannel, bool, error) {
	return s.repo.FindFirst(ctx, func(qb *core.QueryBuilder) {
		qb.Where("guild_id", core.EQ, guildID)
	})
}

// SetChannel points guildID's announcements at channelID, creating the
// record on first use. Setting the current channel again writes nothing.
func (s *Announcements) SetChannel(ctx context.Context, guildID, channelID string) (*AnnouncementChannel, error) {
	if guildID == "" || channelID == "" {
		return nil, core.WrapError(core.ErrUsage, "guild and channel required")
	}
	ac, ok, err := s.ForGuild(ctx, guildID)
	if err != nil {
		return nil, err
	}
	if !ok {
		return s.repo.CreateAndPersist(ctx, map[string]any{
			"guild_id":   guildID,
			"channel_id": channelID,
		})
	}
	ac.ChannelID = channelID
	if err := ac.Save(ctx); err != nil {
		return nil, err
	}
	return ac, nil
}

// Remove deletes guildID's announcement channel.
func (s *Announcements) Remove(ctx context.Context, guildID string) (bool, error) {
	ac, ok, err := s.ForGuild(ctx, guildID)
	if err != nil || !ok {
		return false, err
	}
	return ac.Delete(ctx)
}
