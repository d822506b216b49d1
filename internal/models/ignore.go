package models

import (
	"context"
	"time"

	"github.com/babblebot-server/server-sub000/internal/core"
)

// Ignore makes the bot ignore a user, or every message in a channel, within
// one guild. Exactly one of ChannelID and UserID is set.
type Ignore struct {
	core.Model
	ID        int64     `db:"id,pk,increments"`
	GuildID   string    `db:"guild_id"`
	ChannelID string    `db:"channel_id"`
	UserID    string    `db:"user_id"`
	IgnoredBy string    `db:"ignored_by"`
	CreatedAt time.Time `db:"created_at,serializer=unixtime"`
}

// BeforeCreate stamps CreatedAt.
func (i *Ignore) BeforeCreate(context.Context) error {
	if i.CreatedAt.IsZero() {
		i.CreatedAt = time.Now().UTC()
	}
	return nil
}

// Ignores is the repository of ignore rules.
type Ignores struct {
	repo *core.Repository[Ignore]
}

// NewIgnores returns the ignore rule repository on db.
func NewIgnores(db *core.DB) *Ignores {
	return &Ignores{repo: core.MustRepository[Ignore](db)}
}

// Repository exposes the underlying typed repository.
func (s *Ignores) Repository() *core.Repository[Ignore] { return s.repo }

// IgnoreUser ignores userID in guildID. An existing rule is returned as is.
func (s *Ignores) IgnoreUser(ctx context.Context, guildID, userID, by string) (*Ignore, error) {
	return s.add(ctx, guildID, "user_id", userID, by)
}

// IgnoreChannel ignores every message in channelID.
func (s *Ignores) IgnoreChannel(ctx context.Context, guildID, channelID, by string) (*Ignore, error) {
	return s.add(ctx, guildID, "channel_id", channelID, by)
}

func (s *Ignores) add(ctx context.Context, guildID, column, target, by string) (*Ignore, error) {
	if target == "" {
		return nil, core.WrapError(core.ErrUsage, column+" required")
	}
	existing, ok, err := s.repo.FindFirst(ctx, func(qb *core.QueryBuilder) {
		qb.Where("guild_id", core.EQ, guildID).Where(column, core.EQ, target)
	})
	if err != nil || ok {
		return existing, err
	}
	return s.repo.CreateAndPersist(ctx, map[string]any{
		"guild_id":   guildID,
		column:       target,
		"ignored_by": by,
	})
}

// IsIgnored reports whether a message from userID in channelID is ignored.
// Empty ids never match.
func (s *Ignores) IsIgnored(ctx context.Context, guildID, channelID, userID string) (bool, error) {
	if channelID == "" && userID == "" {
		return false, nil
	}
	n, err := s.repo.Count(ctx, func(qb *core.QueryBuilder) {
		qb.Where("guild_id", core.EQ, guildID).AndGroup(func(f *core.Filter) {
			if channelID != "" {
				f.Where("channel_id", core.EQ, channelID)
			}
			if userID != "" {
				if channelID != "" {
					f.Or(core.Where("user_id", core.EQ, userID))
				} else {
					f.Where("user_id", core.EQ, userID)
				}
			}
		})
	})
	return n > 0, err
}

// Unignore removes the rules on target, a user or channel id, in guildID.
// It returns how many rules were removed.
func (s *Ignores) Unignore(ctx context.Context, guildID, target string) (int, error) {
	if target == "" {
		return 0, core.WrapError(core.ErrUsage, "unignore target required")
	}
	return s.repo.Delete(ctx, func(qb *core.QueryBuilder) {
		qb.Where("guild_id", core.EQ, guildID).AndGroup(func(f *core.Filter) {
			f.Where("channel_id", core.EQ, target).Or(core.Where("user_id", core.EQ, target))
		})
	})
}

// List returns the rules of guildID, oldest first.
func (s *Ignores) List(ctx context.Context, guildID string) ([]*Ignore, error) {
	return s.repo.Find(ctx, func(qb *core.QueryBuilder) {
		qb.Where("guild_id", core.EQ, guildID).OrderBy("id")
	})
}
