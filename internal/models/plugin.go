package models

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/babblebot-server/server-sub000/internal/core"
)

// PluginModel is a JSON value a plugin stores under a key, scoped to a guild.
// An empty GuildID is the plugin's global scope.
type PluginModel struct {
	core.Model
	ID      int64           `db:"id,pk,increments"`
	Plugin  string          `db:"plugin"`
	GuildID string          `db:"guild_id"`
	Key     string          `db:"key"`
	Value   json.RawMessage `db:"value,serializer=json"`
	// Secret holds credentials the plugin needs. It never appears in logs
	// or exports.
	Secret string `db:"secret,protected"`
}

// TableName implements core.TableNamer.
func (PluginModel) TableName() string { return "plugin_models" }

// Decode unmarshals Value into dst.
func (p *PluginModel) Decode(dst any) error {
	if len(p.Value) == 0 {
		return nil
	}
	if err := json.Unmarshal(p.Value, dst); err != nil {
		return fmt.Errorf("%w: plugin %s key %s: %v", core.ErrSerialization, p.Plugin, p.Key, err)
	}
	return nil
}

// Plugins is the repository of plugin models.
type Plugins struct {
	repo *core.Repository[PluginModel]
}

// NewPlugins returns the plugin model repository on db.
func NewPlugins(db *core.DB) *Plugins {
	return &Plugins{repo: core.MustRepository[PluginModel](db)}
}

// Repository exposes the underlying typed repository.
func (s *Plugins) Repository() *core.Repository[PluginModel] { return s.repo }

func scope(plugin, guildID, key string) func(*core.QueryBuilder) {
	return func(qb *core.QueryBuilder) {
		qb.Where("plugin", core.EQ, plugin).
			Where("guild_id", core.EQ, guildID).
			Where("key", core.EQ, key)
	}
}

// Get returns the record stored under key.
func (s *Plugins) Get(ctx context.Context, plugin, guildID, key string) (*PluginModel, bool, error) {
	return s.repo.FindFirst(ctx, scope(plugin, guildID, key))
}

// Put stores value, marshalled to JSON, under key. Only the changed columns
// of an existing record are written.
func (s *Plugins) Put(ctx context.Context, plugin, guildID, key string, value any) (*PluginModel, error) {
	raw, err := json.Marshal(value)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", core.ErrSerialization, err)
	}
	return s.upsert(ctx, plugin, guildID, key, func(m *PluginModel) { m.Value = raw })
}

// PutSecret stores a protected secret under key, keeping any value.
func (s *Plugins) PutSecret(ctx context.Context, plugin, guildID, key, secret string) (*PluginModel, error) {
	return s.upsert(ctx, plugin, guildID, key, func(m *PluginModel) { m.Secret = secret })
}

func (s *Plugins) upsert(ctx context.Context, plugin, guildID, key string, set func(*PluginModel)) (*PluginModel, error) {
	if plugin == "" || key == "" {
		return nil, core.WrapError(core.ErrUsage, "plugin and key required")
	}
	m, ok, err := s.Get(ctx, plugin, guildID, key)
	if err != nil {
		return nil, err
	}
	if !ok {
		m = s.repo.New()
		m.Plugin, m.GuildID, m.Key = plugin, guildID, key
	}
	set(m)
	if err := m.Save(ctx); err != nil {
		return nil, err
	}
	return m, nil
}

// List returns the records of plugin in guildID ordered by key.
func (s *Plugins) List(ctx context.Context, plugin, guildID string) ([]*PluginModel, error) {
	return s.repo.Find(ctx, func(qb *core.QueryBuilder) {
		qb.Where("plugin", core.EQ, plugin).Where("guild_id", core.EQ, guildID).OrderBy("key")
	})
}

// Delete removes the record stored under key.
func (s *Plugins) Delete(ctx context.Context, plugin, guildID, key string) (bool, error) {
	n, err := s.repo.Delete(ctx, scope(plugin, guildID, key))
	return n > 0, err
}
