package repository

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"github.com/sirupsen/logrus"
	valkeylib "github.com/valkey-io/valkey-go"

	"github.com/AzielCF/az-mediacache/infrastructure/valkey"
	"github.com/AzielCF/az-mediacache/mediacache/domain"
	pkgError "github.com/AzielCF/az-mediacache/pkg/error"
)

// valkeyEntry is the JSON document stored per entry.
type valkeyEntry struct {
	ID             string `json:"id"`
	OwnerID        string `json:"owner_id"`
	GroupID        string `json:"group_id"`
	Payload        string `json:"payload"`
	RemoteRef      string `json:"remote_ref,omitempty"`
	Label          string `json:"label"`
	CreatedAt      int64  `json:"created_at"`
	LastAccessedAt int64  `json:"last_accessed_at"`
	SizeBytes      int64  `json:"size_bytes"`
}

// ValkeyStore implements domain.Store on Valkey. Each entry is a JSON string;
// owner and group lookups go through index sets that are repaired lazily when
// they point at entries that no longer exist.
type ValkeyStore struct {
	client *valkey.Client
}

func NewValkeyStore(client *valkey.Client) *ValkeyStore {
	return &ValkeyStore{client: client}
}

func (s *ValkeyStore) inner() valkeylib.Client {
	return s.client.Inner()
}

func (s *ValkeyStore) entryKey(id string) string {
	return s.client.Key("media", "entry", id)
}

func (s *ValkeyStore) ownerKey(ownerID string) string {
	return s.client.Key("media", "owner", ownerID)
}

func (s *ValkeyStore) groupKey(groupID string) string {
	return s.client.Key("media", "group", groupID)
}

func (s *ValkeyStore) Put(ctx context.Context, entry domain.Entry) error {
	prev, err := s.Get(ctx, entry.ID)
	if err != nil && !pkgError.IsNotFound(err) {
		return err
	}
	found := err == nil

	data, err := json.Marshal(toValkeyEntry(entry))
	if err != nil {
		return pkgError.NewStorageFault("put", fmt.Errorf("failed to marshal entry: %w", err))
	}

	b := s.inner().B()
	cmds := valkeylib.Commands{
		b.Set().Key(s.entryKey(entry.ID)).Value(string(data)).Build(),
		b.Sadd().Key(s.ownerKey(entry.OwnerID)).Member(entry.ID).Build(),
		b.Sadd().Key(s.groupKey(entry.GroupID)).Member(entry.ID).Build(),
	}
	if found {
		if prev.OwnerID != entry.OwnerID {
			cmds = append(cmds, b.Srem().Key(s.ownerKey(prev.OwnerID)).Member(entry.ID).Build())
		}
		if prev.GroupID != entry.GroupID {
			cmds = append(cmds, b.Srem().Key(s.groupKey(prev.GroupID)).Member(entry.ID).Build())
		}
	}
	return s.doMulti(ctx, "put", cmds)
}

func (s *ValkeyStore) Get(ctx context.Context, id string) (domain.Entry, error) {
	cmd := s.inner().B().Get().Key(s.entryKey(id)).Build()
	data, err := s.inner().Do(ctx, cmd).AsBytes()
	if err != nil {
		if valkey.IsNil(err) {
			return domain.Entry{}, pkgError.NotFoundError("cache entry not found")
		}
		return domain.Entry{}, pkgError.NewStorageFault("get", err)
	}

	var ve valkeyEntry
	if err := json.Unmarshal(data, &ve); err != nil {
		return domain.Entry{}, pkgError.NewStorageFault("get", fmt.Errorf("failed to unmarshal entry: %w", err))
	}
	return fromValkeyEntry(ve), nil
}

func (s *ValkeyStore) GetAllByOwner(ctx context.Context, ownerID string) ([]domain.Entry, error) {
	return s.members(ctx, "get_by_owner", s.ownerKey(ownerID))
}

func (s *ValkeyStore) GetAllByGroup(ctx context.Context, groupID string) ([]domain.Entry, error) {
	return s.members(ctx, "get_by_group", s.groupKey(groupID))
}

func (s *ValkeyStore) Delete(ctx context.Context, id string) error {
	prev, err := s.Get(ctx, id)
	if err != nil {
		if pkgError.IsNotFound(err) {
			return nil
		}
		return err
	}

	b := s.inner().B()
	return s.doMulti(ctx, "delete", valkeylib.Commands{
		b.Del().Key(s.entryKey(id)).Build(),
		b.Srem().Key(s.ownerKey(prev.OwnerID)).Member(id).Build(),
		b.Srem().Key(s.groupKey(prev.GroupID)).Member(id).Build(),
	})
}

func (s *ValkeyStore) ScanAll(ctx context.Context) ([]domain.Entry, error) {
	keys, err := s.client.ScanKeys(ctx, s.entryKey("*"))
	if err != nil {
		return nil, pkgError.NewStorageFault("scan", err)
	}
	entries, _, err := s.load(ctx, keys)
	if err != nil {
		return nil, pkgError.NewStorageFault("scan", err)
	}
	return entries, nil
}

func (s *ValkeyStore) Clear(ctx context.Context) error {
	keys, err := s.client.ScanKeys(ctx, s.client.Key("media", "*"))
	if err != nil {
		return pkgError.NewStorageFault("clear", err)
	}
	if err := s.client.DeleteKeys(ctx, keys); err != nil {
		return pkgError.NewStorageFault("clear", err)
	}
	return nil
}

// Touch rewrites the document with XX so a concurrently deleted entry stays
// deleted.
func (s *ValkeyStore) Touch(ctx context.Context, id string, at time.Time) error {
	entry, err := s.Get(ctx, id)
	if err != nil {
		if pkgError.IsNotFound(err) {
			return nil
		}
		return err
	}
	if !at.After(entry.LastAccessedAt) {
		return nil
	}
	entry.LastAccessedAt = at

	data, err := json.Marshal(toValkeyEntry(entry))
	if err != nil {
		return pkgError.NewStorageFault("touch", err)
	}
	cmd := s.inner().B().Set().Key(s.entryKey(id)).Value(string(data)).Xx().Build()
	if err := s.inner().Do(ctx, cmd).Error(); err != nil && !valkey.IsNil(err) {
		return pkgError.NewStorageFault("touch", err)
	}
	return nil
}

// Close is a no-op; the client is owned by whoever created it.
func (s *ValkeyStore) Close() error {
	return nil
}

func (s *ValkeyStore) members(ctx context.Context, op, setKey string) ([]domain.Entry, error) {
	ids, err := s.inner().Do(ctx, s.inner().B().Smembers().Key(setKey).Build()).AsStrSlice()
	if err != nil {
		return nil, pkgError.NewStorageFault(op, err)
	}
	keys := make([]string, len(ids))
	for i, id := range ids {
		keys[i] = s.entryKey(id)
	}

	entries, missing, err := s.load(ctx, keys)
	if err != nil {
		return nil, pkgError.NewStorageFault(op, err)
	}
	if len(missing) > 0 {
		stale := make([]string, 0, len(missing))
		for _, i := range missing {
			stale = append(stale, ids[i])
		}
		cmd := s.inner().B().Srem().Key(setKey).Member(stale...).Build()
		if err := s.inner().Do(ctx, cmd).Error(); err != nil {
			logrus.WithError(err).Warnf("[ValkeyStore] Failed to prune %d stale index members from %s", len(stale), setKey)
		}
	}
	return entries, nil
}

// load fetches keys with MGET and returns the decoded entries plus the
// positions of keys that no longer exist.
func (s *ValkeyStore) load(ctx context.Context, keys []string) ([]domain.Entry, []int, error) {
	if len(keys) == 0 {
		return []domain.Entry{}, nil, nil
	}

	values, err := s.inner().Do(ctx, s.inner().B().Mget().Key(keys...).Build()).ToArray()
	if err != nil {
		return nil, nil, fmt.Errorf("failed to mget entries: %w", err)
	}

	entries := make([]domain.Entry, 0, len(values))
	var missing []int
	for i, msg := range values {
		val, err := msg.ToString()
		if err != nil {
			if valkey.IsNil(err) {
				missing = append(missing, i)
				continue
			}
			return nil, nil, err
		}
		var ve valkeyEntry
		if err := json.Unmarshal([]byte(val), &ve); err != nil {
			logrus.Warnf("[ValkeyStore] Failed to unmarshal entry %s: %v", keys[i], err)
			continue
		}
		entries = append(entries, fromValkeyEntry(ve))
	}
	return entries, missing, nil
}

func (s *ValkeyStore) doMulti(ctx context.Context, op string, cmds valkeylib.Commands) error {
	for _, resp := range s.inner().DoMulti(ctx, cmds...) {
		if err := resp.Error(); err != nil {
			return pkgError.NewStorageFault(op, err)
		}
	}
	return nil
}

func toValkeyEntry(e domain.Entry) valkeyEntry {
	return valkeyEntry{
		ID:             e.ID,
		OwnerID:        e.OwnerID,
		GroupID:        e.GroupID,
		Payload:        e.Payload,
		RemoteRef:      e.RemoteRef,
		Label:          e.Label,
		CreatedAt:      toMillis(e.CreatedAt),
		LastAccessedAt: toMillis(e.LastAccessedAt),
		SizeBytes:      e.SizeBytes,
	}
}

func fromValkeyEntry(v valkeyEntry) domain.Entry {
	return domain.Entry{
		ID:             v.ID,
		OwnerID:        v.OwnerID,
		GroupID:        v.GroupID,
		Payload:        v.Payload,
		RemoteRef:      v.RemoteRef,
		Label:          v.Label,
		CreatedAt:      fromMillis(v.CreatedAt),
		LastAccessedAt: fromMillis(v.LastAccessedAt),
		SizeBytes:      v.SizeBytes,
	}
}
