package access

import (
	"context"

	"github.com/quillcms/quill/pkg/observability"
)

// SeedGroups ensures the root and guest groups exist. Root bypasses all
// permission checks; guest is where new users land when registration
// names no group. Both are singletons by this initialization path, not by
// a database constraint, so a concurrent out-of-band insert could still
// create a second one.
func SeedGroups(ctx context.Context, store *Store, logger *observability.Logger) (root, guest *Group, err error) {
	root, err = ensureGroup(ctx, store, &Group{
		Name:  "root",
		Info:  "super administrators",
		Level: LevelRoot,
	})
	if err != nil {
		return nil, nil, err
	}
	guest, err = ensureGroup(ctx, store, &Group{
		Name:  "guest",
		Info:  "default group for new users",
		Level: LevelGuest,
	})
	if err != nil {
		return nil, nil, err
	}
	logger.WithFields(map[string]interface{}{
		"root_group_id":  root.ID,
		"guest_group_id": guest.ID,
	}).Debug("protected groups ready")
	return root, guest, nil
}

func ensureGroup(ctx context.Context, store *Store, group *Group) (*Group, error) {
	existing, err := store.GetGroupByLevel(ctx, group.Level)
	if err != nil {
		return nil, err
	}
	if existing != nil {
		return existing, nil
	}
	if err := store.CreateGroup(ctx, group, nil); err != nil {
		return nil, err
	}
	return group, nil
}
