package cache

import (
	"context"
	"fmt"
	"time"
)

const (
	ProfileKeyPrefix     = "profile:%d"
	UserProfileKeyPrefix = "user:%d:profile"
	BlacklistKeyPrefix   = "blacklist:%s"
	SessionKeyPrefix     = "session:"
)

const (
	ProfileTTL = 5 * time.Minute
)

func ProfileKey(profileID uint) string {
	return fmt.Sprintf(ProfileKeyPrefix, profileID)
}

func UserProfileKey(userID uint) string {
	return fmt.Sprintf(UserProfileKeyPrefix, userID)
}

func BlacklistKey(jti string) string {
	return fmt.Sprintf(BlacklistKeyPrefix, jti)
}

func Invalidate(ctx context.Context, keys ...string) {
	if client != nil && len(keys) > 0 {
		client.Del(ctx, keys...)
	}
}

// InvalidateProfile drops both lookups of a profile.
func InvalidateProfile(ctx context.Context, profileID, userID uint) {
	Invalidate(ctx, ProfileKey(profileID), UserProfileKey(userID))
}
