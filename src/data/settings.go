package data

import (
	"sync"

	"github.com/stake-plus/guildgov/src/shared/gov"
	"gorm.io/gorm"
)

var (
	settingsCache map[string]string
	settingsMu    sync.RWMutex
)

// LoadSettings loads all active settings from the database into cache
func LoadSettings(db *gorm.DB) error {
	var settings []gov.Setting
	if err := db.Where("active = ?", 1).Find(&settings).Error; err != nil {
		return err
	}

	settingsMu.Lock()
	defer settingsMu.Unlock()

	settingsCache = make(map[string]string)
	for _, s := range settings {
		settingsCache[s.Name] = s.Value
	}

	return nil
}

// GetSetting retrieves a setting value from cache (call LoadSettings first)
func GetSetting(name string) string {
	settingsMu.RLock()
	defer settingsMu.RUnlock()
	return settingsCache[name]
}

// OverrideSettings replaces the cache wholesale. Used by tools and tests that
// run without a settings table.
func OverrideSettings(values map[string]string) {
	settingsMu.Lock()
	defer settingsMu.Unlock()

	settingsCache = make(map[string]string, len(values))
	for k, v := range values {
		settingsCache[k] = v
	}
}
