package configfile

import (
	"os"
	"path/filepath"
	"sync"

	"github.com/BurntSushi/toml"

	"github.com/openkruise/agents-sdk-go/internal/env"
)

// Profile 是配置文件中单个 profile 的内容。
type Profile struct {
	APIKey                string `toml:"api_key"`
	Domain                string `toml:"domain"`
	DisableSecureProtocol bool   `toml:"disable_secure_protocol"`
}

var (
	profileConfigs      map[string]*Profile
	profileConfigsError error
	profileConfigsOnce  sync.Once
)

// Load 返回当前生效的 profile（默认 "default"，可由环境变量覆盖）。
// 配置文件不存在时返回 (nil, nil)，调用方按配置缺失处理。
func Load() (*Profile, error) {
	if err := load(); err != nil {
		if os.IsNotExist(err) {
			return nil, nil
		}
		return nil, err
	}
	profileName := env.ProfileFromEnvironment()
	if profileName == "" {
		profileName = "default"
	}
	profile, ok := profileConfigs[profileName]
	if !ok || profile == nil {
		return nil, nil
	}
	return profile, nil
}

func load() error {
	profileConfigsOnce.Do(func() {
		profileConfigsError = _load()
	})
	return profileConfigsError
}

func _load() error {
	configFilePath := env.ConfigFileFromEnvironment()
	if configFilePath == "" {
		configFilePath = getDefaultConfigFilePath()
	}
	_, err := toml.DecodeFile(configFilePath, &profileConfigs)
	return err
}

func getDefaultConfigFilePath() string {
	homeDir, err := os.UserHomeDir()
	if err != nil {
		homeDir = ""
	}
	return filepath.Join(homeDir, ".kruise", "config.toml")
}
