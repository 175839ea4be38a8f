package env

import (
	"os"
	"strings"
)

const (
	environmentVariableNameKruiseAPIKey                = "KRUISE_API_KEY"
	environmentVariableNameKruiseSandboxDomain         = "KRUISE_SANDBOX_DOMAIN"
	environmentVariableNameKruiseConfigFile            = "KRUISE_CONFIG_FILE"
	environmentVariableNameKruiseProfile               = "KRUISE_PROFILE"
	environmentVariableNameDisableKruiseSecureProtocol = "DISABLE_KRUISE_SECURE_PROTOCOL"

	// e2b 生态的环境变量，作为兼容回退。
	environmentVariableNameE2BAPIKey = "E2B_API_KEY"
	environmentVariableNameE2BDomain = "E2B_DOMAIN"
)

func APIKeyFromEnvironment() string {
	if key := os.Getenv(environmentVariableNameKruiseAPIKey); key != "" {
		return key
	}
	return os.Getenv(environmentVariableNameE2BAPIKey)
}

func DomainFromEnvironment() string {
	if domain := os.Getenv(environmentVariableNameKruiseSandboxDomain); domain != "" {
		return domain
	}
	return os.Getenv(environmentVariableNameE2BDomain)
}

func ConfigFileFromEnvironment() string {
	return os.Getenv(environmentVariableNameKruiseConfigFile)
}

func ProfileFromEnvironment() string {
	return os.Getenv(environmentVariableNameKruiseProfile)
}

func DisableSecureProtocolFromEnvironment() (bool, bool) {
	value := strings.ToLower(os.Getenv(environmentVariableNameDisableKruiseSecureProtocol))
	if value == "" {
		return false, false
	}
	return value == "true" || value == "yes" || value == "y" || value == "1", true
}
