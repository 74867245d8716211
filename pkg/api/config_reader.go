package api

import (
	"os"

	crypt "github.com/estafette/estafette-ci-crypt"
	"github.com/pkg/errors"
	"github.com/rs/zerolog/log"
	yaml "gopkg.in/yaml.v2"
)

// ConfigReader reads the api config from an optional file and the environment
type ConfigReader interface {
	ReadConfig(configPath string, decryptSecrets bool) (*APIConfig, error)
}

type configReaderImpl struct {
	secretHelper         crypt.SecretHelper
	environmentVariables []string
}

// NewConfigReader returns a new api.ConfigReader; secretHelper can be nil if no secrets need decrypting
func NewConfigReader(secretHelper crypt.SecretHelper, environmentVariables []string) ConfigReader {
	return &configReaderImpl{
		secretHelper:         secretHelper,
		environmentVariables: environmentVariables,
	}
}

// ReadConfig reads the yaml file at configPath if set, overrides values with QB_ prefixed envvars, fills in defaults and validates the result
func (h *configReaderImpl) ReadConfig(configPath string, decryptSecrets bool) (config *APIConfig, err error) {

	config = &APIConfig{}

	if configPath != "" {
		log.Info().Msgf("Reading %v file...", configPath)

		data, err := os.ReadFile(configPath)
		if err != nil {
			return nil, errors.Wrapf(err, "Failed reading config file %v", configPath)
		}

		// decrypt secrets before unmarshalling
		if decryptSecrets && h.secretHelper != nil {
			decryptedData, err := h.secretHelper.DecryptAllEnvelopes(string(data), "")
			if err != nil {
				return nil, errors.Wrapf(err, "Failed decrypting secrets in config file %v", configPath)
			}
			data = []byte(decryptedData)
		}

		if err := yaml.Unmarshal(data, config); err != nil {
			return nil, errors.Wrapf(err, "Failed unmarshalling config file %v", configPath)
		}
	}

	if config.QuickBuild == nil {
		config.QuickBuild = &QuickBuildConfig{}
	}

	// override values from envvars
	if err = OverrideFromEnv(config.QuickBuild, "QB", h.environmentVariables); err != nil {
		return nil, errors.Wrap(err, "Failed overriding quickbuild config from envvars")
	}

	// the password envvar can hold an encrypted envelope as well
	if decryptSecrets && h.secretHelper != nil && config.QuickBuild.Password != "" {
		decryptedPassword, err := h.secretHelper.DecryptAllEnvelopes(config.QuickBuild.Password, "")
		if err != nil {
			return nil, errors.Wrap(err, "Failed decrypting quickbuild password")
		}
		config.QuickBuild.Password = decryptedPassword
	}

	config.SetDefaults()

	err = config.Validate()
	if err != nil {
		return
	}

	if configPath != "" {
		log.Info().Msgf("Finished reading %v file successfully", configPath)
	}

	return
}
