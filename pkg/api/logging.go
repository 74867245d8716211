package api

import (
	"errors"

	"github.com/rs/zerolog/log"
)

// HandleLogError debug-logs an error intercepted by a logging decorator, unless it matches one of ignoredErrors
func HandleLogError(packageName, interfaceName, funcName string, err error, ignoredErrors ...error) {
	if err == nil {
		return
	}
	for _, e := range ignoredErrors {
		if errors.Is(err, e) {
			return
		}
	}
	log.Debug().Err(err).Msgf("%v.%v.%v decorator intercepted error", packageName, interfaceName, funcName)
}
