package middleware

import (
	"errors"
	"sync"

	"github.com/gin-gonic/gin/binding"
	"github.com/go-playground/validator/v10"

	appvalidator "github.com/jwalitptl/therapy-scheduler/pkg/validator"
)

var (
	validationOnce sync.Once
	validationErr  error
)

// SetupValidation registers the custom binding tags on gin's validator.
// Safe to call more than once.
func SetupValidation() error {
	validationOnce.Do(func() {
		v, ok := binding.Validator.Engine().(*validator.Validate)
		if !ok {
			validationErr = errors.New("unexpected gin validator engine")
			return
		}
		validationErr = appvalidator.Register(v)
	})
	return validationErr
}
