package onboarding

import (
	"fmt"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/ruteri/device-onboarding-backend/record"
)

// Config holds the process-wide onboarding settings. It is read once at
// startup.
type Config struct {
	// GroupName is the thing group every onboarded device is added to.
	GroupName string `validate:"required,max=128,thingname"`

	IdentityPolicy record.IdentityPolicy `validate:"required,oneof=device-id common-name"`

	// Concurrency bounds ProcessAll.
	Concurrency int `validate:"gte=1,lte=64"`

	// ProvisionTimeout bounds the provisioning calls of one record. Zero
	// leaves only the caller's deadline.
	ProvisionTimeout time.Duration `validate:"gte=0"`
}

// DefaultConfig returns a config with defaults for everything but GroupName.
func DefaultConfig() Config {
	return Config{
		IdentityPolicy:   record.PolicyDeviceID,
		Concurrency:      4,
		ProvisionTimeout: 30 * time.Second,
	}
}

var configValidate = newConfigValidator()

func newConfigValidator() *validator.Validate {
	v := validator.New()
	_ = v.RegisterValidation("thingname", func(fl validator.FieldLevel) bool {
		return record.IsValidThingName(fl.Field().String())
	})
	return v
}

// Validate checks the configuration.
func (c Config) Validate() error {
	if err := configValidate.Struct(c); err != nil {
		return fmt.Errorf("invalid onboarding config: %w", err)
	}
	return nil
}
