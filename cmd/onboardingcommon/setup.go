// Package onboardingcommon wires the onboarding pipeline from command-line
// flags. It is shared by the server and prdtool.
package onboardingcommon

import (
	"context"
	"errors"
	"fmt"
	"log/slog"

	"github.com/ruteri/device-onboarding-backend/identity"
	"github.com/ruteri/device-onboarding-backend/interfaces"
	"github.com/ruteri/device-onboarding-backend/keystore"
	"github.com/ruteri/device-onboarding-backend/metrics"
	"github.com/ruteri/device-onboarding-backend/onboarding"
	"github.com/ruteri/device-onboarding-backend/provisioning"
	"github.com/ruteri/device-onboarding-backend/record"
	"github.com/ruteri/device-onboarding-backend/storage"
	"github.com/urfave/cli/v2"
)

var PublicKeyFlag = &cli.StringFlag{
	Name:    "public-key",
	EnvVars: []string{"PUBLIC_KEY"},
	Usage:   "producer signing key, 128 hex chars of the P-256 x||y coordinates",
}

var VaultAddrFlag = &cli.StringFlag{
	Name:    "vault-addr",
	EnvVars: []string{"VAULT_ADDR"},
	Usage:   "HashiCorp Vault address to read the signing key from (used when public-key is not set)",
}
var VaultTokenFlag = &cli.StringFlag{
	Name:    "vault-token",
	EnvVars: []string{"VAULT_TOKEN"},
	Usage:   "Vault token",
}
var VaultKeyPathFlag = &cli.StringFlag{
	Name:    "vault-key-path",
	EnvVars: []string{"VAULT_KEY_PATH"},
	Usage:   "KV v2 location of the signing key as mount/path",
}
var VaultKeyFieldFlag = &cli.StringFlag{
	Name:  "vault-key-field",
	Value: "public_key",
	Usage: "secret field holding the hex signing key",
}

var ThingGroupNameFlag = &cli.StringFlag{
	Name:    "thing-group-name",
	EnvVars: []string{"THING_GROUP_NAME"},
	Usage:   "thing group every onboarded device is added to",
}
var IdentityPolicyFlag = &cli.StringFlag{
	Name:    "identity-policy",
	Value:   string(record.PolicyDeviceID),
	EnvVars: []string{"IDENTITY_POLICY"},
	Usage:   "claim naming the thing: 'device-id' or 'common-name'",
}
var ConcurrencyFlag = &cli.IntFlag{
	Name:  "concurrency",
	Value: 4,
	Usage: "records of one event notification onboarded concurrently",
}
var ProvisionTimeoutFlag = &cli.DurationFlag{
	Name:  "provision-timeout",
	Value: onboarding.DefaultConfig().ProvisionTimeout,
	Usage: "timeout for the identity service calls of one record",
}

var SourceFlag = &cli.StringFlag{
	Name:    "source",
	Value:   "s3://",
	EnvVars: []string{"RECORD_SOURCE"},
	Usage:   "record source URI: s3://[ak:sk@]?region=..&endpoint=..&path_style=true or file:///dir",
}

var RegionFlag = &cli.StringFlag{
	Name:    "region",
	EnvVars: []string{"AWS_REGION"},
	Usage:   "AWS region of the IoT identity service",
}
var IoTEndpointFlag = &cli.StringFlag{
	Name:  "iot-endpoint",
	Usage: "override the IoT control plane endpoint",
}
var DryRunFlag = &cli.BoolFlag{
	Name:  "dry-run",
	Value: false,
	Usage: "provision into an in-memory identity service instead of AWS IoT and never delete records",
}

var KeyFlags = []cli.Flag{
	PublicKeyFlag,
	VaultAddrFlag,
	VaultTokenFlag,
	VaultKeyPathFlag,
	VaultKeyFieldFlag,
}

var IdentityFlags = []cli.Flag{
	RegionFlag,
	IoTEndpointFlag,
	DryRunFlag,
}

var OnboardingFlags = append(append([]cli.Flag{
	ThingGroupNameFlag,
	IdentityPolicyFlag,
	ConcurrencyFlag,
	ProvisionTimeoutFlag,
	SourceFlag,
}, KeyFlags...), IdentityFlags...)

// SetupVerifier loads the producer signing key, from the public-key flag
// when set and from Vault otherwise.
func SetupVerifier(ctx context.Context, cCtx *cli.Context, logger *slog.Logger) (*record.Verifier, error) {
	var source keystore.KeySource

	if hexKey := cCtx.String(PublicKeyFlag.Name); hexKey != "" {
		logger.Info("Using configured signing key")
		static, err := keystore.FromHex(hexKey)
		if err != nil {
			return nil, fmt.Errorf("invalid public-key: %w", err)
		}
		source = static
	} else {
		vaultAddr := cCtx.String(VaultAddrFlag.Name)
		if vaultAddr == "" {
			return nil, errors.New("either public-key or vault-addr is required")
		}

		logger.Info("Reading signing key from Vault", "address", vaultAddr, "path", cCtx.String(VaultKeyPathFlag.Name))
		vault, err := keystore.NewVaultKeySource(keystore.VaultOptions{
			Address: vaultAddr,
			Token:   cCtx.String(VaultTokenFlag.Name),
			Path:    cCtx.String(VaultKeyPathFlag.Name),
			Field:   cCtx.String(VaultKeyFieldFlag.Name),
		}, logger)
		if err != nil {
			return nil, err
		}
		source = vault
	}

	key, err := source.SigningKey(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to load signing key: %w", err)
	}
	return record.NewVerifier(key)
}

// SetupIdentityService returns the AWS IoT service, or an in-memory one
// with dry-run.
func SetupIdentityService(cCtx *cli.Context, logger *slog.Logger) (interfaces.IdentityService, error) {
	if cCtx.Bool(DryRunFlag.Name) {
		logger.Warn("Dry run: provisioning into an in-memory identity service")
		return identity.NewMemoryService(), nil
	}

	svc, err := identity.NewIoTService(identity.IoTOptions{
		Region:   cCtx.String(RegionFlag.Name),
		Endpoint: cCtx.String(IoTEndpointFlag.Name),
	}, logger)
	if err != nil {
		return nil, err
	}
	return svc, nil
}

// SetupWorkflow builds the onboarding workflow from the flags.
func SetupWorkflow(ctx context.Context, cCtx *cli.Context, logger *slog.Logger, m *metrics.Metrics) (*onboarding.Workflow, error) {
	policy, err := record.ParseIdentityPolicy(cCtx.String(IdentityPolicyFlag.Name))
	if err != nil {
		return nil, err
	}

	cfg := onboarding.Config{
		GroupName:        cCtx.String(ThingGroupNameFlag.Name),
		IdentityPolicy:   policy,
		Concurrency:      cCtx.Int(ConcurrencyFlag.Name),
		ProvisionTimeout: cCtx.Duration(ProvisionTimeoutFlag.Name),
	}
	if err := cfg.Validate(); err != nil {
		return nil, err
	}

	verifier, err := SetupVerifier(ctx, cCtx, logger)
	if err != nil {
		return nil, err
	}

	extractor, err := record.NewClaimExtractor(policy)
	if err != nil {
		return nil, err
	}

	svc, err := SetupIdentityService(cCtx, logger)
	if err != nil {
		return nil, err
	}

	return onboarding.NewWorkflow(cfg, verifier, extractor, provisioning.New(svc, logger), logger, m)
}

// SetupProcessor builds the workflow and the record source it reads from.
func SetupProcessor(ctx context.Context, cCtx *cli.Context, logger *slog.Logger, m *metrics.Metrics) (*onboarding.Processor, error) {
	workflow, err := SetupWorkflow(ctx, cCtx, logger, m)
	if err != nil {
		return nil, err
	}

	source, err := storage.NewRecordSourceFactory(logger).RecordSourceFor(cCtx.String(SourceFlag.Name))
	if err != nil {
		return nil, err
	}
	if cCtx.Bool(DryRunFlag.Name) {
		// Nothing is provisioned for real, so records must survive.
		source = storage.NewReadOnlyRecordSource(source, logger)
	}
	logger.Info("Using record source", "source", source.Name())

	return onboarding.NewProcessor(workflow, source, logger, m), nil
}
