package onboardingcommon

import (
	"context"
	"io"
	"log/slog"
	"os"
	"path/filepath"
	"testing"

	"github.com/ruteri/device-onboarding-backend/interfaces"
	"github.com/ruteri/device-onboarding-backend/onboarding"
	"github.com/ruteri/device-onboarding-backend/record/recordtest"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"github.com/urfave/cli/v2"
)

// runWithFlags parses args with the onboarding flags and hands the
// resulting context to action.
func runWithFlags(t *testing.T, args []string, action func(cCtx *cli.Context) error) {
	for _, env := range []string{"PUBLIC_KEY", "VAULT_ADDR", "THING_GROUP_NAME"} {
		t.Setenv(env, "")
	}

	app := &cli.App{
		Name:   "test",
		Flags:  OnboardingFlags,
		Action: action,
	}
	require.NoError(t, app.Run(append([]string{"test"}, args...)))
}

func TestSetupProcessor_DryRunKeepsRecords(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	producer := recordtest.NewProducer(t)

	dir := t.TempDir()
	raw, _ := producer.DeviceRecord(t, "DEV123")
	path := filepath.Join(dir, "factory", "DEV123.prd")
	require.NoError(t, os.MkdirAll(filepath.Dir(path), 0755))
	require.NoError(t, os.WriteFile(path, raw, 0644))

	args := []string{
		"--dry-run",
		"--source", "file://" + dir,
		"--thing-group-name", "fleet",
		"--public-key", producer.PublicKeyHex(),
	}

	runWithFlags(t, args, func(cCtx *cli.Context) error {
		processor, err := SetupProcessor(context.Background(), cCtx, logger, nil)
		require.NoError(t, err)

		res, err := processor.Process(context.Background(), interfaces.RecordLocation{Container: "factory", Key: "DEV123.prd"})
		require.NoError(t, err)
		assert.Equal(t, onboarding.StateComplete, res.State)
		assert.Equal(t, "DEV123", res.Outcome.Identity.Name)
		return nil
	})

	assert.FileExists(t, path)
}

func TestSetupWorkflow_Validation(t *testing.T) {
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	producer := recordtest.NewProducer(t)

	cases := map[string][]string{
		"missing group":   {"--dry-run", "--public-key", producer.PublicKeyHex()},
		"unknown policy":  {"--dry-run", "--public-key", producer.PublicKeyHex(), "--thing-group-name", "fleet", "--identity-policy", "serial"},
		"bad key":         {"--dry-run", "--public-key", "abcd", "--thing-group-name", "fleet"},
		"no key source":   {"--dry-run", "--thing-group-name", "fleet"},
		"bad concurrency": {"--dry-run", "--public-key", producer.PublicKeyHex(), "--thing-group-name", "fleet", "--concurrency", "0"},
	}

	for name, args := range cases {
		t.Run(name, func(t *testing.T) {
			runWithFlags(t, args, func(cCtx *cli.Context) error {
				_, err := SetupWorkflow(context.Background(), cCtx, logger, nil)
				assert.Error(t, err)
				return nil
			})
		})
	}
}
