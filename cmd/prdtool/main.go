package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"log"
	"os"
	"time"

	"github.com/ruteri/device-onboarding-backend/api"
	"github.com/ruteri/device-onboarding-backend/api/clients"
	"github.com/ruteri/device-onboarding-backend/cmd/flags"
	"github.com/ruteri/device-onboarding-backend/cmd/onboardingcommon"
	"github.com/ruteri/device-onboarding-backend/cryptoutils"
	"github.com/ruteri/device-onboarding-backend/identity"
	"github.com/ruteri/device-onboarding-backend/interfaces"
	"github.com/ruteri/device-onboarding-backend/record"
	"github.com/urfave/cli/v2"
)

var flagRecords = &cli.StringSliceFlag{
	Name:     "record",
	Required: true,
	Usage:    "record location as bucket/key or s3://bucket/key, may be repeated",
}

var flagServerAddr = &cli.StringFlag{
	Name:  "server",
	Value: "http://127.0.0.1:8080",
	Usage: "onboarding server to submit records to",
}

var flagGroup = &cli.StringFlag{
	Name:     "group",
	Required: true,
	Usage:    "thing group to delete",
}

func main() {
	if err := newApp().Run(os.Args); err != nil {
		log.Fatal(err)
	}
}

func newApp() *cli.App {
	return &cli.App{
		Name:  "prdtool",
		Usage: "Inspect production records and operate the onboarding pipeline",
		Flags: flags.LogFlags,
		Commands: []*cli.Command{
			{
				Name:  "onboard",
				Usage: "Onboard records directly from a record source",
				Flags: append([]cli.Flag{flagRecords}, onboardingcommon.OnboardingFlags...),
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)

					locs, err := parseLocations(cCtx.StringSlice(flagRecords.Name))
					if err != nil {
						return err
					}

					processor, err := onboardingcommon.SetupProcessor(cCtx.Context, cCtx, logger, nil)
					if err != nil {
						return err
					}

					results := processor.ProcessAll(cCtx.Context, locs)

					failed := 0
					responses := make([]api.RecordResponse, 0, len(results))
					for _, res := range results {
						if !res.Completed() || res.DeleteErr != nil {
							failed++
						}
						responses = append(responses, api.NewRecordResponse(res))
					}
					if err := printJSON(cCtx.App.Writer, api.EventsResponse{Records: responses}); err != nil {
						return err
					}

					if failed > 0 {
						return fmt.Errorf("%d of %d records not onboarded", failed, len(results))
					}
					return nil
				},
			},
			{
				Name:  "submit",
				Usage: "Ask a running onboarding server to onboard records",
				Flags: []cli.Flag{flagServerAddr, flagRecords},
				Action: func(cCtx *cli.Context) error {
					locs, err := parseLocations(cCtx.StringSlice(flagRecords.Name))
					if err != nil {
						return err
					}

					client := &clients.OnboardingClient{ServerAddr: cCtx.String(flagServerAddr.Name)}
					for _, loc := range locs {
						resp, err := client.Onboard(cCtx.Context, loc)
						if err != nil {
							return fmt.Errorf("failed to submit %s: %w", loc, err)
						}
						if err := printJSON(cCtx.App.Writer, resp); err != nil {
							return err
						}
					}
					return nil
				},
			},
			{
				Name:      "verify",
				Usage:     "Verify a record file and print its claims",
				ArgsUsage: "PRDFILE",
				Flags:     append([]cli.Flag{onboardingcommon.IdentityPolicyFlag}, onboardingcommon.KeyFlags...),
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)

					raw, err := readRecordArg(cCtx)
					if err != nil {
						return err
					}

					ctx, cancel := context.WithTimeout(cCtx.Context, 30*time.Second)
					defer cancel()

					verifier, err := onboardingcommon.SetupVerifier(ctx, cCtx, logger)
					if err != nil {
						return err
					}

					policy, err := record.ParseIdentityPolicy(cCtx.String(onboardingcommon.IdentityPolicyFlag.Name))
					if err != nil {
						return err
					}
					extractor, err := record.NewClaimExtractor(policy)
					if err != nil {
						return err
					}

					verified, err := record.Open(raw, verifier)
					if err != nil {
						return err
					}

					claim, err := extractor.Extract(verified)
					if err != nil {
						return err
					}
					return printJSON(cCtx.App.Writer, claim)
				},
			},
			{
				Name:      "extract-cert",
				Usage:     "Print the device certificate of a record as PEM, without verifying it",
				ArgsUsage: "PRDFILE",
				Action: func(cCtx *cli.Context) error {
					raw, err := readRecordArg(cCtx)
					if err != nil {
						return err
					}

					env, err := record.Parse(raw)
					if err != nil {
						return err
					}

					device, err := env.DeviceClaim()
					if err != nil {
						return err
					}

					_, err = fmt.Fprint(cCtx.App.Writer, cryptoutils.WrapCertificatePEM(device.DeviceCert))
					return err
				},
			},
			{
				Name:  "delete-group",
				Usage: "Delete a thing group with all its things and their certificates",
				Flags: []cli.Flag{flagGroup, onboardingcommon.RegionFlag, onboardingcommon.IoTEndpointFlag},
				Action: func(cCtx *cli.Context) error {
					logger := flags.SetupLogger(cCtx)

					svc, err := identity.NewIoTService(identity.IoTOptions{
						Region:   cCtx.String(onboardingcommon.RegionFlag.Name),
						Endpoint: cCtx.String(onboardingcommon.IoTEndpointFlag.Name),
					}, logger)
					if err != nil {
						return err
					}

					deleted, err := svc.DeleteGroup(cCtx.Context, cCtx.String(flagGroup.Name))
					for _, thing := range deleted {
						fmt.Fprintln(cCtx.App.Writer, thing)
					}
					return err
				},
			},
		},
	}
}

func parseLocations(raw []string) ([]interfaces.RecordLocation, error) {
	locs := make([]interfaces.RecordLocation, 0, len(raw))
	for _, r := range raw {
		loc, err := interfaces.ParseRecordLocation(r)
		if err != nil {
			return nil, err
		}
		locs = append(locs, loc)
	}
	return locs, nil
}

func readRecordArg(cCtx *cli.Context) ([]byte, error) {
	if cCtx.NArg() != 1 {
		return nil, errors.New("expected exactly one PRDFILE argument")
	}
	return os.ReadFile(cCtx.Args().First())
}

func printJSON(w io.Writer, v any) error {
	out, err := json.MarshalIndent(v, "", "  ")
	if err != nil {
		return err
	}
	_, err = fmt.Fprintln(w, string(out))
	return err
}
