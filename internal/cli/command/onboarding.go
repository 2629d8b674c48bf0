package command

import "github.com/urfave/cli/v2"

// OnboardingCommand toggles the onboarding flag that gates sync.
func OnboardingCommand() *cli.Command {
	return &cli.Command{
		Name:  "onboarding",
		Usage: "Mark onboarding complete or start over",
		Subcommands: []*cli.Command{
			{
				Name:   "complete",
				Usage:  "Mark onboarding complete",
				Action: setOnboarding(true),
			},
			{
				Name:   "reset",
				Usage:  "Mark onboarding incomplete; sync pauses until completed",
				Action: setOnboarding(false),
			},
		},
	}
}

func setOnboarding(done bool) cli.ActionFunc {
	return func(c *cli.Context) error {
		e, err := openEnv(c)
		if err != nil {
			return err
		}
		if err := e.Prefs.SetOnboardingComplete(c.Context, done); err != nil {
			return err
		}
		if done {
			e.note("Onboarding complete.")
		} else {
			e.note("Onboarding reset; sync is paused.")
		}
		return nil
	}
}
