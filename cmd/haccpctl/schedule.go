package main

import (
	"fmt"
	"strconv"
	"strings"

	"github.com/spf13/cobra"
)

var scheduleCmd = &cobra.Command{
	Use:   "schedule",
	Short: "Show or change the daily backup time",
}

var scheduleShowCmd = &cobra.Command{
	Use:   "show",
	Short: "Show the daily backup time",
	RunE: func(cmd *cobra.Command, args []string) error {
		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		sched := a.srv.Scheduler().Schedule()
		state := "enabled"
		if !sched.Enabled {
			state = "disabled"
		}
		fmt.Printf("Daily backup at %s (%s)\n", sched, state)
		return nil
	},
}

var scheduleSetCmd = &cobra.Command{
	Use:   "set HH:MM",
	Short: "Set the daily backup time in the server's time zone",
	Args:  cobra.ExactArgs(1),
	RunE: func(cmd *cobra.Command, args []string) error {
		hour, minute, err := parseClock(args[0])
		if err != nil {
			return err
		}

		a, err := openApp(cmd)
		if err != nil {
			return err
		}
		defer a.Close()

		if err := a.srv.Scheduler().SetSchedule(hour, minute); err != nil {
			return err
		}
		fmt.Printf("Daily backup set to %s\n", a.srv.Scheduler().Schedule())
		return nil
	},
}

func enableCmd(use string, enabled bool) *cobra.Command {
	return &cobra.Command{
		Use:   use,
		Short: strings.ToUpper(use[:1]) + use[1:] + " the daily backup",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := openApp(cmd)
			if err != nil {
				return err
			}
			defer a.Close()

			sched := a.srv.Scheduler().Schedule()
			sched.Enabled = enabled
			if err := a.srv.Scheduler().Update(sched); err != nil {
				return err
			}
			fmt.Printf("Daily backup %sd\n", use)
			return nil
		},
	}
}

func init() {
	scheduleCmd.AddCommand(scheduleShowCmd)
	scheduleCmd.AddCommand(scheduleSetCmd)
	scheduleCmd.AddCommand(enableCmd("enable", true))
	scheduleCmd.AddCommand(enableCmd("disable", false))
}

// parseClock parses a 24 hour HH:MM time.
func parseClock(s string) (hour, minute int, err error) {
	h, m, ok := strings.Cut(s, ":")
	if !ok {
		return 0, 0, fmt.Errorf("invalid time %q, want HH:MM", s)
	}
	if hour, err = strconv.Atoi(h); err != nil || hour < 0 || hour > 23 {
		return 0, 0, fmt.Errorf("invalid hour in %q", s)
	}
	if minute, err = strconv.Atoi(m); err != nil || minute < 0 || minute > 59 {
		return 0, 0, fmt.Errorf("invalid minute in %q", s)
	}
	return hour, minute, nil
}
