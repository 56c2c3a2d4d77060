package main

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/spf13/cobra"

	"officehours/internal/engine"
	"officehours/internal/model"
	"officehours/internal/timeutil"
)

type loader func(context.Context) (*app, error)

type ownerFlags struct {
	id   uint64
	name string
}

func (o *ownerFlags) register(cmd *cobra.Command) {
	cmd.Flags().Uint64Var(&o.id, "owner-id", 0, "Numeric id of the office hours owner")
	cmd.Flags().StringVar(&o.name, "owner-name", "", "Display name of the office hours owner")
	_ = cmd.MarkFlagRequired("owner-id")
	_ = cmd.MarkFlagRequired("owner-name")
}

func (o *ownerFlags) owner() model.Owner {
	return model.Owner{ID: o.id, Name: o.name}
}

// clockFlags collects a date and 12-hour clock time, optionally prefixed
// (--from-day, --to-hour, ...).
type clockFlags struct {
	year, month, day int
	hour, minute     int
	pm               bool
}

func (c *clockFlags) register(cmd *cobra.Command, prefix, what string) {
	name := func(s string) string {
		if prefix == "" {
			return s
		}
		return prefix + "-" + s
	}
	cmd.Flags().IntVar(&c.year, name("year"), time.Now().Year(), "Year of "+what)
	cmd.Flags().IntVar(&c.month, name("month"), 0, "Month (1-12) of "+what)
	cmd.Flags().IntVar(&c.day, name("day"), 0, "Day (1-31) of "+what)
	cmd.Flags().IntVar(&c.hour, name("hour"), 0, "Hour (1-12) of "+what)
	cmd.Flags().IntVar(&c.minute, name("minute"), 0, "Minute (0-59) of "+what)
	cmd.Flags().BoolVar(&c.pm, name("pm"), false, "Whether "+what+" is PM")
	_ = cmd.MarkFlagRequired(name("month"))
	_ = cmd.MarkFlagRequired(name("day"))
	_ = cmd.MarkFlagRequired(name("hour"))
}

func (c *clockFlags) in(loc *time.Location) (time.Time, error) {
	return timeutil.Clock12{
		Year:   c.year,
		Month:  c.month,
		Day:    c.day,
		Hour:   c.hour,
		Minute: c.minute,
		PM:     c.pm,
	}.In(loc)
}

type durationFlags struct {
	hours, minutes int
}

func (d *durationFlags) register(cmd *cobra.Command) {
	cmd.Flags().IntVar(&d.hours, "duration-hours", 1, "Length of each block, hours part")
	cmd.Flags().IntVar(&d.minutes, "duration-minutes", 0, "Length of each block, minutes part")
}

func (d *durationFlags) validate() error {
	if d.hours < 0 || d.minutes < 0 {
		return fmt.Errorf("%w: duration %dh%dm", timeutil.ErrInvalidTemporalParameters, d.hours, d.minutes)
	}
	return nil
}

func validateWeeks(weeks, minimum int) error {
	if weeks < minimum {
		return fmt.Errorf("--weeks must be at least %d", minimum)
	}
	return nil
}

func printResult(cmd *cobra.Command, res engine.Result) {
	fmt.Fprintln(cmd.OutOrStdout(), res.Summary)
}

func newCreateCmd(load loader) *cobra.Command {
	var (
		owner    ownerFlags
		start    clockFlags
		duration durationFlags
		weeks    int
	)

	cmd := &cobra.Command{
		Use:   "create",
		Short: "Add weekly office hours",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := duration.validate(); err != nil {
				return err
			}
			if err := validateWeeks(weeks, 0); err != nil {
				return err
			}
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			at, err := start.in(a.engine.Location())
			if err != nil {
				return err
			}

			res, err := a.engine.Create(cmd.Context(), engine.CreateRequest{
				Owner:           owner.owner(),
				Start:           at,
				DurationHours:   duration.hours,
				DurationMinutes: duration.minutes,
				Weeks:           weeks,
			})
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	owner.register(cmd)
	start.register(cmd, "", "the first block")
	duration.register(cmd)
	cmd.Flags().IntVar(&weeks, "weeks", 1, "Number of weekly occurrences to add")
	return cmd
}

func newListCmd(load loader) *cobra.Command {
	var (
		owner ownerFlags
		weeks int
	)

	cmd := &cobra.Command{
		Use:   "list",
		Short: "Show office hours from the start of this week",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateWeeks(weeks, 1); err != nil {
				return err
			}
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			res, err := a.engine.List(cmd.Context(), engine.ListRequest{Owner: owner.owner(), Weeks: weeks})
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	owner.register(cmd)
	cmd.Flags().IntVar(&weeks, "weeks", 1, "Number of weeks to show, starting this Sunday")
	return cmd
}

func newEditCmd(load loader) *cobra.Command {
	var (
		owner    ownerFlags
		from, to clockFlags
		duration durationFlags
		weeks    int
	)

	cmd := &cobra.Command{
		Use:   "edit",
		Short: "Move and resize a weekly series",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := duration.validate(); err != nil {
				return err
			}
			if err := validateWeeks(weeks, 0); err != nil {
				return err
			}
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			loc := a.engine.Location()
			fromAt, err := from.in(loc)
			if err != nil {
				return err
			}
			toAt, err := to.in(loc)
			if err != nil {
				return err
			}

			res, err := a.engine.Edit(cmd.Context(), engine.EditRequest{
				Owner:           owner.owner(),
				From:            fromAt,
				To:              toAt,
				DurationHours:   duration.hours,
				DurationMinutes: duration.minutes,
				Weeks:           weeks,
			})
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	owner.register(cmd)
	from.register(cmd, "from", "an existing block")
	to.register(cmd, "to", "where that block moves")
	duration.register(cmd)
	cmd.Flags().IntVar(&weeks, "weeks", 1, "Number of weeks, starting at the existing block, to change")
	return cmd
}

func newDeleteCmd(load loader) *cobra.Command {
	var (
		owner ownerFlags
		start clockFlags
		weeks int
	)

	cmd := &cobra.Command{
		Use:   "delete",
		Short: "Remove occurrences of a weekly series",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			if err := validateWeeks(weeks, 0); err != nil {
				return err
			}
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			at, err := start.in(a.engine.Location())
			if err != nil {
				return err
			}
			res, err := a.engine.Delete(cmd.Context(), engine.DeleteRequest{Owner: owner.owner(), Start: at, Weeks: weeks})
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	owner.register(cmd)
	start.register(cmd, "", "the first block to remove")
	cmd.Flags().IntVar(&weeks, "weeks", 1, "Number of weeks, starting at that block, to remove")
	return cmd
}

func newPruneCmd(load loader) *cobra.Command {
	var olderThan time.Duration

	cmd := &cobra.Command{
		Use:   "prune",
		Short: "Remove office hours that have already ended",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			a, err := load(cmd.Context())
			if err != nil {
				return err
			}
			keep := a.cfg.Retention()
			if cmd.Flags().Changed("older-than") {
				keep = olderThan
			} else if keep <= 0 {
				return errors.New("--older-than is required when retention_days is 0")
			}
			res, err := a.engine.Prune(cmd.Context(), time.Now().Add(-keep))
			if err != nil {
				return err
			}
			printResult(cmd, res)
			return nil
		},
	}
	cmd.Flags().DurationVar(&olderThan, "older-than", 0, "Keep office hours that ended within this long (default: retention_days)")
	return cmd
}
