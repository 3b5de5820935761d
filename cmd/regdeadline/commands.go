package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"github.com/spf13/cobra"
	"go.uber.org/zap"

	"github.com/PetrosWatts/regdeadline/internal/core"
	"github.com/PetrosWatts/regdeadline/internal/di"
)

func newRemindCommand(opts *di.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "remind",
		Short: "Email subscribers about filing deadlines inside the reminder window",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return invoke(opts, func(service *core.ReminderService, store core.StateStore, logger *zap.Logger) error {
				defer release(store, logger)

				reminders, err := service.Run(cmd.Context())
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "EMAIL\tCOMPANY\tDEADLINE\tDUE\tSENT")
				for _, r := range reminders {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%t\n", r.Email, r.Company, r.DeadlineType, r.DeadlineDate, r.Sent)
				}
				if flushErr := w.Flush(); flushErr != nil && err == nil {
					err = flushErr
				}
				return err
			})
		},
	}
}

func newLeadsCommand(opts *di.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "leads",
		Short: "Scan the registry for companies with a filing due soon and send outreach to the review inbox",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return invoke(opts, func(scanner *core.LeadScanner, store core.StateStore, logger *zap.Logger) error {
				defer release(store, logger)

				leads, err := scanner.Scan(cmd.Context())
				for _, lead := range leads {
					fmt.Fprintf(cmd.OutOrStdout(), "%s %s %s\n", lead.Company, lead.DeadlineType, lead.DeadlineDate)
				}
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d lead(s) contacted\n", len(leads))
				return nil
			})
		},
	}
}

func newUnsubscribesCommand(opts *di.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "unsubscribes",
		Short: "Read unseen replies and suppress senders who asked to opt out",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return invoke(opts, func(service *core.UnsubscribeService, store core.StateStore, logger *zap.Logger) error {
				defer release(store, logger)

				added, err := service.ProcessUnsubscribes(cmd.Context())
				if err != nil {
					return err
				}
				fmt.Fprintf(cmd.OutOrStdout(), "%d new unsubscribe(s)\n", added)
				return nil
			})
		},
	}
}

func newStatusCommand(opts *di.Options) *cobra.Command {
	return &cobra.Command{
		Use:   "status",
		Short: "Show today's send count, caps and suppression totals",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return invoke(opts, func(store core.StateStore, policy core.SendPolicy, logger *zap.Logger) error {
				defer release(store, logger)

				ctx := cmd.Context()
				day := core.Day(time.Now())
				sent, err := store.SentOn(ctx, day)
				if err != nil {
					return fmt.Errorf("failed to read send log: %w", err)
				}
				record, err := store.LoadSuppression(ctx)
				if err != nil {
					return fmt.Errorf("failed to load suppression record: %w", err)
				}
				subscribers, err := store.LoadSubscribers(ctx)
				if err != nil {
					return fmt.Errorf("failed to load subscribers: %w", err)
				}

				inbox := policy.SafeTestInbox
				if inbox == "" {
					inbox = "(not set)"
				}

				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintf(w, "Sent today (%s UTC):\t%d / %d\n", day, sent, policy.DailyCap)
				fmt.Fprintf(w, "Per-run cap:\t%d\n", policy.PerRunCap)
				fmt.Fprintf(w, "Safety mode:\t%t\n", policy.SafetyMode)
				fmt.Fprintf(w, "Safe test inbox:\t%s\n", inbox)
				fmt.Fprintf(w, "Suppressed emails:\t%d\n", len(record.SuppressedEmails))
				fmt.Fprintf(w, "Suppressed domains:\t%d\n", len(record.SuppressedDomains))
				fmt.Fprintf(w, "Unsubscribed emails:\t%d\n", len(record.UnsubscribedEmails))
				fmt.Fprintf(w, "Subscribers:\t%d\n", len(subscribers))
				return w.Flush()
			})
		},
	}
}

func newSuppressCommand(opts *di.Options) *cobra.Command {
	suppress := &cobra.Command{
		Use:   "suppress",
		Short: "Manage the suppression list",
	}

	var domain bool
	add := &cobra.Command{
		Use:   "add [email|domain]",
		Short: "Never send to an address, or with --domain to any address at a domain",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(opts, func(store core.StateStore, logger *zap.Logger) error {
				defer release(store, logger)

				var (
					added bool
					err   error
				)
				if domain {
					added, err = core.SuppressDomain(cmd.Context(), store, args[0])
				} else {
					added, err = core.SuppressEmail(cmd.Context(), store, args[0], time.Now())
				}
				if err != nil {
					return err
				}
				if added {
					fmt.Fprintf(cmd.OutOrStdout(), "Suppressed %s\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is already suppressed\n", args[0])
				}
				return nil
			})
		},
	}
	add.Flags().BoolVar(&domain, "domain", false, "Treat the argument as a domain")

	remove := &cobra.Command{
		Use:   "remove [email|domain]",
		Short: "Remove an address or domain from every suppression set",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(opts, func(store core.StateStore, logger *zap.Logger) error {
				defer release(store, logger)

				removed, err := core.Unsuppress(cmd.Context(), store, args[0])
				if err != nil {
					return err
				}
				if removed {
					fmt.Fprintf(cmd.OutOrStdout(), "Removed %s\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s was not suppressed\n", args[0])
				}
				return nil
			})
		},
	}

	suppress.AddCommand(add, remove)
	return suppress
}

func newSubscribersCommand(opts *di.Options) *cobra.Command {
	subscribers := &cobra.Command{
		Use:   "subscribers",
		Short: "Manage reminder subscribers",
	}

	var source string
	add := &cobra.Command{
		Use:   "add [email] [company number]",
		Short: "Subscribe an address to reminders for a company",
		Args:  cobra.ExactArgs(2),
		RunE: func(cmd *cobra.Command, args []string) error {
			return invoke(opts, func(store core.StateStore, logger *zap.Logger) error {
				defer release(store, logger)

				added, err := core.AddSubscriber(cmd.Context(), store, args[0], args[1], source, time.Now())
				if err != nil {
					return err
				}
				if added {
					fmt.Fprintf(cmd.OutOrStdout(), "Subscribed %s\n", args[0])
				} else {
					fmt.Fprintf(cmd.OutOrStdout(), "%s is already subscribed\n", args[0])
				}
				return nil
			})
		},
	}
	add.Flags().StringVar(&source, "source", "manual", "Where the subscriber came from")

	list := &cobra.Command{
		Use:   "list",
		Short: "List reminder subscribers",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, _ []string) error {
			return invoke(opts, func(store core.StateStore, logger *zap.Logger) error {
				defer release(store, logger)

				subs, err := store.LoadSubscribers(cmd.Context())
				if err != nil {
					return err
				}
				w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
				fmt.Fprintln(w, "EMAIL\tCOMPANY\tSOURCE\tADDED")
				for _, s := range subs {
					fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", s.Email, s.CompanyNumber, s.Source, s.AddedAt)
				}
				return w.Flush()
			})
		},
	}

	subscribers.AddCommand(add, list)
	return subscribers
}
