package main

import (
	"fmt"
	"text/tabwriter"
	"time"

	"memberconsole/internal/model"

	"github.com/spf13/cobra"
)

func requestsCommand() *cobra.Command {
	var chapter string
	cmd := &cobra.Command{
		Use:   "requests",
		Short: "List and review membership requests",
	}
	cmd.PersistentFlags().StringVarP(&chapter, "chapter", "c", "", "chapter id (default: your own chapter)")

	var status string
	list := &cobra.Command{
		Use:   "list",
		Short: "List requests, delayed ones first",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireSession(); err != nil {
				return err
			}
			chapterID, err := a.chapter(chapter)
			if err != nil {
				return err
			}

			var filter model.RequestStatus
			if status != "" {
				parsed, ok := model.ParseRequestStatus(status)
				if !ok {
					return fmt.Errorf("unknown status %q", status)
				}
				filter = parsed
			}
			reqs, err := a.service.Requests(cmd.Context(), chapterID, filter)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "ID\tAPPLICANT\tSTATUS\tSUBMITTED\tDELAYED")
			for _, r := range reqs {
				delayed := ""
				if r.IsDelayed {
					delayed = "yes"
				}
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n", r.ID, r.Applicant.Email, r.Status, r.SubmittedAt.Local().Format(time.DateTime), delayed)
			}
			return w.Flush()
		},
	}
	list.Flags().StringVar(&status, "status", "", "only list requests in this status")

	var notes string
	approve := &cobra.Command{
		Use:   "approve <request-id>",
		Short: "Approve a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			req, err := findRequest(cmd, a, chapter, args[0])
			if err != nil {
				return err
			}
			updated, err := a.service.Approve(cmd.Context(), req, notes)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", updated.ID, updated.Status)
			return nil
		},
	}
	approve.Flags().StringVar(&notes, "notes", "", "review notes")

	var reason string
	var noReapply bool
	reject := &cobra.Command{
		Use:   "reject <request-id>",
		Short: "Reject a pending request",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			req, err := findRequest(cmd, a, chapter, args[0])
			if err != nil {
				return err
			}
			updated, err := a.service.Reject(cmd.Context(), req, reason, !noReapply)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s (can reapply: %t)\n", updated.ID, updated.Status, updated.CanReapply)
			return nil
		},
	}
	reject.Flags().StringVar(&reason, "reason", "", "rejection reason (required)")
	reject.Flags().BoolVar(&noReapply, "no-reapply", false, "block the applicant from applying again")

	cmd.AddCommand(list, approve, reject)
	return cmd
}

func findRequest(cmd *cobra.Command, a *app, chapterFlag, id string) (model.MembershipRequest, error) {
	if err := a.requireSession(); err != nil {
		return model.MembershipRequest{}, err
	}
	chapterID, err := a.chapter(chapterFlag)
	if err != nil {
		return model.MembershipRequest{}, err
	}
	reqs, err := a.service.Requests(cmd.Context(), chapterID, "")
	if err != nil {
		return model.MembershipRequest{}, err
	}
	for _, r := range reqs {
		if r.ID == id {
			return r, nil
		}
	}
	return model.MembershipRequest{}, fmt.Errorf("request %s not found in chapter %s", id, chapterID)
}

func membersCommand() *cobra.Command {
	var chapter string
	cmd := &cobra.Command{
		Use:   "members",
		Short: "List, suspend and reinstate chapter members",
	}
	cmd.PersistentFlags().StringVarP(&chapter, "chapter", "c", "", "chapter id (default: your own chapter)")

	list := &cobra.Command{
		Use:   "list",
		Short: "List chapter members",
		Args:  cobra.NoArgs,
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			if err := a.requireSession(); err != nil {
				return err
			}
			chapterID, err := a.chapter(chapter)
			if err != nil {
				return err
			}
			members, err := a.service.Members(cmd.Context(), chapterID)
			if err != nil {
				return err
			}

			w := tabwriter.NewWriter(cmd.OutOrStdout(), 0, 4, 2, ' ', 0)
			fmt.Fprintln(w, "USER\tEMAIL\tROLE\tSTATUS")
			for _, m := range members {
				fmt.Fprintf(w, "%s\t%s\t%s\t%s\n", m.UserID, m.Email, m.Role, m.Status)
			}
			return w.Flush()
		},
	}

	var reason string
	suspend := &cobra.Command{
		Use:   "suspend <user-id>",
		Short: "Suspend an approved member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			m, err := findMember(cmd, a, chapter, args[0])
			if err != nil {
				return err
			}
			updated, err := a.service.Suspend(cmd.Context(), m, reason)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", updated.UserID, updated.Status)
			return nil
		},
	}
	suspend.Flags().StringVar(&reason, "reason", "", "suspension reason (required)")

	reinstate := &cobra.Command{
		Use:   "reinstate <user-id>",
		Short: "Reinstate a suspended member",
		Args:  cobra.ExactArgs(1),
		RunE: func(cmd *cobra.Command, args []string) error {
			a, err := newApp(cmd.Context())
			if err != nil {
				return err
			}
			defer a.close()
			m, err := findMember(cmd, a, chapter, args[0])
			if err != nil {
				return err
			}
			updated, err := a.service.Reinstate(cmd.Context(), m)
			if err != nil {
				return err
			}
			fmt.Fprintf(cmd.OutOrStdout(), "%s is now %s\n", updated.UserID, updated.Status)
			return nil
		},
	}

	cmd.AddCommand(list, suspend, reinstate)
	return cmd
}

func findMember(cmd *cobra.Command, a *app, chapterFlag, userID string) (model.Member, error) {
	if err := a.requireSession(); err != nil {
		return model.Member{}, err
	}
	chapterID, err := a.chapter(chapterFlag)
	if err != nil {
		return model.Member{}, err
	}
	members, err := a.service.Members(cmd.Context(), chapterID)
	if err != nil {
		return model.Member{}, err
	}
	for _, m := range members {
		if m.UserID == userID {
			return m, nil
		}
	}
	return model.Member{}, fmt.Errorf("member %s not found in chapter %s", userID, chapterID)
}
