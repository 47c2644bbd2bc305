package cmd

import (
	"fmt"
	"slices"

	"github.com/marcus/agencysync/internal/models"
	"github.com/marcus/agencysync/internal/output"
	"github.com/marcus/agencysync/internal/state"
	"github.com/spf13/cobra"
)

var requestsCmd = &cobra.Command{
	Use:     "requests",
	Aliases: []string{"pending"},
	Short:   "List customer requests awaiting review",
	Long: `Lists requests with the customer each one concerns. Only pending
requests are shown unless --all is given.`,
	GroupID: "inspect",
	Args:    cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		all, _ := cmd.Flags().GetBool("all")
		jsonOut, _ := cmd.Flags().GetBool("json")

		c, err := newClient()
		if err != nil {
			return err
		}
		s, err := c.State(cmd.Context())
		if err != nil {
			return fail(jsonOut, err)
		}

		if jsonOut {
			return output.JSON(selectRequests(s.Requests, all))
		}
		rows := requestRows(*s, all)
		if len(rows) == 0 {
			output.Info("no requests to review")
			return nil
		}
		for _, r := range rows {
			fmt.Println(r)
		}
		return nil
	},
}

func init() {
	rootCmd.AddCommand(requestsCmd)
	requestsCmd.Flags().Bool("all", false, "include approved and rejected requests")
	requestsCmd.Flags().Bool("json", false, "output as JSON")
}

// selectRequests returns the requests to review, oldest first.
func selectRequests(reqs []models.Request, all bool) []models.Request {
	reqs = slices.Clone(reqs)
	if !all {
		reqs = slices.DeleteFunc(reqs, func(r models.Request) bool { return r.Status != models.RequestPending })
	}
	slices.SortStableFunc(reqs, func(a, b models.Request) int { return a.CreatedAt.Compare(b.CreatedAt) })
	return reqs
}

// requestRows renders the selected requests one line each.
func requestRows(s state.AppState, all bool) []string {
	reqs := selectRequests(s.Requests, all)
	rows := make([]string, 0, len(reqs))
	for _, r := range reqs {
		who := "new customer"
		if r.Draft != nil && r.Draft.Name != "" {
			who = r.Draft.Name + " (new)"
		}
		if i := slices.IndexFunc(s.Customers, func(c models.Customer) bool { return c.ID == r.CustomerID }); i >= 0 {
			cust := s.Customers[i]
			who = fmt.Sprintf("%s %s", cust.Name, output.FormatPolicyStatus(cust.Status))
		} else if r.CustomerID != 0 {
			who = fmt.Sprintf("customer %d (missing)", r.CustomerID)
		}

		line := fmt.Sprintf("#%-4d %-12s %s  %s", r.ID, r.Kind, output.FormatRequestStatus(r.Status), who)
		if r.Amount > 0 {
			line += fmt.Sprintf("  %.2f", r.Amount)
		}
		if r.Note != "" {
			line += "  " + output.Subtle(r.Note)
		}
		rows = append(rows, line)
	}
	return rows
}
