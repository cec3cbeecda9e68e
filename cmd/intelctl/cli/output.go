package cli

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"
	"text/tabwriter"

	"golang.org/x/text/language"
	"golang.org/x/text/message"

	"github.com/odyssey-erp/commerce-intel/internal/intelligence"
	"github.com/odyssey-erp/commerce-intel/internal/shared"
)

// WriteSweepReport renders a sweep report as JSON or an aligned table.
func WriteSweepReport(w io.Writer, report intelligence.SweepReport, jsonOutput bool) error {
	if jsonOutput {
		enc := json.NewEncoder(w)
		enc.SetIndent("", "  ")
		return enc.Encode(report)
	}
	p := message.NewPrinter(language.English)
	if _, err := p.Fprintf(w, "tenant %d: %d customers, %d evaluated, %d skipped, %d snapshots\n",
		report.TenantID, report.Customers, report.Evaluated, report.Skipped, report.Snapshots); err != nil {
		return err
	}
	if len(report.Alerts) == 0 {
		_, err := fmt.Fprintln(w, "no alerts")
		return err
	}
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "RANK\tACCOUNT\tNAME\tSCORE\tTYPE")
	for i, alert := range report.Alerts {
		fmt.Fprintf(tw, "%d\t%d\t%s\t%.2f\t%s\n", i+1, alert.AccountID, alert.AccountName, alert.PriorityScore, alert.Type)
	}
	return tw.Flush()
}

// WriteQueueStats renders queue counters.
func WriteQueueStats(w io.Writer, stats QueueStats) error {
	tw := tabwriter.NewWriter(w, 0, 4, 2, ' ', 0)
	fmt.Fprintln(tw, "QUEUE\tPENDING\tACTIVE\tSCHEDULED\tRETRY\tARCHIVED")
	fmt.Fprintf(tw, "%s\t%d\t%d\t%d\t%d\t%d\n", stats.Queue, stats.Pending, stats.Active, stats.Scheduled, stats.Retry, stats.Archived)
	return tw.Flush()
}

// ParseRoles splits a comma separated role list, rejecting unknown roles.
func ParseRoles(raw string) ([]string, error) {
	known := map[string]bool{shared.RoleSalesRep: true, shared.RoleManager: true, shared.RoleAdmin: true}
	var roles []string
	seen := make(map[string]bool)
	for _, part := range strings.Split(raw, ",") {
		role := strings.ToLower(strings.TrimSpace(part))
		if role == "" || seen[role] {
			continue
		}
		if !known[role] {
			return nil, fmt.Errorf("unknown role %q", role)
		}
		seen[role] = true
		roles = append(roles, role)
	}
	if len(roles) == 0 {
		return nil, fmt.Errorf("at least one role required")
	}
	return roles, nil
}
